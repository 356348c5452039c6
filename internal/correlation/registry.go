// Package correlation joins authorization responses arriving on the response
// channel to the requests that produced them.
package correlation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alovak/cardflow-bridge/models"
)

// ErrTimeout is returned by Pending.Wait when the context ends before the
// response arrives.
var ErrTimeout = errors.New("correlation timeout")

const DefaultTTL = 2 * time.Minute

type Status int

const (
	StatusUnknown Status = iota
	StatusPending
	StatusResolved
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// EvictReason tells why Sweep dropped an entry.
type EvictReason string

const (
	// EvictAbandoned means no response arrived within the TTL.
	EvictAbandoned EvictReason = "abandoned"
	// EvictUnclaimed means a response arrived but nobody took it within the TTL.
	EvictUnclaimed EvictReason = "unclaimed"
)

// Pending is a single-assignment handle completed when the response for its
// correlation id is resolved.
type Pending struct {
	id   string
	done chan struct{}
	once sync.Once
	resp *models.AuthorizationResponse
}

func newPending(id string) *Pending {
	return &Pending{id: id, done: make(chan struct{})}
}

// Done is closed once the handle is completed.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the response arrives or ctx ends.
func (p *Pending) Wait(ctx context.Context) (*models.AuthorizationResponse, error) {
	select {
	case <-p.done:
		return p.resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for %s: %w: %w", p.id, ErrTimeout, ctx.Err())
	}
}

func (p *Pending) complete(resp *models.AuthorizationResponse) {
	p.once.Do(func() {
		p.resp = resp
		close(p.done)
	})
}

type entry struct {
	pending      *Pending
	registeredAt time.Time

	response   *models.AuthorizationResponse
	resolvedAt time.Time
}

// Registry holds pending handles and resolved responses keyed by correlation
// id. All methods are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry

	ttl     time.Duration
	now     func() time.Time
	onEvict func(id string, reason EvictReason)
}

type Option func(*Registry)

func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithEvictHook installs fn to be called, outside the registry lock, for every
// entry dropped by Sweep.
func WithEvictHook(fn func(id string, reason EvictReason)) Option {
	return func(r *Registry) { r.onEvict = fn }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates the handle for id. It must be called before the request is
// published. A second registration replaces the first; the replaced handle is
// never completed. If a response for id is already stored the new handle is
// completed immediately.
func (r *Registry) Register(id string) *Pending {
	p := newPending(id)

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		e = &entry{}
		r.entries[id] = e
	}
	e.registeredAt = r.now()

	if e.response != nil {
		p.complete(e.response)
		e.pending = nil
		return p
	}
	e.pending = p
	return p
}

// Resolve stores resp under its correlation id and completes the registered
// handle, if any. It returns true when a handle was completed.
func (r *Registry) Resolve(id string, resp *models.AuthorizationResponse) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		e = &entry{}
		r.entries[id] = e
	}
	e.response = resp
	e.resolvedAt = r.now()
	p := e.pending
	e.pending = nil
	r.mu.Unlock()

	if p == nil {
		return false
	}
	p.complete(resp)
	return true
}

// Take returns the stored response for id and removes it. A second Take for
// the same id returns false.
func (r *Registry) Take(id string) (*models.AuthorizationResponse, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.response == nil {
		return nil, false
	}
	delete(r.entries, id)
	return e.response, true
}

func (r *Registry) Status(id string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	switch {
	case !ok:
		return StatusUnknown
	case e.response != nil:
		return StatusResolved
	default:
		return StatusPending
	}
}

// Forget drops id without completing its handle. Used when a request could
// not be published.
func (r *Registry) Forget(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// MaxWait is the longest a caller should block on a handle. Keeping waits at
// half the TTL means a sweep never evicts an entry someone is still waiting on.
func (r *Registry) MaxWait() time.Duration {
	return r.ttl / 2
}

// Len returns the number of tracked correlation ids.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep evicts entries older than the TTL as of now and returns how many were
// removed. Evicted handles are not completed.
func (r *Registry) Sweep(now time.Time) int {
	type evicted struct {
		id     string
		reason EvictReason
	}
	var out []evicted

	r.mu.Lock()
	for id, e := range r.entries {
		switch {
		case e.response != nil && now.Sub(e.resolvedAt) > r.ttl:
			out = append(out, evicted{id, EvictUnclaimed})
			delete(r.entries, id)
		case e.response == nil && now.Sub(e.registeredAt) > r.ttl:
			out = append(out, evicted{id, EvictAbandoned})
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	if r.onEvict != nil {
		for _, ev := range out {
			r.onEvict(ev.id, ev.reason)
		}
	}
	return len(out)
}

// Run sweeps every interval until ctx is done. A non-positive interval uses
// half the TTL.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = r.ttl / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}
