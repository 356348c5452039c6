package iso8583

import (
	"fmt"
	"sync/atomic"
)

const maxSTAN = 999999

// Sequence hands out System Trace Audit Numbers in 000001..999999, wrapping
// around. Safe for concurrent use.
type Sequence struct {
	n atomic.Uint32
}

// NewSequence returns a sequence whose first value is start+1.
func NewSequence(start uint32) *Sequence {
	s := &Sequence{}
	s.n.Store(start % maxSTAN)
	return s
}

func (s *Sequence) Next() string {
	v := s.n.Add(1)
	return fmt.Sprintf("%06d", (v-1)%maxSTAN+1)
}
