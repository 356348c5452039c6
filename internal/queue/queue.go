// Package queue carries wire messages between the gateway and the authorizer.
package queue

import (
	"context"
	"errors"
)

// Channel names shared by both processes.
const (
	RequestChannel  = "authorization.requests"
	ResponseChannel = "authorization.responses"
)

// ErrEmpty is returned by Receive when nothing arrived within the poll window.
var ErrEmpty = errors.New("queue: no message")

// ErrClosed is returned after the queue has been closed.
var ErrClosed = errors.New("queue: closed")

type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Source hands out one message at a time. Every published message is
// delivered to exactly one Receive call.
type Source interface {
	Receive(ctx context.Context, channel string) ([]byte, error)
}

// Queue is a Publisher and Source pair backed by one transport.
type Queue interface {
	Publisher
	Source
	Ping(ctx context.Context) error
	Close() error
}
