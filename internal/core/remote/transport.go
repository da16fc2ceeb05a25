// Package remote forwards operation batches to replicas running in other
// processes and applies them on the receiving side.
package remote

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrUnknownHandle     = errors.New("unknown remote replica")
	ErrAlreadyRegistered = errors.New("remote replica already registered")
	ErrDiverged          = errors.New("mirror diverged, waiting for snapshot")
	ErrSequenceGap       = errors.New("frame sequence gap")
	ErrFrameTooLarge     = errors.New("frame too large")
	ErrMissingResource   = errors.New("referenced resource not delivered")
)

// Handle names one remote replica. Addr is interpreted by the transport.
type Handle struct {
	ID   uuid.UUID
	Addr string
}

func NewHandle(addr string) Handle {
	return Handle{ID: uuid.New(), Addr: addr}
}

func (h Handle) String() string {
	return h.ID.String() + "@" + h.Addr
}

// Transport delivers encoded frames to remote replicas. A failure concerns
// only the handle it was sent to.
type Transport interface {
	Send(ctx context.Context, h Handle, payload []byte) error
	Close(h Handle) error
}

// Receiver consumes encoded frames on the replica side.
type Receiver interface {
	Receive(payload []byte) error
}
