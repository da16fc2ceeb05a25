package remote

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// LoopbackTransport delivers frames to receivers in the same process.
type LoopbackTransport struct {
	mu        sync.RWMutex
	receivers map[uuid.UUID]Receiver
}

func NewLoopback() *LoopbackTransport {
	return &LoopbackTransport{receivers: make(map[uuid.UUID]Receiver)}
}

// Attach routes frames sent to h into r.
func (t *LoopbackTransport) Attach(h Handle, r Receiver) {
	t.mu.Lock()
	t.receivers[h.ID] = r
	t.mu.Unlock()
}

func (t *LoopbackTransport) Send(ctx context.Context, h Handle, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.RLock()
	r, ok := t.receivers[h.ID]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	return r.Receive(payload)
}

func (t *LoopbackTransport) Close(h Handle) error {
	t.mu.Lock()
	delete(t.receivers, h.ID)
	t.mu.Unlock()
	return nil
}
