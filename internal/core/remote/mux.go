package remote

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Mux routes every handle to the transport it was bound to, so one Fanout
// can mix WebSocket, QUIC and in-process replicas.
type Mux struct {
	mu     sync.RWMutex
	routes map[uuid.UUID]Transport
}

var _ Transport = (*Mux)(nil)

func NewMux() *Mux {
	return &Mux{routes: make(map[uuid.UUID]Transport)}
}

func (m *Mux) Bind(h Handle, t Transport) {
	m.mu.Lock()
	m.routes[h.ID] = t
	m.mu.Unlock()
}

func (m *Mux) route(h Handle) (Transport, error) {
	m.mu.RLock()
	t, ok := m.routes[h.ID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s has no transport", ErrUnknownHandle, h)
	}
	return t, nil
}

func (m *Mux) Send(ctx context.Context, h Handle, payload []byte) error {
	t, err := m.route(h)
	if err != nil {
		return err
	}
	return t.Send(ctx, h, payload)
}

// Close closes h on its transport and forgets the binding.
func (m *Mux) Close(h Handle) error {
	t, err := m.route(h)
	if err != nil {
		return nil
	}
	m.mu.Lock()
	delete(m.routes, h.ID)
	m.mu.Unlock()
	return t.Close(h)
}
