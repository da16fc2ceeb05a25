package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zeusync/playsync/internal/core/observability/log"
)

// ReplicaPath is where slaves accept the WebSocket frame stream.
const ReplicaPath = "/replica"

const maxFrameSize = 64 << 20

type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// WebSocketTransport dials each remote replica once and keeps the
// connection for later frames.
type WebSocketTransport struct {
	dialer       *websocket.Dialer
	writeTimeout time.Duration

	mu    sync.Mutex
	conns map[uuid.UUID]*wsConn
}

func NewWebSocketTransport(writeTimeout time.Duration) *WebSocketTransport {
	return &WebSocketTransport{
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			WriteBufferSize:  64 << 10,
		},
		writeTimeout: writeTimeout,
		conns:        make(map[uuid.UUID]*wsConn),
	}
}

// replicaURL accepts host:port, ws(s):// and http(s):// addresses.
func replicaURL(addr string) string {
	switch {
	case strings.HasPrefix(addr, "ws://"), strings.HasPrefix(addr, "wss://"):
	case strings.HasPrefix(addr, "http://"):
		addr = "ws://" + strings.TrimPrefix(addr, "http://")
	case strings.HasPrefix(addr, "https://"):
		addr = "wss://" + strings.TrimPrefix(addr, "https://")
	default:
		addr = "ws://" + addr
	}
	if !strings.HasSuffix(addr, ReplicaPath) {
		addr = strings.TrimSuffix(addr, "/") + ReplicaPath
	}
	return addr
}

func (t *WebSocketTransport) conn(ctx context.Context, h Handle) (*wsConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.conns[h.ID]; ok {
		return c, nil
	}
	conn, _, err := t.dialer.DialContext(ctx, replicaURL(h.Addr), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", h.Addr, err)
	}
	c := &wsConn{conn: conn}
	t.conns[h.ID] = c
	return c, nil
}

func (t *WebSocketTransport) Send(ctx context.Context, h Handle, payload []byte) error {
	c, err := t.conn(ctx, h)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if t.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		t.forget(h)
		_ = c.conn.Close()
		return fmt.Errorf("write frame to %s: %w", h, err)
	}
	return nil
}

func (t *WebSocketTransport) Close(h Handle) error {
	c := t.forget(h)
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}

func (t *WebSocketTransport) forget(h Handle) *wsConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.conns[h.ID]
	delete(t.conns, h.ID)
	return c
}

// WebSocketHandler accepts a frame stream and feeds it to r. A diverged
// receiver closes the connection so the sender drops it.
func WebSocketHandler(r Receiver, logger log.Log) http.HandlerFunc {
	logger = logger.With(log.String("transport", "websocket"))
	upgrader := websocket.Upgrader{
		ReadBufferSize:  64 << 10,
		WriteBufferSize: 4 << 10,
		CheckOrigin: func(*http.Request) bool {
			return true
		},
	}

	return func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			logger.Warn("upgrade failed", log.Error(err))
			return
		}
		defer conn.Close()
		conn.SetReadLimit(maxFrameSize)
		logger.Info("master connected", log.String("remote", conn.RemoteAddr().String()))

		for {
			typ, data, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Warn("read failed", log.Error(err))
				}
				return
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			if err := r.Receive(data); err != nil {
				logger.Warn("frame rejected", log.Error(err))
				if errors.Is(err, ErrDiverged) {
					msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "diverged")
					_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
					return
				}
			}
		}
	}
}
