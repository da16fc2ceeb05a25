package remote

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/playsync/internal/core/observability/log"
)

const quicALPN = "playsync-replica"

func defaultQUICConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	}
}

type quicConn struct {
	mu     sync.Mutex
	conn   *quic.Conn
	stream *quic.Stream
}

// QUICTransport sends frames over one stream per remote replica, each frame
// prefixed with its length as a 4 byte big endian integer.
type QUICTransport struct {
	tlsConfig  *tls.Config
	quicConfig *quic.Config

	mu    sync.Mutex
	conns map[uuid.UUID]*quicConn
}

func NewQUICTransport() *QUICTransport {
	return &QUICTransport{
		// slaves present self-signed certificates
		tlsConfig: &tls.Config{
			InsecureSkipVerify: true,
			NextProtos:         []string{quicALPN},
		},
		quicConfig: defaultQUICConfig(),
		conns:      make(map[uuid.UUID]*quicConn),
	}
}

func (t *QUICTransport) conn(ctx context.Context, h Handle) (*quicConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.conns[h.ID]; ok {
		return c, nil
	}

	conn, err := quic.DialAddr(ctx, h.Addr, t.tlsConfig, t.quicConfig)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", h.Addr, err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "no stream")
		return nil, fmt.Errorf("open stream to %s: %w", h.Addr, err)
	}
	c := &quicConn{conn: conn, stream: stream}
	t.conns[h.ID] = c
	return c, nil
}

func (t *QUICTransport) Send(ctx context.Context, h Handle, payload []byte) error {
	if len(payload) > maxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	c, err := t.conn(ctx, h)
	if err != nil {
		return err
	}

	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)

	c.mu.Lock()
	defer c.mu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.stream.SetWriteDeadline(deadline)
	}
	if _, err := c.stream.Write(buf); err != nil {
		t.forget(h)
		_ = c.conn.CloseWithError(0, "write failed")
		return fmt.Errorf("write frame to %s: %w", h, err)
	}
	return nil
}

func (t *QUICTransport) Close(h Handle) error {
	c := t.forget(h)
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.stream.Close()
	return c.conn.CloseWithError(0, "replica unregistered")
}

func (t *QUICTransport) forget(h Handle) *quicConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.conns[h.ID]
	delete(t.conns, h.ID)
	return c
}

// QUICListener is the slave side of QUICTransport.
type QUICListener struct {
	ln  *quic.Listener
	log log.Log
}

func ListenQUIC(addr string, logger log.Log) (*QUICListener, error) {
	tlsConfig, err := generateTLSConfig()
	if err != nil {
		return nil, err
	}
	ln, err := quic.ListenAddr(addr, tlsConfig, defaultQUICConfig())
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return &QUICListener{ln: ln, log: logger.With(log.String("transport", "quic"))}, nil
}

func (l *QUICListener) Addr() net.Addr {
	return l.ln.Addr()
}

// Serve accepts masters until ctx is done and feeds their frames to r.
func (l *QUICListener) Serve(ctx context.Context, r Receiver) error {
	for {
		conn, err := l.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, quic.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go l.handle(ctx, conn, r)
	}
}

func (l *QUICListener) handle(ctx context.Context, conn *quic.Conn, r Receiver) {
	l.log.Info("master connected", log.String("remote", conn.RemoteAddr().String()))
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		l.log.Warn("accept stream failed", log.Error(err))
		return
	}

	header := make([]byte, 4)
	for {
		if _, err := io.ReadFull(stream, header); err != nil {
			if !errors.Is(err, io.EOF) {
				l.log.Warn("read failed", log.Error(err))
			}
			return
		}
		size := binary.BigEndian.Uint32(header)
		if size > maxFrameSize {
			l.log.Warn("frame too large", log.Uint32("size", size))
			_ = conn.CloseWithError(1, ErrFrameTooLarge.Error())
			return
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(stream, data); err != nil {
			l.log.Warn("read failed", log.Error(err))
			return
		}
		if err := r.Receive(data); err != nil {
			l.log.Warn("frame rejected", log.Error(err))
			if errors.Is(err, ErrDiverged) {
				_ = conn.CloseWithError(2, "diverged")
				return
			}
		}
	}
}

func (l *QUICListener) Close() error {
	return l.ln.Close()
}

// generateTLSConfig builds a self-signed certificate for the listener.
func generateTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{Organization: []string{"playsync"}},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		DNSNames:     []string{"localhost"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		NextProtos:   []string{quicALPN},
	}, nil
}
