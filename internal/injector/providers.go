package injector

import (
	"fmt"

	"github.com/google/wire"

	"github.com/zeusync/playsync/internal/config"
	"github.com/zeusync/playsync/internal/core/document"
	"github.com/zeusync/playsync/internal/core/events"
	"github.com/zeusync/playsync/internal/core/observability/log"
	"github.com/zeusync/playsync/internal/core/remote"
	"github.com/zeusync/playsync/internal/core/replica"
)

var CommonSet = wire.NewSet(
	ProvideLogger,
	wire.Bind(new(log.Log), new(*log.Logger)),
	ProvideBus,
)

var MasterSet = wire.NewSet(
	CommonSet,
	ProvideTransports,
	ProvideFanout,
	ProvideSynchronizer,
	wire.Struct(new(Master), "*"),
)

var SlaveSet = wire.NewSet(
	CommonSet,
	ProvideMirror,
	wire.Struct(new(Slave), "*"),
)

// Master is the editor side: the play replica synchronizer and the
// transports its remote replicas are reached through.
type Master struct {
	Logger       *log.Logger
	Bus          events.Bus
	Transports   *Transports
	Synchronizer *replica.Synchronizer
}

// Slave is a remote replica process.
type Slave struct {
	Logger *log.Logger
	Bus    events.Bus
	Mirror *remote.Mirror
}

// Transports holds one instance of every transport, all reachable through
// Mux once a handle is bound.
type Transports struct {
	Mux       *remote.Mux
	WebSocket *remote.WebSocketTransport
	QUIC      *remote.QUICTransport
	Loopback  *remote.LoopbackTransport
}

// For returns the transport registered under a config transport name.
func (t *Transports) For(name string) (remote.Transport, error) {
	switch name {
	case config.TransportWebSocket:
		return t.WebSocket, nil
	case config.TransportQUIC:
		return t.QUIC, nil
	case config.TransportLoopback:
		return t.Loopback, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", name)
	}
}

// Bind creates a handle for addr routed through the named transport.
func (t *Transports) Bind(addr, name string) (remote.Handle, error) {
	tr, err := t.For(name)
	if err != nil {
		return remote.Handle{}, err
	}
	h := remote.NewHandle(addr)
	t.Mux.Bind(h, tr)
	return h, nil
}

func ProvideLogger(cfg *config.Config) (*log.Logger, func(), error) {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	logger, err := log.NewWithOptions(level, log.Options{Encoding: cfg.Log.Format})
	if err != nil {
		return nil, nil, err
	}
	return logger, func() { _ = logger.Sync() }, nil
}

func ProvideBus(logger log.Log) events.Bus {
	bus := events.New()
	bus.AddObserver(events.LogObserver{Logger: logger.With(log.String("component", "events"))})
	return bus
}

func ProvideTransports(cfg *config.Config) *Transports {
	return &Transports{
		Mux:       remote.NewMux(),
		WebSocket: remote.NewWebSocketTransport(cfg.WriteTimeout),
		QUIC:      remote.NewQUICTransport(),
		Loopback:  remote.NewLoopback(),
	}
}

func ProvideFanout(t *Transports, logger log.Log, bus events.Bus) (*remote.Fanout, func()) {
	f := remote.NewFanout(t.Mux, logger, bus)
	return f, func() { _ = f.Close() }
}

func ProvideSynchronizer(
	cfg *config.Config,
	master *document.Document,
	logger log.Log,
	bus events.Bus,
	fanout *remote.Fanout,
) (*replica.Synchronizer, error) {
	return replica.New(
		replica.Context{Master: master, Logger: logger, Bus: bus},
		replica.WithDebugInvariants(cfg.DebugInvariants),
		replica.WithFanout(fanout),
	)
}

func ProvideMirror(logger log.Log, bus events.Bus) *remote.Mirror {
	return remote.NewMirror(logger, bus)
}
