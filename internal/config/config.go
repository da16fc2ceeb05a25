// Package config loads the YAML configuration of the playsync binary.
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/playsync/internal/core/observability/log"
)

// Transport names accepted in Remote.Transport.
const (
	TransportWebSocket = "websocket"
	TransportQUIC      = "quic"
	TransportLoopback  = "loopback"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Log   LogConfig   `yaml:"log"`
	Slave SlaveConfig `yaml:"slave"`
	// Remotes are the replicas a master forwards its batches to.
	Remotes []Remote `yaml:"remotes"`
	// Transport used for every remote that does not name its own.
	Transport       string        `yaml:"transport"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	DebugInvariants bool          `yaml:"debug_invariants"`
	TickInterval    time.Duration `yaml:"tick_interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SlaveConfig is used by the serve command.
type SlaveConfig struct {
	Listen string `yaml:"listen"`
	// QUIC enables the QUIC listener when set.
	QUIC string `yaml:"quic"`
}

type Remote struct {
	Address   string `yaml:"address"`
	Transport string `yaml:"transport"`
}

func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Slave: SlaveConfig{
			Listen: ":7300",
		},
		Transport:    TransportWebSocket,
		WriteTimeout: 5 * time.Second,
		TickInterval: 16 * time.Millisecond,
	}
}

// LoadYAML reads a configuration on top of the defaults.
func LoadYAML(r io.Reader) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadYAML(f)
}

// RemoteTransport returns the transport of r, falling back to the default.
func (c *Config) RemoteTransport(r Remote) string {
	if r.Transport != "" {
		return r.Transport
	}
	return c.Transport
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log format %q must be json or console", c.Log.Format))
	}
	if c.Slave.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Slave.Listen); err != nil {
			errs = append(errs, fmt.Errorf("slave listen address: %w", err))
		}
	}
	if !validTransport(c.Transport) {
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}
	for i, r := range c.Remotes {
		if r.Address == "" {
			errs = append(errs, fmt.Errorf("remote %d has no address", i))
		}
		if r.Transport != "" && !validTransport(r.Transport) {
			errs = append(errs, fmt.Errorf("remote %d: unknown transport %q", i, r.Transport))
		}
	}
	if c.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("write timeout %s is negative", c.WriteTimeout))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick interval %s must be positive", c.TickInterval))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

func validTransport(t string) bool {
	switch t {
	case TransportWebSocket, TransportQUIC, TransportLoopback:
		return true
	}
	return false
}
