package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadYAML(t *testing.T) {
	const doc = `
log:
  level: debug
  format: json
slave:
  listen: 127.0.0.1:9000
  quic: 127.0.0.1:9001
transport: quic
write_timeout: 250ms
debug_invariants: true
remotes:
  - address: 10.0.0.2:9001
  - address: http://10.0.0.3:9000
    transport: websocket
`
	c, err := LoadYAML(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "json", c.Log.Format)
	assert.Equal(t, "127.0.0.1:9001", c.Slave.QUIC)
	assert.Equal(t, 250*time.Millisecond, c.WriteTimeout)
	assert.True(t, c.DebugInvariants)
	assert.Equal(t, 16*time.Millisecond, c.TickInterval, "unset keys keep their default")

	require.Len(t, c.Remotes, 2)
	assert.Equal(t, TransportQUIC, c.RemoteTransport(c.Remotes[0]))
	assert.Equal(t, TransportWebSocket, c.RemoteTransport(c.Remotes[1]))
}

func TestLoadEmptyYAML(t *testing.T) {
	c, err := LoadYAML(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := LoadYAML(strings.NewReader("debug_invariant: true\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"listen", func(c *Config) { c.Slave.Listen = "nope" }},
		{"transport", func(c *Config) { c.Transport = "carrier-pigeon" }},
		{"remote address", func(c *Config) { c.Remotes = []Remote{{}} }},
		{"remote transport", func(c *Config) { c.Remotes = []Remote{{Address: "x:1", Transport: "smtp"}} }},
		{"write timeout", func(c *Config) { c.WriteTimeout = -time.Second }},
		{"tick interval", func(c *Config) { c.TickInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transport: loopback\n"), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, TransportLoopback, c.Transport)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
