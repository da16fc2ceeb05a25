package injector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/playsync/internal/config"
	"github.com/zeusync/playsync/internal/core/document"
	"github.com/zeusync/playsync/internal/core/replica"
)

func TestInitializeMasterWithLoopbackSlave(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "error"
	cfg.DebugInvariants = true

	master := document.New()
	_, err := master.AddEntity(document.ObjectID{}, "root")
	require.NoError(t, err)

	m, cleanup, err := InitializeMaster(cfg, master)
	require.NoError(t, err)
	defer cleanup()

	s, cleanupSlave, err := InitializeSlave(cfg)
	require.NoError(t, err)
	defer cleanupSlave()

	h, err := m.Transports.Bind("in-process", config.TransportLoopback)
	require.NoError(t, err)
	m.Transports.Loopback.Attach(h, s.Mirror)

	sy := m.Synchronizer
	require.NoError(t, sy.DeriveReplica())
	require.NoError(t, sy.RegisterRemoteReplica(context.Background(), h, 0))
	assert.Equal(t, replica.Live, sy.State())
	assert.True(t, s.Mirror.Status().Ready)

	_, err = m.Transports.Bind("x", "pigeon")
	assert.Error(t, err)
}

func TestInitializeRejectsBadLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "chatty"
	_, _, err := InitializeSlave(cfg)
	assert.Error(t, err)
}
