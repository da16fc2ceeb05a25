package replica

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/playsync/internal/core/codec"
	"github.com/zeusync/playsync/internal/core/document"
	"github.com/zeusync/playsync/internal/core/events"
	"github.com/zeusync/playsync/internal/core/identity"
	"github.com/zeusync/playsync/internal/core/observability/log"
	"github.com/zeusync/playsync/internal/core/ops"
	"github.com/zeusync/playsync/internal/core/remote"
)

// scene is E1 (root) with child E2 holding material M1.
type scene struct {
	doc *document.Document
	ed  *ops.Editor
	rec *ops.Recorder

	e1, e2, m1 document.ObjectID
	texture    document.ObjectID
}

func newScene(t *testing.T) *scene {
	t.Helper()
	s := &scene{doc: document.New(), rec: ops.NewRecorder()}
	s.ed = ops.NewEditor(s.doc, s.rec)
	s.texture = s.doc.Library().AddAsset("bark.png", "image/png", []byte{1, 2, 3})

	var err error
	s.e1, err = s.ed.AddEntity(document.ObjectID{}, "E1")
	require.NoError(t, err)
	s.e2, err = s.ed.AddEntity(s.e1, "E2")
	require.NoError(t, err)
	s.m1, err = s.ed.AddComponent(s.e2, document.ComponentMaterial)
	require.NoError(t, err)
	s.rec.Drain()
	return s
}

func newSynchronizer(t *testing.T, sc *scene, opts ...Option) *Synchronizer {
	t.Helper()
	s, err := New(Context{Master: sc.doc, Logger: log.NewNop()}, opts...)
	require.NoError(t, err)
	require.NoError(t, s.DeriveReplica())
	return s
}

func replicaProperty(t *testing.T, s *Synchronizer, master document.ObjectID, name string) document.Value {
	t.Helper()
	id, ok := s.Identity().Translate(master)
	require.True(t, ok, "no mapping for %s", master)
	v, err := s.Replica().Property(id, name)
	require.NoError(t, err)
	return v
}

func TestDerivationMapsEveryObject(t *testing.T) {
	sc := newScene(t)
	s := newSynchronizer(t, sc)

	assert.Equal(t, Live, s.State())
	assert.Equal(t, 3, s.Identity().Len())
	for _, id := range []document.ObjectID{sc.e1, sc.e2, sc.m1} {
		foreign, ok := s.Identity().Translate(id)
		require.True(t, ok)
		back, ok := s.Identity().Inverse(foreign)
		require.True(t, ok)
		assert.Equal(t, id, back)
	}

	root, ok := s.Identity().Translate(sc.e1)
	require.True(t, ok)
	assert.Equal(t, s.Replica().Root(), root)
	assert.Equal(t, sc.doc.Fingerprint(), s.Replica().Fingerprint())
	assert.Same(t, sc.doc.Library(), s.Replica().Library())
}

func TestTickAppliesTranslatedEdit(t *testing.T) {
	sc := newScene(t)
	s := newSynchronizer(t, sc)

	require.NoError(t, sc.ed.SetProperty(sc.m1, "visible", document.BoolValue(false)))
	res, err := s.ApplyTick(context.Background(), sc.rec.Drain())
	require.NoError(t, err)

	assert.Equal(t, Applied, res.Outcome)
	assert.Equal(t, uint64(1), res.Tick)
	assert.False(t, replicaProperty(t, s, sc.m1, "visible").Bool)

	env := res.Envelope
	require.NotNil(t, env)
	assert.Equal(t, codec.ModeFlagPlayEdit, env.Mode)
	require.NotNil(t, env.Operations)
	require.NotNil(t, env.TranslatedOperations)
	assert.Equal(t, env.Operations.ID, env.TranslatedOperations.ID)

	replicaM1, _ := s.Identity().Translate(sc.m1)
	original := env.Operations.Operations[0].(ops.SetProperty)
	translated := env.TranslatedOperations.Operations[0].(ops.SetProperty)
	assert.Equal(t, sc.m1, original.Component)
	assert.Equal(t, replicaM1, translated.Component)
	assert.Empty(t, s.Errors())
}

func TestCorruptedMapForcesResync(t *testing.T) {
	sc := newScene(t)
	bus := events.New()
	var resynced []events.Resynced
	_, _ = bus.Subscribe(events.ReplicaResynced, func(e events.Event) error {
		resynced = append(resynced, e.Data().(events.Resynced))
		return nil
	})
	s, err := New(Context{Master: sc.doc, Logger: log.NewNop(), Bus: bus}, WithDebugInvariants(true))
	require.NoError(t, err)
	require.NoError(t, s.DeriveReplica())

	require.True(t, s.Identity().RemoveLocal(sc.m1))
	require.NoError(t, sc.ed.SetProperty(sc.m1, "visible", document.BoolValue(false)))

	res, err := s.ApplyTick(context.Background(), sc.rec.Drain())
	require.NoError(t, err)
	assert.Equal(t, Resynced, res.Outcome)
	assert.Equal(t, Live, s.State())
	assert.Equal(t, 3, s.Identity().Len())
	assert.False(t, replicaProperty(t, s, sc.m1, "visible").Bool)

	assert.Equal(t, codec.ModeFlagResync, res.Envelope.Mode)
	assert.NotEmpty(t, res.Envelope.Snapshot)

	errs := s.DrainErrors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ops.ErrUntranslatable)
	assert.Empty(t, s.Errors())

	require.Len(t, resynced, 1)
	assert.Equal(t, uint64(1), resynced[0].Tick)
	assert.ErrorIs(t, resynced[0].Reason, ops.ErrUntranslatable)
}

func TestReplayMatchesDirectApplication(t *testing.T) {
	sc := newScene(t)
	s := newSynchronizer(t, sc)

	data, err := codec.Serialize(sc.doc, codec.Options{IDStrategy: codec.IdentityOfSource})
	require.NoError(t, err)
	clone, report, err := codec.Deserialize(data, nil, codec.DecodeOptions{PreserveIDs: true})
	require.NoError(t, err)
	require.Zero(t, report.Len())

	ctx := context.Background()
	var player document.ObjectID
	edits := []func(){
		func() {
			require.NoError(t, sc.ed.SetProperty(sc.m1, "texture", document.AssetRefValue(sc.texture)))
			require.NoError(t, sc.ed.SetProperty(sc.m1, "opacity", document.FloatValue(0.25)))
		},
		func() {
			var err error
			player, err = sc.ed.AddEntity(sc.e1, "player")
			require.NoError(t, err)
			in, err := sc.ed.AddComponent(player, document.ComponentInput)
			require.NoError(t, err)
			require.NoError(t, sc.ed.SetProperty(in, "target", document.ObjectRefValue(sc.e2)))
			require.NoError(t, sc.ed.SetTransform(player, document.Vec3{X: 1, Z: -2}, document.IdentityQuat, &document.Vec3{X: 2, Y: 2, Z: 2}))
		},
		func() {
			require.NoError(t, sc.ed.Reparent(player, sc.e2))
			require.NoError(t, sc.ed.SetTransform(player, document.Vec3{Y: 1}, document.IdentityQuat, nil))
		},
		func() {
			require.NoError(t, sc.ed.SetLabel(sc.e2, "crate"))
			require.NoError(t, sc.ed.DeleteComponent(sc.m1))
			sc.ed.SetMode(document.ModePlay)
		},
	}

	for _, edit := range edits {
		edit()
		batch := sc.rec.Drain()
		for _, op := range batch {
			_, err := op.Apply(clone, ops.ApplyOptions{Place: true})
			require.NoError(t, err)
		}
		res, err := s.ApplyTick(ctx, batch)
		require.NoError(t, err)
		require.Equal(t, Applied, res.Outcome)
		assert.Equal(t, clone.Fingerprint(), s.Replica().Fingerprint())
	}
	assert.Equal(t, sc.doc.Fingerprint(), s.Replica().Fingerprint())
	assert.Equal(t, document.ModePlay, s.Replica().Mode())

	replicaPlayer, ok := s.Identity().Translate(player)
	require.True(t, ok)
	moved, ok := s.Replica().Entity(replicaPlayer)
	require.True(t, ok)
	replicaE2, _ := s.Identity().Translate(sc.e2)
	assert.Equal(t, replicaE2, moved.Parent())
}

func TestResyncIsDeterministic(t *testing.T) {
	sc := newScene(t)
	s := newSynchronizer(t, sc)

	_, err := sc.ed.AddEntity(sc.e2, "partial")
	require.NoError(t, err)
	require.NoError(t, sc.ed.SetLabel(sc.e1, "world"))
	s.Identity().RemoveLocal(sc.e1)

	res, err := s.ApplyTick(context.Background(), sc.rec.Drain())
	require.NoError(t, err)
	require.Equal(t, Resynced, res.Outcome)

	fresh := newSynchronizer(t, sc)
	assert.Equal(t, fresh.Replica().Fingerprint(), s.Replica().Fingerprint())
	assert.Equal(t, fresh.Identity().Pairs(), s.Identity().Pairs())
	assert.Equal(t, sc.doc.Fingerprint(), s.Replica().Fingerprint())
}

func TestResyncIsIdempotent(t *testing.T) {
	sc := newScene(t)
	s := newSynchronizer(t, sc, WithDebugInvariants(true))

	require.NoError(t, s.DeriveReplica())
	first := s.Identity().Pairs()
	require.NoError(t, s.DeriveReplica())
	second := s.Identity().Pairs()

	assert.Len(t, first, 3)
	assert.Equal(t, first, second)
	assert.Empty(t, s.Errors())
}

func TestEntityLifecycleKeepsMapInStep(t *testing.T) {
	sc := newScene(t)
	s := newSynchronizer(t, sc, WithDebugInvariants(true))
	ctx := context.Background()

	child, err := sc.ed.AddEntity(sc.e2, "child")
	require.NoError(t, err)
	cam, err := sc.ed.AddComponent(child, document.ComponentCamera)
	require.NoError(t, err)
	require.NoError(t, sc.ed.SetProperty(cam, "fov", document.FloatValue(90)))

	res, err := s.ApplyTick(ctx, sc.rec.Drain())
	require.NoError(t, err)
	require.Equal(t, Applied, res.Outcome)
	assert.Equal(t, 5, s.Identity().Len())
	assert.Equal(t, 90.0, replicaProperty(t, s, cam, "fov").Float)

	replicaChild, ok := s.Identity().Translate(child)
	require.True(t, ok)
	e, ok := s.Replica().Entity(replicaChild)
	require.True(t, ok)
	assert.Equal(t, "child", e.Label)

	require.NoError(t, sc.ed.DeleteEntity(child))
	res, err = s.ApplyTick(ctx, sc.rec.Drain())
	require.NoError(t, err)
	require.Equal(t, Applied, res.Outcome)
	assert.Equal(t, 3, s.Identity().Len())
	_, ok = s.Identity().Translate(cam)
	assert.False(t, ok)

	// teardown with the debug check leaves nothing behind
	require.NoError(t, s.DeriveReplica())
	assert.Empty(t, s.Errors())
}

func TestDeletedTargetTakesItsControllers(t *testing.T) {
	sc := newScene(t)
	spin, err := sc.doc.AddController("spin", sc.e2, document.ComponentMaterial, "opacity", []document.Keyframe{
		{Time: 0, Value: 1},
		{Time: 1, Value: 0},
	})
	require.NoError(t, err)
	s := newSynchronizer(t, sc, WithDebugInvariants(true))
	require.Len(t, s.Replica().Controllers(), 1)
	_, ok := s.Identity().Translate(spin)
	require.True(t, ok)

	require.NoError(t, sc.ed.DeleteEntity(sc.e2))
	res, err := s.ApplyTick(context.Background(), sc.rec.Drain())
	require.NoError(t, err)
	require.Equal(t, Applied, res.Outcome)
	assert.Empty(t, sc.doc.Controllers())
	assert.Empty(t, s.Replica().Controllers())
	assert.Equal(t, 1, s.Identity().Len())

	require.NoError(t, s.DeriveReplica())
	assert.Equal(t, sc.doc.Fingerprint(), s.Replica().Fingerprint())
	assert.Empty(t, s.Errors())
}

func TestLeakedEntriesAreReported(t *testing.T) {
	sc := newScene(t)
	s := newSynchronizer(t, sc, WithDebugInvariants(true))

	stray := document.ObjectID{Index: 400, Generation: 1}
	require.NoError(t, s.Identity().Insert(stray, document.ObjectID{Index: 401, Generation: 1}))
	require.NoError(t, s.DeriveReplica())

	errs := s.DrainErrors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], identity.ErrLeaked)
	assert.Equal(t, 3, s.Identity().Len())
	_, ok := s.Identity().Translate(stray)
	assert.False(t, ok)
}

func TestFirstTickDerives(t *testing.T) {
	sc := newScene(t)
	s, err := New(Context{Master: sc.doc})
	require.NoError(t, err)
	assert.Equal(t, Uninitialized, s.State())

	s.QueueInput(codec.InputEvent{Device: "keyboard", Code: 32, Value: 1})
	s.SetViewport(&codec.Viewport{Width: 1280, Height: 720})

	res, err := s.ApplyTick(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Resynced, res.Outcome)
	assert.Equal(t, Live, s.State())
	assert.Equal(t, codec.ModeFlagResync, res.Envelope.Mode)
	assert.Len(t, res.Envelope.InputEvents, 1)
	assert.Equal(t, uint32(1280), res.Envelope.Viewport.Width)
	assert.Empty(t, s.Errors())

	res, err = s.ApplyTick(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Applied, res.Outcome)
	assert.Empty(t, res.Envelope.InputEvents)
	assert.NotNil(t, res.Envelope.Viewport)
}

func TestMasterWithoutRoot(t *testing.T) {
	s, err := New(Context{Master: document.New()})
	require.NoError(t, err)
	assert.ErrorIs(t, s.DeriveReplica(), document.ErrNoRoot)

	_, err = s.ApplyTick(context.Background(), nil)
	assert.ErrorIs(t, err, document.ErrNoRoot)
	assert.Equal(t, Uninitialized, s.State())

	_, err = New(Context{})
	assert.ErrorIs(t, err, ErrNoMaster)
}

func TestRemoteReplicasReceiveOriginalBatch(t *testing.T) {
	sc := newScene(t)
	ctx := context.Background()

	lb := remote.NewLoopback()
	fanout := remote.NewFanout(lb, log.NewNop(), nil)
	s := newSynchronizer(t, sc, WithFanout(fanout))

	mirror := remote.NewMirror(log.NewNop(), nil)
	h := remote.NewHandle("play-1")
	lb.Attach(h, mirror)
	require.NoError(t, s.RegisterRemoteReplica(ctx, h, sc.rec.Len()))

	require.NoError(t, sc.ed.SetProperty(sc.m1, "visible", document.BoolValue(false)))
	_, err := sc.ed.AddEntity(sc.e1, "light")
	require.NoError(t, err)
	res, err := s.ApplyTick(ctx, sc.rec.Drain())
	require.NoError(t, err)
	require.Equal(t, Applied, res.Outcome)
	assert.Empty(t, res.Dropped)

	// a resync of the local replica does not affect remotes
	s.Identity().RemoveLocal(sc.e2)
	require.NoError(t, sc.ed.SetLabel(sc.e2, "renamed"))
	res, err = s.ApplyTick(ctx, sc.rec.Drain())
	require.NoError(t, err)
	require.Equal(t, Resynced, res.Outcome)

	status := mirror.Status()
	assert.False(t, status.Diverged)
	assert.Equal(t, uint64(3), status.Sequence)
	var fp uint64
	mirror.View(func(doc *document.Document) { fp = doc.Fingerprint() })
	assert.Equal(t, sc.doc.Fingerprint(), fp)

	// empty ticks are not forwarded
	_, err = s.ApplyTick(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), mirror.Status().Sequence)

	require.NoError(t, s.UnregisterRemoteReplica(h))
	assert.Equal(t, 0, fanout.Len())
}

func TestRemoteReceivesAssetsReferencedLater(t *testing.T) {
	sc := newScene(t)
	ctx := context.Background()

	lb := remote.NewLoopback()
	s := newSynchronizer(t, sc, WithFanout(remote.NewFanout(lb, log.NewNop(), nil)))
	mirror := remote.NewMirror(log.NewNop(), nil)
	h := remote.NewHandle("play-1")
	lb.Attach(h, mirror)
	require.NoError(t, s.RegisterRemoteReplica(ctx, h, sc.rec.Len()))

	hasTexture := func() (found bool) {
		mirror.View(func(doc *document.Document) {
			r, ok := doc.Library().Resource(sc.texture)
			found = ok && r.Name == "bark.png"
		})
		return found
	}
	require.False(t, hasTexture())

	require.NoError(t, sc.ed.SetProperty(sc.m1, "texture", document.AssetRefValue(sc.texture)))
	res, err := s.ApplyTick(ctx, sc.rec.Drain())
	require.NoError(t, err)
	require.Empty(t, res.Dropped)

	status := mirror.Status()
	assert.False(t, status.Diverged)
	// snapshot, resources, batch
	assert.Equal(t, uint64(3), status.Sequence)
	assert.True(t, hasTexture())

	// already delivered, so only the batch goes out
	require.NoError(t, sc.ed.SetProperty(sc.m1, "texture", document.AssetRefValue(sc.texture)))
	_, err = s.ApplyTick(ctx, sc.rec.Drain())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), mirror.Status().Sequence)
	assert.False(t, mirror.Status().Diverged)
}

func TestRegistrationWaitsForQueuedOperations(t *testing.T) {
	sc := newScene(t)
	ctx := context.Background()

	lb := remote.NewLoopback()
	fanout := remote.NewFanout(lb, log.NewNop(), nil)
	s := newSynchronizer(t, sc, WithFanout(fanout))
	mirror := remote.NewMirror(log.NewNop(), nil)
	h := remote.NewHandle("play-1")
	lb.Attach(h, mirror)

	_, err := sc.ed.AddEntity(sc.e1, "late")
	require.NoError(t, err)
	err = s.RegisterRemoteReplica(ctx, h, sc.rec.Len())
	assert.ErrorIs(t, err, ErrPendingOperations)
	assert.Equal(t, 0, fanout.Len())
	assert.False(t, mirror.Status().Ready)

	_, err = s.ApplyTick(ctx, sc.rec.Drain())
	require.NoError(t, err)
	require.NoError(t, s.RegisterRemoteReplica(ctx, h, sc.rec.Len()))

	var fp uint64
	mirror.View(func(doc *document.Document) { fp = doc.Fingerprint() })
	assert.Equal(t, sc.doc.Fingerprint(), fp)
}

func TestRemoteRegistrationNeedsFanout(t *testing.T) {
	sc := newScene(t)
	s := newSynchronizer(t, sc)
	h := remote.NewHandle("nowhere")
	assert.ErrorIs(t, s.RegisterRemoteReplica(context.Background(), h, 0), ErrNoFanout)
	assert.ErrorIs(t, s.UnregisterRemoteReplica(h), ErrNoFanout)
}
