package replica

import (
	"context"
	"errors"
	"fmt"

	"github.com/zeusync/playsync/internal/core/codec"
	"github.com/zeusync/playsync/internal/core/document"
	"github.com/zeusync/playsync/internal/core/events"
	"github.com/zeusync/playsync/internal/core/identity"
	"github.com/zeusync/playsync/internal/core/observability/log"
	"github.com/zeusync/playsync/internal/core/ops"
	"github.com/zeusync/playsync/internal/core/remote"
)

type Option func(*Synchronizer)

// WithDebugInvariants makes every teardown verify that the identity map was
// drained by the reclaim hooks.
func WithDebugInvariants(enabled bool) Option {
	return func(s *Synchronizer) { s.debugInvariants = enabled }
}

// WithFanout forwards every tick's batch to the remote replicas in f.
func WithFanout(f *remote.Fanout) Option {
	return func(s *Synchronizer) { s.remotes = f }
}

// TickResult describes one ApplyTick call.
type TickResult struct {
	Outcome Outcome
	Tick    uint64
	// Envelope is the frame for the play process.
	Envelope *codec.FrameEnvelope
	// Dropped lists remote replicas removed because delivery failed.
	Dropped []remote.Handle
}

// Synchronizer owns the play replica and the identity map linking it to the
// master. It is driven from the tick goroutine only and does no locking.
type Synchronizer struct {
	ctx             Context
	log             log.Log
	debugInvariants bool
	remotes         *remote.Fanout

	state   State
	replica *document.Document
	ids     *identity.Map
	tick    uint64
	errs    []error

	input    []codec.InputEvent
	viewport *codec.Viewport

	// root pair of the derivation in progress, inserted last
	rootLocal   document.ObjectID
	rootForeign document.ObjectID
}

func New(c Context, opts ...Option) (*Synchronizer, error) {
	c, err := c.validate()
	if err != nil {
		return nil, err
	}
	s := &Synchronizer{
		ctx: c,
		log: c.Logger.With(log.String("component", "replica")),
		ids: identity.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Synchronizer) State() State                   { return s.state }
func (s *Synchronizer) Replica() *document.Document    { return s.replica }
func (s *Synchronizer) Identity() *identity.Map        { return s.ids }
func (s *Synchronizer) Tick() uint64                   { return s.tick }
func (s *Synchronizer) Remotes() *remote.Fanout        { return s.remotes }
func (s *Synchronizer) Master() *document.Document     { return s.ctx.Master }
func (s *Synchronizer) Library() *document.Library     { return s.ctx.Library }
func (s *Synchronizer) QueueInput(in codec.InputEvent) { s.input = append(s.input, in) }

// SetViewport sets the geometry sent with every following envelope. Nil
// stops sending it.
func (s *Synchronizer) SetViewport(v *codec.Viewport) {
	s.viewport = v
}

// Errors returns the errors collected since the last DrainErrors.
func (s *Synchronizer) Errors() []error {
	out := make([]error, len(s.errs))
	copy(out, s.errs)
	return out
}

func (s *Synchronizer) DrainErrors() []error {
	out := s.errs
	s.errs = nil
	return out
}

func (s *Synchronizer) record(err error) {
	s.errs = append(s.errs, err)
}

// DeriveReplica rebuilds the play replica from the current master. An
// existing replica is torn down first.
func (s *Synchronizer) DeriveReplica() error {
	if s.replica != nil {
		s.teardown()
	}
	s.ids.Clear()
	s.state = Uninitialized

	data, err := codec.Serialize(s.ctx.Master, codec.Options{
		IDStrategy: codec.IdentityOfSource,
		AssetMode:  codec.IDOnly,
	})
	if err != nil {
		return fmt.Errorf("serialize master: %w", err)
	}

	s.rootLocal, s.rootForeign = document.ObjectID{}, document.ObjectID{}
	doc, report, err := codec.Deserialize(data, codec.HookFuncs{
		RegisterFunc: s.register,
		ResolveFunc:  s.resolve,
	}, codec.DecodeOptions{Library: s.ctx.Library})
	if err != nil {
		return fmt.Errorf("deserialize replica: %w", err)
	}
	for _, e := range report.Errors {
		s.log.Warn("derivation skipped object", log.Error(e))
		s.record(e)
	}

	if !s.rootForeign.IsZero() {
		if err := s.ids.Insert(s.rootLocal, s.rootForeign); err != nil {
			s.log.Error("root registration failed", log.Error(err))
			s.record(err)
		}
	}
	s.rootLocal, s.rootForeign = document.ObjectID{}, document.ObjectID{}

	doc.OnReclaim(func(o document.Object) {
		s.ids.RemoveForeign(o.ID())
	})
	s.replica = doc
	s.state = Derived

	s.log.Debug("replica derived",
		log.Int("objects", doc.Len()),
		log.Int("mappings", s.ids.Len()),
		log.Int("bytes", len(data)),
	)
	s.ctx.publish(events.ReplicaDerived, events.Derived{
		MasterRoot:  s.ctx.Master.Root(),
		ReplicaRoot: doc.Root(),
		Mappings:    s.ids.Len(),
	})
	s.state = Live
	return nil
}

// register is the decode hook of a derivation. Identity-of-source wire ids
// are master ids. The root pair is held back until the decode finishes.
func (s *Synchronizer) register(obj document.Object, source codec.WireID) error {
	local := document.Unpack(uint64(source))
	if e, ok := obj.(*document.Entity); ok && e.IsRoot() {
		s.rootLocal, s.rootForeign = local, obj.ID()
		return nil
	}
	if err := s.ids.Insert(local, obj.ID()); err != nil {
		s.log.Error("duplicate identity", log.Error(err))
		return err
	}
	return nil
}

func (s *Synchronizer) resolve(source codec.WireID) (document.ObjectID, bool) {
	local := document.Unpack(uint64(source))
	if id, ok := s.ids.Translate(local); ok {
		return id, true
	}
	if !s.rootLocal.IsZero() && local == s.rootLocal {
		return s.rootForeign, true
	}
	return document.ObjectID{}, false
}

// teardown reclaims every replica object. The reclaim hook unregisters them
// all except the root, which Collect keeps and which is removed here.
func (s *Synchronizer) teardown() {
	root := s.replica.Root()
	n := s.replica.Collect(true)
	s.ids.RemoveForeign(root)
	s.replica = nil

	if s.debugInvariants {
		if err := s.ids.CheckEmpty(); err != nil {
			s.log.Error("identity map leaked entries", log.Error(err), log.Int("leaked", s.ids.Len()))
			s.record(err)
			s.ids.Clear()
		}
	}
	s.log.Debug("replica torn down", log.Int("reclaimed", n))
}

// ApplyTick replays the operations captured since the previous tick. Every
// operation is rewritten into replica ids and applied in order; if any id
// does not translate or any apply fails, the replica is rebuilt from the
// master instead. The untranslated batch goes to every remote replica either
// way.
//
// The returned error is set only when the replica could not be rebuilt.
func (s *Synchronizer) ApplyTick(ctx context.Context, operations []ops.Operation) (TickResult, error) {
	s.tick++
	res := TickResult{Tick: s.tick}

	batch := codec.NewBatch(s.tick, operations)
	payload := codec.EncodeBatch(batch)

	var cause error
	if s.replica == nil {
		cause = ErrNotDerived
	} else {
		translated, err := s.replay(payload)
		if err != nil {
			cause = err
		} else {
			res.Outcome = Applied
			res.Envelope = &codec.FrameEnvelope{
				Operations:           &batch,
				TranslatedOperations: &translated,
				Mode:                 codec.ModeFlagPlayEdit,
			}
		}
	}

	var deriveErr error
	if cause != nil {
		res.Outcome = Resynced
		res.Envelope, deriveErr = s.resync(cause)
	}
	if res.Envelope == nil {
		res.Envelope = &codec.FrameEnvelope{Mode: codec.ModeFlagNone}
	}
	res.Envelope.InputEvents = s.input
	res.Envelope.Viewport = s.viewport
	s.input = nil

	if s.remotes != nil && len(operations) > 0 {
		res.Dropped = s.remotes.Broadcast(ctx, batch.ID, payload, s.referencedResources(operations)...)
	}

	if res.Outcome == Applied {
		s.ctx.publish(events.TickApplied, events.Applied{
			Tick:       s.tick,
			BatchID:    batch.ID,
			Operations: len(operations),
		})
	}
	return res, deriveErr
}

// replay decodes the encoded batch and applies it to the replica. Any
// failure aborts the batch; the caller resyncs.
func (s *Synchronizer) replay(payload []byte) (codec.Batch, error) {
	batch, report, err := codec.DecodeBatch(payload)
	if err == nil {
		err = report.Err()
	}
	if err != nil {
		return codec.Batch{}, fmt.Errorf("decode batch: %w", err)
	}

	translated := codec.Batch{ID: batch.ID, Tick: batch.Tick}
	for i, op := range batch.Operations {
		rewritten, err := op.Rewrite(s.ids.Translate)
		if err != nil {
			return codec.Batch{}, fmt.Errorf("operation %d: %w", i, err)
		}
		applied, err := rewritten.Apply(s.replica, ops.ApplyOptions{})
		if err != nil {
			return codec.Batch{}, fmt.Errorf("operation %d (%s): %w", i, op.Kind(), err)
		}
		if origin := ops.Origin(op); !origin.IsZero() && !applied.Created.IsZero() {
			if err := s.ids.Insert(origin, applied.Created); err != nil {
				return codec.Batch{}, fmt.Errorf("operation %d: %w", i, err)
			}
		}
		translated.Operations = append(translated.Operations, rewritten)
	}
	return translated, nil
}

func (s *Synchronizer) resync(cause error) (*codec.FrameEnvelope, error) {
	if !errors.Is(cause, ErrNotDerived) {
		s.state = Resyncing
		s.record(cause)
		s.log.Warn("replica out of step, resyncing", log.Uint64("tick", s.tick), log.Error(cause))
	}

	if err := s.DeriveReplica(); err != nil {
		s.record(err)
		s.log.Error("resync failed", log.Uint64("tick", s.tick), log.Error(err))
		return nil, err
	}

	env := &codec.FrameEnvelope{Mode: codec.ModeFlagResync}
	snapshot, err := codec.Serialize(s.replica, codec.Options{IDStrategy: codec.IdentityOfSource})
	if err != nil {
		s.record(err)
	}
	env.Snapshot = snapshot

	s.ctx.publish(events.ReplicaResynced, events.Resynced{Tick: s.tick, Reason: cause})
	return env, nil
}

// referencedResources returns the library resources set by asset
// properties in operations.
func (s *Synchronizer) referencedResources(operations []ops.Operation) []*document.Resource {
	var out []*document.Resource
	for _, op := range operations {
		set, ok := op.(ops.SetProperty)
		if !ok || set.Value.Type != document.ValueAssetRef || set.Value.Ref.IsZero() {
			continue
		}
		if r, ok := s.ctx.Library.Resource(set.Value.Ref); ok {
			out = append(out, r)
		}
	}
	return out
}

// RegisterRemoteReplica sends h a full snapshot of the master and adds it
// to the fan-out set. pending is the number of captured operations not yet
// passed to ApplyTick; they are already part of the snapshot, so
// registration is refused until they have been applied.
func (s *Synchronizer) RegisterRemoteReplica(ctx context.Context, h remote.Handle, pending int) error {
	if s.remotes == nil {
		return ErrNoFanout
	}
	if pending > 0 {
		return fmt.Errorf("%w: %d operations queued", ErrPendingOperations, pending)
	}
	snapshot, err := codec.Serialize(s.ctx.Master, codec.Options{
		IDStrategy: codec.IdentityOfSource,
		AssetMode:  codec.InlineData,
	})
	if err != nil {
		return fmt.Errorf("snapshot master: %w", err)
	}
	return s.remotes.Register(ctx, h, snapshot, s.ctx.Master.ResourceRefs()...)
}

func (s *Synchronizer) UnregisterRemoteReplica(h remote.Handle) error {
	if s.remotes == nil {
		return ErrNoFanout
	}
	return s.remotes.Unregister(h)
}
