package remote

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/zeusync/playsync/internal/core/codec"
	"github.com/zeusync/playsync/internal/core/document"
	"github.com/zeusync/playsync/internal/core/events"
	"github.com/zeusync/playsync/internal/core/observability/log"
	"github.com/zeusync/playsync/internal/core/ops"
)

// Mirror is the slave side of a remote replica. It is built from a snapshot
// that keeps the master's ids and then applies batches verbatim. Any failure
// marks it diverged until the next snapshot arrives.
type Mirror struct {
	log log.Log
	bus events.Bus

	mu        sync.Mutex
	doc       *document.Document
	seq       uint64
	diverged  bool
	lastErr   error
	lastBatch ulid.ULID
}

func NewMirror(logger log.Log, bus events.Bus) *Mirror {
	return &Mirror{
		log: logger.With(log.String("component", "mirror")),
		bus: bus,
	}
}

// Status is the mirror state served on /status.
type Status struct {
	Ready       bool   `json:"ready"`
	Sequence    uint64 `json:"sequence"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Objects     int    `json:"objects"`
	Mode        string `json:"mode,omitempty"`
	Diverged    bool   `json:"diverged"`
	LastBatch   string `json:"last_batch,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Receive applies one encoded frame.
func (m *Mirror) Receive(payload []byte) error {
	frame, err := codec.DecodeRemoteFrame(payload)
	if err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch frame.Kind {
	case codec.FrameSnapshot:
		return m.applySnapshot(frame)
	case codec.FrameResources:
		return m.applyResources(frame)
	default:
		return m.applyBatch(frame)
	}
}

// follow checks that frame continues the current sequence.
func (m *Mirror) follow(frame codec.RemoteFrame) error {
	if m.doc == nil || m.diverged {
		return fmt.Errorf("%w: %s %d ignored", ErrDiverged, frame.Kind, frame.Sequence)
	}
	if frame.Sequence != m.seq+1 {
		return m.diverge(frame.Sequence, fmt.Errorf("%w: want %d, got %d", ErrSequenceGap, m.seq+1, frame.Sequence))
	}
	return nil
}

func (m *Mirror) applyResources(frame codec.RemoteFrame) error {
	if err := m.follow(frame); err != nil {
		return err
	}
	report, err := codec.DecodeResources(frame.Payload, m.doc.Library())
	if err == nil {
		err = report.Err()
	}
	if err != nil {
		return m.diverge(frame.Sequence, fmt.Errorf("resources: %w", err))
	}
	m.seq = frame.Sequence
	m.log.Debug("resources received", log.Uint64("sequence", frame.Sequence), log.Int("library", m.doc.Library().Len()))
	return nil
}

func (m *Mirror) applySnapshot(frame codec.RemoteFrame) error {
	doc, report, err := codec.Deserialize(frame.Payload, nil, codec.DecodeOptions{PreserveIDs: true})
	if err != nil {
		return m.diverge(frame.Sequence, err)
	}
	for _, e := range report.Errors {
		m.log.Warn("snapshot object skipped", log.Error(e))
	}

	m.doc = doc
	m.seq = frame.Sequence
	m.diverged = false
	m.lastErr = nil
	m.log.Info("snapshot applied",
		log.Uint64("sequence", frame.Sequence),
		log.Int("objects", doc.Len()),
		log.Int("skipped", report.Len()),
	)
	return nil
}

func (m *Mirror) applyBatch(frame codec.RemoteFrame) error {
	if err := m.follow(frame); err != nil {
		return err
	}

	batch, report, err := codec.DecodeBatch(frame.Payload)
	if err == nil {
		err = report.Err()
	}
	if err != nil {
		return m.diverge(frame.Sequence, err)
	}

	for _, op := range batch.Operations {
		if err := m.resolvable(op); err != nil {
			return m.diverge(frame.Sequence, err)
		}
		if _, err := op.Apply(m.doc, ops.ApplyOptions{Place: true}); err != nil {
			return m.diverge(frame.Sequence, fmt.Errorf("apply %s: %w", op.Kind(), err))
		}
	}

	m.seq = frame.Sequence
	m.lastBatch = batch.ID
	m.log.Debug("batch applied",
		log.Uint64("sequence", frame.Sequence),
		log.Uint64("tick", batch.Tick),
		log.Int("operations", len(batch.Operations)),
	)
	return nil
}

// resolvable reports asset references the mirror's library cannot serve.
func (m *Mirror) resolvable(op ops.Operation) error {
	set, ok := op.(ops.SetProperty)
	if !ok || set.Value.Type != document.ValueAssetRef || set.Value.Ref.IsZero() {
		return nil
	}
	if _, ok := m.doc.Library().Resource(set.Value.Ref); !ok {
		return fmt.Errorf("%w: %s for property %q", ErrMissingResource, set.Value.Ref, set.Name)
	}
	return nil
}

func (m *Mirror) diverge(seq uint64, cause error) error {
	m.diverged = true
	m.lastErr = cause
	m.log.Error("mirror diverged", log.Uint64("sequence", seq), log.Error(cause))
	if m.bus != nil {
		_ = m.bus.Publish(events.NewEvent(events.MirrorDiverged, "mirror", events.Diverged{Sequence: seq, Err: cause}))
	}
	return errors.Join(ErrDiverged, cause)
}

func (m *Mirror) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Status{
		Ready:    m.doc != nil,
		Sequence: m.seq,
		Diverged: m.diverged,
	}
	if m.doc != nil {
		s.Fingerprint = strconv.FormatUint(m.doc.Fingerprint(), 16)
		s.Objects = m.doc.Len()
		s.Mode = m.doc.Mode().String()
	}
	if m.lastBatch != (ulid.ULID{}) {
		s.LastBatch = m.lastBatch.String()
	}
	if m.lastErr != nil {
		s.Error = m.lastErr.Error()
	}
	return s
}

// View runs fn with the current document while holding the mirror lock. The
// document is nil before the first snapshot.
func (m *Mirror) View(fn func(doc *document.Document)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.doc)
}
