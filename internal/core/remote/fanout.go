package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/playsync/internal/core/codec"
	"github.com/zeusync/playsync/internal/core/document"
	"github.com/zeusync/playsync/internal/core/events"
	"github.com/zeusync/playsync/internal/core/observability/log"
)

// Fanout is the set of registered remote replicas. Every replica gets its
// own frame sequence, starting with the snapshot sent on registration.
// Library resources travel once per replica: a batch referring to one the
// replica was never sent is preceded by a resource frame.
//
// Register and Broadcast are expected to be called from the tick goroutine.
type Fanout struct {
	transport Transport
	log       log.Log
	bus       events.Bus

	mu      sync.Mutex
	handles mapset.Set[Handle]
	seq     map[Handle]uint64
	sent    map[Handle]mapset.Set[document.ObjectID]
}

func NewFanout(t Transport, logger log.Log, bus events.Bus) *Fanout {
	return &Fanout{
		transport: t,
		log:       logger.With(log.String("component", "fanout")),
		bus:       bus,
		handles:   mapset.NewSet[Handle](),
		seq:       make(map[Handle]uint64),
		sent:      make(map[Handle]mapset.Set[document.ObjectID]),
	}
}

// Register sends the snapshot to h and, if that succeeds, adds h to the set.
// resources names the library resources the snapshot carries inline.
func (f *Fanout) Register(ctx context.Context, h Handle, snapshot []byte, resources ...document.ObjectID) error {
	if f.handles.Contains(h) {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, h)
	}

	frame := codec.EncodeRemoteFrame(codec.RemoteFrame{
		Kind:     codec.FrameSnapshot,
		Sequence: 1,
		Payload:  snapshot,
	})
	if err := f.transport.Send(ctx, h, frame); err != nil {
		_ = f.transport.Close(h)
		return fmt.Errorf("send snapshot to %s: %w", h, err)
	}

	f.mu.Lock()
	f.handles.Add(h)
	f.seq[h] = 1
	f.sent[h] = mapset.NewThreadUnsafeSet(resources...)
	f.mu.Unlock()

	f.log.Info("remote replica registered",
		log.Stringer("handle", h),
		log.Int("snapshot_bytes", len(snapshot)),
	)
	return nil
}

func (f *Fanout) Unregister(h Handle) error {
	f.mu.Lock()
	known := f.handles.Contains(h)
	f.handles.Remove(h)
	delete(f.seq, h)
	delete(f.sent, h)
	f.mu.Unlock()

	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	f.log.Info("remote replica unregistered", log.Stringer("handle", h))
	return f.transport.Close(h)
}

// Broadcast sends a batch to every registered replica concurrently. The
// resources the batch refers to go first to each replica that has not been
// sent them yet. Replicas whose send fails are dropped from the set and
// returned.
func (f *Fanout) Broadcast(ctx context.Context, batchID ulid.ULID, payload []byte, resources ...*document.Resource) []Handle {
	f.mu.Lock()
	targets := f.handles.ToSlice()
	frames := make([][][]byte, len(targets))
	for i, h := range targets {
		if missing := f.unsent(h, resources); len(missing) > 0 {
			f.seq[h]++
			frames[i] = append(frames[i], codec.EncodeRemoteFrame(codec.RemoteFrame{
				Kind:     codec.FrameResources,
				Sequence: f.seq[h],
				Payload:  codec.EncodeResources(missing),
			}))
		}
		f.seq[h]++
		frames[i] = append(frames[i], codec.EncodeRemoteFrame(codec.RemoteFrame{
			Kind:     codec.FrameBatch,
			Sequence: f.seq[h],
			BatchID:  batchID,
			Payload:  payload,
		}))
	}
	f.mu.Unlock()

	type failure struct {
		handle Handle
		err    error
	}
	var (
		g        errgroup.Group
		failedMu sync.Mutex
		failed   []failure
	)
	for i, h := range targets {
		queue := frames[i]
		g.Go(func() error {
			for _, frame := range queue {
				if err := f.transport.Send(ctx, h, frame); err != nil {
					failedMu.Lock()
					failed = append(failed, failure{handle: h, err: err})
					failedMu.Unlock()
					return nil
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	dropped := make([]Handle, 0, len(failed))
	for _, fl := range failed {
		f.drop(fl.handle, fl.err)
		dropped = append(dropped, fl.handle)
	}
	sortHandles(dropped)
	return dropped
}

// unsent marks the resources h has not been sent yet and returns them.
// Callers hold f.mu.
func (f *Fanout) unsent(h Handle, resources []*document.Resource) []*document.Resource {
	var out []*document.Resource
	for _, r := range resources {
		if r != nil && f.sent[h].Add(r.ID()) {
			out = append(out, r)
		}
	}
	return out
}

func (f *Fanout) drop(h Handle, cause error) {
	f.mu.Lock()
	f.handles.Remove(h)
	delete(f.seq, h)
	delete(f.sent, h)
	f.mu.Unlock()
	_ = f.transport.Close(h)

	f.log.Warn("remote replica dropped", log.Stringer("handle", h), log.Error(cause))
	if f.bus != nil {
		_ = f.bus.Publish(events.NewEvent(events.RemoteDropped, "fanout", events.Dropped{Handle: h.ID, Err: cause}))
	}
}

// Handles returns the registered replicas ordered by id.
func (f *Fanout) Handles() []Handle {
	f.mu.Lock()
	out := f.handles.ToSlice()
	f.mu.Unlock()
	sortHandles(out)
	return out
}

func (f *Fanout) Len() int {
	return f.handles.Cardinality()
}

// Close unregisters every replica.
func (f *Fanout) Close() error {
	var first error
	for _, h := range f.Handles() {
		if err := f.Unregister(h); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func sortHandles(hs []Handle) {
	sort.Slice(hs, func(i, j int) bool { return hs[i].ID.String() < hs[j].ID.String() })
}
