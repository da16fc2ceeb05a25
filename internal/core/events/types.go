package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/zeusync/playsync/internal/core/document"
	"github.com/zeusync/playsync/internal/core/observability/log"
)

// Event types published by the replica synchronizer and the remote layer.
const (
	ReplicaDerived  = "replica.derived"
	ReplicaResynced = "replica.resynced"
	TickApplied     = "tick.applied"
	RemoteDropped   = "remote.dropped"
	MirrorDiverged  = "mirror.diverged"
)

// Derived is the payload of ReplicaDerived.
type Derived struct {
	MasterRoot  document.ObjectID
	ReplicaRoot document.ObjectID
	Mappings    int
}

// Resynced is the payload of ReplicaResynced.
type Resynced struct {
	Tick   uint64
	Reason error
}

// Applied is the payload of TickApplied.
type Applied struct {
	Tick       uint64
	BatchID    ulid.ULID
	Operations int
}

// Dropped is the payload of RemoteDropped.
type Dropped struct {
	Handle uuid.UUID
	Err    error
}

// Diverged is the payload of MirrorDiverged.
type Diverged struct {
	Sequence uint64
	Err      error
}

// LogObserver writes every delivery to a logger at debug level, and failed
// deliveries at warn level.
type LogObserver struct {
	Logger log.Log
}

func (o LogObserver) OnPublish(string, Event) {}

func (o LogObserver) OnDelivered(eventType string, handlers int, err error, took time.Duration) {
	if err != nil {
		o.Logger.Warn("event handler failed",
			log.String("event", eventType),
			log.Int("handlers", handlers),
			log.Error(err),
		)
		return
	}
	o.Logger.Debug("event delivered",
		log.String("event", eventType),
		log.Int("handlers", handlers),
		log.Duration("took", took),
	)
}
