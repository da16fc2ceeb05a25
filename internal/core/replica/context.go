// Package replica keeps a play replica of the master document in step with
// the edits made on the master, and forwards those edits to remote replicas.
package replica

import (
	"errors"
	"fmt"

	"github.com/zeusync/playsync/internal/core/document"
	"github.com/zeusync/playsync/internal/core/events"
	"github.com/zeusync/playsync/internal/core/observability/log"
)

var (
	ErrNoMaster   = errors.New("synchronizer has no master document")
	ErrNoFanout   = errors.New("no remote fan-out configured")
	ErrNotDerived = errors.New("replica not derived")

	ErrPendingOperations = errors.New("captured operations not yet applied")
)

// Context carries the collaborators of a Synchronizer. Library defaults to
// the master's library and must hold every asset the master references.
type Context struct {
	Master  *document.Document
	Library *document.Library
	Logger  log.Log
	Bus     events.Bus
}

func (c Context) validate() (Context, error) {
	if c.Master == nil {
		return c, ErrNoMaster
	}
	if c.Library == nil {
		c.Library = c.Master.Library()
	}
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	return c, nil
}

func (c Context) publish(typ string, data any) {
	if c.Bus == nil {
		return
	}
	if err := c.Bus.Publish(events.NewEvent(typ, "replica", data)); err != nil {
		c.Logger.Warn("event handler failed", log.String("event", typ), log.Error(err))
	}
}

// State is the lifecycle state of the play replica.
type State uint8

const (
	Uninitialized State = iota
	Derived
	Live
	Resyncing
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Derived:
		return "derived"
	case Live:
		return "live"
	case Resyncing:
		return "resyncing"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Outcome tells how a tick reached the replica.
type Outcome uint8

const (
	// Applied means every operation was translated and replayed.
	Applied Outcome = iota + 1
	// Resynced means the replica was rebuilt from the master.
	Resynced
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Resynced:
		return "resynced"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}
