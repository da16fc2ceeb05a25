package codec

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// ModeFlag tells the play process how to read an envelope.
type ModeFlag uint8

const (
	ModeFlagNone ModeFlag = iota
	// ModeFlagPlayEdit carries translated operations to apply in place.
	ModeFlagPlayEdit
	// ModeFlagResync carries a full snapshot that replaces the replica.
	ModeFlagResync
)

func (f ModeFlag) String() string {
	switch f {
	case ModeFlagPlayEdit:
		return "play-edit"
	case ModeFlagResync:
		return "resync"
	default:
		return "none"
	}
}

// InputEvent is one forwarded input sample.
type InputEvent struct {
	Device string
	Code   uint32
	Value  float64
}

type Viewport struct {
	X, Y          int32
	Width, Height uint32
}

// FrameEnvelope is what the editor sends to the play process each tick.
type FrameEnvelope struct {
	InputEvents          []InputEvent
	Operations           *Batch
	TranslatedOperations *Batch
	Viewport             *Viewport
	Mode                 ModeFlag
	Snapshot             []byte
}

const (
	fInputDevice = 1
	fInputCode   = 2
	fInputValue  = 3

	fViewportX      = 1
	fViewportY      = 2
	fViewportWidth  = 3
	fViewportHeight = 4
)

func EncodeEnvelope(env *FrameEnvelope) []byte {
	var e encoder
	for _, in := range env.InputEvents {
		e.message(fEnvInputEvents, func(m *encoder) {
			m.str(fInputDevice, in.Device)
			m.uint(fInputCode, uint64(in.Code))
			m.float(fInputValue, in.Value)
		})
	}
	if env.Operations != nil {
		e.message(fEnvOperations, func(m *encoder) { encodeBatch(m, *env.Operations) })
	}
	if env.TranslatedOperations != nil {
		e.message(fEnvTranslated, func(m *encoder) { encodeBatch(m, *env.TranslatedOperations) })
	}
	if v := env.Viewport; v != nil {
		e.message(fEnvViewport, func(m *encoder) {
			m.sint(fViewportX, int64(v.X))
			m.sint(fViewportY, int64(v.Y))
			m.uint(fViewportWidth, uint64(v.Width))
			m.uint(fViewportHeight, uint64(v.Height))
		})
	}
	e.uint(fEnvModeFlag, uint64(env.Mode))
	e.bytes(fEnvSnapshot, env.Snapshot)
	return e.b
}

// DecodeEnvelope decodes an envelope. Operations that fail to decode inside
// either batch end up in the report.
func DecodeEnvelope(data []byte) (*FrameEnvelope, *Report, error) {
	env := &FrameEnvelope{}
	report := &Report{}

	batch := func(b []byte) (*Batch, error) {
		decoded, r, err := DecodeBatch(b)
		if err != nil {
			return nil, err
		}
		report.merge(r)
		return &decoded, nil
	}

	err := eachField(data, func(f field) error {
		var err error
		switch f.num {
		case fEnvInputEvents:
			var in InputEvent
			err = eachField(f.data, func(g field) error {
				switch g.num {
				case fInputDevice:
					in.Device = g.str()
				case fInputCode:
					in.Code = uint32(g.uint())
				case fInputValue:
					in.Value = g.float()
				}
				return nil
			})
			env.InputEvents = append(env.InputEvents, in)
		case fEnvOperations:
			env.Operations, err = batch(f.data)
		case fEnvTranslated:
			env.TranslatedOperations, err = batch(f.data)
		case fEnvViewport:
			v := &Viewport{}
			err = eachField(f.data, func(g field) error {
				switch g.num {
				case fViewportX:
					v.X = int32(g.sint())
				case fViewportY:
					v.Y = int32(g.sint())
				case fViewportWidth:
					v.Width = uint32(g.uint())
				case fViewportHeight:
					v.Height = uint32(g.uint())
				}
				return nil
			})
			env.Viewport = v
		case fEnvModeFlag:
			env.Mode = ModeFlag(f.uint())
		case fEnvSnapshot:
			env.Snapshot = append([]byte(nil), f.data...)
		}
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return env, report, nil
}

// FrameKind distinguishes the payloads sent to remote replicas.
type FrameKind uint8

const (
	FrameSnapshot FrameKind = iota + 1
	FrameBatch
	// FrameResources carries library resources a following batch refers to.
	FrameResources
)

func (k FrameKind) String() string {
	switch k {
	case FrameSnapshot:
		return "snapshot"
	case FrameBatch:
		return "batch"
	case FrameResources:
		return "resources"
	default:
		return fmt.Sprintf("frame(%d)", uint8(k))
	}
}

// RemoteFrame wraps a snapshot, resource list or batch for a remote replica. Sequence
// increases by one per frame sent on a connection.
type RemoteFrame struct {
	Kind     FrameKind
	Sequence uint64
	BatchID  ulid.ULID
	Payload  []byte
}

func EncodeRemoteFrame(f RemoteFrame) []byte {
	var e encoder
	e.uint(fFrameKind, uint64(f.Kind))
	e.uint(fFrameSequence, f.Sequence)
	e.bytes(fFramePayload, f.Payload)
	if f.BatchID != (ulid.ULID{}) {
		e.bytes(fFrameBatchID, f.BatchID[:])
	}
	return e.b
}

func DecodeRemoteFrame(data []byte) (RemoteFrame, error) {
	var f RemoteFrame
	err := eachField(data, func(g field) error {
		switch g.num {
		case fFrameKind:
			f.Kind = FrameKind(g.uint())
		case fFrameSequence:
			f.Sequence = g.uint()
		case fFramePayload:
			f.Payload = append([]byte(nil), g.data...)
		case fFrameBatchID:
			if len(g.data) != len(f.BatchID) {
				return fmt.Errorf("%w: batch id is %d bytes", ErrMalformedMessage, len(g.data))
			}
			copy(f.BatchID[:], g.data)
		}
		return nil
	})
	if err != nil {
		return RemoteFrame{}, err
	}
	if f.Kind < FrameSnapshot || f.Kind > FrameResources {
		return RemoteFrame{}, fmt.Errorf("%w: unknown frame kind %d", ErrMalformedMessage, uint8(f.Kind))
	}
	return f, nil
}
