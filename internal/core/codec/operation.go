package codec

import (
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/zeusync/playsync/internal/core/document"
	"github.com/zeusync/playsync/internal/core/ops"
)

// Operation payload fields.
const (
	fPayloadKind  = 1
	fPayloadLabel = 1
	fPayloadMode  = 1

	fPayloadPosition = 1
	fPayloadRotation = 2
	fPayloadScale    = 3
)

// Batch is the ordered list of operations captured during one tick.
type Batch struct {
	ID         ulid.ULID
	Tick       uint64
	Operations []ops.Operation
}

// NewBatch stamps a fresh, time ordered batch id.
func NewBatch(tick uint64, operations []ops.Operation) Batch {
	return Batch{ID: ulid.Make(), Tick: tick, Operations: operations}
}

// Operations carry object ids verbatim; a reader is expected to translate
// them itself.
func packRef(v document.Value) uint64 { return v.Ref.Pack() }

// EncodeOperation encodes a single operation.
func EncodeOperation(op ops.Operation) []byte {
	var e encoder
	encodeOperation(&e, op)
	return e.b
}

func encodeOperation(e *encoder, op ops.Operation) {
	e.uint(fOpKind, uint64(op.Kind()))

	var (
		targets []document.ObjectID
		payload encoder
	)
	switch o := op.(type) {
	case ops.SetProperty:
		targets = []document.ObjectID{o.Component}
		encodeProperty(&payload, o.Name, o.Value, packRef)
	case ops.AddComponent:
		targets = []document.ObjectID{o.Entity, o.Component}
		payload.uint(fPayloadKind, uint64(o.ComponentKind))
	case ops.DeleteComponent:
		targets = []document.ObjectID{o.Component}
	case ops.AddEntity:
		targets = []document.ObjectID{o.Parent, o.Entity}
		payload.str(fPayloadLabel, o.Label)
	case ops.DeleteEntity:
		targets = []document.ObjectID{o.Entity}
	case ops.SetMode:
		payload.uint(fPayloadMode, uint64(o.Mode))
	case ops.SetTransform:
		targets = []document.ObjectID{o.Entity}
		payload.vec3(fPayloadPosition, o.Position)
		payload.quat(fPayloadRotation, o.Rotation)
		if o.Scale != nil {
			payload.vec3(fPayloadScale, *o.Scale)
		}
	case ops.SetLabel:
		targets = []document.ObjectID{o.Entity}
		payload.str(fPayloadLabel, o.Label)
	case ops.Reparent:
		targets = []document.ObjectID{o.Entity, o.Parent}
	}

	for _, id := range targets {
		e.repeatedUint(fOpTargets, id.Pack())
	}
	e.bytes(fOpPayload, payload.b)
}

// targetCount is the number of ids each operation kind carries.
var targetCount = map[ops.Kind]int{
	ops.KindSetProperty:     1,
	ops.KindAddComponent:    2,
	ops.KindDeleteComponent: 1,
	ops.KindAddEntity:       2,
	ops.KindDeleteEntity:    1,
	ops.KindSetMode:         0,
	ops.KindSetTransform:    1,
	ops.KindSetLabel:        1,
	ops.KindReparent:        2,
}

// DecodeOperation decodes a single operation.
func DecodeOperation(b []byte) (ops.Operation, error) {
	var (
		kind    ops.Kind
		targets []document.ObjectID
		payload []byte
	)
	err := eachField(b, func(f field) error {
		switch f.num {
		case fOpKind:
			kind = ops.Kind(f.uint())
		case fOpTargets:
			targets = append(targets, document.Unpack(f.uint()))
		case fOpPayload:
			payload = f.data
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	n, ok := targetCount[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown operation kind %d", ErrMalformedMessage, kind)
	}
	if len(targets) != n {
		return nil, fmt.Errorf("%w: %s wants %d targets, got %d", ErrMalformedMessage, kind, n, len(targets))
	}

	switch kind {
	case ops.KindSetProperty:
		p, err := decodeProperty(payload)
		if err != nil {
			return nil, err
		}
		v := p.value
		if v.IsReference() {
			v.Ref = document.Unpack(uint64(p.ref))
		}
		return ops.SetProperty{Component: targets[0], Name: p.name, Value: v}, nil

	case ops.KindAddComponent:
		var ck document.ComponentKind
		err := eachField(payload, func(f field) error {
			if f.num == fPayloadKind {
				ck = document.ComponentKind(f.uint())
			}
			return nil
		})
		if err == nil && !ck.Valid() {
			err = fmt.Errorf("%w: invalid component kind %d", ErrMalformedMessage, ck)
		}
		if err != nil {
			return nil, err
		}
		return ops.AddComponent{Entity: targets[0], Component: targets[1], ComponentKind: ck}, nil

	case ops.KindDeleteComponent:
		return ops.DeleteComponent{Component: targets[0]}, nil

	case ops.KindAddEntity:
		label, err := decodeLabel(payload)
		if err != nil {
			return nil, err
		}
		return ops.AddEntity{Parent: targets[0], Entity: targets[1], Label: label}, nil

	case ops.KindDeleteEntity:
		return ops.DeleteEntity{Entity: targets[0]}, nil

	case ops.KindSetMode:
		var mode document.Mode
		err := eachField(payload, func(f field) error {
			if f.num == fPayloadMode {
				mode = document.Mode(f.uint())
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return ops.SetMode{Mode: mode}, nil

	case ops.KindSetTransform:
		o := ops.SetTransform{Entity: targets[0], Rotation: document.IdentityQuat}
		err := eachField(payload, func(f field) error {
			var err error
			switch f.num {
			case fPayloadPosition:
				o.Position, err = decodeVec3(f.data)
			case fPayloadRotation:
				o.Rotation, err = decodeQuat(f.data)
			case fPayloadScale:
				var s document.Vec3
				s, err = decodeVec3(f.data)
				o.Scale = &s
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		return o, nil

	case ops.KindSetLabel:
		label, err := decodeLabel(payload)
		if err != nil {
			return nil, err
		}
		return ops.SetLabel{Entity: targets[0], Label: label}, nil

	default:
		return ops.Reparent{Entity: targets[0], Parent: targets[1]}, nil
	}
}

func decodeLabel(b []byte) (string, error) {
	var label string
	err := eachField(b, func(f field) error {
		if f.num == fPayloadLabel {
			label = f.str()
		}
		return nil
	})
	return label, err
}

// EncodeBatch encodes a batch. Operations keep their capture order.
func EncodeBatch(b Batch) []byte {
	var e encoder
	encodeBatch(&e, b)
	return e.b
}

func encodeBatch(e *encoder, b Batch) {
	if b.ID != (ulid.ULID{}) {
		e.bytes(fBatchID, b.ID[:])
	}
	e.uint(fBatchTick, b.Tick)
	for _, op := range b.Operations {
		e.message(fBatchOperations, func(m *encoder) { encodeOperation(m, op) })
	}
}

// DecodeBatch decodes a batch. An operation that fails to decode is
// reported and left out; the remaining operations keep their order.
func DecodeBatch(data []byte) (Batch, *Report, error) {
	var (
		b   Batch
		raw [][]byte
	)
	err := eachField(data, func(f field) error {
		switch f.num {
		case fBatchID:
			if len(f.data) != len(b.ID) {
				return fmt.Errorf("%w: batch id is %d bytes", ErrMalformedMessage, len(f.data))
			}
			copy(b.ID[:], f.data)
		case fBatchTick:
			b.Tick = f.uint()
		case fBatchOperations:
			raw = append(raw, f.data)
		}
		return nil
	})
	if err != nil {
		return Batch{}, nil, err
	}

	report := &Report{}
	b.Operations = make([]ops.Operation, 0, len(raw))
	for i, r := range raw {
		op, err := DecodeOperation(r)
		if err != nil {
			report.add(CodeMalformedMessage, 0, err, "operation %d of tick %d", i, b.Tick)
			continue
		}
		b.Operations = append(b.Operations, op)
	}
	return b, report, nil
}
