package codec

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/zeusync/playsync/internal/core/document"
)

// Field numbers of the message schema. They are part of the wire contract
// and must never be renumbered.
const (
	// Document
	fDocEntities    protowire.Number = 1
	fDocControllers protowire.Number = 2
	fDocAssets      protowire.Number = 3
	fDocBuffers     protowire.Number = 4
	fDocRoot        protowire.Number = 5
	fDocMode        protowire.Number = 6
	fDocIDStrategy  protowire.Number = 7
	fDocAssetMode   protowire.Number = 8

	// Entity
	fEntID         protowire.Number = 1
	fEntParent     protowire.Number = 2
	fEntLabel      protowire.Number = 3
	fEntPosition   protowire.Number = 4
	fEntRotation   protowire.Number = 5
	fEntScale      protowire.Number = 6
	fEntComponents protowire.Number = 7

	// Component
	fCompID         protowire.Number = 1
	fCompKind       protowire.Number = 2
	fCompProperties protowire.Number = 3

	// Property
	fPropName   protowire.Number = 1
	fPropType   protowire.Number = 2
	fPropFloat  protowire.Number = 3
	fPropInt    protowire.Number = 4
	fPropBool   protowire.Number = 5
	fPropText   protowire.Number = 6
	fPropVector protowire.Number = 7
	fPropRef    protowire.Number = 8

	// Vector (vec3, quaternion and color share one layout)
	fVecX protowire.Number = 1
	fVecY protowire.Number = 2
	fVecZ protowire.Number = 3
	fVecW protowire.Number = 4

	// Resource
	fResID   protowire.Number = 1
	fResKind protowire.Number = 2
	fResName protowire.Number = 3
	fResMime protowire.Number = 4
	fResData protowire.Number = 5

	// Controller
	fCtlID        protowire.Number = 1
	fCtlName      protowire.Number = 2
	fCtlTarget    protowire.Number = 3
	fCtlComponent protowire.Number = 4
	fCtlProperty  protowire.Number = 5
	fCtlKeyframes protowire.Number = 6

	// Keyframe
	fKeyTime  protowire.Number = 1
	fKeyValue protowire.Number = 2

	// Operation
	fOpKind    protowire.Number = 1
	fOpTargets protowire.Number = 2
	fOpPayload protowire.Number = 3

	// Batch
	fBatchID         protowire.Number = 1
	fBatchTick       protowire.Number = 2
	fBatchOperations protowire.Number = 3

	// FrameEnvelope
	fEnvInputEvents protowire.Number = 1
	fEnvOperations  protowire.Number = 2
	fEnvTranslated  protowire.Number = 3
	fEnvViewport    protowire.Number = 4
	fEnvModeFlag    protowire.Number = 5
	fEnvSnapshot    protowire.Number = 6

	// RemoteFrame
	fFrameKind     protowire.Number = 1
	fFrameSequence protowire.Number = 2
	fFramePayload  protowire.Number = 3
	fFrameBatchID  protowire.Number = 4
)

// encoder appends protobuf wire format. Scalar zero values are omitted.
type encoder struct {
	b []byte
}

func (e *encoder) uint(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, v)
}

// repeatedUint writes v even when it is zero, so positions are kept.
func (e *encoder) repeatedUint(num protowire.Number, v uint64) {
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, v)
}

func (e *encoder) sint(num protowire.Number, v int64) {
	e.uint(num, protowire.EncodeZigZag(v))
}

func (e *encoder) bool(num protowire.Number, v bool) {
	if v {
		e.uint(num, 1)
	}
}

func (e *encoder) float(num protowire.Number, v float64) {
	if v == 0 && !math.Signbit(v) {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.Fixed64Type)
	e.b = protowire.AppendFixed64(e.b, math.Float64bits(v))
}

func (e *encoder) str(num protowire.Number, s string) {
	if s == "" {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendString(e.b, s)
}

func (e *encoder) bytes(num protowire.Number, v []byte) {
	if len(v) == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, v)
}

// message writes a nested message, even an empty one.
func (e *encoder) message(num protowire.Number, fn func(*encoder)) {
	var sub encoder
	fn(&sub)
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, sub.b)
}

func (e *encoder) vec3(num protowire.Number, v document.Vec3) {
	e.message(num, func(m *encoder) {
		m.float(fVecX, v.X)
		m.float(fVecY, v.Y)
		m.float(fVecZ, v.Z)
	})
}

func (e *encoder) quat(num protowire.Number, q document.Quat) {
	e.message(num, func(m *encoder) {
		m.float(fVecX, q.X)
		m.float(fVecY, q.Y)
		m.float(fVecZ, q.Z)
		m.float(fVecW, q.W)
	})
}

func (e *encoder) color(num protowire.Number, c document.Color) {
	e.message(num, func(m *encoder) {
		m.float(fVecX, c.R)
		m.float(fVecY, c.G)
		m.float(fVecZ, c.B)
		m.float(fVecW, c.A)
	})
}

// field is one decoded key/value pair.
type field struct {
	num   protowire.Number
	typ   protowire.Type
	value uint64
	data  []byte
}

func (f field) uint() uint64 { return f.value }
func (f field) sint() int64  { return protowire.DecodeZigZag(f.value) }
func (f field) bool() bool   { return f.value != 0 }
func (f field) str() string  { return string(f.data) }

func (f field) float() float64 {
	return math.Float64frombits(f.value)
}

// eachField walks the top level fields of a message. Groups and fixed32
// values are skipped.
func eachField(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedMessage, protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.value, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.value, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.data, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformedMessage, num, protowire.ParseError(n))
		}
		b = b[n:]

		if typ != protowire.VarintType && typ != protowire.Fixed64Type && typ != protowire.BytesType {
			continue
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func decodeVector(b []byte) (x, y, z, w float64, err error) {
	err = eachField(b, func(f field) error {
		switch f.num {
		case fVecX:
			x = f.float()
		case fVecY:
			y = f.float()
		case fVecZ:
			z = f.float()
		case fVecW:
			w = f.float()
		}
		return nil
	})
	return
}

func decodeVec3(b []byte) (document.Vec3, error) {
	x, y, z, _, err := decodeVector(b)
	return document.Vec3{X: x, Y: y, Z: z}, err
}

func decodeQuat(b []byte) (document.Quat, error) {
	x, y, z, w, err := decodeVector(b)
	return document.Quat{X: x, Y: y, Z: z, W: w}, err
}

func decodeColor(b []byte) (document.Color, error) {
	r, g, bl, a, err := decodeVector(b)
	return document.Color{R: r, G: g, B: bl, A: a}, err
}
