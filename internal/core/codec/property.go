package codec

import (
	"fmt"

	"github.com/zeusync/playsync/internal/core/document"
)

// refEncoder turns the id held by a reference value into its wire id.
type refEncoder func(v document.Value) uint64

func encodeProperty(e *encoder, name string, v document.Value, ref refEncoder) {
	e.str(fPropName, name)
	e.uint(fPropType, uint64(v.Type))
	switch v.Type {
	case document.ValueFloat:
		e.float(fPropFloat, v.Float)
	case document.ValueInt:
		e.sint(fPropInt, v.Int)
	case document.ValueBool:
		e.bool(fPropBool, v.Bool)
	case document.ValueText:
		e.str(fPropText, v.Text)
	case document.ValueVector:
		e.vec3(fPropVector, v.Vector)
	case document.ValueColor:
		e.color(fPropVector, v.Color)
	case document.ValueRotation:
		e.quat(fPropVector, v.Rotation)
	case document.ValueObjectRef, document.ValueAssetRef:
		e.uint(fPropRef, ref(v))
	}
}

// rawProperty is a decoded property whose reference, if any, is still a
// wire id.
type rawProperty struct {
	name  string
	value document.Value
	ref   WireID
}

func decodeProperty(b []byte) (rawProperty, error) {
	var (
		p      rawProperty
		vector []byte
	)
	err := eachField(b, func(f field) error {
		switch f.num {
		case fPropName:
			p.name = f.str()
		case fPropType:
			p.value.Type = document.ValueType(f.uint())
		case fPropFloat:
			p.value.Float = f.float()
		case fPropInt:
			p.value.Int = f.sint()
		case fPropBool:
			p.value.Bool = f.bool()
		case fPropText:
			p.value.Text = f.str()
		case fPropVector:
			vector = f.data
		case fPropRef:
			p.ref = WireID(f.uint())
		}
		return nil
	})
	if err != nil {
		return p, err
	}
	if p.name == "" {
		return p, fmt.Errorf("%w: property without name", ErrMalformedMessage)
	}

	switch p.value.Type {
	case document.ValueFloat, document.ValueInt, document.ValueBool, document.ValueText,
		document.ValueObjectRef, document.ValueAssetRef:
	case document.ValueVector:
		p.value.Vector, err = decodeVec3(vector)
	case document.ValueColor:
		p.value.Color, err = decodeColor(vector)
	case document.ValueRotation:
		p.value.Rotation, err = decodeQuat(vector)
	default:
		return p, fmt.Errorf("%w: property %q has unknown type %d", ErrMalformedMessage, p.name, p.value.Type)
	}
	return p, err
}
