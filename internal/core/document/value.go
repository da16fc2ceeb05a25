package document

import "fmt"

type Vec3 struct {
	X, Y, Z float64
}

type Quat struct {
	X, Y, Z, W float64
}

// IdentityQuat is the rotation every new entity starts with.
var IdentityQuat = Quat{W: 1}

type Color struct {
	R, G, B, A float64
}

// ValueType tags the payload held by a Value.
type ValueType uint8

const (
	ValueInvalid ValueType = iota
	ValueFloat
	ValueInt
	ValueBool
	ValueText
	ValueVector
	ValueColor
	ValueRotation
	ValueObjectRef
	ValueAssetRef
)

func (t ValueType) String() string {
	switch t {
	case ValueFloat:
		return "float"
	case ValueInt:
		return "int"
	case ValueBool:
		return "bool"
	case ValueText:
		return "text"
	case ValueVector:
		return "vector"
	case ValueColor:
		return "color"
	case ValueRotation:
		return "rotation"
	case ValueObjectRef:
		return "object-ref"
	case ValueAssetRef:
		return "asset-ref"
	default:
		return "invalid"
	}
}

// Value is a boxed, typed property value. Only the member matching Type is
// meaningful. Reference values hold ids, never pointers.
type Value struct {
	Type     ValueType
	Float    float64
	Int      int64
	Bool     bool
	Text     string
	Vector   Vec3
	Color    Color
	Rotation Quat
	Ref      ObjectID
}

func FloatValue(v float64) Value       { return Value{Type: ValueFloat, Float: v} }
func IntValue(v int64) Value           { return Value{Type: ValueInt, Int: v} }
func BoolValue(v bool) Value           { return Value{Type: ValueBool, Bool: v} }
func TextValue(v string) Value         { return Value{Type: ValueText, Text: v} }
func VectorValue(v Vec3) Value         { return Value{Type: ValueVector, Vector: v} }
func ColorValue(v Color) Value         { return Value{Type: ValueColor, Color: v} }
func RotationValue(v Quat) Value       { return Value{Type: ValueRotation, Rotation: v} }
func ObjectRefValue(id ObjectID) Value { return Value{Type: ValueObjectRef, Ref: id} }
func AssetRefValue(id ObjectID) Value  { return Value{Type: ValueAssetRef, Ref: id} }

// IsReference reports whether the value points at another object.
func (v Value) IsReference() bool {
	return v.Type == ValueObjectRef || v.Type == ValueAssetRef
}

// Equal compares only the member selected by Type.
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case ValueFloat:
		return v.Float == o.Float
	case ValueInt:
		return v.Int == o.Int
	case ValueBool:
		return v.Bool == o.Bool
	case ValueText:
		return v.Text == o.Text
	case ValueVector:
		return v.Vector == o.Vector
	case ValueColor:
		return v.Color == o.Color
	case ValueRotation:
		return v.Rotation == o.Rotation
	case ValueObjectRef, ValueAssetRef:
		return v.Ref == o.Ref
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.Type {
	case ValueFloat:
		return fmt.Sprintf("%g", v.Float)
	case ValueInt:
		return fmt.Sprintf("%d", v.Int)
	case ValueBool:
		return fmt.Sprintf("%t", v.Bool)
	case ValueText:
		return fmt.Sprintf("%q", v.Text)
	case ValueVector:
		return fmt.Sprintf("(%g, %g, %g)", v.Vector.X, v.Vector.Y, v.Vector.Z)
	case ValueColor:
		return fmt.Sprintf("rgba(%g, %g, %g, %g)", v.Color.R, v.Color.G, v.Color.B, v.Color.A)
	case ValueRotation:
		return fmt.Sprintf("quat(%g, %g, %g, %g)", v.Rotation.X, v.Rotation.Y, v.Rotation.Z, v.Rotation.W)
	case ValueObjectRef:
		return "object:" + v.Ref.String()
	case ValueAssetRef:
		return "asset:" + v.Ref.String()
	default:
		return "<invalid>"
	}
}
