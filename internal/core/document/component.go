package document

import "fmt"

// ComponentKind is the closed set of component variants an entity can carry.
type ComponentKind uint8

const (
	ComponentCamera ComponentKind = iota + 1
	ComponentMaterial
	ComponentBox
	ComponentSphere
	ComponentPlane
	ComponentInput
	ComponentHair
	ComponentCodeModule
)

// ComponentKinds lists every kind in declaration order.
var ComponentKinds = []ComponentKind{
	ComponentCamera,
	ComponentMaterial,
	ComponentBox,
	ComponentSphere,
	ComponentPlane,
	ComponentInput,
	ComponentHair,
	ComponentCodeModule,
}

func (k ComponentKind) String() string {
	switch k {
	case ComponentCamera:
		return "camera"
	case ComponentMaterial:
		return "material"
	case ComponentBox:
		return "box"
	case ComponentSphere:
		return "sphere"
	case ComponentPlane:
		return "plane"
	case ComponentInput:
		return "input"
	case ComponentHair:
		return "hair"
	case ComponentCodeModule:
		return "code-module"
	default:
		return fmt.Sprintf("component(%d)", uint8(k))
	}
}

func (k ComponentKind) Valid() bool {
	return k >= ComponentCamera && k <= ComponentCodeModule
}

// PropertySpec declares one property of a component kind.
type PropertySpec struct {
	Name    string
	Default Value
}

func (s PropertySpec) Type() ValueType {
	return s.Default.Type
}

var white = Color{R: 1, G: 1, B: 1, A: 1}

// Schema returns the fixed property layout of the kind.
func (k ComponentKind) Schema() []PropertySpec {
	switch k {
	case ComponentCamera:
		return []PropertySpec{
			{Name: "fov", Default: FloatValue(60)},
			{Name: "near", Default: FloatValue(0.1)},
			{Name: "far", Default: FloatValue(1000)},
			{Name: "active", Default: BoolValue(true)},
		}
	case ComponentMaterial:
		return []PropertySpec{
			{Name: "visible", Default: BoolValue(true)},
			{Name: "color", Default: ColorValue(white)},
			{Name: "opacity", Default: FloatValue(1)},
			{Name: "texture", Default: AssetRefValue(ObjectID{})},
		}
	case ComponentBox:
		return []PropertySpec{
			{Name: "size", Default: VectorValue(Vec3{X: 1, Y: 1, Z: 1})},
			{Name: "segments", Default: IntValue(1)},
			{Name: "mesh", Default: AssetRefValue(ObjectID{})},
		}
	case ComponentSphere:
		return []PropertySpec{
			{Name: "radius", Default: FloatValue(0.5)},
			{Name: "rings", Default: IntValue(16)},
		}
	case ComponentPlane:
		return []PropertySpec{
			{Name: "width", Default: FloatValue(1)},
			{Name: "height", Default: FloatValue(1)},
			{Name: "orientation", Default: RotationValue(IdentityQuat)},
		}
	case ComponentInput:
		return []PropertySpec{
			{Name: "enabled", Default: BoolValue(true)},
			{Name: "binding", Default: TextValue("")},
			{Name: "target", Default: ObjectRefValue(ObjectID{})},
		}
	case ComponentHair:
		return []PropertySpec{
			{Name: "density", Default: IntValue(100)},
			{Name: "length", Default: FloatValue(0.1)},
			{Name: "color", Default: ColorValue(white)},
		}
	case ComponentCodeModule:
		return []PropertySpec{
			{Name: "source", Default: AssetRefValue(ObjectID{})},
			{Name: "entry", Default: TextValue("main")},
			{Name: "enabled", Default: BoolValue(true)},
		}
	default:
		return nil
	}
}

// Property is a named value stored on a component.
type Property struct {
	Name  string
	Value Value
}

// Component is a typed bag of properties attached to exactly one entity.
type Component struct {
	id         ObjectID
	kind       ComponentKind
	owner      ObjectID
	properties []Property
}

var _ Object = (*Component)(nil)

func newComponent(kind ComponentKind, owner ObjectID) *Component {
	schema := kind.Schema()
	props := make([]Property, len(schema))
	for i, spec := range schema {
		props[i] = Property{Name: spec.Name, Value: spec.Default}
	}
	return &Component{kind: kind, owner: owner, properties: props}
}

func (c *Component) ID() ObjectID           { return c.id }
func (c *Component) ObjectKind() ObjectKind { return KindComponent }
func (c *Component) Kind() ComponentKind    { return c.kind }
func (c *Component) Owner() ObjectID        { return c.owner }

// Properties returns a copy of the property list in schema order.
func (c *Component) Properties() []Property {
	out := make([]Property, len(c.properties))
	copy(out, c.properties)
	return out
}

func (c *Component) Property(name string) (Value, error) {
	for _, p := range c.properties {
		if p.Name == name {
			return p.Value, nil
		}
	}
	return Value{}, &PropertyError{Err: ErrUnknownProperty, Component: c.id, Name: name}
}

func (c *Component) SetProperty(name string, v Value) error {
	for i := range c.properties {
		p := &c.properties[i]
		if p.Name != name {
			continue
		}
		if p.Value.Type != v.Type {
			return &PropertyError{
				Err:       ErrTypeMismatch,
				Component: c.id,
				Name:      name,
				Want:      p.Value.Type,
				Got:       v.Type,
			}
		}
		p.Value = v
		return nil
	}
	return &PropertyError{Err: ErrUnknownProperty, Component: c.id, Name: name}
}
