package document

import "sort"

// ObjectKind distinguishes the object variants stored in a document arena
// or a resource library.
type ObjectKind uint8

const (
	KindEntity ObjectKind = iota + 1
	KindComponent
	KindController
	KindAsset
	KindBuffer
)

func (k ObjectKind) String() string {
	switch k {
	case KindEntity:
		return "entity"
	case KindComponent:
		return "component"
	case KindController:
		return "controller"
	case KindAsset:
		return "asset"
	case KindBuffer:
		return "buffer"
	default:
		return "unknown"
	}
}

// Object is anything addressable by an ObjectID.
type Object interface {
	ID() ObjectID
	ObjectKind() ObjectKind
}

// Entity is a node of the scene tree. It owns its children and components;
// the parent link is a plain id back-reference.
type Entity struct {
	id         ObjectID
	parent     ObjectID
	children   []ObjectID
	components map[ComponentKind]ObjectID

	Label    string
	Position Vec3
	Rotation Quat
	Scale    *Vec3
}

var _ Object = (*Entity)(nil)

func newEntity(parent ObjectID, label string) *Entity {
	return &Entity{
		parent:     parent,
		components: make(map[ComponentKind]ObjectID),
		Label:      label,
		Rotation:   IdentityQuat,
	}
}

func (e *Entity) ID() ObjectID           { return e.id }
func (e *Entity) ObjectKind() ObjectKind { return KindEntity }
func (e *Entity) Parent() ObjectID       { return e.parent }
func (e *Entity) IsRoot() bool           { return e.parent.IsZero() }

// Children returns a copy of the ordered child list.
func (e *Entity) Children() []ObjectID {
	out := make([]ObjectID, len(e.children))
	copy(out, e.children)
	return out
}

// Component returns the id of the component of the given kind, if any.
func (e *Entity) Component(kind ComponentKind) (ObjectID, bool) {
	id, ok := e.components[kind]
	return id, ok
}

// Components returns component ids ordered by kind.
func (e *Entity) Components() []ObjectID {
	kinds := make([]ComponentKind, 0, len(e.components))
	for k := range e.components {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	out := make([]ObjectID, len(kinds))
	for i, k := range kinds {
		out[i] = e.components[k]
	}
	return out
}

func (e *Entity) removeChild(id ObjectID) {
	for i, c := range e.children {
		if c == id {
			e.children = append(e.children[:i], e.children[i+1:]...)
			return
		}
	}
}

// Keyframe is one sample of an animation curve.
type Keyframe struct {
	Time  float64
	Value float64
}

// Controller animates a float property of a component on its target entity.
type Controller struct {
	id ObjectID

	Name      string
	Target    ObjectID
	Component ComponentKind
	Property  string
	Keyframes []Keyframe
}

var _ Object = (*Controller)(nil)

func (c *Controller) ID() ObjectID           { return c.id }
func (c *Controller) ObjectKind() ObjectKind { return KindController }

// Sample evaluates the curve at t with linear interpolation, clamping at
// both ends.
func (c *Controller) Sample(t float64) (float64, bool) {
	n := len(c.Keyframes)
	if n == 0 {
		return 0, false
	}
	if t <= c.Keyframes[0].Time {
		return c.Keyframes[0].Value, true
	}
	if t >= c.Keyframes[n-1].Time {
		return c.Keyframes[n-1].Value, true
	}
	i := sort.Search(n, func(i int) bool { return c.Keyframes[i].Time >= t })
	a, b := c.Keyframes[i-1], c.Keyframes[i]
	f := (t - a.Time) / (b.Time - a.Time)
	return a.Value + (b.Value-a.Value)*f, true
}
