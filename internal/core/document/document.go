package document

import "fmt"

// Mode is the execution mode of a document.
type Mode uint8

const (
	ModeEdit Mode = iota
	ModePlay
	ModePaused
)

func (m Mode) String() string {
	switch m {
	case ModeEdit:
		return "edit"
	case ModePlay:
		return "play"
	case ModePaused:
		return "paused"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ReclaimHook is called once for every object the document destroys,
// before its slot is released.
type ReclaimHook func(Object)

// Document is an entity/component scene graph with a single root, an
// ordered controller list and a resource library. It performs no locking;
// callers serialize access.
type Document struct {
	objects     *arena[Object]
	root        ObjectID
	controllers []ObjectID
	library     *Library
	mode        Mode
	hooks       []ReclaimHook
}

type Option func(*Document)

// WithLibrary makes the document share an existing resource library.
func WithLibrary(l *Library) Option {
	return func(d *Document) {
		if l != nil {
			d.library = l
		}
	}
}

func New(opts ...Option) *Document {
	d := &Document{objects: newArena[Object]()}
	for _, opt := range opts {
		opt(d)
	}
	if d.library == nil {
		d.library = NewLibrary()
	}
	return d
}

func (d *Document) Library() *Library { return d.library }
func (d *Document) Root() ObjectID    { return d.root }
func (d *Document) Mode() Mode        { return d.mode }
func (d *Document) SetMode(m Mode)    { d.mode = m }

// Len is the number of live entities, components and controllers.
func (d *Document) Len() int { return d.objects.live }

func (d *Document) Object(id ObjectID) (Object, bool) {
	return d.objects.get(id)
}

func (d *Document) Entity(id ObjectID) (*Entity, bool) {
	o, ok := d.objects.get(id)
	if !ok {
		return nil, false
	}
	e, ok := o.(*Entity)
	return e, ok
}

func (d *Document) Component(id ObjectID) (*Component, bool) {
	o, ok := d.objects.get(id)
	if !ok {
		return nil, false
	}
	c, ok := o.(*Component)
	return c, ok
}

func (d *Document) Controller(id ObjectID) (*Controller, bool) {
	o, ok := d.objects.get(id)
	if !ok {
		return nil, false
	}
	c, ok := o.(*Controller)
	return c, ok
}

// Controllers returns controller ids in insertion order.
func (d *Document) Controllers() []ObjectID {
	out := make([]ObjectID, len(d.controllers))
	copy(out, d.controllers)
	return out
}

// OnReclaim registers a hook run for every destroyed object.
func (d *Document) OnReclaim(h ReclaimHook) {
	d.hooks = append(d.hooks, h)
}

// AddEntity creates an entity under parent. A zero parent creates the root,
// which fails if the document already has one.
func (d *Document) AddEntity(parent ObjectID, label string) (ObjectID, error) {
	return d.insertEntity(ObjectID{}, parent, label)
}

// PlaceEntity is AddEntity with a caller-chosen id.
func (d *Document) PlaceEntity(id, parent ObjectID, label string) error {
	if id.IsZero() {
		return fmt.Errorf("%w: %s", ErrInvalidID, id)
	}
	_, err := d.insertEntity(id, parent, label)
	return err
}

func (d *Document) insertEntity(id, parent ObjectID, label string) (ObjectID, error) {
	var p *Entity
	if parent.IsZero() {
		if !d.root.IsZero() {
			return ObjectID{}, ErrRootExists
		}
	} else {
		var ok bool
		if p, ok = d.Entity(parent); !ok {
			return ObjectID{}, notFound(KindEntity, parent)
		}
	}

	e := newEntity(parent, label)
	if id.IsZero() {
		id = d.objects.alloc(e)
	} else if err := d.objects.place(id, e); err != nil {
		return ObjectID{}, err
	}
	e.id = id

	if p == nil {
		d.root = id
	} else {
		p.children = append(p.children, id)
	}
	return id, nil
}

// RemoveEntity destroys the entity with its whole subtree and components,
// together with every controller targeting an entity of that subtree.
func (d *Document) RemoveEntity(id ObjectID) error {
	e, ok := d.Entity(id)
	if !ok {
		return notFound(KindEntity, id)
	}
	if e.IsRoot() {
		return ErrRootRemoval
	}
	if p, ok := d.Entity(e.parent); ok {
		p.removeChild(id)
	}
	d.reclaimEntity(e)
	d.reclaimOrphanControllers()
	return nil
}

// Reparent moves an entity under a new parent, keeping the tree acyclic.
func (d *Document) Reparent(id, parent ObjectID) error {
	e, ok := d.Entity(id)
	if !ok {
		return notFound(KindEntity, id)
	}
	if e.IsRoot() {
		return ErrRootMove
	}
	p, ok := d.Entity(parent)
	if !ok {
		return notFound(KindEntity, parent)
	}
	for cur := p; cur != nil; {
		if cur.id == id {
			return ErrCycle
		}
		next, ok := d.Entity(cur.parent)
		if !ok {
			break
		}
		cur = next
	}

	if old, ok := d.Entity(e.parent); ok {
		old.removeChild(id)
	}
	p.children = append(p.children, id)
	e.parent = parent
	return nil
}

func (d *Document) SetLabel(id ObjectID, label string) error {
	e, ok := d.Entity(id)
	if !ok {
		return notFound(KindEntity, id)
	}
	e.Label = label
	return nil
}

// SetTransform replaces the entity transform. A nil scale clears it.
func (d *Document) SetTransform(id ObjectID, position Vec3, rotation Quat, scale *Vec3) error {
	e, ok := d.Entity(id)
	if !ok {
		return notFound(KindEntity, id)
	}
	e.Position = position
	e.Rotation = rotation
	e.Scale = nil
	if scale != nil {
		s := *scale
		e.Scale = &s
	}
	return nil
}

// AddComponent attaches a new component of kind to the entity. An entity
// carries at most one component per kind.
func (d *Document) AddComponent(entity ObjectID, kind ComponentKind) (ObjectID, error) {
	return d.insertComponent(ObjectID{}, entity, kind)
}

// PlaceComponent is AddComponent with a caller-chosen id.
func (d *Document) PlaceComponent(id, entity ObjectID, kind ComponentKind) error {
	if id.IsZero() {
		return fmt.Errorf("%w: %s", ErrInvalidID, id)
	}
	_, err := d.insertComponent(id, entity, kind)
	return err
}

func (d *Document) insertComponent(id, entity ObjectID, kind ComponentKind) (ObjectID, error) {
	if !kind.Valid() {
		return ObjectID{}, fmt.Errorf("%w: %d", ErrInvalidComponent, uint8(kind))
	}
	e, ok := d.Entity(entity)
	if !ok {
		return ObjectID{}, notFound(KindEntity, entity)
	}
	if _, exists := e.components[kind]; exists {
		return ObjectID{}, fmt.Errorf("%w: %s on %s", ErrComponentExists, kind, entity)
	}

	c := newComponent(kind, entity)
	if id.IsZero() {
		id = d.objects.alloc(c)
	} else if err := d.objects.place(id, c); err != nil {
		return ObjectID{}, err
	}
	c.id = id
	e.components[kind] = id
	return id, nil
}

func (d *Document) RemoveComponent(id ObjectID) error {
	c, ok := d.Component(id)
	if !ok {
		return notFound(KindComponent, id)
	}
	if e, ok := d.Entity(c.owner); ok {
		delete(e.components, c.kind)
	}
	d.reclaim(c)
	return nil
}

func (d *Document) Property(component ObjectID, name string) (Value, error) {
	c, ok := d.Component(component)
	if !ok {
		return Value{}, notFound(KindComponent, component)
	}
	return c.Property(name)
}

func (d *Document) SetProperty(component ObjectID, name string, v Value) error {
	c, ok := d.Component(component)
	if !ok {
		return notFound(KindComponent, component)
	}
	return c.SetProperty(name, v)
}

// AddController appends a controller driving target's component property.
func (d *Document) AddController(name string, target ObjectID, kind ComponentKind, property string, keys []Keyframe) (ObjectID, error) {
	return d.insertController(ObjectID{}, name, target, kind, property, keys)
}

// PlaceController is AddController with a caller-chosen id.
func (d *Document) PlaceController(id ObjectID, name string, target ObjectID, kind ComponentKind, property string, keys []Keyframe) error {
	if id.IsZero() {
		return fmt.Errorf("%w: %s", ErrInvalidID, id)
	}
	_, err := d.insertController(id, name, target, kind, property, keys)
	return err
}

func (d *Document) insertController(id ObjectID, name string, target ObjectID, kind ComponentKind, property string, keys []Keyframe) (ObjectID, error) {
	if _, ok := d.Entity(target); !ok {
		return ObjectID{}, notFound(KindEntity, target)
	}
	c := &Controller{
		Name:      name,
		Target:    target,
		Component: kind,
		Property:  property,
		Keyframes: append([]Keyframe(nil), keys...),
	}
	if id.IsZero() {
		id = d.objects.alloc(c)
	} else if err := d.objects.place(id, c); err != nil {
		return ObjectID{}, err
	}
	c.id = id
	d.controllers = append(d.controllers, id)
	return id, nil
}

func (d *Document) RemoveController(id ObjectID) error {
	c, ok := d.Controller(id)
	if !ok {
		return notFound(KindController, id)
	}
	for i, cid := range d.controllers {
		if cid == id {
			d.controllers = append(d.controllers[:i], d.controllers[i+1:]...)
			break
		}
	}
	d.reclaim(c)
	return nil
}

// Animate samples every controller at t and writes the result into the
// targeted float property. Controllers whose target is gone are skipped.
func (d *Document) Animate(t float64) error {
	for _, id := range d.controllers {
		c, ok := d.Controller(id)
		if !ok {
			continue
		}
		e, ok := d.Entity(c.Target)
		if !ok {
			continue
		}
		cid, ok := e.Component(c.Component)
		if !ok {
			continue
		}
		v, ok := c.Sample(t)
		if !ok {
			continue
		}
		if err := d.SetProperty(cid, c.Property, FloatValue(v)); err != nil {
			return fmt.Errorf("controller %q: %w", c.Name, err)
		}
	}
	return nil
}

// Walk visits entities depth-first in child order starting at the root.
// Returning false from fn skips the entity's subtree.
func (d *Document) Walk(fn func(e *Entity, depth int) bool) {
	root, ok := d.Entity(d.root)
	if !ok {
		return
	}
	var visit func(e *Entity, depth int)
	visit = func(e *Entity, depth int) {
		if !fn(e, depth) {
			return
		}
		for _, cid := range e.children {
			if c, ok := d.Entity(cid); ok {
				visit(c, depth+1)
			}
		}
	}
	visit(root, 0)
}

// Collect tears the document down, running reclaim hooks for every object.
// With keepRoot the root entity survives, stripped of children and
// components, so that holders of the root id stay valid until they drop it.
func (d *Document) Collect(keepRoot bool) int {
	before := d.objects.live

	for _, id := range d.controllers {
		if c, ok := d.Controller(id); ok {
			d.reclaim(c)
		}
	}
	d.controllers = nil

	root, ok := d.Entity(d.root)
	if ok {
		for _, cid := range root.children {
			if c, ok := d.Entity(cid); ok {
				d.reclaimEntity(c)
			}
		}
		root.children = nil
		for kind, cid := range root.components {
			if c, ok := d.Component(cid); ok {
				d.reclaim(c)
			}
			delete(root.components, kind)
		}
		if !keepRoot {
			d.reclaim(root)
			d.root = ObjectID{}
		}
	}

	return before - d.objects.live
}

func (d *Document) reclaimEntity(e *Entity) {
	for _, cid := range e.children {
		if c, ok := d.Entity(cid); ok {
			d.reclaimEntity(c)
		}
	}
	e.children = nil
	for _, cid := range e.Components() {
		if c, ok := d.Component(cid); ok {
			d.reclaim(c)
		}
	}
	e.components = make(map[ComponentKind]ObjectID)
	d.reclaim(e)
}

// reclaimOrphanControllers drops controllers whose target entity is gone.
func (d *Document) reclaimOrphanControllers() {
	kept := d.controllers[:0]
	for _, id := range d.controllers {
		c, ok := d.Controller(id)
		if !ok {
			continue
		}
		if _, ok := d.Entity(c.Target); !ok {
			d.reclaim(c)
			continue
		}
		kept = append(kept, id)
	}
	clear(d.controllers[len(kept):])
	d.controllers = kept
}

func (d *Document) reclaim(o Object) {
	for _, h := range d.hooks {
		h(o)
	}
	d.objects.release(o.ID())
}
