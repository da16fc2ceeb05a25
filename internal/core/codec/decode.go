package codec

import (
	"errors"
	"fmt"

	"github.com/zeusync/playsync/internal/core/document"
)

// Hooks let the caller see every object the decoder creates and decide how
// wire ids resolve. Resources are resolved through the library and never
// reach the hooks.
type Hooks interface {
	// Register is called once for every freshly created object. An error
	// drops the object.
	Register(obj document.Object, source WireID) error
	// Resolve maps a wire id to an object already created by this decode.
	Resolve(source WireID) (document.ObjectID, bool)
}

// HookFuncs adapts a pair of closures to Hooks.
type HookFuncs struct {
	RegisterFunc func(obj document.Object, source WireID) error
	ResolveFunc  func(source WireID) (document.ObjectID, bool)
}

func (h HookFuncs) Register(obj document.Object, source WireID) error {
	return h.RegisterFunc(obj, source)
}

func (h HookFuncs) Resolve(source WireID) (document.ObjectID, bool) {
	return h.ResolveFunc(source)
}

// Table is the default Hooks: a plain wire id to object id table.
type Table struct {
	ids map[WireID]document.ObjectID
}

func NewTable() *Table {
	return &Table{ids: make(map[WireID]document.ObjectID)}
}

func (t *Table) Register(obj document.Object, source WireID) error {
	if existing, ok := t.ids[source]; ok {
		return fmt.Errorf("%w: wire id %d already bound to %s", ErrDuplicateRegistration, uint64(source), existing)
	}
	t.ids[source] = obj.ID()
	return nil
}

func (t *Table) Resolve(source WireID) (document.ObjectID, bool) {
	id, ok := t.ids[source]
	return id, ok
}

func (t *Table) Len() int { return len(t.ids) }

type DecodeOptions struct {
	// Library receives inline resources and resolves id-only ones. A new
	// library is used when nil.
	Library *document.Library
	// PreserveIDs recreates objects under their wire ids. Only valid for
	// identity-of-source input.
	PreserveIDs bool
}

// Deserialize rebuilds a document. Problems with individual objects are
// collected in the report and the offending object is skipped; only input
// that cannot be parsed at all returns an error.
func Deserialize(data []byte, hooks Hooks, opts DecodeOptions) (*document.Document, *Report, error) {
	if hooks == nil {
		hooks = NewTable()
	}
	lib := opts.Library
	if lib == nil {
		lib = document.NewLibrary()
	}

	var raw rawDocument
	if err := raw.parse(data); err != nil {
		return nil, nil, err
	}
	if opts.PreserveIDs && raw.strategy != IdentityOfSource {
		return nil, nil, fmt.Errorf("%w: preserving ids needs %s input, got %s",
			ErrUnsupportedOptions, IdentityOfSource, raw.strategy)
	}

	d := &decoder{
		doc:       document.New(document.WithLibrary(lib)),
		lib:       lib,
		hooks:     hooks,
		opts:      opts,
		raw:       &raw,
		resources: make(map[WireID]document.ObjectID),
		report:    &Report{},
	}
	d.decode()
	return d.doc, d.report, nil
}

type rawDocument struct {
	entities    [][]byte
	controllers [][]byte
	resources   [][]byte
	root        WireID
	mode        document.Mode
	strategy    IDStrategy
	assetMode   AssetMode
}

func (r *rawDocument) parse(data []byte) error {
	return eachField(data, func(f field) error {
		switch f.num {
		case fDocEntities:
			r.entities = append(r.entities, f.data)
		case fDocControllers:
			r.controllers = append(r.controllers, f.data)
		case fDocAssets, fDocBuffers:
			r.resources = append(r.resources, f.data)
		case fDocRoot:
			r.root = WireID(f.uint())
		case fDocMode:
			r.mode = document.Mode(f.uint())
		case fDocIDStrategy:
			r.strategy = IDStrategy(f.uint())
		case fDocAssetMode:
			r.assetMode = AssetMode(f.uint())
		}
		return nil
	})
}

// pendingRef is an object reference set once every object exists.
type pendingRef struct {
	component document.ObjectID
	property  string
	target    WireID
}

type decoder struct {
	doc   *document.Document
	lib   *document.Library
	hooks Hooks
	opts  DecodeOptions
	raw   *rawDocument

	resources map[WireID]document.ObjectID
	pending   []pendingRef
	report    *Report
}

func (d *decoder) decode() {
	d.doc.SetMode(d.raw.mode)
	for _, b := range d.raw.resources {
		d.resource(b)
	}
	for _, b := range d.raw.entities {
		d.entity(b)
	}
	for _, b := range d.raw.controllers {
		d.controller(b)
	}
	for _, p := range d.pending {
		target, ok := d.hooks.Resolve(p.target)
		if !ok {
			d.report.add(CodeUnresolvedReference, p.target, nil, "property %q of %s", p.property, p.component)
			continue
		}
		if err := d.doc.SetProperty(p.component, p.property, document.ObjectRefValue(target)); err != nil {
			d.report.add(CodeMalformedMessage, p.target, err, "property %q of %s", p.property, p.component)
		}
	}
}

func (d *decoder) resource(b []byte) {
	var (
		id         WireID
		kind       document.ObjectKind
		name, mime string
		data       []byte
	)
	err := eachField(b, func(f field) error {
		switch f.num {
		case fResID:
			id = WireID(f.uint())
		case fResKind:
			kind = document.ObjectKind(f.uint())
		case fResName:
			name = f.str()
		case fResMime:
			mime = f.str()
		case fResData:
			data = append([]byte(nil), f.data...)
		}
		return nil
	})
	if err != nil {
		d.report.add(CodeMalformedMessage, id, err, "resource")
		return
	}
	if id == 0 || (kind != document.KindAsset && kind != document.KindBuffer) {
		d.report.add(CodeMalformedMessage, id, nil, "resource without id or with kind %s", kind)
		return
	}

	if d.raw.assetMode == IDOnly {
		local := document.Unpack(uint64(id))
		r, ok := d.lib.Resource(local)
		if !ok || r.ObjectKind() != kind {
			d.report.add(CodeUnresolvedReference, id, nil, "%s not in library", kind)
			return
		}
		d.resources[id] = local
		return
	}

	if d.opts.PreserveIDs {
		local := document.Unpack(uint64(id))
		if existing, ok := d.lib.Resource(local); ok && existing.ObjectKind() == kind {
			d.resources[id] = local
			return
		}
		r, err := d.lib.Place(local, kind, name, mime, data)
		if err != nil {
			d.report.add(CodeDuplicateRegistration, id, err, "resource")
			return
		}
		d.resources[id] = r.ID()
		return
	}

	if kind == document.KindBuffer {
		d.resources[id] = d.lib.AddBuffer(name, data)
	} else {
		d.resources[id] = d.lib.AddAsset(name, mime, data)
	}
}

type rawEntity struct {
	id         WireID
	parent     WireID
	label      string
	position   document.Vec3
	rotation   document.Quat
	scale      *document.Vec3
	components [][]byte
}

func parseEntity(b []byte) (rawEntity, error) {
	e := rawEntity{rotation: document.IdentityQuat}
	err := eachField(b, func(f field) error {
		var err error
		switch f.num {
		case fEntID:
			e.id = WireID(f.uint())
		case fEntParent:
			e.parent = WireID(f.uint())
		case fEntLabel:
			e.label = f.str()
		case fEntPosition:
			e.position, err = decodeVec3(f.data)
		case fEntRotation:
			e.rotation, err = decodeQuat(f.data)
		case fEntScale:
			var s document.Vec3
			s, err = decodeVec3(f.data)
			e.scale = &s
		case fEntComponents:
			e.components = append(e.components, f.data)
		}
		return err
	})
	if err == nil && e.id == 0 {
		err = fmt.Errorf("%w: entity without id", ErrMalformedMessage)
	}
	return e, err
}

func (d *decoder) entity(b []byte) {
	raw, err := parseEntity(b)
	if err != nil {
		d.report.add(CodeMalformedMessage, raw.id, err, "entity")
		return
	}

	var parent document.ObjectID
	if raw.parent != 0 {
		var ok bool
		if parent, ok = d.hooks.Resolve(raw.parent); !ok {
			d.report.add(CodeUnresolvedReference, raw.id, nil, "parent %d of entity %q", uint64(raw.parent), raw.label)
			return
		}
	} else if raw.id != d.raw.root {
		d.report.add(CodeMalformedMessage, raw.id, nil, "entity %q has no parent and is not the root", raw.label)
		return
	}

	var id document.ObjectID
	if d.opts.PreserveIDs {
		id = document.Unpack(uint64(raw.id))
		err = d.doc.PlaceEntity(id, parent, raw.label)
	} else {
		id, err = d.doc.AddEntity(parent, raw.label)
	}
	if err != nil {
		d.report.add(codeFor(err), raw.id, err, "entity %q", raw.label)
		return
	}

	ent, _ := d.doc.Entity(id)
	if err := d.hooks.Register(ent, raw.id); err != nil {
		d.report.add(CodeDuplicateRegistration, raw.id, err, "entity %q", raw.label)
		if !ent.IsRoot() {
			_ = d.doc.RemoveEntity(id)
			return
		}
	}
	_ = d.doc.SetTransform(id, raw.position, raw.rotation, raw.scale)

	for _, cb := range raw.components {
		d.component(id, cb)
	}
}

func (d *decoder) component(owner document.ObjectID, b []byte) {
	var (
		wid   WireID
		kind  document.ComponentKind
		props [][]byte
	)
	err := eachField(b, func(f field) error {
		switch f.num {
		case fCompID:
			wid = WireID(f.uint())
		case fCompKind:
			kind = document.ComponentKind(f.uint())
		case fCompProperties:
			props = append(props, f.data)
		}
		return nil
	})
	if err == nil && (wid == 0 || !kind.Valid()) {
		err = fmt.Errorf("%w: component without id or with kind %d", ErrMalformedMessage, kind)
	}
	if err != nil {
		d.report.add(CodeMalformedMessage, wid, err, "component")
		return
	}

	var id document.ObjectID
	if d.opts.PreserveIDs {
		id = document.Unpack(uint64(wid))
		err = d.doc.PlaceComponent(id, owner, kind)
	} else {
		id, err = d.doc.AddComponent(owner, kind)
	}
	if err != nil {
		d.report.add(codeFor(err), wid, err, "%s component", kind)
		return
	}

	comp, _ := d.doc.Component(id)
	if err := d.hooks.Register(comp, wid); err != nil {
		d.report.add(CodeDuplicateRegistration, wid, err, "%s component", kind)
		_ = d.doc.RemoveComponent(id)
		return
	}

	for _, pb := range props {
		p, err := decodeProperty(pb)
		if err != nil {
			d.report.add(CodeMalformedMessage, wid, err, "%s component property", kind)
			continue
		}
		d.property(id, wid, p)
	}
}

func (d *decoder) property(component document.ObjectID, wid WireID, p rawProperty) {
	v := p.value
	switch v.Type {
	case document.ValueObjectRef:
		if p.ref != 0 {
			d.pending = append(d.pending, pendingRef{component: component, property: p.name, target: p.ref})
			return
		}
	case document.ValueAssetRef:
		if p.ref != 0 {
			local, ok := d.resources[p.ref]
			if !ok {
				d.report.add(CodeUnresolvedReference, p.ref, nil, "resource for property %q", p.name)
				return
			}
			v.Ref = local
		}
	}
	if err := d.doc.SetProperty(component, p.name, v); err != nil {
		d.report.add(CodeMalformedMessage, wid, err, "property %q", p.name)
	}
}

func (d *decoder) controller(b []byte) {
	var (
		wid, target    WireID
		name, property string
		kind           document.ComponentKind
		keys           []document.Keyframe
	)
	err := eachField(b, func(f field) error {
		switch f.num {
		case fCtlID:
			wid = WireID(f.uint())
		case fCtlName:
			name = f.str()
		case fCtlTarget:
			target = WireID(f.uint())
		case fCtlComponent:
			kind = document.ComponentKind(f.uint())
		case fCtlProperty:
			property = f.str()
		case fCtlKeyframes:
			var k document.Keyframe
			err := eachField(f.data, func(kf field) error {
				switch kf.num {
				case fKeyTime:
					k.Time = kf.float()
				case fKeyValue:
					k.Value = kf.float()
				}
				return nil
			})
			keys = append(keys, k)
			return err
		}
		return nil
	})
	if err == nil && wid == 0 {
		err = fmt.Errorf("%w: controller without id", ErrMalformedMessage)
	}
	if err != nil {
		d.report.add(CodeMalformedMessage, wid, err, "controller %q", name)
		return
	}

	local, ok := d.hooks.Resolve(target)
	if !ok {
		d.report.add(CodeUnresolvedReference, wid, nil, "target %d of controller %q", uint64(target), name)
		return
	}

	var id document.ObjectID
	if d.opts.PreserveIDs {
		id = document.Unpack(uint64(wid))
		err = d.doc.PlaceController(id, name, local, kind, property, keys)
	} else {
		id, err = d.doc.AddController(name, local, kind, property, keys)
	}
	if err != nil {
		d.report.add(codeFor(err), wid, err, "controller %q", name)
		return
	}

	ctl, _ := d.doc.Controller(id)
	if err := d.hooks.Register(ctl, wid); err != nil {
		d.report.add(CodeDuplicateRegistration, wid, err, "controller %q", name)
		_ = d.doc.RemoveController(id)
	}
}

func codeFor(err error) Code {
	if errors.Is(err, document.ErrSlotOccupied) {
		return CodeDuplicateRegistration
	}
	return CodeMalformedMessage
}
