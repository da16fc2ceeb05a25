// Package codec serializes documents and operation batches to a protobuf
// wire format and rebuilds them on the other side.
package codec

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/zeusync/playsync/internal/core/document"
)

// IDStrategy decides which ids are written for objects.
type IDStrategy uint8

const (
	// Sequential renumbers objects 1..n in traversal order.
	Sequential IDStrategy = iota
	// IdentityOfSource writes each object's own packed id.
	IdentityOfSource
)

func (s IDStrategy) String() string {
	if s == IdentityOfSource {
		return "identity-of-source"
	}
	return "sequential"
}

// AssetMode decides whether referenced resources carry their bytes.
type AssetMode uint8

const (
	InlineData AssetMode = iota
	// IDOnly writes only resource ids. The receiver must already hold the
	// resources in its library.
	IDOnly
)

func (m AssetMode) String() string {
	if m == IDOnly {
		return "id-only"
	}
	return "inline-data"
}

type Options struct {
	IDStrategy IDStrategy
	AssetMode  AssetMode
}

// WireID is an object id as written on the wire.
type WireID uint64

// Serialize encodes the whole document reachable from its root together with
// every resource a property refers to. Resources nothing refers to are left
// out.
func Serialize(doc *document.Document, opts Options) ([]byte, error) {
	if _, ok := doc.Entity(doc.Root()); !ok {
		return nil, fmt.Errorf("serialize: %w", document.ErrNoRoot)
	}
	s := &serializer{
		doc:      doc,
		opts:     opts,
		ids:      make(map[document.ObjectID]uint64),
		required: mapset.NewThreadUnsafeSet[document.ObjectID](),
	}
	s.number()
	return s.encode(), nil
}

type serializer struct {
	doc  *document.Document
	opts Options

	ids  map[document.ObjectID]uint64
	next uint64

	required mapset.Set[document.ObjectID]
	// order keeps resources in first-reference order so output is stable.
	order []document.ObjectID
}

// number assigns sequential ids to every object in traversal order.
func (s *serializer) number() {
	if s.opts.IDStrategy != Sequential {
		return
	}
	s.doc.Walk(func(e *document.Entity, _ int) bool {
		s.assign(e.ID())
		for _, cid := range e.Components() {
			s.assign(cid)
		}
		return true
	})
	for _, cid := range s.doc.Controllers() {
		s.assign(cid)
	}
}

func (s *serializer) assign(id document.ObjectID) uint64 {
	if n, ok := s.ids[id]; ok {
		return n
	}
	s.next++
	s.ids[id] = s.next
	return s.next
}

func (s *serializer) objectID(id document.ObjectID) uint64 {
	if id.IsZero() {
		return 0
	}
	if s.opts.IDStrategy == IdentityOfSource {
		return id.Pack()
	}
	return s.ids[id]
}

// resource is the lazy resolution callback: the first reference to a
// resource pulls it into the output.
func (s *serializer) resource(id document.ObjectID) uint64 {
	if id.IsZero() {
		return 0
	}
	if _, ok := s.doc.Library().Resource(id); ok && s.required.Add(id) {
		s.order = append(s.order, id)
	}
	if s.opts.IDStrategy == IdentityOfSource || s.opts.AssetMode == IDOnly {
		return id.Pack()
	}
	return s.assign(id)
}

func (s *serializer) ref(v document.Value) uint64 {
	if v.Type == document.ValueAssetRef {
		return s.resource(v.Ref)
	}
	return s.objectID(v.Ref)
}

func (s *serializer) encode() []byte {
	var e encoder

	s.doc.Walk(func(ent *document.Entity, _ int) bool {
		e.message(fDocEntities, func(m *encoder) { s.entity(m, ent) })
		return true
	})
	for _, cid := range s.doc.Controllers() {
		if c, ok := s.doc.Controller(cid); ok {
			e.message(fDocControllers, func(m *encoder) { s.controller(m, c) })
		}
	}

	for _, id := range s.order {
		r, _ := s.doc.Library().Resource(id)
		num := fDocAssets
		if r.ObjectKind() == document.KindBuffer {
			num = fDocBuffers
		}
		e.message(num, func(m *encoder) { s.resourceMessage(m, r) })
	}

	e.uint(fDocRoot, s.objectID(s.doc.Root()))
	e.uint(fDocMode, uint64(s.doc.Mode()))
	e.uint(fDocIDStrategy, uint64(s.opts.IDStrategy))
	e.uint(fDocAssetMode, uint64(s.opts.AssetMode))
	return e.b
}

func (s *serializer) entity(e *encoder, ent *document.Entity) {
	e.uint(fEntID, s.objectID(ent.ID()))
	e.uint(fEntParent, s.objectID(ent.Parent()))
	e.str(fEntLabel, ent.Label)
	e.vec3(fEntPosition, ent.Position)
	e.quat(fEntRotation, ent.Rotation)
	if ent.Scale != nil {
		e.vec3(fEntScale, *ent.Scale)
	}
	for _, cid := range ent.Components() {
		c, ok := s.doc.Component(cid)
		if !ok {
			continue
		}
		e.message(fEntComponents, func(m *encoder) {
			m.uint(fCompID, s.objectID(c.ID()))
			m.uint(fCompKind, uint64(c.Kind()))
			for _, p := range c.Properties() {
				m.message(fCompProperties, func(pm *encoder) {
					encodeProperty(pm, p.Name, p.Value, s.ref)
				})
			}
		})
	}
}

func (s *serializer) controller(e *encoder, c *document.Controller) {
	e.uint(fCtlID, s.objectID(c.ID()))
	e.str(fCtlName, c.Name)
	e.uint(fCtlTarget, s.objectID(c.Target))
	e.uint(fCtlComponent, uint64(c.Component))
	e.str(fCtlProperty, c.Property)
	for _, k := range c.Keyframes {
		e.message(fCtlKeyframes, func(m *encoder) {
			m.float(fKeyTime, k.Time)
			m.float(fKeyValue, k.Value)
		})
	}
}

func (s *serializer) resourceMessage(e *encoder, r *document.Resource) {
	e.uint(fResID, s.resource(r.ID()))
	e.uint(fResKind, uint64(r.ObjectKind()))
	if s.opts.AssetMode == IDOnly {
		return
	}
	e.str(fResName, r.Name)
	e.str(fResMime, r.MimeType)
	e.bytes(fResData, r.Data)
}
