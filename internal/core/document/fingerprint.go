package document

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint digests the observable state of the document: hierarchy,
// labels, transforms, component properties, controllers and mode. Object
// references are hashed by the tree position of their target, so two
// documents with different numbering but the same content agree. Asset
// references are hashed by resource id, which replicas share.
func (d *Document) Fingerprint() uint64 {
	order := make(map[ObjectID]int)
	d.Walk(func(e *Entity, _ int) bool {
		order[e.id] = len(order)
		return true
	})

	h := fingerprinter{doc: d, d: xxhash.New(), order: order}
	h.u64(uint64(d.mode))

	d.Walk(func(e *Entity, depth int) bool {
		h.u64(uint64(depth))
		h.str(e.Label)
		h.vec(e.Position)
		h.f64(e.Rotation.X, e.Rotation.Y, e.Rotation.Z, e.Rotation.W)
		if e.Scale != nil {
			h.u64(1)
			h.vec(*e.Scale)
		} else {
			h.u64(0)
		}
		for _, cid := range e.Components() {
			c, ok := d.Component(cid)
			if !ok {
				continue
			}
			h.u64(uint64(c.kind))
			for _, p := range c.properties {
				h.str(p.Name)
				h.value(p.Value)
			}
		}
		return true
	})

	for _, id := range d.controllers {
		c, ok := d.Controller(id)
		if !ok {
			continue
		}
		h.str(c.Name)
		h.ref(c.Target)
		h.u64(uint64(c.Component))
		h.str(c.Property)
		for _, k := range c.Keyframes {
			h.f64(k.Time, k.Value)
		}
	}

	return h.d.Sum64()
}

type fingerprinter struct {
	doc   *Document
	d     *xxhash.Digest
	order map[ObjectID]int
	buf   [8]byte
}

func (h *fingerprinter) u64(v uint64) {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	_, _ = h.d.Write(h.buf[:])
}

func (h *fingerprinter) f64(vs ...float64) {
	for _, v := range vs {
		h.u64(math.Float64bits(v))
	}
}

func (h *fingerprinter) str(s string) {
	h.u64(uint64(len(s)))
	_, _ = h.d.WriteString(s)
}

func (h *fingerprinter) vec(v Vec3) {
	h.f64(v.X, v.Y, v.Z)
}

func (h *fingerprinter) ref(id ObjectID) {
	if pos, ok := h.order[id]; ok {
		h.u64(uint64(pos) + 1)
		return
	}
	if c, ok := h.doc.Component(id); ok {
		if pos, ok := h.order[c.owner]; ok {
			h.u64(uint64(pos)<<8 | uint64(c.kind) | 1<<63)
			return
		}
	}
	h.u64(0)
}

func (h *fingerprinter) value(v Value) {
	h.u64(uint64(v.Type))
	switch v.Type {
	case ValueFloat:
		h.f64(v.Float)
	case ValueInt:
		h.u64(uint64(v.Int))
	case ValueBool:
		if v.Bool {
			h.u64(1)
		} else {
			h.u64(0)
		}
	case ValueText:
		h.str(v.Text)
	case ValueVector:
		h.vec(v.Vector)
	case ValueColor:
		h.f64(v.Color.R, v.Color.G, v.Color.B, v.Color.A)
	case ValueRotation:
		h.f64(v.Rotation.X, v.Rotation.Y, v.Rotation.Z, v.Rotation.W)
	case ValueObjectRef:
		h.ref(v.Ref)
	case ValueAssetRef:
		h.u64(v.Ref.Pack())
	}
}
