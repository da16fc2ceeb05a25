package document

import "fmt"

// Resource is an immutable asset or buffer. Documents that share a Library
// share its resources instead of copying them.
type Resource struct {
	id       ObjectID
	kind     ObjectKind
	Name     string
	MimeType string
	Data     []byte
}

var _ Object = (*Resource)(nil)

func (r *Resource) ID() ObjectID           { return r.id }
func (r *Resource) ObjectKind() ObjectKind { return r.kind }

// Library holds the resources referenced by asset-reference properties.
type Library struct {
	resources *arena[*Resource]
}

func NewLibrary() *Library {
	return &Library{resources: newArena[*Resource]()}
}

func (l *Library) AddAsset(name, mimeType string, data []byte) ObjectID {
	return l.add(&Resource{kind: KindAsset, Name: name, MimeType: mimeType, Data: data})
}

func (l *Library) AddBuffer(name string, data []byte) ObjectID {
	return l.add(&Resource{kind: KindBuffer, Name: name, MimeType: "application/octet-stream", Data: data})
}

func (l *Library) add(r *Resource) ObjectID {
	r.id = l.resources.alloc(r)
	return r.id
}

// Place stores a resource under a fixed id, as received from a peer that
// owns the numbering.
func (l *Library) Place(id ObjectID, kind ObjectKind, name, mimeType string, data []byte) (*Resource, error) {
	if kind != KindAsset && kind != KindBuffer {
		return nil, fmt.Errorf("%w: %s is not a resource kind", ErrWrongKind, kind)
	}
	r := &Resource{id: id, kind: kind, Name: name, MimeType: mimeType, Data: data}
	if err := l.resources.place(id, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (l *Library) Resource(id ObjectID) (*Resource, bool) {
	return l.resources.get(id)
}

func (l *Library) Assets() []*Resource {
	return l.filter(KindAsset)
}

func (l *Library) Buffers() []*Resource {
	return l.filter(KindBuffer)
}

func (l *Library) Len() int {
	return l.resources.live
}

func (l *Library) filter(kind ObjectKind) []*Resource {
	var out []*Resource
	l.resources.each(func(_ ObjectID, r *Resource) bool {
		if r.kind == kind {
			out = append(out, r)
		}
		return true
	})
	return out
}

// ResourceRefs lists the library resources that asset properties of the
// document refer to, in traversal order and without repeats.
func (d *Document) ResourceRefs() []ObjectID {
	var out []ObjectID
	seen := make(map[ObjectID]bool)
	d.Walk(func(e *Entity, _ int) bool {
		for _, cid := range e.Components() {
			c, ok := d.Component(cid)
			if !ok {
				continue
			}
			for _, p := range c.properties {
				ref := p.Value.Ref
				if p.Value.Type != ValueAssetRef || ref.IsZero() || seen[ref] {
					continue
				}
				if _, ok := d.library.Resource(ref); ok {
					seen[ref] = true
					out = append(out, ref)
				}
			}
		}
		return true
	})
	return out
}
