package ops

import "github.com/zeusync/playsync/internal/core/document"

// Editor performs edits on the master document and emits one Operation per
// successful edit. Failed edits emit nothing.
type Editor struct {
	doc  *document.Document
	sink Sink
}

func NewEditor(doc *document.Document, sink Sink) *Editor {
	return &Editor{doc: doc, sink: sink}
}

func (e *Editor) Document() *document.Document {
	return e.doc
}

func (e *Editor) emit(op Operation) {
	if e.sink != nil {
		e.sink.OnOperation(op)
	}
}

func (e *Editor) AddEntity(parent document.ObjectID, label string) (document.ObjectID, error) {
	id, err := e.doc.AddEntity(parent, label)
	if err != nil {
		return document.ObjectID{}, err
	}
	e.emit(AddEntity{Parent: parent, Entity: id, Label: label})
	return id, nil
}

func (e *Editor) DeleteEntity(id document.ObjectID) error {
	if err := e.doc.RemoveEntity(id); err != nil {
		return err
	}
	e.emit(DeleteEntity{Entity: id})
	return nil
}

func (e *Editor) Reparent(id, parent document.ObjectID) error {
	if err := e.doc.Reparent(id, parent); err != nil {
		return err
	}
	e.emit(Reparent{Entity: id, Parent: parent})
	return nil
}

func (e *Editor) SetLabel(id document.ObjectID, label string) error {
	if err := e.doc.SetLabel(id, label); err != nil {
		return err
	}
	e.emit(SetLabel{Entity: id, Label: label})
	return nil
}

func (e *Editor) SetTransform(id document.ObjectID, position document.Vec3, rotation document.Quat, scale *document.Vec3) error {
	if err := e.doc.SetTransform(id, position, rotation, scale); err != nil {
		return err
	}
	op := SetTransform{Entity: id, Position: position, Rotation: rotation}
	if scale != nil {
		s := *scale
		op.Scale = &s
	}
	e.emit(op)
	return nil
}

func (e *Editor) AddComponent(entity document.ObjectID, kind document.ComponentKind) (document.ObjectID, error) {
	id, err := e.doc.AddComponent(entity, kind)
	if err != nil {
		return document.ObjectID{}, err
	}
	e.emit(AddComponent{Entity: entity, Component: id, ComponentKind: kind})
	return id, nil
}

func (e *Editor) DeleteComponent(id document.ObjectID) error {
	if err := e.doc.RemoveComponent(id); err != nil {
		return err
	}
	e.emit(DeleteComponent{Component: id})
	return nil
}

func (e *Editor) SetProperty(component document.ObjectID, name string, v document.Value) error {
	if err := e.doc.SetProperty(component, name, v); err != nil {
		return err
	}
	e.emit(SetProperty{Component: component, Name: name, Value: v})
	return nil
}

func (e *Editor) SetMode(m document.Mode) {
	e.doc.SetMode(m)
	e.emit(SetMode{Mode: m})
}
