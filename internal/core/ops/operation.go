package ops

import (
	"errors"
	"fmt"

	"github.com/zeusync/playsync/internal/core/document"
)

// Kind tags an Operation variant.
type Kind uint8

const (
	KindSetProperty Kind = iota + 1
	KindAddComponent
	KindDeleteComponent
	KindAddEntity
	KindDeleteEntity
	KindSetMode
	KindSetTransform
	KindSetLabel
	KindReparent
)

func (k Kind) String() string {
	switch k {
	case KindSetProperty:
		return "set-property"
	case KindAddComponent:
		return "add-component"
	case KindDeleteComponent:
		return "delete-component"
	case KindAddEntity:
		return "add-entity"
	case KindDeleteEntity:
		return "delete-entity"
	case KindSetMode:
		return "set-mode"
	case KindSetTransform:
		return "set-transform"
	case KindSetLabel:
		return "set-label"
	case KindReparent:
		return "reparent"
	default:
		return fmt.Sprintf("operation(%d)", uint8(k))
	}
}

// ErrUntranslatable is returned by Rewrite when an id has no counterpart.
var ErrUntranslatable = errors.New("object id has no translation")

// TranslationError names the id that failed to translate.
type TranslationError struct {
	Op Kind
	ID document.ObjectID
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("%s: %s references %s", ErrUntranslatable, e.Op, e.ID)
}

func (e *TranslationError) Unwrap() error { return ErrUntranslatable }

// Translator maps an id of the emitting document to the target document.
type Translator func(document.ObjectID) (document.ObjectID, bool)

// ApplyOptions controls how creation operations allocate ids.
type ApplyOptions struct {
	// Place creates objects under the exact ids carried by the operation.
	// Used by replicas that share the emitter's numbering.
	Place bool
}

// Result reports what applying an operation created.
type Result struct {
	// Created is the id of the new object in the target document, zero if
	// nothing was created.
	Created document.ObjectID
}

// Operation is an immutable edit. The set of variants is closed; use a type
// switch over the concrete types for exhaustive handling.
type Operation interface {
	Kind() Kind
	// Targets lists every object id the operation refers to, including ids
	// embedded in reference values.
	Targets() []document.ObjectID
	// Rewrite returns a copy with every referenced id translated.
	Rewrite(t Translator) (Operation, error)
	Apply(doc *document.Document, opts ApplyOptions) (Result, error)

	sealed()
}

// Origin returns the id the emitting document gave to the object an
// operation creates, or zero for operations that create nothing.
func Origin(op Operation) document.ObjectID {
	switch o := op.(type) {
	case AddEntity:
		return o.Entity
	case AddComponent:
		return o.Component
	default:
		return document.ObjectID{}
	}
}

func translate(t Translator, op Kind, id document.ObjectID) (document.ObjectID, error) {
	if id.IsZero() {
		return id, nil
	}
	out, ok := t(id)
	if !ok {
		return document.ObjectID{}, &TranslationError{Op: op, ID: id}
	}
	return out, nil
}

// SetProperty writes a component property.
type SetProperty struct {
	Component document.ObjectID
	Name      string
	Value     document.Value
}

func (SetProperty) Kind() Kind { return KindSetProperty }
func (SetProperty) sealed()    {}

func (o SetProperty) Targets() []document.ObjectID {
	out := []document.ObjectID{o.Component}
	if o.Value.Type == document.ValueObjectRef && !o.Value.Ref.IsZero() {
		out = append(out, o.Value.Ref)
	}
	return out
}

// Rewrite translates the component and object-reference values. Asset
// references point into the shared library and are left untouched.
func (o SetProperty) Rewrite(t Translator) (Operation, error) {
	var err error
	if o.Component, err = translate(t, o.Kind(), o.Component); err != nil {
		return nil, err
	}
	if o.Value.Type == document.ValueObjectRef {
		if o.Value.Ref, err = translate(t, o.Kind(), o.Value.Ref); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o SetProperty) Apply(doc *document.Document, _ ApplyOptions) (Result, error) {
	return Result{}, doc.SetProperty(o.Component, o.Name, o.Value)
}

// AddComponent attaches a component; Component is the id it received in the
// emitting document.
type AddComponent struct {
	Entity        document.ObjectID
	Component     document.ObjectID
	ComponentKind document.ComponentKind
}

func (AddComponent) Kind() Kind { return KindAddComponent }
func (AddComponent) sealed()    {}

func (o AddComponent) Targets() []document.ObjectID {
	return []document.ObjectID{o.Entity}
}

func (o AddComponent) Rewrite(t Translator) (Operation, error) {
	var err error
	if o.Entity, err = translate(t, o.Kind(), o.Entity); err != nil {
		return nil, err
	}
	return o, nil
}

func (o AddComponent) Apply(doc *document.Document, opts ApplyOptions) (Result, error) {
	if opts.Place {
		if err := doc.PlaceComponent(o.Component, o.Entity, o.ComponentKind); err != nil {
			return Result{}, err
		}
		return Result{Created: o.Component}, nil
	}
	id, err := doc.AddComponent(o.Entity, o.ComponentKind)
	return Result{Created: id}, err
}

type DeleteComponent struct {
	Component document.ObjectID
}

func (DeleteComponent) Kind() Kind { return KindDeleteComponent }
func (DeleteComponent) sealed()    {}

func (o DeleteComponent) Targets() []document.ObjectID {
	return []document.ObjectID{o.Component}
}

func (o DeleteComponent) Rewrite(t Translator) (Operation, error) {
	var err error
	if o.Component, err = translate(t, o.Kind(), o.Component); err != nil {
		return nil, err
	}
	return o, nil
}

func (o DeleteComponent) Apply(doc *document.Document, _ ApplyOptions) (Result, error) {
	return Result{}, doc.RemoveComponent(o.Component)
}

// AddEntity creates a child of Parent; Entity is the id it received in the
// emitting document.
type AddEntity struct {
	Parent document.ObjectID
	Entity document.ObjectID
	Label  string
}

func (AddEntity) Kind() Kind { return KindAddEntity }
func (AddEntity) sealed()    {}

func (o AddEntity) Targets() []document.ObjectID {
	return []document.ObjectID{o.Parent}
}

func (o AddEntity) Rewrite(t Translator) (Operation, error) {
	var err error
	if o.Parent, err = translate(t, o.Kind(), o.Parent); err != nil {
		return nil, err
	}
	return o, nil
}

func (o AddEntity) Apply(doc *document.Document, opts ApplyOptions) (Result, error) {
	if opts.Place {
		if err := doc.PlaceEntity(o.Entity, o.Parent, o.Label); err != nil {
			return Result{}, err
		}
		return Result{Created: o.Entity}, nil
	}
	id, err := doc.AddEntity(o.Parent, o.Label)
	return Result{Created: id}, err
}

type DeleteEntity struct {
	Entity document.ObjectID
}

func (DeleteEntity) Kind() Kind { return KindDeleteEntity }
func (DeleteEntity) sealed()    {}

func (o DeleteEntity) Targets() []document.ObjectID {
	return []document.ObjectID{o.Entity}
}

func (o DeleteEntity) Rewrite(t Translator) (Operation, error) {
	var err error
	if o.Entity, err = translate(t, o.Kind(), o.Entity); err != nil {
		return nil, err
	}
	return o, nil
}

func (o DeleteEntity) Apply(doc *document.Document, _ ApplyOptions) (Result, error) {
	return Result{}, doc.RemoveEntity(o.Entity)
}

type SetMode struct {
	Mode document.Mode
}

func (SetMode) Kind() Kind                              { return KindSetMode }
func (SetMode) sealed()                                 {}
func (SetMode) Targets() []document.ObjectID            { return nil }
func (o SetMode) Rewrite(Translator) (Operation, error) { return o, nil }

func (o SetMode) Apply(doc *document.Document, _ ApplyOptions) (Result, error) {
	doc.SetMode(o.Mode)
	return Result{}, nil
}

// SetTransform replaces an entity transform. A nil Scale clears it.
type SetTransform struct {
	Entity   document.ObjectID
	Position document.Vec3
	Rotation document.Quat
	Scale    *document.Vec3
}

func (SetTransform) Kind() Kind { return KindSetTransform }
func (SetTransform) sealed()    {}

func (o SetTransform) Targets() []document.ObjectID {
	return []document.ObjectID{o.Entity}
}

func (o SetTransform) Rewrite(t Translator) (Operation, error) {
	var err error
	if o.Entity, err = translate(t, o.Kind(), o.Entity); err != nil {
		return nil, err
	}
	return o, nil
}

func (o SetTransform) Apply(doc *document.Document, _ ApplyOptions) (Result, error) {
	return Result{}, doc.SetTransform(o.Entity, o.Position, o.Rotation, o.Scale)
}

type SetLabel struct {
	Entity document.ObjectID
	Label  string
}

func (SetLabel) Kind() Kind { return KindSetLabel }
func (SetLabel) sealed()    {}

func (o SetLabel) Targets() []document.ObjectID {
	return []document.ObjectID{o.Entity}
}

func (o SetLabel) Rewrite(t Translator) (Operation, error) {
	var err error
	if o.Entity, err = translate(t, o.Kind(), o.Entity); err != nil {
		return nil, err
	}
	return o, nil
}

func (o SetLabel) Apply(doc *document.Document, _ ApplyOptions) (Result, error) {
	return Result{}, doc.SetLabel(o.Entity, o.Label)
}

type Reparent struct {
	Entity document.ObjectID
	Parent document.ObjectID
}

func (Reparent) Kind() Kind { return KindReparent }
func (Reparent) sealed()    {}

func (o Reparent) Targets() []document.ObjectID {
	return []document.ObjectID{o.Entity, o.Parent}
}

func (o Reparent) Rewrite(t Translator) (Operation, error) {
	var err error
	if o.Entity, err = translate(t, o.Kind(), o.Entity); err != nil {
		return nil, err
	}
	if o.Parent, err = translate(t, o.Kind(), o.Parent); err != nil {
		return nil, err
	}
	return o, nil
}

func (o Reparent) Apply(doc *document.Document, _ ApplyOptions) (Result, error) {
	return Result{}, doc.Reparent(o.Entity, o.Parent)
}
