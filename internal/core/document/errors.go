package document

import (
	"errors"
	"fmt"
)

var (
	ErrTypeMismatch    = errors.New("property type mismatch")
	ErrUnknownProperty = errors.New("unknown property")

	ErrNotFound         = errors.New("object not found")
	ErrInvalidID        = errors.New("invalid object id")
	ErrSlotOccupied     = errors.New("object slot occupied")
	ErrRootExists       = errors.New("document already has a root entity")
	ErrNoRoot           = errors.New("document has no root entity")
	ErrRootRemoval      = errors.New("root entity cannot be removed")
	ErrRootMove         = errors.New("root entity cannot be moved")
	ErrCycle            = errors.New("reparent would create a cycle")
	ErrComponentExists  = errors.New("entity already has a component of this kind")
	ErrInvalidComponent = errors.New("invalid component kind")
	ErrWrongKind        = errors.New("object has a different kind")
)

// PropertyError reports a failed property access on a component.
type PropertyError struct {
	Err       error
	Component ObjectID
	Name      string
	Want      ValueType
	Got       ValueType
}

func (e *PropertyError) Error() string {
	if errors.Is(e.Err, ErrTypeMismatch) {
		return fmt.Sprintf("%s: component %s property %q wants %s, got %s", e.Err, e.Component, e.Name, e.Want, e.Got)
	}
	return fmt.Sprintf("%s: component %s property %q", e.Err, e.Component, e.Name)
}

func (e *PropertyError) Unwrap() error {
	return e.Err
}

func notFound(kind ObjectKind, id ObjectID) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}
