package document

import "fmt"

// ObjectID addresses an object inside an arena. Slots are reused, so every
// reuse bumps the generation and stale ids stop resolving.
// The zero value refers to no object.
type ObjectID struct {
	Index      uint32
	Generation uint32
}

// Pack folds the id into a single integer suitable for the wire.
func (id ObjectID) Pack() uint64 {
	return uint64(id.Generation)<<32 | uint64(id.Index)
}

// Unpack is the inverse of ObjectID.Pack.
func Unpack(v uint64) ObjectID {
	return ObjectID{Index: uint32(v), Generation: uint32(v >> 32)}
}

func (id ObjectID) IsZero() bool {
	return id.Index == 0 && id.Generation == 0
}

func (id ObjectID) String() string {
	return fmt.Sprintf("%d@%d", id.Index, id.Generation)
}

type slot[T any] struct {
	generation uint32
	live       bool
	value      T
}

// arena stores values addressed by generational indices. Index 0 is never
// handed out so that the zero ObjectID stays invalid.
type arena[T any] struct {
	slots []slot[T]
	free  []uint32
	live  int
}

func newArena[T any]() *arena[T] {
	return &arena[T]{slots: make([]slot[T], 1)}
}

func (a *arena[T]) alloc(value T) ObjectID {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, slot[T]{})
		idx = uint32(len(a.slots) - 1)
	}

	s := &a.slots[idx]
	s.generation++
	s.live = true
	s.value = value
	a.live++

	return ObjectID{Index: idx, Generation: s.generation}
}

// place stores value at exactly id. The slot must not be live and its
// current generation must not be newer than the requested one.
func (a *arena[T]) place(id ObjectID, value T) error {
	if id.Index == 0 || id.Generation == 0 {
		return fmt.Errorf("%w: %s", ErrInvalidID, id)
	}
	for uint32(len(a.slots)) <= id.Index {
		a.slots = append(a.slots, slot[T]{})
		a.free = append(a.free, uint32(len(a.slots)-1))
	}

	s := &a.slots[id.Index]
	if s.live {
		return fmt.Errorf("%w: %s", ErrSlotOccupied, id)
	}
	if s.generation > id.Generation {
		return fmt.Errorf("%w: %s is older than generation %d", ErrInvalidID, id, s.generation)
	}

	for i, idx := range a.free {
		if idx == id.Index {
			a.free = append(a.free[:i], a.free[i+1:]...)
			break
		}
	}

	s.generation = id.Generation
	s.live = true
	s.value = value
	a.live++

	return nil
}

func (a *arena[T]) get(id ObjectID) (T, bool) {
	var zero T
	if id.Index == 0 || int(id.Index) >= len(a.slots) {
		return zero, false
	}
	s := &a.slots[id.Index]
	if !s.live || s.generation != id.Generation {
		return zero, false
	}
	return s.value, true
}

func (a *arena[T]) release(id ObjectID) bool {
	if _, ok := a.get(id); !ok {
		return false
	}
	s := &a.slots[id.Index]
	var zero T
	s.live = false
	s.value = zero
	a.free = append(a.free, id.Index)
	a.live--
	return true
}

// each visits live values in slot order.
func (a *arena[T]) each(fn func(ObjectID, T) bool) {
	for i := 1; i < len(a.slots); i++ {
		s := &a.slots[i]
		if !s.live {
			continue
		}
		if !fn(ObjectID{Index: uint32(i), Generation: s.generation}, s.value) {
			return
		}
	}
}
