package ibento

import (
	"fmt"
	"time"
)

type (
	// Event is a discrete occurrence, identified by its Kind. The kind of a
	// variant is fixed by its ID method, so a variant can't be mis-tagged.
	//
	// The interface is sealed, variants embed base.
	Event interface {
		ID() Kind
		Header() Header
		isEvent()
	}

	// Header is stamped by the Factory, for diagnostics only.
	Header struct {
		Seq       uint64
		CreatedAt time.Time
	}

	base struct {
		hdr Header
	}

	// MouseLeftButtonDown is the left button being pressed, in world coordinates.
	MouseLeftButtonDown struct {
		base
		X, Y uint32
	}

	// MouseLeftButtonUp is the left button being released, in world coordinates.
	MouseLeftButtonUp struct {
		base
		X, Y uint32
	}

	MouseMove struct {
		base
		X, Y uint32
	}

	// KeyPress is a printable key, with the pointer position at the time.
	KeyPress struct {
		base
		Char byte
		X, Y uint32
	}

	// SpecialKeyPress is a non printable key (arrows, function keys...).
	SpecialKeyPress struct {
		base
		Key  uint32
		X, Y uint32
	}

	WindowReshape struct {
		base
		Width, Height uint32
	}

	// CastError is the panic value of As, when the event isn't the
	// requested variant.
	CastError struct {
		Want Kind
		Got  Kind
		Type string
	}
)

func (b base) Header() Header { return b.hdr }

func (base) isEvent() {}

func (MouseLeftButtonDown) ID() Kind { return KindMouseLeftButtonDown }
func (MouseLeftButtonUp) ID() Kind   { return KindMouseLeftButtonUp }
func (MouseMove) ID() Kind           { return KindMouseMove }
func (KeyPress) ID() Kind            { return KindKeyPress }
func (SpecialKeyPress) ID() Kind     { return KindSpecialKeyPress }
func (WindowReshape) ID() Kind       { return KindWindowReshape }

func (e MouseLeftButtonDown) stamp(h Header) MouseLeftButtonDown {
	e.hdr = h
	return e
}

func (e MouseLeftButtonUp) stamp(h Header) MouseLeftButtonUp {
	e.hdr = h
	return e
}

func (e MouseMove) stamp(h Header) MouseMove {
	e.hdr = h
	return e
}

func (e KeyPress) stamp(h Header) KeyPress {
	e.hdr = h
	return e
}

func (e SpecialKeyPress) stamp(h Header) SpecialKeyPress {
	e.hdr = h
	return e
}

func (e WindowReshape) stamp(h Header) WindowReshape {
	e.hdr = h
	return e
}

func (x *CastError) Error() string {
	return fmt.Sprintf("ibento: cannot cast %s event (%s) to %s", x.Got, x.Type, x.Want)
}

// As recovers the concrete variant T of e. The kind reported by e must be the
// kind of T, and e must hold a T, otherwise As panics with a *CastError.
// A nil event also panics.
func As[T Event](e Event) T {
	var want T
	if e == nil {
		panic(&CastError{Want: want.ID(), Got: KindNone, Type: "<nil>"})
	}
	if got := e.ID(); got != want.ID() {
		panic(&CastError{Want: want.ID(), Got: got, Type: variantName(e)})
	}
	v, ok := e.(T)
	if !ok {
		panic(&CastError{Want: want.ID(), Got: e.ID(), Type: variantName(e)})
	}
	return v
}
