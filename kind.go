package ibento

import (
	"fmt"
	"reflect"
)

// `Kind` represent the identity of an event variant. The set of kinds is closed
// and known by the application, the value of a kind is fixed by the variant itself.
type Kind uint32

const (
	// `KindNone` is never produced, it is the zero value of a `Kind`
	KindNone Kind = iota
	KindMouseLeftButtonDown
	KindMouseLeftButtonUp
	KindMouseMove
	KindKeyPress
	KindSpecialKeyPress
	KindWindowReshape

	kindCount
)

var kindNames = [...]string{
	KindNone:                "none",
	KindMouseLeftButtonDown: "mouse_left_button_down",
	KindMouseLeftButtonUp:   "mouse_left_button_up",
	KindMouseMove:           "mouse_move",
	KindKeyPress:            "key_press",
	KindSpecialKeyPress:     "special_key_press",
	KindWindowReshape:       "window_reshape",
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("unknown(%d)", uint32(k))
}

// `Known` is false for `KindNone` and for any value outside of the enumeration
func (k Kind) Known() bool {
	return k > KindNone && k < kindCount
}

// `Kinds` returns every known kind, in declaration order
func Kinds() []Kind {
	kinds := make([]Kind, 0, kindCount-1)
	for k := KindNone + 1; k < kindCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// `variantName` will generate a unique string based on the pkg path and the name of the type to know the origin of a type
func variantName(e any) string {
	t := reflect.TypeOf(e)
	if t == nil {
		return "<nil>"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return fmt.Sprintf("%v.%v", t.PkgPath(), t.Name())
}
