package ibento

import (
	"sync/atomic"
	"time"
)

type (
	// Factory stamps and logs every event it builds. Safe for concurrent use.
	Factory struct {
		logger *Logger
		now    func() time.Time
		seq    atomic.Uint64
	}

	FactoryOption func(f *Factory)

	// variant is satisfied by the value types declared in event.go
	variant[T any] interface {
		Event
		stamp(h Header) T
	}
)

func WithFactoryLogger(logger *Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithClock replaces time.Now as the source of Header.CreatedAt.
func WithClock(now func() time.Time) FactoryOption {
	return func(f *Factory) {
		f.now = now
	}
}

func NewFactory(opts ...FactoryOption) *Factory {
	f := Factory{
		now: time.Now,
	}
	for i := 0; i < len(opts); i++ {
		opts[i](&f)
	}
	return &f
}

// Create stamps the payload ev with a new Header and returns it as an Event.
// It cannot fail.
func Create[T variant[T]](f *Factory, ev T) Event {
	ev = ev.stamp(Header{
		Seq:       f.seq.Add(1),
		CreatedAt: f.now(),
	})
	f.logger.Debug().
		Str("name", variantName(ev)).
		Stringer("kind", ev.ID()).
		Uint64("seq", ev.Header().Seq).
		Log("creating new event")
	return ev
}

func (f *Factory) MouseLeftButtonDown(x, y uint32) Event {
	return Create(f, MouseLeftButtonDown{X: x, Y: y})
}

func (f *Factory) MouseLeftButtonUp(x, y uint32) Event {
	return Create(f, MouseLeftButtonUp{X: x, Y: y})
}

func (f *Factory) MouseMove(x, y uint32) Event {
	return Create(f, MouseMove{X: x, Y: y})
}

func (f *Factory) KeyPress(c byte, x, y uint32) Event {
	return Create(f, KeyPress{Char: c, X: x, Y: y})
}

func (f *Factory) SpecialKeyPress(key, x, y uint32) Event {
	return Create(f, SpecialKeyPress{Key: key, X: x, Y: y})
}

func (f *Factory) WindowReshape(width, height uint32) Event {
	return Create(f, WindowReshape{Width: width, Height: height})
}
