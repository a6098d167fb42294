package ibento

import (
	"sync"

	"github.com/davidroman0O/multigroup"
)

type (
	// Handler reacts to one event. It is called on the goroutine running
	// Dispatch, in FIFO order.
	Handler interface {
		Handle(e Event)
	}

	HandlerFunc func(e Event)

	// Dispatcher drains a queue and resolves every event to the handler of
	// its kind. It keeps no state across calls to Dispatch, besides its
	// handler table.
	Dispatcher struct {
		name     string
		logger   *Logger
		mu       sync.RWMutex
		handlers map[Kind]Handler
	}

	DispatcherOption func(d *Dispatcher)
)

func (fn HandlerFunc) Handle(e Event) { fn(e) }

func WithDispatcherLogger(logger *Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithoutDefaultHandlers starts the dispatcher with an empty handler table,
// every kind is unroutable until registered.
func WithoutDefaultHandlers() DispatcherOption {
	return func(d *Dispatcher) {
		d.handlers = make(map[Kind]Handler)
	}
}

// NewDispatcher returns a dispatcher where every known kind is handled by
// logging its payload, see LoggingHandlers.
func NewDispatcher(name string, opts ...DispatcherOption) *Dispatcher {
	d := Dispatcher{
		name: name,
	}
	for i := 0; i < len(opts); i++ {
		opts[i](&d)
	}
	if d.handlers == nil {
		d.handlers = LoggingHandlers(d.logger)
	}
	return &d
}

// Handle replaces the handler of kind. A nil handler removes it.
func (d *Dispatcher) Handle(kind Kind, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h == nil {
		delete(d.handlers, kind)
		return
	}
	d.handlers[kind] = h
}

// On registers fn as the handler of the kind of T, recovering the payload
// with As.
func On[T Event](d *Dispatcher, fn func(e T)) {
	var zero T
	d.Handle(zero.ID(), HandlerFunc(func(e Event) {
		fn(As[T](e))
	}))
}

func (d *Dispatcher) handler(kind Kind) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[kind]
	return h, ok
}

// Dispatch drains q once, and handles the batch in FIFO order. It returns
// the number of events that were handled, unroutable events are logged and
// skipped. Handler panics are not recovered.
func (d *Dispatcher) Dispatch(q *Queue) int {
	if q == nil {
		panic(`ibento: nil queue`)
	}
	if q.Empty() {
		return 0
	}

	var batch []Event
	if q.MoveEvents(&batch) == 0 {
		return 0
	}

	d.summarize(q, batch)

	var handled int
	for i, e := range batch {
		h, ok := d.handler(e.ID())
		if !ok {
			d.logger.Warning().
				Str("dispatcher", d.name).
				Str("queue", q.Label()).
				Stringer("kind", e.ID()).
				Str("type", variantName(e)).
				Log("unable to process the event")
		} else {
			h.Handle(e)
			handled++
		}
		batch[i] = nil
	}

	return handled
}

func (d *Dispatcher) summarize(q *Queue, batch []Event) {
	b := d.logger.Debug()
	if !b.Enabled() {
		return
	}
	kindSelector := func(e Event) (string, string) { return "Kind", e.ID().String() }
	groups := multigroup.By(batch, kindSelector)
	b = b.Str("dispatcher", d.name).
		Str("queue", q.Label()).
		Int("count", len(batch))
	for i := 0; i < len(groups); i++ {
		b = b.Int(string(groups[i].Keys[0].Value), len(groups[i].Items))
	}
	b.Log("dispatching batch")
}

// LoggingHandlers returns a handler for every known kind, logging the
// payload of the event.
func LoggingHandlers(logger *Logger) map[Kind]Handler {
	return map[Kind]Handler{
		KindMouseLeftButtonDown: HandlerFunc(func(e Event) {
			ev := As[MouseLeftButtonDown](e)
			logger.Info().
				Uint64("x", uint64(ev.X)).
				Uint64("y", uint64(ev.Y)).
				Log("handling left mouse button down")
		}),
		KindMouseLeftButtonUp: HandlerFunc(func(e Event) {
			ev := As[MouseLeftButtonUp](e)
			logger.Info().
				Uint64("x", uint64(ev.X)).
				Uint64("y", uint64(ev.Y)).
				Log("handling left mouse button up")
		}),
		KindMouseMove: HandlerFunc(func(e Event) {
			ev := As[MouseMove](e)
			logger.Trace().
				Uint64("x", uint64(ev.X)).
				Uint64("y", uint64(ev.Y)).
				Log("handling mouse move")
		}),
		KindKeyPress: HandlerFunc(func(e Event) {
			ev := As[KeyPress](e)
			logger.Info().
				Str("char", string(rune(ev.Char))).
				Uint64("x", uint64(ev.X)).
				Uint64("y", uint64(ev.Y)).
				Log("keyboard input")
		}),
		KindSpecialKeyPress: HandlerFunc(func(e Event) {
			ev := As[SpecialKeyPress](e)
			logger.Info().
				Uint64("key", uint64(ev.Key)).
				Uint64("x", uint64(ev.X)).
				Uint64("y", uint64(ev.Y)).
				Log("keyboard special input")
		}),
		KindWindowReshape: HandlerFunc(func(e Event) {
			ev := As[WindowReshape](e)
			logger.Info().
				Uint64("width", uint64(ev.Width)).
				Uint64("height", uint64(ev.Height)).
				Log("window reshape")
		}),
	}
}
