package ibento

import (
	"math"
	"sync"
	"time"

	catrate "github.com/joeycumines/go-catrate"
)

// ViewportShift is how far an arrow key moves the viewport.
const ViewportShift = 50

// Special key codes, as reported by GLUT.
const (
	KeyLeft  = 100
	KeyUp    = 101
	KeyRight = 102
	KeyDown  = 103
)

type (
	MouseButton int

	ButtonState int

	// MouseState tracks the last known state of the buttons.
	MouseState struct {
		Left  ButtonState
		Right ButtonState
	}

	// Viewport is the window onto the world, pointer coordinates are
	// translated by its origin.
	Viewport struct {
		XFrom, YFrom  int32
		Width, Height uint32
	}

	// Window is the windowing collaborator. Implementations invoke the
	// registered callbacks from their native event dispatch.
	Window interface {
		SetMouseButtonCallback(fn func(button MouseButton, state ButtonState, x, y int))
		SetMotionCallback(fn func(x, y int))
		SetKeyboardCallback(fn func(c byte, x, y int))
		SetSpecialKeyCallback(fn func(key int, x, y int))
		SetReshapeCallback(fn func(width, height int))
	}

	// Input translates native input into events, pushed on every sink.
	Input struct {
		factory  *Factory
		logger   *Logger
		sinks    []*Queue
		motion   *catrate.Limiter
		mu       sync.Mutex
		viewport Viewport
		mouse    MouseState
	}

	InputOption func(in *Input)
)

const (
	ButtonLeft MouseButton = iota
	ButtonMiddle
	ButtonRight
)

const (
	ButtonUp ButtonState = iota
	ButtonDown
)

func (b MouseButton) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonMiddle:
		return "middle"
	case ButtonRight:
		return "right"
	default:
		return "unknown"
	}
}

func (s ButtonState) String() string {
	if s == ButtonDown {
		return "down"
	}
	return "up"
}

func WithInputLogger(logger *Logger) InputOption {
	return func(in *Input) {
		in.logger = logger
	}
}

// WithSinks appends queues every produced event is pushed on, in order.
func WithSinks(queues ...*Queue) InputOption {
	return func(in *Input) {
		in.sinks = append(in.sinks, queues...)
	}
}

// WithMotionRates throttles mouse motion, e.g. {time.Second: 120}.
// Throttled samples are logged, at trace level.
func WithMotionRates(rates map[time.Duration]int) InputOption {
	return func(in *Input) {
		if len(rates) == 0 {
			in.motion = nil
			return
		}
		in.motion = catrate.NewLimiter(rates)
	}
}

func WithViewport(v Viewport) InputOption {
	return func(in *Input) {
		in.viewport = v
	}
}

func NewInput(factory *Factory, opts ...InputOption) *Input {
	if factory == nil {
		panic(`ibento: nil factory`)
	}
	in := Input{
		factory: factory,
	}
	for i := 0; i < len(opts); i++ {
		opts[i](&in)
	}
	return &in
}

// Attach registers the callbacks of the input with w.
func (in *Input) Attach(w Window) {
	w.SetMouseButtonCallback(in.MouseButton)
	w.SetMotionCallback(in.MouseMove)
	w.SetKeyboardCallback(in.KeyPress)
	w.SetSpecialKeyCallback(in.SpecialKeyPress)
	w.SetReshapeCallback(in.Reshape)
}

func (in *Input) Viewport() Viewport {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.viewport
}

func (in *Input) MouseState() MouseState {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.mouse
}

func (in *Input) MouseButton(button MouseButton, state ButtonState, x, y int) {
	in.mu.Lock()
	switch button {
	case ButtonLeft:
		in.mouse.Left = state
	case ButtonRight:
		in.mouse.Right = state
	}
	wx, wy := in.world(x, y)
	in.mu.Unlock()

	if button != ButtonLeft {
		in.logger.Debug().
			Stringer("button", button).
			Stringer("state", state).
			Log("unsupported mouse click button")
		return
	}

	if state == ButtonDown {
		in.publish(in.factory.MouseLeftButtonDown(wx, wy))
	} else {
		in.publish(in.factory.MouseLeftButtonUp(wx, wy))
	}
}

func (in *Input) MouseMove(x, y int) {
	if in.motion != nil {
		if next, ok := in.motion.Allow(KindMouseMove); !ok {
			in.logger.Trace().
				Int("x", x).
				Int("y", y).
				Time("next", next).
				Log("mouse motion throttled")
			return
		}
	}
	in.mu.Lock()
	wx, wy := in.world(x, y)
	in.mu.Unlock()
	in.publish(in.factory.MouseMove(wx, wy))
}

func (in *Input) KeyPress(c byte, x, y int) {
	in.publish(in.factory.KeyPress(c, clampU32(x), clampU32(y)))
}

func (in *Input) SpecialKeyPress(key int, x, y int) {
	in.publish(in.factory.SpecialKeyPress(clampU32(key), clampU32(x), clampU32(y)))

	dx, dy := arrowShift(key)
	if dx == 0 && dy == 0 {
		return
	}
	in.mu.Lock()
	in.viewport.XFrom = max(0, in.viewport.XFrom+dx)
	in.viewport.YFrom = max(0, in.viewport.YFrom+dy)
	v := in.viewport
	in.mu.Unlock()
	in.logger.Debug().
		Int("x_from", int(v.XFrom)).
		Int("y_from", int(v.YFrom)).
		Log("viewport moved")
}

func (in *Input) Reshape(width, height int) {
	w, h := clampU32(width), clampU32(height)
	in.mu.Lock()
	in.viewport.Width, in.viewport.Height = w, h
	in.mu.Unlock()
	in.publish(in.factory.WindowReshape(w, h))
}

func (in *Input) publish(e Event) {
	Broadcast(e, in.sinks...)
}

// world must be called with mu held.
func (in *Input) world(x, y int) (uint32, uint32) {
	return clampU32(int(in.viewport.XFrom) + x), clampU32(int(in.viewport.YFrom) + y)
}

func arrowShift(key int) (dx, dy int32) {
	switch key {
	case KeyLeft:
		return -ViewportShift, 0
	case KeyRight:
		return ViewportShift, 0
	case KeyUp:
		return 0, -ViewportShift
	case KeyDown:
		return 0, ViewportShift
	}
	return 0, 0
}

func clampU32(v int) uint32 {
	if v < 0 {
		return 0
	}
	if uint64(v) > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}
