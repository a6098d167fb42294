package ibento

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWindow records the callbacks registered by Input.Attach, so tests can
// play the part of the native event loop.
type fakeWindow struct {
	button  func(button MouseButton, state ButtonState, x, y int)
	motion  func(x, y int)
	key     func(c byte, x, y int)
	special func(key int, x, y int)
	reshape func(width, height int)
}

func (w *fakeWindow) SetMouseButtonCallback(fn func(button MouseButton, state ButtonState, x, y int)) {
	w.button = fn
}
func (w *fakeWindow) SetMotionCallback(fn func(x, y int))           { w.motion = fn }
func (w *fakeWindow) SetKeyboardCallback(fn func(c byte, x, y int)) { w.key = fn }
func (w *fakeWindow) SetSpecialKeyCallback(fn func(key int, x, y int)) {
	w.special = fn
}
func (w *fakeWindow) SetReshapeCallback(fn func(width, height int)) { w.reshape = fn }

func newTestInput(t *testing.T, opts ...InputOption) (*fakeWindow, *Queue, *Queue) {
	t.Helper()
	runner, ui := NewQueue("RUNNER QUEUE"), NewQueue("UI QUEUE")
	in := NewInput(NewFactory(), append([]InputOption{WithSinks(runner, ui)}, opts...)...)
	var w fakeWindow
	in.Attach(&w)
	require.NotNil(t, w.button)
	require.NotNil(t, w.motion)
	require.NotNil(t, w.key)
	require.NotNil(t, w.special)
	require.NotNil(t, w.reshape)
	return &w, runner, ui
}

func drain(q *Queue) []Event {
	var batch []Event
	q.MoveEvents(&batch)
	return batch
}

func TestNewInput_nilFactory(t *testing.T) {
	assert.PanicsWithValue(t, `ibento: nil factory`, func() { NewInput(nil) })
}

func TestInput_leftClickBothQueues(t *testing.T) {
	w, runner, ui := newTestInput(t)

	w.button(ButtonLeft, ButtonDown, 120, 45)
	w.button(ButtonLeft, ButtonUp, 121, 46)

	r, u := drain(runner), drain(ui)
	require.Equal(t, []Kind{KindMouseLeftButtonDown, KindMouseLeftButtonUp}, kindsOf(r))
	require.Equal(t, kindsOf(r), kindsOf(u))
	assert.Equal(t, r[0].Header().Seq, u[0].Header().Seq, "same event on both queues")

	down := As[MouseLeftButtonDown](r[0])
	assert.Equal(t, [2]uint32{120, 45}, [2]uint32{down.X, down.Y})
	up := As[MouseLeftButtonUp](r[1])
	assert.Equal(t, [2]uint32{121, 46}, [2]uint32{up.X, up.Y})
}

func TestInput_viewportOffset(t *testing.T) {
	w, runner, _ := newTestInput(t, WithViewport(Viewport{XFrom: 100, YFrom: 50}))

	w.button(ButtonLeft, ButtonDown, 10, 20)
	w.motion(1, 2)

	events := drain(runner)
	require.Len(t, events, 2)
	down := As[MouseLeftButtonDown](events[0])
	assert.Equal(t, [2]uint32{110, 70}, [2]uint32{down.X, down.Y})
	move := As[MouseMove](events[1])
	assert.Equal(t, [2]uint32{101, 52}, [2]uint32{move.X, move.Y})
}

func TestInput_unsupportedButton(t *testing.T) {
	logger, buf := newTestLogger(t)
	runner, ui := NewQueue("a"), NewQueue("b")
	in := NewInput(NewFactory(), WithSinks(runner, ui), WithInputLogger(logger))

	in.MouseButton(ButtonRight, ButtonDown, 10, 10)
	in.MouseButton(ButtonMiddle, ButtonDown, 10, 10)

	assert.True(t, runner.Empty())
	assert.True(t, ui.Empty())
	assert.Equal(t, 2, buf.Count("unsupported mouse click button"))
	assert.Contains(t, buf.String(), `"button":"right"`)
	assert.Equal(t, MouseState{Left: ButtonUp, Right: ButtonDown}, in.MouseState())

	in.MouseButton(ButtonLeft, ButtonDown, 0, 0)
	assert.Equal(t, MouseState{Left: ButtonDown, Right: ButtonDown}, in.MouseState())
}

func TestInput_keys(t *testing.T) {
	w, runner, ui := newTestInput(t, WithViewport(Viewport{XFrom: 100, YFrom: 100}))

	w.key('w', 3, 4)
	w.special(1, 5, 6)

	events := drain(runner)
	require.Equal(t, []Kind{KindKeyPress, KindSpecialKeyPress}, kindsOf(events))
	key := As[KeyPress](events[0])
	assert.Equal(t, byte('w'), key.Char)
	assert.Equal(t, [2]uint32{3, 4}, [2]uint32{key.X, key.Y}, "keyboard coordinates are not translated")
	special := As[SpecialKeyPress](events[1])
	assert.Equal(t, uint32(1), special.Key)
	assert.Len(t, drain(ui), 2)
}

func TestInput_arrowKeysMoveViewport(t *testing.T) {
	runner, ui := NewQueue("a"), NewQueue("b")
	in := NewInput(NewFactory(), WithSinks(runner, ui))

	in.SpecialKeyPress(KeyRight, 0, 0)
	in.SpecialKeyPress(KeyDown, 0, 0)
	in.SpecialKeyPress(KeyDown, 0, 0)
	assert.Equal(t, Viewport{XFrom: 50, YFrom: 100}, in.Viewport())

	in.SpecialKeyPress(KeyLeft, 0, 0)
	in.SpecialKeyPress(KeyLeft, 0, 0)
	in.SpecialKeyPress(KeyUp, 0, 0)
	assert.Equal(t, Viewport{XFrom: 0, YFrom: 50}, in.Viewport(), "origin never goes negative")

	// every special key is still published
	assert.Len(t, drain(runner), 6)
	assert.Len(t, drain(ui), 6)

	in.SpecialKeyPress(1, 0, 0)
	assert.Equal(t, Viewport{XFrom: 0, YFrom: 50}, in.Viewport())
}

func TestInput_negativeCoordinates(t *testing.T) {
	w, runner, _ := newTestInput(t)

	w.motion(-5, 7)
	w.key('a', -1, -1)

	events := drain(runner)
	require.Len(t, events, 2)
	move := As[MouseMove](events[0])
	assert.Equal(t, [2]uint32{0, 7}, [2]uint32{move.X, move.Y})
	key := As[KeyPress](events[1])
	assert.Equal(t, [2]uint32{0, 0}, [2]uint32{key.X, key.Y})
}

func TestInput_reshape(t *testing.T) {
	w, runner, ui := newTestInput(t)

	w.reshape(800, 600)

	events := drain(runner)
	require.Len(t, events, 1)
	ev := As[WindowReshape](events[0])
	assert.Equal(t, [2]uint32{800, 600}, [2]uint32{ev.Width, ev.Height})
	assert.Len(t, drain(ui), 1)
}

func TestInput_reshapeUpdatesViewport(t *testing.T) {
	in := NewInput(NewFactory(), WithViewport(Viewport{XFrom: 50, YFrom: 0}))
	in.Reshape(1024, 768)
	assert.Equal(t, Viewport{XFrom: 50, Width: 1024, Height: 768}, in.Viewport())
}

func TestInput_motionThrottle(t *testing.T) {
	logger, buf := newTestLogger(t)
	runner := NewQueue("test")
	in := NewInput(NewFactory(),
		WithSinks(runner),
		WithInputLogger(logger),
		WithMotionRates(map[time.Duration]int{time.Minute: 2}),
	)

	for i := 0; i < 5; i++ {
		in.MouseMove(i, i)
	}

	assert.Equal(t, 2, runner.Size())
	assert.Equal(t, 3, buf.Count("mouse motion throttled"))

	// clicks are never throttled
	in.MouseButton(ButtonLeft, ButtonDown, 0, 0)
	assert.Equal(t, 3, runner.Size())
}

func TestInput_noMotionRates(t *testing.T) {
	runner := NewQueue("test")
	in := NewInput(NewFactory(), WithSinks(runner), WithMotionRates(nil))

	for i := 0; i < 100; i++ {
		in.MouseMove(i, i)
	}
	assert.Equal(t, 100, runner.Size())
}

func TestMouseButton_String(t *testing.T) {
	assert.Equal(t, "left", ButtonLeft.String())
	assert.Equal(t, "middle", ButtonMiddle.String())
	assert.Equal(t, "right", ButtonRight.String())
	assert.Equal(t, "unknown", MouseButton(7).String())
	assert.Equal(t, "down", ButtonDown.String())
	assert.Equal(t, "up", ButtonUp.String())
}
