package ibento

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

const (
	GameLoopPID  = "gameloop"
	FrameLoopPID = "frameloop"
)

type (
	// Shell wires the queues, the input producer and the two consumer loops
	// of the application.
	Shell struct {
		config      Config
		logger      *Logger
		factory     *Factory
		runnerQueue *Queue
		uiQueue     *Queue
		input       *Input
		game        *Dispatcher
		ui          *Dispatcher
		runner      *Runner[ShellStats]
	}

	ShellOption func(s *shellOptions)

	shellOptions struct {
		logger *Logger
		window Window
		clock  func() time.Time
	}

	// ShellStats is the global state of the shell's processes.
	ShellStats struct {
		Ticks   uint64
		Frames  uint64
		Handled uint64
	}

	// Pause and Resume are the messages understood by the shell's loops.
	Pause  struct{}
	Resume struct{}

	// loopProcess drains one queue at a fixed interval.
	loopProcess struct {
		name       string
		queue      *Queue
		dispatcher *Dispatcher
		interval   time.Duration
		logger     *Logger
		paused     atomic.Bool
		count      func(s ShellStats, handled int) ShellStats
	}
)

func WithShellLogger(logger *Logger) ShellOption {
	return func(s *shellOptions) {
		s.logger = logger
	}
}

// WithWindow attaches the shell's input to w.
func WithWindow(w Window) ShellOption {
	return func(s *shellOptions) {
		s.window = w
	}
}

func WithShellClock(now func() time.Time) ShellOption {
	return func(s *shellOptions) {
		s.clock = now
	}
}

func NewShell(cfg Config, opts ...ShellOption) (*Shell, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o shellOptions
	for i := 0; i < len(opts); i++ {
		opts[i](&o)
	}
	if o.logger == nil {
		level, err := ParseLevel(cfg.LoggingLevel)
		if err != nil {
			return nil, err
		}
		o.logger = NewLogger(os.Stderr, level)
	}

	rates, err := cfg.motionRates()
	if err != nil {
		return nil, err
	}

	factoryOpts := []FactoryOption{WithFactoryLogger(o.logger)}
	if o.clock != nil {
		factoryOpts = append(factoryOpts, WithClock(o.clock))
	}

	s := Shell{
		config:      cfg,
		logger:      o.logger,
		factory:     NewFactory(factoryOpts...),
		runnerQueue: NewQueue(cfg.RunnerQueue, WithQueueLogger(o.logger), WithCapacityHint(cfg.QueueCapacity)),
		uiQueue:     NewQueue(cfg.UIQueue, WithQueueLogger(o.logger), WithCapacityHint(cfg.QueueCapacity)),
		game:        NewDispatcher(GameLoopPID, WithDispatcherLogger(o.logger)),
		ui:          NewDispatcher(FrameLoopPID, WithDispatcherLogger(o.logger)),
		runner:      NewRunner(ShellStats{}, WithRunnerLogger[ShellStats](o.logger)),
	}

	s.input = NewInput(s.factory,
		WithInputLogger(o.logger),
		WithSinks(s.runnerQueue, s.uiQueue),
		WithMotionRates(rates),
	)
	if o.window != nil {
		s.input.Attach(o.window)
	}

	if err := s.runner.RegisterProcess(GameLoopPID, ProcessConfig[ShellStats]{
		Process: &loopProcess{
			name:       GameLoopPID,
			queue:      s.runnerQueue,
			dispatcher: s.game,
			interval:   cfg.TickInterval.Duration,
			logger:     o.logger,
			count: func(st ShellStats, handled int) ShellStats {
				st.Ticks++
				st.Handled += uint64(handled)
				return st
			},
		},
	}); err != nil {
		return nil, err
	}

	if err := s.runner.RegisterProcess(FrameLoopPID, ProcessConfig[ShellStats]{
		Process: &loopProcess{
			name:       FrameLoopPID,
			queue:      s.uiQueue,
			dispatcher: s.ui,
			interval:   cfg.FrameInterval.Duration,
			logger:     o.logger,
			count: func(st ShellStats, handled int) ShellStats {
				st.Frames++
				st.Handled += uint64(handled)
				return st
			},
		},
	}); err != nil {
		return nil, err
	}

	return &s, nil
}

func (s *Shell) Input() *Input { return s.input }

func (s *Shell) Factory() *Factory { return s.factory }

// Queues returns the runner queue and the UI queue.
func (s *Shell) Queues() (runner, ui *Queue) { return s.runnerQueue, s.uiQueue }

// Dispatchers returns the game loop and the frame loop dispatchers, handlers
// should be registered before Start.
func (s *Shell) Dispatchers() (game, ui *Dispatcher) { return s.game, s.ui }

func (s *Shell) Stats() ShellStats { return s.runner.Global() }

func (s *Shell) Start() <-chan error {
	s.logger.Info().Log("starting the game runner")
	return s.runner.Start()
}

// Pause stops pid from draining its queue, until Resume.
func (s *Shell) Pause(pid string) error {
	return s.runner.Send("shell", pid, Pause{})
}

func (s *Shell) Resume(pid string) error {
	return s.runner.Send("shell", pid, Resume{})
}

// Stop waits for both loops to exit, then discards whatever input is left.
func (s *Shell) Stop() {
	s.runner.Stop()
	discarded := s.runnerQueue.Clear() + s.uiQueue.Clear()
	s.logger.Info().Int("discarded", discarded).Log("shell stopped")
}

func (p *loopProcess) Init(ctx context.Context, pc *ProcessContext[ShellStats]) error {
	p.logger.Info().
		Str("pid", pc.PID()).
		Str("queue", p.queue.Label()).
		Dur("interval", p.interval).
		Log("entering the loop")
	return nil
}

func (p *loopProcess) Run(ctx context.Context, pc *ProcessContext[ShellStats]) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-pc.Shutdown():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if p.paused.Load() {
				continue
			}
			handled := p.dispatcher.Dispatch(p.queue)
			pc.Mutate(func(st ShellStats) ShellStats {
				return p.count(st, handled)
			})
		}
	}
}

func (p *loopProcess) Deinit(ctx context.Context, pc *ProcessContext[ShellStats]) error {
	p.logger.Info().
		Str("pid", pc.PID()).
		Int("pending", p.queue.Size()).
		Log("leaving the loop")
	return nil
}

func (p *loopProcess) Received(from string, data any) error {
	switch data.(type) {
	case Pause:
		p.paused.Store(true)
	case Resume:
		p.paused.Store(false)
	default:
		return fmt.Errorf("%s: unexpected message %T from %s", p.name, data, from)
	}
	p.logger.Debug().Str("pid", p.name).Str("from", from).Bool("paused", p.paused.Load()).Log("loop message")
	return nil
}
