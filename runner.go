package ibento

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/enriquebris/goconcurrentqueue"
)

var (
	ErrProcessExists   = errors.New("ibento: process with pid already exists")
	ErrProcessNotFound = errors.New("ibento: no process found with pid")
	ErrRunnerStopped   = errors.New("ibento: runner stopped")
	ErrProcessStopped  = errors.New("ibento: process stopped")
)

// Process is an interface that describes a generic process with lifecycle methods
// and communication capabilities.
type Process[T any] interface {
	Init(ctx context.Context, pc *ProcessContext[T]) error
	Run(ctx context.Context, pc *ProcessContext[T]) error
	Deinit(ctx context.Context, pc *ProcessContext[T]) error
	// Received is called from the process' mailbox goroutine, never
	// concurrently with itself.
	Received(from string, data any) error
}

type ProcessConfig[T any] struct {
	Process               Process[T]
	ShouldRecover         bool
	Timeout               time.Duration // General timeout for all phases if specific ones are not set.
	InitTimeout           time.Duration
	RunTimeout            time.Duration
	DeinitTimeout         time.Duration
	InitMaxRetries        int
	RunMaxRetries         int
	DeinitMaxRetries      int
	InitRetryDelay        time.Duration
	RunRetryDelay         time.Duration
	DeinitRetryDelay      time.Duration
	MessageSendMaxRetries int
	MessageSendRetryDelay time.Duration
}

// ProcessContext is what a process sees of the runner.
type ProcessContext[T any] struct {
	pid      string
	runner   *Runner[T]
	shutdown chan struct{}
	cancel   context.CancelFunc
}

type (
	// Runner manages processes, global state, and communication between processes.
	Runner[T any] struct {
		logger       *Logger
		processes    map[string]ProcessConfig[T]
		mailboxes    map[string]*goconcurrentqueue.FIFO
		state        T
		stateMu      sync.Mutex
		shutdownChs  map[string]chan struct{}
		shutdownSent map[string]bool
		stopped      map[string]bool
		errored      map[string]bool
		errCh        chan error
		active       int
		started      bool
		stopping     bool
		closed       bool
		wg           sync.WaitGroup
	}

	RunnerOption[T any] func(r *Runner[T])

	message struct {
		from string
		data any
	}
)

func WithRunnerLogger[T any](logger *Logger) RunnerOption[T] {
	return func(r *Runner[T]) {
		r.logger = logger
	}
}

// WithErrorBuffer sets the capacity of the channel returned by Start.
// Errors reported while it is full are logged, and dropped.
func WithErrorBuffer[T any](n int) RunnerOption[T] {
	return func(r *Runner[T]) {
		if n > 0 {
			r.errCh = make(chan error, n)
		}
	}
}

// NewRunner creates a new Runner.
func NewRunner[T any](initialState T, opts ...RunnerOption[T]) *Runner[T] {
	r := &Runner[T]{
		processes:    make(map[string]ProcessConfig[T]),
		mailboxes:    make(map[string]*goconcurrentqueue.FIFO),
		shutdownChs:  make(map[string]chan struct{}),
		shutdownSent: make(map[string]bool),
		stopped:      make(map[string]bool),
		errored:      make(map[string]bool),
		state:        initialState,
	}
	for i := 0; i < len(opts); i++ {
		opts[i](r)
	}
	if r.errCh == nil {
		r.errCh = make(chan error, 64)
	}
	return r
}

// State reports whether pid was asked to shut down, has stopped, and has
// errored.
func (r *Runner[T]) State(pid string) (shutdownSent, stopped, errored bool, err error) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	if _, exists := r.processes[pid]; !exists {
		return false, false, false, fmt.Errorf("%w: %s", ErrProcessNotFound, pid)
	}

	return r.shutdownSent[pid], r.stopped[pid], r.errored[pid], nil
}

// Global returns the global state shared by the processes.
func (r *Runner[T]) Global() T {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.state
}

func (r *Runner[T]) Processes() []string {
	r.stateMu.Lock()
	keys := make([]string, 0, len(r.processes))
	for k := range r.processes {
		keys = append(keys, k)
	}
	r.stateMu.Unlock()

	return keys
}

// Send queues data in the mailbox of pid. Delivery is asynchronous. A
// process asked to shut down no longer accepts messages.
func (r *Runner[T]) Send(frompid string, pid string, data any) error {
	r.stateMu.Lock()
	mailbox, exists := r.mailboxes[pid]
	stopping := r.stopping || r.closed
	stopped := r.shutdownSent[pid] || r.stopped[pid]
	r.stateMu.Unlock()

	switch {
	case !exists:
		return fmt.Errorf("%w: %s", ErrProcessNotFound, pid)
	case stopping:
		return fmt.Errorf("%w: cannot send to %s", ErrRunnerStopped, pid)
	case stopped:
		return fmt.Errorf("%w: %s", ErrProcessStopped, pid)
	}

	if err := mailbox.Enqueue(message{from: frompid, data: data}); err != nil {
		return fmt.Errorf("error sending message to %s: %w", pid, err)
	}
	r.logger.Trace().Str("from", frompid).Str("pid", pid).Log("sending message")
	return nil
}

func withDefaults[T any](config ProcessConfig[T]) ProcessConfig[T] {
	if config.InitMaxRetries == 0 {
		config.InitMaxRetries = 1
	}
	if config.RunMaxRetries == 0 {
		config.RunMaxRetries = 1
	}
	if config.DeinitMaxRetries == 0 {
		config.DeinitMaxRetries = 1
	}
	if config.MessageSendMaxRetries == 0 {
		config.MessageSendMaxRetries = 1
	}
	if config.InitRetryDelay == 0 {
		config.InitRetryDelay = time.Nanosecond * 1
	}
	if config.RunRetryDelay == 0 {
		config.RunRetryDelay = time.Nanosecond * 1
	}
	if config.DeinitRetryDelay == 0 {
		config.DeinitRetryDelay = time.Nanosecond * 1
	}
	if config.InitTimeout == 0 {
		config.InitTimeout = config.Timeout
	}
	if config.RunTimeout == 0 {
		config.RunTimeout = config.Timeout
	}
	if config.DeinitTimeout == 0 {
		config.DeinitTimeout = config.Timeout
	}
	return config
}

// register must be called with stateMu held.
func (r *Runner[T]) register(pid string, config ProcessConfig[T]) error {
	if config.Process == nil {
		return fmt.Errorf("ibento: nil process %s", pid)
	}
	if _, exists := r.processes[pid]; exists {
		return fmt.Errorf("%w: %s", ErrProcessExists, pid)
	}

	r.processes[pid] = withDefaults(config)
	r.mailboxes[pid] = goconcurrentqueue.NewFIFO()
	r.shutdownChs[pid] = make(chan struct{})
	r.shutdownSent[pid] = false
	r.stopped[pid] = false
	r.errored[pid] = false
	return nil
}

// RegisterProcess registers a new process with the runner.
func (r *Runner[T]) RegisterProcess(pid string, config ProcessConfig[T]) error {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	if r.stopping || r.closed {
		return ErrRunnerStopped
	}
	if r.started {
		return fmt.Errorf("ibento: runner already started, use AddAndStart for %s", pid)
	}
	return r.register(pid, config)
}

// Start initializes and runs all registered processes. The returned channel
// is closed once every process has finished.
func (r *Runner[T]) Start() <-chan error {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	if r.started || r.stopping {
		return r.errCh
	}
	r.started = true
	for pid, config := range r.processes {
		r.launch(pid, config)
	}
	if r.active == 0 {
		r.closeErrorsLocked()
	}
	return r.errCh
}

// AddAndStart registers pid, and starts it right away if the runner is
// running. Before Start, it behaves like RegisterProcess.
func (r *Runner[T]) AddAndStart(pid string, config ProcessConfig[T]) error {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	if r.stopping || r.closed {
		return ErrRunnerStopped
	}
	if err := r.register(pid, config); err != nil {
		return err
	}
	if r.started {
		r.launch(pid, r.processes[pid])
	}
	return nil
}

// launch must be called with stateMu held, and stopping unset, so that no
// wg.Add can race with the wg.Wait of Stop.
func (r *Runner[T]) launch(pid string, config ProcessConfig[T]) {
	r.active++
	r.wg.Add(1)
	go r.startProcess(pid, config)
}

// finished closes the error channel when the last running process is done.
func (r *Runner[T]) finished() {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	r.active--
	if r.active == 0 {
		r.closeErrorsLocked()
	}
}

func (r *Runner[T]) closeErrors() {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	r.closeErrorsLocked()
}

func (r *Runner[T]) closeErrorsLocked() {
	if !r.closed {
		r.closed = true
		close(r.errCh)
	}
}

func (r *Runner[T]) report(err error) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	if r.closed {
		r.logger.Err().Err(err).Log("runner stopped, dropping error")
		return
	}
	select {
	case r.errCh <- err:
	default:
		r.logger.Err().Err(err).Log("error channel full, dropping error")
	}
}

func (r *Runner[T]) markErrored(pid string) {
	r.stateMu.Lock()
	r.errored[pid] = true
	r.stateMu.Unlock()
}

func (r *Runner[T]) startProcess(pid string, config ProcessConfig[T]) {
	defer r.wg.Done()
	defer r.finished()

	// Create a cancelable context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel() // Ensure resources are cleaned up.

	r.stateMu.Lock()
	pc := &ProcessContext[T]{
		pid:      pid,
		runner:   r,
		shutdown: r.shutdownChs[pid],
		cancel:   cancel,
	}
	mailbox := r.mailboxes[pid]
	r.stateMu.Unlock()

	var mailboxDone sync.WaitGroup
	mailboxCtx, stopMailbox := context.WithCancel(context.Background())
	mailboxDone.Add(1)
	go func() {
		defer mailboxDone.Done()
		r.deliver(mailboxCtx, pid, config, mailbox)
	}()
	defer func() {
		stopMailbox()
		mailboxDone.Wait()
	}()

	// Define a helper function to execute a phase with optional panic recovery, retry, and timeout.
	executePhase := func(phaseName string, phaseFunc func(context.Context) error, timeout time.Duration, maxRetries int, retryDelay time.Duration) error {
		retries := 0
		var lastErr error
		for retries < maxRetries {
			func() {
				defer func() {
					if rec := recover(); rec != nil {
						lastErr = fmt.Errorf("panic during %s: %v", phaseName, rec)
						if !config.ShouldRecover {
							panic(rec)
						}
					}
				}()

				// Create a context with an optional timeout.
				var phaseCtx context.Context
				if timeout > 0 {
					var cancelTimeout func()
					phaseCtx, cancelTimeout = context.WithTimeout(ctx, timeout)
					defer cancelTimeout()
				} else {
					phaseCtx = ctx
				}

				lastErr = phaseFunc(phaseCtx)
			}()
			if lastErr == nil {
				return nil
			}
			retries++
			if retries < maxRetries {
				time.Sleep(retryDelay)
			}
		}
		return fmt.Errorf("error during %s: %w", phaseName, lastErr)
	}

	r.logger.Debug().Str("pid", pid).Log("process initializing")

	// Initialize the process with panic recovery, retry, and optional timeout.
	if err := executePhase("initialization", func(ctx context.Context) error {
		return config.Process.Init(ctx, pc)
	}, config.InitTimeout, config.InitMaxRetries, config.InitRetryDelay); err != nil {
		r.report(fmt.Errorf("process %s: %w", pid, err))
		r.markErrored(pid)
		r.markStopped(pid)
		return
	}

	r.logger.Debug().Str("pid", pid).Log("process running")

	// Run the process with panic recovery, retry, and optional timeout.
	if err := executePhase("run", func(ctx context.Context) error {
		return config.Process.Run(ctx, pc)
	}, config.RunTimeout, config.RunMaxRetries, config.RunRetryDelay); err != nil {
		r.report(fmt.Errorf("process %s: %w", pid, err))
		r.markErrored(pid)
	}

	r.logger.Debug().Str("pid", pid).Log("process deinitializing")

	// Deinitialize the process with panic recovery, retry, and optional timeout.
	if err := executePhase("deinitialization", func(ctx context.Context) error {
		return config.Process.Deinit(ctx, pc)
	}, config.DeinitTimeout, config.DeinitMaxRetries, config.DeinitRetryDelay); err != nil {
		r.report(fmt.Errorf("process %s: %w", pid, err))
		r.markErrored(pid)
	}

	// Mark the process as stopped.
	r.markStopped(pid)
}

func (r *Runner[T]) markStopped(pid string) {
	r.stateMu.Lock()
	r.stopped[pid] = true
	r.stateMu.Unlock()
}

// deliver drains the mailbox of pid until ctx is canceled.
func (r *Runner[T]) deliver(ctx context.Context, pid string, config ProcessConfig[T], mailbox *goconcurrentqueue.FIFO) {
	for {
		item, err := mailbox.DequeueOrWaitForNextElementContext(ctx)
		if err != nil {
			if n := mailbox.GetLen(); n > 0 {
				r.logger.Warning().Str("pid", pid).Int("pending", n).Log("mailbox closed with pending messages")
			}
			return
		}
		msg, ok := item.(message)
		if !ok {
			continue
		}

		// Define a function to deliver a message with optional panic recovery.
		receive := func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("panic while receiving message: %v", rec)
				}
			}()
			return config.Process.Received(msg.from, msg.data)
		}

		// Retry delivering the message if an error occurs or panic is recovered.
		var lastErr error
		for retries := 0; retries < config.MessageSendMaxRetries; retries++ {
			if lastErr = receive(); lastErr == nil {
				break
			}
			if config.MessageSendRetryDelay > 0 {
				time.Sleep(config.MessageSendRetryDelay)
			}
		}
		if lastErr != nil {
			r.report(fmt.Errorf("process %s: error receiving message from %s: %w", pid, msg.from, lastErr))
		}
	}
}

func (r *Runner[T]) StopProcess(pid string) error {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	// Check if the process exists.
	if _, exists := r.processes[pid]; !exists {
		return fmt.Errorf("%w: %s", ErrProcessNotFound, pid)
	}

	// Signal the process to shut down if it hasn't been signaled yet.
	if !r.shutdownSent[pid] {
		close(r.shutdownChs[pid])
		r.shutdownSent[pid] = true
	}

	return nil
}

// Stop stops all registered processes, and waits for them to finish. Once
// called, no process can be registered or added anymore.
func (r *Runner[T]) Stop() {
	r.stateMu.Lock()
	r.stopping = true
	// Signal all processes to shut down.
	for pid, shutdownCh := range r.shutdownChs {
		if !r.shutdownSent[pid] {
			close(shutdownCh)
			r.shutdownSent[pid] = true
		}
	}
	r.stateMu.Unlock()

	// Wait for all processes to finish shutting down.
	r.wg.Wait()
	r.closeErrors()
}

func (pc *ProcessContext[T]) PID() string { return pc.pid }

func (pc *ProcessContext[T]) State() T {
	pc.runner.stateMu.Lock()
	defer pc.runner.stateMu.Unlock()
	return pc.runner.state
}

// Mutate replaces the global state with the result of fn, under the lock.
func (pc *ProcessContext[T]) Mutate(fn func(T) T) {
	pc.runner.stateMu.Lock()
	defer pc.runner.stateMu.Unlock()
	pc.runner.state = fn(pc.runner.state)
}

func (pc *ProcessContext[T]) Send(pid string, data any) error {
	return pc.runner.Send(pc.pid, pid, data)
}

// Shutdown is closed once the process is asked to stop.
func (pc *ProcessContext[T]) Shutdown() <-chan struct{} { return pc.shutdown }

// Report forwards a non fatal error to the channel returned by Start.
func (pc *ProcessContext[T]) Report(err error) {
	if err != nil {
		pc.runner.report(fmt.Errorf("process %s: %w", pc.pid, err))
	}
}

// Cancel cancels the context of every phase of the process.
func (pc *ProcessContext[T]) Cancel() { pc.cancel() }
