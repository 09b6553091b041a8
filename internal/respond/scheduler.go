// Package respond implements the asynchronous response generation scheduler.
//
// A generation request is started with [Scheduler.Start], which returns
// immediately; the reply is produced by a background task that replays the
// session history to the language model, appends both turns, synthesizes
// speech, and publishes the finished result atomically. Clients observe the
// task through [Scheduler.Poll] and collect it exactly once through
// [Scheduler.Consume].
//
// Task lifecycle: pending → running → completed | failed. At most one live
// task exists per session; starting another while one is outstanding is
// rejected with [ErrGenerationInFlight]. A task that finishes after its
// session was destroyed discards its result.
package respond

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/museworks/velatura/internal/config"
	"github.com/museworks/velatura/internal/session"
	"github.com/museworks/velatura/pkg/gateway"
	"github.com/museworks/velatura/pkg/types"
)

// ErrGenerationInFlight is returned by Start when the session already has an
// outstanding task, completed-but-unconsumed included. The caller must poll
// or consume before starting anew.
var ErrGenerationInFlight = errors.New("respond: generation already in flight")

// Status is the observable state of a session's generation task.
type Status int

const (
	// StatusNone means no task exists for the session.
	StatusNone Status = iota

	// StatusProcessing covers the pending and running phases.
	StatusProcessing

	// StatusCompleted means a result is ready.
	StatusCompleted

	// StatusFailed means the task ended in a terminal error.
	StatusFailed
)

// String returns the wire-level name of the status.
func (s Status) String() string {
	switch s {
	case StatusNone:
		return "not_found"
	case StatusProcessing:
		return "processing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the finished output of a generation task. For failed tasks only
// Err is set.
type Result struct {
	// Text is the persona's reply.
	Text string

	// Audio is the synthesized speech for Text.
	Audio []byte

	// Duration is the estimated audio length in seconds.
	Duration float64

	// Timings is the approximate per-word timing table for lip-sync.
	Timings []types.WordTiming

	// Err describes why the task failed; nil for completed tasks.
	Err error
}

// phase is the internal task lifecycle position.
type phase int

const (
	phasePending phase = iota
	phaseRunning
	phaseCompleted
	phaseFailed
)

// task tracks one in-flight or finished generation. The result pointer is
// written together with the terminal phase under the scheduler lock, so a
// poller can never observe a half-written result.
type task struct {
	phase  phase
	result *Result
	cancel context.CancelFunc
}

// Scheduler runs generation tasks and owns the per-session task map. All
// methods are safe for concurrent use.
type Scheduler struct {
	store   *session.Store
	gw      *gateway.Gateway
	persona config.PersonaConfig
	sem     *semaphore.Weighted

	mu    sync.Mutex
	tasks map[string]*task

	// lastAudio retains the most recently published reply audio per session
	// so the raw-audio download endpoint works after consumption.
	lastAudio map[string][]byte

	baseCtx   context.Context
	baseStop  context.CancelFunc
	wg        sync.WaitGroup
	onPublish func(sessionID string, failed bool)
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithPublishHook registers a callback fired after every task reaches a
// terminal state, used for metrics.
func WithPublishHook(fn func(sessionID string, failed bool)) Option {
	return func(s *Scheduler) {
		s.onPublish = fn
	}
}

// NewScheduler creates a scheduler over the given store and gateway. The
// gateway is typically wrapped by a resilience guard. maxConcurrent bounds
// how many tasks may run at once across all sessions.
func NewScheduler(store *session.Store, gw *gateway.Gateway, persona config.PersonaConfig, maxConcurrent int, opts ...Option) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	ctx, stop := context.WithCancel(context.Background())
	s := &Scheduler{
		store:     store,
		gw:        gw,
		persona:   persona,
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
		tasks:     make(map[string]*task),
		lastAudio: make(map[string][]byte),
		baseCtx:   ctx,
		baseStop:  stop,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins generating a reply to userText for the session. It returns
// immediately; nothing is appended to history until the model call succeeds.
// Returns [ErrGenerationInFlight] if an unconsumed task already exists.
func (s *Scheduler) Start(sessionID, userText string) error {
	taskCtx, cancel := context.WithCancel(s.baseCtx)

	s.mu.Lock()
	if _, exists := s.tasks[sessionID]; exists {
		s.mu.Unlock()
		cancel()
		return ErrGenerationInFlight
	}
	t := &task{phase: phasePending, cancel: cancel}
	s.tasks[sessionID] = t
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(taskCtx, sessionID, userText, t)
	return nil
}

// Poll reports the task status without consuming it. On StatusCompleted the
// returned result stays available until [Scheduler.Consume].
func (s *Scheduler) Poll(sessionID string) (Status, *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked(sessionID)
}

// Consume returns the task status and, for terminal states, removes the task
// so the result is delivered at most once. A subsequent call reports
// StatusNone.
func (s *Scheduler) Consume(sessionID string) (Status, *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, res := s.statusLocked(sessionID)
	if st == StatusCompleted || st == StatusFailed {
		delete(s.tasks, sessionID)
	}
	return st, res
}

// statusLocked resolves the externally visible status. Caller holds s.mu.
func (s *Scheduler) statusLocked(sessionID string) (Status, *Result) {
	t, ok := s.tasks[sessionID]
	if !ok {
		return StatusNone, nil
	}
	switch t.phase {
	case phaseCompleted:
		return StatusCompleted, t.result
	case phaseFailed:
		return StatusFailed, t.result
	default:
		return StatusProcessing, nil
	}
}

// LastAudio returns the most recently published reply audio for the session,
// surviving consumption. The second return is false when none exists.
func (s *Scheduler) LastAudio(sessionID string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	audio, ok := s.lastAudio[sessionID]
	return audio, ok
}

// Drop cancels and discards any task and retained audio for the session.
// Wired as the session store's destroy hook.
func (s *Scheduler) Drop(sessionID string) {
	s.mu.Lock()
	t, ok := s.tasks[sessionID]
	if ok {
		delete(s.tasks, sessionID)
	}
	delete(s.lastAudio, sessionID)
	s.mu.Unlock()

	if ok && t.cancel != nil {
		t.cancel()
	}
}

// Close cancels all tasks and waits for their goroutines to drain.
func (s *Scheduler) Close() {
	s.baseStop()
	s.wg.Wait()
}

// run executes one generation task to its terminal state.
func (s *Scheduler) run(ctx context.Context, sessionID, userText string, t *task) {
	defer s.wg.Done()
	defer t.cancel()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.publish(sessionID, t, &Result{Err: fmt.Errorf("respond: acquire worker slot: %w", err)})
		return
	}
	defer s.sem.Release(1)

	s.mu.Lock()
	t.phase = phaseRunning
	s.mu.Unlock()

	res := s.generate(ctx, sessionID, userText)
	s.publish(sessionID, t, res)
}

// generate produces the reply: replay history to the model, append both
// turns, synthesize, derive timings.
func (s *Scheduler) generate(ctx context.Context, sessionID, userText string) *Result {
	history := s.store.History(sessionID)
	turns := make([]types.Turn, 0, len(history)+1)
	turns = append(turns, history...)
	turns = append(turns, types.Turn{Role: types.RoleUser, Content: userText})

	reply, err := s.gw.Completer.Complete(ctx, s.persona.SystemPrompt, turns, s.persona.MaxReplyTokens)
	if err != nil {
		return &Result{Err: fmt.Errorf("respond: completion: %w", err)}
	}

	// History gains both turns only once the model call succeeded, so a
	// failed generation leaves no phantom user turn behind. A session
	// destroyed mid-task must not be recreated by the append.
	if s.store.Exists(sessionID) {
		s.store.Append(sessionID, types.Turn{Role: types.RoleUser, Content: userText})
		s.store.Append(sessionID, types.Turn{Role: types.RoleAssistant, Content: reply})
	}

	audio, err := s.gw.Synthesizer.Synthesize(ctx, reply)
	if err != nil {
		return &Result{Err: fmt.Errorf("respond: synthesis: %w", err)}
	}

	timings, duration := EstimateTimings(reply)
	return &Result{Text: reply, Audio: audio, Duration: duration, Timings: timings}
}

// publish installs the terminal result atomically. If the session was
// destroyed while the task ran, the result is discarded instead of
// resurrecting the session. The publish hook fires exactly once per started
// task, discarded or not, so gauge-style metrics stay balanced.
func (s *Scheduler) publish(sessionID string, t *task, res *Result) {
	failed := res.Err != nil

	s.mu.Lock()
	current, ok := s.tasks[sessionID]
	if !ok || current != t || !s.store.Exists(sessionID) {
		delete(s.lastAudio, sessionID)
		if ok && current == t {
			delete(s.tasks, sessionID)
		}
		s.mu.Unlock()
		slog.Debug("respond: discarding result for destroyed session", "session_id", sessionID)
		if s.onPublish != nil {
			s.onPublish(sessionID, failed)
		}
		return
	}
	if failed {
		t.phase = phaseFailed
	} else {
		t.phase = phaseCompleted
		s.lastAudio[sessionID] = res.Audio
	}
	t.result = res
	s.mu.Unlock()

	if failed {
		slog.Warn("respond: generation failed", "session_id", sessionID, "err", res.Err)
	} else {
		slog.Info("respond: reply published", "session_id", sessionID, "words", len(res.Timings))
	}
	if s.onPublish != nil {
		s.onPublish(sessionID, failed)
	}
}
