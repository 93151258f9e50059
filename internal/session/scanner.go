package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/pipeline"
	"github.com/MeKo-Tech/idscan/internal/template"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("scanner closed")

// errStale stops the pipeline of a superseded session at its next stage.
var errStale = errors.New("session superseded")

// Processor runs the scan stages. *pipeline.Pipeline implements it.
type Processor interface {
	ProcessStages(ctx context.Context, raw document.RawCapture, onStage pipeline.StageFunc) (*document.ScanResult, error)
	Registry() *template.Registry
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithResultHandler receives exactly one result per session that was not
// superseded.
func WithResultHandler(fn func(*document.ScanResult)) Option {
	return func(s *Scanner) { s.onResult = fn }
}

// WithTransitionHandler receives every state change.
func WithTransitionHandler(fn func(Transition)) Option {
	return func(s *Scanner) { s.onTransition = fn }
}

// WithLogger sets the logger, slog.Default() otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

type session struct {
	id     string
	gen    uint64
	cancel context.CancelFunc
}

type event struct {
	transition *Transition
	result     *document.ScanResult
}

// Scanner is one logical scanner instance: at most one session runs at a
// time. Handlers are called in commit order from a single goroutine and may
// not call back into the Scanner synchronously with Close.
type Scanner struct {
	proc         Processor
	onResult     func(*document.ScanResult)
	onTransition func(Transition)
	logger       *slog.Logger

	mu         sync.Mutex
	generation uint64
	state      State
	active     *session
	last       *document.ScanResult
	current    Handle
	queue      []event
	closed     bool
	running    map[*session]struct{} // session goroutines not yet returned

	wake      chan struct{}
	quit      chan struct{}
	done      chan struct{}
	runs      sync.WaitGroup
	closeOnce sync.Once
}

// New creates a scanner and starts its dispatcher.
func New(proc Processor, opts ...Option) *Scanner {
	s := &Scanner{
		proc:  proc,
		state: StateIdle,
		wake:  make(chan struct{}, 1),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),

		running: make(map[*session]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	go s.dispatch()
	return s
}

// Submit starts a session for data, superseding any session in flight. The
// bytes are copied; ctx bounds the scan.
func (s *Scanner) Submit(ctx context.Context, data []byte, format document.Format, capturedAt time.Time) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Handle{}, ErrClosed
	}
	if s.active != nil {
		s.logger.Info("Superseding scan session", "session", s.active.id, "generation", s.active.gen)
		s.abortLocked(ReasonSuperseded)
	}
	if s.state.Terminal() {
		s.transitionLocked(Handle{Generation: s.generation}, StateIdle, "", "")
	}

	s.generation++
	sess := &session{id: uuid.NewString(), gen: s.generation}
	h := Handle{SessionID: sess.id, Generation: sess.gen}
	s.current = h
	s.active = sess
	s.last = nil
	s.transitionLocked(h, StateCapturing, "", "")

	raw := document.NewRawCapture(data, format, capturedAt)
	runCtx, cancel := context.WithCancel(ctx)
	sess.cancel = cancel
	s.running[sess] = struct{}{}
	sessionsActive.Inc()
	s.runs.Add(1)
	go s.run(runCtx, sess, raw)
	return h, nil
}

// Cancel supersedes the session h if it is still running.
func (s *Scanner) Cancel(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.gen != h.Generation || s.active.id != h.SessionID {
		return false
	}
	s.abortLocked(ReasonCancelled)
	return true
}

// Reset returns a finished scanner to Idle and drops its last result. It
// fails while a session is running.
func (s *Scanner) Reset() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return false
	}
	if s.state.Terminal() {
		s.transitionLocked(Handle{Generation: s.generation}, StateIdle, "", "")
	}
	s.last = nil
	return true
}

// State returns the current lifecycle state.
func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the handle of the latest session.
func (s *Scanner) Current() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Last returns the result of the latest finished session, if any.
func (s *Scanner) Last() *document.ScanResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Close supersedes the running session, cancels every session goroutine,
// waits for them and delivers the remaining events.
func (s *Scanner) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		if s.active != nil {
			s.abortLocked(ReasonClosed)
		}
		for sess := range s.running {
			sess.cancel()
		}
		s.mu.Unlock()

		s.runs.Wait()
		close(s.quit)
		<-s.done
	})
}

func (s *Scanner) run(ctx context.Context, sess *session, raw document.RawCapture) {
	defer s.runs.Done()
	defer sessionsActive.Dec()
	defer func() {
		sess.cancel()
		s.mu.Lock()
		delete(s.running, sess)
		s.mu.Unlock()
	}()

	res, err := s.proc.ProcessStages(ctx, raw, func(st pipeline.Stage) error {
		return s.advance(sess, State(st))
	})
	s.complete(sess, res, err)
}

// advance commits a stage start if sess is still current.
func (s *Scanner) advance(sess *session, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.gen != s.generation || s.active != sess {
		staleCommits.Inc()
		return errStale
	}
	s.transitionLocked(s.current, to, "", "")
	return nil
}

func (s *Scanner) complete(sess *session, res *document.ScanResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.gen != s.generation || s.active != sess {
		staleCommits.Inc()
		s.logger.Debug("Dropping superseded scan", "session", sess.id, "generation", sess.gen)
		return
	}
	if err != nil || res == nil {
		if err == nil {
			err = errors.New("pipeline returned no result")
		}
		res = pipeline.FailedResult(s.proc.Registry().Generic(), document.NoteAborted, err)
	}
	res.SessionID = sess.id
	res.Generation = sess.gen

	s.active = nil
	s.last = res
	s.transitionLocked(s.current, StateDone, res.Status, "")
	s.queue = append(s.queue, event{result: res})
	s.signal()
	sessionsTotal.WithLabelValues(string(res.Status)).Inc()
}

// abortLocked moves the active session to Superseded. The stage in flight
// runs to completion; the next stage commit sees the moved generation and
// stops the run. Only Close cancels run contexts.
func (s *Scanner) abortLocked(reason string) {
	sess := s.active
	s.active = nil
	s.generation++
	s.transitionLocked(Handle{SessionID: sess.id, Generation: sess.gen}, StateSuperseded, "", reason)
	sessionsTotal.WithLabelValues(StateSuperseded.String()).Inc()
}

func (s *Scanner) transitionLocked(h Handle, to State, status document.Status, reason string) {
	tr := Transition{
		SessionID:  h.SessionID,
		Generation: h.Generation,
		From:       s.state,
		To:         to,
		Status:     status,
		Reason:     reason,
		At:         time.Now(),
	}
	s.state = to
	s.logger.Debug("Session transition", "session", h.SessionID, "from", tr.From, "to", to)
	s.queue = append(s.queue, event{transition: &tr})
	s.signal()
}

func (s *Scanner) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scanner) dispatch() {
	defer close(s.done)
	for {
		select {
		case <-s.wake:
			s.drain()
		case <-s.quit:
			s.drain()
			return
		}
	}
}

func (s *Scanner) drain() {
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, ev := range batch {
			switch {
			case ev.transition != nil && s.onTransition != nil:
				s.onTransition(*ev.transition)
			case ev.result != nil && s.onResult != nil:
				s.onResult(ev.result)
			}
		}
	}
}
