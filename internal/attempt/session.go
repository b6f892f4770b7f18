// Package attempt drives a student through one quiz attempt: it loads the
// quiz, starts the attempt, mirrors answers locally, runs the advisory
// countdown and leaves every score to the server.
package attempt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"quizrun-go/internal/api"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// State of an attempt as seen by the client.
type State int

const (
	NotStarted State = iota
	InProgress
	Finished
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	ErrNotLoaded       = errors.New("quiz definition not loaded")
	ErrAlreadyStarted  = errors.New("attempt already started")
	ErrNotInProgress   = errors.New("attempt is not in progress")
	ErrFinishInFlight  = errors.New("finish already in flight")
	ErrUnknownQuestion = errors.New("question does not belong to this quiz")
	ErrUnknownOption   = errors.New("option is not offered by this question")
	ErrNoQuestions     = errors.New("quiz has no questions")
	ErrClosed          = errors.New("session closed")
)

// API is the slice of the REST contract a session consumes.
type API interface {
	GetQuiz(ctx context.Context, quizID string) (*api.Quiz, error)
	StartAttempt(ctx context.Context, quizID string) (*api.StartedAttempt, error)
	SubmitAnswer(ctx context.Context, attemptID, questionID, option string) error
	FinishAttempt(ctx context.Context, attemptID string) (*api.Result, error)
}

// Options tune a Session. Zero values pick sensible defaults.
type Options struct {
	Clock clock.Clock
	// FinishTimeout bounds the automatic finish fired by the countdown.
	FinishTimeout time.Duration
}

// Session is one student's run through one quiz. It is safe for concurrent
// use: the countdown fires from its own goroutine.
type Session struct {
	api      API
	quizID   string
	observer Observer
	log      *zap.Logger
	clock    clock.Clock

	finishTimeout time.Duration
	lifetime      context.Context
	cancel        context.CancelFunc

	mu           sync.Mutex
	quiz         *api.Quiz
	state        State
	attemptID    string
	answers      map[string]string
	index        int
	countdown    *Countdown
	timeLimit    time.Duration
	finishing    bool
	finishFailed bool
	autoFired    bool
	closed       bool
	result       *Summary
	done         chan struct{}
}

// NewSession prepares a session for quizID. Nothing is fetched until Load.
func NewSession(client API, quizID string, observer Observer, log *zap.Logger, opts Options) *Session {
	if observer == nil {
		observer = NopObserver{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.FinishTimeout <= 0 {
		opts.FinishTimeout = 15 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		api:           client,
		quizID:        quizID,
		observer:      observer,
		log:           log.With(zap.String("quiz_id", quizID)),
		clock:         opts.Clock,
		finishTimeout: opts.FinishTimeout,
		lifetime:      ctx,
		cancel:        cancel,
		answers:       make(map[string]string),
		done:          make(chan struct{}),
	}
}

// Load fetches the quiz definition. A failure here means the flow cannot be
// entered at all.
func (s *Session) Load(ctx context.Context) (*api.Quiz, error) {
	quiz, err := s.api.GetQuiz(ctx, s.quizID)
	if err == nil && len(quiz.Questions) == 0 {
		err = ErrNoQuestions
	}
	if err != nil {
		s.log.Error("Failed to load quiz", zap.Error(err))
		s.observer.Failed(FailureLoad, err)
		return nil, err
	}

	s.mu.Lock()
	s.quiz = quiz
	s.mu.Unlock()
	return quiz, nil
}

// Start creates the attempt on the server and, when the quiz is timed, arms
// the countdown. On failure the session stays NotStarted and may be retried.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.quiz == nil:
		s.mu.Unlock()
		return ErrNotLoaded
	case s.state != NotStarted:
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	quiz := s.quiz
	s.mu.Unlock()

	started, err := s.api.StartAttempt(ctx, s.quizID)
	if err != nil {
		s.log.Warn("Failed to start attempt", zap.Error(err), zap.Int("status", api.StatusCode(err)))
		s.observer.Failed(FailureStart, err)
		return err
	}

	limit, timed := quiz.TimeLimit()
	if started.TimeLimitMinutes != nil {
		limit, timed = api.MinutesLimit(started.TimeLimitMinutes)
	}
	// A resumed attempt only has what the server says is left.
	left := limit
	if timed {
		left = started.Remaining(limit)
	}

	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		s.log.Info("Session closed while starting, attempt left open", zap.String("attempt_id", started.ID))
		return ErrClosed
	case s.state != NotStarted:
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.attemptID = started.ID
	s.state = InProgress
	s.index = 0
	if timed {
		s.timeLimit = limit
		s.countdown = StartCountdown(s.clock, left, s.observer.Tick, s.expire)
	}
	s.mu.Unlock()

	s.log.Info("Attempt started",
		zap.String("attempt_id", started.ID),
		zap.Duration("time_limit", limit),
		zap.Duration("remaining", left),
	)
	s.observer.Started(started.ID, left)
	return nil
}

// SubmitAnswer mirrors the answer locally, overwriting any earlier choice for
// the question, then saves it. A failed save is reported and returned but the
// local answer stays: persistence is best-effort and never blocks navigation.
func (s *Session) SubmitAnswer(ctx context.Context, questionID, option string) error {
	s.mu.Lock()
	if s.state != InProgress || s.finishing {
		s.mu.Unlock()
		return ErrNotInProgress
	}
	question, ok := s.quiz.Question(questionID)
	if !ok {
		s.mu.Unlock()
		return ErrUnknownQuestion
	}
	if !offers(question, option) {
		s.mu.Unlock()
		return ErrUnknownOption
	}
	s.answers[questionID] = option
	attemptID := s.attemptID
	s.mu.Unlock()

	if err := s.api.SubmitAnswer(ctx, attemptID, questionID, option); err != nil {
		s.log.Warn("Failed to save answer",
			zap.String("attempt_id", attemptID),
			zap.String("question_id", questionID),
			zap.Error(err),
		)
		s.observer.Failed(FailureAnswer, err)
		return err
	}
	return nil
}

// Finish closes the attempt. It is valid whenever the attempt is in progress,
// whatever question is displayed and however many are unanswered. The
// countdown is stopped before the call; if the call fails the session stays
// InProgress with FinishFailed set, and Finish may be called again.
func (s *Session) Finish(ctx context.Context) (*Summary, error) {
	return s.finish(ctx, false)
}

func (s *Session) finish(ctx context.Context, automatic bool) (*Summary, error) {
	s.mu.Lock()
	if s.state != InProgress {
		s.mu.Unlock()
		return nil, ErrNotInProgress
	}
	if s.finishing {
		s.mu.Unlock()
		return nil, ErrFinishInFlight
	}
	s.finishing = true
	if s.countdown != nil {
		s.countdown.Stop()
	}
	attemptID := s.attemptID
	total := len(s.quiz.Questions)
	s.mu.Unlock()

	res, err := s.api.FinishAttempt(ctx, attemptID)

	s.mu.Lock()
	s.finishing = false
	if err != nil {
		s.finishFailed = true
		s.mu.Unlock()
		s.log.Error("Failed to finish attempt",
			zap.String("attempt_id", attemptID),
			zap.Bool("automatic", automatic),
			zap.Error(err),
		)
		s.observer.Failed(FailureFinish, err)
		return nil, err
	}
	summary := newSummary(*res, total)
	s.result = &summary
	s.state = Finished
	s.finishFailed = false
	close(s.done)
	s.mu.Unlock()

	s.log.Info("Attempt finished",
		zap.String("attempt_id", attemptID),
		zap.Bool("automatic", automatic),
		zap.Int("score", res.Score),
		zap.Bool("passed", res.Passed),
	)
	s.observer.Finished(summary)
	return &summary, nil
}

// expire is the countdown's expiry callback. It finishes the attempt at most
// once per session, however often it is invoked.
func (s *Session) expire() {
	s.mu.Lock()
	if s.autoFired || s.state != InProgress {
		s.mu.Unlock()
		return
	}
	s.autoFired = true
	s.mu.Unlock()

	s.log.Info("Time limit reached, finishing attempt")
	ctx, cancel := context.WithTimeout(s.lifetime, s.finishTimeout)
	defer cancel()
	_, _ = s.finish(ctx, true)
}

// Close releases the countdown and cancels any automatic finish in flight. A
// start still in flight will not arm a new countdown. The attempt itself is
// left as it is on the server.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	if s.countdown != nil {
		s.countdown.Stop()
	}
	s.mu.Unlock()
	s.cancel()
}

// Goto displays the question at index i.
func (s *Session) Goto(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != InProgress {
		return ErrNotInProgress
	}
	if i < 0 || i >= len(s.quiz.Questions) {
		return fmt.Errorf("question index %d out of range [0,%d)", i, len(s.quiz.Questions))
	}
	s.index = i
	return nil
}

// Next moves to the following question. It reports false on the last one.
func (s *Session) Next() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != InProgress {
		return false, ErrNotInProgress
	}
	if s.index+1 >= len(s.quiz.Questions) {
		return false, nil
	}
	s.index++
	return true, nil
}

// Prev moves to the preceding question. It reports false on the first one.
func (s *Session) Prev() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != InProgress {
		return false, ErrNotInProgress
	}
	if s.index == 0 {
		return false, nil
	}
	s.index--
	return true, nil
}

// Snapshot is a consistent copy of what a view needs to render.
type Snapshot struct {
	State        State
	AttemptID    string
	Quiz         *api.Quiz
	Index        int
	Answers      map[string]string
	Timed        bool
	TimeLimit    time.Duration
	Remaining    time.Duration
	FinishFailed bool
	Finishing    bool
	Result       *Summary
}

// Current returns the displayed question and its index.
func (s *Session) Current() (api.Question, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != InProgress {
		return api.Question{}, 0, ErrNotInProgress
	}
	return s.quiz.Questions[s.index], s.index, nil
}

// Snapshot copies the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	answers := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	snap := Snapshot{
		State:        s.state,
		AttemptID:    s.attemptID,
		Quiz:         s.quiz,
		Index:        s.index,
		Answers:      answers,
		FinishFailed: s.finishFailed,
		Finishing:    s.finishing,
		Result:       s.result,
	}
	if s.countdown != nil {
		snap.Timed = true
		snap.TimeLimit = s.timeLimit
		snap.Remaining = s.countdown.Remaining()
	}
	return snap
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FinishFailed reports whether the last finish call failed and a manual retry
// is due.
func (s *Session) FinishFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishFailed
}

// Done is closed when the attempt reaches Finished.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func offers(q api.Question, option string) bool {
	for _, o := range q.Options {
		if o == option {
			return true
		}
	}
	return false
}
