package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/assessment"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/model"
)

const (
	reapInterval    = time.Minute
	subscriberQueue = 16
)

// QuizLoader provides quizzes with their validated questions.
type QuizLoader interface {
	Get(ctx context.Context, quizID uuid.UUID) (*model.Quiz, error)
	Load(ctx context.Context, quizID uuid.UUID) (*model.Quiz, []assessment.Question, error)
}

// liveSession is a registry entry: the state machine plus its owner and
// stream subscribers.
type liveSession struct {
	session *assessment.Session
	quiz    *model.Quiz
	owner   string

	mu       sync.Mutex
	lastSeen time.Time
	subs     map[int]chan model.SessionEvent
	nextSub  int
}

func (l *liveSession) touch(now time.Time) {
	l.mu.Lock()
	l.lastSeen = now
	l.mu.Unlock()
}

// publish fans an event out without blocking. A full subscriber drops
// ticks; any other event evicts the oldest queued one instead.
func (l *liveSession) publish(ev model.SessionEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		if ev.Type == model.EventTick {
			continue
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

func (l *liveSession) closeSubscribers() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, ch := range l.subs {
		close(ch)
		delete(l.subs, id)
	}
}

// SessionService is the in-memory registry of live quiz sessions.
type SessionService struct {
	quizzes QuizLoader
	counter AttemptCounter
	sink    assessment.ResultSink
	cfg     *config.Config
	log     zerolog.Logger

	now       func() time.Time
	countdown assessment.CountdownFactory

	mu       sync.RWMutex
	sessions map[string]*liveSession
}

// SessionServiceOption configures a SessionService.
type SessionServiceOption func(*SessionService)

// WithCountdownFactory replaces the real-time countdown of new sessions.
func WithCountdownFactory(f assessment.CountdownFactory) SessionServiceOption {
	return func(s *SessionService) { s.countdown = f }
}

// WithServiceClock replaces time.Now for idle tracking and timestamps.
func WithServiceClock(now func() time.Time) SessionServiceOption {
	return func(s *SessionService) { s.now = now }
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	quizzes QuizLoader,
	counter AttemptCounter,
	sink assessment.ResultSink,
	cfg *config.Config,
	log zerolog.Logger,
	opts ...SessionServiceOption,
) *SessionService {
	s := &SessionService{
		quizzes:  quizzes,
		counter:  counter,
		sink:     sink,
		cfg:      cfg,
		log:      log.With().Str("component", "session_service").Logger(),
		now:      time.Now,
		sessions: make(map[string]*liveSession),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Intro returns what a respondent sees before creating a session.
func (s *SessionService) Intro(ctx context.Context, quizID uuid.UUID, claims *Claims) (*model.QuizIntro, error) {
	q, err := s.quizzes.Get(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := checkVisible(q, claims); err != nil {
		return nil, err
	}

	guest := claims == nil
	used := 0
	if !guest && q.Tracked() {
		if used, err = s.counter.Used(ctx, claims.RespondentID(), quizID); err != nil {
			return nil, err
		}
	}

	return &model.QuizIntro{
		ID:               q.ID,
		Title:            q.Title,
		Description:      q.Description,
		Kind:             q.Kind,
		DurationMinutes:  q.DurationMinutes,
		PassThreshold:    q.PassThreshold,
		MaxAttempts:      maxAttempts(q),
		QuestionCount:    q.QuestionCount,
		VisibleQuestions: assessment.VisibleCount(q.QuestionCount, guest, q.GuestQuestionLimit),
		AttemptsUsed:     used,
		Guest:            guest,
	}, nil
}

// Create opens a session in INTRO for the caller. A nil claims value makes
// a guest session.
func (s *SessionService) Create(ctx context.Context, quizID uuid.UUID, claims *Claims) (*model.SessionView, error) {
	q, questions, err := s.quizzes.Load(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := checkVisible(q, claims); err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	guest := claims == nil
	settings := assessment.Settings{
		QuizID:             q.ID.String(),
		DurationMinutes:    q.DurationMinutes,
		PassThreshold:      q.PassThreshold,
		MaxAttempts:        maxAttempts(q),
		Guest:              guest,
		GuestQuestionLimit: q.GuestQuestionLimit,
	}
	live := &liveSession{quiz: q, lastSeen: s.now(), subs: make(map[int]chan model.SessionEvent)}
	if !guest {
		respondent := claims.RespondentID()
		live.owner = respondent
		settings.RespondentID = &respondent
		if q.Tracked() {
			if settings.AttemptsUsed, err = s.counter.Used(ctx, respondent, quizID); err != nil {
				return nil, err
			}
		}
	}

	opts := []assessment.SessionOption{
		assessment.WithClock(s.now),
		assessment.WithLogger(s.log),
		assessment.WithPersistTimeout(s.cfg.PersistTimeout),
		assessment.OnTick(func(remaining int) {
			live.publish(model.SessionEvent{
				Type:             model.EventTick,
				SessionID:        live.session.ID(),
				Phase:            assessment.PhaseInProgress,
				RemainingSeconds: remaining,
			})
		}),
		assessment.OnSubmit(func(rec *assessment.AttemptRecord) { s.submitted(live, rec) }),
		assessment.OnPersistError(func(rec *assessment.AttemptRecord, err error) {
			live.publish(model.SessionEvent{
				Type:      model.EventPersistFailed,
				SessionID: rec.SessionID,
				Phase:     assessment.PhaseSubmitted,
				Detail:    err.Error(),
			})
		}),
	}
	if q.Tracked() && s.sink != nil {
		opts = append(opts, assessment.WithSink(s.sink))
	}
	if !guest && q.Tracked() {
		opts = append(opts, assessment.WithAttemptGate(&attemptGate{
			counter:      s.counter,
			respondentID: live.owner,
			quizID:       q.ID,
			maxAttempts:  settings.MaxAttempts,
			timeout:      s.cfg.PersistTimeout,
		}))
	}
	if s.countdown != nil {
		opts = append(opts, assessment.WithCountdown(s.countdown))
	}

	sess, err := assessment.NewSession(questions, settings, opts...)
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	live.session = sess

	s.mu.Lock()
	s.sessions[sess.ID()] = live
	s.mu.Unlock()

	s.log.Info().
		Str("session_id", sess.ID()).
		Str("quiz_id", settings.QuizID).
		Bool("guest", guest).
		Int("attempts_used", settings.AttemptsUsed).
		Msg("Session created")
	return view(live), nil
}

// State returns the caller's session snapshot.
func (s *SessionService) State(sessionID string, claims *Claims) (*model.SessionView, error) {
	live, err := s.lookup(sessionID, claims)
	if err != nil {
		return nil, err
	}
	return view(live), nil
}

// Questions returns the visible questions without grading data.
func (s *SessionService) Questions(sessionID string, claims *Claims) ([]model.QuestionForRespondent, error) {
	live, err := s.lookup(sessionID, claims)
	if err != nil {
		return nil, err
	}
	return model.PublicQuestions(live.session.Questions()), nil
}

// Start begins an attempt.
func (s *SessionService) Start(sessionID string, claims *Claims) (*model.SessionView, error) {
	return s.mutate(sessionID, claims, func(sess *assessment.Session) error {
		return sess.Start()
	})
}

// Answer applies a label selection, or free text when no label is given.
func (s *SessionService) Answer(sessionID string, claims *Claims, req *model.SelectAnswerRequest) (*model.SessionView, error) {
	return s.mutate(sessionID, claims, func(sess *assessment.Session) error {
		if req.Label != "" {
			return sess.SelectAnswer(req.QuestionID, req.Label)
		}
		return sess.AnswerText(req.QuestionID, req.Text)
	})
}

// ToggleFlag flips the review marker on a question.
func (s *SessionService) ToggleFlag(sessionID string, claims *Claims, questionID string) (*model.SessionView, error) {
	return s.mutate(sessionID, claims, func(sess *assessment.Session) error {
		return sess.ToggleFlag(questionID)
	})
}

// GoTo moves the current position.
func (s *SessionService) GoTo(sessionID string, claims *Claims, index int) (*model.SessionView, error) {
	return s.mutate(sessionID, claims, func(sess *assessment.Session) error {
		_, err := sess.GoTo(index)
		return err
	})
}

// Retake resets a submitted session to INTRO.
func (s *SessionService) Retake(sessionID string, claims *Claims) (*model.SessionView, error) {
	return s.mutate(sessionID, claims, func(sess *assessment.Session) error {
		return sess.Retake()
	})
}

// Submit grades the attempt. Repeated calls return the same result.
func (s *SessionService) Submit(sessionID string, claims *Claims) (*model.ResultView, error) {
	live, err := s.lookup(sessionID, claims)
	if err != nil {
		return nil, err
	}
	rec, err := live.session.Submit()
	if err != nil {
		return nil, err
	}
	return resultView(live, rec), nil
}

// Result returns the latest graded attempt of a session.
func (s *SessionService) Result(sessionID string, claims *Claims) (*model.ResultView, error) {
	live, err := s.lookup(sessionID, claims)
	if err != nil {
		return nil, err
	}
	rec, ok := live.session.Result()
	if !ok {
		return nil, ErrResultNotReady
	}
	return resultView(live, rec), nil
}

// Subscribe registers a stream listener. The channel is closed when the
// session is torn down; cancel must be called when the listener goes away.
func (s *SessionService) Subscribe(sessionID string, claims *Claims) (<-chan model.SessionEvent, func(), error) {
	live, err := s.lookup(sessionID, claims)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan model.SessionEvent, subscriberQueue)
	live.mu.Lock()
	id := live.nextSub
	live.nextSub++
	live.subs[id] = ch
	live.mu.Unlock()

	cancel := func() {
		live.mu.Lock()
		defer live.mu.Unlock()
		if c, ok := live.subs[id]; ok {
			close(c)
			delete(live.subs, id)
		}
		live.lastSeen = s.now()
	}
	return ch, cancel, nil
}

// Close tears a session down. An in-progress attempt is abandoned.
func (s *SessionService) Close(sessionID string, claims *Claims) error {
	if _, err := s.lookup(sessionID, claims); err != nil {
		return err
	}
	s.remove(sessionID)
	return nil
}

// Count returns the number of live sessions.
func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Run reaps idle sessions until ctx is cancelled.
func (s *SessionService) Run(ctx context.Context) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	s.log.Info().Dur("idle_timeout", s.cfg.SessionIdleTimeout).Msg("Session reaper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Session reaper stopped")
			return
		case <-ticker.C:
			if n := s.reap(); n > 0 {
				s.log.Info().Int("reaped", n).Int("live", s.Count()).Msg("Idle sessions reaped")
			}
		}
	}
}

// Shutdown closes every session and waits for pending result hand-offs.
func (s *SessionService) Shutdown() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*liveSession)
	s.mu.Unlock()

	for _, live := range all {
		live.session.Close()
		live.closeSubscribers()
	}
	for _, live := range all {
		live.session.WaitPersisted()
	}
	s.log.Info().Int("closed", len(all)).Msg("Session registry shut down")
}

// reap removes sessions idle past the timeout. Sessions with a running
// attempt or a connected stream are kept; their countdown ends them.
func (s *SessionService) reap() int {
	cutoff := s.now().Add(-s.cfg.SessionIdleTimeout)

	var idle []string
	s.mu.RLock()
	for id, live := range s.sessions {
		live.mu.Lock()
		stale := live.lastSeen.Before(cutoff) && len(live.subs) == 0
		live.mu.Unlock()
		if stale && live.session.State().Phase != assessment.PhaseInProgress {
			idle = append(idle, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range idle {
		s.remove(id)
	}
	return len(idle)
}

func (s *SessionService) remove(sessionID string) {
	s.mu.Lock()
	live, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if !ok {
		return
	}

	live.session.Close()
	live.publish(model.SessionEvent{
		Type:      model.EventClosed,
		SessionID: sessionID,
		Phase:     live.session.State().Phase,
	})
	live.closeSubscribers()
}

func (s *SessionService) lookup(sessionID string, claims *Claims) (*liveSession, error) {
	s.mu.RLock()
	live, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if live.owner != "" && (claims == nil || claims.RespondentID() != live.owner) {
		return nil, ErrNotSessionOwner
	}
	live.touch(s.now())
	return live, nil
}

func (s *SessionService) mutate(sessionID string, claims *Claims, op func(*assessment.Session) error) (*model.SessionView, error) {
	live, err := s.lookup(sessionID, claims)
	if err != nil {
		return nil, err
	}
	if err := op(live.session); err != nil {
		return nil, err
	}
	return view(live), nil
}

// submitted runs for every submission, manual or expired.
func (s *SessionService) submitted(live *liveSession, rec *assessment.AttemptRecord) {
	live.publish(model.SessionEvent{
		Type:      model.EventSubmitted,
		SessionID: rec.SessionID,
		Phase:     assessment.PhaseSubmitted,
		Result:    resultView(live, rec),
	})
}

func view(live *liveSession) *model.SessionView {
	return &model.SessionView{State: live.session.State(), Guest: live.owner == ""}
}

func resultView(live *liveSession, rec *assessment.AttemptRecord) *model.ResultView {
	explanations := make(map[string]string)
	for _, q := range live.session.Questions() {
		if q.Explanation != "" {
			explanations[q.ID] = q.Explanation
		}
	}
	limit := live.session.Settings().MaxAttempts
	return &model.ResultView{
		AttemptID:      rec.ID,
		AttemptNumber:  rec.AttemptNumber,
		Trigger:        string(rec.Trigger),
		Result:         rec.Result,
		Explanations:   explanations,
		ElapsedSeconds: rec.ElapsedSeconds,
		SubmittedAt:    rec.SubmittedAt,
		PersistFailed:  live.session.PersistError() != nil,
		CanRetake:      limit <= 0 || rec.AttemptNumber < limit,
	}
}

// checkVisible hides unpublished quizzes from callers who cannot edit them.
func checkVisible(q *model.Quiz, claims *Claims) error {
	if q.Status == model.QuizStatusPublished {
		return nil
	}
	if claims != nil && claims.HasPermission(model.PermissionQuizzesWrite) {
		return nil
	}
	if q.Status == model.QuizStatusDraft {
		return ErrQuizNotPublished
	}
	return ErrQuizNotFound
}

// maxAttempts disables the limit for preview quizzes.
func maxAttempts(q *model.Quiz) int {
	if !q.Tracked() {
		return 0
	}
	return q.MaxAttempts
}
