package assessment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Phase enumerates session states.
type Phase string

const (
	PhaseIntro      Phase = "INTRO"
	PhaseInProgress Phase = "IN_PROGRESS"
	PhaseSubmitted  Phase = "SUBMITTED"
)

// DefaultGuestQuestionLimit is the number of questions an anonymous
// respondent may see when a quiz does not set its own limit.
const DefaultGuestQuestionLimit = 5

// ResultSink durably stores assembled attempts.
type ResultSink interface {
	SaveAttempt(ctx context.Context, rec *AttemptRecord) error
}

// AttemptGate counts attempts across every session a respondent opens on
// the same quiz.
type AttemptGate interface {
	// Used reports how many attempts have been claimed.
	Used() (int, error)
	// Claim reserves the next attempt and returns its number. It fails
	// with ErrAttemptLimitExceeded when no attempts remain.
	Claim() (int, error)
}

// Settings are the immutable inputs of one session.
type Settings struct {
	QuizID          string
	DurationMinutes int
	PassThreshold   int
	// MaxAttempts <= 0 means unlimited.
	MaxAttempts        int
	AttemptsUsed       int
	Guest              bool
	GuestQuestionLimit int
	RespondentID       *string
}

// State is a point-in-time snapshot of a session.
type State struct {
	SessionID        string               `json:"session_id"`
	QuizID           string               `json:"quiz_id"`
	Phase            Phase                `json:"phase"`
	CurrentIndex     int                  `json:"current_index"`
	Answers          map[string]AnswerSet `json:"answers"`
	Flagged          []string             `json:"flagged"`
	RemainingSeconds int                  `json:"remaining_seconds"`
	AttemptsUsed     int                  `json:"attempts_used"`
	MaxAttempts      int                  `json:"max_attempts"`
	QuestionCount    int                  `json:"question_count"`
	TotalQuestions   int                  `json:"total_questions"`
	Limited          bool                 `json:"limited"`
}

// Session drives one respondent through a timed, ordered question list.
type Session struct {
	mu sync.Mutex

	id        string
	settings  Settings
	questions []Question
	index     map[string]int
	total     int
	limited   bool

	phase        Phase
	currentIndex int
	answers      map[string]AnswerSet
	flagged      map[string]struct{}
	attemptsUsed int
	startedAt    time.Time
	run          uint64
	record       *AttemptRecord
	persistErr   error
	closed       bool

	timer          Countdown
	sink           ResultSink
	gate           AttemptGate
	now            func() time.Time
	log            zerolog.Logger
	persistTimeout time.Duration
	onSubmit       func(*AttemptRecord)
	onPersistError func(*AttemptRecord, error)
	onTick         func(remaining int)
	newCountdown   CountdownFactory
	persisting     sync.WaitGroup
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionID fixes the session id instead of generating one.
func WithSessionID(id string) SessionOption {
	return func(s *Session) { s.id = id }
}

// WithSink sets the collaborator that stores submitted attempts.
func WithSink(sink ResultSink) SessionOption {
	return func(s *Session) { s.sink = sink }
}

// WithAttemptGate makes attempt limits hold across sessions. Without a gate
// only the attempts of this session count.
func WithAttemptGate(gate AttemptGate) SessionOption {
	return func(s *Session) { s.gate = gate }
}

// WithCountdown replaces the real-time timer.
func WithCountdown(f CountdownFactory) SessionOption {
	return func(s *Session) { s.newCountdown = f }
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) SessionOption {
	return func(s *Session) { s.log = log }
}

// WithPersistTimeout bounds a single sink call.
func WithPersistTimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.persistTimeout = d }
}

// OnSubmit registers a hook called once per submitted attempt, for both
// manual and expiry submission.
func OnSubmit(fn func(*AttemptRecord)) SessionOption {
	return func(s *Session) { s.onSubmit = fn }
}

// OnPersistError registers a hook called when the sink rejects a record.
func OnPersistError(fn func(*AttemptRecord, error)) SessionOption {
	return func(s *Session) { s.onPersistError = fn }
}

// OnTick registers a hook called on every countdown tick.
func OnTick(fn func(remaining int)) SessionOption {
	return func(s *Session) { s.onTick = fn }
}

// NewSession builds a session in the INTRO phase. Guests over the visible
// limit only ever see the first GuestQuestionLimit questions.
func NewSession(questions []Question, settings Settings, opts ...SessionOption) (*Session, error) {
	if err := ValidateAll(questions); err != nil {
		return nil, err
	}

	s := &Session{
		settings:       settings,
		total:          len(questions),
		phase:          PhaseIntro,
		answers:        make(map[string]AnswerSet),
		flagged:        make(map[string]struct{}),
		attemptsUsed:   settings.AttemptsUsed,
		now:            time.Now,
		log:            zerolog.Nop(),
		persistTimeout: 10 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}

	visible := VisibleCount(len(questions), settings.Guest, settings.GuestQuestionLimit)
	s.limited = visible < len(questions)
	s.questions = make([]Question, visible)
	copy(s.questions, questions[:visible])
	s.index = make(map[string]int, len(s.questions))
	for i, q := range s.questions {
		s.index[q.ID] = i
	}

	if s.newCountdown == nil {
		s.newCountdown = DefaultCountdownFactory()
	}
	s.timer = s.newCountdown(s.expire, s.tick)
	s.timer.Reset(s.durationSeconds())

	s.log = s.log.With().
		Str("session_id", s.id).
		Str("quiz_id", settings.QuizID).
		Logger()
	return s, nil
}

// VisibleCount is how many of total questions a respondent may see. A
// non-positive limit shows guests everything.
func VisibleCount(total int, guest bool, limit int) int {
	if !guest || limit <= 0 {
		return total
	}
	return min(total, limit)
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Settings returns the construction inputs.
func (s *Session) Settings() Settings { return s.settings }

// QuestionCount is the number of questions reachable in this session.
func (s *Session) QuestionCount() int { return len(s.questions) }

// TotalQuestions is the authoritative question count before guest truncation.
func (s *Session) TotalQuestions() int { return s.total }

// Limited reports whether guest truncation hid questions.
func (s *Session) Limited() bool { return s.limited }

// Questions returns the visible questions. Callers must not modify them.
func (s *Session) Questions() []Question { return s.questions }

// Start begins a new attempt. It is allowed from INTRO and, as a direct
// retake, from SUBMITTED.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.phase == PhaseInProgress {
		s.mu.Unlock()
		return fmt.Errorf("%w: start while %s", ErrPhase, s.phase)
	}
	if !s.attemptsLeftLocked() {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d of %d used", ErrAttemptLimitExceeded, s.attemptsUsed, s.settings.MaxAttempts)
	}
	if s.gate != nil {
		n, err := s.gate.Claim()
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("claim attempt: %w", err)
		}
		s.attemptsUsed = n
	} else {
		s.attemptsUsed++
	}

	s.resetLocked()
	s.startedAt = s.now()
	s.phase = PhaseInProgress
	s.run++
	run := s.run
	attempt := s.attemptsUsed
	s.mu.Unlock()

	s.log.Info().Int("attempt", attempt).Int("duration_seconds", s.durationSeconds()).Msg("Session started")

	// The timer may expire synchronously, which re-enters the session.
	s.timer.Start(s.durationSeconds())

	s.mu.Lock()
	stale := s.run != run || s.phase != PhaseInProgress
	s.mu.Unlock()
	if stale {
		s.timer.Stop()
	}
	return nil
}

// SelectAnswer applies a label choice: replacement for single-answer
// questions, membership toggle for multi-answer ones. Short-answer
// questions treat label as free text.
func (s *Session) SelectAnswer(questionID, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInProgressLocked("select answer"); err != nil {
		return err
	}
	q, err := s.questionLocked(questionID)
	if err != nil {
		return err
	}

	if q.Type == QuestionTypeShortAnswer {
		s.setTextLocked(q.ID, label)
		return nil
	}
	if !q.HasOption(label) {
		return fmt.Errorf("%w: %s on %s", ErrUnknownOption, label, questionID)
	}
	s.answers[q.ID] = Toggle(s.answers[q.ID], label, IsMultiAnswer(q))
	return nil
}

// AnswerText records a free-text response for a short-answer question.
// Empty text clears the answer.
func (s *Session) AnswerText(questionID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInProgressLocked("answer text"); err != nil {
		return err
	}
	q, err := s.questionLocked(questionID)
	if err != nil {
		return err
	}
	if q.Type != QuestionTypeShortAnswer {
		return fmt.Errorf("%w: %s does not accept text", ErrUnknownOption, questionID)
	}
	s.setTextLocked(q.ID, text)
	return nil
}

// ToggleFlag flips the advisory review marker of a question.
func (s *Session) ToggleFlag(questionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInProgressLocked("toggle flag"); err != nil {
		return err
	}
	if _, err := s.questionLocked(questionID); err != nil {
		return err
	}
	if _, ok := s.flagged[questionID]; ok {
		delete(s.flagged, questionID)
	} else {
		s.flagged[questionID] = struct{}{}
	}
	return nil
}

// GoTo moves to index, clamped into the visible range, and returns the
// resulting position.
func (s *Session) GoTo(index int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInProgressLocked("go to"); err != nil {
		return s.currentIndex, err
	}
	if index >= len(s.questions) {
		index = len(s.questions) - 1
	}
	if index < 0 {
		index = 0
	}
	s.currentIndex = index
	return index, nil
}

// Submit grades the attempt and ends it. A second call after submission is
// a no-op that returns the existing record.
func (s *Session) Submit() (*AttemptRecord, error) {
	s.mu.Lock()
	if s.phase == PhaseSubmitted {
		rec := s.record
		s.mu.Unlock()
		return rec, nil
	}
	if err := s.requireInProgressLocked("submit"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	rec := s.submitLocked(TriggerManual)
	s.mu.Unlock()

	s.dispatch(rec)
	return rec, nil
}

// Retake returns a submitted session to INTRO with fresh answers, flags and
// timer, provided attempts remain.
func (s *Session) Retake() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.phase != PhaseSubmitted {
		return fmt.Errorf("%w: retake while %s", ErrPhase, s.phase)
	}
	if s.gate != nil {
		used, err := s.gate.Used()
		if err != nil {
			return fmt.Errorf("read attempts: %w", err)
		}
		s.attemptsUsed = max(s.attemptsUsed, used)
	}
	if !s.attemptsLeftLocked() {
		return fmt.Errorf("%w: %d of %d used", ErrAttemptLimitExceeded, s.attemptsUsed, s.settings.MaxAttempts)
	}
	s.resetLocked()
	s.phase = PhaseIntro
	s.timer.Reset(s.durationSeconds())
	return nil
}

// Close tears the session down and releases its tick source. Closing an
// in-progress session abandons the attempt without grading it.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.timer.Stop()
	s.log.Debug().Msg("Session closed")
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Result returns the record of the latest submitted attempt, if any.
func (s *Session) Result() (*AttemptRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record, s.record != nil
}

// PersistError returns the sink failure for the latest attempt, if any.
func (s *Session) PersistError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistErr
}

// WaitPersisted blocks until in-flight sink calls finish.
func (s *Session) WaitPersisted() {
	s.persisting.Wait()
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	answers := make(map[string]AnswerSet, len(s.answers))
	for id, set := range s.answers {
		answers[id] = set.Clone()
	}
	flagged := make([]string, 0, len(s.flagged))
	for id := range s.flagged {
		flagged = append(flagged, id)
	}
	sort.Strings(flagged)

	return State{
		SessionID:        s.id,
		QuizID:           s.settings.QuizID,
		Phase:            s.phase,
		CurrentIndex:     s.currentIndex,
		Answers:          answers,
		Flagged:          flagged,
		RemainingSeconds: s.timer.Remaining(),
		AttemptsUsed:     s.attemptsUsed,
		MaxAttempts:      s.settings.MaxAttempts,
		QuestionCount:    len(s.questions),
		TotalQuestions:   s.total,
		Limited:          s.limited,
	}
}

// expire is the countdown's expiry callback.
func (s *Session) expire() {
	s.mu.Lock()
	if s.phase != PhaseInProgress || s.closed {
		s.mu.Unlock()
		return
	}
	rec := s.submitLocked(TriggerExpired)
	s.mu.Unlock()

	s.dispatch(rec)
}

func (s *Session) tick(remaining int) {
	if s.onTick != nil {
		s.onTick(remaining)
	}
}

func (s *Session) submitLocked(trigger SubmitTrigger) *AttemptRecord {
	s.timer.Stop()

	scored := Score(s.questions, s.answers, s.settings.PassThreshold)
	rec := Assemble(AssemblyInput{
		ID:            uuid.NewString(),
		SessionID:     s.id,
		QuizID:        s.settings.QuizID,
		RespondentID:  s.settings.RespondentID,
		AttemptNumber: s.attemptsUsed,
		Trigger:       trigger,
		Result:        scored,
		Answers:       s.answers,
		StartedAt:     s.startedAt,
		SubmittedAt:   s.now(),
	})
	s.phase = PhaseSubmitted
	s.record = &rec
	s.persistErr = nil
	return &rec
}

// dispatch notifies hooks and hands the record to the sink without
// blocking the caller. The sink is called once and never retried here.
func (s *Session) dispatch(rec *AttemptRecord) {
	s.log.Info().
		Str("trigger", string(rec.Trigger)).
		Int("score", rec.Result.ScorePercent).
		Int("correct", rec.Result.CorrectCount).
		Int("total", rec.Result.TotalQuestions).
		Bool("passed", rec.Result.Passed).
		Msg("Session submitted")

	if s.onSubmit != nil {
		s.onSubmit(rec)
	}
	if s.sink == nil {
		return
	}

	s.persisting.Add(1)
	go func() {
		defer s.persisting.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
		defer cancel()

		if err := s.sink.SaveAttempt(ctx, rec); err != nil {
			s.log.Error().Err(err).Str("attempt_id", rec.ID).Msg("Persist attempt failed")
			s.mu.Lock()
			if s.record == rec {
				s.persistErr = err
			}
			s.mu.Unlock()
			if s.onPersistError != nil {
				s.onPersistError(rec, err)
			}
		}
	}()
}

func (s *Session) requireInProgressLocked(op string) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.phase != PhaseInProgress {
		return fmt.Errorf("%w: %s while %s", ErrPhase, op, s.phase)
	}
	return nil
}

func (s *Session) questionLocked(id string) (Question, error) {
	i, ok := s.index[id]
	if !ok {
		return Question{}, fmt.Errorf("%w: %s", ErrUnknownQuestion, id)
	}
	return s.questions[i], nil
}

func (s *Session) setTextLocked(id, text string) {
	norm := NormalizeText(text)
	if norm == "" {
		delete(s.answers, id)
		return
	}
	s.answers[id] = NewAnswerSet(norm)
}

func (s *Session) attemptsLeftLocked() bool {
	return s.settings.MaxAttempts <= 0 || s.attemptsUsed < s.settings.MaxAttempts
}

func (s *Session) resetLocked() {
	s.answers = make(map[string]AnswerSet)
	s.flagged = make(map[string]struct{})
	s.currentIndex = 0
	s.record = nil
	s.persistErr = nil
}

func (s *Session) durationSeconds() int {
	return s.settings.DurationMinutes * 60
}
