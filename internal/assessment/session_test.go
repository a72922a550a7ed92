package assessment

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type memorySink struct {
	mu      sync.Mutex
	records []*AttemptRecord
	err     error
}

func (m *memorySink) SaveAttempt(_ context.Context, rec *AttemptRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return m.err
}

func (m *memorySink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// manualClock hands out a manually driven timer per session.
type manualClock struct {
	timer *Timer
}

func (c *manualClock) factory() CountdownFactory {
	return func(onExpire func(), onTick func(int)) Countdown {
		c.timer = NewTimer(onExpire, WithManualTicks(), WithOnTick(onTick))
		return c.timer
	}
}

func newTestSession(t *testing.T, questions []Question, settings Settings, opts ...SessionOption) (*Session, *manualClock) {
	t.Helper()
	clock := &manualClock{}
	s, err := NewSession(questions, settings, append([]SessionOption{WithCountdown(clock.factory())}, opts...)...)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(s.Close)
	return s, clock
}

func questionList(n int) []Question {
	qs := make([]Question, n)
	for i := range qs {
		qs[i] = mcq(fmt.Sprintf("q%d", i+1), "A")
	}
	return qs
}

func TestSession_MultiAnswerFullMarks(t *testing.T) {
	sink := &memorySink{}
	s, _ := newTestSession(t,
		[]Question{mcq("q1", "A"), mcq("q2", "A", "C")},
		Settings{QuizID: "quiz", DurationMinutes: 10, PassThreshold: 70},
		WithSink(sink),
	)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	mustSelect(t, s, "q1", "A")
	mustSelect(t, s, "q2", "A")
	mustSelect(t, s, "q2", "C")

	rec, err := s.Submit()
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	r := rec.Result
	if r.TotalQuestions != 2 || r.CorrectCount != 2 || r.ScorePercent != 100 || !r.Passed {
		t.Fatalf("result = %+v", r)
	}
	if rec.Trigger != TriggerManual || rec.AttemptNumber != 1 {
		t.Fatalf("record = %+v", rec)
	}

	s.WaitPersisted()
	if sink.count() != 1 {
		t.Fatalf("sink received %d records, want 1", sink.count())
	}
}

func TestSession_SingleAnswerReplaces(t *testing.T) {
	s, _ := newTestSession(t, []Question{mcq("q1", "B")}, Settings{DurationMinutes: 1})
	mustStart(t, s)

	mustSelect(t, s, "q1", "A")
	mustSelect(t, s, "q1", "B")

	got := s.State().Answers["q1"]
	if !Equal(got, NewAnswerSet("B")) {
		t.Fatalf("answers = %v, want [B]", got.Labels())
	}
}

func TestSession_GuestTruncation(t *testing.T) {
	s, _ := newTestSession(t, questionList(10), Settings{
		DurationMinutes:    5,
		Guest:              true,
		GuestQuestionLimit: 5,
	})

	if s.QuestionCount() != 5 {
		t.Fatalf("QuestionCount = %d, want 5", s.QuestionCount())
	}
	if s.TotalQuestions() != 10 || !s.Limited() {
		t.Fatalf("TotalQuestions = %d limited = %v", s.TotalQuestions(), s.Limited())
	}

	mustStart(t, s)
	if err := s.SelectAnswer("q6", "A"); !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("answering hidden question: err = %v", err)
	}
	if idx, _ := s.GoTo(9); idx != 4 {
		t.Fatalf("GoTo(9) = %d, want clamp to 4", idx)
	}

	rec, _ := s.Submit()
	if rec.Result.TotalQuestions != 5 {
		t.Fatalf("graded %d questions, want 5", rec.Result.TotalQuestions)
	}
}

func TestSession_GuestUnderLimitNotLimited(t *testing.T) {
	s, _ := newTestSession(t, questionList(3), Settings{DurationMinutes: 5, Guest: true})
	if s.Limited() || s.QuestionCount() != 3 {
		t.Fatalf("limited = %v count = %d", s.Limited(), s.QuestionCount())
	}
}

func TestSession_StartAtAttemptLimit(t *testing.T) {
	s, _ := newTestSession(t, questionList(2), Settings{
		DurationMinutes: 5,
		MaxAttempts:     1,
		AttemptsUsed:    1,
	})

	err := s.Start()
	if !errors.Is(err, ErrAttemptLimitExceeded) {
		t.Fatalf("Start err = %v, want ErrAttemptLimitExceeded", err)
	}
	if st := s.State(); st.Phase != PhaseIntro || st.AttemptsUsed != 1 {
		t.Fatalf("state after rejected start = %+v", st)
	}
}

func TestVisibleCount(t *testing.T) {
	tests := []struct {
		name         string
		total, limit int
		guest        bool
		want         int
	}{
		{name: "respondent sees all", total: 8, limit: 5, guest: false, want: 8},
		{name: "guest over limit", total: 8, limit: 5, guest: true, want: 5},
		{name: "guest under limit", total: 3, limit: 5, guest: true, want: 3},
		{name: "zero limit shows all", total: 8, limit: 0, guest: true, want: 8},
		{name: "negative limit shows all", total: 8, limit: -1, guest: true, want: 8},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := VisibleCount(tc.total, tc.guest, tc.limit); got != tc.want {
				t.Fatalf("VisibleCount(%d, %v, %d) = %d, want %d", tc.total, tc.guest, tc.limit, got, tc.want)
			}
		})
	}
}

// sharedGate is an AttemptGate shared by several sessions.
type sharedGate struct {
	mu    sync.Mutex
	used  int
	limit int
	err   error
}

func (g *sharedGate) Used() (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.used, g.err
}

func (g *sharedGate) Claim() (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return 0, g.err
	}
	if g.limit > 0 && g.used >= g.limit {
		return 0, ErrAttemptLimitExceeded
	}
	g.used++
	return g.used, nil
}

func TestSession_AttemptGateSpansSessions(t *testing.T) {
	gate := &sharedGate{limit: 2}
	settings := Settings{DurationMinutes: 5, MaxAttempts: 2}
	a, _ := newTestSession(t, questionList(1), settings, WithAttemptGate(gate))
	b, _ := newTestSession(t, questionList(1), settings, WithAttemptGate(gate))
	c, _ := newTestSession(t, questionList(1), settings, WithAttemptGate(gate))

	mustStart(t, a)
	mustStart(t, b)
	if st := b.State(); st.AttemptsUsed != 2 {
		t.Fatalf("second session AttemptsUsed = %d, want 2", st.AttemptsUsed)
	}
	if err := c.Start(); !errors.Is(err, ErrAttemptLimitExceeded) {
		t.Fatalf("third Start err = %v, want ErrAttemptLimitExceeded", err)
	}
	if st := c.State(); st.Phase != PhaseIntro {
		t.Fatalf("rejected session phase = %s", st.Phase)
	}

	rec, _ := a.Submit()
	if rec.AttemptNumber != 1 {
		t.Fatalf("AttemptNumber = %d, want 1", rec.AttemptNumber)
	}
	if err := a.Retake(); !errors.Is(err, ErrAttemptLimitExceeded) {
		t.Fatalf("Retake err = %v, want ErrAttemptLimitExceeded", err)
	}
}

func TestSession_AttemptGateFailureLeavesIntro(t *testing.T) {
	gate := &sharedGate{err: errors.New("redis down")}
	s, _ := newTestSession(t, questionList(1), Settings{DurationMinutes: 5}, WithAttemptGate(gate))

	if err := s.Start(); err == nil || !errors.Is(err, gate.err) {
		t.Fatalf("Start err = %v", err)
	}
	if st := s.State(); st.Phase != PhaseIntro || st.AttemptsUsed != 0 {
		t.Fatalf("state after failed claim = %+v", st)
	}
}

func TestSession_PhaseGuard(t *testing.T) {
	s, _ := newTestSession(t, questionList(3), Settings{DurationMinutes: 5})

	check := func(stage string) {
		t.Helper()
		before := s.State()
		if err := s.SelectAnswer("q1", "A"); !errors.Is(err, ErrPhase) {
			t.Fatalf("%s: SelectAnswer err = %v", stage, err)
		}
		if err := s.ToggleFlag("q1"); !errors.Is(err, ErrPhase) {
			t.Fatalf("%s: ToggleFlag err = %v", stage, err)
		}
		if _, err := s.GoTo(2); !errors.Is(err, ErrPhase) {
			t.Fatalf("%s: GoTo err = %v", stage, err)
		}
		after := s.State()
		if !reflect.DeepEqual(before.Answers, after.Answers) ||
			!reflect.DeepEqual(before.Flagged, after.Flagged) ||
			before.CurrentIndex != after.CurrentIndex {
			t.Fatalf("%s: state changed: %+v -> %+v", stage, before, after)
		}
	}

	check("intro")
	if _, err := s.Submit(); !errors.Is(err, ErrPhase) {
		t.Fatalf("Submit from intro err = %v", err)
	}

	mustStart(t, s)
	mustSelect(t, s, "q2", "A")
	if _, err := s.GoTo(1); err != nil {
		t.Fatalf("GoTo: %v", err)
	}
	if _, err := s.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	check("submitted")
}

func TestSession_FlagsAndNavigation(t *testing.T) {
	s, _ := newTestSession(t, questionList(3), Settings{DurationMinutes: 5})
	mustStart(t, s)

	if err := s.ToggleFlag("q2"); err != nil {
		t.Fatalf("ToggleFlag: %v", err)
	}
	if err := s.ToggleFlag("q3"); err != nil {
		t.Fatalf("ToggleFlag: %v", err)
	}
	if err := s.ToggleFlag("q3"); err != nil {
		t.Fatalf("ToggleFlag: %v", err)
	}
	if idx, _ := s.GoTo(-3); idx != 0 {
		t.Fatalf("GoTo(-3) = %d", idx)
	}
	if idx, _ := s.GoTo(1); idx != 1 {
		t.Fatalf("GoTo(1) = %d", idx)
	}

	st := s.State()
	if !reflect.DeepEqual(st.Flagged, []string{"q2"}) || st.CurrentIndex != 1 {
		t.Fatalf("state = %+v", st)
	}

	// Flags never affect grading.
	rec, _ := s.Submit()
	if rec.Result.CorrectCount != 0 {
		t.Fatalf("flags changed the score: %+v", rec.Result)
	}
}

func TestSession_UnknownOptionRejected(t *testing.T) {
	s, _ := newTestSession(t, questionList(1), Settings{DurationMinutes: 5})
	mustStart(t, s)

	if err := s.SelectAnswer("q1", "Z"); !errors.Is(err, ErrUnknownOption) {
		t.Fatalf("err = %v, want ErrUnknownOption", err)
	}
	if len(s.State().Answers) != 0 {
		t.Fatal("rejected selection was recorded")
	}
}

func TestSession_ShortAnswer(t *testing.T) {
	q := Question{
		ID:             "sa",
		Type:           QuestionTypeShortAnswer,
		Prompt:         "Capital of Italy?",
		CorrectAnswers: NewAnswerSet(NormalizeText("Rome")),
	}
	s, _ := newTestSession(t, []Question{q, mcq("q1", "A")}, Settings{DurationMinutes: 5, PassThreshold: 50})
	mustStart(t, s)

	if err := s.AnswerText("sa", "  ROME "); err != nil {
		t.Fatalf("AnswerText: %v", err)
	}
	if err := s.AnswerText("q1", "A"); !errors.Is(err, ErrUnknownOption) {
		t.Fatalf("AnswerText on choice question err = %v", err)
	}

	rec, _ := s.Submit()
	if !rec.Result.PerQuestion["sa"].IsCorrect || rec.Result.ScorePercent != 50 || !rec.Result.Passed {
		t.Fatalf("result = %+v", rec.Result)
	}
}

func TestSession_ExpiryAndManualSubmitRace(t *testing.T) {
	sink := &memorySink{}
	var submits atomic.Int32
	s, clock := newTestSession(t, questionList(2), Settings{DurationMinutes: 1},
		WithSink(sink),
		OnSubmit(func(*AttemptRecord) { submits.Add(1) }),
	)
	mustStart(t, s)
	mustSelect(t, s, "q1", "A")

	for i := 0; i < 59; i++ {
		clock.timer.Tick()
	}
	if s.State().Phase != PhaseInProgress {
		t.Fatal("submitted before expiry")
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); clock.timer.Tick() }()
	go func() { defer wg.Done(); _, _ = s.Submit() }()
	wg.Wait()
	_, _ = s.Submit()

	s.WaitPersisted()
	if submits.Load() != 1 {
		t.Fatalf("submit transition ran %d times, want 1", submits.Load())
	}
	if sink.count() != 1 {
		t.Fatalf("sink received %d records, want 1", sink.count())
	}
	if s.State().Phase != PhaseSubmitted {
		t.Fatalf("phase = %s", s.State().Phase)
	}
}

func TestSession_ExpirySubmits(t *testing.T) {
	var got *AttemptRecord
	s, clock := newTestSession(t, questionList(1), Settings{DurationMinutes: 1},
		OnSubmit(func(rec *AttemptRecord) { got = rec }),
	)
	mustStart(t, s)
	for i := 0; i < 60; i++ {
		clock.timer.Tick()
	}

	if got == nil || got.Trigger != TriggerExpired {
		t.Fatalf("expiry record = %+v", got)
	}
	if st := s.State(); st.Phase != PhaseSubmitted || st.RemainingSeconds != 0 {
		t.Fatalf("state = %+v", st)
	}
}

func TestSession_ZeroDurationExpiresOnStart(t *testing.T) {
	s, _ := newTestSession(t, questionList(1), Settings{DurationMinutes: 0})
	mustStart(t, s)

	rec, ok := s.Result()
	if !ok || rec.Trigger != TriggerExpired {
		t.Fatalf("result = %+v ok = %v", rec, ok)
	}
}

func TestSession_RetakeResetsState(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := base
	s, clock := newTestSession(t, questionList(2), Settings{DurationMinutes: 2, MaxAttempts: 2},
		WithClock(func() time.Time { return now }),
	)

	mustStart(t, s)
	mustSelect(t, s, "q1", "A")
	_ = s.ToggleFlag("q2")
	clock.timer.Tick()
	now = base.Add(42 * time.Second)
	rec, _ := s.Submit()
	if rec.ElapsedSeconds != 42 {
		t.Fatalf("ElapsedSeconds = %d, want 42", rec.ElapsedSeconds)
	}

	if err := s.Retake(); err != nil {
		t.Fatalf("Retake: %v", err)
	}
	st := s.State()
	if st.Phase != PhaseIntro || len(st.Answers) != 0 || len(st.Flagged) != 0 || st.RemainingSeconds != 120 {
		t.Fatalf("state after retake = %+v", st)
	}
	if _, ok := s.Result(); ok {
		t.Fatal("previous result survived retake")
	}

	mustStart(t, s)
	if st := s.State(); st.AttemptsUsed != 2 || st.Phase != PhaseInProgress {
		t.Fatalf("state = %+v", st)
	}
	_, _ = s.Submit()

	if err := s.Retake(); !errors.Is(err, ErrAttemptLimitExceeded) {
		t.Fatalf("third Retake err = %v", err)
	}
	if err := s.Start(); !errors.Is(err, ErrAttemptLimitExceeded) {
		t.Fatalf("third Start err = %v", err)
	}
}

func TestSession_PersistFailureKeepsResult(t *testing.T) {
	sink := &memorySink{err: errors.New("db down")}
	reported := make(chan error, 1)
	s, _ := newTestSession(t, questionList(1), Settings{DurationMinutes: 1},
		WithSink(sink),
		OnPersistError(func(_ *AttemptRecord, err error) { reported <- err }),
	)
	mustStart(t, s)
	mustSelect(t, s, "q1", "A")

	if _, err := s.Submit(); err != nil {
		t.Fatalf("Submit returned sink failure: %v", err)
	}
	s.WaitPersisted()

	select {
	case err := <-reported:
		if err.Error() != "db down" {
			t.Fatalf("reported %v", err)
		}
	default:
		t.Fatal("persist failure not reported")
	}
	if s.PersistError() == nil {
		t.Fatal("PersistError() = nil")
	}
	rec, ok := s.Result()
	if !ok || rec.Result.ScorePercent != 100 {
		t.Fatalf("local result lost: %+v", rec)
	}
	if sink.count() != 1 {
		t.Fatalf("sink called %d times, want exactly 1", sink.count())
	}
}

func TestSession_CloseStopsTimer(t *testing.T) {
	var submitted atomic.Int32
	s, clock := newTestSession(t, questionList(1), Settings{DurationMinutes: 1},
		OnSubmit(func(*AttemptRecord) { submitted.Add(1) }),
	)
	mustStart(t, s)
	s.Close()

	if clock.timer.State() != TimerStopped {
		t.Fatalf("timer state = %s", clock.timer.State())
	}
	for i := 0; i < 60; i++ {
		clock.timer.Tick()
	}
	if submitted.Load() != 0 {
		t.Fatal("closed session submitted on a stale tick")
	}
	if err := s.SelectAnswer("q1", "A"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("SelectAnswer after Close err = %v", err)
	}
}

func TestNewSession_RejectsInvalidQuestions(t *testing.T) {
	bad := mcq("q1", "A")
	bad.Options = bad.Options[:1]
	if _, err := NewSession([]Question{bad}, Settings{}); !errors.Is(err, ErrInvalidQuestion) {
		t.Fatalf("err = %v, want ErrInvalidQuestion", err)
	}

	dup := []Question{mcq("q1", "A"), mcq("q1", "B")}
	if _, err := NewSession(dup, Settings{}); !errors.Is(err, ErrInvalidQuestion) {
		t.Fatalf("duplicate ids err = %v", err)
	}
}

func mustStart(t *testing.T, s *Session) {
	t.Helper()
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func mustSelect(t *testing.T, s *Session, qid, label string) {
	t.Helper()
	if err := s.SelectAnswer(qid, label); err != nil {
		t.Fatalf("SelectAnswer(%s, %s): %v", qid, label, err)
	}
}
