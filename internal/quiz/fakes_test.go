package quiz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/park285/Trivia-KakaoTalk-bot/internal/domain"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/msgcat"
)

// manualScheduler never fires on its own; tests fire timers explicitly.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
	mu      *sync.Mutex
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Stopper {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{d: d, f: f, mu: &s.mu}
	s.timers = append(s.timers, t)
	return t
}

func (s *manualScheduler) live() []*manualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*manualTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fire runs t's callback regardless of whether it was stopped, which models a
// timer that expired just before the cancellation reached it.
func (s *manualScheduler) fire(t *manualTimer) {
	s.mu.Lock()
	t.fired = true
	s.mu.Unlock()
	t.f()
}

type sent struct {
	room  string
	text  string
	image bool
}

type fakeMessenger struct {
	mu   sync.Mutex
	out  []sent
	fail error
}

func (m *fakeMessenger) SendText(_ context.Context, room, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.out = append(m.out, sent{room: room, text: text})
	return m.fail
}

func (m *fakeMessenger) SendImage(_ context.Context, room string, png []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.out = append(m.out, sent{room: room, image: true})
	return m.fail
}

func (m *fakeMessenger) all() []sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sent(nil), m.out...)
}

func (m *fakeMessenger) reset() {
	m.mu.Lock()
	m.out = nil
	m.mu.Unlock()
}

type fakeQuestions struct {
	mu       sync.Mutex
	calls    int
	hints    int
	asked    [][]string
	failFrom int // generation fails from this call number on (1-based); 0 never
	repeat   bool
}

func (q *fakeQuestions) Generate(_ context.Context, topic string, tier domain.Tier, previouslyAsked []string) (*domain.Question, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	q.asked = append(q.asked, append([]string(nil), previouslyAsked...))
	if q.failFrom > 0 && q.calls >= q.failFrom {
		return nil, errors.New("question generation exhausted")
	}
	n := q.calls
	if q.repeat {
		n = 1
	}
	return &domain.Question{
		ID:      fmt.Sprintf("q-%d", q.calls),
		Text:    fmt.Sprintf("Pergunta %d sobre %s?", n, topic),
		Options: []string{fmt.Sprintf("A%d", n), fmt.Sprintf("B%d", n), fmt.Sprintf("C%d", n), fmt.Sprintf("D%d", n)},
		Correct: fmt.Sprintf("B%d", n),
		Tier:    tier,
	}, nil
}

func (q *fakeQuestions) Hint(_ context.Context, questionText string) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.hints++
	return "pense na letra B"
}

func (q *fakeQuestions) generateCalls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

type fakeScores struct {
	mu        sync.Mutex
	users     map[string]*domain.User
	commits   []int
	records   []domain.AnswerRecord
	top       []domain.RankEntry
	recent    []string
	lookupErr error
	regErr    error
	topErr    error
}

func newFakeScores() *fakeScores {
	return &fakeScores{users: make(map[string]*domain.User)}
}

func (f *fakeScores) LookupUser(_ context.Context, userID string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	u, ok := f.users[userID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeScores) RegisterUser(_ context.Context, userID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.regErr != nil {
		return f.regErr
	}
	f.users[userID] = &domain.User{UserID: userID, Name: name}
	return nil
}

func (f *fakeScores) RecordAnswer(rec domain.AnswerRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
}

func (f *fakeScores) CommitScore(_ context.Context, userID string, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, delta)
	if u, ok := f.users[userID]; ok {
		u.Score += delta
	}
	return nil
}

func (f *fakeScores) TopScores(_ context.Context, limit int) ([]domain.RankEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.topErr != nil {
		return nil, f.topErr
	}
	return append([]domain.RankEntry(nil), f.top...), nil
}

func (f *fakeScores) RecentQuestions(_ context.Context, userID, topic string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.recent...), nil
}

func (f *fakeScores) snapshot() (commits []int, records []domain.AnswerRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.commits...), append([]domain.AnswerRecord(nil), f.records...)
}

type staticWelcome struct{}

func (staticWelcome) PNG(context.Context) ([]byte, error) { return []byte{0x89, 'P', 'N', 'G'}, nil }

type harness struct {
	t         *testing.T
	svc       *Service
	sched     *manualScheduler
	messenger *fakeMessenger
	questions *fakeQuestions
	scores    *fakeScores
	logs      *observer.ObservedLogs
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	cat, err := msgcat.New("")
	require.NoError(t, err)

	h := &harness{
		t:         t,
		sched:     &manualScheduler{},
		messenger: &fakeMessenger{},
		questions: &fakeQuestions{},
		scores:    newFakeScores(),
	}
	core, logs := observer.New(zapcore.DebugLevel)
	h.logs = logs
	cfg := Config{}
	for _, m := range mutate {
		m(&cfg)
	}
	svc, err := NewService(cfg, Deps{
		Messenger: h.messenger,
		Questions: h.questions,
		Scores:    h.scores,
		Texts:     cat,
		Welcome:   staticWelcome{},
		Scheduler: h.sched,
		Logger:    zap.New(core),
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	h.svc = svc
	return h
}

const testUser = "room-1:user-1"

func (h *harness) say(text string) {
	h.t.Helper()
	require.True(h.t, h.svc.Handle(Inbound{UserID: testUser, Room: "room-1", Text: text}))
	h.svc.Drain()
}

func (h *harness) session() *Session {
	h.t.Helper()
	sess, ok := h.svc.Session(testUser)
	require.True(h.t, ok, "session should exist")
	return sess
}

// liveTimer returns the single armed timer and fails if there is not exactly one.
func (h *harness) liveTimer() *manualTimer {
	h.t.Helper()
	live := h.sched.live()
	require.Len(h.t, live, 1, "expected exactly one live timer")
	return live[0]
}

func (h *harness) fire(t *manualTimer) {
	h.sched.fire(t)
	h.svc.Drain()
}

func (h *harness) lastText() string {
	out := h.messenger.all()
	for i := len(out) - 1; i >= 0; i-- {
		if !out[i].image {
			return out[i].text
		}
	}
	return ""
}

func (h *harness) textsContaining(sub string) int {
	n := 0
	for _, m := range h.messenger.all() {
		if strings.Contains(m.text, sub) {
			n++
		}
	}
	return n
}

// startGame registers the test user and starts a game on theme 1.
func (h *harness) startGame() {
	h.t.Helper()
	h.scores.users[testUser] = &domain.User{UserID: testUser, Name: "Ana"}
	h.say("oi")
	h.say("1")
	require.Equal(h.t, PhaseInQuiz, h.session().Phase)
}
