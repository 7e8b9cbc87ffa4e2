// Package quiz is the per-user conversational quiz orchestrator: onboarding,
// theme selection, the five question game, timers and scoring.
package quiz

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Trivia-KakaoTalk-bot/internal/metrics"
)

type Config struct {
	QuestionTimeout      time.Duration
	FinalQuestionTimeout time.Duration
	NextQuestionDelay    time.Duration
	// GenerationTimeout bounds one Generate call including its retries.
	GenerationTimeout time.Duration
	HintTimeout       time.Duration
	BridgeTimeout     time.Duration
	LeaderboardSize   int
	// HistoryLookback is how many earlier questions on the same theme are excluded; 0 disables.
	HistoryLookback int
}

func (c *Config) applyDefaults() {
	if c.QuestionTimeout <= 0 {
		c.QuestionTimeout = 30 * time.Second
	}
	if c.FinalQuestionTimeout <= 0 {
		c.FinalQuestionTimeout = 60 * time.Second
	}
	if c.NextQuestionDelay <= 0 {
		c.NextQuestionDelay = 3 * time.Second
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = 45 * time.Second
	}
	if c.HintTimeout <= 0 {
		c.HintTimeout = 15 * time.Second
	}
	if c.BridgeTimeout <= 0 {
		c.BridgeTimeout = 5 * time.Second
	}
	if c.LeaderboardSize <= 0 {
		c.LeaderboardSize = 5
	}
}

type Deps struct {
	Messenger Messenger
	Questions QuestionSource
	Scores    ScoreBridge
	Texts     Texts
	Welcome   WelcomeMedia // optional
	Store     *Store       // optional, a fresh one is created
	Scheduler Scheduler    // optional, WallClock
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

type Service struct {
	cfg       Config
	messenger Messenger
	questions QuestionSource
	scores    ScoreBridge
	texts     Texts
	welcome   WelcomeMedia
	store     *Store
	log       *zap.Logger
	metrics   *metrics.Metrics

	timers    *timers
	mailboxes *mailboxes

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func NewService(cfg Config, deps Deps) (*Service, error) {
	switch {
	case deps.Messenger == nil:
		return nil, errors.New("quiz: messenger is required")
	case deps.Questions == nil:
		return nil, errors.New("quiz: question source is required")
	case deps.Scores == nil:
		return nil, errors.New("quiz: score bridge is required")
	case deps.Texts == nil:
		return nil, errors.New("quiz: texts are required")
	}
	cfg.applyDefaults()

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store := deps.Store
	if store == nil {
		store = NewStore()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cfg:       cfg,
		messenger: deps.Messenger,
		questions: deps.Questions,
		scores:    deps.Scores,
		texts:     deps.Texts,
		welcome:   deps.Welcome,
		store:     store,
		log:       logger.Named("quiz"),
		metrics:   deps.Metrics,
		ctx:       ctx,
		cancel:    cancel,
	}
	s.mailboxes = newMailboxes(s.dispatch)
	s.timers = newTimers(deps.Scheduler, func(userID string, ev event) {
		s.mailboxes.post(userID, ev)
	})
	return s, nil
}

// Handle queues an inbound message for its user and returns immediately.
// It reports false for messages without a user id or after Close.
func (s *Service) Handle(in Inbound) bool {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return false
	}
	return s.mailboxes.post(userID, event{kind: eventText, room: in.Room, text: in.Text})
}

// Drain waits until every queued event, including fired timers, has been handled.
func (s *Service) Drain() { s.mailboxes.drain() }

// Session returns a snapshot of the user's session.
func (s *Service) Session(userID string) (*Session, bool) { return s.store.Get(userID) }

// Close stops all timers, rejects new events and waits for in-flight handlers.
// Games in progress are abandoned without committing their round score.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.timers.stopAll()
		s.cancel()
		s.mailboxes.close()
		// handlers that were running during close may have armed new timers
		s.timers.stopAll()
	})
}

func (s *Service) dispatch(userID string, ev event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("quiz_handler_panic",
				zap.String("user_id", userID),
				zap.Stringer("event", ev.kind),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()

	s.metrics.Event(ev.kind.String())
	sess, ok := s.store.Get(userID)
	if !ok {
		sess = &Session{UserID: userID, Phase: PhaseNew}
	}
	if ev.room != "" {
		sess.Room = ev.room
	}

	switch ev.kind {
	case eventTimeout:
		s.onTimeout(sess, ev)
	case eventNextQuestion:
		s.onNextQuestion(sess, ev)
	default:
		s.onText(sess, ev.text)
	}

	s.metrics.SetSessions(s.store.Put(sess))
}

func (s *Service) say(sess *Session, key string, data any) {
	s.send(sess, s.texts.Text(key, data))
}

func (s *Service) send(sess *Session, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.BridgeTimeout)
	defer cancel()
	if err := s.messenger.SendText(ctx, sess.Room, text); err != nil {
		s.metrics.EgressError()
		s.log.Warn("quiz_send_failed", zap.String("user_id", sess.UserID), zap.String("room", sess.Room), zap.Error(err))
	}
}

func (s *Service) bridgeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.ctx, s.cfg.BridgeTimeout)
}

// questionLimit is the answer window for the question at index.
func (s *Service) questionLimit(index int) time.Duration {
	if index >= QuestionsPerGame-1 {
		return s.cfg.FinalQuestionTimeout
	}
	return s.cfg.QuestionTimeout
}

func (s *Service) durationText(d time.Duration) string {
	switch {
	case d == time.Minute:
		return s.texts.Text("duration.minute", nil)
	case d >= time.Minute && d%time.Minute == 0:
		return s.texts.Text("duration.minutes", map[string]any{"N": int(d / time.Minute)})
	default:
		return s.texts.Text("duration.seconds", map[string]any{"N": int(d.Round(time.Second) / time.Second)})
	}
}

func (s *Service) menu() string {
	return s.texts.Text("menu.themes", map[string]any{"Themes": Themes})
}
