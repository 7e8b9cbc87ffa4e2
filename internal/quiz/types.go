package quiz

import (
	"context"

	"github.com/park285/Trivia-KakaoTalk-bot/internal/domain"
)

// Phase is the conversational state of a session.
type Phase string

const (
	PhaseNew                 Phase = "NEW"
	PhaseAwaitingName        Phase = "AWAITING_NAME"
	PhaseAwaitingNameConfirm Phase = "AWAITING_NAME_CONFIRM"
	PhaseAwaitingTheme       Phase = "AWAITING_THEME"
	PhaseAwaitingFreeTheme   Phase = "AWAITING_FREE_THEME"
	PhaseInQuiz              Phase = "IN_QUIZ"
	PhaseIdle                Phase = "IDLE"
)

const (
	QuestionsPerGame = 5
	PointsCorrect    = 10
	PointsWrong      = 5
)

// Session is everything tracked for one user between events.
type Session struct {
	UserID string
	Room   string
	Phase  Phase

	CandidateName string
	ConfirmedName string
	Theme         string
	Welcomed      bool

	GameID        string
	QuestionIndex int // questions already resolved in this game
	RoundScore    int
	Current       *domain.Question
	Asked         []string // texts issued in this game, in order
	Avoid         []string // texts from earlier games on the same theme, oldest first

	// TimerToken identifies the one live timer (question expiry or next-question delay); 0 means none.
	TimerToken uint64
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Current = s.Current.Clone()
	cp.Asked = append([]string(nil), s.Asked...)
	cp.Avoid = append([]string(nil), s.Avoid...)
	return &cp
}

// resetToIdle drops all game state, keeping identity and name.
func (s *Session) resetToIdle() {
	*s = Session{
		UserID:        s.UserID,
		Room:          s.Room,
		Phase:         PhaseIdle,
		ConfirmedName: s.ConfirmedName,
		Welcomed:      s.Welcomed,
	}
}

// Inbound is one text message from the channel.
type Inbound struct {
	UserID string
	Room   string
	Text   string
}

// Messenger delivers replies to a room.
type Messenger interface {
	SendText(ctx context.Context, room, text string) error
	SendImage(ctx context.Context, room string, png []byte) error
}

// QuestionSource produces questions and hints; *questiongen.Generator implements it.
type QuestionSource interface {
	Generate(ctx context.Context, topic string, tier domain.Tier, previouslyAsked []string) (*domain.Question, error)
	Hint(ctx context.Context, questionText string) string
}

// ScoreBridge persists users, scores and the answer log; *scorebridge.Bridge implements it.
type ScoreBridge interface {
	LookupUser(ctx context.Context, userID string) (*domain.User, error)
	RegisterUser(ctx context.Context, userID, name string) error
	RecordAnswer(rec domain.AnswerRecord)
	CommitScore(ctx context.Context, userID string, delta int) error
	TopScores(ctx context.Context, limit int) ([]domain.RankEntry, error)
	RecentQuestions(ctx context.Context, userID, topic string, limit int) ([]string, error)
}

// Texts renders user-facing messages; *msgcat.Catalog implements it.
type Texts interface {
	Text(key string, data any) string
}

// WelcomeMedia provides the onboarding image, sent once per session.
type WelcomeMedia interface {
	PNG(ctx context.Context) ([]byte, error)
}
