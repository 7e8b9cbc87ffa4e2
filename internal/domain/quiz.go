package domain

import "time"

// Tier is the difficulty of a question, derived from its position in the game.
type Tier string

const (
	TierEasy      Tier = "EASY"
	TierNormal    Tier = "NORMAL"
	TierChallenge Tier = "CHALLENGE"
)

// TierForIndex maps a zero-based question index to its tier.
// 0-1 easy, 2-3 normal, 4 and beyond challenge.
func TierForIndex(index int) Tier {
	switch {
	case index < 2:
		return TierEasy
	case index < 4:
		return TierNormal
	default:
		return TierChallenge
	}
}

// Question is a generated multiple choice item.
type Question struct {
	ID      string
	Text    string
	Options []string
	Correct string
	Tier    Tier
}

// OptionAt returns the option for a 1-based choice.
func (q *Question) OptionAt(choice int) (string, bool) {
	if q == nil || choice < 1 || choice > len(q.Options) {
		return "", false
	}
	return q.Options[choice-1], true
}

// Clone returns a deep copy.
func (q *Question) Clone() *Question {
	if q == nil {
		return nil
	}
	cp := *q
	cp.Options = append([]string(nil), q.Options...)
	return &cp
}

type User struct {
	UserID    string
	Name      string
	Score     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AnswerRecord is one row of the append-only answer log.
type AnswerRecord struct {
	UserID        string
	Question      string
	Category      string
	CorrectAnswer string
	UserAnswer    string
	IsCorrect     bool
	CreatedAt     time.Time
}

type RankEntry struct {
	UserID string
	Name   string
	Score  int
}
