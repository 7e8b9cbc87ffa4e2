package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/park285/Trivia-KakaoTalk-bot/internal/domain"
)

// memrepo is a development-only repository used when no database is configured.
type memrepo struct {
	mu sync.RWMutex

	users   map[string]*domain.User
	answers []domain.AnswerRecord // append-only, oldest first
}

func NewMemoryRepository() Repository {
	return &memrepo{users: make(map[string]*domain.User)}
}

func (m *memrepo) Migrate(context.Context) error { return nil }
func (m *memrepo) Close() error                  { return nil }

func (m *memrepo) GetUser(_ context.Context, userID string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[strings.TrimSpace(userID)]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memrepo) UpsertUser(_ context.Context, userID, name string) error {
	userID = strings.TrimSpace(userID)
	name = strings.TrimSpace(name)
	if userID == "" || name == "" {
		return fmt.Errorf("user id and name are required")
	}
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.Name = name
		u.UpdatedAt = now
		return nil
	}
	m.users[userID] = &domain.User{UserID: userID, Name: name, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (m *memrepo) AddScore(_ context.Context, userID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[strings.TrimSpace(userID)]
	if !ok {
		return ErrUserNotFound
	}
	u.Score += delta
	u.UpdatedAt = time.Now()
	return nil
}

func (m *memrepo) InsertAnswer(_ context.Context, rec *domain.AnswerRecord) error {
	if rec == nil {
		return fmt.Errorf("nil answer record")
	}
	cp := *rec
	cp.UserID = strings.TrimSpace(cp.UserID)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.mu.Lock()
	m.answers = append(m.answers, cp)
	m.mu.Unlock()
	return nil
}

func (m *memrepo) TopScores(_ context.Context, limit int) ([]domain.RankEntry, error) {
	if limit <= 0 {
		limit = 5
	}
	m.mu.RLock()
	entries := make([]domain.RankEntry, 0, len(m.users))
	for _, u := range m.users {
		entries = append(entries, domain.RankEntry{UserID: u.UserID, Name: u.Name, Score: u.Score})
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Name < entries[j].Name
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (m *memrepo) RecentQuestions(_ context.Context, userID, category string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	userID = strings.TrimSpace(userID)

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, limit)
	for i := len(m.answers) - 1; i >= 0 && len(out) < limit; i-- {
		a := m.answers[i]
		if a.UserID == userID && a.Category == category {
			out = append(out, a.Question)
		}
	}
	return out, nil
}
