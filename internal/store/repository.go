package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/Trivia-KakaoTalk-bot/internal/domain"
)

var ErrUserNotFound = errors.New("quiz user not found")

// Repository persists quiz users, cumulative scores and the answer log.
type Repository interface {
	Migrate(ctx context.Context) error
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	UpsertUser(ctx context.Context, userID, name string) error
	AddScore(ctx context.Context, userID string, delta int) error
	InsertAnswer(ctx context.Context, rec *domain.AnswerRecord) error
	TopScores(ctx context.Context, limit int) ([]domain.RankEntry, error)
	RecentQuestions(ctx context.Context, userID, category string, limit int) ([]string, error)
	Close() error
}

type repository struct {
	db      *sql.DB
	dialect dialect
}

func newSQLRepository(db *sql.DB, d dialect) *repository {
	return &repository{db: db, dialect: d}
}

func (r *repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Migrate creates the schema when it does not exist yet.
func (r *repository) Migrate(ctx context.Context) error {
	for _, stmt := range r.dialect.schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s schema: %w", r.dialect.name, err)
		}
	}
	return nil
}

func (r *repository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := r.dialect.rebind(`
		SELECT user_id, name, score, created_at, updated_at
		FROM quiz_users
		WHERE user_id = ?`)

	var (
		user      domain.User
		createdMS int64
		updatedMS int64
	)
	err := r.db.QueryRowContext(ctx, query, strings.TrimSpace(userID)).Scan(
		&user.UserID,
		&user.Name,
		&user.Score,
		&createdMS,
		&updatedMS,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select quiz user: %w", err)
	}
	user.CreatedAt = time.UnixMilli(createdMS)
	user.UpdatedAt = time.UnixMilli(updatedMS)
	return &user, nil
}

// UpsertUser registers a user with a zero score, or renames an existing one.
func (r *repository) UpsertUser(ctx context.Context, userID, name string) error {
	userID = strings.TrimSpace(userID)
	name = strings.TrimSpace(name)
	if userID == "" || name == "" {
		return fmt.Errorf("user id and name are required")
	}
	now := time.Now().UnixMilli()
	query := r.dialect.rebind(`
		INSERT INTO quiz_users (user_id, name, score, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at`)
	if _, err := r.db.ExecContext(ctx, query, userID, name, now, now); err != nil {
		return fmt.Errorf("upsert quiz user: %w", err)
	}
	return nil
}

func (r *repository) AddScore(ctx context.Context, userID string, delta int) error {
	query := r.dialect.rebind(`
		UPDATE quiz_users
		SET score = score + ?, updated_at = ?
		WHERE user_id = ?`)
	res, err := r.db.ExecContext(ctx, query, delta, time.Now().UnixMilli(), strings.TrimSpace(userID))
	if err != nil {
		return fmt.Errorf("update quiz score: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *repository) InsertAnswer(ctx context.Context, rec *domain.AnswerRecord) error {
	if rec == nil {
		return fmt.Errorf("nil answer record")
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	query := r.dialect.rebind(`
		INSERT INTO quiz_answers (
			user_id,
			question,
			category,
			correct_answer,
			user_answer,
			is_correct,
			created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		strings.TrimSpace(rec.UserID),
		rec.Question,
		rec.Category,
		rec.CorrectAnswer,
		rec.UserAnswer,
		boolToInt(rec.IsCorrect),
		created.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert quiz answer: %w", err)
	}
	return nil
}

func (r *repository) TopScores(ctx context.Context, limit int) ([]domain.RankEntry, error) {
	if limit <= 0 {
		limit = 5
	}
	query := r.dialect.rebind(`
		SELECT user_id, name, score
		FROM quiz_users
		ORDER BY score DESC, name ASC
		LIMIT ?`)
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select top scores: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.RankEntry, 0, limit)
	for rows.Next() {
		var e domain.RankEntry
		if err := rows.Scan(&e.UserID, &e.Name, &e.Score); err != nil {
			return nil, fmt.Errorf("scan top score: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecentQuestions returns question texts the user saw for a category, newest first.
func (r *repository) RecentQuestions(ctx context.Context, userID, category string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := r.dialect.rebind(`
		SELECT question
		FROM quiz_answers
		WHERE user_id = ? AND category = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`)
	rows, err := r.db.QueryContext(ctx, query, strings.TrimSpace(userID), category, limit)
	if err != nil {
		return nil, fmt.Errorf("select recent questions: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0, limit)
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan recent question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
