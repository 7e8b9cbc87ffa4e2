package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/Trivia-KakaoTalk-bot/internal/domain"
)

func openTestSQLite(t *testing.T) Repository {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "quiz.db")
	repo, err := Open(context.Background(), "sqlite://"+path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func repositories(t *testing.T) map[string]Repository {
	return map[string]Repository{
		"sqlite": openTestSQLite(t),
		"memory": NewMemoryRepository(),
	}
}

func TestRepository_UserLifecycle(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			u, err := repo.GetUser(ctx, "room:alice")
			require.NoError(t, err)
			assert.Nil(t, u)

			require.NoError(t, repo.UpsertUser(ctx, "room:alice", "Alice"))
			require.NoError(t, repo.AddScore(ctx, "room:alice", 10))
			require.NoError(t, repo.AddScore(ctx, "room:alice", -5))

			u, err = repo.GetUser(ctx, "room:alice")
			require.NoError(t, err)
			require.NotNil(t, u)
			assert.Equal(t, "Alice", u.Name)
			assert.Equal(t, 5, u.Score)

			// rename keeps the score
			require.NoError(t, repo.UpsertUser(ctx, "room:alice", "Ali"))
			u, err = repo.GetUser(ctx, "room:alice")
			require.NoError(t, err)
			assert.Equal(t, "Ali", u.Name)
			assert.Equal(t, 5, u.Score)
		})
	}
}

func TestRepository_AddScoreUnknownUser(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			err := repo.AddScore(context.Background(), "nobody", 10)
			assert.ErrorIs(t, err, ErrUserNotFound)
		})
	}
}

func TestRepository_TopScoresOrdering(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, u := range []struct {
				id, name string
				score    int
			}{
				{"1", "Carla", 20},
				{"2", "Bruno", 35},
				{"3", "Ana", 20},
				{"4", "Davi", -5},
			} {
				require.NoError(t, repo.UpsertUser(ctx, u.id, u.name))
				require.NoError(t, repo.AddScore(ctx, u.id, u.score))
			}

			top, err := repo.TopScores(ctx, 3)
			require.NoError(t, err)
			require.Len(t, top, 3)
			assert.Equal(t, "Bruno", top[0].Name)
			assert.Equal(t, "Ana", top[1].Name)
			assert.Equal(t, "Carla", top[2].Name)
		})
	}
}

func TestRepository_RecentQuestions(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.UpsertUser(ctx, "u", "U"))

			base := time.Now().Add(-time.Hour)
			for i, q := range []string{"q1", "q2", "q3"} {
				require.NoError(t, repo.InsertAnswer(ctx, &domain.AnswerRecord{
					UserID:        "u",
					Question:      q,
					Category:      "frutas",
					CorrectAnswer: "a",
					UserAnswer:    "b",
					CreatedAt:     base.Add(time.Duration(i) * time.Minute),
				}))
			}
			require.NoError(t, repo.InsertAnswer(ctx, &domain.AnswerRecord{
				UserID: "u", Question: "other", Category: "cores", CorrectAnswer: "a", UserAnswer: "a", IsCorrect: true,
			}))

			got, err := repo.RecentQuestions(ctx, "u", "frutas", 2)
			require.NoError(t, err)
			assert.Equal(t, []string{"q3", "q2"}, got)

			got, err = repo.RecentQuestions(ctx, "u", "frutas", 0)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestOpen_EmptyURLFallsBackToMemory(t *testing.T) {
	repo, err := Open(context.Background(), "")
	require.NoError(t, err)
	_, ok := repo.(*memrepo)
	assert.True(t, ok)
}

func TestOpen_UnsupportedScheme(t *testing.T) {
	_, err := Open(context.Background(), "mysql://localhost/db")
	assert.Error(t, err)
}

func TestDialectRebind(t *testing.T) {
	got := postgresDialect.rebind("SELECT * FROM t WHERE a = ? AND b = ?")
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", got)

	q := "SELECT ? FROM t"
	assert.Equal(t, q, sqliteDialect.rebind(q))
}
