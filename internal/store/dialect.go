package store

import (
	"strconv"
	"strings"
)

type dialect struct {
	name   string
	driver string
	schema []string
	// positional "$n" placeholders instead of "?"
	numbered bool
}

var postgresDialect = dialect{
	name:     "postgres",
	driver:   "postgres",
	numbered: true,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS quiz_users (
			user_id    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			score      INTEGER NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS quiz_answers (
			id             BIGSERIAL PRIMARY KEY,
			user_id        TEXT NOT NULL REFERENCES quiz_users(user_id),
			question       TEXT NOT NULL,
			category       TEXT NOT NULL,
			correct_answer TEXT NOT NULL,
			user_answer    TEXT NOT NULL,
			is_correct     INTEGER NOT NULL,
			created_at     BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quiz_users_score ON quiz_users(score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_quiz_answers_user_category ON quiz_answers(user_id, category, created_at DESC)`,
	},
}

var sqliteDialect = dialect{
	name:   "sqlite",
	driver: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS quiz_users (
			user_id    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			score      INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS quiz_answers (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id        TEXT NOT NULL REFERENCES quiz_users(user_id),
			question       TEXT NOT NULL,
			category       TEXT NOT NULL,
			correct_answer TEXT NOT NULL,
			user_answer    TEXT NOT NULL,
			is_correct     INTEGER NOT NULL,
			created_at     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quiz_users_score ON quiz_users(score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_quiz_answers_user_category ON quiz_answers(user_id, category, created_at DESC)`,
	},
}

// rebind rewrites "?" placeholders for drivers that want "$1, $2, ...".
func (d dialect) rebind(query string) string {
	if !d.numbered || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
