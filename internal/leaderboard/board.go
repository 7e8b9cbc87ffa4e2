// Package leaderboard mirrors cumulative quiz scores into Redis so the
// ranking command does not hit the database on every request.
package leaderboard

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/Trivia-KakaoTalk-bot/internal/domain"
)

const (
	keyScores = "quiz:lb:scores"
	keyNames  = "quiz:lb:names"
	keyWarm   = "quiz:lb:warm"
	// keyVersion is bumped by every Set so a rebuild can tell it raced a score write.
	keyVersion = "quiz:lb:version"

	defaultWarmTTL = 10 * time.Minute
)

// ErrCold means the mirror has not been populated from the database (or expired).
var ErrCold = errors.New("leaderboard mirror is cold")

// ErrStale means a score was written after the rebuild snapshot was taken.
var ErrStale = errors.New("leaderboard snapshot is stale")

type Board struct {
	rdb     *redis.Client
	warmTTL time.Duration
}

func New(rdb *redis.Client, warmTTL time.Duration) *Board {
	if warmTTL <= 0 {
		warmTTL = defaultWarmTTL
	}
	return &Board{rdb: rdb, warmTTL: warmTTL}
}

// Dial connects to REDIS_URL and pings it.
func Dial(ctx context.Context, redisURL string, warmTTL time.Duration) (*Board, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for leaderboard")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, warmTTL), nil
}

func (b *Board) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

// Set stores the absolute score and display name of one user.
func (b *Board) Set(ctx context.Context, e domain.RankEntry) error {
	if strings.TrimSpace(e.UserID) == "" {
		return nil
	}
	pipe := b.rdb.TxPipeline()
	pipe.ZAdd(ctx, keyScores, redis.Z{Score: float64(e.Score), Member: e.UserID})
	if name := strings.TrimSpace(e.Name); name != "" {
		pipe.HSet(ctx, keyNames, e.UserID, name)
	}
	pipe.Incr(ctx, keyVersion)
	_, err := pipe.Exec(ctx)
	return err
}

// Version returns the write counter. Read it before taking the database
// snapshot that is later passed to Warm.
func (b *Board) Version(ctx context.Context) (int64, error) {
	v, err := b.rdb.Get(ctx, keyVersion).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Warm replaces the mirror with the given entries and marks it warm for the configured TTL.
// version is what Version returned before the entries were read; if any Set happened
// since then nothing is written and ErrStale is returned.
// Once the mark expires the next Top call reports ErrCold and the caller rebuilds.
func (b *Board) Warm(ctx context.Context, entries []domain.RankEntry, version int64) error {
	err := b.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, keyVersion).Int64()
		if errors.Is(err, redis.Nil) {
			cur, err = 0, nil
		}
		if err != nil {
			return err
		}
		if cur != version {
			return ErrStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, keyScores, keyNames)
			for _, e := range entries {
				if strings.TrimSpace(e.UserID) == "" {
					continue
				}
				pipe.ZAdd(ctx, keyScores, redis.Z{Score: float64(e.Score), Member: e.UserID})
				pipe.HSet(ctx, keyNames, e.UserID, e.Name)
			}
			pipe.Set(ctx, keyWarm, time.Now().UnixMilli(), b.warmTTL)
			return nil
		})
		return err
	}, keyVersion)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrStale
	}
	return err
}

// Top returns up to limit entries, score descending then name ascending.
func (b *Board) Top(ctx context.Context, limit int) ([]domain.RankEntry, error) {
	if limit <= 0 {
		limit = 5
	}
	n, err := b.rdb.Exists(ctx, keyWarm).Result()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrCold
	}

	zs, err := b.rdb.ZRevRangeWithScores(ctx, keyScores, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(zs) == limit {
		// pull every member tied with the cut-off so the name tie-break is exact
		last := strconv.FormatFloat(zs[len(zs)-1].Score, 'f', -1, 64)
		tied, err := b.rdb.ZRangeByScoreWithScores(ctx, keyScores, &redis.ZRangeBy{Min: last, Max: last}).Result()
		if err != nil {
			return nil, err
		}
		seen := make(map[string]struct{}, len(zs))
		for _, z := range zs {
			seen[memberString(z.Member)] = struct{}{}
		}
		for _, z := range tied {
			if _, ok := seen[memberString(z.Member)]; !ok {
				zs = append(zs, z)
			}
		}
	}
	if len(zs) == 0 {
		return []domain.RankEntry{}, nil
	}

	ids := make([]string, len(zs))
	for i, z := range zs {
		ids[i] = memberString(z.Member)
	}
	names, err := b.rdb.HMGet(ctx, keyNames, ids...).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]domain.RankEntry, len(zs))
	for i, z := range zs {
		e := domain.RankEntry{UserID: ids[i], Score: int(z.Score)}
		if s, ok := names[i].(string); ok {
			e.Name = s
		}
		entries[i] = e
	}
	sort.SliceStable(entries, func(i, j int) bool {
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

func memberString(m interface{}) string {
	switch v := m.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	opts := &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}
	if u.Scheme == "rediss" {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: u.Hostname()}
	}
	return opts, nil
}
