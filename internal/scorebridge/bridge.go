// Package scorebridge connects quiz sessions to persistent scores, the answer log
// and the Redis leaderboard mirror.
package scorebridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Trivia-KakaoTalk-bot/internal/domain"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/leaderboard"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/metrics"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/store"
)

const (
	defaultQueueSize    = 256
	defaultWriteTimeout = 5 * time.Second
	warmAttempts        = 2
)

// Mirror is the ranking cache; *leaderboard.Board implements it.
type Mirror interface {
	Set(ctx context.Context, e domain.RankEntry) error
	Version(ctx context.Context) (int64, error)
	Warm(ctx context.Context, entries []domain.RankEntry, version int64) error
	Top(ctx context.Context, limit int) ([]domain.RankEntry, error)
}

type Options struct {
	QueueSize    int
	WriteTimeout time.Duration
	// WarmSize is how many rows are copied into the mirror on a cold read.
	WarmSize int
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// Bridge writes scores synchronously and the answer log through a bounded background queue.
type Bridge struct {
	repo    store.Repository
	mirror  Mirror
	log     *zap.Logger
	metrics *metrics.Metrics

	writeTimeout time.Duration
	warmSize     int

	records   chan domain.AnswerRecord
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New starts the answer-log writer. mirror may be nil.
func New(repo store.Repository, mirror Mirror, opts Options) *Bridge {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.WarmSize <= 0 {
		opts.WarmSize = 100
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		repo:         repo,
		mirror:       mirror,
		log:          logger.Named("scorebridge"),
		metrics:      opts.Metrics,
		writeTimeout: opts.WriteTimeout,
		warmSize:     opts.WarmSize,
		records:      make(chan domain.AnswerRecord, opts.QueueSize),
		ctx:          ctx,
		cancel:       cancel,
	}
	b.wg.Add(1)
	go b.processRecords()
	return b
}

func (b *Bridge) LookupUser(ctx context.Context, userID string) (*domain.User, error) {
	return b.repo.GetUser(ctx, userID)
}

func (b *Bridge) RegisterUser(ctx context.Context, userID, name string) error {
	if err := b.repo.UpsertUser(ctx, userID, name); err != nil {
		return err
	}
	b.syncMirror(ctx, userID)
	return nil
}

// RecordAnswer queues one answer log row. It never blocks and never fails the caller;
// a full queue drops the record.
func (b *Bridge) RecordAnswer(rec domain.AnswerRecord) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	select {
	case <-b.ctx.Done():
		b.log.Debug("answer_record_after_close", zap.String("user_id", rec.UserID))
		return
	default:
	}
	select {
	case b.records <- rec:
	default:
		b.metrics.RecordDropped()
		b.log.Warn("answer_record_dropped",
			zap.String("user_id", rec.UserID),
			zap.Int("queue_len", len(b.records)),
		)
	}
}

// CommitScore adds delta to the user's cumulative score and refreshes the mirror entry.
func (b *Bridge) CommitScore(ctx context.Context, userID string, delta int) error {
	ctx, cancel := context.WithTimeout(ctx, b.writeTimeout)
	defer cancel()
	if err := b.repo.AddScore(ctx, userID, delta); err != nil {
		return err
	}
	b.syncMirror(ctx, userID)
	return nil
}

// TopScores reads the mirror and falls back to the database, warming the mirror on the way.
func (b *Bridge) TopScores(ctx context.Context, limit int) ([]domain.RankEntry, error) {
	if b.mirror == nil {
		return b.repo.TopScores(ctx, limit)
	}
	entries, err := b.mirror.Top(ctx, limit)
	if err == nil {
		return entries, nil
	}
	if !errors.Is(err, leaderboard.ErrCold) {
		b.log.Warn("leaderboard_mirror_read_failed", zap.Error(err))
	}

	size := limit
	if b.warmSize > size {
		size = b.warmSize
	}
	entries, err = b.rebuildMirror(ctx, size)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// rebuildMirror reads the top rows and copies them into the mirror. A score
// committed while the rows were being read makes the snapshot stale; the read
// is retried, and if it keeps racing the rows are served with the mirror left cold.
func (b *Bridge) rebuildMirror(ctx context.Context, size int) ([]domain.RankEntry, error) {
	var entries []domain.RankEntry
	for attempt := 1; attempt <= warmAttempts; attempt++ {
		version, verr := b.mirror.Version(ctx)
		var err error
		entries, err = b.repo.TopScores(ctx, size)
		if err != nil {
			return nil, err
		}
		if verr != nil {
			b.log.Warn("leaderboard_warm_failed", zap.Error(verr))
			return entries, nil
		}
		werr := b.mirror.Warm(ctx, entries, version)
		if werr == nil {
			return entries, nil
		}
		if !errors.Is(werr, leaderboard.ErrStale) {
			b.log.Warn("leaderboard_warm_failed", zap.Error(werr))
			return entries, nil
		}
		b.log.Debug("leaderboard_warm_stale", zap.Int("attempt", attempt))
	}
	return entries, nil
}

func (b *Bridge) RecentQuestions(ctx context.Context, userID, topic string, limit int) ([]string, error) {
	return b.repo.RecentQuestions(ctx, userID, topic, limit)
}

// Close flushes queued answer records and stops the writer.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		b.cancel()
		b.wg.Wait()
	})
}

func (b *Bridge) syncMirror(ctx context.Context, userID string) {
	if b.mirror == nil {
		return
	}
	u, err := b.repo.GetUser(ctx, userID)
	if err != nil || u == nil {
		return
	}
	if err := b.mirror.Set(ctx, domain.RankEntry{UserID: u.UserID, Name: u.Name, Score: u.Score}); err != nil {
		b.log.Warn("leaderboard_mirror_write_failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (b *Bridge) processRecords() {
	defer b.wg.Done()
	for {
		select {
		case rec := <-b.records:
			b.insert(rec)
		case <-b.ctx.Done():
			for {
				select {
				case rec := <-b.records:
					b.insert(rec)
				default:
					return
				}
			}
		}
	}
}

func (b *Bridge) insert(rec domain.AnswerRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), b.writeTimeout)
	defer cancel()
	start := time.Now()
	if err := b.repo.InsertAnswer(ctx, &rec); err != nil {
		b.log.Warn("answer_record_insert_failed", zap.String("user_id", rec.UserID), zap.Error(err))
		return
	}
	if d := time.Since(start); d > time.Second {
		b.log.Warn("answer_record_slow_insert", zap.String("user_id", rec.UserID), zap.Duration("took", d))
	}
}
