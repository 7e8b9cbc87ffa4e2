// Package quizbuilder assembles the quiz service and its transport from AppConfig.
package quizbuilder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Trivia-KakaoTalk-bot/internal/adapter/kakaopresenter"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/config"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/gemini"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/irisfast"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/leaderboard"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/metrics"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/msgcat"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/questiongen"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/quiz"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/scorebridge"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/store"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/welcome"
)

type Deps struct {
	Service   *quiz.Service
	Generator *questiongen.Generator
	Gemini    *gemini.Client
	Bridge    *scorebridge.Bridge
	Repo      store.Repository
	Board     *leaderboard.Board // nil without REDIS_URL
	Metrics   *metrics.Metrics
	Catalog   *msgcat.Catalog

	Client *irisfast.Client
	WS     *irisfast.WebSocket
	Egress irisfast.Egress
}

func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deps{Metrics: metrics.New()}

	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	d.Catalog = catalog

	d.Repo, err = store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Warn("quiz_store_in_memory", zap.String("hint", "set DATABASE_URL to keep scores across restarts"))
	}

	// Redis is optional; rankings are then served from the database only.
	var mirror scorebridge.Mirror
	if strings.TrimSpace(cfg.RedisURL) != "" {
		d.Board, err = leaderboard.Dial(ctx, cfg.RedisURL, cfg.LeaderboardWarmTTL)
		if err != nil {
			_ = d.Repo.Close()
			return nil, fmt.Errorf("init leaderboard: %w", err)
		}
		mirror = d.Board
	}
	d.Bridge = scorebridge.New(d.Repo, mirror, scorebridge.Options{
		Logger:  logger,
		Metrics: d.Metrics,
	})

	d.Gemini = gemini.NewClient(cfg.GeminiAPIKey,
		gemini.WithBaseURL(cfg.GeminiBaseURL),
		gemini.WithModel(cfg.GeminiModel),
		gemini.WithTimeout(cfg.GeminiTimeout),
		gemini.WithTemperature(cfg.GeminiTemperature),
		gemini.WithMaxOutputTokens(cfg.GeminiMaxOutputTokens),
	)
	d.Generator = questiongen.New(d.Gemini,
		questiongen.WithAttempts(cfg.GenerationAttempts),
		questiongen.WithLogger(logger),
	)

	mode, err := irisfast.ParseMode(cfg.EgressMode)
	if err != nil {
		d.closeStorage()
		return nil, err
	}
	d.Client = irisfast.NewClient(cfg.IrisBaseURL, irisfast.WithHeaderProvider(cfg.IrisHeaders))
	d.WS = irisfast.NewWebSocket(cfg.IrisWSURL, 5, time.Second)
	d.WS.SetHeaderProvider(cfg.IrisHeaders)
	d.WS.SetLogger(logger)
	d.Egress = irisfast.NewEgress(mode, cfg.EgressDryRun, d.Client, d.WS, logger)

	d.Service, err = quiz.NewService(quiz.Config{
		QuestionTimeout:      cfg.QuestionTimeout,
		FinalQuestionTimeout: cfg.FinalQuestionTimeout,
		NextQuestionDelay:    cfg.NextQuestionDelay,
		// every attempt may take the full client timeout
		GenerationTimeout: time.Duration(cfg.GenerationAttempts) * cfg.GeminiTimeout,
		HintTimeout:       cfg.GeminiTimeout,
		LeaderboardSize:   cfg.LeaderboardSize,
		HistoryLookback:   cfg.HistoryLookback,
	}, quiz.Deps{
		Messenger: kakaopresenter.NewPresenter(d.Egress),
		Questions: d.Generator,
		Scores:    d.Bridge,
		Texts:     catalog,
		Welcome:   welcome.New(cfg.WelcomeImagePath, ""),
		Logger:    logger,
		Metrics:   d.Metrics,
	})
	if err != nil {
		d.closeStorage()
		return nil, err
	}
	return d, nil
}

// Close abandons running games, disconnects from Iris and flushes pending writes.
func (d *Deps) Close(ctx context.Context) error {
	if d == nil {
		return nil
	}
	if d.Service != nil {
		d.Service.Close()
	}
	var errs []error
	if d.WS != nil {
		if err := d.WS.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close websocket: %w", err))
		}
	}
	if err := d.closeStorage(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (d *Deps) closeStorage() error {
	var errs []error
	if d.Bridge != nil {
		d.Bridge.Close()
	}
	if d.Board != nil {
		if err := d.Board.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if d.Repo != nil {
		if err := d.Repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
