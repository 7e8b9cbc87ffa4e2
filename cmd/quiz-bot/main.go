package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appcfg "github.com/park285/Trivia-KakaoTalk-bot/internal/config"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/irisfast"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/obslog"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/quiz"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/quizbuilder"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := obslog.Init(obslog.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Console: true,
		ToFile:  cfg.LogToFile,
		File:    cfg.LogFile,
		Caller:  cfg.LogCaller,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer obslog.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("quiz_bot_exit", zap.Error(err))
		obslog.Sync()
		os.Exit(1)
	}
}

func run(cfg *appcfg.AppConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	deps, err := quizbuilder.New(initCtx, cfg, logger)
	cancel()
	if err != nil {
		return err
	}

	attach(deps.WS, router{cfg: cfg}, deps.Service, logger)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = deps.WS.Connect(connectCtx)
	cancel()
	if err != nil {
		_ = deps.Close(context.Background())
		return err
	}
	logger.Info("quiz_bot_started",
		zap.String("egress", cfg.EgressMode),
		zap.Bool("dryrun", cfg.EgressDryRun),
		zap.Strings("rooms", cfg.AllowedRooms),
		zap.String("model", deps.Gemini.Model()),
	)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", deps.Metrics.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if !deps.WS.Connected() {
				http.Error(w, `{"status":"disconnected"}`, http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			logger.Info("metrics_listen", zap.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	runErr := g.Wait()
	logger.Info("quiz_bot_stopping")

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := deps.Close(closeCtx); err != nil {
		logger.Warn("quiz_bot_close", zap.Error(err))
	}
	return runErr
}

// attach feeds routed websocket messages into the quiz service.
func attach(l irisfast.Listener, rt router, svc *quiz.Service, logger *zap.Logger) {
	l.OnStateChange(func(state irisfast.WebSocketState) {
		logger.Info("iris_ws_state", zap.Stringer("state", state))
	})
	l.OnMessage(func(msg *irisfast.Message) {
		in, ok := rt.route(msg)
		if !ok {
			return
		}
		// Handle only enqueues, so the websocket reader never blocks on a game
		if !svc.Handle(in) {
			logger.Debug("quiz_inbound_rejected", zap.String("room", in.Room))
		}
	})
}
