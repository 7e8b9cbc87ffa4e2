package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	appcfg "github.com/park285/Trivia-KakaoTalk-bot/internal/config"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/domain"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/gemini"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/irisfast"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/obslog"
	"github.com/park285/Trivia-KakaoTalk-bot/internal/questiongen"
)

// quizcheck probes the Iris endpoints and runs one question generation.
func main() {
	topic := flag.String("topic", "", "generate one question about this topic")
	observe := flag.Duration("observe", 10*time.Second, "how long to print websocket traffic")
	skipWS := flag.Bool("skip-ws", false, "skip the websocket check")
	flag.Parse()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := obslog.Init(obslog.Options{Level: cfg.LogLevel, Format: "console", Console: true})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer obslog.Sync()

	client := irisfast.NewClient(cfg.IrisBaseURL,
		irisfast.WithHeaderProvider(cfg.IrisHeaders),
		irisfast.WithTimeout(8*time.Second),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	ic, err := client.GetConfig(ctx)
	cancel()
	if err != nil {
		log.Printf("/config error: %v", err)
	} else {
		log.Printf("/config ok: port=%d polling=%d rate=%d endpoint=%s", ic.Port, ic.PollingSpeed, ic.MessageRate, ic.WebserverEndpoint)
	}

	if t := strings.TrimSpace(*topic); t != "" {
		llm := gemini.NewClient(cfg.GeminiAPIKey,
			gemini.WithBaseURL(cfg.GeminiBaseURL),
			gemini.WithModel(cfg.GeminiModel),
			gemini.WithTimeout(cfg.GeminiTimeout),
			gemini.WithTemperature(cfg.GeminiTemperature),
			gemini.WithMaxOutputTokens(cfg.GeminiMaxOutputTokens),
		)
		gen := questiongen.New(llm,
			questiongen.WithAttempts(cfg.GenerationAttempts),
			questiongen.WithLogger(logger),
		)
		gctx, gcancel := context.WithTimeout(context.Background(), time.Duration(cfg.GenerationAttempts)*cfg.GeminiTimeout)
		q, err := gen.Generate(gctx, t, domain.TierEasy, nil)
		gcancel()
		if err != nil {
			log.Printf("generate error: %v", err)
		} else {
			fmt.Printf("Q: %s\n", q.Text)
			for i, opt := range q.Options {
				fmt.Printf("  %d) %s\n", i+1, opt)
			}
			fmt.Printf("A: %s\n", q.Correct)
		}
	}

	if *skipWS {
		return
	}

	ws := irisfast.NewWebSocket(cfg.IrisWSURL, 5, time.Second)
	ws.SetHeaderProvider(cfg.IrisHeaders)
	ws.SetLogger(logger)
	observeWS(ws, cfg, *observe)
}

func observeWS(l irisfast.Listener, cfg *appcfg.AppConfig, window time.Duration) {
	l.OnStateChange(func(state irisfast.WebSocketState) {
		log.Printf("WS state: %s", state)
	})
	l.OnMessage(func(msg *irisfast.Message) {
		fmt.Printf("WS msg room=%s from=%s user=%s allowed=%t text=%q\n",
			msg.Room, msg.SenderName(), msg.UserID(), cfg.RoomAllowed(msg.Room), msg.Msg)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err := l.Connect(ctx)
	cancel()
	if err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}

	time.Sleep(window)
	_ = l.Close(context.Background())
}
