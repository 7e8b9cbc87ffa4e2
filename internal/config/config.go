package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type AppConfig struct {
	IrisBaseURL string `env:"IRIS_BASE_URL"`
	IrisWSURL   string `env:"IRIS_WS_URL"`

	// BotPrefix, when set, is required at the start of every handled message and stripped.
	BotPrefix string `env:"BOT_PREFIX"`

	XUserID    string `env:"X_USER_ID"`
	XUserEmail string `env:"X_USER_EMAIL"`
	XSessionID string `env:"X_SESSION_ID"`

	AllowedRooms []string `env:"ALLOWED_ROOMS" envSeparator:","`

	EgressMode   string `env:"EGRESS_MODE"   envDefault:"http"`
	EgressDryRun bool   `env:"EGRESS_DRYRUN"`

	RedisURL           string        `env:"REDIS_URL"`
	LeaderboardWarmTTL time.Duration `env:"LEADERBOARD_WARM_TTL" envDefault:"10m"`
	DatabaseURL        string        `env:"DATABASE_URL"`

	GeminiAPIKey          string        `env:"GEMINI_API_KEY"`
	GeminiModel           string        `env:"GEMINI_MODEL"             envDefault:"gemini-2.0-flash"`
	GeminiBaseURL         string        `env:"GEMINI_BASE_URL"          envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	GeminiTimeout         time.Duration `env:"GEMINI_TIMEOUT"           envDefault:"20s"`
	GeminiTemperature     float64       `env:"GEMINI_TEMPERATURE"       envDefault:"0.9"`
	GeminiMaxOutputTokens int           `env:"GEMINI_MAX_OUTPUT_TOKENS" envDefault:"512"`

	GenerationAttempts   int           `env:"QUIZ_GENERATION_ATTEMPTS"    envDefault:"3"`
	QuestionTimeout      time.Duration `env:"QUIZ_QUESTION_TIMEOUT"       envDefault:"30s"`
	FinalQuestionTimeout time.Duration `env:"QUIZ_FINAL_QUESTION_TIMEOUT" envDefault:"60s"`
	NextQuestionDelay    time.Duration `env:"QUIZ_NEXT_QUESTION_DELAY"    envDefault:"3s"`
	HistoryLookback      int           `env:"QUIZ_HISTORY_LOOKBACK"       envDefault:"20"`
	LeaderboardSize      int           `env:"QUIZ_LEADERBOARD_SIZE"       envDefault:"5"`

	WelcomeImagePath string `env:"WELCOME_IMAGE_PATH"`
	MessagesDir      string `env:"MESSAGES_DIR"`
	MetricsAddr      string `env:"METRICS_ADDR" envDefault:":9090"`

	LogLevel  string `env:"LOG_LEVEL"   envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT"  envDefault:"legacy"`
	LogToFile bool   `env:"LOG_TO_FILE"`
	LogFile   string `env:"LOG_FILE"    envDefault:"logs/quiz-bot.log"`
	LogCaller bool   `env:"LOG_CALLER"`
}

// Load reads an optional .env file (DOTENV_PATH, default ".env") and then the environment.
func Load() (*AppConfig, error) {
	path := strings.TrimSpace(os.Getenv("DOTENV_PATH"))
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return parse(env.Options{})
}

// LoadFrom parses vars instead of the process environment.
func LoadFrom(vars map[string]string) (*AppConfig, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*AppConfig, error) {
	var cfg AppConfig
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) normalize() {
	c.IrisBaseURL = strings.TrimSpace(c.IrisBaseURL)
	c.IrisWSURL = strings.TrimSpace(c.IrisWSURL)
	c.BotPrefix = strings.TrimSpace(c.BotPrefix)
	c.GeminiAPIKey = strings.TrimSpace(c.GeminiAPIKey)
	c.EgressMode = strings.ToLower(strings.TrimSpace(c.EgressMode))

	rooms := c.AllowedRooms[:0]
	for _, r := range c.AllowedRooms {
		if s := strings.TrimSpace(r); s != "" {
			rooms = append(rooms, s)
		}
	}
	c.AllowedRooms = rooms
}

func (c *AppConfig) Validate() error {
	var errs []error
	if c.IrisBaseURL == "" {
		errs = append(errs, errors.New("IRIS_BASE_URL is required"))
	}
	if c.IrisWSURL == "" {
		errs = append(errs, errors.New("IRIS_WS_URL is required"))
	}
	if c.GeminiAPIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY is required"))
	}
	switch c.EgressMode {
	case "http", "ws", "auto":
	default:
		errs = append(errs, fmt.Errorf("EGRESS_MODE must be http, ws or auto, got %q", c.EgressMode))
	}
	if c.GenerationAttempts < 1 || c.GenerationAttempts > 10 {
		errs = append(errs, fmt.Errorf("QUIZ_GENERATION_ATTEMPTS out of range: %d", c.GenerationAttempts))
	}
	if c.QuestionTimeout < time.Second || c.FinalQuestionTimeout < time.Second {
		errs = append(errs, errors.New("question timeouts must be at least 1s"))
	}
	if c.NextQuestionDelay <= 0 {
		errs = append(errs, errors.New("QUIZ_NEXT_QUESTION_DELAY must be positive"))
	}
	if c.HistoryLookback < 0 {
		errs = append(errs, errors.New("QUIZ_HISTORY_LOOKBACK must not be negative"))
	}
	if c.LeaderboardSize < 1 || c.LeaderboardSize > 50 {
		errs = append(errs, fmt.Errorf("QUIZ_LEADERBOARD_SIZE out of range: %d", c.LeaderboardSize))
	}
	if c.GeminiTimeout <= 0 {
		errs = append(errs, errors.New("GEMINI_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// IrisHeaders are sent with every Iris HTTP request and the websocket handshake.
func (c *AppConfig) IrisHeaders() map[string]string {
	h := map[string]string{}
	if c.XUserID != "" {
		h["X-User-Id"] = c.XUserID
	}
	if c.XUserEmail != "" {
		h["X-User-Email"] = c.XUserEmail
	}
	if c.XSessionID != "" {
		h["X-Session-Id"] = c.XSessionID
	}
	return h
}

// RoomAllowed reports whether room passes ALLOWED_ROOMS; an empty list allows every room.
func (c *AppConfig) RoomAllowed(room string) bool {
	if len(c.AllowedRooms) == 0 {
		return true
	}
	for _, r := range c.AllowedRooms {
		if r == room {
			return true
		}
	}
	return false
}
