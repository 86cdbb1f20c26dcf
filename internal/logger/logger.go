package logger

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Level     string
	Format    string
	AddSource bool
	Service   string
	Env       string
}

type ctxKey int

const (
	ctxKeyLogger ctxKey = iota
	ctxKeyRequestID
)

var (
	levelVar      slog.LevelVar
	defaultLogger *slog.Logger
)

func Default() *slog.Logger {
	if defaultLogger != nil {
		return defaultLogger
	}
	return slog.Default()
}

// Init builds the process-wide logger. All attributes live under a
// top-level `data` group so log collectors see a stable root schema.
func Init(cfg Config) *slog.Logger {
	SetLevel(cfg.Level)

	opts := &slog.HandlerOptions{Level: &levelVar, AddSource: cfg.AddSource}

	var h slog.Handler
	if strings.ToLower(strings.TrimSpace(cfg.Format)) == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	service := strings.TrimSpace(cfg.Service)
	if service == "" {
		service = defaultServiceName()
	}

	base := slog.New(h).WithGroup("data").With("service", service)
	if env := strings.TrimSpace(cfg.Env); env != "" {
		base = base.With("env", env)
	}

	defaultLogger = base
	slog.SetDefault(defaultLogger)
	return defaultLogger
}

func InitFromEnv() {
	Init(Config{
		Level:     getenvDefault("LOG_LEVEL", "info"),
		Format:    getenvDefault("LOG_FORMAT", "json"),
		AddSource: getenvBool("LOG_ADD_SOURCE", false),
		Service:   os.Getenv("LOG_SERVICE"),
		Env:       getenvDefault("LOG_ENV", os.Getenv("APP_ENV")),
	})
}

func SetLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "info", "":
		levelVar.Set(slog.LevelInfo)
	case "warn", "warning":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

func IntoContext(ctx context.Context, l *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKeyLogger, l)
}

func FromContext(ctx context.Context) *slog.Logger {
	l := Default()
	if ctx == nil {
		return l
	}
	if v := ctx.Value(ctxKeyLogger); v != nil {
		if lg, ok := v.(*slog.Logger); ok && lg != nil {
			l = lg
		}
	}
	if v := ctx.Value(ctxKeyRequestID); v != nil {
		if id, ok := v.(string); ok && id != "" {
			l = l.With("request_id", id)
		}
	}
	return l
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

func getenvDefault(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func defaultServiceName() string {
	if len(os.Args) == 0 || os.Args[0] == "" {
		return "app"
	}
	path := os.Args[0]
	if i := strings.LastIndexByte(path, '/'); i >= 0 && i+1 < len(path) {
		return path[i+1:]
	}
	return path
}
