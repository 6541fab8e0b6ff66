package filtermate

import (
	"errors"
	"log/slog"
	"os"

	"github.com/sducournau/filter-mate-sub019/backend"
	"github.com/sducournau/filter-mate-sub019/catalog"
	"github.com/sducournau/filter-mate-sub019/history"
	"github.com/sducournau/filter-mate-sub019/runner"
)

// Config contains configuration for the filter engine.
type Config struct {
	// Catalog resolves collection metadata by ID.
	// REQUIRED: MUST NOT be nil.
	Catalog catalog.Provider

	// Strategies are the backend execution strategies, one per backend
	// kind the engine should serve.
	// REQUIRED: MUST NOT be empty.
	Strategies []backend.Strategy

	// Runner executes asynchronous filter jobs.
	// OPTIONAL: If nil, ApplyAsync runs jobs inline on the calling
	// goroutine.
	Runner runner.Runner

	// Store persists history snapshots for SaveHistory/LoadHistory.
	// OPTIONAL: If nil, an in-process store is used.
	Store history.Store

	// Logger for internal logging.
	// OPTIONAL: Uses slog.Default() if nil.
	// Note: If LogLevel is specified, a new logger will be created with that level.
	Logger *slog.Logger

	// LogLevel sets the logging level.
	// OPTIONAL: If nil, uses Info level.
	// Valid values: slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError
	// If Logger is also provided, LogLevel is ignored (use pre-configured logger).
	LogLevel *slog.Level

	// MaxHistoryDepth bounds the per-collection undo stack.
	// OPTIONAL: If 0, uses history.DefaultMaxDepth.
	MaxHistoryDepth int

	// CacheSize bounds the optimizer's rewrite cache.
	// OPTIONAL: If 0, uses optimizer.DefaultCacheSize.
	CacheSize int

	// RangeMinSize is the minimum identifier-list length for range
	// conversion in the optimizer.
	// OPTIONAL: If 0, uses optimizer.DefaultRangeMinSize.
	RangeMinSize int

	// SpeedupCap bounds the optimizer's reported speedup estimates.
	// OPTIONAL: If 0, uses optimizer.DefaultSpeedupCap.
	SpeedupCap float64

	// RetryMaxAttempts bounds execution attempts when a backend reports a
	// transient failure.
	// OPTIONAL: If 0, uses 5.
	RetryMaxAttempts uint
}

// Standard errors returned by the filtermate package.
var (
	// ErrInvalidConfig indicates Config validation failed.
	ErrInvalidConfig = errors.New("invalid engine config")

	// ErrClosed indicates the engine has been closed.
	ErrClosed = errors.New("engine closed")
)

const defaultRetryMaxAttempts = 5

func (c *Config) validate() error {
	if c.Catalog == nil {
		return errors.New("catalog provider is required")
	}
	if len(c.Strategies) == 0 {
		return errors.New("at least one backend strategy is required")
	}
	return nil
}

// logger resolves the effective logger from Logger and LogLevel.
func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	if c.LogLevel != nil {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: *c.LogLevel}))
	}
	return slog.Default()
}
