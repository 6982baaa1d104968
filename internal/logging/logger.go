// Package logging provides categorized diagnostic logging for gwprov on top of zap.
// Every category logs to the operator console logger handed to Initialize. In
// debug mode each category additionally gets its own file under <dir>/logs/.
// Before Initialize every logger is a no-op.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup, configuration
	CategoryBrowser   Category = "browser"   // Browser launch, sessions, navigation
	CategoryGateway   Category = "gateway"   // Gateway console login and AT commands
	CategoryCollect   Category = "collect"   // Dataset building passes
	CategoryProvision Category = "provision" // Activation/refill state machine
	CategoryInventory Category = "inventory" // Multi-gateway inventory
	CategoryStore     Category = "store"     // SQLite history
)

// Config mirrors config.LoggingConfig to avoid an import cycle.
type Config struct {
	Level      string
	DebugMode  bool
	JSONFormat bool
	Categories map[string]bool
}

// Logger is a printf-style logger bound to one category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	loggers   = make(map[Category]*Logger)
	files     []*os.File
	loggersMu sync.RWMutex

	config   Config
	console  *zap.Logger
	logsDir  string
	level    = zap.NewAtomicLevelAt(zap.InfoLevel)
	configMu sync.RWMutex
)

// Initialize binds the category loggers to the console logger and, in debug
// mode, to per-category files under dir/logs. It may be called again to
// reconfigure; previously handed-out loggers keep their old sinks.
func Initialize(dir string, cfg Config, root *zap.Logger) error {
	CloseAll()

	configMu.Lock()
	config = cfg
	console = root
	logsDir = ""
	level.SetLevel(parseLevel(cfg.Level))
	if cfg.DebugMode {
		if dir == "" {
			configMu.Unlock()
			return fmt.Errorf("log directory required in debug mode")
		}
		logsDir = filepath.Join(dir, "logs")
	}
	configMu.Unlock()

	if logsDir != "" {
		if err := os.MkdirAll(logsDir, 0o755); err != nil {
			return fmt.Errorf("failed to create logs directory: %w", err)
		}
	}

	boot := Get(CategoryBoot)
	boot.Debug("logging initialized: level=%s debug_mode=%v dir=%s", level.Level(), cfg.DebugMode, logsDir)
	if len(cfg.Categories) > 0 {
		enabled := 0
		for _, on := range cfg.Categories {
			if on {
				enabled++
			}
		}
		boot.Debug("enabled categories: %d/%d", enabled, len(cfg.Categories))
	}
	return nil
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// IsCategoryEnabled returns whether a specific category is enabled.
// Categories not listed are enabled.
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()
	if config.Categories == nil {
		return true
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if logging is not initialized or the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	configMu.RLock()
	root, dir, jsonFormat := console, logsDir, config.JSONFormat
	configMu.RUnlock()

	var cores []zapcore.Core
	if root != nil {
		cores = append(cores, root.Core())
	}
	if dir != "" {
		date := time.Now().Format("2006-01-02")
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.log", date, category))
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", path, err)
		} else {
			files = append(files, file)
			cores = append(cores, zapcore.NewCore(fileEncoder(jsonFormat), zapcore.AddSync(file), level))
		}
	}
	if len(cores) == 0 {
		// Not initialized; do not cache so a later Initialize takes effect.
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		sugar:    zap.New(zapcore.NewTee(cores...)).Named(string(category)).Sugar(),
	}
	loggers[category] = l
	return l
}

func fileEncoder(jsonFormat bool) zapcore.Encoder {
	if jsonFormat {
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewConsoleEncoder(enc)
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.sugar != nil {
		l.sugar.Debugf(format, args...)
	}
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	if l.sugar != nil {
		l.sugar.Infof(format, args...)
	}
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.sugar != nil {
		l.sugar.Warnf(format, args...)
	}
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	if l.sugar != nil {
		l.sugar.Errorf(format, args...)
	}
}

// With returns a logger that attaches the key-value pairs to every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	if l.sugar == nil {
		return l
	}
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// CloseAll flushes and closes all open log files (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		if l.sugar != nil {
			_ = l.sugar.Sync()
		}
	}
	for _, f := range files {
		f.Close()
	}
	files = nil
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// Browser logs to the browser category
func Browser(format string, args ...interface{}) {
	Get(CategoryBrowser).Info(format, args...)
}

// BrowserDebug logs debug to the browser category
func BrowserDebug(format string, args ...interface{}) {
	Get(CategoryBrowser).Debug(format, args...)
}

// Gateway logs to the gateway category
func Gateway(format string, args ...interface{}) {
	Get(CategoryGateway).Info(format, args...)
}

// GatewayDebug logs debug to the gateway category
func GatewayDebug(format string, args ...interface{}) {
	Get(CategoryGateway).Debug(format, args...)
}

// Collect logs to the collect category
func Collect(format string, args ...interface{}) {
	Get(CategoryCollect).Info(format, args...)
}

// Provision logs to the provision category
func Provision(format string, args ...interface{}) {
	Get(CategoryProvision).Info(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// =============================================================================
// TIMING
// =============================================================================

// Timer measures one operation and logs its duration on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}
