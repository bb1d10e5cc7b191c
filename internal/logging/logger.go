// Package logging provides categorised logging for the compilation service.
// Each subsystem logs under its own category so that a noisy component (the
// assembly processor, say) can be read in isolation. Loggers are backed by zap
// and are no-ops until Initialize or SetLogger is called.
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
	CategoryBoot      Category = "boot"      // Startup and shutdown
	CategoryConfig    Category = "config"    // Config loading and hot reload
	CategoryAPI       Category = "api"       // HTTP request handling
	CategoryProxy     Category = "proxy"     // Remote compiler delegation
	CategoryCompile   Category = "compile"   // Compile orchestration
	CategoryAsm       Category = "asm"       // Assembly post-processing
	CategoryCache     Category = "cache"     // Result cache
	CategoryQueue     Category = "queue"     // Admission queue
	CategoryWorkspace Category = "workspace" // Temp directory lifecycle
	CategoryTactile   Category = "tactile"   // Subprocess execution
	CategoryStore     Category = "store"     // Persistent result store
)

// Config selects the zap backend settings.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	File   string // optional output path; stderr when empty
}

// Logger wraps a sugared zap logger for one category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	baseMu  sync.RWMutex
	base    = zap.NewNop()
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	loggers = make(map[Category]*Logger)
)

// Initialize builds the zap backend from cfg and installs it.
func Initialize(cfg Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	lvl, err := zapcore.ParseLevel(orDefault(cfg.Level, "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	level.SetLevel(lvl)
	zcfg.Level = level

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		zcfg.OutputPaths = []string{cfg.File}
	}

	l, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	SetLogger(l)
	return l, nil
}

// SetLogger installs l as the backend for all categories.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	baseMu.Lock()
	defer baseMu.Unlock()
	base = l
	loggers = make(map[Category]*Logger)
}

// SetLevel changes the minimum level at runtime.
func SetLevel(lvl zapcore.Level) {
	level.SetLevel(lvl)
}

// Zap returns the current backend.
func Zap() *zap.Logger {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return base
}

// Sync flushes buffered entries. Call at shutdown.
func Sync() {
	_ = Zap().Sync()
}

// Get returns (or creates) a logger for the given category.
func Get(category Category) *Logger {
	baseMu.RLock()
	if l, ok := loggers[category]; ok {
		baseMu.RUnlock()
		return l
	}
	baseMu.RUnlock()

	baseMu.Lock()
	defer baseMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{
		category: category,
		sugar:    base.Named(string(category)).Sugar(),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// With returns a child logger carrying structured key-value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootError logs error to the boot category
func BootError(format string, args ...interface{}) {
	Get(CategoryBoot).Error(format, args...)
}

// ConfigInfo logs to the config category
func ConfigInfo(format string, args ...interface{}) {
	Get(CategoryConfig).Info(format, args...)
}

// ConfigWarn logs warning to the config category
func ConfigWarn(format string, args ...interface{}) {
	Get(CategoryConfig).Warn(format, args...)
}

// API logs to the api category
func API(format string, args ...interface{}) {
	Get(CategoryAPI).Info(format, args...)
}

// APIDebug logs debug to the api category
func APIDebug(format string, args ...interface{}) {
	Get(CategoryAPI).Debug(format, args...)
}

// APIError logs error to the api category
func APIError(format string, args ...interface{}) {
	Get(CategoryAPI).Error(format, args...)
}

// Proxy logs to the proxy category
func Proxy(format string, args ...interface{}) {
	Get(CategoryProxy).Info(format, args...)
}

// ProxyDebug logs debug to the proxy category
func ProxyDebug(format string, args ...interface{}) {
	Get(CategoryProxy).Debug(format, args...)
}

// ProxyError logs error to the proxy category
func ProxyError(format string, args ...interface{}) {
	Get(CategoryProxy).Error(format, args...)
}

// Compile logs to the compile category
func Compile(format string, args ...interface{}) {
	Get(CategoryCompile).Info(format, args...)
}

// CompileDebug logs debug to the compile category
func CompileDebug(format string, args ...interface{}) {
	Get(CategoryCompile).Debug(format, args...)
}

// CompileWarn logs warning to the compile category
func CompileWarn(format string, args ...interface{}) {
	Get(CategoryCompile).Warn(format, args...)
}

// CompileError logs error to the compile category
func CompileError(format string, args ...interface{}) {
	Get(CategoryCompile).Error(format, args...)
}

// AsmDebug logs debug to the asm category
func AsmDebug(format string, args ...interface{}) {
	Get(CategoryAsm).Debug(format, args...)
}

// CacheDebug logs debug to the cache category
func CacheDebug(format string, args ...interface{}) {
	Get(CategoryCache).Debug(format, args...)
}

// CacheWarn logs warning to the cache category
func CacheWarn(format string, args ...interface{}) {
	Get(CategoryCache).Warn(format, args...)
}

// Queue logs to the queue category
func Queue(format string, args ...interface{}) {
	Get(CategoryQueue).Info(format, args...)
}

// QueueDebug logs debug to the queue category
func QueueDebug(format string, args ...interface{}) {
	Get(CategoryQueue).Debug(format, args...)
}

// WorkspaceDebug logs debug to the workspace category
func WorkspaceDebug(format string, args ...interface{}) {
	Get(CategoryWorkspace).Debug(format, args...)
}

// WorkspaceWarn logs warning to the workspace category
func WorkspaceWarn(format string, args ...interface{}) {
	Get(CategoryWorkspace).Warn(format, args...)
}

// Tactile logs to the tactile category
func Tactile(format string, args ...interface{}) {
	Get(CategoryTactile).Info(format, args...)
}

// TactileDebug logs debug to the tactile category
func TactileDebug(format string, args ...interface{}) {
	Get(CategoryTactile).Debug(format, args...)
}

// TactileWarn logs warning to the tactile category
func TactileWarn(format string, args ...interface{}) {
	Get(CategoryTactile).Warn(format, args...)
}

// TactileError logs error to the tactile category
func TactileError(format string, args ...interface{}) {
	Get(CategoryTactile).Error(format, args...)
}

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// StoreWarn logs warning to the store category
func StoreWarn(format string, args ...interface{}) {
	Get(CategoryStore).Warn(format, args...)
}

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
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

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
