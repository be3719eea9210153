// Package logging provides categorized logging for the persona agent subsystem.
// Each subsystem logs under its own named zap logger so individual categories
// can be filtered when reading combined output.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system.
type Category string

const (
	CategoryBoot       Category = "boot"       // Startup and initialization
	CategoryScheduler  Category = "scheduler"  // Task registration, firings, run-state
	CategoryActivity   Category = "activity"   // Activity orchestration
	CategoryGenerator  Category = "generator"  // Content generation, model tiers
	CategoryMatcher    Category = "matcher"    // Persona matching
	CategoryModeration Category = "moderation" // Moderation gate decisions
	CategoryStore      Category = "store"      // Forum/post/persona store operations
	CategoryImages     Category = "images"     // Image mapping and attachment
	CategoryQA         Category = "qa"         // Q&A front-end calls
)

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	sugared = map[Category]*zap.SugaredLogger{}
)

// Initialize installs the process-wide logger. Level is one of
// debug/info/warn/error; anything else falls back to info. Safe to call more
// than once; later calls replace the backing logger.
func Initialize(level string, development bool) error {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn", "warning":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	mu.Lock()
	base = logger
	sugared = map[Category]*zap.SugaredLogger{}
	mu.Unlock()
	return nil
}

// Get returns the sugared logger for a category, creating it on first use.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := sugared[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := sugared[category]; ok {
		return l
	}
	l := base.Named(string(category)).Sugar()
	sugared[category] = l
	return l
}

// Sync flushes buffered log entries. Call at shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

// Boot logs to the boot category.
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Infof(format, args...) }

// BootWarn logs warning to the boot category.
func BootWarn(format string, args ...interface{}) { Get(CategoryBoot).Warnf(format, args...) }

// Scheduler logs to the scheduler category.
func Scheduler(format string, args ...interface{}) { Get(CategoryScheduler).Infof(format, args...) }

// SchedulerDebug logs debug to the scheduler category.
func SchedulerDebug(format string, args ...interface{}) {
	Get(CategoryScheduler).Debugf(format, args...)
}

// SchedulerWarn logs warning to the scheduler category.
func SchedulerWarn(format string, args ...interface{}) {
	Get(CategoryScheduler).Warnf(format, args...)
}

// SchedulerError logs error to the scheduler category.
func SchedulerError(format string, args ...interface{}) {
	Get(CategoryScheduler).Errorf(format, args...)
}

// Activity logs to the activity category.
func Activity(format string, args ...interface{}) { Get(CategoryActivity).Infof(format, args...) }

// ActivityDebug logs debug to the activity category.
func ActivityDebug(format string, args ...interface{}) {
	Get(CategoryActivity).Debugf(format, args...)
}

// ActivityWarn logs warning to the activity category.
func ActivityWarn(format string, args ...interface{}) { Get(CategoryActivity).Warnf(format, args...) }

// Generator logs to the generator category.
func Generator(format string, args ...interface{}) { Get(CategoryGenerator).Infof(format, args...) }

// GeneratorDebug logs debug to the generator category.
func GeneratorDebug(format string, args ...interface{}) {
	Get(CategoryGenerator).Debugf(format, args...)
}

// GeneratorWarn logs warning to the generator category.
func GeneratorWarn(format string, args ...interface{}) {
	Get(CategoryGenerator).Warnf(format, args...)
}

// Matcher logs to the matcher category.
func Matcher(format string, args ...interface{}) { Get(CategoryMatcher).Infof(format, args...) }

// MatcherDebug logs debug to the matcher category.
func MatcherDebug(format string, args ...interface{}) { Get(CategoryMatcher).Debugf(format, args...) }

// Moderation logs to the moderation category.
func Moderation(format string, args ...interface{}) { Get(CategoryModeration).Infof(format, args...) }

// ModerationWarn logs warning to the moderation category.
func ModerationWarn(format string, args ...interface{}) {
	Get(CategoryModeration).Warnf(format, args...)
}

// Store logs to the store category.
func Store(format string, args ...interface{}) { Get(CategoryStore).Infof(format, args...) }

// StoreDebug logs debug to the store category.
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debugf(format, args...) }

// StoreWarn logs warning to the store category.
func StoreWarn(format string, args ...interface{}) { Get(CategoryStore).Warnf(format, args...) }

// Images logs to the images category.
func Images(format string, args ...interface{}) { Get(CategoryImages).Infof(format, args...) }

// ImagesDebug logs debug to the images category.
func ImagesDebug(format string, args ...interface{}) { Get(CategoryImages).Debugf(format, args...) }

// QA logs to the qa category.
func QA(format string, args ...interface{}) { Get(CategoryQA).Infof(format, args...) }

// QAWarn logs warning to the qa category.
func QAWarn(format string, args ...interface{}) { Get(CategoryQA).Warnf(format, args...) }
