// Package engine implements the attendance determination core: per-student
// presence timers, device and check-in bookkeeping, session lifecycle, and
// the authorization decision that turns a check-in into an attendance
// record. One mutex serializes every state-mutating operation, including
// the periodic background passes, so the engine is logically
// single-threaded no matter how many goroutines drive it.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"rollcall/server/internal/model"
	"rollcall/server/internal/store"
)

// Clock supplies the current time. Production uses the system clock; tests
// inject a manual one to drive ticks deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return systemClock{} }

// Config carries the engine timings that are not part of the settings row.
type Config struct {
	// TimerDuration is the fallback presence-timer duration when the
	// settings row carries none.
	TimerDuration time.Duration
	// CheckinRetention bounds how old a check-in may get before the
	// expiry sweep removes it.
	CheckinRetention time.Duration
	// DeviceIdleLimit bounds device inactivity before the idle sweep
	// evicts the device and its dependent rows.
	DeviceIdleLimit time.Duration
}

func (c Config) withDefaults() Config {
	if c.TimerDuration <= 0 {
		c.TimerDuration = 30 * time.Minute
	}
	if c.CheckinRetention <= 0 {
		c.CheckinRetention = 10 * time.Minute
	}
	if c.DeviceIdleLimit <= 0 {
		c.DeviceIdleLimit = 5 * time.Minute
	}
	return c
}

type Engine struct {
	mu    sync.Mutex
	store store.Store
	clock Clock
	cfg   Config
	log   *zap.Logger
}

func New(st store.Store, clock Clock, cfg Config, log *zap.Logger) *Engine {
	if clock == nil {
		clock = SystemClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store: st,
		clock: clock,
		cfg:   cfg.withDefaults(),
		log:   log,
	}
}

// settings returns the settings row, falling back to configured defaults
// only when the store has none yet. Any other store error is surfaced so
// callers do not mistake a transient failure for an unset oracle.
func (e *Engine) settings(ctx context.Context) (model.Settings, error) {
	settings, err := e.store.GetSettings(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Settings{
				CheckinInterval: time.Minute,
				TimerDuration:   e.cfg.TimerDuration,
			}, nil
		}
		return model.Settings{}, err
	}
	if settings.TimerDuration <= 0 {
		settings.TimerDuration = e.cfg.TimerDuration
	}
	return settings, nil
}

func (e *Engine) timerDuration(ctx context.Context) (time.Duration, error) {
	settings, err := e.settings(ctx)
	if err != nil {
		return 0, err
	}
	return settings.TimerDuration, nil
}
