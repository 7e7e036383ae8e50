package catfeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/catfeed/internal/stores"
	"github.com/MrEthical07/catfeed/jwt"
	"github.com/MrEthical07/catfeed/password"
	"github.com/MrEthical07/catfeed/session"
	"github.com/rs/zerolog"
	"github.com/thejerf/abtime"
)

// Engine owns sessions, CSRF tokens, flash notices and the account flows
// built on them. It is safe for concurrent use once built.
type Engine struct {
	config        Config
	sessionStore  *session.Store
	resetStore    *stores.PasswordResetStore
	resetTokens   *jwt.Manager
	codec         *password.Codec
	accounts      AccountProvider
	resetNotifier ResetNotifier
	audit         *auditDispatcher
	metrics       *Metrics
	clock         abtime.AbstractTime
	logger        zerolog.Logger

	// idSource overrides session identifier generation in tests.
	idSource func() (string, error)
}

// Close stops the audit dispatcher after draining queued events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the configuration the Engine was built with.
func (e *Engine) Config() Config {
	if e == nil {
		return defaultConfig()
	}
	return cloneConfig(e.config)
}

// Logger returns the Engine's logger.
func (e *Engine) Logger() zerolog.Logger {
	if e == nil {
		return zerolog.Nop()
	}
	return e.logger
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping checks the session backend and reports the round-trip time.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.sessionStore == nil {
		return 0, ErrEngineNotReady
	}
	d, err := e.sessionStore.Ping(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	return d, nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) now() time.Time {
	if e.clock == nil {
		return time.Now()
	}
	return e.clock.Now()
}

func (e *Engine) ready() error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}
	return nil
}

// observeStore records session store latency when histograms are enabled.
func (e *Engine) observeStore(start time.Time) {
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricSessionStoreLatency, e.now().Sub(start))
	}
}

// mapSessionError translates session store errors into engine errors.
func mapSessionError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrExpired):
		return ErrSessionNotFound
	case errors.Is(err, session.ErrVersionConflict):
		return ErrSessionConflict
	case errors.Is(err, session.ErrRedisUnavailable):
		return fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	default:
		return err
	}
}
