package upload

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/abtime"
)

const janitorTickID = 1

// Janitor periodically removes uploads that no post refers to. It implements
// suture.Service.
type Janitor struct {
	Store    Store
	Interval time.Duration
	MaxAge   time.Duration
	// InUse reports whether a post still refers to key.
	InUse  func(ctx context.Context, key string) (bool, error)
	Clock  abtime.AbstractTime
	Logger zerolog.Logger
}

// Serve runs sweeps until ctx is cancelled.
func (j *Janitor) Serve(ctx context.Context) error {
	clock := j.Clock
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	interval := j.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := clock.NewTicker(interval, janitorTickID)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Channel():
			j.Sweep(ctx)
		}
	}
}

// Sweep runs one cleanup pass and returns the number of files removed.
// A failed InUse lookup keeps the file.
func (j *Janitor) Sweep(ctx context.Context) int {
	maxAge := j.MaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}

	keep := func(key string) bool {
		if j.InUse == nil {
			return true
		}
		used, err := j.InUse(ctx, key)
		if err != nil {
			j.Logger.Warn().Err(err).Str("key", key).Msg("upload janitor: reference check failed")
			return true
		}
		return used
	}

	removed, err := j.Store.Cleanup(ctx, maxAge, keep)
	if err != nil {
		j.Logger.Warn().Err(err).Msg("upload janitor: cleanup failed")
	}
	if removed > 0 {
		j.Logger.Info().Int("removed", removed).Msg("upload janitor: removed orphaned files")
	}
	return removed
}

func (j *Janitor) String() string {
	return "upload janitor"
}
