// Package maintenance provides background housekeeping for checkpg instances.
//
// The retention service deletes finished check requests after a configured
// window. Audit log records and document blobs are never touched; they are
// the durable record of what was checked.
package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/youssefsiam38/checkpg/storage"
)

// Default retention configuration values
const (
	DefaultSweepInterval = 1 * time.Hour
	DefaultRetention     = 30 * 24 * time.Hour
)

var (
	// ErrAlreadyStarted is returned when Start is called on a running service.
	ErrAlreadyStarted = errors.New("retention service already started")

	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = errors.New("retention service not started")
)

// RetentionConfig holds configuration for the retention service.
type RetentionConfig struct {
	// SweepInterval is how often to delete expired checks.
	// Default: 1 hour
	SweepInterval time.Duration

	// Retention is how long terminal checks are kept.
	// Default: 30 days
	Retention time.Duration

	// OnSweep is called after each sweep with the number of checks deleted.
	OnSweep func(count int)

	// OnError is called when a sweep fails.
	// If nil, errors are silently ignored.
	OnError func(err error)
}

// DefaultRetentionConfig returns the default retention configuration.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		SweepInterval: DefaultSweepInterval,
		Retention:     DefaultRetention,
	}
}

func (c *RetentionConfig) applyDefaults() {
	if c.SweepInterval == 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.Retention == 0 {
		c.Retention = DefaultRetention
	}
}

// Retention periodically deletes finished checks past the retention window.
type Retention struct {
	store  storage.Store
	config *RetentionConfig

	started atomic.Bool
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewRetention creates a new retention service.
func NewRetention(store storage.Store, config *RetentionConfig) *Retention {
	if config == nil {
		config = DefaultRetentionConfig()
	}
	config.applyDefaults()

	return &Retention{
		store:  store,
		config: config,
		done:   make(chan struct{}),
	}
}

// Start begins the sweep loop. It returns immediately and sweeps in a
// goroutine.
func (r *Retention) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ctx, r.cancel = context.WithCancel(ctx)
	go r.run(ctx)

	return nil
}

// Stop stops the sweep loop and waits for it to exit.
func (r *Retention) Stop(ctx context.Context) error {
	if !r.started.Load() {
		return ErrNotStarted
	}

	r.cancel()

	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.started.Store(false)
	return nil
}

// IsRunning returns true if the service is running.
func (r *Retention) IsRunning() bool {
	return r.started.Load()
}

func (r *Retention) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep deletes finished checks past the retention window once.
func (r *Retention) Sweep(ctx context.Context) {
	count, err := r.store.DeleteFinishedChecks(ctx, r.config.Retention)
	if err != nil {
		if r.config.OnError != nil {
			r.config.OnError(err)
		}
		return
	}
	if r.config.OnSweep != nil {
		r.config.OnSweep(count)
	}
}
