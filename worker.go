package checkpg

import (
	"context"
	"sync"
	"time"
)

// checkWorker claims pending checks and runs them concurrently, bounded by a
// semaphore. Claims happen on a poll tick or an explicit trigger from the
// check created notification; a stale release loop returns checks claimed by
// dead instances to the queue.
type checkWorker struct {
	client    *Client
	triggerCh chan struct{}

	// sem bounds the number of checks running at once.
	sem chan struct{}
	wg  sync.WaitGroup
}

func newCheckWorker(c *Client) *checkWorker {
	return &checkWorker{
		client:    c,
		triggerCh: make(chan struct{}, 1),
		sem:       make(chan struct{}, c.config.MaxConcurrentChecks),
	}
}

func (w *checkWorker) trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

func (w *checkWorker) run(ctx context.Context) {
	poll := time.NewTicker(w.client.config.PollInterval)
	defer poll.Stop()

	release := time.NewTicker(w.client.config.StaleReleaseInterval)
	defer release.Stop()

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			return
		case <-w.triggerCh:
			w.claimAndProcess(ctx)
		case <-poll.C:
			w.claimAndProcess(ctx)
		case <-release.C:
			w.releaseStale(ctx)
		}
	}
}

func (w *checkWorker) claimAndProcess(ctx context.Context) {
	c := w.client

	// Claim only what the semaphore has room for right now.
	available := cap(w.sem) - len(w.sem)
	if available == 0 {
		return
	}

	checks, err := c.store.ClaimChecks(ctx, c.instanceID, available)
	if err != nil {
		c.config.Logger.Error("failed to claim checks", "error", err)
		if c.config.OnError != nil {
			c.config.OnError(err)
		}
		return
	}

	for _, check := range checks {
		select {
		case w.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		check := check
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer func() { <-w.sem }()

			c.config.Logger.Info("processing check",
				"check_id", check.ID,
				"engagement", check.EngagementName,
				"policy", check.PolicyName,
				"attempt", check.Attempts,
			)
			if err := c.checker.process(ctx, check); err != nil && c.config.OnError != nil {
				c.config.OnError(err)
			}

			// A finished slot may leave claimable work behind.
			w.trigger()
		}()
	}
}

func (w *checkWorker) releaseStale(ctx context.Context) {
	c := w.client

	released, err := c.store.ReleaseStaleChecks(ctx, c.config.VisibilityTimeout)
	if err != nil {
		c.config.Logger.Error("failed to release stale checks", "error", err)
		if c.config.OnError != nil {
			c.config.OnError(err)
		}
		return
	}
	if released > 0 {
		c.config.Logger.Warn("released stale checks back to queue", "count", released)
		w.trigger()
	}
}
