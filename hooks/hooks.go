// Package hooks provides lifecycle hooks for observing compliance checks.
package hooks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CheckInfo describes the check a hook fires for.
type CheckInfo struct {
	CheckID        uuid.UUID
	UserID         string
	EngagementName string
	PolicyName     string
	PolicyVersion  string
}

// PairInfo describes one analyzed chunk pair. Progress is the floor
// percentage of pairs processed so far.
type PairInfo struct {
	PairNumber int
	Progress   int
}

// CheckStartHook is called when a worker begins processing a check
type CheckStartHook func(ctx context.Context, check CheckInfo) error

// PairAnalyzedHook is called after each chunk pair completes
type PairAnalyzedHook func(ctx context.Context, check CheckInfo, pair PairInfo) error

// RetryHook is called before a failed model call is retried
// Parameters: ctx, check, attempt (1-based), delay, cause
type RetryHook func(ctx context.Context, check CheckInfo, attempt int, delay time.Duration, err error) error

// CheckCompleteHook is called when a check finishes successfully
type CheckCompleteHook func(ctx context.Context, check CheckInfo, violationsCount int) error

// CheckFailedHook is called when a check fails
type CheckFailedHook func(ctx context.Context, check CheckInfo, err error) error

// Registry holds all registered hooks
type Registry struct {
	mu            sync.RWMutex
	checkStart    []CheckStartHook
	pairAnalyzed  []PairAnalyzedHook
	retry         []RetryHook
	checkComplete []CheckCompleteHook
	checkFailed   []CheckFailedHook
}

// NewRegistry creates a new hook registry
func NewRegistry() *Registry {
	return &Registry{
		checkStart:    []CheckStartHook{},
		pairAnalyzed:  []PairAnalyzedHook{},
		retry:         []RetryHook{},
		checkComplete: []CheckCompleteHook{},
		checkFailed:   []CheckFailedHook{},
	}
}

// OnCheckStart registers a hook to be called when processing begins
func (r *Registry) OnCheckStart(hook CheckStartHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkStart = append(r.checkStart, hook)
}

// OnPairAnalyzed registers a hook to be called after each chunk pair
func (r *Registry) OnPairAnalyzed(hook PairAnalyzedHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairAnalyzed = append(r.pairAnalyzed, hook)
}

// OnRetry registers a hook to be called before model call retries
func (r *Registry) OnRetry(hook RetryHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retry = append(r.retry, hook)
}

// OnCheckComplete registers a hook to be called on successful completion
func (r *Registry) OnCheckComplete(hook CheckCompleteHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkComplete = append(r.checkComplete, hook)
}

// OnCheckFailed registers a hook to be called on failure
func (r *Registry) OnCheckFailed(hook CheckFailedHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkFailed = append(r.checkFailed, hook)
}

// TriggerCheckStart calls all registered check-start hooks
func (r *Registry) TriggerCheckStart(ctx context.Context, check CheckInfo) error {
	r.mu.RLock()
	hooks := make([]CheckStartHook, len(r.checkStart))
	copy(hooks, r.checkStart)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, check); err != nil {
			return err
		}
	}
	return nil
}

// TriggerPairAnalyzed calls all registered pair-analyzed hooks
func (r *Registry) TriggerPairAnalyzed(ctx context.Context, check CheckInfo, pair PairInfo) error {
	r.mu.RLock()
	hooks := make([]PairAnalyzedHook, len(r.pairAnalyzed))
	copy(hooks, r.pairAnalyzed)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, check, pair); err != nil {
			return err
		}
	}
	return nil
}

// TriggerRetry calls all registered retry hooks
func (r *Registry) TriggerRetry(ctx context.Context, check CheckInfo, attempt int, delay time.Duration, cause error) error {
	r.mu.RLock()
	hooks := make([]RetryHook, len(r.retry))
	copy(hooks, r.retry)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, check, attempt, delay, cause); err != nil {
			return err
		}
	}
	return nil
}

// TriggerCheckComplete calls all registered check-complete hooks
func (r *Registry) TriggerCheckComplete(ctx context.Context, check CheckInfo, violationsCount int) error {
	r.mu.RLock()
	hooks := make([]CheckCompleteHook, len(r.checkComplete))
	copy(hooks, r.checkComplete)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, check, violationsCount); err != nil {
			return err
		}
	}
	return nil
}

// TriggerCheckFailed calls all registered check-failed hooks
func (r *Registry) TriggerCheckFailed(ctx context.Context, check CheckInfo, cause error) error {
	r.mu.RLock()
	hooks := make([]CheckFailedHook, len(r.checkFailed))
	copy(hooks, r.checkFailed)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, check, cause); err != nil {
			return err
		}
	}
	return nil
}
