package hooks

import (
	"context"
	"log"
	"time"
)

// LoggingHooks provides built-in logging hooks for observability
type LoggingHooks struct {
	logger *log.Logger
}

// NewLoggingHooks creates logging hooks with the provided logger
func NewLoggingHooks(logger *log.Logger) *LoggingHooks {
	return &LoggingHooks{logger: logger}
}

// DefaultLoggingHooks creates logging hooks with default logger
func DefaultLoggingHooks() *LoggingHooks {
	return &LoggingHooks{logger: log.Default()}
}

// Register attaches all logging hooks to the registry
func (h *LoggingHooks) Register(r *Registry) {
	r.OnCheckStart(h.CheckStart)
	r.OnPairAnalyzed(h.PairAnalyzed)
	r.OnRetry(h.Retry)
	r.OnCheckComplete(h.CheckComplete)
	r.OnCheckFailed(h.CheckFailed)
}

// CheckStart logs when a worker begins processing a check
func (h *LoggingHooks) CheckStart(ctx context.Context, check CheckInfo) error {
	h.logger.Printf("[CheckPG] Starting check %s: engagement=%s policy=%s version=%s",
		check.CheckID, check.EngagementName, check.PolicyName, check.PolicyVersion)
	return nil
}

// PairAnalyzed logs progress after each chunk pair
func (h *LoggingHooks) PairAnalyzed(ctx context.Context, check CheckInfo, pair PairInfo) error {
	h.logger.Printf("[CheckPG] Check %s: pair %d analyzed (%d%%)",
		check.CheckID, pair.PairNumber, pair.Progress)
	return nil
}

// Retry logs model call retries
func (h *LoggingHooks) Retry(ctx context.Context, check CheckInfo, attempt int, delay time.Duration, cause error) error {
	h.logger.Printf("[CheckPG] Check %s: retry %d in %v after error: %v",
		check.CheckID, attempt, delay, cause)
	return nil
}

// CheckComplete logs successful completion
func (h *LoggingHooks) CheckComplete(ctx context.Context, check CheckInfo, violationsCount int) error {
	h.logger.Printf("[CheckPG] Check %s complete: %d violations", check.CheckID, violationsCount)
	return nil
}

// CheckFailed logs failures
func (h *LoggingHooks) CheckFailed(ctx context.Context, check CheckInfo, cause error) error {
	h.logger.Printf("[CheckPG] Check %s failed: %v", check.CheckID, cause)
	return nil
}

// MetricsHooks collects metrics for monitoring
type MetricsHooks struct {
	OnMetric func(name string, value float64, tags map[string]string)
}

// NewMetricsHooks creates metrics collection hooks
func NewMetricsHooks(onMetric func(string, float64, map[string]string)) *MetricsHooks {
	return &MetricsHooks{OnMetric: onMetric}
}

// Register attaches all metrics hooks to the registry
func (h *MetricsHooks) Register(r *Registry) {
	r.OnPairAnalyzed(h.PairAnalyzed)
	r.OnRetry(h.Retry)
	r.OnCheckComplete(h.CheckComplete)
	r.OnCheckFailed(h.CheckFailed)
}

// PairAnalyzed records per-pair metrics
func (h *MetricsHooks) PairAnalyzed(ctx context.Context, check CheckInfo, pair PairInfo) error {
	h.OnMetric("check.pairs.analyzed", 1, map[string]string{"policy": check.PolicyName})
	return nil
}

// Retry records retry metrics
func (h *MetricsHooks) Retry(ctx context.Context, check CheckInfo, attempt int, delay time.Duration, cause error) error {
	h.OnMetric("check.retries", 1, map[string]string{"policy": check.PolicyName})
	return nil
}

// CheckComplete records completion metrics
func (h *MetricsHooks) CheckComplete(ctx context.Context, check CheckInfo, violationsCount int) error {
	tags := map[string]string{"policy": check.PolicyName}
	h.OnMetric("check.completed", 1, tags)
	h.OnMetric("check.violations", float64(violationsCount), tags)
	return nil
}

// CheckFailed records failure metrics
func (h *MetricsHooks) CheckFailed(ctx context.Context, check CheckInfo, cause error) error {
	h.OnMetric("check.failed", 1, map[string]string{"policy": check.PolicyName})
	return nil
}
