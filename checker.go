package checkpg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/youssefsiam38/checkpg/blobstore"
	"github.com/youssefsiam38/checkpg/extract"
	"github.com/youssefsiam38/checkpg/hooks"
	"github.com/youssefsiam38/checkpg/notifier"
	"github.com/youssefsiam38/checkpg/storage"
)

// checker runs one claimed check end to end: resolve documents, drive the
// chunked analysis, persist the outcome, and publish events.
type checker struct {
	c *Client
}

func newChecker(c *Client) *checker {
	return &checker{c: c}
}

func checkInfo(check *storage.CheckRecord) hooks.CheckInfo {
	return hooks.CheckInfo{
		CheckID:        check.ID,
		UserID:         check.UserID,
		EngagementName: check.EngagementName,
		PolicyName:     check.PolicyName,
		PolicyVersion:  check.PolicyVersion,
	}
}

// process runs a claimed check to completion. Failures are recorded on the
// check record; the returned error is for the worker's logging only.
func (ch *checker) process(ctx context.Context, check *storage.CheckRecord) error {
	c := ch.c

	if err := ch.run(ctx, check); err != nil {
		// Cancellation mid-run leaves the check claimed; the stale release
		// loop returns it to the queue for redelivery.
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.config.Logger.Error("check failed",
			"check_id", check.ID,
			"attempt", check.Attempts,
			"error", err,
		)

		if failErr := c.store.FailCheck(ctx, check.ID, err.Error(), c.config.MaxAttempts); failErr != nil {
			if errors.Is(failErr, storage.ErrCheckNotRunning) {
				c.config.Logger.Info("check no longer running, discarding failure",
					"check_id", check.ID, "error", err)
				return nil
			}
			return fmt.Errorf("failed to record check failure: %w (original: %v)", failErr, err)
		}

		c.publishJSON(ctx, notifier.EventCheckFailed, CheckFailure{
			CheckID: check.ID,
			UserID:  check.UserID,
			Error:   err.Error(),
		})
		if hookErr := c.config.Hooks.TriggerCheckFailed(ctx, checkInfo(check), err); hookErr != nil {
			c.config.Logger.Warn("check failed hook failed", "check_id", check.ID, "error", hookErr)
		}
		return err
	}

	return nil
}

func (ch *checker) run(ctx context.Context, check *storage.CheckRecord) error {
	c := ch.c

	// Pin an explicit policy version so the audit record names exactly what
	// was analyzed, even when the request left the version open.
	if check.PolicyVersion == "" {
		blob, err := c.blobs.Latest(ctx, blobstore.PoliciesContainer, check.PolicyName)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrPolicyNotFound, check.PolicyName)
		}
		check.PolicyVersion = blob.VersionID
	}

	if err := c.config.Hooks.TriggerCheckStart(ctx, checkInfo(check)); err != nil {
		return fmt.Errorf("check start hook: %w", err)
	}

	engagementText, err := c.extractor.Extract(ctx, extract.Locator{
		Container: blobstore.EngagementsContainer,
		Name:      check.EngagementName,
	})
	if err != nil {
		return fmt.Errorf("%w: engagement letter %s: %v", ErrExtractionFailed, check.EngagementName, err)
	}

	policyText, err := c.extractor.Extract(ctx, extract.Locator{
		Container: blobstore.PoliciesContainer,
		Name:      check.PolicyName,
		VersionID: check.PolicyVersion,
	})
	if err != nil {
		return fmt.Errorf("%w: policy %s@%s: %v", ErrExtractionFailed, check.PolicyName, check.PolicyVersion, err)
	}

	eng, err := c.newEngine(c.retryPolicyWithHook(check))
	if err != nil {
		return err
	}

	info := checkInfo(check)
	pairNumber := 0
	progress := func(percent int) {
		pairNumber++
		c.publishJSON(ctx, notifier.EventCheckProgress, CheckProgress{
			CheckID:  check.ID,
			UserID:   check.UserID,
			Progress: percent,
		})
		if hookErr := c.config.Hooks.TriggerPairAnalyzed(ctx, info, hooks.PairInfo{
			PairNumber: pairNumber,
			Progress:   percent,
		}); hookErr != nil {
			c.config.Logger.Warn("pair analyzed hook failed", "check_id", check.ID, "error", hookErr)
		}
	}

	result, err := eng.Analyze(ctx, engagementText, policyText, c.service.AnalyzePolicy, progress)
	if err != nil {
		return err
	}

	violationsCount := countViolationLines(result.Violations)
	var violationsURL string

	// The state transition, the report, and the run record commit together.
	// Completing first means a check cancelled during the analysis aborts
	// before any result lands.
	err = c.store.RunInTx(ctx, func(txCtx context.Context) error {
		if err := c.store.CompleteCheck(txCtx, check.ID); err != nil {
			return err
		}

		if violationsCount > 0 {
			reportName := check.EngagementName + "_Violations.md"
			versionID, err := c.blobs.Upload(txCtx, blobstore.EngagementsContainer, reportName,
				[]byte(result.Violations), "text/markdown")
			if err != nil {
				return fmt.Errorf("failed to store violations report: %w", err)
			}

			violationsURL = c.signer.SignReadURL(blobstore.EngagementsContainer, reportName,
				versionID, c.config.SignedURLTTL)
		}

		record := storage.EngagementRunRecord{
			User:                 check.UserID,
			CheckID:              check.ID,
			EngagementLetterName: check.EngagementName,
			PolicyName:           check.PolicyName,
			PolicyVersion:        check.PolicyVersion,
			ViolationsCount:      violationsCount,
			ViolationsURL:        violationsURL,
			CompletedAt:          time.Now().UTC(),
		}
		if err := c.store.AppendLog(txCtx, record); err != nil {
			return fmt.Errorf("failed to append run record: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrCheckNotRunning) {
			// Cancelled or reclaimed while the analysis ran. Discard the
			// result; a reclaimed check is redelivered to another worker.
			c.config.Logger.Info("check no longer running, discarding result",
				"check_id", check.ID)
			return nil
		}
		return err
	}

	c.publishJSON(ctx, notifier.EventCheckCompleted, CheckResult{
		CheckID:              check.ID,
		UserID:               check.UserID,
		EngagementLetterName: check.EngagementName,
		PolicyName:           check.PolicyName,
		PolicyVersion:        check.PolicyVersion,
		ViolationsCount:      violationsCount,
		ViolationsURL:        violationsURL,
	})
	if hookErr := c.config.Hooks.TriggerCheckComplete(ctx, info, violationsCount); hookErr != nil {
		c.config.Logger.Warn("check complete hook failed", "check_id", check.ID, "error", hookErr)
	}

	c.config.Logger.Info("check completed",
		"check_id", check.ID,
		"pairs", result.PairCount,
		"violations", violationsCount,
	)

	return nil
}

// countViolationLines counts the non-blank lines of the accumulated
// violation text. Zero means a clean engagement letter.
func countViolationLines(violations string) int {
	count := 0
	for _, line := range strings.Split(violations, "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count
}
