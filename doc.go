// Package checkpg provides a Postgres-backed compliance checking engine for
// engagement letters.
//
// Engagement letters and policy documents are stored as immutable versioned
// blobs in Postgres. A check pairs one engagement letter with one policy
// version, partitions both into token-bounded chunks that fit the model's
// context budget, and asks the model to list policy violations for every
// chunk pair. Violations are accumulated into a Markdown report, stored
// alongside the engagement letter, and exposed through a signed expiring URL.
//
// Checks run asynchronously: EnqueueCheck persists a check request in a
// Postgres-backed queue, workers claim requests with FOR UPDATE SKIP LOCKED,
// and progress and results are published over LISTEN/NOTIFY so callers can
// stream updates without polling.
//
// Basic usage:
//
//	client, err := checkpg.New(pool, &checkpg.ClientConfig{
//	    APIKey:          os.Getenv("ANTHROPIC_API_KEY"),
//	    Model:           "claude-3-5-sonnet-20241022",
//	    SigningKey:      signingKey,
//	    DocumentBaseURL: "https://example.com/documents",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := client.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Stop(ctx)
//
//	checkID, err := client.EnqueueCheck(ctx, checkpg.CheckRequest{
//	    UserID:           "auditor-1",
//	    EngagementLetter: "acme-2026.md",
//	    PolicyName:       "engagement-policy.md",
//	})
//
// Subscribe to the notifier for completion events:
//
//	client.Notifier().Subscribe(notifier.EventCheckCompleted, func(event *notifier.Event) {
//	    var result checkpg.CheckResult
//	    json.Unmarshal([]byte(event.Payload), &result)
//	    fmt.Printf("check %s: %d violations\n", result.CheckID, result.ViolationsCount)
//	})
package checkpg
