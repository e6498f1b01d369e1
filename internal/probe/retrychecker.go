package probe

import (
	"context"
	"fmt"
	"time"
)

// RetryChecker gives a cold host a few chances before the keepalive counts
// the ping as failed.
type RetryChecker struct {
	Inner    Checker
	Attempts int
	Backoff  time.Duration
}

// Check retries Inner until it succeeds, attempts run out or ctx ends. The
// last failure is annotated with how many attempts were made.
func (r *RetryChecker) Check(ctx context.Context, target string) CheckResult {
	attempts := max(r.Attempts, 1)

	var (
		last CheckResult
		made int
	)
	for made < attempts {
		last = r.Inner.Check(ctx, target)
		made++
		if last.Success || made == attempts {
			break
		}
		t := time.NewTimer(r.Backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			last.Message += " (cancelled)"
			return last
		case <-t.C:
		}
	}
	if !last.Success && made > 1 {
		last.Message = fmt.Sprintf("%s (after %d attempts)", last.Message, made)
	}
	return last
}
