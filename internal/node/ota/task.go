package ota

import (
	"context"

	"github.com/cenkalti/backoff/v4"

	"github.com/autopeer-io/sensornode/pkg/log"
)

// Run is the update task: the first check waits InitialDelay so telemetry
// comes up first, then a check runs every CheckInterval.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.Yielder.Sleep(ctx, c.opts.InitialDelay); err != nil {
		return err
	}
	for {
		c.CheckWithRetry(ctx)
		if err := c.Yielder.Sleep(ctx, c.opts.CheckInterval); err != nil {
			return err
		}
	}
}

// CheckWithRetry repeats CheckAndApply after transient failures, waiting
// RetryDelay between attempts, up to MaxAttempts. Other failures and
// exhausted attempts wait for the next periodic check.
func (c *Coordinator) CheckWithRetry(ctx context.Context) Outcome {
	attempts := c.opts.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.opts.RetryDelay), uint64(attempts-1)),
		ctx,
	)
	policy.Reset()

	for attempt := 1; ; attempt++ {
		out := c.CheckAndApply(ctx)
		if out.Kind != Failed || !out.Err.Reason.Transient() {
			return out
		}

		delay := policy.NextBackOff()
		if delay == backoff.Stop {
			log.Warn("Update attempts exhausted, waiting for next check", "attempts", attempt, "interval", c.opts.CheckInterval)
			return out
		}
		log.Info("Retrying update check", "attempt", attempt+1, "of", attempts, "delay", delay)
		if err := c.Yielder.Sleep(ctx, delay); err != nil {
			return out
		}
	}
}
