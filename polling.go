package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// transportRetryBudget is how many consecutive failed polls are tolerated.
const transportRetryBudget = 3

// WaitForConversion polls the status endpoint until the job is processed,
// fails, the conversion timeout is spent, or the retry budget runs out.
func (c *client) WaitForConversion(ctx context.Context, opts ConversionOptions, uuid string) (*JobStatus, error) {
	if uuid == "" {
		return nil, ErrMissingUUID
	}

	status, err := c.waitWithPolling(ctx, opts, uuid)
	if err != nil {
		return nil, err
	}

	status.auth = opts.Parameters.credentials()
	return status, nil
}

func (c *client) waitWithPolling(ctx context.Context, opts ConversionOptions, uuid string) (*JobStatus, error) {
	var (
		retries int
		elapsed time.Duration
	)

	for {
		status, err := c.GetStatus(ctx, opts, uuid)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("waiting for %s cancelled: %w", OperationConversion, ctxErr)
			}

			retries++
			c.logger.LogAttrs(ctx, slog.LevelWarn, "status poll failed",
				slog.String("uuid", uuid),
				slog.Int("attempt", retries),
				slog.String("error", err.Error()),
			)
			if retries > transportRetryBudget {
				return nil, &PollExhaustedError{UUID: uuid, Attempts: retries, Err: err}
			}

			// Failed polls do not count toward the conversion timeout.
			if err := c.waitForNextPoll(ctx); err != nil {
				return nil, err
			}
			continue
		}

		retries = 0

		switch status.State {
		case StateProcessed:
			c.reportProgress(ctx, status)
			return status, nil
		case StateError:
			c.reportProgress(ctx, status)
			return nil, &ConversionError{UUID: uuid, Message: status.Error}
		}

		c.reportProgress(ctx, status)
		if opts.ProgressCallback != nil {
			opts.ProgressCallback(status)
		}

		if err := c.waitForNextPoll(ctx); err != nil {
			return nil, err
		}
		elapsed += c.pollInterval

		if opts.ConversionTimeout > 0 && elapsed > opts.ConversionTimeout {
			return nil, &ConversionTimeoutError{UUID: uuid, Timeout: opts.ConversionTimeout, Elapsed: elapsed}
		}
	}
}

// waitForNextPoll blocks for one poll interval or until ctx is done.
func (c *client) waitForNextPoll(ctx context.Context) error {
	if err := c.sleep(ctx, c.pollInterval); err != nil {
		return fmt.Errorf("waiting for %s cancelled: %w", OperationConversion, err)
	}
	return nil
}

func (c *client) reportProgress(ctx context.Context, status *JobStatus) {
	if err := c.progress.Report(status); err != nil {
		c.logger.LogAttrs(ctx, slog.LevelWarn, "progress report failed",
			slog.String("uuid", status.UUID),
			slog.String("error", err.Error()),
		)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
