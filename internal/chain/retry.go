package chain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jpillora/backoff"
)

const (
	defaultRetries  = 3
	defaultRetryMin = 200 * time.Millisecond
	defaultRetryMax = 3 * time.Second
)

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "Too Many Requests") || strings.Contains(s, "-32005") || strings.Contains(s, "429")
}

// IsRevert reports whether err is an EVM revert rather than a transport failure.
func IsRevert(err error) bool {
	return err != nil && strings.Contains(err.Error(), "execution reverted")
}

// RevertReason trims node boilerplate around a revert message.
func RevertReason(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	if i := strings.Index(s, "execution reverted"); i >= 0 {
		return s[i:]
	}
	return s
}

func retryable(err error) bool {
	switch {
	case err == nil, IsRevert(err):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// retry runs fn up to c.retries times. Rate-limit errors back off exponentially,
// other transport errors wait the minimum delay. Reverts fail immediately.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	b := &backoff.Backoff{Min: c.retryMin, Max: defaultRetryMax, Factor: 2}
	var err error
	for attempt := 1; ; attempt++ {
		if err = c.wait(ctx); err != nil {
			return err
		}
		if err = fn(); !retryable(err) || attempt >= c.retries {
			return err
		}
		d := c.retryMin
		if isRateLimitError(err) {
			d = b.Duration()
		}
		c.log.WithError(err).WithField("attempt", attempt).Debug("rpc call failed, retrying")
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return ctx.Err()
	}
	return c.limiter.Wait(ctx)
}
