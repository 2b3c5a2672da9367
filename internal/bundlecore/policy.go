package bundlecore

import (
	"fmt"
	"strings"
	"time"

	"github.com/jpillora/backoff"
)

// BackoffKind selects the pause between failed attempts.
type BackoffKind int

const (
	BackoffNone BackoffKind = iota
	BackoffExponential
)

// ParseBackoff accepts "none" or "exponential".
func ParseBackoff(s string) (BackoffKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return BackoffNone, nil
	case "exp", "exponential":
		return BackoffExponential, nil
	}
	return 0, fmt.Errorf("unknown backoff %q", s)
}

// Policy bounds the submission loop. The zero value retries forever without pauses.
type Policy struct {
	// MaxAttempts stops the loop after this many submissions; 0 means unbounded.
	MaxAttempts int
	Backoff     BackoffKind
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	// AttemptTimeout caps one relay round trip (submit + wait).
	AttemptTimeout time.Duration
	// MaxSigningFailures escalates after this many consecutive signing failures; 0 disables.
	MaxSigningFailures int
	// Simulate asks the relay why a missed bundle failed.
	Simulate bool
	// HeadBuffer is the capacity of the head notification queue.
	HeadBuffer int
}

// DefaultPolicy retries on every block without a cap on attempts.
func DefaultPolicy() Policy {
	return Policy{
		Backoff:            BackoffNone,
		BackoffMin:         time.Second,
		BackoffMax:         30 * time.Second,
		AttemptTimeout:     2 * time.Minute,
		MaxSigningFailures: 5,
		Simulate:           true,
		HeadBuffer:         16,
	}
}

func (p Policy) newBackoff() *backoff.Backoff {
	if p.Backoff != BackoffExponential {
		return nil
	}
	return &backoff.Backoff{Min: p.BackoffMin, Max: p.BackoffMax, Factor: 2, Jitter: true}
}
