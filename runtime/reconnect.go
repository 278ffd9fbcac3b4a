package runtime

import (
	"chat-session/errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

type ReconnectPolicy string

const (
	PolicyNone        ReconnectPolicy = "none"
	PolicyFixed       ReconnectPolicy = "fixed"
	PolicyExponential ReconnectPolicy = "exponential"
)

// ReconnectConfig defines how a session retries after losing its channel.
// MaxAttempts caps consecutive failed attempts, 0 means unlimited.
// Jitter is the randomization factor of the exponential policy, in [0,1].
type ReconnectConfig struct {
	Policy       ReconnectPolicy
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       float64
	MaxAttempts  int
}

// DefaultReconnectConfig matches the relay client library defaults:
// 1s doubling up to 5s, half jitter, never giving up.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		Policy:       PolicyExponential,
		InitialDelay: time.Second,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       0.5,
		MaxAttempts:  0,
	}
}

// NewBackOff builds the backoff schedule for the configured policy.
func (c ReconnectConfig) NewBackOff() (backoff.BackOff, error) {
	switch c.Policy {
	case PolicyNone, "":
		return &backoff.StopBackOff{}, nil
	case PolicyFixed:
		if c.InitialDelay <= 0 {
			return nil, fmt.Errorf("%w: fixed policy needs a positive delay", errors.ErrInvalidPolicy)
		}
		return backoff.NewConstantBackOff(c.InitialDelay), nil
	case PolicyExponential:
		if c.InitialDelay <= 0 {
			return nil, fmt.Errorf("%w: exponential policy needs a positive initial delay", errors.ErrInvalidPolicy)
		}
		if c.Jitter < 0 || c.Jitter > 1 {
			return nil, fmt.Errorf("%w: jitter %.2f out of [0,1]", errors.ErrInvalidPolicy, c.Jitter)
		}
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = c.InitialDelay
		b.Multiplier = max(c.Multiplier, 1.0)
		b.RandomizationFactor = c.Jitter
		b.MaxInterval = c.MaxDelay
		if b.MaxInterval <= 0 {
			b.MaxInterval = c.InitialDelay
		}
		b.Reset()
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrInvalidPolicy, c.Policy)
	}
}

// reconnector counts consecutive attempts against a backoff schedule.
// Only the session loop touches it.
type reconnector struct {
	backoff     backoff.BackOff
	maxAttempts int
	attempts    int
}

func newReconnector(cfg ReconnectConfig) (*reconnector, error) {
	b, err := cfg.NewBackOff()
	if err != nil {
		return nil, err
	}
	return &reconnector{backoff: b, maxAttempts: cfg.MaxAttempts}, nil
}

// next returns the delay before the next attempt and its 1-based number.
// ok is false once the policy gives up.
func (r *reconnector) next() (delay time.Duration, attempt int, ok bool) {
	if r.maxAttempts > 0 && r.attempts >= r.maxAttempts {
		return 0, r.attempts, false
	}
	delay = r.backoff.NextBackOff()
	if delay == backoff.Stop {
		return 0, r.attempts, false
	}
	r.attempts++
	return delay, r.attempts, true
}

func (r *reconnector) reset() {
	r.attempts = 0
	r.backoff.Reset()
}
