package resilience

import (
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds how often and how far apart one operation is retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// Jitter spreads each wait uniformly over [wait*(1-Jitter), wait].
	Jitter float64
}

type BreakerPolicy struct {
	Enabled          bool
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

// Config holds the shared policies. Operations overrides the retry policy
// for named operations such as "ollama.generate"; zero fields fall back to
// Retry.
type Config struct {
	Retry      RetryPolicy
	Breaker    BreakerPolicy
	Operations map[string]RetryPolicy
}

func DefaultConfig() Config {
	return Config{
		Retry: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     800 * time.Millisecond,
			Multiplier:     2.0,
			Jitter:         0.2,
		},
		Breaker: BreakerPolicy{
			Enabled:          true,
			MinRequests:      10,
			FailureRatio:     0.5,
			OpenTimeout:      30 * time.Second,
			HalfOpenMaxCalls: 2,
		},
	}
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	out := Config{
		Retry:   c.Retry.withDefaults(def.Retry),
		Breaker: c.Breaker,
	}
	if len(c.Operations) > 0 {
		out.Operations = make(map[string]RetryPolicy, len(c.Operations))
		for op, p := range c.Operations {
			out.Operations[op] = p.withDefaults(out.Retry)
		}
	}

	if out.Breaker.MinRequests == 0 {
		out.Breaker.MinRequests = def.Breaker.MinRequests
	}
	if out.Breaker.FailureRatio <= 0 || out.Breaker.FailureRatio > 1 {
		out.Breaker.FailureRatio = def.Breaker.FailureRatio
	}
	if out.Breaker.OpenTimeout <= 0 {
		out.Breaker.OpenTimeout = def.Breaker.OpenTimeout
	}
	if out.Breaker.HalfOpenMaxCalls == 0 {
		out.Breaker.HalfOpenMaxCalls = def.Breaker.HalfOpenMaxCalls
	}
	return out
}

func (c Config) retryPolicy(operation string) RetryPolicy {
	if p, ok := c.Operations[operation]; ok {
		return p
	}
	return c.Retry
}

func (p RetryPolicy) withDefaults(base RetryPolicy) RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = base.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = base.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = base.MaxBackoff
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = base.Multiplier
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = 0
	}
	return p
}

// wait returns the pause before retry number attempt (1-based).
func (p RetryPolicy) wait(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= p.Multiplier
		if backoff >= float64(p.MaxBackoff) {
			break
		}
	}
	d := min(time.Duration(backoff), p.MaxBackoff)
	if p.Jitter > 0 && d > 0 {
		d -= time.Duration(rand.Float64() * p.Jitter * float64(d))
	}
	return d
}
