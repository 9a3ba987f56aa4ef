package whatsapp

import (
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/config"
)

// ReconnectPolicy decides how long a session waits before each reconnect
// attempt and when it gives up.
type ReconnectPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxAttempts  int
}

func NewReconnectPolicy(c config.ReconnectConfig) ReconnectPolicy {
	return ReconnectPolicy{
		InitialDelay: c.InitialDelay,
		MaxDelay:     c.MaxDelay,
		Multiplier:   c.Multiplier,
		MaxAttempts:  c.MaxAttempts,
	}
}

// Delay returns the wait before attempt n (1-based). The first attempt waits
// InitialDelay; later ones grow by Multiplier from max(InitialDelay, 1s),
// capped at MaxDelay. Zero MaxDelay caps at the largest Duration.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return p.InitialDelay
	}
	base := p.InitialDelay
	if base <= 0 {
		base = time.Second
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	ceiling := p.MaxDelay
	if ceiling <= 0 {
		ceiling = time.Duration(math.MaxInt64)
	}
	d := float64(base) * math.Pow(mult, float64(attempt-2))
	if math.IsInf(d, 0) || math.IsNaN(d) || d >= float64(ceiling) {
		return ceiling
	}
	return time.Duration(d)
}

// Exhausted reports whether attempt n is beyond the attempt cap. Zero
// MaxAttempts never exhausts.
func (p ReconnectPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt > p.MaxAttempts
}

// newReconnectLimiter bounds reconnects across all sessions.
func newReconnectLimiter(c config.ReconnectConfig) *rate.Limiter {
	if c.RatePerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := c.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(c.RatePerSecond), burst)
}
