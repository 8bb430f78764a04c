package bus

import "time"

// Circuit breaker tuning.
const (
	// breakerThreshold is the consecutive-failure count that opens a
	// breaker.
	breakerThreshold = 5
	// breakerOpenTimeout is how long an open breaker skips deliveries
	// before allowing a half-open probe.
	breakerOpenTimeout = 60 * time.Second
)

// Breaker states.
const (
	breakerClosed   = "closed"
	breakerOpen     = "open"
	breakerHalfOpen = "half-open"
)

// breaker tracks consecutive delivery failures for one subscriber.
// Callers synchronize access through the bus mutex.
type breaker struct {
	state       string
	failures    int
	lastFailure time.Time
	openTimeout time.Duration
}

func newBreaker() *breaker {
	return &breaker{state: breakerClosed, openTimeout: breakerOpenTimeout}
}

// allow reports whether a delivery may be attempted. An open breaker whose
// timeout has elapsed transitions to half-open and allows one probe.
func (b *breaker) allow(now time.Time) bool {
	if b.state != breakerOpen {
		return true
	}
	if now.Sub(b.lastFailure) > b.openTimeout {
		b.state = breakerHalfOpen
		return true
	}
	return false
}

// success closes the breaker and resets the failure counter.
func (b *breaker) success() {
	b.state = breakerClosed
	b.failures = 0
}

// failure records a delivery error, opening the breaker at the threshold.
// A failed half-open probe reopens immediately.
func (b *breaker) failure(now time.Time) {
	b.failures++
	b.lastFailure = now
	if b.failures >= breakerThreshold || b.state == breakerHalfOpen {
		b.state = breakerOpen
	}
}

// BreakerState is the externally visible breaker snapshot.
type BreakerState struct {
	State    string `json:"state"`
	Failures int    `json:"failures"`
}
