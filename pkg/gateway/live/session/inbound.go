package session

import "time"

// bucket is a token bucket with integer tokens. A rate of zero or less
// means the dimension is uncapped.
type bucket struct {
	rate   int64 // tokens added per second
	max    int64 // burst ceiling
	tokens int64
}

func (b *bucket) refill(elapsed time.Duration) {
	if b.rate <= 0 {
		return
	}
	b.tokens += b.rate * elapsed.Nanoseconds() / int64(time.Second)
	if b.tokens > b.max {
		b.tokens = b.max
	}
}

func (b *bucket) has(n int64) bool {
	if b.rate <= 0 {
		return true
	}
	return b.tokens >= n
}

func (b *bucket) take(n int64) {
	if b.rate <= 0 {
		return
	}
	b.tokens -= n
}

// inboundLimiter caps inbound audio on two dimensions at once, frames per
// second and bytes per second. A frame is admitted only when both buckets
// have room, so a flood of tiny frames and a few huge ones are rejected
// alike.
type inboundLimiter struct {
	now        func() time.Time
	frames     bucket
	bytes      bucket
	lastRefill time.Time
}

// newInboundLimiter returns nil when both caps are disabled, which callers
// treat as "no limiting".
func newInboundLimiter(now func() time.Time, maxFPS int, maxBPS int64, burstSeconds int) *inboundLimiter {
	if maxFPS <= 0 && maxBPS <= 0 {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	if burstSeconds <= 0 {
		burstSeconds = 1
	}
	burst := int64(burstSeconds)
	l := &inboundLimiter{
		now:        now,
		frames:     bucket{rate: int64(maxFPS), max: int64(maxFPS) * burst},
		bytes:      bucket{rate: maxBPS, max: maxBPS * burst},
		lastRefill: now(),
	}
	l.frames.tokens = l.frames.max
	l.bytes.tokens = l.bytes.max
	return l
}

// Allow reports whether a frame of the given size may be admitted, and
// spends the tokens when it may. Both buckets are debited together or not
// at all.
func (l *inboundLimiter) Allow(frameBytes int) bool {
	if l == nil {
		return true
	}
	if frameBytes < 0 {
		frameBytes = 0
	}

	t := l.now()
	elapsed := t.Sub(l.lastRefill)
	if elapsed > 0 {
		l.frames.refill(elapsed)
		l.bytes.refill(elapsed)
		l.lastRefill = t
	}

	cost := int64(frameBytes)
	if !l.frames.has(1) || !l.bytes.has(cost) {
		return false
	}
	l.frames.take(1)
	l.bytes.take(cost)
	return true
}
