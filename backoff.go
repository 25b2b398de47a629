package eventsource

import (
	"math"
	"math/rand"
	"time"
)

// backoffWithJitter computes the delay before a reconnection attempt: a
// random duration in the upper half of an exponentially growing ceiling.
// The ceiling is min(max, base * 2^attempts), saturating at 2^31-1
// milliseconds, so the delay never synchronizes many clients against the
// same server.
func backoffWithJitter(base, max time.Duration, attempts int) time.Duration {
	ceiling := max.Milliseconds()
	if d := saturatingShift(base.Milliseconds(), attempts); d < ceiling {
		ceiling = d
	}
	if ceiling > math.MaxInt32 {
		ceiling = math.MaxInt32
	}
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(ceiling/2+rand.Int63n(ceiling)/2) * time.Millisecond
}

// saturatingShift returns v * 2^n, pinned to MaxInt64 on overflow.
func saturatingShift(v int64, n int) int64 {
	if v <= 0 {
		return 0
	}
	if n >= 63 {
		return math.MaxInt64
	}
	shifted := v << uint(n)
	if shifted>>uint(n) != v || shifted < 0 {
		return math.MaxInt64
	}
	return shifted
}
