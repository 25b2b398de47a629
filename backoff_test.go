package eventsource

import (
	"math"
	"testing"
	"time"
)

func TestBackoffWithJitter_StaysInUpperHalfOfCeiling(t *testing.T) {
	base := time.Second
	maxTime := 30 * time.Second
	for attempts := 1; attempts <= 10; attempts++ {
		ceiling := base.Milliseconds() << uint(attempts)
		if m := maxTime.Milliseconds(); ceiling > m {
			ceiling = m
		}
		lo := time.Duration(ceiling/2) * time.Millisecond
		hi := time.Duration(ceiling) * time.Millisecond
		for i := 0; i < 50; i++ {
			got := backoffWithJitter(base, maxTime, attempts)
			if got < lo || got > hi {
				t.Fatalf("attempts=%d: %v outside [%v, %v]", attempts, got, lo, hi)
			}
		}
	}
}

func TestBackoffWithJitter_ProducesVariedDelays(t *testing.T) {
	seen := map[time.Duration]bool{}
	for i := 0; i < 100; i++ {
		seen[backoffWithJitter(time.Second, 30*time.Second, 5)] = true
	}
	if len(seen) < 2 {
		t.Fatal("no jitter observed across 100 samples")
	}
}

func TestBackoffWithJitter_SaturatesAtMaxInt32Millis(t *testing.T) {
	got := backoffWithJitter(time.Hour, time.Duration(math.MaxInt64), 62)
	limit := time.Duration(math.MaxInt32) * time.Millisecond
	if got > limit {
		t.Fatalf("delay %v exceeds the 2^31-1 ms pin", got)
	}
	if got < limit/2-time.Millisecond {
		t.Fatalf("delay %v below half of the saturated ceiling", got)
	}
}

func TestSaturatingShift(t *testing.T) {
	tests := []struct {
		v    int64
		n    int
		want int64
	}{
		{1000, 1, 2000},
		{1000, 4, 16000},
		{0, 10, 0},
		{-5, 3, 0},
		{math.MaxInt64 / 2, 2, math.MaxInt64},
		{1, 63, math.MaxInt64},
	}
	for _, tt := range tests {
		if got := saturatingShift(tt.v, tt.n); got != tt.want {
			t.Errorf("saturatingShift(%d, %d) = %d, want %d", tt.v, tt.n, got, tt.want)
		}
	}
}
