package fsrs

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"
)

type fuzzRange struct {
	start, end float64
	factor     float64
}

var fuzzRanges = []fuzzRange{
	{2.5, 7.0, 0.15},
	{7.0, 20.0, 0.10},
	{20.0, math.Inf(1), 0.05},
}

func fuzzDelta(interval float64) float64 {
	delta := 1.0
	for _, r := range fuzzRanges {
		delta += r.factor * math.Max(math.Min(interval, r.end)-r.start, 0)
	}
	return delta
}

// applyFuzz spreads an interval over [ivl-delta, ivl+delta]. Intervals below
// 2.5 days are returned unchanged and the result never exceeds maxInterval.
func applyFuzz(interval, maxInterval int, rng *rand.Rand) int {
	ivl := float64(interval)
	if ivl < 2.5 {
		return interval
	}

	delta := fuzzDelta(ivl)
	lo := max(2, int(math.Round(ivl-delta)))
	hi := min(int(math.Round(ivl+delta)), maxInterval)
	lo = min(lo, hi)

	fuzzed := int(math.Floor(rng.Float64()*float64(hi-lo+1))) + lo
	return min(fuzzed, hi)
}

// fuzzRand returns a generator seeded from the review identity so that
// replaying the same review always yields the same interval.
func fuzzRand(key string, reviewedAt time.Time, reps int) *rand.Rand {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%s|%d|%d", key, reviewedAt.UnixMilli(), reps)
	return rand.New(rand.NewSource(int64(h.Sum64())))
}
