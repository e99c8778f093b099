package waitlist

import "math/rand/v2"

// RandIntFunc returns a uniform integer in [min, max].
type RandIntFunc func(min, max int) int

func defaultRandInt(min, max int) int {
	if max <= min {
		return min
	}
	return min + rand.IntN(max-min+1)
}

// positionBands map a base position to its adjustment range. Wider bands at
// higher counts hide the real queue size.
var positionBands = []struct {
	upTo   int // inclusive; 0 = unbounded
	lo, hi int
}{
	{upTo: 100, lo: -5, hi: 15},
	{upTo: 500, lo: -20, hi: 50},
	{upTo: 2000, lo: -100, hi: 200},
	{upTo: 0, lo: -500, hi: 1000},
}

func adjustmentBand(basePosition int) (lo, hi int) {
	for _, b := range positionBands {
		if b.upTo == 0 || basePosition <= b.upTo {
			return b.lo, b.hi
		}
	}
	last := positionBands[len(positionBands)-1]
	return last.lo, last.hi
}

// AssignPosition computes the initial position for a new entry given the
// advisory count of existing entries.
func AssignPosition(baseCount int, randInt RandIntFunc) int {
	if baseCount < 0 {
		baseCount = 0
	}
	base := baseCount + 1
	lo, hi := adjustmentBand(base)
	return max(1, base+randInt(lo, hi))
}

// boostedPosition applies a referral boost, never going below 1.
func boostedPosition(position, boost int) int {
	return max(1, position-boost)
}
