package cuedata

// RandomSource yields uniform values in [0, 1). *math/rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

// SelectTrack picks the index of the next track to play out of len(weights).
// prev is the previously played index or -1 before the first firing.
//
// Ordered walks the list and wraps. OrderedFromRandom does the same once a
// random starting point has been drawn. The random modes draw by weight, the
// no-repeat modes never return prev when another track exists. When every
// eligible weight is zero the draw is uniform over the eligible tracks.
func SelectTrack(variation VariationType, weights []uint8, prev int, rnd RandomSource) int {
	n := len(weights)
	if n <= 1 {
		return 0
	}
	switch variation {
	case VariationOrdered:
		return (prev + 1) % n
	case VariationOrderedFromRandom:
		if prev < 0 {
			return uniformIndex(n, rnd)
		}
		return (prev + 1) % n
	case VariationRandom:
		return weightedIndex(weights, -1, rnd)
	case VariationRandomNoImmediateRepeats, VariationShuffle:
		return weightedIndex(weights, prev, rnd)
	}
	return (prev + 1) % n
}

func uniformIndex(n int, rnd RandomSource) int {
	i := int(rnd.Float64() * float64(n))
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

// weightedIndex draws r in [0, sum) and walks the list from the end, taking
// the first track whose cumulative band covers r. exclude is skipped.
func weightedIndex(weights []uint8, exclude int, rnd RandomSource) int {
	sum := 0
	eligible := 0
	for i, w := range weights {
		if i == exclude {
			continue
		}
		sum += int(w)
		eligible++
	}
	if eligible == 0 {
		return 0
	}
	if sum == 0 {
		k := uniformIndex(eligible, rnd)
		for i := range weights {
			if i == exclude {
				continue
			}
			if k == 0 {
				return i
			}
			k--
		}
	}

	r := rnd.Float64() * float64(sum)
	remaining := float64(sum)
	first := -1
	for i := len(weights) - 1; i >= 0; i-- {
		if i == exclude {
			continue
		}
		first = i
		w := float64(weights[i])
		if r >= remaining-w && w > 0 {
			return i
		}
		remaining -= w
	}
	return first
}
