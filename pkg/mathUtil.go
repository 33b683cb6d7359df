package evtbuilder

import "golang.org/x/exp/constraints"

// absDiff is |a-b|, safe for unsigned types.
func absDiff[T constraints.Integer | constraints.Float](a, b T) T {
	if a > b {
		return a - b
	}
	return b - a
}

// withinWindow reports whether two timestamps are closer than window ns.
func withinWindow(a, b uint64, window float64) bool {
	return float64(absDiff(a, b)) < window
}
