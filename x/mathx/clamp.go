// Package mathx holds the small generic arithmetic the menu and transforms
// share.
package mathx

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi]; swapped bounds are tolerated.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	return max(lo, min(v, hi))
}

// Wrap steps i by step around a ring of n slots. n <= 0 yields 0.
func Wrap[T constraints.Signed](i, step, n T) T {
	if n <= 0 {
		return 0
	}
	r := (i + step) % n
	if r < 0 {
		r += n
	}
	return r
}

// RoundDiv divides with half-up rounding. b == 0 yields 0.
func RoundDiv[T constraints.Unsigned](a, b T) T {
	if b == 0 {
		return 0
	}
	return (a + b/2) / b
}
