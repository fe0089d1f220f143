// SPDX-License-Identifier: MIT

// Package bitint holds the power-of-two helpers used to size FFT windows
// and sample blocks. All functions are allocation free.
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size. Values <= 0
// return 1.
//
// Subtracting one first keeps exact powers unchanged: Len(7) is 3, so 8
// maps to 8 rather than 16.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// ClampPowerOfTwo rounds n up to a power of two and clamps it to
// [lo, hi]. lo and hi are expected to be powers of two themselves.
func ClampPowerOfTwo(n, lo, hi int) int {
	p := NextPowerOfTwo(n)
	if p < lo {
		return lo
	}
	if p > hi {
		return hi
	}
	return p
}
