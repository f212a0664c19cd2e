// SPDX-License-Identifier: MIT
//
// Package bitint holds the power-of-two helpers used to validate and suggest
// transform sizes. All functions are constant time and allocation free.
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size. Subtracting one
// first keeps exact powers of two unchanged (8 -> 8, 9 -> 16). Non-positive
// sizes return 1.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two: exactly one bit
// set, so n&(n-1) clears it.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
