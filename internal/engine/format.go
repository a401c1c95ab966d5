package engine

import "strconv"

// trimFloat formats a size for a human-facing message without a fixed
// number of trailing zeros.
func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
