package util

import (
	"math"
	"strconv"
	"strings"
)

func NormalizeCode(input string) string {
	return strings.TrimSpace(input)
}

func StripHyphens(code string) string {
	return strings.ReplaceAll(code, "-", "")
}

// NormalizePostal reduces a raw postal cell to its 7-digit join key.
// Valid keys are exactly seven ASCII digits after trimming and hyphen
// removal; anything else reports ok=false.
func NormalizePostal(input string) (string, bool) {
	key := StripHyphens(strings.TrimSpace(input))
	if len(key) != 7 {
		return "", false
	}
	for i := 0; i < len(key); i++ {
		if key[i] < '0' || key[i] > '9' {
			return "", false
		}
	}
	return key, true
}

// ParseQuantity coerces a quantity cell to tons. Unparsable values
// (including NaN and infinities) count as zero, never as a dropped row.
func ParseQuantity(input string) float64 {
	v, ok := ParseCoord(input)
	if !ok {
		return 0
	}
	return v
}

// ParseCoord coerces a coordinate cell; ok=false means missing.
func ParseCoord(input string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
