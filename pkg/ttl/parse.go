package ttl

import (
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/cuemby/burrow/pkg/types"
)

var durationPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([smhd])$`)

var unitMs = map[string]float64{
	"s": 1000,
	"m": 60_000,
	"h": 3_600_000,
	"d": 86_400_000,
}

// ParseDuration converts a TTL value to milliseconds. Strings use
// "<value><unit>" with units s, m, h, d and optional whitespace between;
// decimals are allowed. Numbers are taken as milliseconds directly.
// Non-positive or non-finite durations are an error.
func ParseDuration(v any) (int64, error) {
	if s, ok := v.(string); ok {
		m := durationPattern.FindStringSubmatch(s)
		if m == nil {
			return 0, fmt.Errorf("invalid TTL duration %q", s)
		}
		value, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid TTL duration %q: %w", s, err)
		}
		return checkMs(value * unitMs[m[2]])
	}
	if f, ok := types.ToNumber(v); ok {
		return checkMs(f)
	}
	return 0, fmt.Errorf("invalid TTL duration %v (%T)", v, v)
}

func checkMs(ms float64) (int64, error) {
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return 0, fmt.Errorf("TTL duration must be finite")
	}
	if ms <= 0 {
		return 0, fmt.Errorf("TTL duration must be positive, got %vms", ms)
	}
	return int64(ms), nil
}
