package types

import (
	"math"
	"reflect"
	"strconv"
)

// ToNumber coerces any Go numeric value to float64
func ToNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// ToInt64 coerces any Go numeric value to int64
func ToInt64(v any) (int64, bool) {
	f, ok := ToNumber(v)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// KeyString normalizes a primary-key value to its canonical string form.
// Whole numbers print without a fractional part so that int64 keys written
// before a snapshot and float64 keys read back from JSON collide correctly.
func KeyString(v any) string {
	switch k := v.(type) {
	case string:
		return k
	case bool:
		return strconv.FormatBool(k)
	}
	if f, ok := ToNumber(v); ok {
		if f == math.Trunc(f) && !math.IsInf(f, 0) {
			return strconv.FormatInt(int64(f), 10)
		}
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return reflect.ValueOf(v).String()
}

// ValueEqual is the strict equality used by filters and enum checks.
// Index entries are keyed by KeyString instead.
// Numbers compare across Go numeric types; everything else compares by ==
// when comparable.
func ValueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	af, aok := ToNumber(a)
	bf, bok := ToNumber(b)
	if aok || bok {
		return aok && bok && af == bf
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if !ra.Comparable() || !rb.Comparable() {
		return false
	}
	return a == b
}

// IsNil reports whether v is an absent or null value
func IsNil(v any) bool {
	return v == nil
}
