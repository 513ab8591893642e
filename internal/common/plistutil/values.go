package plistutil

import (
	"math"
	"time"
)

// GetString returns the string stored under key
func GetString(data map[string]interface{}, key string) (string, bool) {
	v, ok := data[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetBool returns the boolean stored under key
func GetBool(data map[string]interface{}, key string) (bool, bool) {
	v, ok := data[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// GetBytes returns the data blob stored under key
func GetBytes(data map[string]interface{}, key string) ([]byte, bool) {
	v, ok := data[key]
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// GetInt64 returns the integer stored under key. Plist integers decode as either
// signed or unsigned values and reals are truncated.
func GetInt64(data map[string]interface{}, key string) (int64, bool) {
	v, ok := data[key]
	if !ok {
		return 0, false
	}
	return ToInt64(v)
}

// ToInt64 coerces a decoded plist number to int64
func ToInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	}
	return 0, false
}

// GetTime returns the timestamp stored under key. Integers and reals are read as
// Unix seconds, dates are taken as they are.
func GetTime(data map[string]interface{}, key string) (time.Time, bool) {
	v, ok := data[key]
	if !ok {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case float64:
		sec, frac := math.Modf(t)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
	}
	if n, ok := ToInt64(v); ok {
		return time.Unix(n, 0).UTC(), true
	}
	return time.Time{}, false
}
