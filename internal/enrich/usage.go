package enrich

import (
	"encoding/json"
	"math"
	"strings"
)

const (
	// RecordsPerUnit is the billing granularity: one usage unit per started block of records.
	RecordsPerUnit = 1000
	// DefaultUsageUnit is the unit name reported to the usage collaborator.
	DefaultUsageUnit = "ENRICHED_RECORDS"
)

// UsageUnits returns ceil(records / RecordsPerUnit). Non-positive counts yield zero.
func UsageUnits(records int64) int64 {
	if records <= 0 {
		return 0
	}
	return (records-1)/RecordsPerUnit + 1
}

// ParseRecordCount coerces the service's enriched-record value to an integer.
//
// The service has been seen sending numbers, numeric strings and garbage. Numbers are
// truncated, strings are read up to the first non-digit, anything else is zero. The result is
// never negative.
func ParseRecordCount(v json.RawMessage) int64 {
	if len(v) == 0 {
		return 0
	}

	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return clampCount(f)
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0
	}
	return leadingInt(s)
}

func clampCount(f float64) int64 {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(f)
}

func leadingInt(s string) int64 {
	s = strings.TrimSpace(s)
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}

	var n int64
	digits := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		d := int64(r - '0')
		if n > (math.MaxInt64-d)/10 {
			n = math.MaxInt64
			digits++
			break
		}
		n = n*10 + d
		digits++
	}
	if digits == 0 || neg {
		return 0
	}
	return n
}
