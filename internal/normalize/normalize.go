// Package normalize implements the Telemetry Normalizer & Deduper: it
// validates and range-clamps raw records, suppresses duplicates per IMEI
// against a bounded recent-records window, and consolidates stationary
// batches before they reach the Subscriber Fan-out.
package normalize

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/angelzd27/api-ruptela/internal/protocol"
)

const (
	minSpeed, maxSpeed       = 0.0, 1000.0
	minAltitude, maxAltitude = -1000.0, 20000.0
	coordEpsilon             = 1e-9
)

// hasTripletRepeat reports whether s contains a run of 3 digits
// immediately followed by the same 3 digits, equivalent to the regex
// (\d{3})\1 (Go's RE2 engine does not support backreferences).
func hasTripletRepeat(s string) bool {
	for i := 0; i+6 <= len(s); i++ {
		if s[i:i+3] == s[i+3:i+6] {
			return true
		}
	}
	return false
}

// ValidCoordinate applies the full rejection policy from spec.md §4.4:
// (0,0); out-of-range; whole-degree multiples of 90/180; concatenated
// text with a repeated 3-digit run; and lat/lon that round identically
// to 4 decimal places.
func ValidCoordinate(lat, lon float64) bool {
	if math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return false
	}
	if math.Abs(lat)+math.Abs(lon) <= coordEpsilon {
		return false
	}
	if isMultipleOf(lat, 90) && isMultipleOf(lon, 180) {
		return false
	}
	concat := fmt.Sprintf("%d%d", int64(lat*1e6), int64(lon*1e6))
	if hasTripletRepeat(concat) {
		return false
	}
	if fixed(lat, 4) == fixed(lon, 4) {
		return false
	}
	return true
}

func isMultipleOf(v, m float64) bool {
	whole := math.Trunc(v)
	if whole != v {
		return false
	}
	return math.Mod(whole, m) == 0
}

func fixed(v float64, places int) string {
	return strconv.FormatFloat(v, 'f', places, 64)
}

// GarbageScalar flags sentinel/degenerate float values: the platform
// float sentinel extremes, exact powers of two, and decimal
// representations that collapse to a single repeated digit (e.g.
// 111.111 or 99999). A lone digit such as 0 or 5 is not a repetition.
func GarbageScalar(v float64) bool {
	if v == math.MaxFloat64 || v == -math.MaxFloat64 {
		return true
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return true
	}
	if v != 0 {
		abs := math.Abs(v)
		log2 := math.Log2(abs)
		if log2 == math.Trunc(log2) {
			return true
		}
	}
	digits := strconv.FormatFloat(math.Abs(v), 'f', -1, 64)
	firstDigit := byte(0)
	allSame := true
	digitCount := 0
	for i := 0; i < len(digits); i++ {
		c := digits[i]
		if c < '0' || c > '9' {
			continue
		}
		digitCount++
		if digitCount == 1 {
			firstDigit = c
			continue
		}
		if c != firstDigit {
			allSame = false
			break
		}
	}
	return digitCount >= 2 && allSame
}

// ClampSpeed applies the [0, 1000] range.
func ClampSpeed(v float64) float64 { return clamp(v, minSpeed, maxSpeed) }

// ClampAltitude applies the [-1000, 20000] range.
func ClampAltitude(v float64) float64 { return clamp(v, minAltitude, maxAltitude) }

// ReduceAngle reduces a course/angle modulo 360, always returning a
// value in [0, 360).
func ReduceAngle(v float64) float64 {
	r := math.Mod(v, 360)
	if r < 0 {
		r += 360
	}
	return r
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DedupKey is the fingerprint used by the RecentRecordsWindow:
// timestamp || lat.toFixed(6) || lon.toFixed(6).
func DedupKey(r protocol.Record) string {
	return strconv.FormatInt(r.Timestamp.Unix(), 10) + "|" + fixed(r.Lat, 6) + "|" + fixed(r.Lon, 6)
}

// Candidate is a record that has survived coordinate/scalar validation
// and range clamping, paired with its dedup key.
type Candidate struct {
	Record protocol.Record
	Key    string
}

// Filter validates and range-clamps each input record, dropping those
// that fail coordinate or scalar garbage checks, then sorts survivors by
// timestamp ascending per spec.md §4.4.
func Filter(records []protocol.Record) []Candidate {
	out := make([]Candidate, 0, len(records))
	for _, r := range records {
		if !ValidCoordinate(r.Lat, r.Lon) {
			continue
		}
		if GarbageScalar(float64(r.Speed)) || GarbageScalar(r.Course) || GarbageScalar(r.Altitude) {
			continue
		}
		r.Speed = uint16(ClampSpeed(float64(r.Speed)))
		r.Altitude = ClampAltitude(r.Altitude)
		r.Course = ReduceAngle(r.Course)
		out = append(out, Candidate{Record: r, Key: DedupKey(r)})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Record.Timestamp.Before(out[j].Record.Timestamp)
	})
	return out
}

// ConsolidateStationary implements the "all records at speed 0" rule: if
// every candidate in the batch is stationary, only the most recent
// (last, since the batch is sorted ascending) is kept; otherwise every
// candidate is kept individually.
func ConsolidateStationary(candidates []Candidate) []Candidate {
	if len(candidates) == 0 {
		return candidates
	}
	allStationary := true
	for _, c := range candidates {
		if c.Record.Speed != 0 {
			allStationary = false
			break
		}
	}
	if !allStationary {
		return candidates
	}
	return candidates[len(candidates)-1:]
}
