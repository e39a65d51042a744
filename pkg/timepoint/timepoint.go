// Package timepoint provides a totally ordered time value with two absorbing
// sentinels.
//
// BeforeEverything sorts before every instant and AfterEverything after every
// instant. Adding or subtracting a duration never moves a sentinel, so "no
// deadline" and "startable any time" compose correctly under Min/Max.
package timepoint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind orders the three variants. The numeric order matters: it is the
// primary sort key of Compare.
type Kind uint8

const (
	KindBeforeEverything Kind = iota
	KindNormal
	KindAfterEverything
)

// TimePoint is either a sentinel or an instant in whole seconds since the
// Unix epoch. The zero value is BeforeEverything.
type TimePoint struct {
	kind Kind
	secs int64
}

// Wire spellings of the sentinels. The long forms are accepted on input.
const (
	beforeText = "-inf"
	afterText  = "+inf"
)

func BeforeEverything() TimePoint { return TimePoint{kind: KindBeforeEverything} }
func AfterEverything() TimePoint  { return TimePoint{kind: KindAfterEverything} }

// At returns the instant secs seconds after the Unix epoch.
func At(secs int64) TimePoint { return TimePoint{kind: KindNormal, secs: secs} }

// FromTime truncates t to whole seconds.
func FromTime(t time.Time) TimePoint { return At(t.Unix()) }

func (t TimePoint) Kind() Kind                { return t.kind }
func (t TimePoint) IsBeforeEverything() bool { return t.kind == KindBeforeEverything }
func (t TimePoint) IsAfterEverything() bool  { return t.kind == KindAfterEverything }
func (t TimePoint) IsNormal() bool           { return t.kind == KindNormal }

// Seconds returns the instant and true, or 0 and false for a sentinel.
func (t TimePoint) Seconds() (int64, bool) {
	if t.kind != KindNormal {
		return 0, false
	}
	return t.secs, true
}

// Time converts a Normal value to time.Time.
func (t TimePoint) Time() (time.Time, bool) {
	s, ok := t.Seconds()
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(s, 0), true
}

// Compare returns -1, 0 or +1.
func (t TimePoint) Compare(o TimePoint) int {
	switch {
	case t.kind < o.kind:
		return -1
	case t.kind > o.kind:
		return +1
	case t.kind != KindNormal:
		return 0
	case t.secs < o.secs:
		return -1
	case t.secs > o.secs:
		return +1
	default:
		return 0
	}
}

func (t TimePoint) Before(o TimePoint) bool { return t.Compare(o) < 0 }
func (t TimePoint) After(o TimePoint) bool  { return t.Compare(o) > 0 }
func (t TimePoint) Equal(o TimePoint) bool  { return t.Compare(o) == 0 }

// Add shifts a Normal value by d (whole seconds). Sentinels are absorbing.
func (t TimePoint) Add(d time.Duration) TimePoint {
	if t.kind != KindNormal {
		return t
	}
	return At(saturatingAdd(t.secs, int64(d/time.Second)))
}

// SubDuration is Add(-d).
func (t TimePoint) SubDuration(d time.Duration) TimePoint {
	if t.kind != KindNormal {
		return t
	}
	return At(saturatingAdd(t.secs, -int64(d/time.Second)))
}

// Sub returns t - o. The result saturates to the minimum or maximum
// representable duration when a sentinel is involved, and is zero when both
// sides are the same sentinel.
func (t TimePoint) Sub(o TimePoint) time.Duration {
	if t.kind != KindNormal || o.kind != KindNormal {
		switch {
		case t.kind == o.kind:
			return 0
		case t.kind < o.kind:
			return time.Duration(math.MinInt64)
		default:
			return time.Duration(math.MaxInt64)
		}
	}
	diff := saturatingAdd(t.secs, -o.secs)
	const limit = math.MaxInt64 / int64(time.Second)
	switch {
	case diff > limit:
		return time.Duration(math.MaxInt64)
	case diff < -limit:
		return time.Duration(math.MinInt64)
	}
	return time.Duration(diff) * time.Second
}

func Min(a, b TimePoint) TimePoint {
	if b.Before(a) {
		return b
	}
	return a
}

func Max(a, b TimePoint) TimePoint {
	if b.After(a) {
		return b
	}
	return a
}

func (t TimePoint) String() string {
	switch t.kind {
	case KindBeforeEverything:
		return "BeforeEverything"
	case KindAfterEverything:
		return "AfterEverything"
	default:
		return time.Unix(t.secs, 0).UTC().Format(time.RFC3339)
	}
}

// MarshalJSON encodes Normal values as a plain integer and sentinels as
// "-inf" / "+inf".
func (t TimePoint) MarshalJSON() ([]byte, error) {
	switch t.kind {
	case KindBeforeEverything:
		return []byte(strconv.Quote(beforeText)), nil
	case KindAfterEverything:
		return []byte(strconv.Quote(afterText)), nil
	default:
		return strconv.AppendInt(nil, t.secs, 10), nil
	}
}

func (t *TimePoint) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		switch s {
		case beforeText, "BeforeEverything":
			*t = BeforeEverything()
		case afterText, "AfterEverything":
			*t = AfterEverything()
		default:
			return fmt.Errorf("timepoint: invalid sentinel %q", s)
		}
		return nil
	}
	secs, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("timepoint: expected integer seconds: %w", err)
	}
	*t = At(secs)
	return nil
}

func saturatingAdd(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	if b < 0 && a < math.MinInt64-b {
		return math.MinInt64
	}
	return a + b
}
