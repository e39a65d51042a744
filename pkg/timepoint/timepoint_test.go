package timepoint

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestCompareOrdersSentinelsAroundInstants(t *testing.T) {
	t.Parallel()
	ordered := []TimePoint{
		BeforeEverything(),
		At(math.MinInt64),
		At(-5),
		At(0),
		At(100),
		At(math.MaxInt64),
		AfterEverything(),
	}
	for i := range ordered {
		for j := range ordered {
			got := ordered[i].Compare(ordered[j])
			want := 0
			if i < j {
				want = -1
			} else if i > j {
				want = 1
			}
			if got != want {
				t.Fatalf("Compare(%v, %v) = %d, want %d", ordered[i], ordered[j], got, want)
			}
		}
	}
}

func TestZeroValueIsBeforeEverything(t *testing.T) {
	t.Parallel()
	var tp TimePoint
	if !tp.IsBeforeEverything() {
		t.Fatalf("zero value kind = %v, want BeforeEverything", tp.Kind())
	}
}

func TestAddIsAbsorbingForSentinels(t *testing.T) {
	t.Parallel()
	if got := BeforeEverything().Add(time.Hour); !got.IsBeforeEverything() {
		t.Fatalf("BeforeEverything + 1h = %v", got)
	}
	if got := AfterEverything().SubDuration(time.Hour); !got.IsAfterEverything() {
		t.Fatalf("AfterEverything - 1h = %v", got)
	}
	if got := At(100).Add(10 * time.Second); !got.Equal(At(110)) {
		t.Fatalf("At(100) + 10s = %v, want At(110)", got)
	}
	if got := At(100).SubDuration(10 * time.Second); !got.Equal(At(90)) {
		t.Fatalf("At(100) - 10s = %v, want At(90)", got)
	}
}

func TestSubSaturates(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		a, b TimePoint
		want time.Duration
	}{
		{"before-before", BeforeEverything(), BeforeEverything(), 0},
		{"after-after", AfterEverything(), AfterEverything(), 0},
		{"before-normal", BeforeEverything(), At(3), time.Duration(math.MinInt64)},
		{"before-after", BeforeEverything(), AfterEverything(), time.Duration(math.MinInt64)},
		{"after-normal", AfterEverything(), At(3), time.Duration(math.MaxInt64)},
		{"normal-before", At(3), BeforeEverything(), time.Duration(math.MaxInt64)},
		{"normal-after", At(3), AfterEverything(), time.Duration(math.MinInt64)},
		{"normal-normal", At(10), At(3), 7 * time.Second},
		{"huge", At(math.MaxInt64), At(0), time.Duration(math.MaxInt64)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.a.Sub(tt.b); got != tt.want {
				t.Fatalf("Sub = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMinMax(t *testing.T) {
	t.Parallel()
	if got := Min(AfterEverything(), At(5)); !got.Equal(At(5)) {
		t.Fatalf("Min = %v, want At(5)", got)
	}
	if got := Max(BeforeEverything(), At(5)); !got.Equal(At(5)) {
		t.Fatalf("Max = %v, want At(5)", got)
	}
	if got := Min(BeforeEverything(), At(5)); !got.IsBeforeEverything() {
		t.Fatalf("Min = %v, want BeforeEverything", got)
	}
}

func TestJSON(t *testing.T) {
	t.Parallel()
	tests := []struct {
		tp   TimePoint
		wire string
	}{
		{At(1700000000), `1700000000`},
		{At(-3), `-3`},
		{BeforeEverything(), `"-inf"`},
		{AfterEverything(), `"+inf"`},
	}
	for _, tt := range tests {
		b, err := json.Marshal(tt.tp)
		if err != nil {
			t.Fatalf("Marshal(%v) error: %v", tt.tp, err)
		}
		if string(b) != tt.wire {
			t.Fatalf("Marshal(%v) = %s, want %s", tt.tp, b, tt.wire)
		}
		var back TimePoint
		if err := json.Unmarshal(b, &back); err != nil {
			t.Fatalf("Unmarshal(%s) error: %v", b, err)
		}
		if !back.Equal(tt.tp) {
			t.Fatalf("Unmarshal(%s) = %v, want %v", b, back, tt.tp)
		}
	}

	var long TimePoint
	if err := json.Unmarshal([]byte(`"AfterEverything"`), &long); err != nil || !long.IsAfterEverything() {
		t.Fatalf("long sentinel form: %v, %v", long, err)
	}
	if err := json.Unmarshal([]byte(`"tomorrow"`), &long); err == nil {
		t.Fatal("expected error for unknown sentinel")
	}
	if err := json.Unmarshal([]byte(`1.5`), &long); err == nil {
		t.Fatal("expected error for fractional seconds")
	}
}
