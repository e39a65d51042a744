package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"taskgraph/internal/task"
	"taskgraph/pkg/timepoint"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseTimePoint accepts the sentinels -inf and +inf, now, +DURATION relative
// to now, RFC3339, a date or date-time in loc, or unix seconds (9+ digits).
func parseTimePoint(raw string, now time.Time, loc *time.Location) (timepoint.TimePoint, error) {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "-inf", "beforeeverything":
		return timepoint.BeforeEverything(), nil
	case "+inf", "aftereverything":
		return timepoint.AfterEverything(), nil
	case "now":
		return timepoint.FromTime(now), nil
	case "":
		return timepoint.TimePoint{}, fmt.Errorf("empty time")
	}
	if s[0] == '+' {
		d, err := parseDuration(s[1:])
		if err != nil {
			return timepoint.TimePoint{}, err
		}
		return timepoint.FromTime(now.Add(d)), nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && len(s) > 8 {
		return timepoint.At(secs), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return timepoint.FromTime(t), nil
		}
	}
	return timepoint.TimePoint{}, fmt.Errorf("unrecognized time %q", raw)
}

// parseDuration extends time.ParseDuration with whole-day (d) and week (w)
// units, e.g. 3d or 2w.
func parseDuration(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	unit := map[byte]time.Duration{'d': 24 * time.Hour, 'w': 7 * 24 * time.Hour}[s[len(s)-1]]
	if unit != 0 {
		n, err := strconv.Atoi(s[:len(s)-1])
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		return time.Duration(n) * unit, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return d, nil
}

func parseProgress(raw string) (task.Progress, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return task.Todo, fmt.Errorf("empty progress")
	}
	return task.ParseProgress(strings.ToUpper(s[:1]) + s[1:])
}

func parseRepeatBase(raw string) (task.RepeatBase, error) {
	var b task.RepeatBase
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return b, fmt.Errorf("empty repeat base")
	}
	err := b.UnmarshalText([]byte(strings.ToUpper(s[:1]) + s[1:]))
	return b, err
}

// parseIDs reads a comma-separated list of task IDs. An empty list is valid.
func parseIDs(raw string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil || id < 0 {
			return nil, fmt.Errorf("invalid task id %q", part)
		}
		out = append(out, id)
	}
	return out, nil
}
