package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// parser accepts 5-field and 6-field (with seconds) specs and descriptors.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var reHHMM = regexp.MustCompile(`^(\d{1,3}):(\d{2})$`)

// ParseSchedule turns a schedule string into a cron spec.
//
// Supported forms:
//   - cron: "*/5 * * * *", "0 30 9 * * 1-5", "@hourly", "@every 55m"
//   - interval duration: "55m", "2h30m"
//   - interval HH:MM: "00:50" (50 minutes), "02:30"
//
// Intervals become "@every" specs.
func ParseSchedule(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("schedule required")
	}
	spec, err := normalize(s)
	if err != nil {
		return "", err
	}
	if _, err := parser.Parse(spec); err != nil {
		return "", fmt.Errorf("invalid schedule %q: %w", raw, err)
	}
	return spec, nil
}

func normalize(s string) (string, error) {
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return s, nil
	}
	var every time.Duration
	if m := reHHMM.FindStringSubmatch(s); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return "", fmt.Errorf("invalid minutes in %q", s)
		}
		every = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	} else {
		d, err := time.ParseDuration(s)
		if err != nil {
			return "", fmt.Errorf("invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '02:30', or duration like '55m')", s)
		}
		every = d
	}
	if every <= 0 {
		return "", fmt.Errorf("interval must be > 0")
	}
	return "@every " + every.String(), nil
}

// NextRuns lists up to n upcoming run times of spec after from.
func NextRuns(spec string, from time.Time, n int) ([]time.Time, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, n)
	t := from
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out, nil
}
