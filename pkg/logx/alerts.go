package logx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// alertWriter is the zerolog sink behind AlertsConfig.
type alertWriter struct{ svc *Service }

func (w *alertWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *alertWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := w.svc
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.alerts == nil || level < s.minLevel {
		return len(p), nil
	}
	if !s.limiter.Allow() {
		s.dropped.Add(1)
		return len(p), nil
	}
	// Sink errors must not fail the other writers.
	_, _ = s.alerts.WriteString(formatAlert(p) + "\n")
	return len(p), nil
}

// formatAlert turns one zerolog JSON record into
// "time [LEVEL] message key=value ..." with keys sorted.
func formatAlert(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(p), &m); err != nil {
		return truncate(strings.TrimSpace(string(p)), 2000)
	}
	var b strings.Builder
	if ts, _ := m[zerolog.TimestampFieldName].(string); ts != "" {
		b.WriteString(ts)
		b.WriteByte(' ')
	}
	if lvl, _ := m[zerolog.LevelFieldName].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	msg, _ := m[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName, "stack":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, truncate(fmt.Sprint(m[k]), 300))
	}
	return truncate(b.String(), 2000)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n < 10 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
