package util

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevel(t *testing.T) {
	cases := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel}, // level names are case-insensitive
		{"error", zerolog.ErrorLevel},
		{"verbose", zerolog.InfoLevel}, // unknown levels fall back to info
	}
	for _, tc := range cases {
		logger := NewLogger(tc.level)
		if got := logger.GetLevel(); got != tc.want {
			t.Fatalf("NewLogger(%q) level = %s, want %s", tc.level, got, tc.want)
		}
	}
}
