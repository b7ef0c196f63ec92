package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"", false, false},
		{"true", false, true},
		{"1", false, true},
		{"ON", false, true},
		{" yes ", false, true},
		{"false", true, false},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
		{"maybe", false, false},
	}
	for _, tt := range tests {
		t.Setenv("STUDYPIPE_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("STUDYPIPE_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 2 * time.Minute},
		{"90s", 90 * time.Second},
		{" 5m ", 5 * time.Minute},
		{"soon", 2 * time.Minute},
		{"-1s", 2 * time.Minute},
		{"0", 2 * time.Minute},
	}
	for _, tt := range tests {
		t.Setenv("STUDYPIPE_TEST_DURATION", tt.value)
		if got := ParseDurationEnv("STUDYPIPE_TEST_DURATION", 2*time.Minute); got != tt.want {
			t.Errorf("ParseDurationEnv(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
