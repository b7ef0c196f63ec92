package util

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestGenerateRandomID(t *testing.T) {
	tests := []struct {
		name       string
		prefix     string
		hexLength  int
		wantPrefix string
		wantLength int // expected total length: prefix + hexLength
	}{
		{
			name:       "lock token format",
			prefix:     "lk_",
			hexLength:  32,
			wantPrefix: "lk_",
			wantLength: 35, // 3 + 32
		},
		{
			name:       "short prefix",
			prefix:     "s_",
			hexLength:  32,
			wantPrefix: "s_",
			wantLength: 34, // 2 + 32
		},
		{
			name:       "custom prefix",
			prefix:     "test_",
			hexLength:  16,
			wantPrefix: "test_",
			wantLength: 21, // 5 + 16
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateRandomID(tt.prefix, tt.hexLength)

			if !strings.HasPrefix(got, tt.wantPrefix) {
				t.Errorf("GenerateRandomID() = %v, want prefix %v", got, tt.wantPrefix)
			}

			if len(got) != tt.wantLength {
				t.Errorf("GenerateRandomID() length = %v, want %v", len(got), tt.wantLength)
			}

			// Check that the hex part is valid
			hexPart := got[len(tt.wantPrefix):]
			if !isValidHex(hexPart) {
				t.Errorf("GenerateRandomID() hex part = %v is not valid hex", hexPart)
			}
		})
	}
}

func TestGenerateRandomHex(t *testing.T) {
	tests := []struct {
		name   string
		length int
		want   int
	}{
		{"zero length", 0, 0},
		{"negative length", -1, 0},
		{"small length", 8, 8},
		{"medium length", 16, 16},
		{"large length", 64, 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateRandomHex(tt.length)

			if len(got) != tt.want {
				t.Errorf("GenerateRandomHex() length = %v, want %v", len(got), tt.want)
			}

			if tt.want > 0 && !isValidHex(got) {
				t.Errorf("GenerateRandomHex() = %v is not valid hex", got)
			}
		})
	}
}

func TestGenerateStudyAndSessionID(t *testing.T) {
	for name, gen := range map[string]func() string{
		"study":   GenerateStudyID,
		"session": GenerateSessionID,
	} {
		got := gen()
		if _, err := uuid.Parse(got); err != nil {
			t.Errorf("%s ID %q is not a UUID: %v", name, got, err)
		}
		if gen() == got {
			t.Errorf("%s ID generator returned the same value twice", name)
		}
	}
}

func TestGenerateLockToken(t *testing.T) {
	got := GenerateLockToken()

	if !strings.HasPrefix(got, "lk_") {
		t.Errorf("GenerateLockToken() = %v, want prefix lk_", got)
	}

	if len(got) != 35 { // "lk_" + 32 hex chars
		t.Errorf("GenerateLockToken() length = %v, want 35", len(got))
	}

	if !isValidHex(got[3:]) {
		t.Errorf("GenerateLockToken() hex part = %v is not valid hex", got[3:])
	}
}

func TestRandomIDUniqueness(t *testing.T) {
	const iterations = 1000
	seen := make(map[string]bool)

	for i := 0; i < iterations; i++ {
		id := GenerateRandomID("test_", 16)
		if seen[id] {
			t.Errorf("GenerateRandomID() generated duplicate: %v", id)
		}
		seen[id] = true
	}
}

func TestRandomHexUniqueness(t *testing.T) {
	const iterations = 1000
	seen := make(map[string]bool)

	for i := 0; i < iterations; i++ {
		hex := GenerateRandomHex(16)
		if seen[hex] {
			t.Errorf("GenerateRandomHex() generated duplicate: %v", hex)
		}
		seen[hex] = true
	}
}

// Helper function to validate hex strings
func isValidHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
