package idgen

import (
	"regexp"
	"strings"
	"testing"
)

func TestRequestID_Shape(t *testing.T) {
	pattern := regexp.MustCompile(`^req_[a-zA-Z0-9]{16}$`)
	for range 100 {
		if id := RequestID(); !pattern.MatchString(id) {
			t.Fatalf("RequestID() = %q, does not match %s", id, pattern)
		}
	}
}

func TestRequestID_Uniqueness(t *testing.T) {
	const count = 10_000
	seen := make(map[string]struct{}, count)
	for i := range count {
		id := RequestID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate ID on iteration %d: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestAccept(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"req_abc123", true},
		{"3f2a-bc:01.x", true},
		{"", false},
		{"has space", false},
		{"new\nline", false},
		{strings.Repeat("a", 128), true},
		{strings.Repeat("a", 129), false},
	}
	for _, tt := range tests {
		if got := Accept(tt.id); got != tt.want {
			t.Errorf("Accept(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
