package validation

import (
	"math"
	"strings"
	"testing"

	"github.com/siohaza/bombard/internal/protocol"
)

func TestIsFinite(t *testing.T) {
	tests := []struct {
		value float32
		want  bool
	}{
		{5, true},
		{-1e9, true},
		{1e30, true},
		{float32(math.NaN()), false},
		{float32(math.Inf(1)), false},
		{float32(math.Inf(-1)), false},
	}

	for _, tt := range tests {
		if got := IsFinite(tt.value); got != tt.want {
			t.Errorf("IsFinite(%v) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestIsValidMapName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"gen:flat", true},
		{"gen:hills:42", true},
		{"arena.txt", true},
		{"canyon_2-b", true},
		{"", false},
		{"..", false},
		{"../secret", false},
		{`maps\arena`, false},
		{"with space", false},
		{strings.Repeat("a", protocol.MapNameLen), false},
	}

	for _, tt := range tests {
		if got := IsValidMapName(tt.name); got != tt.want {
			t.Errorf("IsValidMapName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDistanceSquared(t *testing.T) {
	if got := DistanceSquared(0, 0, 3, 4); got != 25 {
		t.Errorf("DistanceSquared = %v, want 25", got)
	}
}
