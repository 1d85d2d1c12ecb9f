package validation

import (
	"math"

	"github.com/siohaza/bombard/internal/protocol"
)

// IsFinite reports whether an input scalar can be applied. Range limits are left to
// the player, which clamps.
func IsFinite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// IsValidMapName accepts names that fit the wire field and contain no path
// separators: letters, digits and "_-.:".
func IsValidMapName(name string) bool {
	if name == "" || len(name) >= protocol.MapNameLen {
		return false
	}
	if name == "." || name == ".." {
		return false
	}

	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '_', c == '-', c == '.', c == ':':
		default:
			return false
		}
	}
	return true
}

func DistanceSquared(x1, y1, x2, y2 float32) float32 {
	dx := x2 - x1
	dy := y2 - y1
	return dx*dx + dy*dy
}
