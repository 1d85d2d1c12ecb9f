package terraingen

import (
	"bytes"
	"testing"

	"github.com/siohaza/bombard/pkg/terrain"
)

func surface(g *terrain.Grid, x int) int {
	return g.FindGroundLevel(x)
}

func TestFlat(t *testing.T) {
	g, err := Flat(DefaultWidth, DefaultHeight)
	if err != nil {
		t.Fatal(err)
	}
	for _, x := range []int{0, 640, DefaultWidth - 1} {
		if got := surface(g, x); got != 480 {
			t.Errorf("surface at %d = %d, want 480", x, got)
		}
	}
	for _, sp := range g.SpawnPoints() {
		if g.IsSolid(sp.X, sp.Y) {
			t.Errorf("spawn %+v is inside the ground", sp)
		}
	}
}

func TestHillsDeterministicAndBounded(t *testing.T) {
	a, err := Hills(DefaultWidth, DefaultHeight, 1234)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Hills(DefaultWidth, DefaultHeight, 1234)
	c, _ := Hills(DefaultWidth, DefaultHeight, 99)

	var bufA, bufB, bufC bytes.Buffer
	a.WriteTo(&bufA)
	b.WriteTo(&bufB)
	c.WriteTo(&bufC)
	if !bytes.Equal(bufA.Bytes(), bufB.Bytes()) {
		t.Error("same seed must produce the same terrain")
	}
	if bytes.Equal(bufA.Bytes(), bufC.Bytes()) {
		t.Error("different seeds should produce different terrain")
	}

	for x := 0; x < DefaultWidth; x++ {
		s := surface(a, x)
		if s < DefaultHeight/2 || s > DefaultHeight*5/6 {
			t.Fatalf("surface at %d = %d outside [%d, %d]", x, s, DefaultHeight/2, DefaultHeight*5/6)
		}
	}
}

func TestFromName(t *testing.T) {
	tests := []struct {
		name    string
		display string
		wantErr bool
	}{
		{"gen:flat", "gen:flat", false},
		{"gen:hills:42", "gen:hills:42", false},
		{"gen:hills:0x10", "gen:hills:16", false},
		{"gen:volcano", "", true},
		{"arena.txt", "", true},
	}

	for _, tt := range tests {
		g, display, err := FromName(tt.name, 400, 300)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if display != tt.display || g.Width() != 400 || g.Height() != 300 {
			t.Errorf("%s: display = %q size = %dx%d", tt.name, display, g.Width(), g.Height())
		}
	}
}

func TestResolveSeed(t *testing.T) {
	if ResolveSeed("42") != 42 {
		t.Error("numeric seed not parsed")
	}
	if ResolveSeed("canyon") != ResolveSeed("canyon") {
		t.Error("text seeds must hash deterministically")
	}
	if ResolveSeed("") == 0 {
		t.Error("empty seed must be replaced")
	}
}
