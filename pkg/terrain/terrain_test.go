package terrain

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func solidGrid(t *testing.T, w, h int) *Grid {
	t.Helper()
	g, err := New(w, h)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.Set(x, y, true)
		}
	}
	return g
}

func TestParse(t *testing.T) {
	src := "4 3\n0000\n0110\n1111\n"
	g, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if g.Width() != 4 || g.Height() != 3 {
		t.Fatalf("dimensions = %dx%d, want 4x3", g.Width(), g.Height())
	}

	want := [][]bool{
		{false, false, false, false},
		{false, true, true, false},
		{true, true, true, true},
	}
	for y, row := range want {
		for x, solid := range row {
			if g.Cell(x, y) != solid {
				t.Errorf("cell (%d,%d) = %v, want %v", x, y, g.Cell(x, y), solid)
			}
		}
	}
}

func TestParseAcceptsCellsWithoutNewlines(t *testing.T) {
	g, err := Parse(strings.NewReader("2 2 0 1 1 0"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !g.Cell(1, 0) || !g.Cell(0, 1) || g.Cell(0, 0) || g.Cell(1, 1) {
		t.Error("unexpected cell layout")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty", ""},
		{"missing height", "10"},
		{"bad width", "abc 2\n00"},
		{"zero size", "0 0\n"},
		{"truncated cells", "3 2\n000\n01"},
	}

	for _, tt := range tests {
		if _, err := Parse(strings.NewReader(tt.src)); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}

	if _, err := Parse(strings.NewReader("3 2\n000\n01")); !errors.Is(err, ErrTruncated) {
		t.Errorf("truncated input should wrap ErrTruncated, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.txt")
	if err := os.WriteFile(path, []byte("2 1\n10\n"), 0644); err != nil {
		t.Fatal(err)
	}
	g, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !g.Cell(0, 0) || g.Cell(1, 0) {
		t.Error("unexpected cells after load")
	}
}

func TestIsSolidBoundaryConvention(t *testing.T) {
	empty, _ := New(50, 40)
	full := solidGrid(t, 50, 40)

	for _, g := range []*Grid{empty, full} {
		for _, y := range []float32{40, 41, 1000} {
			for _, x := range []float32{-10, 0, 25, 49, 50, 200} {
				if g.IsSolid(x, y) {
					t.Errorf("IsSolid(%v,%v) below the grid must be open sky", x, y)
				}
			}
		}
		for _, y := range []float32{0, 10, 39.5} {
			for _, x := range []float32{-0.5, -1, -100, 50, 50.5, 999} {
				if !g.IsSolid(x, y) {
					t.Errorf("IsSolid(%v,%v) beside the grid must be a wall", x, y)
				}
			}
		}
	}

	if empty.IsSolid(10, 10) {
		t.Error("empty grid interior should be air")
	}
	if !full.IsSolid(10.7, 10.2) {
		t.Error("full grid interior should be solid")
	}
}

func TestApplyExplosionClearsExactlyTheCircle(t *testing.T) {
	g := solidGrid(t, 100, 100)
	cx, cy, r := float32(40.5), float32(60.25), float32(12)

	cleared := g.ApplyExplosion(cx, cy, r)
	if cleared == 0 {
		t.Fatal("expected cells to be cleared")
	}

	count := 0
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			dx := float32(x) - cx
			dy := float32(y) - cy
			inside := dx*dx+dy*dy <= r*r
			if inside {
				count++
			}
			if g.Cell(x, y) == inside {
				t.Fatalf("cell (%d,%d) solid=%v, inside circle=%v", x, y, g.Cell(x, y), inside)
			}
		}
	}
	if count != cleared {
		t.Errorf("cleared = %d, want %d", cleared, count)
	}
}

func TestApplyExplosionIsIdempotent(t *testing.T) {
	g := solidGrid(t, 64, 64)
	g.ApplyExplosion(32, 32, 10)
	before := append([]bool(nil), g.cells...)

	if n := g.ApplyExplosion(32, 32, 10); n != 0 {
		t.Errorf("second explosion cleared %d cells, want 0", n)
	}
	for i := range g.cells {
		if g.cells[i] != before[i] {
			t.Fatalf("cell %d changed on second application", i)
		}
	}
}

func TestApplyExplosionAtEdgeStaysInBounds(t *testing.T) {
	g := solidGrid(t, 20, 20)
	g.ApplyExplosion(0, 19, 5)
	g.ApplyExplosion(-3, -3, 4)
	g.ApplyExplosion(25, 25, 3)

	if g.Cell(0, 19) {
		t.Error("edge centre should be cleared")
	}
	if !g.Cell(19, 0) {
		t.Error("far corner should be untouched")
	}
}

func TestSpawnPoints(t *testing.T) {
	wide, _ := New(1280, 720)
	sp := wide.SpawnPoints()
	if len(sp) != 2 {
		t.Fatalf("spawn count = %d, want 2", len(sp))
	}
	if sp[0].X != 200 || sp[1].X != 1000 || sp[0].Y != 100 || sp[1].Y != 100 {
		t.Errorf("spawns = %+v, want (200,100) and (1000,100)", sp)
	}

	narrow, _ := New(500, 80)
	sp = narrow.SpawnPoints()
	if sp[0].X != 0 || sp[1].X != 499 {
		t.Errorf("narrow map spawns should move to the edges, got %+v", sp)
	}
	if sp[0].Y != 79 {
		t.Errorf("spawn y should be clamped into the map, got %v", sp[0].Y)
	}
}

func TestFindGroundLevel(t *testing.T) {
	g, _ := Parse(strings.NewReader("3 4\n000\n001\n011\n111\n"))
	for x, want := range []int{3, 2, 1} {
		if got := g.FindGroundLevel(x); got != want {
			t.Errorf("FindGroundLevel(%d) = %d, want %d", x, got, want)
		}
	}
	if g.FindGroundLevel(5) != -1 {
		t.Error("out of range column should report -1")
	}
}

func TestWriteToRoundTrip(t *testing.T) {
	src := "5 2\n01010\n11100\n"
	g, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if _, err := g.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if buf.String() != src {
		t.Errorf("WriteTo = %q, want %q", buf.String(), src)
	}
}
