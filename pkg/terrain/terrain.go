package terrain

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

const (
	MinSpawnSeparation = 400
	spawnHeight        = 100
	maxDimension       = 1 << 14
)

var ErrTruncated = errors.New("terrain data truncated")

type SpawnPoint struct {
	X, Y float32
}

// Grid is a row-major solid/air bitmap addressed in world pixels.
type Grid struct {
	width  int
	height int
	cells  []bool
	spawns [2]SpawnPoint
}

func New(width, height int) (*Grid, error) {
	if width <= 0 || height <= 0 || width > maxDimension || height > maxDimension {
		return nil, fmt.Errorf("invalid terrain dimensions %dx%d", width, height)
	}
	g := &Grid{
		width:  width,
		height: height,
		cells:  make([]bool, width*height),
	}
	g.computeSpawns()
	return g, nil
}

func Load(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open terrain file: %w", err)
	}
	defer f.Close()

	g, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse terrain file %s: %w", path, err)
	}
	return g, nil
}

// Parse reads two whitespace separated integers (width, height) followed by
// width*height cells, '1' for solid and any other non-space character for air.
func Parse(r io.Reader) (*Grid, error) {
	br := bufio.NewReader(r)

	width, err := readInt(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read width: %w", err)
	}
	height, err := readInt(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read height: %w", err)
	}

	g, err := New(width, height)
	if err != nil {
		return nil, err
	}

	for i := range g.cells {
		c, err := readCell(br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: got %d of %d cells", ErrTruncated, i, len(g.cells))
			}
			return nil, err
		}
		g.cells[i] = c == '1'
	}

	return g, nil
}

func readInt(br *bufio.Reader) (int, error) {
	var digits []byte
	for {
		c, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(digits) > 0 {
				break
			}
			if errors.Is(err, io.EOF) {
				return 0, ErrTruncated
			}
			return 0, err
		}
		if isSpace(c) {
			if len(digits) == 0 {
				continue
			}
			break
		}
		digits = append(digits, c)
	}
	return strconv.Atoi(string(digits))
}

func readCell(br *bufio.Reader) (byte, error) {
	for {
		c, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if !isSpace(c) {
			return c, nil
		}
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t'
}

func (g *Grid) Width() int  { return g.width }
func (g *Grid) Height() int { return g.height }

// IsSolid treats everything below the last row as open sky and everything left or
// right of the map as wall. Rows above zero are reported as air.
func (g *Grid) IsSolid(x, y float32) bool {
	if y >= float32(g.height) {
		return false
	}
	if x < 0 || x >= float32(g.width) {
		return true
	}
	if y < 0 {
		return false
	}
	return g.cells[int(y)*g.width+int(x)]
}

func (g *Grid) IsInside(x, y int) bool {
	return x >= 0 && x < g.width && y >= 0 && y < g.height
}

func (g *Grid) Cell(x, y int) bool {
	if !g.IsInside(x, y) {
		return false
	}
	return g.cells[y*g.width+x]
}

func (g *Grid) Set(x, y int, solid bool) {
	if !g.IsInside(x, y) {
		return
	}
	g.cells[y*g.width+x] = solid
}

// ApplyExplosion clears every in-bounds cell whose squared distance from the centre
// is at most radius squared and reports how many cells changed.
func (g *Grid) ApplyExplosion(cx, cy, radius float32) int {
	if radius < 0 {
		return 0
	}
	minX := int(cx - radius)
	maxX := int(cx + radius)
	minY := int(cy - radius)
	maxY := int(cy + radius)
	r2 := radius * radius

	cleared := 0
	for y := max(minY, 0); y <= min(maxY, g.height-1); y++ {
		for x := max(minX, 0); x <= min(maxX, g.width-1); x++ {
			dx := float32(x) - cx
			dy := float32(y) - cy
			if dx*dx+dy*dy > r2 {
				continue
			}
			idx := y*g.width + x
			if g.cells[idx] {
				g.cells[idx] = false
				cleared++
			}
		}
	}
	return cleared
}

// FindGroundLevel returns the first solid row of column x scanning from the top, or
// -1 when the column is empty.
func (g *Grid) FindGroundLevel(x int) int {
	if x < 0 || x >= g.width {
		return -1
	}
	for y := 0; y < g.height; y++ {
		if g.cells[y*g.width+x] {
			return y
		}
	}
	return -1
}

func (g *Grid) SpawnPoints() []SpawnPoint {
	return []SpawnPoint{g.spawns[0], g.spawns[1]}
}

func (g *Grid) computeSpawns() {
	left := float32(g.width) * 5 / 32
	right := float32(g.width) * 25 / 32
	if right-left < MinSpawnSeparation {
		left = 0
		right = float32(g.width - 1)
	}

	y := float32(min(spawnHeight, g.height-1))
	g.spawns[0] = SpawnPoint{X: left, Y: y}
	g.spawns[1] = SpawnPoint{X: right, Y: y}
}

// WriteTo writes the grid in the same text form Parse accepts, one row per line.
func (g *Grid) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var total int64

	n, err := fmt.Fprintf(bw, "%d %d\n", g.width, g.height)
	total += int64(n)
	if err != nil {
		return total, err
	}

	row := make([]byte, g.width+1)
	row[g.width] = '\n'
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			if g.Cell(x, y) {
				row[x] = '1'
			} else {
				row[x] = '0'
			}
		}
		n, err := bw.Write(row)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, bw.Flush()
}
