// terraingen builds side-view terrain grids procedurally. The hills generator uses
// the same LCG and permutation-table gradient noise as the classic voxel landscape
// generator, reduced to one dimension.

package terraingen

import (
	"fmt"
	"hash/crc32"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/siohaza/bombard/pkg/terrain"
)

const (
	Prefix = "gen:"

	DefaultWidth  = 1280
	DefaultHeight = 720

	octMax = 6
)

type noiseContext struct {
	noisep [512]uint8
	seed   uint32
}

func (nc *noiseContext) getRandom() uint32 {
	nc.seed = nc.seed*214013 + 2531011
	return (nc.seed >> 16) & 0x7FFF
}

func (nc *noiseContext) initNoise() {
	for i := 255; i >= 0; i-- {
		nc.noisep[i] = uint8(i)
	}
	for i := 255; i > 0; i-- {
		j := (nc.getRandom() * uint32(i+1)) >> 15
		nc.noisep[i], nc.noisep[j] = nc.noisep[j], nc.noisep[i]
	}
	for i := 255; i >= 0; i-- {
		nc.noisep[i+256] = nc.noisep[i]
	}
}

func grad(h uint8, x float64) float64 {
	g := float64(h&7) + 1
	if h&8 != 0 {
		g = -g
	}
	return g * x
}

// noise1d returns gradient noise in roughly [-1, 1].
func (nc *noiseContext) noise1d(fx float64) float64 {
	l := int(math.Floor(fx))
	p := fx - float64(l)
	l0 := l & 255
	l1 := (l + 1) & 255

	f0 := grad(nc.noisep[l0], p)
	f1 := grad(nc.noisep[l1], p-1)

	p = (3.0 - 2.0*p) * p * p
	return ((f1-f0)*p + f0) / 4
}

func IsGenerated(name string) bool {
	return strings.HasPrefix(name, Prefix)
}

// Flat returns a grid whose lower third is solid ground.
func Flat(width, height int) (*terrain.Grid, error) {
	g, err := terrain.New(width, height)
	if err != nil {
		return nil, err
	}
	ground := height * 2 / 3
	for y := ground; y < height; y++ {
		for x := 0; x < width; x++ {
			g.Set(x, y, true)
		}
	}
	return g, nil
}

// Hills returns rolling terrain whose surface stays between half and five sixths of
// the height, so spawn points near the top are always in open air.
func Hills(width, height int, seed uint32) (*terrain.Grid, error) {
	g, err := terrain.New(width, height)
	if err != nil {
		return nil, err
	}

	nc := &noiseContext{seed: seed}
	nc.initNoise()

	var amplut [octMax]float64
	d := 1.0
	total := 0.0
	for i := range amplut {
		amplut[i] = d
		total += d
		d *= 0.5
	}

	top := float64(height) / 2
	span := float64(height)*5/6 - top

	for x := 0; x < width; x++ {
		dx := float64(x) / 256.0
		v := 0.0
		for o := 0; o < octMax; o++ {
			v += nc.noise1d(dx) * amplut[o]
			dx *= 2
		}
		v = v/total*0.5 + 0.5
		v = math.Max(0, math.Min(1, v))

		surface := int(top + v*span)
		for y := surface; y < height; y++ {
			g.Set(x, y, true)
		}
	}
	return g, nil
}

// FromName builds the grid for a generated map name: "gen:flat", "gen:hills" or
// "gen:hills:<seed>". It also returns a display name that includes the seed.
func FromName(name string, width, height int) (*terrain.Grid, string, error) {
	if !IsGenerated(name) {
		return nil, "", fmt.Errorf("not a generated map name: %q", name)
	}

	kind, param, _ := strings.Cut(strings.TrimPrefix(name, Prefix), ":")
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "flat":
		g, err := Flat(width, height)
		return g, "gen:flat", err
	case "hills":
		seed := ResolveSeed(param)
		g, err := Hills(width, height, seed)
		return g, fmt.Sprintf("gen:hills:%d", seed), err
	default:
		return nil, "", fmt.Errorf("unknown generator %q", kind)
	}
}

// ResolveSeed accepts a number in any Go base or arbitrary text, which is hashed.
// An empty or zero seed picks one from the clock.
func ResolveSeed(hint string) uint32 {
	hint = strings.TrimSpace(hint)
	var seed uint32
	if hint != "" {
		if v, err := strconv.ParseUint(hint, 0, 32); err == nil {
			seed = uint32(v)
		} else {
			seed = crc32.ChecksumIEEE([]byte(hint))
		}
	}
	if seed == 0 {
		seed = uint32(time.Now().UnixNano())
	}
	return seed
}
