package wu

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/makeworld-the-better-one/dither/v2"
)

// weightTolerance is how far a kernel's weights may sum from 1.
const weightTolerance = 1e-3

// tap sends weight w of the error to the pixel dx columns and dy rows away
// from the current one.
type tap struct {
	dx, dy int
	w      float32
}

// Kernel is an error diffusion strategy. The zero value diffuses nothing,
// which disables dithering.
//
// Kernels only reference pixels after the current one in traversal order:
// to the right on the current row, or on a later row.
type Kernel struct {
	taps     []tap
	strength float32
}

// FloydSteinberg is the classic 7/16, 3/16, 5/16, 1/16 kernel.
var FloydSteinberg = MustKernel(dither.FloydSteinberg)

// knownMatrices holds the named matrices of the dither library whose weights
// sum to 1. Atkinson and StevenPigeon deliberately lose part of the error and
// are left out.
var knownMatrices = map[string]dither.ErrorDiffusionMatrix{
	"simple2d":            dither.Simple2D,
	"floydsteinberg":      dither.FloydSteinberg,
	"falsefloydsteinberg": dither.FalseFloydSteinberg,
	"jarvisjudiceninke":   dither.JarvisJudiceNinke,
	"stucki":              dither.Stucki,
	"burkes":              dither.Burkes,
	"sierra":              dither.Sierra,
	"sierra3":             dither.Sierra3,
	"tworowsierra":        dither.TwoRowSierra,
	"sierralite":          dither.SierraLite,
	"sierra2_4a":          dither.Sierra2_4A,
}

// NewKernel converts an error diffusion matrix into a Kernel.
//
// The matrix uses the layout of the dither library: the current pixel sits in
// the top row, directly left of the first non-zero weight. The matrix must be
// rectangular with non-negative weights summing to 1.
func NewKernel(m dither.ErrorDiffusionMatrix) (Kernel, error) {
	if len(m) == 0 || len(m[0]) == 0 {
		return Kernel{}, errors.New("matrix is empty")
	}
	width := len(m[0])
	for _, row := range m {
		if len(row) != width {
			return Kernel{}, errors.New("matrix is not rectangular, all rows must be the same length")
		}
	}

	cur := currentPixel(m)
	var (
		taps []tap
		sum  float64
	)
	for y, row := range m {
		for x, w := range row {
			if w < 0 {
				return Kernel{}, fmt.Errorf("matrix weight at row %d, column %d is negative", y, x)
			}
			if w == 0 {
				continue
			}
			dx := x - cur
			if y == 0 && dx <= 0 {
				// Left of or on the current pixel, which is already final
				return Kernel{}, fmt.Errorf("matrix weight at row 0, column %d is not after the current pixel", x)
			}
			taps = append(taps, tap{dx: dx, dy: y, w: w})
			sum += float64(w)
		}
	}
	if math.Abs(sum-1) > weightTolerance {
		return Kernel{}, fmt.Errorf("matrix weights sum to %g, not 1", sum)
	}
	return Kernel{taps: taps, strength: 1}, nil
}

// MustKernel is like NewKernel but panics on an invalid matrix. It is meant
// for package-level kernel definitions.
func MustKernel(m dither.ErrorDiffusionMatrix) Kernel {
	k, err := NewKernel(m)
	if err != nil {
		panic("wu: " + err.Error())
	}
	return k
}

// KernelByName returns one of the named kernels, see KernelNames. Names are
// matched case-insensitively and dashes are treated as underscores.
func KernelByName(name string) (Kernel, error) {
	m, ok := knownMatrices[strings.ReplaceAll(strings.ToLower(name), "-", "_")]
	if !ok {
		return Kernel{}, fmt.Errorf("unknown kernel %q", name)
	}
	return NewKernel(m)
}

// KernelNames lists the names accepted by KernelByName, sorted.
func KernelNames() []string {
	names := make([]string, 0, len(knownMatrices))
	for name := range knownMatrices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// currentPixel finds the column of the pixel being processed, following the
// convention of the dither library.
func currentPixel(m dither.ErrorDiffusionMatrix) int {
	for i, v := range m[0] {
		if v != 0 {
			return i - 1
		}
	}
	// The whole first row is zeros
	return len(m[0]) / 2
}

// IsZero reports whether k diffuses nothing.
func (k Kernel) IsZero() bool {
	return len(k.taps) == 0 || k.strength == 0
}

// WithStrength returns a copy of k that propagates only the given fraction
// of the error. s is clamped to [0,1]. The weights themselves are unchanged.
func (k Kernel) WithStrength(s float32) Kernel {
	if s < 0 {
		s = 0
	}
	if s > 1 {
		s = 1
	}
	k.strength = s
	return k
}

// Strength returns the fraction of the error that is propagated.
func (k Kernel) Strength() float32 {
	if k.IsZero() {
		return 0
	}
	return k.strength
}

// rows is the number of scanlines the kernel spans, the current one included.
func (k Kernel) rows() int {
	n := 0
	for _, t := range k.taps {
		if t.dy > n {
			n = t.dy
		}
	}
	return n + 1
}

// errorBuffer accumulates diffused error for the rows a kernel can reach.
// It belongs to a single pass over a single image.
type errorBuffer struct {
	k    Kernel
	w, h int
	y    int // image row held in rows[0]
	rows [][][3]float32
}

func newErrorBuffer(k Kernel, w, h int) *errorBuffer {
	e := &errorBuffer{k: k, w: w, h: h, rows: make([][][3]float32, k.rows())}
	for i := range e.rows {
		e.rows[i] = make([][3]float32, w)
	}
	return e
}

// at returns the error accumulated for column x of the current row.
func (e *errorBuffer) at(x int) [3]float32 {
	return e.rows[0][x]
}

// spread distributes err from column x of the current row. mirror flips the
// kernel horizontally for right-to-left rows. Targets outside the image are
// dropped.
func (e *errorBuffer) spread(x int, err [3]float32, mirror bool) {
	for _, t := range e.k.taps {
		dx := t.dx
		if mirror {
			dx = -dx
		}
		tx, ty := x+dx, e.y+t.dy
		if tx < 0 || tx >= e.w || ty >= e.h {
			continue
		}
		w := t.w * e.k.strength
		cell := &e.rows[t.dy][tx]
		cell[0] += err[0] * w
		cell[1] += err[1] * w
		cell[2] += err[2] * w
	}
}

// advance moves to the next row, recycling the finished one.
func (e *errorBuffer) advance() {
	done := e.rows[0]
	for i := range done {
		done[i] = [3]float32{}
	}
	copy(e.rows, e.rows[1:])
	e.rows[len(e.rows)-1] = done
	e.y++
}
