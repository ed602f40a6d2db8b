package wu

import (
	"image"
	"image/color"
	"runtime"
)

const (
	// MinColors and MaxColors bound Options.MaxColors.
	MinColors = 2
	MaxColors = 256
)

// Options configures a Quantizer.
type Options struct {
	// MaxColors is the largest palette the quantizer may produce. Values
	// outside [MinColors, MaxColors] are clamped.
	MaxColors int

	// Dither is the error diffusion kernel. The zero Kernel disables
	// dithering.
	Dither Kernel

	// Serpentine alternates the scan direction on every row when dithering.
	Serpentine bool

	// Workers is the number of goroutines used for the histogram and, without
	// dithering, for pixel mapping. Zero or less means runtime.GOMAXPROCS(0).
	// The result does not depend on it.
	Workers int
}

// Quantizer is an immutable, reusable Wu color quantizer. It is safe for
// concurrent use.
type Quantizer struct {
	opts Options
}

// New returns a Quantizer for opts. Out of range values are clamped, never
// rejected.
func New(opts Options) *Quantizer {
	switch {
	case opts.MaxColors < MinColors:
		opts.MaxColors = MinColors
	case opts.MaxColors > MaxColors:
		opts.MaxColors = MaxColors
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Quantizer{opts: opts}
}

// Options returns the effective options after clamping.
func (q *Quantizer) Options() Options {
	return q.opts
}

// Palette computes the palette for img without mapping any pixels. It holds
// at most MaxColors entries, and at least one.
func (q *Quantizer) Palette(img image.Image) color.Palette {
	pal, _ := q.build(asNRGBA(img))
	return pal
}

// Image quantizes img. The result has the bounds of img and its Palette field
// holds the computed palette.
func (q *Quantizer) Image(img image.Image) *image.Paletted {
	src := asNRGBA(img)
	pal, cells := q.build(src)
	dst := image.NewPaletted(img.Bounds(), pal)
	q.mapPixels(src, dst, cells)
	return dst
}

// Quantize implements draw.Quantizer. It appends up to cap(p)-len(p) colors
// computed from m to p, so it can be handed to image/gif.
func (q *Quantizer) Quantize(p color.Palette, m image.Image) color.Palette {
	n := cap(p) - len(p)
	if n <= 0 {
		return p
	}
	if n == 1 {
		// Smaller than any palette the cutter builds
		return append(p, q.mean(asNRGBA(m)))
	}
	sub := q
	if n < q.opts.MaxColors {
		opts := q.opts
		opts.MaxColors = n
		sub = New(opts)
	}
	pal := sub.Palette(m)
	if len(pal) > n {
		pal = pal[:n]
	}
	return append(p, pal...)
}

// mean is the average color of the whole image, or opaque black if it has
// no pixels.
func (q *Quantizer) mean(src *image.NRGBA) color.NRGBA {
	hist := histogram(src, q.opts.Workers)
	hist.cumulate()
	v := hist.volume(wholeCube)
	if v.count == 0 {
		return color.NRGBA{A: 0xff}
	}
	return v.mean()
}

// build runs the histogram, moments and box cutting stages. The histogram is
// dropped once the palette and cell table exist.
func (q *Quantizer) build(src *image.NRGBA) (color.Palette, cellTable) {
	hist := histogram(src, q.opts.Workers)
	hist.cumulate()
	boxes := newCutter(hist).run(q.opts.MaxColors)
	pal, kept := buildPalette(hist, boxes)
	if len(pal) == 0 {
		// Nothing to quantize
		return color.Palette{color.NRGBA{A: 0xff}}, make(cellTable, tableSize)
	}
	return pal, newCellTable(kept)
}
