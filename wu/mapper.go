package wu

import (
	"image"
	"image/color"

	"golang.org/x/sync/errgroup"
)

// mapPixels writes the palette index of every pixel of src into dst.
func (q *Quantizer) mapPixels(src *image.NRGBA, dst *image.Paletted, cells cellTable) {
	if q.opts.Dither.IsZero() {
		mapBands(src, dst, cells, q.opts.Workers)
		return
	}
	diffuse(src, dst, cells, q.opts.Dither, q.opts.Serpentine)
}

// mapBands maps pixels by direct table lookup. Every worker owns a disjoint
// band of destination rows.
func mapBands(src *image.NRGBA, dst *image.Paletted, cells cellTable, workers int) {
	w := src.Rect.Dx()
	var g errgroup.Group
	for _, p := range bands(src.Rect.Dy(), workers) {
		g.Go(func() error {
			for y := p.y0; y < p.y1; y++ {
				row := pixelRow(src, y)
				out := dst.Pix[y*dst.Stride : y*dst.Stride+w]
				for x := range out {
					out[x] = cells.lookup(row[4*x], row[4*x+1], row[4*x+2])
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

// diffuse maps pixels in scanline order, adding the error propagated from
// earlier pixels before each lookup. With serpentine set, odd rows run right
// to left and the kernel is mirrored.
func diffuse(src *image.NRGBA, dst *image.Paletted, cells cellTable, k Kernel, serpentine bool) {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	pal := make([][3]float32, len(dst.Palette))
	for i, c := range dst.Palette {
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		pal[i] = [3]float32{float32(n.R), float32(n.G), float32(n.B)}
	}

	buf := newErrorBuffer(k, w, h)
	for y := 0; y < h; y++ {
		row := pixelRow(src, y)
		out := dst.Pix[y*dst.Stride : y*dst.Stride+w]
		reverse := serpentine && y%2 == 1
		for i := 0; i < w; i++ {
			x := i
			if reverse {
				x = w - 1 - i
			}
			e := buf.at(x)
			r := clamp255(float32(row[4*x]) + e[0])
			g := clamp255(float32(row[4*x+1]) + e[1])
			b := clamp255(float32(row[4*x+2]) + e[2])

			idx := cells.lookup(round8(r), round8(g), round8(b))
			out[x] = idx
			p := pal[idx]
			buf.spread(x, [3]float32{r - p[0], g - p[1], b - p[2]}, reverse)
		}
		buf.advance()
	}
}

func clamp255(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// round8 rounds a value already clamped to [0,255].
func round8(v float32) uint8 {
	return uint8(v + 0.5)
}
