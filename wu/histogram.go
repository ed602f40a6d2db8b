package wu

import (
	"image"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"
)

// asNRGBA returns the 8-bit non-premultiplied pixels of img, copying only
// when img is not already in that format.
func asNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		return n
	}
	return imaging.Clone(img)
}

// pixelRow returns row y of src, counted from the top of its bounds.
func pixelRow(src *image.NRGBA, y int) []uint8 {
	i := src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y+y)
	return src.Pix[i : i+4*src.Rect.Dx()]
}

// band is the half-open row range [y0,y1).
type band struct{ y0, y1 int }

// bands splits h rows into at most n contiguous, disjoint bands.
func bands(h, n int) []band {
	if n > h {
		n = h
	}
	if n < 1 {
		n = 1
	}
	out := make([]band, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, band{y0: h * i / n, y1: h * (i + 1) / n})
	}
	return out
}

// pixelsPerPartial is the fewest pixels worth a partial table of its own.
// Each partial costs a full moments table, about 1.7 MB.
const pixelsPerPartial = 1 << 16

// histogramWorkers caps workers so that each partial table covers at least
// pixelsPerPartial pixels.
func histogramWorkers(pixels, workers int) int {
	if n := pixels / pixelsPerPartial; workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// histogram counts src into a fresh moments table.
func histogram(src *image.NRGBA, workers int) moments {
	workers = histogramWorkers(src.Rect.Dx()*src.Rect.Dy(), workers)
	return countBands(src, bands(src.Rect.Dy(), workers))
}

// countBands fills one partial table per band of rows, each in its own
// goroutine, and sums the partials afterwards.
func countBands(src *image.NRGBA, parts []band) moments {
	partial := make([]moments, len(parts))

	var g errgroup.Group
	for i, p := range parts {
		g.Go(func() error {
			hist := newMoments()
			for y := p.y0; y < p.y1; y++ {
				row := pixelRow(src, y)
				for x := 0; x < len(row); x += 4 {
					hist.add(row[x], row[x+1], row[x+2], row[x+3])
				}
			}
			partial[i] = hist
			return nil
		})
	}
	_ = g.Wait()

	hist := partial[0]
	for _, p := range partial[1:] {
		hist.merge(p)
	}
	return hist
}
