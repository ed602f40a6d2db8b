// Package wu reduces full-color images to a bounded palette using Xiaolin Wu's
// variance-minimizing color quantizer, optionally diffusing the quantization
// error over neighboring pixels.
//
// The quantizer builds a 3-D histogram over a reduced color cube (32 levels per
// channel), turns it into cumulative moment tables so that the statistics of any
// axis-aligned box can be read with eight lookups, and then repeatedly splits the
// box whose best cut removes the most variance. Each surviving box becomes one
// palette entry, and every pixel is mapped by looking up the box containing its
// cube cell rather than by searching the palette.
//
// Histogram construction and, when no dithering is configured, pixel mapping run
// in parallel over bands of rows. Error diffusion runs as one sequential pass.
// Output is deterministic: the same image and Options always give the same
// palette and indices, whatever the number of workers.
//
//	q := wu.New(wu.Options{MaxColors: 16, Dither: wu.FloydSteinberg})
//	paletted := q.Image(img)
package wu
