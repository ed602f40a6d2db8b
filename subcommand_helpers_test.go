package main

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// createInMemoryImage creates a solid color test image.
func createInMemoryImage(width, height int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// createPatternImage creates an image with different colors in each quadrant.
func createPatternImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var c color.NRGBA
			switch {
			case x < width/2 && y < height/2:
				c = color.NRGBA{255, 0, 0, 255}
			case y < height/2:
				c = color.NRGBA{0, 255, 0, 255}
			case x < width/2:
				c = color.NRGBA{0, 0, 255, 255}
			default:
				c = color.NRGBA{255, 255, 255, 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

func TestParsePercentArg(t *testing.T) {
	tests := []struct {
		arg    string
		maxOne bool
		want   float64
	}{
		{"", true, 0},
		{"50%", true, 0.5},
		{"50%", false, 50},
		{"0.25", true, 0.25},
		{"0.25", false, 25},
		{"-100%", false, -100},
	}

	for _, tt := range tests {
		got, err := parsePercentArg(tt.arg, tt.maxOne)
		if err != nil {
			t.Errorf("parsePercentArg(%q, %v) failed: %v", tt.arg, tt.maxOne, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parsePercentArg(%q, %v): got %v, want %v", tt.arg, tt.maxOne, got, tt.want)
		}
	}

	for _, arg := range []string{"abc", "5x%"} {
		if _, err := parsePercentArg(arg, true); err == nil {
			t.Errorf("parsePercentArg(%q) should fail", arg)
		}
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		arg  string
		want color.NRGBA
	}{
		{"25,200,150", color.NRGBA{25, 200, 150, 255}},
		{"128", color.NRGBA{128, 128, 128, 255}},
		{"#ff8000", color.NRGBA{255, 128, 0, 255}},
		{"FF8000", color.NRGBA{255, 128, 0, 255}},
		{"#fff", color.NRGBA{255, 255, 255, 255}},
		{"white", color.NRGBA{255, 255, 255, 255}},
		{"Teal", color.NRGBA{0, 128, 128, 255}},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := parseColor(tt.arg)
			if err != nil {
				t.Fatalf("parseColor failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	for _, arg := range []string{"256", "-1", "1,2", "300,0,0", "notacolor"} {
		if _, err := parseColor(arg); err == nil {
			t.Errorf("parseColor(%q) should fail", arg)
		}
	}
}

func TestParseKernel(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "matrix.yaml")
	if err := os.WriteFile(file, []byte("- [0, 0, 0.5]\n- [0.25, 0.25, 0]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("- [0, 0, 7]\n- [3, 5, 1]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		arg      string
		wantZero bool
		wantErr  bool
	}{
		{"none", "none", true, false},
		{"name", "FloydSteinberg", false, false},
		{"dashed name", "sierra2-4a", false, false},
		{"inline json", "[[0,0,0.4375],[0.1875,0.3125,0.0625]]", false, false},
		{"inline yaml", "- [0, 0, 1]", false, false},
		{"file", file, false, false},
		{"weights not normalized", bad, false, true},
		{"lossy named matrix", "atkinson", false, true},
		{"missing file", filepath.Join(dir, "missing.json"), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := parseKernel(tt.arg)
			if tt.wantErr {
				if err == nil {
					t.Error("parseKernel should fail")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseKernel failed: %v", err)
			}
			if k.IsZero() != tt.wantZero {
				t.Errorf("IsZero: got %v, want %v", k.IsZero(), tt.wantZero)
			}
		})
	}
}

func TestParseCompression(t *testing.T) {
	tests := map[string]png.CompressionLevel{
		"default": png.DefaultCompression,
		"no":      png.NoCompression,
		"speed":   png.BestSpeed,
		"size":    png.BestCompression,
	}
	for arg, want := range tests {
		got, err := parseCompression(arg)
		if err != nil || got != want {
			t.Errorf("parseCompression(%q): got %v, %v, want %v", arg, got, err, want)
		}
	}
	if _, err := parseCompression("max"); err == nil {
		t.Error("parseCompression(\"max\") should fail")
	}
}

func TestHexColor(t *testing.T) {
	tests := []struct {
		c    color.Color
		want string
	}{
		{color.NRGBA{255, 0, 128, 255}, "#ff0080"},
		{color.Black, "#000000"},
		{color.NRGBA{16, 32, 48, 128}, "#10203080"},
	}
	for _, tt := range tests {
		if got := hexColor(tt.c); got != tt.want {
			t.Errorf("hexColor(%v): got %s, want %s", tt.c, got, tt.want)
		}
	}
}

func TestFlatten(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{255, 0, 0, 0})
	img.SetNRGBA(1, 0, color.NRGBA{0, 255, 0, 255})

	got := flatten(img, color.NRGBA{0, 0, 255, 255})
	if c := got.NRGBAAt(0, 0); c != (color.NRGBA{0, 0, 255, 255}) {
		t.Errorf("transparent pixel: got %v, want the background", c)
	}
	if c := got.NRGBAAt(1, 0); c != (color.NRGBA{0, 255, 0, 255}) {
		t.Errorf("opaque pixel: got %v, want it unchanged", c)
	}
}

func TestGIFTiming(t *testing.T) {
	delays := []struct {
		fps  float64
		want int
	}{
		{10, 10}, {30, 3}, {24, 4}, {100, 1}, {500, 1},
	}
	for _, tt := range delays {
		if got := gifDelay(tt.fps); got != tt.want {
			t.Errorf("gifDelay(%v): got %d, want %d", tt.fps, got, tt.want)
		}
	}

	loops := []struct {
		loop, want int
	}{
		{0, 0}, {1, -1}, {2, 1}, {5, 4},
	}
	for _, tt := range loops {
		if got := gifLoopCount(tt.loop); got != tt.want {
			t.Errorf("gifLoopCount(%d): got %d, want %d", tt.loop, got, tt.want)
		}
	}
}

func TestExpandInputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.png", "c.jpg"} {
		writePNG(t, filepath.Join(dir, name), createInMemoryImage(1, 1, color.White))
	}

	got, err := expandInputs([]string{filepath.Join(dir, "*.png"), "-"})
	if err != nil {
		t.Fatalf("expandInputs failed: %v", err)
	}
	want := []string{filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png"), "-"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("got %v, want %v", got, want)
	}

	if _, err := expandInputs([]string{"[unclosed"}); err == nil {
		t.Error("bad glob should fail")
	}
}

func TestPostProcImageKeepsPalette(t *testing.T) {
	old := upscale
	defer func() { upscale = old }()
	upscale = 3

	pal := color.Palette{color.NRGBA{0, 0, 0, 255}, color.NRGBA{255, 255, 255, 255}}
	src := image.NewPaletted(image.Rect(0, 0, 2, 2), pal)
	src.SetColorIndex(1, 0, 1)
	src.SetColorIndex(0, 1, 1)

	got := postProcImage(src)
	if got.Bounds() != image.Rect(0, 0, 6, 6) {
		t.Fatalf("bounds: got %v, want 6x6", got.Bounds())
	}
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			if got.ColorIndexAt(x, y) != src.ColorIndexAt(x/3, y/3) {
				t.Fatalf("pixel (%d,%d): got index %d, want %d", x, y, got.ColorIndexAt(x, y), src.ColorIndexAt(x/3, y/3))
			}
		}
	}
}

func TestQuantizeCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	writePNG(t, in, createPatternImage(8, 8))

	tests := []struct {
		name string
		out  string
	}{
		{"png", filepath.Join(dir, "out.png")},
		{"gif", filepath.Join(dir, "out.gif")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newApp().Run([]string{"wuquant", "-n", "4", "-d", "none", "-u", "2", "-i", in, "-o", tt.out, "quantize"})
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}

			f, err := os.Open(tt.out)
			if err != nil {
				t.Fatal(err)
			}
			defer f.Close()
			img, _, err := image.Decode(f)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			p, ok := img.(*image.Paletted)
			if !ok {
				t.Fatalf("output is %T, want *image.Paletted", img)
			}
			if p.Bounds() != image.Rect(0, 0, 16, 16) {
				t.Errorf("bounds: got %v, want 16x16", p.Bounds())
			}
			if len(p.Palette) != 4 {
				t.Errorf("palette size: got %d, want 4", len(p.Palette))
			}
			// Top-left quadrant stays red
			if got := color.NRGBAModel.Convert(p.At(0, 0)); got != (color.NRGBA{255, 0, 0, 255}) {
				t.Errorf("pixel (0,0): got %v, want red", got)
			}
		})
	}
}

func TestAnimatedGIF(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	writePNG(t, a, createPatternImage(6, 6))
	writePNG(t, b, createInMemoryImage(6, 6, color.NRGBA{10, 20, 30, 255}))
	out := filepath.Join(dir, "anim.gif")

	args := []string{"wuquant", "-i", a, "-i", b, "-o", out, "--fps", "4", "-l", "2", "quantize"}
	if err := newApp().Run(args); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	g, err := gif.DecodeAll(f)
	if err != nil {
		t.Fatalf("gif.DecodeAll failed: %v", err)
	}
	if len(g.Image) != 2 {
		t.Fatalf("frames: got %d, want 2", len(g.Image))
	}
	if g.Delay[0] != 25 || g.LoopCount != 1 {
		t.Errorf("delay %d loop %d, want 25 and 1", g.Delay[0], g.LoopCount)
	}
	// The second frame is a single color, whatever padding the GIF palette has
	if got := color.NRGBAModel.Convert(g.Image[1].At(5, 5)); got != (color.NRGBA{10, 20, 30, 255}) {
		t.Errorf("second frame: got %v, want its only color", got)
	}

	// Animated output needs --fps
	err = newApp().Run([]string{"wuquant", "-i", a, "-i", b, "-o", out, "quantize"})
	if err == nil {
		t.Error("missing --fps should fail")
	}
}

func TestPaletteCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	writePNG(t, in, createPatternImage(4, 4))

	var buf bytes.Buffer
	app := newApp()
	app.Writer = &buf
	if err := app.Run([]string{"wuquant", "-n", "8", "-i", in, "palette"}); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	lines := strings.Fields(buf.String())
	if len(lines) != 4 {
		t.Fatalf("got %d palette lines, want 4: %q", len(lines), buf.String())
	}
	seen := make(map[string]bool)
	for _, l := range lines {
		seen[l] = true
	}
	for _, want := range []string{"#ff0000", "#00ff00", "#0000ff", "#ffffff"} {
		if !seen[want] {
			t.Errorf("palette is missing %s: %v", want, lines)
		}
	}

	err := newApp().Run([]string{"wuquant", "-i", in, "palette", "-m", "octree"})
	if err == nil {
		t.Error("unknown method should fail")
	}
}
