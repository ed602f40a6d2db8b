package main

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/png"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/makeworld-the-better-one/dither/v2"
	"github.com/makeworld-the-better-one/wuquant/internal/pngidx"
	"github.com/makeworld-the-better-one/wuquant/wu"
	"github.com/urfave/cli/v2"
	"golang.org/x/image/colornames"
	"gopkg.in/yaml.v3"

	// Extra input formats for imaging.Decode
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// parsePercentArg takes a string like "0.5" or "50%" and will return a float
// like 50 or 0.5, depending on the second argument. An empty string returns 0.
//
// If `maxOne` is true, then "50%" will return 0.5. Otherwise it will return 50.
func parsePercentArg(arg string, maxOne bool) (float64, error) {
	if arg == "" {
		return 0, nil
	}
	if strings.HasSuffix(arg, "%") {
		arg = arg[:len(arg)-1]
		f64, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return 0, err
		}
		if maxOne {
			f64 /= 100.0
		}
		return f64, nil
	}
	f64, err := strconv.ParseFloat(arg, 64)
	if !maxOne {
		f64 *= 100.0
	}
	return f64, err
}

// globalFlag returns the value of flag at the top level of the command.
// For example, with the command:
//
//	wuquant --threads 1 -i in.png palette -m kmeans
//
// "threads" is a global flag, and "m" is a flag local to the palette subcommand.
func globalFlag(flag string, c *cli.Context) interface{} {
	ancestor := c.Lineage()[len(c.Lineage())-1]
	if len(ancestor.Args().Slice()) == 0 {
		// When the global context calls this func, the last in the lineage
		// has no args for some reason. So return the second-last instead.
		return c.Lineage()[len(c.Lineage())-2].Value(flag)
	}
	return ancestor.Value(flag)
}

// globalIsSet returns a bool indicating whether the provided global flag
// was actually set.
func globalIsSet(flag string, c *cli.Context) bool {
	ancestor := c.Lineage()[len(c.Lineage())-1]
	if len(ancestor.Args().Slice()) == 0 {
		// See globalFlag for why this if statement exists
		return c.Lineage()[len(c.Lineage())-2].IsSet(flag)
	}
	return ancestor.IsSet(flag)
}

// expandInputs expands any glob patterns in the --in arguments. Other
// arguments, including "-" for stdin, are kept as they are.
func expandInputs(args []string) ([]string, error) {
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[") {
			paths = append(paths, arg)
			continue
		}
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("bad glob pattern '%s': %w", arg, err)
		}
		paths = append(paths, matches...)
	}
	return paths, nil
}

func rgbToColor(s string) (color.NRGBA, error) {
	format := "%d,%d,%d"
	var r, g, b uint8
	n, err := fmt.Sscanf(s, format, &r, &g, &b)
	if err != nil {
		return color.NRGBA{}, err
	}
	if n != 3 {
		return color.NRGBA{}, fmt.Errorf("%s is not an RGB tuple", s)
	}
	return color.NRGBA{r, g, b, 255}, nil
}

// parseColor turns a single color argument into an opaque color.
// It tries an RGB tuple, then a gray level, then hex, then SVG color names.
func parseColor(arg string) (color.NRGBA, error) {
	arg = strings.TrimSpace(arg)

	if strings.Count(arg, ",") == 2 {
		c, err := rgbToColor(arg)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("%s is not a valid RGB tuple. Example: 25,200,150", arg)
		}
		return c, nil
	}

	// Before hex, so that "128" is gray and not #112288
	if n, err := strconv.Atoi(arg); err == nil {
		if n > 255 || n < 0 {
			return color.NRGBA{}, fmt.Errorf("single numbers like %d must be in the range 0-255", n)
		}
		return color.NRGBA{uint8(n), uint8(n), uint8(n), 255}, nil
	}

	if cf, err := colorful.Hex("#" + strings.TrimPrefix(strings.ToLower(arg), "#")); err == nil {
		r, g, b := cf.RGB255()
		return color.NRGBA{r, g, b, 255}, nil
	}

	if named, ok := colornames.Map[strings.ToLower(arg)]; ok {
		return color.NRGBAModel.Convert(named).(color.NRGBA), nil
	}

	return color.NRGBA{}, fmt.Errorf("%s not recognized as an RGB tuple, hex code, number 0-255, or SVG color name", arg)
}

// parseKernel turns the --dither argument into a kernel. It accepts "none",
// a kernel name, an inline JSON or YAML matrix, or the path to a file holding
// one.
func parseKernel(arg string) (wu.Kernel, error) {
	switch strings.ToLower(arg) {
	case "none", "off", "no":
		return wu.Kernel{}, nil
	}

	if k, err := wu.KernelByName(arg); err == nil {
		return k, nil
	}

	// Either inline JSON/YAML, path to file, or an error
	var matrix dither.ErrorDiffusionMatrix
	if err := yaml.Unmarshal([]byte(arg), &matrix); err != nil || len(matrix) == 0 {
		data, err := os.ReadFile(arg)
		if err != nil {
			return wu.Kernel{}, fmt.Errorf(
				"couldn't process '%s' as kernel name (%s), inline matrix, or path to accessible matrix file",
				arg, strings.Join(wu.KernelNames(), ", "),
			)
		}
		if err := yaml.Unmarshal(data, &matrix); err != nil {
			return wu.Kernel{}, fmt.Errorf("matrix file '%s': %w", arg, err)
		}
	}
	return wu.NewKernel(matrix)
}

func parseCompression(s string) (png.CompressionLevel, error) {
	switch s {
	case "default":
		return png.DefaultCompression, nil
	case "no":
		return png.NoCompression, nil
	case "speed":
		return png.BestSpeed, nil
	case "size":
		return png.BestCompression, nil
	}
	return 0, fmt.Errorf("invalid compression type '%s'", s)
}

// getInputImage takes an input image arg and returns an image that has
// modifications applied.
func getInputImage(arg string, c *cli.Context) (image.Image, error) {
	var img image.Image
	var err error

	if arg == "-" {
		img, err = imaging.Decode(os.Stdin, autoOrientation)
	} else {
		img, err = imaging.Open(arg, autoOrientation)
	}
	if err != nil {
		return nil, err
	}

	if width != 0 || height != 0 {
		// Box sampling is quick and fast, and better then others at downscaling
		// Downscaling will be a much more common use case for pre-quantize scaling
		// then upscaling
		// https://pkg.go.dev/github.com/disintegration/imaging#ResampleFilter
		// https://en.wikipedia.org/wiki/Image_scaling#Box_sampling
		img = imaging.Resize(img, width, height, imaging.Box)
	}

	if background != nil {
		img = flatten(img, background)
	}

	if grayscale {
		img = imaging.Grayscale(img)
	}
	if saturation != 0 {
		img = imaging.AdjustSaturation(img, saturation)
	}
	if contrast != 0 {
		img = imaging.AdjustContrast(img, contrast)
	}
	if brightness != 0 {
		img = imaging.AdjustBrightness(img, brightness)
	}
	if gamma != 0 && gamma != 1 {
		img = adjust.Gamma(img, gamma)
	}

	return img, nil
}

// flatten composites img over a solid background, removing all transparency.
func flatten(img image.Image, bg color.Color) *image.NRGBA {
	b := img.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), bg)
	return imaging.Overlay(canvas, img, image.Point{}, 1.0)
}

// postProcImage upscales the quantized image if needed. The palette is kept.
func postProcImage(img *image.Paletted) *image.Paletted {
	if upscale == 1 {
		return img
	}

	scaled := imaging.Resize(
		img,
		img.Bounds().Dx()*upscale,
		0,
		imaging.NearestNeighbor,
	)

	pi := image.NewPaletted(scaled.Bounds(), img.Palette)
	draw.Draw(pi, scaled.Bounds(), scaled, scaled.Bounds().Min, draw.Src)
	return pi
}

// quantizeImage runs the quantizer over img and post-processes the result.
func quantizeImage(img image.Image, name string) *image.Paletted {
	start := time.Now()
	p := postProcImage(quantizer.Image(img))
	logger.Debug("quantized image",
		slog.String("image", name),
		slog.Int("width", img.Bounds().Dx()),
		slog.Int("height", img.Bounds().Dy()),
		slog.Int("colors", len(p.Palette)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return p
}

// openOutput returns where to write an image. The returned path is only
// used in messages.
func openOutput(outPath, inputPath string) (io.WriteCloser, string, error) {
	if outPath == "-" {
		return os.Stdout, "stdout", nil
	}

	path := outPath
	if outIsDir {
		// Inside output directory
		// Same name as input file but potentially different extension
		path = filepath.Join(
			outPath,
			strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))+"."+outFormat,
		)
	}

	file, err := os.OpenFile(path, outFileFlags, 0644)
	if err != nil {
		return nil, "", fmt.Errorf("'%s': %w", path, err)
	}
	return file, path, nil
}

// writeImage encodes a quantized image in the output format.
func writeImage(w io.Writer, img *image.Paletted) error {
	if outFormat == "png" {
		return pngidx.Encode(w, img, compLevel)
	}
	// The gif package keeps *image.Paletted input as it is
	return gif.Encode(w, img, &gif.Options{NumColors: len(img.Palette)})
}

// gifDelay converts frames per second into a GIF frame delay.
//
// Round to the nearest possible frame rate supported by the GIF format
// See for details: https://superuser.com/a/1449370
// A rolling average is not done because it's harder to code and looks
// bad: https://superuser.com/q/1459724
//
// Lowest allowed delay is 1, or 100 FPS.
func gifDelay(fps float64) int {
	return int(math.Max(math.Round(100.0/fps), 1))
}

// gifLoopCount converts the --loop flag, the number of times the animation
// plays, into gif.GIF.LoopCount. Zero means forever in both.
func gifLoopCount(loop int) int {
	if loop == 1 {
		// Looping once is set using -1 in the image/gif library
		return -1
	} else if loop != 0 {
		// But for gif.GIF.LoopCount, "the animation is looped LoopCount+1 times."
		return loop - 1
	}
	return 0
}

// processImages quantizes all the input images and writes them.
// It handles all image I/O.
func processImages(c *cli.Context) error {
	outPath := globalFlag("out", c).(string)

	// Setup for if it's an animated GIF output
	// Every frame gets its own local palette

	isAnimGIF := len(inputImages) > 1 && outFormat == "gif" && !outIsDir

	if !isAnimGIF {
		for _, inputPath := range inputImages {
			img, err := getInputImage(inputPath, c)
			if err != nil {
				return fmt.Errorf("error loading '%s': %w", inputPath, err)
			}

			file, path, err := openOutput(outPath, inputPath)
			if err != nil {
				return err
			}
			if err := writeImage(file, quantizeImage(img, inputPath)); err != nil {
				defer file.Close() // Keep (possibly stdout) open to write error messages then close
				return fmt.Errorf("error writing %s to '%s': %w", strings.ToUpper(outFormat), path, err)
			}
			file.Close()
		}
		return nil
	}

	if !globalIsSet("fps", c) {
		return errors.New("output will be animated GIF, but --fps flag is not set")
	}
	fps := globalFlag("fps", c).(float64)
	if fps <= 0 {
		return errors.New("--fps must be positive")
	}

	animGIF := gif.GIF{
		Image:     make([]*image.Paletted, len(inputImages)),
		Delay:     make([]int, len(inputImages)),
		LoopCount: gifLoopCount(int(globalFlag("loop", c).(uint))),
	}

	for i, inputPath := range inputImages {
		img, err := getInputImage(inputPath, c)
		if err != nil {
			return fmt.Errorf("error loading '%s': %w", inputPath, err)
		}
		frame := quantizeImage(img, inputPath)
		if i > 0 && !frame.Bounds().Eq(animGIF.Image[0].Bounds()) {
			return fmt.Errorf(
				"image '%s' isn't the same size as '%s', all sizes must match to create an animated GIF",
				inputPath, inputImages[0],
			)
		}
		animGIF.Image[i] = frame
		animGIF.Delay[i] = gifDelay(fps)
	}

	file, path, err := openOutput(outPath, inputImages[0])
	if err != nil {
		return err
	}
	err = gif.EncodeAll(file, &animGIF)
	if err != nil {
		defer file.Close()
		return fmt.Errorf("error writing GIF to '%s': %w", path, err)
	}
	file.Close()
	return nil
}
