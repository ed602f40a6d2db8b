package main

import (
	"errors"
	"fmt"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/makeworld-the-better-one/wuquant/wu"
	"github.com/mccutchen/palettor"
	"github.com/urfave/cli/v2"
)

const (
	unsupportedFormat string = "'%s' is an unsupported format, only 'png' or 'gif' are accepted"
)

var (
	// logger is replaced in preProcess once --verbose is known.
	logger = newLogger(os.Stderr, false)

	quantizer *wu.Quantizer

	grayscale bool

	// Range -100,100

	saturation float64
	brightness float64
	contrast   float64

	// gamma is left alone when 0 or 1
	gamma float64

	// background flattens transparent input when non-nil
	background color.Color

	autoOrientation imaging.DecodeOption

	inputImages []string
	outFormat   string // "png" or "gif"
	outIsDir    bool

	compLevel png.CompressionLevel

	outFileFlags int // For os.OpenFile

	width  int
	height int
	// upscale will always be 1 or above
	upscale int
)

// preProcess is automatically called by the app before anything else.
// It's run in the global context.
func preProcess(c *cli.Context) error {
	logger = newLogger(os.Stderr, c.Bool("verbose"))

	threads := int(c.Uint("threads"))
	runtime.GOMAXPROCS(threads)

	var err error

	saturation, err = parsePercentArg(c.String("saturation"), false)
	if err != nil {
		return fmt.Errorf("saturation: %w", err)
	}
	grayscale = c.Bool("grayscale")
	if saturation <= -100 {
		grayscale = true
		saturation = 0
	}
	brightness, err = parsePercentArg(c.String("brightness"), false)
	if err != nil {
		return fmt.Errorf("brightness: %w", err)
	}
	contrast, err = parsePercentArg(c.String("contrast"), false)
	if err != nil {
		return fmt.Errorf("contrast: %w", err)
	}
	gamma = c.Float64("gamma")
	if gamma < 0 {
		return errors.New("gamma cannot be negative")
	}

	background = nil
	if c.String("background") != "" {
		bg, err := parseColor(c.String("background"))
		if err != nil {
			return fmt.Errorf("background: %w", err)
		}
		background = bg
	}

	autoOrientation = imaging.AutoOrientation(!c.Bool("no-exif-rotation"))

	inputImages, err = expandInputs(c.StringSlice("in"))
	if err != nil {
		return err
	}
	if len(inputImages) == 0 {
		return errors.New("no input images matched")
	}

	formatVal := c.String("format")
	if formatVal != "png" && formatVal != "gif" {
		return fmt.Errorf(unsupportedFormat, formatVal)
	}

	// Figure out output format

	outVal := c.String("out")
	outIsDir = false

	if outVal == "-" || outVal == "" {
		// Outputting to stdout, or not writing at all (palette command)
		outFormat = formatVal
	} else {
		// Outputting to dir or file

		outFI, err := os.Stat(outVal)

		if err == nil && outFI.IsDir() {
			// Exists and is a directory
			// Just use what the flag is
			outFormat = formatVal
			outIsDir = true

		} else {
			// Outputting to file, that already exists
			// Or something that doesn't exist - assumed to be a file

			if !c.IsSet("format") {
				// Format wasn't set, so ignore default value of "png"
				// Try to figure out format from output filename
				ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(outVal), "."))
				if ext == "png" || ext == "gif" {
					outFormat = ext
				} else if ext == "" {
					outFormat = "png"
				} else {
					return fmt.Errorf(unsupportedFormat, ext)
				}
			} else {
				// Format flag was set, so ignore what the file looks like
				outFormat = formatVal
			}
		}
	}

	// Multiple input images are only valid if the output is GIF,
	// or if the output points to a directory.
	if outVal != "" && len(inputImages) > 1 && (outFormat != "gif" && !outIsDir) {
		return fmt.Errorf("multiple input images are only allowed if the output format is GIF, or an existing directory")
	}

	compLevel, err = parseCompression(c.String("compression"))
	if err != nil {
		return err
	}

	if c.Bool("no-overwrite") {
		outFileFlags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	} else {
		outFileFlags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}

	// Set here for convenience
	width = int(c.Uint("width"))
	height = int(c.Uint("height"))
	upscale = int(c.Uint("upscale"))
	if upscale == 0 {
		// Invalid
		upscale = 1
	}

	kernel, err := parseKernel(c.String("dither"))
	if err != nil {
		return fmt.Errorf("dither: %w", err)
	}
	strength, err := parsePercentArg(c.String("strength"), true)
	if err != nil {
		return fmt.Errorf("strength: %w", err)
	}
	if strength != 0 {
		kernel = kernel.WithStrength(float32(strength))
	}

	quantizer = wu.New(wu.Options{
		MaxColors:  c.Int("colors"),
		Dither:     kernel,
		Serpentine: c.Bool("serpentine"),
		Workers:    threads,
	})

	opts := quantizer.Options()
	logger.Debug("configured quantizer",
		slog.Int("max_colors", opts.MaxColors),
		slog.Bool("dither", !opts.Dither.IsZero()),
		slog.Float64("strength", float64(opts.Dither.Strength())),
		slog.Bool("serpentine", opts.Serpentine),
		slog.Int("workers", opts.Workers),
	)
	return nil
}

func quantize(c *cli.Context) error {
	if globalFlag("out", c).(string) == "" {
		return errors.New("quantize needs an output, set --out to a file, directory, or '-' for stdout")
	}
	return processImages(c)
}

// printPalette writes the palette of the first input image, one hex color
// per line.
func printPalette(c *cli.Context) error {
	img, err := getInputImage(inputImages[0], c)
	if err != nil {
		return fmt.Errorf("error loading '%s': %w", inputImages[0], err)
	}

	start := time.Now()
	var colors []color.Color

	switch method := strings.ToLower(c.String("method")); method {
	case "wu":
		colors = quantizer.Palette(img)
	case "kmeans":
		// Resize: keep palettor.Extract fast. See the palettor CLI source:
		// https://github.com/mccutchen/palettor/blob/3eaed180/cmd/palettor/palettor.go#L57
		thumbnail := imaging.Resize(img, 200, 200, imaging.NearestNeighbor)

		p, err := palettor.Extract(quantizer.Options().MaxColors, 500, thumbnail)
		if err != nil {
			return fmt.Errorf("error extracting image palette: %w", err)
		}
		colors = p.Colors()
	default:
		return fmt.Errorf("unknown palette method '%s', use 'wu' or 'kmeans'", method)
	}

	logger.Info("extracted palette",
		slog.String("image", inputImages[0]),
		slog.Int("colors", len(colors)),
		slog.Duration("elapsed", time.Since(start)),
	)

	for _, col := range colors {
		if _, err := fmt.Fprintln(c.App.Writer, hexColor(col)); err != nil {
			return err
		}
	}
	return nil
}

// hexColor formats c as #rrggbb, with an alpha byte appended when c is not
// opaque.
func hexColor(c color.Color) string {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	cf := colorful.Color{
		R: float64(n.R) / 255,
		G: float64(n.G) / 255,
		B: float64(n.B) / 255,
	}
	if n.A == 0xff {
		return cf.Hex()
	}
	return fmt.Sprintf("%s%02x", cf.Hex(), n.A)
}
