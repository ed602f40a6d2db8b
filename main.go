package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/makeworld-the-better-one/wuquant/wu"
	"github.com/urfave/cli/v2"
)

// Set by the linker with -ldflags "-X main.version=..."
var (
	version = "v0.1.0"
	commit  = "unknown"
	builtBy = "unknown"
)

// env returns the environment variable names a global flag can be set with.
func env(name string) []string {
	return []string{"WUQUANT_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))}
}

// newLogger logs to w, with debug output only when verbose is set.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
}

func newApp() *cli.App {
	return &cli.App{
		Name:                   "wuquant",
		Usage:                  "reduce images to a small palette with Wu's color quantizer.",
		Description:            "wuquant builds an optimal palette for each image and maps every pixel to it,\noptionally diffusing the quantization error.",
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "colors",
				Aliases: []string{"n"},
				Value:   wu.MaxColors,
				EnvVars: env("colors"),
			},
			&cli.StringFlag{
				Name:    "dither",
				Aliases: []string{"d"},
				Value:   "floydsteinberg",
				EnvVars: env("dither"),
			},
			&cli.BoolFlag{
				Name:    "serpentine",
				EnvVars: env("serpentine"),
			},
			&cli.StringFlag{
				Name:    "strength",
				Aliases: []string{"s"},
				EnvVars: env("strength"),
			},
			&cli.UintFlag{
				Name:    "threads",
				Aliases: []string{"j"},
				EnvVars: env("threads"),
			},
			&cli.BoolFlag{
				Name:    "grayscale",
				Aliases: []string{"g"},
				EnvVars: env("grayscale"),
			},
			&cli.StringFlag{
				Name:    "saturation",
				EnvVars: env("saturation"),
			},
			&cli.StringFlag{
				Name:    "brightness",
				EnvVars: env("brightness"),
			},
			&cli.StringFlag{
				Name:    "contrast",
				EnvVars: env("contrast"),
			},
			&cli.Float64Flag{
				Name:    "gamma",
				EnvVars: env("gamma"),
			},
			&cli.StringFlag{
				Name:    "background",
				Aliases: []string{"b"},
				EnvVars: env("background"),
			},
			&cli.BoolFlag{
				Name:    "no-exif-rotation",
				EnvVars: env("no-exif-rotation"),
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "png",
				EnvVars: env("format"),
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				EnvVars: env("out"),
			},
			&cli.StringSliceFlag{
				Name:     "in",
				Aliases:  []string{"i"},
				Required: true,
				EnvVars:  env("in"),
			},
			&cli.BoolFlag{
				Name:    "no-overwrite",
				EnvVars: env("no-overwrite"),
			},
			&cli.StringFlag{
				Name:    "compression",
				Aliases: []string{"c"},
				Value:   "default",
				EnvVars: env("compression"),
			},
			&cli.Float64Flag{
				Name:    "fps",
				EnvVars: env("fps"),
			},
			&cli.UintFlag{
				Name:    "loop",
				Aliases: []string{"l"},
				EnvVars: env("loop"),
			},
			&cli.UintFlag{
				Name:    "width",
				Aliases: []string{"x"},
				EnvVars: env("width"),
			},
			&cli.UintFlag{
				Name:    "height",
				Aliases: []string{"y"},
				EnvVars: env("height"),
			},
			&cli.UintFlag{
				Name:    "upscale",
				Aliases: []string{"u"},
				Value:   1,
				EnvVars: env("upscale"),
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"V"},
				EnvVars: env("verbose"),
			},
			&cli.BoolFlag{
				Name:    "version",
				Aliases: []string{"v"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:                   "quantize",
				Aliases:                []string{"q"},
				Usage:                  "quantize images and write PNG or GIF output",
				UseShortOptionHandling: true,
				Action:                 quantize,
			},
			{
				Name:  "palette",
				Usage: "print the palette of the first input image",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "method",
						Aliases: []string{"m"},
						Value:   "wu",
					},
				},
				UseShortOptionHandling: true,
				Action:                 printPalette,
			},
		},
		Before: preProcess,
		Action: func(c *cli.Context) error {
			return errors.New("no command specified")
		},
	}
}

func main() {
	// Handle version flag
	if len(os.Args) == 2 && (os.Args[1] == "-v" || os.Args[1] == "--version") {
		fmt.Println("wuquant", version)
		fmt.Println("Commit:", commit)
		fmt.Println("Built by:", builtBy)
		return
	}

	// A missing .env is fine, flags and the real environment still apply
	_ = godotenv.Load()

	app := newApp()

	// Hack around issue where required flags are still required even for help
	// https://github.com/urfave/cli/issues/1247
	if len(os.Args) == 3 {
		if os.Args[1] == "h" || os.Args[1] == "help" {
			// Like: wuquant help palette
			for _, c := range app.Commands {
				if c.Name == os.Args[2] {
					cli.HelpPrinter(os.Stdout, cli.CommandHelpTemplate, c)
					return
				}
			}
			fmt.Println("no command with that name")
			os.Exit(1)
		} else if os.Args[len(os.Args)-1] == "-h" || os.Args[len(os.Args)-1] == "--help" {
			// Like: wuquant palette --help
			for _, c := range app.Commands {
				if c.Name == os.Args[1] {
					cli.HelpPrinter(os.Stdout, cli.CommandHelpTemplate, c)
					return
				}
			}
			fmt.Println("no command with that name")
			os.Exit(1)
		}
	}

	err := app.Run(os.Args)
	if err != nil {
		if len(os.Args) == 1 {
			// Just ran the command with no flags
			return
		}
		logger.Error(err.Error())
		os.Exit(1)
	}
}
