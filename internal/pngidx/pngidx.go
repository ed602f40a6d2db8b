// Package pngidx writes paletted images as indexed-color PNG files, with the
// image data deflated by github.com/klauspost/compress instead of
// compress/zlib.
package pngidx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/klauspost/compress/zlib"
)

var signature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Encode writes img to w as a color type 3 PNG. level follows image/png.
func Encode(w io.Writer, img *image.Paletted, level png.CompressionLevel) error {
	n := len(img.Palette)
	if n == 0 {
		return errors.New("palette is empty")
	}
	if n > 256 {
		return fmt.Errorf("palette has %d colors, PNG allows at most 256", n)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", width, height)
	}
	depth := BitDepth(n)

	var buf bytes.Buffer
	buf.Write(signature)

	writeChunk(&buf, "IHDR", func(data *bytes.Buffer) {
		binary.Write(data, binary.BigEndian, uint32(width))
		binary.Write(data, binary.BigEndian, uint32(height))
		data.WriteByte(uint8(depth))
		data.WriteByte(3) // Color type: indexed
		data.WriteByte(0) // Compression method
		data.WriteByte(0) // Filter method
		data.WriteByte(0) // Interlace method
	})

	plte, trns := paletteChunks(img.Palette)
	writeChunk(&buf, "PLTE", func(data *bytes.Buffer) {
		data.Write(plte)
	})
	if trns != nil {
		writeChunk(&buf, "tRNS", func(data *bytes.Buffer) {
			data.Write(trns)
		})
	}

	compressed, err := deflate(packIndices(img, depth), zlibLevel(level))
	if err != nil {
		return err
	}
	writeChunk(&buf, "IDAT", func(data *bytes.Buffer) {
		data.Write(compressed)
	})
	writeChunk(&buf, "IEND", func(data *bytes.Buffer) {})

	_, err = w.Write(buf.Bytes())
	return err
}

// BitDepth is the smallest PNG bit depth that can index n colors.
func BitDepth(n int) int {
	switch {
	case n <= 2:
		return 1
	case n <= 4:
		return 2
	case n <= 16:
		return 4
	default:
		return 8
	}
}

// paletteChunks returns the PLTE payload and, if any entry is not opaque,
// the tRNS payload trimmed after the last non-opaque entry.
func paletteChunks(p color.Palette) (plte, trns []byte) {
	plte = make([]byte, 0, 3*len(p))
	alpha := make([]byte, len(p))
	last := -1
	for i, c := range p {
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		plte = append(plte, n.R, n.G, n.B)
		alpha[i] = n.A
		if n.A != 0xff {
			last = i
		}
	}
	if last >= 0 {
		trns = alpha[:last+1]
	}
	return plte, trns
}

// packIndices lays out the scanlines, each preceded by filter type 0.
func packIndices(img *image.Paletted, depth int) []byte {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	perByte := 8 / depth
	rowBytes := (width + perByte - 1) / perByte

	data := make([]byte, height*(rowBytes+1))
	for y := 0; y < height; y++ {
		start := y * (rowBytes + 1)
		row := img.Pix[y*img.Stride : y*img.Stride+width]
		for x, idx := range row {
			shift := (perByte - 1 - x%perByte) * depth
			data[start+1+x/perByte] |= idx << shift
		}
	}
	return data
}

func zlibLevel(level png.CompressionLevel) int {
	switch level {
	case png.NoCompression:
		return zlib.NoCompression
	case png.BestSpeed:
		return zlib.BestSpeed
	case png.BestCompression:
		return zlib.BestCompression
	default:
		return zlib.DefaultCompression
	}
}

func deflate(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("failed to create zlib writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return nil, fmt.Errorf("failed to compress image data: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zlib writer: %w", err)
	}
	return buf.Bytes(), nil
}

// writeChunk writes a length-prefixed chunk followed by its CRC.
func writeChunk(buf *bytes.Buffer, chunkType string, dataWriter func(*bytes.Buffer)) {
	var chunk bytes.Buffer
	dataWriter(&chunk)
	data := chunk.Bytes()

	binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.WriteString(chunkType)
	buf.Write(data)

	crc := crc32.NewIEEE()
	crc.Write([]byte(chunkType))
	crc.Write(data)
	binary.Write(buf, binary.BigEndian, crc.Sum32())
}
