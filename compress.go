package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	initialJPEGQuality = 90
	minJPEGQuality     = 10
	jpegQualityStep    = 10
	shrinkFactor       = 0.9
	maxCompressPasses  = 40
)

var ErrCompressionLimit = errors.New("image cannot be compressed under size limit")

// CompressOptions mirrors the options of the browser-side compressor the page
// used to run: a byte budget, a bounding box, and whether to work off the
// caller's goroutine.
type CompressOptions struct {
	MaxSizeMB        float64 `json:"maxSizeMB"`
	MaxWidthOrHeight int     `json:"maxWidthOrHeight"`
	UseWebWorker     bool    `json:"useWebWorker"`
}

func DefaultCompressOptions() CompressOptions {
	return CompressOptions{
		MaxSizeMB:        1,
		MaxWidthOrHeight: 1024,
		UseWebWorker:     true,
	}
}

func (o CompressOptions) maxBytes() int {
	return int(o.MaxSizeMB * 1024 * 1024)
}

type Compressed struct {
	Data        []byte
	ContentType string
}

type Compressor interface {
	Compress(ctx context.Context, data []byte, opts CompressOptions) (Compressed, error)
}

// ImagingCompressor is an implementation of the Compressor interface
// using the disintegration/imaging library
type ImagingCompressor struct{}

func NewImagingCompressor() *ImagingCompressor {
	return &ImagingCompressor{}
}

// Compress shrinks data until it fits within opts. With UseWebWorker set the
// work runs on its own goroutine and the caller only waits for it or for ctx.
func (c *ImagingCompressor) Compress(ctx context.Context, data []byte, opts CompressOptions) (Compressed, error) {
	if err := ctx.Err(); err != nil {
		return Compressed{}, err
	}
	if !opts.UseWebWorker {
		return c.compress(data, opts)
	}

	type result struct {
		out Compressed
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := c.compress(data, opts)
		done <- result{out: out, err: err}
	}()

	select {
	case <-ctx.Done():
		return Compressed{}, ctx.Err()
	case r := <-done:
		return r.out, r.err
	}
}

func (c *ImagingCompressor) compress(data []byte, opts CompressOptions) (Compressed, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Compressed{}, fmt.Errorf("failed to decode image config: %w", err)
	}

	maxBytes := opts.maxBytes()
	maxDim := opts.MaxWidthOrHeight
	fitsSize := maxBytes <= 0 || len(data) <= maxBytes
	fitsBox := maxDim <= 0 || (cfg.Width <= maxDim && cfg.Height <= maxDim)
	if fitsSize && fitsBox {
		return Compressed{Data: data, ContentType: contentTypeFor(format)}, nil
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return Compressed{}, fmt.Errorf("failed to decode image: %w", err)
	}

	img := image.Image(src)
	if maxDim > 0 {
		img = imaging.Fit(src, maxDim, maxDim, imaging.Lanczos)
	}

	outFormat, contentType := imaging.PNG, "image/png"
	if format == "jpeg" {
		outFormat, contentType = imaging.JPEG, "image/jpeg"
	}

	quality := initialJPEGQuality
	for i := 0; i < maxCompressPasses; i++ {
		var b bytes.Buffer
		if err := imaging.Encode(&b, img, outFormat, imaging.JPEGQuality(quality)); err != nil {
			return Compressed{}, fmt.Errorf("failed to encode image: %w", err)
		}
		if maxBytes <= 0 || b.Len() <= maxBytes {
			return Compressed{Data: b.Bytes(), ContentType: contentType}, nil
		}

		if outFormat == imaging.JPEG && quality > minJPEGQuality {
			quality = max(quality-jpegQualityStep, minJPEGQuality)
			continue
		}

		bounds := img.Bounds()
		w := int(float64(bounds.Dx()) * shrinkFactor)
		h := int(float64(bounds.Dy()) * shrinkFactor)
		if w < 1 || h < 1 {
			break
		}
		img = imaging.Resize(img, w, h, imaging.Lanczos)
	}

	return Compressed{}, fmt.Errorf("%w: %d bytes", ErrCompressionLimit, maxBytes)
}

func contentTypeFor(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png", "gif", "bmp", "tiff", "webp":
		return "image/" + format
	default:
		return "application/octet-stream"
	}
}
