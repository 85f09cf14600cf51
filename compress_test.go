package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeTestImage(t *testing.T, w, h int, format imaging.Format) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 40, B: 90, A: 255})
	var b bytes.Buffer
	require.NoError(t, imaging.Encode(&b, img, format))
	return b.Bytes()
}

func decodeTestConfig(t *testing.T, data []byte) (image.Config, string) {
	t.Helper()
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg, format
}

func TestImagingCompressor_Compress(t *testing.T) {
	tests := []struct {
		name            string
		input           []byte
		opts            CompressOptions
		wantUnchanged   bool
		wantWidth       int
		wantHeight      int
		wantFormat      string
		wantContentType string
	}{
		{
			name:            "small png is returned as is",
			input:           encodeTestImage(t, 64, 32, imaging.PNG),
			opts:            DefaultCompressOptions(),
			wantUnchanged:   true,
			wantWidth:       64,
			wantHeight:      32,
			wantFormat:      "png",
			wantContentType: "image/png",
		},
		{
			name:            "wide png is fitted",
			input:           encodeTestImage(t, 2048, 1024, imaging.PNG),
			opts:            DefaultCompressOptions(),
			wantWidth:       1024,
			wantHeight:      512,
			wantFormat:      "png",
			wantContentType: "image/png",
		},
		{
			name:            "tall jpeg stays jpeg",
			input:           encodeTestImage(t, 1500, 3000, imaging.JPEG),
			opts:            CompressOptions{MaxSizeMB: 1, MaxWidthOrHeight: 1024},
			wantWidth:       512,
			wantHeight:      1024,
			wantFormat:      "jpeg",
			wantContentType: "image/jpeg",
		},
		{
			name:            "gif becomes png",
			input:           encodeTestImage(t, 1200, 300, imaging.GIF),
			opts:            DefaultCompressOptions(),
			wantWidth:       1024,
			wantHeight:      256,
			wantFormat:      "png",
			wantContentType: "image/png",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewImagingCompressor().Compress(testContext(t), tc.input, tc.opts)
			require.NoError(t, err)

			if tc.wantUnchanged {
				assert.Equal(t, tc.input, got.Data)
			}
			assert.LessOrEqual(t, len(got.Data), tc.opts.maxBytes())
			assert.Equal(t, tc.wantContentType, got.ContentType)

			cfg, format := decodeTestConfig(t, got.Data)
			assert.Equal(t, tc.wantWidth, cfg.Width)
			assert.Equal(t, tc.wantHeight, cfg.Height)
			assert.Equal(t, tc.wantFormat, format)
		})
	}
}

func TestImagingCompressor_CompressNotAnImage(t *testing.T) {
	_, err := NewImagingCompressor().Compress(testContext(t), []byte("definitely not an image"), DefaultCompressOptions())
	require.Error(t, err)
}

func TestImagingCompressor_CompressSizeLimit(t *testing.T) {
	opts := CompressOptions{MaxSizeMB: 0.00001, MaxWidthOrHeight: 1024}

	_, err := NewImagingCompressor().Compress(testContext(t), encodeTestImage(t, 64, 64, imaging.PNG), opts)
	require.ErrorIs(t, err, ErrCompressionLimit)
}

func TestImagingCompressor_CompressShrinksToBudget(t *testing.T) {
	// 4 KiB is well under a 1024x1024 png of this size, so dimensions must drop.
	opts := CompressOptions{MaxSizeMB: 4.0 / 1024, MaxWidthOrHeight: 1024}
	input := noisyPNG(t, 256, 256)
	require.Greater(t, len(input), opts.maxBytes())

	got, err := NewImagingCompressor().Compress(testContext(t), input, opts)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(got.Data), opts.maxBytes())
	cfg, _ := decodeTestConfig(t, got.Data)
	assert.Less(t, cfg.Width, 256)
}

func TestImagingCompressor_CompressCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext(t))
	cancel()

	_, err := NewImagingCompressor().Compress(ctx, encodeTestImage(t, 16, 16, imaging.PNG), DefaultCompressOptions())
	require.ErrorIs(t, err, context.Canceled)
}

func noisyPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	seed := uint32(7)
	for i := range img.Pix {
		seed = seed*1664525 + 1013904223
		img.Pix[i] = uint8(seed >> 24)
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	var b bytes.Buffer
	require.NoError(t, imaging.Encode(&b, img, imaging.PNG))
	return b.Bytes()
}
