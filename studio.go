package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DownloadFilename = "processed_image.png"

	compressFailedMessage = "Failed to compress the image. Please try again."
	processFailedMessage  = "Failed to process the image. Please try again."
)

var (
	ErrNotAnImage         = errors.New("file is not an image")
	ErrSubmissionInFlight = errors.New("submission already in progress")
)

// Result is the processed image held after a successful submission.
type Result struct {
	ID          string
	ContentType string
	Data        []byte
}

// State is what the page renders.
type State struct {
	Image     *ImageInfo `json:"image"`
	ResultURL string     `json:"result_url,omitempty"`
	Params    Params     `json:"params"`
	Sliders   []Slider   `json:"sliders"`
	Loading   bool       `json:"loading"`
	Error     string     `json:"error,omitempty"`
}

type ImageInfo struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int    `json:"size_bytes"`
}

type StudioConfig struct {
	Compressor      Compressor
	CompressOptions CompressOptions
	Effect          Effect
	Params          Params
}

// Studio holds the state of one editing session: the selected image, the
// effect parameters, the latest result and the loading/error flags.
type Studio struct {
	compressor Compressor
	options    CompressOptions
	effect     Effect

	mu      sync.Mutex
	image   *Upload
	params  Params
	result  *Result
	loading bool
	errMsg  string
}

func NewStudio(config StudioConfig) *Studio {
	return &Studio{
		compressor: config.Compressor,
		options:    config.CompressOptions,
		effect:     config.Effect,
		params:     config.Params,
	}
}

// Upload compresses r and makes it the selected image. A failed compression
// surfaces an error message and keeps the previous image and result.
func (s *Studio) Upload(ctx context.Context, filename, contentType string, r io.Reader) error {
	if !strings.HasPrefix(contentType, "image/") {
		return fmt.Errorf("%w: %q", ErrNotAnImage, contentType)
	}

	compressed, err := s.compress(ctx, r)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("filename", filename).Msg("error compressing image")
		s.mu.Lock()
		s.errMsg = compressFailedMessage
		s.mu.Unlock()
		return fmt.Errorf("failed to compress %s: %w", filename, err)
	}

	s.mu.Lock()
	s.image = &Upload{
		Filename:    filename,
		ContentType: compressed.ContentType,
		Data:        compressed.Data,
	}
	s.result = nil
	s.errMsg = ""
	s.mu.Unlock()

	log.Ctx(ctx).Info().
		Str("filename", filename).
		Int("compressed_bytes", len(compressed.Data)).
		Msg("image selected")
	return nil
}

func (s *Studio) compress(ctx context.Context, r io.Reader) (Compressed, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Compressed{}, fmt.Errorf("failed to read upload: %w", err)
	}
	return s.compressor.Compress(ctx, data, s.options)
}

func (s *Studio) SetParams(patch ParamsPatch) Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = s.params.Apply(patch)
	return s.params
}

// Submit sends the selected image to the effect service. It reports false
// without doing anything when no image is selected.
func (s *Studio) Submit(ctx context.Context) (bool, error) {
	return s.submit(ctx, nil)
}

// SubmitWith applies patch and submits in one step. The patch is dropped,
// like the submission, when no image is selected or one is already loading.
func (s *Studio) SubmitWith(ctx context.Context, patch ParamsPatch) (bool, error) {
	return s.submit(ctx, &patch)
}

func (s *Studio) submit(ctx context.Context, patch *ParamsPatch) (bool, error) {
	s.mu.Lock()
	if s.image == nil {
		s.mu.Unlock()
		return false, nil
	}
	if s.loading {
		s.mu.Unlock()
		return false, ErrSubmissionInFlight
	}
	if patch != nil {
		s.params = s.params.Apply(*patch)
	}
	img := *s.image
	params := s.params
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()

	processed, err := s.effect.Apply(ctx, img, params)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("filename", img.Filename).Msg("error uploading image")
		s.errMsg = processFailedMessage
		return true, fmt.Errorf("failed to process %s: %w", img.Filename, err)
	}

	s.result = &Result{
		ID:          uuid.NewString(),
		ContentType: processed.ContentType,
		Data:        processed.Data,
	}
	log.Ctx(ctx).Info().
		Str("filename", img.Filename).
		Str("result_id", s.result.ID).
		Stringer("params", params).
		Msg("image processed")
	return true, nil
}

// Download returns the result under its fixed download name.
func (s *Studio) Download() (filename string, r io.Reader, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return "", nil, false
	}
	return DownloadFilename, bytes.NewReader(s.result.Data), true
}

// Result returns the current result if its id matches.
func (s *Studio) Result(id string) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil || s.result.ID != id {
		return Result{}, false
	}
	return *s.result, true
}

func (s *Studio) Image() (Upload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.image == nil {
		return Upload{}, false
	}
	return *s.image, true
}

func (s *Studio) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := State{
		Params:  s.params,
		Sliders: []Slider{DiamondSizeSlider, EdgeSoftnessSlider, RotationSlider},
		Loading: s.loading,
		Error:   s.errMsg,
	}
	if s.image != nil {
		state.Image = &ImageInfo{
			Filename:    s.image.Filename,
			ContentType: s.image.ContentType,
			SizeBytes:   len(s.image.Data),
		}
	}
	if s.result != nil {
		state.ResultURL = "/api/result/" + s.result.ID
	}
	return state
}
