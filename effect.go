package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultEffectEndpoint = "https://python-api-9iam.onrender.com/diamond_reflection_effect"

var ErrUnexpectedStatus = errors.New("unexpected status from effect service")

// Upload is an image ready to be sent to the effect service.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

type ProcessedImage struct {
	ContentType string
	Data        []byte
}

type Effect interface {
	Apply(ctx context.Context, img Upload, params Params) (ProcessedImage, error)
}

// EffectClient talks to the remote diamond reflection service.
type EffectClient struct {
	endpoint string
	client   *resty.Client
}

// NewEffectClient creates a client for endpoint. A zero timeout waits for
// the service indefinitely.
func NewEffectClient(endpoint string, timeout time.Duration) *EffectClient {
	client := resty.New().SetLogger(restyLogger{})
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &EffectClient{
		endpoint: endpoint,
		client:   client,
	}
}

// Apply posts the image and parameters as multipart/form-data and returns
// the response body. Any non-2xx status is a failure.
func (e *EffectClient) Apply(ctx context.Context, img Upload, params Params) (ProcessedImage, error) {
	contentType := img.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	log.Ctx(ctx).Debug().
		Str("endpoint", e.endpoint).
		Str("filename", img.Filename).
		Int("bytes", len(img.Data)).
		Stringer("params", params).
		Msg("posting image to effect service")

	res, err := e.client.R().
		SetContext(ctx).
		SetMultipartField("image", img.Filename, contentType, bytes.NewReader(img.Data)).
		SetFormData(params.FormFields()).
		Post(e.endpoint)
	if err != nil {
		return ProcessedImage{}, fmt.Errorf("error executing effect request: %w", err)
	}

	if !res.IsSuccess() {
		return ProcessedImage{}, fmt.Errorf("%w: %d", ErrUnexpectedStatus, res.StatusCode())
	}

	resContentType := res.Header().Get("Content-Type")
	if resContentType == "" {
		resContentType = "image/png"
	}

	log.Ctx(ctx).Debug().
		Int("status", res.StatusCode()).
		Int("bytes", len(res.Body())).
		Dur("took", res.Time()).
		Msg("effect service responded")

	return ProcessedImage{
		ContentType: resContentType,
		Data:        res.Body(),
	}, nil
}

// restyLogger routes resty's own diagnostics through zerolog.
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...interface{}) {
	logf(zerolog.ErrorLevel, format, v...)
}

func (restyLogger) Warnf(format string, v ...interface{}) {
	logf(zerolog.WarnLevel, format, v...)
}

func (restyLogger) Debugf(format string, v ...interface{}) {
	logf(zerolog.DebugLevel, format, v...)
}

func logf(level zerolog.Level, format string, v ...interface{}) {
	log.WithLevel(level).Str("component", "resty").Msgf(format, v...)
}
