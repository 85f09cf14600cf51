package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

// BatchExecutor runs files through the effect service, one studio per file.
type BatchExecutor struct {
	OutputDir   string
	Concurrency int
	NewStudio   func() *Studio
}

func (b BatchExecutor) Exec(ctx context.Context, files []string) error {
	if len(files) == 0 {
		log.Ctx(ctx).Warn().Msg("no images to process")
		return nil
	}

	workers := b.Concurrency
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	pooler := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(workers)

	if err := os.MkdirAll(b.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", b.OutputDir, err)
	}
	for _, file := range files {
		file := file // per-iteration copy for the goroutine below (pre-Go 1.22 loop semantics)
		pooler.Go(func(ctx context.Context) error {
			dst := filepath.Join(b.OutputDir, processedName(file))
			if err := processFile(ctx, b.NewStudio(), file, dst); err != nil {
				log.Ctx(ctx).Error().Err(err).
					Str("filename", file).
					Msg("failed to process image")
				return err
			}
			return nil
		})
	}

	if err := pooler.Wait(); err != nil {
		log.Ctx(ctx).Error().
			Err(err).
			Msg("finished with errors")
		return err
	}

	return nil
}

func processedName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "-processed.png"
}

// processFile drives a studio the way the page does: upload, submit, download.
func processFile(ctx context.Context, studio *Studio, src, dst string) error {
	log.Ctx(ctx).Info().Str("filename", src).Msg("processing")

	contentType, err := imageContentType(src)
	if err != nil {
		return err
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", src, err)
	}
	defer f.Close()

	if err := studio.Upload(ctx, filepath.Base(src), contentType, f); err != nil {
		return err
	}

	submitted, err := studio.Submit(ctx)
	if err != nil {
		return err
	}
	if !submitted {
		return errors.New("no image selected")
	}

	_, r, ok := studio.Download()
	if !ok {
		return errors.New("no result to download")
	}

	if err := writeResult(dst, r); err != nil {
		return err
	}

	log.Ctx(ctx).Info().Str("filename", src).Str("output", dst).Msg("saved result")
	return nil
}

// writeResult copies r into dst. A partially written dst is removed.
func writeResult(dst string, r io.Reader) error {
	wf, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create result file %s: %w", dst, err)
	}

	_, err = io.Copy(wf, r)
	if closeErr := wf.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		if rmErr := os.Remove(dst); rmErr != nil {
			log.Warn().Err(rmErr).Str("path", dst).Msg("could not clean up partial result")
		}
		return fmt.Errorf("failed to write result to file %s: %w", dst, err)
	}
	return nil
}
