package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/rs/zerolog/log"
)

//go:embed static
var staticFS embed.FS
var isDebug = os.Getenv("DEBUG") == "1"

const defaultBodyLimit = 50 << 20

type Config struct {
	Listen           string
	BodyLimit        int
	Studio           *Studio
	OnBeforeShutdown func()
	OnReady          func(addr string)
}

type WebApp struct {
	config       Config
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

func NewWebApp(config Config) *WebApp {
	if config.Listen == "" {
		config.Listen = "localhost:0"
	}
	if config.BodyLimit <= 0 {
		config.BodyLimit = defaultBodyLimit
	}
	return &WebApp{
		config:     config,
		shutdownCh: make(chan struct{}),
	}
}

func (a *WebApp) Shutdown() {
	a.shutdownOnce.Do(func() {
		close(a.shutdownCh)
	})
}

func (a *WebApp) Run(ctx context.Context) error {
	webapp := a.newServer(ctx)

	webapp.Hooks().OnListen(func(listen fiber.ListenData) error {
		if fn := a.config.OnReady; fn != nil {
			fn(fmt.Sprintf("http://%s:%s", listen.Host, listen.Port))
		}
		return nil
	})

	go func() {
		select {
		case <-ctx.Done():
		case <-a.shutdownCh:
		}
		if fn := a.config.OnBeforeShutdown; fn != nil {
			fn()
		}
		if err := webapp.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("Failed to shutdown web application")
		}
	}()

	listener, err := net.Listen("tcp", a.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	if err := webapp.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// newServer builds the fiber app. Studio operations run on ctx rather than
// on the request so that a closed tab does not abort a submission.
func (a *WebApp) newServer(ctx context.Context) *fiber.App {
	studio := a.config.Studio

	webapp := fiber.New(fiber.Config{
		Immutable:             true,
		DisableStartupMessage: true,
		BodyLimit:             a.config.BodyLimit,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Ctx(ctx).Error().
				Err(err).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Msg("Request failed")
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				if fiberErr.Code == http.StatusNotFound && c.Path() == "/favicon.ico" {
					return nil
				}
				return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
			}
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
		},
	})

	webapp.Get("/api/state", func(c *fiber.Ctx) error {
		return c.JSON(studio.Snapshot())
	})

	webapp.Post("/api/image", func(c *fiber.Ctx) error {
		fh, err := c.FormFile("image")
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "missing image file")
		}
		f, err := fh.Open()
		if err != nil {
			return fmt.Errorf("failed to open upload: %w", err)
		}
		defer f.Close()

		err = studio.Upload(ctx, fh.Filename, fh.Header.Get("Content-Type"), f)
		switch {
		case errors.Is(err, ErrNotAnImage):
			return fiber.NewError(http.StatusUnsupportedMediaType, err.Error())
		case err != nil:
			return c.Status(http.StatusUnprocessableEntity).JSON(studio.Snapshot())
		}
		return c.JSON(studio.Snapshot())
	})

	webapp.Get("/api/image", func(c *fiber.Ctx) error {
		img, ok := studio.Image()
		if !ok {
			return fiber.NewError(http.StatusNotFound, "no image selected")
		}
		c.Set(fiber.HeaderContentType, img.ContentType)
		return c.Send(img.Data)
	})

	webapp.Put("/api/params", func(c *fiber.Ctx) error {
		var patch ParamsPatch
		if err := c.BodyParser(&patch); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		studio.SetParams(patch)
		return c.JSON(studio.Snapshot())
	})

	// The page sends the slider positions along with the submit so a
	// parameter update still in flight cannot be overtaken.
	webapp.Post("/api/submit", func(c *fiber.Ctx) error {
		var patch ParamsPatch
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&patch); err != nil {
				return fiber.NewError(http.StatusBadRequest, err.Error())
			}
		}

		_, err := studio.SubmitWith(ctx, patch)
		switch {
		case errors.Is(err, ErrSubmissionInFlight):
			return fiber.NewError(http.StatusConflict, err.Error())
		case err != nil:
			return c.Status(http.StatusBadGateway).JSON(studio.Snapshot())
		}
		return c.JSON(studio.Snapshot())
	})

	webapp.Get("/api/result/:id", func(c *fiber.Ctx) error {
		result, ok := studio.Result(c.Params("id"))
		if !ok {
			return fiber.NewError(http.StatusNotFound, "no such result")
		}
		c.Set(fiber.HeaderContentType, result.ContentType)
		return c.Send(result.Data)
	})

	webapp.Get("/api/download", func(c *fiber.Ctx) error {
		filename, r, ok := studio.Download()
		if !ok {
			return fiber.NewError(http.StatusNotFound, "nothing to download")
		}
		c.Attachment(filename)
		return c.SendStream(r)
	})

	webapp.Post("/api/shutdown", func(c *fiber.Ctx) error {
		a.Shutdown()
		return nil
	})

	if isDebug {
		log.Debug().Msg("Debug mode enabled, serving static files from './static' directory")
		webapp.Static("/", "static")
	} else {
		log.Debug().Msg("Serving static files from embedded filesystem")
		webapp.Use("/", filesystem.New(filesystem.Config{
			Root:       http.FS(staticFS),
			PathPrefix: "/static",
		}))
	}

	return webapp
}
