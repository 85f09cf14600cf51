package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func run() error {
	var args cliArgs
	cliCtx := kong.Parse(
		&args,
		kong.Name("diamondfx"),
		kong.Description("Apply the diamond reflection effect to images."),
		kong.UsageOnError(),
	)
	if err := cliCtx.Run(&args.Globals); err != nil {
		return err
	}

	return nil
}

type Globals struct {
	Config  string `help:"Path to a config file" type:"path"`
	Verbose bool   `help:"Enable verbose logging" default:"false"`
}

// setup loads configuration and returns a logging context that is cancelled
// on interrupt.
func (g *Globals) setup() (context.Context, context.CancelFunc, *AppConfig, error) {
	config, err := LoadConfig(g.Config)
	if err != nil {
		return nil, nil, nil, err
	}

	level, err := zerolog.ParseLevel(config.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if g.Verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.NewConsoleWriter()).Level(level)
	zerolog.DefaultContextLogger = &log.Logger

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	ctx = log.Logger.WithContext(ctx)

	return ctx, cancel, config, nil
}

type ParamFlags struct {
	DiamondSize  float64 `help:"Diamond size, 0 to 1 in steps of 0.1" default:"0.5"`
	EdgeSoftness float64 `help:"Edge softness, 0 to 100 in steps of 5" default:"20"`
	Rotation     float64 `help:"Rotation in degrees, 0 to 360 in steps of 15" default:"0"`
}

func (p ParamFlags) params() Params {
	return DefaultParams().Apply(ParamsPatch{
		DiamondSize:  &p.DiamondSize,
		EdgeSoftness: &p.EdgeSoftness,
		Rotation:     &p.Rotation,
	})
}

func newStudio(config *AppConfig, params Params) *Studio {
	return NewStudio(StudioConfig{
		Compressor:      NewImagingCompressor(),
		CompressOptions: config.Compression.Options(),
		Effect:          NewEffectClient(config.Effect.Endpoint, config.Effect.Timeout),
		Params:          params,
	})
}

type serveCmd struct {
	ParamFlags
	Open   bool   `help:"Open the browser automatically when the server starts" default:"true" negatable:""`
	Listen string `help:"Address to listen on, overrides server.listen"`
}

func (cmd *serveCmd) Run(g *Globals) error {
	ctx, cancel, config, err := g.setup()
	if err != nil {
		return err
	}
	defer cancel()

	listen := config.Server.Listen
	if cmd.Listen != "" {
		listen = cmd.Listen
	}

	app := NewWebApp(Config{
		Listen:    listen,
		BodyLimit: config.Server.BodyLimit,
		Studio:    newStudio(config, cmd.params()),
		OnBeforeShutdown: func() {
			log.Ctx(ctx).Info().Msg("Shutting down web application...")
		},
		OnReady: func(addr string) {
			log.Ctx(ctx).Info().Msgf("Server started at %s", addr)
			if cmd.Open {
				if err := openBrowser(addr); err != nil {
					log.Error().Err(err).Msg("Failed to open browser")
				}
			}
		},
	})

	if err := app.Run(ctx); err != nil {
		return err
	}

	return nil
}

type processCmd struct {
	ParamFlags
	File string `arg:"" help:"Image to process" type:"existingfile"`
	Out  string `help:"Where to write the result" short:"o" default:"processed_image.png"`
}

func (cmd *processCmd) Run(g *Globals) error {
	ctx, cancel, config, err := g.setup()
	if err != nil {
		return err
	}
	defer cancel()

	return processFile(ctx, newStudio(config, cmd.params()), cmd.File, cmd.Out)
}

type batchCmd struct {
	ParamFlags
	Paths       []string `arg:"" help:"Images or directories to process" type:"path"`
	Out         string   `help:"Output directory" short:"o" default:"output"`
	Concurrency int      `help:"Number of images processed at once, defaults to the number of CPUs"`
}

func (cmd *batchCmd) Run(g *Globals) error {
	ctx, cancel, config, err := g.setup()
	if err != nil {
		return err
	}
	defer cancel()

	files, err := collectImages(ctx, cmd.Paths)
	if err != nil {
		return err
	}

	params := cmd.params()
	executor := BatchExecutor{
		OutputDir:   cmd.Out,
		Concurrency: cmd.Concurrency,
		NewStudio: func() *Studio {
			return newStudio(config, params)
		},
	}
	return executor.Exec(ctx, files)
}

type cliArgs struct {
	Globals

	Serve   serveCmd   `cmd:"" default:"withargs" help:"Serve the editor page"`
	Process processCmd `cmd:"" help:"Process a single image"`
	Batch   batchCmd   `cmd:"" help:"Process many images"`
}
