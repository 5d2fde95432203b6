package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/tokenrelay/internal/app"
	"github.com/florianilch/tokenrelay/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	return newRootCommand().Run(ctx, args)
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "tokenrelay",
		Usage: "Attach and harvest API tokens for HTTP clients",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "log-exporter",
				Usage: "OpenTelemetry log exporter (stdout|otlp-grpc|otlp-http)",
			},
			&cli.StringFlag{
				Name:  "storage--type",
				Usage: "token storage (file|env|keyring|redis|memory)",
			},
		},
		Commands: []*cli.Command{
			proxyCommand(),
			requestCommand(),
			tokensCommand(),
		},
	}
}

// setup loads configuration and installs logging. The returned function
// flushes the log pipeline.
func setup(ctx context.Context, cmd *cli.Command) (*app.Config, func(context.Context) error, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	shutdown, err := observability.Instrument(ctx, observability.Options{
		Level:    cfg.LogLevel,
		Format:   string(cfg.LogFormat),
		Exporter: cfg.LogExporter,
		Writer:   cmd.Root().ErrWriter,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	return cfg, shutdown, nil
}

// withApp runs fn against a fully wired application and releases it afterwards.
func withApp(ctx context.Context, cmd *cli.Command, fn func(*app.App) error) (err error) {
	cfg, shutdown, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if serr := shutdown(context.WithoutCancel(ctx)); serr != nil {
			slog.WarnContext(ctx, "failed to flush logs", "error", serr)
		}
	}()

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Shutdown.Timeout)
		defer cancel()
		if cerr := application.Close(closeCtx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return fn(application)
}
