package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Jonathanamir1/mixedbyyonatan/internal/config"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/logging"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg)
	defer log.Sync()

	serveFlags := func() []cli.Flag {
		return []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address (overrides DMS_ADDR)"},
		}
	}
	serveAction := func(ctx context.Context, cmd *cli.Command) error {
		if addr := cmd.String("addr"); addr != "" {
			cfg.HTTPAddr = addr
		}
		return runServe(ctx, cfg, log)
	}

	app := &cli.Command{
		Name:  "mixedbyyonatan",
		Usage: "Track submission intake for the mixing service",
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if err := cfg.Validate(); err != nil {
				return ctx, fmt.Errorf("invalid configuration: %w", err)
			}
			return ctx, nil
		},
		// Running without a subcommand serves.
		Flags:  serveFlags(),
		Action: serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP API",
				Flags:  serveFlags(),
				Action: serveAction,
			},
			{
				Name:  "init",
				Usage: "Create indexes and the blob bucket, seed the admin account, then exit",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runInit(ctx, cfg, log)
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal("application error", zap.Error(err))
	}
}
