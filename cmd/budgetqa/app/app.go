// Package app provides the budgetqa command line application.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kart-io/budgetqa/cmd/budgetqa/app/options"
	"github.com/kart-io/budgetqa/pkg/infra/app"
)

const (
	// Name is the name of the application.
	Name = "budgetqa"

	commandDesc = `Budget document question answering service.

Ingests budget PDFs into a vector store and answers questions about them
with cited sources. Also exposes an income tax calculator for the new and
old regimes.`

	serveDesc = `Start the HTTP API.

Endpoints:
  POST /api/v1/chat             question answering with sources
  GET  /api/v1/search           semantic chunk search
  POST /api/v1/calculate-tax    income tax under one regime
  POST /api/v1/compare-regimes  new versus old regime
  GET  /api/v1/tax-slabs        slab tables
  GET  /api/v1/allocations      budget allocation figures
  GET  /health                  component health
  GET  /metrics                 Prometheus metrics`

	ingestDesc = `Extract, chunk, tag, embed and store the PDFs of an input directory.

Prints a JSON summary of the run on stdout.`
)

// NewApp creates the root command with the serve and ingest sub commands.
func NewApp() *app.App {
	return app.NewApp(
		app.WithName(Name),
		app.WithShortDescription("Budget document question answering"),
		app.WithDescription(commandDesc),
		app.WithNoConfig(),
		app.WithCommands(newServeApp(), newIngestApp()),
	)
}

func newServeApp() *app.App {
	opts := options.NewServerOptions()
	return app.NewApp(
		app.WithName("serve"),
		app.WithShortDescription("Start the HTTP API"),
		app.WithDescription(serveDesc),
		app.WithOptions(opts),
		app.WithArgs(cobra.NoArgs),
		app.WithRunFunc(runServe(opts)),
	)
}

func newIngestApp() *app.App {
	opts := options.NewIngestOptions()
	return app.NewApp(
		app.WithName("ingest"),
		app.WithShortDescription("Ingest budget PDFs"),
		app.WithDescription(ingestDesc),
		app.WithOptions(opts),
		app.WithArgs(cobra.NoArgs),
		app.WithRunFunc(runIngest(opts)),
	)
}

// runServe contains the main logic for initializing and running the server.
func runServe(opts *options.ServerOptions) app.RunFunc {
	return func() error {
		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ctx := setupSignalContext()

		server, err := cfg.NewServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		// Run the server with signal context for graceful shutdown
		return server.Run(ctx)
	}
}

func runIngest(opts *options.IngestOptions) app.RunFunc {
	return func() error {
		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg.Output = os.Stdout

		_, err = cfg.RunIngest(setupSignalContext())
		return err
	}
}

// setupSignalContext returns a context that is cancelled on SIGINT or SIGTERM.
// A second signal exits immediately.
func setupSignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
		<-c
		os.Exit(1)
	}()
	return ctx
}
