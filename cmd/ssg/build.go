package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3-lines-studio/ssg/internal/adapters/bundler"
	"github.com/3-lines-studio/ssg/internal/adapters/cli"
	"github.com/3-lines-studio/ssg/internal/adapters/fs"
	"github.com/3-lines-studio/ssg/internal/adapters/objectstore"
	"github.com/3-lines-studio/ssg/internal/adapters/process"
	"github.com/3-lines-studio/ssg/internal/config"
	"github.com/3-lines-studio/ssg/internal/logging"
	"github.com/3-lines-studio/ssg/internal/usecase"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Build the client and server bundles and prerender every route",
	RunE:    runBuild,
}

func init() {
	flags := buildCmd.Flags()
	flags.String("script", "sync", "module script loading: sync, async, defer, async defer")
	flags.String("format", "esm", "server bundle format: esm, cjs")
	flags.String("formatting", "", "page formatting: minify, prettify, none (default minify in production)")
	flags.String("mode", "", "vite mode (default MODE, NODE_ENV or production)")
	flags.String("out-dir", "", "client build output directory (default vite build.outDir)")
	flags.Int("concurrency", 20, "routes rendered at the same time")
	flags.Bool("critical", true, "inline critical CSS")
	flags.String("critical-preload", "media", "stylesheet loading after inlining: media, swap, body, none")
	flags.String("publish-endpoint", "", "S3-compatible endpoint to publish pages to")
	flags.String("publish-bucket", "", "bucket to publish pages to")
	flags.String("publish-prefix", "", "object key prefix for published pages")

	bindFlag(flags, "script", "script")
	bindFlag(flags, "format", "format")
	bindFlag(flags, "formatting", "formatting")
	bindFlag(flags, "mode", "mode")
	bindFlag(flags, "outDir", "out-dir")
	bindFlag(flags, "concurrency", "concurrency")
	bindFlag(flags, "critical.enabled", "critical")
	bindFlag(flags, "critical.preload", "critical-preload")
	bindFlag(flags, "publish.endpoint", "publish-endpoint")
	bindFlag(flags, "publish.bucket", "publish-bucket")
	bindFlag(flags, "publish.prefix", "publish-prefix")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return fmt.Errorf("failed to resolve root: %w", err)
	}
	cfg.Root = root

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var publish usecase.Sink
	if store := cfg.Publish.ObjectStore(); store.Enabled() {
		sink, err := objectstore.NewSink(ctx, store)
		if err != nil {
			return fmt.Errorf("failed to connect to publish target: %w", err)
		}
		publish = sink
	}

	output := cli.NewOutput()
	vite := &bundler.Vite{
		Root:   cfg.Root,
		Node:   []string{cfg.Runtime},
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Logger: logger,
	}

	service := usecase.NewBuildService(vite, workerStarter(cfg, logger), fs.NewOSFileSystem(), output, logger)
	result := service.BuildProject(ctx, usecase.BuildInput{
		Config:  cfg,
		Publish: publish,
		// Exit if worker teardown outlives the grace period.
		BeforeTeardown: func() {
			process.ArmWatchdog(process.DefaultWatchdogGrace, logger, os.Exit)
		},
	})

	if result.Error != nil {
		return errBuildFailed
	}
	output.PrintDone("Build completed successfully")
	return nil
}

func workerStarter(cfg *config.Config, logger *zap.Logger) usecase.WorkerStarter {
	return func(ctx context.Context, entry string) (usecase.Renderer, error) {
		loader, err := process.LoaderFor(cfg.Format)
		if err != nil {
			return nil, err
		}

		w, err := process.StartWorker(ctx, process.WorkerConfig{
			Runtime: cfg.Runtime,
			Entry:   entry,
			Loader:  loader,
			Env:     []string{bundler.BuildMarkerEnv + "=true"},
			Stdout:  os.Stdout,
			Stderr:  os.Stderr,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}
