package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/3-lines-studio/ssg/internal/adapters/bundler"
	"github.com/3-lines-studio/ssg/internal/adapters/cli"
	"github.com/3-lines-studio/ssg/internal/adapters/fs"
	"github.com/3-lines-studio/ssg/internal/config"
	"github.com/3-lines-studio/ssg/internal/core"
	"github.com/3-lines-studio/ssg/internal/postprocess"
)

type BuildInput struct {
	Config *config.Config
	// Publish receives every artifact in addition to the output directory.
	Publish Sink
	// BeforeTeardown runs once rendering is over, before the worker is
	// stopped and the temp directory is removed.
	BeforeTeardown func()
}

type BuildOutput struct {
	Success bool
	Error   error
	Pages   []PageArtifact
}

type BuildService struct {
	bundler     Bundler
	startWorker WorkerStarter
	fs          FileSystem
	cli         CLIOutput
	logger      *zap.Logger
}

func NewBuildService(bundler Bundler, startWorker WorkerStarter, fs FileSystem, cli CLIOutput, logger *zap.Logger) *BuildService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BuildService{
		bundler:     bundler,
		startWorker: startWorker,
		fs:          fs,
		cli:         cli,
		logger:      logger,
	}
}

func (s *BuildService) BuildProject(ctx context.Context, input BuildInput) BuildOutput {
	cfg := input.Config
	s.cli.PrintHeader("SSG Build")

	tempDir := filepath.Join(cfg.Root, bundler.TempDir)
	report := cli.NewBuildReport(s.cli, "")

	fail := func(step *cli.BuildStep, err error) BuildOutput {
		report.EndStep(step, false, err.Error())
		report.AddError(step.Name, err.Error(), nil)
		report.Render()
		return BuildOutput{Success: false, Error: err}
	}

	stepClean := report.StartStep("Cleaning temp directory")
	if err := s.fs.RemoveAll(tempDir); err != nil {
		return fail(stepClean, fmt.Errorf("failed to clean %s: %w", tempDir, err))
	}
	report.EndStep(stepClean, true, "")

	stepResolve := report.StartStep("Resolving vite config")
	project, err := s.bundler.Resolve(ctx, cfg.Mode, s.resolveEntry(cfg))
	if err != nil {
		return fail(stepResolve, err)
	}
	outDir, clientOutDir := project.OutDir, ""
	if cfg.OutDir != "" {
		outDir = cfg.OutPath()
		clientOutDir = outDir
	}
	report.SetOutputDir(outDir)
	report.EndStep(stepResolve, true, "")

	stepClient := report.StartStep("Build for client")
	if err := s.bundler.BuildClient(ctx, cfg.Mode, clientOutDir); err != nil {
		return fail(stepClient, err)
	}
	report.EndStep(stepClient, true, "")

	stepServer := report.StartStep("Build for server")
	entry, err := s.bundler.BuildServer(ctx, bundler.ServerBuild{
		Entry:  project.Entry,
		OutDir: tempDir,
		Format: cfg.Format,
		Mode:   cfg.Mode,
	})
	if err != nil {
		return fail(stepServer, err)
	}
	report.EndStep(stepServer, true, "")

	stepLoad := report.StartStep("Loading client build")
	shell, manifest, err := s.loadClientBuild(outDir)
	if err != nil {
		return fail(stepLoad, err)
	}
	shell = core.RewriteScripts(shell, cfg.Script)
	pipeline, err := s.pipeline(cfg, outDir)
	if err != nil {
		return fail(stepLoad, err)
	}
	report.EndStep(stepLoad, true, "")

	stepWorker := report.StartStep("Starting render worker")
	renderer, err := s.startWorker(ctx, entry)
	if err != nil {
		return fail(stepWorker, fmt.Errorf("failed to start render worker: %w", err))
	}
	defer func() {
		if err := renderer.Close(); err != nil {
			s.logger.Warn("failed to stop render worker", zap.Error(err))
		}
	}()
	beforeTeardown := sync.OnceFunc(func() {
		if input.BeforeTeardown != nil {
			input.BeforeTeardown()
		}
	})
	defer beforeTeardown()

	prerenderConfig, err := renderer.Setup(ctx)
	if err != nil {
		return fail(stepWorker, fmt.Errorf("setupPrerender failed: %w", err))
	}
	report.EndStep(stepWorker, true, "")

	var sink Sink = fs.NewDirSink(outDir, s.fs)
	if input.Publish != nil {
		sink = NewMultiSink(sink, input.Publish)
	}

	stepRender := report.StartStep("Rendering pages")
	out, runErr := NewPrerenderService(sink, s.logger).Run(ctx, PrerenderInput{
		Shell:       shell,
		Manifest:    manifest,
		Config:      prerenderConfig,
		Renderer:    renderer,
		Pipeline:    pipeline,
		Concurrency: cfg.Concurrency,
	})
	if runErr != nil {
		report.EndStep(stepRender, false, runErr.Error())
		reportErrors(report, runErr)
	} else {
		report.EndStep(stepRender, true, "")
	}
	beforeTeardown()

	if err := s.fs.RemoveAll(tempDir); err != nil {
		report.AddWarning("", "Failed to remove temp directory", []string{err.Error()})
	}

	report.SetPages(pageEntries(out.Pages))
	report.Render()

	return BuildOutput{
		Success: runErr == nil,
		Error:   runErr,
		Pages:   out.Pages,
	}
}

func (s *BuildService) resolveEntry(cfg *config.Config) string {
	if cfg.Entry != "" {
		return cfg.Entry
	}

	indexHTML, err := s.fs.ReadFile(filepath.Join(cfg.Root, bundler.ShellFile))
	if err != nil {
		s.logger.Debug("no project index.html, using default entry", zap.Error(err))
		return core.DefaultEntry
	}
	return core.DetectEntry(string(indexHTML))
}

func (s *BuildService) loadClientBuild(outDir string) (string, core.SSRManifest, error) {
	shellPath := filepath.Join(outDir, bundler.ShellFile)
	shell, err := s.fs.ReadFile(shellPath)
	if err != nil {
		return "", nil, core.ConfigError("missing client shell %s: %v", shellPath, err)
	}

	manifestPath := filepath.Join(outDir, bundler.ManifestFile)
	data, err := s.fs.ReadFile(manifestPath)
	if err != nil {
		return "", nil, core.ConfigError("missing ssr manifest %s: %v", manifestPath, err)
	}

	manifest, err := core.ParseSSRManifest(data)
	if err != nil {
		return "", nil, core.ConfigError("invalid ssr manifest %s: %v", manifestPath, err)
	}
	return string(shell), manifest, nil
}

// pipeline builds the post-processing stages. A critical CSS inliner that
// cannot be constructed is left out.
func (s *BuildService) pipeline(cfg *config.Config, outDir string) (postprocess.Pipeline, error) {
	formatter, err := postprocess.NewFormatter(cfg.Formatting)
	if err != nil {
		return postprocess.Pipeline{}, err
	}

	p := postprocess.Pipeline{Formatter: formatter}
	if !cfg.Critical.Enabled {
		return p, nil
	}

	critical, err := postprocess.NewCriticalInliner(outDir, cfg.Critical.Options(), s.logger)
	if err != nil {
		s.logger.Debug("critical css disabled", zap.Error(err))
		return p, nil
	}
	p.Critical = critical
	s.cli.PrintStep("%s", s.cli.Gray("Critical CSS inlining enabled"))
	return p, nil
}

func reportErrors(report *cli.BuildReport, err error) {
	for _, e := range multierr.Errors(err) {
		var routeErr *core.RouteError
		if !errors.As(e, &routeErr) {
			report.AddError("", e.Error(), nil)
			continue
		}

		message := routeErr.Err.Error()
		var details []string
		var renderErr *core.RenderError
		if errors.As(routeErr.Err, &renderErr) {
			message = renderErr.Message
			for _, line := range strings.Split(renderErr.Stack, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					details = append(details, line)
				}
			}
		}
		report.AddError(routeErr.Route, message, details)
	}
}

func pageEntries(pages []PageArtifact) []cli.PageEntry {
	entries := make([]cli.PageEntry, len(pages))
	for i, p := range pages {
		entries[i] = cli.PageEntry{Route: p.Route, File: p.File, Size: p.Size}
	}
	return entries
}
