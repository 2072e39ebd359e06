package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/3-lines-studio/ssg/internal/core"
	"github.com/3-lines-studio/ssg/internal/page"
	"github.com/3-lines-studio/ssg/internal/postprocess"
	"github.com/3-lines-studio/ssg/internal/queue"
)

type PrerenderInput struct {
	Shell       string
	Manifest    core.SSRManifest
	Config      core.PrerenderConfig
	Renderer    Renderer
	Pipeline    postprocess.Pipeline
	Concurrency int
}

type PageArtifact struct {
	Route string
	File  string
	Size  int
}

type PrerenderOutput struct {
	Pages  []PageArtifact
	Routes []string
	Hashes []string
}

type PrerenderService struct {
	sink   Sink
	logger *zap.Logger
}

func NewPrerenderService(sink Sink, logger *zap.Logger) *PrerenderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrerenderService{sink: sink, logger: logger}
}

// prerenderRun holds the state shared by the tasks of one Run.
type prerenderRun struct {
	svc       *PrerenderService
	cfg       core.PrerenderConfig
	renderer  Renderer
	assembler *page.Assembler
	pipeline  postprocess.Pipeline
	hashes    *core.HashSet // nil unless a CSP file is configured

	mu     sync.Mutex
	claims map[string]string
	pages  []PageArtifact
}

// Run renders every configured route and every route discovered while
// rendering, then writes the CSP and rewrite files. The returned error
// combines all route failures; pages that succeeded are still written.
func (s *PrerenderService) Run(ctx context.Context, in PrerenderInput) (PrerenderOutput, error) {
	if in.Renderer == nil {
		return PrerenderOutput{}, core.ConfigError("renderer is required")
	}

	cfg := in.Config.WithDefaults()
	if err := validateConfig(cfg); err != nil {
		return PrerenderOutput{}, err
	}

	pipeline := in.Pipeline
	var hashes *core.HashSet
	if cfg.CSP != nil {
		hashes = core.NewHashSet()
		if pipeline.Critical != nil && pipeline.Critical.UsesInlineHandlers() {
			s.logger.Warn("csp blocks inline onload handlers, deferring stylesheets to the end of body",
				zap.String("preload", pipeline.Critical.Preload()),
			)
			pipeline.Critical = pipeline.Critical.WithPreload(postprocess.PreloadBody)
		}
	}

	run := &prerenderRun{
		svc:       s,
		cfg:       cfg,
		renderer:  in.Renderer,
		assembler: page.NewAssembler(in.Shell, in.Manifest),
		pipeline:  pipeline,
		hashes:    hashes,
		claims:    make(map[string]string),
	}

	q := queue.New(ctx, in.Concurrency, run.renderRoute, queue.WithLogger(s.logger))
	q.Add(cfg.Routes...)
	err := q.Wait()

	out := PrerenderOutput{
		Pages:  run.sortedPages(),
		Routes: q.Routes(),
	}
	if hashes != nil {
		out.Hashes = hashes.Sorted()
	}

	err = multierr.Append(err, s.writeCSP(ctx, cfg.CSP, out.Hashes))
	err = multierr.Append(err, s.writeRewrites(ctx, cfg.Rewrites, out.Routes))
	return out, err
}

func validateConfig(cfg core.PrerenderConfig) error {
	for _, route := range cfg.Routes {
		if err := core.ValidateRoutePath(route); err != nil {
			return core.ConfigError("route %q: %v", route, err)
		}
	}
	switch cfg.DirStyle {
	case core.DirStyleFlat, core.DirStyleNested:
	default:
		return core.ConfigError("unknown dirStyle %q", cfg.DirStyle)
	}
	if cfg.Rewrites != nil {
		if err := core.ValidateRewrites(cfg.Rewrites.Rules); err != nil {
			return core.ConfigError("%v", err)
		}
	}
	return nil
}

func (r *prerenderRun) renderRoute(ctx context.Context, route string) ([]string, error) {
	start := time.Now()

	result, err := r.renderer.Render(ctx, route)
	if err != nil {
		return nil, err
	}

	for _, discovered := range result.Routes {
		if err := core.ValidateRoutePath(discovered); err != nil {
			return nil, fmt.Errorf("discovered route %q: %w", discovered, err)
		}
	}

	html, err := r.assembler.Assemble(r.cfg.Root, result)
	if err != nil {
		return nil, err
	}

	html, err = r.pipeline.Process(html)
	if err != nil {
		return nil, fmt.Errorf("post-processing failed: %w", err)
	}

	if r.hashes != nil {
		if err := page.HashInlineScripts(html, r.hashes); err != nil {
			return nil, err
		}
	}

	file := core.OutputFile(route, r.cfg.DirStyle)
	if err := r.claim(file, route); err != nil {
		return nil, err
	}

	if err := r.svc.sink.WriteFile(ctx, file, []byte(html)); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.pages = append(r.pages, PageArtifact{Route: route, File: file, Size: len(html)})
	r.mu.Unlock()

	r.svc.logger.Debug("page written",
		zap.String("route", route),
		zap.String("file", file),
		zap.Duration("duration", time.Since(start)),
	)
	return result.Routes, nil
}

// claim reserves file for route. Two routes writing the same file is an
// error for the later one.
func (r *prerenderRun) claim(file, route string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.claims[file]; ok {
		return fmt.Errorf("%w: %s is already written by route %s", core.ErrDuplicateOutput, file, owner)
	}
	r.claims[file] = route
	return nil
}

func (r *prerenderRun) sortedPages() []PageArtifact {
	r.mu.Lock()
	defer r.mu.Unlock()

	pages := append([]PageArtifact(nil), r.pages...)
	sort.Slice(pages, func(i, j int) bool { return pages[i].File < pages[j].File })
	return pages
}

func (s *PrerenderService) writeCSP(ctx context.Context, cfg *core.CSPConfig, hashes []string) error {
	if cfg == nil {
		return nil
	}

	content, err := core.RenderCSP(*cfg, hashes)
	if errors.Is(err, core.ErrUnsupportedCSP) {
		s.logger.Warn("skipping csp file", zap.String("file", cfg.FileName), zap.Error(err))
		return nil
	}
	if err != nil {
		return err
	}
	if cfg.FileName == "" {
		return core.ConfigError("csp fileName is required")
	}

	if err := s.sink.WriteFile(ctx, cfg.FileName, []byte(content)); err != nil {
		return fmt.Errorf("failed to write csp file: %w", err)
	}
	return nil
}

func (s *PrerenderService) writeRewrites(ctx context.Context, cfg *core.RewriteConfig, routes []string) error {
	if cfg == nil || cfg.FileName == "" {
		return nil
	}

	content, err := core.EvaluateRewrites(routes, cfg.Rules)
	if err != nil {
		return err
	}

	if err := s.sink.WriteFile(ctx, cfg.FileName, []byte(content)); err != nil {
		return fmt.Errorf("failed to write rewrites file: %w", err)
	}
	return nil
}
