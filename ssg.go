// Package ssg prerenders a client-rendered single-page application into
// static HTML pages.
//
// Most users drive it through the ssg command, which bundles the project
// with vite and renders routes in a node worker. Prerender is the library
// entry point for callers that already have a client build and can render
// routes themselves, for example from Go.
package ssg

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/3-lines-studio/ssg/internal/adapters/fs"
	"github.com/3-lines-studio/ssg/internal/core"
	"github.com/3-lines-studio/ssg/internal/postprocess"
	"github.com/3-lines-studio/ssg/internal/usecase"
)

type (
	RenderResult  = core.RenderResult
	HeadMetadata  = core.HeadMetadata
	HeadElement   = core.HeadElement
	Config        = core.PrerenderConfig
	CSPConfig     = core.CSPConfig
	RewriteConfig = core.RewriteConfig
	RewriteRule   = core.RewriteRule
	DirStyle      = core.DirStyle
	Formatting    = core.Formatting

	RouteError       = core.RouteError
	RenderError      = core.RenderError
	MissingRootError = core.MissingRootError

	Renderer = usecase.Renderer
	Page     = usecase.PageArtifact

	CriticalOptions = postprocess.CriticalOptions
)

const (
	DirStyleNested = core.DirStyleNested
	DirStyleFlat   = core.DirStyleFlat

	FormattingMinify   = core.FormattingMinify
	FormattingPrettify = core.FormattingPrettify
	FormattingNone     = core.FormattingNone

	InlineScriptHashes = core.InlineScriptHashesKey
)

var (
	ErrConfig          = core.ErrConfig
	ErrTransport       = core.ErrTransport
	ErrDuplicateOutput = core.ErrDuplicateOutput
)

// RenderFunc renders one route. It is called concurrently.
type RenderFunc func(ctx context.Context, route string) (RenderResult, error)

// SetupFunc returns the prerender configuration once per build.
type SetupFunc func(ctx context.Context) (Config, error)

// FuncRenderer renders routes in process with Go callbacks.
type FuncRenderer struct {
	render RenderFunc
	setup  SetupFunc
}

// NewFuncRenderer wraps render and an optional setup.
func NewFuncRenderer(render RenderFunc, setup SetupFunc) *FuncRenderer {
	return &FuncRenderer{render: render, setup: setup}
}

func (r *FuncRenderer) Setup(ctx context.Context) (Config, error) {
	if r.setup == nil {
		return Config{}, nil
	}
	return r.setup(ctx)
}

func (r *FuncRenderer) Render(ctx context.Context, route string) (RenderResult, error) {
	return r.render(ctx, route)
}

func (r *FuncRenderer) Close() error {
	return nil
}

type Options struct {
	// Shell is the client index.html.
	Shell string
	// Manifest is the parsed ssr-manifest.json, used for preload links.
	Manifest map[string][]string
	// OutDir receives the pages. Stylesheets for critical CSS are read
	// from it too.
	OutDir      string
	Formatting  Formatting
	Critical    *CriticalOptions
	Concurrency int
	Logger      *zap.Logger
}

type Result struct {
	Pages  []Page
	Routes []string
	Hashes []string
}

// Prerender asks renderer for its configuration, renders every route into
// opts.OutDir and closes renderer. Pages that rendered are written even
// when others fail; the error then lists each failed route.
func Prerender(ctx context.Context, renderer Renderer, opts Options) (Result, error) {
	if renderer == nil {
		return Result{}, core.ConfigError("renderer is required")
	}
	defer renderer.Close()

	if opts.OutDir == "" {
		return Result{}, core.ConfigError("output directory is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := renderer.Setup(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("setup failed: %w", err)
	}

	formatter, err := postprocess.NewFormatter(opts.Formatting)
	if err != nil {
		return Result{}, err
	}
	pipeline := postprocess.Pipeline{Formatter: formatter}

	osfs := fs.NewOSFileSystem()
	if err := osfs.MkdirAll(opts.OutDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("failed to create %s: %w", opts.OutDir, err)
	}

	if opts.Critical != nil {
		critical, err := postprocess.NewCriticalInliner(opts.OutDir, *opts.Critical, logger)
		if err != nil {
			logger.Debug("critical css disabled", zap.Error(err))
		} else {
			pipeline.Critical = critical
		}
	}

	out, err := usecase.NewPrerenderService(fs.NewDirSink(opts.OutDir, osfs), logger).Run(ctx, usecase.PrerenderInput{
		Shell:       opts.Shell,
		Manifest:    opts.Manifest,
		Config:      cfg,
		Renderer:    renderer,
		Pipeline:    pipeline,
		Concurrency: opts.Concurrency,
	})
	return Result{Pages: out.Pages, Routes: out.Routes, Hashes: out.Hashes}, err
}
