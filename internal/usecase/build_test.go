package usecase

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/3-lines-studio/ssg/internal/adapters/bundler"
	"github.com/3-lines-studio/ssg/internal/adapters/cli"
	"github.com/3-lines-studio/ssg/internal/adapters/fs"
	"github.com/3-lines-studio/ssg/internal/config"
	"github.com/3-lines-studio/ssg/internal/core"
)

type fakeBundler struct {
	fs          *fs.MemFileSystem
	outDir      string
	aliases     map[string]string
	skipOutputs bool

	resolvedEntry string
	clientMode    string
	clientOutDir  string
	server        bundler.ServerBuild
}

func (b *fakeBundler) Resolve(ctx context.Context, mode, entry string) (bundler.Project, error) {
	b.resolvedEntry = entry
	resolved := filepath.Join("/proj", entry)
	if alias, ok := b.aliases[entry]; ok {
		resolved = alias
	}
	return bundler.Project{Root: "/proj", OutDir: b.outDir, Entry: resolved}, nil
}

func (b *fakeBundler) BuildClient(ctx context.Context, mode, outDir string) error {
	b.clientMode = mode
	b.clientOutDir = outDir
	if b.skipOutputs {
		return nil
	}
	if outDir == "" {
		outDir = b.outDir
	}
	_ = b.fs.WriteFile(filepath.Join(outDir, "index.html"), []byte(testShell), 0o644)
	_ = b.fs.WriteFile(filepath.Join(outDir, "ssr-manifest.json"), []byte(`{"src/App.vue":["/assets/App.js"]}`), 0o644)
	return nil
}

func (b *fakeBundler) BuildServer(ctx context.Context, build bundler.ServerBuild) (string, error) {
	b.server = build
	return filepath.Join(build.OutDir, bundler.BuiltEntryName(build.Entry, build.Format)), nil
}

type buildFixture struct {
	fs       *fs.MemFileSystem
	bundler  *fakeBundler
	renderer *fakeRenderer
	entry    string
	out      *bytes.Buffer
	errOut   *bytes.Buffer
	service  *BuildService
	config   *config.Config
}

func newBuildFixture() *buildFixture {
	mem := fs.NewMemFileSystem()
	f := &buildFixture{
		fs:       mem,
		bundler:  &fakeBundler{fs: mem, outDir: "/proj/dist"},
		renderer: &fakeRenderer{config: core.PrerenderConfig{Routes: []string{"/", "/about"}}},
		out:      &bytes.Buffer{},
		errOut:   &bytes.Buffer{},
		config: &config.Config{
			Root:        "/proj",
			Script:      core.ScriptAsync,
			Format:      core.FormatESM,
			Formatting:  core.FormattingNone,
			Mode:        "production",
			Concurrency: 2,
			Runtime:     "node",
			LogLevel:    "warn",
			Critical:    config.CriticalConfig{Enabled: true, Preload: "media"},
		},
	}

	start := func(ctx context.Context, entry string) (Renderer, error) {
		f.entry = entry
		return f.renderer, nil
	}
	f.service = NewBuildService(f.bundler, start, mem, cli.NewWriterOutput(f.out, f.errOut), zap.NewNop())
	return f
}

func TestBuildProject(t *testing.T) {
	f := newBuildFixture()
	require.NoError(t, f.fs.WriteFile("/proj/index.html", []byte(`<script type="module" src="/src/entry.ts"></script>`), 0o644))
	require.NoError(t, f.fs.WriteFile("/proj/.ssg-temp/stale.mjs", []byte("old"), 0o644))

	out := f.service.BuildProject(context.Background(), BuildInput{Config: f.config})
	require.NoError(t, out.Error)
	assert.True(t, out.Success)

	assert.Equal(t, "production", f.bundler.clientMode)
	assert.Empty(t, f.bundler.clientOutDir)
	assert.Equal(t, "src/entry.ts", f.bundler.resolvedEntry)
	assert.Equal(t, bundler.ServerBuild{
		Entry:  filepath.Join("/proj", "src/entry.ts"),
		OutDir: filepath.Join("/proj", ".ssg-temp"),
		Format: core.FormatESM,
		Mode:   "production",
	}, f.bundler.server)
	assert.Equal(t, filepath.Join("/proj", ".ssg-temp", "entry.mjs"), f.entry)
	assert.True(t, f.renderer.closed)

	assert.Equal(t, []string{
		"/proj/dist/about/index.html",
		"/proj/dist/index.html",
		"/proj/dist/ssr-manifest.json",
		"/proj/index.html",
	}, f.fs.Files())

	page, err := f.fs.ReadFile("/proj/dist/about/index.html")
	require.NoError(t, err)
	assert.Contains(t, string(page), `<script type="module" async="" src="/assets/index.js">`)
	assert.Contains(t, string(page), `<div id="app" data-ssg="true"><p>/about</p></div>`)

	assert.Len(t, out.Pages, 2)
	assert.Contains(t, f.out.String(), "2 pages prerendered")
	assert.Contains(t, f.out.String(), "about/index.html")
	assert.Contains(t, f.out.String(), "Output: /proj/dist")
}

func TestBuildProjectUsesViteOutDir(t *testing.T) {
	f := newBuildFixture()
	f.bundler.outDir = "/proj/build/client"

	out := f.service.BuildProject(context.Background(), BuildInput{Config: f.config})
	require.NoError(t, out.Error)
	assert.True(t, f.fs.FileExists("/proj/build/client/about/index.html"))
	assert.Contains(t, f.out.String(), "Output: /proj/build/client")
}

func TestBuildProjectOutDirOverride(t *testing.T) {
	f := newBuildFixture()
	f.config.OutDir = "public"

	out := f.service.BuildProject(context.Background(), BuildInput{Config: f.config})
	require.NoError(t, out.Error)
	assert.Equal(t, filepath.Join("/proj", "public"), f.bundler.clientOutDir)
	assert.True(t, f.fs.FileExists(filepath.Join("/proj", "public", "about", "index.html")))
	assert.False(t, f.fs.FileExists("/proj/dist/about/index.html"))
}

func TestBuildProjectAliasedEntry(t *testing.T) {
	f := newBuildFixture()
	f.config.Entry = "@/main.ts"
	f.bundler.aliases = map[string]string{"@/main.ts": "/proj/src/main.ts"}

	out := f.service.BuildProject(context.Background(), BuildInput{Config: f.config})
	require.NoError(t, out.Error)
	assert.Equal(t, "/proj/src/main.ts", f.bundler.server.Entry)
	assert.Equal(t, filepath.Join("/proj", ".ssg-temp", "main.mjs"), f.entry)
}

type closeRecorder struct {
	*fakeRenderer
	onClose func()
}

func (r *closeRecorder) Close() error {
	r.onClose()
	return r.fakeRenderer.Close()
}

func TestBuildProjectBeforeTeardown(t *testing.T) {
	f := newBuildFixture()
	var events []string
	f.service.startWorker = func(ctx context.Context, entry string) (Renderer, error) {
		return &closeRecorder{fakeRenderer: f.renderer, onClose: func() { events = append(events, "close") }}, nil
	}

	out := f.service.BuildProject(context.Background(), BuildInput{
		Config: f.config,
		BeforeTeardown: func() {
			events = append(events, "teardown")
			assert.Len(t, f.renderer.Calls(), 2, "every route is rendered first")
		},
	})
	require.NoError(t, out.Error)
	assert.Equal(t, []string{"teardown", "close"}, events)
}

func TestBuildProjectBeforeTeardownOnSetupFailure(t *testing.T) {
	f := newBuildFixture()

	var events []string
	f.service.startWorker = func(ctx context.Context, entry string) (Renderer, error) {
		return &failingSetup{closeRecorder{fakeRenderer: f.renderer, onClose: func() { events = append(events, "close") }}}, nil
	}

	out := f.service.BuildProject(context.Background(), BuildInput{
		Config:         f.config,
		BeforeTeardown: func() { events = append(events, "teardown") },
	})
	require.Error(t, out.Error)
	assert.Equal(t, []string{"teardown", "close"}, events)
}

type failingSetup struct {
	closeRecorder
}

func (r *failingSetup) Setup(ctx context.Context) (core.PrerenderConfig, error) {
	return core.PrerenderConfig{}, &core.RenderError{Message: "setup exploded"}
}

func TestBuildProjectPublishes(t *testing.T) {
	f := newBuildFixture()
	publish := newMemSink()

	out := f.service.BuildProject(context.Background(), BuildInput{Config: f.config, Publish: publish})
	require.NoError(t, out.Error)
	assert.Equal(t, []string{"about/index.html", "index.html"}, publish.Names())
}

func TestBuildProjectDefaultEntry(t *testing.T) {
	f := newBuildFixture()

	out := f.service.BuildProject(context.Background(), BuildInput{Config: f.config})
	require.NoError(t, out.Error)
	assert.Equal(t, core.DefaultEntry, f.bundler.resolvedEntry)
	assert.Equal(t, filepath.Join("/proj", core.DefaultEntry), f.bundler.server.Entry)
}

func TestBuildProjectMissingClientOutput(t *testing.T) {
	f := newBuildFixture()
	f.bundler.skipOutputs = true

	started := false
	f.service.startWorker = func(ctx context.Context, entry string) (Renderer, error) {
		started = true
		return f.renderer, nil
	}

	out := f.service.BuildProject(context.Background(), BuildInput{Config: f.config})
	assert.False(t, out.Success)
	assert.ErrorIs(t, out.Error, core.ErrConfig)
	assert.False(t, started)
	assert.Contains(t, f.errOut.String(), "Loading client build")
}

func TestBuildProjectWorkerFailure(t *testing.T) {
	f := newBuildFixture()
	f.service.startWorker = func(ctx context.Context, entry string) (Renderer, error) {
		return nil, &core.TransportError{Op: "start", Err: errors.New("exited")}
	}

	out := f.service.BuildProject(context.Background(), BuildInput{Config: f.config})
	assert.False(t, out.Success)
	assert.ErrorIs(t, out.Error, core.ErrTransport)
}

func TestBuildProjectRouteFailure(t *testing.T) {
	f := newBuildFixture()
	f.renderer.errs = map[string]error{
		"/about": &core.RenderError{Message: "boom", Stack: "Error: boom\n    at prerender (main.mjs:3:9)"},
	}

	out := f.service.BuildProject(context.Background(), BuildInput{Config: f.config})
	assert.False(t, out.Success)

	var routeErr *core.RouteError
	require.ErrorAs(t, out.Error, &routeErr)
	assert.Equal(t, "/about", routeErr.Route)

	assert.Len(t, out.Pages, 1)
	assert.Contains(t, f.errOut.String(), "✗ /about")
	assert.Contains(t, f.errOut.String(), "boom")
	assert.Contains(t, f.errOut.String(), "at prerender (main.mjs:3:9)")
	assert.True(t, f.renderer.closed)
}

func TestMultiSink(t *testing.T) {
	a, b := newMemSink(), newMemSink()
	sink := NewMultiSink(a, nil, b)

	require.NoError(t, sink.WriteFile(context.Background(), "index.html", []byte("x")))
	assert.Equal(t, "x", a.Get("index.html"))
	assert.Equal(t, "x", b.Get("index.html"))
}
