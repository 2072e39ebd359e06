package ssg

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3-lines-studio/ssg/internal/adapters/process"
	"github.com/3-lines-studio/ssg/internal/core"
)

func skipIfNoNode(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("node"); err != nil {
		t.Skip("node not available, skipping E2E test")
	}
}

// copyFixture copies testdata/e2e so the worker files land in a temp dir.
func copyFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.CopyFS(dir, os.DirFS(filepath.Join("testdata", "e2e"))))
	return dir
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestPrerenderWithNodeWorker(t *testing.T) {
	skipIfNoNode(t)

	dir := copyFixture(t)
	outDir := filepath.Join(dir, "dist")

	manifest, err := core.ParseSSRManifest([]byte(readFile(t, filepath.Join(outDir, "ssr-manifest.json"))))
	require.NoError(t, err)

	worker, err := process.StartWorker(context.Background(), process.WorkerConfig{
		Entry:  filepath.Join(dir, "server", "main.mjs"),
		Loader: process.ESMLoader{},
		Stdout: io.Discard,
		Stderr: io.Discard,
	})
	require.NoError(t, err)

	result, err := Prerender(context.Background(), worker, Options{
		Shell:      readFile(t, filepath.Join(outDir, "index.html")),
		Manifest:   manifest,
		OutDir:     outDir,
		Formatting: FormattingMinify,
		Critical:   &CriticalOptions{Preload: "media", Compress: true},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"/", "/notes/1", "/notes/2"}, result.Routes)
	assert.Len(t, result.Pages, 3)
	assert.Len(t, result.Hashes, 2)

	home := readFile(t, filepath.Join(outDir, "index.html"))
	assert.Contains(t, home, `<html lang="en">`)
	assert.Contains(t, home, `<a href="/notes/1">First note</a>`)
	assert.Contains(t, home, `href="/assets/Home.css"`)

	note := readFile(t, filepath.Join(outDir, "notes", "1", "index.html"))
	assert.Contains(t, note, `<title>First note</title>`)
	assert.Contains(t, note, `data-ssg="true"`)
	assert.Contains(t, note, `href="/assets/Note.js"`)
	assert.Contains(t, note, `href="/assets/Card.js"`)
	assert.Contains(t, note, `content="First note"`)
	assert.NotContains(t, note, "onload=")
	assert.Greater(t, strings.LastIndex(note, `rel="stylesheet"`), strings.Index(note, "<body"),
		"csp pages defer stylesheets to the end of body")

	start := strings.Index(note, "<style>")
	require.GreaterOrEqual(t, start, 0)
	style := note[start:strings.Index(note, "</style>")]
	assert.Contains(t, style, ".note")
	assert.NotContains(t, style, ".modal")

	csp := readFile(t, filepath.Join(outDir, "csp.conf"))
	assert.True(t, strings.HasPrefix(csp, `add_header Content-Security-Policy "script-src 'self' 'sha256-`))

	assert.Equal(t,
		"rewrite ^/notes/1$ /notes/1/index.html;\nrewrite ^/notes/2$ /notes/2/index.html;\n",
		readFile(t, filepath.Join(outDir, "rewrites.txt")))

	_, err = os.Stat(filepath.Join(dir, "server", "__ssg_worker.mjs"))
	assert.True(t, os.IsNotExist(err), "worker files are removed on close")
}

func TestPrerenderWithNodeWorkerRouteFailure(t *testing.T) {
	skipIfNoNode(t)

	dir := copyFixture(t)
	outDir := filepath.Join(dir, "dist")

	worker, err := process.StartWorker(context.Background(), process.WorkerConfig{
		Entry:  filepath.Join(dir, "server", "main.mjs"),
		Loader: process.ESMLoader{},
		Stdout: io.Discard,
		Stderr: io.Discard,
	})
	require.NoError(t, err)

	renderer := &routeOverride{Renderer: worker, routes: []string{"/", "/notes/9"}}
	result, err := Prerender(context.Background(), renderer, Options{
		Shell:  readFile(t, filepath.Join(outDir, "index.html")),
		OutDir: outDir,
	})
	require.Error(t, err)

	var renderErr *RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, "unknown note 9", renderErr.Message)
	assert.Contains(t, renderErr.Stack, "prerender")

	assert.Len(t, result.Pages, 3, "home and both discovered notes still render")
}

// routeOverride replaces the configured routes of a renderer.
type routeOverride struct {
	Renderer
	routes []string
}

func (r *routeOverride) Setup(ctx context.Context) (Config, error) {
	cfg, err := r.Renderer.Setup(ctx)
	cfg.Routes = r.routes
	return cfg, err
}
