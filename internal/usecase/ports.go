package usecase

import (
	"context"
	"io"

	"github.com/3-lines-studio/ssg/internal/adapters/bundler"
	"github.com/3-lines-studio/ssg/internal/adapters/fs"
	"github.com/3-lines-studio/ssg/internal/core"
)

// Renderer produces markup for one route at a time. Implementations must
// be safe for concurrent Render calls.
type Renderer interface {
	Setup(ctx context.Context) (core.PrerenderConfig, error)
	Render(ctx context.Context, route string) (core.RenderResult, error)
	Close() error
}

// Sink receives build artifacts by slash-separated relative path.
type Sink interface {
	WriteFile(ctx context.Context, rel string, data []byte) error
}

type Bundler interface {
	Resolve(ctx context.Context, mode, entry string) (bundler.Project, error)
	BuildClient(ctx context.Context, mode, outDir string) error
	BuildServer(ctx context.Context, build bundler.ServerBuild) (string, error)
}

// WorkerStarter starts a renderer for a built server entry.
type WorkerStarter func(ctx context.Context, entry string) (Renderer, error)

type CLIOutput interface {
	PrintHeader(msg string)
	PrintStep(msg string, args ...any)
	PrintSuccess(msg string, args ...any)
	PrintWarning(msg string, args ...any)
	PrintError(msg string, args ...any)
	PrintDone(msg string)

	Green(text string) string
	Yellow(text string) string
	Red(text string) string
	Gray(text string) string
	Writer() io.Writer
	ErrorWriter() io.Writer
}

type FileSystem = fs.FileSystem
