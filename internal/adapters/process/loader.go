package process

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/3-lines-studio/ssg/internal/core"
)

var (
	//go:embed worker/worker.mjs
	esmWorkerSource string

	//go:embed worker/worker.cjs
	cjsWorkerSource string

	//go:embed worker/server.js
	workerServerSource string
)

const (
	entryPlaceholder  = "__SSG_ENTRY__"
	serverPlaceholder = "__SSG_SERVER__"

	MarkerFile = "package.json"
)

// Loader produces the files a worker needs to load a freshly built server
// entry in one module format.
type Loader interface {
	Format() core.ModuleFormat
	// Marker is the package.json content declaring the module type of the
	// server bundle directory.
	Marker() []byte
	WorkerFile() string
	WorkerSource(entry string) (string, error)
}

func LoaderFor(format core.ModuleFormat) (Loader, error) {
	switch format {
	case core.FormatESM, "":
		return ESMLoader{}, nil
	case core.FormatCJS:
		return CJSLoader{}, nil
	}
	return nil, core.ConfigError("unknown module format %q", format)
}

type ESMLoader struct{}

func (ESMLoader) Format() core.ModuleFormat { return core.FormatESM }

func (ESMLoader) Marker() []byte { return []byte(`{"type":"module"}` + "\n") }

func (ESMLoader) WorkerFile() string { return "__ssg_worker.mjs" }

// WorkerSource imports entry by file URL, so it must be absolute.
func (ESMLoader) WorkerSource(entry string) (string, error) {
	if !filepath.IsAbs(entry) {
		return "", fmt.Errorf("entry path must be absolute: %s", entry)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(entry)}
	return renderWorker(esmWorkerSource, u.String())
}

type CJSLoader struct{}

func (CJSLoader) Format() core.ModuleFormat { return core.FormatCJS }

func (CJSLoader) Marker() []byte { return []byte(`{"type":"commonjs"}` + "\n") }

func (CJSLoader) WorkerFile() string { return "__ssg_worker.cjs" }

func (CJSLoader) WorkerSource(entry string) (string, error) {
	if !filepath.IsAbs(entry) {
		return "", fmt.Errorf("entry path must be absolute: %s", entry)
	}
	return renderWorker(cjsWorkerSource, entry)
}

func renderWorker(template, entry string) (string, error) {
	literal, err := json.Marshal(entry)
	if err != nil {
		return "", err
	}
	source := strings.Replace(template, entryPlaceholder, string(literal), 1)
	return strings.Replace(source, serverPlaceholder, workerServerSource, 1), nil
}
