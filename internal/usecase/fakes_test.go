package usecase

import (
	"context"
	"sort"
	"sync"

	"github.com/3-lines-studio/ssg/internal/core"
)

const testShell = `<!DOCTYPE html><html><head><title>App</title></head><body><div id="app"></div><script type="module" src="/assets/index.js"></script></body></html>`

type fakeRenderer struct {
	config  core.PrerenderConfig
	results map[string]core.RenderResult
	errs    map[string]error

	mu     sync.Mutex
	calls  []string
	closed bool
}

func (f *fakeRenderer) Setup(ctx context.Context) (core.PrerenderConfig, error) {
	return f.config, nil
}

func (f *fakeRenderer) Render(ctx context.Context, route string) (core.RenderResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, route)
	f.mu.Unlock()

	if err, ok := f.errs[route]; ok {
		return core.RenderResult{}, err
	}
	if res, ok := f.results[route]; ok {
		return res, nil
	}
	return core.RenderResult{HTML: "<p>" + route + "</p>"}, nil
}

func (f *fakeRenderer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeRenderer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := append([]string(nil), f.calls...)
	sort.Strings(calls)
	return calls
}

type memSink struct {
	mu    sync.Mutex
	files map[string]string
}

func newMemSink() *memSink {
	return &memSink{files: make(map[string]string)}
}

func (s *memSink) WriteFile(ctx context.Context, rel string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[rel] = string(data)
	return nil
}

func (s *memSink) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *memSink) Get(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[name]
}
