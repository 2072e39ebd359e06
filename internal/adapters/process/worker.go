package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/3-lines-studio/ssg/internal/core"
)

const (
	DefaultRuntime      = "node"
	DefaultStartTimeout = 10 * time.Second
)

type WorkerConfig struct {
	// Runtime is the JavaScript runtime binary, node or bun.
	Runtime string
	// Entry is the absolute path of the built server entry.
	Entry  string
	Loader Loader

	Env    []string
	Stdout io.Writer
	Stderr io.Writer

	StartTimeout time.Duration
	Logger       *zap.Logger
}

// Worker is a long-lived child process that renders routes on request.
type Worker struct {
	cmd       *exec.Cmd
	socket    string
	files     []string
	client    *http.Client
	transport *http.Transport
	logger    *zap.Logger

	exited  chan struct{}
	exitErr error

	closeOnce sync.Once
	closeErr  error
}

type workerError struct {
	Message string `json:"message"`
	Stack   string `json:"stack"`
}

type workerReply struct {
	Result json.RawMessage `json:"result"`
	Error  *workerError    `json:"error"`
}

// StartWorker writes the worker files next to the entry, starts the
// runtime and waits until it listens.
func StartWorker(ctx context.Context, cfg WorkerConfig) (*Worker, error) {
	if cfg.Loader == nil {
		return nil, fmt.Errorf("missing module loader")
	}
	if cfg.Runtime == "" {
		cfg.Runtime = DefaultRuntime
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = DefaultStartTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}

	if _, err := os.Stat(cfg.Entry); err != nil {
		return nil, fmt.Errorf("%w: server entry: %v", core.ErrConfig, err)
	}

	dir := filepath.Dir(cfg.Entry)
	source, err := cfg.Loader.WorkerSource(cfg.Entry)
	if err != nil {
		return nil, err
	}

	marker := filepath.Join(dir, MarkerFile)
	if err := os.WriteFile(marker, cfg.Loader.Marker(), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write module marker: %w", err)
	}
	workerFile := filepath.Join(dir, cfg.Loader.WorkerFile())
	if err := os.WriteFile(workerFile, []byte(source), 0o644); err != nil {
		_ = os.Remove(marker)
		return nil, fmt.Errorf("failed to write worker: %w", err)
	}

	socket := filepath.Join(os.TempDir(), "ssg-"+uuid.NewString()+".sock")

	cmd := exec.Command(cfg.Runtime, workerFile)
	cmd.Dir = dir
	cmd.Env = append(append(os.Environ(), cfg.Env...), "SSG_SOCKET="+socket)
	cmd.Stdout = cfg.Stdout
	cmd.Stderr = cfg.Stderr

	if err := cmd.Start(); err != nil {
		_ = os.Remove(marker)
		_ = os.Remove(workerFile)
		return nil, fmt.Errorf("failed to start %s: %w", cfg.Runtime, err)
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socket)
		},
		MaxIdleConnsPerHost: 64,
	}

	w := &Worker{
		cmd:       cmd,
		socket:    socket,
		files:     []string{workerFile, marker},
		client:    &http.Client{Transport: transport},
		transport: transport,
		logger:    cfg.Logger,
		exited:    make(chan struct{}),
	}

	go func() {
		w.exitErr = cmd.Wait()
		close(w.exited)
	}()

	if err := w.waitForSocket(ctx, cfg.StartTimeout); err != nil {
		_ = w.Close()
		return nil, err
	}

	w.logger.Debug("render worker started",
		zap.String("runtime", cfg.Runtime),
		zap.String("file", workerFile),
		zap.Int("pid", cmd.Process.Pid),
	)
	return w, nil
}

func (w *Worker) waitForSocket(ctx context.Context, timeout time.Duration) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if _, err := os.Stat(w.socket); err == nil {
			return nil
		}

		select {
		case <-w.exited:
			return &core.TransportError{Op: "start", Err: fmt.Errorf("worker exited before listening: %v", w.exitErr)}
		case <-deadline.C:
			return &core.TransportError{Op: "start", Err: fmt.Errorf("timeout waiting for worker socket at %s", w.socket)}
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Setup asks the entry for its prerender configuration. An entry without
// a setup export yields the zero config.
func (w *Worker) Setup(ctx context.Context) (core.PrerenderConfig, error) {
	var cfg core.PrerenderConfig
	if err := w.call(ctx, "/setup", struct{}{}, &cfg); err != nil {
		return core.PrerenderConfig{}, err
	}
	return cfg, nil
}

func (w *Worker) Render(ctx context.Context, route string) (core.RenderResult, error) {
	var result core.RenderResult
	if err := w.call(ctx, "/render", map[string]string{"route": route}, &result); err != nil {
		return core.RenderResult{}, err
	}
	return result, nil
}

func (w *Worker) call(ctx context.Context, endpoint string, body, out any) error {
	var reply workerReply
	if err := w.postJSON(ctx, endpoint, body, &reply); err != nil {
		return err
	}

	if reply.Error != nil {
		return &core.RenderError{Message: reply.Error.Message, Stack: reply.Error.Stack}
	}

	if len(reply.Result) == 0 || string(reply.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(reply.Result, out); err != nil {
		return &core.TransportError{Op: endpoint, Err: fmt.Errorf("invalid reply: %w", err)}
	}
	return nil
}

func (w *Worker) postJSON(ctx context.Context, endpoint string, body, result any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://worker"+endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return w.transportError(endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &core.TransportError{Op: endpoint, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return w.transportError(endpoint, fmt.Errorf("invalid reply: %w", err))
	}
	return nil
}

func (w *Worker) transportError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	select {
	case <-w.exited:
		err = fmt.Errorf("%w (worker exited: %v)", err, w.exitErr)
	default:
	}
	return &core.TransportError{Op: op, Err: err}
}

// Close stops the worker and removes everything StartWorker created.
func (w *Worker) Close() error {
	w.closeOnce.Do(func() {
		select {
		case <-w.exited:
		default:
			if err := w.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				w.closeErr = err
			}
			<-w.exited
		}

		w.transport.CloseIdleConnections()

		for _, f := range append([]string{w.socket}, w.files...) {
			if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
				w.closeErr = multierr.Append(w.closeErr, err)
			}
		}
	})
	return w.closeErr
}
