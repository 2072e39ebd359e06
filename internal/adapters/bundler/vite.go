package bundler

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/3-lines-studio/ssg/internal/core"
)

//go:embed config/server.config.mjs
var serverConfigSource string

//go:embed config/resolve.mjs
var resolveSource string

const (
	// BuildMarkerEnv tells project code it is being bundled for prerendering.
	BuildMarkerEnv = "VITE_SSG"

	ManifestFile   = "ssr-manifest.json"
	ShellFile      = "index.html"
	TempDir        = ".ssg-temp"
	serverConfig   = "__ssg_server.config.mjs"
	resolveScript  = "__ssg_resolve.mjs"
	rootToken      = "__SSG_ROOT__"
	overridesToken = "__SSG_OVERRIDES__"
)

var (
	DefaultCommand = []string{"npx", "vite"}
	DefaultNode    = []string{"node"}
)

// Vite drives the client and server builds of a vite project.
type Vite struct {
	Root    string
	Command []string
	// Node runs the config resolution script from Root.
	Node   []string
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
	Logger *zap.Logger
}

// Project is the part of the resolved vite config a build depends on. All
// paths are absolute.
type Project struct {
	Root   string `json:"root"`
	OutDir string `json:"outDir"`
	Entry  string `json:"entry"`
}

type ServerBuild struct {
	// Entry is the server entry, relative to Root or absolute.
	Entry  string
	OutDir string
	Format core.ModuleFormat
	Mode   string
}

// Resolve loads the project's vite config for mode and reports its client
// out dir and entry with aliases applied.
func (v *Vite) Resolve(ctx context.Context, mode, entry string) (Project, error) {
	if entry == "" {
		return Project{}, core.ConfigError("server entry is required")
	}

	root, err := filepath.Abs(v.root())
	if err != nil {
		return Project{}, fmt.Errorf("failed to resolve root: %w", err)
	}

	result, err := os.CreateTemp("", "ssg-resolve-*.json")
	if err != nil {
		return Project{}, fmt.Errorf("failed to create resolve result: %w", err)
	}
	resultPath := result.Name()
	result.Close()
	defer os.Remove(resultPath)

	scriptPath := filepath.Join(root, resolveScript)
	if err := os.WriteFile(scriptPath, []byte(resolveSource), 0o644); err != nil {
		return Project{}, fmt.Errorf("failed to write resolve script: %w", err)
	}
	defer os.Remove(scriptPath)

	node := v.Node
	if len(node) == 0 {
		node = DefaultNode
	}
	if err := v.exec(ctx, node, []string{scriptPath, entry, mode, resultPath}); err != nil {
		return Project{}, fmt.Errorf("failed to resolve vite config: %w", err)
	}

	data, err := os.ReadFile(resultPath)
	if err != nil {
		return Project{}, fmt.Errorf("failed to read resolved vite config: %w", err)
	}
	var project Project
	if err := json.Unmarshal(data, &project); err != nil {
		return Project{}, fmt.Errorf("invalid resolved vite config: %w", err)
	}
	if project.OutDir == "" || project.Entry == "" {
		return Project{}, fmt.Errorf("resolved vite config is incomplete: %s", data)
	}
	project.Root = filepath.FromSlash(project.Root)
	project.OutDir = filepath.FromSlash(project.OutDir)
	project.Entry = filepath.FromSlash(project.Entry)
	return project, nil
}

// BuildClient runs the client build with an SSR manifest. A non-empty
// outDir overrides the project's build.outDir.
func (v *Vite) BuildClient(ctx context.Context, mode, outDir string) error {
	args := []string{"build", "--ssrManifest"}
	if outDir != "" {
		args = append(args, "--outDir", outDir)
	}
	if mode != "" {
		args = append(args, "--mode", mode)
	}
	if err := v.run(ctx, args); err != nil {
		return fmt.Errorf("client build failed: %w", err)
	}
	return nil
}

// BuildServer bundles the server entry into b.OutDir and returns the path
// of the built entry file.
func (v *Vite) BuildServer(ctx context.Context, b ServerBuild) (string, error) {
	if b.Entry == "" {
		return "", core.ConfigError("server entry is required")
	}
	if b.OutDir == "" {
		return "", core.ConfigError("server outDir is required")
	}

	root, err := filepath.Abs(v.root())
	if err != nil {
		return "", fmt.Errorf("failed to resolve root: %w", err)
	}
	outDir := b.OutDir
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(root, outDir)
	}
	entry := b.Entry
	if !filepath.IsAbs(entry) {
		entry = filepath.Join(root, entry)
	}

	source, err := ServerConfigSource(root, entry, outDir, b.Format)
	if err != nil {
		return "", err
	}

	configPath := filepath.Join(root, serverConfig)
	if err := os.WriteFile(configPath, []byte(source), 0o644); err != nil {
		return "", fmt.Errorf("failed to write server config: %w", err)
	}
	defer os.Remove(configPath)

	args := []string{"build", "--config", configPath}
	if b.Mode != "" {
		args = append(args, "--mode", b.Mode)
	}
	if err := v.run(ctx, args); err != nil {
		return "", fmt.Errorf("server build failed: %w", err)
	}

	return filepath.Join(outDir, BuiltEntryName(entry, b.Format)), nil
}

// BuiltEntryName is the file name rollup emits for entry in format.
func BuiltEntryName(entry string, format core.ModuleFormat) string {
	name := strings.TrimSuffix(filepath.Base(entry), filepath.Ext(entry))
	return name + "." + extension(format)
}

// ServerConfigSource renders the wrapper config that merges the project
// config with the server build overrides.
func ServerConfigSource(root, entry, outDir string, format core.ModuleFormat) (string, error) {
	rollupFormat := "es"
	if format == core.FormatCJS {
		rollupFormat = "cjs"
	}

	overrides := map[string]any{
		"build": map[string]any{
			"ssr":          filepath.ToSlash(entry),
			"outDir":       filepath.ToSlash(outDir),
			"emptyOutDir":  true,
			"minify":       true,
			"cssCodeSplit": false,
			"rollupOptions": map[string]any{
				"output": map[string]any{
					"entryFileNames": "[name]." + extension(format),
					"format":         rollupFormat,
				},
			},
		},
	}

	rootJSON, err := json.Marshal(filepath.ToSlash(root))
	if err != nil {
		return "", err
	}
	overridesJSON, err := json.MarshalIndent(overrides, "", "  ")
	if err != nil {
		return "", err
	}

	source := strings.Replace(serverConfigSource, rootToken, string(rootJSON), 1)
	source = strings.Replace(source, overridesToken, string(overridesJSON), 1)
	return source, nil
}

func extension(format core.ModuleFormat) string {
	if format == core.FormatCJS {
		return "cjs"
	}
	return "mjs"
}

func (v *Vite) root() string {
	if v.Root == "" {
		return "."
	}
	return v.Root
}

func (v *Vite) run(ctx context.Context, args []string) error {
	command := v.Command
	if len(command) == 0 {
		command = DefaultCommand
	}
	return v.exec(ctx, command, args)
}

func (v *Vite) exec(ctx context.Context, command, args []string) error {
	argv := append(append([]string(nil), command[1:]...), args...)

	cmd := exec.CommandContext(ctx, command[0], argv...)
	cmd.Dir = v.root()
	cmd.Env = append(append(os.Environ(), v.Env...), BuildMarkerEnv+"=true")
	cmd.Stdout = v.Stdout
	cmd.Stderr = v.Stderr

	var stderr bytes.Buffer
	if cmd.Stderr == nil {
		cmd.Stderr = &stderr
	}

	if v.Logger != nil {
		v.Logger.Debug("running command", zap.Strings("argv", cmd.Args), zap.String("dir", cmd.Dir))
	}

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w\n%s", command[0], err, msg)
		}
		return fmt.Errorf("%s: %w", command[0], err)
	}
	return nil
}
