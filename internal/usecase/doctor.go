package usecase

import (
	"fmt"
	"path/filepath"

	"github.com/3-lines-studio/ssg/internal/adapters/bundler"
	"github.com/3-lines-studio/ssg/internal/config"
	"github.com/3-lines-studio/ssg/internal/core"
)

type CheckStatus int

const (
	CheckOK CheckStatus = iota
	CheckWarn
	CheckFail
)

type Check struct {
	Name   string
	Status CheckStatus
	Detail string
}

// DoctorService inspects a project for the things a build needs.
type DoctorService struct {
	fs       FileSystem
	cli      CLIOutput
	lookPath func(string) (string, error)
}

func NewDoctorService(fs FileSystem, cli CLIOutput, lookPath func(string) (string, error)) *DoctorService {
	return &DoctorService{fs: fs, cli: cli, lookPath: lookPath}
}

func (s *DoctorService) Checks(cfg *config.Config) []Check {
	var checks []Check

	if path, err := s.lookPath(cfg.Runtime); err != nil {
		checks = append(checks, Check{Name: "runtime", Status: CheckFail, Detail: fmt.Sprintf("%s not found in PATH", cfg.Runtime)})
	} else {
		checks = append(checks, Check{Name: "runtime", Status: CheckOK, Detail: path})
	}

	vite := filepath.Join(cfg.Root, "node_modules", ".bin", "vite")
	if s.fs.FileExists(vite) {
		checks = append(checks, Check{Name: "vite", Status: CheckOK, Detail: vite})
	} else {
		checks = append(checks, Check{Name: "vite", Status: CheckWarn, Detail: "vite is not installed locally, npx will fetch it"})
	}

	indexPath := filepath.Join(cfg.Root, bundler.ShellFile)
	indexHTML, err := s.fs.ReadFile(indexPath)
	if err != nil {
		checks = append(checks, Check{Name: "index.html", Status: CheckFail, Detail: indexPath + " not found"})
	} else {
		checks = append(checks, Check{Name: "index.html", Status: CheckOK, Detail: indexPath})
	}

	entry := cfg.Entry
	if entry == "" {
		entry = core.DetectEntry(string(indexHTML))
	}
	entryPath := filepath.Join(cfg.Root, entry)
	if s.fs.FileExists(entryPath) {
		checks = append(checks, Check{Name: "entry", Status: CheckOK, Detail: entryPath})
	} else {
		checks = append(checks, Check{Name: "entry", Status: CheckFail, Detail: entryPath + " not found"})
	}

	return checks
}

// Run prints every check and reports whether none failed.
func (s *DoctorService) Run(cfg *config.Config) bool {
	s.cli.PrintHeader("SSG Doctor")

	healthy := true
	for _, c := range s.Checks(cfg) {
		switch c.Status {
		case CheckOK:
			s.cli.PrintSuccess("%s: %s", c.Name, c.Detail)
		case CheckWarn:
			s.cli.PrintWarning("%s: %s", c.Name, c.Detail)
		case CheckFail:
			s.cli.PrintError("%s: %s", c.Name, c.Detail)
			healthy = false
		}
	}
	return healthy
}
