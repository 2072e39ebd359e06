package cli

import (
	"fmt"
	"io"
	"sort"
	"time"
)

type BuildStep struct {
	Name      string
	StartTime time.Time
	EndTime   time.Time
	Success   bool
	Error     string
}

func (s BuildStep) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

type reportOutput interface {
	Green(text string) string
	Yellow(text string) string
	Red(text string) string
	Gray(text string) string
	Writer() io.Writer
	ErrorWriter() io.Writer
}

type BuildError struct {
	Route   string
	Message string
	Details []string
}

// PageEntry is one written page as listed in the report.
type PageEntry struct {
	Route string
	File  string
	Size  int
}

type BuildReport struct {
	out         reportOutput
	steps       []*BuildStep
	warnings    []BuildError
	errors      []BuildError
	pages       []PageEntry
	startTime   time.Time
	outputDir   string
	hasFailures bool
	now         func() time.Time
}

func NewBuildReport(out reportOutput, outputDir string) *BuildReport {
	return &BuildReport{
		out:       out,
		startTime: time.Now(),
		outputDir: outputDir,
		now:       time.Now,
	}
}

// SetOutputDir names the directory shown at the end of the report.
func (r *BuildReport) SetOutputDir(dir string) {
	r.outputDir = dir
}

func (r *BuildReport) SetPages(pages []PageEntry) {
	r.pages = append([]PageEntry(nil), pages...)
	sort.Slice(r.pages, func(i, j int) bool { return r.pages[i].File < r.pages[j].File })
}

func (r *BuildReport) StartStep(name string) *BuildStep {
	step := &BuildStep{
		Name:      name,
		StartTime: r.now(),
	}
	r.steps = append(r.steps, step)
	return step
}

func (r *BuildReport) EndStep(step *BuildStep, success bool, err string) {
	step.EndTime = r.now()
	step.Success = success
	step.Error = err
	if !success {
		r.hasFailures = true
	}
}

func (r *BuildReport) AddWarning(route string, message string, details []string) {
	r.warnings = append(r.warnings, BuildError{
		Route:   route,
		Message: message,
		Details: details,
	})
}

func (r *BuildReport) AddError(route string, message string, details []string) {
	r.errors = append(r.errors, BuildError{
		Route:   route,
		Message: message,
		Details: details,
	})
	r.hasFailures = true
}

func (r *BuildReport) Render() {
	duration := r.now().Sub(r.startTime)

	if len(r.errors) == 0 && len(r.warnings) == 0 {
		r.renderMinimal(duration)
	} else {
		r.renderVerbose(duration)
	}
}

func (r *BuildReport) renderMinimal(duration time.Duration) {
	w := r.out.Writer()
	fmt.Fprintf(w, "  "+r.out.Green("✓ ")+"%d pages prerendered\n", len(r.pages))

	var failed []string
	for _, step := range r.steps {
		if !step.Success {
			failed = append(failed, "  "+r.out.Red("✗ ")+step.Name)
		}
	}

	if len(failed) == 0 {
		r.renderPages(w)
		fmt.Fprintf(w, "  "+r.out.Green("✓ ")+"Build complete in %s\n", formatDuration(duration))
	} else {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Failed steps:")
		for _, line := range failed {
			fmt.Fprintln(w, line)
		}
	}

	if r.outputDir != "" {
		fmt.Fprintf(w, "\n  %s\n", r.out.Gray("Output: "+r.outputDir))
	}
}

func (r *BuildReport) renderVerbose(duration time.Duration) {
	w := r.out.Writer()
	ew := r.out.ErrorWriter()
	fmt.Fprintf(w, "  %d pages prerendered\n", len(r.pages))

	fmt.Fprintln(w)
	for _, step := range r.steps {
		status := r.out.Green("✓")
		if !step.Success {
			status = r.out.Red("✗")
		}
		fmt.Fprintf(w, "  %s %s %s\n", status, step.Name, r.out.Gray(formatDuration(step.Duration())))
	}

	if len(r.errors) > 0 {
		fmt.Fprintln(ew)
		fmt.Fprintf(ew, "  "+r.out.Red("✗ ")+"Errors (%d):\n", len(r.errors))
		r.renderErrors(ew, r.errors)
	}

	if len(r.warnings) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  "+r.out.Yellow("⚠ ")+"Warnings (%d):\n", len(r.warnings))
		r.renderErrors(w, r.warnings)
	}

	fmt.Fprintln(w)
	if len(r.errors) > 0 {
		fmt.Fprintf(ew, "  %s\n", r.out.Red(fmt.Sprintf("Build failed after %s", formatDuration(duration))))
	} else {
		r.renderPages(w)
		fmt.Fprintf(w, "  "+r.out.Green("✓ ")+"Build complete in %s\n", formatDuration(duration))
	}

	if r.outputDir != "" {
		fmt.Fprintf(w, "\n  %s\n", r.out.Gray("Output: "+r.outputDir))
	}
}

func (r *BuildReport) renderPages(w io.Writer) {
	for _, p := range r.pages {
		fmt.Fprintf(w, "    %s %s\n", p.File, r.out.Gray(formatSize(p.Size)))
	}
}

func (r *BuildReport) renderErrors(w io.Writer, errors []BuildError) {
	for _, err := range errors {
		fmt.Fprintf(w, "  %s %s\n", r.out.Red("✗"), err.Route)
		fmt.Fprintf(w, "    %s\n", err.Message)

		for _, detail := range deduplicateStrings(err.Details) {
			fmt.Fprintf(w, "      • %s\n", detail)
		}
	}
}

func (r *BuildReport) HasFailures() bool {
	return r.hasFailures
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.0fms", float64(d)/float64(time.Millisecond))
	}
	return fmt.Sprintf("%.1fs", float64(d)/float64(time.Second))
}

func formatSize(n int) string {
	return fmt.Sprintf("%.2f KiB", float64(n)/1024)
}

// deduplicateStrings keeps first-occurrence order and annotates repeats.
func deduplicateStrings(items []string) []string {
	if len(items) <= 1 {
		return items
	}

	counts := make(map[string]int)
	order := make([]string, 0, len(items))
	for _, item := range items {
		if counts[item] == 0 {
			order = append(order, item)
		}
		counts[item]++
	}

	result := make([]string, 0, len(order))
	for _, item := range order {
		if counts[item] > 1 {
			result = append(result, fmt.Sprintf("%s (%d occurrences)", item, counts[item]))
		} else {
			result = append(result, item)
		}
	}
	return result
}
