package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	greenStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	yellowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	redStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	grayStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	boldStyle   = lipgloss.NewStyle().Bold(true)
)

type Output struct {
	out          io.Writer
	errOut       io.Writer
	enableColors bool
}

func NewOutput() *Output {
	return &Output{
		out:          os.Stdout,
		errOut:       os.Stderr,
		enableColors: isTerminal(os.Stdout),
	}
}

// NewWriterOutput prints to the given writers without colours.
func NewWriterOutput(out, errOut io.Writer) *Output {
	return &Output{out: out, errOut: errOut}
}

func (o *Output) render(style lipgloss.Style, text string) string {
	if !o.enableColors {
		return text
	}
	return style.Render(text)
}

func (o *Output) Green(text string) string  { return o.render(greenStyle, text) }
func (o *Output) Yellow(text string) string { return o.render(yellowStyle, text) }
func (o *Output) Red(text string) string    { return o.render(redStyle, text) }
func (o *Output) Gray(text string) string   { return o.render(grayStyle, text) }
func (o *Output) Bold(text string) string   { return o.render(boldStyle, text) }

func (o *Output) Writer() io.Writer      { return o.out }
func (o *Output) ErrorWriter() io.Writer { return o.errOut }

func (o *Output) PrintHeader(msg string) {
	fmt.Fprintln(o.out, o.Bold(msg))
	fmt.Fprintln(o.out)
}

func (o *Output) PrintStep(msg string, args ...any) {
	fmt.Fprintf(o.out, "  "+msg+"\n", args...)
}

func (o *Output) PrintSuccess(msg string, args ...any) {
	formatted := fmt.Sprintf(msg, args...)
	fmt.Fprintf(o.out, "  "+o.Green("✓ ")+"%s\n", formatted)
}

func (o *Output) PrintWarning(msg string, args ...any) {
	formatted := fmt.Sprintf(msg, args...)
	fmt.Fprintf(o.out, "  "+o.Yellow("⚠ ")+"%s\n", formatted)
}

func (o *Output) PrintError(msg string, args ...any) {
	formatted := fmt.Sprintf(msg, args...)
	fmt.Fprintf(o.errOut, "  "+o.Red("✗ ")+"%s\n", formatted)
}

func (o *Output) PrintDone(msg string) {
	fmt.Fprintln(o.out, msg)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
