// Package postprocess holds the stages a page passes through after
// assembly: critical CSS inlining and HTML formatting.
package postprocess

import (
	"fmt"
	"regexp"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/yosssi/gohtml"

	"github.com/3-lines-studio/ssg/internal/core"
)

type Formatter interface {
	Format(html string) (string, error)
}

// NewFormatter returns the formatter for mode. An empty mode means none.
func NewFormatter(mode core.Formatting) (Formatter, error) {
	switch mode {
	case core.FormattingMinify:
		return newMinifier(), nil
	case core.FormattingPrettify:
		return prettifier{}, nil
	case core.FormattingNone, "":
		return passthrough{}, nil
	}
	return nil, core.ConfigError("unknown formatting %q", mode)
}

type Minifier struct {
	m *minify.M
}

func newMinifier() *Minifier {
	m := minify.New()
	m.Add("text/html", &html.Minifier{
		KeepDocumentTags:    true,
		KeepEndTags:         true,
		KeepQuotes:          true,
		KeepDefaultAttrVals: true,
	})
	m.AddFunc("text/css", css.Minify)
	m.AddFuncRegexp(regexp.MustCompile("^(application|text)/(x-)?(java|ecma)script$"), js.Minify)
	return &Minifier{m: m}
}

func (f *Minifier) Format(s string) (string, error) {
	out, err := f.m.String("text/html", s)
	if err != nil {
		return "", fmt.Errorf("failed to minify html: %w", err)
	}
	return out, nil
}

// CSS minifies a stylesheet.
func (f *Minifier) CSS(s string) (string, error) {
	out, err := f.m.String("text/css", s)
	if err != nil {
		return "", fmt.Errorf("failed to minify css: %w", err)
	}
	return out, nil
}

type prettifier struct{}

func (prettifier) Format(s string) (string, error) {
	return gohtml.Format(s), nil
}

type passthrough struct{}

func (passthrough) Format(s string) (string, error) {
	return s, nil
}
