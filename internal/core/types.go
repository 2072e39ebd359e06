package core

import (
	"encoding/json"
	"fmt"
)

type DirStyle string

const (
	DirStyleNested DirStyle = "nested"
	DirStyleFlat   DirStyle = "flat"
)

type Formatting string

const (
	FormattingMinify   Formatting = "minify"
	FormattingPrettify Formatting = "prettify"
	FormattingNone     Formatting = "none"
)

type ScriptMode string

const (
	ScriptSync       ScriptMode = "sync"
	ScriptAsync      ScriptMode = "async"
	ScriptDefer      ScriptMode = "defer"
	ScriptAsyncDefer ScriptMode = "async defer"
)

type ModuleFormat string

const (
	FormatESM ModuleFormat = "esm"
	FormatCJS ModuleFormat = "cjs"
)

const (
	DefaultRoot        = "app"
	DefaultConcurrency = 20

	// RenderedAttr marks the container that received server-rendered markup.
	RenderedAttr = "data-ssg"

	InlineScriptHashesKey = "{{INLINE_SCRIPT_HASHES}}"
	CSPFileTypeNginx      = "nginx-conf"
)

type RenderResult struct {
	HTML    string        `json:"html"`
	Preload []string      `json:"preload,omitempty"`
	Routes  []string      `json:"routes,omitempty"`
	Head    *HeadMetadata `json:"head,omitempty"`
	Root    string        `json:"root,omitempty"`
}

type HeadMetadata struct {
	Lang     string        `json:"lang,omitempty"`
	Title    string        `json:"title,omitempty"`
	Elements []HeadElement `json:"elements,omitempty"`
}

// HeadElement is either raw markup or an element descriptor.
type HeadElement struct {
	Raw   string
	Tag   string
	Props map[string]any
}

func (e HeadElement) IsRaw() bool {
	return e.Tag == ""
}

func (e *HeadElement) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err == nil {
		*e = HeadElement{Raw: raw}
		return nil
	}

	var desc struct {
		Type  string         `json:"type"`
		Props map[string]any `json:"props"`
	}
	if err := json.Unmarshal(data, &desc); err != nil {
		return fmt.Errorf("head element must be a string or {type, props}: %w", err)
	}
	if desc.Type == "" {
		return fmt.Errorf("head element descriptor is missing type")
	}
	*e = HeadElement{Tag: desc.Type, Props: desc.Props}
	return nil
}

func (e HeadElement) MarshalJSON() ([]byte, error) {
	if e.IsRaw() {
		return json.Marshal(e.Raw)
	}
	return json.Marshal(struct {
		Type  string         `json:"type"`
		Props map[string]any `json:"props,omitempty"`
	}{e.Tag, e.Props})
}

type PrerenderConfig struct {
	Root     string         `json:"root,omitempty"`
	Routes   []string       `json:"routes,omitempty"`
	DirStyle DirStyle       `json:"dirStyle,omitempty"`
	CSP      *CSPConfig     `json:"csp,omitempty"`
	Rewrites *RewriteConfig `json:"dynamicRoutes,omitempty"`
}

type CSPConfig struct {
	Template string `json:"template"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
}

type RewriteConfig struct {
	FileName string        `json:"fileName"`
	Rules    []RewriteRule `json:"rules"`
}

type RewriteRule struct {
	Pattern  string `json:"pattern"`
	Template string `json:"template"`
}

// WithDefaults fills the zero values the entry module may leave out.
func (c PrerenderConfig) WithDefaults() PrerenderConfig {
	if c.Root == "" {
		c.Root = DefaultRoot
	}
	if len(c.Routes) == 0 {
		c.Routes = []string{"/"}
	}
	if c.DirStyle == "" {
		c.DirStyle = DirStyleNested
	}
	return c
}
