package postprocess

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"go.uber.org/zap"
	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Strategies for the stylesheet link once its critical rules are inlined.
const (
	PreloadMedia = "media"
	PreloadSwap  = "swap"
	PreloadBody  = "body"
	PreloadNone  = "none"
)

type CriticalOptions struct {
	Preload     string
	InlineFonts bool
	Compress    bool
	// MergeStylesheets inlines the critical rules of every stylesheet into
	// a single style element.
	MergeStylesheets bool
	// PreloadFonts adds a font preload for every @font-face whose family
	// the critical rules use.
	PreloadFonts bool
}

// CriticalInliner inlines the stylesheet rules a page actually uses and
// defers loading of the full stylesheet.
type CriticalInliner struct {
	outDir   string
	opts     CriticalOptions
	minifier *Minifier
	logger   *zap.Logger
}

func NewCriticalInliner(outDir string, opts CriticalOptions, logger *zap.Logger) (*CriticalInliner, error) {
	if opts.Preload == "" {
		opts.Preload = PreloadMedia
	}
	switch opts.Preload {
	case PreloadMedia, PreloadSwap, PreloadBody, PreloadNone:
	default:
		return nil, fmt.Errorf("unknown critical preload strategy %q", opts.Preload)
	}

	info, err := os.Stat(outDir)
	if err != nil {
		return nil, fmt.Errorf("critical css: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("critical css: %s is not a directory", outDir)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &CriticalInliner{
		outDir:   outDir,
		opts:     opts,
		minifier: newMinifier(),
		logger:   logger,
	}, nil
}

// Preload returns the link strategy in use.
func (c *CriticalInliner) Preload() string {
	return c.opts.Preload
}

// UsesInlineHandlers reports whether deferred stylesheets rely on inline
// onload handlers, which a hash-only script-src policy blocks.
func (c *CriticalInliner) UsesInlineHandlers() bool {
	return c.opts.Preload == PreloadMedia || c.opts.Preload == PreloadSwap
}

// WithPreload returns a copy of c that defers stylesheets with strategy.
func (c *CriticalInliner) WithPreload(strategy string) *CriticalInliner {
	copied := *c
	copied.opts.Preload = strategy
	return &copied
}

func (c *CriticalInliner) Process(page string) (string, error) {
	doc, err := xhtml.Parse(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("critical css: %w", err)
	}

	var links []*xhtml.Node
	collect(doc, func(n *xhtml.Node) bool {
		return n.DataAtom == atom.Link && strings.EqualFold(attrVal(n, "rel"), "stylesheet") && attrVal(n, "href") != ""
	}, &links)

	var (
		merged    strings.Builder
		mergedTo  *xhtml.Node
		changed   bool
		fonts     []string
		seenFonts = make(map[string]bool)
	)
	for _, link := range links {
		href := attrVal(link, "href")
		file, ok := c.localPath(href)
		if !ok {
			continue
		}

		data, err := os.ReadFile(file)
		if err != nil {
			c.logger.Debug("stylesheet not readable", zap.String("file", file), zap.Error(err))
			continue
		}

		sheet, err := parser.Parse(string(data))
		if err != nil {
			c.logger.Debug("stylesheet not parseable", zap.String("file", file), zap.Error(err))
			continue
		}

		critical, families := c.extract(doc, sheet)
		if critical == "" {
			continue
		}
		if c.opts.PreloadFonts {
			for _, font := range fontSources(sheet.Rules, families) {
				if !seenFonts[font] {
					seenFonts[font] = true
					fonts = append(fonts, font)
				}
			}
		}

		if c.opts.MergeStylesheets {
			if mergedTo == nil {
				mergedTo = insertStyle(link)
			}
			merged.WriteString(critical)
		} else {
			css, err := c.compress(critical)
			if err != nil {
				return "", err
			}
			insertStyle(link).AppendChild(&xhtml.Node{Type: xhtml.TextNode, Data: css})
		}

		c.deferLink(doc, link)
		changed = true
	}

	if !changed {
		return page, nil
	}

	if mergedTo != nil {
		css, err := c.compress(merged.String())
		if err != nil {
			return "", err
		}
		mergedTo.AppendChild(&xhtml.Node{Type: xhtml.TextNode, Data: css})
	}
	if len(fonts) > 0 {
		insertFontPreloads(doc, fonts)
	}

	var buf bytes.Buffer
	if err := xhtml.Render(&buf, doc); err != nil {
		return "", fmt.Errorf("critical css: %w", err)
	}
	return buf.String(), nil
}

// insertStyle places an empty style element in front of link.
func insertStyle(link *xhtml.Node) *xhtml.Node {
	style := &xhtml.Node{Type: xhtml.ElementNode, Data: "style", DataAtom: atom.Style}
	link.Parent.InsertBefore(style, link)
	return style
}

func (c *CriticalInliner) compress(css string) (string, error) {
	if !c.opts.Compress {
		return css, nil
	}
	return c.minifier.CSS(css)
}

func (c *CriticalInliner) localPath(href string) (string, bool) {
	if strings.HasPrefix(href, "//") || strings.Contains(href, "://") || strings.HasPrefix(href, "data:") {
		return "", false
	}
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}

	rel := filepath.FromSlash(strings.TrimPrefix(href, "/"))
	file := filepath.Join(c.outDir, rel)
	if r, err := filepath.Rel(c.outDir, file); err != nil || strings.HasPrefix(r, "..") {
		return "", false
	}
	return file, true
}

// extract returns the rules of sheet the document needs and the font
// families those rules use.
func (c *CriticalInliner) extract(doc *xhtml.Node, sheet *css.Stylesheet) (string, map[string]bool) {
	kept := filterRules(doc, sheet.Rules, c.opts.InlineFonts)

	animations := make(map[string]bool)
	families := make(map[string]bool)
	for _, rule := range kept {
		collectAnimations(rule, animations)
		collectFamilies(rule, families)
	}

	var sb strings.Builder
	for _, rule := range kept {
		sb.WriteString(rule.String())
		sb.WriteByte('\n')
	}
	for _, rule := range sheet.Rules {
		if isKeyframes(rule) && animations[strings.TrimSpace(rule.Prelude)] {
			sb.WriteString(rule.String())
			sb.WriteByte('\n')
		}
	}
	return sb.String(), families
}

func (c *CriticalInliner) deferLink(doc *xhtml.Node, link *xhtml.Node) {
	switch c.opts.Preload {
	case PreloadMedia:
		media := attrVal(link, "media")
		if media == "" {
			media = "all"
		}
		setAttrVal(link, "media", "print")
		setAttrVal(link, "onload", "this.media='"+media+"'")
		insertNoscript(link)
	case PreloadSwap:
		setAttrVal(link, "rel", "preload")
		setAttrVal(link, "as", "style")
		setAttrVal(link, "onload", "this.rel='stylesheet'")
		insertNoscript(link)
	case PreloadBody:
		var body []*xhtml.Node
		collect(doc, func(n *xhtml.Node) bool { return n.DataAtom == atom.Body }, &body)
		if len(body) > 0 {
			link.Parent.RemoveChild(link)
			body[0].AppendChild(link)
		}
	}
}

func insertNoscript(link *xhtml.Node) {
	fallback := &xhtml.Node{Type: xhtml.ElementNode, Data: "link", DataAtom: atom.Link}
	fallback.Attr = []xhtml.Attribute{
		{Key: "rel", Val: "stylesheet"},
		{Key: "href", Val: attrVal(link, "href")},
	}
	noscript := &xhtml.Node{Type: xhtml.ElementNode, Data: "noscript", DataAtom: atom.Noscript}
	noscript.AppendChild(fallback)
	link.Parent.InsertBefore(noscript, link.NextSibling)
}

// dynamicPseudo matches state and generated-content pseudos that never
// match a static document.
var dynamicPseudo = regexp.MustCompile(`::?(?:hover|focus-within|focus-visible|focus|active|visited|link|any-link|target|before|after|placeholder|selection|first-line|first-letter|marker|backdrop|-webkit-[a-z-]+|-moz-[a-z-]+)`)

func matchableSelector(sel string) string {
	s := strings.TrimSpace(dynamicPseudo.ReplaceAllString(sel, ""))
	if s == "" || strings.ContainsAny(s[len(s)-1:], ">+~") {
		s += "*"
	}
	return s
}

func selectorMatches(doc *xhtml.Node, sel string) bool {
	compiled, err := cascadia.Compile(matchableSelector(sel))
	if err != nil {
		return false
	}
	return compiled.MatchFirst(doc) != nil
}

func filterRules(doc *xhtml.Node, rules []*css.Rule, fonts bool) []*css.Rule {
	var kept []*css.Rule
	for _, rule := range rules {
		if rule.Kind == css.QualifiedRule {
			if len(rule.Declarations) == 0 {
				continue
			}
			var selectors []string
			for _, sel := range rule.Selectors {
				if selectorMatches(doc, sel) {
					selectors = append(selectors, sel)
				}
			}
			if len(selectors) == 0 {
				continue
			}
			copied := *rule
			copied.Selectors = selectors
			kept = append(kept, &copied)
			continue
		}

		switch strings.ToLower(rule.Name) {
		case "@font-face":
			if fonts {
				kept = append(kept, rule)
			}
		case "@media", "@supports", "@document":
			children := filterRules(doc, rule.Rules, fonts)
			if len(children) == 0 {
				continue
			}
			copied := *rule
			copied.Rules = children
			kept = append(kept, &copied)
		case "@charset", "@import":
		default:
			if !isKeyframes(rule) {
				kept = append(kept, rule)
			}
		}
	}
	return kept
}

func isKeyframes(rule *css.Rule) bool {
	return rule.Kind == css.AtRule && strings.HasSuffix(strings.ToLower(rule.Name), "keyframes")
}

func collectAnimations(rule *css.Rule, names map[string]bool) {
	for _, decl := range rule.Declarations {
		switch strings.ToLower(decl.Property) {
		case "animation", "animation-name":
			for _, part := range strings.FieldsFunc(decl.Value, func(r rune) bool { return r == ',' || r == ' ' }) {
				names[part] = true
			}
		}
	}
	for _, child := range rule.Rules {
		collectAnimations(child, names)
	}
}

var fontURL = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)

func collectFamilies(rule *css.Rule, families map[string]bool) {
	if rule.Kind == css.QualifiedRule {
		for _, decl := range rule.Declarations {
			switch strings.ToLower(decl.Property) {
			case "font-family", "font":
				for _, family := range strings.Split(decl.Value, ",") {
					families[normalizeFamily(family)] = true
				}
			}
		}
	}
	for _, child := range rule.Rules {
		collectFamilies(child, families)
	}
}

// normalizeFamily keeps the last word group of a font shorthand or family
// entry, unquoted and lowercased.
func normalizeFamily(value string) string {
	value = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "!important"))
	if strings.ContainsAny(value, `"'`) {
		if i := strings.IndexAny(value, `"'`); i >= 0 {
			value = value[i:]
		}
	} else if fields := strings.Fields(value); len(fields) > 0 {
		value = fields[len(fields)-1]
	}
	return strings.ToLower(strings.Trim(value, `"' `))
}

// fontSources returns the first src url of every @font-face in rules whose
// family is in families.
func fontSources(rules []*css.Rule, families map[string]bool) []string {
	var urls []string
	for _, rule := range rules {
		if rule.Kind != css.AtRule {
			continue
		}
		if !strings.EqualFold(rule.Name, "@font-face") {
			urls = append(urls, fontSources(rule.Rules, families)...)
			continue
		}

		var family, src string
		for _, decl := range rule.Declarations {
			switch strings.ToLower(decl.Property) {
			case "font-family":
				family = normalizeFamily(decl.Value)
			case "src":
				src = decl.Value
			}
		}
		if !families[family] {
			continue
		}
		if m := fontURL.FindStringSubmatch(src); m != nil && !strings.HasPrefix(m[1], "data:") {
			urls = append(urls, m[1])
		}
	}
	return urls
}

func insertFontPreloads(doc *xhtml.Node, fonts []string) {
	var heads []*xhtml.Node
	collect(doc, func(n *xhtml.Node) bool { return n.DataAtom == atom.Head }, &heads)
	if len(heads) == 0 {
		return
	}
	head := heads[0]
	first := head.FirstChild

	for _, href := range fonts {
		link := &xhtml.Node{Type: xhtml.ElementNode, Data: "link", DataAtom: atom.Link}
		link.Attr = []xhtml.Attribute{
			{Key: "rel", Val: "preload"},
			{Key: "as", Val: "font"},
			{Key: "crossorigin", Val: "anonymous"},
			{Key: "href", Val: href},
		}
		head.InsertBefore(link, first)
	}
}

func collect(n *xhtml.Node, match func(*xhtml.Node) bool, out *[]*xhtml.Node) {
	if n.Type == xhtml.ElementNode && match(n) {
		*out = append(*out, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collect(c, match, out)
	}
}

func attrVal(n *xhtml.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttrVal(n *xhtml.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, xhtml.Attribute{Key: key, Val: val})
}
