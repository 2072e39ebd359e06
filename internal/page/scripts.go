package page

import (
	"fmt"
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/3-lines-studio/ssg/internal/core"
)

// InlineScripts returns the text of every script element without a src
// attribute, in document order. document should be the final page so the
// text matches what a browser hashes.
func InlineScripts(document string) ([]string, error) {
	doc, err := xhtml.Parse(strings.NewReader(document))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	var scripts []string
	for _, script := range findAll(doc, atom.Script, nil) {
		if hasAttr(script.Attr, "src") {
			continue
		}
		scripts = append(scripts, scriptText(script))
	}
	return scripts, nil
}

// HashInlineScripts adds the digest of every inline script in document to set.
func HashInlineScripts(document string, set *core.HashSet) error {
	scripts, err := InlineScripts(document)
	if err != nil {
		return err
	}
	for _, script := range scripts {
		set.Add(core.HashContent([]byte(script)))
	}
	return nil
}

func scriptText(n *xhtml.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		// script content is raw text and is never entity-decoded
		if c.Type == xhtml.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
