package page

import (
	"html"
	"io"
	"strings"

	xhtml "golang.org/x/net/html"

	"github.com/3-lines-studio/ssg/internal/core"
)

const renderedFlag = ` ` + core.RenderedAttr + `="true"`

// Mount places rendered markup inside the element whose id is root.
func Mount(shell, root, rendered string) (string, error) {
	empty := `<div id="` + root + `"></div>`
	if i := strings.Index(shell, empty); i >= 0 {
		var sb strings.Builder
		sb.Grow(len(shell) + len(rendered) + len(renderedFlag))
		sb.WriteString(shell[:i])
		sb.WriteString(`<div id="` + root + `"` + renderedFlag + `>`)
		sb.WriteString(rendered)
		sb.WriteString(`</div>`)
		sb.WriteString(shell[i+len(empty):])
		return sb.String(), nil
	}

	span, ok := findElement(shell, root)
	if !ok {
		return "", &core.MissingRootError{Root: root}
	}

	var sb strings.Builder
	sb.WriteString(shell[:span.start])
	sb.WriteString(openTag(span.tag, span.attrs))
	sb.WriteString(rendered)
	sb.WriteString("</" + span.tag + ">")
	sb.WriteString(shell[span.end:])
	return sb.String(), nil
}

type elementSpan struct {
	tag   string
	attrs []xhtml.Attribute
	start int
	end   int
}

// findElement returns the byte span of the first element with the given
// id, from its start tag through its matching end tag. An element that is
// never closed spans its start tag only.
func findElement(shell, id string) (elementSpan, bool) {
	z := xhtml.NewTokenizer(strings.NewReader(shell))

	var span elementSpan
	found := false
	depth := 0
	offset := 0

	for {
		tt := z.Next()
		if tt == xhtml.ErrorToken {
			if z.Err() != io.EOF {
				return elementSpan{}, false
			}
			if found {
				return span, true
			}
			return elementSpan{}, false
		}

		raw := len(z.Raw())
		tokenStart := offset
		offset += raw

		tok := z.Token()

		if !found {
			if tt != xhtml.StartTagToken && tt != xhtml.SelfClosingTagToken {
				continue
			}
			if attr(tok.Attr, "id") != id {
				continue
			}
			span = elementSpan{tag: tok.Data, attrs: tok.Attr, start: tokenStart, end: offset}
			found = true
			if tt == xhtml.SelfClosingTagToken || isVoid(tok.Data) {
				return span, true
			}
			depth = 1
			continue
		}

		if tok.Data != span.tag {
			continue
		}
		switch tt {
		case xhtml.StartTagToken:
			depth++
		case xhtml.EndTagToken:
			depth--
			if depth == 0 {
				span.end = offset
				return span, true
			}
		}
	}
}

func openTag(tag string, attrs []xhtml.Attribute) string {
	var sb strings.Builder
	sb.WriteString("<" + tag)
	for _, a := range attrs {
		if a.Key == core.RenderedAttr {
			continue
		}
		sb.WriteString(" " + a.Key + `="` + html.EscapeString(a.Val) + `"`)
	}
	sb.WriteString(renderedFlag + ">")
	return sb.String()
}

func attr(attrs []xhtml.Attribute, key string) string {
	for _, a := range attrs {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(attrs []xhtml.Attribute, key string) bool {
	for _, a := range attrs {
		if a.Namespace == "" && a.Key == key {
			return true
		}
	}
	return false
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true,
	"img": true, "input": true, "link": true, "meta": true, "source": true,
	"track": true, "wbr": true,
}

func isVoid(tag string) bool {
	return voidElements[tag]
}
