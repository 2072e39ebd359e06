package page

import (
	"fmt"
	"sort"
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/3-lines-studio/ssg/internal/core"
)

func findFirst(n *xhtml.Node, a atom.Atom) *xhtml.Node {
	if n.Type == xhtml.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *xhtml.Node, a atom.Atom, out []*xhtml.Node) []*xhtml.Node {
	if n.Type == xhtml.ElementNode && n.DataAtom == a {
		out = append(out, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = findAll(c, a, out)
	}
	return out
}

func setAttr(n *xhtml.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, xhtml.Attribute{Key: key, Val: val})
}

func newElement(tag string, attrs ...xhtml.Attribute) *xhtml.Node {
	tag = strings.ToLower(tag)
	return &xhtml.Node{
		Type:     xhtml.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
		Attr:     attrs,
	}
}

func setText(n *xhtml.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&xhtml.Node{Type: xhtml.TextNode, Data: text})
}

func applyMetadata(doc, head *xhtml.Node, meta *core.HeadMetadata) error {
	if meta == nil {
		return nil
	}

	if meta.Lang != "" {
		if root := findFirst(doc, atom.Html); root != nil {
			setAttr(root, "lang", meta.Lang)
		}
	}

	if meta.Title != "" {
		title := findFirst(head, atom.Title)
		if title == nil {
			title = newElement("title")
			head.AppendChild(title)
		}
		setText(title, meta.Title)
	}

	for i, el := range meta.Elements {
		if err := appendHeadElement(head, el); err != nil {
			return fmt.Errorf("head element %d: %w", i, err)
		}
	}
	return nil
}

func appendHeadElement(head *xhtml.Node, el core.HeadElement) error {
	if el.IsRaw() {
		nodes, err := xhtml.ParseFragment(strings.NewReader(el.Raw), head)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			head.AppendChild(n)
		}
		return nil
	}

	n := newElement(el.Tag)

	keys := make([]string, 0, len(el.Props))
	for k := range el.Props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		val := el.Props[key]
		switch key {
		case "textContent", "innerText":
			setText(n, fmt.Sprint(val))
			continue
		case "innerHTML":
			nodes, err := xhtml.ParseFragment(strings.NewReader(fmt.Sprint(val)), n)
			if err != nil {
				return err
			}
			for _, c := range nodes {
				n.AppendChild(c)
			}
			continue
		case "className":
			key = "class"
		case "htmlFor":
			key = "for"
		}

		switch v := val.(type) {
		case nil:
		case bool:
			if v {
				setAttr(n, strings.ToLower(key), "")
			}
		default:
			setAttr(n, strings.ToLower(key), fmt.Sprint(v))
		}
	}

	head.AppendChild(n)
	return nil
}

// appendPreloads adds a link for every asset not already linked from the
// document.
func appendPreloads(doc, head *xhtml.Node, assets []string) {
	linked := make(map[string]bool)
	for _, l := range findAll(doc, atom.Link, nil) {
		if href := attr(l.Attr, "href"); href != "" {
			linked[href] = true
		}
	}

	for _, file := range assets {
		if linked[file] {
			continue
		}

		switch core.PreloadKindFor(file) {
		case core.PreloadModule:
			head.AppendChild(newElement("link",
				xhtml.Attribute{Key: "rel", Val: "modulepreload"},
				xhtml.Attribute{Key: "crossorigin", Val: ""},
				xhtml.Attribute{Key: "href", Val: file},
			))
		case core.PreloadStylesheet:
			head.AppendChild(newElement("link",
				xhtml.Attribute{Key: "rel", Val: "stylesheet"},
				xhtml.Attribute{Key: "href", Val: file},
			))
		default:
			continue
		}
		linked[file] = true
	}
}
