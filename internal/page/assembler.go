// Package page turns a render result into a complete HTML document built
// from the shared page shell.
package page

import (
	"bytes"
	"fmt"
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/3-lines-studio/ssg/internal/core"
)

type Assembler struct {
	shell    string
	manifest core.SSRManifest
}

// NewAssembler keeps shell and manifest for the lifetime of a build. Both
// are only ever read.
func NewAssembler(shell string, manifest core.SSRManifest) *Assembler {
	return &Assembler{shell: shell, manifest: manifest}
}

func (a *Assembler) Shell() string {
	return a.shell
}

// Assemble mounts result into the shell and applies the head changes it
// asks for. root is used unless the result names its own container.
func (a *Assembler) Assemble(root string, result core.RenderResult) (string, error) {
	if result.Root != "" {
		root = result.Root
	}

	mounted, err := Mount(a.shell, root, result.HTML)
	if err != nil {
		return "", err
	}

	doc, err := xhtml.Parse(strings.NewReader(mounted))
	if err != nil {
		return "", fmt.Errorf("failed to parse document: %w", err)
	}

	head := findFirst(doc, atom.Head)
	if head == nil {
		return "", fmt.Errorf("document has no head element")
	}

	if len(result.Preload) > 0 && a.manifest != nil {
		appendPreloads(doc, head, a.manifest.Assets(result.Preload))
	}

	if err := applyMetadata(doc, head, result.Head); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := xhtml.Render(&buf, doc); err != nil {
		return "", fmt.Errorf("failed to render document: %w", err)
	}
	return buf.String(), nil
}
