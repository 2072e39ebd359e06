package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3-lines-studio/ssg/internal/core"
)

func TestInlineScripts(t *testing.T) {
	document := "<!DOCTYPE html><html><head>" +
		"<script>window.a = 1;</script>" +
		`<script src="/ext.js"></script>` +
		`<script type="application/ld+json">{"@type":"WebSite","name":"a &amp; b"}</script>` +
		"</head><body>\n  <script>\n    if (a < b) go();\n  </script>\n</body></html>"

	scripts, err := InlineScripts(document)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"window.a = 1;",
		`{"@type":"WebSite","name":"a &amp; b"}`,
		"\n    if (a < b) go();\n  ",
	}, scripts)
}

func TestHashInlineScripts(t *testing.T) {
	set := core.NewHashSet()
	for _, document := range []string{
		`<html><head><script>window.a = 1;</script></head><body></body></html>`,
		`<html><head><script>window.a = 1;</script></head><body><script>track()</script></body></html>`,
	} {
		require.NoError(t, HashInlineScripts(document, set))
	}

	assert.ElementsMatch(t, []string{
		core.HashContent([]byte("window.a = 1;")),
		core.HashContent([]byte("track()")),
	}, set.Sorted(), "identical scripts hash once")
	assert.IsIncreasing(t, set.Sorted())
}

func TestInlineScriptsNone(t *testing.T) {
	scripts, err := InlineScripts(testShell)
	require.NoError(t, err)
	assert.Empty(t, scripts)
}
