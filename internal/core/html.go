package core

import (
	"regexp"
	"strings"
)

const DefaultEntry = "src/main.ts"

var moduleScriptSrc = regexp.MustCompile(`<script[^>]*type=["']module["'][^>]*src=["']([^"']+)["']|<script[^>]*src=["']([^"']+)["'][^>]*type=["']module["']`)

// DetectEntry returns the source of the first module script in a project
// index.html, relative to the project root.
func DetectEntry(indexHTML string) string {
	m := moduleScriptSrc.FindStringSubmatch(indexHTML)
	if m == nil {
		return DefaultEntry
	}

	src := m[1]
	if src == "" {
		src = m[2]
	}
	src = strings.TrimPrefix(src, "/")
	src = strings.TrimPrefix(src, "./")
	if src == "" {
		return DefaultEntry
	}
	return src
}

// RewriteScripts applies the loading mode to every module script tag.
func RewriteScripts(shell string, mode ScriptMode) string {
	if mode == "" || mode == ScriptSync {
		return shell
	}
	return strings.ReplaceAll(shell, `<script type="module" `, `<script type="module" `+string(mode)+" ")
}

func ValidScriptMode(mode ScriptMode) bool {
	switch mode {
	case ScriptSync, ScriptAsync, ScriptDefer, ScriptAsyncDefer:
		return true
	}
	return false
}
