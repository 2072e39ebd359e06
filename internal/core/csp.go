package core

import (
	"fmt"
	"strings"
)

// RenderCSP substitutes the quoted hash list into the policy template and
// wraps it in the server-config directive for fileType.
func RenderCSP(cfg CSPConfig, hashes []string) (string, error) {
	if cfg.FileType != CSPFileTypeNginx {
		return "", fmt.Errorf("%w %q", ErrUnsupportedCSP, cfg.FileType)
	}

	quoted := make([]string, len(hashes))
	for i, h := range hashes {
		quoted[i] = "'sha256-" + h + "'"
	}

	value := strings.ReplaceAll(cfg.Template, InlineScriptHashesKey, strings.Join(quoted, " "))
	return fmt.Sprintf("add_header Content-Security-Policy \"%s\";\n", value), nil
}
