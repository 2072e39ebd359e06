package core

import (
	"fmt"
	"path"
	"strings"
)

func ValidateRoutePath(route string) error {
	if route == "" {
		return fmt.Errorf("path cannot be empty")
	}

	if !strings.HasPrefix(route, "/") {
		return fmt.Errorf("path must start with /")
	}

	if strings.Contains(route, "?") {
		return fmt.Errorf("path cannot contain query string")
	}

	if strings.Contains(route, "#") {
		return fmt.Errorf("path cannot contain fragment")
	}

	if strings.Contains(route, "..") {
		return fmt.Errorf("path cannot contain parent directory references")
	}

	if strings.Contains(route, "*") {
		return fmt.Errorf("path cannot contain wildcards")
	}

	return nil
}

// OutputFile maps a route to its slash-separated path relative to the
// output directory.
func OutputFile(route string, style DirStyle) string {
	if style == DirStyleFlat {
		name := route
		if strings.HasSuffix(name, "/") {
			name += "index"
		}
		return strings.TrimLeft(name, "/") + ".html"
	}

	return path.Join(strings.TrimLeft(route, "/"), "index.html")
}
