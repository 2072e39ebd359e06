package env

import (
	"os"
	"strings"
)

const DefaultMode = "production"

// DetectMode returns the build mode from MODE or NODE_ENV, else production.
func DetectMode() string {
	return detectMode(os.Getenv)
}

func detectMode(getenv func(string) string) string {
	for _, key := range []string{"MODE", "NODE_ENV"} {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
	}
	return DefaultMode
}
