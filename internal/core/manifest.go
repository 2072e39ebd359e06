package core

import (
	"encoding/json"
	"fmt"
)

// SSRManifest maps a bundler module id to the asset files it needs.
type SSRManifest map[string][]string

func ParseSSRManifest(data []byte) (SSRManifest, error) {
	var m SSRManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid ssr manifest: %w", err)
	}
	if m == nil {
		m = SSRManifest{}
	}
	return m, nil
}

// Assets returns every file reachable from ids, first occurrence wins.
// A listed file that is itself a manifest key is followed.
func (m SSRManifest) Assets(ids []string) []string {
	var files []string
	seen := make(map[string]bool)
	visited := make(map[string]bool)

	var walk func(id string)
	walk = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, file := range m[id] {
			if !seen[file] {
				seen[file] = true
				files = append(files, file)
			}
			if _, ok := m[file]; ok {
				walk(file)
			}
		}
	}

	for _, id := range ids {
		walk(id)
	}
	return files
}
