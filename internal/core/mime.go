package core

import (
	"path/filepath"
	"strings"
)

var contentTypes = map[string]string{
	".html":  "text/html; charset=utf-8",
	".css":   "text/css",
	".js":    "application/javascript",
	".mjs":   "application/javascript",
	".json":  "application/json",
	".conf":  "text/plain; charset=utf-8",
	".txt":   "text/plain; charset=utf-8",
	".xml":   "application/xml",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".svg":   "image/svg+xml",
	".webp":  "image/webp",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".eot":   "application/vnd.ms-fontobject",
	".ico":   "image/x-icon",
}

func GetContentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

// PreloadKind classifies an asset for head injection.
type PreloadKind int

const (
	PreloadNone PreloadKind = iota
	PreloadModule
	PreloadStylesheet
)

func PreloadKindFor(file string) PreloadKind {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".js", ".mjs":
		return PreloadModule
	case ".css":
		return PreloadStylesheet
	}
	return PreloadNone
}
