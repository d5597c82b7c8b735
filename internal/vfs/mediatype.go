package vfs

import (
	"mime"
	"net/http"
	"path"
	"strings"
)

// Media types assigned when nothing more specific is known.
const (
	MediaTypeFolder  = "inode/directory"
	MediaTypeDefault = "application/octet-stream"
	MediaTypeText    = "text/plain"
)

var extraTypes = map[string]string{
	".go":   "text/x-go",
	".java": "text/x-java",
	".md":   "text/markdown",
	".yaml": "text/yaml",
	".yml":  "text/yaml",
	".json": "application/json",
	".ts":   "application/typescript",
	".sh":   "application/x-sh",
}

// DetectMediaType guesses a media type from the file name and, failing
// that, from the first bytes of content.
func DetectMediaType(name string, content []byte) string {
	ext := strings.ToLower(path.Ext(name))
	if t, ok := extraTypes[ext]; ok {
		return t
	}
	if ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			return stripParams(t)
		}
	}
	if len(content) == 0 {
		return MediaTypeText
	}
	return stripParams(http.DetectContentType(content))
}

func stripParams(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		return strings.TrimSpace(t[:i])
	}
	return t
}
