// Package classify decides which files get their textual content fetched
// after upload and which warrant server-side structured processing, from
// filename and declared MIME alone.
package classify

import (
	"path/filepath"
	"strings"
)

var textExtensions = map[string]bool{
	".txt": true, ".csv": true, ".json": true, ".log": true, ".md": true,
	".xml": true, ".html": true, ".css": true, ".js": true, ".ts": true,
	".py": true, ".java": true, ".cpp": true, ".c": true, ".h": true,
}

var textMIMEs = map[string]bool{
	"application/json":       true,
	"application/xml":        true,
	"application/javascript": true,
}

var structuredExtensions = map[string]bool{
	".csv": true, ".xlsx": true, ".xls": true,
	".json": true, ".txt": true, ".log": true,
}

// TextLike reports whether a file's textual content should be fetched.
// Either signal suffices: extension or MIME.
func TextLike(filename, mime string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if textExtensions[ext] {
		return true
	}
	mime = strings.TrimSpace(strings.ToLower(strings.SplitN(mime, ";", 2)[0]))
	if strings.HasPrefix(mime, "text/") {
		return true
	}
	return textMIMEs[mime]
}

// Structured reports whether a file warrants server-side processing into a
// structured summary.
func Structured(filename string) bool {
	return structuredExtensions[strings.ToLower(filepath.Ext(filename))]
}
