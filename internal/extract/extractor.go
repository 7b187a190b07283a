// Package extract produces a best-effort text representation of file
// content locally. The coordinator uses it when no token is available and
// the server-rendered content cannot be fetched.
package extract

import (
	"io"
	"strings"
)

type kind int

const (
	kindNone kind = iota
	kindText
	kindPDF
	kindXLSX
)

func kindOf(contentType string) kind {
	mime := strings.SplitN(contentType, ";", 2)[0]
	mime = strings.TrimSpace(strings.ToLower(mime))

	switch {
	case strings.HasPrefix(mime, "text/"),
		mime == "application/json",
		mime == "application/xml",
		mime == "application/javascript":
		return kindText
	case mime == "application/pdf":
		return kindPDF
	case mime == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		mime == "application/vnd.ms-excel":
		return kindXLSX
	default:
		return kindNone
	}
}

// Supported reports whether Text can render the given content type.
func Supported(contentType string) bool {
	return kindOf(contentType) != kindNone
}

// Text reads r and returns a textual rendering of the content.
// Returns ("", nil) for unsupported content types.
func Text(contentType string, r io.Reader) (string, error) {
	switch kindOf(contentType) {
	case kindText:
		return readAll(r)
	case kindPDF:
		return extractPDF(r)
	case kindXLSX:
		return extractXLSX(r)
	default:
		return "", nil
	}
}

func readAll(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
