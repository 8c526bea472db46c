// Package parser extracts plain text from uploaded document files.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrUnsupportedType is returned for file extensions outside pdf/md/txt.
var ErrUnsupportedType = errors.New("unsupported file type")

// Supported reports whether the filename has an extension this parser handles.
func Supported(filename string) bool {
	switch ext(filename) {
	case "pdf", "md", "txt":
		return true
	}
	return false
}

// Extract returns the plain text content of the file. Markdown and text
// files are decoded as UTF-8 with invalid sequences dropped; PDFs are
// read page by page via the pdf library.
func Extract(content []byte, filename string) (string, error) {
	switch ext(filename) {
	case "pdf":
		return extractPDF(content)
	case "md", "txt":
		return strings.ToValidUTF8(string(content), ""), nil
	}
	return "", ErrUnsupportedType
}

func extractPDF(content []byte) (text string, err error) {
	// The pdf library panics on some malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parsing pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}

	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return string(b), nil
}

// FileType returns the lowercase extension without the dot, e.g. "pdf".
func FileType(filename string) string {
	return ext(filename)
}

func ext(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}
