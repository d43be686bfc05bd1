package pipeline

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html/charset"
)

// ReadDocumentFile loads a saved receipt page for offline parsing. HTML is
// decoded from its declared charset; PDFs are reduced to their text.
func ReadDocumentFile(path string) (string, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return pdfText(blob)
	case ".html", ".htm", ".xhtml", ".txt", ".md", "":
		enc, name, _ := charset.DetermineEncoding(blob, "text/html")
		decoded, err := io.ReadAll(enc.NewDecoder().Reader(bytes.NewReader(blob)))
		if err != nil {
			return "", fmt.Errorf("decode %s as %s: %w", path, name, err)
		}
		return string(decoded), nil
	default:
		return "", fmt.Errorf("unsupported document type: %s", filepath.Ext(path))
	}
}
