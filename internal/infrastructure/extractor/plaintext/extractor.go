package plaintext

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// DefaultExtensions are the file types read from a corpus directory.
var DefaultExtensions = []string{".txt", ".md", ".markdown", ".rst"}

// Document is the text of one source file. Path is slash-separated and relative to the root.
type Document struct {
	Path string
	Text string
}

// ReadDir walks root in lexical order and returns every non-empty text file whose
// extension is listed. Binary content is an error.
func ReadDir(root string, extensions []string) ([]Document, error) {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = struct{}{}
	}

	var docs []Document
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := allowed[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		text, err := extract(path)
		if err != nil {
			return err
		}
		if text == "" {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		docs = append(docs, Document{Path: filepath.ToSlash(rel), Text: text})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read corpus dir %s: %w", root, err)
	}
	return docs, nil
}

func extract(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("unsupported binary format: %s", path)
	}
	return strings.TrimSpace(string(raw)), nil
}
