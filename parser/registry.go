package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

type Registry struct {
	parsers map[string]Parser
}

func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	// Register built-in parsers
	for _, p := range []Parser{&PDFParser{}, &CSVParser{}, &XLSXParser{}, &TextParser{}} {
		for _, f := range p.SupportedFormats() {
			r.parsers[f] = p
		}
	}
	return r
}

func (r *Registry) Get(format string) (Parser, error) {
	p, ok := r.parsers[format]
	if !ok {
		return nil, fmt.Errorf("no parser for format: %s", format)
	}
	return p, nil
}

func (r *Registry) Register(format string, p Parser) {
	r.parsers[format] = p
}

// mimeFormats maps sniffed MIME types to registry formats.
var mimeFormats = map[string]string{
	"application/pdf": "pdf",
	"text/csv":        "csv",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": "xlsx",
	"text/plain": "txt",
}

// DetectFormat sniffs the file content and falls back to the extension
// when the content is not conclusive (CSV files often sniff as text).
func DetectFormat(path string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detecting format: %w", err)
	}
	for m := mt; m != nil; m = m.Parent() {
		base, _, _ := strings.Cut(m.String(), ";")
		f, ok := mimeFormats[base]
		if !ok {
			continue
		}
		if f == "txt" && ext != "" && ext != "txt" {
			return ext, nil
		}
		return f, nil
	}
	if ext == "" {
		return "", fmt.Errorf("unrecognised content type %s", mt.String())
	}
	return ext, nil
}

// DetectBytes is DetectFormat for in-memory uploads.
func DetectBytes(data []byte, filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		base, _, _ := strings.Cut(m.String(), ";")
		if f, ok := mimeFormats[base]; ok {
			if f == "txt" && ext != "" {
				return ext
			}
			return f
		}
	}
	return ext
}
