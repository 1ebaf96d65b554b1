package convert

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/seanblong/docqa/internal/discovery"
	"github.com/seanblong/docqa/pkg/models"
)

// Document kinds recorded on every chunk.
const (
	KindText     = "text"
	KindMarkdown = "markdown"
	KindHTML     = "html"
	KindDocx     = "docx"
	KindCSV      = "csv"
	KindTSV      = "tsv"
)

// Document is converted plain text plus its kind tag.
type Document struct {
	Text string
	Kind string
}

// Converter turns a file on disk into text.
type Converter interface {
	Convert(ctx context.Context, path string) (Document, error)
}

// Func converts raw file bytes.
type Func func(data []byte) (Document, error)

// FileReader defines the interface for reading files
type FileReader interface {
	ReadFile(filename string) ([]byte, error)
}

// DefaultFileReader implements FileReader using os
type DefaultFileReader struct{}

func (d *DefaultFileReader) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

// Registry dispatches on the lowercased file extension.
type Registry struct {
	Reader FileReader

	mu    sync.RWMutex
	byExt map[string]Func
}

// NewRegistry returns a Registry with the built-in converters.
func NewRegistry() *Registry {
	r := &Registry{Reader: &DefaultFileReader{}, byExt: make(map[string]Func)}
	r.Register("txt", Text(KindText))
	r.Register("md", Text(KindMarkdown))
	r.Register("html", HTML)
	r.Register("htm", HTML)
	r.Register("docx", Docx)
	r.Register("csv", Delimited(',', KindCSV))
	r.Register("tsv", Delimited('\t', KindTSV))
	return r
}

// Register installs fn for ext, replacing any existing converter.
func (r *Registry) Register(ext string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byExt[strings.TrimPrefix(strings.ToLower(ext), ".")] = fn
}

// Supports reports whether ext has a converter.
func (r *Registry) Supports(ext string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byExt[strings.TrimPrefix(strings.ToLower(ext), ".")]
	return ok
}

// Extensions returns the registered extensions, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byExt))
	for e := range r.byExt {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// Convert reads path and runs the converter registered for its extension.
// Read failures wrap models.ErrFileRead; everything else wraps
// models.ErrConversionFailed.
func (r *Registry) Convert(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	ext := discovery.Extension(path)
	r.mu.RLock()
	fn, ok := r.byExt[ext]
	r.mu.RUnlock()
	if !ok {
		return Document{}, fmt.Errorf("%w: no converter for %q files", models.ErrConversionFailed, ext)
	}

	data, err := r.Reader.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %s: %w", models.ErrFileRead, path, err)
	}

	doc, err := fn(data)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %s: %w", models.ErrConversionFailed, path, err)
	}
	return doc, nil
}

// Text passes the bytes through, replacing invalid UTF-8.
func Text(kind string) Func {
	return func(data []byte) (Document, error) {
		return Document{Text: strings.ToValidUTF8(string(data), "�"), Kind: kind}, nil
	}
}
