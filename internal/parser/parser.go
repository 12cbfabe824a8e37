package parser

import (
	"path/filepath"
	"strings"

	"github.com/medialib/scenesearch/pkg/types"
)

// ContentParser converts an on-disk subtitle or metadata file into a
// sequence of parsed entries for the chunk processor.
type ContentParser interface {
	// Parse reads the file at path and returns its entries in document
	// order. A file the parser cannot make sense of yields an error;
	// an empty but well-formed file yields an empty slice.
	Parse(path string) ([]types.ParsedEntry, error)

	// CanParse reports whether this parser handles the given path,
	// judged by extension.
	CanParse(path string) bool

	// Extensions returns the lowercase file extensions (with dot) this
	// parser supports.
	Extensions() []string
}

// Registry dispatches files to the parser that claims them.
type Registry struct {
	parsers []ContentParser
}

// NewRegistry creates a registry with all built-in parsers registered.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(NewSRTParser())
	r.Register(NewASSParser())
	r.Register(NewVTTParser())
	r.Register(NewNFOParser())
	return r
}

// Register adds a parser. Later registrations take precedence over
// earlier ones for overlapping extensions.
func (r *Registry) Register(p ContentParser) {
	r.parsers = append([]ContentParser{p}, r.parsers...)
}

// ParserFor returns the parser that handles path, or nil.
func (r *Registry) ParserFor(path string) ContentParser {
	for _, p := range r.parsers {
		if p.CanParse(path) {
			return p
		}
	}
	return nil
}

// Parse dispatches to the matching parser.
func (r *Registry) Parse(path string) ([]types.ParsedEntry, error) {
	p := r.ParserFor(path)
	if p == nil {
		return nil, &UnsupportedFormatError{Path: path}
	}
	return p.Parse(path)
}

// CanParse reports whether any registered parser handles path.
func (r *Registry) CanParse(path string) bool {
	return r.ParserFor(path) != nil
}

// Extensions returns the union of all registered extensions.
func (r *Registry) Extensions() []string {
	seen := make(map[string]bool)
	exts := make([]string, 0)
	for _, p := range r.parsers {
		for _, ext := range p.Extensions() {
			if !seen[ext] {
				seen[ext] = true
				exts = append(exts, ext)
			}
		}
	}
	return exts
}

// UnsupportedFormatError indicates no registered parser claims a file.
type UnsupportedFormatError struct {
	Path string
}

func (e *UnsupportedFormatError) Error() string {
	return "unsupported file format: " + e.Path
}

// hasExtension checks path against a set of lowercase extensions.
func hasExtension(path string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}
