package adapters

import (
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
)

// Adapter is a language capability record. Adapters are plain values, not
// interface implementations; dispatch is by extension lookup.
type Adapter struct {
	Name       string
	Extensions []string

	// Parse extracts imports and the export signature from content.
	// Returns nil on parse failure; callers skip nil results.
	Parse func(content []byte, path string) *ParsedFile

	// ExtractExportSignature digests the exported names of content. The path
	// selects the grammar so the digest matches what Parse would produce for
	// the same bytes.
	// Used standalone to recompute signatures for base-branch content.
	ExtractExportSignature func(content []byte, path string) string
}

// Registry holds the registered adapters keyed by extension. It is
// explicitly constructed and passed in; there is no package-level instance.
type Registry struct {
	byExt  map[string]Adapter
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		byExt:  make(map[string]Adapter),
		logger: logger,
	}
}

// DefaultRegistry creates a registry with the shipped adapters registered.
func DefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(NewJavaScriptAdapter())
	r.Register(NewPythonAdapter())
	return r
}

// Register adds an adapter under each of its declared extensions.
// The last registration for a given extension wins; collisions log a warning.
func (r *Registry) Register(a Adapter) {
	for _, ext := range a.Extensions {
		ext = normalizeExt(ext)
		if prev, ok := r.byExt[ext]; ok && prev.Name != a.Name {
			r.logger.Warn("adapter extension collision, last registration wins",
				"extension", ext,
				"replaced", prev.Name,
				"adapter", a.Name,
			)
		}
		r.byExt[ext] = a
	}
}

// Resolve returns the adapter registered for an extension.
func (r *Registry) Resolve(ext string) (Adapter, bool) {
	a, ok := r.byExt[normalizeExt(ext)]
	return a, ok
}

// ResolvePath returns the adapter for a file path's extension.
func (r *Registry) ResolvePath(path string) (Adapter, bool) {
	return r.Resolve(filepath.Ext(path))
}

// Parse delegates to the adapter matching the path's extension.
// Unmapped extensions and parse failures both return nil, never an error;
// the caller must skip the file rather than abort.
func (r *Registry) Parse(content []byte, path string) *ParsedFile {
	a, ok := r.ResolvePath(path)
	if !ok {
		return nil
	}
	pf := a.Parse(content, path)
	if pf == nil {
		r.logger.Debug("parse failed, skipping file", "path", path, "adapter", a.Name)
		return nil
	}
	return pf
}

// Extensions returns the sorted set of registered extensions.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
