// Package adapters maps file extensions to language capability records that
// extract imports and export signatures from source files.
package adapters

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// Import represents one import or re-export statement as written in source.
type Import struct {
	// Source is the specifier string as written (e.g. "./util", "react", "..models.user").
	Source string `json:"source"`
	// Named lists the named bindings, post-alias (e.g. {a, b as c} -> [a, c]).
	Named []string `json:"named,omitempty"`
	// Default is the default binding, if any.
	Default string `json:"default,omitempty"`
	// IsRelative marks specifiers that resolve inside the analyzed tree.
	IsRelative bool `json:"isRelative"`
}

// ParsedFile is the per-file parse result. Immutable once produced; a file
// whose content changes gets a new ParsedFile, never a mutated one.
type ParsedFile struct {
	Path            string   `json:"path"`
	Language        string   `json:"language"`
	Imports         []Import `json:"imports"`
	ExportSignature string   `json:"exportSignature"`
	ContentHash     string   `json:"contentHash"`
}

// HashContent returns the SHA-256 hex digest of file content.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return fmt.Sprintf("%x", sum[:])
}

// SignatureFromNames digests a set of exported names into an opaque,
// order-independent signature. Equal name sets produce equal signatures.
func SignatureFromNames(names []string) string {
	if len(names) == 0 {
		return ""
	}
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)

	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return fmt.Sprintf("%x", sum[:])[:16]
}
