//go:build !cgo

package adapters

// TreeSitterAvailable reports whether AST-based extraction is compiled in.
// Returns false when CGO is disabled; adapters use regex scanning instead.
func TreeSitterAvailable() bool {
	return false
}

func treeSitterExtract(content []byte, lang, ext string) (imports []Import, exports []string, ok bool) {
	return nil, nil, false
}
