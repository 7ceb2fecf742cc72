package adapters

import (
	"path/filepath"
	"regexp"
	"strings"
)

var jsExtensions = []string{".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx", ".mts", ".cts"}

var (
	jsImportRe     = regexp.MustCompile(`(?ms)^\s*import\s+(?:([^'"]*?)\s+from\s+)?["']([^"']+)["']`)
	jsExportFromRe = regexp.MustCompile(`(?ms)^\s*export\s+(\*(?:\s+as\s+\w+)?|\{.*?\})\s+from\s+["']([^"']+)["']`)
	jsRequireRe    = regexp.MustCompile(`(?m)(?:(?:const|let|var)\s+(\{[^}]*\}|[A-Za-z_$][\w$]*)\s*=\s*)?require\(\s*["']([^"']+)["']\s*\)`)

	jsExportDeclRe    = regexp.MustCompile(`(?m)^\s*export\s+(?:declare\s+)?(?:abstract\s+)?(?:async\s+)?(?:const|let|var|function\*?|class|type|interface|enum|namespace)\s+([A-Za-z_$][\w$]*)`)
	jsExportDefaultRe = regexp.MustCompile(`(?m)^\s*export\s+default\b`)
	jsExportListRe    = regexp.MustCompile(`(?ms)^\s*export\s+(?:type\s+)?\{(.*?)\}(\s+from\s+["'][^"']+["'])?`)
)

// NewJavaScriptAdapter returns the adapter for the JavaScript/TypeScript
// family. On cgo builds it parses with tree-sitter and falls back to
// line-oriented scanning; without cgo the scan path is used directly.
func NewJavaScriptAdapter() Adapter {
	return Adapter{
		Name:                   "javascript",
		Extensions:             jsExtensions,
		Parse:                  parseJavaScript,
		ExtractExportSignature: javaScriptSignature,
	}
}

func jsLanguageTag(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".tsx", ".mts", ".cts":
		return "typescript"
	default:
		return "javascript"
	}
}

func parseJavaScript(content []byte, path string) *ParsedFile {
	if !textLike(content) {
		return nil
	}

	lang := jsLanguageTag(path)
	imports, exports, ok := treeSitterExtract(content, lang, strings.ToLower(filepath.Ext(path)))
	if !ok {
		imports = scanJavaScriptImports(content)
		exports = scanJavaScriptExports(content)
	}

	return &ParsedFile{
		Path:            path,
		Language:        lang,
		Imports:         imports,
		ExportSignature: SignatureFromNames(exports),
		ContentHash:     HashContent(content),
	}
}

func javaScriptSignature(content []byte, path string) string {
	if !textLike(content) {
		return ""
	}
	_, exports, ok := treeSitterExtract(content, jsLanguageTag(path), strings.ToLower(filepath.Ext(path)))
	if !ok {
		exports = scanJavaScriptExports(content)
	}
	return SignatureFromNames(exports)
}

// scanJavaScriptImports extracts import statements with regular expressions.
// Heuristic by design; unparseable statements are skipped, never fatal.
func scanJavaScriptImports(content []byte) []Import {
	var imports []Import
	src := string(content)

	for _, m := range jsImportRe.FindAllStringSubmatch(src, -1) {
		imp := Import{Source: m[2], IsRelative: isRelativeSpecifier(m[2])}
		imp.Default, imp.Named = parseImportClause(m[1])
		imports = append(imports, imp)
	}

	for _, m := range jsExportFromRe.FindAllStringSubmatch(src, -1) {
		imp := Import{Source: m[2], IsRelative: isRelativeSpecifier(m[2])}
		if strings.HasPrefix(m[1], "{") {
			_, imp.Named = parseImportClause(m[1])
		}
		imports = append(imports, imp)
	}

	for _, m := range jsRequireRe.FindAllStringSubmatch(src, -1) {
		imp := Import{Source: m[2], IsRelative: isRelativeSpecifier(m[2])}
		if binding := strings.TrimSpace(m[1]); binding != "" {
			if strings.HasPrefix(binding, "{") {
				_, imp.Named = parseImportClause(binding)
			} else {
				imp.Default = binding
			}
		}
		imports = append(imports, imp)
	}

	return imports
}

// scanJavaScriptExports collects exported names for the signature digest.
func scanJavaScriptExports(content []byte) []string {
	var names []string
	src := string(content)

	for _, m := range jsExportDeclRe.FindAllStringSubmatch(src, -1) {
		names = append(names, m[1])
	}

	if jsExportDefaultRe.MatchString(src) {
		names = append(names, "default")
	}

	for _, m := range jsExportListRe.FindAllStringSubmatch(src, -1) {
		names = append(names, splitBindingList(m[1])...)
	}

	return names
}

// parseImportClause splits an import clause into default and named bindings.
// Handles `Def`, `{a, b as c}`, `Def, {a}`, `* as ns`, and TS `type` modifiers.
func parseImportClause(clause string) (def string, named []string) {
	clause = strings.TrimSpace(clause)
	if clause == "" {
		return "", nil
	}
	clause = strings.TrimPrefix(clause, "type ")

	brace := strings.Index(clause, "{")
	if brace >= 0 {
		pre := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(clause[:brace]), ","))
		if pre != "" && !strings.HasPrefix(pre, "*") {
			def = pre
		}
		inner := clause[brace+1:]
		if end := strings.Index(inner, "}"); end >= 0 {
			inner = inner[:end]
		}
		named = splitBindingList(inner)
		return def, named
	}

	if strings.HasPrefix(clause, "*") {
		// `* as ns` binds the whole module object under one name.
		if idx := strings.Index(clause, " as "); idx >= 0 {
			named = append(named, strings.TrimSpace(clause[idx+4:]))
		}
		return "", named
	}

	return strings.TrimSuffix(clause, ","), nil
}

// splitBindingList parses `a, b as c, type D` into local binding names.
func splitBindingList(list string) []string {
	var names []string
	for _, part := range strings.Split(list, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		name = strings.TrimPrefix(name, "type ")
		if idx := strings.Index(name, " as "); idx >= 0 {
			name = strings.TrimSpace(name[idx+4:])
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// isRelativeSpecifier reports whether a JS specifier resolves inside the tree.
func isRelativeSpecifier(source string) bool {
	return strings.HasPrefix(source, "./") || strings.HasPrefix(source, "../") || source == "." || source == ".."
}

// textLike rejects content that cannot be source text (NUL bytes).
func textLike(content []byte) bool {
	for _, b := range content {
		if b == 0 {
			return false
		}
	}
	return true
}
