package adapters

import (
	"path/filepath"
	"regexp"
	"strings"
)

var pyExtensions = []string{".py", ".pyi"}

var (
	pyImportRe = regexp.MustCompile(`(?m)^[ \t]*import[ \t]+([\w.]+(?:[ \t]+as[ \t]+\w+)?(?:[ \t]*,[ \t]*[\w.]+(?:[ \t]+as[ \t]+\w+)?)*)`)
	pyFromRe   = regexp.MustCompile(`(?m)^[ \t]*from[ \t]+([.\w]+)[ \t]+import[ \t]+(\([^)]*\)|[^\n]+)`)
	pyDefRe    = regexp.MustCompile(`(?m)^(?:async[ \t]+)?def[ \t]+(\w+)`)
	pyClassRe  = regexp.MustCompile(`(?m)^class[ \t]+(\w+)`)
	pyAssignRe = regexp.MustCompile(`(?m)^(\w+)[ \t]*(?::[^=\n]+)?=[^=]`)
	pyAllRe    = regexp.MustCompile(`(?s)__all__[ \t]*(?::[^=\n]*)?=[ \t]*[\[(](.*?)[\])]`)
	pyStringRe = regexp.MustCompile(`["']([^"']+)["']`)
)

// NewPythonAdapter returns the built-in Python adapter. Imports keep their
// source text as written ("..models.user" stays dotted); resolution happens
// later in the graph builder.
func NewPythonAdapter() Adapter {
	return Adapter{
		Name:                   "python",
		Extensions:             pyExtensions,
		Parse:                  parsePython,
		ExtractExportSignature: pythonSignature,
	}
}

func parsePython(content []byte, path string) *ParsedFile {
	if !textLike(content) {
		return nil
	}

	imports, exports, ok := treeSitterExtract(content, "python", strings.ToLower(filepath.Ext(path)))
	if !ok {
		imports = scanPythonImports(content)
		exports = scanPythonExports(content)
	}

	return &ParsedFile{
		Path:            path,
		Language:        "python",
		Imports:         imports,
		ExportSignature: SignatureFromNames(exports),
		ContentHash:     HashContent(content),
	}
}

func pythonSignature(content []byte, path string) string {
	if !textLike(content) {
		return ""
	}
	_, exports, ok := treeSitterExtract(content, "python", strings.ToLower(filepath.Ext(path)))
	if !ok {
		exports = scanPythonExports(content)
	}
	return SignatureFromNames(exports)
}

func scanPythonImports(content []byte) []Import {
	var imports []Import
	text := string(content)

	for _, m := range pyImportRe.FindAllStringSubmatch(text, -1) {
		for _, part := range strings.Split(m[1], ",") {
			part = strings.TrimSpace(part)
			if idx := strings.Index(part, " as "); idx >= 0 {
				part = strings.TrimSpace(part[:idx])
			}
			if part == "" {
				continue
			}
			imports = append(imports, Import{Source: part})
		}
	}

	for _, m := range pyFromRe.FindAllStringSubmatch(text, -1) {
		imp := Import{
			Source:     m[1],
			IsRelative: strings.HasPrefix(m[1], "."),
			Named:      splitPythonImportList(m[2]),
		}
		imports = append(imports, imp)
	}

	return imports
}

func splitPythonImportList(list string) []string {
	list = strings.TrimSpace(list)
	list = strings.TrimPrefix(list, "(")
	list = strings.TrimSuffix(list, ")")

	var names []string
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if idx := strings.Index(part, "#"); idx >= 0 {
			part = strings.TrimSpace(part[:idx])
		}
		if idx := strings.Index(part, " as "); idx >= 0 {
			part = strings.TrimSpace(part[idx+4:])
		}
		if part == "" || part == "\\" {
			continue
		}
		names = append(names, part)
	}
	return names
}

// scanPythonExports returns the module's public surface: __all__ when
// declared, otherwise top-level def/class/assignment names that do not start
// with an underscore.
func scanPythonExports(content []byte) []string {
	text := string(content)

	if m := pyAllRe.FindStringSubmatch(text); m != nil {
		var names []string
		for _, s := range pyStringRe.FindAllStringSubmatch(m[1], -1) {
			names = append(names, s[1])
		}
		return names
	}

	var names []string
	collect := func(re *regexp.Regexp) {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if !strings.HasPrefix(m[1], "_") {
				names = append(names, m[1])
			}
		}
	}
	collect(pyDefRe)
	collect(pyClassRe)
	collect(pyAssignRe)
	return names
}
