//go:build cgo

package adapters

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// TreeSitterAvailable reports whether AST-based extraction is compiled in.
func TreeSitterAvailable() bool {
	return true
}

func sitterLanguage(lang, ext string) *sitter.Language {
	switch {
	case lang == "python":
		return python.GetLanguage()
	case ext == ".tsx":
		return tsx.GetLanguage()
	case lang == "typescript":
		return typescript.GetLanguage()
	default:
		return javascript.GetLanguage()
	}
}

func nodeText(n *sitter.Node, source []byte) string {
	return string(source[n.StartByte():n.EndByte()])
}

// treeSitterExtract parses content and extracts imports plus exported names
// from the AST. ok=false (parse failure or syntax errors in the tree) tells
// the caller to fall back to the regex scan path.
func treeSitterExtract(content []byte, lang, ext string) (imports []Import, exports []string, ok bool) {
	parser := sitter.NewParser()
	parser.SetLanguage(sitterLanguage(lang, ext))

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, nil, false
	}
	root := tree.RootNode()
	if root == nil || root.HasError() {
		return nil, nil, false
	}

	if lang == "python" {
		imports, exports = pythonFromAST(root, content)
	} else {
		imports, exports = javascriptFromAST(root, content)
	}
	return imports, exports, true
}

func javascriptFromAST(root *sitter.Node, source []byte) ([]Import, []string) {
	var imports []Import
	var exports []string

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "import_statement":
			if src := n.ChildByFieldName("source"); src != nil {
				imp := Import{Source: unquote(nodeText(src, source))}
				imp.IsRelative = isRelativeSpecifier(imp.Source)
				for i := uint32(0); i < n.NamedChildCount(); i++ {
					child := n.NamedChild(int(i))
					if child != nil && child.Type() == "import_clause" {
						imp.Default, imp.Named = parseImportClause(nodeText(child, source))
					}
				}
				imports = append(imports, imp)
			}

		case "export_statement":
			if src := n.ChildByFieldName("source"); src != nil {
				// Re-export: both an import edge and exported names.
				imp := Import{Source: unquote(nodeText(src, source))}
				imp.IsRelative = isRelativeSpecifier(imp.Source)
				for i := uint32(0); i < n.NamedChildCount(); i++ {
					child := n.NamedChild(int(i))
					if child != nil && child.Type() == "export_clause" {
						_, imp.Named = parseImportClause(nodeText(child, source))
						exports = append(exports, imp.Named...)
					}
				}
				imports = append(imports, imp)
				break
			}
			exports = append(exports, jsExportNames(n, source)...)

		case "call_expression":
			if fn := n.ChildByFieldName("function"); fn != nil && nodeText(fn, source) == "require" {
				if args := n.ChildByFieldName("arguments"); args != nil && args.NamedChildCount() > 0 {
					arg := args.NamedChild(0)
					if arg != nil && arg.Type() == "string" {
						spec := unquote(nodeText(arg, source))
						imports = append(imports, Import{
							Source:     spec,
							IsRelative: isRelativeSpecifier(spec),
						})
					}
				}
			}
		}

		for i := uint32(0); i < n.NamedChildCount(); i++ {
			if child := n.NamedChild(int(i)); child != nil {
				walk(child)
			}
		}
	}
	walk(root)

	return imports, exports
}

// jsExportNames collects the names declared by a local export statement.
func jsExportNames(n *sitter.Node, source []byte) []string {
	var names []string

	if strings.HasPrefix(strings.TrimSpace(strings.TrimPrefix(nodeText(n, source), "export")), "default") {
		names = append(names, "default")
	}

	if decl := n.ChildByFieldName("declaration"); decl != nil {
		switch decl.Type() {
		case "lexical_declaration", "variable_declaration":
			for i := uint32(0); i < decl.NamedChildCount(); i++ {
				d := decl.NamedChild(int(i))
				if d != nil && d.Type() == "variable_declarator" {
					if name := d.ChildByFieldName("name"); name != nil {
						names = append(names, nodeText(name, source))
					}
				}
			}
		default:
			if name := decl.ChildByFieldName("name"); name != nil {
				names = append(names, nodeText(name, source))
			}
		}
	}

	for i := uint32(0); i < n.NamedChildCount(); i++ {
		child := n.NamedChild(int(i))
		if child != nil && child.Type() == "export_clause" {
			_, listed := parseImportClause(nodeText(child, source))
			names = append(names, listed...)
		}
	}

	return names
}

func pythonFromAST(root *sitter.Node, source []byte) ([]Import, []string) {
	var imports []Import
	var exports []string

	for i := uint32(0); i < root.NamedChildCount(); i++ {
		n := root.NamedChild(int(i))
		if n == nil {
			continue
		}

		switch n.Type() {
		case "import_statement":
			for j := uint32(0); j < n.NamedChildCount(); j++ {
				child := n.NamedChild(int(j))
				if child == nil {
					continue
				}
				switch child.Type() {
				case "dotted_name":
					imports = append(imports, Import{Source: nodeText(child, source)})
				case "aliased_import":
					if name := child.ChildByFieldName("name"); name != nil {
						imports = append(imports, Import{Source: nodeText(name, source)})
					}
				}
			}

		case "import_from_statement":
			module := n.ChildByFieldName("module_name")
			if module == nil {
				continue
			}
			spec := nodeText(module, source)
			imp := Import{Source: spec, IsRelative: strings.HasPrefix(spec, ".")}
			for j := uint32(0); j < n.NamedChildCount(); j++ {
				child := n.NamedChild(int(j))
				if child == nil || child.StartByte() == module.StartByte() {
					continue
				}
				switch child.Type() {
				case "dotted_name":
					imp.Named = append(imp.Named, nodeText(child, source))
				case "aliased_import":
					if alias := child.ChildByFieldName("alias"); alias != nil {
						imp.Named = append(imp.Named, nodeText(alias, source))
					}
				case "wildcard_import":
					imp.Named = append(imp.Named, "*")
				}
			}
			imports = append(imports, imp)

		case "function_definition", "class_definition":
			if name := n.ChildByFieldName("name"); name != nil {
				if text := nodeText(name, source); !strings.HasPrefix(text, "_") {
					exports = append(exports, text)
				}
			}

		case "expression_statement":
			exports = append(exports, pythonAssignmentNames(n, source)...)

		case "decorated_definition":
			if def := n.ChildByFieldName("definition"); def != nil {
				if name := def.ChildByFieldName("name"); name != nil {
					if text := nodeText(name, source); !strings.HasPrefix(text, "_") {
						exports = append(exports, text)
					}
				}
			}
		}
	}

	// __all__ pins down the export surface when declared.
	if all := pythonDunderAll(root, source); all != nil {
		return imports, all
	}
	return imports, exports
}

func pythonAssignmentNames(stmt *sitter.Node, source []byte) []string {
	var names []string
	for i := uint32(0); i < stmt.NamedChildCount(); i++ {
		assign := stmt.NamedChild(int(i))
		if assign == nil || assign.Type() != "assignment" {
			continue
		}
		left := assign.ChildByFieldName("left")
		if left == nil || left.Type() != "identifier" {
			continue
		}
		if text := nodeText(left, source); !strings.HasPrefix(text, "_") {
			names = append(names, text)
		}
	}
	return names
}

func pythonDunderAll(root *sitter.Node, source []byte) []string {
	for i := uint32(0); i < root.NamedChildCount(); i++ {
		stmt := root.NamedChild(int(i))
		if stmt == nil || stmt.Type() != "expression_statement" {
			continue
		}
		for j := uint32(0); j < stmt.NamedChildCount(); j++ {
			assign := stmt.NamedChild(int(j))
			if assign == nil || assign.Type() != "assignment" {
				continue
			}
			left := assign.ChildByFieldName("left")
			if left == nil || nodeText(left, source) != "__all__" {
				continue
			}
			right := assign.ChildByFieldName("right")
			if right == nil || right.Type() != "list" {
				continue
			}
			var names []string
			for k := uint32(0); k < right.NamedChildCount(); k++ {
				if item := right.NamedChild(int(k)); item != nil && item.Type() == "string" {
					names = append(names, unquote(nodeText(item, source)))
				}
			}
			return names
		}
	}
	return nil
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '`' && s[len(s)-1] == '`') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
