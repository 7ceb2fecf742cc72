package graph

import (
	"path"
	"strings"
)

// resolver maps relative import specifiers onto node IDs. It probes the known
// node set only; anything it cannot find produces no edge.
type resolver struct {
	nodes map[string]bool
	exts  []string
}

// newResolver builds a resolver over the given node IDs. exts is the fixed
// extension priority order used for fallback probes.
func newResolver(nodes map[string]bool, exts []string) *resolver {
	return &resolver{nodes: nodes, exts: exts}
}

// resolve maps a specifier written in importerPath to a node ID. Python uses
// dotted package notation; everything else is path-style.
func (r *resolver) resolve(importerPath, specifier, language string) (string, bool) {
	dir := path.Dir(importerPath)
	if language == "python" {
		return r.resolveDotted(dir, specifier)
	}
	return r.resolvePath(dir, specifier)
}

// resolvePath handles "./x" and "../x" specifiers. Probe order: the path as
// written, the path with a trailing source extension stripped, then each
// known extension, then a directory index file per extension. First hit wins.
func (r *resolver) resolvePath(dir, specifier string) (string, bool) {
	joined := path.Join(dir, specifier)
	if joined == "" || strings.HasPrefix(joined, "..") {
		return "", false
	}

	if r.nodes[joined] {
		return joined, true
	}

	base := joined
	if ext := path.Ext(joined); ext != "" && r.knownExt(ext) {
		base = strings.TrimSuffix(joined, ext)
		if r.nodes[base] {
			return base, true
		}
	}

	for _, ext := range r.exts {
		if cand := base + ext; r.nodes[cand] {
			return cand, true
		}
	}
	for _, ext := range r.exts {
		if cand := base + "/index" + ext; r.nodes[cand] {
			return cand, true
		}
	}
	return "", false
}

// resolveDotted handles python relative imports. One leading dot addresses the
// importer's own package directory; each further dot ascends one level. The
// remaining dotted segments become path segments, probed as a module file
// first and a package __init__ second.
func (r *resolver) resolveDotted(dir, specifier string) (string, bool) {
	dots := 0
	for dots < len(specifier) && specifier[dots] == '.' {
		dots++
	}
	if dots == 0 {
		return "", false
	}
	for i := 1; i < dots; i++ {
		dir = path.Dir(dir)
	}

	rest := specifier[dots:]
	if rest == "" {
		for _, init := range []string{"__init__.py", "__init__.pyi"} {
			if cand := path.Join(dir, init); r.nodes[cand] {
				return cand, true
			}
		}
		return "", false
	}

	base := path.Join(dir, strings.ReplaceAll(rest, ".", "/"))
	for _, ext := range []string{".py", ".pyi"} {
		if cand := base + ext; r.nodes[cand] {
			return cand, true
		}
	}
	for _, init := range []string{"__init__.py", "__init__.pyi"} {
		if cand := path.Join(base, init); r.nodes[cand] {
			return cand, true
		}
	}
	return "", false
}

func (r *resolver) knownExt(ext string) bool {
	ext = strings.ToLower(ext)
	for _, known := range r.exts {
		if ext == known {
			return true
		}
	}
	return false
}
