package graph

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/BurntSushi/toml"
)

// Rule classifies paths into a node kind. Match selects the probe: "extension"
// compares the file extension, "segment" looks for a directory segment.
type Rule struct {
	Kind    string `toml:"kind"`
	Match   string `toml:"match"`
	Pattern string `toml:"pattern"`
}

type rulesFile struct {
	Rules []Rule `toml:"rule"`
}

// RuleSet is an ordered list of classification rules; the first matching rule
// wins and unmatched paths fall back to KindFile.
type RuleSet struct {
	rules []Rule
}

// DefaultRules returns the built-in heuristics: UI framework extensions and a
// "components" directory mark components, utility directories mark utilities.
func DefaultRules() *RuleSet {
	return &RuleSet{rules: []Rule{
		{Kind: "component", Match: "extension", Pattern: ".jsx"},
		{Kind: "component", Match: "extension", Pattern: ".tsx"},
		{Kind: "component", Match: "extension", Pattern: ".vue"},
		{Kind: "component", Match: "extension", Pattern: ".svelte"},
		{Kind: "component", Match: "segment", Pattern: "components"},
		{Kind: "utility", Match: "segment", Pattern: "utils"},
		{Kind: "utility", Match: "segment", Pattern: "helpers"},
		{Kind: "utility", Match: "segment", Pattern: "lib"},
	}}
}

// LoadRules reads a rules file and prepends its rules to the built-in
// defaults, so user rules take priority. A missing file yields the defaults.
func LoadRules(rulesPath string) (*RuleSet, error) {
	data, err := os.ReadFile(rulesPath)
	if os.IsNotExist(err) {
		return DefaultRules(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var file rulesFile
	if _, err := toml.Decode(string(data), &file); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	for i, r := range file.Rules {
		if err := r.validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
	}

	return &RuleSet{rules: append(file.Rules, DefaultRules().rules...)}, nil
}

func (r Rule) validate() error {
	switch NodeKind(r.Kind) {
	case KindFile, KindComponent, KindUtility:
	default:
		return fmt.Errorf("unknown kind %q", r.Kind)
	}
	switch r.Match {
	case "extension", "segment":
	default:
		return fmt.Errorf("unknown match %q", r.Match)
	}
	if r.Pattern == "" {
		return fmt.Errorf("empty pattern")
	}
	return nil
}

// Classify returns the node kind for a root-relative path.
func (rs *RuleSet) Classify(filePath string) NodeKind {
	ext := strings.ToLower(path.Ext(filePath))
	segments := strings.Split(path.Dir(filePath), "/")

	for _, r := range rs.rules {
		switch r.Match {
		case "extension":
			if ext == strings.ToLower(r.Pattern) {
				return NodeKind(r.Kind)
			}
		case "segment":
			for _, seg := range segments {
				if seg == r.Pattern {
					return NodeKind(r.Kind)
				}
			}
		}
	}
	return KindFile
}
