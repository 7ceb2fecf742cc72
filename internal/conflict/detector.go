// Package conflict classifies cross-branch edit collisions. A warning says
// two branches touched the same file, or files joined by a dependency or
// semantic edge, before either branch has seen the other's work.
package conflict

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"driftmap/internal/git"
	"driftmap/internal/graph"
)

// Type labels how two branches collide.
type Type string

const (
	// TypeDirect means both branches modified the same file.
	TypeDirect Type = "direct"
	// TypeDependency means the branches modified files joined by an import.
	TypeDependency Type = "dependency"
	// TypeSemantic means the branches modified files joined by a semantic edge.
	TypeSemantic Type = "semantic"
)

// Severity grades a warning.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Warning is one detected collision. Warnings are produced fresh per call
// and never persisted.
type Warning struct {
	ID            string    `json:"id" yaml:"id"`
	Type          Type      `json:"type" yaml:"type"`
	Severity      Severity  `json:"severity" yaml:"severity"`
	CurrentBranch string    `json:"currentBranch" yaml:"currentBranch"`
	OtherBranch   string    `json:"otherBranch" yaml:"otherBranch"`
	CurrentFile   string    `json:"currentFile" yaml:"currentFile"`
	OtherFile     string    `json:"otherFile" yaml:"otherFile"`
	Similarity    *float64  `json:"similarity,omitempty" yaml:"similarity,omitempty"`
	Description   string    `json:"description" yaml:"description"`
	Timestamp     time.Time `json:"timestamp" yaml:"timestamp"`
}

// Options selects the branches to compare. Empty fields auto-detect.
type Options struct {
	CurrentBranch string
	BaseBranch    string
}

// Detector compares local branches through their merge bases.
type Detector struct {
	vcs    *git.Client
	logger *slog.Logger
}

// NewDetector builds a detector over the repository's VCS client.
func NewDetector(vcs *git.Client, logger *slog.Logger) *Detector {
	return &Detector{vcs: vcs, logger: logger}
}

// Detect classifies conflicts between the current branch and every other
// local branch. A missing base branch, current == base, or any VCS failure
// yields an empty result, never an error.
func (d *Detector) Detect(ctx context.Context, g *graph.Graph, opts Options) []Warning {
	warnings := []Warning{}
	if d.vcs == nil || g == nil {
		return warnings
	}

	current := opts.CurrentBranch
	if current == "" {
		branch, err := d.vcs.CurrentBranch()
		if err != nil {
			d.logger.Debug("conflict detection skipped, no current branch", "error", err)
			return warnings
		}
		current = branch
	}

	base := d.vcs.DetectBaseBranch(opts.BaseBranch)
	if base == "" {
		d.logger.Debug("conflict detection skipped, no base branch found")
		return warnings
	}
	if current == base {
		return warnings
	}

	currentModified, err := d.vcs.ModifiedFiles(current, base)
	if err != nil {
		d.logger.Debug("conflict detection skipped, cannot diff current branch", "error", err)
		return warnings
	}
	if len(currentModified) == 0 {
		return warnings
	}
	currentSet := make(map[string]bool, len(currentModified))
	for _, f := range currentModified {
		currentSet[f] = true
	}

	branches, err := d.vcs.LocalBranches()
	if err != nil {
		d.logger.Debug("conflict detection skipped, cannot list branches", "error", err)
		return warnings
	}

	depIdx := g.EdgeIndex(graph.LinkDependency)
	semIdx := g.EdgeIndex(graph.LinkSemantic)
	now := time.Now().UTC()

	for _, branch := range branches {
		if branch == current || branch == base {
			continue
		}
		if err := ctx.Err(); err != nil {
			d.logger.Debug("conflict detection cancelled", "error", err)
			break
		}

		otherModified, err := d.vcs.ModifiedFiles(branch, base)
		if err != nil {
			d.logger.Debug("skipping branch, cannot diff", "branch", branch, "error", err)
			continue
		}

		for _, otherFile := range otherModified {
			if currentSet[otherFile] {
				warnings = append(warnings, Warning{
					ID:            uuid.New().String(),
					Type:          TypeDirect,
					Severity:      SeverityHigh,
					CurrentBranch: current,
					OtherBranch:   branch,
					CurrentFile:   otherFile,
					OtherFile:     otherFile,
					Description:   fmt.Sprintf("%s is modified on both %s and %s", otherFile, current, branch),
					Timestamp:     now,
				})
				// A direct hit covers this file; edge checks would only
				// repeat the warning at lower severity.
				continue
			}

			for _, currentFile := range currentModified {
				key := graph.PairKey(otherFile, currentFile)
				if depIdx[key] != nil {
					warnings = append(warnings, Warning{
						ID:            uuid.New().String(),
						Type:          TypeDependency,
						Severity:      SeverityMedium,
						CurrentBranch: current,
						OtherBranch:   branch,
						CurrentFile:   currentFile,
						OtherFile:     otherFile,
						Description:   fmt.Sprintf("%s and %s are connected by an import", currentFile, otherFile),
						Timestamp:     now,
					})
					continue
				}
				if edge := semIdx[key]; edge != nil {
					w := Warning{
						ID:            uuid.New().String(),
						Type:          TypeSemantic,
						Severity:      SeverityLow,
						CurrentBranch: current,
						OtherBranch:   branch,
						CurrentFile:   currentFile,
						OtherFile:     otherFile,
						Description:   fmt.Sprintf("%s and %s are semantically related", currentFile, otherFile),
						Timestamp:     now,
					}
					if edge.Similarity != nil {
						sim := *edge.Similarity
						w.Similarity = &sim
					}
					warnings = append(warnings, w)
				}
			}
		}
	}

	sortWarnings(warnings)
	d.logger.Debug("conflict detection complete",
		"current", current, "base", base, "warnings", len(warnings))
	return warnings
}

var severityRank = map[Severity]int{
	SeverityHigh:   0,
	SeverityMedium: 1,
	SeverityLow:    2,
}

func sortWarnings(warnings []Warning) {
	sort.SliceStable(warnings, func(i, j int) bool {
		a, b := warnings[i], warnings[j]
		if severityRank[a.Severity] != severityRank[b.Severity] {
			return severityRank[a.Severity] < severityRank[b.Severity]
		}
		if a.OtherBranch != b.OtherBranch {
			return a.OtherBranch < b.OtherBranch
		}
		if a.OtherFile != b.OtherFile {
			return a.OtherFile < b.OtherFile
		}
		return a.CurrentFile < b.CurrentFile
	})
}
