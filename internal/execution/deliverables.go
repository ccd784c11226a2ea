package execution

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

// Assessment is the outcome of deliverable assessment:
// the only place a task execution is classified as partial or
// success_with_limits.
type Assessment struct {
	Outcome types.Outcome
	Quality float64
	Files   []FileCheck
}

// FileCheck is the per-file verdict.
type FileCheck struct {
	Path        string
	Exists      bool
	NonEmpty    bool
	SyntaxValid bool
}

// AssessDeliverables evaluates the files an execution created or
// modified and classifies the terminal outcome when the turn budget is
// exhausted. The quality formula is fixed and deterministic:
//
//	quality = 0.5*syntax_validity_ratio + 0.3*non_empty_ratio + 0.2*min(file_count/3, 1)
//
// workDir is the project working directory relative paths resolve
// against.
func AssessDeliverables(workDir string, files []string) Assessment {
	if len(files) == 0 {
		return Assessment{Outcome: types.OutcomeFailed}
	}

	checks := make([]FileCheck, 0, len(files))
	validSyntax, nonEmpty, present := 0, 0, 0
	for _, f := range dedupe(files) {
		c := checkFile(workDir, f)
		checks = append(checks, c)
		if c.Exists {
			present++
		}
		if c.NonEmpty {
			nonEmpty++
		}
		if c.SyntaxValid {
			validSyntax++
		}
	}

	n := float64(len(checks))
	quality := 0.5*(float64(validSyntax)/n) + 0.3*(float64(nonEmpty)/n) + 0.2*minF(n/3, 1)
	quality = clamp01(quality)

	outcome := types.OutcomeFailed
	switch {
	case quality >= 0.7 && present > 0:
		outcome = types.OutcomeSuccessWithLimits
	case quality >= 0.5 || present > 0:
		outcome = types.OutcomePartial
	}
	return Assessment{Outcome: outcome, Quality: quality, Files: checks}
}

func checkFile(workDir, path string) FileCheck {
	full := path
	if !filepath.IsAbs(path) {
		full = filepath.Join(workDir, path)
	}
	c := FileCheck{Path: path}
	data, err := os.ReadFile(full)
	if err != nil {
		return c
	}
	c.Exists = true
	c.NonEmpty = len(strings.TrimSpace(string(data))) > 0
	c.SyntaxValid = c.NonEmpty && syntaxPlausible(full, data)
	return c
}

// syntaxPlausible validates by syntax where the language is recognized
// and falls back to plausible-structure heuristics otherwise. These
// are deliberately cheap checks, not compilers.
func syntaxPlausible(path string, data []byte) bool {
	text := string(data)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		for _, line := range strings.Split(text, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "package ") {
				return balanced(text, '{', '}')
			}
		}
		return false
	case ".json":
		return json.Valid(data)
	case ".py":
		return !strings.Contains(text, "\t    ") // mixed indentation
	case ".js", ".ts", ".java", ".c", ".cpp", ".rs":
		return balanced(text, '{', '}')
	case ".yaml", ".yml", ".toml", ".md", ".txt", "":
		return true
	default:
		return true
	}
}

// balanced reports whether open/close runes pair up without going
// negative. String and comment contexts are ignored; this is a
// plausibility check, not a parser.
func balanced(text string, open, close rune) bool {
	depth := 0
	for _, r := range text {
		switch r {
		case open:
			depth++
		case close:
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
