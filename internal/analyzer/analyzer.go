// Package analyzer turns page snapshots into scored finding payloads.
package analyzer

import (
	"fmt"

	"github.com/seoscope/seoscope/internal/audit"
)

// Rule inspects a snapshot and returns zero or more findings.
type Rule func(snap audit.PageSnapshot) []audit.Finding

// Engine applies the rule set registered for each analysis type. It holds no
// mutable state, so a single Engine is shared by all workers.
type Engine struct {
	rules map[audit.AnalysisType][]Rule
}

// New creates an Engine with the built-in rule sets.
func New() *Engine {
	return &Engine{
		rules: map[audit.AnalysisType][]Rule{
			audit.AnalysisTechnical:  technicalRules(),
			audit.AnalysisContent:    contentRules(),
			audit.AnalysisEEAT:       eeatRules(),
			audit.AnalysisCompetitor: competitorRules(),
		},
	}
}

// Analyze runs the rule set for typ against snap. Unknown types fall back to
// the technical set. Missing snapshot fields surface as findings, never as
// errors, so the call always produces a payload.
func (e *Engine) Analyze(snap audit.PageSnapshot, typ audit.AnalysisType) audit.Payload {
	rules, ok := e.rules[typ]
	if !ok {
		typ = audit.AnalysisTechnical
		rules = e.rules[typ]
	}

	findings := make([]audit.Finding, 0, 8)
	for _, rule := range rules {
		findings = append(findings, rule(snap)...)
	}

	return audit.Payload{
		Type:     typ,
		URL:      snap.URL,
		Snapshot: snap,
		Findings: findings,
		Score:    score(findings),
	}
}

// score starts at 100 and deducts 25 per error and 10 per warning, clamped
// at zero. Info findings do not affect the score.
func score(findings []audit.Finding) int {
	s := 100
	for _, f := range findings {
		switch f.Severity {
		case audit.SeverityError:
			s -= 25
		case audit.SeverityWarning:
			s -= 10
		}
	}
	if s < 0 {
		s = 0
	}
	return s
}

// Summarize builds the one-line summary stored alongside a result.
func Summarize(p audit.Payload) string {
	issues := 0
	for _, f := range p.Findings {
		if f.Severity == audit.SeverityError || f.Severity == audit.SeverityWarning {
			issues++
		}
	}
	if issues == 0 {
		return "No critical issues found"
	}
	if issues == 1 {
		return "1 issue found"
	}
	return fmt.Sprintf("%d issues found", issues)
}
