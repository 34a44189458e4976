package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoscope/seoscope/internal/audit"
)

func healthySnapshot() audit.PageSnapshot {
	return audit.PageSnapshot{
		URL:             "https://example.com/",
		FinalURL:        "https://example.com/",
		StatusCode:      200,
		Title:           "A perfectly sized title for the example page",
		HasTitle:        true,
		MetaDescription: "This meta description is deliberately written to land inside the recommended one hundred twenty to one hundred sixty character window.",
		HasMeta:         true,
		H1Count:         1,
		Links:           []string{"/about", "https://example.com/contact"},
		BodyBytes:       40960,
		DurationMs:      350,
	}
}

func TestAnalyzeHealthyPage(t *testing.T) {
	t.Parallel()

	p := New().Analyze(healthySnapshot(), audit.AnalysisTechnical)

	assert.Equal(t, audit.AnalysisTechnical, p.Type)
	assert.Equal(t, "https://example.com/", p.URL)
	assert.Empty(t, p.Findings)
	assert.Equal(t, 100, p.Score)
	assert.Equal(t, "No critical issues found", Summarize(p))
}

func TestAnalyzeMissingTitle(t *testing.T) {
	t.Parallel()

	snap := healthySnapshot()
	snap.Title = ""
	snap.HasTitle = false

	p := New().Analyze(snap, audit.AnalysisTechnical)

	require.Len(t, p.Findings, 1)
	assert.Equal(t, "Title", p.Findings[0].Category)
	assert.Equal(t, audit.SeverityError, p.Findings[0].Severity)
	assert.Equal(t, 75, p.Score)
	assert.Equal(t, "1 issue found", Summarize(p))
}

func TestAnalyzeTitleBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		title    string
		severity audit.Severity
	}{
		{"too short", "Short", audit.SeverityWarning},
		{"too long", "This title keeps going and going far beyond the sixty character ceiling", audit.SeverityWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := healthySnapshot()
			snap.Title = tt.title

			p := New().Analyze(snap, audit.AnalysisTechnical)

			require.Len(t, p.Findings, 1)
			assert.Equal(t, "Title", p.Findings[0].Category)
			assert.Equal(t, tt.severity, p.Findings[0].Severity)
		})
	}
}

func TestAnalyzeBrokenLinks(t *testing.T) {
	t.Parallel()

	snap := healthySnapshot()
	snap.Links = []string{"/ok", "#", "", "javascript:void(0)"}

	p := New().Analyze(snap, audit.AnalysisTechnical)

	require.Len(t, p.Findings, 1)
	assert.Equal(t, "Links", p.Findings[0].Category)
	assert.Contains(t, p.Findings[0].Message, "3")
}

func TestAnalyzeScoreClampsAtZero(t *testing.T) {
	t.Parallel()

	// Everything wrong at once: no title, no meta, no h1, plain HTTP, thin,
	// slow. The deductions exceed 100 and must clamp.
	snap := audit.PageSnapshot{
		URL:        "http://example.com/",
		FinalURL:   "http://example.com/",
		StatusCode: 200,
		BodyBytes:  128,
		DurationMs: 9000,
	}

	p := New().Analyze(snap, audit.AnalysisCompetitor)

	assert.Equal(t, 0, p.Score)
	assert.NotEmpty(t, p.Findings)
}

func TestAnalyzeIsPure(t *testing.T) {
	t.Parallel()

	e := New()
	snap := healthySnapshot()
	snap.Links = []string{"#", "/a"}

	first := e.Analyze(snap, audit.AnalysisContent)
	second := e.Analyze(snap, audit.AnalysisContent)

	assert.Equal(t, first, second)
}

func TestAnalyzeUnknownTypeFallsBackToTechnical(t *testing.T) {
	t.Parallel()

	p := New().Analyze(healthySnapshot(), audit.AnalysisType("mystery"))

	assert.Equal(t, audit.AnalysisTechnical, p.Type)
}

func TestAnalyzeEEATFlagsPlainHTTP(t *testing.T) {
	t.Parallel()

	snap := healthySnapshot()
	snap.URL = "http://example.com/"
	snap.FinalURL = "http://example.com/"

	p := New().Analyze(snap, audit.AnalysisEEAT)

	require.Len(t, p.Findings, 1)
	assert.Equal(t, "Security", p.Findings[0].Category)
	assert.Equal(t, audit.SeverityError, p.Findings[0].Severity)
}
