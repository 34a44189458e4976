package analyzer

import (
	"fmt"
	"strings"

	"github.com/seoscope/seoscope/internal/audit"
)

// On-page bounds, in characters, matching what search engines render without
// truncation.
const (
	titleMinLen = 30
	titleMaxLen = 60
	metaMinLen  = 120
	metaMaxLen  = 160

	thinContentBytes = 2048
	slowPageMs       = 3000
)

func technicalRules() []Rule {
	return []Rule{
		checkTitle,
		checkMetaDescription,
		checkH1,
		checkBrokenLinks,
		checkStatus,
		checkSpeed,
	}
}

func contentRules() []Rule {
	return []Rule{
		checkTitle,
		checkMetaDescription,
		checkThinContent,
		checkH1,
	}
}

func eeatRules() []Rule {
	return []Rule{
		checkHTTPS,
		checkTitle,
		checkThinContent,
	}
}

func competitorRules() []Rule {
	return []Rule{
		checkTitle,
		checkMetaDescription,
		checkH1,
		checkThinContent,
		checkSpeed,
	}
}

func checkTitle(snap audit.PageSnapshot) []audit.Finding {
	if !snap.HasTitle {
		return []audit.Finding{{
			Category: "Title",
			Severity: audit.SeverityError,
			Message:  "Page has no <title> tag",
		}}
	}
	n := len(snap.Title)
	switch {
	case n < titleMinLen:
		return []audit.Finding{{
			Category: "Title",
			Severity: audit.SeverityWarning,
			Message:  fmt.Sprintf("Title is %d characters, shorter than the recommended %d", n, titleMinLen),
		}}
	case n > titleMaxLen:
		return []audit.Finding{{
			Category: "Title",
			Severity: audit.SeverityWarning,
			Message:  fmt.Sprintf("Title is %d characters, longer than the recommended %d", n, titleMaxLen),
		}}
	}
	return nil
}

func checkMetaDescription(snap audit.PageSnapshot) []audit.Finding {
	if !snap.HasMeta {
		return []audit.Finding{{
			Category: "Meta",
			Severity: audit.SeverityError,
			Message:  "Page has no meta description",
		}}
	}
	n := len(snap.MetaDescription)
	switch {
	case n < metaMinLen:
		return []audit.Finding{{
			Category: "Meta",
			Severity: audit.SeverityWarning,
			Message:  fmt.Sprintf("Meta description is %d characters, shorter than the recommended %d", n, metaMinLen),
		}}
	case n > metaMaxLen:
		return []audit.Finding{{
			Category: "Meta",
			Severity: audit.SeverityWarning,
			Message:  fmt.Sprintf("Meta description is %d characters, longer than the recommended %d", n, metaMaxLen),
		}}
	}
	return nil
}

func checkH1(snap audit.PageSnapshot) []audit.Finding {
	switch {
	case snap.H1Count == 0:
		return []audit.Finding{{
			Category: "Headings",
			Severity: audit.SeverityError,
			Message:  "Page has no <h1> heading",
		}}
	case snap.H1Count > 1:
		return []audit.Finding{{
			Category: "Headings",
			Severity: audit.SeverityWarning,
			Message:  fmt.Sprintf("Page has %d <h1> headings, expected exactly one", snap.H1Count),
		}}
	}
	return nil
}

// checkBrokenLinks flags hrefs that can never resolve. It is a static check
// on extracted hrefs, no link is fetched.
func checkBrokenLinks(snap audit.PageSnapshot) []audit.Finding {
	broken := 0
	for _, href := range snap.Links {
		trimmed := strings.TrimSpace(href)
		if trimmed == "" || trimmed == "#" || strings.HasPrefix(trimmed, "javascript:") {
			broken++
		}
	}
	if broken == 0 {
		return nil
	}
	return []audit.Finding{{
		Category: "Links",
		Severity: audit.SeverityWarning,
		Message:  fmt.Sprintf("Found %d placeholder or dead link targets", broken),
	}}
}

func checkStatus(snap audit.PageSnapshot) []audit.Finding {
	if snap.StatusCode >= 300 && snap.StatusCode < 400 {
		return []audit.Finding{{
			Category: "Status",
			Severity: audit.SeverityInfo,
			Message:  fmt.Sprintf("Page responded with redirect status %d", snap.StatusCode),
		}}
	}
	return nil
}

func checkSpeed(snap audit.PageSnapshot) []audit.Finding {
	if snap.DurationMs > slowPageMs {
		return []audit.Finding{{
			Category: "Performance",
			Severity: audit.SeverityWarning,
			Message:  fmt.Sprintf("Page took %dms to load, over the %dms budget", snap.DurationMs, slowPageMs),
		}}
	}
	return nil
}

func checkThinContent(snap audit.PageSnapshot) []audit.Finding {
	if snap.BodyBytes > 0 && snap.BodyBytes < thinContentBytes {
		return []audit.Finding{{
			Category: "Content",
			Severity: audit.SeverityWarning,
			Message:  fmt.Sprintf("Page body is only %d bytes, likely thin content", snap.BodyBytes),
		}}
	}
	return nil
}

func checkHTTPS(snap audit.PageSnapshot) []audit.Finding {
	target := snap.FinalURL
	if target == "" {
		target = snap.URL
	}
	if strings.HasPrefix(target, "http://") {
		return []audit.Finding{{
			Category: "Security",
			Severity: audit.SeverityError,
			Message:  "Page is served over plain HTTP",
		}}
	}
	return nil
}
