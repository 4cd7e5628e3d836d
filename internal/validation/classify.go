package validation

import (
	"strings"

	findingdomain "auditflow/backend/internal/finding/domain"
)

// severityKeywords is checked in order; the first tier with a matching keyword wins.
var severityKeywords = []struct {
	severity findingdomain.Severity
	words    []string
}{
	{findingdomain.SeverityCritical, []string{"fraud", "forged", "forgery", "tamper", "falsif"}},
	{findingdomain.SeverityMajor, []string{"missing", "signature", "expired", "invalid", "unsigned", "incomplete"}},
	{findingdomain.SeverityMinor, []string{"format", "typo", "blurry", "illegible", "outdated"}},
}

// Classify derives a finding severity from the text of one validator issue.
func Classify(issue string) findingdomain.Severity {
	text := strings.ToLower(issue)
	for _, tier := range severityKeywords {
		for _, w := range tier.words {
			if strings.Contains(text, w) {
				return tier.severity
			}
		}
	}
	return findingdomain.SeverityInformational
}

// issueTitle shortens an issue to a finding title.
func issueTitle(issue string) string {
	const max = 120
	title := strings.TrimSpace(issue)
	if r := []rune(title); len(r) > max {
		title = string(r[:max-3]) + "..."
	}
	return "AI: " + title
}
