package format

import (
	"fmt"
	"regexp"
	"strings"
)

// RulesDocumentURL is the anchor base for rule citations. Bot output is
// parsed downstream, so the link shape must stay stable.
const RulesDocumentURL = "https://github.com/SirRender00/nomic/blob/main/rules.md"

// rulePattern matches "rule 12", "Rules 101, 102", "rule 123a", "RULE 4.1".
var rulePattern = regexp.MustCompile(`(?i)\b(?:rule|rules)\s+([0-9]+(?:[a-z]|\.[0-9]+)?(?:\s*,\s*[0-9]+(?:[a-z]|\.[0-9]+)?)*)\b`)

// CitationFormatter rewrites rule references into markdown links.
type CitationFormatter struct {
	BaseURL string
}

// NewCitationFormatter links citations to path inside a GitHub repository.
// Empty arguments fall back to the default nomic rules document.
func NewCitationFormatter(owner, repo, ref, path string) CitationFormatter {
	if owner == "" || repo == "" {
		return CitationFormatter{BaseURL: RulesDocumentURL}
	}
	if ref == "" {
		ref = "main"
	}
	if path == "" {
		path = "rules.md"
	}
	return CitationFormatter{
		BaseURL: fmt.Sprintf("https://github.com/%s/%s/blob/%s/%s", owner, repo, ref, strings.TrimPrefix(path, "/")),
	}
}

// Format replaces each matched rule group with one link per rule number,
// joined by ", ". Numbers are kept verbatim, unknown rules simply produce
// dead anchors.
func (f CitationFormatter) Format(text string) string {
	base := f.BaseURL
	if base == "" {
		base = RulesDocumentURL
	}
	matches := rulePattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var out strings.Builder
	out.Grow(len(text) + len(matches)*len(base))
	last := 0
	for _, m := range matches {
		out.WriteString(text[last:m[0]])
		numbers := strings.Split(text[m[2]:m[3]], ",")
		links := make([]string, 0, len(numbers))
		for _, n := range numbers {
			n = strings.TrimSpace(n)
			links = append(links, fmt.Sprintf("[Rule %s](%s#%s)", n, base, n))
		}
		out.WriteString(strings.Join(links, ", "))
		last = m[1]
	}
	out.WriteString(text[last:])
	return out.String()
}

var defaultCitations = CitationFormatter{BaseURL: RulesDocumentURL}

// FormatRuleCitations links rule references against RulesDocumentURL.
func FormatRuleCitations(text string) string {
	return defaultCitations.Format(text)
}
