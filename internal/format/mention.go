package format

import (
	"regexp"
	"strings"
)

// StripBotMentions removes every <@ID> and <@!ID> token for botID and trims
// the result. An empty botID returns text untouched.
func StripBotMentions(text, botID string) string {
	if botID == "" {
		return text
	}
	pattern := regexp.MustCompile(`<@!?` + regexp.QuoteMeta(botID) + `>`)
	return strings.TrimSpace(pattern.ReplaceAllString(text, ""))
}
