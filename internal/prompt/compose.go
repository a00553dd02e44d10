// Package prompt builds the system prompt sent ahead of every completion.
package prompt

import "strings"

// DefaultBasePrompt is the instruction block used when no base prompt file is
// configured.
const DefaultBasePrompt = `You are a lawyer helping a set of players play a game of Nomic. Players will come to you to ask your help interpreting the rules as they are, drafting new rules, and aiding with judgement calls and debates.

Ensure that your advice is perfectly in line with the Rules and make sure your reasoning is clear, sound, and easy to understand. Reference rules whenever you use them. Please reference rules as 'Rule ###' where ### is the rule number.

We are using discord so make sure it is easy to read in a chat platform.

Be short and concise and keep your response less than 1000 characters. If you are able to provide a short answer with no explanation then do that. Try to sound natural.`

const (
	TopicHeader   = "----- MAIN CHAMBER TOPIC -----"
	RulesHeader   = "----- RULES -----"
	AgendasHeader = "----- AGENDAS -----"
	PlayersHeader = "----- PLAYERS -----"
)

// Sections are the inputs of Compose. Topic is optional.
type Sections struct {
	Base    string
	Topic   string
	Rules   string
	Agendas string
	Players string
}

// Compose renders the system prompt: the base instructions, the main chamber
// topic when it is not blank, then the rules, agendas and players sections.
// Every body is trimmed and sections are separated by a blank line.
func Compose(s Sections) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(s.Base))
	b.WriteString("\n")
	if topic := strings.TrimSpace(s.Topic); topic != "" {
		writeSection(&b, TopicHeader, topic)
	}
	writeSection(&b, RulesHeader, s.Rules)
	writeSection(&b, AgendasHeader, s.Agendas)
	writeSection(&b, PlayersHeader, s.Players)
	b.WriteString("\n")
	return b.String()
}

func writeSection(b *strings.Builder, header, body string) {
	b.WriteString("\n")
	b.WriteString(header)
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(body))
	b.WriteString("\n")
}
