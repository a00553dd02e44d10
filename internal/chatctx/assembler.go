package chatctx

// Assembler orders the pieces of one completion request.
type Assembler interface {
	Assemble(system string, entries []Message, userMsg string) []Message
}

// StandardAssembler orders a completion request as system prompt, context
// entries, then the triggering user turn.
type StandardAssembler struct{}

func (a *StandardAssembler) Assemble(system string, entries []Message, userMsg string) []Message {
	messages := make([]Message, 0, len(entries)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: system})
	messages = append(messages, entries...)
	return append(messages, Message{Role: RoleUser, Content: userMsg})
}
