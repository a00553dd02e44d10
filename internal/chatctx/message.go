package chatctx

// Roles understood by the completion boundary.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a model-agnostic chat turn used across the context pipeline.
type Message struct {
	Role    string
	Content string
}
