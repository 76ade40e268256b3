package domain

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the provider-agnostic chat message shape exchanged with the
// browser widget and the upstream gateway.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseSchema names a JSON Schema the upstream model is asked to follow.
type ResponseSchema struct {
	Name   string
	Schema []byte
}
