package domain

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the provider-neutral shape of a single chat completion.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	Temperature float64
	Seed        int
	JSON        bool
}
