// Package llm provides the chat-completion gateway used by every pipeline
// stage. The production implementation talks to Groq's OpenAI-compatible
// API behind a circuit breaker; tests and embedders substitute their own
// Provider.
package llm

import "context"

// Message is one turn of a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest describes a single chat completion call. TopP of zero leaves
// the provider default in place. JSONMode asks the provider to constrain
// output to a JSON object.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	TopP        float64
	MaxTokens   int
	JSONMode    bool
}

// Provider executes chat completions and returns the assistant content.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// UserPrompt builds a single-message request, which is how every pipeline
// stage calls the gateway.
func UserPrompt(model, prompt string) ChatRequest {
	return ChatRequest{
		Model:    model,
		Messages: []Message{{Role: "user", Content: prompt}},
	}
}
