// Package llm abstracts the model calls the conversation core depends on:
// chat completion, audio transcription, and speech synthesis.
package llm

import (
	"context"
	"fmt"

	"github.com/triadlabs/triad/conversation"
)

// Message mirrors OpenAI-style chat message payloads.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest describes one completion call.
type ChatRequest struct {
	// Model is the per-role model identifier, e.g. "gpt-4".
	Model string
	// Messages is the full prompt: system message first, then the
	// bounded dialogue window in order.
	Messages []Message
	// Role names the conversation log this call serves.
	Role conversation.Role
	// Partner identifies which partner triggered the call. Zero only
	// for probe calls.
	Partner     conversation.PartnerID
	MaxTokens   int
	Temperature float64
}

// Backend is the capability surface the orchestrator consumes. Live and
// simulated implementations exist; the core never knows which it holds.
type Backend interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// BackendError wraps any failure from a model backend: network errors,
// auth rejection, rate limits, malformed responses.
type BackendError struct {
	Op          string
	StatusCode  int
	RateLimited bool
	Err         error
}

func (e *BackendError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("llm %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func backendErr(op string, err error) *BackendError {
	return &BackendError{Op: op, Err: err}
}
