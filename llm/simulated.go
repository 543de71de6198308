package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/triadlabs/triad/conversation"
)

// Simulated is the no-credential fallback backend. Every response is a
// pure function of its inputs, clearly labeled as simulated so a
// misconfigured deployment can never pass for a live one. It never fails.
type Simulated struct{}

// NewSimulated returns the deterministic fallback backend.
func NewSimulated() *Simulated { return &Simulated{} }

// Chat produces canned text keyed off the requesting partner and the
// latest user message in the window.
func (s *Simulated) Chat(_ context.Context, req ChatRequest) (string, error) {
	latest := latestUserContent(req.Messages)

	if req.Role == conversation.RoleTherapist {
		return fmt.Sprintf(
			"This is a simulated response from the therapist. I understand Partner %d's perspective. Let me help facilitate communication between both partners.",
			req.Partner,
		), nil
	}
	if req.Partner.Valid() {
		return fmt.Sprintf(
			"This is a simulated response from the representor for Partner %d. I suggest phrasing your message like this: %s",
			req.Partner, latest,
		), nil
	}

	return "This is a simulated chat response: " + latest, nil
}

// Transcribe returns a labeled placeholder transcript.
func (s *Simulated) Transcribe(_ context.Context, audio []byte, _ string) (string, error) {
	return fmt.Sprintf("This is a simulated transcription of a %d-byte recording.", len(audio)), nil
}

// Synthesize returns the labeled text itself as the audio payload.
func (s *Simulated) Synthesize(_ context.Context, text string) ([]byte, error) {
	return []byte("simulated-audio:" + text), nil
}

func latestUserContent(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return stripAttribution(messages[i].Content)
		}
	}
	return ""
}

// stripAttribution removes the "Partner N: " prefix therapist-log turns
// carry, so the echo reads as the approved text itself.
func stripAttribution(content string) string {
	for _, prefix := range []string{"Partner 1: ", "Partner 2: "} {
		if strings.HasPrefix(content, prefix) {
			return strings.TrimPrefix(content, prefix)
		}
	}
	return content
}

