package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/triadlabs/triad/conversation"
)

func TestSimulatedChatDeterministic(t *testing.T) {
	sim := NewSimulated()
	req := ChatRequest{
		Model: "gpt-4",
		Messages: []Message{
			{Role: "system", Content: "prompt"},
			{Role: "user", Content: "You never help with chores"},
		},
		Role:    conversation.RolePartner1,
		Partner: 1,
	}

	first, err := sim.Chat(context.Background(), req)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	second, err := sim.Chat(context.Background(), req)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if first != second {
		t.Fatalf("expected byte-identical output, got %q vs %q", first, second)
	}
}

func TestSimulatedChatIsClearlyLabeled(t *testing.T) {
	sim := NewSimulated()

	reply, err := sim.Chat(context.Background(), ChatRequest{
		Messages: []Message{
			{Role: "system", Content: "prompt"},
			{Role: "user", Content: "I feel unheard"},
		},
		Role:    conversation.RolePartner2,
		Partner: 2,
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if !strings.Contains(reply, "simulated response from the representor for Partner 2") {
		t.Fatalf("representor reply not labeled as simulated: %q", reply)
	}
	if !strings.Contains(reply, "I feel unheard") {
		t.Fatalf("representor reply should echo the input: %q", reply)
	}
}

func TestSimulatedTherapistReply(t *testing.T) {
	sim := NewSimulated()

	reply, err := sim.Chat(context.Background(), ChatRequest{
		Messages: []Message{
			{Role: "system", Content: "prompt"},
			{Role: "user", Content: "Partner 1: I feel overwhelmed with chores"},
		},
		Role:    conversation.RoleTherapist,
		Partner: 1,
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if !strings.Contains(reply, "simulated response from the therapist") {
		t.Fatalf("therapist reply not labeled as simulated: %q", reply)
	}
	if !strings.Contains(reply, "Partner 1's perspective") {
		t.Fatalf("therapist reply missing partner attribution: %q", reply)
	}
}

func TestSimulatedAudioCapabilities(t *testing.T) {
	sim := NewSimulated()

	transcript, err := sim.Transcribe(context.Background(), []byte("audio-bytes"), "clip.wav")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if !strings.Contains(transcript, "simulated transcription") {
		t.Fatalf("transcript not labeled: %q", transcript)
	}

	audio, err := sim.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(audio) != "simulated-audio:hello" {
		t.Fatalf("unexpected synthesized payload: %q", audio)
	}
}
