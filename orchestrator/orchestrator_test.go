package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/triadlabs/triad/conversation"
	"github.com/triadlabs/triad/llm"
)

// scriptedBackend returns a fixed reply, an error, or blocks briefly to
// widen race windows.
type scriptedBackend struct {
	mu      sync.Mutex
	reply   string
	err     error
	delay   time.Duration
	calls   []llm.ChatRequest
	replyFn func(llm.ChatRequest) string
}

func (b *scriptedBackend) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	b.mu.Lock()
	b.calls = append(b.calls, req)
	reply, err, delay, replyFn := b.reply, b.err, b.delay, b.replyFn
	b.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	if replyFn != nil {
		return replyFn(req), nil
	}
	return reply, nil
}

func (b *scriptedBackend) Transcribe(context.Context, []byte, string) (string, error) {
	return "", errors.New("not implemented")
}

func (b *scriptedBackend) Synthesize(context.Context, string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func newTestOrchestrator(backend llm.Backend) (*Orchestrator, *conversation.Store) {
	store := conversation.NewStore()
	orch := New(store, backend, Config{}, zap.NewNop().Sugar())
	return orch, store
}

func TestSubmitPartnerMessageFlow(t *testing.T) {
	backend := &scriptedBackend{reply: "How about: I feel overwhelmed with chores"}
	orch, store := newTestOrchestrator(backend)

	reply, err := orch.SubmitPartnerMessage(context.Background(), 1, "You never help with chores")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if reply != backend.reply {
		t.Fatalf("unexpected reply: %q", reply)
	}

	window, err := store.RecentWindow(conversation.RolePartner1, 10)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(window) != 2 {
		t.Fatalf("expected user+assistant turns, got %d", len(window))
	}
	if window[0].Role != conversation.SpeakerUser || window[0].Content != "You never help with chores" {
		t.Fatalf("unexpected user turn: %+v", window[0])
	}
	if window[1].Role != conversation.SpeakerAssistant || window[1].Content != reply {
		t.Fatalf("unexpected assistant turn: %+v", window[1])
	}

	// The therapist log must remain untouched by a submission.
	therapistLen, err := store.Len(conversation.RoleTherapist)
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if therapistLen != 0 {
		t.Fatalf("submission leaked into therapist log: %d turns", therapistLen)
	}

	// The call window carries the representor prompt first.
	call := backend.calls[0]
	if call.Messages[0].Role != "system" || !strings.Contains(call.Messages[0].Content, "Partner 1's personal representor") {
		t.Fatalf("unexpected system prompt: %q", call.Messages[0].Content)
	}
	if call.Model != "gpt-3.5-turbo" {
		t.Fatalf("unexpected representor model: %s", call.Model)
	}
}

func TestApprovePartnerMessageFlow(t *testing.T) {
	backend := &scriptedBackend{reply: "Thank you for sharing that."}
	orch, store := newTestOrchestrator(backend)

	// Seed the partner log via a normal submission first.
	if _, err := orch.SubmitPartnerMessage(context.Background(), 1, "You never help with chores"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	partnerLenBefore, _ := store.Len(conversation.RolePartner1)

	reply, err := orch.ApprovePartnerMessage(context.Background(), 1, "I feel overwhelmed with chores")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if reply != "Thank you for sharing that." {
		t.Fatalf("unexpected reply: %q", reply)
	}

	window, err := store.RecentWindow(conversation.RoleTherapist, 15)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(window) != 2 {
		t.Fatalf("expected user+assistant turns in therapist log, got %d", len(window))
	}
	if window[0].Content != "Partner 1: I feel overwhelmed with chores" {
		t.Fatalf("missing attribution prefix: %q", window[0].Content)
	}
	if window[0].Partner != 1 {
		t.Fatalf("expected turn attributed to partner 1, got %d", window[0].Partner)
	}

	// Approval must not alter the partner's own log.
	partnerLenAfter, _ := store.Len(conversation.RolePartner1)
	if partnerLenAfter != partnerLenBefore {
		t.Fatalf("approval changed partner log: %d -> %d", partnerLenBefore, partnerLenAfter)
	}

	call := backend.calls[len(backend.calls)-1]
	if !strings.Contains(call.Messages[0].Content, "couples therapist mediator") {
		t.Fatalf("unexpected therapist prompt: %q", call.Messages[0].Content)
	}
	if call.Model != "gpt-4" {
		t.Fatalf("unexpected therapist model: %s", call.Model)
	}
}

func TestEmptyMessageRejected(t *testing.T) {
	orch, store := newTestOrchestrator(&scriptedBackend{reply: "x"})

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := orch.SubmitPartnerMessage(context.Background(), 1, text); !errors.Is(err, ErrEmptyMessage) {
			t.Fatalf("submit(%q): expected ErrEmptyMessage, got %v", text, err)
		}
		if _, err := orch.ApprovePartnerMessage(context.Background(), 2, text); !errors.Is(err, ErrEmptyMessage) {
			t.Fatalf("approve(%q): expected ErrEmptyMessage, got %v", text, err)
		}
	}

	for _, role := range conversation.Roles {
		length, _ := store.Len(role)
		if length != 0 {
			t.Fatalf("rejected input must not be stored: %s has %d turns", role, length)
		}
	}
}

func TestInvalidPartnerRejected(t *testing.T) {
	orch, _ := newTestOrchestrator(&scriptedBackend{reply: "x"})

	for _, id := range []conversation.PartnerID{0, 3, -1} {
		if _, err := orch.SubmitPartnerMessage(context.Background(), id, "hello"); !errors.Is(err, ErrInvalidPartner) {
			t.Fatalf("expected ErrInvalidPartner for id %d, got %v", id, err)
		}
	}
}

func TestBackendFailureLeavesLogIntact(t *testing.T) {
	backend := &scriptedBackend{err: &llm.BackendError{Op: "chat", Err: errors.New("boom")}}
	orch, store := newTestOrchestrator(backend)

	_, err := orch.SubmitPartnerMessage(context.Background(), 2, "hello")
	var backendErr *llm.BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected BackendError, got %v", err)
	}

	// Only the user turn may remain; no partial assistant turn.
	window, _ := store.RecentWindow(conversation.RolePartner2, 10)
	if len(window) != 1 {
		t.Fatalf("expected exactly the user turn, got %d turns", len(window))
	}
	if window[0].Role != conversation.SpeakerUser {
		t.Fatalf("unexpected turn after failure: %+v", window[0])
	}
}

func TestPartnerWindowExcludesOldestAtLimit(t *testing.T) {
	backend := &scriptedBackend{reply: "noted"}
	orch, _ := newTestOrchestrator(backend)

	// Each exchange appends two turns, so six exchanges put the first
	// message outside a ten-turn window.
	for i := 0; i < 6; i++ {
		if _, err := orch.SubmitPartnerMessage(context.Background(), 2, fmt.Sprintf("message %d", i)); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	last := backend.calls[len(backend.calls)-1]
	// system prompt + 10-turn window
	if len(last.Messages) != 11 {
		t.Fatalf("expected 11 prompt messages, got %d", len(last.Messages))
	}
	for _, msg := range last.Messages[1:] {
		if msg.Content == "message 0" {
			t.Fatal("oldest message must be outside the window")
		}
	}
	if last.Messages[len(last.Messages)-1].Content != "message 5" {
		t.Fatalf("window must end with the newest turn, got %q", last.Messages[len(last.Messages)-1].Content)
	}
}

func TestConcurrentApprovalsBothRecorded(t *testing.T) {
	backend := &scriptedBackend{reply: "mediated", delay: 20 * time.Millisecond}
	orch, store := newTestOrchestrator(backend)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, partner := range []conversation.PartnerID{1, 2} {
		wg.Add(1)
		go func(p conversation.PartnerID) {
			defer wg.Done()
			if _, err := orch.ApprovePartnerMessage(context.Background(), p, fmt.Sprintf("approved by %d", p)); err != nil {
				errs <- err
			}
		}(partner)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("approve: %v", err)
	}

	length, err := store.Len(conversation.RoleTherapist)
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if length != 4 {
		t.Fatalf("expected 4 therapist turns (2 user + 2 assistant), got %d", length)
	}

	window, _ := store.RecentWindow(conversation.RoleTherapist, 15)
	var attributions []conversation.PartnerID
	for _, turn := range window {
		if turn.Partner != 0 {
			attributions = append(attributions, turn.Partner)
		}
	}
	if len(attributions) != 2 {
		t.Fatalf("expected both approvals recorded, got %v", attributions)
	}
}

func TestBackendTimeout(t *testing.T) {
	backend := &scriptedBackend{reply: "late", delay: 200 * time.Millisecond}
	store := conversation.NewStore()
	orch := New(store, backend, Config{BackendTimeout: 20 * time.Millisecond}, zap.NewNop().Sugar())

	_, err := orch.SubmitPartnerMessage(context.Background(), 1, "hello")
	var backendErr *llm.BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("timeout must surface as BackendError, got %v", err)
	}
}
