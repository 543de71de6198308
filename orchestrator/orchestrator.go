// Package orchestrator routes partner input through the two-phase
// compose/approve workflow: representor replies stay in the submitting
// partner's private log; only explicitly approved text ever reaches the
// therapist.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/triadlabs/triad/conversation"
	"github.com/triadlabs/triad/llm"
)

const (
	// Context-window limits per log. The therapist reads more history
	// because it mediates between two parties.
	partnerWindowLimit   = 10
	therapistWindowLimit = 15

	representorMaxTokens = 500
	therapistMaxTokens   = 800
	chatTemperature      = 0.7

	defaultBackendTimeout = 45 * time.Second
)

// ErrEmptyMessage rejects blank or whitespace-only input.
var ErrEmptyMessage = errors.New("message must not be empty")

// ErrInvalidPartner rejects partner ids other than 1 or 2.
var ErrInvalidPartner = errors.New("partner id must be 1 or 2")

// Config carries the per-role model identifiers and the backend call
// timeout. Zero-valued fields fall back to the original system's defaults.
type Config struct {
	RepresentorModel string
	TherapistModel   string
	BackendTimeout   time.Duration
}

// Orchestrator owns the conversation store and the model backend. A single
// instance serves all inbound requests; per-role locks serialize each
// log's read-modify-append sequence.
type Orchestrator struct {
	store   *conversation.Store
	backend llm.Backend
	cfg     Config
	logger  *zap.SugaredLogger

	// One exchange lock per role. Held across "append user turn + build
	// window" and re-acquired for the assistant append, never across the
	// backend call itself.
	locks map[conversation.Role]*sync.Mutex
}

// New constructs an orchestrator over store and backend.
func New(store *conversation.Store, backend llm.Backend, cfg Config, logger *zap.SugaredLogger) *Orchestrator {
	if strings.TrimSpace(cfg.RepresentorModel) == "" {
		cfg.RepresentorModel = "gpt-3.5-turbo"
	}
	if strings.TrimSpace(cfg.TherapistModel) == "" {
		cfg.TherapistModel = "gpt-4"
	}
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = defaultBackendTimeout
	}

	locks := make(map[conversation.Role]*sync.Mutex, len(conversation.Roles))
	for _, role := range conversation.Roles {
		locks[role] = &sync.Mutex{}
	}

	return &Orchestrator{
		store:   store,
		backend: backend,
		cfg:     cfg,
		logger:  logger,
		locks:   locks,
	}
}

// SubmitPartnerMessage runs the representor phase: the raw text is
// appended to the partner's private log, the representor model drafts a
// reframing, and the draft is returned for the partner's review. Nothing
// here touches the therapist log.
func (o *Orchestrator) SubmitPartnerMessage(ctx context.Context, partner conversation.PartnerID, text string) (string, error) {
	if !partner.Valid() {
		return "", ErrInvalidPartner
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}

	role := partner.Log()
	userTurn := conversation.Turn{Role: conversation.SpeakerUser, Content: text}

	window, err := o.appendAndWindow(role, userTurn, partnerWindowLimit)
	if err != nil {
		return "", err
	}

	reply, err := o.chat(ctx, llm.ChatRequest{
		Model:       o.cfg.RepresentorModel,
		Messages:    withSystemPrompt(rolePrompt(role), window),
		Role:        role,
		Partner:     partner,
		MaxTokens:   representorMaxTokens,
		Temperature: chatTemperature,
	})
	if err != nil {
		o.logger.Errorw("representor call failed", "partner", int(partner), "error", err)
		return "", err
	}

	if err := o.appendAssistant(role, reply); err != nil {
		return "", err
	}

	return reply, nil
}

// ApprovePartnerMessage runs the therapist phase on text the partner has
// explicitly approved. The approved text is attributed to the partner and
// appended to the shared therapist log, then the therapist model responds.
//
// Approval is a free-form resubmission of text, not a reference to a prior
// turn; a partner may approve edited text or resubmit while another draft
// is pending, and turns simply append in arrival order.
func (o *Orchestrator) ApprovePartnerMessage(ctx context.Context, partner conversation.PartnerID, text string) (string, error) {
	if !partner.Valid() {
		return "", ErrInvalidPartner
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}

	// The therapist sees both partners in one log; the prefix is its only
	// signal for who is speaking.
	userTurn := conversation.Turn{
		Role:    conversation.SpeakerUser,
		Content: fmt.Sprintf("Partner %d: %s", partner, text),
		Partner: partner,
	}

	window, err := o.appendAndWindow(conversation.RoleTherapist, userTurn, therapistWindowLimit)
	if err != nil {
		return "", err
	}

	reply, err := o.chat(ctx, llm.ChatRequest{
		Model:       o.cfg.TherapistModel,
		Messages:    withSystemPrompt(rolePrompt(conversation.RoleTherapist), window),
		Role:        conversation.RoleTherapist,
		Partner:     partner,
		MaxTokens:   therapistMaxTokens,
		Temperature: chatTemperature,
	})
	if err != nil {
		o.logger.Errorw("therapist call failed", "partner", int(partner), "error", err)
		return "", err
	}

	if err := o.appendAssistant(conversation.RoleTherapist, reply); err != nil {
		return "", err
	}

	return reply, nil
}

// History returns a snapshot of all three logs.
func (o *Orchestrator) History() conversation.History {
	return o.store.Snapshot()
}

// appendAndWindow appends turn to role's log and reads back the bounded
// window in one critical section, so concurrent exchanges on the same log
// cannot interleave between the append and the read.
func (o *Orchestrator) appendAndWindow(role conversation.Role, turn conversation.Turn, limit int) ([]conversation.Turn, error) {
	mu := o.locks[role]
	mu.Lock()
	defer mu.Unlock()

	if err := o.store.Append(role, turn); err != nil {
		return nil, err
	}
	return o.store.RecentWindow(role, limit)
}

// appendAssistant records a successful model reply. On backend failure the
// caller never reaches here, leaving the log exactly as after the user
// append.
func (o *Orchestrator) appendAssistant(role conversation.Role, reply string) error {
	mu := o.locks[role]
	mu.Lock()
	defer mu.Unlock()

	return o.store.Append(role, conversation.Turn{Role: conversation.SpeakerAssistant, Content: reply})
}

func (o *Orchestrator) chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.BackendTimeout)
	defer cancel()

	reply, err := o.backend.Chat(ctx, req)
	if err != nil {
		var be *llm.BackendError
		if errors.As(err, &be) {
			return "", err
		}
		// Timeouts and other transport errors count as backend failures.
		return "", &llm.BackendError{Op: "chat", Err: err}
	}
	return reply, nil
}

func withSystemPrompt(prompt string, window []conversation.Turn) []llm.Message {
	messages := make([]llm.Message, 0, 1+len(window))
	messages = append(messages, llm.Message{Role: "system", Content: prompt})
	for _, turn := range window {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	return messages
}
