// Package handlers is the HTTP gateway: it parses requests into
// orchestrator calls and serializes results back to JSON (and audio where
// voice replies are enabled).
package handlers

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/triadlabs/triad/conversation"
	"github.com/triadlabs/triad/llm"
	"github.com/triadlabs/triad/orchestrator"
)

// Handler wires the orchestrator and backend into gin routes.
type Handler struct {
	orch    *orchestrator.Orchestrator
	backend llm.Backend
	hub     *StreamHub
	logger  *zap.SugaredLogger

	mode             string
	representorModel string
	therapistModel   string
	voiceEnabled     bool
}

// Options carries the gateway's startup-time settings.
type Options struct {
	Mode             string
	RepresentorModel string
	TherapistModel   string
	VoiceEnabled     bool
}

// New constructs the gateway handler.
func New(orch *orchestrator.Orchestrator, backend llm.Backend, hub *StreamHub, opts Options, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		orch:             orch,
		backend:          backend,
		hub:              hub,
		logger:           logger,
		mode:             opts.Mode,
		representorModel: opts.RepresentorModel,
		therapistModel:   opts.TherapistModel,
		voiceEnabled:     opts.VoiceEnabled,
	}
}

// RegisterRoutes attaches all gateway routes to router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/test", h.handleStatus)

	partner := router.Group("/partner/:id")
	partner.POST("/message", h.handleMessage)
	partner.POST("/approve", h.handleApprove)
	partner.POST("/audio", h.handleAudio)

	convo := router.Group("/conversation")
	convo.GET("/history", h.handleHistory)
	convo.GET("/stream", h.handleStream)
}

type messageRequest struct {
	Message string `json:"message"`
}

type messageResponse struct {
	Response    string `json:"response"`
	AudioBase64 string `json:"audio_base64,omitempty"`
}

func (h *Handler) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "API is working correctly",
		"mode":            h.mode,
		"partner_model":   h.representorModel,
		"therapist_model": h.therapistModel,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleMessage(c *gin.Context) {
	partner, ok := partnerParam(c)
	if !ok {
		return
	}

	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	reply, err := h.orch.SubmitPartnerMessage(c.Request.Context(), partner, req.Message)
	if err != nil {
		h.writeOrchestratorError(c, err)
		return
	}

	c.JSON(http.StatusOK, messageResponse{
		Response:    reply,
		AudioBase64: h.maybeSynthesize(c, reply),
	})
}

func (h *Handler) handleApprove(c *gin.Context) {
	partner, ok := partnerParam(c)
	if !ok {
		return
	}

	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	reply, err := h.orch.ApprovePartnerMessage(c.Request.Context(), partner, req.Message)
	if err != nil {
		h.writeOrchestratorError(c, err)
		return
	}

	c.JSON(http.StatusOK, messageResponse{
		Response:    reply,
		AudioBase64: h.maybeSynthesize(c, reply),
	})
}

func (h *Handler) handleHistory(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.History())
}

// maybeSynthesize returns base64 audio for reply when voice is enabled.
// The reply is already committed to the log, so a synthesis failure
// degrades to a text-only response instead of failing the request.
func (h *Handler) maybeSynthesize(c *gin.Context, reply string) string {
	if !h.voiceEnabled {
		return ""
	}

	audio, err := h.backend.Synthesize(c.Request.Context(), reply)
	if err != nil {
		h.logger.Warnw("speech synthesis failed, returning text only",
			"request_id", c.GetString(requestIDKey), "error", err)
		return ""
	}

	return base64.StdEncoding.EncodeToString(audio)
}

func (h *Handler) writeOrchestratorError(c *gin.Context, err error) {
	var backendErr *llm.BackendError
	switch {
	case errors.Is(err, orchestrator.ErrEmptyMessage):
		writeError(c, http.StatusBadRequest, "No message provided", err)
	case errors.As(err, &backendErr):
		writeError(c, http.StatusBadGateway, "model backend failed", err)
	case errors.Is(err, conversation.ErrUnknownRole):
		writeError(c, http.StatusInternalServerError, "conversation routing failed", err)
	default:
		writeError(c, http.StatusInternalServerError, "internal error", err)
	}
}

func partnerParam(c *gin.Context) (conversation.PartnerID, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || !conversation.PartnerID(id).Valid() {
		writeError(c, http.StatusBadRequest, "partner id must be 1 or 2", orchestrator.ErrInvalidPartner)
		return 0, false
	}
	return conversation.PartnerID(id), true
}

func writeError(c *gin.Context, status int, message string, err error) {
	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}

const requestIDKey = "request_id"

// RequestID tags every request with a uuid for log correlation.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// CORS allows the browser frontend to call the API from any origin, as
// the original development setup does.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
