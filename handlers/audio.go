package handlers

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

var errUploadTooLarge = errors.New("audio upload exceeds size limit")

// maxUploadBytes caps a single audio upload at 25 MiB, matching the
// transcription API's own file limit.
const maxUploadBytes = 25 << 20

type audioResponse struct {
	Response        string `json:"response"`
	TranscribedText string `json:"transcribed_text"`
	AudioBase64     string `json:"audio_base64,omitempty"`
}

// handleAudio accepts a recorded message, transcribes it, runs the
// representor phase on the transcript, and returns the reply alongside
// what was heard.
func (h *Handler) handleAudio(c *gin.Context) {
	partner, ok := partnerParam(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		writeError(c, http.StatusBadRequest, "audio file is required", err)
		return
	}
	if fileHeader.Size > maxUploadBytes {
		writeError(c, http.StatusRequestEntityTooLarge, "audio file too large", errUploadTooLarge)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		writeError(c, http.StatusBadRequest, "cannot read audio file", err)
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(c, http.StatusBadRequest, "cannot read audio file", err)
		return
	}

	transcript, err := h.backend.Transcribe(c.Request.Context(), audio, fileHeader.Filename)
	if err != nil {
		writeError(c, http.StatusBadGateway, "transcription failed", err)
		return
	}

	reply, err := h.orch.SubmitPartnerMessage(c.Request.Context(), partner, transcript)
	if err != nil {
		h.writeOrchestratorError(c, err)
		return
	}

	resp := audioResponse{
		Response:        reply,
		TranscribedText: transcript,
	}
	if h.voiceEnabled {
		if audioReply, synthErr := h.backend.Synthesize(c.Request.Context(), reply); synthErr == nil {
			resp.AudioBase64 = base64.StdEncoding.EncodeToString(audioReply)
		} else {
			h.logger.Warnw("speech synthesis failed, returning text only",
				"request_id", c.GetString(requestIDKey), "error", synthErr)
		}
	}

	c.JSON(http.StatusOK, resp)
}
