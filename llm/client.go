package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	chatHTTPTimeout  = 30 * time.Second
	audioHTTPTimeout = 60 * time.Second

	rateLimitMaxRetries = 2

	probeMaxTokens = 5
)

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// ClientConfig holds the live backend's connection settings.
type ClientConfig struct {
	BaseURL            string
	APIKey             string
	TranscriptionModel string
	SpeechModel        string
	SpeechVoice        string
	SpeechFormat       string
}

// Client calls an OpenAI-compatible API for chat completions,
// transcription, and speech synthesis.
type Client struct {
	baseURL            string
	apiKey             string
	transcriptionModel string
	speechModel        string
	speechVoice        string
	speechFormat       string
	chatClient         httpDoer
	audioClient        httpDoer
	logger             *zap.SugaredLogger
}

// NewClient constructs a live backend client from cfg.
func NewClient(cfg ClientConfig, logger *zap.SugaredLogger) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}

	transcription := strings.TrimSpace(cfg.TranscriptionModel)
	if transcription == "" {
		transcription = "whisper-1"
	}

	speech := strings.TrimSpace(cfg.SpeechModel)
	if speech == "" {
		speech = "tts-1"
	}

	voice := strings.TrimSpace(cfg.SpeechVoice)
	if voice == "" {
		voice = "alloy"
	}

	format := strings.TrimSpace(cfg.SpeechFormat)
	if format == "" {
		format = "mp3"
	}

	return &Client{
		baseURL:            base,
		apiKey:             strings.TrimSpace(cfg.APIKey),
		transcriptionModel: transcription,
		speechModel:        speech,
		speechVoice:        voice,
		speechFormat:       format,
		chatClient:         &http.Client{Timeout: chatHTTPTimeout},
		// Audio endpoints are slower; a longer timeout avoids premature 504s.
		audioClient: &http.Client{Timeout: audioHTTPTimeout},
		logger:      logger,
	}
}

// Chat sends req to the chat completions endpoint and returns the first
// choice's content. Rate-limited calls are retried a bounded number of
// times with exponential backoff; every other failure surfaces at once.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if len(req.Messages) == 0 {
		return "", backendErr("chat", errors.New("no messages to send"))
	}

	var reply string
	operation := func() error {
		text, err := c.chatOnce(ctx, req)
		if err != nil {
			var be *BackendError
			if errors.As(err, &be) && be.RateLimited {
				c.logger.Warnw("chat completion rate limited, retrying", "model", req.Model)
				return err
			}
			return backoff.Permanent(err)
		}
		reply = text
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), rateLimitMaxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}

	return reply, nil
}

func (c *Client) chatOnce(ctx context.Context, req ChatRequest) (string, error) {
	payload := chatAPIRequest{
		Model:    req.Model,
		Messages: req.Messages,
	}
	if req.MaxTokens > 0 {
		payload.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		payload.Temperature = req.Temperature
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", backendErr("chat", fmt.Errorf("marshal payload: %w", err))
	}

	respBody, err := c.post(ctx, c.chatClient, "chat", "/chat/completions", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	var apiResp chatAPIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", backendErr("chat", fmt.Errorf("decode response: %w", err))
	}

	if apiResp.Error != nil && apiResp.Error.Message != "" {
		return "", backendErr("chat", errors.New(apiResp.Error.Message))
	}

	if len(apiResp.Choices) == 0 {
		return "", backendErr("chat", errors.New("response contained no choices"))
	}

	return apiResp.Choices[0].Message.Content, nil
}

// Transcribe uploads audio to the transcription endpoint and returns the
// recognized text.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", backendErr("transcribe", errors.New("empty audio payload"))
	}
	if strings.TrimSpace(filename) == "" {
		filename = "recording.wav"
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	if err := form.WriteField("model", c.transcriptionModel); err != nil {
		return "", backendErr("transcribe", fmt.Errorf("build form: %w", err))
	}
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return "", backendErr("transcribe", fmt.Errorf("build form: %w", err))
	}
	if _, err := part.Write(audio); err != nil {
		return "", backendErr("transcribe", fmt.Errorf("build form: %w", err))
	}
	if err := form.Close(); err != nil {
		return "", backendErr("transcribe", fmt.Errorf("build form: %w", err))
	}

	respBody, err := c.post(ctx, c.audioClient, "transcribe", "/audio/transcriptions", form.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}

	var apiResp transcriptionAPIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", backendErr("transcribe", fmt.Errorf("decode response: %w", err))
	}

	return apiResp.Text, nil
}

// Synthesize converts text to speech and returns the raw audio bytes.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, backendErr("synthesize", errors.New("empty text"))
	}

	payload := speechAPIRequest{
		Model:          c.speechModel,
		Voice:          c.speechVoice,
		Input:          text,
		ResponseFormat: c.speechFormat,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, backendErr("synthesize", fmt.Errorf("marshal payload: %w", err))
	}

	// The speech endpoint responds with the audio bytes directly.
	return c.post(ctx, c.audioClient, "synthesize", "/audio/speech", "application/json", bytes.NewReader(body))
}

// Probe issues a minimal completion to validate the configured credential.
func (c *Client) Probe(ctx context.Context, model string) error {
	_, err := c.chatOnce(ctx, ChatRequest{
		Model:     model,
		Messages:  []Message{{Role: "user", Content: "test"}},
		MaxTokens: probeMaxTokens,
	})
	return err
}

func (c *Client) post(ctx context.Context, client httpDoer, op, path, contentType string, body io.Reader) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, backendErr(op, fmt.Errorf("create request: %w", err))
	}

	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", contentType)

	response, err := client.Do(request)
	if err != nil {
		return nil, backendErr(op, err)
	}
	defer response.Body.Close()

	respBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, backendErr(op, fmt.Errorf("read response: %w", err))
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, buildAPIError(op, response.StatusCode, respBody)
	}

	return respBody, nil
}

type apiError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type apiErrorEnvelope struct {
	Error *apiError `json:"error,omitempty"`
}

func buildAPIError(op string, statusCode int, body []byte) error {
	berr := &BackendError{
		Op:          op,
		StatusCode:  statusCode,
		RateLimited: statusCode == http.StatusTooManyRequests,
	}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		message := strings.TrimSpace(envelope.Error.Message)
		if envelope.Error.Code != "" && message != "" {
			berr.Err = fmt.Errorf("%s: %s", envelope.Error.Code, message)
			return berr
		}
		if message != "" {
			berr.Err = errors.New(message)
			return berr
		}
	}

	snippet := strings.TrimSpace(string(body))
	if snippet == "" {
		snippet = http.StatusText(statusCode)
	}
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}

	berr.Err = errors.New(snippet)
	return berr
}

type chatAPIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatAPIChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type chatAPIResponse struct {
	ID      string          `json:"id"`
	Object  string          `json:"object"`
	Created int64           `json:"created"`
	Choices []chatAPIChoice `json:"choices"`
	Error   *apiError       `json:"error,omitempty"`
}

type transcriptionAPIResponse struct {
	Text string `json:"text"`
}

type speechAPIRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format,omitempty"`
}
