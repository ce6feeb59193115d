package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/speech-service/internal/audio"
	"github.com/book-expert/speech-service/internal/core"
)

// Remote engine API contract.
const (
	remoteGeneratePath = "/v1/generate/speech"
	remoteHealthPath   = "/health"

	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

// remoteRequest is the JSON payload sent to a standalone inference service.
// The conditioning clip, when present, travels base64-encoded since the
// remote process shares no filesystem with this service.
type remoteRequest struct {
	Text           string  `json:"text"`
	AudioPromptB64 string  `json:"audio_prompt_b64,omitempty"`
	MaxNewTokens   int     `json:"max_new_tokens"`
	CFGScale       float64 `json:"cfg_scale"`
	Temperature    float64 `json:"temperature"`
	TopP           float64 `json:"top_p"`
	CFGFilterTopK  int     `json:"cfg_filter_top_k"`
}

// remoteError is the structured error body a remote engine returns.
type remoteError struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// RemoteEngine implements core.SynthesisEngine against a standalone
// inference service speaking JSON in and audio/wav out.
type RemoteEngine struct {
	baseURL    string
	httpClient *http.Client
	ingestor   *audio.Ingestor
	log        *logger.Logger
}

// NewRemoteEngine creates a remote-backed engine. The baseURL includes
// protocol and port (e.g. "http://localhost:8100").
func NewRemoteEngine(baseURL string, timeout time.Duration, log *logger.Logger) *RemoteEngine {
	return &RemoteEngine{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		ingestor: audio.NewIngestor(audio.IngestOptions{ChannelAxis: audio.ChannelAxisAuto}, log),
		log:      log,
	}
}

// Generate sends one generation request and decodes the audio response.
func (e *RemoteEngine) Generate(ctx context.Context, req core.SynthesisRequest) ([]float64, error) {
	payload, err := e.buildPayload(req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		e.baseURL+remoteGeneratePath,
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeWAV)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to reach inference service at %s: %w", e.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, e.parseErrorResponse(resp)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio response: %w", err)
	}

	if len(audioData) == 0 {
		return nil, nil
	}

	waveform, err := e.ingestor.DecodeBytes(audioData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio response: %w", err)
	}

	return waveform.Samples, nil
}

// Close releases the backend's HTTP resources.
func (e *RemoteEngine) Close() error {
	e.httpClient.CloseIdleConnections()

	return nil
}

// Health verifies the inference service is reachable and reports healthy.
func (e *RemoteEngine) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, e.baseURL+remoteHealthPath, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for service at %s: %w", e.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	return nil
}

func (e *RemoteEngine) buildPayload(req core.SynthesisRequest) (remoteRequest, error) {
	payload := remoteRequest{
		Text:          req.Text,
		MaxNewTokens:  req.Params.MaxNewTokens,
		CFGScale:      req.Params.CFGScale,
		Temperature:   req.Params.Temperature,
		TopP:          req.Params.TopP,
		CFGFilterTopK: req.Params.CFGFilterTopK,
	}

	if req.PromptPath != "" {
		promptData, err := os.ReadFile(req.PromptPath)
		if err != nil {
			return remoteRequest{}, fmt.Errorf("failed to read prompt file: %w", err)
		}

		payload.AudioPromptB64 = base64.StdEncoding.EncodeToString(promptData)
	}

	return payload, nil
}

// parseErrorResponse decodes a structured JSON error, falling back to the
// raw body so diagnostics are never lost.
func (e *RemoteEngine) parseErrorResponse(resp *http.Response) error {
	var structured remoteError

	err := json.NewDecoder(resp.Body).Decode(&structured)
	if err == nil && structured.Detail != "" {
		return fmt.Errorf("inference service error (%s): %s (code: %s)",
			resp.Status, structured.Detail, structured.ErrorCode)
	}

	body, _ := io.ReadAll(resp.Body)

	return fmt.Errorf("inference service returned non-OK status: %s, body: %s",
		resp.Status, string(body))
}
