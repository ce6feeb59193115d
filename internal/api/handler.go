// Package api exposes the speech service over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/book-expert/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/book-expert/speech-service/internal/audio"
	"github.com/book-expert/speech-service/internal/core"
	"github.com/book-expert/speech-service/internal/fileutil"
	"github.com/book-expert/speech-service/internal/service"
)

// Form field and response keys.
const (
	formFieldText      = "text"
	formFieldAudioFile = "audio_file"

	responseKeyDetail = "detail"
)

// maxUploadBytes bounds reference-clip uploads; clips longer than the
// ingest cap are truncated later anyway, this guards memory first.
const maxUploadBytes = 64 << 20

// errMalformedBody marks request bodies that could not be parsed at all.
var errMalformedBody = errors.New("malformed request body")

// Handler serves the generation and health endpoints.
type Handler struct {
	svc       *service.Service
	ingestor  *audio.Ingestor
	uploadDir string
	log       *logger.Logger
}

// NewHandler creates the HTTP handler set.
func NewHandler(svc *service.Service, ingestor *audio.Ingestor, uploadDir string, log *logger.Logger) *Handler {
	return &Handler{
		svc:       svc,
		ingestor:  ingestor,
		uploadDir: uploadDir,
		log:       log,
	}
}

// generatePayload is the JSON request body. Parameter fields are pointers
// so omitted values fall back to documented defaults while explicit values,
// including boundary ones, are validated as sent.
type generatePayload struct {
	Text          string              `json:"text"`
	AudioPrompt   *audioPromptPayload `json:"audio_prompt"`
	MaxNewTokens  *int                `json:"max_new_tokens"`
	CFGScale      *float64            `json:"cfg_scale"`
	Temperature   *float64            `json:"temperature"`
	TopP          *float64            `json:"top_p"`
	CFGFilterTopK *int                `json:"cfg_filter_top_k"`
	SpeedFactor   *float64            `json:"speed_factor"`
}

// audioPromptPayload is an embedded reference clip. AudioData accepts a
// flat sample array or a two-dimensional channel matrix.
type audioPromptPayload struct {
	SampleRate int             `json:"sample_rate"`
	AudioData  json.RawMessage `json:"audio_data"`
}

// Health reports liveness. No side effects.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "speech service is running",
	})
}

// Generate handles POST /api/generate for both JSON and multipart bodies.
// Success returns the rendered WAV; failures return {"detail": ...} with
// 400 for validation/ingest errors and 500 for engine/internal errors.
func (h *Handler) Generate(c *gin.Context) {
	var (
		req Request
		err error
	)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		req, err = h.parseMultipart(c)
	} else {
		req, err = h.parseJSON(c)
	}

	if err != nil {
		h.fail(c, err)

		return
	}

	result, err := h.svc.Generate(c.Request.Context(), service.Request{
		Text:   req.Text,
		Prompt: req.Prompt,
		Params: req.Params,
	})
	if err != nil {
		h.fail(c, err)

		return
	}

	c.Header("Content-Type", result.MediaType)
	c.Header("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.File(result.Path)
}

// Request is the parsed, backend-agnostic form of a generate call.
type Request struct {
	Text   string
	Prompt *core.Waveform
	Params core.GenerationParams
}

func (h *Handler) parseJSON(c *gin.Context) (Request, error) {
	var payload generatePayload

	err := c.ShouldBindJSON(&payload)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %w", errMalformedBody, err)
	}

	req := Request{
		Text:   payload.Text,
		Params: paramsFrom(payload),
	}

	if payload.AudioPrompt != nil {
		prompt, promptErr := h.promptFromPayload(payload.AudioPrompt)
		if promptErr != nil {
			return Request{}, promptErr
		}

		req.Prompt = prompt
	}

	return req, nil
}

func (h *Handler) parseMultipart(c *gin.Context) (Request, error) {
	req := Request{
		Text: c.PostForm(formFieldText),
	}

	params, err := paramsFromForm(c)
	if err != nil {
		return Request{}, err
	}

	req.Params = params

	fileHeader, err := c.FormFile(formFieldAudioFile)
	if err != nil {
		// Reference audio is optional on the multipart path too.
		return req, nil
	}

	prompt, err := h.ingestUpload(fileHeader)
	if err != nil {
		return Request{}, err
	}

	req.Prompt = prompt

	return req, nil
}

// ingestUpload spools the uploaded clip through the scratch directory and
// decodes it. The scratch copy is removed before the request proceeds.
func (h *Handler) ingestUpload(fileHeader *multipart.FileHeader) (*core.Waveform, error) {
	if fileHeader.Size > maxUploadBytes {
		return nil, fmt.Errorf("%w: upload exceeds %d bytes",
			core.ErrInvalidAudio, maxUploadBytes)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open upload: %w", core.ErrInvalidAudio, err)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read upload: %w", core.ErrInvalidAudio, err)
	}

	// Extension is advisory; the decoder sniffs the real container.
	if !fileutil.IsAudioUpload(fileHeader.Filename) {
		h.log.Warn("Upload '%s' has no audio extension, sniffing content",
			fileutil.SanitizeFilename(fileHeader.Filename))
	}

	ext := filepath.Ext(fileutil.SanitizeFilename(fileHeader.Filename))
	scratchPath := filepath.Join(h.uploadDir, uuid.NewString()+ext)

	err = os.WriteFile(scratchPath, data, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to spool upload: %w", err)
	}

	defer func() {
		removeErr := os.Remove(scratchPath)
		if removeErr != nil {
			h.log.Warn("Failed to remove scratch upload '%s': %v", scratchPath, removeErr)
		}
	}()

	waveform, err := h.ingestor.DecodeBytes(data)
	if err != nil {
		return nil, err
	}

	return &waveform, nil
}

func (h *Handler) promptFromPayload(payload *audioPromptPayload) (*core.Waveform, error) {
	var flat []float64

	err := json.Unmarshal(payload.AudioData, &flat)
	if err == nil {
		waveform, ingestErr := h.ingestor.FromSamples(flat, payload.SampleRate)
		if ingestErr != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrInvalidAudio, ingestErr)
		}

		return &waveform, nil
	}

	var matrix [][]float64

	err = json.Unmarshal(payload.AudioData, &matrix)
	if err != nil {
		return nil, fmt.Errorf("%w: audio_data must be a float array or matrix", core.ErrInvalidAudio)
	}

	waveform, err := h.ingestor.FromMatrix(matrix, payload.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidAudio, err)
	}

	return &waveform, nil
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if core.IsClientError(err) || errors.Is(err, errMalformedBody) {
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.log.Error("Generation request failed: %v", err)
	}

	c.JSON(status, gin.H{responseKeyDetail: err.Error()})
}

func paramsFrom(payload generatePayload) core.GenerationParams {
	params := core.DefaultGenerationParams()

	if payload.MaxNewTokens != nil {
		params.MaxNewTokens = *payload.MaxNewTokens
	}

	if payload.CFGScale != nil {
		params.CFGScale = *payload.CFGScale
	}

	if payload.Temperature != nil {
		params.Temperature = *payload.Temperature
	}

	if payload.TopP != nil {
		params.TopP = *payload.TopP
	}

	if payload.CFGFilterTopK != nil {
		params.CFGFilterTopK = *payload.CFGFilterTopK
	}

	if payload.SpeedFactor != nil {
		params.SpeedFactor = *payload.SpeedFactor
	}

	return params
}

func paramsFromForm(c *gin.Context) (core.GenerationParams, error) {
	params := core.DefaultGenerationParams()

	intFields := map[string]*int{
		"max_new_tokens":   &params.MaxNewTokens,
		"cfg_filter_top_k": &params.CFGFilterTopK,
	}

	for field, target := range intFields {
		raw := c.PostForm(field)
		if raw == "" {
			continue
		}

		value, err := strconv.Atoi(raw)
		if err != nil {
			return core.GenerationParams{}, fmt.Errorf(
				"%w: %s must be an integer", errMalformedBody, field)
		}

		*target = value
	}

	floatFields := map[string]*float64{
		"cfg_scale":    &params.CFGScale,
		"temperature":  &params.Temperature,
		"top_p":        &params.TopP,
		"speed_factor": &params.SpeedFactor,
	}

	for field, target := range floatFields {
		raw := c.PostForm(field)
		if raw == "" {
			continue
		}

		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return core.GenerationParams{}, fmt.Errorf(
				"%w: %s must be a number", errMalformedBody, field)
		}

		*target = value
	}

	return params, nil
}
