package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/book-expert/logger"

	"github.com/book-expert/speech-service/internal/audio"
	"github.com/book-expert/speech-service/internal/config"
	"github.com/book-expert/speech-service/internal/core"
)

const processOutputPattern = "speech-output-*.wav"

// ProcessEngine implements core.SynthesisEngine by invoking a local
// inference binary. The binary runs in inference mode (no training
// bookkeeping), reads the optional conditioning file, and exports a 16-bit
// PCM WAV which is decoded back into raw samples.
type ProcessEngine struct {
	binaryPath string
	modelPath  string
	device     string
	precision  string
	ingestor   *audio.Ingestor
	log        *logger.Logger
}

// NewProcessEngine creates a process-backed engine from configuration.
func NewProcessEngine(cfg config.EngineConfig, precision string, log *logger.Logger) *ProcessEngine {
	return &ProcessEngine{
		binaryPath: cfg.BinaryPath,
		modelPath:  cfg.ModelPath,
		device:     cfg.Device,
		precision:  precision,
		ingestor:   audio.NewIngestor(audio.IngestOptions{ChannelAxis: audio.ChannelAxisAuto}, log),
		log:        log,
	}
}

// Generate runs the inference binary once and decodes its exported audio.
func (e *ProcessEngine) Generate(ctx context.Context, req core.SynthesisRequest) ([]float64, error) {
	tempFile, err := os.CreateTemp("", processOutputPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for engine output: %w", err)
	}

	outputPath := tempFile.Name()

	closeErr := tempFile.Close()
	if closeErr != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", closeErr)
	}

	defer func() {
		removeErr := os.Remove(outputPath)
		if removeErr != nil && !os.IsNotExist(removeErr) {
			e.log.Warn("Failed to remove engine output file '%s': %v", outputPath, removeErr)
		}
	}()

	args := e.buildArgs(req, outputPath)

	// #nosec G204 -- arguments come from validated request parameters
	cmd := exec.CommandContext(ctx, e.binaryPath, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		return nil, fmt.Errorf("inference binary failed: %w - output: %s", err, string(output))
	}

	audioData, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read engine output: %w", err)
	}

	if len(audioData) == 0 {
		return nil, nil
	}

	waveform, err := e.ingestor.DecodeBytes(audioData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode engine output: %w", err)
	}

	return waveform.Samples, nil
}

// Close releases the backend. The inference binary holds no state between
// invocations, so there is nothing to tear down beyond the handle itself.
func (e *ProcessEngine) Close() error {
	return nil
}

func (e *ProcessEngine) buildArgs(req core.SynthesisRequest, outputPath string) []string {
	args := []string{
		"--model", e.modelPath,
		"--device", e.device,
		"--precision", e.precision,
		"--text", req.Text,
		"--output", outputPath,
		"--max-new-tokens", strconv.Itoa(req.Params.MaxNewTokens),
		"--cfg-scale", strconv.FormatFloat(req.Params.CFGScale, 'f', 2, 64),
		"--temperature", strconv.FormatFloat(req.Params.Temperature, 'f', 2, 64),
		"--top-p", strconv.FormatFloat(req.Params.TopP, 'f', 2, 64),
		"--cfg-filter-top-k", strconv.Itoa(req.Params.CFGFilterTopK),
	}

	if req.PromptPath != "" {
		args = append(args, "--audio-prompt", req.PromptPath)
	}

	return args
}
