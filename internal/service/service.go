// Package service orchestrates the generation pipeline: validation, prompt
// conditioning, engine invocation, and playback post-processing.
package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/logger"

	"github.com/book-expert/speech-service/internal/audio"
	"github.com/book-expert/speech-service/internal/core"
	"github.com/book-expert/speech-service/internal/fileutil"
	"github.com/book-expert/speech-service/internal/text"
)

// MediaTypeWAV is the content type of every rendered artifact.
const MediaTypeWAV = "audio/wav"

// Generator is the call boundary to the loaded engine. Satisfied by
// *engine.Manager; narrowed to an interface so tests can substitute mocks.
type Generator interface {
	Generate(ctx context.Context, req core.SynthesisRequest) ([]float64, error)
}

// Request is one validated-to-be generation job. Prompt is nil when no
// reference audio was supplied.
type Request struct {
	Text   string
	Prompt *core.Waveform
	Params core.GenerationParams
}

// Result describes a rendered audio artifact on disk.
type Result struct {
	Path      string
	Filename  string
	MediaType string
}

// Service wires the pipeline stages together around a shared engine.
type Service struct {
	generator   Generator
	conditioner *audio.Conditioner
	post        *audio.PostProcessor
	outputDir   string
	scratchDir  string
	log         *logger.Logger
}

// New creates a service rendering artifacts into outputDir and using
// scratchDir for request-scoped intermediates.
func New(
	generator Generator,
	conditioner *audio.Conditioner,
	post *audio.PostProcessor,
	outputDir, scratchDir string,
	log *logger.Logger,
) *Service {
	return &Service{
		generator:   generator,
		conditioner: conditioner,
		post:        post,
		outputDir:   outputDir,
		scratchDir:  scratchDir,
		log:         log,
	}
}

// Generate runs the full pipeline and persists the artifact under a
// collision-free name in the output directory. Validation happens before
// any expensive work; every temporary file is released on every exit path.
func (s *Service) Generate(ctx context.Context, req Request) (Result, error) {
	samples, speedFactor, err := s.synthesize(ctx, req)
	if err != nil {
		return Result{}, err
	}

	filename := fileutil.UniqueWAVName()
	path := filepath.Join(s.outputDir, filename)

	err = s.post.Render(path, samples, speedFactor)
	if err != nil {
		return Result{}, fmt.Errorf("failed to render audio: %w", err)
	}

	s.log.Info("Rendered %s (%d samples, speed %.2f)", filename, len(samples), speedFactor)

	return Result{Path: path, Filename: filename, MediaType: MediaTypeWAV}, nil
}

// Render runs the full pipeline and returns the artifact bytes, leaving
// nothing on disk. Used by the NATS job path, which uploads to the object
// store instead of serving files.
func (s *Service) Render(ctx context.Context, req Request) ([]byte, error) {
	samples, speedFactor, err := s.synthesize(ctx, req)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(s.scratchDir, fileutil.UniqueWAVName())

	err = s.post.Render(path, samples, speedFactor)
	if err != nil {
		return nil, fmt.Errorf("failed to render audio: %w", err)
	}

	defer func() {
		removeErr := os.Remove(path)
		if removeErr != nil {
			s.log.Warn("Failed to remove scratch render '%s': %v", path, removeErr)
		}
	}()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered audio: %w", err)
	}

	return data, nil
}

func (s *Service) synthesize(ctx context.Context, req Request) ([]float64, float64, error) {
	normalized := text.Normalize(req.Text)
	if normalized == "" {
		return nil, 0, core.ErrTextEmpty
	}

	err := req.Params.Validate()
	if err != nil {
		return nil, 0, err
	}

	promptPath, release, err := s.preparePrompt(req.Prompt)
	if err != nil {
		return nil, 0, err
	}

	if release != nil {
		defer release()
	}

	samples, err := s.generator.Generate(ctx, core.SynthesisRequest{
		Text:       normalized,
		PromptPath: promptPath,
		Params:     req.Params,
	})
	if err != nil {
		return nil, 0, err
	}

	return samples, req.Params.SpeedFactor, nil
}

// preparePrompt conditions the reference waveform and persists it for the
// engine. A nil or silent prompt yields no conditioning.
func (s *Service) preparePrompt(prompt *core.Waveform) (string, func(), error) {
	if prompt == nil {
		return "", nil, nil
	}

	conditioned, ok := s.conditioner.Condition(*prompt)
	if !ok {
		return "", nil, nil
	}

	path, release, err := s.conditioner.Persist(conditioned)
	if err != nil {
		return "", nil, fmt.Errorf("failed to persist conditioning audio: %w", err)
	}

	s.log.Info("Conditioning with %.2fs of reference audio", conditioned.Duration())

	return path, release, nil
}
