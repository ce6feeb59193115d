// Package core defines the core data model and interfaces for the speech service.
package core

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// EngineSampleRate is the fixed sample rate of the synthesis engine output, in Hz.
const EngineSampleRate = 44100

// Validated parameter ranges for generation requests.
const (
	MinMaxNewTokens = 860
	MaxMaxNewTokens = 3072

	MinTemperature = 1.0
	MaxTemperature = 1.5

	MinTopP = 0.8
	MaxTopP = 1.0

	MinCFGScale = 1.0
	MaxCFGScale = 5.0

	MinCFGFilterTopK = 15
	MaxCFGFilterTopK = 50

	MinSpeedFactor = 0.8
	MaxSpeedFactor = 1.0
)

// Default generation parameter values, used when a request omits a field.
const (
	DefaultMaxNewTokens  = 3072
	DefaultCFGScale      = 3.0
	DefaultTemperature   = 1.3
	DefaultTopP          = 0.95
	DefaultCFGFilterTopK = 30
	DefaultSpeedFactor   = 0.94
)

// Parameter validation errors.
var (
	ErrTextEmpty          = errors.New("text cannot be empty")
	ErrMaxNewTokensRange  = errors.New("max_new_tokens out of range")
	ErrTemperatureRange   = errors.New("temperature out of range")
	ErrTopPRange          = errors.New("top_p out of range")
	ErrCFGScaleRange      = errors.New("cfg_scale out of range")
	ErrCFGFilterTopKRange = errors.New("cfg_filter_top_k out of range")
	ErrSpeedFactorRange   = errors.New("speed_factor out of range")
)

// Waveform is a normalized mono floating-point audio signal. Samples are in
// [-1.0, 1.0] after ingest normalization; SampleRate is in Hz.
type Waveform struct {
	Samples    []float64
	SampleRate int
}

// Empty reports whether the waveform carries no samples.
func (w Waveform) Empty() bool {
	return len(w.Samples) == 0
}

// MaxAbs returns the largest absolute sample value.
func (w Waveform) MaxAbs() float64 {
	peak := 0.0
	for _, s := range w.Samples {
		if abs := math.Abs(s); abs > peak {
			peak = abs
		}
	}

	return peak
}

// Silent reports whether the waveform is empty or contains only zero samples.
// A silent waveform is the sentinel for "no conditioning requested".
func (w Waveform) Silent() bool {
	return w.Empty() || w.MaxAbs() == 0
}

// Duration returns the waveform length in seconds, or zero when the sample
// rate is not positive.
func (w Waveform) Duration() float64 {
	if w.SampleRate <= 0 {
		return 0
	}

	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// GenerationParams holds the five bounded sampling parameters plus the
// playback speed factor. All fields must pass Validate before reaching the
// synthesis engine.
type GenerationParams struct {
	MaxNewTokens  int
	CFGScale      float64
	Temperature   float64
	TopP          float64
	CFGFilterTopK int
	SpeedFactor   float64
}

// DefaultGenerationParams returns the documented per-field defaults.
func DefaultGenerationParams() GenerationParams {
	return GenerationParams{
		MaxNewTokens:  DefaultMaxNewTokens,
		CFGScale:      DefaultCFGScale,
		Temperature:   DefaultTemperature,
		TopP:          DefaultTopP,
		CFGFilterTopK: DefaultCFGFilterTopK,
		SpeedFactor:   DefaultSpeedFactor,
	}
}

// Validate checks every parameter against its closed range.
func (p GenerationParams) Validate() error {
	if p.MaxNewTokens < MinMaxNewTokens || p.MaxNewTokens > MaxMaxNewTokens {
		return fmt.Errorf("%w: got %d, want [%d, %d]",
			ErrMaxNewTokensRange, p.MaxNewTokens, MinMaxNewTokens, MaxMaxNewTokens)
	}

	if p.Temperature < MinTemperature || p.Temperature > MaxTemperature {
		return fmt.Errorf("%w: got %g, want [%g, %g]",
			ErrTemperatureRange, p.Temperature, MinTemperature, MaxTemperature)
	}

	if p.TopP < MinTopP || p.TopP > MaxTopP {
		return fmt.Errorf("%w: got %g, want [%g, %g]",
			ErrTopPRange, p.TopP, MinTopP, MaxTopP)
	}

	if p.CFGScale < MinCFGScale || p.CFGScale > MaxCFGScale {
		return fmt.Errorf("%w: got %g, want [%g, %g]",
			ErrCFGScaleRange, p.CFGScale, MinCFGScale, MaxCFGScale)
	}

	if p.CFGFilterTopK < MinCFGFilterTopK || p.CFGFilterTopK > MaxCFGFilterTopK {
		return fmt.Errorf("%w: got %d, want [%d, %d]",
			ErrCFGFilterTopKRange, p.CFGFilterTopK, MinCFGFilterTopK, MaxCFGFilterTopK)
	}

	if p.SpeedFactor < MinSpeedFactor || p.SpeedFactor > MaxSpeedFactor {
		return fmt.Errorf("%w: got %g, want [%g, %g]",
			ErrSpeedFactorRange, p.SpeedFactor, MinSpeedFactor, MaxSpeedFactor)
	}

	return nil
}

// SynthesisRequest is the single call contract with an engine backend. The
// prompt path is empty when no voice conditioning was requested.
type SynthesisRequest struct {
	Text       string
	PromptPath string
	Params     GenerationParams
}

// SynthesisEngine is a backend that turns text into raw floating-point
// samples at EngineSampleRate. Implementations are not required to be safe
// for concurrent use; the lifecycle manager serializes access.
type SynthesisEngine interface {
	Generate(ctx context.Context, req SynthesisRequest) ([]float64, error)
	Close() error
}

// ObjectStore is a key-value blob store used by the NATS job path.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}
