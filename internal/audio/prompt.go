package audio

import (
	"fmt"
	"os"

	"github.com/book-expert/logger"
	"github.com/go-audio/wav"

	"github.com/book-expert/speech-service/internal/core"
)

// Temp-file settings for persisted conditioning audio. Frames are written as
// IEEE-float so the engine sees the exact normalized values.
const (
	promptFilePattern  = "speech-prompt-*.wav"
	floatWavBitDepth   = 32
	ieeeFloatWavFormat = 3
	monoChannels       = 1
)

// Reshaper is a model-specific strategy applied after the conditioning
// window is sized. Backends that take the window as-is use IdentityReshaper.
type Reshaper interface {
	Apply(samples []float64) []float64
}

// IdentityReshaper passes the window through unchanged.
type IdentityReshaper struct{}

// Apply returns the input untouched.
func (IdentityReshaper) Apply(samples []float64) []float64 { return samples }

// BlockReshaper selects Rows*Cols evenly spaced samples from the window,
// for backends whose conditioning input is a fixed small block rather than
// a one-second strip.
type BlockReshaper struct {
	Rows int
	Cols int
}

// Apply resamples the window to Rows*Cols points by evenly spaced index
// selection. Short input is zero-padded first so indices stay in range.
func (b BlockReshaper) Apply(samples []float64) []float64 {
	count := b.Rows * b.Cols
	if count <= 0 || len(samples) == 0 {
		return samples
	}

	if len(samples) < count {
		padded := make([]float64, count)
		copy(padded, samples)
		samples = padded
	}

	picked := make([]float64, count)

	step := float64(len(samples)-1) / float64(count-1)
	if count == 1 {
		step = 0
	}

	for idx := range count {
		picked[idx] = samples[int(float64(idx)*step)]
	}

	return picked
}

// Conditioner reduces an ingested waveform to the fixed conditioning window
// the engine requires and persists it for backends that take a file path.
type Conditioner struct {
	targetSamples int
	reshaper      Reshaper
	log           *logger.Logger
}

// NewConditioner creates a conditioner producing windows of targetSamples
// samples. A nil reshaper means identity.
func NewConditioner(targetSamples int, reshaper Reshaper, log *logger.Logger) *Conditioner {
	if reshaper == nil {
		reshaper = IdentityReshaper{}
	}

	return &Conditioner{
		targetSamples: targetSamples,
		reshaper:      reshaper,
		log:           log,
	}
}

// Condition sizes the waveform to the target window. The second return is
// false when the input is empty or silent: silence means "no conditioning
// requested" and must never reach the engine as a zero block.
func (c *Conditioner) Condition(w core.Waveform) (core.Waveform, bool) {
	if w.Silent() {
		c.log.Warn("Reference audio is empty or silent, ignoring prompt")

		return core.Waveform{}, false
	}

	sized := make([]float64, c.targetSamples)
	copy(sized, w.Samples)

	return core.Waveform{
		Samples:    c.reshaper.Apply(sized),
		SampleRate: w.SampleRate,
	}, true
}

// Persist writes the conditioned window to a scoped temporary WAV file with
// IEEE-float frames at the original sample rate. The returned release
// function deletes the file and must run on every exit path.
func (c *Conditioner) Persist(w core.Waveform) (string, func(), error) {
	tmpFile, err := os.CreateTemp("", promptFilePattern)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create prompt temp file: %w", err)
	}

	path := tmpFile.Name()
	release := func() {
		removeErr := os.Remove(path)
		if removeErr != nil && !os.IsNotExist(removeErr) {
			c.log.Warn("Failed to remove prompt temp file '%s': %v", path, removeErr)
		}
	}

	writeErr := writeFloatWAV(tmpFile, w)

	closeErr := tmpFile.Close()

	if writeErr != nil {
		release()

		return "", nil, fmt.Errorf("failed to write prompt audio: %w", writeErr)
	}

	if closeErr != nil {
		release()

		return "", nil, fmt.Errorf("failed to close prompt temp file: %w", closeErr)
	}

	return path, release, nil
}

func writeFloatWAV(file *os.File, w core.Waveform) error {
	encoder := wav.NewEncoder(
		file, w.SampleRate, floatWavBitDepth, monoChannels, ieeeFloatWavFormat)

	for _, sample := range w.Samples {
		err := encoder.WriteFrame(float32(sample))
		if err != nil {
			return fmt.Errorf("failed to write frame: %w", err)
		}
	}

	err := encoder.Close()
	if err != nil {
		return fmt.Errorf("failed to finalize wav: %w", err)
	}

	return nil
}
