package audio

import (
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Post-processing bounds and formats. The processor re-clamps the speed
// factor independently of request validation; the outer bound is narrower,
// this one is the hard limit.
const (
	SpeedFactorFloor = 0.1
	SpeedFactorCeil  = 5.0

	pcm16BitDepth = 16
	pcmWavFormat  = 1

	quantizeScale = 32767
)

// PostProcessor renders raw engine output into a playable PCM waveform:
// speed adjustment by resampling, clipping, and 16-bit quantization.
type PostProcessor struct {
	outputRate int
}

// NewPostProcessor creates a processor writing files at outputRate Hz.
func NewPostProcessor(outputRate int) *PostProcessor {
	return &PostProcessor{outputRate: outputRate}
}

// AdjustSpeed changes perceived playback speed by linear interpolation over
// evenly spaced fractional indices. This is a pitch-naive speed change, not
// a phase-vocoder time-stretch. A factor of exactly 1.0, or a degenerate
// target length, returns the input unchanged.
func (p *PostProcessor) AdjustSpeed(samples []float64, speedFactor float64) []float64 {
	speedFactor = math.Min(math.Max(speedFactor, SpeedFactorFloor), SpeedFactorCeil)

	original := len(samples)

	target := int(math.Floor(float64(original) / speedFactor))
	if target == original || target <= 0 || original == 0 {
		return samples
	}

	resampled := make([]float64, target)

	step := float64(original-1) / float64(target-1)
	if target == 1 {
		step = 0
	}

	for idx := range target {
		pos := float64(idx) * step

		lo := int(pos)
		if lo >= original-1 {
			resampled[idx] = samples[original-1]

			continue
		}

		frac := pos - float64(lo)
		resampled[idx] = samples[lo]*(1-frac) + samples[lo+1]*frac
	}

	return resampled
}

// Quantize clips samples to [-1.0, 1.0] and scales them to signed 16-bit
// integers.
func (p *PostProcessor) Quantize(samples []float64) []int {
	pcm := make([]int, len(samples))

	for idx, sample := range samples {
		clipped := math.Max(-1.0, math.Min(1.0, sample))
		pcm[idx] = int(clipped * quantizeScale)
	}

	return pcm
}

// Render applies speed adjustment and quantization, then serializes the
// result as a 16-bit mono PCM WAV at the configured output rate.
func (p *PostProcessor) Render(path string, samples []float64, speedFactor float64) error {
	adjusted := p.AdjustSpeed(samples, speedFactor)
	pcm := p.Quantize(adjusted)

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	writeErr := p.writePCM(file, pcm)

	closeErr := file.Close()

	if writeErr != nil {
		// Never leave a half-written artifact behind.
		_ = os.Remove(path)

		return writeErr
	}

	if closeErr != nil {
		_ = os.Remove(path)

		return fmt.Errorf("failed to close output file: %w", closeErr)
	}

	return nil
}

func (p *PostProcessor) writePCM(file *os.File, pcm []int) error {
	encoder := wav.NewEncoder(
		file, p.outputRate, pcm16BitDepth, monoChannels, pcmWavFormat)

	buf := &goaudio.IntBuffer{
		Data: pcm,
		Format: &goaudio.Format{
			NumChannels: monoChannels,
			SampleRate:  p.outputRate,
		},
		SourceBitDepth: pcm16BitDepth,
	}

	err := encoder.Write(buf)
	if err != nil {
		return fmt.Errorf("failed to write pcm data: %w", err)
	}

	err = encoder.Close()
	if err != nil {
		return fmt.Errorf("failed to finalize wav: %w", err)
	}

	return nil
}
