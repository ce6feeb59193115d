// Package audio implements the audio-prompt normalization and playback
// post-processing pipeline: decoding uploaded reference clips into canonical
// mono float waveforms, shaping them into the conditioning window the engine
// expects, and rendering raw engine output into playable files.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/book-expert/logger"
	"github.com/go-audio/wav"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
	"github.com/hajimehoshi/go-mp3"

	"github.com/book-expert/speech-service/internal/core"
)

// ChannelAxisAuto selects the positional channel-axis heuristic.
const ChannelAxisAuto = -1

// Recognized PCM integer widths and their normalization divisors. Anything
// outside this set is a modeling error, not a best-effort cast.
const (
	bitDepth8  = 8
	bitDepth16 = 16
	bitDepth24 = 24
	bitDepth32 = 32

	maxInt8Magnitude  = 1<<7 - 1
	maxInt16Magnitude = 1<<15 - 1
	maxInt24Magnitude = 1<<23 - 1
	maxInt32Magnitude = 1<<31 - 1

	unsigned8Offset = 128
)

const mp3BytesPerFrame = 4 // 16-bit little-endian stereo, always

var errNoSampleRate = errors.New("sample rate must be positive")

// IngestOptions bound and disambiguate ingestion.
type IngestOptions struct {
	// MaxSamples truncates longer input with a logged warning; zero
	// disables the cap.
	MaxSamples int

	// ChannelAxis pins the channel axis of matrix input (0 or 1);
	// ChannelAxisAuto applies the positional heuristic.
	ChannelAxis int
}

// Ingestor decodes uploaded byte streams and raw sample arrays into
// canonical waveforms.
type Ingestor struct {
	opts IngestOptions
	log  *logger.Logger
}

// NewIngestor creates an ingestor with the given bounds.
func NewIngestor(opts IngestOptions, log *logger.Logger) *Ingestor {
	return &Ingestor{opts: opts, log: log}
}

// DecodeBytes decodes an uploaded audio byte stream into a mono float
// waveform. The container type is sniffed first; the matching decoder runs
// first and the other acts as fallback. Unrecognized containers surface
// core.ErrUnsupportedFormat; recognized-but-broken data surfaces
// core.ErrInvalidAudio with the underlying diagnostic preserved.
func (i *Ingestor) DecodeBytes(data []byte) (core.Waveform, error) {
	if len(data) == 0 {
		return core.Waveform{}, fmt.Errorf("%w: empty upload", core.ErrInvalidAudio)
	}

	decoders := i.decoderOrder(data)

	var lastErr error

	for _, decode := range decoders {
		waveform, err := decode(data)
		if err == nil {
			return i.bound(waveform), nil
		}

		lastErr = err
	}

	if errors.Is(lastErr, core.ErrUnsupportedFormat) {
		return core.Waveform{}, lastErr
	}

	return core.Waveform{}, fmt.Errorf("%w: %w", core.ErrInvalidAudio, lastErr)
}

// FromSamples ingests an in-memory sample array at the given rate. Float
// input passes through unchanged apart from the length bound; no silence
// check happens here, silent waveforms are valid sentinels for the caller.
func (i *Ingestor) FromSamples(samples []float64, sampleRate int) (core.Waveform, error) {
	if sampleRate <= 0 {
		return core.Waveform{}, fmt.Errorf("%w: got %d", errNoSampleRate, sampleRate)
	}

	owned := make([]float64, len(samples))
	copy(owned, samples)

	return i.bound(core.Waveform{Samples: owned, SampleRate: sampleRate}), nil
}

// FromMatrix ingests a two-dimensional sample array, folding the channel
// axis to mono. The matrix must be rectangular with non-empty rows; ragged
// input is ErrInvalidAudio. A two-length first or second axis is averaged;
// ambiguous shapes fall back to taking index 0 along the smaller axis, which is a
// best-effort policy, not a correctness guarantee. Callers that know their
// layout should pin IngestOptions.ChannelAxis instead.
func (i *Ingestor) FromMatrix(matrix [][]float64, sampleRate int) (core.Waveform, error) {
	if sampleRate <= 0 {
		return core.Waveform{}, fmt.Errorf("%w: got %d", errNoSampleRate, sampleRate)
	}

	if len(matrix) == 0 {
		return core.Waveform{SampleRate: sampleRate}, nil
	}

	cols := len(matrix[0])
	if cols == 0 {
		return core.Waveform{}, fmt.Errorf("%w: matrix rows are empty", core.ErrInvalidAudio)
	}

	for r, row := range matrix {
		if len(row) != cols {
			return core.Waveform{}, fmt.Errorf(
				"%w: ragged matrix, row %d has %d samples, want %d",
				core.ErrInvalidAudio, r, len(row), cols)
		}
	}

	mono := i.foldMatrix(matrix)

	return i.bound(core.Waveform{Samples: mono, SampleRate: sampleRate}), nil
}

type decodeFunc func(data []byte) (core.Waveform, error)

// decoderOrder sniffs the container signature to decide which decoder runs
// first. Unknown signatures still get both attempts before the failure is
// reported as unsupported.
func (i *Ingestor) decoderOrder(data []byte) []decodeFunc {
	kind, err := filetype.Match(data)
	if err == nil && kind == matchers.TypeMp3 {
		return []decodeFunc{i.decodeMP3, i.decodeWAV}
	}

	return []decodeFunc{i.decodeWAV, i.decodeMP3}
}

func (i *Ingestor) decodeWAV(data []byte) (core.Waveform, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return core.Waveform{}, fmt.Errorf(
			"%w: no RIFF/WAVE signature", core.ErrUnsupportedFormat)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return core.Waveform{}, fmt.Errorf("wav decode: %w", err)
	}

	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return core.Waveform{}, errors.New("wav decode: no frames")
	}

	samples, err := normalizePCM(buf.Data, buf.SourceBitDepth)
	if err != nil {
		return core.Waveform{}, err
	}

	mono := i.foldInterleaved(samples, buf.Format.NumChannels)

	return core.Waveform{Samples: mono, SampleRate: buf.Format.SampleRate}, nil
}

func (i *Ingestor) decodeMP3(data []byte) (core.Waveform, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return core.Waveform{}, fmt.Errorf(
			"%w: not an MPEG layer-3 stream: %w", core.ErrUnsupportedFormat, err)
	}

	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return core.Waveform{}, fmt.Errorf("mp3 decode: %w", err)
	}

	frames := len(pcm) / mp3BytesPerFrame
	mono := make([]float64, frames)

	for f := range frames {
		left := int16(uint16(pcm[f*4]) | uint16(pcm[f*4+1])<<8)
		right := int16(uint16(pcm[f*4+2]) | uint16(pcm[f*4+3])<<8)
		mono[f] = (float64(left) + float64(right)) / 2 / maxInt16Magnitude
	}

	return core.Waveform{Samples: mono, SampleRate: decoder.SampleRate()}, nil
}

// normalizePCM rescales integer PCM samples to [-1.0, 1.0] by dividing by
// the maximum representable magnitude of the source width. 8-bit WAV data
// is unsigned and gets re-centered first; a re-centered zero lands at
// -128/127, marginally below -1.0. The playback quantizer clips before
// writing, so the overshoot never reaches an output file.
func normalizePCM(data []int, sourceBitDepth int) ([]float64, error) {
	var divisor float64

	offset := 0

	switch sourceBitDepth {
	case bitDepth8:
		divisor = maxInt8Magnitude
		offset = unsigned8Offset
	case bitDepth16:
		divisor = maxInt16Magnitude
	case bitDepth24:
		divisor = maxInt24Magnitude
	case bitDepth32:
		divisor = maxInt32Magnitude
	default:
		return nil, fmt.Errorf(
			"%w: unrecognized sample width %d bits",
			core.ErrInvalidAudio, sourceBitDepth)
	}

	samples := make([]float64, len(data))
	for idx, v := range data {
		samples[idx] = float64(v-offset) / divisor
	}

	return samples, nil
}

// foldInterleaved averages interleaved frames down to one channel.
func (i *Ingestor) foldInterleaved(samples []float64, channels int) []float64 {
	if channels <= 1 {
		return samples
	}

	frames := len(samples) / channels
	mono := make([]float64, frames)

	for f := range frames {
		sum := 0.0
		for c := range channels {
			sum += samples[f*channels+c]
		}

		mono[f] = sum / float64(channels)
	}

	return mono
}

func (i *Ingestor) foldMatrix(matrix [][]float64) []float64 {
	rows := len(matrix)
	cols := len(matrix[0])

	axis := i.opts.ChannelAxis
	if axis == ChannelAxisAuto {
		switch {
		case rows == 2:
			axis = 0
		case cols == 2:
			axis = 1
		default:
			return i.foldAmbiguous(matrix, rows, cols)
		}
	}

	if axis == 0 {
		return meanOverRows(matrix, rows, cols)
	}

	return meanOverCols(matrix, rows, cols)
}

// foldAmbiguous handles shapes with no two-length axis: the smaller axis is
// assumed to be the channel axis and index 0 is taken.
func (i *Ingestor) foldAmbiguous(matrix [][]float64, rows, cols int) []float64 {
	i.log.Warn("Reference audio has ambiguous shape %dx%d, taking first channel", rows, cols)

	if rows < cols {
		owned := make([]float64, cols)
		copy(owned, matrix[0])

		return owned
	}

	owned := make([]float64, rows)
	for r := range rows {
		owned[r] = matrix[r][0]
	}

	return owned
}

func meanOverRows(matrix [][]float64, rows, cols int) []float64 {
	mono := make([]float64, cols)
	for c := range cols {
		sum := 0.0
		for r := range rows {
			sum += matrix[r][c]
		}

		mono[c] = sum / float64(rows)
	}

	return mono
}

func meanOverCols(matrix [][]float64, rows, cols int) []float64 {
	mono := make([]float64, rows)
	for r := range rows {
		sum := 0.0
		for c := range cols {
			sum += matrix[r][c]
		}

		mono[r] = sum / float64(cols)
	}

	return mono
}

// bound applies the configured length cap, truncating with a warning.
func (i *Ingestor) bound(w core.Waveform) core.Waveform {
	if i.opts.MaxSamples > 0 && len(w.Samples) > i.opts.MaxSamples {
		i.log.Warn("Reference audio truncated from %d to %d samples",
			len(w.Samples), i.opts.MaxSamples)

		w.Samples = w.Samples[:i.opts.MaxSamples]
	}

	return w
}
