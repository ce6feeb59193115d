// Package audio_test tests reference-audio ingestion.
package audio_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/speech-service/internal/audio"
	"github.com/book-expert/speech-service/internal/core"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	t.Cleanup(func() {
		closeErr := log.Close()
		if closeErr != nil {
			t.Logf("error closing test logger: %v", closeErr)
		}
	})

	return log
}

// encodeWAV serializes integer PCM frames into an in-memory WAV payload.
func encodeWAV(t *testing.T, data []int, sampleRate, bitDepth, channels int) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.wav")

	file, err := os.Create(path)
	require.NoError(t, err)

	encoder := wav.NewEncoder(file, sampleRate, bitDepth, channels, 1)
	err = encoder.Write(&goaudio.IntBuffer{
		Data: data,
		Format: &goaudio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		SourceBitDepth: bitDepth,
	})
	require.NoError(t, err)

	require.NoError(t, encoder.Close())
	require.NoError(t, file.Close())

	payload, err := os.ReadFile(path)
	require.NoError(t, err)

	return payload
}

func TestDecodeBytesSixteenBitScaling(t *testing.T) {
	t.Parallel()

	ingestor := audio.NewIngestor(audio.IngestOptions{
		MaxSamples:  0,
		ChannelAxis: audio.ChannelAxisAuto,
	}, newTestLogger(t))

	payload := encodeWAV(t, []int{0, 16384, -16384, 32767, -32767}, 44100, 16, 1)

	waveform, err := ingestor.DecodeBytes(payload)
	require.NoError(t, err)

	require.Len(t, waveform.Samples, 5)
	assert.Equal(t, 44100, waveform.SampleRate)
	assert.InDelta(t, 0.0, waveform.Samples[0], 1e-9)
	assert.InDelta(t, 0.5, waveform.Samples[1], 1e-3)
	assert.InDelta(t, -0.5, waveform.Samples[2], 1e-3)
	assert.InDelta(t, 1.0, waveform.Samples[3], 1e-9)
	assert.InDelta(t, -1.0, waveform.Samples[4], 1e-9)
}

func TestDecodeBytesStereoFoldsToMono(t *testing.T) {
	t.Parallel()

	ingestor := audio.NewIngestor(audio.IngestOptions{
		MaxSamples:  0,
		ChannelAxis: audio.ChannelAxisAuto,
	}, newTestLogger(t))

	// Two interleaved frames: (16384, 0) and (0, -16384).
	payload := encodeWAV(t, []int{16384, 0, 0, -16384}, 22050, 16, 2)

	waveform, err := ingestor.DecodeBytes(payload)
	require.NoError(t, err)

	require.Len(t, waveform.Samples, 2)
	assert.InDelta(t, 0.25, waveform.Samples[0], 1e-3)
	assert.InDelta(t, -0.25, waveform.Samples[1], 1e-3)
}

func TestDecodeBytesTruncatesToCap(t *testing.T) {
	t.Parallel()

	ingestor := audio.NewIngestor(audio.IngestOptions{
		MaxSamples:  3,
		ChannelAxis: audio.ChannelAxisAuto,
	}, newTestLogger(t))

	payload := encodeWAV(t, []int{100, 200, 300, 400, 500}, 8000, 16, 1)

	waveform, err := ingestor.DecodeBytes(payload)
	require.NoError(t, err)
	assert.Len(t, waveform.Samples, 3)
}

func TestDecodeBytesRejectsUnrecognizedContainer(t *testing.T) {
	t.Parallel()

	ingestor := audio.NewIngestor(audio.IngestOptions{
		MaxSamples:  0,
		ChannelAxis: audio.ChannelAxisAuto,
	}, newTestLogger(t))

	_, err := ingestor.DecodeBytes([]byte("this is not audio data at all"))
	require.Error(t, err)
	require.ErrorIs(t, err, core.ErrUnsupportedFormat)
}

func TestDecodeBytesRejectsEmptyUpload(t *testing.T) {
	t.Parallel()

	ingestor := audio.NewIngestor(audio.IngestOptions{
		MaxSamples:  0,
		ChannelAxis: audio.ChannelAxisAuto,
	}, newTestLogger(t))

	_, err := ingestor.DecodeBytes(nil)
	require.Error(t, err)
	require.ErrorIs(t, err, core.ErrInvalidAudio)
}

func TestFromSamplesPassesFloatsThrough(t *testing.T) {
	t.Parallel()

	ingestor := audio.NewIngestor(audio.IngestOptions{
		MaxSamples:  0,
		ChannelAxis: audio.ChannelAxisAuto,
	}, newTestLogger(t))

	input := []float64{0.1, -0.2, 0.3}

	waveform, err := ingestor.FromSamples(input, 16000)
	require.NoError(t, err)
	assert.Equal(t, input, waveform.Samples)
	assert.Equal(t, 16000, waveform.SampleRate)
}

func TestFromSamplesRejectsBadRate(t *testing.T) {
	t.Parallel()

	ingestor := audio.NewIngestor(audio.IngestOptions{
		MaxSamples:  0,
		ChannelAxis: audio.ChannelAxisAuto,
	}, newTestLogger(t))

	_, err := ingestor.FromSamples([]float64{0.1}, 0)
	require.Error(t, err)
}

func TestFromMatrixAveragesTwoRowChannels(t *testing.T) {
	t.Parallel()

	ingestor := audio.NewIngestor(audio.IngestOptions{
		MaxSamples:  0,
		ChannelAxis: audio.ChannelAxisAuto,
	}, newTestLogger(t))

	matrix := [][]float64{
		{0.2, 0.4, 0.6},
		{0.0, 0.0, 0.2},
	}

	waveform, err := ingestor.FromMatrix(matrix, 16000)
	require.NoError(t, err)

	require.Len(t, waveform.Samples, 3)
	assert.InDelta(t, 0.1, waveform.Samples[0], 1e-9)
	assert.InDelta(t, 0.2, waveform.Samples[1], 1e-9)
	assert.InDelta(t, 0.4, waveform.Samples[2], 1e-9)
}

func TestFromMatrixAveragesTwoColumnChannels(t *testing.T) {
	t.Parallel()

	ingestor := audio.NewIngestor(audio.IngestOptions{
		MaxSamples:  0,
		ChannelAxis: audio.ChannelAxisAuto,
	}, newTestLogger(t))

	matrix := [][]float64{
		{0.2, 0.0},
		{0.4, 0.0},
		{0.6, 0.2},
	}

	waveform, err := ingestor.FromMatrix(matrix, 16000)
	require.NoError(t, err)

	require.Len(t, waveform.Samples, 3)
	assert.InDelta(t, 0.1, waveform.Samples[0], 1e-9)
	assert.InDelta(t, 0.2, waveform.Samples[1], 1e-9)
	assert.InDelta(t, 0.4, waveform.Samples[2], 1e-9)
}

func TestFromMatrixAmbiguousShapeTakesFirstChannel(t *testing.T) {
	t.Parallel()

	ingestor := audio.NewIngestor(audio.IngestOptions{
		MaxSamples:  0,
		ChannelAxis: audio.ChannelAxisAuto,
	}, newTestLogger(t))

	// 3x5: no two-length axis, so the smaller axis is treated as channels.
	matrix := [][]float64{
		{0.1, 0.2, 0.3, 0.4, 0.5},
		{0.9, 0.9, 0.9, 0.9, 0.9},
		{0.8, 0.8, 0.8, 0.8, 0.8},
	}

	waveform, err := ingestor.FromMatrix(matrix, 16000)
	require.NoError(t, err)
	assert.Equal(t, matrix[0], waveform.Samples)
}

func TestFromMatrixPinnedAxisOverridesHeuristic(t *testing.T) {
	t.Parallel()

	ingestor := audio.NewIngestor(audio.IngestOptions{
		MaxSamples:  0,
		ChannelAxis: 1,
	}, newTestLogger(t))

	// With axis pinned to 1, a 2xN matrix is averaged per row.
	matrix := [][]float64{
		{0.2, 0.4},
		{0.6, 0.8},
	}

	waveform, err := ingestor.FromMatrix(matrix, 16000)
	require.NoError(t, err)

	require.Len(t, waveform.Samples, 2)
	assert.InDelta(t, 0.3, waveform.Samples[0], 1e-9)
	assert.InDelta(t, 0.7, waveform.Samples[1], 1e-9)
}

func TestFromMatrixRejectsRaggedRows(t *testing.T) {
	t.Parallel()

	ingestor := audio.NewIngestor(audio.IngestOptions{
		MaxSamples:  0,
		ChannelAxis: audio.ChannelAxisAuto,
	}, newTestLogger(t))

	_, err := ingestor.FromMatrix([][]float64{
		{0.1, 0.2, 0.3},
		{0.1},
	}, 44100)
	require.Error(t, err)
	require.ErrorIs(t, err, core.ErrInvalidAudio)
}

func TestFromMatrixRejectsEmptyRows(t *testing.T) {
	t.Parallel()

	ingestor := audio.NewIngestor(audio.IngestOptions{
		MaxSamples:  0,
		ChannelAxis: audio.ChannelAxisAuto,
	}, newTestLogger(t))

	_, err := ingestor.FromMatrix([][]float64{{}, {}}, 44100)
	require.Error(t, err)
	require.ErrorIs(t, err, core.ErrInvalidAudio)
}

func TestDecodeBytesEightBitRecentered(t *testing.T) {
	t.Parallel()

	ingestor := audio.NewIngestor(audio.IngestOptions{
		MaxSamples:  0,
		ChannelAxis: audio.ChannelAxisAuto,
	}, newTestLogger(t))

	// Unsigned 8-bit: 128 is midpoint, 255 is full scale, 0 sits just
	// below -1.0 after re-centering.
	payload := encodeWAV(t, []int{128, 255, 0}, 8000, 8, 1)

	waveform, err := ingestor.DecodeBytes(payload)
	require.NoError(t, err)

	require.Len(t, waveform.Samples, 3)
	assert.InDelta(t, 0.0, waveform.Samples[0], 1e-9)
	assert.InDelta(t, 1.0, waveform.Samples[1], 1e-3)
	assert.InDelta(t, -128.0/127.0, waveform.Samples[2], 1e-9)
}

func TestFromMatrixEmptyInput(t *testing.T) {
	t.Parallel()

	ingestor := audio.NewIngestor(audio.IngestOptions{
		MaxSamples:  0,
		ChannelAxis: audio.ChannelAxisAuto,
	}, newTestLogger(t))

	waveform, err := ingestor.FromMatrix(nil, 16000)
	require.NoError(t, err)
	assert.Empty(t, waveform.Samples)
}
