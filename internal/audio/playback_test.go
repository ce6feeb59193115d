package audio_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/speech-service/internal/audio"
)

func rampSamples(n int) []float64 {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = math.Sin(float64(i) / 100)
	}

	return samples
}

func TestAdjustSpeedUnityKeepsSamples(t *testing.T) {
	t.Parallel()

	post := audio.NewPostProcessor(44100)
	input := rampSamples(1000)

	out := post.AdjustSpeed(input, 1.0)
	assert.Equal(t, input, out)
}

func TestAdjustSpeedHalfSpeedDoublesLength(t *testing.T) {
	t.Parallel()

	post := audio.NewPostProcessor(44100)

	out := post.AdjustSpeed(rampSamples(1000), 0.5)
	assert.Len(t, out, 2000)
}

func TestAdjustSpeedDoubleSpeedHalvesLength(t *testing.T) {
	t.Parallel()

	post := audio.NewPostProcessor(44100)

	out := post.AdjustSpeed(rampSamples(1000), 2.0)
	assert.Len(t, out, 500)
}

func TestAdjustSpeedClampsOutOfRangeFactor(t *testing.T) {
	t.Parallel()

	post := audio.NewPostProcessor(44100)

	// 0.01 clamps to the 0.1 floor, a tenfold slowdown.
	out := post.AdjustSpeed(rampSamples(100), 0.01)
	assert.Len(t, out, 1000)

	// 50 clamps to the 5.0 ceiling.
	out = post.AdjustSpeed(rampSamples(100), 50)
	assert.Len(t, out, 20)
}

func TestAdjustSpeedPreservesEndpoints(t *testing.T) {
	t.Parallel()

	post := audio.NewPostProcessor(44100)
	input := []float64{-0.8, 0.1, 0.2, 0.3, 0.8}

	out := post.AdjustSpeed(input, 0.5)
	require.Len(t, out, 10)
	assert.InDelta(t, -0.8, out[0], 1e-9)
	assert.InDelta(t, 0.8, out[len(out)-1], 1e-9)
}

func TestAdjustSpeedEmptyInput(t *testing.T) {
	t.Parallel()

	post := audio.NewPostProcessor(44100)

	out := post.AdjustSpeed(nil, 2.0)
	assert.Empty(t, out)
}

func TestQuantizeScalesAndClips(t *testing.T) {
	t.Parallel()

	post := audio.NewPostProcessor(44100)

	pcm := post.Quantize([]float64{0, 1, -1, 0.5, 2.0, -3.0})

	require.Len(t, pcm, 6)
	assert.Equal(t, 0, pcm[0])
	assert.Equal(t, 32767, pcm[1])
	assert.Equal(t, -32767, pcm[2])
	assert.Equal(t, 16383, pcm[3])
	assert.Equal(t, 32767, pcm[4])
	assert.Equal(t, -32767, pcm[5])
}

func TestRenderProducesDecodableWAV(t *testing.T) {
	t.Parallel()

	post := audio.NewPostProcessor(44100)
	path := filepath.Join(t.TempDir(), "out.wav")

	err := post.Render(path, rampSamples(441), 1.0)
	require.NoError(t, err)

	file, err := os.Open(path)
	require.NoError(t, err)

	defer func() {
		closeErr := file.Close()
		if closeErr != nil {
			t.Logf("error closing file: %v", closeErr)
		}
	}()

	decoder := wav.NewDecoder(file)
	require.True(t, decoder.IsValidFile())

	buf, err := decoder.FullPCMBuffer()
	require.NoError(t, err)

	assert.Equal(t, 44100, buf.Format.SampleRate)
	assert.Equal(t, 1, buf.Format.NumChannels)
	assert.Len(t, buf.Data, 441)
}
