// Package engine_test tests the synthesis lifecycle manager.
package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/speech-service/internal/config"
	"github.com/book-expert/speech-service/internal/core"
	"github.com/book-expert/speech-service/internal/engine"
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

// mockEngine is a caller-scripted synthesis backend.
type mockEngine struct {
	samples []float64
	err     error
	delay   time.Duration
	calls   int
}

func (m *mockEngine) Generate(ctx context.Context, _ core.SynthesisRequest) ([]float64, error) {
	m.calls++

	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}

	return m.samples, m.err
}

func (m *mockEngine) Close() error { return nil }

func TestPrecisionForDevice(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "float16", engine.PrecisionForDevice("cuda"))
	assert.Equal(t, "float32", engine.PrecisionForDevice("mps"))
	assert.Equal(t, "float32", engine.PrecisionForDevice("cpu"))
	assert.Equal(t, engine.DefaultPrecision, engine.PrecisionForDevice("tpu"))
}

func TestManagerLoadRejectsUnknownBackend(t *testing.T) {
	t.Parallel()

	manager := engine.NewManager(config.EngineConfig{
		Backend:        "quantum",
		Device:         "cpu",
		TimeoutSeconds: 1,
	}, newTestLogger(t))

	err := manager.Load()
	require.ErrorIs(t, err, engine.ErrUnknownBackend)
}

func TestManagerLoadIsIdempotent(t *testing.T) {
	t.Parallel()

	manager := engine.NewManager(config.EngineConfig{
		Backend:        engine.BackendProcess,
		BinaryPath:     "/usr/bin/true",
		Device:         "cuda",
		TimeoutSeconds: 1,
	}, newTestLogger(t))

	require.NoError(t, manager.Load())
	require.NoError(t, manager.Load())
	assert.Equal(t, "float16", manager.Precision())

	require.NoError(t, manager.Unload())
	require.NoError(t, manager.Unload())
}

func TestManagerGenerateRequiresLoad(t *testing.T) {
	t.Parallel()

	manager := engine.NewManager(config.EngineConfig{
		Backend:        engine.BackendProcess,
		BinaryPath:     "/usr/bin/true",
		Device:         "cpu",
		TimeoutSeconds: 1,
	}, newTestLogger(t))

	_, err := manager.Generate(context.Background(), core.SynthesisRequest{
		Text:   "hello",
		Params: core.DefaultGenerationParams(),
	})
	require.ErrorIs(t, err, core.ErrModelNotLoaded)
}

func TestManagerGenerateReturnsSamples(t *testing.T) {
	t.Parallel()

	mock := &mockEngine{samples: []float64{0.1, 0.2}}
	manager := engine.NewManagerWithEngine(mock, time.Second, newTestLogger(t))

	samples, err := manager.Generate(context.Background(), core.SynthesisRequest{
		Text:   "hello",
		Params: core.DefaultGenerationParams(),
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2}, samples)
	assert.Equal(t, 1, mock.calls)
}

func TestManagerGenerateEmptyOutput(t *testing.T) {
	t.Parallel()

	mock := &mockEngine{samples: nil}
	manager := engine.NewManagerWithEngine(mock, time.Second, newTestLogger(t))

	_, err := manager.Generate(context.Background(), core.SynthesisRequest{
		Text:   "hello",
		Params: core.DefaultGenerationParams(),
	})
	require.ErrorIs(t, err, core.ErrEmptyOutput)
}

func TestManagerGenerateTimeout(t *testing.T) {
	t.Parallel()

	mock := &mockEngine{samples: []float64{0.1}, delay: 500 * time.Millisecond}
	manager := engine.NewManagerWithEngine(mock, 20*time.Millisecond, newTestLogger(t))

	_, err := manager.Generate(context.Background(), core.SynthesisRequest{
		Text:   "hello",
		Params: core.DefaultGenerationParams(),
	})
	require.ErrorIs(t, err, core.ErrGenerationFailed)
	require.ErrorIs(t, err, core.ErrGenerationTimeout)
}

func TestManagerGenerateWrapsBackendFailure(t *testing.T) {
	t.Parallel()

	mock := &mockEngine{err: assert.AnError}
	manager := engine.NewManagerWithEngine(mock, time.Second, newTestLogger(t))

	_, err := manager.Generate(context.Background(), core.SynthesisRequest{
		Text:   "hello",
		Params: core.DefaultGenerationParams(),
	})
	require.ErrorIs(t, err, core.ErrGenerationFailed)
	require.NotErrorIs(t, err, core.ErrGenerationTimeout)
}
