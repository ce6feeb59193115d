// Package engine provides the synthesis backends and the lifecycle manager
// that owns the single process-wide engine instance.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/speech-service/internal/config"
	"github.com/book-expert/speech-service/internal/core"
)

// Backend identifiers accepted in configuration.
const (
	BackendProcess = "process"
	BackendRemote  = "remote"
)

// DefaultPrecision is used for device kinds outside the known map.
const DefaultPrecision = "float32"

// ErrUnknownBackend indicates an unrecognized backend name in configuration.
var ErrUnknownBackend = errors.New("unknown engine backend")

// devicePrecision maps device kinds to the numeric precision the engine
// runs at on that device. Resolved once at load time.
var devicePrecision = map[string]string{
	"cuda": "float16",
	"mps":  "float32",
	"cpu":  "float32",
}

// PrecisionForDevice resolves the numeric precision for a device kind,
// falling back to DefaultPrecision for unknown kinds.
func PrecisionForDevice(device string) string {
	if precision, ok := devicePrecision[device]; ok {
		return precision
	}

	return DefaultPrecision
}

// Manager owns the one engine instance. Load must complete before Generate
// is reachable; Unload releases the instance. A mutex serializes Generate
// because backends are not assumed reentrant.
type Manager struct {
	mu        sync.Mutex
	engine    core.SynthesisEngine
	loaded    bool
	cfg       config.EngineConfig
	precision string
	timeout   time.Duration
	log       *logger.Logger
}

// NewManager creates an unloaded manager for the configured backend.
func NewManager(cfg config.EngineConfig, log *logger.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		log:     log,
	}
}

// Load constructs the backend and resolves the device precision. Calling
// Load on an already loaded manager is a no-op.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return nil
	}

	m.precision = PrecisionForDevice(m.cfg.Device)
	if _, known := devicePrecision[m.cfg.Device]; !known {
		m.log.Warn("Unknown device kind '%s', using %s", m.cfg.Device, DefaultPrecision)
	}

	backend, err := m.newBackend()
	if err != nil {
		return err
	}

	m.engine = backend
	m.loaded = true

	m.log.System("Engine loaded: backend=%s device=%s precision=%s",
		m.cfg.Backend, m.cfg.Device, m.precision)

	return nil
}

// Unload releases the engine instance. Safe to call on an unloaded manager.
func (m *Manager) Unload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		return nil
	}

	err := m.engine.Close()

	m.engine = nil
	m.loaded = false

	if err != nil {
		return fmt.Errorf("failed to close engine: %w", err)
	}

	m.log.System("Engine unloaded")

	return nil
}

// Precision returns the precision resolved at load time.
func (m *Manager) Precision() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.precision
}

// Generate invokes the engine exactly once, under the serialization lock
// and the configured timeout. An expired timeout surfaces as
// ErrGenerationFailed with ErrGenerationTimeout in the chain; an absent
// result surfaces as ErrEmptyOutput, never as an empty audio file.
func (m *Manager) Generate(ctx context.Context, req core.SynthesisRequest) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		return nil, core.ErrModelNotLoaded
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	samples, err := m.engine.Generate(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w after %s",
				core.ErrGenerationFailed, core.ErrGenerationTimeout, m.timeout)
		}

		return nil, fmt.Errorf("%w: %w", core.ErrGenerationFailed, err)
	}

	if len(samples) == 0 {
		return nil, core.ErrEmptyOutput
	}

	return samples, nil
}

func (m *Manager) newBackend() (core.SynthesisEngine, error) {
	switch m.cfg.Backend {
	case BackendProcess:
		return NewProcessEngine(m.cfg, m.precision, m.log), nil
	case BackendRemote:
		return NewRemoteEngine(m.cfg.ServiceURL, m.timeout, m.log), nil
	default:
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownBackend, m.cfg.Backend)
	}
}

// NewManagerWithEngine creates a loaded manager around a caller-supplied
// engine. This constructor is primarily for testing, allowing injection of
// mock backends while keeping the manager's serialization and guard logic.
func NewManagerWithEngine(eng core.SynthesisEngine, timeout time.Duration, log *logger.Logger) *Manager {
	return &Manager{
		engine:    eng,
		loaded:    true,
		precision: DefaultPrecision,
		timeout:   timeout,
		log:       log,
	}
}
