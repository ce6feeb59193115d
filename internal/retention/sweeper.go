// Package retention prunes rendered audio files past their age threshold.
package retention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
)

// Sweeper deletes rendered artifacts older than MaxAge from the output
// directory. It runs independently of any single request.
type Sweeper struct {
	dir      string
	maxAge   time.Duration
	interval time.Duration
	log      *logger.Logger
}

// NewSweeper creates a sweeper for dir, removing files older than maxAge
// every interval.
func NewSweeper(dir string, maxAge, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		dir:      dir,
		maxAge:   maxAge,
		interval: interval,
		log:      log,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
// Sweep failures are logged, not fatal: a missed cycle retries next tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.Sweep()
			if err != nil {
				s.log.Error("Retention sweep failed: %v", err)
			}
		}
	}
}

// Sweep removes every regular file in the directory whose modification
// time is past the age threshold.
func (s *Sweeper) Sweep() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read output directory: %w", err)
	}

	cutoff := time.Now().Add(-s.maxAge)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, infoErr := entry.Info()
		if infoErr != nil {
			s.log.Warn("Failed to stat '%s': %v", entry.Name(), infoErr)

			continue
		}

		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())

		removeErr := os.Remove(path)
		if removeErr != nil {
			s.log.Warn("Failed to remove stale file '%s': %v", path, removeErr)

			continue
		}

		removed++
	}

	if removed > 0 {
		s.log.Info("Retention sweep removed %d stale file(s)", removed)
	}

	return nil
}
