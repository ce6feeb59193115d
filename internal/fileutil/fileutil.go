// Package fileutil provides directory and artifact-naming helpers for the
// speech service's output and scratch layout.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	defaultDirPermissions  = 0o750
	invalidCharReplacement = "_"
)

// Audio container extensions this service recognizes on uploads.
const (
	ExtWAV = ".wav"
	ExtMP3 = ".mp3"
)

// EnsureDir creates the directory (and parents) if it does not exist.
// Creation is idempotent; an existing directory is not an error.
func EnsureDir(path string) error {
	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		mkdirErr := os.MkdirAll(path, defaultDirPermissions)
		if mkdirErr != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, mkdirErr)
		}
	}

	return nil
}

// UniqueWAVName returns a collision-free artifact filename.
func UniqueWAVName() string {
	return uuid.NewString() + ExtWAV
}

// IsAudioUpload checks whether an uploaded filename carries a supported
// audio extension.
func IsAudioUpload(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ExtWAV, ExtMP3:
		return true
	default:
		return false
	}
}

// SanitizeFilename replaces characters that are invalid in most filesystems.
func SanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"<", invalidCharReplacement,
		">", invalidCharReplacement,
		":", invalidCharReplacement,
		"\"", invalidCharReplacement,
		"/", invalidCharReplacement,
		"\\", invalidCharReplacement,
		"|", invalidCharReplacement,
		"?", invalidCharReplacement,
		"*", invalidCharReplacement,
	)

	return replacer.Replace(filename)
}
