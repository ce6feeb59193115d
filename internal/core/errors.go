package core

import "errors"

// Pipeline failure sentinels. Handlers map these onto HTTP statuses: ingest
// and validation failures are client errors, everything else is internal.
var (
	// ErrUnsupportedFormat indicates the uploaded bytes matched no known
	// audio container signature.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrInvalidAudio indicates the container was recognized but the data
	// could not be decoded or normalized.
	ErrInvalidAudio = errors.New("invalid audio data")

	// ErrModelNotLoaded indicates a generation call before Load completed.
	ErrModelNotLoaded = errors.New("model not loaded")

	// ErrEmptyOutput indicates the engine returned no samples. This is a
	// distinct terminal condition, never converted into an empty file.
	ErrEmptyOutput = errors.New("engine produced no output")

	// ErrGenerationFailed indicates the engine invocation itself failed.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrGenerationTimeout marks a generation that exceeded its deadline.
	// It is always found in a chain below ErrGenerationFailed.
	ErrGenerationTimeout = errors.New("generation timed out")
)

// IsClientError reports whether err belongs to the request-side half of the
// taxonomy (bad input rather than service failure).
func IsClientError(err error) bool {
	for _, sentinel := range []error{
		ErrTextEmpty,
		ErrMaxNewTokensRange,
		ErrTemperatureRange,
		ErrTopPRange,
		ErrCFGScaleRange,
		ErrCFGFilterTopKRange,
		ErrSpeedFactorRange,
		ErrUnsupportedFormat,
		ErrInvalidAudio,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}

	return false
}
