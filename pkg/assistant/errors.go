package assistant

import "errors"

var (
	// ErrProviderUnavailable wraps VAD/STT/LLM/TTS failures. Recovered
	// locally: logged, answered with a spoken apology, never fatal to the
	// session.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrNoVisualContext is reported when a turn requested an image but no
	// frame has arrived yet. The turn proceeds without one.
	ErrNoVisualContext = errors.New("no visual context available")

	// ErrUnresolvedIntent is reported when the model names an unknown
	// capability or its arguments fail validation. The turn falls back to
	// the plain-text reply path.
	ErrUnresolvedIntent = errors.New("unresolved function intent")
)
