// Package tts defines the speech-synthesis provider interface.
package tts

import (
	"context"

	"github.com/alloyvoice/alloy-go/pkg/ai"
	"github.com/alloyvoice/alloy-go/pkg/rtc"
)

// TTS-specific error variables for provider classification.
var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// SpeechRequest contains parameters for one synthesis call. Callers that
// need low latency split replies into sentences and issue one request per
// sentence; see pkg/tokenize.
type SpeechRequest struct {
	Text  string
	Voice string
	Speed float32
}

// Capabilities describes what a TTS provider supports.
type Capabilities struct {
	Streaming       bool
	SupportedVoices []string
	SampleRates     []int
}

// TTS is the interface implemented by speech-synthesis providers.
type TTS interface {
	// Synthesize converts text to a stream of audio frames. The returned
	// channel closes when synthesis completes or ctx is cancelled.
	Synthesize(ctx context.Context, req SpeechRequest) (<-chan rtc.AudioFrame, error)

	// Capabilities returns the provider's capabilities.
	Capabilities() Capabilities
}
