// Package vad defines the voice-activity-detection provider interface.
package vad

import (
	"context"
	"time"

	"github.com/alloyvoice/alloy-go/pkg/ai"
	"github.com/alloyvoice/alloy-go/pkg/rtc"
)

// VAD-specific error variables for provider classification.
var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// EventType represents the type of VAD event.
type EventType int

const (
	EventSpeechStart EventType = iota
	EventSpeechEnd
	EventError
)

// Event marks a speech-segment boundary in the audio stream.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Err       error
}

// Capabilities describes what a VAD provider supports.
type Capabilities struct {
	SampleRates        []int
	MinSpeechDuration  time.Duration
	MinSilenceDuration time.Duration
}

// VAD is the interface implemented by voice-activity-detection providers.
type VAD interface {
	// Detect processes audio frames and emits speech-boundary events.
	// The returned channel closes when the input channel closes or ctx is
	// cancelled.
	Detect(ctx context.Context, frames <-chan rtc.AudioFrame) (<-chan Event, error)

	// Capabilities returns the provider's capabilities.
	Capabilities() Capabilities
}
