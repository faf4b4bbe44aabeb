// Package stt defines the streaming speech-to-text provider interface.
// A stream accepts audio frames for one speech segment and emits interim
// and final transcripts.
package stt

import (
	"context"
	"time"

	"github.com/alloyvoice/alloy-go/pkg/ai"
	"github.com/alloyvoice/alloy-go/pkg/rtc"
)

// STT-specific error variables for provider classification.
var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// StreamConfig contains configuration for STT streams.
type StreamConfig struct {
	SampleRate  int
	NumChannels int
	Language    string
}

// SpeechEventType represents the type of speech recognition event.
type SpeechEventType int

const (
	// SpeechEventInterim is a partial transcript that may still change.
	SpeechEventInterim SpeechEventType = iota
	// SpeechEventFinal is a transcript that will not change.
	SpeechEventFinal
	// SpeechEventError reports a recognition failure.
	SpeechEventError
)

// SpeechEvent is one recognition result or error from a stream.
type SpeechEvent struct {
	Type      SpeechEventType
	Text      string
	Language  string
	Timestamp time.Time
	Err       error // set only for error events
}

// Capabilities describes what an STT provider supports.
type Capabilities struct {
	Streaming          bool
	InterimResults     bool
	SupportedLanguages []string
}

// STT is the interface implemented by speech-to-text providers.
type STT interface {
	// NewStream opens a recognition stream for one speech segment.
	NewStream(ctx context.Context, cfg StreamConfig) (Stream, error)

	// Capabilities returns the provider's capabilities.
	Capabilities() Capabilities
}

// Stream is an active recognition session.
type Stream interface {
	// Push sends an audio frame for recognition.
	Push(frame rtc.AudioFrame) error

	// Events returns the channel of recognition events. The channel is
	// closed once the stream has delivered its last event.
	Events() <-chan SpeechEvent

	// CloseSend signals that no more audio will be pushed and flushes any
	// pending recognition.
	CloseSend() error
}
