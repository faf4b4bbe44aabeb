// Package fake provides a scriptable STT implementation for tests.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/alloyvoice/alloy-go/pkg/ai/stt"
	"github.com/alloyvoice/alloy-go/pkg/rtc"
)

// FakeSTT emits one scripted final transcript per stream once the stream's
// audio is closed, mimicking a segment-at-a-time recognizer.
type FakeSTT struct {
	mu          sync.Mutex
	transcripts []string
	streams     int
}

// NewFakeSTT creates a fake recognizer that yields the given transcripts,
// one per stream, repeating the last when the script runs out.
func NewFakeSTT(transcripts ...string) *FakeSTT {
	if len(transcripts) == 0 {
		transcripts = []string{"fake transcript"}
	}
	return &FakeSTT{transcripts: transcripts}
}

// NewStream opens a stream whose final transcript is the next scripted one.
func (f *FakeSTT) NewStream(ctx context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	f.mu.Lock()
	idx := f.streams
	f.streams++
	if idx >= len(f.transcripts) {
		idx = len(f.transcripts) - 1
	}
	text := f.transcripts[idx]
	f.mu.Unlock()

	return &fakeStream{
		text:   text,
		lang:   cfg.Language,
		events: make(chan stt.SpeechEvent, 4),
	}, nil
}

// Capabilities returns fake capabilities.
func (f *FakeSTT) Capabilities() stt.Capabilities {
	return stt.Capabilities{
		Streaming:          true,
		InterimResults:     false,
		SupportedLanguages: []string{"en"},
	}
}

type fakeStream struct {
	mu     sync.Mutex
	text   string
	lang   string
	events chan stt.SpeechEvent
	frames int
	closed bool
}

func (s *fakeStream) Push(frame rtc.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	return nil
}

func (s *fakeStream) Events() <-chan stt.SpeechEvent {
	return s.events
}

func (s *fakeStream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.events <- stt.SpeechEvent{
		Type:      stt.SpeechEventFinal,
		Text:      s.text,
		Language:  s.lang,
		Timestamp: time.Now(),
	}
	close(s.events)
	return nil
}
