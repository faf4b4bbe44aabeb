// Package fake provides a controllable TTS implementation for tests.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/alloyvoice/alloy-go/pkg/ai/tts"
	"github.com/alloyvoice/alloy-go/pkg/rtc"
)

// FakeTTS emits a fixed number of silent frames per request, paced by a
// configurable delay so tests can interrupt synthesis mid-utterance. It
// records every text it was asked to speak.
type FakeTTS struct {
	mu    sync.Mutex
	texts []string
	err   error

	// FramesPerRequest is how many frames each Synthesize call emits.
	FramesPerRequest int
	// FrameDelay paces frame emission; zero emits as fast as possible.
	FrameDelay time.Duration
}

// NewFakeTTS creates a fake synthesizer emitting three frames per request.
func NewFakeTTS() *FakeTTS {
	return &FakeTTS{FramesPerRequest: 3}
}

// Fail makes every subsequent call return err.
func (f *FakeTTS) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Spoken returns a copy of every text synthesized so far.
func (f *FakeTTS) Spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.texts))
	copy(out, f.texts)
	return out
}

// Synthesize emits silent PCM frames for the requested text.
func (f *FakeTTS) Synthesize(ctx context.Context, req tts.SpeechRequest) (<-chan rtc.AudioFrame, error) {
	f.mu.Lock()
	if f.err != nil {
		err := f.err
		f.mu.Unlock()
		return nil, err
	}
	f.texts = append(f.texts, req.Text)
	n := f.FramesPerRequest
	delay := f.FrameDelay
	f.mu.Unlock()

	out := make(chan rtc.AudioFrame)
	go func() {
		defer close(out)
		for i := 0; i < n; i++ {
			if delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
			}
			frame, _ := rtc.NewPCMFrame(make([]byte, 960), 48000, 1)
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Capabilities returns fake capabilities.
func (f *FakeTTS) Capabilities() tts.Capabilities {
	return tts.Capabilities{
		Streaming:       true,
		SupportedVoices: []string{"fake"},
		SampleRates:     []int{48000},
	}
}
