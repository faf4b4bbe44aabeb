// Package fake provides an energy-threshold VAD implementation for tests.
package fake

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/alloyvoice/alloy-go/pkg/ai/vad"
	"github.com/alloyvoice/alloy-go/pkg/rtc"
)

// FakeVAD flags speech whenever the mean absolute sample amplitude of a
// frame crosses a threshold. Deterministic and fast, which is all tests
// need: silence frames end a segment, loud frames start one.
type FakeVAD struct {
	threshold float64
}

// NewFakeVAD creates a fake detector. Threshold is a fraction of full
// scale in [0,1].
func NewFakeVAD(threshold float64) *FakeVAD {
	if threshold <= 0 {
		threshold = 0.1
	}
	return &FakeVAD{threshold: threshold}
}

// Detect emits SpeechStart/SpeechEnd events on amplitude transitions.
func (f *FakeVAD) Detect(ctx context.Context, frames <-chan rtc.AudioFrame) (<-chan vad.Event, error) {
	events := make(chan vad.Event, 8)

	go func() {
		defer close(events)
		speaking := false
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-frames:
				if !ok {
					return
				}
				loud := f.energy(frame) >= f.threshold
				if loud == speaking {
					continue
				}
				speaking = loud
				evType := vad.EventSpeechEnd
				if speaking {
					evType = vad.EventSpeechStart
				}
				select {
				case events <- vad.Event{Type: evType, Timestamp: time.Now()}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}

// Capabilities returns fake capabilities.
func (f *FakeVAD) Capabilities() vad.Capabilities {
	return vad.Capabilities{
		SampleRates:        []int{16000, 48000},
		MinSpeechDuration:  0,
		MinSilenceDuration: 0,
	}
}

func (f *FakeVAD) energy(frame rtc.AudioFrame) float64 {
	if len(frame.Data) < 2 {
		return 0
	}
	var sum float64
	n := len(frame.Data) / 2
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(frame.Data[i*2:]))
		if s < 0 {
			s = -s
		}
		sum += float64(s)
	}
	return sum / float64(n) / 32768.0
}
