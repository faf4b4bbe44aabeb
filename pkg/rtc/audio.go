// Package rtc holds the media types shared by the audio pipeline.
package rtc

import (
	"fmt"
	"time"
)

// Encoding identifies the payload format of an AudioFrame.
type Encoding int

const (
	// EncodingPCM16 is 16-bit little-endian PCM.
	EncodingPCM16 Encoding = iota
	// EncodingOpus is a single opus packet, ready for RTP packetization.
	EncodingOpus
)

func (e Encoding) String() string {
	switch e {
	case EncodingPCM16:
		return "pcm16"
	case EncodingOpus:
		return "opus"
	default:
		return fmt.Sprintf("unknown(%d)", e)
	}
}

// AudioFrame represents one unit of audio moving through the pipeline.
// Inbound frames from the room and frames fed to VAD/STT are PCM;
// synthesized frames headed for the publisher may be pre-encoded opus.
type AudioFrame struct {
	Data        []byte
	Encoding    Encoding
	SampleRate  int
	NumChannels int
	// Duration of the audio carried by this frame. Required for opus
	// frames; derived from the data length for PCM when zero.
	Duration  time.Duration
	Timestamp time.Time
}

// NewPCMFrame creates a PCM16 frame and validates that the data length is
// consistent with the channel count.
func NewPCMFrame(data []byte, sampleRate, numChannels int) (AudioFrame, error) {
	if sampleRate <= 0 || numChannels <= 0 {
		return AudioFrame{}, fmt.Errorf("invalid PCM frame parameters: rate=%d channels=%d", sampleRate, numChannels)
	}
	if len(data)%(2*numChannels) != 0 {
		return AudioFrame{}, fmt.Errorf("PCM frame data length %d is not a multiple of the %d-channel sample size", len(data), numChannels)
	}
	f := AudioFrame{
		Data:        data,
		Encoding:    EncodingPCM16,
		SampleRate:  sampleRate,
		NumChannels: numChannels,
		Timestamp:   time.Now(),
	}
	f.Duration = f.FrameDuration()
	return f, nil
}

// FrameDuration returns the duration of the frame. For PCM frames with a
// zero Duration it is computed from the payload size.
func (f AudioFrame) FrameDuration() time.Duration {
	if f.Duration > 0 {
		return f.Duration
	}
	if f.Encoding != EncodingPCM16 || f.SampleRate == 0 || f.NumChannels == 0 {
		return 0
	}
	samples := len(f.Data) / (2 * f.NumChannels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Samples returns the per-channel sample count for PCM frames, zero otherwise.
func (f AudioFrame) Samples() int {
	if f.Encoding != EncodingPCM16 || f.NumChannels == 0 {
		return 0
	}
	return len(f.Data) / (2 * f.NumChannels)
}

// Clone returns a deep copy of the frame.
func (f AudioFrame) Clone() AudioFrame {
	out := f
	out.Data = make([]byte, len(f.Data))
	copy(out.Data, f.Data)
	return out
}
