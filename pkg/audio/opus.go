// Package audio provides codec conversions for the inbound media path.
package audio

import (
	"encoding/binary"
	"fmt"

	"gopkg.in/hraban/opus.v2"

	"github.com/alloyvoice/alloy-go/pkg/rtc"
)

// maxFrameSamples is the largest opus frame (120ms at 48 kHz) per channel.
const maxFrameSamples = 5760

// OpusDecoder converts opus packets into PCM16 frames for detection and
// recognition. One decoder serves one stream; it is stateful and not safe
// for concurrent use.
type OpusDecoder struct {
	dec        *opus.Decoder
	sampleRate int
	channels   int
	pcm        []int16
}

// NewOpusDecoder creates a decoder producing PCM at the given rate.
func NewOpusDecoder(sampleRate, channels int) (*OpusDecoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("creating opus decoder: %w", err)
	}
	return &OpusDecoder{
		dec:        dec,
		sampleRate: sampleRate,
		channels:   channels,
		pcm:        make([]int16, maxFrameSamples*channels),
	}, nil
}

// Decode converts one opus frame to PCM16. PCM frames pass through
// unchanged, so the decoder can sit on a mixed pipeline.
func (d *OpusDecoder) Decode(frame rtc.AudioFrame) (rtc.AudioFrame, error) {
	switch frame.Encoding {
	case rtc.EncodingPCM16:
		return frame, nil
	case rtc.EncodingOpus:
	default:
		return rtc.AudioFrame{}, fmt.Errorf("cannot decode %s frame", frame.Encoding)
	}

	n, err := d.dec.Decode(frame.Data, d.pcm)
	if err != nil {
		return rtc.AudioFrame{}, fmt.Errorf("decoding opus packet: %w", err)
	}

	data := make([]byte, n*d.channels*2)
	for i := 0; i < n*d.channels; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(d.pcm[i]))
	}
	out, err := rtc.NewPCMFrame(data, d.sampleRate, d.channels)
	if err != nil {
		return rtc.AudioFrame{}, err
	}
	out.Timestamp = frame.Timestamp
	return out, nil
}
