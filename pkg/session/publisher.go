package session

import (
	"context"
	"fmt"
	"log/slog"

	lksdk "github.com/livekit/server-sdk-go"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"

	"github.com/alloyvoice/alloy-go/pkg/rtc"
)

// Publisher owns the agent's outbound audio track. Synthesized frames are
// written to the room as opus samples; the track is published once and
// reused across utterances.
type Publisher struct {
	track  *lksdk.LocalSampleTrack
	logger *slog.Logger

	pcmWarned bool
}

// NewPublisher creates the local opus track.
func NewPublisher(logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	track, err := lksdk.NewLocalSampleTrack(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: 48000,
		Channels:  1,
	})
	if err != nil {
		return nil, fmt.Errorf("creating audio track: %w", err)
	}
	return &Publisher{track: track, logger: logger}, nil
}

// Publish attaches the track to the local participant.
func (p *Publisher) Publish(participant *lksdk.LocalParticipant, name string) error {
	if participant == nil {
		return fmt.Errorf("no local participant to publish on")
	}
	if _, err := participant.PublishTrack(p.track, &lksdk.TrackPublicationOptions{
		Name: name,
	}); err != nil {
		return fmt.Errorf("publishing audio track: %w", err)
	}
	p.logger.Info("audio track published", slog.String("name", name))
	return nil
}

// Run forwards synthesized frames to the track until ctx is cancelled or
// the channel closes. Frames that are not opus cannot be written to an
// opus track and are dropped with a single warning.
func (p *Publisher) Run(ctx context.Context, frames <-chan rtc.AudioFrame) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if frame.Encoding != rtc.EncodingOpus {
				if !p.pcmWarned {
					p.pcmWarned = true
					p.logger.Warn("dropping non-opus frame on the opus track",
						slog.String("encoding", frame.Encoding.String()))
				}
				continue
			}
			if err := p.track.WriteSample(media.Sample{
				Data:     frame.Data,
				Duration: frame.FrameDuration(),
			}, nil); err != nil {
				p.logger.Warn("writing audio sample",
					slog.String("error", err.Error()))
			}
		}
	}
}
