package session

import (
	"context"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media/samplebuilder"

	"github.com/alloyvoice/alloy-go/pkg/video"
)

const (
	// vp8MaxLate bounds how many out-of-order packets the sample builder
	// holds before giving up on a frame.
	vp8MaxLate = 200

	videoClockRate = 90000

	// trackReadTimeout paces the blocking RTP reads so cancellation is
	// noticed between packets.
	trackReadTimeout = time.Second
)

// RoomSource feeds subscribed remote video tracks to the frame ingest
// loop. The session offers tracks as they appear; NextTrack hands them out
// in arrival order.
type RoomSource struct {
	tracks chan *webrtc.TrackRemote
	logger *slog.Logger
}

// NewRoomSource creates a source with room for a few queued tracks.
func NewRoomSource(logger *slog.Logger) *RoomSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoomSource{
		tracks: make(chan *webrtc.TrackRemote, 4),
		logger: logger,
	}
}

// Offer queues a subscribed video track for the ingest loop. Tracks beyond
// the queue capacity are dropped; the loop only ever consumes one at a
// time anyway.
func (s *RoomSource) Offer(track *webrtc.TrackRemote) {
	select {
	case s.tracks <- track:
	default:
		s.logger.Warn("video track queue full, ignoring track",
			slog.String("track_id", track.ID()))
	}
}

// NextTrack blocks until a video track has been offered.
func (s *RoomSource) NextTrack(ctx context.Context) (video.Stream, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case track := <-s.tracks:
		s.logger.Info("reading video track",
			slog.String("track_id", track.ID()),
			slog.String("codec", track.Codec().MimeType))
		return newTrackStream(track), nil
	}
}

// trackStream reassembles RTP packets from one remote track into complete
// frames. The frame payload stays in the track's wire codec; consumers
// treat it as an opaque image whose Format names the codec.
type trackStream struct {
	track   *webrtc.TrackRemote
	builder *samplebuilder.SampleBuilder
	format  string
}

func newTrackStream(track *webrtc.TrackRemote) *trackStream {
	return &trackStream{
		track:   track,
		builder: samplebuilder.New(vp8MaxLate, &codecs.VP8Packet{}, videoClockRate),
		format:  track.Codec().MimeType,
	}
}

// Next returns the next complete frame, or io.EOF when the track ends.
func (s *trackStream) Next(ctx context.Context) (video.Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return video.Frame{}, err
		}
		if sample := s.builder.Pop(); sample != nil {
			return video.Frame{
				Data:      sample.Data,
				Format:    s.format,
				Timestamp: time.Now(),
			}, nil
		}

		_ = s.track.SetReadDeadline(time.Now().Add(trackReadTimeout))
		pkt, _, err := s.track.ReadRTP()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return video.Frame{}, io.EOF
		}
		s.builder.Push(pkt)
	}
}

func (s *trackStream) Close() error {
	return nil
}
