package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lksdk "github.com/livekit/server-sdk-go"
	"github.com/pion/webrtc/v3"
)

// Room wraps the LiveKit room connection and funnels the callbacks the
// session cares about into a single event channel.
type Room struct {
	// Events delivers room events to the session's dispatch loop.
	Events chan *Event

	room *lksdk.Room

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.RWMutex
	connected    bool
	eventsClosed bool

	logger *slog.Logger
}

// RoomConfig contains configuration for connecting to a room.
type RoomConfig struct {
	// URL of the LiveKit server.
	URL string

	// Token for authentication; the room to join is embedded in its grant.
	Token string

	// Buffer size for the events channel.
	EventBufferSize int

	Logger *slog.Logger
}

// NewRoom creates a Room wrapper with the given configuration. Connect
// must be called before any events flow.
func NewRoom(ctx context.Context, config RoomConfig) (*Room, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if config.Token == "" {
		return nil, fmt.Errorf("token is required")
	}

	bufferSize := config.EventBufferSize
	if bufferSize == 0 {
		bufferSize = 100
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	roomCtx, cancel := context.WithCancel(ctx)
	return &Room{
		Events: make(chan *Event, bufferSize),
		ctx:    roomCtx,
		cancel: cancel,
		logger: logger,
	}, nil
}

// Connect establishes the connection to the LiveKit room.
func (r *Room) Connect(config RoomConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.connected {
		return fmt.Errorf("room is already connected")
	}

	callback := &lksdk.RoomCallback{
		OnParticipantConnected:    r.onParticipantConnected,
		OnParticipantDisconnected: r.onParticipantDisconnected,
		OnDisconnected:            r.onDisconnected,
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed:   r.onTrackSubscribed,
			OnTrackUnsubscribed: r.onTrackUnsubscribed,
			OnDataReceived:      r.onDataReceived,
		},
	}

	room, err := lksdk.ConnectToRoomWithToken(config.URL, config.Token, callback)
	if err != nil {
		return fmt.Errorf("failed to connect to room: %w", err)
	}

	r.room = room
	r.connected = true

	r.logger.Info("connected to room",
		slog.String("url", config.URL),
		slog.String("room", room.Name()))
	return nil
}

// Disconnect closes the room connection and the events channel.
func (r *Room) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancel()

	if r.connected {
		r.connected = false
		if r.room != nil {
			r.room.Disconnect()
		}
		r.logger.Info("disconnected from room")
	}

	if !r.eventsClosed {
		close(r.Events)
		r.eventsClosed = true
	}
	return nil
}

// IsConnected reports whether the room is currently connected.
func (r *Room) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected
}

// LocalParticipant returns the local participant, or nil before Connect.
func (r *Room) LocalParticipant() *lksdk.LocalParticipant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.room == nil {
		return nil
	}
	return r.room.LocalParticipant
}

func (r *Room) onParticipantConnected(participant *lksdk.RemoteParticipant) {
	r.sendEvent(NewEvent(EventParticipantConnected).WithParticipant(participant.Identity()))
	r.logger.Info("participant connected",
		slog.String("identity", participant.Identity()))
}

func (r *Room) onParticipantDisconnected(participant *lksdk.RemoteParticipant) {
	r.sendEvent(NewEvent(EventParticipantDisconnected).WithParticipant(participant.Identity()))
	r.logger.Info("participant disconnected",
		slog.String("identity", participant.Identity()))
}

func (r *Room) onDisconnected() {
	r.sendEvent(NewEvent(EventDisconnected))
}

func (r *Room) onTrackSubscribed(track *webrtc.TrackRemote, publication *lksdk.RemoteTrackPublication, participant *lksdk.RemoteParticipant) {
	r.sendEvent(NewEvent(EventTrackSubscribed).
		WithParticipant(participant.Identity()).
		WithTrack(track, publication))
	r.logger.Info("track subscribed",
		slog.String("participant", participant.Identity()),
		slog.String("track_sid", publication.SID()),
		slog.String("kind", publication.Kind().String()))
}

func (r *Room) onTrackUnsubscribed(track *webrtc.TrackRemote, publication *lksdk.RemoteTrackPublication, participant *lksdk.RemoteParticipant) {
	r.sendEvent(NewEvent(EventTrackUnsubscribed).
		WithParticipant(participant.Identity()).
		WithTrack(track, publication))
}

func (r *Room) onDataReceived(data []byte, participant *lksdk.RemoteParticipant) {
	r.sendEvent(NewEvent(EventDataReceived).
		WithParticipant(participant.Identity()).
		WithData(data))
}

// sendEvent delivers an event unless the channel is closed or full. The
// read lock is held across the send so Disconnect cannot close the channel
// mid-delivery; every case below is nonblocking.
func (r *Room) sendEvent(event *Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.eventsClosed {
		return
	}

	select {
	case r.Events <- event:
	case <-r.ctx.Done():
	default:
		r.logger.Warn("events channel is full, dropping event",
			slog.String("event_type", string(event.Type)))
	}
}
