package session

import (
	"time"

	lksdk "github.com/livekit/server-sdk-go"
	"github.com/pion/webrtc/v3"
)

// EventType represents the type of room event.
type EventType string

const (
	// EventParticipantConnected is fired when a participant joins the room.
	EventParticipantConnected EventType = "participant_connected"

	// EventParticipantDisconnected is fired when a participant leaves the
	// room.
	EventParticipantDisconnected EventType = "participant_disconnected"

	// EventTrackSubscribed is fired when a remote track becomes readable.
	EventTrackSubscribed EventType = "track_subscribed"

	// EventTrackUnsubscribed is fired when a remote track goes away.
	EventTrackUnsubscribed EventType = "track_unsubscribed"

	// EventDataReceived is fired when a data-channel payload arrives.
	EventDataReceived EventType = "data_received"

	// EventDisconnected is fired when the room connection ends.
	EventDisconnected EventType = "disconnected"
)

// Event is one room occurrence the session reacts to. Track events carry
// the live track handle so the media pipelines can read from it directly.
type Event struct {
	Type      EventType
	Timestamp time.Time

	// Participant is the identity of the remote participant involved, when
	// there is one.
	Participant string

	// Track and Publication are set for track events.
	Track       *webrtc.TrackRemote
	Publication *lksdk.RemoteTrackPublication

	// Data is the payload of data events.
	Data []byte
}

// NewEvent creates an event with the current timestamp.
func NewEvent(eventType EventType) *Event {
	return &Event{Type: eventType, Timestamp: time.Now()}
}

// WithParticipant records the remote participant's identity.
func (e *Event) WithParticipant(identity string) *Event {
	e.Participant = identity
	return e
}

// WithTrack attaches the live track handle and its publication.
func (e *Event) WithTrack(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication) *Event {
	e.Track = track
	e.Publication = pub
	return e
}

// WithData attaches a data-channel payload.
func (e *Event) WithData(data []byte) *Event {
	e.Data = data
	return e
}
