package session

import (
	"context"
	"testing"
	"time"
)

func TestNewRoom(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		config  RoomConfig
		wantErr bool
	}{
		{
			name: "valid config",
			config: RoomConfig{
				URL:   "wss://test.livekit.io",
				Token: "test-token",
			},
			wantErr: false,
		},
		{
			name:    "missing URL",
			config:  RoomConfig{Token: "test-token"},
			wantErr: true,
		},
		{
			name:    "missing token",
			config:  RoomConfig{URL: "wss://test.livekit.io"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room, err := NewRoom(ctx, tt.config)

			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if room.Events == nil {
				t.Error("events channel should not be nil")
			}
			if room.IsConnected() {
				t.Error("new room should not be connected")
			}
			if room.LocalParticipant() != nil {
				t.Error("unconnected room has no local participant")
			}
		})
	}
}

func TestRoomEventDelivery(t *testing.T) {
	room, err := NewRoom(context.Background(), RoomConfig{
		URL:   "wss://test.livekit.io",
		Token: "test-token",
	})
	if err != nil {
		t.Fatalf("NewRoom failed: %v", err)
	}

	room.sendEvent(NewEvent(EventDataReceived).
		WithParticipant("alice").
		WithData([]byte("hello")))

	select {
	case ev := <-room.Events:
		if ev.Type != EventDataReceived {
			t.Errorf("event type = %s", ev.Type)
		}
		if ev.Participant != "alice" {
			t.Errorf("participant = %q", ev.Participant)
		}
		if string(ev.Data) != "hello" {
			t.Errorf("data = %q", ev.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestRoomDisconnectClosesEvents(t *testing.T) {
	room, err := NewRoom(context.Background(), RoomConfig{
		URL:   "wss://test.livekit.io",
		Token: "test-token",
	})
	if err != nil {
		t.Fatalf("NewRoom failed: %v", err)
	}

	if err := room.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if _, open := <-room.Events; open {
		t.Error("events channel still open after disconnect")
	}

	// Stray callbacks after disconnect must not panic on the closed
	// channel.
	room.sendEvent(NewEvent(EventDataReceived))

	// Disconnect is idempotent.
	if err := room.Disconnect(); err != nil {
		t.Fatalf("second Disconnect failed: %v", err)
	}
}

func TestRoomSendEventDuringDisconnect(t *testing.T) {
	for i := 0; i < 200; i++ {
		room, err := NewRoom(context.Background(), RoomConfig{
			URL:   "wss://test.livekit.io",
			Token: "test-token",
		})
		if err != nil {
			t.Fatalf("NewRoom failed: %v", err)
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 100; j++ {
				room.sendEvent(NewEvent(EventDataReceived))
			}
		}()

		// Drain so senders hit the channel path rather than the
		// full-buffer drop.
		go func() {
			for range room.Events {
			}
		}()

		if err := room.Disconnect(); err != nil {
			t.Fatalf("Disconnect failed: %v", err)
		}
		<-done
	}
}

func TestRoomSourceRespectsContext(t *testing.T) {
	src := NewRoomSource(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := src.NextTrack(ctx); err == nil {
		t.Error("NextTrack returned without a track or a cancelled context")
	}
}
