// Package session ties a LiveKit room to the turn-taking engine: it
// connects, publishes the agent's voice track, routes inbound audio
// through voice-gated recognition, feeds remote video into the frame
// cache, and keeps the whole arrangement alive until the room goes away.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/pion/webrtc/v3"

	"github.com/alloyvoice/alloy-go/pkg/ai/llm"
	"github.com/alloyvoice/alloy-go/pkg/ai/stt"
	"github.com/alloyvoice/alloy-go/pkg/ai/tts"
	"github.com/alloyvoice/alloy-go/pkg/ai/vad"
	"github.com/alloyvoice/alloy-go/pkg/assistant"
	"github.com/alloyvoice/alloy-go/pkg/rtc"
	"github.com/alloyvoice/alloy-go/pkg/video"
)

// ErrDisconnected is returned by Run when the room connection ends.
var ErrDisconnected = errors.New("session: room disconnected")

const (
	// DefaultGreeting is spoken shortly after connecting.
	DefaultGreeting = "Hi there! How can I help?"

	// settleDelay gives the connection a moment before the greeting, so
	// the first utterance is not lost to negotiation.
	settleDelay = time.Second

	// opusFrameDuration is the packet duration of inbound audio.
	opusFrameDuration = 20 * time.Millisecond

	audioTrackName = "agent-voice"
)

// Config holds everything a Session needs.
type Config struct {
	// URL of the LiveKit server.
	URL string
	// Token grants access to the room to join.
	Token string

	LLM llm.LLM
	STT stt.STT
	TTS tts.TTS
	VAD vad.VAD

	// SystemPrompt seeds the conversation.
	SystemPrompt string
	// Greeting overrides DefaultGreeting when non-empty.
	Greeting string
	// Voice forwarded to the synthesis provider.
	Voice string
	// Language forwarded to the recognizer.
	Language string

	// DecodeAudio converts inbound wire-format frames to PCM for
	// detection and recognition. Nil passes frames through unchanged.
	DecodeAudio func(rtc.AudioFrame) (rtc.AudioFrame, error)

	Logger *slog.Logger
}

// Session is one agent's presence in one room.
type Session struct {
	cfg      Config
	greeting string
	logger   *slog.Logger

	room        *Room
	assistant   *assistant.Assistant
	listener    *Listener
	publisher   *Publisher
	videoSource *RoomSource
	frames      *video.Cache

	audioOut chan rtc.AudioFrame
	audioIn  chan rtc.AudioFrame
}

// New assembles a session from providers. Nothing connects until Run.
func New(cfg Config) (*Session, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("token is required")
	}
	if cfg.LLM == nil || cfg.STT == nil || cfg.TTS == nil || cfg.VAD == nil {
		return nil, fmt.Errorf("LLM, STT, TTS and VAD providers are all required")
	}
	greeting := cfg.Greeting
	if greeting == "" {
		greeting = DefaultGreeting
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		cfg:      cfg,
		greeting: greeting,
		logger:   logger,
		frames:   video.NewCache(),
		audioOut: make(chan rtc.AudioFrame, 64),
		audioIn:  make(chan rtc.AudioFrame, 256),
	}

	functions := assistant.NewRegistry()
	assistant.RegisterVision(functions)

	a, err := assistant.New(assistant.Config{
		LLM:          cfg.LLM,
		TTS:          cfg.TTS,
		Conversation: assistant.NewConversation(cfg.SystemPrompt),
		Functions:    functions,
		Frames:       s.frames,
		AudioOut:     s.audioOut,
		Voice:        cfg.Voice,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("assembling turn controller: %w", err)
	}
	s.assistant = a

	listener, err := NewListener(ListenerConfig{
		STT:          cfg.STT,
		VAD:          cfg.VAD,
		OnTranscript: a.HandleSpeech,
		Decode:       cfg.DecodeAudio,
		Language:     cfg.Language,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("assembling listener: %w", err)
	}
	s.listener = listener

	publisher, err := NewPublisher(logger)
	if err != nil {
		return nil, fmt.Errorf("assembling publisher: %w", err)
	}
	s.publisher = publisher
	s.videoSource = NewRoomSource(logger)

	return s, nil
}

// Assistant exposes the turn controller, for inspection and direct
// utterances.
func (s *Session) Assistant() *assistant.Assistant {
	return s.assistant
}

// Run connects to the room and serves it until the connection ends or ctx
// is cancelled. It returns ErrDisconnected when the room goes away.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	room, err := NewRoom(ctx, RoomConfig{
		URL:    s.cfg.URL,
		Token:  s.cfg.Token,
		Logger: s.logger,
	})
	if err != nil {
		return err
	}
	s.room = room
	if err := room.Connect(RoomConfig{URL: s.cfg.URL, Token: s.cfg.Token}); err != nil {
		return err
	}
	defer room.Disconnect()

	if err := s.publisher.Publish(room.LocalParticipant(), audioTrackName); err != nil {
		return err
	}

	go func() { _ = s.assistant.Start(ctx) }()
	defer s.assistant.Close()
	go s.publisher.Run(ctx, s.audioOut)
	go func() { _ = s.listener.Run(ctx, s.audioIn) }()
	go video.NewIngestor(s.videoSource, s.frames, s.logger).Run(ctx)

	disconnected := make(chan struct{})
	go s.dispatch(ctx, disconnected)

	select {
	case <-time.After(settleDelay):
		s.assistant.Say(s.greeting, true)
	case <-ctx.Done():
		return ctx.Err()
	case <-disconnected:
		return ErrDisconnected
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-disconnected:
		return ErrDisconnected
	}
}

// dispatch routes room events to the media pipelines and the turn
// controller.
func (s *Session) dispatch(ctx context.Context, disconnected chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.room.Events:
			if !ok {
				close(disconnected)
				return
			}
			switch ev.Type {
			case EventDataReceived:
				text := strings.TrimSpace(string(ev.Data))
				if text == "" {
					continue
				}
				s.logger.Info("text message received",
					slog.String("participant", ev.Participant))
				s.assistant.HandleText(text)

			case EventTrackSubscribed:
				switch ev.Track.Kind() {
				case webrtc.RTPCodecTypeVideo:
					s.videoSource.Offer(ev.Track)
				case webrtc.RTPCodecTypeAudio:
					go s.readAudio(ctx, ev.Track)
				}

			case EventDisconnected:
				close(disconnected)
				return
			}
		}
	}
}

// readAudio forwards one remote audio track's packets into the listener.
// Each RTP payload is a single opus packet.
func (s *Session) readAudio(ctx context.Context, track *webrtc.TrackRemote) {
	sampleRate := int(track.Codec().ClockRate)
	channels := int(track.Codec().Channels)
	if channels == 0 {
		channels = 1
	}

	for {
		if ctx.Err() != nil {
			return
		}
		_ = track.SetReadDeadline(time.Now().Add(trackReadTimeout))
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			s.logger.Info("audio track ended",
				slog.String("track_id", track.ID()))
			return
		}
		frame := rtc.AudioFrame{
			Data:        pkt.Payload,
			Encoding:    rtc.EncodingOpus,
			SampleRate:  sampleRate,
			NumChannels: channels,
			Duration:    opusFrameDuration,
			Timestamp:   time.Now(),
		}
		select {
		case s.audioIn <- frame:
		default:
			// Recognition is behind; fresher audio matters more.
		}
	}
}
