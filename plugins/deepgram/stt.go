// Package deepgram implements streaming speech recognition against the
// Deepgram realtime API over a websocket.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alloyvoice/alloy-go/pkg/ai"
	"github.com/alloyvoice/alloy-go/pkg/ai/stt"
	"github.com/alloyvoice/alloy-go/pkg/rtc"
)

const (
	// DefaultEndpoint is the Deepgram realtime listening endpoint.
	DefaultEndpoint = "wss://api.deepgram.com/v1/listen"

	// DefaultModel is used when no model is configured.
	DefaultModel = "nova-2"

	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
)

// STT implements the recognition interface using Deepgram's streaming
// API. Each stream holds one websocket for one speech segment.
type STT struct {
	apiKey   string
	model    string
	endpoint string
	logger   *slog.Logger
}

// Config holds provider settings.
type Config struct {
	APIKey string
	// Model overrides DefaultModel when non-empty.
	Model string
	// Endpoint overrides DefaultEndpoint when non-empty, for testing.
	Endpoint string
	Logger   *slog.Logger
}

// NewSTT creates a Deepgram recognition provider.
func NewSTT(cfg Config) (*STT, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: Deepgram API key is required", ai.ErrFatal)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &STT{
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		endpoint: cfg.Endpoint,
		logger:   cfg.Logger,
	}, nil
}

// NewStream dials the realtime endpoint for one speech segment.
func (d *STT) NewStream(ctx context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.NumChannels <= 0 {
		cfg.NumChannels = 1
	}

	u, err := url.Parse(d.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid endpoint: %v", ai.ErrFatal, err)
	}
	q := u.Query()
	q.Set("model", d.model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	q.Set("channels", strconv.Itoa(cfg.NumChannels))
	q.Set("interim_results", "true")
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	header := http.Header{"Authorization": []string{"Token " + d.apiKey}}
	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing recognition endpoint: %v", ai.ErrRecoverable, err)
	}

	s := &stream{
		conn:   conn,
		lang:   cfg.Language,
		events: make(chan stt.SpeechEvent, 8),
		logger: d.logger,
	}
	go s.readLoop()
	return s, nil
}

// Capabilities reports what the realtime API supports.
func (d *STT) Capabilities() stt.Capabilities {
	return stt.Capabilities{
		Streaming:          true,
		InterimResults:     true,
		SupportedLanguages: []string{"en", "es", "fr", "de", "hi", "ja", "ko", "pt", "ru", "zh"},
	}
}

type stream struct {
	conn   *websocket.Conn
	lang   string
	events chan stt.SpeechEvent
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// result is the subset of the realtime response the stream cares about.
type result struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// Push sends one PCM frame as a binary message.
func (s *stream) Push(frame rtc.AudioFrame) error {
	if frame.Encoding != rtc.EncodingPCM16 {
		return fmt.Errorf("realtime stream requires PCM16 frames, got %s", frame.Encoding)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream is closed")
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.BinaryMessage, frame.Data)
}

func (s *stream) Events() <-chan stt.SpeechEvent {
	return s.events
}

// CloseSend tells the recognizer the segment is over. Remaining results
// arrive on the events channel, which closes once the server hangs up.
func (s *stream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
}

// readLoop turns server messages into speech events until the socket
// closes.
func (s *stream) readLoop() {
	defer close(s.events)
	defer s.conn.Close()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.mu.Lock()
				closed := s.closed
				s.mu.Unlock()
				if !closed {
					s.events <- stt.SpeechEvent{
						Type:      stt.SpeechEventError,
						Timestamp: time.Now(),
						Err:       fmt.Errorf("%w: reading recognition results: %v", ai.ErrRecoverable, err),
					}
				}
			}
			return
		}

		var res result
		if err := json.Unmarshal(data, &res); err != nil {
			s.logger.Warn("unparseable recognition message",
				slog.String("error", err.Error()))
			continue
		}
		if res.Type != "Results" || len(res.Channel.Alternatives) == 0 {
			continue
		}
		text := res.Channel.Alternatives[0].Transcript
		if text == "" {
			continue
		}

		evType := stt.SpeechEventInterim
		if res.IsFinal {
			evType = stt.SpeechEventFinal
		}
		s.events <- stt.SpeechEvent{
			Type:      evType,
			Text:      text,
			Language:  s.lang,
			Timestamp: time.Now(),
		}
	}
}
