package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alloyvoice/alloy-go/pkg/ai/stt"
	"github.com/alloyvoice/alloy-go/pkg/ai/vad"
	"github.com/alloyvoice/alloy-go/pkg/rtc"
)

// DefaultPrerollFrames is how many frames before a detected speech start
// are replayed into the recognizer, so segment onsets are not clipped.
const DefaultPrerollFrames = 8

// ListenerConfig holds the collaborators of a Listener.
type ListenerConfig struct {
	STT stt.STT
	VAD vad.VAD

	// OnTranscript receives each final transcript.
	OnTranscript func(text string)

	// Decode converts inbound frames to PCM before detection and
	// recognition. Nil passes frames through unchanged, for providers that
	// accept the wire encoding directly.
	Decode func(rtc.AudioFrame) (rtc.AudioFrame, error)

	// Language forwarded to the recognizer.
	Language string

	// PrerollFrames overrides DefaultPrerollFrames when positive.
	PrerollFrames int

	Logger *slog.Logger
}

// Listener gates speech recognition with voice activity detection: frames
// flow continuously into the detector, and only the frames around a
// detected speech segment are sent to the recognizer. Final transcripts go
// to the OnTranscript callback.
type Listener struct {
	stt          stt.STT
	vad          vad.VAD
	onTranscript func(text string)
	decode       func(rtc.AudioFrame) (rtc.AudioFrame, error)
	language     string
	preroll      int
	logger       *slog.Logger
}

// NewListener creates a Listener with the given configuration.
func NewListener(cfg ListenerConfig) (*Listener, error) {
	if cfg.STT == nil {
		return nil, fmt.Errorf("STT is required")
	}
	if cfg.VAD == nil {
		return nil, fmt.Errorf("VAD is required")
	}
	if cfg.OnTranscript == nil {
		return nil, fmt.Errorf("OnTranscript callback is required")
	}
	preroll := cfg.PrerollFrames
	if preroll <= 0 {
		preroll = DefaultPrerollFrames
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		stt:          cfg.STT,
		vad:          cfg.VAD,
		onTranscript: cfg.OnTranscript,
		decode:       cfg.Decode,
		language:     cfg.Language,
		preroll:      preroll,
		logger:       logger,
	}, nil
}

// Run consumes frames until the channel closes or ctx is cancelled. It
// returns after all in-flight recognition has drained.
func (l *Listener) Run(ctx context.Context, frames <-chan rtc.AudioFrame) error {
	vadIn := make(chan rtc.AudioFrame, 64)
	events, err := l.vad.Detect(ctx, vadIn)
	if err != nil {
		return fmt.Errorf("starting voice activity detection: %w", err)
	}

	var (
		wg      sync.WaitGroup
		stream  stt.Stream
		preroll []rtc.AudioFrame
	)
	finish := func() {
		if stream == nil {
			return
		}
		if err := stream.CloseSend(); err != nil {
			l.logger.Warn("closing recognition stream",
				slog.String("error", err.Error()))
		}
		stream = nil
	}
	defer func() {
		finish()
		close(vadIn)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			if l.decode != nil {
				frame, err = l.decode(frame)
				if err != nil {
					l.logger.Warn("audio decode failed, dropping frame",
						slog.String("error", err.Error()))
					continue
				}
			}
			select {
			case vadIn <- frame:
			default:
				l.logger.Warn("detector input is full, dropping frame")
			}
			if stream != nil {
				if err := stream.Push(frame); err != nil {
					l.logger.Warn("pushing frame to recognizer",
						slog.String("error", err.Error()))
				}
				continue
			}
			preroll = append(preroll, frame)
			if len(preroll) > l.preroll {
				preroll = preroll[1:]
			}

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Type {
			case vad.EventSpeechStart:
				if stream != nil {
					continue
				}
				s, err := l.openStream(ctx, preroll)
				if err != nil {
					l.logger.Error("opening recognition stream",
						slog.String("error", err.Error()))
					continue
				}
				stream = s
				preroll = preroll[:0]
				wg.Add(1)
				go func() {
					defer wg.Done()
					l.pump(s)
				}()

			case vad.EventSpeechEnd:
				finish()

			case vad.EventError:
				l.logger.Warn("voice activity detection error",
					slog.String("error", ev.Err.Error()))
			}
		}
	}
}

// openStream starts a recognition stream and replays the preroll frames.
func (l *Listener) openStream(ctx context.Context, preroll []rtc.AudioFrame) (stt.Stream, error) {
	cfg := stt.StreamConfig{
		SampleRate:  48000,
		NumChannels: 1,
		Language:    l.language,
	}
	if len(preroll) > 0 {
		last := preroll[len(preroll)-1]
		if last.SampleRate > 0 {
			cfg.SampleRate = last.SampleRate
		}
		if last.NumChannels > 0 {
			cfg.NumChannels = last.NumChannels
		}
	}

	stream, err := l.stt.NewStream(ctx, cfg)
	if err != nil {
		return nil, err
	}
	for _, frame := range preroll {
		if err := stream.Push(frame); err != nil {
			l.logger.Warn("replaying preroll frame",
				slog.String("error", err.Error()))
			break
		}
	}
	return stream, nil
}

// pump forwards final transcripts from one stream to the callback.
func (l *Listener) pump(stream stt.Stream) {
	for ev := range stream.Events() {
		switch ev.Type {
		case stt.SpeechEventFinal:
			if ev.Text == "" {
				continue
			}
			l.logger.Info("final transcript",
				slog.String("text", ev.Text))
			l.onTranscript(ev.Text)
		case stt.SpeechEventError:
			l.logger.Warn("recognition error",
				slog.String("error", ev.Err.Error()))
		}
	}
}
