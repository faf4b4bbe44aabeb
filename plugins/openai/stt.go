package openai

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alloyvoice/alloy-go/pkg/ai"
	"github.com/alloyvoice/alloy-go/pkg/ai/stt"
	"github.com/alloyvoice/alloy-go/pkg/rtc"
)

// DefaultTranscriptionModel is used when no model is configured.
const DefaultTranscriptionModel = openai.Whisper1

// STT implements the recognition interface using the OpenAI transcription
// API. Whisper is a batch recognizer: a stream buffers its segment's audio
// and transcribes it in one request when the audio is closed.
type STT struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewSTT creates an OpenAI recognition provider.
func NewSTT(apiKey, model string, logger *slog.Logger) (*STT, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key is required", ai.ErrFatal)
	}
	if model == "" {
		model = DefaultTranscriptionModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &STT{client: openai.NewClient(apiKey), model: model, logger: logger}, nil
}

// NewStream opens a buffering recognition stream for one speech segment.
func (o *STT) NewStream(ctx context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.NumChannels <= 0 {
		cfg.NumChannels = 1
	}
	return &whisperStream{
		ctx:    ctx,
		parent: o,
		cfg:    cfg,
		events: make(chan stt.SpeechEvent, 4),
	}, nil
}

// Capabilities reports what the transcription API supports.
func (o *STT) Capabilities() stt.Capabilities {
	return stt.Capabilities{
		Streaming:          false,
		InterimResults:     false,
		SupportedLanguages: []string{"en", "es", "fr", "de", "it", "pt", "ja", "ko", "zh"},
	}
}

type whisperStream struct {
	ctx    context.Context
	parent *STT
	cfg    stt.StreamConfig
	events chan stt.SpeechEvent

	mu     sync.Mutex
	pcm    bytes.Buffer
	closed bool
}

// Push buffers one PCM frame. Frames in other encodings are rejected,
// since the WAV wrapper describes raw PCM.
func (s *whisperStream) Push(frame rtc.AudioFrame) error {
	if frame.Encoding != rtc.EncodingPCM16 {
		return fmt.Errorf("whisper stream requires PCM16 frames, got %s", frame.Encoding)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream is closed")
	}
	s.pcm.Write(frame.Data)
	return nil
}

func (s *whisperStream) Events() <-chan stt.SpeechEvent {
	return s.events
}

// CloseSend wraps the buffered segment in a WAV header and transcribes it.
func (s *whisperStream) CloseSend() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	audio := s.pcm.Bytes()
	s.mu.Unlock()

	go func() {
		defer close(s.events)
		if len(audio) == 0 {
			return
		}

		resp, err := s.parent.client.CreateTranscription(s.ctx, openai.AudioRequest{
			Model:    s.parent.model,
			FilePath: "segment.wav",
			Reader:   bytes.NewReader(wavEncode(audio, s.cfg.SampleRate, s.cfg.NumChannels)),
			Language: s.cfg.Language,
		})
		if err != nil {
			s.events <- stt.SpeechEvent{
				Type:      stt.SpeechEventError,
				Timestamp: time.Now(),
				Err:       classify(err),
			}
			return
		}
		if resp.Text == "" {
			return
		}
		s.events <- stt.SpeechEvent{
			Type:      stt.SpeechEventFinal,
			Text:      resp.Text,
			Language:  s.cfg.Language,
			Timestamp: time.Now(),
		}
	}()
	return nil
}

// wavEncode prepends a RIFF header describing 16-bit little-endian PCM.
func wavEncode(pcm []byte, sampleRate, channels int) []byte {
	var buf bytes.Buffer
	dataLen := uint32(len(pcm))
	byteRate := uint32(sampleRate * channels * 2)
	blockAlign := uint16(channels * 2)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, 36+dataLen)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, byteRate)
	binary.Write(&buf, binary.LittleEndian, blockAlign)
	binary.Write(&buf, binary.LittleEndian, uint16(16)) // bits per sample
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataLen)
	buf.Write(pcm)
	return buf.Bytes()
}
