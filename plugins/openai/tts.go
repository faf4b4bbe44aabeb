package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pion/webrtc/v3/pkg/media/oggreader"
	openai "github.com/sashabaranov/go-openai"

	"github.com/alloyvoice/alloy-go/pkg/ai"
	"github.com/alloyvoice/alloy-go/pkg/ai/tts"
	"github.com/alloyvoice/alloy-go/pkg/rtc"
)

const (
	// DefaultSpeechModel is used when no model is configured.
	DefaultSpeechModel = string(openai.TTSModel1)

	// DefaultVoice is used when neither the request nor the provider names
	// one.
	DefaultVoice = string(openai.VoiceAlloy)

	opusSampleRate = 48000

	// defaultPageDuration is assumed when a page carries no granule delta.
	defaultPageDuration = 20 * time.Millisecond
)

// TTS implements the synthesis interface using the OpenAI speech API. The
// response is requested as ogg/opus and demuxed into opus frames ready for
// the room's audio track.
type TTS struct {
	client *openai.Client
	model  string
	voice  string
	logger *slog.Logger
}

// NewTTS creates an OpenAI synthesis provider.
func NewTTS(apiKey, model, voice string, logger *slog.Logger) (*TTS, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key is required", ai.ErrFatal)
	}
	if model == "" {
		model = DefaultSpeechModel
	}
	if voice == "" {
		voice = DefaultVoice
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TTS{
		client: openai.NewClient(apiKey),
		model:  model,
		voice:  voice,
		logger: logger,
	}, nil
}

// Synthesize converts text to a stream of opus frames.
func (o *TTS) Synthesize(ctx context.Context, req tts.SpeechRequest) (<-chan rtc.AudioFrame, error) {
	voice := req.Voice
	if voice == "" {
		voice = o.voice
	}
	speechReq := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.model),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatOpus,
	}
	if req.Speed > 0 {
		speechReq.Speed = float64(req.Speed)
	}

	resp, err := o.client.CreateSpeech(ctx, speechReq)
	if err != nil {
		return nil, classify(err)
	}

	frames := make(chan rtc.AudioFrame, 16)
	go func() {
		defer close(frames)
		defer resp.Close()
		if err := o.demux(ctx, resp, frames); err != nil {
			o.logger.Error("demuxing synthesized audio",
				slog.String("error", err.Error()))
		}
	}()
	return frames, nil
}

// demux splits the ogg container into per-page opus frames, deriving each
// frame's duration from the granule positions.
func (o *TTS) demux(ctx context.Context, r io.Reader, frames chan<- rtc.AudioFrame) error {
	ogg, _, err := oggreader.NewWith(r)
	if err != nil {
		return fmt.Errorf("reading ogg header: %w", err)
	}

	var lastGranule uint64
	for {
		payload, header, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading ogg page: %w", err)
		}

		duration := defaultPageDuration
		if header.GranulePosition > lastGranule {
			samples := header.GranulePosition - lastGranule
			duration = time.Duration(samples) * time.Second / opusSampleRate
		}
		lastGranule = header.GranulePosition

		frame := rtc.AudioFrame{
			Data:        payload,
			Encoding:    rtc.EncodingOpus,
			SampleRate:  opusSampleRate,
			NumChannels: 1,
			Duration:    duration,
			Timestamp:   time.Now(),
		}
		select {
		case frames <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Capabilities reports what the speech API supports.
func (o *TTS) Capabilities() tts.Capabilities {
	return tts.Capabilities{
		Streaming: false,
		SupportedVoices: []string{
			"alloy", "ash", "echo", "fable", "onyx", "nova", "shimmer",
		},
		SampleRates: []int{opusSampleRate},
	}
}
