package silero

import (
	"context"
	"encoding/binary"
	"path/filepath"
	"testing"
	"time"

	"github.com/alloyvoice/alloy-go/pkg/ai/vad"
	"github.com/alloyvoice/alloy-go/pkg/rtc"
)

// missingModel points New at a path that cannot exist, forcing the energy
// detection path so tests never touch the network or the onnx runtime.
func missingModel(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "nope.onnx")
}

func pcm48k(t *testing.T, amplitude int16, samples int) rtc.AudioFrame {
	t.Helper()
	data := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(amplitude))
	}
	frame, err := rtc.NewPCMFrame(data, 48000, 1)
	if err != nil {
		t.Fatalf("NewPCMFrame failed: %v", err)
	}
	return frame
}

func TestNewDefaults(t *testing.T) {
	v, err := New(Config{ModelPath: missingModel(t)})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if v.useModel {
		t.Error("detector claims a model that does not exist")
	}
	caps := v.Capabilities()
	if caps.MinSpeechDuration != DefaultMinSpeech {
		t.Errorf("MinSpeechDuration = %v", caps.MinSpeechDuration)
	}
	if caps.MinSilenceDuration != DefaultMinSilence {
		t.Errorf("MinSilenceDuration = %v", caps.MinSilenceDuration)
	}
}

func TestDetectSegmentBoundaries(t *testing.T) {
	v, err := New(Config{
		ModelPath:  missingModel(t),
		MinSpeech:  windowDuration,
		MinSilence: 2 * windowDuration,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	frames := make(chan rtc.AudioFrame, 32)
	events, err := v.Detect(ctx, frames)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	// 20ms frames at 48k resample to 320 samples each; six frames cover
	// several model windows.
	for i := 0; i < 6; i++ {
		frames <- pcm48k(t, 16000, 960)
	}
	for i := 0; i < 6; i++ {
		frames <- pcm48k(t, 0, 960)
	}
	close(frames)

	var got []vad.EventType
	for ev := range events {
		got = append(got, ev.Type)
	}
	if len(got) != 2 || got[0] != vad.EventSpeechStart || got[1] != vad.EventSpeechEnd {
		t.Errorf("events = %v, want [SpeechStart SpeechEnd]", got)
	}
}

func TestDetectFlushesOpenSegment(t *testing.T) {
	v, err := New(Config{
		ModelPath:  missingModel(t),
		MinSpeech:  windowDuration,
		MinSilence: 2 * windowDuration,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	frames := make(chan rtc.AudioFrame, 32)
	events, err := v.Detect(ctx, frames)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	for i := 0; i < 6; i++ {
		frames <- pcm48k(t, 16000, 960)
	}
	close(frames)

	var got []vad.EventType
	for ev := range events {
		got = append(got, ev.Type)
	}
	// Speech was still open when the audio ended; the segment must close.
	if len(got) != 2 || got[1] != vad.EventSpeechEnd {
		t.Errorf("events = %v, want a SpeechEnd flush", got)
	}
}

func TestResample(t *testing.T) {
	frame := pcm48k(t, 3000, 960)
	samples := resample(frame)
	if len(samples) != 320 {
		t.Fatalf("resampled to %d samples, want 320", len(samples))
	}
	want := float32(3000) / 32768.0
	if samples[0] != want {
		t.Errorf("sample = %v, want %v", samples[0], want)
	}

	if got := resample(rtc.AudioFrame{Encoding: rtc.EncodingOpus}); got != nil {
		t.Errorf("non-PCM frame resampled to %d samples", len(got))
	}
}

func TestEnergyProbability(t *testing.T) {
	loud := make([]float32, windowSamples)
	for i := range loud {
		loud[i] = 0.5
	}
	p, err := energyProbability(loud)
	if err != nil {
		t.Fatalf("energyProbability failed: %v", err)
	}
	if p < DefaultThreshold {
		t.Errorf("loud window probability = %v", p)
	}

	p, err = energyProbability(make([]float32, windowSamples))
	if err != nil {
		t.Fatalf("energyProbability failed: %v", err)
	}
	if p >= DefaultThreshold {
		t.Errorf("silent window probability = %v", p)
	}
}
