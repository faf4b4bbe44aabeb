package session

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	sttfake "github.com/alloyvoice/alloy-go/pkg/ai/stt/fake"
	vadfake "github.com/alloyvoice/alloy-go/pkg/ai/vad/fake"
	"github.com/alloyvoice/alloy-go/pkg/rtc"
)

func pcmFrame(t *testing.T, amplitude int16) rtc.AudioFrame {
	t.Helper()
	data := make([]byte, 960*2)
	for i := 0; i < 960; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(amplitude))
	}
	frame, err := rtc.NewPCMFrame(data, 48000, 1)
	if err != nil {
		t.Fatalf("NewPCMFrame failed: %v", err)
	}
	return frame
}

func TestNewListenerValidatesConfig(t *testing.T) {
	base := func() ListenerConfig {
		return ListenerConfig{
			STT:          sttfake.NewFakeSTT(),
			VAD:          vadfake.NewFakeVAD(0.1),
			OnTranscript: func(string) {},
		}
	}

	tests := []struct {
		name   string
		mutate func(*ListenerConfig)
	}{
		{"missing STT", func(c *ListenerConfig) { c.STT = nil }},
		{"missing VAD", func(c *ListenerConfig) { c.VAD = nil }},
		{"missing callback", func(c *ListenerConfig) { c.OnTranscript = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			if _, err := NewListener(cfg); err == nil {
				t.Error("NewListener accepted an incomplete config")
			}
		})
	}

	if _, err := NewListener(base()); err != nil {
		t.Errorf("NewListener rejected a complete config: %v", err)
	}
}

func TestListenerRecognizesGatedSegment(t *testing.T) {
	transcripts := make(chan string, 4)
	l, err := NewListener(ListenerConfig{
		STT:          sttfake.NewFakeSTT("turn on the lights"),
		VAD:          vadfake.NewFakeVAD(0.1),
		OnTranscript: func(text string) { transcripts <- text },
	})
	if err != nil {
		t.Fatalf("NewListener failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := make(chan rtc.AudioFrame, 32)
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, frames) }()

	// A burst of loud frames opens a segment; silence closes it.
	for i := 0; i < 5; i++ {
		frames <- pcmFrame(t, 16000)
	}
	for i := 0; i < 3; i++ {
		frames <- pcmFrame(t, 0)
	}

	select {
	case text := <-transcripts:
		if text != "turn on the lights" {
			t.Errorf("transcript = %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no transcript arrived")
	}

	close(frames)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after the frame channel closed")
	}
}

func TestListenerFlushesOnShutdown(t *testing.T) {
	transcripts := make(chan string, 4)
	l, err := NewListener(ListenerConfig{
		STT:          sttfake.NewFakeSTT("partial thought"),
		VAD:          vadfake.NewFakeVAD(0.1),
		OnTranscript: func(text string) { transcripts <- text },
	})
	if err != nil {
		t.Fatalf("NewListener failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := make(chan rtc.AudioFrame, 32)
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, frames) }()

	// Speech starts but the session ends before silence; the open segment
	// must still be flushed through recognition.
	for i := 0; i < 5; i++ {
		frames <- pcmFrame(t, 16000)
	}
	time.Sleep(50 * time.Millisecond)
	close(frames)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	select {
	case text := <-transcripts:
		if text != "partial thought" {
			t.Errorf("transcript = %q", text)
		}
	case <-time.After(time.Second):
		t.Fatal("open segment was not flushed on shutdown")
	}
}

func TestListenerDecodeFailureDropsFrame(t *testing.T) {
	l, err := NewListener(ListenerConfig{
		STT:          sttfake.NewFakeSTT(),
		VAD:          vadfake.NewFakeVAD(0.1),
		OnTranscript: func(string) {},
		Decode: func(rtc.AudioFrame) (rtc.AudioFrame, error) {
			return rtc.AudioFrame{}, errors.New("bad payload")
		},
	})
	if err != nil {
		t.Fatalf("NewListener failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := make(chan rtc.AudioFrame, 8)
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, frames) }()

	frames <- pcmFrame(t, 16000)
	close(frames)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
