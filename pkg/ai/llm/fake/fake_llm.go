// Package fake provides a scriptable LLM implementation for tests.
package fake

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/alloyvoice/alloy-go/pkg/ai/llm"
)

// FakeLLM replays scripted responses in order and records every request it
// receives, so tests can assert on the exact context sent to the model.
type FakeLLM struct {
	mu        sync.Mutex
	responses []llm.ChatResponse
	requests  []llm.ChatRequest
	err       error

	// Delay simulates model latency before each response.
	Delay time.Duration
}

// NewFakeLLM creates a fake that replies with the given prose responses in
// order, repeating the last one when the script runs out.
func NewFakeLLM(responses ...string) *FakeLLM {
	f := &FakeLLM{}
	for _, r := range responses {
		f.responses = append(f.responses, llm.ChatResponse{
			Message:      llm.AssistantMessage(r),
			FinishReason: "stop",
		})
	}
	if len(f.responses) == 0 {
		f.responses = []llm.ChatResponse{{
			Message:      llm.AssistantMessage("This is a fake response."),
			FinishReason: "stop",
		}}
	}
	return f
}

// Script replaces the response script with explicit responses, which may
// include function calls.
func (f *FakeLLM) Script(responses ...llm.ChatResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = responses
}

// Fail makes every subsequent call return err.
func (f *FakeLLM) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Requests returns a copy of every request received so far.
func (f *FakeLLM) Requests() []llm.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llm.ChatRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *FakeLLM) next(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	f.mu.Lock()
	delay := f.Delay
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-ctx.Done():
			return llm.ChatResponse{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return llm.ChatResponse{}, f.err
	}
	idx := len(f.requests)
	f.requests = append(f.requests, req)
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

// Chat returns the next scripted response.
func (f *FakeLLM) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	return f.next(ctx, req)
}

// ChatStream returns the next scripted response as a word-by-word stream.
func (f *FakeLLM) ChatStream(ctx context.Context, req llm.ChatRequest) (llm.ChatStream, error) {
	resp, err := f.next(ctx, req)
	if err != nil {
		return nil, err
	}

	var chunks []llm.ChatChunk
	if text := resp.Message.Text(); text != "" {
		words := strings.SplitAfter(text, " ")
		for _, w := range words {
			if w != "" {
				chunks = append(chunks, llm.ChatChunk{Delta: w})
			}
		}
	}
	if resp.FunctionCall != nil {
		chunks = append(chunks, llm.ChatChunk{FunctionCall: resp.FunctionCall})
	}
	if len(chunks) > 0 {
		chunks[len(chunks)-1].FinishReason = resp.FinishReason
	}
	return &fakeStream{chunks: chunks}, nil
}

// Capabilities reports full support so the engine exercises every path.
func (f *FakeLLM) Capabilities() llm.Capabilities {
	return llm.Capabilities{
		SupportsFunctions: true,
		SupportsStreaming: true,
		SupportsVision:    true,
		MaxTokens:         4096,
	}
}

type fakeStream struct {
	mu     sync.Mutex
	chunks []llm.ChatChunk
	pos    int
	closed bool
}

func (s *fakeStream) Recv() (llm.ChatChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.pos >= len(s.chunks) {
		return llm.ChatChunk{}, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
