// Package openai implements the language-model, synthesis, and batch
// recognition provider interfaces against the OpenAI API.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alloyvoice/alloy-go/pkg/ai"
	"github.com/alloyvoice/alloy-go/pkg/ai/llm"
	"github.com/alloyvoice/alloy-go/pkg/video"
)

// DefaultChatModel is used when no model is configured.
const DefaultChatModel = openai.GPT4o

// LLM implements the chat interface using OpenAI models.
type LLM struct {
	client *openai.Client
	model  string
}

// NewLLM creates an OpenAI chat provider. An empty model selects
// DefaultChatModel.
func NewLLM(apiKey, model string) (*LLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key is required", ai.ErrFatal)
	}
	if model == "" {
		model = DefaultChatModel
	}
	return &LLM{client: openai.NewClient(apiKey), model: model}, nil
}

// Chat performs a blocking chat completion.
func (o *LLM) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	resp, err := o.client.CreateChatCompletion(ctx, o.completionRequest(req))
	if err != nil {
		return llm.ChatResponse{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return llm.ChatResponse{}, fmt.Errorf("%w: no completion choices returned", ai.ErrRecoverable)
	}

	choice := resp.Choices[0]
	out := llm.ChatResponse{
		Message:      llm.AssistantMessage(choice.Message.Content),
		TokensUsed:   resp.Usage.TotalTokens,
		FinishReason: string(choice.FinishReason),
	}
	if len(choice.Message.ToolCalls) > 0 {
		call := choice.Message.ToolCalls[0]
		out.FunctionCall = &llm.FunctionCall{
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		}
	}
	return out, nil
}

// ChatStream performs a streaming chat completion. Tool-call argument
// deltas are aggregated inside the stream and surfaced as one chunk.
func (o *LLM) ChatStream(ctx context.Context, req llm.ChatRequest) (llm.ChatStream, error) {
	stream, err := o.client.CreateChatCompletionStream(ctx, o.completionRequest(req))
	if err != nil {
		return nil, classify(err)
	}
	return &chatStream{stream: stream}, nil
}

// Capabilities reports what the configured model supports.
func (o *LLM) Capabilities() llm.Capabilities {
	return llm.Capabilities{
		SupportsFunctions: true,
		SupportsStreaming: true,
		SupportsVision:    true,
		MaxTokens:         128000,
	}
}

func (o *LLM) completionRequest(req llm.ChatRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = convertMessage(msg)
	}

	var tools []openai.Tool
	for _, fn := range req.Functions {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  fn.Parameters,
			},
		})
	}

	return openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Tools:       tools,
	}
}

// convertMessage maps a message to the wire format. Messages with an image
// segment become multipart content with the frame inlined as a data URL.
func convertMessage(msg llm.Message) openai.ChatCompletionMessage {
	if !msg.HasImage() {
		return openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Text(),
		}
	}

	var parts []openai.ChatMessagePart
	for _, c := range msg.Content {
		switch seg := c.(type) {
		case llm.Text:
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: string(seg),
			})
		case llm.Image:
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    frameDataURL(seg.Frame),
					Detail: openai.ImageURLDetailAuto,
				},
			})
		}
	}
	return openai.ChatCompletionMessage{
		Role:         string(msg.Role),
		MultiContent: parts,
	}
}

func frameDataURL(frame video.Frame) string {
	return "data:" + frame.Format + ";base64," + base64.StdEncoding.EncodeToString(frame.Data)
}

// classify wraps transport errors for retry classification. Auth and
// request-shape failures are fatal; everything else is worth retrying.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 400 {
			return fmt.Errorf("%w: %v", ai.ErrFatal, err)
		}
	}
	return fmt.Errorf("%w: %v", ai.ErrRecoverable, err)
}

// chatStream adapts the OpenAI SSE stream. Tool-call fragments accumulate
// across chunks and are emitted as a single FunctionCall once complete.
type chatStream struct {
	stream *openai.ChatCompletionStream

	toolName string
	toolArgs strings.Builder
	emitted  bool
}

func (s *chatStream) Recv() (llm.ChatChunk, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			if chunk, ok := s.takeToolCall(""); ok {
				return chunk, nil
			}
			return llm.ChatChunk{}, io.EOF
		}
		if err != nil {
			return llm.ChatChunk{}, classify(err)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		choice := resp.Choices[0]
		for _, tc := range choice.Delta.ToolCalls {
			if tc.Function.Name != "" {
				s.toolName = tc.Function.Name
			}
			s.toolArgs.WriteString(tc.Function.Arguments)
		}
		if choice.FinishReason == openai.FinishReasonToolCalls {
			if chunk, ok := s.takeToolCall(string(choice.FinishReason)); ok {
				return chunk, nil
			}
			continue
		}
		if choice.Delta.Content != "" {
			return llm.ChatChunk{
				Delta:        choice.Delta.Content,
				FinishReason: string(choice.FinishReason),
			}, nil
		}
	}
}

func (s *chatStream) takeToolCall(finishReason string) (llm.ChatChunk, bool) {
	if s.toolName == "" || s.emitted {
		return llm.ChatChunk{}, false
	}
	s.emitted = true
	return llm.ChatChunk{
		FunctionCall: &llm.FunctionCall{
			Name:      s.toolName,
			Arguments: s.toolArgs.String(),
		},
		FinishReason: finishReason,
	}, true
}

func (s *chatStream) Close() error {
	return s.stream.Close()
}
