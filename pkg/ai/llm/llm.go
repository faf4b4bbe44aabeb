// Package llm defines the chat interface for language-model providers.
// Messages are multimodal: content is an ordered sequence of text segments
// and image references, so a single user turn can carry both the question
// and the current camera frame.
package llm

import (
	"context"
	"strings"

	"github.com/alloyvoice/alloy-go/pkg/ai"
	"github.com/alloyvoice/alloy-go/pkg/video"
)

// LLM-specific error variables for provider classification.
var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// MessageRole represents the role of a message in a chat conversation.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Content is one segment of a message: either Text or Image.
type Content interface {
	isContent()
}

// Text is a plain text segment.
type Text string

func (Text) isContent() {}

// Image is an image-reference segment carrying a video frame.
type Image struct {
	Frame video.Frame
}

func (Image) isContent() {}

// Message is a single entry in a chat conversation. Content is never
// empty; messages are appended to a conversation and never mutated.
type Message struct {
	Role    MessageRole
	Content []Content
}

// SystemMessage builds a system message from plain text.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: []Content{Text(text)}}
}

// UserMessage builds a user message from plain text.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []Content{Text(text)}}
}

// AssistantMessage builds an assistant message from plain text.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: []Content{Text(text)}}
}

// Text returns the concatenated text segments of the message.
func (m Message) Text() string {
	var b strings.Builder
	for _, c := range m.Content {
		if t, ok := c.(Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// HasImage reports whether the message carries an image segment.
func (m Message) HasImage() bool {
	for _, c := range m.Content {
		if _, ok := c.(Image); ok {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the message. Frame payloads are shared;
// frames are immutable once written to the cache.
func (m Message) Clone() Message {
	out := m
	out.Content = make([]Content, len(m.Content))
	copy(out.Content, m.Content)
	return out
}

// FunctionCall is a model response naming a declared capability instead of
// (or alongside) prose. It is produced by one chat call, handed to the
// resolver immediately, and never stored.
type FunctionCall struct {
	Name      string
	Arguments string // JSON-encoded arguments
}

// FunctionDefinition declares a capability the model may call.
type FunctionDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema
}

// ChatRequest contains parameters for a chat completion request.
type ChatRequest struct {
	Messages    []Message
	Functions   []FunctionDefinition
	MaxTokens   int
	Temperature float32
}

// ChatResponse contains the response from a non-streaming chat call.
type ChatResponse struct {
	Message      Message
	FunctionCall *FunctionCall
	TokensUsed   int
	FinishReason string
}

// ChatChunk is one increment of a streamed chat response. Either Delta
// carries a piece of prose, or FunctionCall carries a fully accumulated
// call intent (providers aggregate argument deltas before emitting it).
type ChatChunk struct {
	Delta        string
	FunctionCall *FunctionCall
	FinishReason string
}

// ChatStream delivers a chat response incrementally. Recv returns io.EOF
// when the response is complete.
type ChatStream interface {
	Recv() (ChatChunk, error)
	Close() error
}

// Capabilities describes what an LLM provider supports.
type Capabilities struct {
	SupportsFunctions bool
	SupportsStreaming bool
	SupportsVision    bool
	MaxTokens         int
}

// LLM is the interface implemented by language-model providers.
type LLM interface {
	// Chat performs a blocking chat completion request.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)

	// ChatStream performs a chat completion request with incremental
	// delivery of prose, for low-latency speaking.
	ChatStream(ctx context.Context, req ChatRequest) (ChatStream, error)

	// Capabilities returns the provider's capabilities.
	Capabilities() Capabilities
}
