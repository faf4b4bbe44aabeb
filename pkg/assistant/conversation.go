package assistant

import (
	"fmt"
	"sync"

	"github.com/alloyvoice/alloy-go/pkg/ai/llm"
)

// Conversation is the ordered transcript of a session: exactly one system
// (persona) message at index 0, then user and assistant messages in
// chronological order. Messages are appended, never mutated in place, and
// only the assistant's turn loop appends; consecutive messages of the same
// role are allowed.
type Conversation struct {
	mu       sync.Mutex
	messages []llm.Message
}

// NewConversation creates a transcript seeded with the persona message.
func NewConversation(systemPrompt string) *Conversation {
	return &Conversation{
		messages: []llm.Message{llm.SystemMessage(systemPrompt)},
	}
}

// Append adds a message to the end of the transcript. Messages with empty
// content are rejected.
func (c *Conversation) Append(msg llm.Message) error {
	if len(msg.Content) == 0 {
		return fmt.Errorf("message content must not be empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return nil
}

// Snapshot returns a deep copy of the transcript for use in a model call,
// so appends arriving mid-call never mutate a request already in flight.
func (c *Conversation) Snapshot() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.Clone()
	}
	return out
}

// Len returns the number of messages in the transcript.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}
