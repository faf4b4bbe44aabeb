package assistant

import (
	"fmt"
	"sync"
	"testing"

	"github.com/alloyvoice/alloy-go/pkg/ai/llm"
)

func TestConversationStartsWithSystemMessage(t *testing.T) {
	conv := NewConversation("You are a test bot.")

	msgs := conv.Snapshot()
	if len(msgs) != 1 {
		t.Fatalf("new conversation has %d messages, want 1", len(msgs))
	}
	if msgs[0].Role != llm.RoleSystem {
		t.Errorf("message 0 role = %s, want system", msgs[0].Role)
	}
	if msgs[0].Text() != "You are a test bot." {
		t.Errorf("system text = %q", msgs[0].Text())
	}
}

func TestConversationAppendPreservesOrder(t *testing.T) {
	conv := NewConversation("persona")

	for i := 0; i < 5; i++ {
		if err := conv.Append(llm.UserMessage(fmt.Sprintf("msg %d", i))); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	msgs := conv.Snapshot()
	if len(msgs) != 6 {
		t.Fatalf("conversation has %d messages, want 6", len(msgs))
	}
	for i := 1; i < 6; i++ {
		want := fmt.Sprintf("msg %d", i-1)
		if msgs[i].Text() != want {
			t.Errorf("message %d = %q, want %q", i, msgs[i].Text(), want)
		}
	}
}

func TestConversationRejectsEmptyContent(t *testing.T) {
	conv := NewConversation("persona")

	if err := conv.Append(llm.Message{Role: llm.RoleUser}); err == nil {
		t.Error("Append accepted a message with empty content")
	}
}

func TestConversationSnapshotIsolation(t *testing.T) {
	conv := NewConversation("persona")
	if err := conv.Append(llm.UserMessage("hello")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	snap := conv.Snapshot()
	// Appends after the snapshot must not show up in it.
	if err := conv.Append(llm.AssistantMessage("hi")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if len(snap) != 2 {
		t.Errorf("snapshot grew after a later append: len=%d", len(snap))
	}

	// Mutating the snapshot must not affect the transcript.
	snap[1].Content[0] = llm.Text("tampered")
	if got := conv.Snapshot()[1].Text(); got != "hello" {
		t.Errorf("transcript mutated through snapshot: %q", got)
	}
}

func TestConversationConcurrentSnapshots(t *testing.T) {
	conv := NewConversation("persona")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = conv.Append(llm.UserMessage("x"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			snap := conv.Snapshot()
			if snap[0].Role != llm.RoleSystem {
				t.Error("snapshot lost the leading system message")
				return
			}
		}
	}()
	wg.Wait()
}
