package openai

import (
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"github.com/alloyvoice/alloy-go/pkg/ai/llm"
	"github.com/alloyvoice/alloy-go/pkg/video"
)

func TestNewProvidersRequireKey(t *testing.T) {
	if _, err := NewLLM("", ""); err == nil {
		t.Error("NewLLM accepted an empty API key")
	}
	if _, err := NewTTS("", "", "", nil); err == nil {
		t.Error("NewTTS accepted an empty API key")
	}
	if _, err := NewSTT("", "", nil); err == nil {
		t.Error("NewSTT accepted an empty API key")
	}

	l, err := NewLLM("test-key", "")
	if err != nil {
		t.Fatalf("NewLLM failed: %v", err)
	}
	if l.model != DefaultChatModel {
		t.Errorf("model = %q, want default", l.model)
	}
}

func TestConvertMessagePlainText(t *testing.T) {
	msg := convertMessage(llm.UserMessage("hello"))
	if msg.Role != "user" || msg.Content != "hello" {
		t.Errorf("message = %+v", msg)
	}
	if len(msg.MultiContent) != 0 {
		t.Error("plain text message became multipart")
	}
}

func TestConvertMessageWithImage(t *testing.T) {
	msg := convertMessage(llm.Message{
		Role: llm.RoleUser,
		Content: []llm.Content{
			llm.Text("what is this?"),
			llm.Image{Frame: video.Frame{
				Data:      []byte{0x01, 0x02},
				Format:    "image/jpeg",
				Timestamp: time.Now(),
			}},
		},
	})

	if msg.Content != "" {
		t.Error("multipart message also set plain content")
	}
	if len(msg.MultiContent) != 2 {
		t.Fatalf("multipart has %d parts, want 2", len(msg.MultiContent))
	}
	if msg.MultiContent[0].Text != "what is this?" {
		t.Errorf("text part = %q", msg.MultiContent[0].Text)
	}
	url := msg.MultiContent[1].ImageURL.URL
	if !strings.HasPrefix(url, "data:image/jpeg;base64,") {
		t.Errorf("image part url = %q", url)
	}
	if !strings.HasSuffix(url, "AQI=") {
		t.Errorf("image payload not base64 encoded: %q", url)
	}
}

func TestChatStreamAggregatesToolCall(t *testing.T) {
	s := &chatStream{}
	s.toolName = "image"
	s.toolArgs.WriteString(`{"user_msg":`)
	s.toolArgs.WriteString(`"look"}`)

	chunk, ok := s.takeToolCall("tool_calls")
	if !ok {
		t.Fatal("aggregated call was not emitted")
	}
	if chunk.FunctionCall.Name != "image" {
		t.Errorf("name = %q", chunk.FunctionCall.Name)
	}
	if chunk.FunctionCall.Arguments != `{"user_msg":"look"}` {
		t.Errorf("arguments = %q", chunk.FunctionCall.Arguments)
	}

	// A call is emitted exactly once.
	if _, ok := s.takeToolCall(""); ok {
		t.Error("call emitted twice")
	}
}

func TestWavEncode(t *testing.T) {
	pcm := make([]byte, 320)
	wav := wavEncode(pcm, 16000, 1)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d", len(wav))
	}
	if string(wav[:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE markers")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:]); rate != 16000 {
		t.Errorf("sample rate = %d", rate)
	}
	if dataLen := binary.LittleEndian.Uint32(wav[40:]); dataLen != uint32(len(pcm)) {
		t.Errorf("data length = %d", dataLen)
	}
}
