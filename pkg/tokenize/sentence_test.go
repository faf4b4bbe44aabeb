package tokenize

import (
	"reflect"
	"testing"
)

func TestSentenceTokenizerStreaming(t *testing.T) {
	tok := NewSentenceTokenizer()
	tok.MinSentenceLen = 1

	var got []string
	for _, chunk := range []string{"Hello the", "re! How are", " you doing? I am", " fine."} {
		got = append(got, tok.Push(chunk)...)
	}
	got = append(got, tok.Flush()...)

	want := []string{"Hello there!", "How are you doing?", "I am fine."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sentences = %q, want %q", got, want)
	}
}

func TestSentenceTokenizerDoesNotSplitDecimals(t *testing.T) {
	tok := NewSentenceTokenizer()
	tok.MinSentenceLen = 1

	got := tok.Push("Pi is about 3.14 which is useful. ")
	want := []string{"Pi is about 3.14 which is useful."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sentences = %q, want %q", got, want)
	}
}

func TestSentenceTokenizerMergesShortSentences(t *testing.T) {
	tok := NewSentenceTokenizer()
	tok.MinSentenceLen = 10

	got := tok.Push("Hi. Nice to meet you today. ")
	want := []string{"Hi. Nice to meet you today."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sentences = %q, want %q", got, want)
	}
}

func TestSentenceTokenizerFlushEmitsRemainder(t *testing.T) {
	tok := NewSentenceTokenizer()
	tok.MinSentenceLen = 1

	if out := tok.Push("no terminator here"); out != nil {
		t.Errorf("Push returned %q before any boundary", out)
	}
	got := tok.Flush()
	want := []string{"no terminator here"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Flush() = %q, want %q", got, want)
	}
}

func TestSentenceTokenizerEllipsis(t *testing.T) {
	tok := NewSentenceTokenizer()
	tok.MinSentenceLen = 1

	got := tok.Push("Well... let me think about that. ")
	want := []string{"Well...", "let me think about that."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sentences = %q, want %q", got, want)
	}
}
