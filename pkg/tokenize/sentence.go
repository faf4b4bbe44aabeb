// Package tokenize provides incremental sentence splitting, used to feed
// synthesis providers that do not stream natively: streamed model prose is
// pushed in as it arrives and complete sentences come out.
package tokenize

import (
	"strings"
	"unicode"
)

// DefaultMinSentenceLen avoids synthesizing fragments like "Hi." on their
// own; short sentences are merged with the following one.
const DefaultMinSentenceLen = 20

// SentenceTokenizer accumulates streamed text and emits sentences as they
// complete. Not safe for concurrent use; one tokenizer per reply.
type SentenceTokenizer struct {
	// MinSentenceLen merges sentences shorter than this with the next one.
	MinSentenceLen int

	buf strings.Builder
}

// NewSentenceTokenizer creates a tokenizer with the default minimum
// sentence length.
func NewSentenceTokenizer() *SentenceTokenizer {
	return &SentenceTokenizer{MinSentenceLen: DefaultMinSentenceLen}
}

// Push appends streamed text and returns any sentences completed by it.
func (t *SentenceTokenizer) Push(text string) []string {
	t.buf.WriteString(text)
	return t.drain(false)
}

// Flush returns whatever text remains buffered, as a final sentence.
// The tokenizer is reusable afterwards.
func (t *SentenceTokenizer) Flush() []string {
	return t.drain(true)
}

func (t *SentenceTokenizer) drain(flush bool) []string {
	text := t.buf.String()
	t.buf.Reset()

	var sentences []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		// Consume runs of terminators ("?!", "...").
		end := i
		for end+1 < len(runes) && isTerminator(runes[end+1]) {
			end++
		}
		// A sentence boundary needs trailing whitespace or end-of-input;
		// "3.5" and "e.g" keep streaming.
		if end+1 < len(runes) && !unicode.IsSpace(runes[end+1]) {
			i = end
			continue
		}
		if end+1 == len(runes) && !flush {
			// The terminator may still be followed by more of the same
			// sentence in the next push.
			break
		}
		candidate := strings.TrimSpace(string(runes[start : end+1]))
		if candidate != "" {
			sentences = append(sentences, candidate)
		}
		start = end + 1
		i = end
	}

	rest := strings.TrimLeftFunc(string(runes[start:]), unicode.IsSpace)
	if flush {
		if rest != "" {
			sentences = append(sentences, strings.TrimSpace(rest))
		}
	} else {
		t.buf.WriteString(rest)
	}

	return t.merge(sentences, flush)
}

// merge combines sentences shorter than MinSentenceLen with their
// successors; a short trailing sentence goes back into the buffer unless
// flushing.
func (t *SentenceTokenizer) merge(sentences []string, flush bool) []string {
	min := t.MinSentenceLen
	if min <= 0 || len(sentences) == 0 {
		return sentences
	}

	var out []string
	carry := ""
	for _, s := range sentences {
		if carry != "" {
			s = carry + " " + s
			carry = ""
		}
		if len(s) < min {
			carry = s
			continue
		}
		out = append(out, s)
	}
	if carry != "" {
		if flush {
			out = append(out, carry)
		} else {
			head := carry
			if t.buf.Len() > 0 {
				head += " "
			}
			rest := t.buf.String()
			t.buf.Reset()
			t.buf.WriteString(head)
			t.buf.WriteString(rest)
		}
	}
	return out
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?':
		return true
	}
	return false
}
