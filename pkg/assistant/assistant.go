// Package assistant implements the multimodal turn-taking engine: a state
// machine that turns recognized speech and inbound text into reasoned,
// spoken replies, attaching the freshest camera frame when the model asks
// for visual context.
package assistant

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alloyvoice/alloy-go/pkg/ai/llm"
	"github.com/alloyvoice/alloy-go/pkg/ai/tts"
	"github.com/alloyvoice/alloy-go/pkg/rtc"
	"github.com/alloyvoice/alloy-go/pkg/tokenize"
	"github.com/alloyvoice/alloy-go/pkg/video"
)

// State represents the current phase of the turn controller.
type State int32

const (
	StateIdle State = iota
	StateComposing
	StateAwaitingModel
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateComposing:
		return "Composing"
	case StateAwaitingModel:
		return "AwaitingModel"
	case StateSpeaking:
		return "Speaking"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// TriggerKind identifies what started a turn.
type TriggerKind int

const (
	// TriggerSpeech is a final speech-recognition transcript.
	TriggerSpeech TriggerKind = iota
	// TriggerText is an inbound data-channel text message.
	TriggerText
	// TriggerAnnounce speaks a fixed utterance without consulting the
	// model (greetings, status lines).
	TriggerAnnounce
)

// Trigger is one unit of input for the turn controller. Triggers are
// processed one at a time in arrival order; a trigger arriving while a
// prior turn is composing or awaiting the model waits its turn, while one
// arriving during speaking interrupts the utterance.
type Trigger struct {
	Kind TriggerKind
	Text string

	interruptible bool
}

const (
	// triggerBuffer bounds the FIFO queue of pending triggers.
	triggerBuffer = 32

	apologyText = "Sorry, I'm having trouble answering right now. Please try again in a moment."

	// noFrameNote rides along with the user text when the model asked for
	// an image but no frame has arrived, so the reply says so instead of
	// failing the turn.
	noFrameNote = "(No camera frame is available right now. Tell the user you cannot see anything at the moment.)"
)

// Config holds the collaborators of an Assistant.
type Config struct {
	LLM          llm.LLM
	TTS          tts.TTS
	Conversation *Conversation
	Functions    *Registry
	Frames       *video.Cache

	// AudioOut receives synthesized frames; the session publishes them to
	// the room.
	AudioOut chan<- rtc.AudioFrame

	// Voice passed through to the synthesis provider.
	Voice string

	Logger *slog.Logger
}

// Metrics holds performance counters for the engine.
type Metrics struct {
	StateTransitions *expvar.Map
	TurnsCompleted   *expvar.Int
	Interruptions    *expvar.Int
}

// Assistant is the turn controller. All state transitions for one session
// happen on the single goroutine running Start; input arrives through a
// buffered FIFO trigger channel.
type Assistant struct {
	llm          llm.LLM
	tts          tts.TTS
	conversation *Conversation
	functions    *Registry
	frames       *video.Cache
	audioOut     chan<- rtc.AudioFrame
	voice        string
	logger       *slog.Logger

	state    atomic.Int32
	triggers chan Trigger

	shutdown     chan struct{}
	shutdownOnce sync.Once

	metrics *Metrics
}

// New creates an Assistant with the given configuration.
func New(cfg Config) (*Assistant, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("LLM is required")
	}
	if cfg.TTS == nil {
		return nil, fmt.Errorf("TTS is required")
	}
	if cfg.Conversation == nil {
		return nil, fmt.Errorf("conversation is required")
	}
	if cfg.AudioOut == nil {
		return nil, fmt.Errorf("AudioOut channel is required")
	}
	if cfg.Frames == nil {
		cfg.Frames = video.NewCache()
	}
	if cfg.Functions == nil {
		cfg.Functions = NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	a := &Assistant{
		llm:          cfg.LLM,
		tts:          cfg.TTS,
		conversation: cfg.Conversation,
		functions:    cfg.Functions,
		frames:       cfg.Frames,
		audioOut:     cfg.AudioOut,
		voice:        cfg.Voice,
		logger:       cfg.Logger,
		triggers:     make(chan Trigger, triggerBuffer),
		shutdown:     make(chan struct{}),
		metrics:      newMetrics(),
	}
	a.state.Store(int32(StateIdle))
	return a, nil
}

// HandleSpeech enqueues a final speech-recognition transcript as a turn
// trigger.
func (a *Assistant) HandleSpeech(text string) {
	a.enqueue(Trigger{Kind: TriggerSpeech, Text: text, interruptible: true})
}

// HandleText enqueues an inbound text message as a turn trigger.
func (a *Assistant) HandleText(text string) {
	a.enqueue(Trigger{Kind: TriggerText, Text: text, interruptible: true})
}

// Say enqueues a fixed utterance to be spoken without a model call.
func (a *Assistant) Say(text string, allowInterruptions bool) {
	a.enqueue(Trigger{Kind: TriggerAnnounce, Text: text, interruptible: allowInterruptions})
}

func (a *Assistant) enqueue(t Trigger) {
	select {
	case a.triggers <- t:
	default:
		a.logger.Warn("trigger queue full, dropping trigger",
			slog.Int("kind", int(t.Kind)))
	}
}

// State returns the controller's current state.
func (a *Assistant) State() State {
	return State(a.state.Load())
}

// Metrics exposes the engine's counters.
func (a *Assistant) Metrics() *Metrics {
	return a.metrics
}

// Close stops the run loop after the current turn.
func (a *Assistant) Close() {
	a.shutdownOnce.Do(func() {
		close(a.shutdown)
	})
}

// Start runs the turn loop until ctx is cancelled or Close is called.
// Triggers are consumed strictly in arrival order; an interruption during
// speaking becomes the next turn directly.
func (a *Assistant) Start(ctx context.Context) error {
	var pending *Trigger
	for {
		var trig Trigger
		if pending != nil {
			trig = *pending
			pending = nil
		} else {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-a.shutdown:
				return nil
			case trig = <-a.triggers:
			}
		}

		pending = a.processTurn(ctx, trig)
		a.setState(StateIdle)
		a.metrics.TurnsCompleted.Add(1)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-a.shutdown:
			return nil
		default:
		}
	}
}

// processTurn drives one trigger through the state machine. It returns the
// trigger that interrupted the speaking phase, if any, which becomes the
// next turn.
func (a *Assistant) processTurn(ctx context.Context, trig Trigger) *Trigger {
	if trig.Kind == TriggerAnnounce {
		return a.speak(ctx, &utterance{a: a, text: trig.Text}, trig.interruptible)
	}

	a.compose(trig.Text, false)

	reply, err := a.reason(ctx, true)
	if err != nil {
		a.logger.Error("reasoning call failed",
			slog.String("error", err.Error()))
		return a.apologize(ctx, trig.interruptible)
	}

	if reply.call != nil {
		reply = a.resolveIntent(ctx, trig, *reply.call)
		if reply == nil {
			return a.apologize(ctx, trig.interruptible)
		}
	}

	return a.speak(ctx, &utterance{a: a, stream: reply.stream, prefix: reply.prefix}, trig.interruptible)
}

// resolveIntent handles a model-declared function call: on success the
// reasoning call is re-issued with the current frame attached, exactly
// once (the re-issued request carries no function declarations, so the
// model cannot loop); on resolver failure it falls back to a plain-text
// call over the same context. A nil return means the fallback call itself
// failed.
func (a *Assistant) resolveIntent(ctx context.Context, trig Trigger, call llm.FunctionCall) *modelReply {
	res, err := a.functions.Resolve(ctx, call)
	switch {
	case err != nil:
		a.logger.Warn("function intent unresolved, falling back to plain reply",
			slog.String("function", call.Name),
			slog.String("error", err.Error()))
	case res.ReanswerWithImage:
		a.logger.Info("re-answering with visual context",
			slog.String("text", trig.Text))
		a.compose(trig.Text, true)
	}

	reply, err := a.reason(ctx, false)
	if err != nil {
		a.logger.Error("re-issued reasoning call failed",
			slog.String("error", err.Error()))
		return nil
	}
	if reply.call != nil {
		// Cannot happen with functions withheld; treat a misbehaving
		// provider as an empty reply.
		a.logger.Warn("model repeated a function intent on the re-issued call",
			slog.String("function", reply.call.Name))
		return nil
	}
	return reply
}

// compose appends the triggering text as a user message, attaching the
// cached frame when requested. It never blocks waiting for a frame: when
// none has arrived the turn proceeds without one and the model is told to
// say so.
func (a *Assistant) compose(text string, useImage bool) {
	a.setState(StateComposing)

	content := []llm.Content{llm.Text(text)}
	if useImage {
		if frame, ok := a.frames.Read(); ok {
			content = append(content, llm.Image{Frame: frame})
		} else {
			a.logger.Warn("turn requested visual context but none is available",
				slog.String("error", ErrNoVisualContext.Error()))
			content = append(content, llm.Text(" "+noFrameNote))
		}
	}

	if err := a.conversation.Append(llm.Message{Role: llm.RoleUser, Content: content}); err != nil {
		a.logger.Error("failed to append user message",
			slog.String("error", err.Error()))
	}
}

// modelReply is the outcome of one reasoning call: either a prose stream
// (with the first delta already read) or a function-call intent.
type modelReply struct {
	stream llm.ChatStream
	prefix string
	call   *llm.FunctionCall
}

// reason issues one chat call over a snapshot of the conversation and
// reads ahead until the response reveals itself as prose or as a
// function-call intent.
func (a *Assistant) reason(ctx context.Context, withFunctions bool) (*modelReply, error) {
	a.setState(StateAwaitingModel)

	req := llm.ChatRequest{Messages: a.conversation.Snapshot()}
	if withFunctions {
		req.Functions = a.functions.Definitions()
	}

	stream, err := a.llm.ChatStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			// Empty reply; nothing to speak.
			return &modelReply{stream: stream}, nil
		}
		if err != nil {
			stream.Close()
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		if chunk.FunctionCall != nil {
			stream.Close()
			return &modelReply{call: chunk.FunctionCall}, nil
		}
		if chunk.Delta != "" {
			return &modelReply{stream: stream, prefix: chunk.Delta}, nil
		}
	}
}

// apologize speaks a short apology and lets the turn end. The session
// stays alive; provider failures are never fatal.
func (a *Assistant) apologize(ctx context.Context, interruptible bool) *Trigger {
	return a.speak(ctx, &utterance{a: a, text: apologyText}, interruptible)
}

// speak runs the speaking phase: the utterance streams through sentence
// tokenization into synthesis while the loop watches for interruptions.
// Whatever was actually spoken is appended as an assistant message,
// including partial utterances cut short by an interruption.
func (a *Assistant) speak(ctx context.Context, u *utterance, interruptible bool) *Trigger {
	a.setState(StateSpeaking)

	speakCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		u.run(speakCtx)
	}()

	var next *Trigger
	if interruptible {
		select {
		case t := <-a.triggers:
			cancel()
			a.metrics.Interruptions.Add(1)
			a.logger.Info("utterance interrupted by a new trigger")
			next = &t
		case <-done:
		case <-ctx.Done():
			cancel()
		}
	} else {
		select {
		case <-done:
		case <-ctx.Done():
			cancel()
		}
	}
	<-done

	if spoken := u.spokenText(); spoken != "" {
		if err := a.conversation.Append(llm.AssistantMessage(spoken)); err != nil {
			a.logger.Error("failed to append assistant message",
				slog.String("error", err.Error()))
		}
	}
	return next
}

// setState atomically updates the controller state and counts the
// transition.
func (a *Assistant) setState(newState State) {
	old := State(a.state.Swap(int32(newState)))
	if old == newState {
		return
	}
	key := fmt.Sprintf("%s_to_%s", old, newState)
	if counter := a.metrics.StateTransitions.Get(key); counter != nil {
		counter.(*expvar.Int).Add(1)
	} else {
		c := &expvar.Int{}
		c.Set(1)
		a.metrics.StateTransitions.Set(key, c)
	}
}

func newMetrics() *Metrics {
	transitions := &expvar.Map{}
	transitions.Init()
	return &Metrics{
		StateTransitions: transitions,
		TurnsCompleted:   &expvar.Int{},
		Interruptions:    &expvar.Int{},
	}
}

// utterance is one reply being spoken: either streamed model prose (with
// an already-read prefix) or fixed text.
type utterance struct {
	a      *Assistant
	stream llm.ChatStream
	prefix string
	text   string

	spoken strings.Builder
}

// run pushes the utterance through the sentence tokenizer and synthesizes
// each completed sentence. It stops promptly when ctx is cancelled.
func (u *utterance) run(ctx context.Context) {
	if u.stream != nil {
		defer u.stream.Close()
	}

	tok := tokenize.NewSentenceTokenizer()

	if u.stream == nil {
		if !u.say(ctx, tok.Push(u.text)) {
			return
		}
		u.say(ctx, tok.Flush())
		return
	}

	if !u.say(ctx, tok.Push(u.prefix)) {
		return
	}
	for {
		chunk, err := u.stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			u.a.logger.Error("reply stream failed mid-utterance",
				slog.String("error", err.Error()))
			return
		}
		if chunk.FunctionCall != nil {
			// A late intent mid-prose is ignored; the turn already chose
			// its reply path.
			continue
		}
		if !u.say(ctx, tok.Push(chunk.Delta)) {
			return
		}
	}
	u.say(ctx, tok.Flush())
}

// say synthesizes sentences and forwards the audio. A sentence counts as
// spoken once all of its frames were delivered.
func (u *utterance) say(ctx context.Context, sentences []string) bool {
	for _, sentence := range sentences {
		if ctx.Err() != nil {
			return false
		}
		frames, err := u.a.tts.Synthesize(ctx, tts.SpeechRequest{Text: sentence, Voice: u.a.voice})
		if err != nil {
			u.a.logger.Error("speech synthesis failed",
				slog.String("error", fmt.Errorf("%w: %v", ErrProviderUnavailable, err).Error()))
			return false
		}
		for frame := range frames {
			select {
			case u.a.audioOut <- frame:
			case <-ctx.Done():
				return false
			}
		}
		if ctx.Err() != nil {
			return false
		}
		if u.spoken.Len() > 0 {
			u.spoken.WriteString(" ")
		}
		u.spoken.WriteString(sentence)
	}
	return true
}

// spokenText returns what was actually synthesized. Safe to call after
// run has finished.
func (u *utterance) spokenText() string {
	return u.spoken.String()
}

// WaitForState polls until the controller reaches the given state, for
// tests and health checks.
func (a *Assistant) WaitForState(s State, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if a.State() == s {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return a.State() == s
}
