package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/alloyvoice/alloy-go/pkg/ai/llm"
)

// Result is the outcome of resolving a function-call intent. The
// capabilities in this domain produce no user-visible text themselves;
// they steer how the controller re-answers.
type Result struct {
	// ReanswerWithImage asks the controller to re-issue the reasoning call
	// for the same user text with the current camera frame attached.
	ReanswerWithImage bool
}

// Handler executes one declared capability with its decoded arguments.
type Handler func(ctx context.Context, args map[string]any) (Result, error)

// Registry maps declared capability names to their schema and handler. It
// is what the model sees as callable functions and what the resolver
// consults when the model names one.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registryEntry
}

type registryEntry struct {
	def     llm.FunctionDefinition
	handler Handler
}

// NewRegistry creates an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registryEntry)}
}

// Register declares a capability. Re-registering a name replaces it.
func (r *Registry) Register(def llm.FunctionDefinition, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[def.Name] = registryEntry{def: def, handler: h}
}

// Definitions returns the declared capabilities for inclusion in a chat
// request.
func (r *Registry) Definitions() []llm.FunctionDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llm.FunctionDefinition, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.def)
	}
	return out
}

// Resolve validates and executes a model-declared call intent. Unknown
// names and argument validation failures return errors wrapping
// ErrUnresolvedIntent; the caller falls back to the plain-text reply path
// rather than dropping the turn.
func (r *Registry) Resolve(ctx context.Context, call llm.FunctionCall) (Result, error) {
	r.mu.RLock()
	entry, ok := r.entries[call.Name]
	r.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: unknown capability %q", ErrUnresolvedIntent, call.Name)
	}

	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return Result{}, fmt.Errorf("%w: arguments for %q are not valid JSON: %v", ErrUnresolvedIntent, call.Name, err)
		}
	}
	if err := validateRequired(entry.def.Parameters, args); err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrUnresolvedIntent, call.Name, err)
	}

	return entry.handler(ctx, args)
}

// validateRequired checks the schema's required list against the decoded
// arguments.
func validateRequired(schema map[string]any, args map[string]any) error {
	required, ok := schema["required"].([]string)
	if !ok {
		// JSON-decoded schemas carry []any.
		anyList, ok := schema["required"].([]any)
		if !ok {
			return nil
		}
		for _, v := range anyList {
			if s, ok := v.(string); ok {
				required = append(required, s)
			}
		}
	}
	for _, name := range required {
		if _, present := args[name]; !present {
			return fmt.Errorf("missing required argument %q", name)
		}
	}
	return nil
}

// VisionFunctionName is the capability the model calls when a reply needs
// the camera feed.
const VisionFunctionName = "image"

// RegisterVision declares the visual-context capability on the registry.
// The handler produces no text; it signals a re-answer with the current
// frame attached.
func RegisterVision(r *Registry) {
	r.Register(llm.FunctionDefinition{
		Name: VisionFunctionName,
		Description: "Called when asked to evaluate something that would require vision capabilities, " +
			"for example, an image, video, or the webcam feed.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_msg": map[string]any{
					"type":        "string",
					"description": "The user message that triggered this function",
				},
			},
			"required": []string{"user_msg"},
		},
	}, func(ctx context.Context, args map[string]any) (Result, error) {
		return Result{ReanswerWithImage: true}, nil
	})
}
