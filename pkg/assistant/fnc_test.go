package assistant

import (
	"context"
	"errors"
	"testing"

	"github.com/alloyvoice/alloy-go/pkg/ai/llm"
)

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry()
	var gotArgs map[string]any
	reg.Register(llm.FunctionDefinition{
		Name: "lookup",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
			},
			"required": []string{"query"},
		},
	}, func(ctx context.Context, args map[string]any) (Result, error) {
		gotArgs = args
		return Result{}, nil
	})

	_, err := reg.Resolve(context.Background(), llm.FunctionCall{
		Name:      "lookup",
		Arguments: `{"query":"weather"}`,
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if gotArgs["query"] != "weather" {
		t.Errorf("handler args = %v", gotArgs)
	}
}

func TestRegistryResolveUnknownName(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Resolve(context.Background(), llm.FunctionCall{Name: "nope"})
	if !errors.Is(err, ErrUnresolvedIntent) {
		t.Errorf("unknown capability error = %v, want ErrUnresolvedIntent", err)
	}
}

func TestRegistryResolveBadArguments(t *testing.T) {
	reg := NewRegistry()
	RegisterVision(reg)

	tests := []struct {
		name string
		args string
	}{
		{"invalid json", `{"user_msg":`},
		{"missing required", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Resolve(context.Background(), llm.FunctionCall{
				Name:      VisionFunctionName,
				Arguments: tt.args,
			})
			if !errors.Is(err, ErrUnresolvedIntent) {
				t.Errorf("error = %v, want ErrUnresolvedIntent", err)
			}
		})
	}
}

func TestRegistryResolveHandlerError(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("boom")
	reg.Register(llm.FunctionDefinition{Name: "flaky"}, func(ctx context.Context, args map[string]any) (Result, error) {
		return Result{}, boom
	})

	_, err := reg.Resolve(context.Background(), llm.FunctionCall{Name: "flaky"})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want handler error", err)
	}
	if errors.Is(err, ErrUnresolvedIntent) {
		t.Error("handler failure must not read as an unresolved intent")
	}
}

func TestRegisterVision(t *testing.T) {
	reg := NewRegistry()
	RegisterVision(reg)

	defs := reg.Definitions()
	if len(defs) != 1 {
		t.Fatalf("registry has %d definitions, want 1", len(defs))
	}
	if defs[0].Name != VisionFunctionName {
		t.Errorf("definition name = %q", defs[0].Name)
	}

	res, err := reg.Resolve(context.Background(), llm.FunctionCall{
		Name:      VisionFunctionName,
		Arguments: `{"user_msg":"what am I holding?"}`,
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !res.ReanswerWithImage {
		t.Error("vision capability did not request a re-answer with the frame")
	}
}
