package agent

import (
	"context"
	"encoding/json"
	"testing"
)

type stubTool struct {
	name   string
	schema map[string]any
}

func (s stubTool) Name() string              { return s.name }
func (s stubTool) Description() string       { return "stub" }
func (s stubTool) Schema() map[string]any    { return s.schema }
func (s stubTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	return "ok", nil
}

func TestToolRegistry_RegisterAndGet(t *testing.T) {
	r := NewToolRegistry()
	tool := stubTool{name: "weather"}
	if err := r.Register(tool, ""); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	got, ok := r.Get("weather")
	if !ok {
		t.Fatal("expected tool to be registered")
	}
	if got.Name() != "weather" {
		t.Errorf("Name = %q, want %q", got.Name(), "weather")
	}
}

func TestToolRegistry_DuplicateRegistration(t *testing.T) {
	r := NewToolRegistry()
	tool := stubTool{name: "weather"}
	if err := r.Register(tool, ""); err != nil {
		t.Fatalf("first Register error: %v", err)
	}
	if err := r.Register(tool, ""); err == nil {
		t.Fatal("expected error on duplicate registration")
	}
}

func TestToolRegistry_FilterForUser(t *testing.T) {
	r := NewToolRegistry()
	_ = r.Register(stubTool{name: "open_tool"}, "")
	_ = r.Register(stubTool{name: "media_tool"}, "media")
	_ = r.Register(stubTool{name: "admin_tool"}, "admin_only")

	tests := []struct {
		name        string
		permissions []string
		want        []string
	}{
		{"no permissions", nil, []string{"open_tool"}},
		{"media permission", []string{"media"}, []string{"media_tool", "open_tool"}},
		{"admin unlocks everything", []string{"admin"}, []string{"admin_tool", "media_tool", "open_tool"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.FilterForUser(tt.permissions)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d tools, want %d (%v)", len(got), len(tt.want), got)
			}
			for _, name := range tt.want {
				if _, ok := got[name]; !ok {
					t.Errorf("expected %q to be present", name)
				}
			}
		})
	}
}
