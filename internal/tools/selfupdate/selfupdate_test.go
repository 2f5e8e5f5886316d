package selfupdate

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestToolReportsVersion(t *testing.T) {
	tool := NewTool()

	result, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !strings.Contains(result, "dev") {
		t.Fatalf("unexpected result: %q", result)
	}
}
