// Package selfupdate exposes the running build's version metadata as an
// LLM-callable tool (SUPPLEMENTED FEATURES item 1). There is no actual
// update mechanic here: applying an update would mean supervising and
// restarting the process, which is out of scope for a package inside
// this binary.
package selfupdate

import (
	"context"
	"encoding/json"

	"github.com/noble1911/butler/internal/buildinfo"
)

// Tool reports the running build's version/commit/date.
type Tool struct{}

// NewTool builds a selfupdate Tool.
func NewTool() *Tool { return &Tool{} }

func (t *Tool) Name() string { return "self_version" }

func (t *Tool) Description() string {
	return "Reports the running build's version, commit, and build date. Does not perform an update."
}

func (t *Tool) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
		"required":   []string{},
	}
}

func (t *Tool) Execute(_ context.Context, _ json.RawMessage) (string, error) {
	return buildinfo.String(), nil
}
