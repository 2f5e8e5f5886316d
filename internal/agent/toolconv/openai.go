// Package toolconv converts between the registry's OpenAI-shaped tool
// schema and the Anthropic-shaped schema the primary provider expects, per
// spec §6: "the registry's OpenAI-shaped schema {type, function: {name,
// description, parameters}} is unwrapped to {name, description,
// input_schema: parameters} at LLM-call time."
package toolconv

import "github.com/noble1911/butler/internal/agent"

// OpenAIFunction is the {type, function: {...}} tool wrapper OpenAI's
// function-calling API expects.
type OpenAIFunction struct {
	Type     string             `json:"type"`
	Function OpenAIFunctionBody `json:"function"`
}

// OpenAIFunctionBody is the inner function description.
type OpenAIFunctionBody struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToOpenAI wraps a provider-agnostic ToolSchema in the OpenAI function-call
// shape, used when the failover provider is an OpenAI-compatible endpoint.
func ToOpenAI(schema agent.ToolSchema) OpenAIFunction {
	return OpenAIFunction{
		Type: "function",
		Function: OpenAIFunctionBody{
			Name:        schema.Name,
			Description: schema.Description,
			Parameters:  schema.InputSchema,
		},
	}
}

// FromOpenAI unwraps an OpenAI-shaped tool definition into the
// provider-agnostic ToolSchema (Anthropic's {name, description, input_schema}
// shape).
func FromOpenAI(fn OpenAIFunction) agent.ToolSchema {
	return agent.ToolSchema{
		Name:        fn.Function.Name,
		Description: fn.Function.Description,
		InputSchema: fn.Function.Parameters,
	}
}
