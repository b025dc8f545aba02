// Package tools exposes reminder operations to an LLM agent as named tools
// with JSON-schema parameters and plain-text results.
package tools

import "context"

type Tool interface {
	Name() string
	Description() string
	ParameterSchema() string
	Execute(ctx context.Context, params map[string]any) (string, error)
}
