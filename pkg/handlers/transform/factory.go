package transform

import (
	"github.com/dandpb/jung-edu-app-sub012/pkg/protocol"
)

// Factory creates transform handlers.
type Factory struct{}

// NewFactory creates a transform handler factory.
func NewFactory() *Factory {
	return &Factory{}
}

func (*Factory) ID() string {
	return "transform"
}

func (*Factory) Name() string {
	return "Transform"
}

func (*Factory) Description() string {
	return "Transforms execution data using a template expression. Object expressions are rendered field by field."
}

func (f *Factory) Create(config map[string]any) (protocol.StepHandler, error) {
	return NewHandler(config)
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"description": "Template expression to evaluate. A string renders directly; an object renders every string leaf.",
				"examples": []any{
					"{{.step_results.fetch_users.body}}",
					map[string]any{
						"full_name": "{{.variables.first}} {{.variables.last}}",
						"active":    "{{.step_results.check.body.active}}",
					},
				},
			},
			"output_var": map[string]any{
				"type":        "string",
				"description": "Optional variable name to store the result under, in addition to the step output.",
			},
		},
		"required": []string{"expression"},
	}
}
