package delay

import (
	"github.com/dandpb/jung-edu-app-sub012/pkg/protocol"
)

// Factory creates delay handlers.
type Factory struct{}

// NewFactory creates a delay handler factory.
func NewFactory() *Factory {
	return &Factory{}
}

func (*Factory) ID() string {
	return "delay"
}

func (*Factory) Name() string {
	return "Delay"
}

func (*Factory) Description() string {
	return "Waits for a configured duration before continuing."
}

func (f *Factory) Create(config map[string]any) (protocol.StepHandler, error) {
	return NewHandler(config)
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"duration_ms": map[string]any{
				"type":        "number",
				"description": "How long to wait, in milliseconds",
				"minimum":     1,
			},
			"duration_seconds": map[string]any{
				"type":        "number",
				"description": "How long to wait, in seconds. Ignored when duration_ms is set.",
				"minimum":     0.001,
			},
		},
	}
}
