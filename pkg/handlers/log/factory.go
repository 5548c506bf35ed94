package log

import (
	"github.com/dandpb/jung-edu-app-sub012/pkg/protocol"
)

// Factory creates log handlers.
type Factory struct{}

// NewFactory creates a log handler factory.
func NewFactory() *Factory {
	return &Factory{}
}

func (*Factory) ID() string {
	return "log"
}

func (*Factory) Name() string {
	return "Log"
}

func (*Factory) Description() string {
	return "Logs a message at a specified level. Supports templating for dynamic content."
}

func (f *Factory) Create(config map[string]any) (protocol.StepHandler, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewHandler(config), nil
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "The message to log. Supports templating for dynamic content.",
				"examples": []string{
					"Workflow step completed successfully",
					"Processing order {{.variables.order_id}}",
					"Fetched {{len .step_results.fetch_users.body}} records at {{now}}",
				},
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level for the message",
				"default":     "info",
				"enum":        []string{"debug", "info", "warn", "warning", "error"},
			},
		},
		"required": []string{"message"},
	}
}
