package httprequest

import (
	"net/http"

	"github.com/dandpb/jung-edu-app-sub012/pkg/protocol"
)

// Factory creates HTTP request handlers.
type Factory struct{}

// NewFactory creates an HTTP request handler factory.
func NewFactory() *Factory {
	return &Factory{}
}

func (*Factory) ID() string {
	return "http_request"
}

func (*Factory) Name() string {
	return "HTTP Request"
}

func (*Factory) Description() string {
	return "Performs an HTTP request to a specified URL with optional headers and body."
}

func (f *Factory) Create(config map[string]any) (protocol.StepHandler, error) {
	return NewHandler(config)
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to send the HTTP request to. Supports templating with step results.",
				"examples": []string{
					"https://api.example.com/users",
					"https://api.example.com/users/{{.step_results.get_user.body.id}}",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use",
				"default":     http.MethodGet,
				"enum": []string{
					http.MethodGet, http.MethodPost, http.MethodPut,
					http.MethodDelete, http.MethodPatch, http.MethodHead, http.MethodOptions,
				},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "HTTP headers to include in the request. Values support templating.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
			"body": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Request body content. Supports templating for dynamic JSON or text content.",
				"examples": []string{
					`{"name": "Ada Lovelace", "email": "ada@example.com"}`,
					`{"user_id": "{{.step_results.create_user.body.id}}", "status": "active"}`,
				},
			},
			"timeout_seconds": map[string]any{
				"type":        "number",
				"description": "Request timeout in seconds",
				"default":     30,
				"minimum":     1,
			},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
}
