// Package httprequest provides the HTTP request step handler for workflow actions.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	logpkg "github.com/dandpb/jung-edu-app-sub012/pkg/log"
	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
	"github.com/dandpb/jung-edu-app-sub012/pkg/resilience"
	"github.com/dandpb/jung-edu-app-sub012/pkg/template"
)

const defaultTimeoutSeconds = 30

var (
	// ErrMissingURL is returned when the configuration has no url.
	ErrMissingURL = errors.New("missing or invalid 'url' in configuration")
	// ErrHTTPServerError is returned when the server answers with a 5xx status.
	ErrHTTPServerError = errors.New("server error during HTTP request")
	// ErrHTTPRateLimited is returned when the server answers with 429.
	ErrHTTPRateLimited = errors.New("request was rate limited")
	// ErrHTTPClientError is returned when the server answers with a 4xx status.
	ErrHTTPClientError = errors.New("client error during HTTP request")
)

// Handler performs one HTTP request. The URL, headers, and body support
// templating against the execution context. Retries on retryable failures
// are the engine's job; the handler classifies what went wrong.
type Handler struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
	Timeout time.Duration

	logger *slog.Logger
}

// NewHandler creates an HTTP request handler from configuration.
func NewHandler(config map[string]any) (*Handler, error) {
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, resilience.NewStepError(resilience.FailureValidation, ErrMissingURL)
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	body, _ := config["body"].(string)

	headers := make(map[string]string)

	if headersConfig, exists := config["headers"]; exists {
		if headersMap, ok := headersConfig.(map[string]any); ok {
			for k, v := range headersMap {
				if strVal, ok := v.(string); ok {
					headers[k] = strVal
				}
			}
		}
	}

	timeout := defaultTimeoutSeconds * time.Second
	if seconds, ok := config["timeout_seconds"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds * float64(time.Second))
	}

	return &Handler{
		URL:     url,
		Method:  strings.ToUpper(method),
		Headers: headers,
		Body:    body,
		Timeout: timeout,
		logger:  logpkg.WithModule("http_request_handler"),
	}, nil
}

func (h *Handler) Execute(ctx context.Context, executionCtx *models.ExecutionContext) (*models.StepExecutionResult, error) {
	logger := h.logger.With(
		"execution_id", executionCtx.ID,
		"step_id", executionCtx.StepID,
	)

	req, err := h.buildRequest(ctx, executionCtx)
	if err != nil {
		return nil, resilience.NewStepError(resilience.FailureValidation, err)
	}

	client := &http.Client{Timeout: h.Timeout}

	resp, err := client.Do(req)
	if err != nil {
		kind := resilience.FailureServiceCrash
		if resilience.Classify(err) == resilience.FailureNetworkTimeout {
			kind = resilience.FailureNetworkTimeout
		}

		return nil, resilience.NewStepError(kind, fmt.Errorf("http request failed: %w", err))
	}

	return h.processResponse(ctx, resp, logger)
}

func (h *Handler) buildRequest(ctx context.Context, executionCtx *models.ExecutionContext) (*http.Request, error) {
	urlResult, err := template.RenderWithContext(h.URL, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render url template: %w", err)
	}

	url := template.Stringify(urlResult)

	bodyReader, err := h.buildRequestBody(executionCtx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, h.Method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	for key, value := range h.Headers {
		headerResult, err := template.RenderWithContext(value, executionCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to render header '%s' template: %w", key, err)
		}

		req.Header.Set(key, template.Stringify(headerResult))
	}

	return req, nil
}

func (h *Handler) buildRequestBody(executionCtx *models.ExecutionContext) (io.Reader, error) {
	if h.Body == "" {
		return strings.NewReader(""), nil
	}

	body, err := template.RenderWithContext(h.Body, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render body template: %w", err)
	}

	var bodyBytes []byte
	if str, ok := body.(string); ok {
		bodyBytes = []byte(str)
	} else {
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
	}

	return strings.NewReader(string(bodyBytes)), nil
}

func (h *Handler) processResponse(ctx context.Context, resp *http.Response, logger *slog.Logger) (*models.StepExecutionResult, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewStepError(resilience.FailureServiceCrash, fmt.Errorf("failed to read response body: %w", err))
	}

	var body any

	err = json.Unmarshal(bodyBytes, &body)
	if err != nil {
		body = string(bodyBytes)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, resilience.NewStepError(resilience.FailureServiceCrash,
			fmt.Errorf("%w: status %d", ErrHTTPServerError, resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, resilience.NewStepError(resilience.FailureRateLimit,
			fmt.Errorf("%w: status %d", ErrHTTPRateLimited, resp.StatusCode))
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, resilience.NewStepError(resilience.FailureValidation,
			fmt.Errorf("%w: status %d", ErrHTTPClientError, resp.StatusCode))
	}

	logger.InfoContext(ctx, "HTTP request completed",
		"status_code", resp.StatusCode,
		"body_length", len(bodyBytes),
	)

	return &models.StepExecutionResult{
		Success: true,
		Output: map[string]any{
			"status_code": resp.StatusCode,
			"body":        body,
			"headers":     resp.Header,
		},
	}, nil
}
