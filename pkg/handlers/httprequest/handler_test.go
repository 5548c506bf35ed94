package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
	"github.com/dandpb/jung-edu-app-sub012/pkg/resilience"
)

func testContext() *models.ExecutionContext {
	return models.NewExecutionContext("exec-1", "wf-1", map[string]any{
		"user_id": "u-7",
		"token":   "secret-token",
	}, nil)
}

func TestNewHandlerRequiresURL(t *testing.T) {
	_, err := NewHandler(map[string]any{"method": "GET"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingURL)
	assert.Equal(t, resilience.FailureValidation, resilience.Classify(err))
}

func TestHandlerExecuteSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/users/u-7", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))

		payload, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var decoded map[string]any

		require.NoError(t, json.Unmarshal(payload, &decoded))
		assert.Equal(t, "u-7", decoded["id"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"created": true}`))
	}))
	defer server.Close()

	handler, err := NewHandler(map[string]any{
		"url":    server.URL + "/users/{{.variables.user_id}}",
		"method": "POST",
		"headers": map[string]any{
			"Authorization": "Bearer {{.variables.token}}",
		},
		"body": `{"id": "{{.variables.user_id}}"}`,
	})
	require.NoError(t, err)

	result, err := handler.Execute(context.Background(), testContext())
	require.NoError(t, err)
	require.True(t, result.Success)

	output := result.Output.(map[string]any)
	assert.Equal(t, http.StatusOK, output["status_code"])

	body := output["body"].(map[string]any)
	assert.Equal(t, true, body["created"])
}

func TestHandlerExecuteNonJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	}))
	defer server.Close()

	handler, err := NewHandler(map[string]any{"url": server.URL})
	require.NoError(t, err)

	result, err := handler.Execute(context.Background(), testContext())
	require.NoError(t, err)

	output := result.Output.(map[string]any)
	assert.Equal(t, "pong", output["body"])
}

func TestHandlerExecuteClassifiesStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantKind resilience.FailureKind
		wantErr  error
	}{
		{"server error", http.StatusInternalServerError, resilience.FailureServiceCrash, ErrHTTPServerError},
		{"bad gateway", http.StatusBadGateway, resilience.FailureServiceCrash, ErrHTTPServerError},
		{"rate limited", http.StatusTooManyRequests, resilience.FailureRateLimit, ErrHTTPRateLimited},
		{"client error", http.StatusNotFound, resilience.FailureValidation, ErrHTTPClientError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			handler, err := NewHandler(map[string]any{"url": server.URL})
			require.NoError(t, err)

			result, err := handler.Execute(context.Background(), testContext())
			require.Error(t, err)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantKind, resilience.Classify(err))
		})
	}
}

func TestHandlerExecuteTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	handler, err := NewHandler(map[string]any{
		"url":             server.URL,
		"timeout_seconds": 0.05,
	})
	require.NoError(t, err)

	_, err = handler.Execute(context.Background(), testContext())
	require.Error(t, err)
	assert.Equal(t, resilience.FailureNetworkTimeout, resilience.Classify(err))
	assert.True(t, resilience.IsRetryable(err))
}

func TestHandlerExecuteConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	server.Close() // Shut down so the port refuses connections.

	handler, err := NewHandler(map[string]any{"url": server.URL})
	require.NoError(t, err)

	_, err = handler.Execute(context.Background(), testContext())
	require.Error(t, err)
	assert.Equal(t, resilience.FailureServiceCrash, resilience.Classify(err))
	assert.True(t, resilience.IsRetryable(err))
}

func TestHandlerExecuteInvalidURLTemplate(t *testing.T) {
	handler, err := NewHandler(map[string]any{"url": "http://example.com/{{.variables.broken"})
	require.NoError(t, err)

	_, err = handler.Execute(context.Background(), testContext())
	require.Error(t, err)

	var stepErr *resilience.StepError

	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, resilience.FailureValidation, stepErr.Kind)
}
