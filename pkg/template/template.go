// Package template renders expressions in step configs, branch conditions and
// loop guards against the execution context.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
)

// ContextData builds the data map expressions are evaluated against. The keys
// mirror models.ReservedContextKeys. Step results surface as their outputs:
// expressions read .step_results.fetch.body, not the result envelope.
func ContextData(executionCtx *models.ExecutionContext) map[string]any {
	stepResults := make(map[string]any, len(executionCtx.StepResults))

	for id, result := range executionCtx.StepResults {
		if result == nil {
			continue
		}

		stepResults[id] = result.Output
	}

	return map[string]any{
		"step_results": stepResults,
		"variables":    executionCtx.Variables,
		"vars":         executionCtx.Variables, // .vars is the short alias for .variables
		"metadata":     executionCtx.Metadata,
		"env":          getEnvVars(),
		"execution": map[string]any{
			"id":          executionCtx.ID,
			"workflow_id": executionCtx.WorkflowID,
			"step_id":     executionCtx.StepID,
		},
	}
}

// RenderWithContext renders one expression against the execution context.
func RenderWithContext(input string, executionCtx *models.ExecutionContext) (any, error) {
	return Render(input, ContextData(executionCtx))
}

// Render parses and executes a template, then coerces the output: JSON-shaped
// results decode to maps/slices, numerics to float64, booleans to bool, and
// everything else stays a string.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("expression").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}

				num := make([]byte, 1)
				if _, err := rand.Read(num); err != nil {
					return 0
				}

				return int(num[0]) % max
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		if err := json.Unmarshal([]byte(result), &jsonResult); err != nil {
			return nil, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
		}

		return jsonResult, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderString renders and stringifies, for config fields that must stay text.
func RenderString(templateStr string, data any) (string, error) {
	out, err := Render(templateStr, data)
	if err != nil {
		return "", err
	}

	return Stringify(out), nil
}

// EvaluateBool renders a condition expression and coerces the outcome to a
// boolean. Numbers are true when non-zero; strings follow strconv.ParseBool.
func EvaluateBool(expression string, data any) (bool, error) {
	out, err := Render(expression, data)
	if err != nil {
		return false, err
	}

	switch v := out.(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("condition '%s' did not produce a boolean: %q", expression, v)
		}

		return b, nil
	default:
		return false, fmt.Errorf("condition '%s' did not produce a boolean", expression)
	}
}

// Stringify renders an evaluated value as a branch tag: booleans become
// "true"/"false", integral floats drop the decimal point.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}

		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}

		return string(encoded)
	}
}

// RenderConfig renders every string value in a config map, recursing into
// nested maps and slices. Non-string values pass through untouched.
func RenderConfig(config map[string]any, data map[string]any) (map[string]any, error) {
	rendered := make(map[string]any, len(config))

	for key, value := range config {
		out, err := renderConfigValue(value, data)
		if err != nil {
			return nil, fmt.Errorf("config key %q: %w", key, err)
		}

		rendered[key] = out
	}

	return rendered, nil
}

func renderConfigValue(value any, data map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		if !strings.Contains(v, "{{") {
			return v, nil
		}

		return Render(v, data)
	case map[string]any:
		return RenderConfig(v, data)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			rendered, err := renderConfigValue(item, data)
			if err != nil {
				return nil, err
			}

			out[i] = rendered
		}

		return out, nil
	default:
		return v, nil
	}
}

// getEnvVars returns environment variables as a map.
func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
