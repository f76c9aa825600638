package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForCLI(t *testing.T) {
	err := New(ErrCodeInvalidTopK, "topK must be positive", nil).
		WithSuggestion("Pass --top-k 1 or more")

	result := FormatForCLI(err)

	assert.Equal(t, "Error: topK must be positive\n  Hint: Pass --top-k 1 or more\n  Code: ERR_403_INVALID_TOP_K\n", result)
}

func TestFormatForCLI_Cause(t *testing.T) {
	err := ProviderError("Ollama is not running", errors.New("connection refused"))

	result := FormatForCLI(err)

	assert.Contains(t, result, "  Cause: connection refused\n")
	assert.Contains(t, result, "Code: ERR_302_PROVIDER_FAILED")
}

func TestFormatForCLI_PlainError(t *testing.T) {
	assert.Equal(t, "Error: no candidates given\n", FormatForCLI(errors.New("no candidates given")))
	assert.Equal(t, "", FormatForCLI(nil))
}

func TestFormatJSON(t *testing.T) {
	// Given: a detailed error with a cause
	err := ProviderError("embedding request failed", errors.New("status 502")).
		WithDetail("model", "nomic-embed-text")

	// When: formatting as JSON
	data, fmtErr := FormatJSON(err)
	require.NoError(t, fmtErr)

	// Then: fields round out the machine-readable form
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ErrCodeProviderFailed, decoded["code"])
	assert.Equal(t, "PROVIDER", decoded["category"])
	assert.Equal(t, "status 502", decoded["cause"])
	assert.Equal(t, true, decoded["retryable"])
	assert.Equal(t, float64(HTTPStatus(err)), decoded["http_status"])
	assert.Equal(t, "nomic-embed-text", decoded["details"].(map[string]any)["model"])
}

func TestFormatJSON_PlainErrorIsInternal(t *testing.T) {
	data, err := FormatJSON(errors.New("disk on fire"))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ErrCodeInternal, decoded["code"])
	assert.Equal(t, "disk on fire", decoded["cause"])
}

func TestLogAttr(t *testing.T) {
	// Given: a JSON logger
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	// When: logging a coded error
	err := New(ErrCodeInvalidInput, "candidates required", nil).WithDetail("field", "folders")
	logger.Info("tool_failed", LogAttr(err))

	// Then: it is one nested group
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	group, ok := entry["error"].(map[string]any)
	require.True(t, ok, buf.String())
	assert.Equal(t, ErrCodeInvalidInput, group["code"])
	assert.Equal(t, "VALIDATION", group["category"])
	assert.Equal(t, "folders", group["field"])

	assert.True(t, slog.String("error", "plain").Equal(LogAttr(errors.New("plain"))))
}
