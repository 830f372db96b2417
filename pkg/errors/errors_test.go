package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAs(t *testing.T) {
	notFound := NewNotFoundError("spot not found")
	wrapped := fmt.Errorf("delete: %w", notFound)

	assert.Same(t, notFound, As(wrapped))

	plain := stderrors.New("boom")
	got := As(plain)
	assert.Equal(t, ErrorTypeInternal, got.Type)
	assert.Equal(t, http.StatusInternalServerError, got.StatusCode)
	assert.ErrorIs(t, got, plain)
}

func TestWrite(t *testing.T) {
	rec := httptest.NewRecorder()
	appErr := NewValidationError("invalid status", map[string]interface{}{"status": "archived"})

	require.NoError(t, Write(rec, appErr, "req-1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ErrorTypeValidation, resp.Error.Type)
	assert.Equal(t, "invalid status", resp.Error.Message)
	assert.Equal(t, "req-1", resp.Error.RequestID)
	assert.Equal(t, "archived", resp.Error.Details["status"])
	assert.NotEmpty(t, resp.Error.Timestamp)
}

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "not_found: missing", NewNotFoundError("missing").Error())
	assert.Equal(t, "external: upstream failed (timeout)",
		NewExternalError("upstream failed", stderrors.New("timeout")).Error())
}
