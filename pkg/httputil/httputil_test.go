package httputil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/safespacefinder/safespace/pkg/errors"
	"github.com/safespacefinder/safespace/pkg/logger"
	"github.com/safespacefinder/safespace/pkg/validator"
)

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestWriteData(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteData(rec, http.StatusCreated, map[string]int{"safety_score": 87})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"safety_score":87}}`, rec.Body.String())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"app not found", apperrors.NotFound("business", "b1"), http.StatusNotFound, "NOT_FOUND"},
		{"wrapped sentinel not found", fmt.Errorf("get: %w", apperrors.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"already exists", apperrors.ErrAlreadyExists, http.StatusConflict, "ALREADY_EXISTS"},
		{"conflict", apperrors.Conflict("review already rejected"), http.StatusConflict, "CONFLICT"},
		{"invalid input", apperrors.InvalidInput("rating must be between 1 and 5"), http.StatusBadRequest, "INVALID_INPUT"},
		{"forbidden", apperrors.Forbidden("admin only"), http.StatusForbidden, "FORBIDDEN"},
		{"unavailable", apperrors.Unavailable("postgres", fmt.Errorf("dial")), http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/businesses/b1", nil)
			WriteError(rec, req, tt.err, slog.Default())

			assert.Equal(t, tt.wantCode, rec.Code)
			resp := decodeResponse(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantBody, resp.Error.Code)
		})
	}
}

func TestWriteError_InternalIsLoggedAndHidden(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := logger.WithCorrelationID(t.Context(), "corr-1")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reviews", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	WriteError(rec, req, fmt.Errorf("pq: relation does not exist"), l)

	resp := decodeResponse(t, rec)
	assert.Equal(t, "an internal error occurred", resp.Error.Message)
	assert.Equal(t, "corr-1", resp.Error.RequestID)
	assert.Contains(t, buf.String(), "relation does not exist")
}

func TestWriteError_Validation(t *testing.T) {
	type input struct {
		Rating int `json:"rating" validate:"required,gte=1,lte=5"`
	}
	err := validator.Validate(input{Rating: 9})
	require.Error(t, err)

	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodPost, "/", nil), err, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "rating")
}

func TestParseUUID(t *testing.T) {
	rec := httptest.NewRecorder()
	id, ok := ParseUUID(rec, "id", "4b3f2ad2-8b1c-4d0c-9d3a-1f5f8b1c2e11")
	assert.True(t, ok)
	assert.Equal(t, "4b3f2ad2-8b1c-4d0c-9d3a-1f5f8b1c2e11", id.String())

	rec = httptest.NewRecorder()
	_, ok = ParseUUID(rec, "id", "not-a-uuid")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PARAMETER", decodeResponse(t, rec).Error.Code)
}
