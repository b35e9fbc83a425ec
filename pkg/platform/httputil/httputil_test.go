package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "till/pkg/domain-errors"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteErrorInternalOmitsMessage(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "internal", body.Error)
	assert.Empty(t, body.Message)
}

func TestWriteErrorClientCodesCarryMessage(t *testing.T) {
	cases := []struct {
		code   dErrors.Code
		status int
	}{
		{dErrors.CodeBadRequest, http.StatusBadRequest},
		{dErrors.CodeInvalidInput, http.StatusBadRequest},
		{dErrors.CodeUnauthorized, http.StatusUnauthorized},
		{dErrors.CodeForbidden, http.StatusForbidden},
		{dErrors.CodeNotFound, http.StatusNotFound},
		{dErrors.CodeConflict, http.StatusConflict},
		{dErrors.CodeUnprocessable, http.StatusUnprocessableEntity},
		{dErrors.CodeUnavailable, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, dErrors.New(tc.code, "what went wrong"))

			assert.Equal(t, tc.status, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, string(tc.code), body.Error)
			assert.Equal(t, "what went wrong", body.Message)
		})
	}
}

func TestWriteErrorUncodedErrorIsInternal(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, errors.New("raw infrastructure failure"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "internal", body.Error)
	assert.Empty(t, body.Message)
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, map[string]int64{"total_cents": 1800})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var body map[string]int64
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, int64(1800), body["total_cents"])
}
