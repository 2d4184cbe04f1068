package httputil

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	WriteJSON(w, http.StatusOK, map[string]int{"inserted": 3})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"inserted": 3}`, w.Body.String())
}

func TestWriteJSON_EncodeFailure(t *testing.T) {
	w := httptest.NewRecorder()

	WriteJSON(w, http.StatusOK, math.NaN())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error": "Failed to encode response"}`, w.Body.String())
}

func TestWriteJSONError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.JSONEq(t, `{"error": "Method not allowed"}`, w.Body.String())
}
