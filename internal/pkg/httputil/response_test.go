package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSONAndErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, map[string]int{"written": 3})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"written":3}`, rec.Body.String())

	rec = httptest.NewRecorder()
	Conflict(rec, "lock_busy", "try again shortly")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"try again shortly","code":"lock_busy"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	Unprocessable(rec, "missing_column", `sheet "A": missing required column order_id`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	InternalError(rec, assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestDecode(t *testing.T) {
	var dst struct {
		Lookback int `json:"lookback_days"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"lookback_days":7}`))
	assert.True(t, Decode(httptest.NewRecorder(), req, &dst))
	assert.Equal(t, 7, dst.Lookback)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	assert.True(t, Decode(httptest.NewRecorder(), req, &dst))

	rec := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{nope"))
	assert.False(t, Decode(rec, req, &dst))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
