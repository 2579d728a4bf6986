package controller

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SunnyC0d3/booking-system-sub009/core/errors"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorResponseMapsCodes(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   errors.ErrorCode
	}{
		{errors.NewAppError(errors.ErrStateInvalidOrExpired, "expired", nil), http.StatusBadRequest, errors.ErrStateInvalidOrExpired},
		{errors.NewAppError(errors.ErrForbidden, "nope", nil), http.StatusForbidden, errors.ErrForbidden},
		{errors.NewAppError(errors.ErrDataConflict, "overlap", nil), http.StatusConflict, errors.ErrDataConflict},
		{errors.NewAppError(errors.ErrProviderUnavailable, "down", nil), http.StatusBadGateway, errors.ErrProviderUnavailable},
		{fmt.Errorf("wrapped: %w", errors.NewAppError(errors.ErrNotFound, "missing", nil)), http.StatusNotFound, errors.ErrNotFound},
		{fmt.Errorf("boom"), http.StatusInternalServerError, errors.ErrInternalServer},
	}

	h := NewBaseController()
	for _, tc := range cases {
		e := echo.New()
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

		require.NoError(t, h.ErrorResponse(c, tc.err))
		assert.Equal(t, tc.status, rec.Code)

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.code, body.Code)
	}
}

func TestValidationErrorCarriesFieldErrors(t *testing.T) {
	h := NewBaseController()
	fields := []ValidationError{NewValidationError("end", "must be after start")}

	httpErr := h.ValidationError("Invalid time window", fields)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)

	body, ok := httpErr.Message.(*ErrorResponse)
	require.True(t, ok)
	assert.Equal(t, errors.ErrInvalidInput, body.Code)
	assert.Equal(t, "Invalid time window", body.Message)
	assert.Equal(t, fields, body.Details)
}
