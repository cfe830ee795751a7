package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/apperror"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/asset"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/reservation"
)

func serveError(t *testing.T, err error) (*httptest.ResponseRecorder, ErrorResponse) {
	t.Helper()
	e := echo.New()
	e.HTTPErrorHandler = CustomHTTPErrorHandler
	e.GET("/", func(c echo.Context) error { return err })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestCustomHTTPErrorHandler_DomainErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"validation", reservation.ErrInvalidInterval, http.StatusBadRequest, "validation"},
		{"conflict", reservation.ErrAssetAlreadyReserved, http.StatusConflict, "conflict"},
		{"not_found", asset.ErrAssetNotFound, http.StatusNotFound, "not_found"},
		{"authorization", reservation.ErrNotReservationOwner, http.StatusForbidden, "authorization"},
		{"policy", reservation.ErrCancellationTooLate, http.StatusUnprocessableEntity, "policy"},
		{"ラップされたエラー", fmt.Errorf("予約作成: %w", reservation.ErrActorOverlap), http.StatusConflict, "conflict"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := serveError(t, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.status, body.Code)
			assert.Equal(t, tt.kind, body.Kind)
			assert.Equal(t, tt.err.Error(), body.Error)
		})
	}
}

func TestCustomHTTPErrorHandler_PersistenceHidesDetails(t *testing.T) {
	rec, body := serveError(t, apperror.Persistence("予約の保存", errors.New("connection refused")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "persistence", body.Kind)
	assert.NotContains(t, body.Error, "connection refused")
}

func TestCustomHTTPErrorHandler_HTTPError(t *testing.T) {
	rec, body := serveError(t, echo.NewHTTPError(http.StatusUnauthorized, "アクターIDが必要です"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "authorization", body.Kind)
	assert.Equal(t, "アクターIDが必要です", body.Error)
}

func TestCustomHTTPErrorHandler_RouteNotFound(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = CustomHTTPErrorHandler

	req := httptest.NewRequest(http.MethodGet, "/unknown", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"not_found"`)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusOK, StatusCode(nil))
	assert.Equal(t, http.StatusConflict, StatusCode(reservation.ErrConcurrentModification))
	assert.Equal(t, http.StatusTeapot, StatusCode(echo.NewHTTPError(http.StatusTeapot)))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(errors.New("unknown")))
}

func TestCustomValidator(t *testing.T) {
	type request struct {
		Name string `validate:"required"`
	}
	v := NewValidator()

	assert.NoError(t, v.Validate(&request{Name: "a"}))

	err := v.Validate(&request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}
