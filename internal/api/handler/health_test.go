package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deedeoliveira/GRIDD-OpenDT/internal/application"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/asset"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/reservation"
)

func TestHealthHandler_Check(t *testing.T) {
	// Setup
	e := NewTestEcho()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := NewHealthHandler()

	// Act
	err := h.Check(c)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"timestamp"`)
}

func TestNewHealthHandler(t *testing.T) {
	h := NewHealthHandler()
	assert.NotNil(t, h)
}

func TestHealthHandler_Dependencies(t *testing.T) {
	e := NewTestEcho()
	up := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: connection refused") }

	t.Run("全ての依存先が応答すれば200", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		h := NewHealthHandler(HealthCheck{Name: "database", Check: up}, HealthCheck{Name: "redis", Check: up})

		require.NoError(t, h.Check(c))

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, map[string]string{"database": "ok", "redis": "ok"}, resp.Checks)
	})

	t.Run("データベースに接続できなければ503", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		h := NewHealthHandler(HealthCheck{Name: "database", Check: down}, HealthCheck{Name: "redis", Check: up})

		require.NoError(t, h.Check(c))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "unavailable", resp.Status)
		assert.Equal(t, "unavailable", resp.Checks["database"])
		assert.Equal(t, "ok", resp.Checks["redis"])
		assert.NotContains(t, rec.Body.String(), "connection refused")
	})

	t.Run("確認はタイムアウト付きのコンテキストで行う", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		var hasDeadline bool
		h := NewHealthHandler(HealthCheck{Name: "database", Check: func(ctx context.Context) error {
			_, hasDeadline = ctx.Deadline()
			return nil
		}})

		require.NoError(t, h.Check(c))
		assert.True(t, hasDeadline)
	})
}

func TestToReservationResponse(t *testing.T) {
	r := newTestReservation(1, reservation.StatusCompleted)
	checkin := testStart.Add(-2 * time.Minute)
	r.CheckinTime = &checkin

	resp := toReservationResponse(r)

	assert.Equal(t, r.ID, resp.ID)
	assert.Equal(t, r.AssetID, resp.AssetID)
	assert.Equal(t, r.ActorID, resp.ActorID)
	assert.Equal(t, r.Interval.Start, resp.Start)
	assert.Equal(t, r.Interval.End, resp.End)
	assert.Equal(t, string(r.Status), resp.Status)
	assert.Equal(t, r.CheckinTime, resp.CheckinTime)
	assert.Equal(t, r.CreatedAt, resp.CreatedAt)
}

func TestToAssetResponse(t *testing.T) {
	a := &asset.Asset{ID: 7, Kind: asset.KindSpace, Reservable: false, ModelVersionID: 3}

	resp := toAssetResponse(a)

	assert.Equal(t, a.ID, resp.ID)
	assert.Equal(t, "space", resp.Kind)
	assert.False(t, resp.Reservable)
	assert.Nil(t, resp.CurrentSpaceID)
	assert.Equal(t, a.ModelVersionID, resp.ModelVersionID)
}

func TestToAvailabilityResponse_EmptyConflicts(t *testing.T) {
	resp := toAvailabilityResponse(&application.Availability{Available: true})

	assert.True(t, resp.Available)
	assert.NotNil(t, resp.Conflicts)
	assert.Empty(t, resp.Conflicts)
}
