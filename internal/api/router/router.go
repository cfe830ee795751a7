// Package router はHTTPルーティングを定義する
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/deedeoliveira/GRIDD-OpenDT/internal/api/handler"
)

// Handlers はルーティング対象のハンドラー群
type Handlers struct {
	Reservation *handler.ReservationHandler
	Asset       *handler.AssetHandler
	Health      *handler.HealthHandler
}

// Register は /health と /api/v1 配下のルートを登録する
func Register(e *echo.Echo, h Handlers) {
	e.GET("/health", h.Health.Check)

	v1 := e.Group("/api/v1")

	v1.POST("/reservations", h.Reservation.Create)
	v1.POST("/reservations/checkin", h.Reservation.CheckIn)
	v1.POST("/reservations/checkout", h.Reservation.CheckOut)
	v1.GET("/reservations/asset/:asset_id", h.Reservation.ListByAsset)
	v1.GET("/reservations/actor/:actor_id", h.Reservation.ListByActor)
	v1.GET("/reservations/:id", h.Reservation.GetByID)
	v1.POST("/reservations/:id/cancel", h.Reservation.Cancel)
	v1.POST("/reservations/:id/approve", h.Reservation.Approve)

	v1.GET("/assets/versions/:version_id", h.Asset.ListByVersion)
	v1.GET("/assets/versions/:version_id/spaces/:space_id", h.Asset.ListBySpace)
	v1.GET("/assets/:asset_id/versions/:version_id", h.Asset.GetByID)
	v1.PUT("/assets/:asset_id/versions/:version_id", h.Asset.Publish)
	v1.GET("/assets/:asset_id/versions/:version_id/availability", h.Asset.Availability)
}
