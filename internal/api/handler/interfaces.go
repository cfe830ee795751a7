package handler

import (
	"context"
	"time"

	"github.com/deedeoliveira/GRIDD-OpenDT/internal/application"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/asset"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/reservation"
)

// ReservationServiceInterface は予約サービスのインターフェース
type ReservationServiceInterface interface {
	CreateReservation(ctx context.Context, input application.CreateReservationInput) (*reservation.Reservation, error)
	CheckIn(ctx context.Context, assetID int64, actorID string) (*application.LifecycleResult, error)
	CheckOut(ctx context.Context, assetID int64, actorID string) (*application.LifecycleResult, error)
	CancelReservation(ctx context.Context, reservationID int64, actorID string) (*application.LifecycleResult, error)
	ApproveReservation(ctx context.Context, reservationID int64) (*reservation.Reservation, error)
	GetReservation(ctx context.Context, id int64) (*reservation.Reservation, error)
	ListByAsset(ctx context.Context, assetID int64) ([]*reservation.Reservation, error)
	ListByActor(ctx context.Context, actorID string) ([]*reservation.Reservation, error)
}

// AvailabilityServiceInterface は空き状況サービスのインターフェース
type AvailabilityServiceInterface interface {
	CheckAvailability(ctx context.Context, assetID, versionID int64, start, end time.Time) (*application.Availability, error)
}

// AssetServiceInterface はアセットカタログサービスのインターフェース
type AssetServiceInterface interface {
	PublishAsset(ctx context.Context, a *asset.Asset) (*asset.Asset, error)
	GetAsset(ctx context.Context, id, versionID int64) (*asset.Asset, error)
	ListByVersion(ctx context.Context, versionID int64) ([]*asset.Asset, error)
	ListBySpace(ctx context.Context, spaceID, versionID int64) ([]*asset.Asset, error)
}
