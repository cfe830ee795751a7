package application

import (
	"context"
	"time"

	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/asset"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/reservation"
)

// Conflict は重複している予約の診断情報
type Conflict struct {
	ReservationID int64
	Status        reservation.Status
	Start         time.Time
	End           time.Time
}

// Availability は空き状況の判定結果
type Availability struct {
	Available bool
	Conflicts []Conflict
}

// AvailabilityService はアセットの空き状況を判定する。読み取りのみ
type AvailabilityService struct {
	repo    reservation.Repository
	catalog asset.Catalog
}

func NewAvailabilityService(repo reservation.Repository, catalog asset.Catalog) *AvailabilityService {
	return &AvailabilityService{repo: repo, catalog: catalog}
}

// CheckAvailability は [start, end) に重なる approved / in_use 予約を返す。
// 端点が接するだけの予約は重複に含めない
func (s *AvailabilityService) CheckAvailability(ctx context.Context, assetID, versionID int64, start, end time.Time) (*Availability, error) {
	iv, err := reservation.NewInterval(start, end)
	if err != nil {
		return nil, err
	}
	if _, err := s.catalog.GetByID(ctx, assetID, versionID); err != nil {
		return nil, err
	}

	overlapping, err := s.repo.FindOverlapping(ctx, nil, assetID, reservation.BlockingStatuses, iv)
	if err != nil {
		return nil, err
	}

	result := &Availability{Conflicts: make([]Conflict, 0, len(overlapping))}
	for _, r := range overlapping {
		result.Conflicts = append(result.Conflicts, Conflict{
			ReservationID: r.ID,
			Status:        r.Status,
			Start:         r.Interval.Start,
			End:           r.Interval.End,
		})
	}
	result.Available = len(result.Conflicts) == 0
	return result, nil
}
