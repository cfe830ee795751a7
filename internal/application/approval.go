package application

import (
	"context"

	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/reservation"
)

// ApprovalPolicy は pending 予約を承認してよいかを判定する。
// 承認のトリガーと権限モデルは運用側で差し替える
type ApprovalPolicy interface {
	Allow(ctx context.Context, r *reservation.Reservation) error
}

// ManualApproval は承認操作の呼び出し元をすべて許可する既定のポリシー
type ManualApproval struct{}

func (ManualApproval) Allow(context.Context, *reservation.Reservation) error { return nil }

// ApprovalFunc は関数を ApprovalPolicy として使うためのアダプター
type ApprovalFunc func(ctx context.Context, r *reservation.Reservation) error

func (f ApprovalFunc) Allow(ctx context.Context, r *reservation.Reservation) error { return f(ctx, r) }
