package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/deedeoliveira/GRIDD-OpenDT/internal/application"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/reservation"
)

// ActorIDHeader は操作主体を示すリクエストヘッダー
const ActorIDHeader = "X-Actor-ID"

type ReservationHandler struct {
	service ReservationServiceInterface
}

func NewReservationHandler(s ReservationServiceInterface) *ReservationHandler {
	return &ReservationHandler{service: s}
}

type CreateReservationRequest struct {
	AssetID int64  `json:"asset_id" validate:"required,gt=0" example:"5"`
	Start   string `json:"start" validate:"required" example:"2026-03-02T10:00:00Z"`
	End     string `json:"end" validate:"required" example:"2026-03-02T11:00:00Z"`
}

// AssetActionRequest はチェックイン・チェックアウトのリクエスト
type AssetActionRequest struct {
	AssetID int64 `json:"asset_id" validate:"required,gt=0" example:"5"`
}

type ReservationResponse struct {
	ID          int64      `json:"id" example:"1"`
	AssetID     int64      `json:"asset_id" example:"5"`
	ActorID     string     `json:"actor_id" example:"alice"`
	Start       time.Time  `json:"start"`
	End         time.Time  `json:"end"`
	Status      string     `json:"status" example:"pending"`
	CheckinTime *time.Time `json:"checkin_time,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// LifecycleResponse はチェックイン・チェックアウト・キャンセルのレスポンス
type LifecycleResponse struct {
	Message       string `json:"message" example:"チェックインしました"`
	ReservationID int64  `json:"reservation_id" example:"1"`
}

func toReservationResponse(r *reservation.Reservation) ReservationResponse {
	return ReservationResponse{
		ID: r.ID, AssetID: r.AssetID, ActorID: r.ActorID,
		Start: r.Interval.Start, End: r.Interval.End,
		Status: string(r.Status), CheckinTime: r.CheckinTime,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func toReservationResponses(rs []*reservation.Reservation) []ReservationResponse {
	resp := make([]ReservationResponse, len(rs))
	for i, r := range rs {
		resp[i] = toReservationResponse(r)
	}
	return resp
}

func toLifecycleResponse(r *application.LifecycleResult) LifecycleResponse {
	return LifecycleResponse{Message: r.Message, ReservationID: r.ReservationID}
}

// actorID はヘッダーからアクターIDを取り出す
func actorID(c echo.Context) (string, error) {
	id := strings.TrimSpace(c.Request().Header.Get(ActorIDHeader))
	if id == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "アクターIDが必要です")
	}
	return id, nil
}

func pathInt64(c echo.Context, name string) (int64, error) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "無効な"+name+"です")
	}
	return v, nil
}

// parseTimestamp は RFC 3339 の時刻を UTC に変換する
func parseTimestamp(name, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, name+"はRFC3339形式で指定してください")
	}
	return t.UTC(), nil
}

// Create godoc
// @Summary 予約を作成
// @Description アセットの時間帯を承認待ちで予約します
// @Tags reservations
// @Accept json
// @Produce json
// @Param X-Actor-ID header string true "アクターID"
// @Param request body CreateReservationRequest true "予約情報"
// @Success 201 {object} ReservationResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 401 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse "時間帯が重複"
// @Failure 422 {object} api.ErrorResponse "予約不可のアセット"
// @Router /reservations [post]
func (h *ReservationHandler) Create(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	var req CreateReservationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	start, err := parseTimestamp("start", req.Start)
	if err != nil {
		return err
	}
	end, err := parseTimestamp("end", req.End)
	if err != nil {
		return err
	}
	r, err := h.service.CreateReservation(c.Request().Context(), application.CreateReservationInput{
		AssetID: req.AssetID, ActorID: actor, Start: start, End: end,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toReservationResponse(r))
}

// CheckIn godoc
// @Summary チェックイン
// @Description チェックイン可能な時間帯にある承認済み予約を利用中にします
// @Tags reservations
// @Accept json
// @Produce json
// @Param X-Actor-ID header string true "アクターID"
// @Param request body AssetActionRequest true "対象アセット"
// @Success 200 {object} LifecycleResponse
// @Failure 404 {object} api.ErrorResponse "対象の予約なし"
// @Failure 422 {object} api.ErrorResponse "チェックイン済み"
// @Router /reservations/checkin [post]
func (h *ReservationHandler) CheckIn(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	var req AssetActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	res, err := h.service.CheckIn(c.Request().Context(), req.AssetID, actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toLifecycleResponse(res))
}

// CheckOut godoc
// @Summary チェックアウト
// @Description 利用中の予約を完了にします
// @Tags reservations
// @Accept json
// @Produce json
// @Param X-Actor-ID header string true "アクターID"
// @Param request body AssetActionRequest true "対象アセット"
// @Success 200 {object} LifecycleResponse
// @Failure 404 {object} api.ErrorResponse "利用中の予約なし"
// @Router /reservations/checkout [post]
func (h *ReservationHandler) CheckOut(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	var req AssetActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	res, err := h.service.CheckOut(c.Request().Context(), req.AssetID, actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toLifecycleResponse(res))
}

// Cancel godoc
// @Summary 予約をキャンセル
// @Description 開始24時間前までの予約をキャンセルします
// @Tags reservations
// @Produce json
// @Param X-Actor-ID header string true "アクターID"
// @Param id path int true "予約ID"
// @Success 200 {object} LifecycleResponse
// @Failure 403 {object} api.ErrorResponse "予約者以外"
// @Failure 404 {object} api.ErrorResponse
// @Failure 422 {object} api.ErrorResponse "キャンセル期限切れ"
// @Router /reservations/{id}/cancel [post]
func (h *ReservationHandler) Cancel(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	id, err := pathInt64(c, "id")
	if err != nil {
		return err
	}
	res, err := h.service.CancelReservation(c.Request().Context(), id, actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toLifecycleResponse(res))
}

// Approve godoc
// @Summary 予約を承認
// @Description 承認待ちの予約を承認ポリシーに従って承認します
// @Tags reservations
// @Produce json
// @Param id path int true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse "承認済み予約と重複"
// @Failure 422 {object} api.ErrorResponse
// @Router /reservations/{id}/approve [post]
func (h *ReservationHandler) Approve(c echo.Context) error {
	id, err := pathInt64(c, "id")
	if err != nil {
		return err
	}
	r, err := h.service.ApproveReservation(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// GetByID godoc
// @Summary 予約を取得
// @Description 指定IDの予約を取得します
// @Tags reservations
// @Produce json
// @Param id path int true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /reservations/{id} [get]
func (h *ReservationHandler) GetByID(c echo.Context) error {
	id, err := pathInt64(c, "id")
	if err != nil {
		return err
	}
	r, err := h.service.GetReservation(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// ListByAsset godoc
// @Summary アセットの予約一覧
// @Description 開始時刻の新しい順に返します
// @Tags reservations
// @Produce json
// @Param asset_id path int true "アセットID"
// @Success 200 {array} ReservationResponse
// @Router /reservations/asset/{asset_id} [get]
func (h *ReservationHandler) ListByAsset(c echo.Context) error {
	assetID, err := pathInt64(c, "asset_id")
	if err != nil {
		return err
	}
	rs, err := h.service.ListByAsset(c.Request().Context(), assetID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toReservationResponses(rs))
}

// ListByActor godoc
// @Summary アクターの予約一覧
// @Description 開始時刻の新しい順に返します
// @Tags reservations
// @Produce json
// @Param actor_id path string true "アクターID"
// @Success 200 {array} ReservationResponse
// @Router /reservations/actor/{actor_id} [get]
func (h *ReservationHandler) ListByActor(c echo.Context) error {
	rs, err := h.service.ListByActor(c.Request().Context(), c.Param("actor_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toReservationResponses(rs))
}
