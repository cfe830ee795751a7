package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/deedeoliveira/GRIDD-OpenDT/internal/application"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/asset"
)

type AssetHandler struct {
	assets       AssetServiceInterface
	availability AvailabilityServiceInterface
}

func NewAssetHandler(assets AssetServiceInterface, availability AvailabilityServiceInterface) *AssetHandler {
	return &AssetHandler{assets: assets, availability: availability}
}

type AssetResponse struct {
	ID             int64  `json:"id" example:"5"`
	Kind           string `json:"kind" example:"space"`
	Reservable     bool   `json:"reservable" example:"true"`
	CurrentSpaceID *int64 `json:"current_space_id,omitempty" example:"5"`
	ModelVersionID int64  `json:"model_version_id" example:"1"`
}

// PublishAssetRequest はスナップショットへのアセット登録リクエスト
type PublishAssetRequest struct {
	Kind           string `json:"kind" validate:"required,oneof=space equipment" example:"equipment"`
	Reservable     *bool  `json:"reservable" validate:"required" example:"true"`
	CurrentSpaceID *int64 `json:"current_space_id,omitempty" validate:"omitempty,gt=0" example:"5"`
}

type ConflictResponse struct {
	ReservationID int64     `json:"reservation_id" example:"1"`
	Status        string    `json:"status" example:"approved"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
}

type AvailabilityResponse struct {
	Available bool               `json:"available" example:"false"`
	Conflicts []ConflictResponse `json:"conflicts"`
}

func toAssetResponse(a *asset.Asset) AssetResponse {
	return AssetResponse{
		ID: a.ID, Kind: string(a.Kind), Reservable: a.Reservable,
		CurrentSpaceID: a.CurrentSpaceID, ModelVersionID: a.ModelVersionID,
	}
}

func toAssetResponses(as []*asset.Asset) []AssetResponse {
	resp := make([]AssetResponse, len(as))
	for i, a := range as {
		resp[i] = toAssetResponse(a)
	}
	return resp
}

func toAvailabilityResponse(av *application.Availability) AvailabilityResponse {
	conflicts := make([]ConflictResponse, len(av.Conflicts))
	for i, c := range av.Conflicts {
		conflicts[i] = ConflictResponse{
			ReservationID: c.ReservationID, Status: string(c.Status),
			Start: c.Start, End: c.End,
		}
	}
	return AvailabilityResponse{Available: av.Available, Conflicts: conflicts}
}

// Availability godoc
// @Summary 空き状況を確認
// @Description 指定時間帯にブロックしている予約があるかを返します
// @Tags assets
// @Produce json
// @Param asset_id path int true "アセットID"
// @Param version_id path int true "モデルバージョンID"
// @Param start query string true "開始時刻 (RFC3339)"
// @Param end query string true "終了時刻 (RFC3339)"
// @Success 200 {object} AvailabilityResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /assets/{asset_id}/versions/{version_id}/availability [get]
func (h *AssetHandler) Availability(c echo.Context) error {
	assetID, err := pathInt64(c, "asset_id")
	if err != nil {
		return err
	}
	versionID, err := pathInt64(c, "version_id")
	if err != nil {
		return err
	}
	start, err := parseTimestamp("start", c.QueryParam("start"))
	if err != nil {
		return err
	}
	end, err := parseTimestamp("end", c.QueryParam("end"))
	if err != nil {
		return err
	}
	av, err := h.availability.CheckAvailability(c.Request().Context(), assetID, versionID, start, end)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAvailabilityResponse(av))
}

// GetByID godoc
// @Summary アセットを取得
// @Tags assets
// @Produce json
// @Param asset_id path int true "アセットID"
// @Param version_id path int true "モデルバージョンID"
// @Success 200 {object} AssetResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /assets/{asset_id}/versions/{version_id} [get]
func (h *AssetHandler) GetByID(c echo.Context) error {
	assetID, err := pathInt64(c, "asset_id")
	if err != nil {
		return err
	}
	versionID, err := pathInt64(c, "version_id")
	if err != nil {
		return err
	}
	a, err := h.assets.GetAsset(c.Request().Context(), assetID, versionID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAssetResponse(a))
}

// Publish godoc
// @Summary アセットを登録
// @Description モデルバージョンのアセットを登録または更新します。以降の予約操作は最新バージョンの予約可否に従います
// @Tags assets
// @Accept json
// @Produce json
// @Param asset_id path int true "アセットID"
// @Param version_id path int true "モデルバージョンID"
// @Param request body PublishAssetRequest true "アセット情報"
// @Success 200 {object} AssetResponse
// @Failure 400 {object} api.ErrorResponse
// @Router /assets/{asset_id}/versions/{version_id} [put]
func (h *AssetHandler) Publish(c echo.Context) error {
	assetID, err := pathInt64(c, "asset_id")
	if err != nil {
		return err
	}
	versionID, err := pathInt64(c, "version_id")
	if err != nil {
		return err
	}
	var req PublishAssetRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	a, err := h.assets.PublishAsset(c.Request().Context(), &asset.Asset{
		ID: assetID, Kind: asset.Kind(req.Kind), Reservable: *req.Reservable,
		CurrentSpaceID: req.CurrentSpaceID, ModelVersionID: versionID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAssetResponse(a))
}

// ListByVersion godoc
// @Summary バージョン内のアセット一覧
// @Tags assets
// @Produce json
// @Param version_id path int true "モデルバージョンID"
// @Success 200 {array} AssetResponse
// @Router /assets/versions/{version_id} [get]
func (h *AssetHandler) ListByVersion(c echo.Context) error {
	versionID, err := pathInt64(c, "version_id")
	if err != nil {
		return err
	}
	as, err := h.assets.ListByVersion(c.Request().Context(), versionID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAssetResponses(as))
}

// ListBySpace godoc
// @Summary 空間内のアセット一覧
// @Description 指定した空間に現在置かれているアセットを返します
// @Tags assets
// @Produce json
// @Param version_id path int true "モデルバージョンID"
// @Param space_id path int true "空間ID"
// @Success 200 {array} AssetResponse
// @Router /assets/versions/{version_id}/spaces/{space_id} [get]
func (h *AssetHandler) ListBySpace(c echo.Context) error {
	versionID, err := pathInt64(c, "version_id")
	if err != nil {
		return err
	}
	spaceID, err := pathInt64(c, "space_id")
	if err != nil {
		return err
	}
	as, err := h.assets.ListBySpace(c.Request().Context(), spaceID, versionID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAssetResponses(as))
}
