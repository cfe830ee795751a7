package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/deedeoliveira/GRIDD-OpenDT/internal/application"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/apperror"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/reservation"
)

// MockReservationService はReservationServiceInterfaceのモック
type MockReservationService struct {
	mock.Mock
}

func (m *MockReservationService) CreateReservation(ctx context.Context, input application.CreateReservationInput) (*reservation.Reservation, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockReservationService) CheckIn(ctx context.Context, assetID int64, actorID string) (*application.LifecycleResult, error) {
	args := m.Called(ctx, assetID, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.LifecycleResult), args.Error(1)
}

func (m *MockReservationService) CheckOut(ctx context.Context, assetID int64, actorID string) (*application.LifecycleResult, error) {
	args := m.Called(ctx, assetID, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.LifecycleResult), args.Error(1)
}

func (m *MockReservationService) CancelReservation(ctx context.Context, reservationID int64, actorID string) (*application.LifecycleResult, error) {
	args := m.Called(ctx, reservationID, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.LifecycleResult), args.Error(1)
}

func (m *MockReservationService) ApproveReservation(ctx context.Context, reservationID int64) (*reservation.Reservation, error) {
	args := m.Called(ctx, reservationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockReservationService) GetReservation(ctx context.Context, id int64) (*reservation.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockReservationService) ListByAsset(ctx context.Context, assetID int64) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, assetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

func (m *MockReservationService) ListByActor(ctx context.Context, actorID string) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

var testStart = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestReservation(id int64, status reservation.Status) *reservation.Reservation {
	return &reservation.Reservation{
		ID:        id,
		AssetID:   5,
		ActorID:   "alice",
		Interval:  reservation.Interval{Start: testStart, End: testStart.Add(time.Hour)},
		Status:    status,
		CreatedAt: testStart.Add(-48 * time.Hour),
		UpdatedAt: testStart.Add(-48 * time.Hour),
	}
}

func TestReservationHandler_Create(t *testing.T) {
	e := NewTestEcho()

	t.Run("正常に予約を作成できる", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("CreateReservation", mock.Anything, application.CreateReservationInput{
			AssetID: 5,
			ActorID: "alice",
			Start:   testStart,
			End:     testStart.Add(time.Hour),
		}).Return(newTestReservation(1, reservation.StatusPending), nil)

		handler := NewReservationHandler(mockService)

		// タイムゾーン付きの時刻は UTC に変換される
		reqBody := `{"asset_id": 5, "start": "2026-03-02T19:00:00+09:00", "end": "2026-03-02T11:00:00Z"}`
		req := httptest.NewRequest(http.MethodPost, "/reservations", strings.NewReader(reqBody))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(ActorIDHeader, "alice")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.Create(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp ReservationResponse
		err = json.Unmarshal(rec.Body.Bytes(), &resp)
		require.NoError(t, err)
		assert.Equal(t, int64(1), resp.ID)
		assert.Equal(t, "pending", resp.Status)
		assert.Nil(t, resp.CheckinTime)

		mockService.AssertExpectations(t)
	})

	t.Run("アクターIDがない場合401", func(t *testing.T) {
		mockService := new(MockReservationService)
		handler := NewReservationHandler(mockService)

		reqBody := `{"asset_id": 5, "start": "2026-03-02T10:00:00Z", "end": "2026-03-02T11:00:00Z"}`
		req := httptest.NewRequest(http.MethodPost, "/reservations", strings.NewReader(reqBody))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.Create(c)

		require.Error(t, err)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, he.Code)
		mockService.AssertNotCalled(t, "CreateReservation", mock.Anything, mock.Anything)
	})

	t.Run("不正なリクエストでエラー", func(t *testing.T) {
		mockService := new(MockReservationService)
		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/reservations", strings.NewReader("invalid"))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(ActorIDHeader, "alice")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.Create(c)

		require.Error(t, err)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, he.Code)
	})

	t.Run("必須項目がない場合バリデーションエラー", func(t *testing.T) {
		mockService := new(MockReservationService)
		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/reservations", strings.NewReader(`{"asset_id": 5}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(ActorIDHeader, "alice")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.Create(c)

		require.Error(t, err)
		assert.ErrorIs(t, err, apperror.ErrValidation)
	})

	t.Run("RFC3339以外の時刻は400", func(t *testing.T) {
		mockService := new(MockReservationService)
		handler := NewReservationHandler(mockService)

		reqBody := `{"asset_id": 5, "start": "2026-03-02 10:00", "end": "2026-03-02T11:00:00Z"}`
		req := httptest.NewRequest(http.MethodPost, "/reservations", strings.NewReader(reqBody))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(ActorIDHeader, "alice")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.Create(c)

		require.Error(t, err)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, he.Code)
	})

	t.Run("サービスのエラーはそのまま返す", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("CreateReservation", mock.Anything, mock.AnythingOfType("application.CreateReservationInput")).
			Return(nil, reservation.ErrAssetAlreadyReserved)

		handler := NewReservationHandler(mockService)

		reqBody := `{"asset_id": 5, "start": "2026-03-02T10:00:00Z", "end": "2026-03-02T11:00:00Z"}`
		req := httptest.NewRequest(http.MethodPost, "/reservations", strings.NewReader(reqBody))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(ActorIDHeader, "alice")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.Create(c)

		assert.ErrorIs(t, err, reservation.ErrAssetAlreadyReserved)
	})
}

func TestReservationHandler_CheckIn(t *testing.T) {
	e := NewTestEcho()

	t.Run("正常にチェックインできる", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("CheckIn", mock.Anything, int64(5), "alice").
			Return(&application.LifecycleResult{Message: "チェックインしました", ReservationID: 1}, nil)

		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/reservations/checkin", strings.NewReader(`{"asset_id": 5}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(ActorIDHeader, "alice")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.CheckIn(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp LifecycleResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, int64(1), resp.ReservationID)
		assert.NotEmpty(t, resp.Message)

		mockService.AssertExpectations(t)
	})

	t.Run("対象がない場合エラー", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("CheckIn", mock.Anything, int64(5), "alice").
			Return(nil, reservation.ErrNoApprovedInWindow)

		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/reservations/checkin", strings.NewReader(`{"asset_id": 5}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(ActorIDHeader, "alice")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.CheckIn(c)

		assert.ErrorIs(t, err, reservation.ErrNoApprovedInWindow)
	})

	t.Run("アセットIDがない場合バリデーションエラー", func(t *testing.T) {
		mockService := new(MockReservationService)
		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/reservations/checkin", strings.NewReader(`{}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(ActorIDHeader, "alice")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.CheckIn(c)

		assert.ErrorIs(t, err, apperror.ErrValidation)
	})
}

func TestReservationHandler_CheckOut(t *testing.T) {
	e := NewTestEcho()

	mockService := new(MockReservationService)
	mockService.On("CheckOut", mock.Anything, int64(5), "alice").
		Return(&application.LifecycleResult{Message: "チェックアウトしました", ReservationID: 1}, nil)

	handler := NewReservationHandler(mockService)

	req := httptest.NewRequest(http.MethodPost, "/reservations/checkout", strings.NewReader(`{"asset_id": 5}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(ActorIDHeader, "alice")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := handler.CheckOut(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	mockService.AssertExpectations(t)
}

func TestReservationHandler_Cancel(t *testing.T) {
	e := NewTestEcho()

	t.Run("正常にキャンセルできる", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("CancelReservation", mock.Anything, int64(1), "alice").
			Return(&application.LifecycleResult{Message: "予約をキャンセルしました", ReservationID: 1}, nil)

		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/reservations/1/cancel", nil)
		req.Header.Set(ActorIDHeader, "alice")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("1")

		err := handler.Cancel(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("予約者以外はエラー", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("CancelReservation", mock.Anything, int64(1), "bob").
			Return(nil, reservation.ErrNotReservationOwner)

		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/reservations/1/cancel", nil)
		req.Header.Set(ActorIDHeader, "bob")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("1")

		err := handler.Cancel(c)

		assert.ErrorIs(t, err, reservation.ErrNotReservationOwner)
	})

	t.Run("IDが数値でない場合400", func(t *testing.T) {
		mockService := new(MockReservationService)
		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/reservations/abc/cancel", nil)
		req.Header.Set(ActorIDHeader, "alice")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("abc")

		err := handler.Cancel(c)

		require.Error(t, err)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, he.Code)
	})
}

func TestReservationHandler_Approve(t *testing.T) {
	e := NewTestEcho()

	mockService := new(MockReservationService)
	mockService.On("ApproveReservation", mock.Anything, int64(1)).
		Return(newTestReservation(1, reservation.StatusApproved), nil)

	handler := NewReservationHandler(mockService)

	req := httptest.NewRequest(http.MethodPost, "/reservations/1/approve", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("1")

	err := handler.Approve(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"approved"`)
	mockService.AssertExpectations(t)
}

func TestReservationHandler_GetByID(t *testing.T) {
	e := NewTestEcho()

	t.Run("正常に予約を取得できる", func(t *testing.T) {
		mockService := new(MockReservationService)
		r := newTestReservation(1, reservation.StatusInUse)
		checkin := testStart.Add(-5 * time.Minute)
		r.CheckinTime = &checkin
		mockService.On("GetReservation", mock.Anything, int64(1)).Return(r, nil)

		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodGet, "/reservations/1", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("1")

		err := handler.GetByID(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp ReservationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.CheckinTime)
		assert.True(t, resp.CheckinTime.Equal(checkin))
		assert.True(t, resp.Start.Equal(testStart))

		mockService.AssertExpectations(t)
	})

	t.Run("予約が見つからない場合エラー", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("GetReservation", mock.Anything, int64(99)).Return(nil, reservation.ErrReservationNotFound)

		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodGet, "/reservations/99", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("99")

		err := handler.GetByID(c)

		assert.ErrorIs(t, err, reservation.ErrReservationNotFound)
	})
}

func TestReservationHandler_ListByAsset(t *testing.T) {
	e := NewTestEcho()

	mockService := new(MockReservationService)
	mockService.On("ListByAsset", mock.Anything, int64(5)).Return([]*reservation.Reservation{
		newTestReservation(2, reservation.StatusApproved),
		newTestReservation(1, reservation.StatusCancelled),
	}, nil)

	handler := NewReservationHandler(mockService)

	req := httptest.NewRequest(http.MethodGet, "/reservations/asset/5", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("asset_id")
	c.SetParamValues("5")

	err := handler.ListByAsset(c)

	require.NoError(t, err)
	var resp []ReservationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp, 2)
	assert.Equal(t, int64(2), resp[0].ID)
	mockService.AssertExpectations(t)
}

func TestReservationHandler_ListByActor(t *testing.T) {
	e := NewTestEcho()

	t.Run("空の一覧は空配列を返す", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("ListByActor", mock.Anything, "alice").Return([]*reservation.Reservation{}, nil)

		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodGet, "/reservations/actor/alice", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("actor_id")
		c.SetParamValues("alice")

		err := handler.ListByActor(c)

		require.NoError(t, err)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("サービスエラー", func(t *testing.T) {
		mockService := new(MockReservationService)
		dbErr := apperror.Persistence("予約一覧の取得", errors.New("db down"))
		mockService.On("ListByActor", mock.Anything, "alice").Return(nil, dbErr)

		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodGet, "/reservations/actor/alice", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("actor_id")
		c.SetParamValues("alice")

		err := handler.ListByActor(c)

		assert.ErrorIs(t, err, apperror.ErrPersistence)
	})
}
