package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/apperror"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/pkg/logger"
)

// ErrorResponse はエラーレスポンスの統一フォーマット
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Code  int    `json:"code"`
}

var kindStatus = map[apperror.Kind]int{
	apperror.KindValidation:    http.StatusBadRequest,
	apperror.KindConflict:      http.StatusConflict,
	apperror.KindNotFound:      http.StatusNotFound,
	apperror.KindAuthorization: http.StatusForbidden,
	apperror.KindPolicy:        http.StatusUnprocessableEntity,
	apperror.KindPersistence:   http.StatusInternalServerError,
}

// StatusCode はエラーに対応するHTTPステータスを返す
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return kindStatus[apperror.KindOf(err)]
}

// kindOfStatus は echo.HTTPError のステータスからエラー種別を推定する
func kindOfStatus(code int) apperror.Kind {
	switch code {
	case http.StatusBadRequest:
		return apperror.KindValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperror.KindAuthorization
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return apperror.KindNotFound
	case http.StatusConflict:
		return apperror.KindConflict
	case http.StatusUnprocessableEntity:
		return apperror.KindPolicy
	}
	return apperror.KindPersistence
}

// CustomHTTPErrorHandler はカスタムエラーハンドラー
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		code    = http.StatusInternalServerError
		kind    = apperror.KindPersistence
		message = "内部サーバーエラー"
	)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		kind = kindOfStatus(code)
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(code)
		}
	} else {
		kind = apperror.KindOf(err)
		code = kindStatus[kind]
		// 5xx では内部のエラー内容を返さない
		if code < 500 {
			message = err.Error()
		}
	}

	// エラーログを出力（5xx エラーの場合）
	if code >= 500 {
		logger.Error("サーバーエラー",
			zap.Int("status", code),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
	}

	if err := c.JSON(code, ErrorResponse{
		Error: message,
		Kind:  string(kind),
		Code:  code,
	}); err != nil {
		logger.Error("エラーレスポンス送信失敗", zap.Error(err))
	}
}
