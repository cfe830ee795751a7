package middleware

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metricsHandler(c echo.Context) error {
	return c.String(http.StatusOK, "metrics")
}

func TestMetricsBasicAuth_NoCredentials(t *testing.T) {
	// 認証設定がない場合はスキップ
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := MetricsBasicAuth(&MetricsConfig{})(metricsHandler)(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "metrics", rec.Body.String())
}

func TestMetricsBasicAuth_NilConfig(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := MetricsBasicAuth(nil)(metricsHandler)(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsBasicAuth_ValidCredentials(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	// Basic認証ヘッダーを設定
	auth := base64.StdEncoding.EncodeToString([]byte("testuser:testpass"))
	req.Header.Set("Authorization", "Basic "+auth)

	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	cfg := &MetricsConfig{User: "testuser", Password: "testpass"}
	err := MetricsBasicAuth(cfg)(metricsHandler)(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsBasicAuth_InvalidCredentials(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	// 間違った認証情報
	auth := base64.StdEncoding.EncodeToString([]byte("wronguser:wrongpass"))
	req.Header.Set("Authorization", "Basic "+auth)

	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	cfg := &MetricsConfig{User: "testuser", Password: "testpass"}
	err := MetricsBasicAuth(cfg)(metricsHandler)(c)

	// Basic認証失敗時はHTTPErrorが返る
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestMetricsBasicAuth_NoAuthHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	cfg := &MetricsConfig{User: "testuser", Password: "testpass"}
	err := MetricsBasicAuth(cfg)(metricsHandler)(c)

	// Basic認証ヘッダーがない場合は401
	if err != nil {
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, he.Code)
	} else {
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestLoadMetricsConfig(t *testing.T) {
	tests := []struct {
		name        string
		user        string
		password    string
		wantEnabled bool
	}{
		{name: "両方設定あり", user: "user", password: "pass", wantEnabled: true},
		{name: "ユーザーのみ", user: "user", password: "", wantEnabled: false},
		{name: "パスワードのみ", user: "", password: "pass", wantEnabled: false},
		{name: "両方なし", user: "", password: "", wantEnabled: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("METRICS_USER", tt.user)
			t.Setenv("METRICS_PASSWORD", tt.password)

			cfg := LoadMetricsConfig()
			assert.Equal(t, tt.wantEnabled, cfg.IsEnabled())
		})
	}
}
