package middleware_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"task-dashboard/backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRecoveryWithLog(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		handler  gin.HandlerFunc
		wantCode int
		wantBody string
		wantLog  bool
	}{
		{
			name:     "handler returns normally",
			handler:  func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"totalTasks": 3}) },
			wantCode: http.StatusOK,
			wantBody: `{"totalTasks":3}`,
		},
		{
			name:     "handler panics",
			handler:  func(c *gin.Context) { panic("nil task in snapshot") },
			wantCode: http.StatusInternalServerError,
			wantBody: `{"error":"internal server error"}`,
			wantLog:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logs, nil))

			router := gin.New()
			router.Use(middleware.RequestID(), middleware.RecoveryWithLog(logger))
			router.GET("/api/stats", tt.handler)

			req, _ := http.NewRequest(http.MethodGet, "/api/stats", nil)
			req.Header.Set(middleware.RequestIDHeader, "req-42")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
			if tt.wantLog {
				assert.Contains(t, logs.String(), "nil task in snapshot")
				assert.Contains(t, logs.String(), "request_id=req-42")
			} else {
				assert.Empty(t, logs.String())
			}
		})
	}
}

func TestRecoveryWithLog_DefaultLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(middleware.RecoveryWithLog())
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	req, _ := http.NewRequest(http.MethodGet, "/panic", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
