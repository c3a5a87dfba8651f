package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-dashboard/backend/internal/config"
	"task-dashboard/backend/internal/models"
	"task-dashboard/backend/internal/worker"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            "0",
			ShutdownTimeout: time.Second,
			Environment:     "development",
			CORSOrigins:     []string{"http://localhost:5173"},
		},
		Database: config.DatabaseConfig{Driver: "sqlite", MaxOpenConns: 1, MaxIdleConns: 1},
		Redis:    config.RedisConfig{KeyPrefix: "test:", PoolSize: 2, MaxRetries: -1, DialTimeout: time.Second, ReadTimeout: time.Second, WriteTimeout: time.Second},
		Seed:     config.SeedConfig{Source: config.SeedSourceEmbedded},
		Worker:   config.WorkerConfig{Concurrency: 1, PollTimeout: 100 * time.Millisecond, JobTimeout: time.Second},
		Cache: config.CacheConfig{
			StatsTTL:           time.Minute,
			CategoriesTTL:      time.Minute,
			BreakerMaxFailures: 1,
			BreakerTimeout:     time.Minute,
		},
		Log: config.LogConfig{Level: "ERROR", Format: "text"},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()
	gin.SetMode(gin.TestMode)

	a, err := newApp(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(a.close)
	a.start(context.Background())
	return a
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRouter_ServesSeedDataset(t *testing.T) {
	a := newTestApp(t, testConfig())
	router := a.router()

	w := do(t, router, http.MethodGet, "/api/tasks", "")
	require.Equal(t, http.StatusOK, w.Code)
	var tasks []models.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tasks))
	assert.Len(t, tasks, 10)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = do(t, router, http.MethodGet, "/api/categories", "")
	require.Equal(t, http.StatusOK, w.Code)
	var categories []models.Category
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &categories))
	assert.Len(t, categories, 5)

	w = do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
}

func TestRouter_MutationRefreshesStats(t *testing.T) {
	a := newTestApp(t, testConfig())
	router := a.router()

	var before models.Stats
	w := do(t, router, http.MethodGet, "/api/stats", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &before))
	assert.Equal(t, 10, before.TotalTasks)

	w = do(t, router, http.MethodPost, "/api/tasks", `{"title":"Write release notes","priority":"high"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var after models.Stats
	w = do(t, router, http.MethodGet, "/api/stats", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &after))
	assert.Equal(t, 11, after.TotalTasks)

	w = do(t, router, http.MethodPost, "/api/tasks", `{"title":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_CORS(t *testing.T) {
	a := newTestApp(t, testConfig())
	router := a.router()

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Origin", "http://evil.test")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Host, cfg.Redis.Port = mr.Host(), mr.Port()

	a := newTestApp(t, cfg)
	router := a.router()

	w := do(t, router, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, hasKey(mr, "test:stats:"), "stats cached in redis: %v", mr.Keys())
	assert.True(t, hasKey(mr, "test:categories:"), "categories cached in redis: %v", mr.Keys())

	w = do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"redis"`)

	// refresh jobs share the configured prefix with the cache entries
	w = do(t, router, http.MethodPost, "/api/tasks", `{"title":"Rotate keys"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	for _, key := range mr.Keys() {
		assert.True(t, strings.HasPrefix(key, "test:"), "unprefixed key %q", key)
	}
	assert.False(t, mr.Exists(worker.DefaultQueues.Main))

	mr.Close()
	w = do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)

	w = do(t, router, http.MethodGet, "/api/stats", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func hasKey(mr *miniredis.Miniredis, prefix string) bool {
	for _, key := range mr.Keys() {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SEED_SOURCE", "embedded")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("CORS_ORIGINS", "http://localhost:5173")
	t.Setenv("LOG_LEVEL", "ERROR")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestStatsCommand(t *testing.T) {
	out, err := runCommand(t, "stats")
	require.NoError(t, err)

	var stats models.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 10, stats.TotalTasks)
	assert.Equal(t, 30, stats.CompletionRate)
}

func TestTasksCommand(t *testing.T) {
	out, err := runCommand(t, "tasks", "--status", "completed", "--sort-by", "title")
	require.NoError(t, err)

	var tasks []models.Task
	require.NoError(t, json.Unmarshal([]byte(out), &tasks))
	require.Len(t, tasks, 3)
	for _, task := range tasks {
		assert.True(t, task.Completed)
	}
	assert.Equal(t, "Call mom", tasks[0].Title)

	_, err = runCommand(t, "tasks", "--sort-by", "colour")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSeedDBThenLoadFromDatabase(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "seed.db")

	t.Setenv("DB_DSN", dsn)
	out, err := runCommand(t, "seed-db")
	require.NoError(t, err)
	assert.Contains(t, out, "seeded 10 tasks")

	cfg := testConfig()
	cfg.Seed.Source = config.SeedSourceDatabase
	cfg.Database.DSN = dsn

	a := newTestApp(t, cfg)
	assert.Equal(t, 10, a.store.Len())

	w := do(t, a.router(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database"`)
}
