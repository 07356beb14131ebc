package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/custonfe/nfe-cost-service/internal/models"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.LogConfig
		env  string
	}{
		{name: "development console", cfg: models.LogConfig{Level: "info", Format: "console", Output: "stdout"}, env: "development"},
		{name: "production json", cfg: models.LogConfig{Level: "warn", Format: "json", Output: "stderr"}, env: "production"},
		{name: "empty config", cfg: models.LogConfig{}, env: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg, tt.env)
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestNew_Level(t *testing.T) {
	logger, err := New(models.LogConfig{Level: "debug"}, "production")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = New(models.LogConfig{}, "development")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = New(models.LogConfig{Level: "loud"}, "development")
	assert.Error(t, err)
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")

	logger, err := New(models.LogConfig{Level: "info", Format: "json", Output: path}, "production")
	require.NoError(t, err)
	logger.Info("Documents analyzed", zap.Int("total", 2))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "Documents analyzed", entry["msg"])
	assert.Equal(t, "nfe-cost-service", entry["service"])
	assert.Equal(t, float64(2), entry["total"])
}

func TestNewForCLI(t *testing.T) {
	quiet, err := NewForCLI(false)
	require.NoError(t, err)
	assert.False(t, quiet.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, quiet.Core().Enabled(zapcore.WarnLevel))

	verbose, err := NewForCLI(true)
	require.NoError(t, err)
	assert.True(t, verbose.Core().Enabled(zapcore.DebugLevel))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			got, err := parseLevel(tt.level)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.NotNil(t, FromContext(ctx))
	assert.Empty(t, GetRequestID(ctx))

	logger := zap.NewNop()
	ctx, enriched := WithRequestID(ctx, logger, "req-123")

	assert.Equal(t, "req-123", GetRequestID(ctx))
	assert.Same(t, enriched, FromContext(ctx))
}

func newBufferLogger(buf *bytes.Buffer) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		LevelKey:    "level",
		MessageKey:  "msg",
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(buf), zapcore.DebugLevel)
	return zap.New(core)
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	var seenID string
	handler := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/nfe/compare", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "abc", seenID)
	assert.Equal(t, "abc", rec.Header().Get(RequestIDHeader))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "abc", entry["request_id"])
	assert.Equal(t, float64(http.StatusNotFound), entry["status"])
}

func TestMiddlewareGeneratesRequestID(t *testing.T) {
	handler := Middleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRecovery(t *testing.T) {
	handler := Recovery(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
