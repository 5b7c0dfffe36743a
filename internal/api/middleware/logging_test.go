package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoggerRecordsRequestFields(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	handler := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/ws?user_id=abc-123", nil))

	var entry map[string]interface{}
	req.NoError(json.Unmarshal(buf.Bytes(), &entry))
	req.Equal("GET", entry["method"])
	req.Equal("/ws", entry["path"])
	req.Equal(float64(http.StatusTeapot), entry["status"])
	req.Equal(float64(5), entry["bytes"])
	req.Equal("abc-123", entry["user_id"])
}

func TestLoggerOmitsUserIDWhenAbsent(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	handler := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/register", nil))

	var entry map[string]interface{}
	req.NoError(json.Unmarshal(buf.Bytes(), &entry))
	req.Equal("/register", entry["path"])
	req.NotContains(entry, "user_id")
}
