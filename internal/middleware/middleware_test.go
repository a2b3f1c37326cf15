package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "generated when absent", incoming: "", keep: false},
		{name: "valid id kept", incoming: "req-123_abc.def", keep: true},
		{name: "invalid characters replaced", incoming: "bad id<script>", keep: false},
		{name: "too long replaced", incoming: strings.Repeat("a", 129), keep: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set("X-Request-ID", tt.incoming)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
			if tt.keep {
				assert.Equal(t, tt.incoming, seen)
				return
			}
			_, err := uuid.Parse(seen)
			assert.NoError(t, err)
		})
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", GetRequestID(req.Context()))
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := RequestID(AccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("hello"))
	})))

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"password":"hunter2"}`))
	req.Header.Set("Authorization", "Bearer secret-token")
	req.Header.Set("X-Request-ID", "abc-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	assert.Contains(t, out, `"status":201`)
	assert.Contains(t, out, `"path":"/auth/login"`)
	assert.Contains(t, out, `"request_id":"abc-1"`)
	assert.Contains(t, out, `"bytes":5`)
	assert.NotContains(t, out, "secret-token")
	assert.NotContains(t, out, "hunter2")
}

func TestAccessLog_ServerErrorsAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := AccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/dns/hosted-zones", nil))

	assert.Contains(t, buf.String(), `"level":"ERROR"`)
}

func TestMaxBodySize(t *testing.T) {
	tests := []struct {
		name          string
		limit         int64
		bodySize      int
		shouldSucceed bool
	}{
		{name: "body under limit", limit: 1024, bodySize: 512, shouldSucceed: true},
		{name: "body exactly at limit", limit: 1024, bodySize: 1024, shouldSucceed: true},
		{name: "body over limit", limit: 1024, bodySize: 2048, shouldSucceed: false},
		{name: "empty body", limit: 1024, bodySize: 0, shouldSucceed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var readErr error
			h := MaxBodySize(tt.limit)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, readErr = io.ReadAll(r.Body)
			}))

			req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewReader(make([]byte, tt.bodySize)))
			h.ServeHTTP(httptest.NewRecorder(), req)

			if tt.shouldSucceed {
				require.NoError(t, readErr)
				return
			}
			var maxErr *http.MaxBytesError
			assert.ErrorAs(t, readErr, &maxErr)
		})
	}
}
