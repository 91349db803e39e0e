package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-harvester/internal/config"
	"github.com/JakeFAU/profile-harvester/internal/progress"
	"github.com/JakeFAU/profile-harvester/internal/storage/memory"
	"github.com/JakeFAU/profile-harvester/internal/store"
)

func TestServerHealthAndReadiness(t *testing.T) {
	t.Parallel()

	healthy := true
	server := NewServer(nil, nil, config.ServerConfig{}, zap.NewNop(),
		WithReadinessCheck("db", func(context.Context) error {
			if healthy {
				return nil
			}
			return errors.New("connection refused")
		}),
	)

	rec := serve(server, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(server, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	healthy = false
	rec = serve(server, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestServerStatusReflectsTracker(t *testing.T) {
	t.Parallel()

	tracker := NewStatusTracker()
	runID := uuid.New()
	now := time.Unix(1700000000, 0).UTC()
	require.NoError(t, tracker.Consume(context.Background(), []progress.Event{
		{RunID: progress.UUIDToBytes(runID), TS: now, Stage: progress.StageRunStart, Note: "crawl", URL: "https://example.com"},
		{RunID: progress.UUIDToBytes(runID), TS: now, Stage: progress.StagePhase, Phase: "extracting_records", Page: 2, Total: 100},
	}))

	server := NewServer(tracker, nil, config.ServerConfig{}, zap.NewNop())
	rec := serve(server, "/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, runID.String(), got.RunID)
	assert.Equal(t, "extracting_records", got.Phase)
	assert.Equal(t, 2, got.Page)
	assert.Equal(t, int64(100), got.TotalCount)
}

func TestServerIdleStatusWithoutSource(t *testing.T) {
	t.Parallel()

	rec := serve(NewServer(nil, nil, config.ServerConfig{}, nil), "/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"phase":"idle"`)
}

func TestServerRunsRoutes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewRunStore()
	runID := uuid.New()
	require.NoError(t, repo.StartRun(ctx, store.Run{ID: runID, Kind: store.KindEmbed, StartedAt: time.Now()}))
	require.NoError(t, repo.AddStageStats(ctx, runID, "EMBED_BATCH", 2, 0, 200, time.Now()))

	server := NewServer(nil, repo, config.ServerConfig{}, zap.NewNop())

	rec := serve(server, "/v1/runs?status=running", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), runID.String())

	rec = serve(server, "/v1/runs/"+runID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"embed"`)

	rec = serve(server, "/v1/runs/"+runID.String()+"/stages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"units":200`)

	rec = serve(server, "/v1/runs/"+uuid.NewString(), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerMetricsEndpoint(t *testing.T) {
	t.Parallel()

	server := NewServer(nil, nil, config.ServerConfig{}, zap.NewNop())
	serve(server, "/healthz", "")
	rec := serve(server, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	server := NewServer(nil, nil, config.ServerConfig{APIKey: "secret"}, zap.NewNop())

	rec := serve(server, "/v1/status", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(server, "/v1/status", "secret")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(server, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	rec := serve(NewServer(nil, nil, config.ServerConfig{}, nil), "/healthz", "")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	server := NewServer(nil, nil, config.ServerConfig{Addr: "127.0.0.1:0"}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

func serve(s *Server, path, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
