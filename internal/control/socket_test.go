package control

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func TestHandleHealth_ReturnsCorrectJSON(t *testing.T) {
	s := NewServer("1.0.0", nil, nil)

	w := httptest.NewRecorder()
	s.handleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	resp := w.Result()
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("status = %q, want %q", health.Status, "healthy")
	}
	if _, err := time.Parse(time.RFC3339, health.Timestamp); err != nil {
		t.Errorf("timestamp %q is not valid RFC3339: %v", health.Timestamp, err)
	}
}

func TestHandleStatus_ReturnsRequiredFields(t *testing.T) {
	s := NewServer("1.2.3", nil, func() int { return 4 })

	w := httptest.NewRecorder()
	s.handleStatus(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	resp := w.Result()
	defer func() { _ = resp.Body.Close() }()

	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}

	if !status.Running {
		t.Error("running should be true")
	}
	if status.PID <= 0 {
		t.Errorf("pid = %d, should be positive", status.PID)
	}
	if status.UptimeSeconds < 0 {
		t.Errorf("uptime_seconds = %d, should be non-negative", status.UptimeSeconds)
	}
	if status.Version != "1.2.3" {
		t.Errorf("version = %q, want %q", status.Version, "1.2.3")
	}
	if status.ActiveSessions != 4 {
		t.Errorf("active_sessions = %d, want 4", status.ActiveSessions)
	}
}

func TestHandleStatus_NilSessionCounter(t *testing.T) {
	s := NewServer("dev", nil, nil)

	w := httptest.NewRecorder()
	s.handleStatus(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	var status StatusResponse
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if status.ActiveSessions != 0 {
		t.Errorf("active_sessions = %d, want 0", status.ActiveSessions)
	}
}

func TestHandleShutdown_TriggersCallback(t *testing.T) {
	var shutdownCalled atomic.Bool
	s := NewServer("dev", func() { shutdownCalled.Store(true) }, nil)

	w := httptest.NewRecorder()
	s.handleShutdown(w, httptest.NewRequest(http.MethodPost, "/shutdown", nil))

	var shutdown ShutdownResponse
	if err := json.NewDecoder(w.Body).Decode(&shutdown); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if shutdown.Message != "shutdown initiated" {
		t.Errorf("message = %q, want %q", shutdown.Message, "shutdown initiated")
	}

	// Wait for async shutdown callback
	deadline := time.Now().Add(time.Second)
	for !shutdownCalled.Load() {
		if time.Now().After(deadline) {
			t.Fatal("shutdown callback was not called")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandleShutdown_NilCallback(t *testing.T) {
	s := NewServer("dev", nil, nil)

	w := httptest.NewRecorder()
	// Should not panic with nil callback
	s.handleShutdown(w, httptest.NewRequest(http.MethodPost, "/shutdown", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestSocketPath(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")

	if got, want := SocketPath(), "/run/user/1000/driftwood/driftwood.sock"; got != want {
		t.Errorf("SocketPath() = %q, want %q", got, want)
	}
}

func TestWriteJSON_ReturnsErrorForUnencodableValue(t *testing.T) {
	w := httptest.NewRecorder()

	// Channel values cannot be encoded to JSON
	if err := writeJSON(w, http.StatusOK, make(chan int)); err == nil {
		t.Error("writeJSON should return error for unencodable value")
	}
}

// createSocketTempDir creates a temp directory in /tmp directly (not TMPDIR)
// because Unix socket paths have a low length limit.
func createSocketTempDir(t *testing.T, name string) string {
	t.Helper()
	tmpDir, err := os.MkdirTemp("/tmp", "driftwood-"+name+"-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })
	return tmpDir
}

func TestServer_StartAndStop(t *testing.T) {
	tmpDir := createSocketTempDir(t, "startstop")
	t.Setenv("XDG_RUNTIME_DIR", tmpDir)

	s := NewServer("dev", nil, nil)

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	expectedPath := tmpDir + "/driftwood/driftwood.sock"
	if s.socketPath != expectedPath {
		t.Errorf("socketPath = %q, want %q", s.socketPath, expectedPath)
	}

	info, err := os.Stat(s.socketPath)
	if err != nil {
		t.Fatalf("socket file not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("socket permissions = %o, want 0600", perm)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if s.running.Load() {
		t.Error("server should not be running after Stop()")
	}
	if _, err := os.Stat(s.socketPath); !os.IsNotExist(err) {
		t.Error("socket file should be removed after Stop()")
	}
}

func TestServer_StartAndStop_WithHTTPRequests(t *testing.T) {
	tmpDir := createSocketTempDir(t, "http")
	t.Setenv("XDG_RUNTIME_DIR", tmpDir)

	var shutdownCalled atomic.Bool
	s := NewServer("1.0.0", func() { shutdownCalled.Store(true) }, func() int { return 2 })

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	}()

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(_ context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", s.socketPath)
			},
		},
		Timeout: 5 * time.Second,
	}

	t.Run("health endpoint", func(t *testing.T) {
		resp, err := client.Get("http://localhost/health")
		if err != nil {
			t.Fatalf("GET /health error = %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		var health HealthResponse
		if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if health.Status != "healthy" {
			t.Errorf("status = %q, want %q", health.Status, "healthy")
		}
	})

	t.Run("status endpoint", func(t *testing.T) {
		resp, err := client.Get("http://localhost/status")
		if err != nil {
			t.Fatalf("GET /status error = %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		var status StatusResponse
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if !status.Running {
			t.Error("running should be true")
		}
		if status.ActiveSessions != 2 {
			t.Errorf("active_sessions = %d, want 2", status.ActiveSessions)
		}
	})

	t.Run("shutdown endpoint", func(t *testing.T) {
		resp, err := client.Post("http://localhost/shutdown", "application/json", nil)
		if err != nil {
			t.Fatalf("POST /shutdown error = %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		var shutdown ShutdownResponse
		if err := json.NewDecoder(resp.Body).Decode(&shutdown); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if shutdown.Message != "shutdown initiated" {
			t.Errorf("message = %q, want %q", shutdown.Message, "shutdown initiated")
		}

		deadline := time.Now().Add(time.Second)
		for !shutdownCalled.Load() {
			if time.Now().After(deadline) {
				t.Fatal("shutdown callback was not called")
			}
			time.Sleep(5 * time.Millisecond)
		}
	})
}

func TestServer_Start_RemovesExistingSocket(t *testing.T) {
	tmpDir := createSocketTempDir(t, "removesocket")
	t.Setenv("XDG_RUNTIME_DIR", tmpDir)

	runtimeDir := tmpDir + "/driftwood"
	if err := os.MkdirAll(runtimeDir, 0o700); err != nil {
		t.Fatalf("failed to create runtime dir: %v", err)
	}
	socketPath := runtimeDir + "/driftwood.sock"
	if err := os.WriteFile(socketPath, []byte("old socket"), 0o600); err != nil {
		t.Fatalf("failed to create fake socket: %v", err)
	}

	s := NewServer("dev", nil, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	defer func() { _ = s.Stop(ctx) }()

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatalf("socket file not created: %v", err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		t.Error("file should be a socket, not a regular file")
	}
}

func TestServer_Stop_HandlesNilServerGracefully(t *testing.T) {
	s := NewServer("dev", nil, nil)
	// httpServer is nil, listener is nil, socketPath is empty

	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop should succeed with nil server components, got: %v", err)
	}
	if s.running.Load() {
		t.Error("server should not be running after Stop()")
	}
}
