// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftwood Contributors

package observability

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, ready ReadinessChecker, count SessionCounter) *Server {
	t.Helper()

	s := NewServer("127.0.0.1:0", ready, count)
	_, err := s.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_Liveness(t *testing.T) {
	s := startTestServer(t, nil, nil)

	status, body := get(t, "http://"+s.Addr()+"/healthz/liveness")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok\n", body)
}

func TestServer_Readiness(t *testing.T) {
	ready := false
	s := startTestServer(t, func() bool { return ready }, nil)

	status, _ := get(t, "http://"+s.Addr()+"/healthz/readiness")
	assert.Equal(t, http.StatusServiceUnavailable, status)

	ready = true
	status, _ = get(t, "http://"+s.Addr()+"/healthz/readiness")
	assert.Equal(t, http.StatusOK, status)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	s := startTestServer(t, nil, func() int { return 7 })

	s.Metrics().LoginsTotal.WithLabelValues("success").Inc()
	s.Metrics().LockoutsTotal.Inc()

	status, body := get(t, "http://"+s.Addr()+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "driftwood_logins_total")
	assert.Contains(t, body, "driftwood_lockouts_total")
	assert.Contains(t, body, "driftwood_sessions_active 7")
}

func TestServer_DoubleStartFails(t *testing.T) {
	s := startTestServer(t, nil, nil)

	_, err := s.Start()
	assert.Error(t, err)
}

func TestNewMetrics_NilSessionCounter(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry(), nil)
	assert.NotNil(t, m.SessionsActive)
}
