// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.


package healthcheck

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusStarting, "starting"},
		{StatusHealthy, "healthy"},
		{StatusUnhealthy, "unhealthy"},
		{Status(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestNewServerDefaultsPort(t *testing.T) {
	assert.Equal(t, 8090, NewServer(Config{}).port)
	assert.Equal(t, 9090, NewServer(Config{Port: 9090}).port)
}

func TestServer_SetGetStatus(t *testing.T) {
	server := NewServer(Config{})
	assert.Equal(t, StatusStarting, server.GetStatus())

	server.SetStatus(StatusHealthy)
	assert.Equal(t, StatusHealthy, server.GetStatus())
}

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name            string
		status          Status
		ready           bool
		endpoint        string
		expectedStatus  int
		expectedHealthy bool
	}{
		{"healthz starting", StatusStarting, false, "/healthz", http.StatusServiceUnavailable, false},
		{"healthz healthy", StatusHealthy, false, "/healthz", http.StatusOK, true},
		{"healthz unhealthy", StatusUnhealthy, true, "/healthz", http.StatusServiceUnavailable, false},
		{"readyz not ready", StatusHealthy, false, "/readyz", http.StatusServiceUnavailable, false},
		{"readyz ready", StatusHealthy, true, "/readyz", http.StatusOK, true},
		{"readyz unhealthy", StatusUnhealthy, true, "/readyz", http.StatusServiceUnavailable, false},
		{"livez starting", StatusStarting, false, "/livez", http.StatusOK, true},
		{"livez unhealthy", StatusUnhealthy, false, "/livez", http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := NewServer(Config{})
			server.SetStatus(tt.status)
			server.SetReady(tt.ready)

			rr := httptest.NewRecorder()
			server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.endpoint, nil))

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			var response Response
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
			assert.Equal(t, tt.expectedHealthy, response.Healthy)
			assert.Equal(t, tt.status.String(), response.Status)
		})
	}
}

func TestStatusReport(t *testing.T) {
	server := NewServer(Config{})
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	server.now = func() time.Time { return fixed }

	get := func() Report {
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		var report Report
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
		return report
	}

	report := get()
	assert.Equal(t, "starting", report.Status)
	assert.False(t, report.Ready)
	assert.Zero(t, report.NextEventID)
	assert.Nil(t, report.LastPublished)

	server.SetStatus(StatusHealthy)
	server.SetReady(true)
	server.RecordProgress(26)

	report = get()
	assert.True(t, report.Ready)
	assert.Equal(t, int64(26), report.NextEventID)
	require.NotNil(t, report.LastPublished)
	assert.True(t, fixed.Equal(*report.LastPublished))
}

func TestUnknownRoute(t *testing.T) {
	rr := httptest.NewRecorder()
	NewServer(Config{}).Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStartStopsOnCancel(t *testing.T) {
	server := NewServer(Config{Port: 18090})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Start(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
