package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

func TestHTTPProbe_Health(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, domain.DefaultWorkerHealthPath, r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"ok","phase":"starting","model_id":"llama-3-8b","queue_depth":2}`))
	}))
	defer srv.Close()

	p, ip := probeFor(t, srv)
	health, err := p.Health(context.Background(), ip)
	require.NoError(t, err)
	require.Equal(t, "ok", health.Status)
	require.Equal(t, "starting", health.Phase)
	require.Equal(t, "llama-3-8b", health.ModelID)
	require.NotNil(t, health.QueueDepth)
	require.Equal(t, 2, *health.QueueDepth)
}

func TestHTTPProbe_HealthNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, ip := probeFor(t, srv)
	_, err := p.Health(context.Background(), ip)
	require.Error(t, err)
	require.Contains(t, err.Error(), "503")
}

func TestHTTPProbe_Models(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, domain.DefaultWorkerModelsPath, r.URL.Path)
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"llama-3-8b"},{"id":"llama-3-8b-awq"}]}`))
	}))
	defer srv.Close()

	p, ip := probeFor(t, srv)
	models, err := p.Models(context.Background(), ip)
	require.NoError(t, err)
	require.Equal(t, []string{"llama-3-8b", "llama-3-8b-awq"}, models)
}

func TestHTTPProbe_UnreachableWorker(t *testing.T) {
	p := New(Options{Port: 1})
	_, err := p.Health(context.Background(), "127.0.0.1")
	require.Error(t, err)
}

// probeFor points a probe at the test server's ephemeral port.
func probeFor(t *testing.T, srv *httptest.Server) (*HTTPProbe, string) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return New(Options{Port: port}), host
}
