package tensorrack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

func TestClient_SendsAuthHeaders(t *testing.T) {
	var gotAuth, gotProject string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotProject = r.Header.Get("X-Project-ID")
		_, _ = w.Write([]byte(`{"instance":{"id":"ins-1"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.getInstance(context.Background(), "ins-1", "fr-par-2")
	require.NoError(t, err)
	require.Equal(t, "Bearer sk-test", gotAuth)
	require.Equal(t, "proj-test", gotProject)
}

func TestClient_CreateInstance_RetriesWithoutRejectedOptionalField(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(raw))
		if strings.Contains(string(raw), "cloud_init") {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"unknown field \"cloud_init\""}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"instance":{"id":"ins-42"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	id, err := c.CreateInstance(context.Background(), domain.CreateInstanceRequest{
		Zone:         "fr-par-2",
		InstanceType: "gpu-h100-1",
		Image:        "ubuntu-cuda-12",
		Hostname:     "worker-1",
		CloudInit:    "#cloud-config\nruncmd: [start-worker]",
	})
	require.NoError(t, err)
	require.Equal(t, "ins-42", id)
	require.Len(t, bodies, 2)
	require.Contains(t, bodies[0], "cloud_init")
	require.NotContains(t, bodies[1], "cloud_init")
}

func TestClient_CreateInstance_DoesNotRetryUnrelatedRejections(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"quota exceeded"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.CreateInstance(context.Background(), domain.CreateInstanceRequest{
		Zone: "fr-par-2", InstanceType: "gpu-h100-1", Image: "ubuntu-cuda-12",
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestClient_NonOKSurfacesResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"message":"gpu stock exhausted in fr-par-2"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.StartInstance(context.Background(), "ins-1", "fr-par-2")
	require.Error(t, err)
	require.Equal(t, domain.CodeProviderTransient, domain.CodeOf(err))
	require.Contains(t, err.Error(), "gpu stock exhausted")
	require.Contains(t, err.Error(), "503")
}

func TestClient_TerminateInstance_NotFoundIsAlreadyDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	done, err := c.TerminateInstance(context.Background(), "ins-gone", "fr-par-2")
	require.NoError(t, err)
	require.True(t, done)
}

func TestClient_CheckInstanceExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/ins-alive") {
			_, _ = w.Write([]byte(`{"instance":{"id":"ins-alive","state":"running"}}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	exists, err := c.CheckInstanceExists(context.Background(), "ins-alive", "fr-par-2")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = c.CheckInstanceExists(context.Background(), "ins-gone", "fr-par-2")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestClient_GetInstanceIP_UnassignedIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/ins-with-ip") {
			_, _ = w.Write([]byte(`{"instance":{"id":"ins-with-ip","public_ip":{"address":"51.15.3.7"}}}`))
			return
		}
		_, _ = w.Write([]byte(`{"instance":{"id":"ins-no-ip"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	ip, err := c.GetInstanceIP(context.Background(), "ins-with-ip", "fr-par-2")
	require.NoError(t, err)
	require.Equal(t, "51.15.3.7", ip)

	ip, err = c.GetInstanceIP(context.Background(), "ins-no-ip", "fr-par-2")
	require.NoError(t, err)
	require.Empty(t, ip)
}

func TestClient_FetchCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/zones/fr-par-2/products", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"products": []map[string]any{
				{
					"id": "gpu-h100-1", "name": "H100-1-80G", "gpu_model": "H100 SXM5",
					"gpu_count": 1, "vcpus": 24, "memory_gb": 240, "disk_gb": 400,
					"hourly_price": 2.73, "currency": "EUR", "stock": "available",
				},
				{
					"id": "gpu-l4-1", "name": "L4-1-24G", "gpu_model": "L4",
					"gpu_count": 1, "vcpus": 8, "memory_gb": 48, "disk_gb": 200,
					"hourly_price": 0.75, "currency": "EUR", "stock": "out_of_stock",
				},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	items, err := c.FetchCatalog(context.Background(), "fr-par-2")
	require.NoError(t, err)

	want := []domain.CatalogItem{
		{
			ID: "gpu-h100-1", Zone: "fr-par-2", Name: "H100-1-80G", GPUModel: "H100 SXM5",
			GPUCount: 1, CPUCores: 24, MemoryGB: 240, DiskGB: 400,
			PricePerHour: 2.73, Currency: "EUR", Available: true,
		},
		{
			ID: "gpu-l4-1", Zone: "fr-par-2", Name: "L4-1-24G", GPUModel: "L4",
			GPUCount: 1, CPUCores: 8, MemoryGB: 48, DiskGB: 200,
			PricePerHour: 0.75, Currency: "EUR", Available: false,
		},
	}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Fatalf("catalog mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_VolumeLifecycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/zones/fr-par-2/volumes":
			_, _ = w.Write([]byte(`{"volume":{"id":"vol-1"}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/zones/fr-par-2/volumes/vol-1/attach":
			raw, _ := io.ReadAll(r.Body)
			require.Contains(t, string(raw), "ins-1")
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx := context.Background()
	volumeID, err := c.CreateVolume(ctx, "fr-par-2", domain.VolumeSpec{Name: "models", SizeGB: 400})
	require.NoError(t, err)
	require.Equal(t, "vol-1", volumeID)
	require.NoError(t, c.AttachVolume(ctx, "fr-par-2", "vol-1", "ins-1"))
	require.NoError(t, c.DeleteVolume(ctx, "fr-par-2", "vol-1"))
}

func newTestClient(baseURL string) *Client {
	return New(Credentials{ProjectID: "proj-test", SecretKey: "sk-test"}, Options{
		BaseURL: baseURL,
	})
}
