package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ridgeline/gateway/internal/gwconfig"
	"github.com/ridgeline/gateway/internal/proxy"
	"github.com/ridgeline/gateway/internal/reload"
	"github.com/ridgeline/gateway/internal/serverstate"
)

func newTestGateway(t *testing.T, dyn *gwconfig.Dynamic) *Gateway {
	t.Helper()
	states := serverstate.NewStore()
	snap, err := reload.Compile(1, dyn, nil, states)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	gw := New(proxy.New(proxy.Config{States: states}), states)
	gw.Reload(snap)()
	return gw
}

func TestGatewayDispatchesToMatchedService(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	dyn := &gwconfig.Dynamic{
		EntryPoints: map[string]gwconfig.EntryPoint{"web": {Address: ":8080"}},
		HTTP: gwconfig.HTTPConfig{
			Routers: map[string]gwconfig.HTTPRouter{
				"api": {EntryPoints: []string{"web"}, Rule: "PathPrefix(`/api`)", Service: "api-svc"},
			},
			Services: map[string]gwconfig.HTTPService{
				"api-svc": {LoadBalancer: &gwconfig.LoadBalancerService{
					Servers: []gwconfig.Server{{URL: backend.URL, Weight: 1}},
				}},
			},
		},
	}

	gw := newTestGateway(t, dyn)

	req := httptest.NewRequest("GET", "/api/users", nil)
	rr := httptest.NewRecorder()
	gw.Handler("web").ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestGatewayNoMatchReturns404(t *testing.T) {
	dyn := &gwconfig.Dynamic{
		EntryPoints: map[string]gwconfig.EntryPoint{"web": {Address: ":8080"}},
		HTTP: gwconfig.HTTPConfig{
			Routers: map[string]gwconfig.HTTPRouter{
				"api": {EntryPoints: []string{"web"}, Rule: "PathPrefix(`/api`)", Service: "api-svc"},
			},
			Services: map[string]gwconfig.HTTPService{
				"api-svc": {LoadBalancer: &gwconfig.LoadBalancerService{
					Servers: []gwconfig.Server{{URL: "http://127.0.0.1:1", Weight: 1}},
				}},
			},
		},
	}

	gw := newTestGateway(t, dyn)

	req := httptest.NewRequest("GET", "/nope", nil)
	rr := httptest.NewRecorder()
	gw.Handler("web").ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestGatewayWeightedServiceDispatches(t *testing.T) {
	var hitA, hitB int
	backendA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitA++
		w.WriteHeader(http.StatusOK)
	}))
	defer backendA.Close()
	backendB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitB++
		w.WriteHeader(http.StatusOK)
	}))
	defer backendB.Close()

	dyn := &gwconfig.Dynamic{
		EntryPoints: map[string]gwconfig.EntryPoint{"web": {Address: ":8080"}},
		HTTP: gwconfig.HTTPConfig{
			Routers: map[string]gwconfig.HTTPRouter{
				"split": {EntryPoints: []string{"web"}, Rule: "PathPrefix(`/`)", Service: "split-svc"},
			},
			Services: map[string]gwconfig.HTTPService{
				"svc-a": {LoadBalancer: &gwconfig.LoadBalancerService{Servers: []gwconfig.Server{{URL: backendA.URL, Weight: 1}}}},
				"svc-b": {LoadBalancer: &gwconfig.LoadBalancerService{Servers: []gwconfig.Server{{URL: backendB.URL, Weight: 1}}}},
				"split-svc": {Weighted: &gwconfig.WeightedService{Services: []gwconfig.WeightedChildRef{
					{Name: "svc-a", Weight: 1},
					{Name: "svc-b", Weight: 1},
				}}},
			},
		},
	}

	gw := newTestGateway(t, dyn)

	for i := 0; i < 20; i++ {
		req := httptest.NewRequest("GET", "/", nil)
		rr := httptest.NewRecorder()
		gw.Handler("web").ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	}

	if hitA == 0 || hitB == 0 {
		t.Fatalf("expected both weighted children to receive traffic, got a=%d b=%d", hitA, hitB)
	}
}
