// Package gateway wires a reload.Manager, router.Table and proxy.Proxy
// together into the request plane: match an inbound request against the
// current RuntimeSnapshot, run its middleware chain, and dispatch to the
// matched service's handler.
package gateway

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"

	"github.com/ridgeline/gateway/internal/errors"
	"github.com/ridgeline/gateway/internal/health"
	"github.com/ridgeline/gateway/internal/loadbalancer"
	"github.com/ridgeline/gateway/internal/middleware"
	"github.com/ridgeline/gateway/internal/proxy"
	"github.com/ridgeline/gateway/internal/reload"
	"github.com/ridgeline/gateway/internal/router"
	"github.com/ridgeline/gateway/internal/rulelang"
	"github.com/ridgeline/gateway/internal/serverstate"
	"github.com/ridgeline/gateway/internal/snapshot"
	"github.com/ridgeline/gateway/variables"
)

// generation bundles everything derived from one RuntimeSnapshot: the
// router table used for matching and the resolved per-service handlers.
// Built once per reload and swapped atomically alongside the snapshot.
type generation struct {
	snap     *snapshot.RuntimeSnapshot
	table    *router.Table
	tcpTable *router.TCPTable
	udpTable *router.UDPTable
	handlers map[string]http.Handler
}

// probeTarget is what an active health probe needs to fold its result back
// into serverstate and the load balancer that picked the backend.
type probeTarget struct {
	identity       string
	balancer       loadbalancer.Balancer
	healthyAfter   int
	unhealthyAfter int
}

// Gateway is the HTTP request plane. One Gateway serves every entry point;
// callers route inbound connections to Gateway.Handler(entryPoint).
type Gateway struct {
	mgr     *reload.Manager
	proxy   *proxy.Proxy
	states  *serverstate.Store
	checker *health.Checker

	mu  sync.RWMutex
	gen *generation

	probeMu sync.RWMutex
	probes  map[string]probeTarget // keyed by backend URL
}

// New creates a Gateway backed by proxy for backend dispatch and states
// for per-server health/load bookkeeping. It starts an active health
// checker whose probe results feed serverstate and mark balancers
// healthy/unhealthy; Close stops it.
func New(p *proxy.Proxy, states *serverstate.Store) *Gateway {
	g := &Gateway{
		mgr:    reload.NewManager(),
		proxy:  p,
		states: states,
		probes: make(map[string]probeTarget),
	}
	g.checker = health.NewChecker(health.Config{OnChange: g.onHealthChange})
	return g
}

// Close stops the active health checker. Safe to call once during server
// shutdown.
func (g *Gateway) Close() {
	g.checker.Stop()
}

// HealthChecker returns the active health checker driving this Gateway's
// serverstate/balancer updates, so the Proxy backing it can consult the
// same checker before dispatch.
func (g *Gateway) HealthChecker() *health.Checker {
	return g.checker
}

// Reload compiles snap (already built by reload.Compile) into a new
// generation, resolves every service into a dispatchable handler, and
// publishes it. The returned func blocks until requests in flight against
// the previous generation have drained; call it before tearing down
// listeners the new snapshot removed.
func (g *Gateway) Reload(snap *snapshot.RuntimeSnapshot) func() {
	gen := &generation{
		snap:     snap,
		table:    router.BuildHTTP(flattenHTTPRouters(snap)),
		tcpTable: router.BuildTCP(flattenTCPRouters(snap)),
		udpTable: router.BuildUDP(flattenUDPRouters(snap)),
		handlers: make(map[string]http.Handler, len(snap.Services)),
	}
	for name := range snap.Services {
		gen.handlers[name] = g.resolveHandler(snap, gen.handlers, name, nil)
	}

	if g.states != nil {
		g.states.Prune(liveServerIdentities(snap))
	}

	g.mu.Lock()
	g.gen = gen
	g.mu.Unlock()

	g.syncHealthChecks(snap)

	return g.mgr.Swap(snap)
}

// syncHealthChecks reconciles the active health checker's backend set with
// snap: every LoadBalancer service server with health checking enabled
// gets an active probe, and servers no longer present stop being probed.
func (g *Gateway) syncHealthChecks(snap *snapshot.RuntimeSnapshot) {
	probes := make(map[string]probeTarget)

	for _, svc := range snap.Services {
		if svc.Kind != snapshot.ServiceLoadBalancer || !svc.HealthCheckEnabled || svc.HealthCheck == nil {
			continue
		}
		hc := svc.HealthCheck
		healthyAfter, unhealthyAfter := hc.HealthyAfter, hc.UnhealthyAfter
		if healthyAfter == 0 {
			healthyAfter = 2
		}
		if unhealthyAfter == 0 {
			unhealthyAfter = 3
		}

		for _, srv := range svc.Servers {
			probes[srv.URL] = probeTarget{
				identity:       srv.Identity,
				balancer:       svc.Balancer,
				healthyAfter:   healthyAfter,
				unhealthyAfter: unhealthyAfter,
			}
			g.checker.UpdateBackend(health.Backend{
				URL:            srv.URL,
				HealthPath:     hc.Path,
				Interval:       hc.Interval,
				Timeout:        hc.Timeout,
				HealthyAfter:   healthyAfter,
				UnhealthyAfter: unhealthyAfter,
			})
		}
	}

	g.probeMu.Lock()
	var stale []string
	for url := range g.probes {
		if _, ok := probes[url]; !ok {
			stale = append(stale, url)
		}
	}
	g.probes = probes
	g.probeMu.Unlock()

	for _, url := range stale {
		g.checker.RemoveBackend(url)
	}
}

// onHealthChange is the active checker's OnChange callback: it folds a
// probe transition into the backend's serverstate.State and flips its
// load balancer admission accordingly.
func (g *Gateway) onHealthChange(url string, status health.Status) {
	g.probeMu.RLock()
	target, ok := g.probes[url]
	g.probeMu.RUnlock()
	if !ok {
		return
	}

	healthy := status == health.StatusHealthy
	result := serverstate.StatusUnhealthy
	if g.states != nil {
		result = g.states.GetOrCreate(target.identity).RecordProbe(healthy, target.healthyAfter, target.unhealthyAfter)
	} else if healthy {
		result = serverstate.StatusHealthy
	}

	if target.balancer == nil {
		return
	}
	switch result {
	case serverstate.StatusHealthy:
		target.balancer.MarkHealthy(url)
	case serverstate.StatusUnhealthy:
		target.balancer.MarkUnhealthy(url)
	}
}

func liveServerIdentities(snap *snapshot.RuntimeSnapshot) map[string]struct{} {
	keep := make(map[string]struct{})
	for _, svc := range snap.Services {
		for _, srv := range svc.Servers {
			keep[srv.Identity] = struct{}{}
		}
	}
	return keep
}

func flattenHTTPRouters(snap *snapshot.RuntimeSnapshot) []*snapshot.Router {
	seen := make(map[*snapshot.Router]struct{})
	var out []*snapshot.Router
	for _, group := range snap.HTTPRouters {
		for _, r := range group {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

func flattenTCPRouters(snap *snapshot.RuntimeSnapshot) []*snapshot.TCPRouter {
	seen := make(map[*snapshot.TCPRouter]struct{})
	var out []*snapshot.TCPRouter
	for _, group := range snap.TCPRouters {
		for _, r := range group {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

func flattenUDPRouters(snap *snapshot.RuntimeSnapshot) []*snapshot.UDPRouter {
	seen := make(map[*snapshot.UDPRouter]struct{})
	var out []*snapshot.UDPRouter
	for _, group := range snap.UDPRouters {
		for _, r := range group {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

// resolveHandler builds the dispatchable handler for a named service,
// recursing through Weighted/Mirroring/Failover variants. visiting guards
// against infinite recursion; reload.Compile already rejects cycles, so
// this is a backstop, not the primary defense.
func (g *Gateway) resolveHandler(snap *snapshot.RuntimeSnapshot, cache map[string]http.Handler, name string, visiting map[string]bool) http.Handler {
	if h, ok := cache[name]; ok {
		return h
	}
	if visiting == nil {
		visiting = make(map[string]bool)
	}
	if visiting[name] {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			errors.ErrInternalServer.WithDetails("service reference cycle: " + name).WriteJSON(w)
		})
	}
	visiting[name] = true
	defer delete(visiting, name)

	svc, ok := snap.Services[name]
	if !ok {
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			errors.ErrInternalServer.WithDetails("unknown service: " + name).WriteJSON(w)
		})
		cache[name] = h
		return h
	}

	var h http.Handler
	switch svc.Kind {
	case snapshot.ServiceLoadBalancer:
		h = g.proxy.Handler(svc, svc.Balancer, nil)
	case snapshot.ServiceWeighted:
		h = g.resolveWeightedHandler(snap, cache, svc, visiting)
	case snapshot.ServiceMirroring:
		h = g.resolveMirroringHandler(snap, cache, svc, visiting)
	case snapshot.ServiceFailover:
		h = g.resolveFailoverHandler(snap, cache, svc, visiting)
	default:
		h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			errors.ErrInternalServer.WithDetails(fmt.Sprintf("unhandled service kind for %s", name)).WriteJSON(w)
		})
	}
	cache[name] = h
	return h
}

func (g *Gateway) resolveWeightedHandler(snap *snapshot.RuntimeSnapshot, cache map[string]http.Handler, svc *snapshot.Service, visiting map[string]bool) http.Handler {
	type child struct {
		handler http.Handler
		weight  int
	}
	children := make([]child, 0, len(svc.WeightedChildren))
	total := 0
	for _, wc := range svc.WeightedChildren {
		h := g.resolveHandler(snap, cache, wc.ServiceName, visiting)
		weight := wc.Weight
		if weight <= 0 {
			weight = 1
		}
		children = append(children, child{handler: h, weight: weight})
		total += weight
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(children) == 0 || total == 0 {
			errors.ErrServiceUnavailable.WithDetails("no weighted children configured").WriteJSON(w)
			return
		}
		n := rand.Intn(total)
		acc := 0
		idx := len(children) - 1
		for i, c := range children {
			acc += c.weight
			if n < acc {
				idx = i
				break
			}
		}
		children[idx].handler.ServeHTTP(w, r)
	})
}

func (g *Gateway) resolveMirroringHandler(snap *snapshot.RuntimeSnapshot, cache map[string]http.Handler, svc *snapshot.Service, visiting map[string]bool) http.Handler {
	primary := g.resolveHandler(snap, cache, svc.MirrorPrimary, visiting)
	type mirror struct {
		handler http.Handler
		percent float64
	}
	mirrors := make([]mirror, 0, len(svc.Mirrors))
	for _, m := range svc.Mirrors {
		mirrors = append(mirrors, mirror{handler: g.resolveHandler(snap, cache, m.ServiceName, visiting), percent: m.Percent})
	}
	mirrorBody := svc.MirrorBody

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, m := range mirrors {
			if !shouldMirror(m.percent) {
				continue
			}
			mirrorReq, ok := cloneForMirror(r, mirrorBody)
			if !ok {
				continue
			}
			go func(h http.Handler, req *http.Request) {
				h.ServeHTTP(discardResponseWriter{}, req)
			}(m.handler, mirrorReq)
		}
		primary.ServeHTTP(w, r)
	})
}

func (g *Gateway) resolveFailoverHandler(snap *snapshot.RuntimeSnapshot, cache map[string]http.Handler, svc *snapshot.Service, visiting map[string]bool) http.Handler {
	primary := g.resolveHandler(snap, cache, svc.FailoverPrimary, visiting)
	fallback := g.resolveHandler(snap, cache, svc.FailoverFallback, visiting)

	primarySvc, hasBalancer := snap.Services[svc.FailoverPrimary]

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hasBalancer && primarySvc.Balancer != nil && primarySvc.Balancer.HealthyCount() == 0 {
			fallback.ServeHTTP(w, r)
			return
		}
		primary.ServeHTTP(w, r)
	})
}

// Handler returns the http.Handler for one entry point: match, run the
// router's middleware chain, dispatch to the matched service.
func (g *Gateway) Handler(entryPoint string) http.Handler {
	base := middleware.NewBuilder().
		Use(middleware.Recovery()).
		Use(middleware.RequestID()).
		Use(middleware.LoggingWithConfig(middleware.LoggingConfig{Format: "combined"})).
		Build()

	return base.Then(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.serveHTTP(w, r, entryPoint)
	}))
}

func (g *Gateway) serveHTTP(w http.ResponseWriter, r *http.Request, entryPoint string) {
	g.mu.RLock()
	gen := g.gen
	g.mu.RUnlock()
	if gen == nil {
		errors.ErrServiceUnavailable.WithDetails("no configuration loaded").WriteJSON(w)
		return
	}

	desc := rulelang.DescriptorFromRequest(r)
	matched := gen.table.Match(entryPoint, &desc)
	if matched == nil {
		errors.ErrNotFound.WriteJSON(w)
		return
	}

	varCtx := variables.GetFromRequest(r)
	varCtx.RouteID = matched.Name

	handler, ok := gen.handlers[matched.ServiceName]
	if !ok {
		errors.ErrInternalServer.WithDetails("service handler not resolved: " + matched.ServiceName).WriteJSON(w)
		return
	}

	if matched.Middlewares != nil && matched.Middlewares.Len() > 0 {
		matched.Middlewares.Then(handler).ServeHTTP(w, r)
		return
	}
	handler.ServeHTTP(w, r)
}

// Current returns the currently published RuntimeSnapshot, or nil before
// the first Reload.
func (g *Gateway) Current() *snapshot.RuntimeSnapshot {
	return g.mgr.Current()
}

// TCPTable returns the current TCP router table, or nil before the first Reload.
func (g *Gateway) TCPTable() *router.TCPTable {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.gen == nil {
		return nil
	}
	return g.gen.tcpTable
}

// UDPTable returns the current UDP router table, or nil before the first Reload.
func (g *Gateway) UDPTable() *router.UDPTable {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.gen == nil {
		return nil
	}
	return g.gen.udpTable
}

func shouldMirror(percent float64) bool {
	if percent >= 100 {
		return true
	}
	if percent <= 0 {
		return false
	}
	return rand.Float64()*100 < percent
}

// cloneForMirror builds an independent request for a fire-and-forget
// mirror target. The original request's body is consumed by the primary
// handler, so mirroring with a body requires buffering it first.
func cloneForMirror(r *http.Request, withBody bool) (*http.Request, bool) {
	clone := r.Clone(r.Context())
	if !withBody || r.Body == nil || r.Body == http.NoBody {
		clone.Body = http.NoBody
		clone.ContentLength = 0
		return clone, true
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, false
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	clone.Body = io.NopCloser(bytes.NewReader(body))
	return clone, true
}

// discardResponseWriter throws away a mirrored request's response.
type discardResponseWriter struct{}

func (discardResponseWriter) Header() http.Header       { return make(http.Header) }
func (discardResponseWriter) Write(b []byte) (int, error) { return len(b), nil }
func (discardResponseWriter) WriteHeader(int)            {}
