package proxy

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/ridgeline/gateway/internal/circuitbreaker"
	internalconfig "github.com/ridgeline/gateway/internal/config"
	"github.com/ridgeline/gateway/internal/errors"
	"github.com/ridgeline/gateway/internal/health"
	"github.com/ridgeline/gateway/internal/loadbalancer"
	"github.com/ridgeline/gateway/internal/retry"
	"github.com/ridgeline/gateway/internal/serverstate"
	"github.com/ridgeline/gateway/internal/snapshot"
	"github.com/ridgeline/gateway/variables"
)

// Proxy handles proxying requests to backends. It is stateless across
// services: one Proxy is shared by every RouteProxy built from a
// RuntimeSnapshot, keyed internally by serversTransport via the
// TransportPool.
type Proxy struct {
	transportPool  *TransportPool
	healthChecker  *health.Checker
	states         *serverstate.Store
	resolver       *variables.Resolver
	defaultTimeout time.Duration
	flushInterval  time.Duration

	breakersMu sync.Mutex
	breakers   map[string]*circuitbreaker.Breaker
}

// Config holds proxy configuration
type Config struct {
	Transport      http.RoundTripper // deprecated: use TransportPool
	TransportPool  *TransportPool
	HealthChecker  *health.Checker
	States         *serverstate.Store
	DefaultTimeout time.Duration
	FlushInterval  time.Duration
}

// New creates a new proxy
func New(cfg Config) *Proxy {
	pool := cfg.TransportPool
	if pool == nil {
		if cfg.Transport != nil {
			pool = &TransportPool{
				defaultTransport: cfg.Transport,
				transports:       make(map[string]http.RoundTripper),
			}
		} else {
			pool = NewTransportPool()
		}
	}

	timeout := cfg.DefaultTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	flushInterval := cfg.FlushInterval
	if flushInterval == 0 {
		flushInterval = -1 // Don't flush
	}

	return &Proxy{
		transportPool:  pool,
		healthChecker:  cfg.HealthChecker,
		states:         cfg.States,
		resolver:       variables.NewResolver(),
		defaultTimeout: timeout,
		flushInterval:  flushInterval,
		breakers:       make(map[string]*circuitbreaker.Breaker),
	}
}

// breakerFor returns the circuit breaker for a backend identity, creating
// one with default thresholds on first use.
func (p *Proxy) breakerFor(identity string) *circuitbreaker.Breaker {
	p.breakersMu.Lock()
	defer p.breakersMu.Unlock()
	b, ok := p.breakers[identity]
	if !ok {
		b = circuitbreaker.NewBreaker(internalconfig.CircuitBreakerConfig{})
		p.breakers[identity] = b
	}
	return b
}

// SetHealthChecker wires the active health checker consulted before
// dispatch. Used when the checker is owned by the caller (see
// internal/gateway.Gateway) and only available after Proxy is constructed.
func (p *Proxy) SetHealthChecker(c *health.Checker) {
	p.healthChecker = c
}

// GetTransportPool returns the transport pool.
func (p *Proxy) GetTransportPool() *TransportPool {
	return p.transportPool
}

// SetTransportPool replaces the transport pool (used during config reload).
func (p *Proxy) SetTransportPool(pool *TransportPool) {
	p.transportPool = pool
}

// Resolver returns the variable resolver used to expand ${...} templates
// in middleware-configured header values (see the headers middleware).
func (p *Proxy) Resolver() *variables.Resolver {
	return p.resolver
}

// Handler returns an http.Handler that load-balances across svc's servers
// and proxies the request to the chosen one. retryPolicy may be nil.
func (p *Proxy) Handler(svc *snapshot.Service, balancer loadbalancer.Balancer, retryPolicy *retry.Policy) http.Handler {
	transport := p.transportPool.Get(svc.ServersTransport)

	reqAwareBalancer, isRequestAware := balancer.(loadbalancer.RequestAwareBalancer)
	latencyRecorder, _ := balancer.(loadbalancer.LatencyRecorder)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		varCtx := variables.GetFromRequest(r)
		varCtx.RouteID = svc.Name

		ctx := r.Context()
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.defaultTimeout)
			defer cancel()
		}

		start := time.Now()

		var backend *loadbalancer.Backend
		if isRequestAware {
			backend, _ = reqAwareBalancer.NextForHTTPRequest(r)
		} else {
			backend = balancer.Next()
		}
		if backend == nil {
			errors.ErrServiceUnavailable.WithDetails("no healthy backends available").WriteJSON(w)
			return
		}
		if p.healthChecker != nil && p.healthChecker.GetStatus(backend.URL) == health.StatusUnhealthy {
			balancer.MarkUnhealthy(backend.URL)
			errors.ErrServiceUnavailable.WithDetails("selected backend failed its active health check").WriteJSON(w)
			return
		}
		backend.IncrActive()
		defer backend.DecrActive()
		varCtx.UpstreamAddr = backend.URL

		identity := svc.ServersTransport + "|" + backend.URL

		var state *serverstate.State
		if p.states != nil {
			state = p.states.GetOrCreate(identity)
			state.BeginRequest()
			defer func() { state.FinishRequest(time.Since(start)) }()
		}

		breaker := p.breakerFor(identity)
		if allowed, breakerErr := breaker.Allow(); !allowed {
			balancer.MarkUnhealthy(backend.URL)
			errors.ErrServiceUnavailable.WithDetails(breakerErr.Error()).WriteJSON(w)
			return
		}

		targetURL := backend.ParsedURL
		if targetURL == nil {
			var parseErr error
			targetURL, parseErr = url.Parse(backend.URL)
			if parseErr != nil {
				errors.ErrBadGateway.WithDetails("invalid backend URL").WriteJSON(w)
				return
			}
		}

		pooledHeader := acquireProxyHeader()
		defer releaseProxyHeader(pooledHeader)
		proxyReq := p.createProxyRequest(ctx, r, targetURL, svc, pooledHeader)

		var resp *http.Response
		var err error
		if retryPolicy != nil {
			resp, err = retryPolicy.Execute(ctx, transport, proxyReq)
		} else {
			resp, err = transport.RoundTrip(proxyReq)
		}
		varCtx.UpstreamResponseTime = time.Since(start)

		if latencyRecorder != nil {
			latencyRecorder.RecordLatency(backend.URL, varCtx.UpstreamResponseTime)
		}

		if err != nil {
			breaker.RecordFailure()
			p.handleError(w, r, err, backend.URL, balancer)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			breaker.RecordFailure()
		} else {
			breaker.RecordSuccess()
		}

		varCtx.UpstreamStatus = resp.StatusCode
		p.copyHeaders(w.Header(), resp.Header)
		w.WriteHeader(resp.StatusCode)
		p.copyBody(w, resp.Body)
	})
}

var proxyHeaderPool = sync.Pool{
	New: func() any { return make(http.Header, 16) },
}

func acquireProxyHeader() http.Header {
	h := proxyHeaderPool.Get().(http.Header)
	clear(h)
	return h
}

func releaseProxyHeader(h http.Header) {
	if h == nil {
		return
	}
	if len(h) <= 64 {
		proxyHeaderPool.Put(h)
	}
}

// createProxyRequest builds the request sent to the backend. Path/query
// rewriting lives in middlewares now (stripPrefix etc.), so this only
// forwards the request as-is to target plus Host/X-Forwarded-* handling.
func (p *Proxy) createProxyRequest(ctx context.Context, r *http.Request, target *url.URL, svc *snapshot.Service, header http.Header) *http.Request {
	targetURL := *target
	targetURL.Path = singleJoiningSlash(target.Path, r.URL.Path)
	targetURL.RawQuery = r.URL.RawQuery

	proxyReq := (&http.Request{
		Method:        r.Method,
		URL:           &targetURL,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Body:          r.Body,
		ContentLength: r.ContentLength,
		Host:          target.Host,
	}).WithContext(ctx)

	if header != nil {
		proxyReq.Header = header
	} else {
		proxyReq.Header = make(http.Header, len(r.Header)+3)
	}
	for k, vv := range r.Header {
		proxyReq.Header[k] = vv
	}

	if svc.PassHostHeader {
		proxyReq.Host = r.Host
	} else {
		proxyReq.Host = target.Host
	}

	if clientIP := variables.ExtractClientIP(r); clientIP != "" {
		if prior := proxyReq.Header.Get("X-Forwarded-For"); prior != "" {
			proxyReq.Header.Set("X-Forwarded-For", prior+", "+clientIP)
		} else {
			proxyReq.Header.Set("X-Forwarded-For", clientIP)
		}
	}

	if r.TLS != nil {
		proxyReq.Header.Set("X-Forwarded-Proto", "https")
	} else {
		proxyReq.Header.Set("X-Forwarded-Proto", "http")
	}
	proxyReq.Header.Set("X-Forwarded-Host", r.Host)

	removeHopHeaders(proxyReq.Header)

	if varCtx := variables.GetFromRequest(r); varCtx != nil && varCtx.PropagateTrace {
		otel.GetTextMapPropagator().Inject(proxyReq.Context(), propagation.HeaderCarrier(proxyReq.Header))
	}

	return proxyReq
}

// handleError handles proxy errors
func (p *Proxy) handleError(w http.ResponseWriter, r *http.Request, err error, backendURL string, balancer loadbalancer.Balancer) {
	if balancer != nil {
		balancer.MarkUnhealthy(backendURL)
	}

	if err == context.DeadlineExceeded {
		errors.ErrGatewayTimeout.WriteJSON(w)
		return
	}

	errors.ErrBadGateway.WithDetails(err.Error()).WriteJSON(w)
}

// copyHeaders copies headers from source to destination
func (p *Proxy) copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		dst[k] = append(dst[k][:0:0], vv...)
	}
	removeHopHeaders(dst)
}

// copyBody copies the response body
func (p *Proxy) copyBody(w http.ResponseWriter, body io.Reader) {
	if p.flushInterval > 0 {
		if flusher, ok := w.(http.Flusher); ok {
			for {
				_, err := io.CopyN(w, body, 32*1024)
				if err != nil {
					break
				}
				flusher.Flush()
			}
			return
		}
	}

	io.Copy(w, body)
}

// Hop-by-hop headers that should be removed
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func removeHopHeaders(header http.Header) {
	for _, h := range hopHeaders {
		header.Del(h)
	}
}

// singleJoiningSlash joins two URL paths with a single slash
func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}

// RouteProxy is a cached, per-service proxy handler: one instance per
// Service in a RuntimeSnapshot, built once at compile time and reused
// across requests.
type RouteProxy struct {
	proxy       *Proxy
	balancer    loadbalancer.Balancer
	service     *snapshot.Service
	retryPolicy *retry.Policy
	handler     http.Handler
}

// NewRouteProxy creates a proxy handler for a service, using svc.Balancer
// (already populated by internal/reload.Compile).
func NewRouteProxy(proxy *Proxy, svc *snapshot.Service, retryPolicy *retry.Policy) *RouteProxy {
	rp := &RouteProxy{
		proxy:       proxy,
		balancer:    svc.Balancer,
		service:     svc,
		retryPolicy: retryPolicy,
	}
	rp.handler = proxy.Handler(svc, rp.balancer, retryPolicy)
	return rp
}

// ServeHTTP handles the request
func (rp *RouteProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rp.handler.ServeHTTP(w, r)
}

// GetBalancer returns the load balancer
func (rp *RouteProxy) GetBalancer() loadbalancer.Balancer {
	return rp.balancer
}

// SetRetryBudget replaces the retry budget on this service's retry policy
// (for shared budget pools).
func (rp *RouteProxy) SetRetryBudget(b *retry.Budget) {
	if rp.retryPolicy != nil {
		rp.retryPolicy.SetBudget(b)
	}
}

// GetRetryMetrics returns the retry metrics for this service (may be nil)
func (rp *RouteProxy) GetRetryMetrics() *retry.RouteRetryMetrics {
	if rp.retryPolicy != nil {
		return rp.retryPolicy.Metrics
	}
	return nil
}

// SimpleProxy creates a simple reverse proxy handler to a single fixed
// target URL, bypassing load balancing entirely (used by health/debug
// endpoints and tests).
func SimpleProxy(targetURL string) (http.Handler, error) {
	if _, err := url.Parse(targetURL); err != nil {
		return nil, err
	}

	proxy := New(Config{})
	backends := []*loadbalancer.Backend{{URL: targetURL, Weight: 1, Healthy: true}}
	balancer := loadbalancer.NewSmoothWeighted(backends)
	svc := &snapshot.Service{Name: "simple", Kind: snapshot.ServiceLoadBalancer}

	return proxy.Handler(svc, balancer, nil), nil
}
