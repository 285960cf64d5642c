// Package reload turns a validated gwconfig.Dynamic revision into an
// internal/snapshot.RuntimeSnapshot, and orchestrates the atomic swap
// that publishes it (§4.10). Compile never mutates its input nor any
// previously published snapshot; every revision gets a fresh graph.
package reload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ridgeline/gateway/config"
	internalconfig "github.com/ridgeline/gateway/internal/config"
	"github.com/ridgeline/gateway/internal/circuitbreaker"
	"github.com/ridgeline/gateway/internal/errors"
	"github.com/ridgeline/gateway/internal/gwconfig"
	"github.com/ridgeline/gateway/internal/loadbalancer"
	"github.com/ridgeline/gateway/internal/middleware"
	"github.com/ridgeline/gateway/internal/middleware/auth"
	"github.com/ridgeline/gateway/internal/middleware/compression"
	"github.com/ridgeline/gateway/internal/middleware/extauth"
	"github.com/ridgeline/gateway/internal/middleware/httpsredirect"
	"github.com/ridgeline/gateway/internal/middleware/ipfilter"
	"github.com/ridgeline/gateway/internal/middleware/ratelimit"
	"github.com/ridgeline/gateway/internal/retry"
	"github.com/ridgeline/gateway/internal/router"
	"github.com/ridgeline/gateway/internal/rulelang"
	"github.com/ridgeline/gateway/internal/serverstate"
	"github.com/ridgeline/gateway/internal/snapshot"
	"github.com/ridgeline/gateway/variables"
)

// Compile validates and compiles dyn into a new RuntimeSnapshot at the
// given generation number. states is consulted (not mutated) only to
// decide server identity continuity; new identities are registered by
// the caller once the snapshot is published.
func Compile(generation uint64, dyn *gwconfig.Dynamic, certResolver snapshot.CertificateResolver, states *serverstate.Store) (*snapshot.RuntimeSnapshot, error) {
	if err := detectServiceCycles(dyn.HTTP.Services); err != nil {
		return nil, err
	}

	entryPoints := make(map[string]*snapshot.EntryPoint, len(dyn.EntryPoints))
	for name, ep := range dyn.EntryPoints {
		transport := snapshot.TransportTCP
		if ep.Transport == "udp" {
			transport = snapshot.TransportUDP
		}
		var tls *snapshot.TLSProfile
		if ep.TLS != nil {
			tls = &snapshot.TLSProfile{CertResolver: ep.TLS.CertResolver, Passthrough: ep.TLS.Passthrough}
		}
		entryPoints[name] = &snapshot.EntryPoint{
			Name:                 name,
			Address:              ep.Address,
			Transport:            transport,
			TLSProfile:           tls,
			KeepAliveMaxRequests: ep.KeepAliveMaxRequests,
			KeepAliveMaxTime:     ep.KeepAliveMaxTime,
			IdleTimeout:          ep.IdleTimeout,
		}
	}

	services, err := compileServices(dyn.HTTP.Services, states)
	if err != nil {
		return nil, err
	}

	httpRouters, err := compileHTTPRouters(dyn.HTTP.Routers, dyn.HTTP.Middlewares, services)
	if err != nil {
		return nil, err
	}
	tcpRouters, tcpServices, err := compileTCPRouters(dyn.TCP, states)
	if err != nil {
		return nil, err
	}
	udpRouters, udpServices, err := compileUDPRouters(dyn.UDP, states)
	if err != nil {
		return nil, err
	}
	for name, svc := range tcpServices {
		services[name] = svc
	}
	for name, svc := range udpServices {
		services[name] = svc
	}

	return &snapshot.RuntimeSnapshot{
		Generation:   generation,
		EntryPoints:  entryPoints,
		HTTPRouters:  sortedHTTPGroups(httpRouters),
		TCPRouters:   sortedTCPGroups(tcpRouters),
		UDPRouters:   sortedUDPGroups(udpRouters),
		Services:     services,
		CertResolver: certResolver,
	}, nil
}

func sortedHTTPGroups(routers []*snapshot.Router) map[string][]*snapshot.Router {
	return router.BuildHTTP(routers).Groups()
}

func sortedTCPGroups(routers []*snapshot.TCPRouter) map[string][]*snapshot.TCPRouter {
	return router.BuildTCP(routers).Groups()
}

func sortedUDPGroups(routers []*snapshot.UDPRouter) map[string][]*snapshot.UDPRouter {
	return router.BuildUDP(routers).Groups()
}

// detectServiceCycles walks Weighted/Mirroring/Failover references with a
// DFS colour scheme (white/grey/black), rejecting any cycle through
// service composition before it can reach the request path.
func detectServiceCycles(services map[string]gwconfig.HTTPService) error {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(services))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch color[name] {
		case black:
			return nil
		case grey:
			return fmt.Errorf("service cycle detected: %v -> %s", path, name)
		}
		color[name] = grey
		for _, child := range children(services[name]) {
			if err := visit(child, append(path, name)); err != nil {
				return err
			}
		}
		color[name] = black
		return nil
	}

	for name := range services {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}

func children(svc gwconfig.HTTPService) []string {
	var out []string
	switch {
	case svc.Weighted != nil:
		for _, c := range svc.Weighted.Services {
			out = append(out, c.Name)
		}
	case svc.Mirroring != nil:
		out = append(out, svc.Mirroring.Service)
		for _, m := range svc.Mirroring.Mirrors {
			out = append(out, m.Name)
		}
	case svc.Failover != nil:
		out = append(out, svc.Failover.Service, svc.Failover.Fallback)
	}
	return out
}

func compileServices(defs map[string]gwconfig.HTTPService, states *serverstate.Store) (map[string]*snapshot.Service, error) {
	out := make(map[string]*snapshot.Service, len(defs))
	for name, def := range defs {
		svc, err := compileOneService(name, def, states)
		if err != nil {
			return nil, err
		}
		out[name] = svc
	}
	return out, nil
}

func compileOneService(name string, def gwconfig.HTTPService, states *serverstate.Store) (*snapshot.Service, error) {
	switch {
	case def.LoadBalancer != nil:
		return compileLoadBalancerService(name, def.LoadBalancer, states)
	case def.Weighted != nil:
		children := make([]snapshot.WeightedChild, 0, len(def.Weighted.Services))
		for _, c := range def.Weighted.Services {
			children = append(children, snapshot.WeightedChild{ServiceName: c.Name, Weight: c.Weight})
		}
		return &snapshot.Service{Name: name, Kind: snapshot.ServiceWeighted, WeightedChildren: children}, nil
	case def.Mirroring != nil:
		mirrors := make([]snapshot.MirrorTarget, 0, len(def.Mirroring.Mirrors))
		for _, m := range def.Mirroring.Mirrors {
			mirrors = append(mirrors, snapshot.MirrorTarget{ServiceName: m.Name, Percent: m.Percent})
		}
		return &snapshot.Service{
			Name: name, Kind: snapshot.ServiceMirroring,
			MirrorPrimary: def.Mirroring.Service, Mirrors: mirrors, MirrorBody: def.Mirroring.MirrorBody,
		}, nil
	case def.Failover != nil:
		return &snapshot.Service{
			Name: name, Kind: snapshot.ServiceFailover,
			FailoverPrimary: def.Failover.Service, FailoverFallback: def.Failover.Fallback,
		}, nil
	default:
		return nil, fmt.Errorf("service %q: no variant set (loadBalancer/weighted/mirroring/failover)", name)
	}
}

func compileLoadBalancerService(name string, def *gwconfig.LoadBalancerService, states *serverstate.Store) (*snapshot.Service, error) {
	servers := make([]*snapshot.Server, 0, len(def.Servers))
	lbBackends := make([]*loadbalancer.Backend, 0, len(def.Servers))
	for _, s := range def.Servers {
		identity := def.ServersTransport + "|" + s.URL
		if states != nil {
			states.GetOrCreate(identity)
		}
		servers = append(servers, &snapshot.Server{
			Identity: identity,
			URL:      s.URL,
			Weight:   s.Weight,
		})
		lbBackends = append(lbBackends, &loadbalancer.Backend{URL: s.URL, Weight: s.Weight, Healthy: true})
	}

	var sticky *snapshot.StickyConfig
	if def.Sticky != nil {
		sticky = &snapshot.StickyConfig{
			CookieName: def.Sticky.Cookie.Name,
			Secure:     def.Sticky.Cookie.Secure,
			HTTPOnly:   def.Sticky.Cookie.HTTPOnly,
			MaxAge:     def.Sticky.Cookie.MaxAge,
		}
	}

	var healthCheck *snapshot.HealthCheckConfig
	if def.HealthCheck != nil {
		healthCheck = &snapshot.HealthCheckConfig{
			Path:           def.HealthCheck.Path,
			Interval:       def.HealthCheck.Interval,
			Timeout:        def.HealthCheck.Timeout,
			HealthyAfter:   def.HealthCheck.HealthyAfter,
			UnhealthyAfter: def.HealthCheck.UnhealthyAfter,
		}
	}

	return &snapshot.Service{
		Name:               name,
		Kind:               snapshot.ServiceLoadBalancer,
		Balancer:           loadbalancer.NewSmoothWeighted(lbBackends),
		Servers:            servers,
		Sticky:             sticky,
		PassHostHeader:     def.PassHostHeader,
		ServersTransport:   def.ServersTransport,
		HealthCheckEnabled: def.HealthCheck != nil,
		HealthCheck:        healthCheck,
	}, nil
}

func compileHTTPRouters(defs map[string]gwconfig.HTTPRouter, middlewares map[string]gwconfig.Middleware, services map[string]*snapshot.Service) ([]*snapshot.Router, error) {
	out := make([]*snapshot.Router, 0, len(defs))
	for name, def := range defs {
		if _, ok := services[def.Service]; !ok {
			return nil, fmt.Errorf("router %q: unknown service %q", name, def.Service)
		}
		predicate, err := rulelang.Compile(def.Rule, rulelang.SurfaceHTTP)
		if err != nil {
			return nil, fmt.Errorf("router %q: %w", name, err)
		}
		chain, err := compileMiddlewareChain(def.Middlewares, middlewares)
		if err != nil {
			return nil, fmt.Errorf("router %q: %w", name, err)
		}
		out = append(out, &snapshot.Router{
			Name:        name,
			EntryPoints: def.EntryPoints,
			Predicate:   predicate,
			ServiceName: def.Service,
			Middlewares: chain,
			Priority:    router.EffectivePriority(def.Priority, predicate),
		})
	}
	return out, nil
}

// compileMiddlewareChain resolves each named middleware reference in order,
// building an internal/middleware.Chain. Unknown built-in kinds fail the
// reload rather than silently no-op, so misconfiguration is caught before
// publish.
func compileMiddlewareChain(names []string, defs map[string]gwconfig.Middleware) (*middleware.Chain, error) {
	mws := make([]middleware.Middleware, 0, len(names))
	for _, name := range names {
		def, ok := defs[name]
		if !ok {
			return nil, fmt.Errorf("unknown middleware %q", name)
		}
		mw, err := buildMiddleware(name, def)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	return middleware.NewChain(mws...), nil
}

func buildMiddleware(name string, def gwconfig.Middleware) (middleware.Middleware, error) {
	switch {
	case def.StripPrefix != nil:
		return stripPrefixMiddleware(def.StripPrefix.Prefixes), nil
	case def.Headers != nil:
		return headersMiddleware(def.Headers), nil
	case def.Compress != nil:
		return compressMiddleware(), nil
	case def.RateLimit != nil:
		limiter := ratelimit.NewLimiter(ratelimit.Config{
			Rate:   def.RateLimit.Average,
			Period: def.RateLimit.Period,
			Burst:  def.RateLimit.Burst,
			PerIP:  true,
		})
		return limiter.Middleware(), nil
	case def.CircuitBreaker != nil:
		return circuitBreakerMiddleware(def.CircuitBreaker), nil
	case def.Retry != nil:
		return retryMiddleware(def.Retry), nil
	case def.BasicAuth != nil:
		return basicAuthMiddleware(def.BasicAuth), nil
	case def.ForwardAuth != nil:
		return forwardAuthMiddleware(def.ForwardAuth)
	case def.JWT != nil:
		return jwtMiddleware(def.JWT)
	case def.IPAllowList != nil:
		return ipListMiddleware(def.IPAllowList.SourceRange, nil)
	case def.IPDenyList != nil:
		return ipListMiddleware(nil, def.IPDenyList.SourceRange)
	case def.RedirectScheme != nil:
		return redirectSchemeMiddleware(def.RedirectScheme), nil
	default:
		return nil, fmt.Errorf("middleware %q: no recognized variant set", name)
	}
}

// circuitBreakerMiddleware trips on consecutive backend failures (5xx
// responses) and short-circuits to 503 while open, per §4.5/§8.
func circuitBreakerMiddleware(def *gwconfig.CircuitBreakerMiddleware) middleware.Middleware {
	breaker := circuitbreaker.NewBreaker(internalconfig.CircuitBreakerConfig{
		Timeout: def.RecoveryDuration,
	})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowed, err := breaker.Allow(); !allowed {
				errors.ErrBadGateway.WithDetails(err.Error()).WriteJSON(w)
				return
			}
			rec := &statusCapture{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(rec, r)
			if rec.code >= http.StatusInternalServerError {
				breaker.RecordFailure()
			} else {
				breaker.RecordSuccess()
			}
		})
	}
}

// retryMiddleware replays the downstream chain on a retryable response,
// buffering both the request body and the response so a failed attempt
// never reaches the client. Matches internal/retry.Policy's retry
// classification and backoff curve without requiring an http.RoundTripper
// (the retry happens in front of the handler chain, not the transport).
func retryMiddleware(def *gwconfig.RetryMiddleware) middleware.Middleware {
	policy := retry.NewPolicy(internalconfig.RetryConfig{
		MaxRetries:     def.Attempts,
		InitialBackoff: def.InitialInterval,
	})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := retry.BufferBody(r)
			if err != nil {
				errors.ErrBadGateway.WithDetails("buffering request for retry: " + err.Error()).WriteJSON(w)
				return
			}
			policy.Metrics.Requests.Add(1)
			backoff := policy.InitialBackoff

			for attempt := 0; ; attempt++ {
				if body != nil {
					r.Body = io.NopCloser(bytes.NewReader(body))
				}
				rec := newBufferedRecorder()
				next.ServeHTTP(rec, r)

				if attempt >= policy.MaxRetries || !policy.IsRetryable(r.Method, rec.code) {
					rec.flush(w)
					return
				}
				policy.Metrics.Retries.Add(1)
				time.Sleep(backoff)
				backoff = time.Duration(float64(backoff) * policy.BackoffMultiplier)
				if backoff > policy.MaxBackoff {
					backoff = policy.MaxBackoff
				}
			}
		})
	}
}

func basicAuthMiddleware(def *gwconfig.BasicAuthMiddleware) middleware.Middleware {
	users := make([]config.BasicAuthUser, 0, len(def.Users))
	for _, entry := range def.Users {
		user, hash, ok := splitBasicAuthEntry(entry)
		if !ok {
			continue
		}
		users = append(users, config.BasicAuthUser{Username: user, PasswordHash: hash})
	}
	basicAuth := auth.NewBasicAuth(config.BasicAuthConfig{Users: users})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := basicAuth.Authenticate(r)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="`+basicAuth.Realm()+`"`)
				errors.ErrUnauthorized.WriteJSON(w)
				return
			}
			varCtx := variables.GetFromRequest(r)
			varCtx.Identity = identity
			ctx := context.WithValue(r.Context(), variables.RequestContextKey{}, varCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func splitBasicAuthEntry(entry string) (user, hash string, ok bool) {
	for i := 0; i < len(entry); i++ {
		if entry[i] == ':' {
			return entry[:i], entry[i+1:], true
		}
	}
	return "", "", false
}

func forwardAuthMiddleware(def *gwconfig.ForwardAuthMiddleware) (middleware.Middleware, error) {
	ea, err := extauth.New(config.ExtAuthConfig{
		URL:             def.Address,
		Timeout:         def.Timeout,
		FailOpen:        def.TrustForwardHeader,
		HeadersToSend:   def.AuthRequestHeaders,
		HeadersToInject: def.AuthResponseHeaders,
	})
	if err != nil {
		return nil, fmt.Errorf("forwardAuth: %w", err)
	}
	return ea.Middleware(), nil
}

func jwtMiddleware(def *gwconfig.JWTMiddleware) (middleware.Middleware, error) {
	jwtAuth, err := auth.NewJWTAuth(internalconfig.JWTConfig{
		Enabled:   true,
		Secret:    def.Secret,
		PublicKey: def.PublicKey,
		Issuer:    def.Issuer,
		Audience:  def.Audience,
		Algorithm: def.Algorithm,
	})
	if err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}
	return jwtAuth.Middleware(true), nil
}

func ipListMiddleware(allow, deny []string) (middleware.Middleware, error) {
	filter, err := ipfilter.New(config.IPFilterConfig{Enabled: true, Allow: allow, Deny: deny})
	if err != nil {
		return nil, fmt.Errorf("ip filter: %w", err)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !filter.Check(r) {
				errors.ErrForbidden.WriteJSON(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

func redirectSchemeMiddleware(def *gwconfig.RedirectSchemeMiddleware) middleware.Middleware {
	redirect := httpsredirect.New(config.HTTPSRedirectConfig{
		Enabled:   true,
		Port:      def.Port,
		Permanent: def.Permanent,
	})
	return redirect.Middleware
}

// statusCapture records the status code written through it while still
// forwarding bytes live; used where a retry decision only needs the code.
type statusCapture struct {
	http.ResponseWriter
	code int
}

func (s *statusCapture) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

// bufferedRecorder captures an entire response so a retry attempt can be
// discarded without having partially written to the real client connection.
type bufferedRecorder struct {
	header http.Header
	body   bytes.Buffer
	code   int
}

func newBufferedRecorder() *bufferedRecorder {
	return &bufferedRecorder{header: make(http.Header), code: http.StatusOK}
}

func (b *bufferedRecorder) Header() http.Header { return b.header }

func (b *bufferedRecorder) Write(p []byte) (int, error) { return b.body.Write(p) }

func (b *bufferedRecorder) WriteHeader(code int) { b.code = code }

func (b *bufferedRecorder) flush(w http.ResponseWriter) {
	for k, vv := range b.header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(b.code)
	w.Write(b.body.Bytes())
}

func stripPrefixMiddleware(prefixes []string) middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range prefixes {
				if trimmed, ok := cutPrefix(r.URL.Path, p); ok {
					r.URL.Path = trimmed
					break
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func cutPrefix(path, prefix string) (string, bool) {
	if len(path) < len(prefix) || path[:len(prefix)] != prefix {
		return path, false
	}
	rest := path[len(prefix):]
	if rest == "" {
		rest = "/"
	}
	return rest, true
}

func headersMiddleware(def *gwconfig.HeadersMiddleware) middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for k, v := range def.CustomRequestHeaders {
				r.Header.Set(k, v)
			}
			for k, v := range def.CustomResponseHeaders {
				w.Header().Set(k, v)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func compressMiddleware() middleware.Middleware {
	comp := compression.New(config.CompressionConfig{Enabled: true})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			algo := comp.NegotiateEncoding(r)
			if algo == "" {
				next.ServeHTTP(w, r)
				return
			}
			cw := compression.NewCompressingResponseWriter(w, comp, algo)
			defer cw.Close()
			next.ServeHTTP(cw, r)
		})
	}
}

func compileTCPRouters(cfg gwconfig.TCPConfig, states *serverstate.Store) ([]*snapshot.TCPRouter, map[string]*snapshot.Service, error) {
	services := make(map[string]*snapshot.Service, len(cfg.Services))
	for name, def := range cfg.Services {
		if def.LoadBalancer == nil {
			return nil, nil, fmt.Errorf("tcp service %q: loadBalancer required", name)
		}
		servers := make([]*snapshot.Server, 0, len(def.LoadBalancer.Servers))
		backends := make([]*loadbalancer.Backend, 0, len(def.LoadBalancer.Servers))
		for _, s := range def.LoadBalancer.Servers {
			identity := "tcp|" + s.URL
			if states != nil {
				states.GetOrCreate(identity)
			}
			servers = append(servers, &snapshot.Server{Identity: identity, URL: s.URL, Weight: s.Weight})
			backends = append(backends, &loadbalancer.Backend{URL: s.URL, Weight: s.Weight, Healthy: true})
		}
		services[name] = &snapshot.Service{
			Name: name, Kind: snapshot.ServiceLoadBalancer,
			Balancer: loadbalancer.NewSmoothWeighted(backends), Servers: servers,
		}
	}

	routers := make([]*snapshot.TCPRouter, 0, len(cfg.Routers))
	for name, def := range cfg.Routers {
		if _, ok := services[def.Service]; !ok {
			return nil, nil, fmt.Errorf("tcp router %q: unknown service %q", name, def.Service)
		}
		predicate, err := rulelang.Compile(def.Rule, rulelang.SurfaceTCP)
		if err != nil {
			return nil, nil, fmt.Errorf("tcp router %q: %w", name, err)
		}
		passthrough := def.TLS != nil && def.TLS.Passthrough
		routers = append(routers, &snapshot.TCPRouter{
			Name: name, EntryPoints: def.EntryPoints, Predicate: predicate,
			ServiceName: def.Service, Passthrough: passthrough,
			Priority: router.EffectivePriority(def.Priority, predicate),
		})
	}
	return routers, services, nil
}

func compileUDPRouters(cfg gwconfig.UDPConfig, states *serverstate.Store) ([]*snapshot.UDPRouter, map[string]*snapshot.Service, error) {
	services := make(map[string]*snapshot.Service, len(cfg.Services))
	for name, def := range cfg.Services {
		if def.LoadBalancer == nil {
			return nil, nil, fmt.Errorf("udp service %q: loadBalancer required", name)
		}
		servers := make([]*snapshot.Server, 0, len(def.LoadBalancer.Servers))
		backends := make([]*loadbalancer.Backend, 0, len(def.LoadBalancer.Servers))
		for _, s := range def.LoadBalancer.Servers {
			identity := "udp|" + s.URL
			if states != nil {
				states.GetOrCreate(identity)
			}
			servers = append(servers, &snapshot.Server{Identity: identity, URL: s.URL, Weight: s.Weight})
			backends = append(backends, &loadbalancer.Backend{URL: s.URL, Weight: s.Weight, Healthy: true})
		}
		services[name] = &snapshot.Service{
			Name: name, Kind: snapshot.ServiceLoadBalancer,
			Balancer: loadbalancer.NewSmoothWeighted(backends), Servers: servers,
		}
	}

	routers := make([]*snapshot.UDPRouter, 0, len(cfg.Routers))
	for name, def := range cfg.Routers {
		if _, ok := services[def.Service]; !ok {
			return nil, nil, fmt.Errorf("udp router %q: unknown service %q", name, def.Service)
		}
		predicate, err := rulelang.Compile(def.Rule, rulelang.SurfaceUDP)
		if err != nil {
			return nil, nil, fmt.Errorf("udp router %q: %w", name, err)
		}
		routers = append(routers, &snapshot.UDPRouter{
			Name: name, EntryPoints: def.EntryPoints, Predicate: predicate,
			ServiceName: def.Service, Priority: router.EffectivePriority(def.Priority, predicate),
		})
	}
	return routers, services, nil
}
