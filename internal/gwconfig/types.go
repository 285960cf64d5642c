// Package gwconfig defines the dynamic configuration surface (§6): the
// nested entryPoints/http/tcp/udp/tls shape the gateway accepts at the
// boundary, independent of the legacy flat RouteConfig shape internal
// packages were built around. internal/reload compiles a Dynamic value
// into an internal/snapshot.RuntimeSnapshot.
package gwconfig

import "time"

// Dynamic is one configuration revision as received from a ConfigSource.
type Dynamic struct {
	EntryPoints           map[string]EntryPoint           `yaml:"entryPoints"`
	HTTP                   HTTPConfig                      `yaml:"http"`
	TCP                    TCPConfig                       `yaml:"tcp"`
	UDP                    UDPConfig                       `yaml:"udp"`
	TLS                    TLSConfig                       `yaml:"tls"`
	CertificatesResolvers  map[string]CertificateResolver  `yaml:"certificatesResolvers"`
	Metrics                MetricsConfig                   `yaml:"metrics"`
	Cluster                ClusterConfig                   `yaml:"cluster"`
	API                    APIConfig                       `yaml:"api"`
}

// EntryPoint is one listening socket definition.
type EntryPoint struct {
	Address              string        `yaml:"address"`
	Transport            string        `yaml:"transport"` // "tcp" | "udp", default tcp
	KeepAliveMaxRequests  int           `yaml:"keepAliveMaxRequests"`
	KeepAliveMaxTime      time.Duration `yaml:"keepAliveMaxTime"`
	IdleTimeout           time.Duration `yaml:"idleTimeout"`
	TLS                   *EntryPointTLS `yaml:"tls"`
}

// EntryPointTLS binds a cert resolver (or passthrough) to an entry point.
type EntryPointTLS struct {
	CertResolver string `yaml:"certResolver"`
	Passthrough  bool   `yaml:"passthrough"`
}

// HTTPConfig holds the L7 router/service/middleware graph.
type HTTPConfig struct {
	Routers     map[string]HTTPRouter     `yaml:"routers"`
	Services    map[string]HTTPService    `yaml:"services"`
	Middlewares map[string]Middleware     `yaml:"middlewares"`
}

// HTTPRouter binds a rule predicate to a service through a middleware chain.
type HTTPRouter struct {
	EntryPoints []string `yaml:"entryPoints"`
	Rule        string   `yaml:"rule"`
	Service     string   `yaml:"service"`
	Middlewares []string `yaml:"middlewares"`
	Priority    int      `yaml:"priority"`
	TLS         bool     `yaml:"tls"`
}

// HTTPService is the tagged union described in §3: exactly one of
// LoadBalancer/Weighted/Mirroring/Failover should be set.
type HTTPService struct {
	LoadBalancer *LoadBalancerService `yaml:"loadBalancer"`
	Weighted     *WeightedService     `yaml:"weighted"`
	Mirroring    *MirroringService    `yaml:"mirroring"`
	Failover     *FailoverService     `yaml:"failover"`
}

// LoadBalancerService fronts a pool of servers.
type LoadBalancerService struct {
	Servers            []Server     `yaml:"servers"`
	ServersTransport    string       `yaml:"serversTransport"`
	PassHostHeader      bool         `yaml:"passHostHeader"`
	Sticky              *StickyCookie `yaml:"sticky"`
	HealthCheck         *HealthCheck `yaml:"healthCheck"`
}

// Server is one backend destination.
type Server struct {
	URL    string `yaml:"url"`
	Weight int    `yaml:"weight"`
}

// StickyCookie configures cookie-based session affinity.
type StickyCookie struct {
	Cookie struct {
		Name     string        `yaml:"name"`
		Secure   bool          `yaml:"secure"`
		HTTPOnly bool          `yaml:"httpOnly"`
		MaxAge   time.Duration `yaml:"maxAge"`
	} `yaml:"cookie"`
}

// HealthCheck configures active probing for a LoadBalancer service.
type HealthCheck struct {
	Path           string        `yaml:"path"`
	Interval       time.Duration `yaml:"interval"`
	Timeout        time.Duration `yaml:"timeout"`
	HealthyAfter   int           `yaml:"healthyAfter"`
	UnhealthyAfter int           `yaml:"unhealthyAfter"`
}

// WeightedService splits traffic across named child services.
type WeightedService struct {
	Services []WeightedChildRef `yaml:"services"`
}

// WeightedChildRef names one weighted child.
type WeightedChildRef struct {
	Name   string `yaml:"name"`
	Weight int    `yaml:"weight"`
}

// MirroringService duplicates traffic to one or more mirrors in addition
// to the primary.
type MirroringService struct {
	Service string        `yaml:"service"`
	Mirrors []MirrorRef   `yaml:"mirrors"`
	MirrorBody bool       `yaml:"mirrorBody"`
}

// MirrorRef names a mirror target and the percentage of requests mirrored.
type MirrorRef struct {
	Name    string  `yaml:"name"`
	Percent float64 `yaml:"percent"`
}

// FailoverService routes to Service, falling back to Fallback when Service
// has no healthy servers.
type FailoverService struct {
	Service  string `yaml:"service"`
	Fallback string `yaml:"fallback"`
}

// Middleware is a named, reusable middleware configuration. Exactly one of
// the embedded fields is expected to be set; unset fields are the built-in's
// zero value.
type Middleware struct {
	Compress       *struct{}                 `yaml:"compress"`
	StripPrefix    *StripPrefixMiddleware    `yaml:"stripPrefix"`
	Headers        *HeadersMiddleware        `yaml:"headers"`
	RateLimit      *RateLimitMiddleware      `yaml:"rateLimit"`
	CircuitBreaker *CircuitBreakerMiddleware `yaml:"circuitBreaker"`
	BasicAuth      *BasicAuthMiddleware      `yaml:"basicAuth"`
	Retry          *RetryMiddleware          `yaml:"retry"`
	ForwardAuth    *ForwardAuthMiddleware    `yaml:"forwardAuth"`
	JWT            *JWTMiddleware            `yaml:"jwt"`
	IPAllowList    *IPListMiddleware         `yaml:"ipAllowList"`
	IPDenyList     *IPListMiddleware         `yaml:"ipDenyList"`
	RedirectScheme *RedirectSchemeMiddleware `yaml:"redirectScheme"`
}

type StripPrefixMiddleware struct {
	Prefixes []string `yaml:"prefixes"`
}

type HeadersMiddleware struct {
	CustomRequestHeaders  map[string]string `yaml:"customRequestHeaders"`
	CustomResponseHeaders map[string]string `yaml:"customResponseHeaders"`
}

type RateLimitMiddleware struct {
	Average int           `yaml:"average"`
	Burst   int           `yaml:"burst"`
	Period  time.Duration `yaml:"period"`
}

type CircuitBreakerMiddleware struct {
	Expression  string        `yaml:"expression"`
	CheckPeriod time.Duration `yaml:"checkPeriod"`
	FallbackDuration time.Duration `yaml:"fallbackDuration"`
	RecoveryDuration time.Duration `yaml:"recoveryDuration"`
}

type BasicAuthMiddleware struct {
	Users []string `yaml:"users"` // "user:bcrypt-hash"
}

type RetryMiddleware struct {
	Attempts int           `yaml:"attempts"`
	InitialInterval time.Duration `yaml:"initialInterval"`
}

// ForwardAuthMiddleware delegates authentication to an external HTTP or gRPC
// service before a request reaches its backend.
type ForwardAuthMiddleware struct {
	Address         string        `yaml:"address"`
	Timeout         time.Duration `yaml:"timeout"`
	TrustForwardHeader bool       `yaml:"trustForwardHeader"` // true == fail open on unreachable auth service
	AuthRequestHeaders  []string  `yaml:"authRequestHeaders"`
	AuthResponseHeaders []string  `yaml:"authResponseHeaders"`
}

// JWTMiddleware validates a bearer token against a local secret, RSA public
// key, or JWKS endpoint.
type JWTMiddleware struct {
	Secret    string   `yaml:"secret"`
	PublicKey string   `yaml:"publicKey"`
	Issuer    string   `yaml:"issuer"`
	Audience  []string `yaml:"audience"`
	Algorithm string   `yaml:"algorithm"` // HS256, RS256
}

// IPListMiddleware allows or denies requests by client IP/CIDR.
type IPListMiddleware struct {
	SourceRange []string `yaml:"sourceRange"`
}

// RedirectSchemeMiddleware redirects plaintext requests to a target scheme.
type RedirectSchemeMiddleware struct {
	Scheme    string `yaml:"scheme"` // target scheme, "https" unless set
	Port      int    `yaml:"port"`
	Permanent bool   `yaml:"permanent"`
}

// TCPConfig is the L4 TCP analogue of HTTPConfig.
type TCPConfig struct {
	Routers  map[string]TCPRouter  `yaml:"routers"`
	Services map[string]TCPService `yaml:"services"`
}

// TCPRouter binds a HostSNI/ClientIP rule to a TCP service.
type TCPRouter struct {
	EntryPoints []string `yaml:"entryPoints"`
	Rule        string   `yaml:"rule"`
	Service     string   `yaml:"service"`
	Priority    int      `yaml:"priority"`
	TLS         *TCPRouterTLS `yaml:"tls"`
}

// TCPRouterTLS toggles TLS termination/passthrough for a TCP router.
type TCPRouterTLS struct {
	Passthrough  bool   `yaml:"passthrough"`
	CertResolver string `yaml:"certResolver"`
}

// TCPService fronts a pool of TCP servers.
type TCPService struct {
	LoadBalancer *TCPLoadBalancerService `yaml:"loadBalancer"`
}

type TCPLoadBalancerService struct {
	Servers []Server `yaml:"servers"`
}

// UDPConfig is the L4 UDP analogue of HTTPConfig.
type UDPConfig struct {
	Routers  map[string]UDPRouter  `yaml:"routers"`
	Services map[string]UDPService `yaml:"services"`
}

// UDPRouter binds a ClientIP rule to a UDP service.
type UDPRouter struct {
	EntryPoints []string `yaml:"entryPoints"`
	Rule        string   `yaml:"rule"`
	Service     string   `yaml:"service"`
	Priority    int      `yaml:"priority"`
}

// UDPService fronts a pool of UDP servers.
type UDPService struct {
	LoadBalancer *UDPLoadBalancerService `yaml:"loadBalancer"`
}

type UDPLoadBalancerService struct {
	Servers []Server `yaml:"servers"`
}

// TLSConfig holds static certificate stores, independent of ACME resolvers.
type TLSConfig struct {
	Certificates []Certificate `yaml:"certificates"`
}

// Certificate is one static certificate/key pair, file-path referenced.
type Certificate struct {
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
}

// CertificateResolver configures one ACME-backed certificate resolver.
type CertificateResolver struct {
	ACME *ACMEResolver `yaml:"acme"`
}

// ACMEResolver configures an ACME account and challenge method.
type ACMEResolver struct {
	Email       string `yaml:"email"`
	Storage     string `yaml:"storage"`
	CAServer    string `yaml:"caServer"`
	HTTPChallenge *struct {
		EntryPoint string `yaml:"entryPoint"`
	} `yaml:"httpChallenge"`
	TLSChallenge *struct{} `yaml:"tlsChallenge"`
	DNSChallenge *struct {
		Provider string `yaml:"provider"`
	} `yaml:"dnsChallenge"`
}

// MetricsConfig configures metrics exposition.
type MetricsConfig struct {
	Prometheus *PrometheusMetrics `yaml:"prometheus"`
}

// PrometheusMetrics configures the Prometheus metrics endpoint.
type PrometheusMetrics struct {
	EntryPoint string `yaml:"entryPoint"`
	Buckets    []float64 `yaml:"buckets"`
}

// ClusterConfig configures the control-plane/data-plane fan-out (grounds
// internal/cluster/cp and internal/cluster/dp).
type ClusterConfig struct {
	Role            string        `yaml:"role"` // "control" | "data"
	ControlPlaneURL string        `yaml:"controlPlaneUrl"`
	SyncInterval    time.Duration `yaml:"syncInterval"`
}

// APIConfig exposes the read-only admin API (§6).
type APIConfig struct {
	Dashboard bool `yaml:"dashboard"`
	Insecure  bool `yaml:"insecure"`
}
