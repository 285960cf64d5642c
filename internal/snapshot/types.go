// Package snapshot holds the immutable RuntimeSnapshot graph (§3): the
// compiled, atomically-swapped representation of one configuration
// revision. Nothing in this package is mutated after Build returns it;
// per-server mutable state lives in internal/serverstate instead.
package snapshot

import (
	"time"

	"github.com/ridgeline/gateway/internal/loadbalancer"
	"github.com/ridgeline/gateway/internal/middleware"
	"github.com/ridgeline/gateway/internal/rulelang"
)

// Transport identifies an entry point's underlying socket kind.
type Transport string

const (
	TransportTCP Transport = "tcp"
	TransportUDP Transport = "udp"
)

// EntryPoint owns one listening socket.
type EntryPoint struct {
	Name                 string
	Address              string
	Transport            Transport
	TLSProfile           *TLSProfile
	KeepAliveMaxRequests int
	KeepAliveMaxTime     time.Duration
	IdleTimeout          time.Duration
}

// TLSProfile names a cert resolver / static certificate set applicable to an
// entry point.
type TLSProfile struct {
	CertResolver string
	Passthrough  bool
}

// Router is the L7 (HTTP) router: a compiled predicate bound to a service
// and an ordered middleware chain.
type Router struct {
	Name        string
	EntryPoints []string
	Predicate   *rulelang.Predicate
	ServiceName string
	Middlewares *middleware.Chain
	Priority    int
}

// TCPRouter restricts Predicate to HostSNI/ClientIP/* per §3.
type TCPRouter struct {
	Name        string
	EntryPoints []string
	Predicate   *rulelang.Predicate
	ServiceName string
	Passthrough bool
	Priority    int
}

// UDPRouter restricts Predicate to ClientIP/* per §3.
type UDPRouter struct {
	Name        string
	EntryPoints []string
	Predicate   *rulelang.Predicate
	ServiceName string
	Priority    int
}

// ServiceKind discriminates the Service tagged union.
type ServiceKind int

const (
	ServiceLoadBalancer ServiceKind = iota
	ServiceWeighted
	ServiceMirroring
	ServiceFailover
)

// WeightedChild names a child service and its cumulative weight.
type WeightedChild struct {
	ServiceName string
	Weight      int
}

// MirrorTarget names a fire-and-forget mirror destination.
type MirrorTarget struct {
	ServiceName string
	Percent     float64
}

// Service is the tagged variant described in §3. Exactly one of the
// kind-specific fields is meaningful, selected by Kind.
type Service struct {
	Name string
	Kind ServiceKind

	// ServiceLoadBalancer
	Balancer           loadbalancer.Balancer
	Servers            []*Server
	Sticky             *StickyConfig
	PassHostHeader     bool
	ServersTransport   string
	HealthCheckEnabled bool
	HealthCheck        *HealthCheckConfig

	// ServiceWeighted
	WeightedChildren []WeightedChild

	// ServiceMirroring
	MirrorPrimary string
	Mirrors       []MirrorTarget
	MirrorBody    bool

	// ServiceFailover
	FailoverPrimary  string
	FailoverFallback string
}

// StickyConfig describes cookie-based session affinity for a LoadBalancer service.
type StickyConfig struct {
	CookieName string
	Secure     bool
	HTTPOnly   bool
	MaxAge     time.Duration
}

// HealthCheckConfig carries the active-probe thresholds for a LoadBalancer
// service's backends, compiled from gwconfig.HealthCheck.
type HealthCheckConfig struct {
	Path           string
	Interval       time.Duration
	Timeout        time.Duration
	HealthyAfter   int
	UnhealthyAfter int
}

// Server is a single backend destination, owned by its Service.
type Server struct {
	Identity     string // stable across reloads: serversTransport + "|" + url
	URL          string
	Weight       int
	Scheme       string
	ProtocolHint string // h1 | h2 | h2c
}

// RuntimeSnapshot is the immutable graph produced from one configuration
// revision (§3). Readers share it with snapshot-granularity lifetime via
// Acquire/Release (see internal/reload).
type RuntimeSnapshot struct {
	Generation   uint64
	EntryPoints  map[string]*EntryPoint
	HTTPRouters  map[string][]*Router // keyed by entry point name, pre-sorted
	TCPRouters   map[string][]*TCPRouter
	UDPRouters   map[string][]*UDPRouter
	Services     map[string]*Service
	CertResolver CertificateResolver
}

// CertificateResolver is the collaborator interface consumed by the core (§6).
type CertificateResolver interface {
	Resolve(sni string) (certPEM, keyPEM []byte, err error)
}
