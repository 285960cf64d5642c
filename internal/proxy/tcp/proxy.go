package tcp

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/ridgeline/gateway/internal/logging"
	"github.com/ridgeline/gateway/internal/router"
	"github.com/ridgeline/gateway/internal/rulelang"
	"github.com/ridgeline/gateway/internal/snapshot"
	"go.uber.org/zap"
)

// Proxy handles TCP proxying. Routing comes from a router.TCPTable compiled
// by internal/reload; Proxy never builds its own route table, only consumes
// the one published by the most recent reload.
type Proxy struct {
	state    atomic.Pointer[proxyState]
	connPool *ConnPool
}

type proxyState struct {
	table    *router.TCPTable
	services map[string]*snapshot.Service
}

// Config holds TCP proxy configuration
type Config struct {
	ConnectTimeout time.Duration
	IdleTimeout    time.Duration
	PoolConfig     ConnPoolConfig
}

// DefaultConfig provides default TCP proxy settings
var DefaultConfig = Config{
	ConnectTimeout: 10 * time.Second,
	IdleTimeout:    5 * time.Minute,
	PoolConfig:     DefaultConnPoolConfig,
}

// NewProxy creates a new TCP proxy
func NewProxy(cfg Config) *Proxy {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConfig.ConnectTimeout
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultConfig.IdleTimeout
	}

	p := &Proxy{connPool: NewConnPool(cfg.PoolConfig)}
	p.state.Store(&proxyState{table: router.BuildTCP(nil), services: map[string]*snapshot.Service{}})
	return p
}

// SetTable publishes a newly compiled router table and its backing
// services, atomically replacing whatever Handle is currently dispatching
// against. Safe to call from the reload goroutine while connections are
// in flight.
func (p *Proxy) SetTable(table *router.TCPTable, services map[string]*snapshot.Service) {
	p.state.Store(&proxyState{table: table, services: services})
}

// Handle processes an incoming TCP connection arriving on entryPoint.
func (p *Proxy) Handle(ctx context.Context, conn net.Conn, entryPoint string) error {
	defer conn.Close()

	clientIP := ""
	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		clientIP = tcpAddr.IP.String()
	}

	buffConn := NewBufferedConn(conn)

	sni, err := ParseClientHelloSNI(buffConn)
	if err != nil && err != ErrNotTLS && err != ErrNoSNI {
		logging.Warn("failed to parse SNI", zap.Error(err))
	}

	state := p.state.Load()
	descriptor := &rulelang.Descriptor{SNI: sni, ClientIP: clientIP}
	matched := state.table.Match(entryPoint, descriptor)
	if matched == nil {
		logging.Warn("no matching tcp router", zap.String("entryPoint", entryPoint), zap.String("sni", sni), zap.String("client", clientIP))
		return fmt.Errorf("no matching tcp router")
	}

	svc, ok := state.services[matched.ServiceName]
	if !ok || svc.Balancer == nil {
		logging.Warn("tcp router references unknown service", zap.String("router", matched.Name), zap.String("service", matched.ServiceName))
		return fmt.Errorf("unknown service %q", matched.ServiceName)
	}

	backend := svc.Balancer.Next()
	if backend == nil {
		logging.Warn("no healthy backends for tcp service", zap.String("service", svc.Name))
		return fmt.Errorf("no healthy backends")
	}

	backendConn, err := p.connPool.Get(backend.URL)
	if err != nil {
		logging.Error("failed to connect to backend", zap.String("backend", backend.URL), zap.Error(err))
		svc.Balancer.MarkUnhealthy(backend.URL)
		return fmt.Errorf("failed to connect to backend: %w", err)
	}
	defer backendConn.Close()

	return p.pipe(ctx, buffConn, backendConn)
}

// pipe performs bidirectional copy between two connections
func (p *Proxy) pipe(ctx context.Context, client, backend net.Conn) error {
	errCh := make(chan error, 2)

	go func() {
		_, err := io.Copy(backend, client)
		if tcpConn, ok := backend.(*net.TCPConn); ok {
			tcpConn.CloseWrite()
		}
		errCh <- err
	}()

	go func() {
		_, err := io.Copy(client, backend)
		if tcpConn, ok := client.(*net.TCPConn); ok {
			tcpConn.CloseWrite()
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		select {
		case <-time.After(5 * time.Second):
		case <-errCh:
		}
		return err
	}
}

// Close closes the proxy and releases resources
func (p *Proxy) Close() error {
	return p.connPool.Close()
}
