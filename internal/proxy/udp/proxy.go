package udp

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/ridgeline/gateway/internal/logging"
	"github.com/ridgeline/gateway/internal/router"
	"github.com/ridgeline/gateway/internal/rulelang"
	"github.com/ridgeline/gateway/internal/snapshot"
	"go.uber.org/zap"
)

// Proxy handles UDP proxying. Routing comes from a router.UDPTable compiled
// by internal/reload; Proxy never builds its own route table, only consumes
// the one published by the most recent reload.
type Proxy struct {
	state    atomic.Pointer[proxyState]
	sessions *SessionManager
}

type proxyState struct {
	table    *router.UDPTable
	services map[string]*snapshot.Service
}

// Config holds UDP proxy configuration
type Config struct {
	SessionTimeout  time.Duration
	ReadBufferSize  int
	WriteBufferSize int
}

// DefaultConfig provides default UDP proxy settings
var DefaultConfig = Config{
	SessionTimeout:  30 * time.Second,
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// NewProxy creates a new UDP proxy
func NewProxy(cfg Config) *Proxy {
	if cfg.SessionTimeout == 0 {
		cfg.SessionTimeout = DefaultConfig.SessionTimeout
	}

	p := &Proxy{
		sessions: NewSessionManager(SessionManagerConfig{
			SessionTimeout: cfg.SessionTimeout,
		}),
	}
	p.state.Store(&proxyState{table: router.BuildUDP(nil), services: map[string]*snapshot.Service{}})
	return p
}

// SetTable publishes a newly compiled router table and its backing
// services, atomically replacing whatever Serve is currently dispatching
// against. Safe to call from the reload goroutine while sessions are active.
func (p *Proxy) SetTable(table *router.UDPTable, services map[string]*snapshot.Service) {
	p.state.Store(&proxyState{table: table, services: services})
}

// Serve handles incoming UDP datagrams on a connection bound to entryPoint.
func (p *Proxy) Serve(ctx context.Context, conn *net.UDPConn, entryPoint string, bufferSize int) error {
	if bufferSize == 0 {
		bufferSize = DefaultConfig.ReadBufferSize
	}

	buf := make([]byte, bufferSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn.SetReadDeadline(time.Now().Add(1 * time.Second))

		n, clientAddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("UDP read error: %w", err)
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		go p.handleDatagram(ctx, conn, clientAddr, datagram, entryPoint)
	}
}

// handleDatagram processes a single UDP datagram
func (p *Proxy) handleDatagram(ctx context.Context, clientConn *net.UDPConn, clientAddr *net.UDPAddr, data []byte, entryPoint string) {
	state := p.state.Load()
	descriptor := &rulelang.Descriptor{ClientIP: clientAddr.IP.String()}
	matched := state.table.Match(entryPoint, descriptor)
	if matched == nil {
		logging.Warn("no matching udp router", zap.String("entryPoint", entryPoint), zap.String("client", clientAddr.String()))
		return
	}

	svc, ok := state.services[matched.ServiceName]
	if !ok || svc.Balancer == nil {
		logging.Warn("udp router references unknown service", zap.String("router", matched.Name), zap.String("service", matched.ServiceName))
		return
	}

	session, exists := p.sessions.Get(clientAddr.String())
	if !exists {
		backend := svc.Balancer.Next()
		if backend == nil {
			logging.Warn("no healthy backends for udp service", zap.String("service", svc.Name))
			return
		}

		var err error
		session, err = p.sessions.Create(clientAddr, backend.URL)
		if err != nil {
			logging.Warn("failed to create udp session", zap.Error(err))
			return
		}

		go p.receiveResponses(ctx, clientConn, session)
	}

	if _, err := session.BackendConn.Write(data); err != nil {
		logging.Warn("failed to forward udp datagram", zap.Error(err))
		p.sessions.Remove(clientAddr.String())
	}
}

// receiveResponses reads responses from backend and forwards to client
func (p *Proxy) receiveResponses(ctx context.Context, clientConn *net.UDPConn, session *Session) {
	buf := make([]byte, DefaultConfig.ReadBufferSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		session.BackendConn.SetReadDeadline(time.Now().Add(1 * time.Second))

		n, err := session.BackendConn.Read(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				if time.Since(session.GetLastActive()) > p.sessions.sessionTimeout {
					p.sessions.Remove(session.ClientAddr.String())
					return
				}
				continue
			}
			logging.Warn("udp backend read error", zap.Error(err))
			p.sessions.Remove(session.ClientAddr.String())
			return
		}

		session.UpdateLastActive()

		if _, err := clientConn.WriteToUDP(buf[:n], session.ClientAddr); err != nil {
			logging.Warn("udp client write error", zap.Error(err))
		}
	}
}

// Close closes the proxy and releases resources
func (p *Proxy) Close() error {
	return p.sessions.Close()
}

// SessionCount returns the number of active sessions
func (p *Proxy) SessionCount() int {
	return p.sessions.Count()
}
