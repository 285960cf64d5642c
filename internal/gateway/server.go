package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ridgeline/gateway/config"
	"github.com/ridgeline/gateway/internal/gwconfig"
	"github.com/ridgeline/gateway/internal/listener"
	"github.com/ridgeline/gateway/internal/proxy"
	tcpproxy "github.com/ridgeline/gateway/internal/proxy/tcp"
	udpproxy "github.com/ridgeline/gateway/internal/proxy/udp"
	"github.com/ridgeline/gateway/internal/reload"
	"github.com/ridgeline/gateway/internal/serverstate"
	"github.com/ridgeline/gateway/internal/snapshot"
)

// Server owns the gateway's entry point listeners and the admin API, and
// drives reloads: each call to Reload compiles a new gwconfig.Dynamic into
// a RuntimeSnapshot, publishes it on the Gateway, and reconciles listeners
// against the new set of entry points.
type Server struct {
	gw      *Gateway
	manager *listener.Manager
	states  *serverstate.Store
	tcp     *tcpproxy.Proxy
	udp     *udpproxy.Proxy

	adminAddr   string
	adminServer *http.Server

	mu         sync.Mutex
	generation uint64
}

// NewServer creates a Server. adminAddr may be empty to disable the admin API.
func NewServer(proxyCfg proxy.Config, adminAddr string) *Server {
	states := proxyCfg.States
	if states == nil {
		states = serverstate.NewStore()
		proxyCfg.States = states
	}
	p := proxy.New(proxyCfg)
	gw := New(p, states)
	p.SetHealthChecker(gw.HealthChecker())

	s := &Server{
		gw:        gw,
		manager:   listener.NewManager(),
		states:    states,
		tcp:       tcpproxy.NewProxy(tcpproxy.DefaultConfig),
		udp:       udpproxy.NewProxy(udpproxy.DefaultConfig),
		adminAddr: adminAddr,
	}
	if adminAddr != "" {
		s.adminServer = &http.Server{
			Addr:         adminAddr,
			Handler:      s.adminHandler(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
	}
	return s
}

// Gateway returns the underlying request-plane Gateway.
func (s *Server) Gateway() *Gateway {
	return s.gw
}

// Reload compiles dyn into a new RuntimeSnapshot, publishes it, and syncs
// HTTP listeners to the entry points it names. certResolver may be nil.
func (s *Server) Reload(dyn *gwconfig.Dynamic, certResolver snapshot.CertificateResolver) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	snap, err := reload.Compile(gen, dyn, certResolver, s.states)
	if err != nil {
		return fmt.Errorf("compile config: %w", err)
	}

	drain := s.gw.Reload(snap)

	s.tcp.SetTable(s.gw.TCPTable(), snap.Services)
	s.udp.SetTable(s.gw.UDPTable(), snap.Services)

	if err := s.syncHTTPListeners(snap); err != nil {
		return fmt.Errorf("sync listeners: %w", err)
	}
	if err := s.syncTCPListeners(snap); err != nil {
		return fmt.Errorf("sync tcp listeners: %w", err)
	}
	if err := s.syncUDPListeners(snap); err != nil {
		return fmt.Errorf("sync udp listeners: %w", err)
	}

	// Drain after listener sync so in-flight requests on entry points the
	// new snapshot removed finish against the old generation's handlers.
	drain()
	return nil
}

func (s *Server) syncHTTPListeners(snap *snapshot.RuntimeSnapshot) error {
	for name, ep := range snap.EntryPoints {
		if _, hasHTTPRouters := snap.HTTPRouters[name]; !hasHTTPRouters {
			continue // entry point carries only TCP/UDP routers; syncTCPListeners/syncUDPListeners handle those
		}
		if _, ok := s.manager.Get(name); ok {
			continue // address/handler changes flow through Gateway's generation, not the listener
		}
		l, err := listener.NewHTTPListener(listener.HTTPListenerConfig{
			ID:      name,
			Address: ep.Address,
			Handler: s.gw.Handler(name),
			TLS:     config.TLSConfig{Enabled: ep.TLSProfile != nil && !ep.TLSProfile.Passthrough},
		})
		if err != nil {
			return fmt.Errorf("entry point %s: %w", name, err)
		}
		if err := s.manager.Add(l); err != nil {
			return fmt.Errorf("entry point %s: %w", name, err)
		}
	}
	return nil
}

func (s *Server) syncTCPListeners(snap *snapshot.RuntimeSnapshot) error {
	for name, ep := range snap.EntryPoints {
		if _, hasTCPRouters := snap.TCPRouters[name]; !hasTCPRouters {
			continue
		}
		if _, ok := s.manager.Get(name); ok {
			continue // routing changes flow through the proxy's SetTable, not the listener
		}
		passthrough := ep.TLSProfile != nil && ep.TLSProfile.Passthrough
		l, err := listener.NewTCPListener(listener.TCPListenerConfig{
			ID:         name,
			Address:    ep.Address,
			Proxy:      s.tcp,
			TLS:        config.TLSConfig{Enabled: ep.TLSProfile != nil && !passthrough},
			SNIRouting: passthrough,
		})
		if err != nil {
			return fmt.Errorf("entry point %s: %w", name, err)
		}
		if err := s.manager.Add(l); err != nil {
			return fmt.Errorf("entry point %s: %w", name, err)
		}
	}
	return nil
}

func (s *Server) syncUDPListeners(snap *snapshot.RuntimeSnapshot) error {
	for name, ep := range snap.EntryPoints {
		if _, hasUDPRouters := snap.UDPRouters[name]; !hasUDPRouters {
			continue
		}
		if _, ok := s.manager.Get(name); ok {
			continue
		}
		l, err := listener.NewUDPListener(listener.UDPListenerConfig{
			ID:      name,
			Address: ep.Address,
			Proxy:   s.udp,
		})
		if err != nil {
			return fmt.Errorf("entry point %s: %w", name, err)
		}
		if err := s.manager.Add(l); err != nil {
			return fmt.Errorf("entry point %s: %w", name, err)
		}
	}
	return nil
}

// Run starts all listeners and the admin server, then blocks until a
// termination signal arrives and shuts everything down gracefully.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down gracefully")
	return s.Shutdown(30 * time.Second)
}

// Start starts all registered listeners and the admin server.
func (s *Server) Start() error {
	ctx := context.Background()
	errCh := make(chan error, 2)

	go func() {
		if err := s.manager.StartAll(ctx); err != nil {
			errCh <- fmt.Errorf("listener manager: %w", err)
		}
	}()

	if s.adminServer != nil {
		go func() {
			log.Printf("admin API listening on %s", s.adminServer.Addr)
			if err := s.adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("admin server: %w", err)
			}
		}()
	}

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
	}
	return nil
}

// Shutdown gracefully stops the admin server and all listeners.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.adminServer != nil {
		if err := s.adminServer.Shutdown(ctx); err != nil {
			log.Printf("admin server shutdown: %v", err)
		}
	}

	if err := s.manager.StopAll(ctx); err != nil {
		log.Printf("listener manager shutdown: %v", err)
		return err
	}

	if err := s.tcp.Close(); err != nil {
		log.Printf("tcp proxy shutdown: %v", err)
	}
	if err := s.udp.Close(); err != nil {
		log.Printf("udp proxy shutdown: %v", err)
	}
	s.gw.Close()
	return nil
}

func (s *Server) adminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/routes", s.handleRoutes)
	mux.HandleFunc("/listeners", s.handleListeners)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.gw.Current() == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	snap := s.gw.Current()
	w.Header().Set("Content-Type", "application/json")
	if snap == nil {
		json.NewEncoder(w).Encode(map[string]any{"generation": 0, "routers": map[string]any{}})
		return
	}
	out := make(map[string][]string, len(snap.HTTPRouters))
	for ep, routers := range snap.HTTPRouters {
		names := make([]string, 0, len(routers))
		for _, r := range routers {
			names = append(names, r.Name)
		}
		out[ep] = names
	}
	json.NewEncoder(w).Encode(map[string]any{"generation": snap.Generation, "routers": out})
}

func (s *Server) handleListeners(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"listeners": s.manager.List()})
}
