package server

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/AmbrSb/LServer/internal/stats"
)

// Handle identifies one Server registered with a Manager.
type Handle uint64

// ErrUnknownHandle is returned by Manager operations given a handle that
// was never registered, or has since been stopped.
var ErrUnknownHandle = errors.New("server: unknown server handle")

// Manager owns every Server created in this process, grounded on
// original_source/src/manager.hpp/.cpp.
type Manager struct {
	mu      sync.RWMutex
	servers map[Handle]*Server
	next    atomic.Uint64
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{servers: make(map[Handle]*Server)}
}

// CreateServer builds a new Server per cfg and protoFactory, registers it
// under a freshly allocated handle, and returns that handle.
func (m *Manager) CreateServer(cfg Config, protoFactory ProtocolFactory) (Handle, *Server, error) {
	srv, err := NewServer(cfg, protoFactory)
	if err != nil {
		return 0, nil, err
	}

	h := Handle(m.next.Add(1))
	m.mu.Lock()
	m.servers[h] = srv
	m.mu.Unlock()
	return h, srv, nil
}

// GetServer returns the server registered under h.
func (m *Manager) GetServer(h Handle) (*Server, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	srv, ok := m.servers[h]
	if !ok {
		return nil, ErrUnknownHandle
	}
	return srv, nil
}

// GetServersInfo returns every registered server's context snapshot, keyed
// by handle, for the control plane's GetContextsInfo RPC.
func (m *Manager) GetServersInfo() map[Handle]stats.ServerInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[Handle]stats.ServerInfo, len(m.servers))
	for h, srv := range m.servers {
		out[h] = srv.GetServerInfo()
	}
	return out
}

// GetStats returns every registered server's sampled stats, keyed by
// handle, for the control plane's GetStats RPC.
func (m *Manager) GetStats() map[Handle]stats.Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[Handle]stats.Sample, len(m.servers))
	for h, srv := range m.servers {
		out[h] = srv.GetStats()
	}
	return out
}

// AddContext grows the server registered under h by one context.
func (m *Manager) AddContext(h Handle, numThreads int) (int, error) {
	srv, err := m.GetServer(h)
	if err != nil {
		return 0, err
	}
	return srv.AddContext(numThreads)
}

// DeactivateContext deactivates context idx on the server registered
// under h.
func (m *Manager) DeactivateContext(h Handle, idx int) error {
	srv, err := m.GetServer(h)
	if err != nil {
		return err
	}
	return srv.DeactivateContext(idx)
}

// Stop tears down the server registered under h and unregisters it.
func (m *Manager) Stop(h Handle) error {
	m.mu.Lock()
	srv, ok := m.servers[h]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownHandle
	}
	delete(m.servers, h)
	m.mu.Unlock()

	return srv.Stop()
}

// StopAll tears down every registered server, unregisters it, and waits
// for its acceptor to exit.
func (m *Manager) StopAll() error {
	m.mu.Lock()
	servers := make([]*Server, 0, len(m.servers))
	for h, srv := range m.servers {
		servers = append(servers, srv)
		delete(m.servers, h)
	}
	m.mu.Unlock()

	var firstErr error
	for _, srv := range servers {
		if err := srv.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, srv := range servers {
		srv.Wait()
	}
	return firstErr
}

// WaitAll blocks until every currently registered server's acceptor has
// exited. It snapshots the registered set, so it must not run concurrently
// with CreateServer. Servers already removed by Stop or StopAll are not in
// that set and are not waited for here; StopAll waits for its own.
func (m *Manager) WaitAll() {
	m.mu.RLock()
	servers := make([]*Server, 0, len(m.servers))
	for _, srv := range m.servers {
		servers = append(servers, srv)
	}
	m.mu.RUnlock()

	for _, srv := range servers {
		srv.Wait()
	}
}
