// Package service implements the service manager: a registry of named
// providers that respond to service-want/service-dontwant bus signals on
// behalf of whichever equipment runtime or test case needs them, each
// idempotent per (needer, kwargs).
package service

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"devtester/internal/logging"
	"devtester/internal/signalbus"
)

// Provider is a named service a Manager can start and stop on behalf of a
// needer.
type Provider interface {
	// ProvideFor begins providing the service for needer, idempotently
	// per (needer identity, key derived from kwargs): re-requesting
	// returns the existing state rather than starting a second instance.
	ProvideFor(needer interface{}, kwargs signalbus.Payload) (interface{}, error)
	// ReleaseFor stops providing the service for needer. A second call
	// for an already-released (needer, kwargs) is a no-op.
	ReleaseFor(needer interface{}, kwargs signalbus.Payload) (interface{}, error)
	// Close tears down every outstanding instance this provider started,
	// called once at service-manager shutdown.
	Close() error
}

type neederKey struct {
	needer interface{}
	key string
}

// Manager is the global {service-name -> provider} registry. It connects
// to service-want/service-dontwant on construction and remains connected
// for its lifetime.
type Manager struct {
	mu sync.Mutex
	providers map[string]Provider
	active map[neederKey]bool
	logger logging.Logger
	bus *signalbus.Bus
	wantH signalbus.Handle
	dontwantH signalbus.Handle
}

// New creates a Manager connected to bus. logger, if non-nil, receives a
// diagnostic for every want/dontwant and for provider errors.
func New(bus *signalbus.Bus, logger logging.Logger) *Manager {
	m := &Manager{
		providers: make(map[string]Provider),
		active: make(map[neederKey]bool),
		logger: logger,
		bus: bus,
	}
	m.wantH = bus.Connect(signalbus.SigServiceWant, nil, false, m.onWant)
	m.dontwantH = bus.Connect(signalbus.SigServiceDontwant, nil, false, m.onDontwant)
	return m
}

// Register adds a provider under name, announcing it via service-provide.
// It is not safe to call concurrently with a want/dontwant delivery for
// the same name.
func (m *Manager) Register(name string, p Provider) {
	m.mu.Lock()
	m.providers[name] = p
	m.mu.Unlock()
	m.bus.Send(signalbus.SigServiceProvide, m, signalbus.Payload{"provider": p, "name": name})
}

func (m *Manager) onWant(sender interface{}, payload signalbus.Payload) interface{} {
	name, _ := payload["service"].(string)
	m.log("service-want: %s from %v", name, sender)

	m.mu.Lock()
	p, ok := m.providers[name]
	m.mu.Unlock()
	if !ok {
		m.log("service-want: unknown service %q", name)
		return nil
	}

	key := neederKey{needer: sender, key: fingerprintKwargs(payload)}
	m.mu.Lock()
	alreadyActive := m.active[key]
	m.mu.Unlock()

	v, err := p.ProvideFor(sender, payload)
	if err != nil {
		m.log("service-want: provider %q failed for %v: %v", name, sender, err)
		return nil
	}
	if !alreadyActive {
		m.mu.Lock()
		m.active[key] = true
		m.mu.Unlock()
	}
	return v
}

func (m *Manager) onDontwant(sender interface{}, payload signalbus.Payload) interface{} {
	name, _ := payload["service"].(string)
	m.log("service-dontwant: %s from %v", name, sender)

	m.mu.Lock()
	p, ok := m.providers[name]
	key := neederKey{needer: sender, key: fingerprintKwargs(payload)}
	active := m.active[key]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if !active {
		m.log("service-dontwant: %s from %v is a no-op (not active)", name, sender)
		return nil
	}

	v, err := p.ReleaseFor(sender, payload)
	if err != nil {
		m.log("service-dontwant: provider %q failed for %v: %v", name, sender, err)
	}
	m.mu.Lock()
	delete(m.active, key)
	m.mu.Unlock()
	return v
}

func (m *Manager) log(format string, args ...interface{}) {
	if m.logger == nil {
		return
	}
	m.logger.Log(logging.LevelDiagnostic, timeNow(), fmt.Sprintf(format, args...))
}

// Close disconnects from the bus and closes every registered provider
// concurrently: providers are independent (coprocesses, samplers,
// goroutine-backed streams) and a slow one (waiting out a coprocess's
// grace period, say) should not delay the others' teardown.
func (m *Manager) Close() error {
	m.bus.Disconnect(m.wantH)
	m.bus.Disconnect(m.dontwantH)

	m.mu.Lock()
	providers := make([]Provider, 0, len(m.providers))
	for _, p := range m.providers {
		providers = append(providers, p)
	}
	m.mu.Unlock()

	var g errgroup.Group
	for _, p := range providers {
		p := p
		g.Go(p.Close)
	}
	return g.Wait()
}

func fingerprintKwargs(payload signalbus.Payload) string {
	return fmt.Sprintf("%#v", payload)
}
