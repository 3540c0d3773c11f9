package agent

import (
	"context"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager/v3"

	"github.com/nimbus-oss/azurecreds/errtax"
	"github.com/nimbus-oss/azurecreds/token"
)

const (
	defaultRefreshBefore = 5 * time.Minute
	defaultMaxRetries    = 10
)

// Manager supervises a set of named credential agents sharing one Registry,
// grounded on the pooled-manager supervisor in atc/creds/pool.go.
type Manager struct {
	log      lager.Logger
	clk      clock.Clock
	registry *Registry

	mu     sync.Mutex
	agents map[string]*Agent
}

// NewManager constructs a Manager backed by a fresh Registry.
func NewManager(log lager.Logger, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.NewClock()
	}
	return &Manager{
		log:      log.Session("credential-manager"),
		clk:      clk,
		registry: NewRegistry(),
		agents:   make(map[string]*Agent),
	}
}

// Registry exposes the shared token registry for read-only lookups outside
// the manager (e.g. diagnostics).
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Start validates opts and launches a new agent for opts.Name. Missing name
// or source is a hard configuration failure, per spec.md §4.4.
func (m *Manager) Start(ctx context.Context, opts Options) error {
	if opts.Name == "" {
		return &errtax.ConfigurationError{Type: "missing_required", Key: "name"}
	}
	if opts.Source == nil {
		return &errtax.ConfigurationError{Type: "missing_required", Key: "source"}
	}
	if opts.RefreshBefore == 0 {
		opts.RefreshBefore = defaultRefreshBefore
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.Prefetch == "" {
		opts.Prefetch = PrefetchSync
	}

	m.mu.Lock()
	if _, exists := m.agents[opts.Name]; exists {
		m.mu.Unlock()
		return &errtax.ConfigurationError{Type: "invalid_value", Key: "name", Value: "credential already registered: " + opts.Name}
	}
	a := newAgent(opts, m.registry, m.log, m.clk)
	m.agents[opts.Name] = a
	m.mu.Unlock()

	if err := a.start(ctx); err != nil {
		m.mu.Lock()
		delete(m.agents, opts.Name)
		m.mu.Unlock()
		return err
	}
	return nil
}

// Fetch returns the cached token for name, falling through to a synchronous
// acquisition via the owning agent when the registry has no entry yet, per
// spec.md §4.4's fetch(name) contract.
func (m *Manager) Fetch(ctx context.Context, name string) (*token.Token, error) {
	if tok, ok := m.registry.Lookup(name); ok {
		return tok, nil
	}

	m.mu.Lock()
	a, ok := m.agents[name]
	m.mu.Unlock()
	if !ok {
		return nil, &errtax.TokenServerError{Type: "fetch_failed", Name: name, Reason: "no credential agent registered with this name"}
	}

	return a.fetch(ctx)
}

// MustFetch is fetch! from spec.md §4.4: same as Fetch but panics on error.
func (m *Manager) MustFetch(ctx context.Context, name string) *token.Token {
	tok, err := m.Fetch(ctx, name)
	if err != nil {
		panic(err)
	}
	return tok
}

// Close stops every agent and releases their registry slots.
func (m *Manager) Close() {
	m.mu.Lock()
	agents := make(map[string]*Agent, len(m.agents))
	for name, a := range m.agents {
		agents[name] = a
	}
	m.agents = make(map[string]*Agent)
	m.mu.Unlock()

	for name, a := range agents {
		a.close()
		m.registry.forget(name)
	}
}

// Health reports whether every registered credential currently has a live
// token in the registry, mirroring the Manager.Health contract in
// atc/creds.Manager.
func (m *Manager) Health() map[string]bool {
	m.mu.Lock()
	names := make([]string, 0, len(m.agents))
	for name := range m.agents {
		names = append(names, name)
	}
	m.mu.Unlock()

	report := make(map[string]bool, len(names))
	for _, name := range names {
		_, ok := m.registry.Lookup(name)
		report[name] = ok
	}
	return report
}
