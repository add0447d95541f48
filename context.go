package snileak

import (
	"crypto/tls"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/snileak/snileak/credentials"
)

// Handle is a client TLS context: a reusable configuration value bound to a
// credential bundle.
//
// A Handle models the caching behavior of TLS stacks that persist
// per-connection overrides inside a shared context object: the first
// connection through a Handle pins its server-name decision (a specific
// hostname, or no hostname at all), and every later connection through the
// same Handle gets the pinned value regardless of what it asked for. The
// pin is an explicit, versioned, inspectable field rather than hidden
// library state, so the leak can be observed and asserted on.
//
// A Handle used for exactly one connection never exhibits carryover; that
// is the reference behavior fresh-context mode relies on.
type Handle struct {
	bundle *credentials.Bundle

	mu         sync.Mutex
	pinned     bool
	pinnedName string
	pinnedHas  bool
	version    uint64
}

func newHandle(bundle *credentials.Bundle) *Handle {
	return &Handle{bundle: bundle}
}

// SessionConfig returns the TLS configuration for one connection that asked
// for the given server name (hasServerName false means the SNI extension is
// omitted entirely). The first call pins the decision into the Handle.
func (h *Handle) SessionConfig(serverName string, hasServerName bool) *tls.Config {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.pinned {
		h.pinned = true
		h.pinnedName = serverName
		h.pinnedHas = hasServerName
		h.version++
	}
	cfg := h.bundle.ClientConfig()
	if h.pinnedHas {
		cfg.ServerName = h.pinnedName
	}
	return cfg
}

// Pinned reports the Handle's cached server-name decision: the pinned
// hostname, whether a hostname was pinned at all, and whether the Handle
// has been used yet.
func (h *Handle) Pinned() (name string, has, pinned bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pinnedName, h.pinnedHas, h.pinned
}

// Version returns the number of times the Handle's cached state changed.
func (h *Handle) Version() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.version
}

// Source supplies a credential bundle. Loading may fail with
// [credentials.ErrCredentialLoad].
type Source func() (*credentials.Bundle, error)

// StaticSource returns a Source that always supplies bundle.
func StaticSource(bundle *credentials.Bundle) Source {
	return func() (*credentials.Bundle, error) {
		return bundle, nil
	}
}

// Manager produces client TLS contexts bound to a credential bundle. It
// performs no network I/O.
type Manager struct {
	source Source

	mu     sync.Mutex
	bundle *credentials.Bundle
	cache  *lru.Cache[string, *Handle]
}

// NewManager returns a Manager drawing credentials from source. The bundle
// is loaded on first use.
func NewManager(source Source) *Manager {
	cache, _ := lru.New[string, *Handle](8)
	return &Manager{
		source: source,
		cache:  cache,
	}
}

// Handle returns a client TLS context. With reuse true, the same cached
// Handle is returned for the lifetime of the Manager (keyed by bundle
// fingerprint); with reuse false, a brand-new Handle is minted on every
// call. Credential load failures propagate as
// [credentials.ErrCredentialLoad].
func (m *Manager) Handle(reuse bool) (*Handle, error) {
	bundle, err := m.load()
	if err != nil {
		return nil, err
	}
	if !reuse {
		return newHandle(bundle), nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.cache.Get(bundle.Fingerprint()); ok {
		return h, nil
	}
	h := newHandle(bundle)
	m.cache.Add(bundle.Fingerprint(), h)
	return h, nil
}

func (m *Manager) load() (*credentials.Bundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bundle != nil {
		return m.bundle, nil
	}
	bundle, err := m.source()
	if err != nil {
		return nil, err
	}
	m.bundle = bundle
	return bundle, nil
}
