package snileak

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snileak/snileak/credentials"
)

func testBundle(t *testing.T) *credentials.Bundle {
	t.Helper()
	bundle, err := credentials.SelfSigned("alpha.example")
	require.NoError(t, err)
	return bundle
}

func TestManagerReuseReturnsSameHandle(t *testing.T) {
	m := NewManager(StaticSource(testBundle(t)))

	h1, err := m.Handle(true)
	require.NoError(t, err)
	h2, err := m.Handle(true)
	require.NoError(t, err)
	assert.Same(t, h1, h2, "reuse must return the cached handle")

	h3, err := m.Handle(false)
	require.NoError(t, err)
	h4, err := m.Handle(false)
	require.NoError(t, err)
	assert.NotSame(t, h3, h4, "no-reuse must mint fresh handles")
	assert.NotSame(t, h1, h3)
}

func TestManagerCredentialLoadError(t *testing.T) {
	m := NewManager(func() (*credentials.Bundle, error) {
		return nil, fmt.Errorf("%w: bad password", credentials.ErrCredentialLoad)
	})
	_, err := m.Handle(true)
	assert.True(t, errors.Is(err, credentials.ErrCredentialLoad), "err = %v", err)
}

func TestHandlePinsFirstServerName(t *testing.T) {
	h := newHandle(testBundle(t))

	_, _, pinned := h.Pinned()
	assert.False(t, pinned, "fresh handle must not be pinned")
	assert.EqualValues(t, 0, h.Version())

	cfg := h.SessionConfig("alpha.example", true)
	assert.Equal(t, "alpha.example", cfg.ServerName)
	assert.EqualValues(t, 1, h.Version())

	// Later connections get the pinned value, whatever they request.
	cfg = h.SessionConfig("beta.example", true)
	assert.Equal(t, "alpha.example", cfg.ServerName)
	cfg = h.SessionConfig("", false)
	assert.Equal(t, "alpha.example", cfg.ServerName)
	assert.EqualValues(t, 1, h.Version(), "pin must not move after first use")

	name, has, pinned := h.Pinned()
	assert.True(t, pinned)
	assert.True(t, has)
	assert.Equal(t, "alpha.example", name)
}

func TestHandlePinsFirstAbsence(t *testing.T) {
	h := newHandle(testBundle(t))

	cfg := h.SessionConfig("", false)
	assert.Empty(t, cfg.ServerName)

	// The absence is just as sticky as a hostname.
	cfg = h.SessionConfig("beta.example", true)
	assert.Empty(t, cfg.ServerName)

	name, has, pinned := h.Pinned()
	assert.True(t, pinned)
	assert.False(t, has)
	assert.Empty(t, name)
}

func TestFreshHandlesAreIndependent(t *testing.T) {
	bundle := testBundle(t)
	m := NewManager(StaticSource(bundle))

	requests := []struct {
		name string
		has  bool
	}{
		{"alpha.example", true},
		{"beta.example", true},
		{"", false},
	}
	for _, req := range requests {
		h, err := m.Handle(false)
		require.NoError(t, err)
		cfg := h.SessionConfig(req.name, req.has)
		assert.Equal(t, req.name, cfg.ServerName)
	}
}
