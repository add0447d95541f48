package credentials_test

import (
	"context"
	"crypto/tls"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snileak/snileak/credentials"
	"github.com/snileak/snileak/testutil"
)

func TestSelfSigned(t *testing.T) {
	bundle, err := credentials.SelfSigned("alpha.example", "beta.example")
	require.NoError(t, err)
	require.NotNil(t, bundle.Certificate.Leaf)
	assert.ElementsMatch(t, []string{"alpha.example", "beta.example"}, bundle.Certificate.Leaf.DNSNames)
	assert.NotEmpty(t, bundle.Fingerprint())

	other, err := credentials.SelfSigned("alpha.example")
	require.NoError(t, err)
	assert.NotEqual(t, bundle.Fingerprint(), other.Fingerprint())

	_, err = credentials.SelfSigned()
	assert.ErrorIs(t, err, credentials.ErrCredentialLoad)
}

func TestFromKeystore(t *testing.T) {
	store := testutil.Keystore(t, "storepass", "alpha.example")

	bundle, err := credentials.FromKeystore(store, "storepass")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha.example"}, bundle.Certificate.Leaf.DNSNames)
}

func TestFromKeystoreBadPassword(t *testing.T) {
	store := testutil.Keystore(t, "storepass", "alpha.example")

	_, err := credentials.FromKeystore(store, "wrongpass")
	assert.ErrorIs(t, err, credentials.ErrCredentialLoad)
}

func TestFromKeystoreMalformed(t *testing.T) {
	_, err := credentials.FromKeystore([]byte("not a keystore"), "storepass")
	assert.ErrorIs(t, err, credentials.ErrCredentialLoad)

	_, err = credentials.FromKeystore(nil, "")
	assert.ErrorIs(t, err, credentials.ErrCredentialLoad)
}

func TestFromPKCS12(t *testing.T) {
	store := testutil.PKCS12Keystore(t, "storepass", "alpha.example")

	bundle, err := credentials.FromPKCS12(store, "storepass")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha.example"}, bundle.Certificate.Leaf.DNSNames)
	assert.NotNil(t, bundle.Certificate.PrivateKey)

	_, err = credentials.FromPKCS12(store, "wrongpass")
	assert.ErrorIs(t, err, credentials.ErrCredentialLoad)
}

func TestFromPKCS12Malformed(t *testing.T) {
	_, err := credentials.FromPKCS12([]byte("not a pkcs12 store"), "storepass")
	assert.ErrorIs(t, err, credentials.ErrCredentialLoad)
}

func TestFromURL(t *testing.T) {
	store := testutil.Keystore(t, "storepass", "alpha.example")
	srv := testutil.StartKeystoreServer(t, store)
	defer srv.Close()

	bundle, err := credentials.FromURL(testContext(t), srv.URL, "storepass")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha.example"}, bundle.Certificate.Leaf.DNSNames)

	_, err = credentials.FromURL(testContext(t), srv.URL+"/missing", "storepass")
	assert.NoError(t, err, "the fixture server ignores the path")

	srv.Close()
	_, err = credentials.FromURL(testContext(t), srv.URL, "storepass")
	assert.ErrorIs(t, err, credentials.ErrCredentialLoad)
}

func TestFromURLPKCS12(t *testing.T) {
	// A non-PEM payload takes the PKCS#12 path.
	store := testutil.PKCS12Keystore(t, "storepass", "alpha.example")
	srv := testutil.StartKeystoreServer(t, store)
	defer srv.Close()

	bundle, err := credentials.FromURL(testContext(t), srv.URL, "storepass")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha.example"}, bundle.Certificate.Leaf.DNSNames)
}

// TestMutualTrust pairs the bundle's client and server configurations over
// an in-process connection: the shared identity must verify against its own
// pool, and an unrelated identity must not.
func TestMutualTrust(t *testing.T) {
	bundle, err := credentials.SelfSigned("alpha.example")
	require.NoError(t, err)

	t.Run("SameBundle", func(t *testing.T) {
		cc, sc := net.Pipe()
		errCh := make(chan error, 1)
		go func() {
			server := tls.Server(sc, bundle.ServerConfig())
			errCh <- server.HandshakeContext(testContext(t))
		}()
		client := tls.Client(cc, bundle.ClientConfig())
		assert.NoError(t, client.HandshakeContext(testContext(t)))
		assert.NoError(t, <-errCh)
		client.Close()
		sc.Close()
	})

	t.Run("OtherBundle", func(t *testing.T) {
		other, err := credentials.SelfSigned("alpha.example")
		require.NoError(t, err)

		cc, sc := net.Pipe()
		go func() {
			server := tls.Server(sc, other.ServerConfig())
			server.HandshakeContext(testContext(t))
			sc.Close()
		}()
		client := tls.Client(cc, bundle.ClientConfig())
		assert.Error(t, client.HandshakeContext(testContext(t)))
		cc.Close()
	})
}

// testContext backports testing.T.Context (Go 1.24) for the Go 1.21
// toolchain: a context canceled before the test's cleanup functions run.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
