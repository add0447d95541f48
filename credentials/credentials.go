// Package credentials loads the certificate, private key, and trust anchors
// shared by both peers of the demo. The same self-signed identity acts as
// server certificate, client certificate, and trust root, so a bundle is all
// either side needs to build its TLS configuration.
package credentials

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"
)

// ErrCredentialLoad is returned when a keystore cannot be parsed or
// decrypted. It is fatal: the demo cannot start without credentials.
var ErrCredentialLoad = errors.New("credential load failed")

// Bundle is an immutable set of credentials: one identity and the trust
// anchors used to verify it. Both the observation server and the probing
// client borrow the same bundle.
type Bundle struct {
	Certificate tls.Certificate
	Pool        *x509.CertPool

	fingerprint string
}

// New assembles a Bundle from a certificate with a parsed Leaf. The leaf is
// added to the trust pool along with any extra anchors.
func New(cert tls.Certificate, anchors ...*x509.Certificate) (*Bundle, error) {
	if cert.Leaf == nil {
		return nil, fmt.Errorf("%w: certificate has no parsed leaf", ErrCredentialLoad)
	}
	pool := x509.NewCertPool()
	pool.AddCert(cert.Leaf)
	for _, a := range anchors {
		pool.AddCert(a)
	}
	sum := sha256.Sum256(cert.Leaf.Raw)
	return &Bundle{
		Certificate: cert,
		Pool:        pool,
		fingerprint: hex.EncodeToString(sum[:]),
	}, nil
}

// SelfSigned generates an in-memory ECDSA P-256 self-signed identity valid
// for the given DNS names.
func SelfSigned(names ...string) (*Bundle, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: at least one name is required", ErrCredentialLoad)
	}
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: ecdsa.GenerateKey: %v", ErrCredentialLoad, err)
	}
	// Go 1.25's x509.CreateCertificate generates a random serial when the
	// template leaves it nil; replicate that here for older toolchains.
	serial := make([]byte, 20)
	if _, err := io.ReadFull(rand.Reader, serial); err != nil {
		return nil, fmt.Errorf("%w: rand.Read: %v", ErrCredentialLoad, err)
	}
	serial[0] &= 0x7f
	now := time.Now()
	templ := &x509.Certificate{
		SerialNumber:          new(big.Int).SetBytes(serial),
		Issuer:                pkix.Name{CommonName: names[0]},
		Subject:               pkix.Name{CommonName: names[0]},
		NotBefore:             now,
		NotAfter:              now.Add(3650 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              names,
	}
	b, err := x509.CreateCertificate(rand.Reader, templ, templ, key.Public(), key)
	if err != nil {
		return nil, fmt.Errorf("%w: x509.CreateCertificate: %v", ErrCredentialLoad, err)
	}
	cert, err := x509.ParseCertificate(b)
	if err != nil {
		return nil, fmt.Errorf("%w: x509.ParseCertificate: %v", ErrCredentialLoad, err)
	}
	return New(tls.Certificate{
		Certificate: [][]byte{b},
		PrivateKey:  key,
		Leaf:        cert,
	})
}

// Fingerprint returns the hex-encoded SHA-256 digest of the leaf
// certificate. Bundles with the same leaf share a fingerprint.
func (b *Bundle) Fingerprint() string {
	return b.fingerprint
}

// ServerConfig returns a TLS server configuration presenting the bundle's
// identity.
func (b *Bundle) ServerConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{b.Certificate},
		MinVersion:   tls.VersionTLS12,
	}
}

// ClientConfig returns a TLS client configuration trusting only the bundle's
// pool. The certificate chain is verified manually, without a hostname
// check: the demo deliberately presents SNI names that are unrelated to the
// certificate, and the no-SNI case has no hostname to check against.
func (b *Bundle) ClientConfig() *tls.Config {
	pool := b.Pool
	return &tls.Config{
		Certificates:          []tls.Certificate{b.Certificate},
		RootCAs:               pool,
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: verifyChain(pool),
		MinVersion:            tls.VersionTLS12,
	}
}

func verifyChain(pool *x509.CertPool) func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return errors.New("no peer certificate")
		}
		certs := make([]*x509.Certificate, 0, len(rawCerts))
		for _, raw := range rawCerts {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				return fmt.Errorf("x509.ParseCertificate: %w", err)
			}
			certs = append(certs, cert)
		}
		opts := x509.VerifyOptions{
			Roots:         pool,
			Intermediates: x509.NewCertPool(),
		}
		for _, cert := range certs[1:] {
			opts.Intermediates.AddCert(cert)
		}
		_, err := certs[0].Verify(opts)
		return err
	}
}
