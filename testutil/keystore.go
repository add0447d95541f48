// Package testutil provides in-process fixtures for tests: a
// password-protected keystore and an HTTP server to fetch it from.
package testutil

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"

	"software.sslmate.com/src/go-pkcs12"

	"github.com/snileak/snileak/credentials"
)

// Keystore returns a password-protected PEM keystore holding a fresh
// self-signed identity for names, in the format credentials.FromKeystore
// expects.
func Keystore(t *testing.T, password string, names ...string) []byte {
	t.Helper()
	bundle, err := credentials.SelfSigned(names...)
	if err != nil {
		t.Fatalf("credentials.SelfSigned: %v", err)
	}
	key, ok := bundle.Certificate.PrivateKey.(*ecdsa.PrivateKey)
	if !ok {
		t.Fatalf("unexpected key type %T", bundle.Certificate.PrivateKey)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("x509.MarshalECPrivateKey: %v", err)
	}
	keyBlock, err := x509.EncryptPEMBlock(rand.Reader, "EC PRIVATE KEY", der, []byte(password), x509.PEMCipherAES256)
	if err != nil {
		t.Fatalf("x509.EncryptPEMBlock: %v", err)
	}
	var out []byte
	for _, raw := range bundle.Certificate.Certificate {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: raw})...)
	}
	return append(out, pem.EncodeToMemory(keyBlock)...)
}

// PKCS12Keystore returns a password-protected PKCS#12 keystore holding a
// fresh self-signed identity for names, in the format
// credentials.FromPKCS12 expects.
func PKCS12Keystore(t *testing.T, password string, names ...string) []byte {
	t.Helper()
	bundle, err := credentials.SelfSigned(names...)
	if err != nil {
		t.Fatalf("credentials.SelfSigned: %v", err)
	}
	data, err := pkcs12.Modern.Encode(bundle.Certificate.PrivateKey, bundle.Certificate.Leaf, nil, password)
	if err != nil {
		t.Fatalf("pkcs12.Encode: %v", err)
	}
	return data
}

// StartKeystoreServer serves keystore over HTTP for credentials.FromURL
// tests.
func StartKeystoreServer(t *testing.T, keystore []byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("content-type", "application/octet-stream")
		w.Write(keystore)
	}))
}
