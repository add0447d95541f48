package credentials

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"software.sslmate.com/src/go-pkcs12"
)

// FromKeystore parses a password-protected PEM keystore: one or more
// CERTIFICATE blocks followed by an RFC 1423 encrypted private key block.
// The first certificate is the identity, the rest become extra trust
// anchors.
func FromKeystore(data []byte, password string) (*Bundle, error) {
	var certs []*x509.Certificate
	var chain [][]byte
	var key any
	for len(data) > 0 {
		var block *pem.Block
		if block, data = pem.Decode(data); block == nil {
			break
		}
		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("%w: x509.ParseCertificate: %v", ErrCredentialLoad, err)
			}
			certs = append(certs, cert)
			chain = append(chain, block.Bytes)
		default:
			if key != nil {
				return nil, fmt.Errorf("%w: more than one private key", ErrCredentialLoad)
			}
			der := block.Bytes
			if x509.IsEncryptedPEMBlock(block) {
				var err error
				if der, err = x509.DecryptPEMBlock(block, []byte(password)); err != nil {
					return nil, fmt.Errorf("%w: decrypt private key: %v", ErrCredentialLoad, err)
				}
			}
			var err error
			if key, err = parsePrivateKey(der); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCredentialLoad, err)
			}
		}
	}
	if len(certs) == 0 || key == nil {
		return nil, fmt.Errorf("%w: keystore needs a certificate and a private key", ErrCredentialLoad)
	}
	return New(tls.Certificate{
		Certificate: chain,
		PrivateKey:  key,
		Leaf:        certs[0],
	}, certs[1:]...)
}

func parsePrivateKey(der []byte) (any, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("unsupported private key format")
}

// FromPKCS12 parses a password-protected PKCS#12 keystore, the format the
// original demonstration shipped its keypair in.
func FromPKCS12(data []byte, password string) (*Bundle, error) {
	key, leaf, caCerts, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return nil, fmt.Errorf("%w: pkcs12.DecodeChain: %v", ErrCredentialLoad, err)
	}
	chain := [][]byte{leaf.Raw}
	for _, ca := range caCerts {
		chain = append(chain, ca.Raw)
	}
	return New(tls.Certificate{
		Certificate: chain,
		PrivateKey:  key,
		Leaf:        leaf,
	}, caCerts...)
}

// FromURL fetches a keystore over HTTP(S) and parses it with FromKeystore
// or, if the payload is not PEM, FromPKCS12.
func FromURL(ctx context.Context, url, password string) (*Bundle, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialLoad, err)
	}
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 3
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = time.Second
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialLoad, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("%w: status code %d", ErrCredentialLoad, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialLoad, err)
	}
	if block, _ := pem.Decode(body); block != nil {
		return FromKeystore(body, password)
	}
	return FromPKCS12(body, password)
}
