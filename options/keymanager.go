// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package options

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	stdtls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"

	"github.com/pkg/errors"

	"github.com/hrissan/tls/constants"
)

// KeyManager selects and exposes local identities. Aliases are opaque to the
// engine; the callback bridge asks for one matching the negotiated key
// exchange and the peer's advertised CAs.
type KeyManager interface {
	// keyTypes in "RSA"/"EC" vocabulary; nil issuers means unfiltered
	ChooseClientAlias(keyTypes []string, issuers []pkix.Name) string
	ChooseServerAlias(keyType string, issuers []pkix.Name) string
	PrivateKey(alias string) crypto.Signer
	CertificateChain(alias string) []*x509.Certificate
}

type identity struct {
	alias  string
	signer crypto.Signer
	chain  []*x509.Certificate
}

// StaticKeyManager holds identities loaded up front.
type StaticKeyManager struct {
	identities []identity
}

func (m *StaticKeyManager) Add(alias string, signer crypto.Signer, chain []*x509.Certificate) {
	m.identities = append(m.identities, identity{alias: alias, signer: signer, chain: chain})
}

func keyTypeOf(signer crypto.Signer) string {
	switch signer.Public().(type) {
	case *rsa.PublicKey:
		return "RSA"
	case *ecdsa.PublicKey:
		return "EC"
	}
	return ""
}

func (id *identity) matchesIssuers(issuers []pkix.Name) bool {
	if len(issuers) == 0 {
		return true
	}
	for _, cert := range id.chain {
		raw := cert.RawIssuer
		for _, name := range issuers {
			if wanted, err := asn1Name(name); err == nil && bytes.Equal(raw, wanted) {
				return true
			}
		}
	}
	return false
}

func asn1Name(name pkix.Name) ([]byte, error) {
	return asn1.Marshal(name.ToRDNSequence())
}

func (m *StaticKeyManager) ChooseClientAlias(keyTypes []string, issuers []pkix.Name) string {
	for _, id := range m.identities {
		for _, kt := range keyTypes {
			if keyTypeOf(id.signer) == kt && id.matchesIssuers(issuers) {
				return id.alias
			}
		}
	}
	return ""
}

func (m *StaticKeyManager) ChooseServerAlias(keyType string, issuers []pkix.Name) string {
	for _, id := range m.identities {
		if keyTypeOf(id.signer) == keyType && id.matchesIssuers(issuers) {
			return id.alias
		}
	}
	return ""
}

func (m *StaticKeyManager) PrivateKey(alias string) crypto.Signer {
	for _, id := range m.identities {
		if id.alias == alias {
			return id.signer
		}
	}
	return nil
}

func (m *StaticKeyManager) CertificateChain(alias string) []*x509.Certificate {
	for _, id := range m.identities {
		if id.alias == alias {
			return id.chain
		}
	}
	return nil
}

// LoadIdentity reads a PEM certificate chain and private key and installs
// them as the engine's identity under the given alias.
func (opts *EngineOptions) LoadIdentity(alias, certificatePath, privateKeyPEMPath string) error {
	cert, err := stdtls.LoadX509KeyPair(certificatePath, privateKeyPEMPath)
	if err != nil {
		return errors.Wrap(err, "loading x509 key pair")
	}
	return opts.InstallIdentity(alias, cert)
}

// InstallIdentity accepts an already-parsed keypair, e.g. a generated test
// certificate.
func (opts *EngineOptions) InstallIdentity(alias string, cert stdtls.Certificate) error {
	if len(cert.Certificate) == 0 {
		return errors.New("keypair contains no certificates")
	}
	if len(cert.Certificate) > constants.MaxCertificateChainLength {
		return errors.Errorf("certificate chain too long (%d), only %d are supported",
			len(cert.Certificate), constants.MaxCertificateChainLength)
	}
	signer, ok := cert.PrivateKey.(crypto.Signer)
	if !ok {
		return errors.New("private key does not implement crypto.Signer")
	}
	chain := make([]*x509.Certificate, 0, len(cert.Certificate))
	for i, der := range cert.Certificate {
		parsed, err := x509.ParseCertificate(der)
		if err != nil {
			return errors.Wrapf(err, "parsing certificate %d in chain", i)
		}
		chain = append(chain, parsed)
	}
	km, ok := opts.Keys.(*StaticKeyManager)
	if !ok || km == nil {
		km = &StaticKeyManager{}
		opts.Keys = km
	}
	km.Add(alias, signer, chain)
	return nil
}
