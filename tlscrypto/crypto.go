// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package tlscrypto

import (
	"crypto"

	"github.com/hrissan/tls/ciphersuite"
	"github.com/hrissan/tls/keys"
	"github.com/hrissan/tls/record"
	"github.com/hrissan/tls/tlsrand"
)

// Provider is the crypto capability the engine consumes. Implementations
// must be safe for concurrent use across engines; all per-handshake state
// (transcripts, PRF intermediates) stays inside the engine.
type Provider interface {
	Hash(alg crypto.Hash, data []byte) []byte
	PRF(version record.ProtocolVersion, prfHash crypto.Hash, secret []byte, label string, length int, seeds ...[]byte) []byte
	RandomBytes(data []byte)
	NewNonceGenerator() NonceGenerator
	// NewProtection builds the record protection for one direction from the
	// key block material of the negotiated suite.
	NewProtection(suite *ciphersuite.Suite, version record.ProtocolVersion, dk keys.DirectionKeys, encrypt bool) (record.Protection, error)
	VerifySignature(version record.ProtocolVersion, pub crypto.PublicKey, sah SignatureAndHash, message, sig []byte) error
	Sign(version record.ProtocolVersion, signer crypto.Signer, sah SignatureAndHash, message []byte) ([]byte, error)
}

type stdProvider struct {
	rnd tlsrand.Rand
}

// NewStdProvider is the default provider over the Go standard library plus
// golang.org/x/crypto for ChaCha20-Poly1305. Key exchange, X25519 included,
// is not part of the provider.
func NewStdProvider(rnd tlsrand.Rand) Provider {
	return &stdProvider{rnd: rnd}
}

func (p *stdProvider) Hash(alg crypto.Hash, data []byte) []byte {
	h := alg.New()
	h.Write(data)
	return h.Sum(nil)
}

func (p *stdProvider) PRF(version record.ProtocolVersion, prfHash crypto.Hash, secret []byte, label string, length int, seeds ...[]byte) []byte {
	out := make([]byte, length)
	keys.PRF(version, prfHash, out, secret, label, seeds...)
	return out
}

func (p *stdProvider) RandomBytes(data []byte) {
	p.rnd.Read(data)
}
