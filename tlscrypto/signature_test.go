// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package tlscrypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrissan/tls/record"
	"github.com/hrissan/tls/tlserrors"
	"github.com/hrissan/tls/tlsrand"
)

func TestSignVerifyRSA(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	provider := NewStdProvider(tlsrand.CryptoRand())
	message := []byte("signed handshake params")

	for _, version := range []record.ProtocolVersion{record.VersionTLS10, record.VersionTLS12} {
		sah := SignatureAndHash{Hash: HashSHA256, Signature: SignatureRSA}
		sig, err := provider.Sign(version, key, sah, message)
		require.NoError(t, err)
		require.NoError(t, provider.VerifySignature(version, key.Public(), sah, message, sig))

		// tampering must fail
		sig[0] ^= 1
		assert.ErrorIs(t, provider.VerifySignature(version, key.Public(), sah, message, sig),
			tlserrors.ErrSignatureInvalid)
	}
}

func TestSignVerifyECDSA(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	provider := NewStdProvider(tlsrand.CryptoRand())
	message := []byte("signed handshake params")

	for _, version := range []record.ProtocolVersion{record.VersionTLS10, record.VersionTLS12} {
		sah := SignatureAndHash{Hash: HashSHA256, Signature: SignatureECDSA}
		sig, err := provider.Sign(version, key, sah, message)
		require.NoError(t, err)
		require.NoError(t, provider.VerifySignature(version, key.Public(), sah, message, sig))

		assert.ErrorIs(t, provider.VerifySignature(version, key.Public(), sah, []byte("other"), sig),
			tlserrors.ErrSignatureInvalid)
	}
}

func TestVerifyRejectsAlgorithmMismatch(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	provider := NewStdProvider(tlsrand.CryptoRand())
	sah := SignatureAndHash{Hash: HashSHA256, Signature: SignatureECDSA}
	err = provider.VerifySignature(record.VersionTLS12, key.Public(), sah, []byte("m"), []byte("sig"))
	assert.ErrorIs(t, err, tlserrors.ErrSignatureAlgorithmUnsupported)
}
