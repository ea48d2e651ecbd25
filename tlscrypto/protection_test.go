// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package tlscrypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrissan/tls/ciphersuite"
	"github.com/hrissan/tls/keys"
	"github.com/hrissan/tls/record"
	"github.com/hrissan/tls/tlserrors"
	"github.com/hrissan/tls/tlsrand"
)

func directionKeys(suite *ciphersuite.Suite, version record.ProtocolVersion) keys.DirectionKeys {
	dk := keys.DirectionKeys{
		Key: bytes.Repeat([]byte{0x11}, suite.KeyLength),
		IV:  bytes.Repeat([]byte{0x22}, suite.EffectiveIVLength(version)),
	}
	if suite.MACLength > 0 {
		dk.MACKey = bytes.Repeat([]byte{0x33}, suite.MACLength)
	}
	return dk
}

func roundtrip(t *testing.T, id ciphersuite.ID, version record.ProtocolVersion) {
	suite, ok := ciphersuite.Lookup(id)
	require.True(t, ok)
	provider := NewStdProvider(tlsrand.FixedRand())
	dk := directionKeys(suite, version)

	seal, err := provider.NewProtection(suite, version, dk, true)
	require.NoError(t, err)
	open, err := provider.NewProtection(suite, version, dk, false)
	require.NoError(t, err)

	for seq := uint64(0); seq < 3; seq++ {
		payload := bytes.Repeat([]byte{byte(seq + 1)}, 100+int(seq))
		frag, err := seal.Seal(nil, seq, record.ContentApplicationData, version, payload)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(frag), len(payload)+seal.Overhead())

		plain, err := open.Open(seq, record.ContentApplicationData, version, frag)
		require.NoError(t, err)
		assert.Equal(t, payload, plain)
	}
}

func TestGCMRoundtrip(t *testing.T) {
	roundtrip(t, ciphersuite.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256, record.VersionTLS12)
}

func TestGCM256Roundtrip(t *testing.T) {
	roundtrip(t, ciphersuite.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384, record.VersionTLS12)
}

func TestChaChaRoundtrip(t *testing.T) {
	roundtrip(t, ciphersuite.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256, record.VersionTLS12)
}

func TestCBCRoundtripTLS12(t *testing.T) {
	roundtrip(t, ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA, record.VersionTLS12)
}

func TestCBCRoundtripTLS11(t *testing.T) {
	roundtrip(t, ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA, record.VersionTLS11)
}

func TestCBCRoundtripTLS10ImplicitIV(t *testing.T) {
	roundtrip(t, ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA, record.VersionTLS10)
}

func TestTamperedRecordFailsAuthentication(t *testing.T) {
	suite, _ := ciphersuite.Lookup(ciphersuite.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256)
	provider := NewStdProvider(tlsrand.FixedRand())
	dk := directionKeys(suite, record.VersionTLS12)

	seal, err := provider.NewProtection(suite, record.VersionTLS12, dk, true)
	require.NoError(t, err)
	open, err := provider.NewProtection(suite, record.VersionTLS12, dk, false)
	require.NoError(t, err)

	frag, err := seal.Seal(nil, 0, record.ContentApplicationData, record.VersionTLS12, []byte("payload"))
	require.NoError(t, err)
	frag[len(frag)-1] ^= 0x01

	_, err = open.Open(0, record.ContentApplicationData, record.VersionTLS12, frag)
	assert.ErrorIs(t, err, tlserrors.ErrRecordBadMAC)
}

func TestWrongSequenceFailsAuthentication(t *testing.T) {
	suite, _ := ciphersuite.Lookup(ciphersuite.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256)
	provider := NewStdProvider(tlsrand.FixedRand())
	dk := directionKeys(suite, record.VersionTLS12)

	seal, _ := provider.NewProtection(suite, record.VersionTLS12, dk, true)
	open, _ := provider.NewProtection(suite, record.VersionTLS12, dk, false)

	frag, err := seal.Seal(nil, 0, record.ContentApplicationData, record.VersionTLS12, []byte("payload"))
	require.NoError(t, err)
	_, err = open.Open(1, record.ContentApplicationData, record.VersionTLS12, frag)
	assert.ErrorIs(t, err, tlserrors.ErrRecordBadMAC)
}

func TestCBCNeedsSplittingOnlyBelowTLS11(t *testing.T) {
	suite, _ := ciphersuite.Lookup(ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA)
	provider := NewStdProvider(tlsrand.FixedRand())
	dk := directionKeys(suite, record.VersionTLS10)

	p10, _ := provider.NewProtection(suite, record.VersionTLS10, dk, true)
	assert.True(t, p10.NeedsSplitting())
	p11, _ := provider.NewProtection(suite, record.VersionTLS11, dk, true)
	assert.False(t, p11.NeedsSplitting())
	p10read, _ := provider.NewProtection(suite, record.VersionTLS10, dk, false)
	assert.False(t, p10read.NeedsSplitting())
}

func TestNonceGeneratorsNeverCollide(t *testing.T) {
	provider := NewStdProvider(tlsrand.FixedRand())
	seen := map[[8]byte]bool{}
	for i := 0; i < 4; i++ {
		gen := provider.NewNonceGenerator()
		for j := 0; j < 100; j++ {
			var nonce [8]byte
			gen.Next(nonce[:])
			require.False(t, seen[nonce], "nonce reused")
			seen[nonce] = true
		}
	}
}
