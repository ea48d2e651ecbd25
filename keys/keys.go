// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package keys

import (
	"crypto"

	"github.com/hrissan/tls/ciphersuite"
	"github.com/hrissan/tls/constants"
	"github.com/hrissan/tls/record"
)

// MasterSecret derives the 48-byte master secret from the premaster secret
// and both hello randoms [rfc5246:8.1].
func MasterSecret(version record.ProtocolVersion, prfHash crypto.Hash, preMaster, clientRandom, serverRandom []byte) (master [constants.MasterSecretLength]byte) {
	PRF(version, prfHash, master[:], preMaster, LabelMasterSecret, clientRandom, serverRandom)
	return master
}

// ExtendedMasterSecret binds the master secret to the whole handshake
// transcript instead of the randoms [rfc7627:4].
func ExtendedMasterSecret(version record.ProtocolVersion, prfHash crypto.Hash, preMaster, sessionHash []byte) (master [constants.MasterSecretLength]byte) {
	PRF(version, prfHash, master[:], preMaster, LabelExtendedMasterSecret, sessionHash)
	return master
}

// DirectionKeys is the write key material for one direction.
type DirectionKeys struct {
	MACKey []byte // empty for AEAD suites
	Key    []byte
	IV     []byte // fixed/implicit IV part
}

// KeyBlock expands the master secret into both directions' write keys
// [rfc5246:6.3]. Note the seed order: server_random precedes client_random,
// the reverse of master secret derivation.
func KeyBlock(version record.ProtocolVersion, suite *ciphersuite.Suite, master, clientRandom, serverRandom []byte) (client, server DirectionKeys) {
	block := make([]byte, suite.KeyBlockLength(version))
	PRF(version, suite.PRFHash, block, master, LabelKeyExpansion, serverRandom, clientRandom)

	cut := func(n int) []byte {
		part := block[:n:n]
		block = block[n:]
		return part
	}
	ivLength := suite.EffectiveIVLength(version)
	client.MACKey = cut(suite.MACLength)
	server.MACKey = cut(suite.MACLength)
	client.Key = cut(suite.KeyLength)
	server.Key = cut(suite.KeyLength)
	client.IV = cut(ivLength)
	server.IV = cut(ivLength)
	return client, server
}

// ComputeFinished is the 12-byte verify_data [rfc5246:7.4.9].
func ComputeFinished(version record.ProtocolVersion, prfHash crypto.Hash, master []byte, label string, transcriptSum []byte) (verify [constants.VerifyDataLength]byte) {
	PRF(version, prfHash, verify[:], master, label, transcriptSum)
	return verify
}

// ExportKeyingMaterial implements the RFC 5705 exporter over frozen
// connection parameters. hasContext distinguishes an absent context from an
// empty one, they produce different output.
func ExportKeyingMaterial(version record.ProtocolVersion, prfHash crypto.Hash, master []byte, label string, context []byte, hasContext bool, clientRandom, serverRandom []byte, length int) []byte {
	seeds := [][]byte{clientRandom, serverRandom}
	if hasContext {
		if len(context) > 0xFFFF {
			return nil
		}
		seeds = append(seeds, []byte{byte(len(context) >> 8), byte(len(context))}, context)
	}
	out := make([]byte, length)
	PRF(version, prfHash, out, master, label, seeds...)
	return out
}

// Zeroize scrubs secrets on teardown. The compiler cannot elide this store
// through a slice parameter.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
