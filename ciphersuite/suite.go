// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package ciphersuite

import (
	"crypto"
	_ "crypto/sha1" // PRF and MAC hashes must be linked in
	_ "crypto/sha256"
	_ "crypto/sha512"
	"strconv"

	"github.com/hrissan/tls/record"
)

type ID uint16

func (id ID) String() string {
	if s, ok := Lookup(id); ok {
		return s.Name
	}
	return "suite(0x" + strconv.FormatUint(uint64(id), 16) + ")"
}

const (
	TLS_RSA_WITH_AES_128_CBC_SHA    ID = 0x002F
	TLS_RSA_WITH_AES_256_CBC_SHA    ID = 0x0035
	TLS_RSA_WITH_AES_128_CBC_SHA256 ID = 0x003C
	TLS_RSA_WITH_AES_128_GCM_SHA256 ID = 0x009C
	TLS_RSA_WITH_AES_256_GCM_SHA384 ID = 0x009D

	TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA    ID = 0xC009
	TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA    ID = 0xC00A
	TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA      ID = 0xC013
	TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA      ID = 0xC014
	TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256 ID = 0xC02B
	TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384 ID = 0xC02C
	TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256   ID = 0xC02F
	TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384   ID = 0xC030

	TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256   ID = 0xCCA8
	TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256 ID = 0xCCA9

	// [rfc5746:3.3] signaling value, never negotiated as a suite
	TLS_EMPTY_RENEGOTIATION_INFO_SCSV ID = 0x00FF
)

type KeyExchange byte

const (
	KeyExchangeRSA KeyExchange = iota
	KeyExchangeECDHERSA
	KeyExchangeECDHEECDSA
)

// ECDHE needs a signature over the ServerKeyExchange params
func (kx KeyExchange) Ephemeral() bool { return kx != KeyExchangeRSA }

// Key type the server certificate must carry for this key exchange,
// in X509KeyManager alias vocabulary.
func (kx KeyExchange) KeyType() string {
	if kx == KeyExchangeECDHEECDSA {
		return "EC"
	}
	return "RSA"
}

type Bulk byte

const (
	BulkAESCBC Bulk = iota
	BulkAESGCM
	BulkChaCha20Poly1305
)

type Suite struct {
	ID   ID
	Name string
	Kx   KeyExchange
	Bulk Bulk

	KeyLength     int
	FixedIVLength int // implicit part written into the key block
	MACLength     int // 0 for AEAD suites
	MACHash       crypto.Hash

	PRFHash crypto.Hash // TLS 1.2 PRF and session hash; below 1.2 PRF is fixed MD5+SHA1

	// CBC suites run down to TLS 1.0, AEAD suites require TLS 1.2 [rfc5246:6.2.3.3]
	MinVersion record.ProtocolVersion
}

func (s *Suite) AEAD() bool { return s.Bulk != BulkAESCBC }

// EffectiveIVLength depends on the version for CBC: TLS 1.0 takes implicit
// IVs from the key block, TLS 1.1+ sends explicit per-record IVs
// [rfc2246:6.3] [rfc4346:6.2.3.2].
func (s *Suite) EffectiveIVLength(v record.ProtocolVersion) int {
	if s.Bulk == BulkAESCBC {
		if v <= record.VersionTLS10 {
			return 16 // AES block size
		}
		return 0
	}
	return s.FixedIVLength
}

// Key material per direction: MAC key (CBC only), cipher key, fixed IV.
func (s *Suite) KeyBlockLength(v record.ProtocolVersion) int {
	return 2 * (s.MACLength + s.KeyLength + s.EffectiveIVLength(v))
}

func (s *Suite) UsableWith(v record.ProtocolVersion) bool {
	return v >= s.MinVersion
}

var suites = []*Suite{
	// preference order: ECDHE before static RSA, AEAD before CBC
	{ID: TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256, Name: "TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256",
		Kx: KeyExchangeECDHEECDSA, Bulk: BulkAESGCM, KeyLength: 16, FixedIVLength: 4, PRFHash: crypto.SHA256, MinVersion: record.VersionTLS12},
	{ID: TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384, Name: "TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384",
		Kx: KeyExchangeECDHEECDSA, Bulk: BulkAESGCM, KeyLength: 32, FixedIVLength: 4, PRFHash: crypto.SHA384, MinVersion: record.VersionTLS12},
	{ID: TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256, Name: "TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256",
		Kx: KeyExchangeECDHEECDSA, Bulk: BulkChaCha20Poly1305, KeyLength: 32, FixedIVLength: 12, PRFHash: crypto.SHA256, MinVersion: record.VersionTLS12},
	{ID: TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256, Name: "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256",
		Kx: KeyExchangeECDHERSA, Bulk: BulkAESGCM, KeyLength: 16, FixedIVLength: 4, PRFHash: crypto.SHA256, MinVersion: record.VersionTLS12},
	{ID: TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384, Name: "TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384",
		Kx: KeyExchangeECDHERSA, Bulk: BulkAESGCM, KeyLength: 32, FixedIVLength: 4, PRFHash: crypto.SHA384, MinVersion: record.VersionTLS12},
	{ID: TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256, Name: "TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256",
		Kx: KeyExchangeECDHERSA, Bulk: BulkChaCha20Poly1305, KeyLength: 32, FixedIVLength: 12, PRFHash: crypto.SHA256, MinVersion: record.VersionTLS12},
	{ID: TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA, Name: "TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA",
		Kx: KeyExchangeECDHEECDSA, Bulk: BulkAESCBC, KeyLength: 16, MACLength: 20, MACHash: crypto.SHA1, PRFHash: crypto.SHA256, MinVersion: record.VersionTLS10},
	{ID: TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA, Name: "TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA",
		Kx: KeyExchangeECDHEECDSA, Bulk: BulkAESCBC, KeyLength: 32, MACLength: 20, MACHash: crypto.SHA1, PRFHash: crypto.SHA256, MinVersion: record.VersionTLS10},
	{ID: TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA, Name: "TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA",
		Kx: KeyExchangeECDHERSA, Bulk: BulkAESCBC, KeyLength: 16, MACLength: 20, MACHash: crypto.SHA1, PRFHash: crypto.SHA256, MinVersion: record.VersionTLS10},
	{ID: TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA, Name: "TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA",
		Kx: KeyExchangeECDHERSA, Bulk: BulkAESCBC, KeyLength: 32, MACLength: 20, MACHash: crypto.SHA1, PRFHash: crypto.SHA256, MinVersion: record.VersionTLS10},
	{ID: TLS_RSA_WITH_AES_128_GCM_SHA256, Name: "TLS_RSA_WITH_AES_128_GCM_SHA256",
		Kx: KeyExchangeRSA, Bulk: BulkAESGCM, KeyLength: 16, FixedIVLength: 4, PRFHash: crypto.SHA256, MinVersion: record.VersionTLS12},
	{ID: TLS_RSA_WITH_AES_256_GCM_SHA384, Name: "TLS_RSA_WITH_AES_256_GCM_SHA384",
		Kx: KeyExchangeRSA, Bulk: BulkAESGCM, KeyLength: 32, FixedIVLength: 4, PRFHash: crypto.SHA384, MinVersion: record.VersionTLS12},
	{ID: TLS_RSA_WITH_AES_128_CBC_SHA256, Name: "TLS_RSA_WITH_AES_128_CBC_SHA256",
		Kx: KeyExchangeRSA, Bulk: BulkAESCBC, KeyLength: 16, MACLength: 32, MACHash: crypto.SHA256, PRFHash: crypto.SHA256, MinVersion: record.VersionTLS12},
	{ID: TLS_RSA_WITH_AES_128_CBC_SHA, Name: "TLS_RSA_WITH_AES_128_CBC_SHA",
		Kx: KeyExchangeRSA, Bulk: BulkAESCBC, KeyLength: 16, MACLength: 20, MACHash: crypto.SHA1, PRFHash: crypto.SHA256, MinVersion: record.VersionTLS10},
	{ID: TLS_RSA_WITH_AES_256_CBC_SHA, Name: "TLS_RSA_WITH_AES_256_CBC_SHA",
		Kx: KeyExchangeRSA, Bulk: BulkAESCBC, KeyLength: 32, MACLength: 20, MACHash: crypto.SHA1, PRFHash: crypto.SHA256, MinVersion: record.VersionTLS10},
}

var suitesByID = func() map[ID]*Suite {
	m := make(map[ID]*Suite, len(suites))
	for _, s := range suites {
		m[s.ID] = s
	}
	return m
}()

func Lookup(id ID) (*Suite, bool) {
	s, ok := suitesByID[id]
	return s, ok
}

// Suites returns the full table in preference order. Callers must not modify it.
func Suites() []*Suite { return suites }

func DefaultIDs() []ID {
	ids := make([]ID, 0, len(suites))
	for _, s := range suites {
		ids = append(ids, s.ID)
	}
	return ids
}
