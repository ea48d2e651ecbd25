// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package keys

import (
	"crypto"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"hash"

	"github.com/hrissan/tls/record"
)

// P_hash(secret, seed) = HMAC_hash(secret, A(1) + seed) + HMAC_hash(secret, A(2) + seed) + ...
// [rfc5246:5]
func pHash(newHash func() hash.Hash, result, secret []byte, seeds ...[]byte) {
	h := hmac.New(newHash, secret)
	for _, seed := range seeds {
		h.Write(seed)
	}
	a := h.Sum(nil)

	var digest []byte
	for offset := 0; offset < len(result); offset += len(digest) {
		h.Reset()
		h.Write(a)
		for _, seed := range seeds {
			h.Write(seed)
		}
		digest = h.Sum(nil)
		copy(result[offset:], digest)

		h.Reset()
		h.Write(a)
		a = h.Sum(nil)
	}
}

// PRF fills result with the TLS pseudo-random function output.
// TLS 1.0/1.1 split the secret between MD5 and SHA-1 and XOR the streams,
// TLS 1.2 uses the suite's PRF hash [rfc2246:5] [rfc5246:5].
func PRF(version record.ProtocolVersion, prfHash crypto.Hash, result, secret []byte, label string, seeds ...[]byte) {
	allSeeds := make([][]byte, 0, 1+len(seeds))
	allSeeds = append(allSeeds, []byte(label))
	allSeeds = append(allSeeds, seeds...)

	if version >= record.VersionTLS12 {
		pHash(prfHash.New, result, secret, allSeeds...)
		return
	}

	s1 := secret[0 : (len(secret)+1)/2]
	s2 := secret[len(secret)/2:]
	pHash(md5.New, result, s1, allSeeds...)
	second := make([]byte, len(result))
	pHash(sha1.New, second, s2, allSeeds...)
	for i, b := range second {
		result[i] ^= b
	}
}

const (
	LabelMasterSecret         = "master secret"
	LabelExtendedMasterSecret = "extended master secret"
	LabelKeyExpansion         = "key expansion"
	LabelClientFinished       = "client finished"
	LabelServerFinished       = "server finished"
)
