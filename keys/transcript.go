// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package keys

import (
	"crypto"
	"crypto/md5"
	"crypto/sha1"

	"github.com/hrissan/tls/record"
)

// Transcript is the running handshake hash. The negotiated version is not
// known when the first bytes arrive (ClientHello precedes negotiation), and
// CertificateVerify may need the transcript under a different hash than the
// PRF, so we retain the raw message bytes and digest on demand. Handshake
// transcripts are a few KB, the simplicity is worth the copy.
type Transcript struct {
	version record.ProtocolVersion
	prfHash crypto.Hash
	raw     []byte
}

func (t *Transcript) SetVersion(version record.ProtocolVersion, prfHash crypto.Hash) {
	t.version = version
	t.prfHash = prfHash
}

// Write appends one whole handshake message, header included. HelloRequest
// is never part of the transcript [rfc5246:7.4.1.1], callers skip it.
func (t *Transcript) Write(msg []byte) {
	t.raw = append(t.raw, msg...)
}

// Sum is the digest the PRF consumes: MD5 || SHA1 below TLS 1.2,
// the suite's PRF hash from TLS 1.2 on.
func (t *Transcript) Sum() []byte {
	if t.version >= record.VersionTLS12 {
		return t.SumHash(t.prfHash)
	}
	m := md5.Sum(t.raw)
	s := sha1.Sum(t.raw)
	return append(m[:], s[:]...)
}

// SumHash digests the transcript with an explicitly chosen hash,
// for CertificateVerify under a negotiated signature algorithm.
func (t *Transcript) SumHash(h crypto.Hash) []byte {
	hasher := h.New()
	hasher.Write(t.raw)
	return hasher.Sum(nil)
}

// Bytes of the raw transcript, for signatures taken over the message
// stream itself rather than a digest.
func (t *Transcript) Bytes() []byte { return t.raw }

func (t *Transcript) Reset() { t.raw = nil }
