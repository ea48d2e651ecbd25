// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package tlscrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/subtle"
	"encoding/binary"
	"hash"

	"github.com/hrissan/tls/ciphersuite"
	"github.com/hrissan/tls/keys"
	"github.com/hrissan/tls/record"
	"github.com/hrissan/tls/safecast"
	"github.com/hrissan/tls/tlserrors"
	"github.com/hrissan/tls/tlsrand"
)

// cbcProtection is MAC-then-encrypt CBC [rfc5246:6.2.3.2].
// TLS 1.1+ sends an explicit per-record IV; TLS 1.0 chains the IV from the
// previous record, which is why the block mode state persists across calls
// and why the record layer must 1/n-1 split application data there.
type cbcProtection struct {
	block      cipher.Block
	mode       cipher.BlockMode // TLS 1.0 only, carries chaining state
	mac        hash.Hash
	version    record.ProtocolVersion
	encrypt    bool
	rnd        tlsrand.Rand
	macLen     int
}

func newCBCProtection(suite *ciphersuite.Suite, version record.ProtocolVersion, dk keys.DirectionKeys, encrypt bool, rnd tlsrand.Rand) (record.Protection, error) {
	block, err := aes.NewCipher(dk.Key)
	if err != nil {
		return nil, err
	}
	p := &cbcProtection{
		block:   block,
		mac:     hmac.New(suite.MACHash.New, dk.MACKey),
		version: version,
		encrypt: encrypt,
		rnd:     rnd,
		macLen:  suite.MACLength,
	}
	if version == record.VersionTLS10 {
		if encrypt {
			p.mode = cipher.NewCBCEncrypter(block, dk.IV)
		} else {
			p.mode = cipher.NewCBCDecrypter(block, dk.IV)
		}
	}
	return p, nil
}

func (p *cbcProtection) explicitIV() bool { return p.version >= record.VersionTLS11 }

func (p *cbcProtection) computeMAC(dst []byte, seq uint64, typ record.ContentType, version record.ProtocolVersion, plaintext []byte) []byte {
	var hdr [13]byte
	binary.BigEndian.PutUint64(hdr[:8], seq)
	hdr[8] = byte(typ)
	hdr[9] = byte(version >> 8)
	hdr[10] = byte(version)
	binary.BigEndian.PutUint16(hdr[11:], safecast.Cast[uint16](len(plaintext)))
	p.mac.Reset()
	p.mac.Write(hdr[:])
	p.mac.Write(plaintext)
	return p.mac.Sum(dst)
}

func (p *cbcProtection) Seal(out []byte, seq uint64, typ record.ContentType, version record.ProtocolVersion, plaintext []byte) ([]byte, error) {
	blockSize := p.block.BlockSize()
	start := len(out)
	if p.explicitIV() {
		out = append(out, make([]byte, blockSize)...)
		p.rnd.Read(out[start:])
	}

	contentStart := len(out)
	out = append(out, plaintext...)
	out = p.computeMAC(out, seq, typ, version, plaintext)

	// padding: N+1 bytes each holding value N [rfc5246:6.2.3.2]
	padLen := blockSize - (len(out)-contentStart)%blockSize
	for i := 0; i < padLen; i++ {
		out = append(out, byte(padLen-1))
	}

	mode := p.mode
	if p.explicitIV() {
		mode = cipher.NewCBCEncrypter(p.block, out[start:contentStart])
	}
	mode.CryptBlocks(out[contentStart:], out[contentStart:])
	return out, nil
}

func (p *cbcProtection) Open(seq uint64, typ record.ContentType, version record.ProtocolVersion, fragment []byte) ([]byte, error) {
	blockSize := p.block.BlockSize()
	content := fragment
	var mode cipher.BlockMode
	if p.explicitIV() {
		if len(content) < blockSize {
			return nil, tlserrors.ErrRecordBadMAC
		}
		mode = cipher.NewCBCDecrypter(p.block, content[:blockSize])
		content = content[blockSize:]
	} else {
		mode = p.mode
	}
	if len(content) == 0 || len(content)%blockSize != 0 || len(content) < blockSize {
		return nil, tlserrors.ErrRecordBadMAC
	}
	mode.CryptBlocks(content, content)

	// padding check; not constant time across lengths, the Lucky-13 class of
	// timing channels is out of scope for this engine's CBC suites
	padLen := int(content[len(content)-1]) + 1
	if padLen > len(content) {
		return nil, tlserrors.ErrRecordBadMAC
	}
	for _, b := range content[len(content)-padLen:] {
		if int(b) != padLen-1 {
			return nil, tlserrors.ErrRecordBadMAC
		}
	}
	content = content[:len(content)-padLen]

	if len(content) < p.macLen {
		return nil, tlserrors.ErrRecordBadMAC
	}
	plaintext := content[:len(content)-p.macLen]
	expect := p.computeMAC(nil, seq, typ, version, plaintext)
	if subtle.ConstantTimeCompare(expect, content[len(plaintext):]) != 1 {
		return nil, tlserrors.ErrRecordBadMAC
	}
	return plaintext, nil
}

func (p *cbcProtection) Overhead() int {
	blockSize := p.block.BlockSize()
	overhead := p.macLen + blockSize // MAC plus maximum padding
	if p.explicitIV() {
		overhead += blockSize
	}
	return overhead
}

func (p *cbcProtection) NeedsSplitting() bool {
	return p.encrypt && !p.explicitIV()
}
