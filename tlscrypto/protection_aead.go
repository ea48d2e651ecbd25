// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package tlscrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/hrissan/tls/ciphersuite"
	"github.com/hrissan/tls/safecast"
	"github.com/hrissan/tls/keys"
	"github.com/hrissan/tls/record"
	"github.com/hrissan/tls/tlserrors"
)

const explicitNonceLength = 8
const aeadTagLength = 16

// additional_data = seq_num + type + version + length(plaintext) [rfc5246:6.2.3.3]
func aeadAdditionalData(ad *[13]byte, seq uint64, typ record.ContentType, version record.ProtocolVersion, plaintextLen int) []byte {
	binary.BigEndian.PutUint64(ad[:8], seq)
	ad[8] = byte(typ)
	ad[9] = byte(version >> 8)
	ad[10] = byte(version)
	binary.BigEndian.PutUint16(ad[11:], safecast.Cast[uint16](plaintextLen))
	return ad[:]
}

// gcmProtection carries the explicit nonce on the wire [rfc5288:3]
type gcmProtection struct {
	aead    cipher.AEAD
	fixedIV [4]byte
	nonces  NonceGenerator // nil on the open side
}

func newGCMProtection(dk keys.DirectionKeys, nonces NonceGenerator) (record.Protection, error) {
	block, err := aes.NewCipher(dk.Key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	p := &gcmProtection{aead: aead, nonces: nonces}
	copy(p.fixedIV[:], dk.IV)
	return p, nil
}

func (p *gcmProtection) Seal(out []byte, seq uint64, typ record.ContentType, version record.ProtocolVersion, plaintext []byte) ([]byte, error) {
	var nonce [12]byte
	copy(nonce[:4], p.fixedIV[:])
	p.nonces.Next(nonce[4:])

	out = append(out, nonce[4:]...)
	var ad [13]byte
	return p.aead.Seal(out, nonce[:], plaintext, aeadAdditionalData(&ad, seq, typ, version, len(plaintext))), nil
}

func (p *gcmProtection) Open(seq uint64, typ record.ContentType, version record.ProtocolVersion, fragment []byte) ([]byte, error) {
	if len(fragment) < explicitNonceLength+aeadTagLength {
		return nil, tlserrors.ErrRecordBadMAC
	}
	var nonce [12]byte
	copy(nonce[:4], p.fixedIV[:])
	copy(nonce[4:], fragment[:explicitNonceLength])

	ciphertext := fragment[explicitNonceLength:]
	var ad [13]byte
	plaintext, err := p.aead.Open(ciphertext[:0], nonce[:], ciphertext,
		aeadAdditionalData(&ad, seq, typ, version, len(ciphertext)-aeadTagLength))
	if err != nil {
		return nil, tlserrors.ErrRecordBadMAC
	}
	return plaintext, nil
}

func (p *gcmProtection) Overhead() int        { return explicitNonceLength + aeadTagLength }
func (p *gcmProtection) NeedsSplitting() bool { return false }

// chachaProtection derives the nonce from the sequence number, nothing is
// carried on the wire [rfc7905:2]
type chachaProtection struct {
	aead    cipher.AEAD
	fixedIV [12]byte
}

func newChaChaProtection(dk keys.DirectionKeys) (record.Protection, error) {
	aead, err := chacha20poly1305.New(dk.Key)
	if err != nil {
		return nil, err
	}
	p := &chachaProtection{aead: aead}
	copy(p.fixedIV[:], dk.IV)
	return p, nil
}

func (p *chachaProtection) nonce(seq uint64) [12]byte {
	nonce := p.fixedIV
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	for i, b := range seqBytes {
		nonce[4+i] ^= b
	}
	return nonce
}

func (p *chachaProtection) Seal(out []byte, seq uint64, typ record.ContentType, version record.ProtocolVersion, plaintext []byte) ([]byte, error) {
	nonce := p.nonce(seq)
	var ad [13]byte
	return p.aead.Seal(out, nonce[:], plaintext, aeadAdditionalData(&ad, seq, typ, version, len(plaintext))), nil
}

func (p *chachaProtection) Open(seq uint64, typ record.ContentType, version record.ProtocolVersion, fragment []byte) ([]byte, error) {
	if len(fragment) < aeadTagLength {
		return nil, tlserrors.ErrRecordBadMAC
	}
	nonce := p.nonce(seq)
	var ad [13]byte
	plaintext, err := p.aead.Open(fragment[:0], nonce[:], fragment,
		aeadAdditionalData(&ad, seq, typ, version, len(fragment)-aeadTagLength))
	if err != nil {
		return nil, tlserrors.ErrRecordBadMAC
	}
	return plaintext, nil
}

func (p *chachaProtection) Overhead() int        { return aeadTagLength }
func (p *chachaProtection) NeedsSplitting() bool { return false }

func (p *stdProvider) NewProtection(suite *ciphersuite.Suite, version record.ProtocolVersion, dk keys.DirectionKeys, encrypt bool) (record.Protection, error) {
	switch suite.Bulk {
	case ciphersuite.BulkAESGCM:
		var nonces NonceGenerator
		if encrypt {
			nonces = p.NewNonceGenerator()
		}
		return newGCMProtection(dk, nonces)
	case ciphersuite.BulkChaCha20Poly1305:
		return newChaChaProtection(dk)
	case ciphersuite.BulkAESCBC:
		return newCBCProtection(suite, version, dk, encrypt, p.rnd)
	}
	return nil, tlserrors.ErrNoCommonCipherSuite
}
