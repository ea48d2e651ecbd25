// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package tlscrypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"

	"github.com/hrissan/tls/record"
	"github.com/hrissan/tls/tlserrors"
)

// signature_algorithms codes [rfc5246:7.4.1.4.1]

type HashAlgorithm byte

const (
	HashMD5    HashAlgorithm = 1
	HashSHA1   HashAlgorithm = 2
	HashSHA224 HashAlgorithm = 3
	HashSHA256 HashAlgorithm = 4
	HashSHA384 HashAlgorithm = 5
	HashSHA512 HashAlgorithm = 6
)

type SignatureAlgorithm byte

const (
	SignatureRSA   SignatureAlgorithm = 1
	SignatureECDSA SignatureAlgorithm = 3
)

type SignatureAndHash struct {
	Hash      HashAlgorithm
	Signature SignatureAlgorithm
}

func (sah SignatureAndHash) Code() uint16 {
	return uint16(sah.Hash)<<8 | uint16(sah.Signature)
}

func SignatureAndHashFromCode(code uint16) SignatureAndHash {
	return SignatureAndHash{Hash: HashAlgorithm(code >> 8), Signature: SignatureAlgorithm(code & 0xFF)}
}

// Supported pairs, offered and accepted in this order.
var SupportedSignatureAlgorithms = []SignatureAndHash{
	{HashSHA256, SignatureECDSA},
	{HashSHA384, SignatureECDSA},
	{HashSHA256, SignatureRSA},
	{HashSHA384, SignatureRSA},
	{HashSHA512, SignatureRSA},
	{HashSHA1, SignatureECDSA},
	{HashSHA1, SignatureRSA},
}

func (h HashAlgorithm) CryptoHash() (crypto.Hash, bool) {
	switch h {
	case HashSHA1:
		return crypto.SHA1, true
	case HashSHA256:
		return crypto.SHA256, true
	case HashSHA384:
		return crypto.SHA384, true
	case HashSHA512:
		return crypto.SHA512, true
	}
	return 0, false
}

// digest the signature covers. Below TLS 1.2 there are no negotiated
// algorithms: RSA signs the raw MD5||SHA1 concatenation, ECDSA signs SHA-1
// [rfc4346:7.4.3].
func handshakeDigest(version record.ProtocolVersion, sah SignatureAndHash, message []byte) ([]byte, crypto.Hash, error) {
	if version >= record.VersionTLS12 {
		h, ok := sah.Hash.CryptoHash()
		if !ok {
			return nil, 0, tlserrors.ErrSignatureAlgorithmUnsupported
		}
		hasher := h.New()
		hasher.Write(message)
		return hasher.Sum(nil), h, nil
	}
	if sah.Signature == SignatureECDSA {
		digest := sha1.Sum(message)
		return digest[:], crypto.SHA1, nil
	}
	m := md5.Sum(message)
	s := sha1.Sum(message)
	return append(m[:], s[:]...), crypto.MD5SHA1, nil
}

func (p *stdProvider) VerifySignature(version record.ProtocolVersion, pub crypto.PublicKey, sah SignatureAndHash, message, sig []byte) error {
	digest, h, err := handshakeDigest(version, sah, message)
	if err != nil {
		return err
	}
	switch key := pub.(type) {
	case *rsa.PublicKey:
		if sah.Signature != SignatureRSA {
			return tlserrors.ErrSignatureAlgorithmUnsupported
		}
		if err := rsa.VerifyPKCS1v15(key, h, digest, sig); err != nil {
			return tlserrors.ErrSignatureInvalid
		}
		return nil
	case *ecdsa.PublicKey:
		if sah.Signature != SignatureECDSA {
			return tlserrors.ErrSignatureAlgorithmUnsupported
		}
		if !ecdsa.VerifyASN1(key, digest, sig) {
			return tlserrors.ErrSignatureInvalid
		}
		return nil
	}
	return tlserrors.ErrCertificateUnsupported
}

func (p *stdProvider) Sign(version record.ProtocolVersion, signer crypto.Signer, sah SignatureAndHash, message []byte) ([]byte, error) {
	digest, h, err := handshakeDigest(version, sah, message)
	if err != nil {
		return nil, err
	}
	// crypto.Signer wants the hash function as SignerOpts; MD5SHA1 makes
	// rsa.SignPKCS1v15 skip the DigestInfo prefix, exactly what TLS < 1.2 needs
	return signer.Sign(rand.Reader, digest, h)
}
