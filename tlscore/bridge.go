// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package tlscore

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"

	"github.com/hrissan/tls/ciphersuite"
	"github.com/hrissan/tls/handshake"
	"github.com/hrissan/tls/session"
	"github.com/hrissan/tls/tlscrypto"
	"github.com/hrissan/tls/tlserrors"
)

// The callback bridge routes role-specific decisions into the trust and key
// capabilities and translates their failures into protocol alerts.
// Capability errors are never swallowed: the mapped alert carries the
// connection down and the original error reaches the stats sink.

func translateTrustError(err error) error {
	var invalid x509.CertificateInvalidError
	if errors.As(err, &invalid) && invalid.Reason == x509.Expired {
		return tlserrors.ErrCertificateExpired
	}
	var unsupported x509.InsecureAlgorithmError
	if errors.As(err, &unsupported) {
		return tlserrors.ErrCertificateUnsupported
	}
	return tlserrors.ErrCertificateUntrusted
}

func (conn *Connection) bridgeCheckServerTrusted(chain []*x509.Certificate, authType string) error {
	if err := conn.opts.Trust.CheckServerTrusted(chain, authType); err != nil {
		conn.opts.Stats.HandshakeFailed(err)
		return translateTrustError(err)
	}
	return nil
}

func (conn *Connection) bridgeCheckClientTrusted(chain []*x509.Certificate, authType string) error {
	if err := conn.opts.Trust.CheckClientTrusted(chain, authType); err != nil {
		conn.opts.Stats.HandshakeFailed(err)
		return translateTrustError(err)
	}
	return nil
}

func parseAuthorities(raw [][]byte) []pkix.Name {
	var issuers []pkix.Name
	for _, der := range raw {
		var rdns pkix.RDNSequence
		if _, err := asn1.Unmarshal(der, &rdns); err != nil {
			continue // skip undecodable names, selection just gets less precise
		}
		var name pkix.Name
		name.FillFromRDNSequence(&rdns)
		issuers = append(issuers, name)
	}
	return issuers
}

// bridgeChooseServerIdentity picks the server alias for a candidate key
// exchange and loads its key material into the handshake context.
func (conn *Connection) bridgeChooseServerIdentity(hctx *handshakeContext, kx ciphersuite.KeyExchange) bool {
	if conn.opts.Keys == nil {
		return false
	}
	alias := conn.opts.Keys.ChooseServerAlias(kx.KeyType(), nil)
	if alias == "" {
		return false
	}
	signer := conn.opts.Keys.PrivateKey(alias)
	chain := conn.opts.Keys.CertificateChain(alias)
	if signer == nil || len(chain) == 0 {
		return false
	}
	hctx.localSigner = signer
	hctx.localCertificates = chain
	return true
}

// bridgeChooseClientIdentity answers a CertificateRequest. An empty result
// means the client declines; the server decides whether that is fatal.
func (conn *Connection) bridgeChooseClientIdentity(hctx *handshakeContext, req *handshake.MsgCertificateRequest) bool {
	if conn.opts.Keys == nil {
		return false
	}
	var keyTypes []string
	for _, t := range req.CertificateTypes {
		switch t {
		case handshake.ClientCertTypeRSASign:
			keyTypes = append(keyTypes, "RSA")
		case handshake.ClientCertTypeECDSASign:
			keyTypes = append(keyTypes, "EC")
		}
	}
	alias := conn.opts.Keys.ChooseClientAlias(keyTypes, parseAuthorities(req.Authorities))
	if alias == "" {
		return false
	}
	signer := conn.opts.Keys.PrivateKey(alias)
	chain := conn.opts.Keys.CertificateChain(alias)
	if signer == nil || len(chain) == 0 {
		return false
	}
	hctx.localSigner = signer
	hctx.localCertificates = chain
	return true
}

// bridgeChooseSignatureAndHash picks the algorithm for our handshake
// signatures honoring the peer's signature_algorithms extension. sigType
// follows the signing key: the suite's key exchange for ServerKeyExchange,
// the client identity for CertificateVerify. Below TLS 1.2 the algorithm is
// implied by the key type; absent extension defaults to SHA-1
// [rfc5246:7.4.1.4.1].
func (conn *Connection) bridgeChooseSignatureAndHash(hctx *handshakeContext, sigType tlscrypto.SignatureAlgorithm) (tlscrypto.SignatureAndHash, error) {
	if !hctx.tls12() {
		return tlscrypto.SignatureAndHash{Signature: sigType}, nil
	}
	if len(hctx.peerSignatureAlgorithms) == 0 {
		return tlscrypto.SignatureAndHash{Hash: tlscrypto.HashSHA1, Signature: sigType}, nil
	}
	for _, supported := range tlscrypto.SupportedSignatureAlgorithms {
		if supported.Signature != sigType {
			continue
		}
		for _, code := range hctx.peerSignatureAlgorithms {
			if code == supported.Code() {
				return supported, nil
			}
		}
	}
	return tlscrypto.SignatureAndHash{}, tlserrors.ErrSignatureAlgorithmUnsupported
}

// peerOffersSignature reports whether the peer can verify signatures by the
// given algorithm, used when filtering candidate suites (TLS 1.2).
func peerOffersSignature(peerSigAlgs []uint16, sigType tlscrypto.SignatureAlgorithm) bool {
	if len(peerSigAlgs) == 0 {
		return true // defaults apply
	}
	for _, code := range peerSigAlgs {
		if tlscrypto.SignatureAndHashFromCode(code).Signature == sigType {
			return true
		}
	}
	return false
}

func (conn *Connection) notifyHandshakeSession(sess *session.Session) {
	conn.handshakeSession = sess
	if conn.opts.Listener != nil {
		conn.opts.Listener.NotifyHandshakeSession(sess)
	}
}

func (conn *Connection) notifyHandshakeComplete() {
	if conn.opts.Listener != nil {
		conn.opts.Listener.NotifyHandshakeComplete(conn)
	}
}
