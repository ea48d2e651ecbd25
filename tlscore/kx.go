// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package tlscore

import (
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/rsa"

	"golang.org/x/crypto/curve25519"

	"github.com/hrissan/tls/ciphersuite"
	"github.com/hrissan/tls/constants"
	"github.com/hrissan/tls/handshake"
	"github.com/hrissan/tls/tlscrypto"
	"github.com/hrissan/tls/tlserrors"
	"github.com/hrissan/tls/tlsrand"
)

// keyAgreement produces and consumes the key exchange messages of one
// handshake. Instances are per-handshake, they carry ephemeral secrets.
type keyAgreement interface {
	// server side; returns nil message when the suite sends no ServerKeyExchange
	generateServerKeyExchange(conn *Connection, hctx *handshakeContext) (*handshake.MsgServerKeyExchange, error)
	processClientKeyExchange(conn *Connection, hctx *handshakeContext, msg *handshake.MsgClientKeyExchange) (preMaster []byte, err error)

	// client side
	processServerKeyExchange(conn *Connection, hctx *handshakeContext, msg *handshake.MsgServerKeyExchange) error
	generateClientKeyExchange(conn *Connection, hctx *handshakeContext) (preMaster []byte, msg *handshake.MsgClientKeyExchange, err error)
}

func newKeyAgreement(suite *ciphersuite.Suite) keyAgreement {
	if suite.Kx.Ephemeral() {
		return &ecdheKeyAgreement{}
	}
	return &rsaKeyAgreement{}
}

// randReader adapts tlsrand.Rand to io.Reader for stdlib key generation.
type randReader struct{ rnd tlsrand.Rand }

func (r randReader) Read(p []byte) (int, error) {
	r.rnd.Read(p)
	return len(p), nil
}

// rsaKeyAgreement is the static RSA key exchange: the client encrypts the
// premaster to the server certificate [rfc5246:7.4.7.1].
type rsaKeyAgreement struct{}

func (ka *rsaKeyAgreement) generateServerKeyExchange(conn *Connection, hctx *handshakeContext) (*handshake.MsgServerKeyExchange, error) {
	return nil, nil
}

func (ka *rsaKeyAgreement) processClientKeyExchange(conn *Connection, hctx *handshakeContext, msg *handshake.MsgClientKeyExchange) ([]byte, error) {
	decrypter, ok := hctx.localSigner.(crypto.Decrypter)
	if !ok {
		return nil, tlserrors.ErrNoServerCertificate
	}
	// Bleichenbacher defense: on any decryption or version check failure,
	// continue with a random premaster so the alert timing does not leak
	// which branch was taken [rfc5246:7.4.7.1].
	random := make([]byte, constants.PreMasterSecretLength)
	conn.opts.Rnd.Read(random)
	random[0] = byte(hctx.clientVersion >> 8)
	random[1] = byte(hctx.clientVersion)

	preMaster, err := decrypter.Decrypt(randReader{conn.opts.Rnd}, msg.Exchange,
		&rsa.PKCS1v15DecryptOptions{SessionKeyLen: constants.PreMasterSecretLength})
	if err != nil || len(preMaster) != constants.PreMasterSecretLength {
		return random, nil
	}
	if preMaster[0] != byte(hctx.clientVersion>>8) || preMaster[1] != byte(hctx.clientVersion) {
		return random, nil
	}
	return preMaster, nil
}

func (ka *rsaKeyAgreement) processServerKeyExchange(conn *Connection, hctx *handshakeContext, msg *handshake.MsgServerKeyExchange) error {
	return tlserrors.ErrUnexpectedMessage
}

func (ka *rsaKeyAgreement) generateClientKeyExchange(conn *Connection, hctx *handshakeContext) ([]byte, *handshake.MsgClientKeyExchange, error) {
	if len(hctx.peerCertificates) == 0 {
		return nil, nil, tlserrors.ErrCertificateChainEmpty
	}
	pub, ok := hctx.peerCertificates[0].PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, nil, tlserrors.ErrCertificateUnsupported
	}
	preMaster := make([]byte, constants.PreMasterSecretLength)
	conn.opts.Rnd.Read(preMaster[2:])
	preMaster[0] = byte(hctx.clientVersion >> 8)
	preMaster[1] = byte(hctx.clientVersion)

	encrypted, err := rsa.EncryptPKCS1v15(randReader{conn.opts.Rnd}, pub, preMaster)
	if err != nil {
		return nil, nil, tlserrors.ErrKeyExchangeParsing
	}
	return preMaster, &handshake.MsgClientKeyExchange{Exchange: encrypted}, nil
}

// ecdheKeyAgreement is ephemeral ECDH over a named group, signed by the
// server certificate [rfc8422:2].
type ecdheKeyAgreement struct {
	curveID uint16

	// exactly one of these holds our ephemeral secret
	x25519Secret [32]byte
	nistKey      *ecdh.PrivateKey

	peerPublic []byte
}

func curveForGroup(group uint16) (ecdh.Curve, bool) {
	switch group {
	case handshake.GroupSecp256r1:
		return ecdh.P256(), true
	case handshake.GroupSecp384r1:
		return ecdh.P384(), true
	}
	return nil, false
}

func supportedGroup(group uint16) bool {
	if group == handshake.GroupX25519 {
		return true
	}
	_, ok := curveForGroup(group)
	return ok
}

// localGroups in our preference order.
var localGroups = []uint16{handshake.GroupX25519, handshake.GroupSecp256r1, handshake.GroupSecp384r1}

func selectGroup(peerGroups []uint16, peerSent bool) (uint16, error) {
	if !peerSent {
		// absent extension means any curve we like [rfc8422:5.1.1]
		return handshake.GroupX25519, nil
	}
	for _, ours := range localGroups {
		for _, theirs := range peerGroups {
			if ours == theirs {
				return ours, nil
			}
		}
	}
	return 0, tlserrors.ErrCurveUnsupported
}

func (ka *ecdheKeyAgreement) generateKeyShare(conn *Connection) (public []byte, err error) {
	if ka.curveID == handshake.GroupX25519 {
		conn.opts.Rnd.Read(ka.x25519Secret[:])
		public, err = curve25519.X25519(ka.x25519Secret[:], curve25519.Basepoint)
		if err != nil {
			return nil, tlserrors.ErrKeyExchangeParsing
		}
		return public, nil
	}
	curve, ok := curveForGroup(ka.curveID)
	if !ok {
		return nil, tlserrors.ErrCurveUnsupported
	}
	ka.nistKey, err = curve.GenerateKey(randReader{conn.opts.Rnd})
	if err != nil {
		return nil, tlserrors.ErrKeyExchangeParsing
	}
	return ka.nistKey.PublicKey().Bytes(), nil
}

func (ka *ecdheKeyAgreement) sharedSecret(peerPublic []byte) ([]byte, error) {
	if ka.curveID == handshake.GroupX25519 {
		shared, err := curve25519.X25519(ka.x25519Secret[:], peerPublic)
		if err != nil {
			return nil, tlserrors.ErrKeyExchangeParsing
		}
		return shared, nil
	}
	curve, _ := curveForGroup(ka.curveID)
	peerKey, err := curve.NewPublicKey(peerPublic)
	if err != nil {
		return nil, tlserrors.ErrKeyExchangeParsing
	}
	shared, err := ka.nistKey.ECDH(peerKey)
	if err != nil {
		return nil, tlserrors.ErrKeyExchangeParsing
	}
	return shared, nil
}

func (ka *ecdheKeyAgreement) generateServerKeyExchange(conn *Connection, hctx *handshakeContext) (*handshake.MsgServerKeyExchange, error) {
	msg := &handshake.MsgServerKeyExchange{CurveID: ka.curveID}
	public, err := ka.generateKeyShare(conn)
	if err != nil {
		return nil, err
	}
	msg.PublicKey = public

	sah, err := conn.bridgeChooseSignatureAndHash(hctx, suiteSignatureAlgorithm(hctx.suite))
	if err != nil {
		return nil, err
	}
	msg.SignatureAndHashCode = sah.Code()

	signed := make([]byte, 0, 2*constants.RandomLength+len(msg.PublicKey)+8)
	signed = append(signed, hctx.clientRandom[:]...)
	signed = append(signed, hctx.serverRandom[:]...)
	signed = msg.WriteParams(signed)
	msg.Signature, err = conn.opts.Crypto.Sign(hctx.version, hctx.localSigner, sah, signed)
	if err != nil {
		return nil, tlserrors.ErrSignatureInvalid
	}
	return msg, nil
}

func (ka *ecdheKeyAgreement) processServerKeyExchange(conn *Connection, hctx *handshakeContext, msg *handshake.MsgServerKeyExchange) error {
	if !supportedGroup(msg.CurveID) {
		return tlserrors.ErrCurveUnsupported
	}
	ka.curveID = msg.CurveID
	ka.peerPublic = append([]byte(nil), msg.PublicKey...)

	if len(hctx.peerCertificates) == 0 {
		return tlserrors.ErrCertificateChainEmpty
	}
	sah := tlscrypto.SignatureAndHash{Signature: suiteSignatureAlgorithm(hctx.suite)}
	if hctx.tls12() {
		sah = tlscrypto.SignatureAndHashFromCode(msg.SignatureAndHashCode)
		if sah.Signature != suiteSignatureAlgorithm(hctx.suite) {
			return tlserrors.ErrSignatureAlgorithmUnsupported
		}
	}
	signed := make([]byte, 0, 2*constants.RandomLength+len(msg.Params))
	signed = append(signed, hctx.clientRandom[:]...)
	signed = append(signed, hctx.serverRandom[:]...)
	signed = append(signed, msg.Params...)
	return conn.opts.Crypto.VerifySignature(hctx.version, hctx.peerCertificates[0].PublicKey, sah, signed, msg.Signature)
}

func (ka *ecdheKeyAgreement) generateClientKeyExchange(conn *Connection, hctx *handshakeContext) ([]byte, *handshake.MsgClientKeyExchange, error) {
	if ka.peerPublic == nil {
		return nil, nil, tlserrors.ErrUnexpectedMessage // no ServerKeyExchange seen
	}
	public, err := ka.generateKeyShare(conn)
	if err != nil {
		return nil, nil, err
	}
	preMaster, err := ka.sharedSecret(ka.peerPublic)
	if err != nil {
		return nil, nil, err
	}
	return preMaster, &handshake.MsgClientKeyExchange{Exchange: public}, nil
}

func (ka *ecdheKeyAgreement) processClientKeyExchange(conn *Connection, hctx *handshakeContext, msg *handshake.MsgClientKeyExchange) ([]byte, error) {
	preMaster, err := ka.sharedSecret(msg.Exchange)
	if err != nil {
		return nil, err
	}
	return preMaster, nil
}

func suiteSignatureAlgorithm(suite *ciphersuite.Suite) tlscrypto.SignatureAlgorithm {
	if suite.Kx == ciphersuite.KeyExchangeECDHEECDSA {
		return tlscrypto.SignatureECDSA
	}
	return tlscrypto.SignatureRSA
}

func signerSignatureAlgorithm(signer crypto.Signer) tlscrypto.SignatureAlgorithm {
	if _, ok := signer.Public().(*ecdsa.PublicKey); ok {
		return tlscrypto.SignatureECDSA
	}
	return tlscrypto.SignatureRSA
}
