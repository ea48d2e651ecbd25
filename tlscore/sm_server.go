// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package tlscore

import (
	"crypto/ecdsa"
	"crypto/x509"

	"github.com/hrissan/tls/ciphersuite"
	"github.com/hrissan/tls/constants"
	"github.com/hrissan/tls/handshake"
	"github.com/hrissan/tls/options"
	"github.com/hrissan/tls/tlscrypto"
	"github.com/hrissan/tls/tlserrors"
)

type smServerExpectClientHello struct {
	smHandshake
}

func (*smServerExpectClientHello) OnClientHello(conn *Connection, msg *handshake.MsgClientHello) error {
	hctx := conn.hctx

	if !msg.NullCompression {
		return tlserrors.ErrCompressionRequired
	}
	hctx.clientVersion = msg.ClientVersion
	version := msg.ClientVersion
	if version > conn.opts.MaxVersion {
		version = conn.opts.MaxVersion
	}
	if version < conn.opts.MinVersion {
		return tlserrors.ErrProtocolVersionMismatch
	}
	hctx.version = version
	conn.negotiatedVersion = version
	hctx.clientRandom = msg.Random
	conn.opts.Rnd.Read(hctx.serverRandom[:])

	// [rfc5746:3.6] either the SCSV or an empty renegotiation_info signals
	// secure renegotiation support
	for _, id := range msg.CipherSuites {
		if ciphersuite.ID(id) == ciphersuite.TLS_EMPTY_RENEGOTIATION_INFO_SCSV {
			hctx.secureRenegotiation = true
		}
	}
	if msg.Extensions.RenegotiationInfoSet {
		if len(msg.Extensions.RenegotiationInfo) != 0 {
			return tlserrors.ErrRenegotiationInfoMismatch
		}
		hctx.secureRenegotiation = true
	}
	hctx.peerSignatureAlgorithms = msg.Extensions.SignatureAlgorithms
	hctx.alpnProtocols = msg.Extensions.ALPNProtocols

	if resumed, err := conn.tryResume(msg); err != nil || resumed {
		return err
	}
	return conn.sendServerFirstFlight(msg)
}

// tryResume takes the abbreviated path when the offered session ID is
// cached, still resumable and its parameters are still acceptable.
func (conn *Connection) tryResume(msg *handshake.MsgClientHello) (bool, error) {
	hctx := conn.hctx
	if conn.opts.Sessions == nil || len(msg.SessionID) == 0 {
		return false, nil
	}
	sess := conn.opts.Sessions.Get(msg.SessionID)
	if sess == nil || sess.Version() != hctx.version {
		return false, nil
	}
	if !conn.opts.SuiteEnabled(sess.CipherSuite()) || !clientOffered(msg.CipherSuites, sess.CipherSuite()) {
		return false, nil
	}
	// [rfc7627:5.3] never resume across an extended-master-secret mismatch
	if sess.ExtendedMasterSecret() != (msg.Extensions.ExtendedMasterSecret && conn.opts.ExtendedMasterSecret) {
		return false, nil
	}
	suite, ok := ciphersuite.Lookup(sess.CipherSuite())
	if !ok {
		return false, nil
	}

	hctx.suite = suite
	hctx.transcript.SetVersion(hctx.version, suite.PRFHash)
	hctx.sessionID = sess.ID()
	hctx.offeredSession = sess
	hctx.resumeMaster(sess)

	if err := conn.selectALPN(); err != nil {
		return true, err
	}
	if err := conn.sendServerHello(msg); err != nil {
		return true, err
	}
	conn.notifyHandshakeSession(sess)
	if err := conn.installPendingProtections(); err != nil {
		return true, err
	}
	// on resumption the server speaks first
	if err := conn.queueChangeCipherSpec(); err != nil {
		return true, err
	}
	if err := conn.sendFinished(); err != nil {
		return true, err
	}
	conn.smID = smIDServerExpectChangeCipherSpec
	return true, nil
}

func clientOffered(offered []uint16, id ciphersuite.ID) bool {
	for _, v := range offered {
		if ciphersuite.ID(v) == id {
			return true
		}
	}
	return false
}

// selectSuite walks our preference order and returns the first suite the
// client offered that we can actually serve: identity available for its key
// exchange, signature algorithm acceptable to the peer, curve available.
func (conn *Connection) selectSuite(msg *handshake.MsgClientHello) (*ciphersuite.Suite, error) {
	hctx := conn.hctx
	for _, id := range conn.opts.CipherSuites {
		suite, ok := ciphersuite.Lookup(id)
		if !ok || !clientOffered(msg.CipherSuites, id) || !suite.UsableWith(hctx.version) {
			continue
		}
		if suite.Kx.Ephemeral() {
			if hctx.tls12() && !peerOffersSignature(hctx.peerSignatureAlgorithms, suiteSignatureAlgorithm(suite)) {
				continue
			}
			if _, err := selectGroup(msg.Extensions.SupportedGroups, msg.Extensions.SupportedGroupsSet); err != nil {
				continue
			}
		}
		if !conn.bridgeChooseServerIdentity(hctx, suite.Kx) {
			continue
		}
		return suite, nil
	}
	return nil, tlserrors.ErrNoCommonCipherSuite
}

func (conn *Connection) selectALPN() error {
	hctx := conn.hctx
	if len(hctx.alpnProtocols) == 0 {
		return nil // client did not use ALPN
	}
	for _, ours := range conn.opts.ALPNProtocols {
		if containsString(hctx.alpnProtocols, ours) {
			hctx.selectedProtocol = ours
			return nil
		}
	}
	if len(conn.opts.ALPNProtocols) == 0 {
		return nil // we do not speak ALPN, ignore the offer
	}
	return tlserrors.ErrALPNNoOverlap
}

// sendServerHello reflects only the extensions we processed [rfc5246:7.4.1.4].
func (conn *Connection) sendServerHello(clientHello *handshake.MsgClientHello) error {
	hctx := conn.hctx
	msg := &handshake.MsgServerHello{
		ServerVersion: hctx.version,
		Random:        hctx.serverRandom,
		SessionID:     hctx.sessionID,
		CipherSuite:   uint16(hctx.suite.ID),
	}
	if clientHello.Extensions.ServerNameSet && clientHello.Extensions.ServerName != "" {
		msg.Extensions.ServerNameSet = true // empty acknowledging echo
	}
	msg.Extensions.ExtendedMasterSecret = hctx.extendedMasterSecret
	if hctx.secureRenegotiation {
		msg.Extensions.RenegotiationInfoSet = true // empty on the initial handshake
	}
	if hctx.selectedProtocol != "" {
		msg.Extensions.ALPNSet = true
		msg.Extensions.ALPNProtocols = []string{hctx.selectedProtocol}
	}
	return conn.queueHandshakeMessage(handshake.Message{
		MsgType: handshake.MsgTypeServerHello,
		Body:    msg.Write(nil),
	})
}

func (conn *Connection) sendServerFirstFlight(msg *handshake.MsgClientHello) error {
	hctx := conn.hctx

	suite, err := conn.selectSuite(msg)
	if err != nil {
		return err
	}
	hctx.suite = suite
	hctx.transcript.SetVersion(hctx.version, suite.PRFHash)
	hctx.extendedMasterSecret = msg.Extensions.ExtendedMasterSecret && conn.opts.ExtendedMasterSecret
	if err := conn.selectALPN(); err != nil {
		return err
	}

	if conn.opts.EnableSessionCreation && conn.opts.Sessions != nil {
		hctx.sessionID = make([]byte, constants.NewSessionIDLength)
		conn.opts.Rnd.Read(hctx.sessionID)
	}

	if err := conn.sendServerHello(msg); err != nil {
		return err
	}

	certMsg := &handshake.MsgCertificate{Chain: derChain(hctx.localCertificates)}
	if err := conn.queueHandshakeMessage(handshake.Message{
		MsgType: handshake.MsgTypeCertificate,
		Body:    certMsg.Write(nil),
	}); err != nil {
		return err
	}

	hctx.kx = newKeyAgreement(suite)
	if suite.Kx.Ephemeral() {
		group, err := selectGroup(msg.Extensions.SupportedGroups, msg.Extensions.SupportedGroupsSet)
		if err != nil {
			return err
		}
		hctx.kx.(*ecdheKeyAgreement).curveID = group
		skx, err := hctx.kx.generateServerKeyExchange(conn, hctx)
		if err != nil {
			return err
		}
		if err := conn.queueHandshakeMessage(handshake.Message{
			MsgType: handshake.MsgTypeServerKeyExchange,
			Body:    skx.Write(nil, hctx.tls12()),
		}); err != nil {
			return err
		}
	}

	if conn.opts.ClientAuth != options.NoClientAuth {
		reqMsg := &handshake.MsgCertificateRequest{
			CertificateTypes: []byte{handshake.ClientCertTypeRSASign, handshake.ClientCertTypeECDSASign},
		}
		if hctx.tls12() {
			for _, sah := range tlscrypto.SupportedSignatureAlgorithms {
				reqMsg.SignatureAlgorithms = append(reqMsg.SignatureAlgorithms, sah.Code())
			}
		}
		if err := conn.queueHandshakeMessage(handshake.Message{
			MsgType: handshake.MsgTypeCertificateRequest,
			Body:    reqMsg.Write(nil, hctx.tls12()),
		}); err != nil {
			return err
		}
		hctx.clientCertRequested = true
	}

	if err := conn.queueHandshakeMessage(handshake.Message{
		MsgType: handshake.MsgTypeServerHelloDone,
	}); err != nil {
		return err
	}

	if hctx.clientCertRequested {
		conn.smID = smIDServerExpectCertificate
	} else {
		conn.smID = smIDServerExpectClientKeyExchange
	}
	return nil
}

func clientSignatureAlgorithm(leaf *x509.Certificate) tlscrypto.SignatureAlgorithm {
	if _, ok := leaf.PublicKey.(*ecdsa.PublicKey); ok {
		return tlscrypto.SignatureECDSA
	}
	return tlscrypto.SignatureRSA
}

func clientAuthType(chain []*x509.Certificate) string {
	if clientSignatureAlgorithm(chain[0]) == tlscrypto.SignatureECDSA {
		return "EC"
	}
	return "RSA"
}

type smServerExpectCertificate struct {
	smHandshake
}

func (*smServerExpectCertificate) OnCertificate(conn *Connection, msg *handshake.MsgCertificate) error {
	hctx := conn.hctx
	if len(msg.Chain) == 0 {
		if conn.opts.ClientAuth == options.NeedClientAuth {
			return tlserrors.ErrCertificateRequired
		}
		conn.smID = smIDServerExpectClientKeyExchange
		return nil // anonymous client
	}
	chain, err := parseCertificateChain(msg.Chain)
	if err != nil {
		return err
	}
	if err := conn.bridgeCheckClientTrusted(chain, clientAuthType(chain)); err != nil {
		return err
	}
	hctx.peerCertificates = chain
	hctx.clientCertificateSeen = true
	conn.smID = smIDServerExpectClientKeyExchange
	return nil
}

type smServerExpectClientKeyExchange struct {
	smHandshake
}

func (*smServerExpectClientKeyExchange) OnClientKeyExchange(conn *Connection, body []byte) error {
	hctx := conn.hctx
	cke := &handshake.MsgClientKeyExchange{}
	var err error
	if hctx.suite.Kx.Ephemeral() {
		err = cke.ParseECDHE(body)
	} else {
		err = cke.ParseRSA(body)
	}
	if err != nil {
		return tlserrors.ErrKeyExchangeParsing
	}
	preMaster, err := hctx.kx.processClientKeyExchange(conn, hctx, cke)
	if err != nil {
		return err
	}
	hctx.deriveMaster(preMaster) // transcript already includes ClientKeyExchange

	conn.publishHandshakeSession()
	if err := conn.installPendingProtections(); err != nil {
		return err
	}
	if hctx.clientCertificateSeen {
		conn.smID = smIDServerExpectCertificateVerify
	} else {
		conn.smID = smIDServerExpectChangeCipherSpec
	}
	return nil
}

type smServerExpectCertificateVerify struct {
	smHandshake
}

func (*smServerExpectCertificateVerify) OnCertificateVerify(conn *Connection, raw []byte, msg *handshake.MsgCertificateVerify) error {
	hctx := conn.hctx
	leaf := hctx.peerCertificates[0]
	sah := tlscrypto.SignatureAndHash{Signature: clientSignatureAlgorithm(leaf)}
	if hctx.tls12() {
		sah = tlscrypto.SignatureAndHashFromCode(msg.SignatureAndHashCode)
		if sah.Signature != clientSignatureAlgorithm(leaf) {
			return tlserrors.ErrSignatureAlgorithmUnsupported
		}
	}
	if err := conn.opts.Crypto.VerifySignature(hctx.version, leaf.PublicKey, sah,
		hctx.transcript.Bytes(), msg.Signature); err != nil {
		return err
	}
	conn.transcriptWrite(raw)
	conn.smID = smIDServerExpectChangeCipherSpec
	return nil
}

type smServerExpectChangeCipherSpec struct {
	smHandshake
}

func (*smServerExpectChangeCipherSpec) OnChangeCipherSpec(conn *Connection) error {
	if err := conn.in.ActivatePending(); err != nil {
		return err
	}
	conn.smID = smIDServerExpectFinished
	return nil
}

type smServerExpectFinished struct {
	smHandshake
}

func (*smServerExpectFinished) OnFinished(conn *Connection, raw []byte, msg *handshake.MsgFinished) error {
	return conn.onPeerFinished(raw, msg)
}
