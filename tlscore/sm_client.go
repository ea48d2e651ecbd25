// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package tlscore

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/x509"

	"github.com/hrissan/tls/ciphersuite"
	"github.com/hrissan/tls/constants"
	"github.com/hrissan/tls/handshake"
	"github.com/hrissan/tls/record"
	"github.com/hrissan/tls/session"
	"github.com/hrissan/tls/tlscrypto"
	"github.com/hrissan/tls/tlserrors"
)

func (conn *Connection) sendClientHello() error {
	hctx := conn.hctx
	hctx.clientVersion = conn.opts.MaxVersion
	conn.opts.Rnd.Read(hctx.clientRandom[:])

	msg := &handshake.MsgClientHello{
		ClientVersion:   hctx.clientVersion,
		Random:          hctx.clientRandom,
		NullCompression: true,
	}
	if conn.opts.Sessions != nil {
		sess := conn.opts.Sessions.GetByPeer(conn.opts.PeerHost, conn.opts.PeerPort)
		if sess != nil && conn.opts.VersionEnabled(sess.Version()) && conn.opts.SuiteEnabled(sess.CipherSuite()) {
			hctx.offeredSession = sess
			msg.SessionID = sess.ID()
		}
	}
	for _, id := range conn.opts.CipherSuites {
		msg.CipherSuites = append(msg.CipherSuites, uint16(id))
	}

	if conn.opts.ServerName != "" {
		msg.Extensions.ServerNameSet = true
		msg.Extensions.ServerName = conn.opts.ServerName
	}
	msg.Extensions.SupportedGroupsSet = true
	msg.Extensions.SupportedGroups = localGroups
	msg.Extensions.ECPointFormatsSet = true
	if conn.opts.MaxVersion >= record.VersionTLS12 {
		msg.Extensions.SignatureAlgorithmsSet = true
		for _, sah := range tlscrypto.SupportedSignatureAlgorithms {
			msg.Extensions.SignatureAlgorithms = append(msg.Extensions.SignatureAlgorithms, sah.Code())
		}
	}
	if len(conn.opts.ALPNProtocols) > 0 {
		msg.Extensions.ALPNSet = true
		msg.Extensions.ALPNProtocols = conn.opts.ALPNProtocols
	}
	msg.Extensions.ExtendedMasterSecret = conn.opts.ExtendedMasterSecret
	msg.Extensions.RenegotiationInfoSet = true // empty payload on the initial handshake

	conn.smID = smIDClientExpectServerHello
	return conn.queueHandshakeMessage(handshake.Message{
		MsgType: handshake.MsgTypeClientHello,
		Body:    msg.Write(nil),
	})
}

type smClientExpectServerHello struct {
	smHandshake
}

func (*smClientExpectServerHello) OnServerHello(conn *Connection, msg *handshake.MsgServerHello) error {
	hctx := conn.hctx

	version := msg.ServerVersion
	if !conn.opts.VersionEnabled(version) || version > hctx.clientVersion {
		return tlserrors.ErrProtocolVersionMismatch
	}
	hctx.version = version
	conn.negotiatedVersion = version
	hctx.serverRandom = msg.Random

	suite, ok := lookupEnabledSuite(conn, msg.CipherSuite)
	if !ok {
		return tlserrors.ErrNoCommonCipherSuite
	}
	if err := checkSuiteUsable(suite, version); err != nil {
		return err
	}
	hctx.suite = suite
	hctx.transcript.SetVersion(version, suite.PRFHash)

	if msg.Extensions.ExtendedMasterSecret && !conn.opts.ExtendedMasterSecret {
		return tlserrors.ErrExtensionUnsolicited
	}
	hctx.extendedMasterSecret = msg.Extensions.ExtendedMasterSecret
	if msg.Extensions.RenegotiationInfoSet {
		if len(msg.Extensions.RenegotiationInfo) != 0 {
			return tlserrors.ErrRenegotiationInfoMismatch
		}
		hctx.secureRenegotiation = true
	}
	if msg.Extensions.ALPNSet {
		if len(conn.opts.ALPNProtocols) == 0 || len(msg.Extensions.ALPNProtocols) != 1 {
			return tlserrors.ErrExtensionUnsolicited
		}
		selected := msg.Extensions.ALPNProtocols[0]
		if !containsString(conn.opts.ALPNProtocols, selected) {
			return tlserrors.ErrALPNNoOverlap
		}
		hctx.selectedProtocol = selected
	}

	if offered := hctx.offeredSession; offered != nil && len(msg.SessionID) > 0 && bytes.Equal(msg.SessionID, offered.ID()) {
		// abbreviated handshake
		if offered.Version() != version || offered.CipherSuite() != suite.ID {
			return tlserrors.ErrNoCommonCipherSuite
		}
		// [rfc7627:5.3] the resumed master secret must keep its binding
		if offered.ExtendedMasterSecret() != hctx.extendedMasterSecret {
			return tlserrors.ErrSessionHashRequired
		}
		hctx.sessionID = append([]byte(nil), msg.SessionID...)
		hctx.resumeMaster(offered)
		conn.notifyHandshakeSession(offered)
		if err := conn.installPendingProtections(); err != nil {
			return err
		}
		conn.smID = smIDClientExpectChangeCipherSpec
		return nil
	}

	hctx.offeredSession = nil
	hctx.sessionID = append([]byte(nil), msg.SessionID...)
	hctx.kx = newKeyAgreement(suite)
	conn.smID = smIDClientExpectCertificate
	return nil
}

type smClientExpectCertificate struct {
	smHandshake
}

func (*smClientExpectCertificate) OnCertificate(conn *Connection, msg *handshake.MsgCertificate) error {
	hctx := conn.hctx
	chain, err := parseCertificateChain(msg.Chain)
	if err != nil {
		return err
	}
	if len(chain) == 0 {
		return tlserrors.ErrCertificateChainEmpty
	}
	if err := checkLeafMatchesSuite(chain[0], hctx.suite); err != nil {
		return err
	}
	if err := conn.bridgeCheckServerTrusted(chain, kxAuthType(hctx.suite)); err != nil {
		return err
	}
	hctx.peerCertificates = chain
	conn.smID = smIDClientExpectServerHelloDone
	return nil
}

type smClientExpectServerHelloDone struct {
	smHandshake
}

func (*smClientExpectServerHelloDone) OnServerKeyExchange(conn *Connection, msg *handshake.MsgServerKeyExchange) error {
	hctx := conn.hctx
	if !hctx.suite.Kx.Ephemeral() || hctx.gotServerKeyExchange || hctx.certificateRequested {
		return tlserrors.ErrUnexpectedMessage
	}
	if err := hctx.kx.processServerKeyExchange(conn, hctx, msg); err != nil {
		return err
	}
	hctx.gotServerKeyExchange = true
	return nil
}

func (*smClientExpectServerHelloDone) OnCertificateRequest(conn *Connection, msg *handshake.MsgCertificateRequest) error {
	hctx := conn.hctx
	if hctx.certificateRequested {
		return tlserrors.ErrUnexpectedMessage
	}
	if hctx.suite.Kx.Ephemeral() && !hctx.gotServerKeyExchange {
		return tlserrors.ErrUnexpectedMessage
	}
	hctx.certificateRequested = true
	hctx.certificateRequest = *msg
	// the server's accepted algorithms govern our CertificateVerify
	if len(msg.SignatureAlgorithms) > 0 {
		hctx.peerSignatureAlgorithms = msg.SignatureAlgorithms
	}
	return nil
}

func (*smClientExpectServerHelloDone) OnServerHelloDone(conn *Connection) error {
	hctx := conn.hctx
	if hctx.suite.Kx.Ephemeral() && !hctx.gotServerKeyExchange {
		return tlserrors.ErrUnexpectedMessage
	}
	return conn.sendClientSecondFlight()
}

func (conn *Connection) sendClientSecondFlight() error {
	hctx := conn.hctx

	if hctx.certificateRequested {
		hctx.sentClientCertificate = conn.bridgeChooseClientIdentity(hctx, &hctx.certificateRequest)
		certMsg := &handshake.MsgCertificate{}
		if hctx.sentClientCertificate {
			certMsg.Chain = derChain(hctx.localCertificates)
		}
		if err := conn.queueHandshakeMessage(handshake.Message{
			MsgType: handshake.MsgTypeCertificate,
			Body:    certMsg.Write(nil),
		}); err != nil {
			return err
		}
	}

	preMaster, ckeMsg, err := hctx.kx.generateClientKeyExchange(conn, hctx)
	if err != nil {
		return err
	}
	var ckeBody []byte
	if hctx.suite.Kx.Ephemeral() {
		ckeBody = ckeMsg.WriteECDHE(nil)
	} else {
		ckeBody = ckeMsg.WriteRSA(nil)
	}
	if err := conn.queueHandshakeMessage(handshake.Message{
		MsgType: handshake.MsgTypeClientKeyExchange,
		Body:    ckeBody,
	}); err != nil {
		return err
	}
	hctx.deriveMaster(preMaster) // session hash snapshot includes ClientKeyExchange

	if hctx.sentClientCertificate {
		sah, err := conn.bridgeChooseSignatureAndHash(hctx, signerSignatureAlgorithm(hctx.localSigner))
		if err != nil {
			return err
		}
		signature, err := conn.opts.Crypto.Sign(hctx.version, hctx.localSigner, sah, hctx.transcript.Bytes())
		if err != nil {
			return tlserrors.ErrSignatureInvalid
		}
		verifyMsg := &handshake.MsgCertificateVerify{
			SignatureAndHashCode: sah.Code(),
			Signature:            signature,
		}
		if err := conn.queueHandshakeMessage(handshake.Message{
			MsgType: handshake.MsgTypeCertificateVerify,
			Body:    verifyMsg.Write(nil, hctx.tls12()),
		}); err != nil {
			return err
		}
	}

	conn.publishHandshakeSession()

	if err := conn.installPendingProtections(); err != nil {
		return err
	}
	if err := conn.queueChangeCipherSpec(); err != nil {
		return err
	}
	if err := conn.sendFinished(); err != nil {
		return err
	}
	conn.smID = smIDClientExpectChangeCipherSpec
	return nil
}

// publishHandshakeSession exposes the in-progress session to observers
// before Finished validation.
func (conn *Connection) publishHandshakeSession() {
	hctx := conn.hctx
	hctx.pendingSession = session.New(session.Params{
		ID:                   append([]byte(nil), hctx.sessionID...),
		Version:              hctx.version,
		Suite:                hctx.suite.ID,
		MasterSecret:         hctx.masterSecret,
		PeerCertificates:     hctx.peerCertificates,
		LocalCertificates:    hctx.localCertificates,
		ExtendedMasterSecret: hctx.extendedMasterSecret,
		PeerHost:             conn.opts.PeerHost,
		PeerPort:             conn.opts.PeerPort,
	}, conn.now())
	conn.notifyHandshakeSession(hctx.pendingSession)
}

func (conn *Connection) sendFinished() error {
	hctx := conn.hctx
	verify := hctx.computeFinished(conn.roleServer)
	hctx.localVerify = verify
	hctx.recordFinished(verify)
	hctx.sentFinished = true
	finMsg := &handshake.MsgFinished{VerifyData: verify}
	return conn.queueHandshakeMessage(handshake.Message{
		MsgType: handshake.MsgTypeFinished,
		Body:    finMsg.Write(nil),
	})
}

type smClientExpectChangeCipherSpec struct {
	smHandshake
}

func (*smClientExpectChangeCipherSpec) OnChangeCipherSpec(conn *Connection) error {
	if err := conn.in.ActivatePending(); err != nil {
		return err
	}
	conn.smID = smIDClientExpectFinished
	return nil
}

type smClientExpectFinished struct {
	smHandshake
}

func (*smClientExpectFinished) OnFinished(conn *Connection, raw []byte, msg *handshake.MsgFinished) error {
	return conn.onPeerFinished(raw, msg)
}

// onPeerFinished is shared by both roles: verify, then send our own flight
// if the peer finished first, then complete.
func (conn *Connection) onPeerFinished(raw []byte, msg *handshake.MsgFinished) error {
	hctx := conn.hctx
	expected := hctx.computeFinished(!conn.roleServer)
	if !hmac.Equal(expected[:], msg.VerifyData[:]) {
		return tlserrors.ErrFinishedVerifyData
	}
	hctx.peerVerify = expected
	hctx.recordFinished(expected)
	conn.transcriptWrite(raw)
	if !hctx.sentFinished {
		if err := conn.queueChangeCipherSpec(); err != nil {
			return err
		}
		if err := conn.sendFinished(); err != nil {
			return err
		}
	}
	conn.finishHandshake()
	return nil
}

// shared helpers

func lookupEnabledSuite(conn *Connection, id uint16) (*ciphersuite.Suite, bool) {
	suite, ok := ciphersuite.Lookup(ciphersuite.ID(id))
	if !ok || !conn.opts.SuiteEnabled(suite.ID) {
		return nil, false
	}
	return suite, true
}

// kxAuthType is the auth type string handed to trust managers, named after
// the key exchange.
func kxAuthType(suite *ciphersuite.Suite) string {
	switch suite.Kx {
	case ciphersuite.KeyExchangeECDHERSA:
		return "ECDHE_RSA"
	case ciphersuite.KeyExchangeECDHEECDSA:
		return "ECDHE_ECDSA"
	}
	return "RSA"
}

// checkLeafMatchesSuite rejects a server certificate whose key cannot serve
// the negotiated key exchange.
func checkLeafMatchesSuite(leaf *x509.Certificate, suite *ciphersuite.Suite) error {
	switch leaf.PublicKey.(type) {
	case *rsa.PublicKey:
		if suite.Kx == ciphersuite.KeyExchangeECDHEECDSA {
			return tlserrors.ErrCertificateUnsupported
		}
	case *ecdsa.PublicKey:
		if suite.Kx != ciphersuite.KeyExchangeECDHEECDSA {
			return tlserrors.ErrCertificateUnsupported
		}
	default:
		return tlserrors.ErrCertificateUnsupported
	}
	return nil
}

func parseCertificateChain(ders [][]byte) ([]*x509.Certificate, error) {
	if len(ders) > constants.MaxCertificateChainLength {
		return nil, tlserrors.ErrCertificateParsing
	}
	chain := make([]*x509.Certificate, 0, len(ders))
	for _, der := range ders {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, tlserrors.ErrCertificateParsing
		}
		chain = append(chain, cert)
	}
	return chain, nil
}

func derChain(chain []*x509.Certificate) [][]byte {
	ders := make([][]byte, 0, len(chain))
	for _, cert := range chain {
		ders = append(ders, cert.Raw)
	}
	return ders
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

