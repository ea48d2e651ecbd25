// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package tlscore

import (
	"crypto"
	"crypto/x509"

	"github.com/hrissan/tls/ciphersuite"
	"github.com/hrissan/tls/constants"
	"github.com/hrissan/tls/handshake"
	"github.com/hrissan/tls/keys"
	"github.com/hrissan/tls/record"
	"github.com/hrissan/tls/session"
	"github.com/hrissan/tls/tlserrors"
)

// handshakeContext is the working state of one handshake, discarded on
// completion. Negotiated results are frozen into SecurityParameters.
type handshakeContext struct {
	transcript keys.Transcript

	clientVersion record.ProtocolVersion // client's offered maximum
	version       record.ProtocolVersion // negotiated, 0 until hellos exchanged
	suite         *ciphersuite.Suite

	clientRandom [constants.RandomLength]byte
	serverRandom [constants.RandomLength]byte

	sessionID      []byte
	resumed        bool
	offeredSession *session.Session // client's resumption candidate

	extendedMasterSecret bool
	secureRenegotiation  bool

	masterSecret  [constants.MasterSecretLength]byte
	sessionHash   []byte
	masterDerived bool

	kx keyAgreement

	peerCertificates  []*x509.Certificate
	localCertificates []*x509.Certificate
	localSigner       crypto.Signer

	// client side bookkeeping between ServerHello and ServerHelloDone
	gotServerKeyExchange  bool
	certificateRequested  bool
	certificateRequest    handshake.MsgCertificateRequest
	sentClientCertificate bool

	// server side
	clientCertRequested   bool
	clientCertificateSeen bool

	sentFinished bool
	// session object exposed to observers before Finished validation and
	// frozen as the connection session on completion
	pendingSession *session.Session

	peerSignatureAlgorithms []uint16
	alpnProtocols           []string // client's offer, server view
	selectedProtocol        string

	localVerify [constants.VerifyDataLength]byte
	peerVerify  [constants.VerifyDataLength]byte
	// verify_data of whichever Finished went first, for tls-unique
	firstVerify    [constants.VerifyDataLength]byte
	firstVerifySet bool
}

func (hctx *handshakeContext) tls12() bool {
	return hctx.version >= record.VersionTLS12
}

func (hctx *handshakeContext) recordFinished(verify [constants.VerifyDataLength]byte) {
	if !hctx.firstVerifySet {
		hctx.firstVerify = verify
		hctx.firstVerifySet = true
	}
}

// deriveMaster computes the master secret once the premaster is known.
// With extended master secret the seed is the session hash, the transcript
// digest up to and including ClientKeyExchange [rfc7627:4].
func (hctx *handshakeContext) deriveMaster(preMaster []byte) {
	if hctx.extendedMasterSecret {
		hctx.sessionHash = append([]byte(nil), hctx.transcript.Sum()...)
		hctx.masterSecret = keys.ExtendedMasterSecret(hctx.version, hctx.suite.PRFHash, preMaster, hctx.sessionHash)
	} else {
		hctx.masterSecret = keys.MasterSecret(hctx.version, hctx.suite.PRFHash, preMaster,
			hctx.clientRandom[:], hctx.serverRandom[:])
	}
	keys.Zeroize(preMaster)
	hctx.masterDerived = true
}

// resumeMaster installs the cached master secret on the resumption path.
func (hctx *handshakeContext) resumeMaster(sess *session.Session) {
	hctx.masterSecret = sess.MasterSecret()
	hctx.extendedMasterSecret = sess.ExtendedMasterSecret()
	hctx.masterDerived = true
	hctx.resumed = true
}

func (hctx *handshakeContext) computeFinished(roleServer bool) [constants.VerifyDataLength]byte {
	label := keys.LabelClientFinished
	if roleServer {
		label = keys.LabelServerFinished
	}
	return keys.ComputeFinished(hctx.version, hctx.suite.PRFHash, hctx.masterSecret[:], label, hctx.transcript.Sum())
}

// fillSecurityParameters copies the negotiated-so-far state into a
// security-parameters slot. Verify data is filled only on completion.
func (hctx *handshakeContext) fillSecurityParameters(sp *SecurityParameters) {
	sp.Version = hctx.version
	sp.Suite = hctx.suite
	sp.ClientRandom = hctx.clientRandom
	sp.ServerRandom = hctx.serverRandom
	sp.MasterSecret = hctx.masterSecret
	sp.ExtendedMasterSecret = hctx.extendedMasterSecret
	sp.SessionHash = hctx.sessionHash
	sp.PeerCertificates = hctx.peerCertificates
	sp.LocalCertificates = hctx.localCertificates
	sp.SecureRenegotiation = hctx.secureRenegotiation
	sp.Resumed = hctx.resumed
}

// checkSuiteUsable validates the server's selection against what the client
// may accept for the negotiated version.
func checkSuiteUsable(suite *ciphersuite.Suite, version record.ProtocolVersion) error {
	if suite == nil {
		return tlserrors.ErrNoCommonCipherSuite
	}
	if !suite.UsableWith(version) {
		return tlserrors.ErrNoCommonCipherSuite
	}
	return nil
}
