// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package tlscore

import (
	"crypto/x509"

	"github.com/hrissan/tls/ciphersuite"
	"github.com/hrissan/tls/constants"
	"github.com/hrissan/tls/keys"
	"github.com/hrissan/tls/record"
)

// SecurityParameters is the authoritative negotiated state shared between
// the handshake machine and the record layer. A connection keeps two slots:
// the one being negotiated and the last completed one. Exactly one
// transition happens per handshake: the handshake slot becomes the
// connection slot and is cleared.
type SecurityParameters struct {
	RoleServer bool

	Version record.ProtocolVersion
	Suite   *ciphersuite.Suite

	ClientRandom [constants.RandomLength]byte
	ServerRandom [constants.RandomLength]byte

	MasterSecret         [constants.MasterSecretLength]byte
	ExtendedMasterSecret bool
	SessionHash          []byte // only with extended master secret

	PeerCertificates  []*x509.Certificate
	LocalCertificates []*x509.Certificate

	SecureRenegotiation bool
	Resumed             bool

	// verify_data of both Finished messages, for channel bindings and the
	// (unsupported, but signalled) secure renegotiation extension
	LocalVerifyData [constants.VerifyDataLength]byte
	PeerVerifyData  [constants.VerifyDataLength]byte

	// tls-unique [rfc5929:3]: verify_data of the first Finished message of
	// the latest handshake
	TLSUnique [constants.VerifyDataLength]byte
}

// Teardown scrubs key material when the parameters are discarded.
func (sp *SecurityParameters) Teardown() {
	keys.Zeroize(sp.MasterSecret[:])
	keys.Zeroize(sp.SessionHash)
}
