// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package tlscore

import (
	"crypto"
	"crypto/x509"
	"time"

	"github.com/hrissan/tls/alert"
	"github.com/hrissan/tls/circular"
	"github.com/hrissan/tls/constants"
	"github.com/hrissan/tls/handshake"
	"github.com/hrissan/tls/keys"
	"github.com/hrissan/tls/options"
	"github.com/hrissan/tls/record"
	"github.com/hrissan/tls/session"
	"github.com/hrissan/tls/tlserrors"
)

// PeerAlertError surfaces a fatal alert received from the peer.
type PeerAlertError struct {
	Alert alert.Alert
}

func (e *PeerAlertError) Error() string {
	return "tls: received fatal alert " + e.Alert.Description.String()
}

// Connection drives one TLS connection: two record pipelines, the handshake
// state machine, and the negotiated security parameters. It does no I/O and
// never blocks; the engine facade feeds it whole records and drains sealed
// output. All methods are called under the engine mutex.
type Connection struct {
	opts       *options.EngineOptions
	roleServer bool

	in  record.Pipeline
	out record.Pipeline
	// zero until the hellos fix it; all records carry it afterwards
	negotiatedVersion record.ProtocolVersion

	// sealed records ready to transmit, drained front to back;
	// outFrontOff is the drained prefix of the front record
	outQueue    circular.Buffer[[]byte]
	outFrontOff int
	pendingOut  int

	asm     handshake.Assembler
	appData []byte // plaintext of the last opened application record

	smID              stateID
	hctx              *handshakeContext
	started           bool
	handshakeComplete bool
	justCompleted     bool // one FINISHED signal for the engine to consume

	paramsHandshake  *SecurityParameters
	paramsConnection *SecurityParameters

	sess             *session.Session
	handshakeSession *session.Session
	appProtocol      string

	closeErr            error
	closeNotifySent     bool
	closeNotifyReceived bool
}

func NewConnection(opts *options.EngineOptions, roleServer bool) *Connection {
	return &Connection{
		opts:       opts,
		roleServer: roleServer,
		in:         record.NewPipeline(),
		out:        record.NewPipeline(),
		smID:       smIDClosed,
	}
}

func (conn *Connection) RoleServer() bool      { return conn.roleServer }
func (conn *Connection) Started() bool         { return conn.started }
func (conn *Connection) HandshakeDone() bool   { return conn.handshakeComplete }
func (conn *Connection) Err() error            { return conn.closeErr }
func (conn *Connection) InboundClosed() bool   { return conn.closeNotifyReceived || conn.closeErr != nil }
func (conn *Connection) OutboundClosed() bool  { return conn.out.Closed() }
func (conn *Connection) CloseNotifySent() bool { return conn.closeNotifySent }

// TakeJustCompleted is consumed by the engine to report FINISHED exactly once.
func (conn *Connection) TakeJustCompleted() bool {
	v := conn.justCompleted
	conn.justCompleted = false
	return v
}

// Start begins the initial handshake. The client queues its first flight;
// the server waits for ClientHello.
func (conn *Connection) Start() error {
	if conn.started {
		return tlserrors.ErrEngineRenegotiation
	}
	conn.started = true
	conn.opts.Stats.HandshakeStarted(conn.roleServer)
	conn.hctx = &handshakeContext{}
	conn.paramsHandshake = &SecurityParameters{RoleServer: conn.roleServer}
	if conn.roleServer {
		conn.smID = smIDServerExpectClientHello
		return nil
	}
	return conn.sendClientHello()
}

func (conn *Connection) now() time.Time {
	if conn.opts.Sessions != nil {
		return conn.opts.Sessions.Now()
	}
	return time.Now()
}

// recordVersion for outgoing records: the negotiated version, or TLS 1.0 as
// the compatible pre-negotiation value.
func (conn *Connection) recordVersion() record.ProtocolVersion {
	if conn.negotiatedVersion != 0 {
		return conn.negotiatedVersion
	}
	return record.VersionTLS10
}

// fail turns a protocol error terminal: queue the mapped alert so the host
// can flush it, then refuse all further traffic. Idempotent, the first
// error wins.
func (conn *Connection) fail(err error) error {
	if conn.closeErr != nil {
		return conn.closeErr
	}
	conn.closeErr = err
	conn.queueAlert(tlserrors.AlertLevelOf(err), tlserrors.DescriptionOf(err))
	conn.out.Close()
	conn.in.Close()
	if !conn.handshakeComplete {
		conn.opts.Stats.HandshakeFailed(err)
	}
	return err
}

func (conn *Connection) queueAlert(level alert.Level, desc alert.Description) {
	body := alert.Alert{Level: level, Description: desc}.Write(nil)
	rec, err := conn.out.SealRecord(nil, record.ContentAlert, conn.recordVersion(), body)
	if err != nil {
		return // outbound already closed, nothing to flush
	}
	conn.outQueue.PushBack(rec)
	conn.pendingOut += len(rec)
	conn.opts.Stats.AlertSent(level, desc)
}

func (conn *Connection) queueRecord(typ record.ContentType, fragment []byte) error {
	rec, err := conn.out.SealRecord(nil, typ, conn.recordVersion(), fragment)
	if err != nil {
		return err
	}
	conn.outQueue.PushBack(rec)
	conn.pendingOut += len(rec)
	conn.opts.Stats.RecordSealed(typ, len(fragment))
	return nil
}

// queueHandshakeMessage serializes, hashes into the transcript (HelloRequest
// never is), and emits the message, fragmenting across records if needed.
func (conn *Connection) queueHandshakeMessage(msg handshake.Message) error {
	wire := msg.Write(nil)
	if msg.MsgType != handshake.MsgTypeHelloRequest {
		conn.hctx.transcript.Write(wire)
	}
	for off := 0; off < len(wire); {
		chunk := len(wire) - off
		if chunk > constants.MaxPlaintextFragmentLength {
			chunk = constants.MaxPlaintextFragmentLength
		}
		if err := conn.queueRecord(record.ContentHandshake, wire[off:off+chunk]); err != nil {
			return err
		}
		off += chunk
	}
	return nil
}

// queueChangeCipherSpec emits the pseudo-message and promotes the pending
// outbound protection: the very next record uses the new keys.
func (conn *Connection) queueChangeCipherSpec() error {
	if err := conn.queueRecord(record.ContentChangeCipherSpec, []byte{1}); err != nil {
		return err
	}
	return conn.out.ActivatePending()
}

// installPendingProtections builds both directions' record protections from
// the key block and parks them until the ChangeCipherSpec exchange.
func (conn *Connection) installPendingProtections() error {
	hctx := conn.hctx
	clientKeys, serverKeys := keys.KeyBlock(hctx.version, hctx.suite, hctx.masterSecret[:],
		hctx.clientRandom[:], hctx.serverRandom[:])
	writeKeys, readKeys := clientKeys, serverKeys
	if conn.roleServer {
		writeKeys, readKeys = serverKeys, clientKeys
	}
	writeProt, err := conn.opts.Crypto.NewProtection(hctx.suite, hctx.version, writeKeys, true)
	if err != nil {
		return tlserrors.ErrNoCommonCipherSuite
	}
	readProt, err := conn.opts.Crypto.NewProtection(hctx.suite, hctx.version, readKeys, false)
	if err != nil {
		return tlserrors.ErrNoCommonCipherSuite
	}
	conn.out.SetPending(writeProt)
	conn.in.SetPending(readProt)
	return nil
}

// Fail lets the facade route a pre-parse failure (malformed record header)
// through the normal alert discipline.
func (conn *Connection) Fail(err error) error {
	return conn.fail(err)
}

// WrapLimits sizes one application data wrap: how much source one call will
// take and the destination space that must be reserved for the worst case.
func (conn *Connection) WrapLimits(srcTotal int) (srcLimit, dstNeeded int) {
	srcLimit = srcTotal
	if srcLimit > constants.MaxPlaintextFragmentLength {
		srcLimit = constants.MaxPlaintextFragmentLength
	}
	records := 1
	if conn.out.NeedsSplitting() && srcLimit > 1 {
		records = 2
	}
	dstNeeded = srcLimit + records*(constants.RecordHeaderSize+conn.out.Overhead())
	return srcLimit, dstNeeded
}

// OfferRecord consumes exactly one whole inbound record.
func (conn *Connection) OfferRecord(hdr record.Header, fragment []byte) error {
	if conn.closeErr != nil {
		return conn.closeErr
	}
	if conn.closeNotifyReceived {
		return tlserrors.ErrRecordAfterClose
	}
	if conn.negotiatedVersion != 0 && hdr.Version != conn.negotiatedVersion {
		return conn.fail(tlserrors.ErrRecordWrongVersion)
	}
	plaintext, err := conn.in.OpenRecord(hdr, fragment)
	if err != nil {
		conn.opts.Stats.BadRecord(hdr.Type, hdr.Length, err)
		return conn.fail(err)
	}
	conn.opts.Stats.RecordOpened(hdr.Type, len(plaintext))

	switch hdr.Type {
	case record.ContentHandshake:
		if err := conn.asm.Push(plaintext); err != nil {
			return conn.fail(err)
		}
		for {
			msg, raw, ok, err := conn.asm.Next()
			if err != nil {
				return conn.fail(err)
			}
			if !ok {
				return nil
			}
			if err := conn.dispatchHandshake(msg, raw); err != nil {
				return conn.fail(err)
			}
		}

	case record.ContentChangeCipherSpec:
		if len(plaintext) != 1 || plaintext[0] != 1 {
			return conn.fail(tlserrors.ErrChangeCipherSpecBody)
		}
		if !conn.asm.Empty() {
			return conn.fail(tlserrors.ErrHandshakeInterleaved)
		}
		if err := states[conn.smID].OnChangeCipherSpec(conn); err != nil {
			return conn.fail(err)
		}
		return nil

	case record.ContentAlert:
		return conn.onAlertRecord(plaintext)

	case record.ContentApplicationData:
		if !conn.handshakeComplete {
			return conn.fail(tlserrors.ErrUnexpectedMessage)
		}
		conn.appData = plaintext
		return nil

	case record.ContentHeartbeat:
		return nil // ignored, the extension is never negotiated
	}
	return conn.fail(tlserrors.ErrRecordUnknownContentType)
}

func (conn *Connection) onAlertRecord(plaintext []byte) error {
	var a alert.Alert
	if err := a.Parse(plaintext); err != nil {
		return conn.fail(tlserrors.ErrHandshakeMessageParsing)
	}
	conn.opts.Stats.AlertReceived(a.Level, a.Description)
	if a.Description == alert.CloseNotify {
		conn.closeNotifyReceived = true
		conn.in.Close()
		// answer with our own close_notify unless already on the wire
		conn.CloseOutbound()
		return nil
	}
	if a.IsFatal() {
		conn.closeErr = &PeerAlertError{Alert: a}
		conn.in.Close()
		conn.out.Close()
		if !conn.handshakeComplete {
			conn.opts.Stats.HandshakeFailed(conn.closeErr)
		}
		return conn.closeErr
	}
	return nil // warnings, including no_renegotiation, are ignored
}

func (conn *Connection) dispatchHandshake(msg handshake.Message, raw []byte) error {
	sm := states[conn.smID]
	tls12 := conn.hctx != nil && conn.hctx.tls12()
	parseErr := func(err error) error {
		if err != nil {
			return tlserrors.ErrHandshakeMessageParsing
		}
		return nil
	}
	switch msg.MsgType {
	case handshake.MsgTypeHelloRequest:
		return sm.OnHelloRequest(conn) // never in the transcript

	case handshake.MsgTypeClientHello:
		parsed := &handshake.MsgClientHello{}
		if err := parseErr(parsed.Parse(msg.Body)); err != nil {
			return err
		}
		conn.transcriptWrite(raw)
		return sm.OnClientHello(conn, parsed)

	case handshake.MsgTypeServerHello:
		parsed := &handshake.MsgServerHello{}
		if err := parseErr(parsed.Parse(msg.Body)); err != nil {
			return err
		}
		conn.transcriptWrite(raw)
		return sm.OnServerHello(conn, parsed)

	case handshake.MsgTypeCertificate:
		parsed := &handshake.MsgCertificate{}
		if err := parseErr(parsed.Parse(msg.Body)); err != nil {
			return err
		}
		conn.transcriptWrite(raw)
		return sm.OnCertificate(conn, parsed)

	case handshake.MsgTypeServerKeyExchange:
		parsed := &handshake.MsgServerKeyExchange{}
		if err := parseErr(parsed.Parse(msg.Body, tls12)); err != nil {
			return err
		}
		conn.transcriptWrite(raw)
		return sm.OnServerKeyExchange(conn, parsed)

	case handshake.MsgTypeCertificateRequest:
		parsed := &handshake.MsgCertificateRequest{}
		if err := parseErr(parsed.Parse(msg.Body, tls12)); err != nil {
			return err
		}
		conn.transcriptWrite(raw)
		return sm.OnCertificateRequest(conn, parsed)

	case handshake.MsgTypeServerHelloDone:
		if len(msg.Body) != 0 {
			return tlserrors.ErrHandshakeMessageParsing
		}
		conn.transcriptWrite(raw)
		return sm.OnServerHelloDone(conn)

	case handshake.MsgTypeClientKeyExchange:
		// encoding depends on the negotiated key exchange, states parse it
		conn.transcriptWrite(raw)
		return sm.OnClientKeyExchange(conn, msg.Body)

	case handshake.MsgTypeCertificateVerify:
		parsed := &handshake.MsgCertificateVerify{}
		if err := parseErr(parsed.Parse(msg.Body, tls12)); err != nil {
			return err
		}
		// the signature covers the transcript without this message,
		// the state writes raw after verifying
		return sm.OnCertificateVerify(conn, raw, parsed)

	case handshake.MsgTypeFinished:
		parsed := &handshake.MsgFinished{}
		if err := parseErr(parsed.Parse(msg.Body)); err != nil {
			return err
		}
		// verify_data covers the transcript without this message
		return sm.OnFinished(conn, raw, parsed)
	}
	return tlserrors.ErrUnexpectedMessage
}

func (conn *Connection) transcriptWrite(raw []byte) {
	if conn.hctx != nil {
		conn.hctx.transcript.Write(raw)
	}
}

// WriteApplicationData seals at most one maximum-sized application record
// (two when the 1/n-1 split applies) and reports how much input it took.
func (conn *Connection) WriteApplicationData(p []byte) (int, error) {
	if conn.closeErr != nil {
		return 0, conn.closeErr
	}
	if !conn.handshakeComplete {
		return 0, tlserrors.ErrEngineHandshakeNotComplete
	}
	if conn.out.Closed() {
		return 0, tlserrors.ErrEngineClosed
	}
	n := len(p)
	if n > constants.MaxPlaintextFragmentLength {
		n = constants.MaxPlaintextFragmentLength
	}
	if n == 0 {
		return 0, nil
	}
	if conn.out.NeedsSplitting() && n > 1 {
		// 1/n-1 split against IV chaining prediction (CBC before TLS 1.1)
		if err := conn.queueRecord(record.ContentApplicationData, p[:1]); err != nil {
			return 0, err
		}
		if err := conn.queueRecord(record.ContentApplicationData, p[1:n]); err != nil {
			return 1, err
		}
		return n, nil
	}
	if err := conn.queueRecord(record.ContentApplicationData, p[:n]); err != nil {
		return 0, err
	}
	return n, nil
}

// TakeAppData hands the engine the plaintext of the last opened
// application record.
func (conn *Connection) TakeAppData() []byte {
	d := conn.appData
	conn.appData = nil
	return d
}

func (conn *Connection) PendingOutput() int { return conn.pendingOut }

// DrainOutput copies sealed records into dst, splitting the front record
// across calls if dst is smaller than one record.
func (conn *Connection) DrainOutput(dst []byte) int {
	written := 0
	for conn.outQueue.Len() > 0 && written < len(dst) {
		front := *conn.outQueue.FrontRef()
		n := copy(dst[written:], front[conn.outFrontOff:])
		written += n
		conn.outFrontOff += n
		if conn.outFrontOff == len(front) {
			conn.outQueue.PopFront()
			conn.outFrontOff = 0
		}
	}
	conn.pendingOut -= written
	return written
}

// CloseOutbound queues close_notify after everything already buffered and
// closes the outbound pipeline. Buffered output remains drainable.
func (conn *Connection) CloseOutbound() {
	if conn.closeNotifySent || conn.out.Closed() {
		conn.out.Close()
		return
	}
	conn.queueAlert(alert.LevelWarning, alert.CloseNotify)
	conn.closeNotifySent = true
	conn.out.Close()
}

func (conn *Connection) CloseInbound() error {
	wasClean := conn.closeNotifyReceived
	conn.in.Close()
	conn.closeNotifyReceived = true
	if !wasClean && conn.handshakeComplete && conn.closeErr == nil {
		return tlserrors.ErrRecordAfterClose // inbound closed without close_notify
	}
	return nil
}

// finishHandshake freezes the handshake slot into the connection slot,
// publishes the session and signals FINISHED to the engine.
func (conn *Connection) finishHandshake() {
	hctx := conn.hctx
	sp := &SecurityParameters{RoleServer: conn.roleServer}
	hctx.fillSecurityParameters(sp)
	sp.LocalVerifyData = hctx.localVerify
	sp.PeerVerifyData = hctx.peerVerify
	sp.TLSUnique = hctx.firstVerify
	if old := conn.paramsConnection; old != nil {
		old.Teardown()
	}
	conn.paramsConnection = sp
	conn.paramsHandshake = nil

	if hctx.resumed {
		conn.sess = hctx.offeredSession
	} else {
		sess := hctx.pendingSession
		if sess == nil {
			sess = session.New(session.Params{
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
		}
		conn.sess = sess
		if conn.opts.Sessions != nil && len(hctx.sessionID) > 0 && conn.opts.EnableSessionCreation {
			conn.opts.Sessions.Put(sess)
			conn.opts.Stats.SessionStored(len(hctx.sessionID))
		}
	}
	conn.handshakeSession = nil
	conn.appProtocol = hctx.selectedProtocol
	conn.negotiatedVersion = hctx.version
	conn.handshakeComplete = true
	conn.justCompleted = true
	conn.smID = smIDEstablished
	conn.opts.Stats.HandshakeComplete(hctx.version, uint16(hctx.suite.ID), hctx.resumed)
	conn.hctx = nil
	conn.notifyHandshakeComplete()
}

// Session is the completed-handshake session, or the null sentinel.
func (conn *Connection) Session() *session.Session {
	if conn.sess == nil {
		return session.Null
	}
	return conn.sess
}

// HandshakeSession is the in-progress session exposed to observers between
// notifyHandshakeSession and completion, nil otherwise.
func (conn *Connection) HandshakeSession() *session.Session { return conn.handshakeSession }

func (conn *Connection) ApplicationProtocol() string { return conn.appProtocol }

func (conn *Connection) Version() record.ProtocolVersion { return conn.negotiatedVersion }

// SecurityParameters returns the handshake-in-progress slot if any, else the
// last completed one. The handshake slot tracks negotiation as it proceeds.
func (conn *Connection) SecurityParameters() *SecurityParameters {
	if conn.hctx != nil && conn.paramsHandshake != nil {
		conn.hctx.fillSecurityParameters(conn.paramsHandshake)
		return conn.paramsHandshake
	}
	return conn.paramsConnection
}

// ExportKeyingMaterial per RFC 5705 over the frozen connection parameters.
func (conn *Connection) ExportKeyingMaterial(label string, context []byte, hasContext bool, length int) ([]byte, error) {
	sp := conn.paramsConnection
	if sp == nil {
		return nil, tlserrors.ErrEngineHandshakeNotComplete
	}
	out := keys.ExportKeyingMaterial(sp.Version, sp.Suite.PRFHash, sp.MasterSecret[:],
		label, context, hasContext, sp.ClientRandom[:], sp.ServerRandom[:], length)
	if out == nil {
		return nil, tlserrors.ErrEngineHandshakeNotComplete
	}
	return out, nil
}

// Channel binding kinds [rfc5929]
const (
	ChannelBindingTLSUnique         = "tls-unique"
	ChannelBindingTLSServerEndPoint = "tls-server-end-point"
)

func (conn *Connection) ChannelBinding(kind string) ([]byte, error) {
	sp := conn.paramsConnection
	if sp == nil {
		return nil, tlserrors.ErrEngineHandshakeNotComplete
	}
	switch kind {
	case ChannelBindingTLSUnique:
		return append([]byte(nil), sp.TLSUnique[:]...), nil
	case ChannelBindingTLSServerEndPoint:
		var serverCerts []*x509.Certificate
		if sp.RoleServer {
			serverCerts = sp.LocalCertificates
		} else {
			serverCerts = sp.PeerCertificates
		}
		if len(serverCerts) == 0 {
			return nil, tlserrors.ErrEngineHandshakeNotComplete
		}
		return serverEndPointHash(conn, serverCerts[0]), nil
	}
	return nil, tlserrors.ErrEngineHandshakeNotComplete
}

// serverEndPointHash follows RFC 5929 §4.1: the certificate signature hash,
// with MD5 and SHA-1 upgraded to SHA-256.
func serverEndPointHash(conn *Connection, cert *x509.Certificate) []byte {
	h := crypto.SHA256
	switch cert.SignatureAlgorithm {
	case x509.SHA384WithRSA, x509.ECDSAWithSHA384:
		h = crypto.SHA384
	case x509.SHA512WithRSA, x509.ECDSAWithSHA512:
		h = crypto.SHA512
	}
	return conn.opts.Crypto.Hash(h, cert.Raw)
}
