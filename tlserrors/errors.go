package tlserrors

import (
	"fmt"

	"github.com/hrissan/tls/alert"
)

// we do not allocate on the error returning path,
// so all protocol errors are completely static

type Error struct {
	fatal bool
	code  int
	text  string
	desc  alert.Description
}

func (e *Error) Error() string {
	if e.fatal {
		return fmt.Sprintf("tls (fatal %s): %d %s", e.desc, e.code, e.text)
	}
	return fmt.Sprintf("tls (warning %s): %d %s", e.desc, e.code, e.text)
}

func (e *Error) IsFatal() bool            { return e.fatal }
func (e *Error) Alert() alert.Description { return e.desc }

func (e *Error) AlertLevel() alert.Level {
	if e.fatal {
		return alert.LevelFatal
	}
	return alert.LevelWarning
}

func NewFatal(code int, desc alert.Description, text string) *Error {
	return &Error{
		fatal: true,
		code:  code,
		text:  text,
		desc:  desc,
	}
}

func NewWarning(code int, desc alert.Description, text string) *Error {
	return &Error{
		fatal: false,
		code:  code,
		text:  text,
		desc:  desc,
	}
}

// DescriptionOf maps an arbitrary error to the alert this engine must emit.
// Unknown errors (crypto failures, capability panics recovered elsewhere)
// are internal_error per [rfc5246:7.2.2].
func DescriptionOf(err error) alert.Description {
	if e, ok := err.(*Error); ok {
		return e.desc
	}
	return alert.InternalError
}

func IsFatal(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.fatal
	}
	return true
}

// AlertLevelOf mirrors DescriptionOf for the alert level.
func AlertLevelOf(err error) alert.Level {
	if e, ok := err.(*Error); ok {
		return e.AlertLevel()
	}
	return alert.LevelFatal
}

// record layer
var ErrRecordHeaderTooShort = NewFatal(-100, alert.DecodeError, "record header shorter than 5 bytes")
var ErrRecordOverflow = NewFatal(-101, alert.RecordOverflow, "record length exceeds 2^14 + 2048")
var ErrRecordPlaintextOverflow = NewFatal(-102, alert.RecordOverflow, "record plaintext exceeds 2^14")
var ErrRecordBadMAC = NewFatal(-103, alert.BadRecordMAC, "record failed authentication")
var ErrRecordWrongVersion = NewFatal(-104, alert.ProtocolVersion, "record protocol version does not match negotiated version")
var ErrRecordUnknownContentType = NewFatal(-105, alert.UnexpectedMessage, "record content type unknown")
var ErrRecordSequenceOverflow = NewFatal(-106, alert.InternalError, "record sequence number space exhausted")
var ErrRecordAfterClose = NewFatal(-107, alert.UnexpectedMessage, "record received after close_notify")
var ErrRecordFragmentTooLong = NewFatal(-108, alert.InternalError, "outgoing fragment exceeds 2^14")

// change cipher spec
var ErrChangeCipherSpecBody = NewFatal(-120, alert.DecodeError, "change_cipher_spec body must be a single 0x01 byte")
var ErrChangeCipherSpecNoPending = NewFatal(-121, alert.UnexpectedMessage, "change_cipher_spec without pending cipher state")

// handshake message framing
var ErrHandshakeHeaderTooShort = NewFatal(-130, alert.DecodeError, "handshake message header failed to parse")
var ErrHandshakeMessageTooLong = NewFatal(-131, alert.DecodeError, "handshake message length exceeds limit")
var ErrHandshakeMessageParsing = NewFatal(-132, alert.DecodeError, "handshake message body failed to parse")
var ErrHandshakeInterleaved = NewFatal(-133, alert.UnexpectedMessage, "handshake message interleaved with other content types")

// handshake logic
var ErrUnexpectedMessage = NewFatal(-200, alert.UnexpectedMessage, "handshake message not permitted in current state")
var ErrProtocolVersionMismatch = NewFatal(-201, alert.ProtocolVersion, "no mutually supported protocol version")
var ErrNoCommonCipherSuite = NewFatal(-202, alert.HandshakeFailure, "no mutually enabled cipher suite")
var ErrCompressionRequired = NewFatal(-203, alert.IllegalParameter, "peer did not offer null compression")
var ErrDowngradeDetected = NewFatal(-204, alert.IllegalParameter, "server selected version above offer or below floor")
var ErrHelloRandomReuse = NewFatal(-205, alert.IllegalParameter, "peer reused hello random")
var ErrRenegotiationInfoMismatch = NewFatal(-206, alert.HandshakeFailure, "renegotiation_info does not match previous verify data")
var ErrRenegotiationRejected = NewFatal(-207, alert.NoRenegotiation, "renegotiation is not supported by this engine")
var WarnRenegotiationRequested = NewWarning(-208, alert.NoRenegotiation, "peer requested renegotiation")
var ErrFinishedVerifyData = NewFatal(-209, alert.DecryptError, "finished verify_data mismatch")
var ErrCertificateChainEmpty = NewFatal(-210, alert.BadCertificate, "certificate chain is empty")
var ErrCertificateRequired = NewFatal(-211, alert.BadCertificate, "client certificate required but not supplied")
var ErrCertificateParsing = NewFatal(-212, alert.BadCertificate, "certificate failed to parse")
var ErrCertificateUntrusted = NewFatal(-213, alert.CertificateUnknown, "certificate chain not trusted")
var ErrCertificateExpired = NewFatal(-214, alert.CertificateExpired, "certificate expired")
var ErrCertificateUnsupported = NewFatal(-215, alert.UnsupportedCertificate, "certificate type unsupported for negotiated parameters")
var ErrSignatureAlgorithmUnsupported = NewFatal(-216, alert.HandshakeFailure, "no mutually supported signature algorithm")
var ErrSignatureInvalid = NewFatal(-217, alert.DecryptError, "signature verification failed")
var ErrKeyExchangeParsing = NewFatal(-218, alert.DecodeError, "key exchange message failed to parse")
var ErrCurveUnsupported = NewFatal(-219, alert.HandshakeFailure, "no mutually supported elliptic curve group")
var ErrNoServerCertificate = NewFatal(-220, alert.HandshakeFailure, "no usable server identity for negotiated cipher suite")
var ErrALPNNoOverlap = NewFatal(-221, alert.NoApplicationProtocol, "no overlapping application protocol")
var ErrExtensionUnsolicited = NewFatal(-222, alert.UnsupportedExtension, "server echoed extension that was not offered")
var ErrSessionHashRequired = NewFatal(-223, alert.HandshakeFailure, "extended master secret required by configuration")

// engine misuse, never sent as alerts (connection unaffected)
var ErrEngineClosed = NewFatal(-300, alert.InternalError, "engine is closed")
var ErrEngineModeChange = NewFatal(-301, alert.InternalError, "mode cannot be changed after the initial handshake has begun")
var ErrEngineRenegotiation = NewFatal(-302, alert.NoRenegotiation, "renegotiation not supported")
var ErrEngineHandshakeNotComplete = NewFatal(-303, alert.InternalError, "operation requires a completed handshake")
var ErrEngineWrapUnwrapConcurrent = NewFatal(-304, alert.InternalError, "wrap and unwrap are mutually exclusive per engine")
