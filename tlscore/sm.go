// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package tlscore

import (
	"github.com/hrissan/tls/alert"
	"github.com/hrissan/tls/handshake"
	"github.com/hrissan/tls/tlserrors"
)

type stateID byte

const (
	smIDClosed stateID = iota
	smIDClientExpectServerHello
	smIDClientExpectCertificate
	smIDClientExpectServerHelloDone
	smIDClientExpectChangeCipherSpec
	smIDClientExpectFinished
	smIDServerExpectClientHello
	smIDServerExpectCertificate
	smIDServerExpectClientKeyExchange
	smIDServerExpectCertificateVerify
	smIDServerExpectChangeCipherSpec
	smIDServerExpectFinished
	smIDEstablished
)

var states = [...]state{
	smIDClosed:                        &smClosed{},
	smIDClientExpectServerHello:       &smClientExpectServerHello{},
	smIDClientExpectCertificate:       &smClientExpectCertificate{},
	smIDClientExpectServerHelloDone:   &smClientExpectServerHelloDone{},
	smIDClientExpectChangeCipherSpec:  &smClientExpectChangeCipherSpec{},
	smIDClientExpectFinished:          &smClientExpectFinished{},
	smIDServerExpectClientHello:       &smServerExpectClientHello{},
	smIDServerExpectCertificate:       &smServerExpectCertificate{},
	smIDServerExpectClientKeyExchange: &smServerExpectClientKeyExchange{},
	smIDServerExpectCertificateVerify: &smServerExpectCertificateVerify{},
	smIDServerExpectChangeCipherSpec:  &smServerExpectChangeCipherSpec{},
	smIDServerExpectFinished:          &smServerExpectFinished{},
	smIDEstablished:                   &smEstablished{},
}

// state is one handshake position. Each state overrides exactly the
// messages it permits; everything else falls through to the base and is a
// fatal unexpected_message.
type state interface {
	OnHelloRequest(conn *Connection) error
	OnClientHello(conn *Connection, msg *handshake.MsgClientHello) error
	OnServerHello(conn *Connection, msg *handshake.MsgServerHello) error
	OnCertificate(conn *Connection, msg *handshake.MsgCertificate) error
	OnServerKeyExchange(conn *Connection, msg *handshake.MsgServerKeyExchange) error
	OnCertificateRequest(conn *Connection, msg *handshake.MsgCertificateRequest) error
	OnServerHelloDone(conn *Connection) error
	OnClientKeyExchange(conn *Connection, body []byte) error
	OnCertificateVerify(conn *Connection, raw []byte, msg *handshake.MsgCertificateVerify) error
	OnFinished(conn *Connection, raw []byte, msg *handshake.MsgFinished) error
	OnChangeCipherSpec(conn *Connection) error
}

type smHandshake struct{}

// [rfc5246:7.4.1.1] HelloRequest may be ignored whenever the client is
// already negotiating.
func (*smHandshake) OnHelloRequest(conn *Connection) error {
	return nil
}

func (*smHandshake) OnClientHello(conn *Connection, msg *handshake.MsgClientHello) error {
	return tlserrors.ErrUnexpectedMessage
}

func (*smHandshake) OnServerHello(conn *Connection, msg *handshake.MsgServerHello) error {
	return tlserrors.ErrUnexpectedMessage
}

func (*smHandshake) OnCertificate(conn *Connection, msg *handshake.MsgCertificate) error {
	return tlserrors.ErrUnexpectedMessage
}

func (*smHandshake) OnServerKeyExchange(conn *Connection, msg *handshake.MsgServerKeyExchange) error {
	return tlserrors.ErrUnexpectedMessage
}

func (*smHandshake) OnCertificateRequest(conn *Connection, msg *handshake.MsgCertificateRequest) error {
	return tlserrors.ErrUnexpectedMessage
}

func (*smHandshake) OnServerHelloDone(conn *Connection) error {
	return tlserrors.ErrUnexpectedMessage
}

func (*smHandshake) OnClientKeyExchange(conn *Connection, body []byte) error {
	return tlserrors.ErrUnexpectedMessage
}

func (*smHandshake) OnCertificateVerify(conn *Connection, raw []byte, msg *handshake.MsgCertificateVerify) error {
	return tlserrors.ErrUnexpectedMessage
}

func (*smHandshake) OnFinished(conn *Connection, raw []byte, msg *handshake.MsgFinished) error {
	return tlserrors.ErrUnexpectedMessage
}

func (*smHandshake) OnChangeCipherSpec(conn *Connection) error {
	return tlserrors.ErrChangeCipherSpecNoPending
}

// smClosed: before Start, no inbound traffic is legal.
type smClosed struct {
	smHandshake
}

// smEstablished: the single completed handshake. Renegotiation is
// deliberately unsupported: a server seeing ClientHello again fails the
// connection, a client politely declines HelloRequest with a warning.
type smEstablished struct {
	smHandshake
}

func (*smEstablished) OnHelloRequest(conn *Connection) error {
	conn.queueAlert(alert.LevelWarning, alert.NoRenegotiation)
	return nil
}

func (*smEstablished) OnClientHello(conn *Connection, msg *handshake.MsgClientHello) error {
	return tlserrors.ErrRenegotiationRejected
}
