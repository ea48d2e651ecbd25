// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package handshake

import "strconv"

type MsgType byte

// [rfc5246:7.4]
const (
	MsgTypeHelloRequest       MsgType = 0
	MsgTypeClientHello        MsgType = 1
	MsgTypeServerHello        MsgType = 2
	MsgTypeCertificate        MsgType = 11
	MsgTypeServerKeyExchange  MsgType = 12
	MsgTypeCertificateRequest MsgType = 13
	MsgTypeServerHelloDone    MsgType = 14
	MsgTypeCertificateVerify  MsgType = 15
	MsgTypeClientKeyExchange  MsgType = 16
	MsgTypeFinished           MsgType = 20
)

func (t MsgType) String() string {
	switch t {
	case MsgTypeHelloRequest:
		return "HelloRequest"
	case MsgTypeClientHello:
		return "ClientHello"
	case MsgTypeServerHello:
		return "ServerHello"
	case MsgTypeCertificate:
		return "Certificate"
	case MsgTypeServerKeyExchange:
		return "ServerKeyExchange"
	case MsgTypeCertificateRequest:
		return "CertificateRequest"
	case MsgTypeServerHelloDone:
		return "ServerHelloDone"
	case MsgTypeCertificateVerify:
		return "CertificateVerify"
	case MsgTypeClientKeyExchange:
		return "ClientKeyExchange"
	case MsgTypeFinished:
		return "Finished"
	}
	return "handshake(" + strconv.Itoa(int(t)) + ")"
}
