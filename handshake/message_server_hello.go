// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package handshake

import (
	"errors"

	"github.com/hrissan/tls/constants"
	"github.com/hrissan/tls/format"
	"github.com/hrissan/tls/record"
)

var ErrServerHelloSessionIDTooLong = errors.New("server hello session_id longer than 32 bytes")
var ErrServerHelloCompression = errors.New("server hello selected non-null compression")

type MsgServerHello struct {
	ServerVersion record.ProtocolVersion
	Random        [constants.RandomLength]byte
	SessionID     []byte
	CipherSuite   uint16
	// compression method must be null, not stored
	Extensions ExtensionsSet
}

func (msg *MsgServerHello) Parse(body []byte) (err error) {
	offset := 0
	var version uint16
	if offset, version, err = format.ParserReadUint16(body, offset); err != nil {
		return err
	}
	msg.ServerVersion = record.ProtocolVersion(version)
	if offset, err = format.ParserReadFixedBytes(body, offset, msg.Random[:]); err != nil {
		return err
	}
	var sessionID []byte
	if offset, sessionID, err = format.ParserReadByteLength(body, offset); err != nil {
		return err
	}
	if len(sessionID) > constants.MaxSessionIDLength {
		return ErrServerHelloSessionIDTooLong
	}
	msg.SessionID = append([]byte(nil), sessionID...)
	if offset, msg.CipherSuite, err = format.ParserReadUint16(body, offset); err != nil {
		return err
	}
	if offset, err = format.ParserReadByteConst(body, offset, 0, ErrServerHelloCompression); err != nil {
		return err
	}
	if offset == len(body) { // extensions are optional
		return nil
	}
	var extensions []byte
	if offset, extensions, err = format.ParserReadUint16Length(body, offset); err != nil {
		return err
	}
	if err = format.ParserReadFinish(body, offset); err != nil {
		return err
	}
	return msg.Extensions.Parse(extensions)
}

func (msg *MsgServerHello) Write(body []byte) []byte {
	body = append(body, byte(msg.ServerVersion>>8), byte(msg.ServerVersion))
	body = append(body, msg.Random[:]...)

	body, sessionMark := format.MarkByteOffset(body)
	body = append(body, msg.SessionID...)
	format.FillByteOffset(body, sessionMark)

	body = append(body, byte(msg.CipherSuite>>8), byte(msg.CipherSuite))
	body = append(body, 0) // null compression

	return msg.Extensions.Write(body)
}
