// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package handshake

import (
	"errors"

	"github.com/hrissan/tls/constants"
	"github.com/hrissan/tls/format"
	"github.com/hrissan/tls/record"
)

var ErrClientHelloSessionIDTooLong = errors.New("client hello session_id longer than 32 bytes")
var ErrClientHelloNoCipherSuites = errors.New("client hello offers no cipher suites")
var ErrClientHelloNoCompression = errors.New("client hello offers no compression methods")

type MsgClientHello struct {
	ClientVersion record.ProtocolVersion
	Random        [constants.RandomLength]byte
	SessionID     []byte
	CipherSuites  []uint16
	// compression methods are checked to contain null, not stored
	NullCompression bool
	Extensions      ExtensionsSet
}

func (msg *MsgClientHello) Parse(body []byte) (err error) {
	offset := 0
	var version uint16
	if offset, version, err = format.ParserReadUint16(body, offset); err != nil {
		return err
	}
	msg.ClientVersion = record.ProtocolVersion(version)
	if offset, err = format.ParserReadFixedBytes(body, offset, msg.Random[:]); err != nil {
		return err
	}
	var sessionID []byte
	if offset, sessionID, err = format.ParserReadByteLength(body, offset); err != nil {
		return err
	}
	if len(sessionID) > constants.MaxSessionIDLength {
		return ErrClientHelloSessionIDTooLong
	}
	msg.SessionID = append([]byte(nil), sessionID...)
	var suites []byte
	if offset, suites, err = format.ParserReadUint16Length(body, offset); err != nil {
		return err
	}
	if len(suites) == 0 || len(suites)%2 != 0 {
		return ErrClientHelloNoCipherSuites
	}
	msg.CipherSuites = msg.CipherSuites[:0]
	for i := 0; i < len(suites); i += 2 {
		msg.CipherSuites = append(msg.CipherSuites, uint16(suites[i])<<8|uint16(suites[i+1]))
	}
	var compressions []byte
	if offset, compressions, err = format.ParserReadByteLength(body, offset); err != nil {
		return err
	}
	if len(compressions) == 0 {
		return ErrClientHelloNoCompression
	}
	for _, c := range compressions {
		if c == 0 {
			msg.NullCompression = true
		}
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

func (msg *MsgClientHello) Write(body []byte) []byte {
	body = append(body, byte(msg.ClientVersion>>8), byte(msg.ClientVersion))
	body = append(body, msg.Random[:]...)

	body, sessionMark := format.MarkByteOffset(body)
	body = append(body, msg.SessionID...)
	format.FillByteOffset(body, sessionMark)

	body, suitesMark := format.MarkUint16Offset(body)
	for _, s := range msg.CipherSuites {
		body = append(body, byte(s>>8), byte(s))
	}
	format.FillUint16Offset(body, suitesMark)

	body = append(body, 1, 0) // null compression only

	return msg.Extensions.Write(body)
}
