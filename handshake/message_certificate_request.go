// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package handshake

import (
	"github.com/hrissan/tls/format"
)

// client certificate types [rfc5246:7.4.4]
const (
	ClientCertTypeRSASign   byte = 1
	ClientCertTypeECDSASign byte = 64
)

type MsgCertificateRequest struct {
	CertificateTypes    []byte
	SignatureAlgorithms []uint16 // TLS 1.2 only
	// DER-encoded distinguished names; may be empty (any CA acceptable)
	Authorities [][]byte
}

func (msg *MsgCertificateRequest) Parse(body []byte, tls12 bool) (err error) {
	offset := 0
	var certTypes []byte
	if offset, certTypes, err = format.ParserReadByteLength(body, offset); err != nil {
		return err
	}
	msg.CertificateTypes = append([]byte(nil), certTypes...)
	if tls12 {
		var sigAlgs []byte
		if offset, sigAlgs, err = format.ParserReadUint16Length(body, offset); err != nil {
			return err
		}
		if len(sigAlgs)%2 != 0 {
			return format.ErrMessageBodyExcessBytes
		}
		msg.SignatureAlgorithms = msg.SignatureAlgorithms[:0]
		for i := 0; i < len(sigAlgs); i += 2 {
			msg.SignatureAlgorithms = append(msg.SignatureAlgorithms, uint16(sigAlgs[i])<<8|uint16(sigAlgs[i+1]))
		}
	}
	var authorities []byte
	if offset, authorities, err = format.ParserReadUint16Length(body, offset); err != nil {
		return err
	}
	if err = format.ParserReadFinish(body, offset); err != nil {
		return err
	}
	msg.Authorities = msg.Authorities[:0]
	listOffset := 0
	for listOffset < len(authorities) {
		var name []byte
		if listOffset, name, err = format.ParserReadUint16Length(authorities, listOffset); err != nil {
			return err
		}
		msg.Authorities = append(msg.Authorities, append([]byte(nil), name...))
	}
	return nil
}

func (msg *MsgCertificateRequest) Write(body []byte, tls12 bool) []byte {
	body, typesMark := format.MarkByteOffset(body)
	body = append(body, msg.CertificateTypes...)
	format.FillByteOffset(body, typesMark)

	if tls12 {
		var sigMark int
		body, sigMark = format.MarkUint16Offset(body)
		for _, code := range msg.SignatureAlgorithms {
			body = append(body, byte(code>>8), byte(code))
		}
		format.FillUint16Offset(body, sigMark)
	}

	body, authMark := format.MarkUint16Offset(body)
	var nameMark int
	for _, name := range msg.Authorities {
		body, nameMark = format.MarkUint16Offset(body)
		body = append(body, name...)
		format.FillUint16Offset(body, nameMark)
	}
	format.FillUint16Offset(body, authMark)
	return body
}
