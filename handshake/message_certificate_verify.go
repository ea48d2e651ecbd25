// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package handshake

import (
	"github.com/hrissan/tls/format"
)

// [rfc5246:7.4.8] signature over the transcript up to this message
type MsgCertificateVerify struct {
	SignatureAndHashCode uint16 // TLS 1.2 only
	Signature            []byte
}

func (msg *MsgCertificateVerify) Parse(body []byte, tls12 bool) (err error) {
	offset := 0
	if tls12 {
		if offset, msg.SignatureAndHashCode, err = format.ParserReadUint16(body, offset); err != nil {
			return err
		}
	}
	var signature []byte
	if offset, signature, err = format.ParserReadUint16Length(body, offset); err != nil {
		return err
	}
	msg.Signature = append([]byte(nil), signature...)
	return format.ParserReadFinish(body, offset)
}

func (msg *MsgCertificateVerify) Write(body []byte, tls12 bool) []byte {
	if tls12 {
		body = append(body, byte(msg.SignatureAndHashCode>>8), byte(msg.SignatureAndHashCode))
	}
	body, mark := format.MarkUint16Offset(body)
	body = append(body, msg.Signature...)
	format.FillUint16Offset(body, mark)
	return body
}
