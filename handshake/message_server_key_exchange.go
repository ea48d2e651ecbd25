// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package handshake

import (
	"errors"

	"github.com/hrissan/tls/format"
)

var ErrServerKeyExchangeCurveType = errors.New("server key exchange uses non-named curve")

// MsgServerKeyExchange carries ephemeral ECDH params and their signature
// [rfc8422:5.4]. Params keeps the raw serialized ECParameters+point, the
// exact bytes the signature covers together with both hello randoms.
type MsgServerKeyExchange struct {
	CurveID   uint16
	PublicKey []byte
	Params    []byte

	SignatureAndHashCode uint16 // TLS 1.2 only
	Signature            []byte
}

func (msg *MsgServerKeyExchange) Parse(body []byte, tls12 bool) (err error) {
	offset := 0
	if offset, err = format.ParserReadByteConst(body, offset, 3 /* named_curve */, ErrServerKeyExchangeCurveType); err != nil {
		return err
	}
	if offset, msg.CurveID, err = format.ParserReadUint16(body, offset); err != nil {
		return err
	}
	var publicKey []byte
	if offset, publicKey, err = format.ParserReadByteLength(body, offset); err != nil {
		return err
	}
	msg.PublicKey = append([]byte(nil), publicKey...)
	msg.Params = append([]byte(nil), body[:offset]...)

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

// WriteParams appends only the ECDH parameters, used both for the message
// body and as signature input.
func (msg *MsgServerKeyExchange) WriteParams(body []byte) []byte {
	body = append(body, 3) // named_curve
	body = append(body, byte(msg.CurveID>>8), byte(msg.CurveID))
	body, mark := format.MarkByteOffset(body)
	body = append(body, msg.PublicKey...)
	format.FillByteOffset(body, mark)
	return body
}

func (msg *MsgServerKeyExchange) Write(body []byte, tls12 bool) []byte {
	body = msg.WriteParams(body)
	if tls12 {
		body = append(body, byte(msg.SignatureAndHashCode>>8), byte(msg.SignatureAndHashCode))
	}
	body, mark := format.MarkUint16Offset(body)
	body = append(body, msg.Signature...)
	format.FillUint16Offset(body, mark)
	return body
}
