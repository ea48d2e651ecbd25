// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package handshake

import (
	"github.com/hrissan/tls/format"
)

// MsgClientKeyExchange has two encodings selected by the negotiated key
// exchange: a 16-bit length prefixed RSA-encrypted premaster [rfc5246:7.4.7.1]
// or an 8-bit length prefixed ECDH point [rfc8422:5.7].
type MsgClientKeyExchange struct {
	Exchange []byte // the encrypted premaster or the raw point, prefix stripped
}

func (msg *MsgClientKeyExchange) ParseRSA(body []byte) (err error) {
	offset := 0
	var exchange []byte
	if offset, exchange, err = format.ParserReadUint16Length(body, offset); err != nil {
		return err
	}
	msg.Exchange = append([]byte(nil), exchange...)
	return format.ParserReadFinish(body, offset)
}

func (msg *MsgClientKeyExchange) ParseECDHE(body []byte) (err error) {
	offset := 0
	var exchange []byte
	if offset, exchange, err = format.ParserReadByteLength(body, offset); err != nil {
		return err
	}
	msg.Exchange = append([]byte(nil), exchange...)
	return format.ParserReadFinish(body, offset)
}

func (msg *MsgClientKeyExchange) WriteRSA(body []byte) []byte {
	body, mark := format.MarkUint16Offset(body)
	body = append(body, msg.Exchange...)
	format.FillUint16Offset(body, mark)
	return body
}

func (msg *MsgClientKeyExchange) WriteECDHE(body []byte) []byte {
	body, mark := format.MarkByteOffset(body)
	body = append(body, msg.Exchange...)
	format.FillByteOffset(body, mark)
	return body
}
