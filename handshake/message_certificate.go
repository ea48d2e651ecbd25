// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package handshake

import (
	"errors"

	"github.com/hrissan/tls/constants"
	"github.com/hrissan/tls/format"
)

var ErrCertificateChainTooLong = errors.New("certificate chain too long")

// MsgCertificate is the DER chain, leaf first [rfc5246:7.4.2].
// An empty chain is valid on the wire: a client declining authentication.
type MsgCertificate struct {
	Chain [][]byte
}

func (msg *MsgCertificate) Parse(body []byte) (err error) {
	offset := 0
	var list []byte
	if offset, list, err = format.ParserReadUint24Length(body, offset); err != nil {
		return err
	}
	if err = format.ParserReadFinish(body, offset); err != nil {
		return err
	}
	msg.Chain = msg.Chain[:0]
	listOffset := 0
	for listOffset < len(list) {
		var cert []byte
		if listOffset, cert, err = format.ParserReadUint24Length(list, listOffset); err != nil {
			return err
		}
		if len(msg.Chain) >= constants.MaxCertificateChainLength {
			return ErrCertificateChainTooLong
		}
		msg.Chain = append(msg.Chain, append([]byte(nil), cert...))
	}
	return nil
}

func (msg *MsgCertificate) Write(body []byte) []byte {
	body, listMark := format.MarkUint24Offset(body)
	var certMark int
	for _, cert := range msg.Chain {
		body, certMark = format.MarkUint24Offset(body)
		body = append(body, cert...)
		format.FillUint24Offset(body, certMark)
	}
	format.FillUint24Offset(body, listMark)
	return body
}
