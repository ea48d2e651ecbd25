// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package handshake

import (
	"errors"

	"github.com/hrissan/tls/constants"
)

var ErrFinishedWrongSize = errors.New("finished verify_data must be 12 bytes")

type MsgFinished struct {
	VerifyData [constants.VerifyDataLength]byte
}

func (msg *MsgFinished) Parse(body []byte) error {
	if len(body) != constants.VerifyDataLength {
		return ErrFinishedWrongSize
	}
	copy(msg.VerifyData[:], body)
	return nil
}

func (msg *MsgFinished) Write(body []byte) []byte {
	return append(body, msg.VerifyData[:]...)
}
