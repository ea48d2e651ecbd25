// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package handshake

import (
	"github.com/hrissan/tls/constants"
	"github.com/hrissan/tls/format"
	"github.com/hrissan/tls/tlserrors"
)

// Message is one whole handshake message. Body aliases assembler memory and
// must be parsed before the next record is offered.
type Message struct {
	MsgType MsgType
	Body    []byte
}

// Write appends the wire form, 4-byte header plus body.
func (msg Message) Write(out []byte) []byte {
	out = append(out, byte(msg.MsgType))
	out = format.AppendUint24(out, uint32(len(msg.Body)))
	return append(out, msg.Body...)
}

// Assembler reassembles handshake messages from record fragments. Messages
// may span records and several may share one record [rfc5246:6.2.1]; a flight
// never interleaves with other content types, which the connection enforces
// before pushing.
type Assembler struct {
	buf []byte
	off int // consumed prefix of buf
}

func (a *Assembler) Push(fragment []byte) error {
	if a.off == len(a.buf) {
		a.buf = a.buf[:0]
		a.off = 0
	}
	if len(a.buf)-a.off+len(fragment) > constants.MaxHandshakeMessageLength+constants.HandshakeHeaderSize {
		return tlserrors.ErrHandshakeMessageTooLong
	}
	a.buf = append(a.buf, fragment...)
	return nil
}

// Empty reports whether no partial message is pending, i.e. whether content
// types may switch.
func (a *Assembler) Empty() bool { return a.off == len(a.buf) }

// Next pops one complete message. raw is the header-included wire form for
// the transcript hash. Both alias the assembler and are valid until the
// following Push.
func (a *Assembler) Next() (msg Message, raw []byte, ok bool, err error) {
	pending := a.buf[a.off:]
	if len(pending) < constants.HandshakeHeaderSize {
		return Message{}, nil, false, nil
	}
	length := int(pending[1])<<16 | int(pending[2])<<8 | int(pending[3])
	if length > constants.MaxHandshakeMessageLength {
		return Message{}, nil, false, tlserrors.ErrHandshakeMessageTooLong
	}
	end := constants.HandshakeHeaderSize + length
	if len(pending) < end {
		return Message{}, nil, false, nil
	}
	a.off += end
	return Message{MsgType: MsgType(pending[0]), Body: pending[constants.HandshakeHeaderSize:end]}, pending[:end], true, nil
}
