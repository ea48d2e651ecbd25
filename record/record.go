// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package record

import (
	"encoding/binary"
	"strconv"

	"github.com/hrissan/tls/constants"
	"github.com/hrissan/tls/safecast"
	"github.com/hrissan/tls/tlserrors"
)

type ProtocolVersion uint16

const (
	VersionSSL30 ProtocolVersion = 0x0300
	VersionTLS10 ProtocolVersion = 0x0301
	VersionTLS11 ProtocolVersion = 0x0302
	VersionTLS12 ProtocolVersion = 0x0303
)

func (v ProtocolVersion) Known() bool {
	return v >= VersionSSL30 && v <= VersionTLS12
}

func (v ProtocolVersion) String() string {
	switch v {
	case VersionSSL30:
		return "SSLv3"
	case VersionTLS10:
		return "TLSv1"
	case VersionTLS11:
		return "TLSv1.1"
	case VersionTLS12:
		return "TLSv1.2"
	}
	return "version(0x" + strconv.FormatUint(uint64(v), 16) + ")"
}

type ContentType byte

const (
	ContentChangeCipherSpec ContentType = 20
	ContentAlert            ContentType = 21
	ContentHandshake        ContentType = 22
	ContentApplicationData  ContentType = 23
	ContentHeartbeat        ContentType = 24 // [rfc6520] parsed, never acted on
)

func (t ContentType) Known() bool {
	return t >= ContentChangeCipherSpec && t <= ContentHeartbeat
}

// Header is the fixed 5-byte TLS record header [rfc5246:6.2.1]
type Header struct {
	Type    ContentType
	Version ProtocolVersion
	Length  int
}

// ParseHeader requires the full 5 header bytes. The engine peeks it to learn
// how many source bytes one unwrap call needs.
func ParseHeader(data []byte) (hdr Header, err error) {
	if len(data) < constants.RecordHeaderSize {
		return Header{}, tlserrors.ErrRecordHeaderTooShort
	}
	hdr.Type = ContentType(data[0])
	hdr.Version = ProtocolVersion(binary.BigEndian.Uint16(data[1:3]))
	hdr.Length = int(binary.BigEndian.Uint16(data[3:5]))
	if !hdr.Type.Known() {
		return Header{}, tlserrors.ErrRecordUnknownContentType
	}
	if hdr.Length > constants.MaxCiphertextFragmentLength {
		return Header{}, tlserrors.ErrRecordOverflow
	}
	return hdr, nil
}

// RecordSize is the whole record size on the wire, header included.
func (hdr Header) RecordSize() int {
	return constants.RecordHeaderSize + hdr.Length
}

func AppendHeader(out []byte, typ ContentType, version ProtocolVersion, length int) []byte {
	out = append(out, byte(typ))
	out = binary.BigEndian.AppendUint16(out, uint16(version))
	return binary.BigEndian.AppendUint16(out, safecast.Cast[uint16](length))
}
