// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package handshake

import (
	"errors"

	"github.com/hrissan/tls/format"
)

// extension numbers this engine processes, everything else is skipped on
// parse and never emitted
const (
	extServerName           uint16 = 0      // [rfc6066:3]
	extSupportedGroups      uint16 = 0x000A // [rfc8422:5.1.1]
	extECPointFormats       uint16 = 0x000B // [rfc8422:5.1.2]
	extSignatureAlgorithms  uint16 = 0x000D // [rfc5246:7.4.1.4.1]
	extALPN                 uint16 = 0x0010 // [rfc7301:3.1]
	extExtendedMasterSecret uint16 = 0x0017 // [rfc7627:5.1]
	extRenegotiationInfo    uint16 = 0xFF01 // [rfc5746:3.2]
)

// named groups [rfc8422:5.1.1]
const (
	GroupSecp256r1 uint16 = 23
	GroupSecp384r1 uint16 = 24
	GroupX25519    uint16 = 29
)

const pointFormatUncompressed byte = 0

var ErrServerNameParsing = errors.New("server_name extension failed to parse")
var ErrALPNParsing = errors.New("alpn extension failed to parse")
var ErrRenegotiationInfoParsing = errors.New("renegotiation_info extension failed to parse")
var ErrExtensionNotEmpty = errors.New("extension body must be empty")

type ExtensionsSet struct {
	ServerNameSet bool
	ServerName    string // empty in the server's acknowledging echo

	SupportedGroupsSet bool
	SupportedGroups    []uint16

	ECPointFormatsSet bool

	SignatureAlgorithmsSet bool
	SignatureAlgorithms    []uint16

	ALPNSet       bool
	ALPNProtocols []string

	ExtendedMasterSecret bool

	RenegotiationInfoSet bool
	RenegotiationInfo    []byte
}

func (msg *ExtensionsSet) parseServerName(body []byte) (err error) {
	if len(body) == 0 { // server echo carries no name list
		msg.ServerNameSet = true
		return nil
	}
	offset := 0
	var list []byte
	if offset, list, err = format.ParserReadUint16Length(body, offset); err != nil {
		return err
	}
	if err = format.ParserReadFinish(body, offset); err != nil {
		return err
	}
	listOffset := 0
	for listOffset < len(list) {
		var nameType byte
		if listOffset, nameType, err = format.ParserReadByte(list, listOffset); err != nil {
			return err
		}
		var name []byte
		if listOffset, name, err = format.ParserReadUint16Length(list, listOffset); err != nil {
			return err
		}
		if nameType == 0 { // host_name
			msg.ServerNameSet = true
			msg.ServerName = string(name)
		}
	}
	return nil
}

func (msg *ExtensionsSet) parseUint16List(body []byte) (values []uint16, err error) {
	offset := 0
	var list []byte
	if offset, list, err = format.ParserReadUint16Length(body, offset); err != nil {
		return nil, err
	}
	if err = format.ParserReadFinish(body, offset); err != nil {
		return nil, err
	}
	if len(list)%2 != 0 {
		return nil, format.ErrMessageBodyExcessBytes
	}
	for i := 0; i < len(list); i += 2 {
		values = append(values, uint16(list[i])<<8|uint16(list[i+1]))
	}
	return values, nil
}

func (msg *ExtensionsSet) parseALPN(body []byte) (err error) {
	offset := 0
	var list []byte
	if offset, list, err = format.ParserReadUint16Length(body, offset); err != nil {
		return err
	}
	if err = format.ParserReadFinish(body, offset); err != nil {
		return err
	}
	listOffset := 0
	for listOffset < len(list) {
		var proto []byte
		if listOffset, proto, err = format.ParserReadByteLength(list, listOffset); err != nil {
			return err
		}
		if len(proto) == 0 {
			return ErrALPNParsing
		}
		msg.ALPNProtocols = append(msg.ALPNProtocols, string(proto))
	}
	msg.ALPNSet = true
	return nil
}

func (msg *ExtensionsSet) Parse(body []byte) (err error) {
	offset := 0
	for offset < len(body) {
		var extensionType uint16
		if offset, extensionType, err = format.ParserReadUint16(body, offset); err != nil {
			return err
		}
		var extensionBody []byte
		if offset, extensionBody, err = format.ParserReadUint16Length(body, offset); err != nil {
			return err
		}
		switch extensionType { // skip unknown/not needed
		case extServerName:
			if err = msg.parseServerName(extensionBody); err != nil {
				return err
			}
		case extSupportedGroups:
			if msg.SupportedGroups, err = msg.parseUint16List(extensionBody); err != nil {
				return err
			}
			msg.SupportedGroupsSet = true
		case extECPointFormats:
			if _, _, err = format.ParserReadByteLength(extensionBody, 0); err != nil {
				return err
			}
			msg.ECPointFormatsSet = true
		case extSignatureAlgorithms:
			if msg.SignatureAlgorithms, err = msg.parseUint16List(extensionBody); err != nil {
				return err
			}
			msg.SignatureAlgorithmsSet = true
		case extALPN:
			if err = msg.parseALPN(extensionBody); err != nil {
				return err
			}
		case extExtendedMasterSecret:
			if len(extensionBody) != 0 {
				return ErrExtensionNotEmpty
			}
			msg.ExtendedMasterSecret = true
		case extRenegotiationInfo:
			var info []byte
			if _, info, err = format.ParserReadByteLength(extensionBody, 0); err != nil {
				return err
			}
			msg.RenegotiationInfoSet = true
			msg.RenegotiationInfo = append([]byte(nil), info...)
		}
	}
	return nil
}

// Write appends the extension block. An empty set writes nothing at all,
// hello messages without extensions omit the block entirely.
func (msg *ExtensionsSet) Write(body []byte) []byte {
	if !msg.ServerNameSet && !msg.SupportedGroupsSet && !msg.ECPointFormatsSet &&
		!msg.SignatureAlgorithmsSet && !msg.ALPNSet && !msg.ExtendedMasterSecret &&
		!msg.RenegotiationInfoSet {
		return body
	}
	var mark, listMark, itemMark int
	body, blockMark := format.MarkUint16Offset(body)

	if msg.ServerNameSet {
		body = appendExtensionHeader(body, extServerName)
		body, mark = format.MarkUint16Offset(body)
		if msg.ServerName != "" {
			body, listMark = format.MarkUint16Offset(body)
			body = append(body, 0) // host_name
			body, itemMark = format.MarkUint16Offset(body)
			body = append(body, msg.ServerName...)
			format.FillUint16Offset(body, itemMark)
			format.FillUint16Offset(body, listMark)
		}
		format.FillUint16Offset(body, mark)
	}
	if msg.SupportedGroupsSet {
		body = appendExtensionHeader(body, extSupportedGroups)
		body = appendUint16ListExtension(body, msg.SupportedGroups)
	}
	if msg.ECPointFormatsSet {
		body = appendExtensionHeader(body, extECPointFormats)
		body, mark = format.MarkUint16Offset(body)
		body = append(body, 1, pointFormatUncompressed)
		format.FillUint16Offset(body, mark)
	}
	if msg.SignatureAlgorithmsSet {
		body = appendExtensionHeader(body, extSignatureAlgorithms)
		body = appendUint16ListExtension(body, msg.SignatureAlgorithms)
	}
	if msg.ALPNSet {
		body = appendExtensionHeader(body, extALPN)
		body, mark = format.MarkUint16Offset(body)
		body, listMark = format.MarkUint16Offset(body)
		for _, proto := range msg.ALPNProtocols {
			body, itemMark = format.MarkByteOffset(body)
			body = append(body, proto...)
			format.FillByteOffset(body, itemMark)
		}
		format.FillUint16Offset(body, listMark)
		format.FillUint16Offset(body, mark)
	}
	if msg.ExtendedMasterSecret {
		body = appendExtensionHeader(body, extExtendedMasterSecret)
		body = append(body, 0, 0) // empty body
	}
	if msg.RenegotiationInfoSet {
		body = appendExtensionHeader(body, extRenegotiationInfo)
		body, mark = format.MarkUint16Offset(body)
		body, itemMark = format.MarkByteOffset(body)
		body = append(body, msg.RenegotiationInfo...)
		format.FillByteOffset(body, itemMark)
		format.FillUint16Offset(body, mark)
	}

	format.FillUint16Offset(body, blockMark)
	return body
}

func appendExtensionHeader(body []byte, extensionType uint16) []byte {
	return append(body, byte(extensionType>>8), byte(extensionType))
}

func appendUint16ListExtension(body []byte, values []uint16) []byte {
	body, mark := format.MarkUint16Offset(body)
	body, listMark := format.MarkUint16Offset(body)
	for _, v := range values {
		body = append(body, byte(v>>8), byte(v))
	}
	format.FillUint16Offset(body, listMark)
	format.FillUint16Offset(body, mark)
	return body
}
