// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package handshake

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrissan/tls/record"
)

func TestClientHelloRoundtrip(t *testing.T) {
	msg := &MsgClientHello{
		ClientVersion:   record.VersionTLS12,
		SessionID:       []byte{1, 2, 3, 4},
		CipherSuites:    []uint16{0xC02F, 0x002F, 0x00FF},
		NullCompression: true,
	}
	for i := range msg.Random {
		msg.Random[i] = byte(i)
	}
	msg.Extensions.ServerNameSet = true
	msg.Extensions.ServerName = "example.org"
	msg.Extensions.SupportedGroupsSet = true
	msg.Extensions.SupportedGroups = []uint16{GroupX25519, GroupSecp256r1}
	msg.Extensions.ECPointFormatsSet = true
	msg.Extensions.SignatureAlgorithmsSet = true
	msg.Extensions.SignatureAlgorithms = []uint16{0x0403, 0x0401}
	msg.Extensions.ALPNSet = true
	msg.Extensions.ALPNProtocols = []string{"h2", "http/1.1"}
	msg.Extensions.ExtendedMasterSecret = true
	msg.Extensions.RenegotiationInfoSet = true

	body := msg.Write(nil)
	parsed := &MsgClientHello{}
	require.NoError(t, parsed.Parse(body))

	assert.Equal(t, msg.ClientVersion, parsed.ClientVersion)
	assert.Equal(t, msg.Random, parsed.Random)
	assert.Equal(t, msg.SessionID, parsed.SessionID)
	assert.Equal(t, msg.CipherSuites, parsed.CipherSuites)
	assert.True(t, parsed.NullCompression)
	assert.Equal(t, "example.org", parsed.Extensions.ServerName)
	assert.Equal(t, msg.Extensions.SupportedGroups, parsed.Extensions.SupportedGroups)
	assert.Equal(t, msg.Extensions.SignatureAlgorithms, parsed.Extensions.SignatureAlgorithms)
	assert.Equal(t, msg.Extensions.ALPNProtocols, parsed.Extensions.ALPNProtocols)
	assert.True(t, parsed.Extensions.ExtendedMasterSecret)
	assert.True(t, parsed.Extensions.RenegotiationInfoSet)
	assert.Empty(t, parsed.Extensions.RenegotiationInfo)
}

func TestClientHelloNoExtensions(t *testing.T) {
	msg := &MsgClientHello{
		ClientVersion:   record.VersionTLS10,
		CipherSuites:    []uint16{0x002F},
		NullCompression: true,
	}
	body := msg.Write(nil)
	parsed := &MsgClientHello{}
	require.NoError(t, parsed.Parse(body))
	assert.False(t, parsed.Extensions.ServerNameSet)
}

func TestServerHelloRoundtrip(t *testing.T) {
	msg := &MsgServerHello{
		ServerVersion: record.VersionTLS12,
		SessionID:     bytes.Repeat([]byte{7}, 32),
		CipherSuite:   0xC02F,
	}
	msg.Extensions.ServerNameSet = true // empty acknowledging echo
	msg.Extensions.ExtendedMasterSecret = true
	msg.Extensions.ALPNSet = true
	msg.Extensions.ALPNProtocols = []string{"h2"}

	body := msg.Write(nil)
	parsed := &MsgServerHello{}
	require.NoError(t, parsed.Parse(body))
	assert.Equal(t, msg.SessionID, parsed.SessionID)
	assert.Equal(t, msg.CipherSuite, parsed.CipherSuite)
	assert.True(t, parsed.Extensions.ServerNameSet)
	assert.Equal(t, []string{"h2"}, parsed.Extensions.ALPNProtocols)
}

func TestCertificateRoundtrip(t *testing.T) {
	msg := &MsgCertificate{Chain: [][]byte{{1, 2, 3}, {4, 5}}}
	body := msg.Write(nil)
	parsed := &MsgCertificate{}
	require.NoError(t, parsed.Parse(body))
	assert.Equal(t, msg.Chain, parsed.Chain)

	empty := &MsgCertificate{}
	body = empty.Write(nil)
	parsed = &MsgCertificate{}
	require.NoError(t, parsed.Parse(body))
	assert.Empty(t, parsed.Chain)
}

func TestServerKeyExchangeRoundtrip(t *testing.T) {
	msg := &MsgServerKeyExchange{
		CurveID:              GroupX25519,
		PublicKey:            bytes.Repeat([]byte{9}, 32),
		SignatureAndHashCode: 0x0403,
		Signature:            []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}
	body := msg.Write(nil, true)
	parsed := &MsgServerKeyExchange{}
	require.NoError(t, parsed.Parse(body, true))
	assert.Equal(t, msg.CurveID, parsed.CurveID)
	assert.Equal(t, msg.PublicKey, parsed.PublicKey)
	assert.Equal(t, msg.SignatureAndHashCode, parsed.SignatureAndHashCode)
	assert.Equal(t, msg.Signature, parsed.Signature)
	// Params must be exactly the signed prefix
	assert.Equal(t, msg.WriteParams(nil), parsed.Params)

	// TLS 1.0 form has no algorithm pair
	body10 := msg.Write(nil, false)
	parsed10 := &MsgServerKeyExchange{}
	require.NoError(t, parsed10.Parse(body10, false))
	assert.Equal(t, msg.PublicKey, parsed10.PublicKey)
	assert.Zero(t, parsed10.SignatureAndHashCode)
}

func TestCertificateRequestRoundtrip(t *testing.T) {
	msg := &MsgCertificateRequest{
		CertificateTypes:    []byte{ClientCertTypeRSASign, ClientCertTypeECDSASign},
		SignatureAlgorithms: []uint16{0x0403, 0x0401},
		Authorities:         [][]byte{{0x30, 0x00}},
	}
	body := msg.Write(nil, true)
	parsed := &MsgCertificateRequest{}
	require.NoError(t, parsed.Parse(body, true))
	assert.Equal(t, msg.CertificateTypes, parsed.CertificateTypes)
	assert.Equal(t, msg.SignatureAlgorithms, parsed.SignatureAlgorithms)
	assert.Equal(t, msg.Authorities, parsed.Authorities)
}

func TestAssemblerFragmentation(t *testing.T) {
	fin := &MsgFinished{}
	copy(fin.VerifyData[:], bytes.Repeat([]byte{3}, 12))
	wire := Message{MsgType: MsgTypeFinished, Body: fin.Write(nil)}.Write(nil)

	var asm Assembler
	// push in three fragments, message only completes on the last
	require.NoError(t, asm.Push(wire[:3]))
	_, _, ok, err := asm.Next()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, asm.Push(wire[3:10]))
	_, _, ok, err = asm.Next()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, asm.Push(wire[10:]))
	msg, raw, ok, err := asm.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, MsgTypeFinished, msg.MsgType)
	assert.Equal(t, wire, raw)
	assert.True(t, asm.Empty())
}

func TestAssemblerTwoMessagesOneFragment(t *testing.T) {
	done := Message{MsgType: MsgTypeServerHelloDone}.Write(nil)
	fin := Message{MsgType: MsgTypeFinished, Body: make([]byte, 12)}.Write(nil)

	var asm Assembler
	require.NoError(t, asm.Push(append(append([]byte(nil), done...), fin...)))

	msg, _, ok, err := asm.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, MsgTypeServerHelloDone, msg.MsgType)

	msg, _, ok, err = asm.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, MsgTypeFinished, msg.MsgType)
	assert.True(t, asm.Empty())
}
