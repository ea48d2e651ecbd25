// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package keys

import (
	"bytes"
	"crypto"
	"encoding/hex"
	"testing"

	"github.com/hrissan/tls/record"
)

func h2b(t *testing.T, s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// Widely published TLS 1.2 PRF/SHA-256 test vector.
func TestPRF12SHA256Vector(t *testing.T) {
	secret := h2b(t, "9bbe436ba940f017b17652849a71db35")
	seed := h2b(t, "a0ba9f936cda311827a6f796ffd5198c")
	expected := h2b(t,
		"e3f229ba727be17b8d122620557cd453c2aab21d07c3d495329b52d4e61edb5a"+
			"6b301791e90d35c9c9a46b4e14baf9af0fa022f7077def17abfd3797c0564bab"+
			"4fbc91666e9def9b97fce34f796789baa48082d122ee42c5a72e5a5110fff701"+
			"87347b66")

	out := make([]byte, len(expected))
	PRF(record.VersionTLS12, crypto.SHA256, out, secret, "test label", seed)
	if !bytes.Equal(out, expected) {
		t.Fatalf("PRF mismatch\n got %x\nwant %x", out, expected)
	}
}

func TestPRF10SplitsSecret(t *testing.T) {
	secret := h2b(t, "0102030405060708090a0b0c0d0e0f10")
	seed := []byte("seed")
	out1 := make([]byte, 48)
	out2 := make([]byte, 48)
	PRF(record.VersionTLS10, 0, out1, secret, "master secret", seed)
	PRF(record.VersionTLS11, 0, out2, secret, "master secret", seed)
	if !bytes.Equal(out1, out2) {
		t.Fatal("TLS 1.0 and 1.1 share the PRF")
	}
	// a different label must diverge immediately
	out3 := make([]byte, 48)
	PRF(record.VersionTLS10, 0, out3, secret, "key expansion", seed)
	if bytes.Equal(out1, out3) {
		t.Fatal("label not mixed into PRF output")
	}
}

func TestTranscriptDigestsByVersion(t *testing.T) {
	var tr Transcript
	tr.Write([]byte("some handshake message"))

	tr.SetVersion(record.VersionTLS10, 0)
	if got := len(tr.Sum()); got != 36 { // MD5 || SHA1
		t.Fatalf("pre-1.2 transcript digest length %d", got)
	}
	tr.SetVersion(record.VersionTLS12, crypto.SHA256)
	if got := len(tr.Sum()); got != 32 {
		t.Fatalf("TLS 1.2 transcript digest length %d", got)
	}
	if got := len(tr.SumHash(crypto.SHA384)); got != 48 {
		t.Fatalf("explicit hash digest length %d", got)
	}
}

func TestExportKeyingMaterialDeterministic(t *testing.T) {
	master := h2b(t, "9bbe436ba940f017b17652849a71db359bbe436ba940f017b17652849a71db35"+
		"9bbe436ba940f017b17652849a71db35")
	crand := bytes.Repeat([]byte{1}, 32)
	srand := bytes.Repeat([]byte{2}, 32)

	a := ExportKeyingMaterial(record.VersionTLS12, crypto.SHA256, master, "EXPORTER-label", nil, false, crand, srand, 32)
	b := ExportKeyingMaterial(record.VersionTLS12, crypto.SHA256, master, "EXPORTER-label", nil, false, crand, srand, 32)
	if !bytes.Equal(a, b) {
		t.Fatal("exporter must be deterministic")
	}
	// empty context differs from absent context
	c := ExportKeyingMaterial(record.VersionTLS12, crypto.SHA256, master, "EXPORTER-label", []byte{}, true, crand, srand, 32)
	if bytes.Equal(a, c) {
		t.Fatal("empty context must differ from absent context")
	}
}

func TestZeroize(t *testing.T) {
	b := []byte{1, 2, 3}
	Zeroize(b)
	if b[0] != 0 || b[1] != 0 || b[2] != 0 {
		t.Fatal("not scrubbed")
	}
}
