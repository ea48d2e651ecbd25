// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package keys

import (
	"bytes"
	"crypto"
	"testing"

	"github.com/hrissan/tls/ciphersuite"
	"github.com/hrissan/tls/record"
)


func TestKeyBlockLayout(t *testing.T) {
	suite, ok := ciphersuite.Lookup(ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA)
	if !ok {
		t.Fatal("suite missing")
	}
	var master [48]byte
	for i := range master {
		master[i] = byte(i)
	}
	crand := bytes.Repeat([]byte{3}, 32)
	srand := bytes.Repeat([]byte{4}, 32)

	client, server := KeyBlock(record.VersionTLS12, suite, master[:], crand, srand)
	if len(client.MACKey) != 20 || len(server.MACKey) != 20 {
		t.Fatalf("MAC key lengths %d %d", len(client.MACKey), len(server.MACKey))
	}
	if len(client.Key) != 16 || len(server.Key) != 16 {
		t.Fatalf("cipher key lengths %d %d", len(client.Key), len(server.Key))
	}
	if len(client.IV) != 0 || len(server.IV) != 0 {
		t.Fatal("CBC suites take no fixed IV from the key block")
	}
	if bytes.Equal(client.Key, server.Key) {
		t.Fatal("directions must not share keys")
	}

	// derivation is deterministic
	client2, _ := KeyBlock(record.VersionTLS12, suite, master[:], crand, srand)
	if !bytes.Equal(client.Key, client2.Key) {
		t.Fatal("key block must be deterministic")
	}
}

func TestMasterSecretSeedOrder(t *testing.T) {
	pre := bytes.Repeat([]byte{7}, 48)
	crand := bytes.Repeat([]byte{1}, 32)
	srand := bytes.Repeat([]byte{2}, 32)
	m1 := MasterSecret(record.VersionTLS12, crypto.SHA256, pre, crand, srand)
	m2 := MasterSecret(record.VersionTLS12, crypto.SHA256, pre, srand, crand)
	if m1 == m2 {
		t.Fatal("random order must matter")
	}
}

func TestFinishedLength(t *testing.T) {
	master := bytes.Repeat([]byte{9}, 48)
	v := ComputeFinished(record.VersionTLS12, crypto.SHA256, master, LabelClientFinished, bytes.Repeat([]byte{5}, 32))
	if len(v) != 12 {
		t.Fatalf("verify_data length %d", len(v))
	}
	v2 := ComputeFinished(record.VersionTLS12, crypto.SHA256, master, LabelServerFinished, bytes.Repeat([]byte{5}, 32))
	if v == v2 {
		t.Fatal("labels must produce different verify_data")
	}
}
