// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrissan/tls/constants"
	"github.com/hrissan/tls/tlserrors"
)

func TestParseHeader(t *testing.T) {
	hdr, err := ParseHeader([]byte{22, 3, 3, 0, 5, 1, 2, 3, 4, 5})
	require.NoError(t, err)
	assert.Equal(t, ContentHandshake, hdr.Type)
	assert.Equal(t, VersionTLS12, hdr.Version)
	assert.Equal(t, 5, hdr.Length)
	assert.Equal(t, constants.RecordHeaderSize+5, hdr.RecordSize())
}

func TestParseHeaderTooShort(t *testing.T) {
	_, err := ParseHeader([]byte{22, 3, 3, 0})
	assert.ErrorIs(t, err, tlserrors.ErrRecordHeaderTooShort)
}

func TestParseHeaderUnknownType(t *testing.T) {
	_, err := ParseHeader([]byte{99, 3, 3, 0, 1})
	assert.ErrorIs(t, err, tlserrors.ErrRecordUnknownContentType)
}

func TestParseHeaderOverflow(t *testing.T) {
	// length 2^14 + 2048 + 1
	_, err := ParseHeader([]byte{23, 3, 3, 0x48, 0x01})
	assert.ErrorIs(t, err, tlserrors.ErrRecordOverflow)
}

func TestPipelineNullRoundtrip(t *testing.T) {
	out := NewPipeline()
	in := NewPipeline()

	payload := []byte("attack at dawn")
	rec, err := out.SealRecord(nil, ContentApplicationData, VersionTLS12, payload)
	require.NoError(t, err)

	hdr, err := ParseHeader(rec)
	require.NoError(t, err)
	assert.Equal(t, len(payload), hdr.Length)

	plain, err := in.OpenRecord(hdr, rec[constants.RecordHeaderSize:])
	require.NoError(t, err)
	assert.Equal(t, payload, plain)
	assert.Equal(t, uint64(1), out.Sequence())
	assert.Equal(t, uint64(1), in.Sequence())
}

func TestPipelineFragmentTooLong(t *testing.T) {
	out := NewPipeline()
	_, err := out.SealRecord(nil, ContentApplicationData, VersionTLS12,
		make([]byte, constants.MaxPlaintextFragmentLength+1))
	assert.ErrorIs(t, err, tlserrors.ErrRecordFragmentTooLong)
}

func TestPipelineClosed(t *testing.T) {
	out := NewPipeline()
	out.Close()
	_, err := out.SealRecord(nil, ContentAlert, VersionTLS12, []byte{1, 0})
	assert.ErrorIs(t, err, tlserrors.ErrRecordAfterClose)
}

func TestActivatePendingResetsSequence(t *testing.T) {
	out := NewPipeline()
	_, err := out.SealRecord(nil, ContentHandshake, VersionTLS12, []byte{1})
	require.NoError(t, err)
	require.Equal(t, uint64(1), out.Sequence())

	require.ErrorIs(t, out.ActivatePending(), tlserrors.ErrChangeCipherSpecNoPending)

	out.SetPending(NullProtection())
	require.True(t, out.HasPending())
	require.NoError(t, out.ActivatePending())
	assert.Equal(t, uint64(0), out.Sequence())
	assert.False(t, out.HasPending())
}
