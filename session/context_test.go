// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package session

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrissan/tls/ciphersuite"
	"github.com/hrissan/tls/record"
)

func testSession(id byte, clk clock.Clock) *Session {
	return New(Params{
		ID:       []byte{id, id, id, id},
		Version:  record.VersionTLS12,
		Suite:    ciphersuite.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		PeerHost: "peer.example",
		PeerPort: 443,
	}, clk.Now())
}

func TestContextPutGetRoundtrip(t *testing.T) {
	clk := clock.NewMock()
	ctx := NewContext(clk, 0)

	sess := testSession(1, clk)
	ctx.Put(sess)
	got := ctx.Get(sess.ID())
	require.NotNil(t, got)
	assert.Equal(t, sess, got)
	assert.Nil(t, ctx.Get([]byte{9, 9, 9, 9}))
	assert.Nil(t, ctx.Get(nil))
}

func TestContextLRUEviction(t *testing.T) {
	clk := clock.NewMock()
	ctx := NewContext(clk, 2)

	a, b, c := testSession(1, clk), testSession(2, clk), testSession(3, clk)
	ctx.Put(a)
	clk.Add(time.Second)
	ctx.Put(b)
	clk.Add(time.Second)
	// touch a so b is now least recently accessed
	require.NotNil(t, ctx.Get(a.ID()))
	clk.Add(time.Second)
	ctx.Put(c)

	assert.NotNil(t, ctx.Get(a.ID()))
	assert.Nil(t, ctx.Get(b.ID()))
	assert.NotNil(t, ctx.Get(c.ID()))
	assert.Equal(t, 2, ctx.Len())
}

func TestContextTTLExpiry(t *testing.T) {
	clk := clock.NewMock()
	ctx := NewContext(clk, 0)
	ctx.SetTimeout(time.Hour)

	sess := testSession(1, clk)
	ctx.Put(sess)

	clk.Add(59 * time.Minute)
	require.NotNil(t, ctx.Get(sess.ID())) // access refreshes the clock

	clk.Add(61 * time.Minute)
	assert.Nil(t, ctx.Get(sess.ID()))
	assert.Equal(t, 0, ctx.Len())
}

func TestContextGetMovesAccessTimeMonotonically(t *testing.T) {
	clk := clock.NewMock()
	ctx := NewContext(clk, 0)
	sess := testSession(1, clk)
	ctx.Put(sess)

	before := sess.LastAccessed()
	clk.Add(time.Minute)
	ctx.Get(sess.ID())
	after := sess.LastAccessed()
	assert.True(t, after.After(before))

	// lastAccessed never goes backwards
	sess.accessedAt(after.Add(-time.Hour))
	assert.Equal(t, after, sess.LastAccessed())
}

func TestContextInvalidateIdempotent(t *testing.T) {
	clk := clock.NewMock()
	ctx := NewContext(clk, 0)
	sess := testSession(1, clk)
	ctx.Put(sess)

	ctx.Invalidate(sess.ID())
	ctx.Invalidate(sess.ID())
	assert.Nil(t, ctx.Get(sess.ID()))
	assert.False(t, sess.Resumable())

	// a session invalidated directly disappears on next lookup
	sess2 := testSession(2, clk)
	ctx.Put(sess2)
	sess2.Invalidate()
	assert.Nil(t, ctx.Get(sess2.ID()))
}

func TestContextSetCacheSizeShrinks(t *testing.T) {
	clk := clock.NewMock()
	ctx := NewContext(clk, 0)
	for i := byte(1); i <= 5; i++ {
		ctx.Put(testSession(i, clk))
		clk.Add(time.Second)
	}
	require.Equal(t, 5, ctx.Len())
	ctx.SetCacheSize(2)
	assert.Equal(t, 2, ctx.Len())
	assert.Equal(t, 2, ctx.CacheSize())
}

func TestContextGetByPeer(t *testing.T) {
	clk := clock.NewMock()
	ctx := NewContext(clk, 0)
	sess := testSession(1, clk)
	ctx.Put(sess)

	assert.Equal(t, sess, ctx.GetByPeer("peer.example", 443))
	assert.Nil(t, ctx.GetByPeer("peer.example", 8443))
	assert.Nil(t, ctx.GetByPeer("other.example", 443))
	assert.Nil(t, ctx.GetByPeer("", 443))

	sess.Invalidate()
	assert.Nil(t, ctx.GetByPeer("peer.example", 443))
}

func TestSessionWithoutIDNotStored(t *testing.T) {
	clk := clock.NewMock()
	ctx := NewContext(clk, 0)
	ctx.Put(New(Params{}, clk.Now()))
	assert.Equal(t, 0, ctx.Len())
}
