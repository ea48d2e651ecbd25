// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingListener struct {
	bound   int
	unbound int
	sess    *Session // when set, callbacks re-enter the session
}

func (l *countingListener) ValueBound(name string) {
	l.bound++
	if l.sess != nil {
		_ = l.sess.ValueNames() // must not deadlock
	}
}

func (l *countingListener) ValueUnbound(name string) {
	l.unbound++
	if l.sess != nil {
		_ = l.sess.Value(name)
	}
}

func TestValueMapBindNotifications(t *testing.T) {
	sess := New(Params{ID: []byte{1}}, time.Unix(0, 0))

	first := &countingListener{}
	second := &countingListener{}

	sess.PutValue("k", first)
	assert.Equal(t, 1, first.bound)
	assert.Equal(t, 0, first.unbound)

	// replacing fires unbind(old) before bind(new)
	sess.PutValue("k", second)
	assert.Equal(t, 1, first.unbound)
	assert.Equal(t, 1, second.bound)

	sess.RemoveValue("k")
	assert.Equal(t, 1, second.unbound)

	// bound minus unbound is 1 exactly while a value is held
	assert.Equal(t, first.bound-first.unbound, 0)
	assert.Equal(t, second.bound-second.unbound, 0)
}

func TestValueMapListenerMayReenter(t *testing.T) {
	sess := New(Params{ID: []byte{1}}, time.Unix(0, 0))
	l := &countingListener{sess: sess}
	sess.PutValue("a", l)
	sess.PutValue("b", "plain value, no listener capability")
	sess.RemoveValue("a")
	assert.Equal(t, 1, l.bound)
	assert.Equal(t, 1, l.unbound)
	assert.Equal(t, []string{"b"}, sess.ValueNames())
}

func TestValueMapNamesAndLookup(t *testing.T) {
	sess := New(Params{ID: []byte{1}}, time.Unix(0, 0))
	assert.Nil(t, sess.Value("missing"))
	sess.PutValue("x", 42)
	assert.Equal(t, 42, sess.Value("x"))
	sess.RemoveValue("x")
	assert.Nil(t, sess.Value("x"))
}

func TestNullSessionNotResumable(t *testing.T) {
	assert.False(t, Null.Resumable())
	assert.Empty(t, Null.ID())
}

func TestResumableRequiresID(t *testing.T) {
	anon := New(Params{}, time.Unix(0, 0))
	assert.False(t, anon.Resumable())

	sess := New(Params{ID: []byte{1, 2}}, time.Unix(0, 0))
	assert.True(t, sess.Resumable())
	sess.Invalidate()
	assert.False(t, sess.Resumable())
}
