// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package session

import (
	"crypto/x509"
	"sync"
	"time"

	"github.com/hrissan/tls/ciphersuite"
	"github.com/hrissan/tls/constants"
	"github.com/hrissan/tls/record"
)

// BindingListener is implemented by values that want to observe being
// attached to and detached from a session.
type BindingListener interface {
	ValueBound(name string)
	ValueUnbound(name string)
}

// Params is everything frozen into a session when a handshake completes.
type Params struct {
	ID                   []byte // empty means not resumable
	Version              record.ProtocolVersion
	Suite                ciphersuite.ID
	MasterSecret         [constants.MasterSecretLength]byte
	PeerCertificates     []*x509.Certificate
	LocalCertificates    []*x509.Certificate
	ExtendedMasterSecret bool
	PeerHost             string
	PeerPort             int
}

// Session is an immutable handshake result plus a mutable, thread-safe
// value map. The negotiated parameters never change after creation;
// invalidation and access times are guarded by mu.
type Session struct {
	params    Params
	createdAt time.Time

	mu           sync.Mutex
	lastAccessed time.Time
	invalid      bool
	values       map[string]any
}

// Null is the sentinel returned before any handshake completes,
// never resumable.
var Null = &Session{}

func New(params Params, now time.Time) *Session {
	return &Session{
		params:       params,
		createdAt:    now,
		lastAccessed: now,
	}
}

// ID returns a copy, sessions are keyed by it in the context.
func (s *Session) ID() []byte {
	return append([]byte(nil), s.params.ID...)
}

func (s *Session) Version() record.ProtocolVersion { return s.params.Version }
func (s *Session) CipherSuite() ciphersuite.ID     { return s.params.Suite }
func (s *Session) ExtendedMasterSecret() bool      { return s.params.ExtendedMasterSecret }
func (s *Session) PeerHost() string                { return s.params.PeerHost }
func (s *Session) PeerPort() int                   { return s.params.PeerPort }
func (s *Session) CreatedAt() time.Time            { return s.createdAt }

func (s *Session) MasterSecret() [constants.MasterSecretLength]byte {
	return s.params.MasterSecret
}

// PeerCertificates is the verified chain, leaf first; nil for anonymous peers.
func (s *Session) PeerCertificates() []*x509.Certificate { return s.params.PeerCertificates }

func (s *Session) LocalCertificates() []*x509.Certificate { return s.params.LocalCertificates }

// Resumable: non-empty ID and not invalidated.
func (s *Session) Resumable() bool {
	if len(s.params.ID) == 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.invalid
}

// Invalidate is idempotent. Handshakes that already picked the session up
// may still complete resumption, which TLS permits.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalid = true
}

func (s *Session) LastAccessed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccessed
}

// accessedAt moves the access time monotonically forward.
func (s *Session) accessedAt(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.After(s.lastAccessed) {
		s.lastAccessed = now
	}
}

func (s *Session) Value(name string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[name]
}

func (s *Session) ValueNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	return names
}

// PutValue replaces any previous value under name. Listener callbacks run
// outside the session lock so they may re-enter session methods;
// unbind of the replaced value happens before bind of the new one.
func (s *Session) PutValue(name string, value any) {
	s.mu.Lock()
	if s.values == nil {
		s.values = make(map[string]any)
	}
	old := s.values[name]
	s.values[name] = value
	s.mu.Unlock()

	notifyUnbound(name, old)
	notifyBound(name, value)
}

func (s *Session) RemoveValue(name string) {
	s.mu.Lock()
	old := s.values[name]
	delete(s.values, name)
	s.mu.Unlock()

	notifyUnbound(name, old)
}

func notifyBound(name string, value any) {
	if l, ok := value.(BindingListener); ok {
		l.ValueBound(name)
	}
}

func notifyUnbound(name string, value any) {
	if l, ok := value.(BindingListener); ok {
		l.ValueUnbound(name)
	}
}
