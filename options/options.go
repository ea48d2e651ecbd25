// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package options

import (
	"github.com/pkg/errors"

	"github.com/hrissan/tls/ciphersuite"
	"github.com/hrissan/tls/record"
	"github.com/hrissan/tls/session"
	"github.com/hrissan/tls/stats"
	"github.com/hrissan/tls/tlscrypto"
	"github.com/hrissan/tls/tlsrand"
)

type ClientAuth int

const (
	NoClientAuth ClientAuth = iota
	WantClientAuth
	NeedClientAuth
)

// Connection is the completed-handshake view handed to listeners.
// The engine's connection object implements it.
type Connection interface {
	Session() *session.Session
	ApplicationProtocol() string
	Version() record.ProtocolVersion
}

// HandshakeListener observes handshake lifecycle. NotifyHandshakeSession
// fires before Finished validation with the in-progress session;
// NotifyHandshakeComplete fires once per handshake after both Finished
// messages verify.
type HandshakeListener interface {
	NotifyHandshakeSession(sess *session.Session)
	NotifyHandshakeComplete(conn Connection)
}

type EngineOptions struct {
	RoleServer bool
	Rnd        tlsrand.Rand
	Stats      stats.Stats
	Crypto     tlscrypto.Provider

	MinVersion   record.ProtocolVersion
	MaxVersion   record.ProtocolVersion
	CipherSuites []ciphersuite.ID // preference order

	ClientAuth            ClientAuth
	EnableSessionCreation bool
	// offer (client) / accept (server) the extended master secret binding
	ExtendedMasterSecret bool

	// client: SNI to send and session-lookup key; server: informational
	ServerName string
	PeerHost   string
	PeerPort   int

	ALPNProtocols []string

	Sessions *session.Context // may be nil, disables resumption
	Keys     KeyManager       // required for servers, optional for clients
	Trust    TrustManager
	Listener HandshakeListener // may be nil
}

func DefaultEngineOptions(roleServer bool, rnd tlsrand.Rand, st stats.Stats) *EngineOptions {
	if rnd == nil {
		rnd = tlsrand.CryptoRand()
	}
	if st == nil {
		st = stats.NopStats{}
	}
	return &EngineOptions{
		RoleServer:            roleServer,
		Rnd:                   rnd,
		Stats:                 st,
		Crypto:                tlscrypto.NewStdProvider(rnd),
		MinVersion:            record.VersionTLS10,
		MaxVersion:            record.VersionTLS12,
		CipherSuites:          ciphersuite.DefaultIDs(),
		EnableSessionCreation: true,
		ExtendedMasterSecret:  true,
	}
}

func (opts *EngineOptions) Validate() error {
	if opts.Rnd == nil || opts.Crypto == nil {
		return errors.New("engine requires a random source and a crypto provider")
	}
	if opts.MinVersion < record.VersionTLS10 || opts.MaxVersion > record.VersionTLS12 {
		return errors.Errorf("supported versions are %s..%s", record.VersionTLS10, record.VersionTLS12)
	}
	if opts.MinVersion > opts.MaxVersion {
		return errors.New("MinVersion exceeds MaxVersion")
	}
	if len(opts.CipherSuites) == 0 {
		return errors.New("no cipher suites enabled")
	}
	for _, id := range opts.CipherSuites {
		if _, ok := ciphersuite.Lookup(id); !ok {
			return errors.Errorf("cipher suite 0x%04x is not supported", uint16(id))
		}
	}
	if opts.RoleServer && opts.Keys == nil {
		return errors.New("tls server requires a key manager with an identity")
	}
	if opts.Trust == nil {
		return errors.New("engine requires a trust manager (use InsecureTrustManager to disable verification)")
	}
	return nil
}

// VersionEnabled reports membership in the configured supported set.
func (opts *EngineOptions) VersionEnabled(v record.ProtocolVersion) bool {
	return v >= opts.MinVersion && v <= opts.MaxVersion
}

// SuiteEnabled preserves configuration order separately via CipherSuites.
func (opts *EngineOptions) SuiteEnabled(id ciphersuite.ID) bool {
	for _, s := range opts.CipherSuites {
		if s == id {
			return true
		}
	}
	return false
}
