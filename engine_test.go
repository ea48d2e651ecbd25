// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package tls_test

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	stdtls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tls "github.com/hrissan/tls"
	"github.com/hrissan/tls/ciphersuite"
	"github.com/hrissan/tls/options"
	"github.com/hrissan/tls/record"
	"github.com/hrissan/tls/session"
	"github.com/hrissan/tls/stats"
	"github.com/hrissan/tls/tlsrand"
)

func rsaCert(t *testing.T) stdtls.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return makeCert(t, key.Public(), key)
}

func ecdsaCert(t *testing.T) stdtls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return makeCert(t, key.Public(), key)
}

func makeCert(t *testing.T, pub any, priv any) stdtls.Certificate {
	t.Helper()
	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test.local"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"test.local"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, pub, priv)
	require.NoError(t, err)
	return stdtls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}
}

type pairConfig struct {
	cert       stdtls.Certificate
	suites     []ciphersuite.ID
	minVersion record.ProtocolVersion
	maxVersion record.ProtocolVersion
	clientALPN []string
	serverALPN []string
	clientCtx  *session.Context
	serverCtx  *session.Context
	trustPool  bool
}

func enginePair(t *testing.T, cfg pairConfig) (client, server *tls.Engine) {
	t.Helper()
	serverOpts := options.DefaultEngineOptions(true, tlsrand.CryptoRand(), stats.NopStats{})
	clientOpts := options.DefaultEngineOptions(false, tlsrand.CryptoRand(), stats.NopStats{})
	if cfg.suites != nil {
		serverOpts.CipherSuites = cfg.suites
		clientOpts.CipherSuites = cfg.suites
	}
	if cfg.minVersion != 0 {
		serverOpts.MinVersion, clientOpts.MinVersion = cfg.minVersion, cfg.minVersion
	}
	if cfg.maxVersion != 0 {
		serverOpts.MaxVersion, clientOpts.MaxVersion = cfg.maxVersion, cfg.maxVersion
	}
	serverOpts.ALPNProtocols = cfg.serverALPN
	clientOpts.ALPNProtocols = cfg.clientALPN
	serverOpts.Sessions = cfg.serverCtx
	clientOpts.Sessions = cfg.clientCtx
	clientOpts.ServerName = "test.local"
	clientOpts.PeerHost = "test.local"
	clientOpts.PeerPort = 4433

	require.NoError(t, serverOpts.InstallIdentity("test", cfg.cert))
	if cfg.trustPool {
		leaf, err := x509.ParseCertificate(cfg.cert.Certificate[0])
		require.NoError(t, err)
		pool := x509.NewCertPool()
		pool.AddCert(leaf)
		clientOpts.Trust = &options.X509TrustManager{Roots: pool}
	} else {
		clientOpts.Trust = options.InsecureTrustManager{}
	}
	serverOpts.Trust = options.InsecureTrustManager{}

	server, err := tls.NewEngine(serverOpts)
	require.NoError(t, err)
	client, err = tls.NewEngine(clientOpts)
	require.NoError(t, err)
	return client, server
}

// flushAll drains every pending wrap byte (no application data offered).
func flushAll(t *testing.T, e *tls.Engine, finished *int) []byte {
	t.Helper()
	var out []byte
	buf := make([]byte, e.PacketBufferSize())
	for {
		res, err := e.Wrap(nil, buf)
		require.NoError(t, err)
		if res.HandshakeStatus == tls.Finished {
			*finished++
		}
		out = append(out, buf[:res.BytesProduced]...)
		if res.BytesProduced == 0 {
			return out
		}
	}
}

// feedAll offers transport bytes one record at a time and collects
// delivered application plaintext.
func feedAll(t *testing.T, e *tls.Engine, data []byte, finished *int) (app []byte, closed bool) {
	t.Helper()
	dst := make([]byte, e.ApplicationBufferSize())
	for {
		res, err := e.Unwrap(data, [][]byte{dst})
		require.NoError(t, err)
		if res.HandshakeStatus == tls.Finished {
			*finished++
		}
		app = append(app, dst[:res.BytesProduced]...)
		data = data[res.BytesConsumed:]
		if res.Status == tls.StatusClosed {
			return app, true
		}
		if res.Status == tls.StatusBufferUnderflow {
			return app, false
		}
		require.NotEqual(t, tls.StatusBufferOverflow, res.Status, "destination sized to ApplicationBufferSize")
	}
}

// handshake drives both engines until both handshakes completed, returning
// how many FINISHED signals each engine reported.
func handshake(t *testing.T, client, server *tls.Engine) (clientFinished, serverFinished int) {
	t.Helper()
	for i := 0; i < 10; i++ {
		c2s := flushAll(t, client, &clientFinished)
		if len(c2s) > 0 {
			feedAll(t, server, c2s, &serverFinished)
		}
		s2c := flushAll(t, server, &serverFinished)
		if len(s2c) > 0 {
			feedAll(t, client, s2c, &clientFinished)
		}
		if clientFinished > 0 && serverFinished > 0 &&
			client.HandshakeStatus() == tls.NotHandshaking &&
			server.HandshakeStatus() == tls.NotHandshaking {
			return clientFinished, serverFinished
		}
	}
	t.Fatal("handshake did not converge")
	return 0, 0
}

// transfer pushes application bytes from one engine into the other and
// returns what arrived.
func transfer(t *testing.T, from, to *tls.Engine, payload []byte) []byte {
	t.Helper()
	var received []byte
	var finished int
	buf := make([]byte, from.PacketBufferSize())
	remaining := payload
	for len(remaining) > 0 {
		res, err := from.Wrap([][]byte{remaining}, buf)
		require.NoError(t, err)
		require.Positive(t, res.BytesConsumed+res.BytesProduced, "no progress")
		remaining = remaining[res.BytesConsumed:]
		app, _ := feedAll(t, to, buf[:res.BytesProduced], &finished)
		received = append(received, app...)
	}
	return received
}

func TestHappyPathTLS12RSA(t *testing.T) {
	clientCtx := session.NewContext(clock.New(), 64)
	serverCtx := session.NewContext(clock.New(), 64)
	client, server := enginePair(t, pairConfig{
		cert:      rsaCert(t),
		suites:    []ciphersuite.ID{ciphersuite.TLS_RSA_WITH_AES_128_GCM_SHA256},
		clientCtx: clientCtx,
		serverCtx: serverCtx,
		trustPool: true,
	})

	cf, sf := handshake(t, client, server)
	assert.Equal(t, 1, cf, "client FINISHED exactly once")
	assert.Equal(t, 1, sf, "server FINISHED exactly once")
	assert.Equal(t, record.VersionTLS12, client.Version())
	assert.Equal(t, record.VersionTLS12, server.Version())

	payload := bytes.Repeat([]byte{'A'}, 16384)
	received := transfer(t, client, server, payload)
	assert.Equal(t, payload, received)

	// both sides cached a session with a 32-byte ID
	require.Len(t, client.Session().ID(), 32)
	assert.Equal(t, client.Session().ID(), server.Session().ID())
	assert.Equal(t, 1, clientCtx.Len())
	assert.Equal(t, 1, serverCtx.Len())

	// channel bindings agree
	cu, err := client.ChannelBinding("tls-unique")
	require.NoError(t, err)
	su, err := server.ChannelBinding("tls-unique")
	require.NoError(t, err)
	assert.Equal(t, cu, su)
	cep, err := client.ChannelBinding("tls-server-end-point")
	require.NoError(t, err)
	sep, err := server.ChannelBinding("tls-server-end-point")
	require.NoError(t, err)
	assert.Equal(t, cep, sep)
}

func TestECDHEECDSAWithALPN(t *testing.T) {
	client, server := enginePair(t, pairConfig{
		cert:       ecdsaCert(t),
		suites:     []ciphersuite.ID{ciphersuite.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256},
		clientALPN: []string{"h2", "http/1.1"},
		serverALPN: []string{"h2"},
	})
	handshake(t, client, server)
	assert.Equal(t, "h2", client.ApplicationProtocol())
	assert.Equal(t, "h2", server.ApplicationProtocol())

	payload := []byte("hello over ecdhe")
	assert.Equal(t, payload, transfer(t, client, server, payload))
	assert.Equal(t, payload, transfer(t, server, client, payload))
}

func TestSessionResumption(t *testing.T) {
	clientCtx := session.NewContext(clock.New(), 64)
	serverCtx := session.NewContext(clock.New(), 64)
	cert := rsaCert(t)
	cfg := pairConfig{
		cert:      cert,
		suites:    []ciphersuite.ID{ciphersuite.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256},
		clientCtx: clientCtx,
		serverCtx: serverCtx,
	}

	client1, server1 := enginePair(t, cfg)
	handshake(t, client1, server1)
	firstID := client1.Session().ID()
	require.Len(t, firstID, 32)

	var fullFlight, abbreviatedFlight int
	{
		// measure a full server flight for comparison
		c, s := enginePair(t, pairConfig{cert: cert, suites: cfg.suites})
		var n int
		ch := flushAll(t, c, &n)
		feedAll(t, s, ch, &n)
		fullFlight = len(flushAll(t, s, &n))
	}

	client2, server2 := enginePair(t, cfg)
	var cf, sf int
	ch := flushAll(t, client2, &cf)
	feedAll(t, server2, ch, &sf)
	abbreviated := flushAll(t, server2, &sf)
	abbreviatedFlight = len(abbreviated)
	feedAll(t, client2, abbreviated, &cf)
	final := flushAll(t, client2, &cf)
	feedAll(t, server2, final, &sf)

	require.Equal(t, 1, cf)
	require.Equal(t, 1, sf)
	assert.Equal(t, firstID, client2.Session().ID(), "session reused")
	assert.Equal(t, firstID, server2.Session().ID())
	assert.Equal(t, 1, serverCtx.Len(), "no new session stored")
	// no Certificate / ServerKeyExchange in the abbreviated flight
	assert.Less(t, abbreviatedFlight, fullFlight/2, "abbreviated handshake must skip certificates")

	// exporters over the resumed parameters agree
	ce, err := client2.ExportKeyingMaterial("EXPORTER-label", nil, false, 32)
	require.NoError(t, err)
	se, err := server2.ExportKeyingMaterial("EXPORTER-label", nil, false, 32)
	require.NoError(t, err)
	assert.Equal(t, ce, se)

	payload := []byte("resumed traffic")
	assert.Equal(t, payload, transfer(t, client2, server2, payload))
}

func TestCloseNotifyAfterPendingData(t *testing.T) {
	client, server := enginePair(t, pairConfig{cert: rsaCert(t)})
	handshake(t, client, server)

	payload := bytes.Repeat([]byte{'z'}, 500)
	buf := make([]byte, server.PacketBufferSize())
	res, err := server.Wrap([][]byte{payload}, buf)
	require.NoError(t, err)
	require.Equal(t, 500, res.BytesConsumed)
	wire := append([]byte(nil), buf[:res.BytesProduced]...)

	server.CloseOutbound()
	var n int
	wire = append(wire, flushAll(t, server, &n)...)
	assert.True(t, server.IsOutboundDone())

	app, closed := feedAll(t, client, wire, &n)
	assert.Equal(t, payload, app, "pending data delivered before close_notify")
	assert.True(t, closed)
	assert.True(t, client.IsInboundDone())

	// wrap after close reports CLOSED once the response close_notify drains
	flushAll(t, client, &n)
	res, err = client.Wrap([][]byte{[]byte("late")}, buf)
	require.NoError(t, err)
	assert.Equal(t, tls.StatusClosed, res.Status)
}

func TestTamperedRecord(t *testing.T) {
	client, server := enginePair(t, pairConfig{cert: rsaCert(t)})
	handshake(t, client, server)

	buf := make([]byte, client.PacketBufferSize())
	res, err := client.Wrap([][]byte{[]byte("sensitive")}, buf)
	require.NoError(t, err)
	wire := buf[:res.BytesProduced]
	wire[len(wire)-2] ^= 0x40 // flip one ciphertext bit

	dst := make([]byte, server.ApplicationBufferSize())
	ures, err := server.Unwrap(wire, [][]byte{dst})
	require.NoError(t, err, "the failure is deferred so the alert can flush")
	assert.Equal(t, tls.StatusOK, ures.Status)
	assert.Equal(t, tls.NeedWrap, ures.HandshakeStatus)

	// the next wrap raises the deferred error
	_, err = server.Wrap(nil, buf)
	require.Error(t, err)

	// and a further wrap flushes the fatal alert for the peer
	wres, err := server.Wrap(nil, buf)
	require.NoError(t, err)
	require.Positive(t, wres.BytesProduced)
	alertWire := buf[:wres.BytesProduced]
	assert.Equal(t, byte(21), alertWire[0], "alert record")

	_, err = client.Unwrap(alertWire, [][]byte{dst})
	require.Error(t, err, "peer surfaces the fatal bad_record_mac alert")
}

func TestRenegotiationRejected(t *testing.T) {
	client, server := enginePair(t, pairConfig{cert: rsaCert(t)})
	handshake(t, client, server)

	require.Error(t, client.BeginHandshake())
	require.Error(t, server.BeginHandshake())

	// connection remains usable
	payload := []byte("still works")
	assert.Equal(t, payload, transfer(t, client, server, payload))
}

func TestCBCSuiteWithSplitting(t *testing.T) {
	client, server := enginePair(t, pairConfig{
		cert:       rsaCert(t),
		suites:     []ciphersuite.ID{ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA},
		minVersion: record.VersionTLS10,
		maxVersion: record.VersionTLS10,
	})
	handshake(t, client, server)
	require.Equal(t, record.VersionTLS10, client.Version())

	payload := bytes.Repeat([]byte{'s'}, 100)
	buf := make([]byte, client.PacketBufferSize())
	res, err := client.Wrap([][]byte{payload}, buf)
	require.NoError(t, err)
	require.Equal(t, 100, res.BytesConsumed)

	// 1/n-1 split: the first record carries a single plaintext byte
	hdr, err := record.ParseHeader(buf[:res.BytesProduced])
	require.NoError(t, err)
	secondStart := hdr.RecordSize()
	require.Less(t, secondStart, res.BytesProduced, "two records expected")

	var n int
	app, _ := feedAll(t, server, buf[:res.BytesProduced], &n)
	assert.Equal(t, payload, app)
}

func TestCBCSuiteTLS12(t *testing.T) {
	client, server := enginePair(t, pairConfig{
		cert:   rsaCert(t),
		suites: []ciphersuite.ID{ciphersuite.TLS_RSA_WITH_AES_128_CBC_SHA256},
	})
	handshake(t, client, server)
	payload := bytes.Repeat([]byte{'q'}, 4000)
	assert.Equal(t, payload, transfer(t, client, server, payload))
}

func TestChaChaSuite(t *testing.T) {
	client, server := enginePair(t, pairConfig{
		cert:   rsaCert(t),
		suites: []ciphersuite.ID{ciphersuite.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256},
	})
	handshake(t, client, server)
	payload := bytes.Repeat([]byte{'c'}, 2000)
	assert.Equal(t, payload, transfer(t, client, server, payload))
}

func TestBufferUnderflowAndOverflow(t *testing.T) {
	client, server := enginePair(t, pairConfig{cert: rsaCert(t)})
	handshake(t, client, server)

	buf := make([]byte, client.PacketBufferSize())
	res, err := client.Wrap([][]byte{[]byte("some application data")}, buf)
	require.NoError(t, err)
	wire := buf[:res.BytesProduced]

	// a partial record is underflow and consumes nothing
	dst := make([]byte, server.ApplicationBufferSize())
	ures, err := server.Unwrap(wire[:3], [][]byte{dst})
	require.NoError(t, err)
	assert.Equal(t, tls.StatusBufferUnderflow, ures.Status)
	assert.Zero(t, ures.BytesConsumed)

	// a too-small destination is overflow and consumes nothing
	ures, err = server.Unwrap(wire, [][]byte{make([]byte, 4)})
	require.NoError(t, err)
	assert.Equal(t, tls.StatusBufferOverflow, ures.Status)
	assert.Zero(t, ures.BytesConsumed)

	// and with proper space the record goes through
	ures, err = server.Unwrap(wire, [][]byte{dst})
	require.NoError(t, err)
	assert.Equal(t, tls.StatusOK, ures.Status)
	assert.Equal(t, []byte("some application data"), dst[:ures.BytesProduced])
}

func TestWrapOverflowReservesWorstCase(t *testing.T) {
	client, server := enginePair(t, pairConfig{cert: rsaCert(t)})
	handshake(t, client, server)

	res, err := client.Wrap([][]byte{bytes.Repeat([]byte{'x'}, 16384)}, make([]byte, 100))
	require.NoError(t, err)
	assert.Equal(t, tls.StatusBufferOverflow, res.Status)
	assert.Zero(t, res.BytesConsumed)
}

func TestClientAuthRequired(t *testing.T) {
	cert := rsaCert(t)
	clientCert := ecdsaCert(t)

	serverOpts := options.DefaultEngineOptions(true, tlsrand.CryptoRand(), stats.NopStats{})
	serverOpts.Trust = options.InsecureTrustManager{}
	serverOpts.ClientAuth = options.NeedClientAuth
	require.NoError(t, serverOpts.InstallIdentity("srv", cert))

	clientOpts := options.DefaultEngineOptions(false, tlsrand.CryptoRand(), stats.NopStats{})
	clientOpts.Trust = options.InsecureTrustManager{}
	require.NoError(t, clientOpts.InstallIdentity("cli", clientCert))

	server, err := tls.NewEngine(serverOpts)
	require.NoError(t, err)
	client, err := tls.NewEngine(clientOpts)
	require.NoError(t, err)

	handshake(t, client, server)
	require.NotEmpty(t, server.Session().PeerCertificates(), "client authenticated")

	payload := []byte("mutually authenticated")
	assert.Equal(t, payload, transfer(t, client, server, payload))
}

func TestSetClientModeAfterStart(t *testing.T) {
	client, server := enginePair(t, pairConfig{cert: rsaCert(t)})
	require.NoError(t, client.SetClientMode(true))
	handshake(t, client, server)
	assert.Error(t, client.SetClientMode(false))
}
