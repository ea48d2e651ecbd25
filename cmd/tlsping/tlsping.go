// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

// tlsping drives two engines against each other over a TCP loopback,
// showing the host I/O loop the engine expects: offer inbound bytes to
// Unwrap, transmit whatever Wrap produces, treat BUFFER_UNDERFLOW as
// "read more from the socket".
package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	stdtls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"flag"
	"log"
	"math/big"
	"net"
	"time"

	tls "github.com/hrissan/tls"
	"github.com/hrissan/tls/options"
	"github.com/hrissan/tls/session"
	"github.com/hrissan/tls/stats"
	"github.com/hrissan/tls/tlsrand"
)

func main() {
	verbose := flag.Bool("verbose", false, "print per-record stats")
	payload := flag.String("payload", "ping", "application payload to send")
	flag.Parse()

	st := stats.Stats(stats.NopStats{})
	if *verbose {
		st = stats.NewStatsLogVerbose()
	}

	cert := selfSigned()

	serverOpts := options.DefaultEngineOptions(true, tlsrand.CryptoRand(), st)
	serverOpts.Sessions = session.NewContext(nil, 64)
	serverOpts.Trust = options.InsecureTrustManager{}
	if err := serverOpts.InstallIdentity("tlsping", cert); err != nil {
		log.Fatalf("installing identity: %v", err)
	}

	clientOpts := options.DefaultEngineOptions(false, tlsrand.CryptoRand(), st)
	clientOpts.Sessions = session.NewContext(nil, 64)
	clientOpts.Trust = options.InsecureTrustManager{}
	clientOpts.ServerName = "tlsping.local"
	clientOpts.PeerHost = "127.0.0.1"

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := listener.Accept()
		if err != nil {
			log.Fatalf("accept: %v", err)
		}
		defer conn.Close()
		engine, err := tls.NewEngine(serverOpts)
		if err != nil {
			log.Fatalf("server engine: %v", err)
		}
		host := newHost(engine, conn)
		msg, err := host.read()
		if err != nil {
			log.Fatalf("server read: %v", err)
		}
		log.Printf("server got %q (%s, %s)", msg, engine.Version(), engine.Session().CipherSuite())
		if err := host.write(append([]byte("pong: "), msg...)); err != nil {
			log.Fatalf("server write: %v", err)
		}
	}()

	conn, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	engine, err := tls.NewEngine(clientOpts)
	if err != nil {
		log.Fatalf("client engine: %v", err)
	}
	host := newHost(engine, conn)
	if err := host.write([]byte(*payload)); err != nil {
		log.Fatalf("client write: %v", err)
	}
	msg, err := host.read()
	if err != nil {
		log.Fatalf("client read: %v", err)
	}
	log.Printf("client got %q", msg)
	<-done
}

// host pumps one engine against one socket.
type host struct {
	engine *tls.Engine
	conn   net.Conn
	inbuf  []byte // transport bytes not yet consumed by Unwrap
	outbuf []byte
}

func newHost(engine *tls.Engine, conn net.Conn) *host {
	return &host{
		engine: engine,
		conn:   conn,
		outbuf: make([]byte, engine.PacketBufferSize()),
	}
}

func (h *host) flush(srcs [][]byte) (int, error) {
	consumed := 0
	for {
		res, err := h.engine.Wrap(srcs, h.outbuf)
		if err != nil {
			return consumed, err
		}
		if res.BytesProduced > 0 {
			if _, err := h.conn.Write(h.outbuf[:res.BytesProduced]); err != nil {
				return consumed, err
			}
		}
		consumed += res.BytesConsumed
		advance(&srcs, res.BytesConsumed)
		if res.HandshakeStatus != tls.NeedWrap && res.BytesProduced == 0 {
			return consumed, nil
		}
		if res.Status == tls.StatusClosed {
			return consumed, nil
		}
	}
}

func (h *host) pumpInbound(dst []byte) (int, error) {
	res, err := h.engine.Unwrap(h.inbuf, [][]byte{dst})
	if err != nil {
		return 0, err
	}
	h.inbuf = h.inbuf[res.BytesConsumed:]
	switch res.Status {
	case tls.StatusBufferUnderflow:
		chunk := make([]byte, 4096)
		n, err := h.conn.Read(chunk)
		if err != nil {
			return 0, err
		}
		h.inbuf = append(h.inbuf, chunk[:n]...)
	case tls.StatusClosed:
		return 0, net.ErrClosed
	}
	if res.HandshakeStatus == tls.NeedWrap || res.HandshakeStatus == tls.Finished {
		if _, err := h.flush(nil); err != nil {
			return res.BytesProduced, err
		}
	}
	return res.BytesProduced, nil
}

func (h *host) write(p []byte) (err error) {
	for len(p) > 0 {
		var n int
		if n, err = h.flush([][]byte{p}); err != nil {
			return err
		}
		p = p[n:]
		if n == 0 { // handshake still running, progress inbound
			if _, err := h.pumpInbound(nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *host) read() ([]byte, error) {
	dst := make([]byte, h.engine.ApplicationBufferSize())
	for {
		n, err := h.pumpInbound(dst)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return dst[:n], nil
		}
	}
}

func advance(srcs *[][]byte, n int) {
	s := *srcs
	for n > 0 && len(s) > 0 {
		take := n
		if take > len(s[0]) {
			take = len(s[0])
		}
		s[0] = s[0][take:]
		n -= take
		if len(s[0]) == 0 {
			s = s[1:]
		}
	}
	*srcs = s
}

func selfSigned() stdtls.Certificate {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		log.Fatalf("generating key: %v", err)
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "tlsping.local"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"tlsping.local"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		log.Fatalf("creating certificate: %v", err)
	}
	return stdtls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}
