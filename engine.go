// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

// Package tls is a non-blocking, buffer-oriented TLS 1.0-1.2 protocol
// engine. The engine does no I/O: the host offers inbound transport bytes to
// Unwrap and transmits whatever Wrap produces. All waits are modeled as
// BUFFER_UNDERFLOW / BUFFER_OVERFLOW results, never as blocking.
package tls

import (
	"sync"

	"github.com/hrissan/tls/constants"
	"github.com/hrissan/tls/options"
	"github.com/hrissan/tls/record"
	"github.com/hrissan/tls/session"
	"github.com/hrissan/tls/tlscore"
	"github.com/hrissan/tls/tlserrors"
)

// Engine is the wrap/unwrap facade over one connection. A single mutex
// serializes all protocol advancement; parallelism is across engines, never
// within one.
type Engine struct {
	mu sync.Mutex

	opts       *options.EngineOptions
	clientMode bool

	conn     *tlscore.Connection
	deferred error // raised by the next Wrap; the queued fatal alert drains on the Wrap calls after it
}

func NewEngine(opts *options.EngineOptions) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		opts:       opts,
		clientMode: !opts.RoleServer,
	}, nil
}

// SetClientMode flips the role. Only legal before the initial handshake.
func (e *Engine) SetClientMode(client bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn != nil {
		return tlserrors.ErrEngineModeChange
	}
	e.clientMode = client
	return nil
}

func (e *Engine) ClientMode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clientMode
}

func (e *Engine) SetClientAuth(mode options.ClientAuth) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn != nil {
		return tlserrors.ErrEngineModeChange
	}
	e.opts.ClientAuth = mode
	return nil
}

func (e *Engine) SetEnableSessionCreation(enable bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn != nil {
		return tlserrors.ErrEngineModeChange
	}
	e.opts.EnableSessionCreation = enable
	return nil
}

// BeginHandshake starts the initial handshake explicitly. Calling it again
// after the handshake has begun is a renegotiation attempt, which this
// engine rejects without touching the connection.
func (e *Engine) BeginHandshake() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.beginHandshakeLocked()
}

func (e *Engine) beginHandshakeLocked() error {
	if e.conn != nil {
		return tlserrors.ErrEngineRenegotiation
	}
	e.opts.RoleServer = !e.clientMode
	e.conn = tlscore.NewConnection(e.opts, !e.clientMode)
	return e.conn.Start()
}

func (e *Engine) handshakeStatusLocked() HandshakeStatus {
	if e.conn == nil {
		return NotHandshaking
	}
	if e.conn.HandshakeDone() || e.conn.Err() != nil {
		if e.conn.PendingOutput() > 0 && e.conn.Err() != nil {
			return NeedWrap // a fatal alert is waiting to be flushed
		}
		return NotHandshaking
	}
	if e.conn.PendingOutput() > 0 {
		return NeedWrap
	}
	return NeedUnwrap
}

// HandshakeStatus without advancing anything.
func (e *Engine) HandshakeStatus() HandshakeStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handshakeStatusLocked()
}

// Wrap consumes application bytes from srcs (handshake flights take
// priority) and produces at most one flight of transport bytes into dst.
func (e *Engine) Wrap(srcs [][]byte, dst []byte) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deferred != nil {
		err := e.deferred
		e.deferred = nil
		return Result{Status: StatusOK, HandshakeStatus: e.handshakeStatusLocked()}, err
	}
	if e.conn == nil {
		if err := e.beginHandshakeLocked(); err != nil {
			return Result{}, err
		}
	}
	conn := e.conn
	res := Result{Status: StatusOK}

	if conn.HandshakeDone() && conn.Err() == nil && conn.PendingOutput() == 0 {
		if conn.OutboundClosed() {
			res.Status = StatusClosed
		} else if n := totalAvailable(srcs); n > 0 {
			srcLimit, dstNeeded := conn.WrapLimits(n)
			if len(dst) < dstNeeded {
				res.Status = StatusBufferOverflow
				res.HandshakeStatus = e.handshakeStatusLocked()
				return res, nil
			}
			flat := flatten(srcs, srcLimit)
			consumed, err := conn.WriteApplicationData(flat)
			if err != nil {
				return res, err
			}
			res.BytesConsumed += consumed
		}
	}

	if pending := conn.PendingOutput(); pending > 0 {
		n := conn.DrainOutput(dst)
		res.BytesProduced += n
		if n == 0 {
			res.Status = StatusBufferOverflow
		}
	}

	if conn.TakeJustCompleted() {
		res.HandshakeStatus = Finished
	} else {
		res.HandshakeStatus = e.handshakeStatusLocked()
	}
	if conn.OutboundClosed() && conn.PendingOutput() == 0 && res.BytesProduced == 0 && res.BytesConsumed == 0 {
		res.Status = StatusClosed
	}
	return res, nil
}

// Unwrap consumes exactly one whole record from src and delivers any
// decrypted application bytes into dsts.
func (e *Engine) Unwrap(src []byte, dsts [][]byte) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conn == nil {
		if err := e.beginHandshakeLocked(); err != nil {
			return Result{}, err
		}
	}
	conn := e.conn
	res := Result{Status: StatusOK}

	if conn.Err() != nil || conn.InboundClosed() {
		res.Status = StatusClosed
		res.HandshakeStatus = e.handshakeStatusLocked()
		return res, nil
	}

	if len(src) < constants.RecordHeaderSize {
		res.Status = StatusBufferUnderflow
		res.HandshakeStatus = e.handshakeStatusLocked()
		return res, nil
	}
	hdr, err := record.ParseHeader(src)
	if err != nil {
		return e.unwrapFailedLocked(res, conn.Fail(err))
	}
	if len(src) < hdr.RecordSize() {
		res.Status = StatusBufferUnderflow
		res.HandshakeStatus = e.handshakeStatusLocked()
		return res, nil
	}
	// ciphertext length bounds the plaintext for every suite we speak, and
	// plaintext never exceeds one fragment, so this reservation guarantees
	// the decrypted bytes fit
	appLimit := hdr.Length
	if appLimit > constants.MaxPlaintextFragmentLength {
		appLimit = constants.MaxPlaintextFragmentLength
	}
	if hdr.Type == record.ContentApplicationData && totalAvailable(dsts) < appLimit {
		res.Status = StatusBufferOverflow
		res.HandshakeStatus = e.handshakeStatusLocked()
		return res, nil
	}

	if err := conn.OfferRecord(hdr, src[constants.RecordHeaderSize:hdr.RecordSize()]); err != nil {
		res.BytesConsumed = hdr.RecordSize()
		return e.unwrapFailedLocked(res, err)
	}
	res.BytesConsumed = hdr.RecordSize()

	if appData := conn.TakeAppData(); len(appData) > 0 {
		res.BytesProduced = scatter(appData, dsts)
	}

	if conn.InboundClosed() && conn.Err() == nil {
		res.Status = StatusClosed
	}
	if conn.TakeJustCompleted() {
		res.HandshakeStatus = Finished
	} else {
		res.HandshakeStatus = e.handshakeStatusLocked()
	}
	return res, nil
}

// unwrapFailedLocked implements the deferred-exception discipline: when the
// failure queued an outbound alert, pretend this unwrap was fine and ask for
// NEED_WRAP. The next Wrap raises the error without producing bytes; the
// queued alert drains on the Wrap calls after it. Hosts that only drain
// output after a successful wrap depend on this sequencing.
func (e *Engine) unwrapFailedLocked(res Result, err error) (Result, error) {
	if e.conn.PendingOutput() > 0 {
		if e.deferred == nil {
			e.deferred = err
		}
		res.Status = StatusOK
		res.HandshakeStatus = NeedWrap
		return res, nil
	}
	return res, err
}

// CloseOutbound queues close_notify; buffered output stays drainable via Wrap.
func (e *Engine) CloseOutbound() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		e.conn = tlscore.NewConnection(e.opts, !e.clientMode)
	}
	e.conn.CloseOutbound()
}

// CloseInbound marks the inbound side done. Closing after the handshake
// completed but before the peer's close_notify returns an error.
func (e *Engine) CloseInbound() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return nil
	}
	return e.conn.CloseInbound()
}

func (e *Engine) IsInboundDone() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn != nil && e.conn.InboundClosed()
}

func (e *Engine) IsOutboundDone() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn != nil && e.conn.OutboundClosed() && e.conn.PendingOutput() == 0
}

// Session of the completed handshake, or the null session.
func (e *Engine) Session() *session.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return session.Null
	}
	return e.conn.Session()
}

// HandshakeSession is the in-progress session, nil outside a handshake.
func (e *Engine) HandshakeSession() *session.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return nil
	}
	return e.conn.HandshakeSession()
}

func (e *Engine) ApplicationProtocol() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return ""
	}
	return e.conn.ApplicationProtocol()
}

func (e *Engine) Version() record.ProtocolVersion {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return 0
	}
	return e.conn.Version()
}

// ChannelBinding exports tls-unique or tls-server-end-point after the
// handshake completed [rfc5929].
func (e *Engine) ChannelBinding(kind string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return nil, tlserrors.ErrEngineHandshakeNotComplete
	}
	return e.conn.ChannelBinding(kind)
}

// ExportKeyingMaterial per RFC 5705. Pass hasContext=false for an absent
// context, it differs from an empty one.
func (e *Engine) ExportKeyingMaterial(label string, context []byte, hasContext bool, length int) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return nil, tlserrors.ErrEngineHandshakeNotComplete
	}
	return e.conn.ExportKeyingMaterial(label, context, hasContext, length)
}

// ApplicationBufferSize is the largest plaintext one Unwrap can deliver.
func (e *Engine) ApplicationBufferSize() int { return constants.MaxPlaintextFragmentLength }

// PacketBufferSize is the worst-case Wrap output, accounting for 1/n-1
// application data splitting before TLS 1.1.
func (e *Engine) PacketBufferSize() int { return constants.MaxWrapOutputLength }

func totalAvailable(bufs [][]byte) int {
	total := 0
	for _, b := range bufs {
		total += len(b)
	}
	return total
}

func flatten(srcs [][]byte, limit int) []byte {
	flat := make([]byte, 0, limit)
	for _, src := range srcs {
		take := limit - len(flat)
		if take == 0 {
			break
		}
		if take > len(src) {
			take = len(src)
		}
		flat = append(flat, src[:take]...)
	}
	return flat
}

func scatter(data []byte, dsts [][]byte) int {
	produced := 0
	for _, dst := range dsts {
		n := copy(dst, data)
		data = data[n:]
		produced += n
		if len(data) == 0 {
			break
		}
	}
	if len(data) != 0 {
		panic("unwrap output space was pre-checked")
	}
	return produced
}
