// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package record

import (
	"math"

	"github.com/hrissan/tls/constants"
	"github.com/hrissan/tls/format"
	"github.com/hrissan/tls/tlserrors"
)

// Pipeline is one half-duplex direction of the record layer. A connection owns
// two: inbound opens whole records into plaintext fragments, outbound seals
// plaintext fragments into whole records. ChangeCipherSpec promotes the
// pending protection and resets the sequence number [rfc5246:6.1].
type Pipeline struct {
	prot    Protection
	pending Protection
	seq     uint64
	closed  bool // close_notify passed in this direction
}

func NewPipeline() Pipeline {
	return Pipeline{prot: nullProtection{}}
}

func (p *Pipeline) SetPending(prot Protection) { p.pending = prot }
func (p *Pipeline) HasPending() bool           { return p.pending != nil }

func (p *Pipeline) ActivatePending() error {
	if p.pending == nil {
		return tlserrors.ErrChangeCipherSpecNoPending
	}
	p.prot = p.pending
	p.pending = nil
	p.seq = 0
	return nil
}

func (p *Pipeline) Sequence() uint64 { return p.seq }
func (p *Pipeline) Closed() bool     { return p.closed }
func (p *Pipeline) Close()           { p.closed = true }

// Overhead of the active protection, for wrap destination sizing.
func (p *Pipeline) Overhead() int { return p.prot.Overhead() }

// NeedsSplitting of the active protection.
func (p *Pipeline) NeedsSplitting() bool { return p.prot.NeedsSplitting() }

// SealRecord appends one whole record (header plus protected fragment) to out.
func (p *Pipeline) SealRecord(out []byte, typ ContentType, version ProtocolVersion, plaintext []byte) ([]byte, error) {
	if p.closed {
		return out, tlserrors.ErrRecordAfterClose
	}
	if len(plaintext) > constants.MaxPlaintextFragmentLength {
		return out, tlserrors.ErrRecordFragmentTooLong
	}
	if p.seq == math.MaxUint64 {
		return out, tlserrors.ErrRecordSequenceOverflow
	}
	out = append(out, byte(typ))
	out = append(out, byte(version>>8), byte(version))
	out, mark := format.MarkUint16Offset(out)
	out, err := p.prot.Seal(out, p.seq, typ, version, plaintext)
	if err != nil {
		return out, err
	}
	if len(out)-mark > constants.MaxCiphertextFragmentLength {
		return out, tlserrors.ErrRecordOverflow
	}
	format.FillUint16Offset(out, mark)
	p.seq++
	return out, nil
}

// OpenRecord authenticates and decrypts the fragment of one whole inbound
// record. Header length has already been validated by ParseHeader.
func (p *Pipeline) OpenRecord(hdr Header, fragment []byte) ([]byte, error) {
	if p.closed {
		return nil, tlserrors.ErrRecordAfterClose
	}
	if p.seq == math.MaxUint64 {
		return nil, tlserrors.ErrRecordSequenceOverflow
	}
	plaintext, err := p.prot.Open(p.seq, hdr.Type, hdr.Version, fragment)
	if err != nil {
		return nil, err
	}
	if len(plaintext) > constants.MaxPlaintextFragmentLength {
		return nil, tlserrors.ErrRecordPlaintextOverflow
	}
	p.seq++
	return plaintext, nil
}
