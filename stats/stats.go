// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package stats

import (
	"log"
	"sync/atomic"

	"github.com/hrissan/tls/alert"
	"github.com/hrissan/tls/record"
)

// Stats receives engine events. The core never logs; hosts that want
// visibility plug an implementation here. Methods may be called while the
// engine mutex is held, so implementations must not call back into the engine.
type Stats interface {
	// record layer
	BadRecord(typ record.ContentType, recordLen int, err error)
	RecordSealed(typ record.ContentType, plaintextLen int)
	RecordOpened(typ record.ContentType, plaintextLen int)

	// alerts
	AlertSent(level alert.Level, desc alert.Description)
	AlertReceived(level alert.Level, desc alert.Description)

	// handshake
	HandshakeStarted(roleServer bool)
	HandshakeComplete(version record.ProtocolVersion, suiteID uint16, resumed bool)
	HandshakeFailed(err error)
	SessionStored(idLen int)
}

type NopStats struct{}

func (NopStats) BadRecord(typ record.ContentType, recordLen int, err error)                   {}
func (NopStats) RecordSealed(typ record.ContentType, plaintextLen int)                        {}
func (NopStats) RecordOpened(typ record.ContentType, plaintextLen int)                        {}
func (NopStats) AlertSent(level alert.Level, desc alert.Description)                          {}
func (NopStats) AlertReceived(level alert.Level, desc alert.Description)                      {}
func (NopStats) HandshakeStarted(roleServer bool)                                             {}
func (NopStats) HandshakeComplete(version record.ProtocolVersion, suiteID uint16, r bool)     {}
func (NopStats) HandshakeFailed(err error)                                                    {}
func (NopStats) SessionStored(idLen int)                                                      {}

// StatsLog prints events through the standard logger. Verbosity can be
// toggled at runtime from any goroutine.
type StatsLog struct {
	printRecords atomic.Bool
}

func NewStatsLogVerbose() *StatsLog {
	s := &StatsLog{}
	s.printRecords.Store(true)
	return s
}

func NewStatsLog() *StatsLog { return &StatsLog{} }

func (s *StatsLog) SetPrintRecords(v bool) { s.printRecords.Store(v) }

func (s *StatsLog) BadRecord(typ record.ContentType, recordLen int, err error) {
	log.Printf("tls: bad record type=%d len=%d: %v", typ, recordLen, err)
}

func (s *StatsLog) RecordSealed(typ record.ContentType, plaintextLen int) {
	if !s.printRecords.Load() {
		return
	}
	log.Printf("tls: sealed record type=%d plaintext=%d", typ, plaintextLen)
}

func (s *StatsLog) RecordOpened(typ record.ContentType, plaintextLen int) {
	if !s.printRecords.Load() {
		return
	}
	log.Printf("tls: opened record type=%d plaintext=%d", typ, plaintextLen)
}

func (s *StatsLog) AlertSent(level alert.Level, desc alert.Description) {
	log.Printf("tls: alert sent level=%d %s", level, desc)
}

func (s *StatsLog) AlertReceived(level alert.Level, desc alert.Description) {
	log.Printf("tls: alert received level=%d %s", level, desc)
}

func (s *StatsLog) HandshakeStarted(roleServer bool) {
	log.Printf("tls: handshake started server=%v", roleServer)
}

func (s *StatsLog) HandshakeComplete(version record.ProtocolVersion, suiteID uint16, resumed bool) {
	log.Printf("tls: handshake complete %s suite=0x%04x resumed=%v", version, suiteID, resumed)
}

func (s *StatsLog) HandshakeFailed(err error) {
	log.Printf("tls: handshake failed: %v", err)
}

func (s *StatsLog) SessionStored(idLen int) {
	log.Printf("tls: session stored id_len=%d", idLen)
}
