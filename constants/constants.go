// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package constants

// We want fixed-size storage for hashes, as we want to do as few allocations as possible.
// SHA-384 is the largest PRF hash any enabled suite uses.
const MaxHashLength = 48

// Limited as a protection against too much work for signature checking
const MaxCertificateChainLength = 16

const RecordHeaderSize = 5    // type(1) | version(2) | length(2) [rfc5246:6.2.1]
const HandshakeHeaderSize = 4 // msg_type(1) | length(3) [rfc5246:7.4]

const MaxPlaintextFragmentLength = 1 << 14                                 // [rfc5246:6.2.1]
const MaxCiphertextExpansion = 2048                                        // [rfc5246:6.2.3]
const MaxCiphertextFragmentLength = MaxPlaintextFragmentLength + MaxCiphertextExpansion
const MaxRecordLength = RecordHeaderSize + MaxCiphertextFragmentLength

// Worst case for a single wrap output accounts for 1/n-1 application data
// splitting before TLS 1.1: two records, each with header and cipher expansion.
const MaxWrapOutputLength = MaxPlaintextFragmentLength + 1 + 2*(RecordHeaderSize+1024)

// Nobody legitimately sends larger handshake messages over this engine,
// and we must bound reassembly memory for messages fragmented across records.
const MaxHandshakeMessageLength = 1 << 16

const RandomLength = 32
const MasterSecretLength = 48 // [rfc5246:8.1]
const PreMasterSecretLength = 48
const VerifyDataLength = 12 // [rfc5246:7.4.9]
const MaxSessionIDLength = 32
const NewSessionIDLength = 32 // IDs we mint for resumable sessions
