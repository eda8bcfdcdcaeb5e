// Copyright The Memtrace Authors
// SPDX-License-Identifier: Apache-2.0

package tracer // import "github.com/memtrace/memtrace/tracer"

import "github.com/memtrace/memtrace/trace"

// Recorder is the interface instrumented code is generated against. The
// live Tracer implements it for the primary thread of control; secondary
// threads of a fork/join construct get the inert Nop so they never touch
// shared trace state.
type Recorder interface {
	InstrumentAlloc(callID uint32, bufferName string, addr trace.Address, size uint64,
		funcName, fileName string, line, col uint32)
	InstrumentDealloc(callID uint32, addr trace.Address,
		funcName, fileName string, line, col uint32)
	InstrumentAccess(callID uint32, addr trace.Address, isWrite bool,
		funcName, fileName string, line, col uint32)
	InstrumentRead(callID uint32, addr trace.Address,
		funcName, fileName string, line, col uint32)
	InstrumentWrite(callID uint32, addr trace.Address,
		funcName, fileName string, line, col uint32)
	InstrumentScopeEntry(callID, scopeID uint32, scopeType trace.ScopeType,
		funcName, fileName string, line, col uint32)
	InstrumentScopeExit(callID, scopeID uint32, scopeType trace.ScopeType,
		funcName, fileName string, line, col uint32)
}

// nopRecorder discards every instrumentation call before any lock is
// taken. Secondary threads of a parallel region execute the same
// instrumented scope bodies redundantly and must stay fully inert.
type nopRecorder struct{}

func (nopRecorder) InstrumentAlloc(uint32, string, trace.Address, uint64,
	string, string, uint32, uint32) {
}

func (nopRecorder) InstrumentDealloc(uint32, trace.Address,
	string, string, uint32, uint32) {
}

func (nopRecorder) InstrumentAccess(uint32, trace.Address, bool,
	string, string, uint32, uint32) {
}

func (nopRecorder) InstrumentRead(uint32, trace.Address,
	string, string, uint32, uint32) {
}

func (nopRecorder) InstrumentWrite(uint32, trace.Address,
	string, string, uint32, uint32) {
}

func (nopRecorder) InstrumentScopeEntry(uint32, uint32, trace.ScopeType,
	string, string, uint32, uint32) {
}

func (nopRecorder) InstrumentScopeExit(uint32, uint32, trace.ScopeType,
	string, string, uint32, uint32) {
}

// Nop is the package-level inert recorder.
var Nop Recorder = nopRecorder{}

// ParallelWorker returns the recorder a non-primary thread of a fork/join
// construct must use. Every call on it is a complete no-op.
func (t *Tracer) ParallelWorker() Recorder {
	return Nop
}
