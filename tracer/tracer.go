// Copyright The Memtrace Authors
// SPDX-License-Identifier: Apache-2.0

// Package tracer implements the trace-recording engine. It receives
// instrumentation callbacks from the instrumented program, keeps the
// allocation table and scope stack current, appends events to the
// append-only log unless the dedup oracle vetoes them, and renders the
// log once at shutdown.
//
// A Tracer is an explicit context object: one instance exists per run,
// created at load time and shared by reference into every instrumentation
// call. All mutating operations hold the engine-wide lock for their full
// duration; lock acquisition is the only suspension point. Nothing in
// this package may panic across the boundary into the host program.
package tracer // import "github.com/memtrace/memtrace/tracer"

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/memtrace/memtrace/alloctable"
	"github.com/memtrace/memtrace/dedup"
	"github.com/memtrace/memtrace/metrics"
	"github.com/memtrace/memtrace/reporter"
	"github.com/memtrace/memtrace/scopestack"
	"github.com/memtrace/memtrace/trace"
	"github.com/memtrace/memtrace/xsync"
)

// eventLogInterval is how many appended events pass between progress
// diagnostics on the side channel.
const eventLogInterval = 1_000_000

// state is everything the engine lock protects.
type state struct {
	events []trace.Event
	allocs *alloctable.Table
	scopes *scopestack.Stack
	oracle *dedup.Oracle
}

// Tracer is the trace-recording engine.
type Tracer struct {
	cfg   Config
	state xsync.RWMutex[state]
	stats metrics.Metrics
}

// Compile time check that the live engine satisfies the instrumentation
// interface.
var _ Recorder = (*Tracer)(nil)

// New creates a Tracer with the given configuration.
func New(cfg Config) (*Tracer, error) {
	var opts []alloctable.Option
	if cfg.CompatInclusiveBound {
		opts = append(opts, alloctable.WithInclusiveBound())
	}
	allocs, err := alloctable.New(cfg.LookupCacheSize, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create allocation table: %w", err)
	}
	return &Tracer{
		cfg: cfg,
		state: xsync.NewRWMutex(state{
			allocs: allocs,
			scopes: scopestack.New(),
			oracle: dedup.NewOracle(cfg.DedupStrategy),
		}),
	}, nil
}

// backstop keeps panics from escaping into the instrumented program.
// Instrumentation faults degrade to a diagnostic, never to an abort.
func backstop() {
	if r := recover(); r != nil {
		log.Errorf("memtrace: suppressed panic in instrumentation: %v", r)
	}
}

func (t *Tracer) debugInfo(funcName, fileName string, line, col uint32) trace.DebugInfo {
	return trace.NewDebugInfo(funcName, fileName, line, col,
		t.cfg.MaxFuncNameLen, t.cfg.MaxFileNameLen)
}

// append adds ev to the log and emits the periodic progress diagnostic.
// Caller holds the write lock.
func (t *Tracer) append(s *state, ev trace.Event) {
	s.events = append(s.events, ev)
	t.stats.EventsRecorded.Add(1)
	if len(s.events)%eventLogInterval == 0 {
		log.Infof("memtrace: recorded %d events", len(s.events))
	}
}

// Reset drops all events, allocation records, scope state and dedup
// memory. It is not safe concurrently with in-flight instrumentation on
// the same engine.
func (t *Tracer) Reset() {
	defer backstop()
	s := t.state.WLock()
	defer t.state.WUnlock(&s)
	s.events = nil
	s.allocs.Reset()
	s.scopes.Reset()
	s.oracle.Reset()
	t.stats.Reset()
}

// InstrumentAlloc registers the allocation and appends an Allocation
// event unless the dedup oracle judges this (callsite, context) pair a
// repeat. The table registration itself always happens; it reflects
// actual program state.
func (t *Tracer) InstrumentAlloc(callID uint32, bufferName string, addr trace.Address,
	size uint64, funcName, fileName string, line, col uint32) {
	defer backstop()
	di := t.debugInfo(funcName, fileName, line, col)
	name := trace.TruncateName(bufferName, t.cfg.MaxBufferNameLen)

	s := t.state.WLock()
	defer t.state.WUnlock(&s)

	rec := s.allocs.Register(addr, name, size)
	log.Debugf("memtrace: allocating %s at %#x in %s (%d bytes)",
		name, uint64(addr), di.FuncName, size)

	if s.oracle.IsDuplicate(callID, s.scopes.Signature(s.oracle.Strategy())) {
		t.stats.EventsDeduplicated.Add(1)
		return
	}
	t.append(s, trace.Event{
		Kind:       trace.EventAllocation,
		Debug:      di,
		BufferName: rec.Name,
		BufferID:   rec.ID,
		Size:       size,
	})
}

// InstrumentDealloc unregisters the allocation at addr. A Deallocation
// event is appended only if a live record existed; deallocating an
// untracked address is silently dropped.
func (t *Tracer) InstrumentDealloc(callID uint32, addr trace.Address,
	funcName, fileName string, line, col uint32) {
	defer backstop()
	di := t.debugInfo(funcName, fileName, line, col)

	s := t.state.WLock()
	defer t.state.WUnlock(&s)

	rec, ok := s.allocs.Unregister(addr)
	if !ok {
		t.stats.DroppedDeallocations.Add(1)
		return
	}
	log.Debugf("memtrace: deallocating %s at %#x in %s",
		rec.Name, uint64(addr), di.FuncName)

	if s.oracle.IsDuplicate(callID, s.scopes.Signature(s.oracle.Strategy())) {
		t.stats.EventsDeduplicated.Add(1)
		return
	}
	t.append(s, trace.Event{
		Kind:       trace.EventDeallocation,
		Debug:      di,
		BufferName: rec.Name,
		BufferID:   rec.ID,
	})
}

// InstrumentAccess attributes addr to a tracked buffer and appends an
// Access event on success. Accesses to memory never registered (stack
// locals, globals, foreign allocators) are invisible to the trace.
func (t *Tracer) InstrumentAccess(callID uint32, addr trace.Address, isWrite bool,
	funcName, fileName string, line, col uint32) {
	defer backstop()
	di := t.debugInfo(funcName, fileName, line, col)

	s := t.state.WLock()
	defer t.state.WUnlock(&s)

	rec, ok := s.allocs.FindContaining(addr)
	if !ok {
		t.stats.DroppedAccesses.Add(1)
		return
	}
	if s.oracle.IsDuplicate(callID, s.scopes.Signature(s.oracle.Strategy())) {
		t.stats.EventsDeduplicated.Add(1)
		return
	}
	t.append(s, trace.Event{
		Kind:       trace.EventAccess,
		Debug:      di,
		BufferName: rec.Name,
		BufferID:   rec.ID,
		Write:      isWrite,
	})
}

// InstrumentRead is the read convenience wrapper around InstrumentAccess.
func (t *Tracer) InstrumentRead(callID uint32, addr trace.Address,
	funcName, fileName string, line, col uint32) {
	t.InstrumentAccess(callID, addr, false, funcName, fileName, line, col)
}

// InstrumentWrite is the write convenience wrapper around InstrumentAccess.
func (t *Tracer) InstrumentWrite(callID uint32, addr trace.Address,
	funcName, fileName string, line, col uint32) {
	t.InstrumentAccess(callID, addr, true, funcName, fileName, line, col)
}

// InstrumentScopeEntry pushes the scope activation and appends a
// ScopeEntry event unless deduplicated. The push always happens; the
// stack must reflect actual control flow even when the event does not
// make it into the log.
func (t *Tracer) InstrumentScopeEntry(callID, scopeID uint32, scopeType trace.ScopeType,
	funcName, fileName string, line, col uint32) {
	defer backstop()
	di := t.debugInfo(funcName, fileName, line, col)

	s := t.state.WLock()
	defer t.state.WUnlock(&s)

	// The dedup key uses the enclosing context. Scope ids are unique per
	// activation, so a signature containing the fresh id itself would
	// never repeat.
	sig := s.scopes.Signature(s.oracle.Strategy())
	s.scopes.Push(scopeID)
	log.Debugf("memtrace: entering scope %d (%s) in %s",
		scopeID, scopeType.Tag(), di.FuncName)

	if s.oracle.IsDuplicate(callID, sig) {
		t.stats.EventsDeduplicated.Add(1)
		return
	}
	t.append(s, trace.Event{
		Kind:    trace.EventScopeEntry,
		Debug:   di,
		ScopeID: scopeID,
		Scope:   scopeType,
	})
}

// InstrumentScopeExit closes the scope activation and reconciles the
// stack. When control left several scopes at once without visiting their
// own exit instrumentation (early return through nested loops, exception
// unwind, a non-local jump), the intervening scopes are popped and
// inferred ScopeExit events are emitted for them at the current call's
// location. Exits for ids that are not open are no-ops; an id that is
// gone after reconciliation produces a warning unless the scope type is
// parallel, where a second legitimate exit per entry is expected.
func (t *Tracer) InstrumentScopeExit(callID, scopeID uint32, scopeType trace.ScopeType,
	funcName, fileName string, line, col uint32) {
	defer backstop()
	di := t.debugInfo(funcName, fileName, line, col)

	s := t.state.WLock()
	defer t.state.WUnlock(&s)

	if !s.scopes.IsOpen(scopeID) {
		// Double exit: two overlapping instrumentation edges covering
		// one construct, or an already-reconciled id.
		return
	}
	s.scopes.Close(scopeID)
	log.Debugf("memtrace: exiting scope %d in %s", scopeID, di.FuncName)

	dup := s.oracle.IsDuplicate(callID,
		s.scopes.SignatureExcluding(s.oracle.Strategy(), scopeID))

	// Inferred exits for the intervening scopes come first so the log
	// keeps correct nesting: inner scopes close before outer ones.
	for {
		top, ok := s.scopes.Top()
		if !ok || top == scopeID {
			break
		}
		s.scopes.Pop()
		if !dup {
			t.append(s, trace.Event{
				Kind:    trace.EventScopeExit,
				Debug:   di,
				ScopeID: top,
			})
			t.stats.InferredScopeExits.Add(1)
		}
	}

	if dup {
		t.stats.EventsDeduplicated.Add(1)
	} else {
		t.append(s, trace.Event{
			Kind:    trace.EventScopeExit,
			Debug:   di,
			ScopeID: scopeID,
		})
	}

	if top, ok := s.scopes.Top(); ok && top == scopeID {
		s.scopes.Pop()
		return
	}
	// Every open id is on the stack, so the loop above always stops at
	// scopeID; only a corrupted id stream lands here.
	t.stats.UnmatchedScopeExits.Add(1)
	if scopeType != trace.ScopeParallel {
		log.Warnf("memtrace: exiting scope %d not found; "+
			"this likely leads to an incorrect trace", scopeID)
	}
}

// syncCacheStats publishes the allocation table's lookup-cache counters
// into the metrics. Caller holds at least the read lock.
func (t *Tracer) syncCacheStats(s *state) {
	hits, misses := s.allocs.CacheStats()
	t.stats.LookupCacheHits.Store(hits)
	t.stats.LookupCacheMisses.Store(misses)
}

// Save renders the ordered event log to path and persists it. An empty
// path falls back to the configured destination. Save is expected to run
// exactly once, at shutdown; failures are logged and returned, never
// propagated as panics.
func (t *Tracer) Save(path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("suppressed panic in save: %v", r)
			log.Errorf("memtrace: %v", err)
		}
	}()
	if path == "" {
		path = t.cfg.SavePath
	}
	if path == "" {
		path = DefaultSavePath
	}

	s := t.state.RLock()
	defer t.state.RUnlock(&s)

	if err := reporter.Save(path, s.events); err != nil {
		log.Errorf("memtrace: failed to save trace: %v", err)
		return fmt.Errorf("failed to save trace: %w", err)
	}

	t.syncCacheStats(s)
	snap := t.stats.Snapshot()
	log.Infof("memtrace: saved %d events to %s "+
		"(deduplicated %d, inferred exits %d, dropped accesses %d, "+
		"lookup cache %d/%d hits)",
		len(s.events), path, snap.EventsDeduplicated,
		snap.InferredScopeExits, snap.DroppedAccesses,
		snap.LookupCacheHits, snap.LookupCacheHits+snap.LookupCacheMisses)
	return nil
}

// Events returns a copy of the recorded event log in recording order.
func (t *Tracer) Events() []trace.Event {
	s := t.state.RLock()
	defer t.state.RUnlock(&s)
	out := make([]trace.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Metrics returns a snapshot of the engine's self-observation counters.
func (t *Tracer) Metrics() metrics.Snapshot {
	s := t.state.RLock()
	defer t.state.RUnlock(&s)
	t.syncCacheStats(s)
	return t.stats.Snapshot()
}
