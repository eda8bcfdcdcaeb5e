// Copyright The Memtrace Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics collects process-lifetime counters about the recording
// engine itself. Counters are cheap atomics so the hot instrumentation
// path never blocks on them.
package metrics // import "github.com/memtrace/memtrace/metrics"

import "sync/atomic"

// Metrics aggregates the engine's self-observation counters.
type Metrics struct {
	// EventsRecorded counts events appended to the log.
	EventsRecorded atomic.Uint64
	// EventsDeduplicated counts events suppressed by the dedup oracle.
	EventsDeduplicated atomic.Uint64
	// InferredScopeExits counts synthetic exits emitted by reconciliation.
	InferredScopeExits atomic.Uint64
	// DroppedAccesses counts accesses that resolved to no tracked buffer.
	DroppedAccesses atomic.Uint64
	// DroppedDeallocations counts deallocations of untracked addresses.
	DroppedDeallocations atomic.Uint64
	// UnmatchedScopeExits counts exits whose id was gone after
	// reconciliation.
	UnmatchedScopeExits atomic.Uint64
	// LookupCacheHits and LookupCacheMisses mirror the allocation
	// table's containment-cache counters.
	LookupCacheHits   atomic.Uint64
	LookupCacheMisses atomic.Uint64
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	EventsRecorded       uint64
	EventsDeduplicated   uint64
	InferredScopeExits   uint64
	DroppedAccesses      uint64
	DroppedDeallocations uint64
	UnmatchedScopeExits  uint64
	LookupCacheHits      uint64
	LookupCacheMisses    uint64
}

// Snapshot returns a consistent-enough copy of the counters. Individual
// loads are atomic; the set as a whole is advisory.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		EventsRecorded:       m.EventsRecorded.Load(),
		EventsDeduplicated:   m.EventsDeduplicated.Load(),
		InferredScopeExits:   m.InferredScopeExits.Load(),
		DroppedAccesses:      m.DroppedAccesses.Load(),
		DroppedDeallocations: m.DroppedDeallocations.Load(),
		UnmatchedScopeExits:  m.UnmatchedScopeExits.Load(),
		LookupCacheHits:      m.LookupCacheHits.Load(),
		LookupCacheMisses:    m.LookupCacheMisses.Load(),
	}
}

// Reset zeroes all counters.
func (m *Metrics) Reset() {
	m.EventsRecorded.Store(0)
	m.EventsDeduplicated.Store(0)
	m.InferredScopeExits.Store(0)
	m.DroppedAccesses.Store(0)
	m.DroppedDeallocations.Store(0)
	m.UnmatchedScopeExits.Store(0)
	m.LookupCacheHits.Store(0)
	m.LookupCacheMisses.Store(0)
}
