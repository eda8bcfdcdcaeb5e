// Copyright The Memtrace Authors
// SPDX-License-Identifier: Apache-2.0

// Package trace defines the event model of the recording engine: addresses,
// source provenance and the tagged event variant stored in the append-only
// event log.
package trace // import "github.com/memtrace/memtrace/trace"

// EventKind indicates what kind of instrumentation event is captured.
type EventKind uint8

const (
	EventBad          EventKind = iota
	EventAllocation             // Buffer allocation.
	EventDeallocation           // Buffer deallocation.
	EventAccess                 // Read or write of a tracked buffer.
	EventScopeEntry             // Entry into a lexical scope.
	EventScopeExit              // Exit from a lexical scope, real or inferred.
)

// Tag returns the serialized type tag for the event kind.
func (k EventKind) Tag() string {
	switch k {
	case EventAllocation:
		return "allocation"
	case EventDeallocation:
		return "deallocation"
	case EventAccess:
		return "access"
	case EventScopeEntry:
		return "scope_entry"
	case EventScopeExit:
		return "scope_exit"
	default:
		return "bad"
	}
}

func (k EventKind) String() string { return k.Tag() }

// Event represents a single recorded instrumentation event. Events are
// stored by value in the engine's append-only log and released en masse
// on reset.
type Event struct {
	// Kind indicates what kind of event this is.
	// This may be assumed to always be valid.
	Kind EventKind

	// Debug is the source location the event originated from.
	// Valid for all events. For inferred scope exits it names the
	// location of the exit call that triggered the inference.
	Debug DebugInfo

	// BufferName is the registered name of the buffer involved.
	// Only valid when Kind == EventAllocation, Kind == EventDeallocation
	// or Kind == EventAccess.
	BufferName string

	// BufferID is a display-only numeric id derived from the buffer's
	// base address. Valid when BufferName is.
	BufferID uint64

	// Size is the allocation size in bytes.
	// Only valid when Kind == EventAllocation.
	Size uint64

	// Write distinguishes writes from reads.
	// Only valid when Kind == EventAccess.
	Write bool

	// ScopeID identifies the dynamic scope activation.
	// Only valid when Kind == EventScopeEntry or Kind == EventScopeExit.
	ScopeID uint32

	// Scope classifies the scope being entered.
	// Only valid when Kind == EventScopeEntry.
	Scope ScopeType
}
