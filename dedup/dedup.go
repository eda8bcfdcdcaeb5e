// Copyright The Memtrace Authors
// SPDX-License-Identifier: Apache-2.0

// Package dedup decides whether an instrumentation event is the first of
// its kind for a given (callsite, calling context) pair. It bounds trace
// growth for callsites re-executed many times with an unchanged enclosing
// scope stack: loop bodies and hot call sites.
package dedup // import "github.com/memtrace/memtrace/dedup"

import "fmt"

// Strategy selects how the scope stack is summarized into a signature.
//
// The strategies are not equivalent: Exact never collides, Set is
// collision-free as long as scope ids are globally unique, and the two
// sum variants accept rare accidental collisions through numeric
// cancellation. The choice is deliberately caller-visible.
type Strategy uint8

const (
	// StrategyExact renders the full ordered stack. Zero collisions,
	// O(depth) per recorded event.
	StrategyExact Strategy = iota
	// StrategySet hashes stack membership, ignoring order. O(1) per
	// push/pop, collision-free given globally unique scope ids.
	StrategySet
	// StrategySum keeps a plain running sum of scope ids. Cheapest,
	// admits false-positive duplicates via cancellation.
	StrategySum
	// StrategyAltSum alternates the sign of the contribution by stack
	// depth parity, which breaks most of StrategySum's cancellations.
	StrategyAltSum
	// StrategyOff disables deduplication entirely: every event is
	// recorded, yielding a full execution trace instead of a
	// structural summary.
	StrategyOff
)

// StrategyFromString parses a strategy name as accepted on command lines
// and in configuration.
func StrategyFromString(s string) (Strategy, error) {
	switch s {
	case "exact":
		return StrategyExact, nil
	case "set":
		return StrategySet, nil
	case "sum":
		return StrategySum, nil
	case "altsum":
		return StrategyAltSum, nil
	case "off":
		return StrategyOff, nil
	default:
		return StrategyExact, fmt.Errorf("unknown dedup strategy %q", s)
	}
}

func (s Strategy) String() string {
	switch s {
	case StrategyExact:
		return "exact"
	case StrategySet:
		return "set"
	case StrategySum:
		return "sum"
	case StrategyAltSum:
		return "altsum"
	case StrategyOff:
		return "off"
	default:
		return "unknown"
	}
}

// Signature summarizes the composition of the open-scope stack at the
// time of an event. Key carries the exact rendering, Hash the value of
// the hashed strategies; exactly one of the two is meaningful for any
// given strategy.
type Signature struct {
	Key  string
	Hash uint64
}

// Oracle remembers every (callsite id, signature) pair observed since the
// last reset. Memory grows monotonically between resets.
type Oracle struct {
	strategy Strategy
	seen     map[uint32]map[Signature]struct{}
}

// NewOracle creates an oracle using the given signature strategy.
func NewOracle(strategy Strategy) *Oracle {
	return &Oracle{
		strategy: strategy,
		seen:     make(map[uint32]map[Signature]struct{}),
	}
}

// Strategy returns the configured signature strategy.
func (o *Oracle) Strategy() Strategy {
	return o.strategy
}

// IsDuplicate reports whether the pair (callsiteID, sig) has been seen
// before and records it otherwise. A duplicate verdict only ever
// suppresses the event itself; scope-stack and allocation-table
// bookkeeping always happens regardless.
func (o *Oracle) IsDuplicate(callsiteID uint32, sig Signature) bool {
	if o.strategy == StrategyOff {
		return false
	}
	sigs, ok := o.seen[callsiteID]
	if !ok {
		o.seen[callsiteID] = map[Signature]struct{}{sig: {}}
		return false
	}
	if _, ok := sigs[sig]; ok {
		return true
	}
	sigs[sig] = struct{}{}
	return false
}

// Reset forgets all recorded pairs.
func (o *Oracle) Reset() {
	o.seen = make(map[uint32]map[Signature]struct{})
}
