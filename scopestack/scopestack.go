// Copyright The Memtrace Authors
// SPDX-License-Identifier: Apache-2.0

// Package scopestack tracks the stack of live scope activations for the
// primary thread of control and maintains the incremental accumulators
// the dedup signature strategies are computed from.
package scopestack // import "github.com/memtrace/memtrace/scopestack"

import (
	"encoding/binary"
	"strconv"

	"github.com/zeebo/xxh3"

	"github.com/memtrace/memtrace/dedup"
)

// hashID hashes one scope id for the set-based signature. The xor-fold of
// per-id hashes makes membership order-insensitive while staying O(1) to
// update on push and pop.
func hashID(id uint32) uint64 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], id)
	return xxh3.Hash(buf[:])
}

// Stack is the ordered sequence of scope ids pushed by scope-entry
// instrumentation, together with an open-membership map. Under correct
// instrumentation the stack is LIFO; the engine's reconciliation tolerates
// violations. Stack is not safe for concurrent use; the engine serializes
// access.
type Stack struct {
	ids []uint32
	// open tracks which pushed ids have not been closed yet. Ids stay
	// on the stack after being closed until reconciliation pops them.
	open map[uint32]bool

	// Incremental signature accumulators, updated on push/pop.
	setHash uint64
	sum     uint64
	altSum  uint64
}

// New creates an empty stack.
func New() *Stack {
	return &Stack{
		open: make(map[uint32]bool),
	}
}

// Push records entry into the scope id and marks it open.
func (s *Stack) Push(id uint32) {
	depth := len(s.ids)
	s.ids = append(s.ids, id)
	s.open[id] = true

	s.setHash ^= hashID(id)
	s.sum += uint64(id)
	if depth%2 == 0 {
		s.altSum += uint64(id)
	} else {
		s.altSum -= uint64(id)
	}
}

// Pop removes and returns the top id, updating the accumulators. The
// second return value is false on an empty stack.
func (s *Stack) Pop() (uint32, bool) {
	if len(s.ids) == 0 {
		return 0, false
	}
	depth := len(s.ids) - 1
	id := s.ids[depth]
	s.ids = s.ids[:depth]
	delete(s.open, id)

	s.setHash ^= hashID(id)
	s.sum -= uint64(id)
	if depth%2 == 0 {
		s.altSum -= uint64(id)
	} else {
		s.altSum += uint64(id)
	}
	return id, true
}

// Top returns the current top id without removing it.
func (s *Stack) Top() (uint32, bool) {
	if len(s.ids) == 0 {
		return 0, false
	}
	return s.ids[len(s.ids)-1], true
}

// IsOpen reports whether id has been pushed and not yet closed.
func (s *Stack) IsOpen(id uint32) bool {
	return s.open[id]
}

// Close marks id closed. The id stays on the stack until popped.
func (s *Stack) Close(id uint32) {
	if _, ok := s.open[id]; ok {
		s.open[id] = false
	}
}

// Depth returns the number of ids on the stack, closed ones included.
func (s *Stack) Depth() int {
	return len(s.ids)
}

// Reset empties the stack and zeroes the accumulators.
func (s *Stack) Reset() {
	s.ids = s.ids[:0]
	s.open = make(map[uint32]bool)
	s.setHash = 0
	s.sum = 0
	s.altSum = 0
}

// Signature summarizes the current stack under the given strategy.
func (s *Stack) Signature(strategy dedup.Strategy) dedup.Signature {
	switch strategy {
	case dedup.StrategyExact:
		return dedup.Signature{Key: s.render(0, false)}
	case dedup.StrategySet:
		return dedup.Signature{Hash: s.setHash}
	case dedup.StrategySum:
		return dedup.Signature{Hash: s.sum}
	case dedup.StrategyAltSum:
		return dedup.Signature{Hash: s.altSum}
	default:
		return dedup.Signature{}
	}
}

// SignatureExcluding summarizes the stack as if id were not on it. Scope
// entry and exit of the same activation are deduplicated against the
// enclosing context this way; scope ids are unique per activation, so a
// signature containing the id itself could never repeat.
//
// For StrategyAltSum the removed id is assumed to sit on top of the
// stack; removing a buried id would flip the parity of everything above
// it. The approximation only widens the strategy's already-accepted
// collision window.
func (s *Stack) SignatureExcluding(strategy dedup.Strategy, id uint32) dedup.Signature {
	switch strategy {
	case dedup.StrategyExact:
		return dedup.Signature{Key: s.render(id, true)}
	case dedup.StrategySet:
		return dedup.Signature{Hash: s.setHash ^ hashID(id)}
	case dedup.StrategySum:
		return dedup.Signature{Hash: s.sum - uint64(id)}
	case dedup.StrategyAltSum:
		alt := s.altSum
		if (len(s.ids)-1)%2 == 0 {
			alt -= uint64(id)
		} else {
			alt += uint64(id)
		}
		return dedup.Signature{Hash: alt}
	default:
		return dedup.Signature{}
	}
}

// render produces the exact ordered, delimited rendering of the stack,
// optionally skipping the last occurrence of skip.
func (s *Stack) render(skip uint32, doSkip bool) string {
	skipIdx := -1
	if doSkip {
		for i := len(s.ids) - 1; i >= 0; i-- {
			if s.ids[i] == skip {
				skipIdx = i
				break
			}
		}
	}
	var buf []byte
	for i, id := range s.ids {
		if i == skipIdx {
			continue
		}
		if len(buf) > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendUint(buf, uint64(id), 10)
	}
	return string(buf)
}
