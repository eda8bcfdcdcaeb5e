// Copyright The Memtrace Authors
// SPDX-License-Identifier: Apache-2.0

package scopestack

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memtrace/memtrace/dedup"
)

func TestPushPop(t *testing.T) {
	s := New()

	_, ok := s.Top()
	require.False(t, ok)
	_, ok = s.Pop()
	require.False(t, ok)

	s.Push(1)
	s.Push(2)
	require.Equal(t, 2, s.Depth())
	require.True(t, s.IsOpen(1))
	require.True(t, s.IsOpen(2))

	top, ok := s.Top()
	require.True(t, ok)
	require.Equal(t, uint32(2), top)

	id, ok := s.Pop()
	require.True(t, ok)
	require.Equal(t, uint32(2), id)
	require.False(t, s.IsOpen(2))
	require.Equal(t, 1, s.Depth())
}

func TestClose(t *testing.T) {
	s := New()
	s.Push(7)
	require.True(t, s.IsOpen(7))
	s.Close(7)
	require.False(t, s.IsOpen(7))
	// Closed ids stay on the stack until popped.
	require.Equal(t, 1, s.Depth())
	// Closing an id that was never pushed does nothing.
	s.Close(99)
	require.False(t, s.IsOpen(99))
}

func TestExactSignature(t *testing.T) {
	s := New()
	require.Equal(t, "", s.Signature(dedup.StrategyExact).Key)

	s.Push(10)
	s.Push(20)
	s.Push(30)
	require.Equal(t, "10,20,30", s.Signature(dedup.StrategyExact).Key)
	require.Equal(t, "10,20", s.SignatureExcluding(dedup.StrategyExact, 30).Key)
	require.Equal(t, "10,30", s.SignatureExcluding(dedup.StrategyExact, 20).Key)
}

// The incremental accumulators must behave as if recomputed from scratch:
// pushing and popping back to a previous shape restores every signature.
func TestAccumulatorsRestoreOnPop(t *testing.T) {
	strategies := []dedup.Strategy{
		dedup.StrategyExact, dedup.StrategySet, dedup.StrategySum, dedup.StrategyAltSum,
	}

	s := New()
	s.Push(5)
	s.Push(11)
	before := make(map[dedup.Strategy]dedup.Signature)
	for _, st := range strategies {
		before[st] = s.Signature(st)
	}

	s.Push(42)
	s.Push(99)
	s.Pop()
	s.Pop()

	for _, st := range strategies {
		require.Equal(t, before[st], s.Signature(st), "strategy %s", st)
	}
}

// Excluding the top id must yield the same signature as the stack without
// that id ever pushed.
func TestSignatureExcludingMatchesShorterStack(t *testing.T) {
	strategies := []dedup.Strategy{
		dedup.StrategyExact, dedup.StrategySet, dedup.StrategySum, dedup.StrategyAltSum,
	}

	short := New()
	short.Push(5)
	short.Push(11)

	full := New()
	full.Push(5)
	full.Push(11)
	full.Push(42)

	for _, st := range strategies {
		require.Equal(t, short.Signature(st), full.SignatureExcluding(st, 42),
			"strategy %s", st)
	}
}

func TestSetSignatureIgnoresOrder(t *testing.T) {
	a := New()
	a.Push(1)
	a.Push(2)

	b := New()
	b.Push(2)
	b.Push(1)

	require.Equal(t, a.Signature(dedup.StrategySet), b.Signature(dedup.StrategySet))
	require.NotEqual(t, a.Signature(dedup.StrategyExact), b.Signature(dedup.StrategyExact))
}

func TestReset(t *testing.T) {
	s := New()
	s.Push(1)
	s.Push(2)
	s.Reset()
	require.Equal(t, 0, s.Depth())
	require.False(t, s.IsOpen(1))
	require.Equal(t, dedup.Signature{}, s.Signature(dedup.StrategySet))
	require.Equal(t, "", s.Signature(dedup.StrategyExact).Key)
}
