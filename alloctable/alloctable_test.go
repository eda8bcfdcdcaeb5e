// Copyright The Memtrace Authors
// SPDX-License-Identifier: Apache-2.0

package alloctable

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memtrace/memtrace/trace"
)

func newTable(t *testing.T, opts ...Option) *Table {
	t.Helper()
	tbl, err := New(128, opts...)
	require.NoError(t, err)
	return tbl
}

func TestRegisterUnregister(t *testing.T) {
	tbl := newTable(t)

	rec := tbl.Register(0x1000, "x", 40)
	require.Equal(t, "x", rec.Name)
	require.Equal(t, uint64(0x1000), rec.ID)
	require.Equal(t, 1, tbl.Len())

	// Re-registration at a freed-and-reused address overwrites.
	rec = tbl.Register(0x1000, "y", 8)
	require.Equal(t, "y", rec.Name)
	require.Equal(t, 1, tbl.Len())

	got, ok := tbl.Unregister(0x1000)
	require.True(t, ok)
	require.Equal(t, "y", got.Name)
	require.Equal(t, 0, tbl.Len())

	// Unregistering an untracked address is a silent no-op.
	_, ok = tbl.Unregister(0x1000)
	require.False(t, ok)
}

func TestFindContaining(t *testing.T) {
	tests := map[string]struct {
		inclusive    bool
		addr         trace.Address
		expectedName string
		expectedOK   bool
	}{
		"exact base match":          {addr: 0x1000, expectedName: "x", expectedOK: true},
		"last byte inside":          {addr: 0x1000 + 39, expectedName: "x", expectedOK: true},
		"one past the end":          {addr: 0x1000 + 40, expectedOK: false},
		"one past the end, compat":  {inclusive: true, addr: 0x1000 + 40, expectedName: "x", expectedOK: true},
		"two past the end, compat":  {inclusive: true, addr: 0x1000 + 41, expectedOK: false},
		"beyond the allocation":     {addr: 0x1000 + 41, expectedOK: false},
		"below the lowest base":     {addr: 0xfff, expectedOK: false},
		"second allocation base":    {addr: 0x2000, expectedName: "y", expectedOK: true},
		"between the two, inside x": {addr: 0x1010, expectedName: "x", expectedOK: true},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var opts []Option
			if test.inclusive {
				opts = append(opts, WithInclusiveBound())
			}
			tbl := newTable(t, opts...)
			tbl.Register(0x1000, "x", 40)
			tbl.Register(0x2000, "y", 16)

			rec, ok := tbl.FindContaining(test.addr)
			require.Equal(t, test.expectedOK, ok)
			if ok {
				require.Equal(t, test.expectedName, rec.Name)
			}
		})
	}
}

func TestFindAfterUnregister(t *testing.T) {
	tbl := newTable(t)
	tbl.Register(0x1000, "x", 40)

	// Warm the lookup cache, then make sure unregistering purges it.
	_, ok := tbl.FindContaining(0x1008)
	require.True(t, ok)
	_, ok = tbl.Unregister(0x1000)
	require.True(t, ok)
	_, ok = tbl.FindContaining(0x1008)
	require.False(t, ok)
	_, ok = tbl.FindContaining(0x1000)
	require.False(t, ok)
}

func TestLookupCache(t *testing.T) {
	tbl := newTable(t)
	tbl.Register(0x1000, "x", 64)

	_, ok := tbl.FindContaining(0x1010)
	require.True(t, ok)
	_, ok = tbl.FindContaining(0x1010)
	require.True(t, ok)

	hits, misses := tbl.CacheStats()
	require.Equal(t, uint64(1), hits)
	require.Equal(t, uint64(1), misses)

	// Lookups that resolve to nothing count as misses and are not
	// cached, so they count again on repetition.
	_, ok = tbl.FindContaining(0x9000)
	require.False(t, ok)
	_, ok = tbl.FindContaining(0x9000)
	require.False(t, ok)

	hits, misses = tbl.CacheStats()
	require.Equal(t, uint64(1), hits)
	require.Equal(t, uint64(3), misses)
}

func TestReset(t *testing.T) {
	tbl := newTable(t)
	tbl.Register(0x1000, "x", 40)
	tbl.Register(0x2000, "y", 16)
	tbl.Reset()
	require.Equal(t, 0, tbl.Len())
	_, ok := tbl.FindContaining(0x1000)
	require.False(t, ok)
}
