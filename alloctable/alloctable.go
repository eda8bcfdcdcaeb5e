// Copyright The Memtrace Authors
// SPDX-License-Identifier: Apache-2.0

// Package alloctable maintains the table of live tracked allocations and
// attributes raw accessed addresses to them by interval containment.
package alloctable // import "github.com/memtrace/memtrace/alloctable"

import (
	"fmt"
	"sort"

	freelru "github.com/elastic/go-freelru"

	"github.com/memtrace/memtrace/trace"
)

// DefaultLookupCacheSize bounds the containment-lookup cache. Hot loops
// tend to touch a small working set of addresses over and over.
const DefaultLookupCacheSize = 4096

// Record describes one live tracked allocation.
type Record struct {
	// Name is the registered (already truncated) buffer name.
	Name string
	// ID is a display-only numeric id derived from the base address.
	ID uint64
	// Size is the allocation size in bytes.
	Size uint64
}

// Table is an ordered map from base address to allocation record. It
// supports exact lookups and greatest-base-not-above containment lookups.
// Table is not safe for concurrent use; the engine serializes access.
type Table struct {
	records map[trace.Address]Record
	// bases is the sorted index over the keys of records.
	bases []trace.Address

	// lookupCache memoizes FindContaining results keyed by the raw
	// accessed address. It is purged on every mutation.
	lookupCache *freelru.LRU[trace.Address, Record]

	// inclusiveBound restores the original inclusive containment bound
	// (addr <= base+size), which attributes the one-past-the-end address
	// to the buffer. Off by default.
	inclusiveBound bool

	cacheHits   uint64
	cacheMisses uint64
}

// Option configures a Table.
type Option func(*Table)

// WithInclusiveBound makes containment lookups treat base+size as inside
// the allocation. Only needed for byte-for-byte compatibility with traces
// produced by the legacy runtime.
func WithInclusiveBound() Option {
	return func(t *Table) { t.inclusiveBound = true }
}

// New creates an empty table with a lookup cache of the given capacity.
func New(cacheSize uint32, opts ...Option) (*Table, error) {
	t := &Table{
		records: make(map[trace.Address]Record),
	}
	for _, opt := range opts {
		opt(t)
	}
	cache, err := freelru.New[trace.Address, Record](cacheSize, trace.Address.Hash32)
	if err != nil {
		return nil, fmt.Errorf("failed to create lookup cache: %w", err)
	}
	t.lookupCache = cache
	return t, nil
}

// Len returns the number of live records.
func (t *Table) Len() int {
	return len(t.records)
}

// Register stores a record for addr, overwriting any previous record at
// the same base. A new allocation at a freed-and-reused address is the
// common overwrite case.
func (t *Table) Register(addr trace.Address, name string, size uint64) Record {
	rec := Record{
		Name: name,
		ID:   uint64(addr),
		Size: size,
	}
	if _, exists := t.records[addr]; !exists {
		i := sort.Search(len(t.bases), func(i int) bool {
			return t.bases[i] >= addr
		})
		t.bases = append(t.bases, 0)
		copy(t.bases[i+1:], t.bases[i:])
		t.bases[i] = addr
	}
	t.records[addr] = rec
	t.lookupCache.Purge()
	return rec
}

// Unregister removes and returns the record at addr. Deallocating an
// untracked address is a silent no-op.
func (t *Table) Unregister(addr trace.Address) (Record, bool) {
	rec, exists := t.records[addr]
	if !exists {
		return Record{}, false
	}
	delete(t.records, addr)
	i := sort.Search(len(t.bases), func(i int) bool {
		return t.bases[i] >= addr
	})
	t.bases = append(t.bases[:i], t.bases[i+1:]...)
	t.lookupCache.Purge()
	return rec, true
}

// FindContaining locates the record whose interval contains addr: the
// record with the greatest base not above addr. An exact base match wins
// unconditionally; otherwise the preceding record qualifies only if addr
// falls within its extent. Accesses to memory that was never registered
// (stack locals, globals, foreign allocators) resolve to nothing.
func (t *Table) FindContaining(addr trace.Address) (Record, bool) {
	if rec, ok := t.lookupCache.Get(addr); ok {
		t.cacheHits++
		return rec, true
	}
	t.cacheMisses++

	// First index with base > addr; the candidate sits right before it.
	i := sort.Search(len(t.bases), func(i int) bool {
		return t.bases[i] > addr
	})
	if i == 0 {
		return Record{}, false
	}
	base := t.bases[i-1]
	rec := t.records[base]
	if base != addr && !t.contains(base, rec.Size, addr) {
		return Record{}, false
	}
	t.lookupCache.Add(addr, rec)
	return rec, true
}

func (t *Table) contains(base trace.Address, size uint64, addr trace.Address) bool {
	end := base + trace.Address(size)
	if t.inclusiveBound {
		return addr <= end
	}
	return addr < end
}

// CacheStats returns the lookup cache hit and miss counts since the last
// reset. Lookups that resolve to no record count as misses too; failed
// results are not cached.
func (t *Table) CacheStats() (hits, misses uint64) {
	return t.cacheHits, t.cacheMisses
}

// Reset drops all records and cached lookups.
func (t *Table) Reset() {
	t.records = make(map[trace.Address]Record)
	t.bases = t.bases[:0]
	t.lookupCache.Purge()
	t.cacheHits = 0
	t.cacheMisses = 0
}
