// Copyright The Memtrace Authors
// SPDX-License-Identifier: Apache-2.0

package tracer // import "github.com/memtrace/memtrace/tracer"

import (
	"github.com/memtrace/memtrace/alloctable"
	"github.com/memtrace/memtrace/dedup"
	"github.com/memtrace/memtrace/trace"
)

// DefaultSavePath is used when Save is called with an empty destination.
const DefaultSavePath = "memtrace.json"

// Config carries the tunables of a Tracer. The zero value is not usable;
// start from DefaultConfig.
type Config struct {
	// MaxFuncNameLen, MaxFileNameLen and MaxBufferNameLen cap the
	// provenance strings kept per event. Longer names are truncated,
	// never rejected.
	MaxFuncNameLen   int
	MaxFileNameLen   int
	MaxBufferNameLen int

	// DedupStrategy selects the stack-signature strategy used to
	// suppress repeated events. StrategyOff records everything.
	DedupStrategy dedup.Strategy

	// LookupCacheSize bounds the allocation-table containment cache.
	LookupCacheSize uint32

	// CompatInclusiveBound restores the legacy inclusive containment
	// bound, attributing one-past-the-end accesses to the buffer.
	CompatInclusiveBound bool

	// SavePath is the destination used by Save("").
	SavePath string
}

// DefaultConfig returns the configuration matching the legacy runtime's
// name caps, with the exclusive containment bound and exact dedup.
func DefaultConfig() Config {
	return Config{
		MaxFuncNameLen:   trace.DefaultMaxFuncNameLen,
		MaxFileNameLen:   trace.DefaultMaxFileNameLen,
		MaxBufferNameLen: trace.DefaultMaxBufferNameLen,
		DedupStrategy:    dedup.StrategyExact,
		LookupCacheSize:  alloctable.DefaultLookupCacheSize,
		SavePath:         DefaultSavePath,
	}
}
