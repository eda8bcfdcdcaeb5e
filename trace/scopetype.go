// Copyright The Memtrace Authors
// SPDX-License-Identifier: Apache-2.0

package trace // import "github.com/memtrace/memtrace/trace"

// ScopeType classifies the lexical region a scope event refers to.
type ScopeType uint8

const (
	ScopeFunction ScopeType = iota
	ScopeLoop
	ScopeConditional
	ScopeParallel
	ScopeUnstructured
)

// Tag returns the serialized tag for the scope type. Unknown values map
// to "n/a" rather than failing; a bad tag from a miscompiled
// instrumentation pass must not take down the host program.
func (st ScopeType) Tag() string {
	switch st {
	case ScopeFunction:
		return "func"
	case ScopeLoop:
		return "loop"
	case ScopeConditional:
		return "cond"
	case ScopeParallel:
		return "para"
	case ScopeUnstructured:
		return "unst"
	default:
		return "n/a"
	}
}

func (st ScopeType) String() string { return st.Tag() }
