// Copyright The Memtrace Authors
// SPDX-License-Identifier: Apache-2.0

package trace // import "github.com/memtrace/memtrace/trace"

import "unicode/utf8"

// Name caps applied to provenance strings. The instrumentation pass can
// synthesize arbitrarily long symbol and path names; everything beyond the
// cap is cut off and stays cut off.
const (
	DefaultMaxFuncNameLen   = 64
	DefaultMaxFileNameLen   = 256
	DefaultMaxBufferNameLen = 64
)

// UnknownName substitutes for empty names handed in by the
// instrumentation pass.
const UnknownName = "$UNKNOWN$"

// DebugInfo records the source location an event originated from.
type DebugInfo struct {
	FuncName string
	FileName string
	Line     uint32
	Col      uint32
}

// NewDebugInfo builds a DebugInfo, substituting UnknownName for empty
// names and truncating oversized ones to the given caps.
func NewDebugInfo(funcName, fileName string, line, col uint32,
	maxFunc, maxFile int) DebugInfo {
	return DebugInfo{
		FuncName: TruncateName(funcName, maxFunc),
		FileName: TruncateName(fileName, maxFile),
		Line:     line,
		Col:      col,
	}
}

// TruncateName returns name capped at maxLen bytes, or UnknownName if
// name is empty. Truncation is lossy and silent. A cap landing inside a
// multibyte rune backs off to the preceding boundary so the result stays
// valid UTF-8.
func TruncateName(name string, maxLen int) string {
	if name == "" {
		return UnknownName
	}
	if maxLen <= 0 || len(name) <= maxLen {
		return name
	}
	for maxLen > 0 && !utf8.RuneStart(name[maxLen]) {
		maxLen--
	}
	return name[:maxLen]
}
