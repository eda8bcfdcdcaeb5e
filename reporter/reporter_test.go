// Copyright The Memtrace Authors
// SPDX-License-Identifier: Apache-2.0

package reporter_test

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memtrace/memtrace/reporter"
	"github.com/memtrace/memtrace/trace"
	"github.com/memtrace/memtrace/tracefile"
)

func sampleEvents() []trace.Event {
	di := trace.DebugInfo{FuncName: "main", FileName: "main.c", Line: 10, Col: 2}
	return []trace.Event{
		{Kind: trace.EventScopeEntry, Debug: di, ScopeID: 1, Scope: trace.ScopeFunction},
		{Kind: trace.EventAllocation, Debug: di, BufferName: "buf", BufferID: 0x1000, Size: 64},
		{Kind: trace.EventAccess, Debug: di, BufferName: "buf", BufferID: 0x1000, Write: true},
		{Kind: trace.EventAccess, Debug: di, BufferName: "buf", BufferID: 0x1000},
		{Kind: trace.EventDeallocation, Debug: di, BufferName: "buf", BufferID: 0x1000},
		{Kind: trace.EventScopeExit, Debug: di, ScopeID: 1},
	}
}

func TestWriteDocument(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, reporter.Write(&buf, sampleEvents()))

	var doc struct {
		Events []map[string]any `json:"events"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Events, 6)

	require.Equal(t, "scope_entry", doc.Events[0]["type"])
	require.Equal(t, "func", doc.Events[0]["scope_type"])
	require.Equal(t, float64(1), doc.Events[0]["id"])
	require.Equal(t, "main", doc.Events[0]["funcname"])
	require.Equal(t, "main.c", doc.Events[0]["filename"])
	require.Equal(t, float64(10), doc.Events[0]["line"])
	require.Equal(t, float64(2), doc.Events[0]["col"])

	require.Equal(t, "allocation", doc.Events[1]["type"])
	require.Equal(t, float64(64), doc.Events[1]["size"])
	require.Equal(t, "buf", doc.Events[1]["buffer_name"])

	require.Equal(t, "w", doc.Events[2]["mode"])
	require.Equal(t, "r", doc.Events[3]["mode"])

	// A scope exit carries the id only, no scope type.
	_, hasScopeType := doc.Events[5]["scope_type"]
	require.False(t, hasScopeType)
}

func TestWriteEmptyLog(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, reporter.Write(&buf, nil))

	var doc struct {
		Events []map[string]any `json:"events"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Empty(t, doc.Events)
}

// Structural characters in embedded names must not break the document.
func TestHostileNamesAreEscaped(t *testing.T) {
	events := []trace.Event{{
		Kind: trace.EventAllocation,
		Debug: trace.DebugInfo{
			FuncName: `fn"with\quotes`,
			FileName: "dir/}{\nfile.c",
		},
		BufferName: `buf"],"events":[`,
		BufferID:   1,
		Size:       8,
	}}

	var buf bytes.Buffer
	require.NoError(t, reporter.Write(&buf, events))

	var doc struct {
		Events []map[string]any `json:"events"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Events, 1)
	require.Equal(t, `buf"],"events":[`, doc.Events[0]["buffer_name"])
}

func TestSaveAndLoadGzip(t *testing.T) {
	events := sampleEvents()
	path := filepath.Join(t.TempDir(), "trace.json.gz")
	require.NoError(t, reporter.Save(path, events))

	doc, err := tracefile.Load(path)
	require.NoError(t, err)
	require.Len(t, doc.Events, len(events))
	require.Empty(t, doc.Validate(true))
}

func TestSaveOverwritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.json")
	require.NoError(t, reporter.Save(path, sampleEvents()))
	require.NoError(t, reporter.Save(path, sampleEvents()[:2]))

	doc, err := tracefile.Load(path)
	require.NoError(t, err)
	require.Len(t, doc.Events, 2)
}
