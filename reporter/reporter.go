// Copyright The Memtrace Authors
// SPDX-License-Identifier: Apache-2.0

// Package reporter renders the ordered event log into the external trace
// document: a JSON object with a single "events" array, one element per
// event in recording order.
package reporter // import "github.com/memtrace/memtrace/reporter"

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/memtrace/memtrace/trace"
)

// commonFields carries the per-event provenance every element starts
// with. Field order here is document order.
type commonFields struct {
	FuncName string `json:"funcname"`
	FileName string `json:"filename"`
	Line     uint32 `json:"line"`
	Col      uint32 `json:"col"`
	Type     string `json:"type"`
}

type allocationFields struct {
	commonFields
	BufferName string `json:"buffer_name"`
	BufferID   uint64 `json:"buffer_id"`
	Size       uint64 `json:"size"`
}

type deallocationFields struct {
	commonFields
	BufferName string `json:"buffer_name"`
	BufferID   uint64 `json:"buffer_id"`
}

type accessFields struct {
	commonFields
	Mode       string `json:"mode"`
	BufferName string `json:"buffer_name"`
	BufferID   uint64 `json:"buffer_id"`
}

type scopeEntryFields struct {
	commonFields
	ScopeType string `json:"scope_type"`
	ID        uint32 `json:"id"`
}

type scopeExitFields struct {
	commonFields
	ID uint32 `json:"id"`
}

func marshalEvent(ev *trace.Event) ([]byte, error) {
	common := commonFields{
		FuncName: ev.Debug.FuncName,
		FileName: ev.Debug.FileName,
		Line:     ev.Debug.Line,
		Col:      ev.Debug.Col,
		Type:     ev.Kind.Tag(),
	}
	switch ev.Kind {
	case trace.EventAllocation:
		return json.Marshal(allocationFields{
			commonFields: common,
			BufferName:   ev.BufferName,
			BufferID:     ev.BufferID,
			Size:         ev.Size,
		})
	case trace.EventDeallocation:
		return json.Marshal(deallocationFields{
			commonFields: common,
			BufferName:   ev.BufferName,
			BufferID:     ev.BufferID,
		})
	case trace.EventAccess:
		mode := "r"
		if ev.Write {
			mode = "w"
		}
		return json.Marshal(accessFields{
			commonFields: common,
			Mode:         mode,
			BufferName:   ev.BufferName,
			BufferID:     ev.BufferID,
		})
	case trace.EventScopeEntry:
		return json.Marshal(scopeEntryFields{
			commonFields: common,
			ScopeType:    ev.Scope.Tag(),
			ID:           ev.ScopeID,
		})
	case trace.EventScopeExit:
		return json.Marshal(scopeExitFields{
			commonFields: common,
			ID:           ev.ScopeID,
		})
	default:
		return nil, fmt.Errorf("unknown event kind %d", ev.Kind)
	}
}

// Write streams the document for events to w. Structural characters in
// embedded names are escaped by the JSON encoder, so a hostile buffer
// name cannot break the document.
func Write(w io.Writer, events []trace.Event) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("{\n  \"events\": [\n"); err != nil {
		return err
	}
	for i := range events {
		b, err := marshalEvent(&events[i])
		if err != nil {
			return err
		}
		if i > 0 {
			if _, err := bw.WriteString(",\n"); err != nil {
				return err
			}
		}
		if _, err := bw.WriteString("    "); err != nil {
			return err
		}
		if _, err := bw.Write(b); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("\n  ]\n}\n"); err != nil {
		return err
	}
	return bw.Flush()
}

// Save writes the document for events to path. The write goes through a
// temporary file in the same directory followed by a rename, so a crash
// mid-save never leaves a truncated document behind. A ".gz" suffix
// selects gzip compression.
func Save(path string, events []trace.Event) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	var w io.Writer = tmp
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(tmp)
		w = gz
	}

	if err := Write(w, events); err != nil {
		tmp.Close()
		return err
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to finish compression: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move trace into place: %w", err)
	}
	return nil
}
