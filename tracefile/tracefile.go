// Copyright The Memtrace Authors
// SPDX-License-Identifier: Apache-2.0

// Package tracefile reads saved trace documents back in and sanity-checks
// them. It is shared by the memtrace-check tool and by round-trip tests.
package tracefile // import "github.com/memtrace/memtrace/tracefile"

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Event is one element of a saved document's events array. Pointer
// fields distinguish absent from zero.
type Event struct {
	FuncName   string  `json:"funcname"`
	FileName   string  `json:"filename"`
	Line       uint32  `json:"line"`
	Col        uint32  `json:"col"`
	Type       string  `json:"type"`
	BufferName *string `json:"buffer_name"`
	BufferID   *uint64 `json:"buffer_id"`
	Size       *uint64 `json:"size"`
	Mode       *string `json:"mode"`
	ScopeType  *string `json:"scope_type"`
	ID         *uint32 `json:"id"`
}

// Document is a parsed trace document.
type Document struct {
	Events []Event `json:"events"`
}

var scopeTypeTags = map[string]bool{
	"func": true, "loop": true, "cond": true, "para": true, "unst": true,
	"n/a": true,
}

// Load reads and parses the document at path, transparently
// decompressing a ".gz" suffix.
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open compressed trace: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	return Parse(r)
}

// Parse reads a document from r.
func Parse(r io.Reader) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse trace document: %w", err)
	}
	return &doc, nil
}

// Issue describes one finding of Validate. Index is the position of the
// offending event in the document.
type Issue struct {
	Index   int
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("event %d: %s", i.Index, i.Message)
}

// Validate checks every event for structural well-formedness: a known
// type tag, the fields its kind requires and tags from their closed
// sets. With strict set it additionally simulates the scope stack and
// reports entries left open at the end of the document; that check only
// holds for traces recorded with deduplication off, since a structural
// summary intentionally drops repeated entries and exits.
func (d *Document) Validate(strict bool) []Issue {
	var issues []Issue
	bad := func(i int, format string, args ...any) {
		issues = append(issues, Issue{Index: i, Message: fmt.Sprintf(format, args...)})
	}

	var stack []uint32
	for i := range d.Events {
		ev := &d.Events[i]
		if ev.FuncName == "" || ev.FileName == "" {
			bad(i, "missing provenance")
		}
		switch ev.Type {
		case "allocation":
			if ev.BufferName == nil || ev.BufferID == nil || ev.Size == nil {
				bad(i, "allocation missing buffer fields")
			}
		case "deallocation":
			if ev.BufferName == nil || ev.BufferID == nil {
				bad(i, "deallocation missing buffer fields")
			}
		case "access":
			if ev.BufferName == nil || ev.BufferID == nil {
				bad(i, "access missing buffer fields")
			}
			if ev.Mode == nil || (*ev.Mode != "r" && *ev.Mode != "w") {
				bad(i, "access mode must be \"r\" or \"w\"")
			}
		case "scope_entry":
			if ev.ID == nil {
				bad(i, "scope_entry missing id")
			} else {
				stack = append(stack, *ev.ID)
			}
			if ev.ScopeType == nil || !scopeTypeTags[*ev.ScopeType] {
				bad(i, "scope_entry has unknown scope_type")
			}
		case "scope_exit":
			if ev.ID == nil {
				bad(i, "scope_exit missing id")
				continue
			}
			if !strict {
				continue
			}
			if len(stack) == 0 {
				bad(i, "scope_exit %d with empty stack", *ev.ID)
				continue
			}
			if top := stack[len(stack)-1]; top != *ev.ID {
				bad(i, "scope_exit %d does not match open scope %d", *ev.ID, top)
			}
			stack = stack[:len(stack)-1]
		default:
			bad(i, "unknown event type %q", ev.Type)
		}
	}
	if strict && len(stack) > 0 {
		bad(len(d.Events), "%d scopes left open at end of trace", len(stack))
	}
	return issues
}
