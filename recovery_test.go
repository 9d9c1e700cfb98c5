// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdf

import (
	"bytes"
	"fmt"
	"testing"
)

// corruptStartxref overwrites the startxref offset digits in place.
func corruptStartxref(t *testing.T, data []byte) []byte {
	t.Helper()
	i := bytes.LastIndex(data, []byte("startxref"))
	if i < 0 {
		t.Fatal("fixture has no startxref")
	}
	out := append([]byte{}, data...)
	for j := i + len("startxref") + 1; j < len(out) && out[j] != '\n'; j++ {
		out[j] = '9'
	}
	return out
}

func TestRecoveryFromBadStartxref(t *testing.T) {
	data := corruptStartxref(t, buildSimplePDF(t))
	r := openReader(t, data)
	if !r.Recovered() {
		t.Fatal("expected the reader to report recovery")
	}

	root := r.Trailer().Key("Root")
	if root.Key("Type").Name() != "Catalog" {
		t.Fatalf("Root Type = %v", root.Key("Type"))
	}
	page := root.Key("Pages").Key("Kids").Index(0)
	content, err := page.Key("Contents").StreamData()
	if err != nil {
		t.Fatalf("StreamData after recovery: %v", err)
	}
	if string(content) != "BT /F1 12 Tf (Hi) Tj ET" {
		t.Errorf("content = %q", content)
	}
}

func TestRecoveryFromMangledXrefTable(t *testing.T) {
	data := buildSimplePDF(t)
	// Wreck the xref table body but leave startxref pointing at it.
	i := bytes.Index(data, []byte("xref\n0 "))
	out := append([]byte{}, data...)
	copy(out[i:], []byte("xrEf"))
	r := openReader(t, out)
	if !r.Recovered() {
		t.Fatal("expected recovery")
	}
	if r.Trailer().Key("Root").Key("Type").Name() != "Catalog" {
		t.Error("Root unreachable after recovery")
	}
}

func TestRecoveryHighestGenerationWins(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	buf.WriteString("1 0 obj <</Type /Catalog /X 2 0 R>> endobj\n")
	buf.WriteString("2 0 obj (old) endobj\n")
	buf.WriteString("2 1 obj (new) endobj\n")
	buf.WriteString("trailer\n<</Size 3 /Root 1 0 R>>\n")
	buf.WriteString("startxref\n999999\n%%EOF\n")

	data := buf.Bytes()
	r := openReader(t, data)
	if !r.Recovered() {
		t.Fatal("expected recovery")
	}
	v, err := r.GetObject(ObjectID{Number: 2, Gen: 1})
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if v.RawString() != "new" {
		t.Errorf("got %v, want the generation-1 body", v)
	}
}

func TestRecoverySynthesizesTrailer(t *testing.T) {
	// No trailer keyword and no xref: only objects. The catalog is
	// found by scanning.
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	buf.WriteString("7 0 obj <</Type /Catalog /Marker (found me)>> endobj\n")
	buf.WriteString("8 0 obj (other) endobj\n")

	data := buf.Bytes()
	r, err := NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if !r.Recovered() {
		t.Fatal("expected recovery")
	}
	if got := r.Trailer().Key("Root").Key("Marker").RawString(); got != "found me" {
		t.Errorf("Marker = %q", got)
	}
}

func TestRecoveryGivesUpCleanly(t *testing.T) {
	// Binary garbage with a PDF header: recovery must fail with an
	// error, not panic.
	data := []byte("%PDF-1.4\n\x00\x01\x02garbage with no objects at all")
	if _, err := NewReader(bytes.NewReader(data), int64(len(data))); err == nil {
		t.Error("expected an error for an unrecoverable file")
	}
}

func TestRecoveryIgnoresUpdatedBodies(t *testing.T) {
	// Two bodies for object 2 at the same generation: the later one
	// (an incremental update) wins.
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	buf.WriteString("1 0 obj <</Type /Catalog /X 2 0 R>> endobj\n")
	buf.WriteString("2 0 obj (first body) endobj\n")
	buf.WriteString("2 0 obj (second body) endobj\n")
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", 999999)

	r := openReader(t, buf.Bytes())
	if got := r.Trailer().Key("Root").Key("X").RawString(); got != "second body" {
		t.Errorf("X = %q, want the later body", got)
	}
}
