// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func openReader(t *testing.T, data []byte) *Reader {
	t.Helper()
	r, err := NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	return r
}

// buildXrefStreamPDF hand-assembles a PDF 1.5 file whose cross-reference
// is an xref stream with W [1 4 2].
func buildXrefStreamPDF(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj <</Type /Catalog /Note 2 0 R>> endobj\n")
	off2 := buf.Len()
	buf.WriteString("2 0 obj (from xref stream) endobj\n")
	xrefOff := buf.Len()

	var entries bytes.Buffer
	writeEntry := func(typ byte, f2 int, f3 int) {
		entries.WriteByte(typ)
		entries.Write([]byte{byte(f2 >> 24), byte(f2 >> 16), byte(f2 >> 8), byte(f2)})
		entries.Write([]byte{byte(f3 >> 8), byte(f3)})
	}
	writeEntry(0, 0, 0xffff)
	writeEntry(1, off1, 0)
	writeEntry(1, off2, 0)
	writeEntry(1, xrefOff, 0)

	fmt.Fprintf(&buf, "3 0 obj <</Type /XRef /Size 4 /W [1 4 2] /Root 1 0 R /Length %d>> stream\n", entries.Len())
	buf.Write(entries.Bytes())
	buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefOff)
	return buf.Bytes()
}

func TestXrefStream(t *testing.T) {
	r := openReader(t, buildXrefStreamPDF(t))
	note := r.Trailer().Key("Root").Key("Note")
	if note.RawString() != "from xref stream" {
		t.Errorf("Note = %v", note)
	}
}

// buildObjectStreamPDF stores two small objects inside an /ObjStm
// container referenced through type-2 xref entries.
func buildObjectStreamPDF(t *testing.T) []byte {
	t.Helper()
	body := "4 0 5 9 <</V 7>> (packed)"
	first := len("4 0 5 9 ")
	// Offsets within the body: object 4 at 0, object 5 at 9.

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj <</Type /Catalog /A 4 0 R /B 5 0 R>> endobj\n")
	off2 := buf.Len()
	fmt.Fprintf(&buf, "2 0 obj <</Type /ObjStm /N 2 /First %d /Length %d>> stream\n%s\nendstream\nendobj\n", first, len(body), body)
	xrefOff := buf.Len()

	var entries bytes.Buffer
	writeEntry := func(typ byte, f2 int, f3 int) {
		entries.WriteByte(typ)
		entries.Write([]byte{byte(f2 >> 24), byte(f2 >> 16), byte(f2 >> 8), byte(f2)})
		entries.Write([]byte{byte(f3 >> 8), byte(f3)})
	}
	writeEntry(0, 0, 0xffff)
	writeEntry(1, off1, 0)
	writeEntry(1, off2, 0)
	writeEntry(1, xrefOff, 0)
	writeEntry(2, 2, 0) // object 4: in stream 2, index 0
	writeEntry(2, 2, 1) // object 5: in stream 2, index 1

	fmt.Fprintf(&buf, "3 0 obj <</Type /XRef /Size 6 /W [1 4 2] /Root 1 0 R /Length %d>> stream\n", entries.Len())
	buf.Write(entries.Bytes())
	buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefOff)
	return buf.Bytes()
}

func TestObjectStream(t *testing.T) {
	r := openReader(t, buildObjectStreamPDF(t))
	root := r.Trailer().Key("Root")
	if got := root.Key("A").Key("V").Int64(); got != 7 {
		t.Errorf("A.V = %d, want 7", got)
	}
	if got := root.Key("B").RawString(); got != "packed" {
		t.Errorf("B = %q, want \"packed\"", got)
	}
	// Compressed objects resolve through GetObject as well.
	v, err := r.GetObject(ObjectID{Number: 5})
	if err != nil {
		t.Fatalf("GetObject(5 0): %v", err)
	}
	if v.RawString() != "packed" {
		t.Errorf("GetObject(5 0) = %v", v)
	}
}

func TestHybridXrefStream(t *testing.T) {
	// A hybrid-reference file: the classic table marks object 4 free
	// for old viewers, while the trailer's /XRefStm points at a stream
	// whose type-2 entry locates it inside an object stream. The stream
	// entry must win.
	body := "4 0 <</V 7>>"
	first := len("4 0 ")

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj <</Type /Catalog /A 4 0 R>> endobj\n")
	off2 := buf.Len()
	fmt.Fprintf(&buf, "2 0 obj <</Type /ObjStm /N 1 /First %d /Length %d>> stream\n%s\nendstream\nendobj\n", first, len(body), body)
	stmOff := buf.Len()

	var entries bytes.Buffer
	entries.Write([]byte{2, 0, 0, 0, 2, 0, 0}) // object 4: in stream 2, index 0
	fmt.Fprintf(&buf, "3 0 obj <</Type /XRef /Size 5 /Index [4 1] /W [1 4 2] /Length %d>> stream\n", entries.Len())
	buf.Write(entries.Bytes())
	buf.WriteString("\nendstream\nendobj\n")

	xrefOff := buf.Len()
	buf.WriteString("xref\n0 5\n")
	fmt.Fprintf(&buf, "0000000000 65535 f\r\n")
	fmt.Fprintf(&buf, "%010d 00000 n\r\n", off1)
	fmt.Fprintf(&buf, "%010d 00000 n\r\n", off2)
	fmt.Fprintf(&buf, "%010d 00000 n\r\n", stmOff)
	fmt.Fprintf(&buf, "0000000000 65535 f\r\n")
	fmt.Fprintf(&buf, "trailer\n<</Size 5 /Root 1 0 R /XRefStm %d>>\nstartxref\n%d\n%%%%EOF\n", stmOff, xrefOff)

	r := openReader(t, buf.Bytes())
	if got := r.Trailer().Key("Root").Key("A").Key("V").Int64(); got != 7 {
		t.Errorf("A.V = %d, want the XRefStm entry to shadow the free marker", got)
	}
}

func TestIncrementalUpdateNewestWins(t *testing.T) {
	base := buildSimplePDF(t)
	prevXref := bytes.Index(base, []byte("xref\n0 "))

	// Append an update replacing object 3's Title.
	var buf bytes.Buffer
	buf.Write(base)
	newOff := buf.Len()
	buf.WriteString("3 0 obj <</Type /Page /Parent 2 0 R /Contents 4 0 R /Title (updated title)>> endobj\n")
	xrefOff := buf.Len()
	fmt.Fprintf(&buf, "xref\n3 1\n%010d 00000 n\r\n", newOff)
	fmt.Fprintf(&buf, "trailer\n<</Size 5 /Root 1 0 R /Prev %d>>\nstartxref\n%d\n%%%%EOF\n", prevXref, xrefOff)

	data := buf.Bytes()
	r := openReader(t, data)
	page := r.Trailer().Key("Root").Key("Pages").Key("Kids").Index(0)
	if got := page.Key("Title").Text(); got != "updated title" {
		t.Errorf("Title = %q, want the updated object to win", got)
	}
	// Objects untouched by the update still resolve from the old section.
	if got := page.Key("Parent").Key("Count").Int64(); got != 1 {
		t.Errorf("Count = %d", got)
	}
}

func TestIncrementalDeleteShadowsOldObject(t *testing.T) {
	base := buildSimplePDF(t)
	prevXref := bytes.Index(base, []byte("xref\n0 "))

	// Mark object 4 free in an update; the old body must become
	// unreachable even though its bytes are still in the file.
	var buf bytes.Buffer
	buf.Write(base)
	xrefOff := buf.Len()
	buf.WriteString("xref\n4 1\n0000000000 00001 f\r\n")
	fmt.Fprintf(&buf, "trailer\n<</Size 5 /Root 1 0 R /Prev %d>>\nstartxref\n%d\n%%%%EOF\n", prevXref, xrefOff)

	r := openReader(t, buf.Bytes())
	_, err := r.GetObject(ObjectID{Number: 4})
	var merr *MissingObjectError
	if !errors.As(err, &merr) {
		t.Fatalf("expected MissingObjectError, got %v", err)
	}
}

func TestGetObjectMissing(t *testing.T) {
	r := openReader(t, buildSimplePDF(t))
	_, err := r.GetObject(ObjectID{Number: 99})
	var merr *MissingObjectError
	if !errors.As(err, &merr) {
		t.Fatalf("expected MissingObjectError, got %v", err)
	}
	if merr.ID.Number != 99 {
		t.Errorf("error names object %d", merr.ID.Number)
	}
}

func TestReferenceCycle(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteHeader("1.7")
	if err := w.WriteObject(ObjectID{Number: 1}, Dict{"Type": Name("Catalog"), "Next": ObjectID{Number: 2}}); err != nil {
		t.Fatal(err)
	}
	// Objects 2 and 3 reference each other with no object body between.
	if err := w.WriteObject(ObjectID{Number: 2}, ObjectID{Number: 3}); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteObject(ObjectID{Number: 3}, ObjectID{Number: 2}); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteTrailer(Dict{"Root": ObjectID{Number: 1}}); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	r := openReader(t, data)
	_, err := r.GetObject(ObjectID{Number: 2})
	if !errors.Is(err, ErrReferenceCycle) {
		t.Errorf("expected ErrReferenceCycle, got %v", err)
	}
}

func TestMissingHeader(t *testing.T) {
	data := []byte("this is not a pdf at all")
	if _, err := NewReader(bytes.NewReader(data), int64(len(data))); !errors.Is(err, ErrCorrupted) {
		t.Errorf("expected ErrCorrupted, got %v", err)
	}
}

func TestUnsupportedVersion(t *testing.T) {
	data := []byte("%PDF-9.9\ngarbage")
	if _, err := NewReader(bytes.NewReader(data), int64(len(data))); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestStreamLengthRecovery(t *testing.T) {
	// A stream with a wrong /Length falls back to scanning for
	// endstream.
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj <</Type /Catalog /C 2 0 R>> endobj\n")
	off2 := buf.Len()
	buf.WriteString("2 0 obj <</Length 999999>> stream\nshort body\nendstream endobj\n")
	xrefOff := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 3\n0000000000 65535 f\r\n%010d 00000 n\r\n%010d 00000 n\r\n", off1, off2)
	fmt.Fprintf(&buf, "trailer\n<</Size 3 /Root 1 0 R>>\nstartxref\n%d\n%%%%EOF\n", xrefOff)

	r := openReader(t, buf.Bytes())
	data, err := r.Trailer().Key("Root").Key("C").StreamData()
	if err != nil {
		t.Fatalf("StreamData failed: %v", err)
	}
	if string(data) != "short body" {
		t.Errorf("got %q, want \"short body\"", data)
	}
}
