// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdf

import (
	"bytes"
	"testing"
)

func mustID(t *testing.T, num, gen int64) ObjectID {
	t.Helper()
	id, err := NewObjectID(num, gen)
	if err != nil {
		t.Fatalf("NewObjectID(%d, %d): %v", num, gen, err)
	}
	return id
}

// buildSimplePDF writes a minimal document: catalog, a text string
// object, and a flate-compressed content stream.
func buildSimplePDF(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteHeader("1.7"); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteObject(mustID(t, 1, 0), Dict{
		"Type":  Name("Catalog"),
		"Pages": mustID(t, 2, 0),
	}); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteObject(mustID(t, 2, 0), Dict{
		"Type":  Name("Pages"),
		"Count": int64(1),
		"Kids":  Array{mustID(t, 3, 0)},
	}); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteObject(mustID(t, 3, 0), Dict{
		"Type":     Name("Page"),
		"Parent":   mustID(t, 2, 0),
		"Contents": mustID(t, 4, 0),
		"Title":    "plain title",
	}); err != nil {
		t.Fatal(err)
	}
	s, err := ApplyFilters(Stream{Data: []byte("BT /F1 12 Tf (Hi) Tj ET")}, FilterFlate)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteObject(mustID(t, 4, 0), s); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteTrailer(Dict{"Root": mustID(t, 1, 0)}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestWriteReadRoundTrip(t *testing.T) {
	data := buildSimplePDF(t)
	r, err := NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if r.Recovered() {
		t.Error("a freshly written file should not need recovery")
	}

	root := r.Trailer().Key("Root")
	if root.Key("Type").Name() != "Catalog" {
		t.Fatalf("Root Type = %v", root.Key("Type"))
	}
	page := root.Key("Pages").Key("Kids").Index(0)
	if page.Key("Type").Name() != "Page" {
		t.Fatalf("page Type = %v", page.Key("Type"))
	}
	if page.Key("Title").Text() != "plain title" {
		t.Errorf("Title = %q", page.Key("Title").Text())
	}

	content, err := page.Key("Contents").StreamData()
	if err != nil {
		t.Fatalf("StreamData failed: %v", err)
	}
	if string(content) != "BT /F1 12 Tf (Hi) Tj ET" {
		t.Errorf("content = %q", content)
	}
}

func TestWriteObjectErrors(t *testing.T) {
	w := NewWriter(&bytes.Buffer{})
	w.WriteHeader("1.7")
	id := ObjectID{Number: 1}
	if err := w.WriteObject(id, int64(1)); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteObject(id, int64(2)); err == nil {
		t.Error("expected error for duplicate object")
	}
	if err := w.WriteObject(ObjectID{}, int64(1)); err == nil {
		t.Error("expected error for object number 0")
	}
	// The classic xref table has one entry per number, so a second
	// generation of the same number is also a duplicate.
	if err := w.WriteObject(ObjectID{Number: 1, Gen: 1}, int64(3)); err == nil {
		t.Error("expected error for duplicate object number across generations")
	}
}

func TestWriteNonZeroGeneration(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteHeader("1.7"); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteObject(mustID(t, 1, 0), Dict{
		"Type": Name("Catalog"),
		"X":    mustID(t, 2, 3),
	}); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteObject(mustID(t, 2, 3), "survived a reuse"); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteTrailer(Dict{"Root": mustID(t, 1, 0)}); err != nil {
		t.Fatal(err)
	}

	data := buf.Bytes()
	if !bytes.Contains(data, []byte(" 00003 n\r\n")) {
		t.Error("xref table does not carry generation 3")
	}
	r := openReader(t, data)
	v, err := r.GetObject(mustID(t, 2, 3))
	if err != nil {
		t.Fatalf("GetObject(2 3): %v", err)
	}
	if v.RawString() != "survived a reuse" {
		t.Errorf("got %v", v)
	}
}

func TestWriteValueForms(t *testing.T) {
	tests := []struct {
		name string
		v    interface{}
		want string
	}{
		{"null", nil, "null"},
		{"bool", true, "true"},
		{"int", int64(-7), "-7"},
		{"real", 2.5, "2.5"},
		{"real no exponent", 0.00001, "0.00001"},
		{"string", "a(b)\\", `(a\(b\)\\)`},
		{"string newline", "a\nb", `(a\nb)`},
		{"string binary", "\x01", `(\001)`},
		{"bytes", []byte{0xde, 0xad}, "<DEAD>"},
		{"name", Name("Font"), "/Font"},
		{"name escaped", Name("A B#"), "/A#20B#23"},
		{"array", Array{int64(1), Name("X")}, "[1 /X]"},
		{"dict sorted", Dict{"B": int64(2), "A": int64(1)}, "<</A 1 /B 2>>"},
		{"reference", ObjectID{Number: 9, Gen: 1}, "9 1 R"},
	}
	w := NewWriter(&bytes.Buffer{})
	for _, tt := range tests {
		var buf bytes.Buffer
		if err := w.writeValue(&buf, ObjectID{}, tt.v); err != nil {
			t.Errorf("%s: writeValue failed: %v", tt.name, err)
			continue
		}
		if buf.String() != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, buf.String(), tt.want)
		}
	}
}

func TestWrittenValuesReparse(t *testing.T) {
	// Whatever the writer emits, the tokenizer must read back.
	var buf bytes.Buffer
	w := NewWriter(&buf)
	err := w.writeValue(&buf, ObjectID{}, Dict{
		"Name":   Name("Weird#Name"),
		"Text":   "line1\nline2 (with parens)",
		"Nested": Array{int64(1), 2.25, Dict{"Deep": Name("V")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	b := newBuffer(bytes.NewReader(buf.Bytes()), 0)
	b.allowEOF = true
	obj := b.readObject()
	putBuffer(b)
	d, ok := obj.(dict)
	if !ok {
		t.Fatalf("reparse got %T", obj)
	}
	if d["Name"] != name("Weird#Name") {
		t.Errorf("Name = %v", d["Name"])
	}
	if d["Text"] != "line1\nline2 (with parens)" {
		t.Errorf("Text = %q", d["Text"])
	}
	nested, _ := d["Nested"].(array)
	if len(nested) != 3 || nested[1] != 2.25 {
		t.Errorf("Nested = %v", nested)
	}
}

func TestEncryptedWriteReadRoundTrip(t *testing.T) {
	for _, method := range []CryptMethod{CryptRC4V2, CryptAESV2, CryptAESV3} {
		sec, err := NewSecurityHandler(method, "pw", "", PermPrintLowRes, []byte("id-0123456789abcdef"))
		if err != nil {
			t.Fatalf("%v: NewSecurityHandler: %v", method, err)
		}

		var buf bytes.Buffer
		w := NewWriter(&buf)
		w.Encrypt(sec)
		if err := w.WriteHeader("1.7"); err != nil {
			t.Fatal(err)
		}
		if err := w.WriteObject(mustID(t, 1, 0), Dict{
			"Type":  Name("Catalog"),
			"Title": "secret title",
		}); err != nil {
			t.Fatal(err)
		}
		if err := w.WriteObject(mustID(t, 2, 0), Stream{Data: []byte("secret stream body")}); err != nil {
			t.Fatal(err)
		}
		if err := w.WriteTrailer(Dict{
			"Root": mustID(t, 1, 0),
			"ID":   Array{[]byte("id-0123456789abcdef"), []byte("id-0123456789abcdef")},
		}); err != nil {
			t.Fatal(err)
		}
		data := buf.Bytes()

		// The plaintext must not appear in the file.
		if bytes.Contains(data, []byte("secret stream body")) {
			t.Errorf("%v: stream written in the clear", method)
		}

		if _, err := NewReaderWith(bytes.NewReader(data), int64(len(data)), &Config{Password: "nope"}); err == nil {
			t.Errorf("%v: expected failure with wrong password", method)
		}

		r, err := NewReaderWith(bytes.NewReader(data), int64(len(data)), &Config{Password: "pw"})
		if err != nil {
			t.Fatalf("%v: NewReaderWith failed: %v", method, err)
		}
		if !r.Encrypted() {
			t.Errorf("%v: Encrypted() = false", method)
		}
		if title := r.Trailer().Key("Root").Key("Title").Text(); title != "secret title" {
			t.Errorf("%v: Title = %q", method, title)
		}
		v, err := r.GetObject(mustID(t, 2, 0))
		if err != nil {
			t.Fatalf("%v: GetObject: %v", method, err)
		}
		body, err := v.StreamData()
		if err != nil {
			t.Fatalf("%v: StreamData: %v", method, err)
		}
		if string(body) != "secret stream body" {
			t.Errorf("%v: stream = %q", method, body)
		}
		if !r.UserPermissions().Can(PermPrintLowRes) {
			t.Errorf("%v: permissions lost", method)
		}
	}
}
