// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Serialization of an object graph back to PDF bytes: header, indirect
// object bodies, an optional encryption pass, and the classic
// cross-reference table with its trailer.

package pdf

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// The object types accepted by a Writer. An object value is one of:
//
//	nil, for null
//	bool, int, int64, float64, string
//	[]byte, written as a hex string
//	Name, Dict, Array, Stream
//	ObjectID, written as an indirect reference
type (
	// A Name is a PDF name, without the leading slash.
	Name string

	// A Dict is a PDF dictionary.
	Dict map[Name]interface{}

	// An Array is a PDF array.
	Array []interface{}

	// A Stream is a PDF stream body with its header dictionary.
	// The writer sets /Length; any /Filter entries must already be
	// applied to Data (see ApplyFilters).
	Stream struct {
		Header Dict
		Data   []byte
	}
)

// A Writer serializes a document. Objects are written in calls to
// WriteObject between WriteHeader and WriteTrailer; the writer tracks
// byte offsets and emits the cross-reference table itself.
type Writer struct {
	w       io.Writer
	off     int64
	offsets map[uint32]writtenObj
	maxNum  uint32
	sec     *SecurityHandler
	err     error
}

// A writtenObj records where an object body was emitted. The classic
// cross-reference table holds one entry per object number, so the
// writer indexes by number and keeps the generation alongside.
type writtenObj struct {
	gen uint16
	off int64
}

// NewWriter returns a Writer emitting to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:       w,
		offsets: make(map[uint32]writtenObj),
	}
}

// Encrypt arranges for strings and stream bodies to be encrypted with
// the given handler, and for its dictionary to appear in the trailer.
// Must be called before any objects are written.
func (w *Writer) Encrypt(sec *SecurityHandler) {
	w.sec = sec
}

func (w *Writer) write(p []byte) {
	if w.err != nil {
		return
	}
	n, err := w.w.Write(p)
	w.off += int64(n)
	w.err = err
}

func (w *Writer) printf(format string, args ...interface{}) {
	w.write([]byte(fmt.Sprintf(format, args...)))
}

// WriteHeader emits the %PDF marker and the binary comment line that
// keeps transfer tools treating the file as binary. version is of the
// form "1.7".
func (w *Writer) WriteHeader(version string) error {
	if version == "" {
		version = "1.7"
	}
	w.printf("%%PDF-%s\n", version)
	w.write([]byte{'%', 0xe2, 0xe3, 0xcf, 0xd3, '\n'})
	return w.err
}

// WriteObject emits one indirect object and records its offset for the
// cross-reference table. Writing the same id twice is an error.
func (w *Writer) WriteObject(id ObjectID, obj interface{}) error {
	if w.err != nil {
		return w.err
	}
	if id.Number == 0 {
		return fmt.Errorf("pdf: cannot write object number 0")
	}
	if _, dup := w.offsets[id.Number]; dup {
		return fmt.Errorf("pdf: duplicate object %v", id)
	}
	w.offsets[id.Number] = writtenObj{gen: id.Gen, off: w.off}
	if id.Number > w.maxNum {
		w.maxNum = id.Number
	}
	w.printf("%d %d obj\n", id.Number, id.Gen)

	if s, ok := obj.(Stream); ok {
		if err := w.writeStream(id, s); err != nil {
			return err
		}
	} else {
		var buf bytes.Buffer
		if err := w.writeValue(&buf, id, obj); err != nil {
			return err
		}
		w.write(buf.Bytes())
	}
	w.printf("\nendobj\n")
	return w.err
}

func (w *Writer) writeStream(id ObjectID, s Stream) error {
	data := s.Data
	if w.sec != nil {
		enc, err := w.sec.EncryptStream(id, data)
		if err != nil {
			return err
		}
		data = enc
	}
	hdr := make(Dict, len(s.Header)+1)
	for k, v := range s.Header {
		hdr[k] = v
	}
	hdr["Length"] = int64(len(data))

	var buf bytes.Buffer
	if err := w.writeValue(&buf, id, hdr); err != nil {
		return err
	}
	w.write(buf.Bytes())
	w.printf("\nstream\n")
	w.write(data)
	w.printf("\nendstream")
	return w.err
}

// WriteTrailer emits the cross-reference table, the trailer dictionary
// (with /Size filled in, and /Encrypt when encrypting), startxref, and
// the %%EOF marker.
func (w *Writer) WriteTrailer(trailer Dict) error {
	if w.err != nil {
		return w.err
	}
	xrefOff := w.off
	w.printf("xref\n0 %d\n", w.maxNum+1)
	w.printf("0000000000 65535 f\r\n")
	for n := uint32(1); n <= w.maxNum; n++ {
		e, ok := w.offsets[n]
		if !ok {
			w.printf("0000000000 00000 f\r\n")
			continue
		}
		w.printf("%010d %05d n\r\n", e.off, e.gen)
	}

	t := make(Dict, len(trailer)+2)
	for k, v := range trailer {
		t[k] = v
	}
	t["Size"] = int64(w.maxNum + 1)
	if w.sec != nil {
		if _, ok := t["Encrypt"]; !ok {
			t["Encrypt"] = w.sec.EncryptDict()
		}
	}
	var buf bytes.Buffer
	// The zero id marks trailer scope, where strings stay unencrypted.
	if err := w.writeValue(&buf, ObjectID{}, t); err != nil {
		return err
	}
	w.printf("trailer\n")
	w.write(buf.Bytes())
	w.printf("\nstartxref\n%d\n%%%%EOF\n", xrefOff)
	return w.err
}

func (w *Writer) writeValue(buf *bytes.Buffer, id ObjectID, v interface{}) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if x {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case int:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(x, 10))
	case float64:
		buf.WriteString(strconv.FormatFloat(x, 'f', -1, 64))
	case string:
		if w.sec != nil && id.Number != 0 {
			enc, err := w.sec.EncryptString(id, x)
			if err != nil {
				return err
			}
			writeHexString(buf, []byte(enc))
		} else {
			writeLiteralString(buf, x)
		}
	case []byte:
		writeHexString(buf, x)
	case Name:
		writeName(buf, x)
	case Dict:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, string(k))
		}
		sort.Strings(keys)
		buf.WriteString("<<")
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeName(buf, Name(k))
			buf.WriteByte(' ')
			if err := w.writeValue(buf, id, x[Name(k)]); err != nil {
				return err
			}
		}
		buf.WriteString(">>")
	case Array:
		buf.WriteByte('[')
		for i, elem := range x {
			if i > 0 {
				buf.WriteByte(' ')
			}
			if err := w.writeValue(buf, id, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case ObjectID:
		fmt.Fprintf(buf, "%d %d R", x.Number, x.Gen)
	case Stream:
		return fmt.Errorf("pdf: stream must be a top-level indirect object")
	default:
		return fmt.Errorf("pdf: cannot serialize %T", v)
	}
	return nil
}

func writeLiteralString(buf *bytes.Buffer, s string) {
	buf.WriteByte('(')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '(' || c == ')' || c == '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case c == '\n':
			buf.WriteString(`\n`)
		case c == '\r':
			buf.WriteString(`\r`)
		case c == '\t':
			buf.WriteString(`\t`)
		case c < 0x20 || c >= 0x7f:
			fmt.Fprintf(buf, `\%03o`, c)
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte(')')
}

func writeHexString(buf *bytes.Buffer, b []byte) {
	const hexDigit = "0123456789ABCDEF"
	buf.WriteByte('<')
	for _, c := range b {
		buf.WriteByte(hexDigit[c>>4])
		buf.WriteByte(hexDigit[c&0xf])
	}
	buf.WriteByte('>')
}

// writeName escapes a name the way readName unescapes it: bytes outside
// the regular range become #XX.
func writeName(buf *bytes.Buffer, n Name) {
	buf.WriteByte('/')
	for i := 0; i < len(n); i++ {
		c := n[i]
		if c <= 0x20 || c >= 0x7f || c == '#' || isDelim(c) {
			const hexDigit = "0123456789ABCDEF"
			buf.WriteByte('#')
			buf.WriteByte(hexDigit[c>>4])
			buf.WriteByte(hexDigit[c&0xf])
			continue
		}
		buf.WriteByte(c)
	}
}

// ApplyFilters encodes s.Data through the given filters and rewrites
// the header's /Filter entry to match. Filters are listed in decode
// order, the order a reader will undo them.
func ApplyFilters(s Stream, filters ...Filter) (Stream, error) {
	data := s.Data
	for i := len(filters) - 1; i >= 0; i-- {
		enc, err := EncodeFilter(filters[i], data, FilterParams{EarlyChange: true})
		if err != nil {
			return Stream{}, err
		}
		data = enc
	}
	hdr := make(Dict, len(s.Header)+1)
	for k, v := range s.Header {
		hdr[k] = v
	}
	switch len(filters) {
	case 0:
		delete(hdr, "Filter")
	case 1:
		hdr["Filter"] = Name(filters[0])
	default:
		arr := make(Array, len(filters))
		for i, f := range filters {
			arr[i] = Name(f)
		}
		hdr["Filter"] = arr
	}
	return Stream{Header: hdr, Data: data}, nil
}
