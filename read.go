// Copyright 2014 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pdf implements reading and writing of PDF files at the object
// level: the cross-reference machinery, the indirect-object graph, the
// stream filter pipeline, and the standard encryption handler.
//
// The package is tolerant by default: it keeps reading damaged files
// where a viewer would, falls back to a full-file scan when the
// cross-reference table is unusable, and scopes codec and cipher errors
// to the single object being read.
package pdf

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
)

// DebugOn enables diagnostic prints to stderr for malformed files.
var DebugOn = false

func debugf(format string, args ...interface{}) {
	if DebugOn {
		fmt.Fprintf(os.Stderr, "pdf: "+format+"\n", args...)
	}
}

// Objects above this number are assumed to be garbage from a corrupt
// xref section rather than a real document.
const maxObjectEntries = 1 << 23

// A Config carries the optional knobs for opening a document.
type Config struct {
	// Password is tried as both the user and the owner password.
	// The empty string is itself a valid password for many documents.
	Password string

	// DecodeRatio caps decoded stream size at this multiple of the
	// declared stream length. Zero selects DefaultDecodeRatio.
	DecodeRatio int64
}

// A Reader is a single PDF file open for reading.
type Reader struct {
	f           io.ReaderAt
	end         int64
	xref        []xref
	trailer     dict
	trailerptr  objptr
	sec         *SecurityHandler
	decodeRatio int64
	recovered   bool

	cache         objCache
	objStreamMu   sync.RWMutex
	objStreamDirs map[uint32]map[int64]int64

	closer io.Closer
}

// An xref is one cross-reference entry: either a byte offset of an
// object body or, for compressed objects, the object stream holding it.
type xref struct {
	ptr      objptr
	inStream bool
	stream   objptr
	offset   int64
}

// Open opens the named file for reading. The returned Reader owns the
// underlying file; Close releases it.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	r, err := NewReader(f, fi.Size())
	if err != nil {
		f.Close()
		return nil, &PDFError{Op: "open", Path: path, Err: err}
	}
	r.closer = f
	return r, nil
}

// Close releases the file underlying r, if r owns one.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// NewReader opens the document in f, which has the given size in bytes,
// with the default configuration.
func NewReader(f io.ReaderAt, size int64) (*Reader, error) {
	return NewReaderWith(f, size, nil)
}

// NewReaderWith opens the document in f using cfg. A nil cfg is
// equivalent to the zero Config.
func NewReaderWith(f io.ReaderAt, size int64, cfg *Config) (*Reader, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	r := &Reader{
		f:           f,
		end:         size,
		decodeRatio: cfg.DecodeRatio,
	}
	if r.decodeRatio <= 0 {
		r.decodeRatio = DefaultDecodeRatio
	}

	if err := r.checkHeader(); err != nil {
		return nil, err
	}

	err := r.readXrefChain()
	if err == nil && r.trailer["Root"] == nil {
		err = fmt.Errorf("malformed PDF: trailer has no Root")
	}
	if err != nil {
		// One recovery attempt: rebuild the table by scanning the file.
		debugf("xref chain unusable (%v), running full scan", err)
		rerr := r.fullScanRecover()
		if rerr != nil {
			return nil, wrapError("read xref", err)
		}
		r.recovered = true
	}

	if enc := r.trailer["Encrypt"]; enc != nil {
		encv := r.resolve(r.trailerptr, enc)
		var id string
		if idv, ok := r.trailer["ID"].(array); ok && len(idv) > 0 {
			id, _ = idv[0].(string)
		}
		sec, err := openSecurityHandler(encv, id, cfg.Password)
		if err != nil {
			return nil, err
		}
		r.sec = sec
	}
	return r, nil
}

// Recovered reports whether the document was loaded through the
// full-scan fallback rather than its cross-reference table.
func (r *Reader) Recovered() bool {
	return r.recovered
}

// Trailer returns the file trailer dictionary.
func (r *Reader) Trailer() Value {
	return Value{r, r.trailerptr, r.trailer}
}

// Encrypted reports whether the document carries standard encryption.
func (r *Reader) Encrypted() bool {
	return r.sec != nil
}

// UserPermissions returns the document's permission bits. Unencrypted
// documents permit everything.
func (r *Reader) UserPermissions() Permissions {
	if r.sec == nil {
		return Permissions(0xFFFFFFFF)
	}
	return r.sec.P
}

// checkHeader verifies the %PDF- marker near the start of the file and
// that the version is one this package understands.
func (r *Reader) checkHeader() error {
	buf := make([]byte, 1024)
	if r.end < int64(len(buf)) {
		buf = buf[:r.end]
	}
	n, _ := r.f.ReadAt(buf, 0)
	buf = buf[:n]
	i := bytes.Index(buf, []byte("%PDF-"))
	if i < 0 {
		return fmt.Errorf("%w: missing %%PDF- header", ErrCorrupted)
	}
	rest := buf[i+5:]
	j := 0
	for j < len(rest) && rest[j] != '\r' && rest[j] != '\n' && j < 8 {
		j++
	}
	ver := string(rest[:j])
	if len(ver) >= 1 && (ver[0] == '1' || ver[0] == '2') {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedVersion, ver)
}

// findStartxref locates the startxref offset near the end of the file.
func (r *Reader) findStartxref() (int64, error) {
	const tail = 1024
	off := r.end - tail
	if off < 0 {
		off = 0
	}
	buf := make([]byte, r.end-off)
	n, _ := r.f.ReadAt(buf, off)
	buf = buf[:n]
	i := bytes.LastIndex(buf, []byte("startxref"))
	if i < 0 {
		return 0, fmt.Errorf("malformed PDF: missing startxref")
	}
	rest := buf[i+len("startxref"):]
	b := newBuffer(bytes.NewReader(rest), 0)
	b.allowEOF = true
	tok := b.readToken()
	putBuffer(b)
	x, ok := tok.(int64)
	if !ok || x < 0 || x >= r.end {
		return 0, fmt.Errorf("malformed PDF: invalid startxref %v", tok)
	}
	return x, nil
}

// readXrefChain walks the cross-reference sections from startxref along
// Prev links, merging entries newest first: the first entry seen for an
// object number wins.
func (r *Reader) readXrefChain() error {
	start, err := r.findStartxref()
	if err != nil {
		return err
	}
	seen := make(map[int64]bool)
	offset := start
	first := true
	for {
		if seen[offset] {
			if first {
				return fmt.Errorf("malformed PDF: cross-reference cycle at offset %d", offset)
			}
			debugf("breaking cross-reference cycle at offset %d", offset)
			return nil
		}
		seen[offset] = true
		trailer, tptr, err := r.readXrefSection(offset)
		if err != nil {
			if first {
				return err
			}
			debugf("dropping unreadable xref section at %d: %v", offset, err)
			return nil
		}
		if first {
			r.trailer, r.trailerptr = trailer, tptr
			first = false
		}
		prev, ok := trailer["Prev"].(int64)
		if !ok {
			return nil
		}
		if prev < 0 || prev >= r.end {
			// Older history is damaged; the sections already merged
			// are the newest and stay usable.
			debugf("dropping invalid Prev offset %d", prev)
			return nil
		}
		offset = prev
	}
}

// readXrefSection reads one cross-reference section, classic table or
// xref stream, returning its trailer dictionary.
func (r *Reader) readXrefSection(offset int64) (dict, objptr, error) {
	b := newBuffer(io.NewSectionReader(r.f, offset, r.end-offset), offset)
	defer putBuffer(b)
	tok := b.readToken()
	if tok == keyword("xref") {
		t, err := r.readXrefTable(b)
		return t, objptr{}, err
	}
	b.unreadToken(tok)
	return r.readXrefStream(b)
}

// A tableEntry is one classic-table entry held back until the section's
// trailer has been read, so a hybrid file's XRefStm can merge first.
type tableEntry struct {
	id   uint32
	gen  uint16
	off  int64
	free bool
}

func (r *Reader) readXrefTable(b *buffer) (dict, error) {
	var entries []tableEntry
	for {
		tok := b.readToken()
		if tok == keyword("trailer") {
			break
		}
		start, ok := tok.(int64)
		if !ok {
			return nil, fmt.Errorf("malformed PDF: unexpected %v in xref table", tok)
		}
		n, ok := b.readToken().(int64)
		if !ok || n < 0 || start < 0 || start+n > maxObjectEntries {
			return nil, fmt.Errorf("malformed PDF: bad xref subsection %d +%v", start, n)
		}
		for i := int64(0); i < n; i++ {
			off, ok1 := b.readToken().(int64)
			gen, ok2 := b.readToken().(int64)
			kind, ok3 := b.readToken().(keyword)
			if !ok1 || !ok2 || !ok3 || (kind != "n" && kind != "f") {
				return nil, fmt.Errorf("malformed PDF: bad xref entry for object %d", start+i)
			}
			entries = append(entries, tableEntry{
				id:   uint32(start + i),
				gen:  uint16(gen),
				off:  off,
				free: kind == "f",
			})
		}
	}
	tdict, ok := b.readObject().(dict)
	if !ok {
		return nil, fmt.Errorf("malformed PDF: xref table missing trailer dictionary")
	}

	// Hybrid-reference file: an xref stream holds the entries for
	// compressed objects. Its entries take precedence over the table's,
	// including free markers written for pre-1.5 viewers.
	if x, ok := tdict["XRefStm"].(int64); ok && x >= 0 && x < r.end {
		b2 := newBuffer(io.NewSectionReader(r.f, x, r.end-x), x)
		_, _, err := r.readXrefStream(b2)
		putBuffer(b2)
		if err != nil {
			debugf("dropping unreadable XRefStm at %d: %v", x, err)
		}
	}

	for _, e := range entries {
		if e.free {
			r.setXrefFree(e.id)
		} else {
			r.setXref(xref{ptr: objptr{e.id, e.gen}, offset: e.off})
		}
	}
	return tdict, nil
}

func (r *Reader) readXrefStream(b *buffer) (dict, objptr, error) {
	obj := b.readObject()
	def, ok := obj.(objdef)
	if !ok {
		return nil, objptr{}, fmt.Errorf("malformed PDF: cross-reference section is not a table or stream")
	}
	strm, ok := def.obj.(stream)
	if !ok || strm.hdr["Type"] != name("XRef") {
		return nil, objptr{}, fmt.Errorf("malformed PDF: object at cross-reference offset is not an XRef stream")
	}
	if err := r.readXrefStreamData(strm); err != nil {
		return nil, objptr{}, err
	}
	return strm.hdr, def.ptr, nil
}

func (r *Reader) readXrefStreamData(strm stream) error {
	v := Value{r, strm.ptr, strm}
	data, err := v.StreamData()
	if err != nil {
		return fmt.Errorf("malformed PDF: reading xref stream: %v", err)
	}

	size, _ := strm.hdr["Size"].(int64)
	index, _ := strm.hdr["Index"].(array)
	if index == nil {
		index = array{int64(0), size}
	}
	wArr, _ := strm.hdr["W"].(array)
	if len(wArr) < 3 {
		return fmt.Errorf("malformed PDF: xref stream missing W")
	}
	var w [3]int
	wTotal := 0
	for i := 0; i < 3; i++ {
		n, ok := wArr[i].(int64)
		if !ok || n < 0 || n > 8 {
			return fmt.Errorf("malformed PDF: invalid xref stream W %v", wArr)
		}
		w[i] = int(n)
		wTotal += int(n)
	}
	if wTotal == 0 {
		return fmt.Errorf("malformed PDF: empty xref stream W")
	}

	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		start, ok1 := index[i].(int64)
		count, ok2 := index[i+1].(int64)
		if !ok1 || !ok2 || start < 0 || count < 0 || start+count > maxObjectEntries {
			return fmt.Errorf("malformed PDF: bad xref stream Index %v", index)
		}
		for j := int64(0); j < count; j++ {
			if pos+wTotal > len(data) {
				// Truncated stream: keep what decoded.
				debugf("xref stream truncated at entry %d", start+j)
				return nil
			}
			typ := int64(1) // default when the type field is absent
			if w[0] > 0 {
				typ = decodeInt(data[pos : pos+w[0]])
			}
			f2 := decodeInt(data[pos+w[0] : pos+w[0]+w[1]])
			f3 := decodeInt(data[pos+w[0]+w[1] : pos+wTotal])
			pos += wTotal

			id := uint32(start + j)
			switch typ {
			case 0:
				r.setXrefFree(id)
			case 1:
				r.setXref(xref{ptr: objptr{id, uint16(f3)}, offset: f2})
			case 2:
				r.setXref(xref{ptr: objptr{id, 0}, inStream: true, stream: objptr{uint32(f2), 0}, offset: f3})
			}
		}
	}
	return nil
}

func decodeInt(b []byte) int64 {
	var x int64
	for _, c := range b {
		x = x<<8 | int64(c)
	}
	return x
}

// setXref records an in-use entry unless a newer section already
// claimed the object number.
func (r *Reader) setXref(x xref) {
	id := x.ptr.id
	if int64(id) >= maxObjectEntries {
		return
	}
	r.growXref(id)
	if r.xref[id] == (xref{}) {
		r.xref[id] = x
	}
}

// setXrefFree claims an object number for the free list, shadowing any
// older in-use entry further down the Prev chain.
func (r *Reader) setXrefFree(id uint32) {
	if int64(id) >= maxObjectEntries {
		return
	}
	r.growXref(id)
	if r.xref[id] == (xref{}) {
		r.xref[id] = xref{ptr: objptr{0, 65535}}
	}
}

func (r *Reader) growXref(id uint32) {
	if int(id) >= len(r.xref) {
		grown := make([]xref, id+1)
		copy(grown, r.xref)
		r.xref = grown
	}
}

// RawStreamData returns the stream's bytes after decryption but before
// filter decoding.
func (v Value) RawStreamData() ([]byte, error) {
	strm, ok := v.data.(stream)
	if !ok {
		return nil, &KindError{Want: KindStream, Got: v.Kind()}
	}
	length := v.Key("Length").Int64()
	if length < 0 || strm.offset+length > v.r.end {
		length = 0
	}
	if length == 0 {
		length = v.r.scanStreamLength(strm.offset)
	}
	data := make([]byte, length)
	n, err := v.r.f.ReadAt(data, strm.offset)
	if int64(n) < length {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("malformed PDF: short stream read at %d: %v", strm.offset, err)
	}
	if v.r.sec != nil && strm.ptr.id != 0 && strm.hdr["Type"] != name("XRef") {
		return v.r.sec.DecryptStream(ObjectID{strm.ptr.id, strm.ptr.gen}, data)
	}
	return data, nil
}

// scanStreamLength finds the stream extent by locating the endstream
// keyword, for streams with a missing or wrong /Length.
func (r *Reader) scanStreamLength(offset int64) int64 {
	const chunk = 64 << 10
	marker := []byte("endstream")
	buf := make([]byte, chunk)
	var scanned int64
	for offset+scanned < r.end {
		n, _ := r.f.ReadAt(buf, offset+scanned)
		if n == 0 {
			break
		}
		if i := bytes.Index(buf[:n], marker); i >= 0 {
			end := scanned + int64(i)
			// Strip the EOL preceding endstream.
			data := make([]byte, 2)
			if end >= 2 {
				r.f.ReadAt(data, offset+end-2)
				if data[1] == '\n' {
					end--
					if data[0] == '\r' {
						end--
					}
				} else if data[1] == '\r' {
					end--
				}
			}
			return end
		}
		if int64(n) < chunk {
			break
		}
		// Overlap so a marker split across chunks is still found.
		scanned += chunk - int64(len(marker))
	}
	return 0
}

// StreamData returns the stream's bytes after decryption and after
// running the /Filter chain.
func (v Value) StreamData() ([]byte, error) {
	data, err := v.RawStreamData()
	if err != nil {
		return nil, err
	}
	declared := int64(len(data))

	filters := v.Key("Filter")
	parms := v.Key("DecodeParms")
	if parms.IsNull() {
		parms = v.Key("DP")
	}

	apply := func(data []byte, f Value, parm Value) ([]byte, error) {
		p := filterParamsFromDict(parm)
		p.MaxOutput = v.r.decodeRatio * declared
		if p.MaxOutput < minDecodeLimit {
			p.MaxOutput = minDecodeLimit
		}
		return DecodeFilter(Filter(f.Name()), data, p)
	}

	switch filters.Kind() {
	case KindNull:
		return data, nil
	case KindName:
		return apply(data, filters, parms)
	case KindArray:
		for i := 0; i < filters.Len(); i++ {
			parm := Value{}
			if parms.Kind() == KindArray {
				parm = parms.Index(i)
			} else if i == 0 {
				parm = parms
			}
			data, err = apply(data, filters.Index(i), parm)
			if err != nil {
				return nil, err
			}
		}
		return data, nil
	}
	return nil, fmt.Errorf("malformed PDF: invalid Filter %v", filters)
}

// Reader returns the stream's decoded content as an io.ReadCloser.
// Errors surface on the first Read.
func (v Value) Reader() io.ReadCloser {
	data, err := v.StreamData()
	if err != nil {
		return io.NopCloser(&errorReader{err})
	}
	return io.NopCloser(bytes.NewReader(data))
}

type errorReader struct {
	err error
}

func (r *errorReader) Read([]byte) (int, error) {
	return 0, r.err
}

// atoi64 is a tolerant integer parse used by the recovery scanner.
func atoi64(s string) (int64, bool) {
	x, err := strconv.ParseInt(s, 10, 64)
	return x, err == nil
}
