// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Full-scan recovery: when the cross-reference machinery is unusable,
// rebuild it by scanning the raw bytes for object headers.

package pdf

import (
	"bytes"
	"fmt"
	"io"
)

// fullScanRecover rebuilds r.xref and r.trailer by scanning the whole
// file for "N G obj" headers. For duplicate object numbers the highest
// generation wins; among equal generations the later body wins, since
// incremental updates append. Runs at most once per Reader.
func (r *Reader) fullScanRecover() (err error) {
	defer func() {
		// The scanner walks attacker-shaped input; a panic here must
		// degrade to a load failure, not take down the caller.
		if e := recover(); e != nil {
			err = fmt.Errorf("%w: recovery panic: %v", ErrCorrupted, e)
		}
	}()

	r.xref = nil
	r.trailer = nil
	r.trailerptr = objptr{}

	objects := make(map[uint32]foundObj)
	var lastTrailer int64 = -1
	var xrefStreams []int64

	const chunk = 1 << 20
	buf := make([]byte, chunk+overlap)
	var base int64
	for base < r.end {
		n, _ := r.f.ReadAt(buf, base)
		if n == 0 {
			break
		}
		data := buf[:n]
		limit := n
		if base+int64(n) < r.end {
			limit = n - overlap
		}

		for i := 0; i < limit; {
			j := bytes.Index(data[i:limit], []byte("obj"))
			if j < 0 {
				break
			}
			pos := i + j
			i = pos + 3
			id, gen, ok := parseObjHeader(data, pos)
			if !ok {
				continue
			}
			off := base + int64(headerStart(data, pos))
			if id == 0 || id > maxObjectEntries {
				continue
			}
			old, seen := objects[uint32(id)]
			if !seen || gen > int64(old.gen) || (gen == int64(old.gen) && off > old.offset) {
				objects[uint32(id)] = foundObj{uint16(gen), off}
			}
		}

		if j := bytes.LastIndex(data[:limit], []byte("trailer")); j >= 0 {
			lastTrailer = base + int64(j)
		}
		for i := 0; i < limit; {
			j := bytes.Index(data[i:limit], []byte("/XRef"))
			if j < 0 {
				break
			}
			xrefStreams = append(xrefStreams, base+int64(i+j))
			i += j + 5
		}

		base += int64(limit)
	}

	if len(objects) == 0 {
		return fmt.Errorf("%w: no objects found in scan", ErrCorrupted)
	}
	for id, f := range objects {
		r.setXref(xref{ptr: objptr{id, f.gen}, offset: f.offset})
	}

	if err := r.recoverTrailer(lastTrailer, xrefStreams, objects); err != nil {
		return err
	}
	return nil
}

// overlap keeps scan chunks overlapping so headers split across a chunk
// boundary are still seen. Generous enough for "NNNNNNNNNN GGGGG obj".
const overlap = 64

// parseObjHeader checks that data[pos:] is the "obj" of an object
// header and parses the two preceding integers.
func parseObjHeader(data []byte, pos int) (id, gen int64, ok bool) {
	if pos+3 < len(data) && !isSpace(data[pos+3]) && !isDelim(data[pos+3]) {
		return 0, 0, false
	}
	i := pos
	// Back over whitespace, then the generation digits.
	i = skipSpaceBack(data, i)
	genEnd := i
	for i > 0 && '0' <= data[i-1] && data[i-1] <= '9' {
		i--
	}
	if i == genEnd {
		return 0, 0, false
	}
	genStart := i
	i = skipSpaceBack(data, i)
	if i == genStart {
		return 0, 0, false
	}
	numEnd := i
	for i > 0 && '0' <= data[i-1] && data[i-1] <= '9' {
		i--
	}
	if i == numEnd {
		return 0, 0, false
	}
	if i > 0 && !isSpace(data[i-1]) && !isDelim(data[i-1]) {
		return 0, 0, false
	}
	id, ok1 := atoi64(string(data[i:numEnd]))
	gen, ok2 := atoi64(string(data[genStart:genEnd]))
	if !ok1 || !ok2 || id < 1 || id > MaxObjectNumber || gen < 0 || gen > MaxGeneration {
		return 0, 0, false
	}
	return id, gen, true
}

func headerStart(data []byte, pos int) int {
	i := skipSpaceBack(data, pos)
	for i > 0 && '0' <= data[i-1] && data[i-1] <= '9' {
		i--
	}
	i = skipSpaceBack(data, i)
	for i > 0 && '0' <= data[i-1] && data[i-1] <= '9' {
		i--
	}
	return i
}

func skipSpaceBack(data []byte, i int) int {
	for i > 0 && isSpace(data[i-1]) {
		i--
	}
	return i
}

// A foundObj is one object header located by the scan.
type foundObj struct {
	gen    uint16
	offset int64
}

// recoverTrailer reestablishes r.trailer: from the last trailer keyword
// if one survives, else from an xref stream header, else synthesized
// from a /Type /Catalog object.
func (r *Reader) recoverTrailer(lastTrailer int64, xrefStreams []int64, objects map[uint32]foundObj) error {
	if lastTrailer >= 0 {
		b := newBuffer(io.NewSectionReader(r.f, lastTrailer, r.end-lastTrailer), lastTrailer)
		b.allowEOF = true
		b.readToken() // the trailer keyword
		obj := b.readObject()
		putBuffer(b)
		if t, ok := obj.(dict); ok && t["Root"] != nil {
			r.trailer = t
			return nil
		}
	}

	// An xref stream's header doubles as a trailer.
	for i := len(xrefStreams) - 1; i >= 0; i-- {
		hdr := r.dictAround(xrefStreams[i])
		if hdr != nil && hdr["Type"] == name("XRef") && hdr["Root"] != nil {
			r.trailer = hdr
			return nil
		}
	}

	// Last resort: synthesize a trailer from the document catalog.
	for id, f := range objects {
		b := newBuffer(io.NewSectionReader(r.f, f.offset, r.end-f.offset), f.offset)
		b.allowEOF = true
		obj := b.readObject()
		putBuffer(b)
		def, ok := obj.(objdef)
		if !ok {
			continue
		}
		d, ok := def.obj.(dict)
		if !ok || d["Type"] != name("Catalog") {
			continue
		}
		debugf("synthesizing trailer from catalog object %d", id)
		r.trailer = dict{
			"Root": objptr{id, f.gen},
			"Size": int64(len(r.xref)),
		}
		return nil
	}
	return fmt.Errorf("%w: no trailer or catalog found in scan", ErrCorrupted)
}

// dictAround parses the object definition containing the byte at off by
// backing up to the nearest object header.
func (r *Reader) dictAround(off int64) dict {
	back := off - 512
	if back < 0 {
		back = 0
	}
	buf := make([]byte, off-back)
	n, _ := r.f.ReadAt(buf, back)
	buf = buf[:n]
	j := bytes.LastIndex(buf, []byte("obj"))
	if j < 0 {
		return nil
	}
	start := back + int64(headerStart(buf, j))
	b := newBuffer(io.NewSectionReader(r.f, start, r.end-start), start)
	b.allowEOF = true
	obj := b.readObject()
	putBuffer(b)
	if def, ok := obj.(objdef); ok {
		switch o := def.obj.(type) {
		case dict:
			return o
		case stream:
			return o.hdr
		}
	}
	return nil
}
