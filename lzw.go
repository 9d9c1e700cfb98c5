// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// LZWDecode filter codec. PDF uses the TIFF variant of LZW: MSB-first
// bit packing, codes 256 (clear) and 257 (end of data), 9- to 12-bit
// variable width, and an EarlyChange parameter that widens codes one
// entry sooner than the table actually fills. compress/lzw implements
// the LSB-first GIF variant and has no EarlyChange, so the codec lives
// here.

package pdf

import (
	"bytes"
)

const (
	lzwClear    = 256
	lzwEOD      = 257
	lzwMinWidth = 9
	lzwMaxWidth = 12
)

// lzwDecode decodes a PDF LZW stream. earlyChange mirrors the
// /EarlyChange filter parameter and defaults to true. limit bounds the
// output size; 0 means unlimited.
func lzwDecode(src []byte, earlyChange bool, limit int64) ([]byte, error) {
	early := 0
	if earlyChange {
		early = 1
	}

	var out bytes.Buffer
	table := make([][]byte, 0, 1<<lzwMaxWidth)
	resetTable := func() {
		table = table[:0]
		for i := 0; i < 256; i++ {
			table = append(table, []byte{byte(i)})
		}
		table = append(table, nil, nil) // clear, EOD
	}
	resetTable()

	width := lzwMinWidth
	nextCode := lzwEOD + 1
	var prev []byte

	var acc uint32
	bits := 0
	pos := 0
	readCode := func() (int, bool) {
		for bits < width {
			if pos >= len(src) {
				return 0, false
			}
			acc = acc<<8 | uint32(src[pos])
			pos++
			bits += 8
		}
		bits -= width
		return int(acc>>uint(bits)) & (1<<uint(width) - 1), true
	}

	for {
		code, ok := readCode()
		if !ok {
			// Truncated input without an EOD marker. Tolerate it and
			// return what decoded so far.
			return out.Bytes(), nil
		}
		switch {
		case code == lzwClear:
			resetTable()
			width = lzwMinWidth
			nextCode = lzwEOD + 1
			prev = nil
			continue
		case code == lzwEOD:
			return out.Bytes(), nil
		}

		var entry []byte
		switch {
		case code < nextCode:
			entry = table[code]
		case code == nextCode && prev != nil:
			// The one-step-ahead case: the entry being referenced is
			// the one this very code causes to be defined.
			entry = append(append([]byte{}, prev...), prev[0])
		default:
			return nil, &InvalidLZWCodeError{Code: code}
		}

		if limit > 0 && int64(out.Len())+int64(len(entry)) > limit {
			return nil, ErrResourceExceeded
		}
		out.Write(entry)

		if prev != nil && nextCode < 1<<lzwMaxWidth {
			table = append(table, append(append([]byte{}, prev...), entry[0]))
			if width < lzwMaxWidth && nextCode+early >= 1<<uint(width)-1 {
				width++
			}
			nextCode++
		}
		prev = entry
	}
}

// lzwEncode encodes data as a PDF LZW stream, with EarlyChange semantics
// matching lzwDecode.
func lzwEncode(src []byte, earlyChange bool) []byte {
	early := 0
	if earlyChange {
		early = 1
	}

	var out bytes.Buffer
	var acc uint32
	bits := 0
	width := lzwMinWidth
	writeCode := func(code int) {
		acc = acc<<uint(width) | uint32(code)
		bits += width
		for bits >= 8 {
			bits -= 8
			out.WriteByte(byte(acc >> uint(bits)))
		}
	}

	table := make(map[string]int, 1<<lzwMaxWidth)
	resetTable := func() {
		for k := range table {
			delete(table, k)
		}
		for i := 0; i < 256; i++ {
			table[string([]byte{byte(i)})] = i
		}
	}
	resetTable()
	nextCode := lzwEOD + 1

	writeCode(lzwClear)
	var cur []byte
	for _, c := range src {
		ext := append(cur, c)
		if _, ok := table[string(ext)]; ok {
			cur = ext
			continue
		}
		writeCode(table[string(cur)])
		if nextCode < 1<<lzwMaxWidth {
			table[string(ext)] = nextCode
			// The decoder defines no entry for the first code after a
			// clear, so its table trails this one by a single entry and
			// the width grows one entry later here.
			if width < lzwMaxWidth && nextCode+early >= 1<<uint(width) {
				width++
			}
			nextCode++
		} else {
			writeCode(lzwClear)
			resetTable()
			nextCode = lzwEOD + 1
			width = lzwMinWidth
		}
		cur = []byte{c}
	}
	if len(cur) > 0 {
		writeCode(table[string(cur)])
	}
	writeCode(lzwEOD)
	if bits > 0 {
		out.WriteByte(byte(acc << uint(8-bits)))
	}
	return out.Bytes()
}
