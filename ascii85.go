// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// ASCII85Decode filter codec. The PDF flavor uses '!'..'u' digits in
// base 85, the 'z' shortcut for an all-zero group, and a '~>' terminator.

package pdf

import (
	"bytes"
	"fmt"
)

// ascii85Decode decodes ASCII85 data, stopping at the '~' of the '~>'
// end marker if present. Whitespace is ignored anywhere; a 'z' is only
// legal at a group boundary.
func ascii85Decode(src []byte) ([]byte, error) {
	var out bytes.Buffer
	var group [5]byte
	n := 0
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case isSpace(c):
			continue
		case c == '~':
			goto Flush
		case c == 'z':
			if n != 0 {
				return nil, fmt.Errorf("%w: 'z' inside ascii85 group", ErrInvalidData)
			}
			out.Write([]byte{0, 0, 0, 0})
		case '!' <= c && c <= 'u':
			group[n] = c - '!'
			n++
			if n == 5 {
				out.Write(ascii85Group(group, 4))
				n = 0
			}
		default:
			return nil, fmt.Errorf("%w: invalid ascii85 byte %#x", ErrInvalidData, c)
		}
	}

Flush:
	if n == 1 {
		return nil, fmt.Errorf("%w: truncated ascii85 group", ErrInvalidData)
	}
	if n > 1 {
		// A partial group of n digits carries n-1 bytes. Pad with the
		// highest digit so truncation rounds the dropped bytes upward,
		// matching what encoders produce.
		for j := n; j < 5; j++ {
			group[j] = 'u' - '!'
		}
		out.Write(ascii85Group(group, n-1))
	}
	return out.Bytes(), nil
}

func ascii85Group(group [5]byte, keep int) []byte {
	var v uint32
	for _, d := range group {
		v = v*85 + uint32(d)
	}
	b := [4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	return b[:keep]
}

// ascii85Encode encodes data in the PDF ASCII85 alphabet without the
// '~>' terminator, which belongs to the stream framing, not the payload.
func ascii85Encode(src []byte) []byte {
	var out bytes.Buffer
	for len(src) >= 4 {
		v := uint32(src[0])<<24 | uint32(src[1])<<16 | uint32(src[2])<<8 | uint32(src[3])
		if v == 0 {
			out.WriteByte('z')
		} else {
			out.Write(ascii85Digits(v, 5))
		}
		src = src[4:]
	}
	if len(src) > 0 {
		var v uint32
		for i := 0; i < 4; i++ {
			v <<= 8
			if i < len(src) {
				v |= uint32(src[i])
			}
		}
		out.Write(ascii85Digits(v, len(src)+1))
	}
	return out.Bytes()
}

func ascii85Digits(v uint32, n int) []byte {
	var d [5]byte
	for i := 4; i >= 0; i-- {
		d[i] = byte(v%85) + '!'
		v /= 85
	}
	return d[:n]
}
