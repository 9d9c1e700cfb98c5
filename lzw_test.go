// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdf

import (
	"bytes"
	"errors"
	"testing"
)

var lzwTobeor = []byte{
	0x80, 0x15, 0x09, 0xE4, 0x22, 0x29, 0x3C, 0xA4, 0x4E, 0x27,
	0x95, 0x20, 0x50, 0x48, 0x34, 0x2E, 0x0B, 0x07, 0x84, 0xC0,
	0x40,
}

func TestLZWDecode(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"tobeor", lzwTobeor, "TOBEORNOTTOBEORTOBEORNOT"},
		// Exercises the code==nextCode case: the second data code
		// references the entry it causes to be defined.
		{"selfref", []byte{0x80, 0x10, 0x60, 0x44, 0x18, 0x08}, "AAAA"},
		{"empty", []byte{0x80, 0x40, 0x40}, ""},
	}
	for _, tt := range tests {
		got, err := lzwDecode(tt.input, true, 0)
		if err != nil {
			t.Errorf("%s: lzwDecode failed: %v", tt.name, err)
			continue
		}
		if string(got) != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestLZWEncode(t *testing.T) {
	got := lzwEncode([]byte("TOBEORNOTTOBEORTOBEORNOT"), true)
	if !bytes.Equal(got, lzwTobeor) {
		t.Errorf("lzwEncode = % x, want % x", got, lzwTobeor)
	}
}

func TestLZWRoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"a",
		"TOBEORNOTTOBEORTOBEORNOT",
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		string(bytes.Repeat([]byte("the quick brown fox "), 500)),
	}
	// A long input with enough distinct sequences to grow the code
	// width past 9 bits in both encoder and decoder.
	var big bytes.Buffer
	for i := 0; i < 5000; i++ {
		big.WriteByte(byte(i * 7))
		big.WriteByte(byte(i >> 3))
	}
	inputs = append(inputs, big.String())
	// Deterministic noise dense enough to cross every width boundary up
	// to 12 bits; a width mismatch between encoder and decoder surfaces
	// as an invalid code a few entries past the boundary.
	var noisy bytes.Buffer
	seed := uint32(1)
	for i := 0; i < 4096; i++ {
		seed ^= seed << 13
		seed ^= seed >> 17
		seed ^= seed << 5
		noisy.WriteByte(byte(seed))
	}
	inputs = append(inputs, noisy.String())

	for _, early := range []bool{true, false} {
		for i, in := range inputs {
			enc := lzwEncode([]byte(in), early)
			dec, err := lzwDecode(enc, early, 0)
			if err != nil {
				t.Errorf("input %d early=%v: decode failed: %v", i, early, err)
				continue
			}
			if string(dec) != in {
				t.Errorf("input %d early=%v: round trip mismatch (got %d bytes, want %d)", i, early, len(dec), len(in))
			}
		}
	}
}

func TestLZWInvalidCode(t *testing.T) {
	// Clear, then code 300, which has no table entry yet.
	// 100000000 100101100 padded: 10000000 01001011 00xxxxxx.
	input := []byte{0x80, 0x4B, 0x00}
	_, err := lzwDecode(input, true, 0)
	var codeErr *InvalidLZWCodeError
	if !errors.As(err, &codeErr) {
		t.Fatalf("expected InvalidLZWCodeError, got %v", err)
	}
	if codeErr.Code != 300 {
		t.Errorf("Code = %d, want 300", codeErr.Code)
	}
}

func TestLZWTruncatedInput(t *testing.T) {
	// Encoded "TOBEOR..." cut off mid-stream: no EOD, but whatever
	// decoded before the cut comes back without an error.
	dec, err := lzwDecode(lzwTobeor[:5], true, 0)
	if err != nil {
		t.Fatalf("truncated decode failed: %v", err)
	}
	if len(dec) == 0 {
		t.Error("expected partial output from truncated input")
	}
	if !bytes.HasPrefix([]byte("TOBEORNOTTOBEORTOBEORNOT"), dec) {
		t.Errorf("partial output %q is not a prefix of the plaintext", dec)
	}
}

func TestLZWOutputLimit(t *testing.T) {
	in := bytes.Repeat([]byte("abcd"), 10000)
	enc := lzwEncode(in, true)
	if _, err := lzwDecode(enc, true, 100); !errors.Is(err, ErrResourceExceeded) {
		t.Errorf("expected ErrResourceExceeded, got %v", err)
	}
	if _, err := lzwDecode(enc, true, int64(len(in))); err != nil {
		t.Errorf("decode at exact limit failed: %v", err)
	}
}
