// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Stream filter pipeline. Each filter decodes a stream's bytes one
// stage at a time; a /Filter array chains stages in order.

package pdf

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// A Filter names a PDF stream filter.
type Filter string

// The standard stream filters.
const (
	FilterASCIIHex  Filter = "ASCIIHexDecode"
	FilterASCII85   Filter = "ASCII85Decode"
	FilterRunLength Filter = "RunLengthDecode"
	FilterLZW       Filter = "LZWDecode"
	FilterFlate     Filter = "FlateDecode"
	FilterDCT       Filter = "DCTDecode"
	FilterJPX       Filter = "JPXDecode"
	FilterCCITTFax  Filter = "CCITTFaxDecode"
	FilterJBIG2     Filter = "JBIG2Decode"
	FilterCrypt     Filter = "Crypt"
)

// FilterParams carries the decode parameters of a single filter stage,
// from the stream's /DecodeParms entry.
type FilterParams struct {
	Predictor        int
	Colors           int
	BitsPerComponent int
	Columns          int
	EarlyChange      bool

	// MaxOutput bounds the decoded size. Zero selects the default
	// expansion-ratio guard against decompression bombs.
	MaxOutput int64
}

// DefaultDecodeRatio bounds decoded stream size at this multiple of the
// encoded input (with a 1 MiB floor) when no explicit limit is set.
const DefaultDecodeRatio = 256

const minDecodeLimit = 1 << 20

func decodeLimit(p FilterParams, inputLen int) int64 {
	if p.MaxOutput > 0 {
		return p.MaxOutput
	}
	limit := int64(DefaultDecodeRatio) * int64(inputLen)
	if limit < minDecodeLimit {
		limit = minDecodeLimit
	}
	return limit
}

// filterParamsFromDict fills FilterParams from a /DecodeParms dictionary
// value, which may be null.
func filterParamsFromDict(v Value) FilterParams {
	p := FilterParams{
		Predictor:        1,
		Colors:           1,
		BitsPerComponent: 8,
		Columns:          1,
		EarlyChange:      true,
	}
	if v.Kind() != KindDict {
		return p
	}
	if n := v.Key("Predictor").Int64(); n != 0 {
		p.Predictor = int(n)
	}
	if n := v.Key("Colors").Int64(); n != 0 {
		p.Colors = int(n)
	}
	if n := v.Key("BitsPerComponent").Int64(); n != 0 {
		p.BitsPerComponent = int(n)
	}
	if n := v.Key("Columns").Int64(); n != 0 {
		p.Columns = int(n)
	}
	if ec := v.Key("EarlyChange"); ec.Kind() == KindInteger {
		p.EarlyChange = ec.Int64() != 0
	}
	return p
}

// DecodeFilter decodes one filter stage. DCTDecode and JPXDecode are
// self-contained image formats and pass through untouched; CCITTFaxDecode,
// JBIG2Decode, and unknown names report an UnsupportedFilterError.
func DecodeFilter(f Filter, data []byte, p FilterParams) ([]byte, error) {
	limit := decodeLimit(p, len(data))
	var out []byte
	var err error
	switch f {
	case FilterASCIIHex:
		out, err = asciiHexDecode(data)
	case FilterASCII85:
		out, err = ascii85Decode(data)
	case FilterRunLength:
		out, err = runLengthDecode(data, limit)
	case FilterLZW:
		out, err = lzwDecode(data, p.EarlyChange, limit)
		if err == nil {
			out, err = applyPredictor(out, p)
		}
	case FilterFlate:
		out, err = flateDecode(data, limit)
		if err == nil {
			out, err = applyPredictor(out, p)
		}
	case FilterDCT, FilterJPX:
		out = data
	default:
		return nil, &UnsupportedFilterError{Name: string(f)}
	}
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > limit {
		return nil, ErrResourceExceeded
	}
	return out, nil
}

// EncodeFilter is the inverse of DecodeFilter for the filters this
// package can produce.
func EncodeFilter(f Filter, data []byte, p FilterParams) ([]byte, error) {
	switch f {
	case FilterASCIIHex:
		return asciiHexEncode(data), nil
	case FilterASCII85:
		return ascii85Encode(data), nil
	case FilterRunLength:
		return runLengthEncode(data), nil
	case FilterLZW:
		return lzwEncode(data, p.EarlyChange), nil
	case FilterFlate:
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, &UnsupportedFilterError{Name: string(f)}
}

func flateDecode(data []byte, limit int64) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompression, err)
	}
	defer zr.Close()
	var out bytes.Buffer
	n, err := io.Copy(&out, io.LimitReader(zr, limit+1))
	if err != nil && err != io.ErrUnexpectedEOF {
		// Some producers truncate the final DEFLATE block; keep what
		// decoded cleanly in that case. Anything else, including a
		// checksum mismatch, means the bytes cannot be trusted.
		return nil, fmt.Errorf("%w: %v", ErrCompression, err)
	}
	if n > limit {
		return nil, ErrResourceExceeded
	}
	return out.Bytes(), nil
}

// runLengthDecode decodes RunLengthDecode data: a length byte L, then
// either L+1 literal bytes (L < 128) or one byte repeated 257-L times
// (L > 128). 128 is end of data.
func runLengthDecode(data []byte, limit int64) ([]byte, error) {
	var out bytes.Buffer
	i := 0
	for i < len(data) {
		l := int(data[i])
		i++
		switch {
		case l == 128:
			return out.Bytes(), nil
		case l < 128:
			if i+l+1 > len(data) {
				return nil, fmt.Errorf("%w: truncated literal run", ErrInvalidData)
			}
			out.Write(data[i : i+l+1])
			i += l + 1
		default:
			if i >= len(data) {
				return nil, fmt.Errorf("%w: truncated repeat run", ErrInvalidData)
			}
			out.Write(bytes.Repeat(data[i:i+1], 257-l))
			i++
		}
		if int64(out.Len()) > limit {
			return nil, ErrResourceExceeded
		}
	}
	// Missing the 128 terminator; accept the data anyway.
	return out.Bytes(), nil
}

func runLengthEncode(data []byte) []byte {
	var out bytes.Buffer
	i := 0
	for i < len(data) {
		// Count the run starting at i.
		j := i + 1
		for j < len(data) && j-i < 128 && data[j] == data[i] {
			j++
		}
		if j-i >= 2 {
			out.WriteByte(byte(257 - (j - i)))
			out.WriteByte(data[i])
			i = j
			continue
		}
		// Literal run: until the next repeat of length >= 3 or 128 bytes.
		j = i + 1
		for j < len(data) && j-i < 128 {
			if j+2 < len(data) && data[j] == data[j+1] && data[j] == data[j+2] {
				break
			}
			j++
		}
		out.WriteByte(byte(j - i - 1))
		out.Write(data[i:j])
		i = j
	}
	out.WriteByte(128)
	return out.Bytes()
}

// asciiHexDecode decodes ASCIIHexDecode data, stopping at '>'.
// An odd final digit is padded with a trailing zero.
func asciiHexDecode(data []byte) ([]byte, error) {
	var out bytes.Buffer
	var hi byte
	have := false
	for _, c := range data {
		if isSpace(c) {
			continue
		}
		if c == '>' {
			break
		}
		d := unhex(c)
		if d < 0 {
			return nil, fmt.Errorf("%w: invalid hex byte %#x", ErrInvalidData, c)
		}
		if have {
			out.WriteByte(hi<<4 | byte(d))
			have = false
		} else {
			hi = byte(d)
			have = true
		}
	}
	if have {
		out.WriteByte(hi << 4)
	}
	return out.Bytes(), nil
}

func asciiHexEncode(data []byte) []byte {
	const hexDigit = "0123456789ABCDEF"
	out := make([]byte, 0, 2*len(data)+1)
	for _, c := range data {
		out = append(out, hexDigit[c>>4], hexDigit[c&0xf])
	}
	out = append(out, '>')
	return out
}
