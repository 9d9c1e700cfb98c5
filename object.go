// Copyright 2014 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The PDF object model: typed values, object identity, and resolution
// of indirect references through a Reader's cross-reference table.

package pdf

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
)

// Limits on object identity, per ISO 32000-1 annex C.
const (
	MaxObjectNumber = 1<<32 - 1
	MaxGeneration   = 1<<16 - 1
)

// An ObjectID identifies an indirect object: an object number and a
// generation number.
type ObjectID struct {
	Number uint32
	Gen    uint16
}

// NewObjectID validates number and gen and returns the corresponding
// ObjectID. Object number 0 is reserved for the free-list head and is
// rejected, as are values outside the representable range.
func NewObjectID(number, gen int64) (ObjectID, error) {
	if number < 1 || number > MaxObjectNumber {
		return ObjectID{}, fmt.Errorf("pdf: object number %d out of range", number)
	}
	if gen < 0 || gen > MaxGeneration {
		return ObjectID{}, fmt.Errorf("pdf: generation number %d out of range", gen)
	}
	return ObjectID{Number: uint32(number), Gen: uint16(gen)}, nil
}

func (id ObjectID) String() string {
	return fmt.Sprintf("%d %d R", id.Number, id.Gen)
}

func (id ObjectID) ptr() objptr {
	return objptr{id.Number, id.Gen}
}

// A Value is a single PDF value, such as an integer, dictionary, or array.
// The zero Value is a PDF null (Kind() == KindNull, IsNull() == true).
type Value struct {
	r    *Reader
	ptr  objptr
	data interface{}
}

// IsNull reports whether the value is a null. It is equivalent to
// Kind() == KindNull.
func (v Value) IsNull() bool {
	return v.data == nil
}

// A ValueKind specifies the kind of data underlying a Value.
type ValueKind int

// The PDF value kinds.
const (
	KindNull ValueKind = iota
	KindBool
	KindInteger
	KindReal
	KindString
	KindName
	KindDict
	KindArray
	KindStream
	KindReference
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindBool:
		return "Bool"
	case KindInteger:
		return "Integer"
	case KindReal:
		return "Real"
	case KindString:
		return "String"
	case KindName:
		return "Name"
	case KindDict:
		return "Dict"
	case KindArray:
		return "Array"
	case KindStream:
		return "Stream"
	case KindReference:
		return "Reference"
	}
	return "ValueKind(" + strconv.Itoa(int(k)) + ")"
}

// Kind reports the kind of value underlying v.
func (v Value) Kind() ValueKind {
	switch v.data.(type) {
	default:
		return KindNull
	case bool:
		return KindBool
	case int64:
		return KindInteger
	case float64:
		return KindReal
	case string:
		return KindString
	case name:
		return KindName
	case dict:
		return KindDict
	case array:
		return KindArray
	case stream:
		return KindStream
	case objptr:
		return KindReference
	}
}

// String returns a textual representation of the value v.
// Note that String is not the accessor for values with Kind() == KindString.
// To access such values, see RawString, Text, and TextFromUTF16.
func (v Value) String() string {
	return objfmt(v.data)
}

func objfmt(x interface{}) string {
	switch x := x.(type) {
	default:
		return fmt.Sprint(x)
	case string:
		if isPDFDocEncoded(x) {
			return strconv.Quote(pdfDocDecode(x))
		}
		if isUTF16(x) {
			return strconv.Quote(utf16Decode(x[2:]))
		}
		return strconv.Quote(x)
	case name:
		return "/" + string(x)
	case dict:
		var keys []string
		for k := range x {
			keys = append(keys, string(k))
		}
		sort.Strings(keys)
		var buf bytes.Buffer
		buf.WriteString("<<")
		for i, k := range keys {
			elem := x[name(k)]
			if i > 0 {
				buf.WriteString(" ")
			}
			buf.WriteString("/")
			buf.WriteString(k)
			buf.WriteString(" ")
			buf.WriteString(objfmt(elem))
		}
		buf.WriteString(">>")
		return buf.String()

	case array:
		var buf bytes.Buffer
		buf.WriteString("[")
		for i, elem := range x {
			if i > 0 {
				buf.WriteString(" ")
			}
			buf.WriteString(objfmt(elem))
		}
		buf.WriteString("]")
		return buf.String()

	case stream:
		return fmt.Sprintf("%v@%d", objfmt(x.hdr), x.offset)

	case objptr:
		return fmt.Sprintf("%d %d R", x.id, x.gen)

	case objdef:
		return fmt.Sprintf("{%d %d obj}%v", x.ptr.id, x.ptr.gen, objfmt(x.obj))
	}
}

// Bool returns v's boolean value.
// If v.Kind() != KindBool, Bool returns false.
func (v Value) Bool() bool {
	x, ok := v.data.(bool)
	if !ok {
		return false
	}
	return x
}

// Int64 returns v's int64 value.
// If v.Kind() != KindInteger, Int64 returns 0.
func (v Value) Int64() int64 {
	x, ok := v.data.(int64)
	if !ok {
		return 0
	}
	return x
}

// Float64 returns v's float64 value, converting from integer if necessary.
// If v.Kind() != KindReal and v.Kind() != KindInteger, Float64 returns 0.
func (v Value) Float64() float64 {
	x, ok := v.data.(float64)
	if !ok {
		x, ok := v.data.(int64)
		if ok {
			return float64(x)
		}
		return 0
	}
	return x
}

// RawString returns v's string value.
// If v.Kind() != KindString, RawString returns the empty string.
func (v Value) RawString() string {
	x, ok := v.data.(string)
	if !ok {
		return ""
	}
	return x
}

// Text returns v's string value interpreted as a “text string” (defined in
// the PDF spec) and converted to UTF-8.
// If v.Kind() != KindString, Text returns the empty string.
func (v Value) Text() string {
	x, ok := v.data.(string)
	if !ok {
		return ""
	}
	if isPDFDocEncoded(x) {
		return pdfDocDecode(x)
	}
	if isUTF16(x) {
		return utf16Decode(x[2:])
	}
	return x
}

// TextFromUTF16 returns v's string value interpreted as big-endian UTF-16
// and then converted to UTF-8.
// If v.Kind() != KindString or if the data is not valid UTF-16, TextFromUTF16
// returns the empty string.
func (v Value) TextFromUTF16() string {
	x, ok := v.data.(string)
	if !ok {
		return ""
	}
	if len(x)%2 == 1 {
		return ""
	}
	if x == "" {
		return ""
	}
	return utf16Decode(x)
}

// Name returns v's name value.
// If v.Kind() != KindName, Name returns the empty string.
// The returned name does not include the leading slash:
// if v corresponds to the name written using the syntax /Helvetica,
// Name() == "Helvetica".
func (v Value) Name() string {
	x, ok := v.data.(name)
	if !ok {
		return ""
	}
	return string(x)
}

// Key returns the value associated with the given name key in the dictionary v,
// resolving an indirect reference if necessary.
// Like the result of the Name method, the key should not include a leading slash.
// If v is a stream, Key applies to the stream's header dictionary.
// If v.Kind() != KindDict and v.Kind() != KindStream, Key returns a null Value.
func (v Value) Key(key string) Value {
	x, ok := v.data.(dict)
	if !ok {
		strm, ok := v.data.(stream)
		if !ok {
			return Value{}
		}
		x = strm.hdr
	}
	return v.r.resolve(v.ptr, x[name(key)])
}

// RawKey is like Key but does not resolve an indirect reference: if the entry
// is a reference, the result has Kind() == KindReference and AsReference
// reports its target.
func (v Value) RawKey(key string) Value {
	x, ok := v.data.(dict)
	if !ok {
		strm, ok := v.data.(stream)
		if !ok {
			return Value{}
		}
		x = strm.hdr
	}
	return Value{v.r, v.ptr, x[name(key)]}
}

// Keys returns a sorted list of the keys in the dictionary v.
// If v is a stream, Keys applies to the stream's header dictionary.
// If v.Kind() != KindDict and v.Kind() != KindStream, Keys returns nil.
func (v Value) Keys() []string {
	x, ok := v.data.(dict)
	if !ok {
		strm, ok := v.data.(stream)
		if !ok {
			return nil
		}
		x = strm.hdr
	}
	keys := []string{} // not nil
	for k := range x {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	return keys
}

// Index returns the i'th element in the array v, resolving an indirect
// reference if necessary.
// If v.Kind() != KindArray or if i is outside the array bounds,
// Index returns a null Value.
func (v Value) Index(i int) Value {
	x, ok := v.data.(array)
	if !ok || i < 0 || i >= len(x) {
		return Value{}
	}
	return v.r.resolve(v.ptr, x[i])
}

// Len returns the length of the array v.
// If v.Kind() != KindArray, Len returns 0.
func (v Value) Len() int {
	x, ok := v.data.(array)
	if !ok {
		return 0
	}
	return len(x)
}

// Strict accessors. Unlike the zero-defaulting accessors above, these report
// a KindError naming the expected and actual kinds, so callers can tell a
// missing entry from a present-but-mistyped one.

// AsBool returns v's boolean value, or a KindError.
func (v Value) AsBool() (bool, error) {
	x, ok := v.data.(bool)
	if !ok {
		return false, &KindError{Want: KindBool, Got: v.Kind()}
	}
	return x, nil
}

// AsInt64 returns v's integer value, or a KindError.
func (v Value) AsInt64() (int64, error) {
	x, ok := v.data.(int64)
	if !ok {
		return 0, &KindError{Want: KindInteger, Got: v.Kind()}
	}
	return x, nil
}

// AsFloat64 returns v's real value, converting from integer, or a KindError.
func (v Value) AsFloat64() (float64, error) {
	switch x := v.data.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	}
	return 0, &KindError{Want: KindReal, Got: v.Kind()}
}

// AsString returns v's raw string bytes, or a KindError.
func (v Value) AsString() (string, error) {
	x, ok := v.data.(string)
	if !ok {
		return "", &KindError{Want: KindString, Got: v.Kind()}
	}
	return x, nil
}

// AsName returns v's name (without the leading slash), or a KindError.
func (v Value) AsName() (string, error) {
	x, ok := v.data.(name)
	if !ok {
		return "", &KindError{Want: KindName, Got: v.Kind()}
	}
	return string(x), nil
}

// AsDict returns v itself if v is a dictionary or a stream (whose header
// dictionary the dict accessors then apply to), or a KindError.
func (v Value) AsDict() (Value, error) {
	switch v.data.(type) {
	case dict, stream:
		return v, nil
	}
	return Value{}, &KindError{Want: KindDict, Got: v.Kind()}
}

// AsArray returns v itself if v is an array, or a KindError.
func (v Value) AsArray() (Value, error) {
	if _, ok := v.data.(array); !ok {
		return Value{}, &KindError{Want: KindArray, Got: v.Kind()}
	}
	return v, nil
}

// AsStream returns v itself if v is a stream, or a KindError.
func (v Value) AsStream() (Value, error) {
	if _, ok := v.data.(stream); !ok {
		return Value{}, &KindError{Want: KindStream, Got: v.Kind()}
	}
	return v, nil
}

// AsReference returns the object identity a reference value points at,
// or a KindError. Reference values are produced by RawKey and RawIndex.
func (v Value) AsReference() (ObjectID, error) {
	x, ok := v.data.(objptr)
	if !ok {
		return ObjectID{}, &KindError{Want: KindReference, Got: v.Kind()}
	}
	return ObjectID{Number: x.id, Gen: x.gen}, nil
}

// RawIndex is like Index but does not resolve an indirect reference.
func (v Value) RawIndex(i int) Value {
	x, ok := v.data.(array)
	if !ok || i < 0 || i >= len(x) {
		return Value{}
	}
	return Value{v.r, v.ptr, x[i]}
}

// objCache is the per-Reader session cache of materialized objects.
// Entries are never evicted or replaced: the first load wins, so repeated
// lookups of an object observe one identity for the document's lifetime.
type objCache struct {
	mu sync.RWMutex
	m  map[objptr]object
}

func (c *objCache) get(ptr objptr) (object, bool) {
	c.mu.RLock()
	obj, ok := c.m[ptr]
	c.mu.RUnlock()
	return obj, ok
}

func (c *objCache) put(ptr objptr, obj object) {
	c.mu.Lock()
	if c.m == nil {
		c.m = make(map[objptr]object)
	}
	if _, ok := c.m[ptr]; !ok {
		c.m[ptr] = obj
	}
	c.mu.Unlock()
}

// Resolution follows chains of indirect references at most this deep.
// Anything deeper is necessarily a cycle of references with no object body.
const maxResolveDepth = 32

// GetObject materializes the indirect object identified by id.
// A number absent from the cross-reference table (or listed as free) yields
// a MissingObjectError; an object that exists but cannot be parsed or
// resolved yields an InvalidObjectError.
func (r *Reader) GetObject(id ObjectID) (Value, error) {
	ptr := id.ptr()
	if int64(id.Number) >= int64(len(r.xref)) {
		return Value{}, &MissingObjectError{ID: id}
	}
	x := r.xref[id.Number]
	if x.ptr != ptr || (!x.inStream && x.offset == 0) {
		return Value{}, &MissingObjectError{ID: id}
	}
	v, err := r.resolveErr(objptr{}, ptr)
	if err != nil {
		return Value{}, &InvalidObjectError{ID: id, Err: err}
	}
	if v.IsNull() {
		return Value{}, &InvalidObjectError{ID: id, Err: ErrCorrupted}
	}
	return v, nil
}

func (r *Reader) resolve(parent objptr, x interface{}) Value {
	v, _ := r.resolveErr(parent, x)
	return v
}

func (r *Reader) resolveErr(parent objptr, x interface{}) (Value, error) {
	depth := 0
	for {
		ptr, ok := x.(objptr)
		if !ok {
			break
		}
		if depth++; depth > maxResolveDepth {
			return Value{}, ErrReferenceCycle
		}
		obj, err := r.loadObject(parent, ptr)
		if err != nil {
			return Value{}, err
		}
		x = obj
		parent = ptr
	}

	switch x := x.(type) {
	case nil, bool, int64, float64, name, dict, array, stream, string:
		return Value{r, parent, x}, nil
	default:
		// Unknown type, treat as null instead of panicking.
		return Value{}, nil
	}
}

// loadObject fetches the body of one indirect object, from the session cache,
// an object stream, or the file itself.
func (r *Reader) loadObject(parent objptr, ptr objptr) (object, error) {
	if obj, ok := r.cache.get(ptr); ok {
		return obj, nil
	}
	if ptr.id >= uint32(len(r.xref)) {
		return nil, &MissingObjectError{ID: ObjectID{ptr.id, ptr.gen}}
	}
	x := r.xref[ptr.id]
	if x.ptr != ptr || !x.inStream && x.offset == 0 {
		return nil, &MissingObjectError{ID: ObjectID{ptr.id, ptr.gen}}
	}

	if x.inStream {
		obj, err := r.loadFromObjectStream(parent, ptr, x)
		if err != nil {
			return nil, err
		}
		r.cache.put(ptr, obj)
		return obj, nil
	}

	b := newBuffer(io.NewSectionReader(r.f, x.offset, r.end-x.offset), x.offset)
	b.sec = r.sec
	obj := b.readObject()
	putBuffer(b)
	def, ok := obj.(objdef)
	if !ok {
		return nil, fmt.Errorf("malformed PDF: object %d %d: not an object definition at offset %d", ptr.id, ptr.gen, x.offset)
	}
	// A mismatched def.ptr can happen when the xref table is stale;
	// keep what we found, the way viewers do.
	r.cache.put(ptr, def.obj)
	return def.obj, nil
}

// loadFromObjectStream locates ptr inside the object stream named by x,
// following Extends chains. Offsets of each container stream are parsed once
// and memoized.
func (r *Reader) loadFromObjectStream(parent objptr, ptr objptr, x xref) (object, error) {
	strm := r.resolve(parent, x.stream)
	streamID := x.stream.id

	for {
		if strm.Kind() != KindStream {
			return nil, fmt.Errorf("malformed PDF: object %d %d: container is not a stream", ptr.id, ptr.gen)
		}
		if strm.Key("Type").Name() != "ObjStm" {
			return nil, fmt.Errorf("malformed PDF: object %d %d: container is not an object stream", ptr.id, ptr.gen)
		}
		n := int(strm.Key("N").Int64())
		first := strm.Key("First").Int64()
		if first == 0 {
			return nil, fmt.Errorf("malformed PDF: object stream %d missing First", streamID)
		}

		offset, found := r.objStreamOffset(streamID, strm, n, first, ptr.id)
		if found {
			data, err := strm.StreamData()
			if err != nil {
				return nil, err
			}
			b := newBuffer(bytes.NewReader(data), 0)
			b.allowEOF = true
			b.seekForward(offset)
			obj := b.readObject()
			putBuffer(b)
			return obj, nil
		}

		ext := strm.Key("Extends")
		if ext.Kind() != KindStream {
			return nil, &MissingObjectError{ID: ObjectID{ptr.id, ptr.gen}}
		}
		strm = ext
		streamID = 0
	}
}

// objStreamOffset returns the byte offset of object id inside the given
// object stream. When streamID is nonzero the stream's offset directory is
// cached after the first parse; the Extends fallback (streamID 0) is rare
// enough to parse every time.
func (r *Reader) objStreamOffset(streamID uint32, strm Value, n int, first int64, id uint32) (int64, bool) {
	if streamID != 0 {
		r.objStreamMu.RLock()
		dir, ok := r.objStreamDirs[streamID]
		r.objStreamMu.RUnlock()
		if !ok {
			dir = make(map[int64]int64, n)
			data, err := strm.StreamData()
			if err == nil {
				b := newBuffer(bytes.NewReader(data), 0)
				b.allowEOF = true
				for i := 0; i < n; i++ {
					oid, _ := b.readToken().(int64)
					off, _ := b.readToken().(int64)
					dir[oid] = first + off
				}
				putBuffer(b)
			}
			r.objStreamMu.Lock()
			if r.objStreamDirs == nil {
				r.objStreamDirs = make(map[uint32]map[int64]int64)
			}
			if old, ok := r.objStreamDirs[streamID]; ok {
				dir = old
			} else {
				r.objStreamDirs[streamID] = dir
			}
			r.objStreamMu.Unlock()
		}
		off, ok := dir[int64(id)]
		return off, ok
	}

	data, err := strm.StreamData()
	if err != nil {
		return 0, false
	}
	b := newBuffer(bytes.NewReader(data), 0)
	b.allowEOF = true
	defer putBuffer(b)
	for i := 0; i < n; i++ {
		oid, _ := b.readToken().(int64)
		off, _ := b.readToken().(int64)
		if uint32(oid) == id {
			return first + off, true
		}
	}
	return 0, false
}
