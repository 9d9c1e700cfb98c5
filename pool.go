// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdf

import (
	"sync"
)

// Lexer buffers are pooled: a Reader creates and discards one per object
// materialized, and the 64KB backing array dominates the allocation cost.
var lexBufferPool = sync.Pool{
	New: func() interface{} {
		return &buffer{
			buf:         make([]byte, 0, 65536),
			tmp:         make([]byte, 0, 256),
			unread:      make([]token, 0, 16),
			allowObjptr: true,
			allowStream: true,
		}
	},
}

func getBuffer() *buffer {
	return lexBufferPool.Get().(*buffer)
}

func putBuffer(b *buffer) {
	b.r = nil
	b.buf = b.buf[:0]
	b.pos = 0
	b.offset = 0
	b.tmp = b.tmp[:0]
	b.unread = b.unread[:0]
	b.allowEOF = false
	b.allowObjptr = true
	b.allowStream = true
	b.eof = false
	b.readErr = nil
	b.sec = nil
	b.objptr = objptr{}
	lexBufferPool.Put(b)
}
