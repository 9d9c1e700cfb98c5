// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdf

import (
	"strings"
)

// Permissions is the decoded /P entry of a standard security handler's
// encryption dictionary: a bit set of operations the document's producer
// allows when opened with the user password.
type Permissions uint32

// The user access permission bits, ISO 32000-1 table 22.
const (
	PermPrintLowRes  Permissions = 1 << 2
	PermModify       Permissions = 1 << 3
	PermCopy         Permissions = 1 << 4
	PermAnnotate     Permissions = 1 << 5
	PermFillForms    Permissions = 1 << 8
	PermExtract      Permissions = 1 << 9
	PermAssemble     Permissions = 1 << 10
	PermPrintHighRes Permissions = 1 << 11
)

// permReserved covers the bits ISO 32000 requires to be set to 1.
const permReserved Permissions = 0xFFFFF0C3

// normalize forces the reserved bits on, the form /P takes on the wire.
func (p Permissions) normalize() Permissions {
	return p | permReserved
}

// Can reports whether all operations in mask are permitted.
func (p Permissions) Can(mask Permissions) bool {
	return p.normalize()&mask == mask
}

// permissionsFromP decodes a /P value. /P is written as a signed 32-bit
// integer, typically negative because the high reserved bits are set.
func permissionsFromP(v int64) Permissions {
	return Permissions(uint32(v)).normalize()
}

// pValue encodes the permissions as the signed integer stored in /P.
func (p Permissions) pValue() int64 {
	return int64(int32(p.normalize()))
}

// bytesLE returns the 4-byte little-endian encoding used in encryption
// key derivation and in the /Perms entry.
func (p Permissions) bytesLE() [4]byte {
	u := uint32(p.normalize())
	return [4]byte{byte(u), byte(u >> 8), byte(u >> 16), byte(u >> 24)}
}

func (p Permissions) String() string {
	names := []struct {
		bit  Permissions
		name string
	}{
		{PermPrintLowRes, "print"},
		{PermModify, "modify"},
		{PermCopy, "copy"},
		{PermAnnotate, "annotate"},
		{PermFillForms, "fill-forms"},
		{PermExtract, "extract"},
		{PermAssemble, "assemble"},
		{PermPrintHighRes, "print-highres"},
	}
	var parts []string
	for _, n := range names {
		if p&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}
