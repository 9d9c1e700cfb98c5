// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdf

import (
	"errors"
	"fmt"
)

// PDFError represents an error that occurred during PDF processing.
// It includes contextual information about where the error occurred.
type PDFError struct {
	Op   string // Operation that failed (e.g., "read xref", "decode stream")
	Path string // File path if applicable
	Err  error  // Underlying error
}

func (e *PDFError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("pdf: %s (%s): %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("pdf: %s: %v", e.Op, e.Err)
}

func (e *PDFError) Unwrap() error {
	return e.Err
}

// Common errors
var (
	// ErrInvalidPassword indicates neither the user nor the owner password
	// matched the document's encryption dictionary.
	ErrInvalidPassword = errors.New("encrypted PDF: invalid password")

	// ErrReferenceCycle indicates indirect reference resolution exceeded the
	// recursion limit, which only happens when references form a cycle.
	ErrReferenceCycle = errors.New("reference cycle detected")

	// ErrResourceExceeded indicates a decode produced more output than the
	// configured limit allows.
	ErrResourceExceeded = errors.New("decoded stream exceeds resource limit")

	// ErrInvalidData indicates malformed codec input (bad base-85 group,
	// truncated run, invalid hex digit).
	ErrInvalidData = errors.New("invalid filter data")

	// ErrCompression indicates a corrupt DEFLATE/zlib stream.
	ErrCompression = errors.New("corrupt compressed data")

	// ErrCorrupted indicates the PDF file structure is corrupted beyond
	// what recovery can repair.
	ErrCorrupted = errors.New("PDF file is corrupted")

	// ErrUnsupportedVersion indicates the PDF version is not supported.
	ErrUnsupportedVersion = errors.New("unsupported PDF version")
)

// A MissingObjectError reports a lookup of an object number the
// cross-reference table does not contain (or lists as free).
type MissingObjectError struct {
	ID ObjectID
}

func (e *MissingObjectError) Error() string {
	return fmt.Sprintf("pdf: object %d %d not found", e.ID.Number, e.ID.Gen)
}

// An InvalidObjectError reports an object that exists in the
// cross-reference table but could not be materialized.
type InvalidObjectError struct {
	ID  ObjectID
	Err error
}

func (e *InvalidObjectError) Error() string {
	return fmt.Sprintf("pdf: object %d %d: %v", e.ID.Number, e.ID.Gen, e.Err)
}

func (e *InvalidObjectError) Unwrap() error {
	return e.Err
}

// A KindError reports a typed accessor applied to a value of the wrong kind.
type KindError struct {
	Want ValueKind
	Got  ValueKind
}

func (e *KindError) Error() string {
	return fmt.Sprintf("pdf: unexpected value kind: want %v, got %v", e.Want, e.Got)
}

// An InvalidLZWCodeError reports an LZW code with no table entry.
type InvalidLZWCodeError struct {
	Code int
}

func (e *InvalidLZWCodeError) Error() string {
	return fmt.Sprintf("pdf: invalid LZW code %d", e.Code)
}

// An UnsupportedFilterError reports a stream filter this package cannot decode.
type UnsupportedFilterError struct {
	Name string
}

func (e *UnsupportedFilterError) Error() string {
	return fmt.Sprintf("pdf: unsupported filter %q", e.Name)
}

// An EncryptionError reports a cipher failure scoped to a single object's
// stream or string data.
type EncryptionError struct {
	Op  string // "encrypt" or "decrypt"
	ID  ObjectID
	Err error
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("pdf: %s object %d %d: %v", e.Op, e.ID.Number, e.ID.Gen, e.Err)
}

func (e *EncryptionError) Unwrap() error {
	return e.Err
}

// wrapError wraps an error with operation context
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PDFError{Op: op, Err: err}
}
