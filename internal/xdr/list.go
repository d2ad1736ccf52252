package xdr

import (
	"bytes"
	"fmt"
	"io"
)

// DecodeOptionalList decodes an RFC 1813-style "linked list" encoding used by
// READDIR's entry3, MOUNT's mountlist/groups/exports, and similar structures:
// a repeated "value follows?" boolean, each true followed by one element, and
// a final false terminating the list.
//
// Per spec.md's design notes: these are recursive-looking wire structures
// (a struct with a "next *T" pointer) that are encoded and decoded
// iteratively here rather than recursively, to avoid unbounded Go call
// stacks on a hostile or buggy server. decodeElem reads exactly one element
// and returns it; this function handles the boolean list-continuation
// framing around it.
func DecodeOptionalList[T any](r io.Reader, decodeElem func(io.Reader) (T, error)) ([]T, error) {
	var out []T
	for {
		more, err := DecodeBool(r)
		if err != nil {
			return nil, fmt.Errorf("read list continuation: %w", err)
		}
		if !more {
			return out, nil
		}
		elem, err := decodeElem(r)
		if err != nil {
			return nil, fmt.Errorf("read list element %d: %w", len(out), err)
		}
		out = append(out, elem)
	}
}

// EncodeOptionalList writes elems in the same "value follows?" framing that
// DecodeOptionalList reads, terminated by a final false.
func EncodeOptionalList[T any](buf *bytes.Buffer, elems []T, encodeElem func(*bytes.Buffer, T) error) error {
	for i, e := range elems {
		if err := WriteBool(buf, true); err != nil {
			return fmt.Errorf("write list continuation: %w", err)
		}
		if err := encodeElem(buf, e); err != nil {
			return fmt.Errorf("write list element %d: %w", i, err)
		}
	}
	return WriteBool(buf, false)
}
