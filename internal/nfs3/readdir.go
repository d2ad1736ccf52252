package nfs3

import (
	"bytes"
	"fmt"
	"io"

	"github.com/marmos91/nfsh/internal/xdr"
)

// DirEntry is entry3 (RFC 1813 Section 3.3.16): one READDIR result, keyed
// by a per-entry cookie the server hands back on the next call to resume
// iteration exactly where this entry left off.
type DirEntry struct {
	FileID uint64
	Name   string
	Cookie uint64
}

// DirEntryPlus is entryplus3 (RFC 1813 Section 3.3.17): a DirEntry plus
// optional attributes and an optional file handle, as returned by
// READDIRPLUS.
type DirEntryPlus struct {
	DirEntry
	Attr   *FileAttr
	Handle FileHandle
}

// Readdir lists dirFH's entries starting after cookie (0 to start from the
// beginning), verified against cookieVerf to detect a directory that
// changed between calls (RFC 1813 Section 3.3.16). count bounds the
// reply's XDR-encoded size in bytes. Per spec.md's Non-goals (no
// directory-listing cache), the shell's listDir repeats Readdir from
// cookie 0 until eof, carrying forward only the last entry's cookie and
// the latest verifier; the collected names live only for that one command.
func (c *Client) Readdir(dirFH FileHandle, cookie uint64, cookieVerf uint64, count uint32) (entries []DirEntry, eof bool, newVerf uint64, dirAttr *FileAttr, err error) {
	var buf bytes.Buffer
	if err := encodeFileHandle(&buf, dirFH); err != nil {
		return nil, false, 0, nil, err
	}
	if err := xdr.WriteUint64(&buf, cookie); err != nil {
		return nil, false, 0, nil, err
	}
	if err := xdr.WriteUint64(&buf, cookieVerf); err != nil {
		return nil, false, 0, nil, err
	}
	if err := xdr.WriteUint32(&buf, count); err != nil {
		return nil, false, 0, nil, err
	}

	reply, err := c.rpc.Call(ProcReaddir, buf.Bytes())
	if err != nil {
		return nil, false, 0, nil, fmt.Errorf("READDIR: %w", err)
	}
	r := bytes.NewReader(reply)
	stat, err := readStatus(r)
	if err != nil {
		return nil, false, 0, nil, err
	}
	dirAttr, _, err = decodePostOpAttr(r)
	if err != nil {
		return nil, false, 0, nil, fmt.Errorf("decode dir attr: %w", err)
	}
	if stat != OK {
		return nil, false, 0, dirAttr, &StatusError{Op: "READDIR", Status: stat}
	}

	if newVerf, err = xdr.DecodeUint64(r); err != nil {
		return nil, false, 0, dirAttr, fmt.Errorf("decode cookieverf: %w", err)
	}
	entries, err = xdr.DecodeOptionalList(r, decodeDirEntry)
	if err != nil {
		return nil, false, newVerf, dirAttr, fmt.Errorf("decode entries: %w", err)
	}
	if eof, err = xdr.DecodeBool(r); err != nil {
		return entries, false, newVerf, dirAttr, fmt.Errorf("decode eof: %w", err)
	}
	return entries, eof, newVerf, dirAttr, nil
}

func decodeDirEntry(r io.Reader) (DirEntry, error) {
	fileID, err := xdr.DecodeUint64(r)
	if err != nil {
		return DirEntry{}, fmt.Errorf("fileid: %w", err)
	}
	name, err := xdr.DecodeString(r)
	if err != nil {
		return DirEntry{}, fmt.Errorf("name: %w", err)
	}
	cookie, err := xdr.DecodeUint64(r)
	if err != nil {
		return DirEntry{}, fmt.Errorf("cookie: %w", err)
	}
	return DirEntry{FileID: fileID, Name: name, Cookie: cookie}, nil
}

// Readdirplus is READDIRPLUS (procedure 17): like Readdir, but each entry
// optionally carries attributes and a file handle, saving a LOOKUP round
// trip per entry at the cost of a larger reply.
func (c *Client) Readdirplus(dirFH FileHandle, cookie uint64, cookieVerf uint64, dirCount, maxCount uint32) (entries []DirEntryPlus, eof bool, newVerf uint64, dirAttr *FileAttr, err error) {
	var buf bytes.Buffer
	if err := encodeFileHandle(&buf, dirFH); err != nil {
		return nil, false, 0, nil, err
	}
	if err := xdr.WriteUint64(&buf, cookie); err != nil {
		return nil, false, 0, nil, err
	}
	if err := xdr.WriteUint64(&buf, cookieVerf); err != nil {
		return nil, false, 0, nil, err
	}
	if err := xdr.WriteUint32(&buf, dirCount); err != nil {
		return nil, false, 0, nil, err
	}
	if err := xdr.WriteUint32(&buf, maxCount); err != nil {
		return nil, false, 0, nil, err
	}

	reply, err := c.rpc.Call(ProcReaddirplus, buf.Bytes())
	if err != nil {
		return nil, false, 0, nil, fmt.Errorf("READDIRPLUS: %w", err)
	}
	r := bytes.NewReader(reply)
	stat, err := readStatus(r)
	if err != nil {
		return nil, false, 0, nil, err
	}
	dirAttr, _, err = decodePostOpAttr(r)
	if err != nil {
		return nil, false, 0, nil, fmt.Errorf("decode dir attr: %w", err)
	}
	if stat != OK {
		return nil, false, 0, dirAttr, &StatusError{Op: "READDIRPLUS", Status: stat}
	}

	if newVerf, err = xdr.DecodeUint64(r); err != nil {
		return nil, false, 0, dirAttr, fmt.Errorf("decode cookieverf: %w", err)
	}
	entries, err = xdr.DecodeOptionalList(r, decodeDirEntryPlus)
	if err != nil {
		return nil, false, newVerf, dirAttr, fmt.Errorf("decode entries: %w", err)
	}
	if eof, err = xdr.DecodeBool(r); err != nil {
		return entries, false, newVerf, dirAttr, fmt.Errorf("decode eof: %w", err)
	}
	return entries, eof, newVerf, dirAttr, nil
}

func decodeDirEntryPlus(r io.Reader) (DirEntryPlus, error) {
	base, err := decodeDirEntry(r)
	if err != nil {
		return DirEntryPlus{}, err
	}
	entry := DirEntryPlus{DirEntry: base}

	entry.Attr, _, err = decodePostOpAttr(r)
	if err != nil {
		return entry, fmt.Errorf("attr: %w", err)
	}

	fhPresent, err := xdr.DecodeBool(r)
	if err != nil {
		return entry, fmt.Errorf("handle presence: %w", err)
	}
	if fhPresent {
		entry.Handle, err = decodeFileHandle(r)
		if err != nil {
			return entry, fmt.Errorf("handle: %w", err)
		}
	}
	return entry, nil
}
