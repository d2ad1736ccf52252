package nfs3

import (
	"bytes"
	"fmt"
	"io"

	"github.com/marmos91/nfsh/internal/mount"
	"github.com/marmos91/nfsh/internal/xdr"
)

// FileHandle is NFS v3's nfs_fh3 (RFC 1813 Section 2.5): wire-distinct from
// MOUNT's fhandle3 (internal/mount.FHandle3) even though both carry opaque
// bytes of the same size — the protocols number and authorize them
// separately, so the spec's session driver converts explicitly rather than
// aliasing the two types.
type FileHandle []byte

// FromMountHandle converts a MOUNT-obtained fhandle3 into the nfs_fh3 used
// by every subsequent NFS v3 call. Per RFC 1813, MOUNT's MNT response
// handle IS the NFS v3 root file handle; this conversion exists so the
// session layer never passes a mount.FHandle3 to an NFS v3 call by
// accident (spec.md's session invariants treat the two namespaces as
// distinct).
func FromMountHandle(h mount.FHandle3) FileHandle {
	return FileHandle(append([]byte(nil), h...))
}

// TimeVal is NFS v3's nfstime3 (RFC 1813 Section 2.5).
type TimeVal struct {
	Seconds  uint32
	Nseconds uint32
}

// FileAttr is fattr3 (RFC 1813 Section 2.5): the full attribute set
// returned by GETATTR and carried optionally on most other responses.
type FileAttr struct {
	Type   uint32
	Mode   uint32
	Nlink  uint32
	UID    uint32
	GID    uint32
	Size   uint64
	Used   uint64
	RdevMajor uint32
	RdevMinor uint32
	Fsid   uint64
	FileID uint64
	Atime  TimeVal
	Mtime  TimeVal
	Ctime  TimeVal
}

// WccAttr is wcc_attr (RFC 1813 Section 2.6): the pre-operation attributes
// carried in wcc_data for weak cache consistency.
type WccAttr struct {
	Size  uint64
	Mtime TimeVal
	Ctime TimeVal
}

// WccData is wcc_data (RFC 1813 Section 2.6): optional pre- and
// post-operation attributes returned by every procedure that can modify a
// file or directory.
type WccData struct {
	Before    *WccAttr
	BeforeSet bool
	After     *FileAttr
	AfterSet  bool
}

// SetAttr is sattr3 (RFC 1813 Section 2.5): every field guarded by its own
// "set?" discriminant, used by SETATTR and as the initial attributes on
// CREATE/MKDIR/MKNOD/SYMLINK.
type SetAttr struct {
	Mode       *uint32
	UID        *uint32
	GID        *uint32
	Size       *uint64
	AtimeSet   AtimeSetMode
	Atime      TimeVal
	MtimeSet   MtimeSetMode
	Mtime      TimeVal
}

// AtimeSetMode / MtimeSetMode are set_atime/set_mtime discriminants
// (RFC 1813 Section 2.5).
type AtimeSetMode uint32
type MtimeSetMode uint32

const (
	DontChange       AtimeSetMode = 0
	SetToServerTime  AtimeSetMode = 1
	SetToClientTime  AtimeSetMode = 2
)

const (
	MtimeDontChange      MtimeSetMode = 0
	MtimeSetToServerTime MtimeSetMode = 1
	MtimeSetToClientTime MtimeSetMode = 2
)

func decodeFileHandle(r io.Reader) (FileHandle, error) {
	data, err := xdr.DecodeOpaque(r)
	if err != nil {
		return nil, err
	}
	return FileHandle(data), nil
}

func encodeFileHandle(buf *bytes.Buffer, fh FileHandle) error {
	return xdr.WriteXDROpaque(buf, fh)
}

func decodeTimeVal(r io.Reader) (TimeVal, error) {
	sec, err := xdr.DecodeUint32(r)
	if err != nil {
		return TimeVal{}, err
	}
	nsec, err := xdr.DecodeUint32(r)
	if err != nil {
		return TimeVal{}, err
	}
	return TimeVal{Seconds: sec, Nseconds: nsec}, nil
}

func encodeTimeVal(buf *bytes.Buffer, t TimeVal) error {
	if err := xdr.WriteUint32(buf, t.Seconds); err != nil {
		return err
	}
	return xdr.WriteUint32(buf, t.Nseconds)
}

func decodeFileAttr(r io.Reader) (FileAttr, error) {
	var a FileAttr
	var err error
	if a.Type, err = xdr.DecodeUint32(r); err != nil {
		return a, fmt.Errorf("type: %w", err)
	}
	if a.Mode, err = xdr.DecodeUint32(r); err != nil {
		return a, fmt.Errorf("mode: %w", err)
	}
	if a.Nlink, err = xdr.DecodeUint32(r); err != nil {
		return a, fmt.Errorf("nlink: %w", err)
	}
	if a.UID, err = xdr.DecodeUint32(r); err != nil {
		return a, fmt.Errorf("uid: %w", err)
	}
	if a.GID, err = xdr.DecodeUint32(r); err != nil {
		return a, fmt.Errorf("gid: %w", err)
	}
	if a.Size, err = xdr.DecodeUint64(r); err != nil {
		return a, fmt.Errorf("size: %w", err)
	}
	if a.Used, err = xdr.DecodeUint64(r); err != nil {
		return a, fmt.Errorf("used: %w", err)
	}
	if a.RdevMajor, err = xdr.DecodeUint32(r); err != nil {
		return a, fmt.Errorf("rdev major: %w", err)
	}
	if a.RdevMinor, err = xdr.DecodeUint32(r); err != nil {
		return a, fmt.Errorf("rdev minor: %w", err)
	}
	if a.Fsid, err = xdr.DecodeUint64(r); err != nil {
		return a, fmt.Errorf("fsid: %w", err)
	}
	if a.FileID, err = xdr.DecodeUint64(r); err != nil {
		return a, fmt.Errorf("fileid: %w", err)
	}
	if a.Atime, err = decodeTimeVal(r); err != nil {
		return a, fmt.Errorf("atime: %w", err)
	}
	if a.Mtime, err = decodeTimeVal(r); err != nil {
		return a, fmt.Errorf("mtime: %w", err)
	}
	if a.Ctime, err = decodeTimeVal(r); err != nil {
		return a, fmt.Errorf("ctime: %w", err)
	}
	return a, nil
}

// decodePostOpAttr decodes post_op_attr: a "present?" boolean followed
// optionally by a fattr3. Every NFS v3 response that returns attributes
// makes them optional (RFC 1813 Section 2.6); callers must check the
// returned presence flag (or a nil *FileAttr) rather than assume
// attributes are always present.
func decodePostOpAttr(r io.Reader) (*FileAttr, bool, error) {
	present, err := xdr.DecodeBool(r)
	if err != nil {
		return nil, false, err
	}
	if !present {
		return nil, false, nil
	}
	attr, err := decodeFileAttr(r)
	if err != nil {
		return nil, false, err
	}
	return &attr, true, nil
}

func decodeWccAttr(r io.Reader) (WccAttr, error) {
	var a WccAttr
	var err error
	if a.Size, err = xdr.DecodeUint64(r); err != nil {
		return a, err
	}
	if a.Mtime, err = decodeTimeVal(r); err != nil {
		return a, err
	}
	if a.Ctime, err = decodeTimeVal(r); err != nil {
		return a, err
	}
	return a, nil
}

// decodeWccData decodes wcc_data: a pre_op_attr (optional wcc_attr) and a
// post_op_attr (optional fattr3).
func decodeWccData(r io.Reader) (*WccData, error) {
	wcc := &WccData{}

	beforePresent, err := xdr.DecodeBool(r)
	if err != nil {
		return nil, fmt.Errorf("wcc before present: %w", err)
	}
	if beforePresent {
		before, err := decodeWccAttr(r)
		if err != nil {
			return nil, fmt.Errorf("wcc before: %w", err)
		}
		wcc.Before, wcc.BeforeSet = &before, true
	}

	after, afterSet, err := decodePostOpAttr(r)
	if err != nil {
		return nil, fmt.Errorf("wcc after: %w", err)
	}
	wcc.After, wcc.AfterSet = after, afterSet
	return wcc, nil
}

func encodeSetAttr(buf *bytes.Buffer, s SetAttr) error {
	if err := encodeOptionalUint32(buf, s.Mode); err != nil {
		return fmt.Errorf("mode: %w", err)
	}
	if err := encodeOptionalUint32(buf, s.UID); err != nil {
		return fmt.Errorf("uid: %w", err)
	}
	if err := encodeOptionalUint32(buf, s.GID); err != nil {
		return fmt.Errorf("gid: %w", err)
	}
	if err := encodeOptionalUint64(buf, s.Size); err != nil {
		return fmt.Errorf("size: %w", err)
	}
	if err := xdr.WriteUint32(buf, uint32(s.AtimeSet)); err != nil {
		return fmt.Errorf("atime set: %w", err)
	}
	if s.AtimeSet == SetToClientTime {
		if err := encodeTimeVal(buf, s.Atime); err != nil {
			return fmt.Errorf("atime: %w", err)
		}
	}
	if err := xdr.WriteUint32(buf, uint32(s.MtimeSet)); err != nil {
		return fmt.Errorf("mtime set: %w", err)
	}
	if s.MtimeSet == MtimeSetToClientTime {
		if err := encodeTimeVal(buf, s.Mtime); err != nil {
			return fmt.Errorf("mtime: %w", err)
		}
	}
	return nil
}

func encodeOptionalUint32(buf *bytes.Buffer, v *uint32) error {
	if err := xdr.WriteBool(buf, v != nil); err != nil {
		return err
	}
	if v != nil {
		return xdr.WriteUint32(buf, *v)
	}
	return nil
}

func encodeOptionalUint64(buf *bytes.Buffer, v *uint64) error {
	if err := xdr.WriteBool(buf, v != nil); err != nil {
		return err
	}
	if v != nil {
		return xdr.WriteUint64(buf, *v)
	}
	return nil
}
