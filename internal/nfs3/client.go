package nfs3

import (
	"bytes"
	"fmt"
	"net"
	"time"

	"github.com/marmos91/nfsh/internal/metrics"
	"github.com/marmos91/nfsh/internal/rpc"
	"github.com/marmos91/nfsh/internal/xdr"
)

// Client talks NFS v3 to a remote nfsd over an already-open rpc.Client.
type Client struct {
	rpc *rpc.Client
}

// Dial opens a connection to host's nfsd on the given port.
func Dial(host string, port uint32, network string, privileged bool, auth rpc.Authenticator) (*Client, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	var conn net.Conn
	var err error
	switch network {
	case "tcp":
		conn, err = rpc.OpenStream(addr, privileged)
	case "udp":
		conn, err = rpc.OpenDatagram(addr, privileged)
	default:
		return nil, fmt.Errorf("unsupported network %q", network)
	}
	if err != nil {
		return nil, fmt.Errorf("dial nfsd at %s: %w", addr, err)
	}

	c := rpc.NewClient(conn, network, rpc.ProgramNFS, rpc.NFSVersion, auth)
	return &Client{rpc: c}, nil
}

// NewClient wraps an already-open connection as an NFS v3 Client, instead
// of dialing a fresh one, mirroring mount.NewClient/portmap.NewClient.
func NewClient(conn net.Conn, network string, auth rpc.Authenticator) *Client {
	return &Client{rpc: rpc.NewClient(conn, network, rpc.ProgramNFS, rpc.NFSVersion, auth)}
}

// Close releases the underlying connection.
func (c *Client) Close() error { return c.rpc.Close() }

// SetMetrics wires m into every subsequent Call, recorded under the "NFS"
// program name.
func (c *Client) SetMetrics(m *metrics.Recorder) { c.rpc.SetMetrics(m, "NFS", ProcName) }

// SetTimeout overrides the per-call deadline (spec.md §3's `timeout`
// setting; the default is rpc.DefaultTimeout).
func (c *Client) SetTimeout(d time.Duration) { c.rpc.SetTimeout(d) }

// SetAuth swaps the authenticator used by subsequent calls.
func (c *Client) SetAuth(auth rpc.Authenticator) { c.rpc.SetAuth(auth) }

// StatusError wraps a non-OK nfsstat3 code returned by the server.
type StatusError struct {
	Op     string
	Status uint32
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, StatusName(e.Status))
}

func readStatus(r *bytes.Reader) (uint32, error) {
	return xdr.DecodeUint32(r)
}

// Null pings the server (NFSPROC3_NULL, procedure 0).
func (c *Client) Null() error {
	_, err := c.rpc.Call(ProcNull, nil)
	return err
}

// Getattr retrieves fh's attributes (GETATTR, procedure 1).
func (c *Client) Getattr(fh FileHandle) (FileAttr, error) {
	var buf bytes.Buffer
	if err := encodeFileHandle(&buf, fh); err != nil {
		return FileAttr{}, err
	}
	reply, err := c.rpc.Call(ProcGetattr, buf.Bytes())
	if err != nil {
		return FileAttr{}, fmt.Errorf("GETATTR: %w", err)
	}

	r := bytes.NewReader(reply)
	stat, err := readStatus(r)
	if err != nil {
		return FileAttr{}, err
	}
	if stat != OK {
		return FileAttr{}, &StatusError{Op: "GETATTR", Status: stat}
	}
	return decodeFileAttr(r)
}

// Setattr updates fh's attributes (SETATTR, procedure 2). guardCtime, when
// non-nil, asks the server to reject the change if fh's ctime no longer
// matches (sattrguard3).
func (c *Client) Setattr(fh FileHandle, attrs SetAttr, guardCtime *TimeVal) (*WccData, error) {
	var buf bytes.Buffer
	if err := encodeFileHandle(&buf, fh); err != nil {
		return nil, err
	}
	if err := encodeSetAttr(&buf, attrs); err != nil {
		return nil, err
	}
	if err := xdr.WriteBool(&buf, guardCtime != nil); err != nil {
		return nil, err
	}
	if guardCtime != nil {
		if err := encodeTimeVal(&buf, *guardCtime); err != nil {
			return nil, err
		}
	}

	reply, err := c.rpc.Call(ProcSetattr, buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("SETATTR: %w", err)
	}
	r := bytes.NewReader(reply)
	stat, err := readStatus(r)
	if err != nil {
		return nil, err
	}
	wcc, err := decodeWccData(r)
	if err != nil {
		return nil, fmt.Errorf("decode wcc: %w", err)
	}
	if stat != OK {
		return wcc, &StatusError{Op: "SETATTR", Status: stat}
	}
	return wcc, nil
}

// Lookup resolves name within dirFH (LOOKUP, procedure 3).
func (c *Client) Lookup(dirFH FileHandle, name string) (FileHandle, *FileAttr, *FileAttr, error) {
	var buf bytes.Buffer
	if err := encodeDirOpArgs(&buf, dirFH, name); err != nil {
		return nil, nil, nil, err
	}

	reply, err := c.rpc.Call(ProcLookup, buf.Bytes())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("LOOKUP: %w", err)
	}
	r := bytes.NewReader(reply)
	stat, err := readStatus(r)
	if err != nil {
		return nil, nil, nil, err
	}
	if stat != OK {
		dirAttr, _, _ := decodePostOpAttr(r)
		return nil, nil, dirAttr, &StatusError{Op: "LOOKUP", Status: stat}
	}

	fh, err := decodeFileHandle(r)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode handle: %w", err)
	}
	objAttr, _, err := decodePostOpAttr(r)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode obj attr: %w", err)
	}
	dirAttr, _, err := decodePostOpAttr(r)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode dir attr: %w", err)
	}
	return fh, objAttr, dirAttr, nil
}

// Access bitmask constants (RFC 1813 Section 3.3.4).
const (
	AccessRead    uint32 = 0x0001
	AccessLookup  uint32 = 0x0002
	AccessModify  uint32 = 0x0004
	AccessExtend  uint32 = 0x0008
	AccessDelete  uint32 = 0x0010
	AccessExecute uint32 = 0x0020
)

// Access checks which of the requested operations fh permits for the
// caller's credentials (ACCESS, procedure 4).
func (c *Client) Access(fh FileHandle, requested uint32) (granted uint32, attr *FileAttr, err error) {
	var buf bytes.Buffer
	if err := encodeFileHandle(&buf, fh); err != nil {
		return 0, nil, err
	}
	if err := xdr.WriteUint32(&buf, requested); err != nil {
		return 0, nil, err
	}

	reply, err := c.rpc.Call(ProcAccess, buf.Bytes())
	if err != nil {
		return 0, nil, fmt.Errorf("ACCESS: %w", err)
	}
	r := bytes.NewReader(reply)
	stat, err := readStatus(r)
	if err != nil {
		return 0, nil, err
	}
	attr, _, err = decodePostOpAttr(r)
	if err != nil {
		return 0, nil, fmt.Errorf("decode attr: %w", err)
	}
	if stat != OK {
		return 0, attr, &StatusError{Op: "ACCESS", Status: stat}
	}
	granted, err = xdr.DecodeUint32(r)
	if err != nil {
		return 0, attr, fmt.Errorf("decode access bits: %w", err)
	}
	return granted, attr, nil
}

// Readlink reads a symlink's target (READLINK, procedure 5).
func (c *Client) Readlink(fh FileHandle) (string, *FileAttr, error) {
	var buf bytes.Buffer
	if err := encodeFileHandle(&buf, fh); err != nil {
		return "", nil, err
	}

	reply, err := c.rpc.Call(ProcReadlink, buf.Bytes())
	if err != nil {
		return "", nil, fmt.Errorf("READLINK: %w", err)
	}
	r := bytes.NewReader(reply)
	stat, err := readStatus(r)
	if err != nil {
		return "", nil, err
	}
	attr, _, err := decodePostOpAttr(r)
	if err != nil {
		return "", nil, fmt.Errorf("decode attr: %w", err)
	}
	if stat != OK {
		return "", attr, &StatusError{Op: "READLINK", Status: stat}
	}
	target, err := xdr.DecodeString(r)
	if err != nil {
		return "", attr, fmt.Errorf("decode target: %w", err)
	}
	return target, attr, nil
}

// Read reads up to count bytes from fh starting at offset (READ,
// procedure 6).
func (c *Client) Read(fh FileHandle, offset uint64, count uint32) (data []byte, eof bool, attr *FileAttr, err error) {
	var buf bytes.Buffer
	if err := encodeFileHandle(&buf, fh); err != nil {
		return nil, false, nil, err
	}
	if err := xdr.WriteUint64(&buf, offset); err != nil {
		return nil, false, nil, err
	}
	if err := xdr.WriteUint32(&buf, count); err != nil {
		return nil, false, nil, err
	}

	reply, err := c.rpc.Call(ProcRead, buf.Bytes())
	if err != nil {
		return nil, false, nil, fmt.Errorf("READ: %w", err)
	}
	r := bytes.NewReader(reply)
	stat, err := readStatus(r)
	if err != nil {
		return nil, false, nil, err
	}
	attr, _, err = decodePostOpAttr(r)
	if err != nil {
		return nil, false, nil, fmt.Errorf("decode attr: %w", err)
	}
	if stat != OK {
		return nil, false, attr, &StatusError{Op: "READ", Status: stat}
	}

	n, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, false, attr, fmt.Errorf("decode count: %w", err)
	}
	eof, err = xdr.DecodeBool(r)
	if err != nil {
		return nil, false, attr, fmt.Errorf("decode eof: %w", err)
	}
	data, err = xdr.DecodeOpaque(r)
	if err != nil {
		return nil, false, attr, fmt.Errorf("decode data: %w", err)
	}
	if uint32(len(data)) > n {
		data = data[:n]
	}
	return data, eof, attr, nil
}

// Write writes data to fh at offset with the requested stability level
// (WRITE, procedure 7).
func (c *Client) Write(fh FileHandle, offset uint64, data []byte, stable uint32) (count uint32, committed uint32, verifier uint64, wcc *WccData, err error) {
	var buf bytes.Buffer
	if err := encodeFileHandle(&buf, fh); err != nil {
		return 0, 0, 0, nil, err
	}
	if err := xdr.WriteUint64(&buf, offset); err != nil {
		return 0, 0, 0, nil, err
	}
	if err := xdr.WriteUint32(&buf, uint32(len(data))); err != nil {
		return 0, 0, 0, nil, err
	}
	if err := xdr.WriteUint32(&buf, stable); err != nil {
		return 0, 0, 0, nil, err
	}
	if err := xdr.WriteXDROpaque(&buf, data); err != nil {
		return 0, 0, 0, nil, err
	}

	reply, err := c.rpc.Call(ProcWrite, buf.Bytes())
	if err != nil {
		return 0, 0, 0, nil, fmt.Errorf("WRITE: %w", err)
	}
	r := bytes.NewReader(reply)
	stat, err := readStatus(r)
	if err != nil {
		return 0, 0, 0, nil, err
	}
	wcc, err = decodeWccData(r)
	if err != nil {
		return 0, 0, 0, nil, fmt.Errorf("decode wcc: %w", err)
	}
	if stat != OK {
		return 0, 0, 0, wcc, &StatusError{Op: "WRITE", Status: stat}
	}

	if count, err = xdr.DecodeUint32(r); err != nil {
		return 0, 0, 0, wcc, fmt.Errorf("decode count: %w", err)
	}
	if committed, err = xdr.DecodeUint32(r); err != nil {
		return 0, 0, 0, wcc, fmt.Errorf("decode committed: %w", err)
	}
	if verifier, err = xdr.DecodeUint64(r); err != nil {
		return 0, 0, 0, wcc, fmt.Errorf("decode verifier: %w", err)
	}
	return count, committed, verifier, wcc, nil
}

// Create creates name within dirFH using the given createmode3/attrs
// (CREATE, procedure 8). verifier is only meaningful for CreateExclusive.
func (c *Client) Create(dirFH FileHandle, name string, mode uint32, attrs SetAttr, verifier uint64) (FileHandle, *FileAttr, *WccData, error) {
	var buf bytes.Buffer
	if err := encodeDirOpArgs(&buf, dirFH, name); err != nil {
		return nil, nil, nil, err
	}
	if err := xdr.WriteUint32(&buf, mode); err != nil {
		return nil, nil, nil, err
	}
	switch mode {
	case CreateExclusive:
		if err := xdr.WriteUint64(&buf, verifier); err != nil {
			return nil, nil, nil, err
		}
	default:
		if err := encodeSetAttr(&buf, attrs); err != nil {
			return nil, nil, nil, err
		}
	}

	reply, err := c.rpc.Call(ProcCreate, buf.Bytes())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("CREATE: %w", err)
	}
	return decodeObjCreationReply(reply, "CREATE")
}

// Mkdir creates a directory (MKDIR, procedure 9).
func (c *Client) Mkdir(dirFH FileHandle, name string, attrs SetAttr) (FileHandle, *FileAttr, *WccData, error) {
	var buf bytes.Buffer
	if err := encodeDirOpArgs(&buf, dirFH, name); err != nil {
		return nil, nil, nil, err
	}
	if err := encodeSetAttr(&buf, attrs); err != nil {
		return nil, nil, nil, err
	}

	reply, err := c.rpc.Call(ProcMkdir, buf.Bytes())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("MKDIR: %w", err)
	}
	return decodeObjCreationReply(reply, "MKDIR")
}

// Symlink creates a symbolic link pointing at target (SYMLINK, procedure 10).
func (c *Client) Symlink(dirFH FileHandle, name string, attrs SetAttr, target string) (FileHandle, *FileAttr, *WccData, error) {
	var buf bytes.Buffer
	if err := encodeDirOpArgs(&buf, dirFH, name); err != nil {
		return nil, nil, nil, err
	}
	if err := encodeSetAttr(&buf, attrs); err != nil {
		return nil, nil, nil, err
	}
	if err := xdr.WriteXDRString(&buf, target); err != nil {
		return nil, nil, nil, err
	}

	reply, err := c.rpc.Call(ProcSymlink, buf.Bytes())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("SYMLINK: %w", err)
	}
	return decodeObjCreationReply(reply, "SYMLINK")
}

// Mknod creates a special file of the given ftype3 (MKNOD, procedure 11).
// major/minor are only meaningful for TypeChr/TypeBlk.
func (c *Client) Mknod(dirFH FileHandle, name string, fileType uint32, attrs SetAttr, major, minor uint32) (FileHandle, *FileAttr, *WccData, error) {
	var buf bytes.Buffer
	if err := encodeDirOpArgs(&buf, dirFH, name); err != nil {
		return nil, nil, nil, err
	}
	if err := xdr.WriteUint32(&buf, fileType); err != nil {
		return nil, nil, nil, err
	}
	switch fileType {
	case TypeChr, TypeBlk:
		if err := encodeSetAttr(&buf, attrs); err != nil {
			return nil, nil, nil, err
		}
		if err := xdr.WriteUint32(&buf, major); err != nil {
			return nil, nil, nil, err
		}
		if err := xdr.WriteUint32(&buf, minor); err != nil {
			return nil, nil, nil, err
		}
	case TypeSock, TypeFifo:
		if err := encodeSetAttr(&buf, attrs); err != nil {
			return nil, nil, nil, err
		}
	}

	reply, err := c.rpc.Call(ProcMknod, buf.Bytes())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("MKNOD: %w", err)
	}
	return decodeObjCreationReply(reply, "MKNOD")
}

// decodeObjCreationReply decodes the common shape shared by CREATE/MKDIR/
// SYMLINK/MKNOD: status, optional new file handle, optional new object
// attributes, then dir wcc_data.
func decodeObjCreationReply(reply []byte, op string) (FileHandle, *FileAttr, *WccData, error) {
	r := bytes.NewReader(reply)
	stat, err := readStatus(r)
	if err != nil {
		return nil, nil, nil, err
	}

	var fh FileHandle
	fhPresent, err := xdr.DecodeBool(r)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode handle presence: %w", err)
	}
	if fhPresent {
		fh, err = decodeFileHandle(r)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("decode handle: %w", err)
		}
	}

	attr, _, err := decodePostOpAttr(r)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode attr: %w", err)
	}

	wcc, err := decodeWccData(r)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode wcc: %w", err)
	}

	if stat != OK {
		return nil, attr, wcc, &StatusError{Op: op, Status: stat}
	}
	return fh, attr, wcc, nil
}

// Remove deletes a non-directory entry (REMOVE, procedure 12).
func (c *Client) Remove(dirFH FileHandle, name string) (*WccData, error) {
	return c.removeLike(ProcRemove, "REMOVE", dirFH, name)
}

// Rmdir deletes an empty directory entry (RMDIR, procedure 13).
func (c *Client) Rmdir(dirFH FileHandle, name string) (*WccData, error) {
	return c.removeLike(ProcRmdir, "RMDIR", dirFH, name)
}

func (c *Client) removeLike(proc uint32, op string, dirFH FileHandle, name string) (*WccData, error) {
	var buf bytes.Buffer
	if err := encodeDirOpArgs(&buf, dirFH, name); err != nil {
		return nil, err
	}

	reply, err := c.rpc.Call(proc, buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	r := bytes.NewReader(reply)
	stat, err := readStatus(r)
	if err != nil {
		return nil, err
	}
	wcc, err := decodeWccData(r)
	if err != nil {
		return nil, fmt.Errorf("decode wcc: %w", err)
	}
	if stat != OK {
		return wcc, &StatusError{Op: op, Status: stat}
	}
	return wcc, nil
}

// Rename moves fromName in fromDirFH to toName in toDirFH (RENAME,
// procedure 14).
func (c *Client) Rename(fromDirFH FileHandle, fromName string, toDirFH FileHandle, toName string) (fromWcc, toWcc *WccData, err error) {
	var buf bytes.Buffer
	if err := encodeDirOpArgs(&buf, fromDirFH, fromName); err != nil {
		return nil, nil, err
	}
	if err := encodeDirOpArgs(&buf, toDirFH, toName); err != nil {
		return nil, nil, err
	}

	reply, err := c.rpc.Call(ProcRename, buf.Bytes())
	if err != nil {
		return nil, nil, fmt.Errorf("RENAME: %w", err)
	}
	r := bytes.NewReader(reply)
	stat, err := readStatus(r)
	if err != nil {
		return nil, nil, err
	}
	fromWcc, err = decodeWccData(r)
	if err != nil {
		return nil, nil, fmt.Errorf("decode from wcc: %w", err)
	}
	toWcc, err = decodeWccData(r)
	if err != nil {
		return nil, nil, fmt.Errorf("decode to wcc: %w", err)
	}
	if stat != OK {
		return fromWcc, toWcc, &StatusError{Op: "RENAME", Status: stat}
	}
	return fromWcc, toWcc, nil
}

// Link creates a hard link at name in dirFH pointing to fh (LINK,
// procedure 15).
func (c *Client) Link(fh FileHandle, dirFH FileHandle, name string) (attr *FileAttr, dirWcc *WccData, err error) {
	var buf bytes.Buffer
	if err := encodeFileHandle(&buf, fh); err != nil {
		return nil, nil, err
	}
	if err := encodeDirOpArgs(&buf, dirFH, name); err != nil {
		return nil, nil, err
	}

	reply, err := c.rpc.Call(ProcLink, buf.Bytes())
	if err != nil {
		return nil, nil, fmt.Errorf("LINK: %w", err)
	}
	r := bytes.NewReader(reply)
	stat, err := readStatus(r)
	if err != nil {
		return nil, nil, err
	}
	attr, _, err = decodePostOpAttr(r)
	if err != nil {
		return nil, nil, fmt.Errorf("decode attr: %w", err)
	}
	dirWcc, err = decodeWccData(r)
	if err != nil {
		return nil, nil, fmt.Errorf("decode dir wcc: %w", err)
	}
	if stat != OK {
		return attr, dirWcc, &StatusError{Op: "LINK", Status: stat}
	}
	return attr, dirWcc, nil
}

// Fsstat returns dynamic filesystem information (FSSTAT, procedure 18).
type FsstatResult struct {
	TotalBytes, FreeBytes, AvailBytes       uint64
	TotalFiles, FreeFiles, AvailFiles       uint64
	InvarSec uint32
}

func (c *Client) Fsstat(fh FileHandle) (FsstatResult, *FileAttr, error) {
	var buf bytes.Buffer
	if err := encodeFileHandle(&buf, fh); err != nil {
		return FsstatResult{}, nil, err
	}

	reply, err := c.rpc.Call(ProcFsstat, buf.Bytes())
	if err != nil {
		return FsstatResult{}, nil, fmt.Errorf("FSSTAT: %w", err)
	}
	r := bytes.NewReader(reply)
	stat, err := readStatus(r)
	if err != nil {
		return FsstatResult{}, nil, err
	}
	attr, _, err := decodePostOpAttr(r)
	if err != nil {
		return FsstatResult{}, nil, fmt.Errorf("decode attr: %w", err)
	}
	if stat != OK {
		return FsstatResult{}, attr, &StatusError{Op: "FSSTAT", Status: stat}
	}

	var res FsstatResult
	for _, field := range []*uint64{&res.TotalBytes, &res.FreeBytes, &res.AvailBytes, &res.TotalFiles, &res.FreeFiles, &res.AvailFiles} {
		if *field, err = xdr.DecodeUint64(r); err != nil {
			return res, attr, fmt.Errorf("decode fsstat field: %w", err)
		}
	}
	if res.InvarSec, err = xdr.DecodeUint32(r); err != nil {
		return res, attr, fmt.Errorf("decode invarsec: %w", err)
	}
	return res, attr, nil
}

// FsinfoResult is fsinfo3resok (RFC 1813 Section 3.3.19).
type FsinfoResult struct {
	RtMax, RtPref, RtMult uint32
	WtMax, WtPref, WtMult uint32
	DtPref                uint32
	MaxFileSize           uint64
	TimeDelta             TimeVal
	Properties            uint32
}

// Fsinfo returns static filesystem information (FSINFO, procedure 19).
func (c *Client) Fsinfo(fh FileHandle) (FsinfoResult, *FileAttr, error) {
	var buf bytes.Buffer
	if err := encodeFileHandle(&buf, fh); err != nil {
		return FsinfoResult{}, nil, err
	}

	reply, err := c.rpc.Call(ProcFsinfo, buf.Bytes())
	if err != nil {
		return FsinfoResult{}, nil, fmt.Errorf("FSINFO: %w", err)
	}
	r := bytes.NewReader(reply)
	stat, err := readStatus(r)
	if err != nil {
		return FsinfoResult{}, nil, err
	}
	attr, _, err := decodePostOpAttr(r)
	if err != nil {
		return FsinfoResult{}, nil, fmt.Errorf("decode attr: %w", err)
	}
	if stat != OK {
		return FsinfoResult{}, attr, &StatusError{Op: "FSINFO", Status: stat}
	}

	var res FsinfoResult
	for _, field := range []*uint32{&res.RtMax, &res.RtPref, &res.RtMult, &res.WtMax, &res.WtPref, &res.WtMult, &res.DtPref} {
		if *field, err = xdr.DecodeUint32(r); err != nil {
			return res, attr, fmt.Errorf("decode fsinfo field: %w", err)
		}
	}
	if res.MaxFileSize, err = xdr.DecodeUint64(r); err != nil {
		return res, attr, fmt.Errorf("decode maxfilesize: %w", err)
	}
	if res.TimeDelta, err = decodeTimeVal(r); err != nil {
		return res, attr, fmt.Errorf("decode timedelta: %w", err)
	}
	if res.Properties, err = xdr.DecodeUint32(r); err != nil {
		return res, attr, fmt.Errorf("decode properties: %w", err)
	}
	return res, attr, nil
}

// PathconfResult is pathconf3resok (RFC 1813 Section 3.3.20).
type PathconfResult struct {
	LinkMax         uint32
	NameMax         uint32
	NoTrunc         bool
	ChownRestricted bool
	CaseInsensitive bool
	CasePreserving  bool
}

// Pathconf returns POSIX pathconf information for fh (PATHCONF,
// procedure 20).
func (c *Client) Pathconf(fh FileHandle) (PathconfResult, *FileAttr, error) {
	var buf bytes.Buffer
	if err := encodeFileHandle(&buf, fh); err != nil {
		return PathconfResult{}, nil, err
	}

	reply, err := c.rpc.Call(ProcPathconf, buf.Bytes())
	if err != nil {
		return PathconfResult{}, nil, fmt.Errorf("PATHCONF: %w", err)
	}
	r := bytes.NewReader(reply)
	stat, err := readStatus(r)
	if err != nil {
		return PathconfResult{}, nil, err
	}
	attr, _, err := decodePostOpAttr(r)
	if err != nil {
		return PathconfResult{}, nil, fmt.Errorf("decode attr: %w", err)
	}
	if stat != OK {
		return PathconfResult{}, attr, &StatusError{Op: "PATHCONF", Status: stat}
	}

	var res PathconfResult
	if res.LinkMax, err = xdr.DecodeUint32(r); err != nil {
		return res, attr, err
	}
	if res.NameMax, err = xdr.DecodeUint32(r); err != nil {
		return res, attr, err
	}
	for _, field := range []*bool{&res.NoTrunc, &res.ChownRestricted, &res.CaseInsensitive, &res.CasePreserving} {
		if *field, err = xdr.DecodeBool(r); err != nil {
			return res, attr, err
		}
	}
	return res, attr, nil
}

// Commit asks the server to flush previously WRITE(Unstable)'d data to
// stable storage (COMMIT, procedure 21). Per spec.md's Non-goals (no
// write-behind/caching), nfsh only issues COMMIT when the operator
// explicitly requests it (`put -c`); it never tracks outstanding unstable
// writes itself.
func (c *Client) Commit(fh FileHandle, offset uint64, count uint32) (verifier uint64, wcc *WccData, err error) {
	var buf bytes.Buffer
	if err := encodeFileHandle(&buf, fh); err != nil {
		return 0, nil, err
	}
	if err := xdr.WriteUint64(&buf, offset); err != nil {
		return 0, nil, err
	}
	if err := xdr.WriteUint32(&buf, count); err != nil {
		return 0, nil, err
	}

	reply, err := c.rpc.Call(ProcCommit, buf.Bytes())
	if err != nil {
		return 0, nil, fmt.Errorf("COMMIT: %w", err)
	}
	r := bytes.NewReader(reply)
	stat, err := readStatus(r)
	if err != nil {
		return 0, nil, err
	}
	wcc, err = decodeWccData(r)
	if err != nil {
		return 0, nil, fmt.Errorf("decode wcc: %w", err)
	}
	if stat != OK {
		return 0, wcc, &StatusError{Op: "COMMIT", Status: stat}
	}
	verifier, err = xdr.DecodeUint64(r)
	if err != nil {
		return 0, wcc, fmt.Errorf("decode verifier: %w", err)
	}
	return verifier, wcc, nil
}

// encodeDirOpArgs encodes diropargs3: a directory handle plus a child
// name, the argument shape shared by LOOKUP/CREATE/MKDIR/REMOVE/RMDIR/
// RENAME/LINK.
func encodeDirOpArgs(buf *bytes.Buffer, dirFH FileHandle, name string) error {
	if err := encodeFileHandle(buf, dirFH); err != nil {
		return err
	}
	return xdr.WriteXDRString(buf, name)
}
