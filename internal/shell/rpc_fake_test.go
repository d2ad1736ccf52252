package shell

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"

	"github.com/marmos91/nfsh/internal/mount"
	"github.com/marmos91/nfsh/internal/nfs3"
	"github.com/marmos91/nfsh/internal/rpc"
	"github.com/marmos91/nfsh/internal/xdr"
)

// newFakeNFSClient wires an *nfs3.Client to a goroutine that answers calls
// over a net.Pipe with canned reply bodies keyed by procedure number. UDP
// mode sidesteps RFC 5531 record-marking (one Write/Read per call, no
// fragment header), and NullAuth keeps the credential and verifier at a
// fixed 8+8 bytes so the procedure number sits at a fixed offset without a
// general RPC message parser, the same simplification rpc_test.go's
// hand-built reply fixtures rely on.
func newFakeNFSClient(t *testing.T, replies map[uint32][]byte) *nfs3.Client {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	go serveFakeRPC(server, replies)
	return nfs3.NewClient(client, "udp", rpc.NullAuth{})
}

// newFakeMountClient is newFakeNFSClient's MOUNT-protocol counterpart.
func newFakeMountClient(t *testing.T, replies map[uint32][]byte) *mount.Client {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	go serveFakeRPC(server, replies)
	return mount.NewClient(client, "udp", rpc.NullAuth{})
}

// serveFakeRPC answers calls on conn until it errors, which happens once
// the test's Cleanup closes the pipe. An AUTH_NULL call message is a fixed
// 24-byte header (xid, msg_type, rpcvers, program, version, proc) followed
// by an 8-byte empty credential and an 8-byte empty verifier, so proc
// always sits at byte offset 20.
func serveFakeRPC(conn net.Conn, replies map[uint32][]byte) {
	buf := make([]byte, 64*1024)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		msg := buf[:n]
		if len(msg) < 24 {
			return
		}
		xid := binary.BigEndian.Uint32(msg[0:4])
		proc := binary.BigEndian.Uint32(msg[20:24])
		body, ok := replies[proc]
		if !ok {
			return
		}
		if _, err := conn.Write(buildAcceptedReply(xid, body)); err != nil {
			return
		}
	}
}

// buildAcceptedReply wraps body in a minimal RPC_MSG/REPLY/ACCEPTED
// envelope with an AUTH_NULL verifier.
func buildAcceptedReply(xid uint32, body []byte) []byte {
	var buf bytes.Buffer
	_ = xdr.WriteUint32(&buf, xid)
	_ = xdr.WriteUint32(&buf, rpc.MsgReply)
	_ = xdr.WriteUint32(&buf, rpc.ReplyAccepted)
	_ = xdr.WriteUint32(&buf, rpc.AuthNull)
	_ = xdr.WriteUint32(&buf, 0)
	_ = xdr.WriteUint32(&buf, rpc.AcceptSuccess)
	buf.Write(body)
	return buf.Bytes()
}

// --- fattr3 / reply body builders, mirroring internal/nfs3's decode order ---

func fakeFileAttr(fileType, mode uint32, size uint64) []byte {
	var buf bytes.Buffer
	_ = xdr.WriteUint32(&buf, fileType)
	_ = xdr.WriteUint32(&buf, mode)
	_ = xdr.WriteUint32(&buf, 1) // nlink
	_ = xdr.WriteUint32(&buf, 0) // uid
	_ = xdr.WriteUint32(&buf, 0) // gid
	_ = xdr.WriteUint64(&buf, size)
	_ = xdr.WriteUint64(&buf, size) // used
	_ = xdr.WriteUint32(&buf, 0)    // rdev major
	_ = xdr.WriteUint32(&buf, 0)    // rdev minor
	_ = xdr.WriteUint64(&buf, 0)    // fsid
	_ = xdr.WriteUint64(&buf, 1)    // fileid
	for i := 0; i < 3; i++ {        // atime, mtime, ctime
		_ = xdr.WriteUint32(&buf, 0)
		_ = xdr.WriteUint32(&buf, 0)
	}
	return buf.Bytes()
}

func appendPostOpAttrPresent(buf *bytes.Buffer, attr []byte) {
	_ = xdr.WriteBool(buf, true)
	buf.Write(attr)
}

func appendPostOpAttrAbsent(buf *bytes.Buffer) {
	_ = xdr.WriteBool(buf, false)
}

func lookupReplyOK(fh []byte, objType, objMode uint32, size uint64) []byte {
	var buf bytes.Buffer
	_ = xdr.WriteUint32(&buf, nfs3.OK)
	_ = xdr.WriteXDROpaque(&buf, fh)
	appendPostOpAttrPresent(&buf, fakeFileAttr(objType, objMode, size))
	appendPostOpAttrAbsent(&buf) // dir post_op_attr
	return buf.Bytes()
}

func accessReplyOK(granted uint32) []byte {
	var buf bytes.Buffer
	_ = xdr.WriteUint32(&buf, nfs3.OK)
	appendPostOpAttrAbsent(&buf)
	_ = xdr.WriteUint32(&buf, granted)
	return buf.Bytes()
}

func pathconfReplyOK(res nfs3.PathconfResult) []byte {
	var buf bytes.Buffer
	_ = xdr.WriteUint32(&buf, nfs3.OK)
	appendPostOpAttrAbsent(&buf)
	_ = xdr.WriteUint32(&buf, res.LinkMax)
	_ = xdr.WriteUint32(&buf, res.NameMax)
	_ = xdr.WriteBool(&buf, res.NoTrunc)
	_ = xdr.WriteBool(&buf, res.ChownRestricted)
	_ = xdr.WriteBool(&buf, res.CaseInsensitive)
	_ = xdr.WriteBool(&buf, res.CasePreserving)
	return buf.Bytes()
}

func readdirReplyOK(names []string, eof bool) []byte {
	var buf bytes.Buffer
	_ = xdr.WriteUint32(&buf, nfs3.OK)
	appendPostOpAttrAbsent(&buf)
	_ = xdr.WriteUint64(&buf, 0) // cookieverf
	entries := make([]nfs3.DirEntry, len(names))
	for i, n := range names {
		entries[i] = nfs3.DirEntry{FileID: uint64(i + 1), Name: n, Cookie: uint64(i + 1)}
	}
	_ = xdr.EncodeOptionalList(&buf, entries, encodeFakeDirEntry)
	_ = xdr.WriteBool(&buf, eof)
	return buf.Bytes()
}

func readReplyOK(data []byte, eof bool) []byte {
	var buf bytes.Buffer
	_ = xdr.WriteUint32(&buf, nfs3.OK)
	appendPostOpAttrAbsent(&buf)
	_ = xdr.WriteUint32(&buf, uint32(len(data)))
	_ = xdr.WriteBool(&buf, eof)
	_ = xdr.WriteXDROpaque(&buf, data)
	return buf.Bytes()
}

// mntReplyOK is fhstatus3 (status OK, an opaque file handle, zero auth
// flavors), the minimal successful MNT reply.
func mntReplyOK(fh []byte) []byte {
	var buf bytes.Buffer
	_ = xdr.WriteUint32(&buf, mount.StatOK)
	_ = xdr.WriteXDROpaque(&buf, fh)
	_ = xdr.WriteUint32(&buf, 0) // auth flavor count
	return buf.Bytes()
}

// removeReplyOK is wcc_data with both pre- and post-operation attributes
// absent, the minimal OK reply shape shared by REMOVE/RMDIR.
func removeReplyOK() []byte {
	var buf bytes.Buffer
	_ = xdr.WriteUint32(&buf, nfs3.OK)
	_ = xdr.WriteBool(&buf, false) // wcc before absent
	appendPostOpAttrAbsent(&buf)   // wcc after absent
	return buf.Bytes()
}

func encodeFakeDirEntry(buf *bytes.Buffer, e nfs3.DirEntry) error {
	if err := xdr.WriteUint64(buf, e.FileID); err != nil {
		return err
	}
	if err := xdr.WriteXDRString(buf, e.Name); err != nil {
		return err
	}
	return xdr.WriteUint64(buf, e.Cookie)
}
