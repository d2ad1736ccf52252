package rpc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/marmos91/nfsh/internal/xdr"
)

// buildCallMessage encodes an RPC CALL message body (everything after the
// record-marking fragment header, for TCP; the entire datagram, for UDP).
//
// Wire format per RFC 5531 Section 8:
//
//	XID         uint32
//	MsgType     uint32 = 0 (CALL)
//	RPCVersion  uint32 = 2
//	Program     uint32
//	Version     uint32
//	Procedure   uint32
//	Cred        opaque_auth (flavor + body)
//	Verf        opaque_auth (flavor + body, always AUTH_NULL here)
//	Args        []byte
func buildCallMessage(xid, program, version, proc uint32, auth Authenticator, args []byte) ([]byte, error) {
	var buf bytes.Buffer

	if err := xdr.WriteUint32(&buf, xid); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint32(&buf, MsgCall); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint32(&buf, Version2); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint32(&buf, program); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint32(&buf, version); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint32(&buf, proc); err != nil {
		return nil, err
	}

	credBody, err := auth.CredentialBody()
	if err != nil {
		return nil, fmt.Errorf("build credential: %w", err)
	}
	if err := writeOpaqueAuth(&buf, auth.Flavor(), credBody); err != nil {
		return nil, fmt.Errorf("write credential: %w", err)
	}
	if err := writeOpaqueAuth(&buf, AuthNull, nil); err != nil {
		return nil, fmt.Errorf("write verifier: %w", err)
	}

	if _, err := buf.Write(args); err != nil {
		return nil, fmt.Errorf("write args: %w", err)
	}

	return buf.Bytes(), nil
}

// writeOpaqueAuth writes an opaque_auth structure: flavor + length-prefixed body.
func writeOpaqueAuth(buf *bytes.Buffer, flavor uint32, body []byte) error {
	if err := xdr.WriteUint32(buf, flavor); err != nil {
		return err
	}
	return xdr.WriteXDROpaque(buf, body)
}

// replyHeader is the parsed, fixed-shape prefix of an RPC REPLY message.
type replyHeader struct {
	XID         uint32
	VerfFlavor  uint32
	VerfBody    []byte
	AcceptStat  uint32 // only meaningful when accepted
}

// parseReplyMessage parses an RPC REPLY message and returns the procedure
// result bytes that follow the header, or an error describing a
// protocol-level rejection (RPC mismatch, auth error, program/procedure
// unavailable, garbage args, system error).
func parseReplyMessage(data []byte) (*replyHeader, []byte, error) {
	r := bytes.NewReader(data)

	xid, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read xid: %w", err)
	}
	msgType, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read msg type: %w", err)
	}
	if msgType != MsgReply {
		return nil, nil, fmt.Errorf("expected REPLY, got msg_type=%d", msgType)
	}

	replyStat, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read reply_stat: %w", err)
	}

	switch replyStat {
	case ReplyAccepted:
		return parseAcceptedReply(r, xid)
	case ReplyDenied:
		rejectStat, err := xdr.DecodeUint32(r)
		if err != nil {
			return nil, nil, fmt.Errorf("read reject_stat: %w", err)
		}
		return nil, nil, fmt.Errorf("RPC call rejected: %s", rejectStatusName(rejectStat))
	default:
		return nil, nil, fmt.Errorf("unknown reply_stat %d", replyStat)
	}
}

func parseAcceptedReply(r io.Reader, xid uint32) (*replyHeader, []byte, error) {
	verfFlavor, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read verifier flavor: %w", err)
	}
	verfBody, err := xdr.DecodeOpaque(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read verifier body: %w", err)
	}

	acceptStat, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read accept_stat: %w", err)
	}

	hdr := &replyHeader{XID: xid, VerfFlavor: verfFlavor, VerfBody: verfBody, AcceptStat: acceptStat}

	if acceptStat != AcceptSuccess {
		return hdr, nil, fmt.Errorf("RPC call not accepted: %s", acceptStatusName(acceptStat))
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read result body: %w", err)
	}
	return hdr, rest, nil
}

// addRecordMark prefixes msg with an RFC 5531 Section 11 fragment header.
// nfsh always sends its call as a single, last fragment.
func addRecordMark(msg []byte) []byte {
	header := uint32(len(msg)) | 0x80000000
	out := make([]byte, 4+len(msg))
	binary.BigEndian.PutUint32(out[0:4], header)
	copy(out[4:], msg)
	return out
}
