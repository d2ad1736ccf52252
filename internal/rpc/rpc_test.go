package rpc

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCallMessageIsFourByteAligned(t *testing.T) {
	auth := NewUnixAuth(1000, 1000)
	args := []byte{0x00, 0x00, 0x00, 0x2a}

	msg, err := buildCallMessage(42, ProgramMount, MountVersion, 1, auth, args)
	require.NoError(t, err)
	assert.Equal(t, 0, len(msg)%4, "call message must be 4-byte aligned")
}

func TestParseAcceptedReply(t *testing.T) {
	// Hand-build a minimal REPLY: xid, MsgReply, ReplyAccepted, verf
	// (AUTH_NULL/empty), AcceptSuccess, then a 4-byte result body.
	reply := []byte{
		0x00, 0x00, 0x00, 0x2a, // xid = 42
		0x00, 0x00, 0x00, 0x01, // msg_type = REPLY
		0x00, 0x00, 0x00, 0x00, // reply_stat = ACCEPTED
		0x00, 0x00, 0x00, 0x00, // verf flavor = AUTH_NULL
		0x00, 0x00, 0x00, 0x00, // verf body length = 0
		0x00, 0x00, 0x00, 0x00, // accept_stat = SUCCESS
		0xca, 0xfe, 0xba, 0xbe, // result body
	}

	hdr, result, err := parseReplyMessage(reply)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), hdr.XID)
	assert.Equal(t, []byte{0xca, 0xfe, 0xba, 0xbe}, result)
}

func TestParseRejectedReply(t *testing.T) {
	reply := []byte{
		0x00, 0x00, 0x00, 0x07, // xid = 7
		0x00, 0x00, 0x00, 0x01, // msg_type = REPLY
		0x00, 0x00, 0x00, 0x01, // reply_stat = DENIED
		0x00, 0x00, 0x00, 0x01, // reject_stat = AUTH_ERROR
	}

	_, _, err := parseReplyMessage(reply)
	assert.Error(t, err)
}

func TestParseProgUnavailReply(t *testing.T) {
	reply := []byte{
		0x00, 0x00, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x01, // REPLY
		0x00, 0x00, 0x00, 0x00, // ACCEPTED
		0x00, 0x00, 0x00, 0x00, // verf flavor
		0x00, 0x00, 0x00, 0x00, // verf length
		0x00, 0x00, 0x00, 0x01, // accept_stat = PROG_UNAVAIL
	}

	_, _, err := parseReplyMessage(reply)
	assert.ErrorContains(t, err, "PROG_UNAVAIL")
}

func TestAddRecordMarkSetsLastFragmentBit(t *testing.T) {
	msg := []byte{1, 2, 3, 4}
	framed := addRecordMark(msg)
	require.Len(t, framed, 8)
	assert.Equal(t, byte(0x80), framed[0]&0x80, "last-fragment bit must be set")
	assert.Equal(t, msg, framed[4:])
}

// TestClientCallOverTCPPipe uses a net.Pipe as the connection, to exercise
// Client.Call's stream framing without touching a real socket.
func TestClientCallOverTCPPipe(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		// Read the framed call, then reply with a canned ACCEPTED/SUCCESS
		// reply carrying the same xid, all within a single fragment.
		hdrBuf := make([]byte, 4)
		if _, err := readFull(server, hdrBuf); err != nil {
			return
		}
		size := int(hdrBuf[1])<<16 | int(hdrBuf[2])<<8 | int(hdrBuf[3])
		body := make([]byte, size)
		if _, err := readFull(server, body); err != nil {
			return
		}
		xid := body[0:4]

		reply := append([]byte{}, xid...)
		reply = append(reply, 0x00, 0x00, 0x00, 0x01) // REPLY
		reply = append(reply, 0x00, 0x00, 0x00, 0x00) // ACCEPTED
		reply = append(reply, 0x00, 0x00, 0x00, 0x00) // verf flavor
		reply = append(reply, 0x00, 0x00, 0x00, 0x00) // verf len
		reply = append(reply, 0x00, 0x00, 0x00, 0x00) // SUCCESS
		reply = append(reply, 0x00, 0x00, 0x00, 0x07) // result body

		framed := addRecordMark(reply)
		_, _ = server.Write(framed)
	}()

	c := NewClient(client, "tcp", ProgramMount, MountVersion, NullAuth{})
	c.SetTimeout(2 * time.Second)

	result, err := c.Call(1, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x07}, result)
}

func readFull(r net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestDESAuthCredentialBodyAlwaysErrors(t *testing.T) {
	auth := &DESAuth{NetworkName: "unix.example@domain", SecretKey: "deadbeef"}
	_, err := auth.CredentialBody()
	assert.Error(t, err)
}

func TestUnixAuthSingleGIDElement(t *testing.T) {
	auth := NewUnixAuth(500, 500)
	assert.Equal(t, []uint32{500}, auth.GIDs, "spec.md §4.6: group list truncated to one element")
}

func TestOpenSourceRoutedRejectsEmptyHops(t *testing.T) {
	_, err := OpenSourceRouted("203.0.113.1:2049", false, nil)
	assert.Error(t, err)
}

func TestBuildLSRROptionEncoding(t *testing.T) {
	hops := []net.IP{net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.2")}
	opt, err := buildLSRROption(hops)
	require.NoError(t, err)
	assert.Equal(t, byte(0x83), opt[0], "option type must be IPOPT_LSRR")
	assert.Equal(t, byte(4), opt[2], "pointer must reference the first route entry")
	assert.Equal(t, 0, len(opt)%4, "option bytes must be padded to a 4-byte multiple")
}
