package rpc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/marmos91/nfsh/internal/metrics"
)

// xidCounter seeds RPC transaction IDs. A process-wide counter is sufficient
// here: spec.md's Non-goals rule out concurrent in-flight RPCs, so there is
// never more than one outstanding XID at a time.
var xidCounter atomic.Uint32

func init() {
	xidCounter.Store(uint32(time.Now().UnixNano()))
}

func nextXID() uint32 {
	return xidCounter.Add(1)
}

// Client is a one-shot ONC RPC v2 client bound to a single program/version
// over a single already-established connection. It performs exactly one
// call at a time; callers that need to talk to a different program/version
// (e.g. switching from portmap to MOUNT) build a new Client around the same
// or a new connection.
type Client struct {
	conn    net.Conn
	network string // "tcp" or "udp"
	program uint32
	version uint32
	auth    Authenticator
	timeout time.Duration

	metrics     *metrics.Recorder
	programName string
	procName    func(uint32) string
}

// transportErr and protocolErr classify a Call failure for metrics (spec.md
// §9's debug stack: "every RPC issued... by program, procedure, and
// outcome"), mirroring the UserError/TransportError/ProtocolError split
// internal/session builds on top of this package.
type transportErr struct{ error }

func (e *transportErr) Unwrap() error { return e.error }

type protocolErr struct{ error }

func (e *protocolErr) Unwrap() error { return e.error }

// NewClient wraps an already-connected net.Conn. network must be "tcp" or
// "udp" so Call knows whether to add record marking. auth may be nil, in
// which case AUTH_NULL is used.
func NewClient(conn net.Conn, network string, program, version uint32, auth Authenticator) *Client {
	if auth == nil {
		auth = NullAuth{}
	}
	return &Client{
		conn:    conn,
		network: network,
		program: program,
		version: version,
		auth:    auth,
		timeout: DefaultTimeout,
	}
}

// SetTimeout overrides the default per-call deadline.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

// SetMetrics wires m into Call so every subsequent RPC is recorded under
// programName, labeling each procedure with procName(proc) (falling back to
// the decimal procedure number when procName is nil or returns "").
func (c *Client) SetMetrics(m *metrics.Recorder, programName string, procName func(uint32) string) {
	c.metrics = m
	c.programName = programName
	c.procName = procName
}

func (c *Client) procedureLabel(proc uint32) string {
	if c.procName != nil {
		if name := c.procName(proc); name != "" {
			return name
		}
	}
	return strconv.FormatUint(uint64(proc), 10)
}

// SetAuth swaps the authenticator used by subsequent calls. The caller is
// responsible for invariant I4 (destroy the old authenticator's secrets
// before discarding it); Client holds no long-lived credential cache beyond
// the single Authenticator reference.
func (c *Client) SetAuth(auth Authenticator) {
	if auth == nil {
		auth = NullAuth{}
	}
	c.auth = auth
}

// Call performs a single RPC request/response exchange for proc, encoding
// argsBody as the already-XDR-encoded procedure arguments, and returns the
// already-XDR-encoded procedure results.
func (c *Client) Call(proc uint32, argsBody []byte) ([]byte, error) {
	start := time.Now()
	result, err := c.call(proc, argsBody)
	if c.metrics != nil {
		c.metrics.RecordRPC(c.programName, c.procedureLabel(proc), outcomeLabel(err), time.Since(start).Seconds())
	}
	return result, err
}

func (c *Client) call(proc uint32, argsBody []byte) ([]byte, error) {
	xid := nextXID()

	msg, err := buildCallMessage(xid, c.program, c.version, proc, c.auth, argsBody)
	if err != nil {
		return nil, &protocolErr{fmt.Errorf("build call: %w", err)}
	}

	if c.timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, &transportErr{fmt.Errorf("set deadline: %w", err)}
		}
	}

	var reply []byte
	switch c.network {
	case "tcp":
		reply, err = c.callStream(msg)
	case "udp":
		reply, err = c.callDatagram(msg)
	default:
		return nil, &protocolErr{fmt.Errorf("unsupported network %q", c.network)}
	}
	if err != nil {
		return nil, &transportErr{err}
	}

	hdr, result, err := parseReplyMessage(reply)
	if err != nil {
		return nil, &protocolErr{err}
	}
	if hdr.XID != xid {
		return nil, &protocolErr{fmt.Errorf("xid mismatch: sent %d, received %d", xid, hdr.XID)}
	}
	return result, nil
}

// outcomeLabel classifies err as the metrics "outcome" label: "ok",
// "transport_error" (dial/read/write/deadline failures), or
// "protocol_error" (malformed or rejected replies).
func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var te *transportErr
	if errors.As(err, &te) {
		return "transport_error"
	}
	return "protocol_error"
}

func (c *Client) callStream(msg []byte) ([]byte, error) {
	framed := addRecordMark(msg)
	if _, err := c.conn.Write(framed); err != nil {
		return nil, fmt.Errorf("write call: %w", err)
	}
	return readRecordMarkedReply(c.conn)
}

func (c *Client) callDatagram(msg []byte) ([]byte, error) {
	if _, err := c.conn.Write(msg); err != nil {
		return nil, fmt.Errorf("write call: %w", err)
	}
	buf := make([]byte, 64*1024)
	n, err := c.conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	return buf[:n], nil
}

// readRecordMarkedReply reads one or more RFC 5531 Section 11 fragments
// until the last-fragment bit is set, and returns the reassembled message.
func readRecordMarkedReply(r io.Reader) ([]byte, error) {
	var out []byte
	for {
		var hdrBytes [4]byte
		if _, err := io.ReadFull(r, hdrBytes[:]); err != nil {
			return nil, fmt.Errorf("read fragment header: %w", err)
		}
		header := binary.BigEndian.Uint32(hdrBytes[:])
		last := header&0x80000000 != 0
		size := header & 0x7fffffff
		if size > maxFragmentSize {
			return nil, fmt.Errorf("fragment size %d exceeds limit %d", size, uint32(maxFragmentSize))
		}

		frag := make([]byte, size)
		if _, err := io.ReadFull(r, frag); err != nil {
			return nil, fmt.Errorf("read fragment body: %w", err)
		}
		out = append(out, frag...)

		if last {
			return out, nil
		}
	}
}

// Close destroys the client's authenticator reference and closes the
// underlying connection, in that order (spec.md §3 invariant I4: secrets
// are torn down before the transport they were used over).
func (c *Client) Close() error {
	c.auth = NullAuth{}
	return c.conn.Close()
}
