// Package portmap implements a portmapper (RFC 1057 Appendix A, program
// 100000, version 2) client: GETPORT direct resolution, DUMP, and CALLIT
// indirect invocation. The session uses GETPORT only (including for
// `mount -p`, which looks up the NFS port this way); no command issues
// DUMP or CALLIT.
//
// Wire shapes are grounded on the teacher's server-side portmap codec
// (internal/adapter/portmap/xdr/encode.go's Mapping struct and
// EncodeDumpResponse optional-list framing) inverted into a client. The
// teacher's dispatch table deliberately omits CALLIT server-side to avoid
// DDoS amplification (internal/protocol/portmap/dispatch.go); this client
// still implements CALLIT, so that omission does not carry over here.
package portmap

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/marmos91/nfsh/internal/metrics"
	"github.com/marmos91/nfsh/internal/rpc"
	"github.com/marmos91/nfsh/internal/xdr"
)

// Procedure numbers (RFC 1057 Appendix A).
const (
	ProcNull    uint32 = 0
	ProcSet     uint32 = 1
	ProcUnset   uint32 = 2
	ProcGetport uint32 = 3
	ProcDump    uint32 = 4
	ProcCallit  uint32 = 5
)

var procNames = map[uint32]string{
	ProcNull:    "NULL",
	ProcSet:     "SET",
	ProcUnset:   "UNSET",
	ProcGetport: "GETPORT",
	ProcDump:    "DUMP",
	ProcCallit:  "CALLIT",
}

// ProcName returns proc's PMAPPROC_* name, or "" if unknown.
func ProcName(proc uint32) string { return procNames[proc] }

// Port is the well-known portmapper port.
const Port = 111

// Mapping is a single (program, version, protocol, port) registration, the
// unit returned by DUMP and consumed/produced by GETPORT.
type Mapping struct {
	Program  uint32
	Version  uint32
	Protocol uint32
	Port     uint32
}

// Client talks to a remote portmapper over an already-open rpc.Client.
type Client struct {
	rpc *rpc.Client
}

// Dial opens a connection to host's portmapper and wraps it in a Client.
// network is "tcp" or "udp"; privileged requests the classic reserved
// source port (spec.md §4.2).
func Dial(host, network string, privileged bool) (*Client, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", Port))

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
		return nil, fmt.Errorf("dial portmapper at %s: %w", addr, err)
	}

	c := rpc.NewClient(conn, network, rpc.ProgramPortmap, rpc.PortmapVersion, rpc.NullAuth{})
	return &Client{rpc: c}, nil
}

// NewClient wraps an already-open connection (e.g. one carrying a source
// route installed by rpc.OpenSourceRouted) as a portmapper Client, instead
// of dialing a fresh one.
func NewClient(conn net.Conn, network string) *Client {
	return &Client{rpc: rpc.NewClient(conn, network, rpc.ProgramPortmap, rpc.PortmapVersion, rpc.NullAuth{})}
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.rpc.Close()
}

// SetMetrics wires m into every subsequent Call, recorded under the
// "PORTMAP" program name.
func (c *Client) SetMetrics(m *metrics.Recorder) { c.rpc.SetMetrics(m, "PORTMAP", ProcName) }

// SetTimeout overrides the per-call deadline.
func (c *Client) SetTimeout(d time.Duration) { c.rpc.SetTimeout(d) }

// GetPort resolves the port registered for (program, version, protocol),
// returning 0 if the program is not registered (RFC 1057).
func (c *Client) GetPort(program, version, protocol uint32) (uint32, error) {
	args := encodeMapping(Mapping{Program: program, Version: version, Protocol: protocol})
	reply, err := c.rpc.Call(ProcGetport, args)
	if err != nil {
		return 0, fmt.Errorf("GETPORT: %w", err)
	}
	port, err := xdr.DecodeUint32(bytes.NewReader(reply))
	if err != nil {
		return 0, fmt.Errorf("decode GETPORT reply: %w", err)
	}
	return port, nil
}

// Dump lists every (program, version, protocol, port) mapping the
// portmapper currently holds. No nfsh command calls it.
func (c *Client) Dump() ([]Mapping, error) {
	reply, err := c.rpc.Call(ProcDump, nil)
	if err != nil {
		return nil, fmt.Errorf("DUMP: %w", err)
	}
	mappings, err := xdr.DecodeOptionalList(bytes.NewReader(reply), decodeMapping)
	if err != nil {
		return nil, fmt.Errorf("decode DUMP reply: %w", err)
	}
	return mappings, nil
}

// CallIt performs an indirect RPC call (CALLIT, procedure 5): the
// portmapper itself resolves (program, version) to a local port and
// forwards the call on the caller's behalf over UDP, returning the
// forwarded procedure's result body together with the port it used. No
// nfsh command calls it: `mount -p` resolves the NFS port with GetPort and
// sends MNT directly to mountd.
func (c *Client) CallIt(program, version, procedure uint32, args []byte) (result []byte, port uint32, err error) {
	var buf bytes.Buffer
	if err := xdr.WriteUint32(&buf, program); err != nil {
		return nil, 0, err
	}
	if err := xdr.WriteUint32(&buf, version); err != nil {
		return nil, 0, err
	}
	if err := xdr.WriteUint32(&buf, procedure); err != nil {
		return nil, 0, err
	}
	if err := xdr.WriteXDROpaque(&buf, args); err != nil {
		return nil, 0, err
	}

	reply, err := c.rpc.Call(ProcCallit, buf.Bytes())
	if err != nil {
		return nil, 0, fmt.Errorf("CALLIT: %w", err)
	}

	r := bytes.NewReader(reply)
	port, err = xdr.DecodeUint32(r)
	if err != nil {
		return nil, 0, fmt.Errorf("decode CALLIT port: %w", err)
	}
	result, err = xdr.DecodeOpaque(r)
	if err != nil {
		return nil, 0, fmt.Errorf("decode CALLIT result: %w", err)
	}
	return result, port, nil
}

func encodeMapping(m Mapping) []byte {
	var buf bytes.Buffer
	_ = xdr.WriteUint32(&buf, m.Program)
	_ = xdr.WriteUint32(&buf, m.Version)
	_ = xdr.WriteUint32(&buf, m.Protocol)
	_ = xdr.WriteUint32(&buf, m.Port)
	return buf.Bytes()
}

func decodeMapping(r io.Reader) (Mapping, error) {
	prog, err := xdr.DecodeUint32(r)
	if err != nil {
		return Mapping{}, err
	}
	vers, err := xdr.DecodeUint32(r)
	if err != nil {
		return Mapping{}, err
	}
	prot, err := xdr.DecodeUint32(r)
	if err != nil {
		return Mapping{}, err
	}
	port, err := xdr.DecodeUint32(r)
	if err != nil {
		return Mapping{}, err
	}
	return Mapping{Program: prog, Version: vers, Protocol: prot, Port: port}, nil
}
