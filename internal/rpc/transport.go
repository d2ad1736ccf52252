package rpc

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/marmos91/nfsh/internal/logger"
)

// firstPrivilegedPort and lastPrivilegedPort bound the reserved-port walk
// used to bind a "privileged" (<1024) source port, matching the classic
// nfsshell behavior of starting at 1023 and working down to 512 rather than
// letting the kernel pick an ephemeral port (spec.md §4.2).
const (
	firstPrivilegedPort = 1023
	lastPrivilegedPort  = 512
)

// OpenDatagram opens a UDP "connection" to addr, optionally bound to a
// privileged local port. Since UDP is connectionless, this really performs
// connect(2) on a datagram socket so subsequent Read/Write see only
// addr's replies.
func OpenDatagram(addr string, privileged bool) (net.Conn, error) {
	return openTransport("udp", addr, privileged, nil)
}

// OpenStream opens a TCP connection to addr, optionally bound to a
// privileged local port.
func OpenStream(addr string, privileged bool) (net.Conn, error) {
	return openTransport("tcp", addr, privileged, nil)
}

// OpenSourceRouted opens a TCP connection to addr carrying an IP Loose
// Source and Record Route (LSRR) option listing hops, per spec.md §4.2's
// "spoof trust relationships between NFS client/server pairs" goal. The
// standard library's net package cannot express raw IP options, so this
// talks to golang.org/x/sys/unix directly.
func OpenSourceRouted(addr string, privileged bool, hops []net.IP) (net.Conn, error) {
	if len(hops) == 0 {
		return nil, fmt.Errorf("source route requires at least one hop")
	}
	opts, err := buildLSRROption(hops)
	if err != nil {
		return nil, err
	}
	return openTransport("tcp", addr, privileged, opts)
}

// buildLSRROption constructs the raw IPv4 option bytes for IPOPT_LSRR
// (0x83): option type, length, pointer (always 4, pointing at the first
// route entry), followed by each hop address, and a trailing placeholder
// for the final destination slot that the kernel fills in as the packet
// is forwarded.
func buildLSRROption(hops []net.IP) ([]byte, error) {
	const (
		ipoptLSRR    = 0x83
		ipoptPointer = 4
	)

	n := len(hops) + 1 // hops plus final-destination slot
	length := 3 + n*4
	if length > 40 {
		return nil, fmt.Errorf("source route too long: %d bytes (max 40)", length)
	}

	opt := make([]byte, length)
	opt[0] = ipoptLSRR
	opt[1] = byte(length)
	opt[2] = ipoptPointer

	off := 3
	for _, hop := range hops {
		v4 := hop.To4()
		if v4 == nil {
			return nil, fmt.Errorf("source route hop %s is not an IPv4 address", hop)
		}
		copy(opt[off:off+4], v4)
		off += 4
	}
	// Final 4-byte slot is left zeroed; the kernel overwrites it with the
	// actual destination as the datagram traverses the route.

	// Pad to a multiple of 4 with IPOPT_END (0x00), matching conventional
	// IP option encoding.
	if pad := (4 - length%4) % 4; pad != 0 {
		opt = append(opt, make([]byte, pad)...)
	}
	return opt, nil
}

// openTransport resolves addr, optionally walks the privileged port range
// for the local bind, optionally installs raw IP options, and returns a
// net.Conn wrapping the resulting file descriptor.
func openTransport(network, addr string, privileged bool, ipOptions []byte) (net.Conn, error) {
	if !privileged && ipOptions == nil {
		return net.DialTimeout(network, addr, DefaultTimeout)
	}

	domain := unix.AF_INET
	var sockType int
	switch network {
	case "tcp":
		sockType = unix.SOCK_STREAM
	case "udp":
		sockType = unix.SOCK_DGRAM
	default:
		return nil, fmt.Errorf("unsupported network %q", network)
	}

	fd, err := unix.Socket(domain, sockType, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	closeOnErr := true
	defer func() {
		if closeOnErr {
			unix.Close(fd)
		}
	}()

	if ipOptions != nil {
		if err := unix.SetsockoptString(fd, unix.IPPROTO_IP, unix.IP_OPTIONS, string(ipOptions)); err != nil {
			return nil, fmt.Errorf("set IP_OPTIONS: %w", err)
		}
		logger.Debug("installed IP LSRR source route option", "bytes", len(ipOptions))
	}

	if privileged {
		// Source-routed mode (ipOptions != nil) is the one case spec.md's P5
		// carves out an explicit non-privileged fallback for: a probe that
		// cares about the LSRR route still needs a socket even when every
		// reserved port is taken.
		if err := bindPrivilegedPort(fd, ipOptions != nil); err != nil {
			return nil, err
		}
	}

	var remoteIP net.IP
	var remotePort int
	if network == "udp" {
		uaddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", addr, err)
		}
		remoteIP, remotePort = uaddr.IP, uaddr.Port
	} else {
		taddr, err := net.ResolveTCPAddr("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", addr, err)
		}
		remoteIP, remotePort = taddr.IP, taddr.Port
	}

	sa := &unix.SockaddrInet4{Port: remotePort}
	v4 := remoteIP.To4()
	if v4 == nil {
		return nil, fmt.Errorf("%s does not resolve to an IPv4 address", addr)
	}
	copy(sa.Addr[:], v4)
	if err := unix.Connect(fd, sa); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	file := os.NewFile(uintptr(fd), network+":"+addr)
	conn, err := net.FileConn(file)
	_ = file.Close() // FileConn dup()s the descriptor
	if err != nil {
		return nil, fmt.Errorf("wrap fd: %w", err)
	}
	closeOnErr = false
	return conn, nil
}

// bindPrivilegedPort walks reserved ports from 1023 down to 512, retrying
// only on "address in use"/"address not available", matching the reserved
// port allocation behavior expected by rhosts-style NFS/MOUNT trust checks.
// Per spec.md P5, the walk never binds a port >= 1024 on its own; the only
// way to end up there is the explicit non-privileged fallback below, taken
// only when allowEphemeralFallback (source-routed mode) is set and every
// reserved port in the walk failed with EADDRINUSE/EADDRNOTAVAIL.
func bindPrivilegedPort(fd int, allowEphemeralFallback bool) error {
	var lastErr error
	for port := firstPrivilegedPort; port >= lastPrivilegedPort; port-- {
		sa := &unix.SockaddrInet4{Port: port}
		err := unix.Bind(fd, sa)
		if err == nil {
			return nil
		}
		if err != unix.EADDRINUSE && err != unix.EADDRNOTAVAIL {
			return fmt.Errorf("bind privileged port %d: %w", port, err)
		}
		lastErr = err
	}

	if allowEphemeralFallback {
		sa := &unix.SockaddrInet4{Port: 0}
		if err := unix.Bind(fd, sa); err != nil {
			return fmt.Errorf("no privileged port available in %d-%d, ephemeral fallback failed: %w", lastPrivilegedPort, firstPrivilegedPort, err)
		}
		logger.Debug("no privileged port available, bound an ephemeral port instead", "mode", "source-routed")
		return nil
	}

	return fmt.Errorf("no privileged port available in %d-%d: %w", lastPrivilegedPort, firstPrivilegedPort, lastErr)
}
