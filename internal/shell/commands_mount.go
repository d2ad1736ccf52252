package shell

import (
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/marmos91/nfsh/internal/mount"
	"github.com/marmos91/nfsh/internal/portmap"
	"github.com/marmos91/nfsh/internal/rpc"
	"github.com/marmos91/nfsh/internal/session"
)

// cmdHost implements `host <spec>` (spec.md §4.4): spec may carry an
// optional source route as `<route>:<host>` or `<route>@<host>`. A bare
// hostname opens a plain TCP-preferred, UDP-fallback MOUNT channel.
func cmdHost(s *Shell, args []string) error {
	if len(args) != 1 {
		return session.NewUserError("usage: host <hostname>")
	}
	spec := args[0]

	if route, host, ok := splitSourceRoute(spec); ok {
		return cmdHostSourceRouted(s, route, host)
	}

	if err := s.Session.Host(spec); err != nil {
		return err
	}
	logVerbose(s, "Using %s, TCP, transport size is %d bytes.", s.Session.MntAddr, s.Session.TransferSize)
	return nil
}

// splitSourceRoute recognizes `<route>:<host>` or `<route>@<host>` (spec.md
// §4.2 open_source_routed's src_spec grammar). A bare hostname with no
// ':'/'@' is not a route.
func splitSourceRoute(spec string) (route, host string, ok bool) {
	if i := strings.IndexByte(spec, '@'); i >= 0 {
		return spec[:i], spec[i+1:], true
	}
	if i := strings.IndexByte(spec, ':'); i >= 0 && strings.Count(spec, ":") == 1 {
		return spec[:i], spec[i+1:], true
	}
	return "", "", false
}

// cmdHostSourceRouted implements open_source_routed (spec.md §4.2): the
// LSRR-bearing socket is used to both portmap-resolve the MOUNT port and
// then carry the MOUNT session itself, with the route's intermediate hops
// parsed from route's ':'-separated hop list.
func cmdHostSourceRouted(s *Shell, route, host string) error {
	var hops []net.IP
	for _, h := range strings.Split(route, ":") {
		if h == "" {
			continue
		}
		ip := net.ParseIP(h)
		if ip == nil {
			return session.NewUserError("%s: not an IP address", h)
		}
		hops = append(hops, ip)
	}

	ips, err := net.LookupIP(host)
	if err != nil || len(ips) == 0 {
		return session.NewTransportError("resolve host", fmt.Errorf("%s", host))
	}
	addr := ips[0].To4()
	if addr == nil {
		return session.NewTransportError("resolve host", fmt.Errorf("%s has no IPv4 address", host))
	}

	pmConn, err := rpc.OpenSourceRouted(net.JoinHostPort(addr.String(), "111"), true, hops)
	if err != nil {
		return session.NewTransportError("open source-routed socket to portmapper", err)
	}
	pm := portmap.NewClient(pmConn, "tcp")
	pm.SetMetrics(s.Session.Metrics)
	pm.SetTimeout(s.Session.Timeout)
	port, err := pm.GetPort(rpc.ProgramMount, rpc.MountVersion, rpc.ProtoTCP)
	_ = pm.Close()
	if err != nil || port == 0 {
		return session.NewTransportError("resolve mountd port via source route", err)
	}

	mntConn, err := rpc.OpenSourceRouted(net.JoinHostPort(addr.String(), strconv.FormatUint(uint64(port), 10)), true, hops)
	if err != nil {
		return session.NewTransportError("open source-routed socket to mountd", err)
	}

	if err := s.Session.HostWithConn(host, addr, port, "tcp", mntConn); err != nil {
		return err
	}
	logVerbose(s, "Using %s, TCP (source-routed via %s), transport size is %d bytes.", s.Session.MntAddr, route, s.Session.TransferSize)
	return nil
}

// cmdMount implements `mount [-upTU] [-P port] <path>` (spec.md §4.4).
func cmdMount(s *Shell, args []string) error {
	var opts session.MountOptions
	var path string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-u":
			opts.UnmountAfter = true
		case "-p":
			opts.ViaPortmap = true
		case "-T":
			opts.ForceTCP = true
		case "-U":
			opts.ForceUDP = true
		case "-P":
			i++
			if i >= len(args) {
				return session.NewUserError("usage: mount [-upTU] [-P port] <path>")
			}
			n, err := strconv.ParseUint(args[i], 10, 16)
			if err != nil {
				return session.NewUserError("%s: not a port number", args[i])
			}
			// spec.md §9: -P is documented host-order but passed through
			// ntohs, producing a byte-swapped port on little-endian hosts.
			// This is an intentionally preserved design-note bug, not a
			// defect in this client: replicate it rather than silently
			// "fixing" observed behaviour.
			opts.Port = uint32(swapUint16(uint16(n)))
		default:
			path = args[i]
		}
	}
	if path == "" {
		return session.NewUserError("usage: mount [-upTU] [-P port] <path>")
	}

	if err := s.Session.Mount(path, opts); err != nil {
		return err
	}
	network := "TCP"
	if opts.ForceUDP {
		network = "UDP"
	}
	logVerbose(s, "Mount `%s', %s, transfer size %d bytes.", path, network, s.Session.TransferSize)
	return nil
}

func swapUint16(v uint16) uint16 {
	return v<<8 | v>>8
}

func cmdUmount(s *Shell, _ []string) error {
	return s.Session.Umount()
}

func cmdUmountAll(s *Shell, _ []string) error {
	return s.Session.UmountAll()
}

// cmdHandle implements `handle [bytes...]` (spec.md §3, §8 scenario 6):
// with no arguments, prints mount_path and the current handle as hex
// pairs (property P3); with a hex string argument, installs it.
func cmdHandle(s *Shell, args []string) error {
	if len(args) == 0 {
		if !s.Session.IsMounted() {
			return session.NewUserError("no remote file system mounted")
		}
		fmt.Fprintf(s.Out, "%s: %s\n", s.Session.MountPath, hex.EncodeToString(s.Session.CwdHandle))
		return nil
	}

	raw, err := hex.DecodeString(strings.Join(args, ""))
	if err != nil {
		return session.NewUserError("%s: not a valid hex handle", strings.Join(args, ""))
	}

	port := uint32(2049)
	network := "tcp"
	if s.Session.NfsAddr != "" {
		if _, portStr, err := net.SplitHostPort(s.Session.NfsAddr); err == nil {
			if n, err := strconv.ParseUint(portStr, 10, 16); err == nil {
				port = uint32(n)
			}
		}
	}
	return s.Session.Handle(raw, port, network)
}

func cmdExport(s *Shell, _ []string) error {
	if !s.Session.HasMntClient() {
		return session.NewUserError("no host set; use 'host <name>' first")
	}
	entries, err := s.Session.MntClient.Export()
	if err != nil {
		if se, ok := err.(*mount.StatusError); ok {
			return session.NewProtocolError("EXPORT", se.Status, mount.StatusName(se.Status))
		}
		return session.NewTransportError("EXPORT", err)
	}

	table := tablewriter.NewWriter(s.Out)
	table.SetHeader([]string{"Export", "Groups"})
	for _, e := range entries {
		table.Append([]string{e.Directory, strings.Join(e.Groups, ",")})
	}
	table.Render()
	return nil
}

func cmdDump(s *Shell, _ []string) error {
	if !s.Session.HasMntClient() {
		return session.NewUserError("no host set; use 'host <name>' first")
	}
	entries, err := s.Session.MntClient.Dump()
	if err != nil {
		if se, ok := err.(*mount.StatusError); ok {
			return session.NewProtocolError("DUMP", se.Status, mount.StatusName(se.Status))
		}
		return session.NewTransportError("DUMP", err)
	}

	table := tablewriter.NewWriter(s.Out)
	table.SetHeader([]string{"Hostname", "Directory"})
	for _, e := range entries {
		table.Append([]string{e.Hostname, e.Directory})
	}
	table.Render()
	return nil
}

func cmdUID(s *Shell, args []string) error {
	if len(args) != 1 {
		fmt.Fprintf(s.Out, "uid=%d\n", int32(s.Session.UID))
		return nil
	}
	n, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return session.NewUserError("%s: not a number", args[0])
	}
	s.Session.UID = uint32(n)
	return nil
}

func cmdGID(s *Shell, args []string) error {
	if len(args) != 1 {
		fmt.Fprintf(s.Out, "gid=%d\n", int32(s.Session.GID))
		return nil
	}
	n, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return session.NewUserError("%s: not a number", args[0])
	}
	s.Session.GID = uint32(n)
	return nil
}
