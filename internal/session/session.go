// Package session owns the single, process-wide session record described
// in spec.md §3: one mutable struct carrying every piece of state a
// command might read or write, passed by reference to the MOUNT and NFS
// drivers. There is deliberately no singleton — spec.md §9 calls out
// avoiding "process-wide singletons in the implementation language" even
// though the observable behavior (only one command runs at a time) is the
// same either way.
package session

import (
	"fmt"
	"net"
	"time"

	"github.com/marmos91/nfsh/internal/logger"
	"github.com/marmos91/nfsh/internal/metrics"
	"github.com/marmos91/nfsh/internal/mount"
	"github.com/marmos91/nfsh/internal/nfs3"
	"github.com/marmos91/nfsh/internal/portmap"
	"github.com/marmos91/nfsh/internal/rpc"
)

// HandleLiteral is the mount_path value used when the operator installed a
// raw handle via the `handle` verb rather than mounting a named export
// (spec.md §3, §8 scenario 6).
const HandleLiteral = "<handle>"

// defaultTransferSize is used whenever FSINFO cannot be obtained — at
// mount time on failure, and as the config-layer fallback (spec.md §3,
// §9: "the defensive 'return 8192 on failure' masks" a FSINFO-after-
// MOUNT-failure bug; SPEC_FULL keeps this behavior rather than fixing it).
const defaultTransferSize = 8192

// defaultCredential is the spec.md §3 default for uid/gid: -2 (the
// conventional "nobody" UID/GID), stored here as its uint32 two's
// complement representation for direct use in AUTH_UNIX credentials.
const defaultCredential = uint32(0xFFFFFFFE) // -2

// Session is the single mutable session record (spec.md §3). Every field
// not yet backed by an open channel is its Go zero value; IsMounted/
// HasNfsClient below are the supported way to test for "absent" per the
// invariants, rather than comparing against a sentinel.
type Session struct {
	RemoteHost string
	ServerAddr net.IP
	MntAddr    string
	NfsAddr    string

	MntClient *mount.Client
	NfsClient *nfs3.Client

	MountPath    string // "" = absent, HandleLiteral, or an export path
	RootHandle   nfs3.FileHandle
	CwdHandle    nfs3.FileHandle
	TransferSize uint32

	AuthFlavor uint32
	UID        uint32
	GID        uint32
	SecretKey  string

	Verbose     bool
	Interactive bool
	Timeout     time.Duration

	Metrics *metrics.Recorder
}

// New builds a Session with spec.md §3 defaults (uid/gid = -2, AUTH_UNIX,
// 60s timeout) overridable by the caller (internal/config) before the
// shell starts.
func New() *Session {
	return &Session{
		AuthFlavor:   rpc.AuthUnix,
		UID:          defaultCredential,
		GID:          defaultCredential,
		TransferSize: defaultTransferSize,
		Timeout:      rpc.DefaultTimeout,
		Metrics:      metrics.NewNoop(),
	}
}

// HasMntClient reports invariant I1's left-hand antecedent's prerequisite:
// whether a MOUNT channel is open.
func (s *Session) HasMntClient() bool { return s.MntClient != nil }

// HasNfsClient reports whether an NFS channel is open.
func (s *Session) HasNfsClient() bool { return s.NfsClient != nil }

// IsMounted reports whether mount_path is non-absent (invariant I2).
func (s *Session) IsMounted() bool { return s.MountPath != "" }

// buildAuth constructs the session's current Authenticator. AUTH_DES
// always fails here (spec.md §4.6, §1 Non-goals): the error surfaces as a
// ProtocolError so the dispatcher reports it like any other protocol-level
// rejection, not a Go panic.
func (s *Session) buildAuth() (rpc.Authenticator, error) {
	switch s.AuthFlavor {
	case rpc.AuthUnix:
		return rpc.NewUnixAuth(s.UID, s.GID), nil
	case rpc.AuthDES:
		auth := &rpc.DESAuth{SecretKey: s.SecretKey}
		if _, err := auth.CredentialBody(); err != nil {
			return nil, NewProtocolError("AUTH_DES", 0, err.Error())
		}
		return auth, nil
	default:
		return rpc.NullAuth{}, nil
	}
}

// closeMount tears down nfs_client, destroying its authenticator before
// the handle that carries it (invariant I4), and clears mount_path, both
// handles and nfs_addr. The MOUNT channel stays open; Close drops it. Host
// (through Close) and Mount both call this unconditionally before
// attempting a new connection (spec.md §4.4: "Failure leaves prior state
// cleared, since close_nfs runs before the attempt").
func (s *Session) closeMount() {
	if s.NfsClient != nil {
		s.NfsClient.SetAuth(rpc.NullAuth{}) // invariant I4
		_ = s.NfsClient.Close()
		s.NfsClient = nil
	}
	s.MountPath = ""
	s.RootHandle = nil
	s.CwdHandle = nil
	s.NfsAddr = ""
	s.Metrics.SetMounted(false)
}

// Close runs the full close_mount path followed by dropping the MOUNT
// channel, used on Host re-entry and shell exit (spec.md §3 "Shell exit:
// if remote_host set, run the full close_mount path").
func (s *Session) Close() {
	s.closeMount()
	if s.MntClient != nil {
		s.MntClient.SetAuth(rpc.NullAuth{}) // invariant I4
		_ = s.MntClient.Close()
		s.MntClient = nil
	}
	s.RemoteHost = ""
	s.ServerAddr = nil
	s.MntAddr = ""
}

// Host resolves hostSpec, opening a MOUNT channel (TCP preferred, UDP on
// TCP failure), per spec.md §4.4. Any prior session is closed first.
func (s *Session) Host(hostSpec string) error {
	s.Close()

	ips, err := net.LookupIP(hostSpec)
	if err != nil || len(ips) == 0 {
		return NewTransportError("resolve host", fmt.Errorf("%s: %v", hostSpec, err))
	}
	var addr net.IP
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			addr = v4
			break
		}
	}
	if addr == nil {
		return NewTransportError("resolve host", fmt.Errorf("%s has no IPv4 address", hostSpec))
	}

	auth, err := s.buildAuth()
	if err != nil {
		return err
	}

	port, network, err := resolveMountPort(addr.String(), s.Metrics, s.Timeout)
	if err != nil {
		return NewTransportError("resolve mountd port", err)
	}

	client, err := mount.Dial(addr.String(), port, network, true, auth)
	if err != nil {
		return NewTransportError("dial mountd", err)
	}
	client.SetMetrics(s.Metrics)
	client.SetTimeout(s.Timeout)

	s.RemoteHost = hostSpec
	s.ServerAddr = addr
	s.MntAddr = fmt.Sprintf("%s:%d", addr.String(), port)
	s.MntClient = client

	if s.Verbose {
		logger.Info("connected", "host", hostSpec, "network", network, "port", port)
	}
	return nil
}

// HostWithConn installs conn (already carrying whatever transport options
// the caller set up, e.g. a source route) as the MOUNT channel for
// hostSpec/addr:port, instead of dialing a fresh connection. Used by
// open_source_routed (spec.md §4.2), where the LSRR-bearing socket itself
// must be the one the MOUNT session runs over, not a connection opened
// afterward.
func (s *Session) HostWithConn(hostSpec string, addr net.IP, port uint32, network string, conn net.Conn) error {
	s.Close()

	auth, err := s.buildAuth()
	if err != nil {
		_ = conn.Close()
		return err
	}

	mntClient := mount.NewClient(conn, network, auth)
	mntClient.SetMetrics(s.Metrics)
	mntClient.SetTimeout(s.Timeout)

	s.RemoteHost = hostSpec
	s.ServerAddr = addr
	s.MntAddr = fmt.Sprintf("%s:%d", addr.String(), port)
	s.MntClient = mntClient

	if s.Verbose {
		logger.Info("connected", "host", hostSpec, "network", network, "port", port, "source_routed", true)
	}
	return nil
}

// resolveMountPort tries TCP first, UDP on failure, matching spec.md
// §4.4's "TCP is tried first, UDP on TCP failure".
func resolveMountPort(addr string, m *metrics.Recorder, timeout time.Duration) (uint32, string, error) {
	pm, err := portmap.Dial(addr, "tcp", false)
	if err == nil {
		pm.SetMetrics(m)
		pm.SetTimeout(timeout)
		defer pm.Close()
		port, err := pm.GetPort(rpc.ProgramMount, rpc.MountVersion, rpc.ProtoTCP)
		if err == nil && port != 0 {
			return port, "tcp", nil
		}
	}

	pm, err = portmap.Dial(addr, "udp", false)
	if err != nil {
		return 0, "", fmt.Errorf("portmapper unreachable: %w", err)
	}
	pm.SetMetrics(m)
	pm.SetTimeout(timeout)
	defer pm.Close()
	port, err := pm.GetPort(rpc.ProgramMount, rpc.MountVersion, rpc.ProtoUDP)
	if err != nil {
		return 0, "", err
	}
	if port == 0 {
		return 0, "", fmt.Errorf("MOUNT service not registered")
	}
	return port, "udp", nil
}

// MountOptions configures the `mount` verb (spec.md §4.4).
type MountOptions struct {
	UnmountAfter bool   // -u
	ViaPortmap   bool   // -p: NFS port via UDP portmap GETPORT; MNT still goes straight to mountd, not through CALLIT
	ForceTCP     bool   // -T
	ForceUDP     bool   // -U
	Port         uint32 // -P, 0 = resolve via portmap
}

// Mount implements the `mount` verb: obtain a file handle for path, open
// the NFS channel, and derive transfer_size from FSINFO (spec.md §4.4).
func (s *Session) Mount(path string, opts MountOptions) error {
	if !s.HasMntClient() {
		return NewUserError("no host set; use 'host <name>' first")
	}
	s.closeMount()

	fh, _, err := s.MntClient.Mnt(path)
	if err != nil {
		if se, ok := err.(*mount.StatusError); ok {
			return NewProtocolError("MNT", se.Status, mount.StatusName(se.Status))
		}
		return NewTransportError("MNT", err)
	}

	if opts.UnmountAfter {
		if err := s.MntClient.Umnt(path); err != nil {
			logger.Warn("UMNT after mount -u failed", "error", err)
		}
	}

	nfsPort := opts.Port
	network := "tcp"
	if opts.ForceUDP {
		network = "udp"
	}
	if nfsPort == 0 {
		proto := rpc.ProtoTCP
		if opts.ForceUDP {
			proto = rpc.ProtoUDP
			network = "udp"
		}
		if opts.ForceTCP {
			proto = rpc.ProtoTCP
			network = "tcp"
		}

		if opts.ViaPortmap {
			pm, err := portmap.Dial(s.ServerAddr.String(), "udp", false)
			if err != nil {
				return NewTransportError("dial portmapper", err)
			}
			pm.SetMetrics(s.Metrics)
			pm.SetTimeout(s.Timeout)
			defer pm.Close()
			nfsPort, err = pm.GetPort(rpc.ProgramNFS, rpc.NFSVersion, proto)
			if err != nil || nfsPort == 0 {
				return NewTransportError("resolve NFS port via portmap", err)
			}
		} else {
			nfsPort, network, err = s.resolveNFSPort(proto, opts)
			if err != nil {
				return NewTransportError("resolve NFS port", err)
			}
		}
	}

	auth, err := s.buildAuth()
	if err != nil {
		return err
	}

	nfsClient, err := nfs3.Dial(s.ServerAddr.String(), nfsPort, network, true, auth)
	if err != nil {
		return NewTransportError("dial nfsd", err)
	}
	nfsClient.SetMetrics(s.Metrics)
	nfsClient.SetTimeout(s.Timeout)

	s.NfsClient = nfsClient
	s.NfsAddr = fmt.Sprintf("%s:%d", s.ServerAddr.String(), nfsPort)
	s.MountPath = path
	s.RootHandle = nfs3.FromMountHandle(fh)
	s.CwdHandle = s.RootHandle

	s.TransferSize = defaultTransferSize
	if info, _, err := s.NfsClient.Fsinfo(s.CwdHandle); err == nil {
		s.TransferSize = info.WtMax
	}

	s.Metrics.SetMounted(true)
	if s.Verbose {
		logger.Info("mount successful", "path", path, "network", network, "transfer_size", s.TransferSize)
	}
	return nil
}

func (s *Session) resolveNFSPort(proto uint32, opts MountOptions) (uint32, string, error) {
	network := "tcp"
	if opts.ForceUDP {
		network = "udp"
	}
	pm, err := portmap.Dial(s.ServerAddr.String(), network, false)
	if err != nil {
		return 0, "", err
	}
	pm.SetMetrics(s.Metrics)
	pm.SetTimeout(s.Timeout)
	defer pm.Close()
	port, err := pm.GetPort(rpc.ProgramNFS, rpc.NFSVersion, proto)
	if err != nil {
		return 0, "", err
	}
	if port == 0 {
		return 0, "", fmt.Errorf("NFS service not registered")
	}
	return port, network, nil
}

// Handle installs a raw NFS file handle directly, bypassing MOUNT
// (spec.md §3 "handle <bytes…>", §8 scenario 6). A MOUNT channel need not
// be open, but host must have been set so server_addr/port are known.
func (s *Session) Handle(raw []byte, port uint32, network string) error {
	if s.ServerAddr == nil {
		return NewUserError("no remote file system mounted")
	}
	s.closeMount()

	auth, err := s.buildAuth()
	if err != nil {
		return err
	}
	nfsClient, err := nfs3.Dial(s.ServerAddr.String(), port, network, true, auth)
	if err != nil {
		return NewTransportError("dial nfsd", err)
	}
	nfsClient.SetMetrics(s.Metrics)
	nfsClient.SetTimeout(s.Timeout)

	s.NfsClient = nfsClient
	s.NfsAddr = fmt.Sprintf("%s:%d", s.ServerAddr.String(), port)
	s.MountPath = HandleLiteral
	s.RootHandle = nfs3.FileHandle(append([]byte(nil), raw...))
	s.CwdHandle = s.RootHandle
	s.Metrics.SetMounted(true)
	return nil
}

// Umount implements the `umount` verb: destroy nfs_client, clear
// mount_path and handles (spec.md §3, §8 P4).
func (s *Session) Umount() error {
	if !s.IsMounted() {
		return NewUserError("no remote file system mounted")
	}
	if s.MntClient != nil && s.MountPath != HandleLiteral {
		if err := s.MntClient.Umnt(s.MountPath); err != nil {
			logger.Warn("UMNT failed", "error", err)
		}
	}
	s.closeMount()
	return nil
}

// UmountAll implements the `umountall` verb (spec.md §4.4).
func (s *Session) UmountAll() error {
	if !s.HasMntClient() {
		return NewUserError("no host set; use 'host <name>' first")
	}
	if err := s.MntClient.UmntAll(); err != nil {
		return NewTransportError("UMNTALL", err)
	}
	return nil
}

// Cd implements path resolution (spec.md §4.5): splits on '/', advances a
// temporary handle one LOOKUP per component, requires NF3DIR at every
// step, and only commits cwd_handle on full success (invariant I3).
func (s *Session) Cd(path string) error {
	if !s.IsMounted() {
		return NewUserError("no remote file system mounted")
	}

	start := s.CwdHandle
	components := splitPath(path)
	if len(path) > 0 && path[0] == '/' {
		start = s.RootHandle
	}
	if len(components) == 0 {
		s.CwdHandle = s.RootHandle
		return nil
	}

	cur := start
	for _, name := range components {
		if name == "" {
			continue
		}
		fh, attr, _, err := s.NfsClient.Lookup(cur, name)
		if err != nil {
			if se, ok := err.(*nfs3.StatusError); ok {
				return NewProtocolError("LOOKUP", se.Status, nfs3.StatusName(se.Status))
			}
			return NewTransportError("LOOKUP", err)
		}
		if attr == nil || attr.Type != nfs3.TypeDir {
			return NewUserError("%s: is not a directory", name)
		}
		cur = fh
	}

	s.CwdHandle = cur // only committed on full success
	return nil
}

func splitPath(path string) []string {
	var parts []string
	var cur []byte
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			if len(cur) > 0 {
				parts = append(parts, string(cur))
				cur = cur[:0]
			}
			continue
		}
		cur = append(cur, path[i])
	}
	if len(cur) > 0 {
		parts = append(parts, string(cur))
	}
	return parts
}
