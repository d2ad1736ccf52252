package session

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/nfsh/internal/rpc"
)

func TestNewDefaults(t *testing.T) {
	s := New()
	assert.Equal(t, rpc.AuthUnix, s.AuthFlavor)
	assert.Equal(t, uint32(0xFFFFFFFE), s.UID)
	assert.Equal(t, uint32(0xFFFFFFFE), s.GID)
	assert.Equal(t, uint32(defaultTransferSize), s.TransferSize)
	assert.False(t, s.IsMounted())
	assert.False(t, s.HasMntClient())
	assert.False(t, s.HasNfsClient())
}

// TestMountWithoutHostFails covers invariant I1: nfs_client cannot exist
// without mnt_client, so Mount before Host must be rejected as a user
// error, not attempted.
func TestMountWithoutHostFails(t *testing.T) {
	s := New()
	err := s.Mount("/export", MountOptions{})
	require.Error(t, err)
	var userErr *UserError
	require.ErrorAs(t, err, &userErr)
}

// TestUmountWithoutMountFails covers invariant I2's converse: umount with
// no mount_path is a user error, never a protocol round trip.
func TestUmountWithoutMountFails(t *testing.T) {
	s := New()
	err := s.Umount()
	require.Error(t, err)
	var userErr *UserError
	require.ErrorAs(t, err, &userErr)
}

// TestCdWithoutMountFails mirrors spec.md §8 scenario: cd before any mount
// is rejected without attempting a LOOKUP.
func TestCdWithoutMountFails(t *testing.T) {
	s := New()
	err := s.Cd("foo")
	require.Error(t, err)
	var userErr *UserError
	require.ErrorAs(t, err, &userErr)
}

// TestUmountAllWithoutHostFails covers umountall requiring mnt_client.
func TestUmountAllWithoutHostFails(t *testing.T) {
	s := New()
	err := s.UmountAll()
	require.Error(t, err)
	var userErr *UserError
	require.ErrorAs(t, err, &userErr)
}

func TestBuildAuthDESAlwaysFails(t *testing.T) {
	s := New()
	s.AuthFlavor = rpc.AuthDES
	s.SecretKey = "deadbeef"
	_, err := s.buildAuth()
	require.Error(t, err)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func TestBuildAuthUnix(t *testing.T) {
	s := New()
	s.UID = 1000
	s.GID = 1000
	auth, err := s.buildAuth()
	require.NoError(t, err)
	assert.Equal(t, rpc.AuthUnix, auth.Flavor())
}

func TestSplitPath(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitPath("a/b/c"))
	assert.Equal(t, []string{"a", "b"}, splitPath("/a/b/"))
	assert.Equal(t, []string(nil), splitPath(""))
	assert.Equal(t, []string{"a"}, splitPath("a"))
}

// TestHandleRequiresServerAddr covers the `handle` verb's prerequisite
// that `host` has already set server_addr (spec.md §3, §8 scenario 6).
func TestHandleRequiresServerAddr(t *testing.T) {
	s := New()
	err := s.Handle([]byte{1, 2, 3}, 2049, "tcp")
	require.Error(t, err)
	var userErr *UserError
	require.ErrorAs(t, err, &userErr)
}

// TestHostWithConnInstallsGivenConnection covers open_source_routed
// (spec.md §4.2): the caller's already-open connection becomes mnt_client
// directly rather than HostWithConn dialing its own.
func TestHostWithConnInstallsGivenConnection(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	s := New()
	err := s.HostWithConn("victim", net.ParseIP("10.0.0.1"), 2049, "tcp", client)
	require.NoError(t, err)
	assert.True(t, s.HasMntClient())
	assert.Equal(t, "victim", s.RemoteHost)
	assert.Equal(t, "10.0.0.1:2049", s.MntAddr)
}

// TestCloseMountClearsState checks that closeMount resets the mount
// state: mount_path becomes absent and both handles are cleared.
func TestCloseMountClearsState(t *testing.T) {
	s := New()
	s.MountPath = HandleLiteral
	s.RootHandle = []byte{1}
	s.CwdHandle = []byte{1}
	s.closeMount()
	assert.False(t, s.IsMounted())
	assert.Nil(t, s.RootHandle)
	assert.Nil(t, s.CwdHandle)
}
