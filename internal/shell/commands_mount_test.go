package shell

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/nfsh/internal/localfs"
	"github.com/marmos91/nfsh/internal/mount"
	"github.com/marmos91/nfsh/internal/session"
)

// newMountTestShell builds a bare Shell; tests that need a mounted-looking
// session set sess fields directly, the same way commands_fs_test.go's
// mountedShell does, since Session.Mount/Host always dial a real
// connection (including a privileged source port for NFS/MOUNT) and so
// cannot be driven from a unit test without root.
func newMountTestShell() (*Shell, *session.Session, *bytes.Buffer) {
	sess := session.New()
	var out bytes.Buffer
	sh := &Shell{Session: sess, Local: localfs.New(afero.NewMemMapFs(), "/"), Out: &out}
	return sh, sess, &out
}

// TestCmdHandleBareFormPrintsMountPathAndHex covers spec.md §8 scenario 6:
// a bare `handle` with a mount already installed prints "mount_path: hex".
func TestCmdHandleBareFormPrintsMountPathAndHex(t *testing.T) {
	sh, sess, out := newMountTestShell()
	sess.MountPath = "/export/home"
	sess.CwdHandle = []byte{0xDE, 0xAD, 0xBE, 0xEF}

	require.NoError(t, cmdHandle(sh, nil))
	assert.Equal(t, "/export/home: deadbeef\n", out.String())
}

func TestCmdHandleBareFormRequiresMount(t *testing.T) {
	sh, _, _ := newMountTestShell()
	err := cmdHandle(sh, nil)
	var userErr *session.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Equal(t, "no remote file system mounted", userErr.Message)
}

func TestCmdHandleRejectsInvalidHex(t *testing.T) {
	sh, _, _ := newMountTestShell()
	err := cmdHandle(sh, []string{"not-hex"})
	var userErr *session.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.Message, "not a valid hex handle")
}

// TestCmdHandleInstallRequiresHostFirst confirms `handle <bytes>` decodes
// valid hex and dispatches into Session.Handle, which itself refuses to
// install a handle before `host` has set server_addr (spec.md §3).
// Session.Handle dials a real nfsd on success, so only this refusal path
// is tested, here and in internal/session's TestHandleRequiresServerAddr.
func TestCmdHandleInstallRequiresHostFirst(t *testing.T) {
	sh, _, _ := newMountTestShell()
	err := cmdHandle(sh, []string{"cafe01"})
	var userErr *session.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Equal(t, "no remote file system mounted", userErr.Message)
}

func TestSplitSourceRouteRecognizesColonAndAtForms(t *testing.T) {
	route, host, ok := splitSourceRoute("10.0.0.1:victim.example.com")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", route)
	assert.Equal(t, "victim.example.com", host)

	route, host, ok = splitSourceRoute("10.0.0.1:10.0.0.2@victim.example.com")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1:10.0.0.2", route)
	assert.Equal(t, "victim.example.com", host)

	_, _, ok = splitSourceRoute("plainhostname")
	assert.False(t, ok)
}

func TestSwapUint16ByteSwapsPort(t *testing.T) {
	assert.Equal(t, uint16(0x0102), swapUint16(0x0201))
	assert.Equal(t, uint16(2049), swapUint16(swapUint16(2049)))
}

func TestCmdMountRequiresAPath(t *testing.T) {
	sh, _, _ := newMountTestShell()
	err := cmdMount(sh, []string{"-u"})
	var userErr *session.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.Message, "usage: mount")
}

func TestCmdMountRejectsNonNumericPort(t *testing.T) {
	sh, _, _ := newMountTestShell()
	err := cmdMount(sh, []string{"-P", "notaport", "/export"})
	var userErr *session.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.Message, "not a port number")
}

func TestCmdMountRejectsDanglingPortFlag(t *testing.T) {
	sh, _, _ := newMountTestShell()
	err := cmdMount(sh, []string{"-P"})
	var userErr *session.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.Message, "usage: mount")
}

func TestCmdUmountRequiresMount(t *testing.T) {
	sh, _, _ := newMountTestShell()
	err := cmdUmount(sh, nil)
	var userErr *session.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Equal(t, "no remote file system mounted", userErr.Message)
}

func TestCmdUmountAllRequiresHost(t *testing.T) {
	sh, _, _ := newMountTestShell()
	err := cmdUmountAll(sh, nil)
	var userErr *session.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.Message, "no host set")
}

func TestCmdExportRequiresHost(t *testing.T) {
	sh, _, _ := newMountTestShell()
	err := cmdExport(sh, nil)
	var userErr *session.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.Message, "no host set")
}

func TestCmdDumpRequiresHost(t *testing.T) {
	sh, _, _ := newMountTestShell()
	err := cmdDump(sh, nil)
	var userErr *session.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.Message, "no host set")
}

// TestFakeMountClientMntRoundTrip exercises newFakeMountClient directly
// (no Shell involved), confirming the fake server's fixed-offset procedure
// parsing also works for MOUNT calls, not just NFS ones.
func TestFakeMountClientMntRoundTrip(t *testing.T) {
	fh := []byte{0x01, 0x02, 0x03, 0x04}
	replies := map[uint32][]byte{
		mount.ProcMnt: mntReplyOK(fh),
	}
	mc := newFakeMountClient(t, replies)

	gotFH, flavors, err := mc.Mnt("/export")
	require.NoError(t, err)
	assert.Equal(t, fh, []byte(gotFH))
	assert.Empty(t, flavors)
}

func TestCmdUIDGetterAndSetter(t *testing.T) {
	sh, sess, out := newMountTestShell()
	sess.UID = 1000
	require.NoError(t, cmdUID(sh, nil))
	assert.Equal(t, "uid=1000\n", out.String())

	require.NoError(t, cmdUID(sh, []string{"2000"}))
	assert.Equal(t, uint32(2000), sess.UID)
}

func TestCmdGIDGetterAndSetter(t *testing.T) {
	sh, sess, out := newMountTestShell()
	sess.GID = 1000
	require.NoError(t, cmdGID(sh, nil))
	assert.Equal(t, "gid=1000\n", out.String())

	require.NoError(t, cmdGID(sh, []string{"2000"}))
	assert.Equal(t, uint32(2000), sess.GID)
}
