package mount

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/nfsh/internal/xdr"
)

func TestDecodeMountResponseOK(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, xdr.WriteUint32(&buf, StatOK))
	require.NoError(t, xdr.WriteXDROpaque(&buf, []byte{0x01, 0x02, 0x03, 0x04}))
	require.NoError(t, xdr.WriteUint32(&buf, 1))
	require.NoError(t, xdr.WriteInt32(&buf, 1)) // AUTH_UNIX

	resp, err := decodeMountResponse(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, StatOK, resp.Status)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, resp.FileHandle)
	assert.Equal(t, []int32{1}, resp.AuthFlavors)
}

func TestDecodeMountResponseError(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, xdr.WriteUint32(&buf, StatErrNoEnt))

	resp, err := decodeMountResponse(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, StatErrNoEnt, resp.Status)
	assert.Nil(t, resp.FileHandle)
}

func TestDecodeMountEntryList(t *testing.T) {
	var buf bytes.Buffer
	entries := []MountEntry{
		{Hostname: "client1.example.com", Directory: "/export"},
		{Hostname: "client2.example.com", Directory: "/export/pub"},
	}
	err := xdr.EncodeOptionalList(&buf, entries, func(b *bytes.Buffer, e MountEntry) error {
		if err := xdr.WriteXDRString(b, e.Hostname); err != nil {
			return err
		}
		return xdr.WriteXDRString(b, e.Directory)
	})
	require.NoError(t, err)

	decoded, err := xdr.DecodeOptionalList(&buf, decodeMountEntry)
	require.NoError(t, err)
	assert.Equal(t, entries, decoded)
}

func TestDecodeExportEntryWithGroups(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, xdr.WriteXDRString(&buf, "/export"))
	require.NoError(t, xdr.EncodeOptionalList(&buf, []string{"trusted", "admins"}, xdr.WriteXDRString))

	entry, err := decodeExportEntry(&buf)
	require.NoError(t, err)
	assert.Equal(t, "/export", entry.Directory)
	assert.Equal(t, []string{"trusted", "admins"}, entry.Groups)
}

func TestStatusErrorMessage(t *testing.T) {
	err := &StatusError{Op: "MNT", Status: StatErrAccess}
	assert.Contains(t, err.Error(), "Permission denied")
}
