package nfs3

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/nfsh/internal/xdr"
)

func sampleAttr() FileAttr {
	return FileAttr{
		Type: TypeReg, Mode: 0644, Nlink: 1, UID: 1000, GID: 1000,
		Size: 4096, Used: 4096, Fsid: 1, FileID: 42,
		Atime: TimeVal{Seconds: 1, Nseconds: 0},
		Mtime: TimeVal{Seconds: 2, Nseconds: 0},
		Ctime: TimeVal{Seconds: 3, Nseconds: 0},
	}
}

func encodeFileAttrForTest(buf *bytes.Buffer, a FileAttr) {
	_ = xdr.WriteUint32(buf, a.Type)
	_ = xdr.WriteUint32(buf, a.Mode)
	_ = xdr.WriteUint32(buf, a.Nlink)
	_ = xdr.WriteUint32(buf, a.UID)
	_ = xdr.WriteUint32(buf, a.GID)
	_ = xdr.WriteUint64(buf, a.Size)
	_ = xdr.WriteUint64(buf, a.Used)
	_ = xdr.WriteUint32(buf, a.RdevMajor)
	_ = xdr.WriteUint32(buf, a.RdevMinor)
	_ = xdr.WriteUint64(buf, a.Fsid)
	_ = xdr.WriteUint64(buf, a.FileID)
	_ = encodeTimeVal(buf, a.Atime)
	_ = encodeTimeVal(buf, a.Mtime)
	_ = encodeTimeVal(buf, a.Ctime)
}

func TestDecodeFileAttrRoundTrip(t *testing.T) {
	want := sampleAttr()
	var buf bytes.Buffer
	encodeFileAttrForTest(&buf, want)

	got, err := decodeFileAttr(&buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodePostOpAttrAbsent(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, xdr.WriteBool(&buf, false))

	attr, present, err := decodePostOpAttr(&buf)
	require.NoError(t, err)
	assert.False(t, present)
	assert.Nil(t, attr)
}

func TestDecodeWccDataBothAbsent(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, xdr.WriteBool(&buf, false))
	require.NoError(t, xdr.WriteBool(&buf, false))

	wcc, err := decodeWccData(&buf)
	require.NoError(t, err)
	assert.False(t, wcc.BeforeSet)
	assert.False(t, wcc.AfterSet)
}

func TestEncodeSetAttrOnlyModeSet(t *testing.T) {
	mode := uint32(0755)
	var buf bytes.Buffer
	require.NoError(t, encodeSetAttr(&buf, SetAttr{Mode: &mode}))

	present, err := xdr.DecodeBool(&buf)
	require.NoError(t, err)
	assert.True(t, present)
	got, err := xdr.DecodeUint32(&buf)
	require.NoError(t, err)
	assert.Equal(t, mode, got)

	for _, label := range []string{"uid", "gid", "size"} {
		present, err := xdr.DecodeBool(&buf)
		require.NoError(t, err, label)
		assert.False(t, present, label)
	}
}

func TestDecodeDirEntryListRoundTrip(t *testing.T) {
	entries := []DirEntry{
		{FileID: 1, Name: ".", Cookie: 1},
		{FileID: 2, Name: "..", Cookie: 2},
		{FileID: 3, Name: "file.txt", Cookie: 3},
	}

	var buf bytes.Buffer
	err := xdr.EncodeOptionalList(&buf, entries, func(b *bytes.Buffer, e DirEntry) error {
		if err := xdr.WriteUint64(b, e.FileID); err != nil {
			return err
		}
		if err := xdr.WriteXDRString(b, e.Name); err != nil {
			return err
		}
		return xdr.WriteUint64(b, e.Cookie)
	})
	require.NoError(t, err)

	decoded, err := xdr.DecodeOptionalList(&buf, decodeDirEntry)
	require.NoError(t, err)
	assert.Equal(t, entries, decoded)
}

func TestFromMountHandleCopiesBytes(t *testing.T) {
	src := []byte{1, 2, 3}
	fh := FromMountHandle(src)
	src[0] = 0xff
	assert.Equal(t, byte(1), fh[0], "FromMountHandle must not alias the source slice")
}

func TestStatusErrorMessage(t *testing.T) {
	err := &StatusError{Op: "LOOKUP", Status: ErrNoEnt}
	assert.Contains(t, err.Error(), "No such file or directory")
}

func TestDecodeObjCreationReplyHandleAbsent(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, xdr.WriteUint32(&buf, OK))
	require.NoError(t, xdr.WriteBool(&buf, false)) // handle absent
	require.NoError(t, xdr.WriteBool(&buf, false)) // attr absent
	require.NoError(t, xdr.WriteBool(&buf, false)) // wcc before absent
	require.NoError(t, xdr.WriteBool(&buf, false)) // wcc after absent

	fh, attr, wcc, err := decodeObjCreationReply(buf.Bytes(), "MKDIR")
	require.NoError(t, err)
	assert.Nil(t, fh)
	assert.Nil(t, attr)
	assert.NotNil(t, wcc)
}
