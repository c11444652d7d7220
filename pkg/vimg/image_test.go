package vimg

import (
	"bytes"
	"errors"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorteil/gptguid/pkg/vgpt"
)

var errInjected = errors.New("injected write failure")

// memDisk is an in-memory Handle. It can limit how many bytes a single
// ReadAt/WriteAt transfers and fail a chosen write.
type memDisk struct {
	data      []byte
	limit     int
	writes    int
	syncs     int
	closed    bool
	failWrite int
}

func (d *memDisk) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(d.data)) {
		return 0, io.EOF
	}
	if d.limit > 0 && len(p) > d.limit {
		p = p[:d.limit]
	}
	return copy(p, d.data[off:]), nil
}

func (d *memDisk) WriteAt(p []byte, off int64) (int, error) {
	d.writes++
	if d.failWrite != 0 && d.writes == d.failWrite {
		return 0, errInjected
	}
	if off+int64(len(p)) > int64(len(d.data)) {
		return 0, errors.New("write beyond end of disk")
	}
	if d.limit > 0 && len(p) > d.limit {
		p = p[:d.limit]
	}
	return copy(d.data[off:], p), nil
}

func (d *memDisk) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		return offset, nil
	case io.SeekEnd:
		return int64(len(d.data)) + offset, nil
	default:
		return 0, errors.New("unsupported whence")
	}
}

func (d *memDisk) Sync() error {
	d.syncs++
	return nil
}

func (d *memDisk) Close() error {
	d.closed = true
	return nil
}

func (d *memDisk) snapshot() []byte {
	return append([]byte(nil), d.data...)
}

var (
	testGUID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	newGUID  = uuid.MustParse("11111111-1111-1111-1111-111111111111")
)

// testDisk builds the 4096 byte, 8 sector image: protective MBR, primary
// header at LBA 1 and backup header at LBA 7.
func testDisk() (*memDisk, vgpt.Header, vgpt.Header) {

	primary := vgpt.Header{
		CurrentLBA:         1,
		BackupLBA:          7,
		FirstUsableLBA:     2,
		LastUsableLBA:      6,
		DiskGUID:           testGUID,
		EntriesStartingLBA: 2,
		NumEntries:         0,
		EntrySize:          128,
		EntriesCRC32:       0,
	}
	backup := primary.Backup(7)

	data := make([]byte, 4096)
	copy(data[0:], protectiveMBR(8))
	copy(data[512:], primary.Encode())
	copy(data[3584:], backup.Encode())

	return &memDisk{data: data}, primary, backup

}

func openDisk(t *testing.T, d *memDisk) *Image {
	img, err := Open(&Args{Handle: d})
	require.NoError(t, err)
	t.Cleanup(func() { img.Close() })
	return img
}

func writeTempImage(t *testing.T, data []byte) string {
	path := filepath.Join(t.TempDir(), "disk.raw")
	err := ioutil.WriteFile(path, data, 0644)
	require.NoError(t, err)
	return path
}

func TestUpdateGUID(t *testing.T) {

	d, primary, backup := testDisk()
	img := openDisk(t, d)

	assert.NoError(t, img.Validate())

	p, err := img.ReadPrimaryGPTHeader()
	require.NoError(t, err)
	assert.Equal(t, primary, p)

	b, err := img.ReadBackupGPTHeader()
	require.NoError(t, err)
	assert.Equal(t, backup, b)

	mbr := d.snapshot()[:512]

	err = img.UpdateGUID(newGUID)
	require.NoError(t, err)

	p, err = img.ReadPrimaryGPTHeader()
	require.NoError(t, err)
	b, err = img.ReadBackupGPTHeader()
	require.NoError(t, err)

	assert.Equal(t, newGUID, p.DiskGUID)
	assert.Equal(t, newGUID, b.DiskGUID)
	assert.Equal(t, primary.WithNewGUID(newGUID), p)
	assert.Equal(t, backup.WithNewGUID(newGUID), b)
	assert.NoError(t, img.Validate())

	assert.Equal(t, mbr, d.data[:512])
	assert.Equal(t, 1, d.syncs)

}

func TestUpdateGUIDShortTransfers(t *testing.T) {

	d, _, _ := testDisk()
	d.limit = 100
	img := openDisk(t, d)

	require.NoError(t, img.UpdateGUID(newGUID))

	d.limit = 0
	assert.NoError(t, img.Validate())

	p, err := img.ReadPrimaryGPTHeader()
	require.NoError(t, err)
	assert.Equal(t, newGUID, p.DiskGUID)

}

func TestOpenTooSmall(t *testing.T) {

	d := &memDisk{data: make([]byte, vgpt.MinimumDiskSize-1)}
	_, err := Open(&Args{Handle: d})
	assert.True(t, pkgerrors.Is(err, ErrInvalidImage))
	assert.False(t, d.closed)

	path := writeTempImage(t, make([]byte, 1024))
	_, err = Open(&Args{Path: path})
	assert.True(t, pkgerrors.Is(err, ErrInvalidImage))

	d = &memDisk{data: make([]byte, vgpt.MinimumDiskSize)}
	img, err := Open(&Args{Handle: d})
	require.NoError(t, err)
	img.Close()

}

func TestOpenPartialSector(t *testing.T) {

	d := &memDisk{data: make([]byte, vgpt.MinimumDiskSize+100)}
	_, err := Open(&Args{Handle: d})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, ErrInvalidImage))
	assert.Contains(t, err.Error(), "not a whole number of 512 byte sectors")

	path := writeTempImage(t, make([]byte, 4096+1))
	_, err = Open(&Args{Path: path, Mode: ReadWrite})
	assert.True(t, pkgerrors.Is(err, ErrInvalidImage))

	d = &memDisk{data: make([]byte, vgpt.MinimumDiskSize+vgpt.SectorSize)}
	img, err := Open(&Args{Handle: d})
	require.NoError(t, err)
	img.Close()

}

func TestOpenArgs(t *testing.T) {

	_, err := Open(&Args{})
	assert.Error(t, err)

	d, _, _ := testDisk()
	_, err = Open(&Args{Handle: d, Path: "disk.raw"})
	assert.Error(t, err)

	_, err = Open(&Args{Path: filepath.Join(t.TempDir(), "missing.raw")})
	assert.True(t, os.IsNotExist(pkgerrors.Cause(err)))

}

func TestBorrowedHandleNotClosed(t *testing.T) {

	d, _, _ := testDisk()
	img, err := Open(&Args{Handle: d})
	require.NoError(t, err)

	assert.NoError(t, img.Close())
	assert.NoError(t, img.Close())
	assert.False(t, d.closed)

}

func TestOwnedFileClosed(t *testing.T) {

	d, _, _ := testDisk()
	path := writeTempImage(t, d.data)

	img, err := Open(&Args{Path: path, Mode: ReadWrite})
	require.NoError(t, err)
	assert.Equal(t, path, img.Name())

	f, ok := img.closer.(*os.File)
	require.True(t, ok)

	require.NoError(t, img.UpdateGUID(newGUID))
	assert.NoError(t, img.Close())
	assert.NoError(t, img.Close())

	// already closed by the image, exactly once
	err = f.Close()
	assert.True(t, errors.Is(err, os.ErrClosed))

	img, err = Open(&Args{Path: path})
	require.NoError(t, err)
	defer img.Close()

	p, err := img.ReadPrimaryGPTHeader()
	require.NoError(t, err)
	assert.Equal(t, newGUID, p.DiskGUID)

}

func TestClosedImage(t *testing.T) {

	d, primary, backup := testDisk()
	img, err := Open(&Args{Handle: d})
	require.NoError(t, err)
	img.Close()

	_, err = img.ReadPrimaryGPTHeader()
	assert.Equal(t, ErrClosed, err)

	_, err = img.ReadBackupGPTHeader()
	assert.Equal(t, ErrClosed, err)

	assert.Equal(t, ErrClosed, pkgerrors.Cause(img.Validate()))
	assert.Equal(t, ErrClosed, img.WriteGPTHeaders(primary, backup))
	assert.Equal(t, ErrClosed, pkgerrors.Cause(img.UpdateGUID(newGUID)))
	assert.Equal(t, 0, d.writes)

}

func TestReadOnly(t *testing.T) {

	d, _, _ := testDisk()
	path := writeTempImage(t, d.data)

	img, err := Open(&Args{Path: path, Mode: ReadOnly})
	require.NoError(t, err)
	defer img.Close()

	assert.NoError(t, img.Validate())

	err = img.UpdateGUID(newGUID)
	assert.True(t, pkgerrors.Is(err, ErrReadOnly))

	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, d.data, data)

}

func TestWriteGPTHeadersPreconditions(t *testing.T) {

	d, primary, backup := testDisk()
	img := openDisk(t, d)
	before := d.snapshot()

	tests := []struct {
		name    string
		primary vgpt.Header
		backup  vgpt.Header
		msg     string
	}{
		{
			name:    "not backups",
			primary: primary,
			backup:  backup.WithNewGUID(newGUID),
			msg:     "headers are not backups of each other",
		},
		{
			name: "primary lba",
			primary: func() vgpt.Header {
				h := primary
				h.CurrentLBA = 2
				return h
			}(),
			backup: func() vgpt.Header {
				h := backup
				h.BackupLBA = 2
				return h
			}(),
			msg: "primary header has invalid current_lba",
		},
		{
			name: "backup lba",
			primary: func() vgpt.Header {
				h := primary
				h.BackupLBA = 6
				return h
			}(),
			backup: func() vgpt.Header {
				h := backup
				h.CurrentLBA = 6
				return h
			}(),
			msg: "backup header has invalid current_lba",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := img.WriteGPTHeaders(tt.primary, tt.backup)
			require.Error(t, err)
			assert.True(t, pkgerrors.Is(err, ErrInvalidImage))
			assert.Contains(t, err.Error(), tt.msg)
			assert.Equal(t, 0, d.writes)
			assert.Equal(t, before, d.data)
		})
	}

}

func TestValidateMismatch(t *testing.T) {

	d, _, backup := testDisk()
	copy(d.data[3584:], backup.WithNewGUID(newGUID).Encode())
	img := openDisk(t, d)

	err := img.Validate()
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, ErrInvalidImage))
	assert.Contains(t, err.Error(), "GPT headers don't match")

	err = img.UpdateGUID(newGUID)
	assert.True(t, pkgerrors.Is(err, ErrInvalidImage))

}

func TestDecodeErrorsPropagate(t *testing.T) {

	d, _, _ := testDisk()
	d.data[512] = 'X'
	img := openDisk(t, d)

	_, err := img.ReadPrimaryGPTHeader()
	assert.True(t, pkgerrors.Is(err, vgpt.ErrInvalidSignature))

	err = img.Validate()
	assert.True(t, pkgerrors.Is(err, vgpt.ErrInvalidSignature))
	assert.False(t, pkgerrors.Is(err, ErrInvalidImage))

	d, _, _ = testDisk()
	d.data[4095] = 0x01
	img = openDisk(t, d)

	_, err = img.ReadBackupGPTHeader()
	assert.True(t, pkgerrors.Is(err, vgpt.ErrInvalidField))

}

func TestWriteFailurePropagates(t *testing.T) {

	d, _, _ := testDisk()
	d.failWrite = 1
	img := openDisk(t, d)

	err := img.UpdateGUID(newGUID)
	assert.True(t, pkgerrors.Is(err, errInjected))
	assert.Equal(t, 0, d.syncs)

}

func TestInitialize(t *testing.T) {

	d := &memDisk{data: make([]byte, 1<<20)}
	img := openDisk(t, d)

	require.NoError(t, img.Initialize(testGUID))
	assert.NoError(t, img.Validate())

	p, b, err := img.ReadGPTHeaders()
	require.NoError(t, err)

	assert.Equal(t, uint64(1), p.CurrentLBA)
	assert.Equal(t, uint64(2047), p.BackupLBA)
	assert.Equal(t, uint64(34), p.FirstUsableLBA)
	assert.Equal(t, uint64(2014), p.LastUsableLBA)
	assert.Equal(t, uint64(2), p.EntriesStartingLBA)
	assert.Equal(t, uint64(2015), b.EntriesStartingLBA)
	assert.Equal(t, uint32(128), p.NumEntries)
	assert.Equal(t, uint32(128), p.EntrySize)
	assert.Equal(t, testGUID, b.DiskGUID)

	assert.Equal(t, []byte{0x55, 0xAA}, d.data[510:512])
	assert.Equal(t, byte(0xEE), d.data[450])

	small := &memDisk{data: make([]byte, (MinimumInitializeSectors-1)*vgpt.SectorSize)}
	img = openDisk(t, small)
	err = img.Initialize(testGUID)
	assert.True(t, pkgerrors.Is(err, ErrInvalidImage))
	assert.True(t, bytes.Equal(make([]byte, len(small.data)), small.data))

}
