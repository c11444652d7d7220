// Package vimg reads, validates and rewrites the primary and backup GPT
// headers of a disk image.
//
// An Image is not safe for concurrent use. Callers sharing one image between
// goroutines must serialize access themselves.
package vimg

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/vorteil/gptguid/pkg/elog"
	"github.com/vorteil/gptguid/pkg/vgpt"
	"github.com/vorteil/gptguid/pkg/vio"
)

// Image errors.
var (
	ErrInvalidImage = errors.New("invalid GPT image")
	ErrClosed       = errors.New("image is closed")
	ErrReadOnly     = errors.New("image is opened read-only")
	ErrNoJournal    = errors.New("no journal to recover from")
)

// Mode selects how an image file is opened.
type Mode int

// Open modes.
const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "read-only"
	case ReadWrite:
		return "read-write"
	default:
		return "unknown"
	}
}

func (m Mode) flags() int {
	if m == ReadWrite {
		return os.O_RDWR
	}
	return os.O_RDONLY
}

// Handle is the positioned I/O an Image needs from its underlying disk. If a
// Handle also has a Sync method it is called after headers are written.
type Handle interface {
	io.ReaderAt
	io.WriterAt
	io.Seeker
}

type syncer interface {
	Sync() error
}

// Args collects all of the arguments needed to call Open into one place.
// Exactly one of Path or Handle must be set.
type Args struct {

	// Path of an image file or block device, opened according to Mode and
	// closed by Image.Close.
	Path string
	Mode Mode

	// Handle is an already open disk. Image.Close never closes it.
	Handle Handle

	Logger elog.View

	// JournalPath enables the header journal when non-empty.
	JournalPath string
}

// Image is an open disk image containing a GUID Partition Table.
type Image struct {
	name     string
	h        Handle
	closer   io.Closer
	readOnly bool
	log      elog.View
	journal  string
}

// Open validates args and opens the image they describe.
func Open(args *Args) (*Image, error) {

	img := new(Image)
	img.log = elog.OrDiscard(args.Logger)
	img.journal = args.JournalPath

	switch {
	case args.Path != "" && args.Handle != nil:
		return nil, errors.New("image path and handle are mutually exclusive")
	case args.Handle != nil:
		img.name = "<handle>"
		img.h = args.Handle
	case args.Path != "":
		f, err := os.OpenFile(args.Path, args.Mode.flags(), 0)
		if err != nil {
			return nil, err
		}
		img.name = args.Path
		img.h = f
		img.closer = f
		img.readOnly = args.Mode != ReadWrite

		err = checkSectorSize(f)
		if err != nil {
			img.Close()
			return nil, err
		}
	default:
		return nil, errors.New("no image path or handle provided")
	}

	size, err := img.Size()
	if err != nil {
		img.Close()
		return nil, err
	}

	if size < vgpt.MinimumDiskSize {
		img.Close()
		return nil, errors.Wrapf(ErrInvalidImage, "%s is %d bytes, need at least %d", img.name, size, vgpt.MinimumDiskSize)
	}

	if size%vgpt.SectorSize != 0 {
		img.Close()
		return nil, errors.Wrapf(ErrInvalidImage, "%s is %d bytes, not a whole number of %d byte sectors", img.name, size, vgpt.SectorSize)
	}

	img.log.Debugf("opened %s (%s, %d bytes)", img.name, args.Mode, size)

	return img, nil

}

// Close releases the image. The underlying file is only closed if Open
// opened it. Closing an image twice is harmless.
func (img *Image) Close() error {

	if img.h == nil {
		return nil
	}

	img.h = nil

	if img.closer == nil {
		return nil
	}

	closer := img.closer
	img.closer = nil

	return closer.Close()

}

// Name returns the path the image was opened from.
func (img *Image) Name() string {
	return img.name
}

func (img *Image) handle() (Handle, error) {
	if img.h == nil {
		return nil, ErrClosed
	}
	return img.h, nil
}

func (img *Image) writable() (Handle, error) {
	h, err := img.handle()
	if err != nil {
		return nil, err
	}
	if img.readOnly {
		return nil, errors.Wrap(ErrReadOnly, img.name)
	}
	return h, nil
}

// Size returns the current size of the image in bytes.
func (img *Image) Size() (int64, error) {

	h, err := img.handle()
	if err != nil {
		return 0, err
	}

	size, err := h.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, errors.Wrapf(err, "determining size of %s", img.name)
	}

	return size, nil

}

func (img *Image) sync(h Handle) error {
	s, ok := h.(syncer)
	if !ok {
		return nil
	}
	err := s.Sync()
	if err != nil {
		return errors.Wrapf(err, "syncing %s", img.name)
	}
	return nil
}

func (img *Image) readHeader(offset int64) (vgpt.Header, error) {

	h, err := img.handle()
	if err != nil {
		return vgpt.Header{}, err
	}

	block, err := vio.ReadFullAt(h, offset, vgpt.SectorSize)
	if err != nil {
		return vgpt.Header{}, err
	}

	return vgpt.Decode(block)

}

// ReadPrimaryGPTHeader reads and decodes the header in the sector following
// the protective MBR.
func (img *Image) ReadPrimaryGPTHeader() (vgpt.Header, error) {
	return img.readHeader(vgpt.PrimaryLBA * vgpt.SectorSize)
}

// ReadBackupGPTHeader reads and decodes the header in the last sector of the
// image.
func (img *Image) ReadBackupGPTHeader() (vgpt.Header, error) {

	size, err := img.Size()
	if err != nil {
		return vgpt.Header{}, err
	}

	return img.readHeader(size - vgpt.SectorSize)

}

// ReadGPTHeaders reads both headers without checking that they agree.
func (img *Image) ReadGPTHeaders() (primary, backup vgpt.Header, err error) {

	primary, err = img.ReadPrimaryGPTHeader()
	if err != nil {
		return primary, backup, errors.Wrap(err, "primary header")
	}

	backup, err = img.ReadBackupGPTHeader()
	if err != nil {
		return primary, backup, errors.Wrap(err, "backup header")
	}

	return primary, backup, nil

}

// Validate checks that both headers decode and describe each other.
func (img *Image) Validate() error {

	primary, backup, err := img.ReadGPTHeaders()
	if err != nil {
		return err
	}

	if !primary.IsBackupOf(backup) || !backup.IsBackupOf(primary) {
		return errors.Wrap(ErrInvalidImage, "GPT headers don't match")
	}

	return nil

}

// checkHeaderPair verifies that primary and backup may be written to this
// image as they are, returning the image size.
func (img *Image) checkHeaderPair(primary, backup vgpt.Header) (int64, error) {

	if !backup.IsBackupOf(primary) || !primary.IsBackupOf(backup) {
		return 0, errors.Wrap(ErrInvalidImage, "headers are not backups of each other")
	}

	if primary.CurrentLBA != vgpt.PrimaryLBA {
		return 0, errors.Wrapf(ErrInvalidImage, "primary header has invalid current_lba %d", primary.CurrentLBA)
	}

	size, err := img.Size()
	if err != nil {
		return 0, err
	}

	lastLBA := uint64(size)/vgpt.SectorSize - 1
	if backup.CurrentLBA != lastLBA {
		return 0, errors.Wrapf(ErrInvalidImage, "backup header has invalid current_lba %d (expected %d)", backup.CurrentLBA, lastLBA)
	}

	return size, nil

}

// journaled runs write with the sectors at offsets saved to the journal
// first, if journaling is enabled. The journal is only removed once write
// succeeds.
func (img *Image) journaled(h Handle, size int64, offsets []int64, write func() error) error {

	var j *journal
	if img.journal != "" {
		var err error
		j, err = img.beginJournal(h, size, offsets...)
		if err != nil {
			return err
		}
	}

	err := write()
	if err != nil {
		if j != nil {
			img.log.Warnf("GPT of %s may be inconsistent, journal kept at %s", img.name, j.path)
		}
		return err
	}

	if j != nil {
		return j.commit()
	}

	return nil

}

// WriteGPTHeaders writes primary to LBA 1 and backup to the last LBA of the
// image, then syncs the image.
//
// The two writes are independent: if the process dies between them the
// headers will disagree. Enable the journal to be able to undo that.
func (img *Image) WriteGPTHeaders(primary, backup vgpt.Header) error {

	h, err := img.writable()
	if err != nil {
		return err
	}

	size, err := img.checkHeaderPair(primary, backup)
	if err != nil {
		return err
	}

	primaryOffset := int64(primary.CurrentLBA) * vgpt.SectorSize
	backupOffset := int64(backup.CurrentLBA) * vgpt.SectorSize

	err = img.journaled(h, size, []int64{primaryOffset, backupOffset}, func() error {
		return img.writeHeaderPair(h, primaryOffset, primary, backupOffset, backup)
	})
	if err != nil {
		return err
	}

	img.log.Debugf("wrote GPT headers to %s at offsets %d and %d", img.name, primaryOffset, backupOffset)

	return nil

}

func (img *Image) writeHeaderPair(h Handle, primaryOffset int64, primary vgpt.Header, backupOffset int64, backup vgpt.Header) error {

	err := vio.WriteFullAt(h, primaryOffset, primary.Encode())
	if err != nil {
		return errors.Wrap(err, "writing primary header")
	}

	err = vio.WriteFullAt(h, backupOffset, backup.Encode())
	if err != nil {
		return errors.Wrap(err, "writing backup header")
	}

	return img.sync(h)

}

// UpdateGUID replaces the disk GUID in both headers.
func (img *Image) UpdateGUID(g uuid.UUID) error {

	primary, backup, err := img.ReadGPTHeaders()
	if err != nil {
		return err
	}

	img.log.Debugf("changing disk GUID of %s from %s to %s", img.name, primary.DiskGUID, g)

	return img.WriteGPTHeaders(primary.WithNewGUID(g), backup.WithNewGUID(g))

}
