package vimg

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/vorteil/gptguid/pkg/vgpt"
	"github.com/vorteil/gptguid/pkg/vio"
)

// Various layout constants for tables created by Initialize.
const (
	MaximumGPTEntries = 128
	GPTEntrySize      = 128
	GPTEntriesSectors = MaximumGPTEntries * GPTEntrySize / vgpt.SectorSize
	PrimaryEntriesLBA = vgpt.PrimaryLBA + 1
	FirstUsableLBA    = PrimaryEntriesLBA + GPTEntriesSectors

	// protective MBR + primary header and entries + one usable sector +
	// backup entries and header
	MinimumInitializeSectors = FirstUsableLBA + 1 + GPTEntriesSectors + 1
)

// ProtectiveMBR is the structure of a protective master boot record as it appears on disk.
type ProtectiveMBR struct {
	Bootloader    [446]byte
	Status        byte
	FirstCHS      [3]byte
	PartitionType byte
	LastCHS       [3]byte
	FirstLBA      uint32
	TotalSectors  uint32
	_             [48]byte
	MagicNumber   [2]byte
}

func protectiveMBR(sectors uint64) []byte {

	total := sectors - 1
	if total > 0xFFFFFFFF {
		total = 0xFFFFFFFF
	}

	mbr := ProtectiveMBR{
		FirstCHS:      [3]byte{0x00, 0x02, 0x00},
		PartitionType: 0xEE,
		LastCHS:       [3]byte{0xFF, 0xFF, 0xFF},
		FirstLBA:      vgpt.PrimaryLBA,
		TotalSectors:  uint32(total),
		MagicNumber:   [2]byte{0x55, 0xAA},
	}

	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, &mbr)

	return buf.Bytes()

}

// emptyEntriesCRC is the checksum of a partition-entry array with every slot
// unused.
func emptyEntriesCRC() uint32 {
	crc := crc32.NewIEEE()
	_, _ = io.CopyN(crc, vio.Zeroes, MaximumGPTEntries*GPTEntrySize)
	return crc.Sum32()
}

// sectorOffsets returns the byte offsets of count sectors starting at lba.
func sectorOffsets(lba uint64, count int) []int64 {
	offsets := make([]int64, count)
	for i := range offsets {
		offsets[i] = int64(lba+uint64(i)) * vgpt.SectorSize
	}
	return offsets
}

// Initialize writes a protective MBR and an empty GUID Partition Table with
// disk GUID g across the whole image, replacing whatever was there. With the
// journal enabled every sector it overwrites is saved first, so Recover can
// undo an interrupted Initialize completely.
func (img *Image) Initialize(g uuid.UUID) error {

	h, err := img.writable()
	if err != nil {
		return err
	}

	size, err := img.Size()
	if err != nil {
		return err
	}

	sectors := uint64(size) / vgpt.SectorSize
	if sectors < MinimumInitializeSectors {
		return errors.Wrapf(ErrInvalidImage, "%s is too small for a partition table (%d sectors, need %d)", img.name, sectors, MinimumInitializeSectors)
	}

	lastLBA := sectors - 1
	backupEntriesLBA := lastLBA - GPTEntriesSectors

	primary := vgpt.Header{
		CurrentLBA:         vgpt.PrimaryLBA,
		BackupLBA:          lastLBA,
		FirstUsableLBA:     FirstUsableLBA,
		LastUsableLBA:      backupEntriesLBA - 1,
		DiskGUID:           g,
		EntriesStartingLBA: PrimaryEntriesLBA,
		NumEntries:         MaximumGPTEntries,
		EntrySize:          GPTEntrySize,
		EntriesCRC32:       emptyEntriesCRC(),
	}

	backup := primary.Backup(backupEntriesLBA)

	_, err = img.checkHeaderPair(primary, backup)
	if err != nil {
		return err
	}

	// MBR, primary header and entries, then backup entries and header
	offsets := sectorOffsets(0, FirstUsableLBA)
	offsets = append(offsets, sectorOffsets(backupEntriesLBA, GPTEntriesSectors+1)...)

	primaryOffset := int64(vgpt.PrimaryLBA) * vgpt.SectorSize
	backupOffset := int64(lastLBA) * vgpt.SectorSize

	err = img.journaled(h, size, offsets, func() error {

		err := vio.WriteFullAt(h, 0, protectiveMBR(sectors))
		if err != nil {
			return errors.Wrap(err, "writing protective MBR")
		}

		entries := make([]byte, MaximumGPTEntries*GPTEntrySize)

		err = vio.WriteFullAt(h, PrimaryEntriesLBA*vgpt.SectorSize, entries)
		if err != nil {
			return errors.Wrap(err, "writing primary GPT entries")
		}

		err = vio.WriteFullAt(h, int64(backupEntriesLBA)*vgpt.SectorSize, entries)
		if err != nil {
			return errors.Wrap(err, "writing backup GPT entries")
		}

		return img.writeHeaderPair(h, primaryOffset, primary, backupOffset, backup)
	})
	if err != nil {
		return err
	}

	img.log.Debugf("initialized empty GPT on %s (%d sectors)", img.name, sectors)

	return nil

}
