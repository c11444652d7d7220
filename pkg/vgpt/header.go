package vgpt

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Header is the semantic content of a GUID Partition Table header. The
// signature, revision, header size, reserved field and padding are constants
// of the wire format and are not represented.
//
// Header is a value: derive modified copies with WithNewGUID rather than
// assigning to the fields of a header that has been read from an image.
type Header struct {
	CurrentLBA         uint64
	BackupLBA          uint64
	FirstUsableLBA     uint64
	LastUsableLBA      uint64
	DiskGUID           uuid.UUID
	EntriesStartingLBA uint64
	NumEntries         uint32
	EntrySize          uint32
	EntriesCRC32       uint32
}

// rawHeader is the structure of a GPT header as it appears on disk.
type rawHeader struct {
	Signature      [8]byte
	Revision       [4]byte
	HeaderSize     uint32
	CRC            uint32
	Reserved       uint32
	CurrentLBA     uint64
	BackupLBA      uint64
	FirstUsableLBA uint64
	LastUsableLBA  uint64
	GUID           [16]byte
	StartLBAParts  uint64
	NoOfParts      uint32
	SizePartEntry  uint32
	CRCParts       uint32
	Padding        [PaddingSize]byte
}

// Checksum computes the CRC32 of the first HeaderSize bytes of block, with
// the checksum field itself treated as zero.
func Checksum(block []byte) uint32 {
	hdr := make([]byte, HeaderSize)
	copy(hdr, block)
	copy(hdr[ChecksumOffset:ChecksumOffset+4], []byte{0, 0, 0, 0})
	return crc32.ChecksumIEEE(hdr)
}

func isZero(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

// Decode parses and validates a 512-byte GPT header block.
func Decode(block []byte) (Header, error) {

	if len(block) != SectorSize {
		return Header{}, errors.Wrapf(ErrInvalidSize, "got %d bytes, expected %d", len(block), SectorSize)
	}

	raw := new(rawHeader)
	err := binary.Read(bytes.NewReader(block), binary.LittleEndian, raw)
	if err != nil {
		return Header{}, errors.Wrap(ErrInvalidSize, err.Error())
	}

	if raw.Signature != Signature {
		return Header{}, errors.Wrapf(ErrInvalidSignature, "got %q", raw.Signature[:])
	}

	if raw.Revision != Revision {
		return Header{}, errors.Wrapf(ErrUnsupportedRevision, "got % x", raw.Revision[:])
	}

	if raw.HeaderSize != HeaderSize {
		return Header{}, errors.Wrapf(ErrInvalidHeaderSize, "got %d, expected %d", raw.HeaderSize, HeaderSize)
	}

	if raw.Reserved != 0 {
		return Header{}, errors.Wrapf(ErrInvalidField, "reserved field is %#x", raw.Reserved)
	}

	if !isZero(raw.Padding[:]) {
		return Header{}, errors.Wrap(ErrInvalidField, "padding is not zeroed")
	}

	crc := Checksum(block)
	if crc != raw.CRC {
		return Header{}, errors.Wrapf(ErrChecksumMismatch, "computed %#08x, header has %#08x", crc, raw.CRC)
	}

	return Header{
		CurrentLBA:         raw.CurrentLBA,
		BackupLBA:          raw.BackupLBA,
		FirstUsableLBA:     raw.FirstUsableLBA,
		LastUsableLBA:      raw.LastUsableLBA,
		DiskGUID:           GUIDFromBytes(raw.GUID),
		EntriesStartingLBA: raw.StartLBAParts,
		NumEntries:         raw.NoOfParts,
		EntrySize:          raw.SizePartEntry,
		EntriesCRC32:       raw.CRCParts,
	}, nil

}

func (h Header) marshal() []byte {

	raw := rawHeader{
		Signature:      Signature,
		Revision:       Revision,
		HeaderSize:     HeaderSize,
		CurrentLBA:     h.CurrentLBA,
		BackupLBA:      h.BackupLBA,
		FirstUsableLBA: h.FirstUsableLBA,
		LastUsableLBA:  h.LastUsableLBA,
		GUID:           GUIDToBytes(h.DiskGUID),
		StartLBAParts:  h.EntriesStartingLBA,
		NoOfParts:      h.NumEntries,
		SizePartEntry:  h.EntrySize,
		CRCParts:       h.EntriesCRC32,
	}

	buf := new(bytes.Buffer)
	buf.Grow(SectorSize)
	_ = binary.Write(buf, binary.LittleEndian, &raw)

	return buf.Bytes()

}

// Encode serializes the header into a 512-byte block, computing and embedding
// the header checksum.
func (h Header) Encode() []byte {
	block := h.marshal()
	binary.LittleEndian.PutUint32(block[ChecksumOffset:], Checksum(block))
	return block
}

// EncodeWithChecksum serializes the header into a 512-byte block, embedding crc
// verbatim instead of computing it. It exists to reproduce externally captured
// header bytes exactly.
func (h Header) EncodeWithChecksum(crc uint32) []byte {
	block := h.marshal()
	binary.LittleEndian.PutUint32(block[ChecksumOffset:], crc)
	return block
}

// IsBackupOf reports whether h describes the counterpart of other: LBAs
// swapped and everything else identical. Callers must check both directions.
func (h Header) IsBackupOf(other Header) bool {
	return h.CurrentLBA == other.BackupLBA &&
		h.BackupLBA == other.CurrentLBA &&
		h.FirstUsableLBA == other.FirstUsableLBA &&
		h.LastUsableLBA == other.LastUsableLBA &&
		h.DiskGUID == other.DiskGUID &&
		h.NumEntries == other.NumEntries &&
		h.EntrySize == other.EntrySize &&
		h.EntriesCRC32 == other.EntriesCRC32
}

// WithNewGUID returns a copy of h with only the disk GUID replaced. The
// entries checksum does not cover the disk GUID and is left alone.
func (h Header) WithNewGUID(g uuid.UUID) Header {
	h.DiskGUID = g
	return h
}

// Backup derives the header that belongs at the other end of the disk,
// with its partition-entry array starting at entriesLBA.
func (h Header) Backup(entriesLBA uint64) Header {
	b := h
	b.CurrentLBA, b.BackupLBA = h.BackupLBA, h.CurrentLBA
	b.EntriesStartingLBA = entriesLBA
	return b
}
