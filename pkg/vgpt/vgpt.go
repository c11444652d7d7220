// Package vgpt encodes, decodes and validates GUID Partition Table headers.
// It performs no I/O: see package vimg for reading and writing headers on a
// disk image.
package vgpt

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"github.com/pkg/errors"
)

// Various format constants.
const (
	SectorSize      = 512
	HeaderSize      = 92
	PaddingSize     = SectorSize - HeaderSize
	ChecksumOffset  = 16
	GUIDOffset      = 56
	PrimaryLBA      = 1
	MinimumSectors  = 3 // protective MBR + primary header + backup header
	MinimumDiskSize = MinimumSectors * SectorSize
)

var (
	// Signature is the magic number at the start of every GPT header.
	Signature = [8]byte{'E', 'F', 'I', ' ', 'P', 'A', 'R', 'T'}

	// Revision is the only supported header revision (1.0).
	Revision = [4]byte{0x00, 0x00, 0x01, 0x00}
)

// Decoding errors. Each failure mode wraps exactly one of these so that
// callers can tell them apart with errors.Is.
var (
	ErrInvalidSize         = errors.New("invalid header block size")
	ErrInvalidSignature    = errors.New("invalid GPT signature")
	ErrUnsupportedRevision = errors.New("unsupported GPT revision")
	ErrInvalidHeaderSize   = errors.New("invalid GPT header size")
	ErrInvalidField        = errors.New("invalid GPT header field")
	ErrChecksumMismatch    = errors.New("GPT header checksum mismatch")
)
