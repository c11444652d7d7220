package imagetools

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"fmt"

	"github.com/cloudfoundry/bytefmt"
	"github.com/pkg/errors"

	"github.com/vorteil/gptguid/pkg/vgpt"
	"github.com/vorteil/gptguid/pkg/vimg"
)

// ImageGPTReport : Info on an image's primary and backup GPT headers
type ImageGPTReport struct {
	Image     string           `yaml:"image" json:"image"`
	Bytes     int64            `yaml:"bytes" json:"bytes"`
	Size      string           `yaml:"size" json:"size"`
	Primary   *GPTHeaderReport `yaml:"primary,omitempty" json:"primary,omitempty"`
	Backup    *GPTHeaderReport `yaml:"backup,omitempty" json:"backup,omitempty"`
	Valid     bool             `yaml:"valid" json:"valid"`
	Problems  []string         `yaml:"problems,omitempty" json:"problems,omitempty"`
	Journaled bool             `yaml:"journaled" json:"journaled"`
}

// GPTHeaderReport : Info on a single GPT header
type GPTHeaderReport struct {
	CurrentLBA      uint64 `yaml:"current-lba" json:"currentLBA"`
	BackupLBA       uint64 `yaml:"backup-lba" json:"backupLBA"`
	FirstUsableLBA  uint64 `yaml:"first-usable-lba" json:"firstUsableLBA"`
	LastUsableLBA   uint64 `yaml:"last-usable-lba" json:"lastUsableLBA"`
	DiskGUID        string `yaml:"disk-guid" json:"diskGUID"`
	FirstEntriesLBA uint64 `yaml:"first-entries-lba" json:"firstEntriesLBA"`
	Entries         uint32 `yaml:"entries" json:"entries"`
	EntrySize       uint32 `yaml:"entry-size" json:"entrySize"`
	EntriesCRC32    string `yaml:"entries-crc32" json:"entriesCRC32"`
	UsableSize      string `yaml:"usable-size" json:"usableSize"`
}

func headerReport(h vgpt.Header) *GPTHeaderReport {

	report := &GPTHeaderReport{
		CurrentLBA:      h.CurrentLBA,
		BackupLBA:       h.BackupLBA,
		FirstUsableLBA:  h.FirstUsableLBA,
		LastUsableLBA:   h.LastUsableLBA,
		DiskGUID:        h.DiskGUID.String(),
		FirstEntriesLBA: h.EntriesStartingLBA,
		Entries:         h.NumEntries,
		EntrySize:       h.EntrySize,
		EntriesCRC32:    fmt.Sprintf("0x%08x", h.EntriesCRC32),
		UsableSize:      "0B",
	}

	if h.LastUsableLBA >= h.FirstUsableLBA {
		report.UsableSize = bytefmt.ByteSize((h.LastUsableLBA - h.FirstUsableLBA + 1) * vgpt.SectorSize)
	}

	return report

}

var decodeErrors = []error{
	vgpt.ErrInvalidSize,
	vgpt.ErrInvalidSignature,
	vgpt.ErrUnsupportedRevision,
	vgpt.ErrInvalidHeaderSize,
	vgpt.ErrInvalidField,
	vgpt.ErrChecksumMismatch,
}

// isDecodeError reports whether err describes a malformed header rather
// than a failure to read one.
func isDecodeError(err error) bool {
	for _, kind := range decodeErrors {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// ImageGPT returns a summary of both GPT headers of an image. Malformed or
// mismatched headers are listed as problems in the report; only failures to
// access the image are returned as errors.
func ImageGPT(img *vimg.Image) (ImageGPTReport, error) {

	var report ImageGPTReport
	report.Image = img.Name()

	size, err := img.Size()
	if err != nil {
		return report, err
	}

	report.Bytes = size
	report.Size = bytefmt.ByteSize(uint64(size))
	report.Journaled = img.HasJournal()

	primary, err := img.ReadPrimaryGPTHeader()
	switch {
	case err == nil:
		report.Primary = headerReport(primary)
	case isDecodeError(err):
		report.Problems = append(report.Problems, fmt.Sprintf("primary header: %v", err))
	default:
		return report, err
	}

	backup, err := img.ReadBackupGPTHeader()
	switch {
	case err == nil:
		report.Backup = headerReport(backup)
	case isDecodeError(err):
		report.Problems = append(report.Problems, fmt.Sprintf("backup header: %v", err))
	default:
		return report, err
	}

	if report.Primary != nil && report.Backup != nil {
		err = img.Validate()
		if err != nil {
			report.Problems = append(report.Problems, err.Error())
		}
	}

	report.Valid = len(report.Problems) == 0

	return report, nil

}
