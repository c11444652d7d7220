//go:build linux
// +build linux

package vimg

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/vorteil/gptguid/pkg/vgpt"
)

// checkSectorSize refuses block devices whose logical sectors are not the
// 512 bytes every LBA calculation here assumes.
func checkSectorSize(f *os.File) error {

	fi, err := f.Stat()
	if err != nil {
		return err
	}

	mode := fi.Mode()
	if mode&os.ModeDevice == 0 || mode&os.ModeCharDevice != 0 {
		return nil
	}

	sectorSize, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKSSZGET)
	if err != nil {
		return errors.Wrapf(err, "querying sector size of %s", f.Name())
	}

	if sectorSize != vgpt.SectorSize {
		return errors.Wrapf(ErrInvalidImage, "%s has %d byte sectors, only %d is supported", f.Name(), sectorSize, vgpt.SectorSize)
	}

	return nil

}
