//go:build !linux
// +build !linux

package vimg

import (
	"os"
)

func checkSectorSize(f *os.File) error {
	return nil
}
