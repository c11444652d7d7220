package vio

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"io"

	"github.com/pkg/errors"
)

// ReadFullAt reads exactly n bytes from r starting at offset off. A single
// ReadAt may transfer fewer bytes than asked for without failing, so the
// remainder is requested again from where the last fragment ended until the
// whole range has arrived.
//
// If r hits the end of its data first the error wraps io.ErrUnexpectedEOF. A
// ReadAt that returns no data and no error yields io.ErrNoProgress.
func ReadFullAt(r io.ReaderAt, off int64, n int) ([]byte, error) {

	buf := make([]byte, n)

	var k int
	for k < n {
		x, err := r.ReadAt(buf[k:], off+int64(k))
		k += x
		if k == n {
			// io.ReaderAt may report io.EOF alongside the final fragment
			break
		}

		if err == io.EOF {
			return nil, errors.Wrapf(io.ErrUnexpectedEOF, "read %d of %d bytes at offset %d", k, n, off)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading %d bytes at offset %d", n, off)
		}
		if x == 0 {
			return nil, errors.Wrapf(io.ErrNoProgress, "reading %d bytes at offset %d", n, off)
		}
	}

	return buf, nil

}

// WriteFullAt writes all of p to w starting at offset off, resubmitting
// whatever a single WriteAt did not accept. A WriteAt that accepts nothing and
// reports no error yields io.ErrShortWrite.
func WriteFullAt(w io.WriterAt, off int64, p []byte) error {

	var k int
	for k < len(p) {
		x, err := w.WriteAt(p[k:], off+int64(k))
		k += x
		if err != nil {
			return errors.Wrapf(err, "writing %d bytes at offset %d", len(p), off)
		}
		if x == 0 {
			return errors.Wrapf(io.ErrShortWrite, "wrote %d of %d bytes at offset %d", k, len(p), off)
		}
	}

	return nil

}
