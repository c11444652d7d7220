package vio

import (
	"io"
)

type zeroesReader struct {
}

func (rdr *zeroesReader) Read(p []byte) (n int, err error) {

	if len(p) == 0 {
		return
	}
	p[0] = 0
	for bp := 1; bp < len(p); bp *= 2 {
		copy(p[bp:], p[:bp])
	}

	return len(p), nil
}

// Zeroes is an endless source of zero bytes.
var Zeroes = io.Reader(&zeroesReader{})
