package vgpt

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// GUIDToBytes converts a GUID into the mixed-endian form stored on disk: the
// first three groups are little-endian, the trailing eight bytes are copied
// as they are.
func GUIDToBytes(g uuid.UUID) [16]byte {
	var b [16]byte
	b[0], b[1], b[2], b[3] = g[3], g[2], g[1], g[0]
	b[4], b[5] = g[5], g[4]
	b[6], b[7] = g[7], g[6]
	copy(b[8:], g[8:])
	return b
}

// GUIDFromBytes is the inverse of GUIDToBytes.
func GUIDFromBytes(b [16]byte) uuid.UUID {
	var g uuid.UUID
	g[0], g[1], g[2], g[3] = b[3], b[2], b[1], b[0]
	g[4], g[5] = b[5], b[4]
	g[6], g[7] = b[7], b[6]
	copy(g[8:], b[8:])
	return g
}

// ParseGUID parses the canonical textual form of a GUID.
func ParseGUID(s string) (uuid.UUID, error) {
	g, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, errors.Wrapf(err, "invalid GUID '%s'", s)
	}
	return g, nil
}
