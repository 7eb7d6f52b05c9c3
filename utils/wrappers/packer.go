// Package wrappers provides the canonical binary encoding used for every
// consensus-critical key and value in this module: fixed-width integers in
// little-endian, lengths as varints, and enum discriminants as a single
// leading byte — matching §6's "Encoding" rules exactly.
package wrappers

import (
	"encoding/binary"
	"errors"
)

// IntLen is the encoded width of a packed int (32 bits).
const IntLen = 4

// LongLen is the encoded width of a packed long (64 bits).
const LongLen = 8

// ErrInvalidInput is returned by Unpacker methods when the remaining bytes
// are too short for the requested read.
var ErrInvalidInput = errors.New("packer: input does not match expected format")

// Packer accumulates a canonical byte encoding. The zero value is usable;
// Bytes may also be preallocated with a capacity hint the way
// snow/engine/common/queue's prefixedState does when it knows the exact
// encoded size up front.
type Packer struct {
	Bytes []byte
	Err   error
}

// PackByte appends a single byte, used for one-byte namespace prefixes and
// enum discriminants.
func (p *Packer) PackByte(b byte) {
	p.Bytes = append(p.Bytes, b)
}

// PackFixedBytes appends b verbatim (no length prefix) — used for
// fixed-width fields like IDs and hashes whose length is implied by the
// schema.
func (p *Packer) PackFixedBytes(b []byte) {
	p.Bytes = append(p.Bytes, b...)
}

// PackInt appends a little-endian uint32.
func (p *Packer) PackInt(v uint32) {
	var buf [IntLen]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	p.Bytes = append(p.Bytes, buf[:]...)
}

// PackLong appends a little-endian uint64.
func (p *Packer) PackLong(v uint64) {
	var buf [LongLen]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	p.Bytes = append(p.Bytes, buf[:]...)
}

// PackVarInt appends v as an unsigned LEB128 varint, used for the length
// prefix of variable-sized fields (byte slices, collections).
func (p *Packer) PackVarInt(v uint64) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	p.Bytes = append(p.Bytes, buf[:n]...)
}

// PackBytes appends a varint length followed by b, the canonical encoding of
// a variable-length byte field.
func (p *Packer) PackBytes(b []byte) {
	p.PackVarInt(uint64(len(b)))
	p.Bytes = append(p.Bytes, b...)
}

// Unpacker reads a canonical encoding produced by Packer.
type Unpacker struct {
	Bytes  []byte
	Offset int
	Err    error
}

func (u *Unpacker) fail() {
	if u.Err == nil {
		u.Err = ErrInvalidInput
	}
}

// UnpackByte reads a single byte.
func (u *Unpacker) UnpackByte() byte {
	if u.Err != nil || u.Offset+1 > len(u.Bytes) {
		u.fail()
		return 0
	}
	b := u.Bytes[u.Offset]
	u.Offset++
	return b
}

// UnpackFixedBytes reads exactly n bytes.
func (u *Unpacker) UnpackFixedBytes(n int) []byte {
	if u.Err != nil || u.Offset+n > len(u.Bytes) {
		u.fail()
		return nil
	}
	b := make([]byte, n)
	copy(b, u.Bytes[u.Offset:u.Offset+n])
	u.Offset += n
	return b
}

// UnpackInt reads a little-endian uint32.
func (u *Unpacker) UnpackInt() uint32 {
	b := u.UnpackFixedBytes(IntLen)
	if u.Err != nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// UnpackLong reads a little-endian uint64.
func (u *Unpacker) UnpackLong() uint64 {
	b := u.UnpackFixedBytes(LongLen)
	if u.Err != nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// UnpackVarInt reads an unsigned LEB128 varint.
func (u *Unpacker) UnpackVarInt() uint64 {
	if u.Err != nil {
		return 0
	}
	v, n := binary.Uvarint(u.Bytes[u.Offset:])
	if n <= 0 {
		u.fail()
		return 0
	}
	u.Offset += n
	return v
}

// UnpackBytes reads a varint length followed by that many bytes.
func (u *Unpacker) UnpackBytes() []byte {
	n := u.UnpackVarInt()
	if u.Err != nil {
		return nil
	}
	return u.UnpackFixedBytes(int(n))
}

// Done reports whether all input was consumed and no error occurred.
func (u *Unpacker) Done() bool {
	return u.Err == nil && u.Offset == len(u.Bytes)
}
