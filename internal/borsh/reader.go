// Package borsh reads and writes the subset of the Borsh binary format used by
// NEAR contract state: little-endian integers, length-prefixed strings and byte
// vectors, options and enum tags.
package borsh

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/holiman/uint256"
)

var (
	ErrUnexpectedEOF = errors.New("borsh: unexpected end of input")
	ErrTrailingBytes = errors.New("borsh: not all bytes read")
	ErrInvalidOption = errors.New("borsh: invalid option tag")
	ErrInvalidUTF8   = errors.New("borsh: string is not valid utf-8")
)

type Reader struct {
	buf []byte
	off int
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) next(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, fmt.Errorf("%w at offset %d (need %d bytes, have %d)", ErrUnexpectedEOF, r.off, n, r.Remaining())
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) U8() (uint8, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) U32() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) U64() (uint64, error) {
	b, err := r.next(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// U128 reads a little-endian unsigned 128-bit integer.
func (r *Reader) U128() (*uint256.Int, error) {
	b, err := r.next(16)
	if err != nil {
		return nil, err
	}
	lo := binary.LittleEndian.Uint64(b[:8])
	hi := binary.LittleEndian.Uint64(b[8:])
	return &uint256.Int{lo, hi, 0, 0}, nil
}

// Bytes reads a u32 length-prefixed byte vector. The result is a copy.
func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	if uint64(n) > uint64(r.Remaining()) {
		return nil, fmt.Errorf("%w at offset %d (vector of %d bytes)", ErrUnexpectedEOF, r.off, n)
	}
	b, err := r.next(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (r *Reader) Str() (string, error) {
	b, err := r.Bytes()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

// Option reads an option tag and reports whether a value follows.
func (r *Reader) Option() (bool, error) {
	tag, err := r.U8()
	if err != nil {
		return false, err
	}
	switch tag {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w %d at offset %d", ErrInvalidOption, tag, r.off-1)
	}
}

// OptionU64 reads an Option<u64>.
func (r *Reader) OptionU64() (*uint64, error) {
	some, err := r.Option()
	if err != nil || !some {
		return nil, err
	}
	v, err := r.U64()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Finish fails if unread bytes remain.
func (r *Reader) Finish() error {
	if n := r.Remaining(); n > 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrTrailingBytes, n)
	}
	return nil
}
