package borsh

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	var w Writer
	ts := uint64(1_602_614_338_293_769_340)
	amount := new(uint256.Int).Lsh(uint256.NewInt(1), 127)
	w.U8(3)
	w.U64(ts)
	w.U128(amount)
	w.Str("owner.near")
	w.OptionU64(nil)
	w.OptionU64(&ts)
	w.ByteVec([]byte{0xde, 0xad})

	r := NewReader(w.Bytes())
	tag, err := r.U8()
	require.NoError(t, err)
	require.Equal(t, uint8(3), tag)
	got, err := r.U64()
	require.NoError(t, err)
	require.Equal(t, ts, got)
	u, err := r.U128()
	require.NoError(t, err)
	require.True(t, u.Eq(amount))
	s, err := r.Str()
	require.NoError(t, err)
	require.Equal(t, "owner.near", s)
	none, err := r.OptionU64()
	require.NoError(t, err)
	require.Nil(t, none)
	some, err := r.OptionU64()
	require.NoError(t, err)
	require.Equal(t, ts, *some)
	b, err := r.Bytes()
	require.NoError(t, err)
	require.Equal(t, []byte{0xde, 0xad}, b)
	require.NoError(t, r.Finish())
}

func TestReaderErrors(t *testing.T) {
	_, err := NewReader([]byte{1, 2, 3}).U64()
	require.ErrorIs(t, err, ErrUnexpectedEOF)

	// length prefix larger than the remaining input
	_, err = NewReader([]byte{0xff, 0xff, 0xff, 0xff, 'a'}).Bytes()
	require.ErrorIs(t, err, ErrUnexpectedEOF)

	_, err = NewReader([]byte{2}).Option()
	require.ErrorIs(t, err, ErrInvalidOption)

	_, err = NewReader([]byte{1, 0, 0, 0, 0xff}).Str()
	require.ErrorIs(t, err, ErrInvalidUTF8)

	r := NewReader([]byte{7, 8})
	_, err = r.U8()
	require.NoError(t, err)
	require.ErrorIs(t, r.Finish(), ErrTrailingBytes)
}
