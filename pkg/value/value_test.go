package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromBytesRoundTrip(t *testing.T) {
	v, err := FromBytes(Uint32, []byte{0x92, 0x01, 0x02, 0x00})
	require.NoError(t, err)
	u, err := v.AsUint64()
	require.NoError(t, err)
	assert.EqualValues(t, 0x00020192, u)
	assert.Equal(t, []byte{0x92, 0x01, 0x02, 0x00}, v.Bytes())
}

func TestFromBytesWrongSize(t *testing.T) {
	_, err := FromBytes(Uint32, []byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrWrongSize)
}

func TestScalarRoundTrips(t *testing.T) {
	cases := []struct {
		name string
		v    Value
	}{
		{"int8", FromInt8(-5)},
		{"uint8", FromUint8(200)},
		{"int16", FromInt16(-1000)},
		{"uint16", FromUint16(1000)},
		{"int32", FromInt32(-100000)},
		{"uint32", FromUint32(100000)},
		{"int64", FromInt64(-1 << 40)},
		{"uint64", FromUint64(1 << 40)},
		{"real32", FromReal32(3.5)},
		{"real64", FromReal64(3.5)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decoded, err := FromBytes(tc.v.Type(), tc.v.Bytes())
			require.NoError(t, err)
			assert.True(t, tc.v.Equal(decoded))
		})
	}
}

func TestEqualityByTypeAndBytes(t *testing.T) {
	a := FromUint16(1000)
	b := FromUint16(1000)
	c := FromUint16(1001)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestStringTypes(t *testing.T) {
	s := FromVisibleString("hello")
	str, err := s.AsString()
	require.NoError(t, err)
	assert.Equal(t, "hello", str)

	o := FromOctetString([]byte{1, 2, 3})
	octets, err := o.AsOctets()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, octets)
}

func TestWrongTypeAccess(t *testing.T) {
	v := FromUint16(5)
	_, err := v.AsFloat32()
	assert.Error(t, err)
}

func TestInvalidValueIsNotValid(t *testing.T) {
	var v Value
	assert.False(t, v.IsValid())
	assert.Equal(t, Invalid, v.Type())
}

func TestFloat32Bits(t *testing.T) {
	v := FromReal32(1.5)
	f, err := v.AsFloat32()
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), f)
	assert.InDelta(t, math.Float32bits(1.5), uint32(v.Bytes()[0])|uint32(v.Bytes()[1])<<8|uint32(v.Bytes()[2])<<16|uint32(v.Bytes()[3])<<24, 0)
}
