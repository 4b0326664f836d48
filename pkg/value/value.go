package value

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrWrongSize is returned when constructing a fixed-size Value from a byte
// slice whose length does not match the declared type's size.
var ErrWrongSize = errors.New("value: wrong byte size for type")

// Value is a (type, bytes) pair: the unit of data CANopen moves over SDO
// and PDO. Equality is by (type, bytes). For fixed-size types len(bytes)
// always equals the type's declared size; for the string types, length is
// intrinsic to the bytes themselves.
type Value struct {
	typ   Type
	bytes []byte
}

// FromBytes constructs a Value of the given type from raw little-endian
// bytes. Fails with ErrWrongSize if a fixed-size type's byte count doesn't
// match.
func FromBytes(t Type, data []byte) (Value, error) {
	if size, ok := t.Size(); ok && len(data) != size {
		return Value{}, fmt.Errorf("%w: %s wants %d bytes, got %d", ErrWrongSize, t, size, len(data))
	}
	out := make([]byte, len(data))
	copy(out, data)
	return Value{typ: t, bytes: out}, nil
}

// Zero returns the zero-filled Value for a fixed-size type, or an empty
// Value of type t for a variable-length or invalid type.
func Zero(t Type) Value {
	size, ok := t.Size()
	if !ok {
		size = 0
	}
	return Value{typ: t, bytes: make([]byte, size)}
}

func FromBool(b bool) Value {
	v := byte(0)
	if b {
		v = 1
	}
	return Value{typ: Boolean, bytes: []byte{v}}
}

func FromInt8(x int8) Value  { return Value{typ: Int8, bytes: []byte{byte(x)}} }
func FromUint8(x uint8) Value { return Value{typ: Uint8, bytes: []byte{x}} }

func FromInt16(x int16) Value {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(x))
	return Value{typ: Int16, bytes: b}
}

func FromUint16(x uint16) Value {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, x)
	return Value{typ: Uint16, bytes: b}
}

func FromInt32(x int32) Value {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(x))
	return Value{typ: Int32, bytes: b}
}

func FromUint32(x uint32) Value {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, x)
	return Value{typ: Uint32, bytes: b}
}

func FromInt64(x int64) Value {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(x))
	return Value{typ: Int64, bytes: b}
}

func FromUint64(x uint64) Value {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, x)
	return Value{typ: Uint64, bytes: b}
}

func FromReal32(x float32) Value {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(x))
	return Value{typ: Real32, bytes: b}
}

func FromReal64(x float64) Value {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(x))
	return Value{typ: Real64, bytes: b}
}

func FromVisibleString(s string) Value {
	return Value{typ: VisibleString, bytes: []byte(s)}
}

func FromOctetString(data []byte) Value {
	out := make([]byte, len(data))
	copy(out, data)
	return Value{typ: OctetString, bytes: out}
}

// Type returns the value's type tag.
func (v Value) Type() Type { return v.typ }

// IsValid reports whether the value has been populated (tag != Invalid).
func (v Value) IsValid() bool { return v.typ != Invalid }

// Bytes returns the canonical little-endian encoding of v. For every
// non-invalid value, FromBytes(v.Type(), v.Bytes()) round-trips to v.
func (v Value) Bytes() []byte {
	out := make([]byte, len(v.bytes))
	copy(out, v.bytes)
	return out
}

// Equal compares by (type, bytes).
func (v Value) Equal(other Value) bool {
	if v.typ != other.typ || len(v.bytes) != len(other.bytes) {
		return false
	}
	for i := range v.bytes {
		if v.bytes[i] != other.bytes[i] {
			return false
		}
	}
	return true
}

func (v Value) typeError(want Type) error {
	return fmt.Errorf("value: cannot read %s as %s", v.typ, want)
}

func (v Value) AsBool() (bool, error) {
	if v.typ != Boolean {
		return false, v.typeError(Boolean)
	}
	return v.bytes[0] != 0, nil
}

// AsInt64 widens any signed integer type to int64.
func (v Value) AsInt64() (int64, error) {
	switch v.typ {
	case Int8:
		return int64(int8(v.bytes[0])), nil
	case Int16:
		return int64(int16(binary.LittleEndian.Uint16(v.bytes))), nil
	case Int32:
		return int64(int32(binary.LittleEndian.Uint32(v.bytes))), nil
	case Int64:
		return int64(binary.LittleEndian.Uint64(v.bytes)), nil
	default:
		return 0, v.typeError(Int64)
	}
}

// AsUint64 widens any unsigned integer type (and Boolean) to uint64.
func (v Value) AsUint64() (uint64, error) {
	switch v.typ {
	case Boolean, Uint8:
		return uint64(v.bytes[0]), nil
	case Uint16:
		return uint64(binary.LittleEndian.Uint16(v.bytes)), nil
	case Uint32:
		return uint64(binary.LittleEndian.Uint32(v.bytes)), nil
	case Uint64:
		return binary.LittleEndian.Uint64(v.bytes), nil
	default:
		return 0, v.typeError(Uint64)
	}
}

func (v Value) AsFloat32() (float32, error) {
	if v.typ != Real32 {
		return 0, v.typeError(Real32)
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(v.bytes)), nil
}

func (v Value) AsFloat64() (float64, error) {
	switch v.typ {
	case Real32:
		f, err := v.AsFloat32()
		return float64(f), err
	case Real64:
		return math.Float64frombits(binary.LittleEndian.Uint64(v.bytes)), nil
	default:
		return 0, v.typeError(Real64)
	}
}

func (v Value) AsString() (string, error) {
	if v.typ != VisibleString {
		return "", v.typeError(VisibleString)
	}
	return string(v.bytes), nil
}

func (v Value) AsOctets() ([]byte, error) {
	if v.typ != OctetString {
		return nil, v.typeError(OctetString)
	}
	return v.Bytes(), nil
}

func (v Value) String() string {
	switch v.typ {
	case Invalid:
		return "<invalid>"
	case Boolean:
		b, _ := v.AsBool()
		return fmt.Sprintf("%v", b)
	case Int8, Int16, Int32, Int64:
		i, _ := v.AsInt64()
		return fmt.Sprintf("%d", i)
	case Uint8, Uint16, Uint32, Uint64:
		u, _ := v.AsUint64()
		return fmt.Sprintf("%d", u)
	case Real32, Real64:
		f, _ := v.AsFloat64()
		return fmt.Sprintf("%g", f)
	case VisibleString:
		s, _ := v.AsString()
		return s
	case OctetString:
		return fmt.Sprintf("% x", v.bytes)
	default:
		return fmt.Sprintf("%s(% x)", v.typ, v.bytes)
	}
}
