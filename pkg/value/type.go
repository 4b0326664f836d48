// Package value implements the typed value abstraction shared by the
// object dictionary, the SDO engine and the PDO mapping layer: a tagged
// union over the CANopen primitive types with byte-level round trip,
// encoded little-endian per CANopen convention.
package value

import "fmt"

// Type is a tag from the closed CANopen primitive type enumeration. Values
// follow the CiA 301 object dictionary data type codes.
type Type uint8

const (
	Invalid Type = 0x00
	Boolean Type = 0x01
	Int8    Type = 0x02
	Int16   Type = 0x03
	Int32   Type = 0x04
	Int64   Type = 0x15
	Uint8   Type = 0x05
	Uint16  Type = 0x06
	Uint32  Type = 0x07
	Uint64  Type = 0x1B
	Real32  Type = 0x08
	Real64  Type = 0x11

	VisibleString Type = 0x09
	OctetString   Type = 0x0A
)

// sizes holds the fixed wire size, in bytes, of every non-variable-length
// type. String types are absent: their length is intrinsic to the bytes.
var sizes = map[Type]int{
	Boolean: 1,
	Int8:    1,
	Uint8:   1,
	Int16:   2,
	Uint16:  2,
	Int32:   4,
	Uint32:  4,
	Real32:  4,
	Int64:   8,
	Uint64:  8,
	Real64:  8,
}

var names = map[Type]string{
	Invalid:       "invalid",
	Boolean:       "boolean",
	Int8:          "int8",
	Int16:         "int16",
	Int32:         "int32",
	Int64:         "int64",
	Uint8:         "uint8",
	Uint16:        "uint16",
	Uint32:        "uint32",
	Uint64:        "uint64",
	Real32:        "real32",
	Real64:        "real64",
	VisibleString: "visible_string",
	OctetString:   "octet_string",
}

// IsVariableLength reports whether t's byte length is intrinsic to the
// value rather than fixed by the type (the two string types).
func (t Type) IsVariableLength() bool {
	return t == VisibleString || t == OctetString
}

// Size returns the fixed wire size of t, or (0, false) for Invalid or a
// variable-length type.
func (t Type) Size() (int, bool) {
	n, ok := sizes[t]
	return n, ok
}

func (t Type) String() string {
	if name, ok := names[t]; ok {
		return name
	}
	return fmt.Sprintf("type(0x%02x)", uint8(t))
}
