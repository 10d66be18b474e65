// Package value implements reldb's fixed value domain: the tagged
// U64/String/OptionU64/Opaque variant that every column, key, and row is
// built from, and its little-endian wire encoding.
package value

import (
	"encoding/binary"
	"fmt"

	"github.com/nainya/reldb/internal/dberr"
)

// Type tags a Value's variant.
type Type int

const (
	// U64 is a fixed-width 8-byte unsigned integer.
	U64 Type = iota
	// String is a variable-width UTF-8 byte string.
	String
	// OptionU64 is a fixed-width optional 8-byte unsigned integer.
	OptionU64
	// Opaque is a variable-width placeholder value of declared length,
	// serialized as a 2-byte length prefix followed by that many zero
	// bytes.
	Opaque
)

func (t Type) String() string {
	switch t {
	case U64:
		return "U64"
	case String:
		return "String"
	case OptionU64:
		return "OptionU64"
	case Opaque:
		return "Opaque"
	default:
		return "Unknown"
	}
}

// Fixed reports whether a Value of this Type has a compile-time-known
// fixed wire size.
func (t Type) Fixed() bool {
	return t == U64 || t == OptionU64
}

// Value is a tagged union over the four variants in the value domain.
// Only the field matching Typ is meaningful.
type Value struct {
	Typ    Type
	U64    uint64
	Str    string
	Opt    *uint64 // nil means absent, for OptionU64
	OpaqueLen uint16
}

// NewU64 builds a U64 value.
func NewU64(v uint64) Value { return Value{Typ: U64, U64: v} }

// NewString builds a String value.
func NewString(s string) Value { return Value{Typ: String, Str: s} }

// NewOptionU64 builds a present OptionU64 value.
func NewOptionU64(v uint64) Value {
	vv := v
	return Value{Typ: OptionU64, Opt: &vv}
}

// NewOptionU64Absent builds an absent OptionU64 value.
func NewOptionU64Absent() Value {
	return Value{Typ: OptionU64}
}

// NewOpaque builds an Opaque value of the given length.
func NewOpaque(length uint16) Value {
	return Value{Typ: Opaque, OpaqueLen: length}
}

// Size returns the wire size in bytes of this value.
func (v Value) Size() int {
	switch v.Typ {
	case U64:
		return 8
	case OptionU64:
		return 9
	case String:
		return 2 + len(v.Str)
	case Opaque:
		return 2 + int(v.OpaqueLen)
	default:
		return 0
	}
}

// Encode appends the little-endian wire encoding of v to dst and returns
// the extended slice.
func (v Value) Encode(dst []byte) []byte {
	switch v.Typ {
	case U64:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], v.U64)
		return append(dst, buf[:]...)
	case OptionU64:
		if v.Opt == nil {
			var buf [9]byte
			return append(dst, buf[:]...)
		}
		var buf [9]byte
		buf[0] = 1
		binary.LittleEndian.PutUint64(buf[1:], *v.Opt)
		return append(dst, buf[:]...)
	case String:
		var lenBuf [2]byte
		binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(v.Str)))
		dst = append(dst, lenBuf[:]...)
		return append(dst, v.Str...)
	case Opaque:
		var lenBuf [2]byte
		binary.LittleEndian.PutUint16(lenBuf[:], v.OpaqueLen)
		dst = append(dst, lenBuf[:]...)
		for i := uint16(0); i < v.OpaqueLen; i++ {
			dst = append(dst, 0)
		}
		return dst
	default:
		return dst
	}
}

// Decode reads one Value of the given Type from the front of src,
// returning the value and the remaining bytes.
func Decode(typ Type, src []byte) (Value, []byte, error) {
	switch typ {
	case U64:
		if len(src) < 8 {
			return Value{}, nil, dberr.New(dberr.Corruption, "value.Decode", "short U64 buffer")
		}
		return NewU64(binary.LittleEndian.Uint64(src[:8])), src[8:], nil
	case OptionU64:
		if len(src) < 9 {
			return Value{}, nil, dberr.New(dberr.Corruption, "value.Decode", "short OptionU64 buffer")
		}
		if src[0] == 0 {
			return NewOptionU64Absent(), src[9:], nil
		}
		return NewOptionU64(binary.LittleEndian.Uint64(src[1:9])), src[9:], nil
	case String:
		if len(src) < 2 {
			return Value{}, nil, dberr.New(dberr.Corruption, "value.Decode", "short String length prefix")
		}
		n := int(binary.LittleEndian.Uint16(src[:2]))
		if len(src) < 2+n {
			return Value{}, nil, dberr.New(dberr.Corruption, "value.Decode", "short String body")
		}
		return NewString(string(src[2 : 2+n])), src[2+n:], nil
	case Opaque:
		if len(src) < 2 {
			return Value{}, nil, dberr.New(dberr.Corruption, "value.Decode", "short Opaque length prefix")
		}
		n := int(binary.LittleEndian.Uint16(src[:2]))
		if len(src) < 2+n {
			return Value{}, nil, dberr.New(dberr.Corruption, "value.Decode", "short Opaque body")
		}
		return NewOpaque(uint16(n)), src[2+n:], nil
	default:
		return Value{}, nil, dberr.New(dberr.BadRequest, "value.Decode", fmt.Sprintf("unknown type %d", typ))
	}
}

// EncodeValues is the little-endian concatenation of the per-column
// encodings of vs in order, matching spec's key/value-column byte string
// definition.
func EncodeValues(vs []Value) []byte {
	out := make([]byte, 0, 16*len(vs))
	for _, v := range vs {
		out = v.Encode(out)
	}
	return out
}

// DecodeValues decodes a sequence of values from src against the given
// type list, in order. It errors if src has trailing or insufficient
// bytes.
func DecodeValues(types []Type, src []byte) ([]Value, error) {
	out := make([]Value, 0, len(types))
	rest := src
	for _, t := range types {
		var v Value
		var err error
		v, rest, err = Decode(t, rest)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if len(rest) != 0 {
		return nil, dberr.New(dberr.Corruption, "value.DecodeValues", "trailing bytes after decode")
	}
	return out, nil
}

// Compare orders two values of the same variant. It returns a
// TypeMismatch error if a and b are different variants — the source this
// was distilled from treated mixed-type comparison as undefined; this is
// the defined replacement the design calls for.
func Compare(a, b Value) (int, error) {
	if a.Typ != b.Typ {
		return 0, dberr.New(dberr.TypeMismatch, "value.Compare", fmt.Sprintf("%s vs %s", a.Typ, b.Typ))
	}
	switch a.Typ {
	case U64:
		switch {
		case a.U64 < b.U64:
			return -1, nil
		case a.U64 > b.U64:
			return 1, nil
		default:
			return 0, nil
		}
	case OptionU64:
		switch {
		case a.Opt == nil && b.Opt == nil:
			return 0, nil
		case a.Opt == nil:
			return -1, nil
		case b.Opt == nil:
			return 1, nil
		case *a.Opt < *b.Opt:
			return -1, nil
		case *a.Opt > *b.Opt:
			return 1, nil
		default:
			return 0, nil
		}
	case String:
		switch {
		case a.Str < b.Str:
			return -1, nil
		case a.Str > b.Str:
			return 1, nil
		default:
			return 0, nil
		}
	case Opaque:
		switch {
		case a.OpaqueLen < b.OpaqueLen:
			return -1, nil
		case a.OpaqueLen > b.OpaqueLen:
			return 1, nil
		default:
			return 0, nil
		}
	default:
		return 0, dberr.New(dberr.TypeMismatch, "value.Compare", "unknown variant")
	}
}

// Equal reports whether a and b are the same variant and value.
func Equal(a, b Value) bool {
	c, err := Compare(a, b)
	return err == nil && c == 0
}

// Increment returns the successor of an Enumerate counter value, leaving
// v unchanged: U64 and Opaque(length) increment numerically, OptionU64
// increments when present, String is an error.
func Increment(v Value) (Value, error) {
	switch v.Typ {
	case U64:
		return NewU64(v.U64 + 1), nil
	case OptionU64:
		if v.Opt == nil {
			return v, nil
		}
		return NewOptionU64(*v.Opt + 1), nil
	case Opaque:
		return NewOpaque(v.OpaqueLen + 1), nil
	case String:
		return Value{}, dberr.New(dberr.BadRequest, "value.Increment", "cannot enumerate a String column")
	default:
		return Value{}, dberr.New(dberr.BadRequest, "value.Increment", "unknown variant")
	}
}
