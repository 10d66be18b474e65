package value

import (
	"testing"

	"github.com/nainya/reldb/internal/dberr"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		typ  Type
		v    Value
	}{
		{"u64", U64, NewU64(42)},
		{"u64-zero", U64, NewU64(0)},
		{"string", String, NewString("hello")},
		{"string-empty", String, NewString("")},
		{"option-present", OptionU64, NewOptionU64(7)},
		{"option-absent", OptionU64, NewOptionU64Absent()},
		{"opaque", Opaque, NewOpaque(12)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := tt.v.Encode(nil)
			if len(enc) != tt.v.Size() {
				t.Fatalf("Size() = %d, encoded length = %d", tt.v.Size(), len(enc))
			}
			dec, rest, err := Decode(tt.typ, enc)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if len(rest) != 0 {
				t.Fatalf("expected no trailing bytes, got %d", len(rest))
			}
			if !Equal(dec, tt.v) {
				t.Fatalf("round trip mismatch: got %+v, want %+v", dec, tt.v)
			}
		})
	}
}

func TestEncodeValuesOrder(t *testing.T) {
	row := []Value{NewU64(1), NewString("a"), NewOptionU64(9)}
	enc := EncodeValues(row)
	decoded, err := DecodeValues([]Type{U64, String, OptionU64}, enc)
	if err != nil {
		t.Fatalf("DecodeValues: %v", err)
	}
	for i := range row {
		if !Equal(decoded[i], row[i]) {
			t.Fatalf("column %d mismatch: got %+v, want %+v", i, decoded[i], row[i])
		}
	}
}

func TestCompareTypeMismatch(t *testing.T) {
	_, err := Compare(NewU64(1), NewString("1"))
	if code, ok := dberr.CodeOf(err); !ok || code != dberr.TypeMismatch {
		t.Fatalf("expected TypeMismatch, got %v", err)
	}
}

func TestCompareOrdering(t *testing.T) {
	if c, err := Compare(NewU64(1), NewU64(2)); err != nil || c >= 0 {
		t.Fatalf("expected 1 < 2, got %d, %v", c, err)
	}
	if c, err := Compare(NewString("a"), NewString("b")); err != nil || c >= 0 {
		t.Fatalf("expected a < b, got %d, %v", c, err)
	}
	if c, err := Compare(NewOptionU64Absent(), NewOptionU64(0)); err != nil || c >= 0 {
		t.Fatalf("expected absent < present, got %d, %v", c, err)
	}
}

func TestIncrement(t *testing.T) {
	v, err := Increment(NewU64(5))
	if err != nil || v.U64 != 6 {
		t.Fatalf("Increment(U64): %v, %+v", err, v)
	}
	if _, err := Increment(NewString("x")); err == nil {
		t.Fatalf("expected error incrementing a String")
	}
	absent, err := Increment(NewOptionU64Absent())
	if err != nil || absent.Opt != nil {
		t.Fatalf("expected absent OptionU64 to stay absent, got %+v, %v", absent, err)
	}
}
