package worklog

import (
	"errors"
	"math"
	"testing"
)

func TestNewItemRejectsNonNumeric(t *testing.T) {
	_, err := NewItem(Layout{KindUint64, KindInt32}, uint64(1), "two")
	if !errors.Is(err, ErrNonNumericField) {
		t.Fatalf("expected ErrNonNumericField, got %v", err)
	}
}

func TestNewItemRejectsOverflow(t *testing.T) {
	cases := []struct {
		kind  Kind
		value any
	}{
		{KindInt8, 128},
		{KindInt8, -129},
		{KindUint8, -1},
		{KindUint16, 70000},
		{KindInt64, uint64(math.MaxUint64)},
		{KindUint32, 1.5},
		{KindFloat32, math.MaxFloat64},
	}
	for _, tc := range cases {
		if _, err := NewItem(Layout{tc.kind}, tc.value); !errors.Is(err, ErrFieldOverflow) {
			t.Fatalf("%s <- %v: expected ErrFieldOverflow, got %v", tc.kind, tc.value, err)
		}
	}
}

func TestNewItemFieldCount(t *testing.T) {
	if _, err := NewItem(Layout{KindUint8, KindUint8}, 1); !errors.Is(err, ErrFieldCount) {
		t.Fatalf("expected ErrFieldCount, got %v", err)
	}
}

func TestParseLayout(t *testing.T) {
	layout, err := ParseLayout(" u64, i32 ,F64")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !layout.Equal(Layout{KindUint64, KindInt32, KindFloat64}) {
		t.Fatalf("unexpected layout %s", layout)
	}
	if layout.Size() != 20 {
		t.Fatalf("expected size 20, got %d", layout.Size())
	}
	if layout.String() != "u64,i32,f64" {
		t.Fatalf("unexpected string %q", layout.String())
	}

	if _, err := ParseLayout("u64,string"); !errors.Is(err, ErrInvalidLayout) {
		t.Fatalf("expected ErrInvalidLayout, got %v", err)
	}
	if _, err := ParseLayout(""); !errors.Is(err, ErrInvalidLayout) {
		t.Fatalf("expected ErrInvalidLayout, got %v", err)
	}
}

func TestLayoutCodecRoundTrip(t *testing.T) {
	hook, err := NewLayoutHook(KindInt8, KindInt16, KindInt32, KindInt64, KindUint8, KindUint16, KindUint32, KindUint64, KindFloat32, KindFloat64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hook.EntrySize() != 1+2+4+8+1+2+4+8+4+8 {
		t.Fatalf("unexpected entry size %d", hook.EntrySize())
	}

	item, err := NewItem(hook.Layout(), -5, -300, int32(-70000), int64(math.MinInt64), 255, 65535, uint32(math.MaxUint32), uint64(math.MaxUint64), float32(1.25), -2.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	codec := hook.NewCodec()
	buf := make([]byte, hook.EntrySize())
	if err := codec.Encode(buf, item); err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded := hook.NewItem()
	if err := codec.Decode(buf, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Equal(item) {
		t.Fatalf("expected %s, got %s", item, decoded)
	}
	if decoded.Int(0) != -5 || decoded.Int(1) != -300 || decoded.Int(3) != math.MinInt64 {
		t.Fatalf("unexpected signed fields %s", decoded)
	}
	if decoded.Uint(7) != math.MaxUint64 {
		t.Fatalf("unexpected u64 field %d", decoded.Uint(7))
	}
	if decoded.Float(8) != 1.25 || decoded.Float(9) != -2.5 {
		t.Fatalf("unexpected float fields %s", decoded)
	}
	if v, ok := decoded.Value(2).(int32); !ok || v != -70000 {
		t.Fatalf("expected int32 -70000, got %#v", decoded.Value(2))
	}
}

func TestLayoutCodecRejectsMismatch(t *testing.T) {
	hook, err := NewLayoutHook(KindUint32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	other, err := NewItem(Layout{KindUint64}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	codec := hook.NewCodec()
	if err := codec.Encode(make([]byte, 4), other); !errors.Is(err, ErrLayoutMismatch) {
		t.Fatalf("expected ErrLayoutMismatch, got %v", err)
	}
	item, _ := NewItem(Layout{KindUint32}, 1)
	if err := codec.Encode(make([]byte, 3), item); !errors.Is(err, ErrPayloadSize) {
		t.Fatalf("expected ErrPayloadSize, got %v", err)
	}
}

func TestNewLayoutHookRejectsEmpty(t *testing.T) {
	if _, err := NewLayoutHook(); !errors.Is(err, ErrInvalidLayout) {
		t.Fatalf("expected ErrInvalidLayout, got %v", err)
	}
	if _, err := NewLayoutHook(Kind(42)); !errors.Is(err, ErrInvalidLayout) {
		t.Fatalf("expected ErrInvalidLayout, got %v", err)
	}
}
