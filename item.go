package worklog

import (
	"fmt"
	"math"
	"strings"
)

// Kind is the fixed-width numeric type of one item field.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KindInt8:    "i8",
	KindInt16:   "i16",
	KindInt32:   "i32",
	KindInt64:   "i64",
	KindUint8:   "u8",
	KindUint16:  "u16",
	KindUint32:  "u32",
	KindUint64:  "u64",
	KindFloat32: "f32",
	KindFloat64: "f64",
}

var kindSizes = [...]int{
	KindInt8:    1,
	KindInt16:   2,
	KindInt32:   4,
	KindInt64:   8,
	KindUint8:   1,
	KindUint16:  2,
	KindUint32:  4,
	KindUint64:  8,
	KindFloat32: 4,
	KindFloat64: 8,
}

// Size returns the encoded width in bytes, or 0 for an invalid kind.
func (k Kind) Size() int {
	if !k.Valid() {
		return 0
	}
	return kindSizes[k]
}

// Valid reports whether k is a known numeric kind.
func (k Kind) Valid() bool {
	return k > KindInvalid && k <= KindFloat64
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) signed() bool {
	return k >= KindInt8 && k <= KindInt64
}

func (k Kind) unsigned() bool {
	return k >= KindUint8 && k <= KindUint64
}

func (k Kind) float() bool {
	return k == KindFloat32 || k == KindFloat64
}

// Layout is the ordered list of field kinds of an item.
type Layout []Kind

// Size returns the total encoded width of the layout.
func (l Layout) Size() int {
	size := 0
	for _, k := range l {
		size += k.Size()
	}
	return size
}

// Validate fails for empty layouts and unknown kinds.
func (l Layout) Validate() error {
	if len(l) == 0 {
		return fmt.Errorf("%w: no fields", ErrInvalidLayout)
	}
	for i, k := range l {
		if !k.Valid() {
			return fmt.Errorf("%w: field %d has kind %s", ErrInvalidLayout, i, k)
		}
	}
	return nil
}

// Equal reports whether both layouts list the same kinds.
func (l Layout) Equal(other Layout) bool {
	if len(l) != len(other) {
		return false
	}
	for i := range l {
		if l[i] != other[i] {
			return false
		}
	}
	return true
}

func (l Layout) String() string {
	parts := make([]string, len(l))
	for i, k := range l {
		parts[i] = k.String()
	}
	return strings.Join(parts, ",")
}

// ParseLayout builds a layout from a comma separated list such as "u64,u32,f64".
func ParseLayout(s string) (Layout, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: no fields", ErrInvalidLayout)
	}
	parts := strings.Split(s, ",")
	layout := make(Layout, 0, len(parts))
	for _, part := range parts {
		name := strings.ToLower(strings.TrimSpace(part))
		kind := KindInvalid
		for k := KindInt8; k <= KindFloat64; k++ {
			if kindNames[k] == name {
				kind = k
				break
			}
		}
		if kind == KindInvalid {
			return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidLayout, part)
		}
		layout = append(layout, kind)
	}
	return layout, nil
}

// Item is an immutable sequence of fixed-width numeric fields.
type Item struct {
	layout Layout
	bits   []uint64
}

// NewItem validates values against layout and returns the item.
// Every value must be a Go integer or float that fits its field kind.
func NewItem(layout Layout, values ...any) (Item, error) {
	if err := layout.Validate(); err != nil {
		return Item{}, err
	}
	if len(values) != len(layout) {
		return Item{}, fmt.Errorf("%w: layout has %d fields, got %d values", ErrFieldCount, len(layout), len(values))
	}
	bits := make([]uint64, len(values))
	for i, v := range values {
		b, err := fieldBits(layout[i], v)
		if err != nil {
			return Item{}, fmt.Errorf("worklog: field %d (%s): %w", i, layout[i], err)
		}
		bits[i] = b
	}
	return Item{layout: append(Layout(nil), layout...), bits: bits}, nil
}

func zeroItem(layout Layout) Item {
	return Item{layout: append(Layout(nil), layout...), bits: make([]uint64, len(layout))}
}

// Layout returns a copy of the item's layout.
func (it Item) Layout() Layout {
	return append(Layout(nil), it.layout...)
}

// Len returns the number of fields.
func (it Item) Len() int {
	return len(it.bits)
}

// Int returns field n as a signed integer. Float fields are truncated.
func (it Item) Int(n int) int64 {
	if it.layout[n].float() {
		return int64(it.Float(n))
	}
	return int64(it.bits[n])
}

// Uint returns field n as an unsigned integer. Float fields are truncated.
func (it Item) Uint(n int) uint64 {
	if it.layout[n].float() {
		return uint64(it.Float(n))
	}
	return it.bits[n]
}

// Float returns field n as a float64.
func (it Item) Float(n int) float64 {
	switch k := it.layout[n]; {
	case k == KindFloat32:
		return float64(math.Float32frombits(uint32(it.bits[n])))
	case k == KindFloat64:
		return math.Float64frombits(it.bits[n])
	case k.signed():
		return float64(int64(it.bits[n]))
	default:
		return float64(it.bits[n])
	}
}

// Value returns field n typed by its kind (int8 for KindInt8 and so on).
func (it Item) Value(n int) any {
	b := it.bits[n]
	switch it.layout[n] {
	case KindInt8:
		return int8(int64(b))
	case KindInt16:
		return int16(int64(b))
	case KindInt32:
		return int32(int64(b))
	case KindInt64:
		return int64(b)
	case KindUint8:
		return uint8(b)
	case KindUint16:
		return uint16(b)
	case KindUint32:
		return uint32(b)
	case KindUint64:
		return b
	case KindFloat32:
		return math.Float32frombits(uint32(b))
	default:
		return math.Float64frombits(b)
	}
}

// Values returns every field typed by its kind.
func (it Item) Values() []any {
	out := make([]any, len(it.bits))
	for i := range it.bits {
		out[i] = it.Value(i)
	}
	return out
}

// Equal reports whether both items have the same layout and field bits.
func (it Item) Equal(other Item) bool {
	if !it.layout.Equal(other.layout) {
		return false
	}
	for i := range it.bits {
		if it.bits[i] != other.bits[i] {
			return false
		}
	}
	return true
}

func (it Item) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i := range it.bits {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprint(&b, it.Value(i))
	}
	b.WriteByte(']')
	return b.String()
}

func fieldBits(kind Kind, v any) (uint64, error) {
	switch x := v.(type) {
	case int:
		return signedBits(kind, int64(x))
	case int8:
		return signedBits(kind, int64(x))
	case int16:
		return signedBits(kind, int64(x))
	case int32:
		return signedBits(kind, int64(x))
	case int64:
		return signedBits(kind, x)
	case uint:
		return unsignedBits(kind, uint64(x))
	case uint8:
		return unsignedBits(kind, uint64(x))
	case uint16:
		return unsignedBits(kind, uint64(x))
	case uint32:
		return unsignedBits(kind, uint64(x))
	case uint64:
		return unsignedBits(kind, x)
	case float32:
		return floatBits(kind, float64(x))
	case float64:
		return floatBits(kind, x)
	default:
		return 0, fmt.Errorf("%w: %T", ErrNonNumericField, v)
	}
}

func signedBits(kind Kind, v int64) (uint64, error) {
	switch kind {
	case KindInt8:
		if v < math.MinInt8 || v > math.MaxInt8 {
			return 0, overflow(kind, v)
		}
	case KindInt16:
		if v < math.MinInt16 || v > math.MaxInt16 {
			return 0, overflow(kind, v)
		}
	case KindInt32:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return 0, overflow(kind, v)
		}
	case KindInt64:
	case KindFloat32, KindFloat64:
		return floatBits(kind, float64(v))
	default:
		if v < 0 {
			return 0, overflow(kind, v)
		}
		return unsignedBits(kind, uint64(v))
	}
	return uint64(v), nil
}

func unsignedBits(kind Kind, v uint64) (uint64, error) {
	var limit uint64
	switch kind {
	case KindInt8:
		limit = math.MaxInt8
	case KindInt16:
		limit = math.MaxInt16
	case KindInt32:
		limit = math.MaxInt32
	case KindInt64:
		limit = math.MaxInt64
	case KindUint8:
		limit = math.MaxUint8
	case KindUint16:
		limit = math.MaxUint16
	case KindUint32:
		limit = math.MaxUint32
	case KindUint64:
		limit = math.MaxUint64
	default:
		return floatBits(kind, float64(v))
	}
	if v > limit {
		return 0, overflow(kind, v)
	}
	return v, nil
}

func floatBits(kind Kind, v float64) (uint64, error) {
	switch kind {
	case KindFloat32:
		if !math.IsInf(v, 0) && !math.IsNaN(v) && math.Abs(v) > math.MaxFloat32 {
			return 0, overflow(kind, v)
		}
		return uint64(math.Float32bits(float32(v))), nil
	case KindFloat64:
		return math.Float64bits(v), nil
	default:
		return 0, fmt.Errorf("%w: float %v into integer kind %s", ErrFieldOverflow, v, kind)
	}
}

func overflow(kind Kind, v any) error {
	return fmt.Errorf("%w: %v does not fit %s", ErrFieldOverflow, v, kind)
}
