package worklog

import (
	"encoding/binary"
	"fmt"
)

// Hook describes how one payload type is stored in a WorkLog.
// EntrySize must stay constant for the lifetime of a log file.
type Hook[T any] interface {
	EntrySize() int
	NewItem() T
	NewCodec() Codec[T]
}

// Codec encodes items into exactly EntrySize bytes and back.
// A codec instance is not required to be safe for concurrent use.
type Codec[T any] interface {
	Encode(dst []byte, item T) error
	Decode(src []byte, dst *T) error
}

// LayoutHook is the stock Hook for Item values of one Layout.
type LayoutHook struct {
	layout Layout
	size   int
}

var _ Hook[Item] = (*LayoutHook)(nil)

// NewLayoutHook returns a hook for the given field kinds.
func NewLayoutHook(kinds ...Kind) (*LayoutHook, error) {
	layout := Layout(kinds)
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	layout = append(Layout(nil), layout...)
	return &LayoutHook{layout: layout, size: layout.Size()}, nil
}

// Layout returns a copy of the hook layout.
func (h *LayoutHook) Layout() Layout {
	return append(Layout(nil), h.layout...)
}

func (h *LayoutHook) EntrySize() int { return h.size }

func (h *LayoutHook) NewItem() Item { return zeroItem(h.layout) }

func (h *LayoutHook) NewCodec() Codec[Item] { return layoutCodec{hook: h} }

type layoutCodec struct {
	hook *LayoutHook
}

func (c layoutCodec) Encode(dst []byte, item Item) error {
	if len(dst) != c.hook.size {
		return fmt.Errorf("%w: buffer %d, entry %d", ErrPayloadSize, len(dst), c.hook.size)
	}
	if !item.layout.Equal(c.hook.layout) {
		return fmt.Errorf("%w: item %s, hook %s", ErrLayoutMismatch, item.layout, c.hook.layout)
	}
	off := 0
	for i, kind := range c.hook.layout {
		b := item.bits[i]
		switch kind.Size() {
		case 1:
			dst[off] = byte(b)
		case 2:
			binary.BigEndian.PutUint16(dst[off:], uint16(b))
		case 4:
			binary.BigEndian.PutUint32(dst[off:], uint32(b))
		default:
			binary.BigEndian.PutUint64(dst[off:], b)
		}
		off += kind.Size()
	}
	return nil
}

func (c layoutCodec) Decode(src []byte, dst *Item) error {
	if len(src) != c.hook.size {
		return fmt.Errorf("%w: buffer %d, entry %d", ErrPayloadSize, len(src), c.hook.size)
	}
	bits := make([]uint64, len(c.hook.layout))
	off := 0
	for i, kind := range c.hook.layout {
		switch kind {
		case KindInt8:
			bits[i] = uint64(int64(int8(src[off])))
		case KindInt16:
			bits[i] = uint64(int64(int16(binary.BigEndian.Uint16(src[off:]))))
		case KindInt32:
			bits[i] = uint64(int64(int32(binary.BigEndian.Uint32(src[off:]))))
		case KindUint8:
			bits[i] = uint64(src[off])
		case KindUint16:
			bits[i] = uint64(binary.BigEndian.Uint16(src[off:]))
		case KindUint32, KindFloat32:
			bits[i] = uint64(binary.BigEndian.Uint32(src[off:]))
		default:
			bits[i] = binary.BigEndian.Uint64(src[off:])
		}
		off += kind.Size()
	}
	*dst = Item{layout: append(Layout(nil), c.hook.layout...), bits: bits}
	return nil
}
