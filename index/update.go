// Package index maintains a Pebble-backed property index from work log updates.
//
// Each Update sets or clears one property of one node. The executor keeps a
// forward key (node, property) -> value and an index key
// (property, value, node), both written in one synced batch, so replaying an
// update after a crash leaves the index unchanged.
package index

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/velmie/worklog"
)

// Op is the kind of index change.
type Op uint8

const (
	OpSet    Op = 1
	OpDelete Op = 2
)

func (o Op) String() string {
	switch o {
	case OpSet:
		return "set"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// UpdateSize is the encoded width of an Update.
const UpdateSize = 8 + 4 + 8 + 1

// ErrUnknownOp is returned when an update carries an unknown op.
var ErrUnknownOp = errors.New("worklog index: unknown op")

// Update changes one indexed property of one node.
type Update struct {
	NodeID   uint64
	Property uint32
	Value    uint64
	Op       Op
}

// Hook stores Updates in a work log.
type Hook struct{}

var _ worklog.Hook[Update] = Hook{}

func (Hook) EntrySize() int { return UpdateSize }

func (Hook) NewItem() Update { return Update{} }

func (Hook) NewCodec() worklog.Codec[Update] { return codec{} }

type codec struct{}

func (codec) Encode(dst []byte, u Update) error {
	if len(dst) != UpdateSize {
		return fmt.Errorf("%w: buffer %d, entry %d", worklog.ErrPayloadSize, len(dst), UpdateSize)
	}
	if u.Op != OpSet && u.Op != OpDelete {
		return fmt.Errorf("%w: %d", ErrUnknownOp, u.Op)
	}
	binary.BigEndian.PutUint64(dst[0:], u.NodeID)
	binary.BigEndian.PutUint32(dst[8:], u.Property)
	binary.BigEndian.PutUint64(dst[12:], u.Value)
	dst[20] = byte(u.Op)
	return nil
}

func (codec) Decode(src []byte, dst *Update) error {
	if len(src) != UpdateSize {
		return fmt.Errorf("%w: buffer %d, entry %d", worklog.ErrPayloadSize, len(src), UpdateSize)
	}
	op := Op(src[20])
	if op != OpSet && op != OpDelete {
		return fmt.Errorf("%w: %d", ErrUnknownOp, op)
	}
	*dst = Update{
		NodeID:   binary.BigEndian.Uint64(src[0:]),
		Property: binary.BigEndian.Uint32(src[8:]),
		Value:    binary.BigEndian.Uint64(src[12:]),
		Op:       op,
	}
	return nil
}
