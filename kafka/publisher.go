// Package kafka publishes work log entries to a Kafka topic.
package kafka

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/velmie/worklog"
)

// Header names set on every published message.
const (
	HeaderTxID    = "worklog-tx-id"
	HeaderOffset  = "worklog-offset"
	HeaderAttempt = "worklog-attempt"
)

var (
	// ErrWriterRequired is returned when no writer is supplied.
	ErrWriterRequired = errors.New("worklog kafka: writer is required")
	// ErrHookRequired is returned when no hook is supplied.
	ErrHookRequired = errors.New("worklog kafka: hook is required")
)

// MessageWriter writes messages to Kafka. *kafka.Writer satisfies it.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

var _ MessageWriter = (*kafka.Writer)(nil)

// NewWriter returns a synchronous writer that waits for all in-sync replicas.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// Publisher is an executor that writes each entry as one message keyed by
// its transaction id, so entries of one transaction land on one partition.
type Publisher[T any] struct {
	writer MessageWriter
	hook   worklog.Hook[T]
	size   int

	// codecs are stateful per caller; consumers run concurrently.
	codecs sync.Pool
}

var _ worklog.Executor[worklog.Item] = (*Publisher[worklog.Item])(nil)

// NewPublisher builds a publisher encoding items with hook.
func NewPublisher[T any](writer MessageWriter, hook worklog.Hook[T]) (*Publisher[T], error) {
	if writer == nil {
		return nil, ErrWriterRequired
	}
	if hook == nil {
		return nil, ErrHookRequired
	}
	p := &Publisher[T]{writer: writer, hook: hook, size: hook.EntrySize()}
	p.codecs.New = func() any { return hook.NewCodec() }
	return p, nil
}

// Execute publishes task.Item.
func (p *Publisher[T]) Execute(ctx context.Context, task worklog.Task[T]) error {
	value := make([]byte, p.size)
	codec := p.codecs.Get().(worklog.Codec[T])
	err := codec.Encode(value, task.Item)
	p.codecs.Put(codec)
	if err != nil {
		return worklog.Permanent(fmt.Errorf("worklog kafka: encode: %w", err))
	}

	msg := kafka.Message{
		Key:   TxKey(task.TxID),
		Value: value,
		Headers: []kafka.Header{
			{Key: HeaderTxID, Value: []byte(strconv.FormatUint(uint64(task.TxID), 10))},
			{Key: HeaderOffset, Value: []byte(strconv.FormatInt(task.Offset, 10))},
			{Key: HeaderAttempt, Value: []byte(strconv.Itoa(task.Attempt))},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("worklog kafka: write message: %w", err)
	}
	return nil
}

// TxKey returns the message key for txID.
func TxKey(txID worklog.TxID) []byte {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, uint32(txID))
	return key
}
