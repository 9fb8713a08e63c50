package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/velmie/worklog"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func newHook(t *testing.T) *worklog.LayoutHook {
	t.Helper()
	hook, err := worklog.NewLayoutHook(worklog.KindUint16, worklog.KindInt32)
	require.NoError(t, err)
	return hook
}

func TestPublisherWritesKeyedMessage(t *testing.T) {
	hook := newHook(t)
	writer := &fakeWriter{}
	pub, err := NewPublisher[worklog.Item](writer, hook)
	require.NoError(t, err)

	item, err := worklog.NewItem(hook.Layout(), 7, -2)
	require.NoError(t, err)

	err = pub.Execute(context.Background(), worklog.Task[worklog.Item]{Item: item, TxID: 0x01020304, Offset: 40, Attempt: 2})
	require.NoError(t, err)
	require.Len(t, writer.msgs, 1)

	msg := writer.msgs[0]
	require.Equal(t, []byte{1, 2, 3, 4}, msg.Key)
	require.Equal(t, []byte{0x00, 0x07, 0xff, 0xff, 0xff, 0xfe}, msg.Value)
	require.Equal(t, "16909060", header(msg, HeaderTxID))
	require.Equal(t, "40", header(msg, HeaderOffset))
	require.Equal(t, "2", header(msg, HeaderAttempt))
}

func TestPublisherWrapsWriteError(t *testing.T) {
	hook := newHook(t)
	writer := &fakeWriter{err: errors.New("broker down")}
	pub, err := NewPublisher[worklog.Item](writer, hook)
	require.NoError(t, err)

	item, err := worklog.NewItem(hook.Layout(), 1, 1)
	require.NoError(t, err)
	err = pub.Execute(context.Background(), worklog.Task[worklog.Item]{Item: item, TxID: 1})
	require.ErrorContains(t, err, "broker down")

	var permanent *backoff.PermanentError
	require.False(t, errors.As(err, &permanent))
}

func TestPublisherEncodeErrorIsPermanent(t *testing.T) {
	hook := newHook(t)
	other, err := worklog.NewLayoutHook(worklog.KindUint8)
	require.NoError(t, err)
	pub, err := NewPublisher[worklog.Item](&fakeWriter{}, hook)
	require.NoError(t, err)

	item, err := worklog.NewItem(other.Layout(), 1)
	require.NoError(t, err)
	err = pub.Execute(context.Background(), worklog.Task[worklog.Item]{Item: item, TxID: 1})
	require.ErrorIs(t, err, worklog.ErrLayoutMismatch)

	var permanent *backoff.PermanentError
	require.True(t, errors.As(err, &permanent))
}

func TestNewPublisherValidates(t *testing.T) {
	_, err := NewPublisher[worklog.Item](nil, newHook(t))
	require.ErrorIs(t, err, ErrWriterRequired)
	_, err = NewPublisher[worklog.Item](&fakeWriter{}, nil)
	require.ErrorIs(t, err, ErrHookRequired)
}
