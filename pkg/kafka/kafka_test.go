package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

// fakeReader replays msgs and then blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func TestProducer_PublishEncodesJSON(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "reports")

	err := p.Publish(context.Background(), Event{Key: "reco", Value: map[string]int{"ok": 2}})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "reco", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"ok":2}`, string(w.msgs[0].Value))
}

func TestProducer_PublishError(t *testing.T) {
	p := newProducer(&fakeWriter{err: errors.New("leader not available")}, "reports")
	err := p.Publish(context.Background(), Event{Key: "k", Value: 1})
	assert.ErrorContains(t, err, "leader not available")
}

func TestConsumer_SkipsFailedMessages(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: []byte(`{"n":1}`)},
		{Offset: 2, Value: []byte(`bad`)},
		{Offset: 3, Value: []byte(`{"n":3}`)},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var seen []int
	handler := func(ctx context.Context, key, value []byte) error {
		v, err := DecodeJSON[struct{ N int }](value)
		if err != nil {
			return err
		}
		mu.Lock()
		seen = append(seen, v.N)
		mu.Unlock()
		return nil
	}

	c := newConsumer(r, "triggers", handler)
	errCh := make(chan error, 1)
	go func() { errCh <- c.Start(ctx) }()

	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.committed) == 3
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}

	mu.Lock()
	assert.Equal(t, []int{1, 3}, seen)
	mu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, []int64{1, 2, 3}, r.committed)
	assert.True(t, r.closed)
}

func TestConsumer_LeavesInterruptedMessageUncommitted(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: []byte(`{"n":1}`)},
		{Offset: 2, Value: []byte(`{"n":2}`)},
		{Offset: 3, Value: []byte(`{"n":3}`)},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := func(ctx context.Context, key, value []byte) error {
		v, err := DecodeJSON[struct{ N int }](value)
		if err != nil {
			return err
		}
		if v.N == 2 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	c := newConsumer(r, "triggers", handler)
	errCh := make(chan error, 1)
	go func() { errCh <- c.Start(ctx) }()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, []int64{1}, r.committed)
	assert.Len(t, r.msgs, 1, "message after the interrupted one must not be fetched")
	assert.True(t, r.closed)
}

func TestDecodeJSON_Error(t *testing.T) {
	_, err := DecodeJSON[map[string]any]([]byte("{"))
	assert.ErrorContains(t, err, "decoding kafka message")
}
