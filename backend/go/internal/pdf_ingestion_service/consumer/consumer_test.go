package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"otherly/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queueReader serves queued messages, then blocks until ctx ends.
type queueReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	fetchErrs []error
	committed []int64
}

func (r *queueReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *queueReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *queueReader) Close() error { return nil }

func (r *queueReader) Committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestConsumerHandlesAndCommitsEveryMessage(t *testing.T) {
	reader := &queueReader{
		queue:     []kafka.Message{{Offset: 1}, {Offset: 2}, {Offset: 3}},
		fetchErrs: []error{errors.New("leader not available")},
	}
	c := NewRequestConsumer(reader, logger.Nop())
	c.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var handled []int64
	done := c.Start(ctx, func(_ context.Context, msg kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, msg.Offset)
		if msg.Offset == 2 {
			return errors.New("handler failed")
		}
		return nil
	})

	require.Eventually(t, func() bool { return len(reader.Committed()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{1, 2, 3}, handled)
	assert.Equal(t, []int64{1, 2, 3}, reader.Committed())
}
