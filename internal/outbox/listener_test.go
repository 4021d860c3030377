package outbox

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyPublisher struct {
	failures int
	calls    int
}

func (p *flakyPublisher) Publish(ctx context.Context, event Event) error {
	p.calls++
	if p.calls <= p.failures {
		return fmt.Errorf("transient failure %d", p.calls)
	}
	return nil
}

func TestPublishWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	pub := &flakyPublisher{failures: 2}
	l := &Listener{
		publisher: pub,
		cfg: ListenerConfig{
			MaxRetries: 3,
			RetryDelay: time.Millisecond,
		},
	}

	err := l.publishWithRetry(context.Background(), Event{ID: uuid.New(), EventType: "RoundStarted"})
	require.NoError(t, err)
	assert.Equal(t, 3, pub.calls)
}

func TestPublishWithRetryGivesUp(t *testing.T) {
	pub := &flakyPublisher{failures: 100}
	l := &Listener{
		publisher: pub,
		cfg: ListenerConfig{
			MaxRetries: 2,
			RetryDelay: time.Millisecond,
		},
	}

	err := l.publishWithRetry(context.Background(), Event{ID: uuid.New(), EventType: "RoundStarted"})
	require.Error(t, err)
	assert.Equal(t, 3, pub.calls)
}

func TestPublishWithRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pub := &flakyPublisher{failures: 100}
	l := &Listener{
		publisher: pub,
		cfg: ListenerConfig{
			MaxRetries: 5,
			RetryDelay: time.Hour,
		},
	}

	err := l.publishWithRetry(ctx, Event{ID: uuid.New()})
	assert.ErrorIs(t, err, context.Canceled)
}
