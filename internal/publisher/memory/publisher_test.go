package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "runs", map[string]string{"state": "DONE"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "audit", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "runs", msgs[0].Topic)
	require.Equal(t, "audit", msgs[1].Topic)

	msgs[0].Topic = "modified"
	require.Equal(t, "runs", pub.Messages()[0].Topic)
}

func TestPublisherFailsWhenConfigured(t *testing.T) {
	t.Parallel()

	pub := New()
	pub.FailWith(context.DeadlineExceeded)
	_, err := pub.Publish(context.Background(), "runs", "x")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Empty(t, pub.Messages())
}
