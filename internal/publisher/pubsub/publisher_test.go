package pubsub

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	client, err := pubsub.NewClient(context.Background(), "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestPublisherPublishesJSON(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, srv := newTestClient(t)
	_, err := client.CreateTopic(ctx, "runs")
	require.NoError(t, err)

	pub := New(client, "runs")
	defer func() { require.NoError(t, pub.Close()) }()

	id, err := pub.Publish(ctx, "", map[string]any{"state": "DONE", "succeeded": 3})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.JSONEq(t, `{"state":"DONE","succeeded":3}`, string(msgs[0].Data))
	require.Equal(t, "application/json", msgs[0].Attributes["content-type"])
}

func TestPublisherExplicitTopic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, srv := newTestClient(t)
	_, err := client.CreateTopic(ctx, "other")
	require.NoError(t, err)

	pub := New(client, "runs")
	_, err = pub.Publish(ctx, "other", "hello")
	require.NoError(t, err)
	require.NoError(t, pub.Close())
	require.Len(t, srv.Messages(), 1)
}

func TestPublisherRejectsUnmarshalable(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t)
	pub := New(client, "runs")
	_, err := pub.Publish(context.Background(), "", make(chan int))
	require.ErrorContains(t, err, "marshal payload")
}

func TestPublisherNotConfigured(t *testing.T) {
	t.Parallel()

	var pub *Publisher
	_, err := pub.Publish(context.Background(), "runs", "x")
	require.Error(t, err)
	require.NoError(t, pub.Close())
}

func TestOpenValidatesArguments(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "", "runs")
	require.Error(t, err)
}
