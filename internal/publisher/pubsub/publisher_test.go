package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/profile-harvester/internal/publisher"
)

func newFakeClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "harvester-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestPublishCompletion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, srv := newFakeClient(t)
	_, err := client.CreateTopic(ctx, "crawl-finished")
	require.NoError(t, err)

	pub := New(client)
	defer pub.Close()

	completion := publisher.Completion{
		RunID:      "run-1",
		StartURL:   "https://example.com/list",
		Phase:      "terminated",
		Reason:     "exhausted",
		Pages:      3,
		TotalCount: 42,
		Timestamp:  time.Unix(1700000000, 0).UTC(),
	}
	id, err := pub.Publish(ctx, "crawl-finished", completion)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got publisher.Completion
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, completion, got)
}

func TestPublishRequiresTopic(t *testing.T) {
	t.Parallel()

	client, _ := newFakeClient(t)
	_, err := New(client).Publish(context.Background(), "", "x")
	require.Error(t, err)

	_, err = New(nil).Publish(context.Background(), "t", "x")
	require.Error(t, err)
}

func TestCarrierRoundTrip(t *testing.T) {
	t.Parallel()

	carrier := &pubsubCarrier{attrs: map[string]string{}}
	var _ propagation.TextMapCarrier = carrier
	carrier.Set("traceparent", "00-abc-def-01")
	assert.Equal(t, "00-abc-def-01", carrier.Get("traceparent"))
	assert.Equal(t, []string{"traceparent"}, carrier.Keys())
}
