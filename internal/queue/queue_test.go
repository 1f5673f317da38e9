package queue_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/sattyamjjain/ferrumdeck/internal/queue"
)

func TestNewMessageStampsAttemptsAndCreatedAt(t *testing.T) {
	before := time.Now().UnixMilli()
	msg := queue.NewMessage("msg-1", queue.StepJob{RunID: "run-1", StepID: "step-1"})
	after := time.Now().UnixMilli()

	assert.Equal(t, "msg-1", msg.ID)
	assert.EqualValues(t, 0, msg.Attempts)
	assert.GreaterOrEqual(t, msg.CreatedAt, before)
	assert.LessOrEqual(t, msg.CreatedAt, after)
}

func TestStepJobRoundTripsThroughJSON(t *testing.T) {
	traceID := uuid.New().String()
	job := queue.StepJob{
		RunID:    "run-1",
		StepID:   "step-1",
		StepType: "llm",
		Input:    map[string]any{"prompt": "hello"},
		Context: queue.JobContext{
			TenantID:  "tenant-1",
			ProjectID: "project-1",
			TraceID:   &traceID,
		},
	}
	msg := queue.NewMessage("msg-1", job)

	raw, err := marshalRoundTrip(msg)
	require.NoError(t, err)

	assert.Equal(t, msg.ID, raw.ID)
	assert.Equal(t, job.RunID, raw.Payload.RunID)
	assert.Equal(t, job.StepID, raw.Payload.StepID)
	assert.Equal(t, *job.Context.TraceID, *raw.Payload.Context.TraceID)
	assert.Nil(t, raw.Payload.Context.SpanID)
}

func TestQueueNameConstants(t *testing.T) {
	assert.Equal(t, "steps", queue.Steps)
	assert.Equal(t, "dlq", queue.DLQ)
}

// TestEnqueueDequeueAckFlow exercises a live Redis Streams round trip:
// init a queue, enqueue a step job, dequeue it as a consumer, and ack it.
func TestEnqueueDequeueAckFlow(t *testing.T) {
	ctx := context.Background()
	url := startRedis(t, ctx)

	client, err := queue.NewClient(url, "test:")
	require.NoError(t, err)

	require.NoError(t, client.InitQueue(ctx, queue.Steps))

	job := queue.StepJob{
		RunID:    "run-1",
		StepID:   "step-1",
		StepType: "tool",
		Input:    map[string]any{"tool": "http_get"},
		Context:  queue.JobContext{TenantID: "tenant-1", ProjectID: "project-1"},
	}
	msg := queue.NewMessage("msg-1", job)

	streamID, err := queue.Enqueue(ctx, client, queue.Steps, msg)
	require.NoError(t, err)
	assert.NotEmpty(t, streamID)

	deliveries, err := queue.Dequeue[queue.StepJob](ctx, client, queue.Steps, "worker-1", 10, time.Second)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, "run-1", deliveries[0].Message.Payload.RunID)

	require.NoError(t, client.Ack(ctx, queue.Steps, deliveries[0].StreamID))

	pending, err := client.PendingCount(ctx, queue.Steps)
	require.NoError(t, err)
	assert.EqualValues(t, 0, pending)

	length, err := client.Len(ctx, queue.Steps)
	require.NoError(t, err)
	assert.EqualValues(t, 1, length)
}

// TestClaimPendingRecoversUnackedMessage simulates a crashed consumer: a
// message is dequeued but never acked, and a second consumer reclaims it
// once it has been idle past minIdle.
func TestClaimPendingRecoversUnackedMessage(t *testing.T) {
	ctx := context.Background()
	url := startRedis(t, ctx)

	client, err := queue.NewClient(url, "test:")
	require.NoError(t, err)
	require.NoError(t, client.InitQueue(ctx, queue.Steps))

	msg := queue.NewMessage("msg-1", queue.StepJob{RunID: "run-1", StepID: "step-1"})
	_, err = queue.Enqueue(ctx, client, queue.Steps, msg)
	require.NoError(t, err)

	_, err = queue.Dequeue[queue.StepJob](ctx, client, queue.Steps, "worker-crashed", 10, time.Second)
	require.NoError(t, err)

	claimed, err := queue.ClaimPending[queue.StepJob](ctx, client, queue.Steps, "worker-2", 0, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "run-1", claimed[0].Message.Payload.RunID)
}

func startRedis(t *testing.T, ctx context.Context) string {
	t.Helper()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	return url
}

func marshalRoundTrip(msg queue.Message[queue.StepJob]) (queue.Message[queue.StepJob], error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return queue.Message[queue.StepJob]{}, err
	}
	var out queue.Message[queue.StepJob]
	err = json.Unmarshal(raw, &out)
	return out, err
}
