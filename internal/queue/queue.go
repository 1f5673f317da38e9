// Package queue implements the Redis Streams transport that carries step
// jobs from the orchestrator to workers: consumer-group delivery, explicit
// acknowledgement, and pending-entry reclaiming for crashed workers. It is
// grounded on the retained fd-storage/src/queue.rs, translated from
// redis-rs into go-redis/v9 and from a generic QueueMessage<T> into a Go
// type parameter.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Names used for the system's two well-known queues.
const (
	Steps = "steps"
	DLQ   = "dlq"
)

// Message wraps a payload with delivery metadata.
type Message[T any] struct {
	ID        string `json:"id"`
	Payload   T      `json:"payload"`
	CreatedAt int64  `json:"created_at"`
	Attempts  uint32 `json:"attempts"`
}

// NewMessage wraps payload for delivery, stamping the current time.
func NewMessage[T any](id string, payload T) Message[T] {
	return Message[T]{ID: id, Payload: payload, CreatedAt: time.Now().UnixMilli()}
}

// StepJob is the payload carried on the steps queue: enough to execute one
// DAG step without a round trip back to the database.
type StepJob struct {
	RunID    string         `json:"run_id"`
	StepID   string         `json:"step_id"`
	StepType string         `json:"step_type"`
	Input    map[string]any `json:"input"`
	Context  JobContext     `json:"context"`
}

// JobContext carries tenancy and trace propagation alongside a StepJob.
type JobContext struct {
	TenantID  string  `json:"tenant_id"`
	ProjectID string  `json:"project_id"`
	TraceID   *string `json:"trace_id,omitempty"`
	SpanID    *string `json:"span_id,omitempty"`
}

// Client is a Redis Streams-backed queue client. The underlying
// *redis.Client is safe for concurrent use by multiple goroutines, so Client
// itself requires no internal locking.
type Client struct {
	rdb    *redis.Client
	prefix string
}

// NewClient connects to redisURL and returns a Client whose stream keys are
// namespaced under prefix.
func NewClient(redisURL, prefix string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Client{rdb: redis.NewClient(opts), prefix: prefix}, nil
}

func (c *Client) streamKey(queue string) string { return c.prefix + "stream:" + queue }
func (c *Client) groupName(queue string) string { return queue + "-workers" }

// InitQueue creates queue's stream and consumer group if they do not
// already exist. A BUSYGROUP error (group already present) is not an error.
func (c *Client) InitQueue(ctx context.Context, queue string) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.streamKey(queue), c.groupName(queue), "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Enqueue appends message to queue's stream and returns the assigned stream
// entry ID.
func Enqueue[T any](ctx context.Context, c *Client, queue string, message Message[T]) (string, error) {
	payload, err := json.Marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal queue message: %w", err)
	}
	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.streamKey(queue),
		ID:     "*",
		Values: map[string]any{"data": payload},
	}).Result()
	if err != nil {
		return "", err
	}
	return id, nil
}

// Delivery pairs a decoded message with its stream entry ID, which callers
// pass to Ack.
type Delivery[T any] struct {
	StreamID string
	Message  Message[T]
}

// Dequeue reads up to count new messages for consumer from queue's consumer
// group, blocking up to blockMs for at least one to arrive.
func Dequeue[T any](ctx context.Context, c *Client, queue, consumer string, count int64, blockMs time.Duration) ([]Delivery[T], error) {
	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.groupName(queue),
		Consumer: consumer,
		Streams:  []string{c.streamKey(queue), ">"},
		Count:    count,
		Block:    blockMs,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	return parseStreams[T](res)
}

// Ack acknowledges streamID on queue's consumer group, removing it from the
// pending entries list.
func (c *Client) Ack(ctx context.Context, queue, streamID string) error {
	return c.rdb.XAck(ctx, c.streamKey(queue), c.groupName(queue), streamID).Err()
}

// ClaimPending reassigns up to count pending entries idle for at least
// minIdle to consumer, for recovering work from a crashed worker. Each
// returned message's Attempts is set to the entry's delivery count so far.
func ClaimPending[T any](ctx context.Context, c *Client, queue, consumer string, minIdle time.Duration, count int64) ([]Delivery[T], error) {
	key := c.streamKey(queue)
	group := c.groupName(queue)

	pending, err := c.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: key,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, nil
	}
	if len(pending) == 0 {
		return nil, nil
	}

	var claimed []Delivery[T]
	for _, p := range pending {
		if p.Idle < minIdle {
			continue
		}
		res, err := c.rdb.XClaim(ctx, &redis.XClaimArgs{
			Stream:   key,
			Group:    group,
			Consumer: consumer,
			MinIdle:  minIdle,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			continue
		}
		msgs, err := parseEntries[T](res)
		if err != nil {
			continue
		}
		for i := range msgs {
			msgs[i].Message.Attempts = uint32(p.RetryCount)
		}
		claimed = append(claimed, msgs...)
	}
	return claimed, nil
}

// Len returns the approximate number of entries in queue's stream.
func (c *Client) Len(ctx context.Context, queue string) (int64, error) {
	return c.rdb.XLen(ctx, c.streamKey(queue)).Result()
}

// PendingCount returns the number of unacknowledged entries in queue's
// consumer group.
func (c *Client) PendingCount(ctx context.Context, queue string) (int64, error) {
	summary, err := c.rdb.XPending(ctx, c.streamKey(queue), c.groupName(queue)).Result()
	if err != nil {
		return 0, err
	}
	return summary.Count, nil
}

func parseStreams[T any](streams []redis.XStream) ([]Delivery[T], error) {
	var out []Delivery[T]
	for _, stream := range streams {
		msgs, err := parseEntries[T](stream.Messages)
		if err != nil {
			return nil, err
		}
		out = append(out, msgs...)
	}
	return out, nil
}

func parseEntries[T any](entries []redis.XMessage) ([]Delivery[T], error) {
	var out []Delivery[T]
	for _, entry := range entries {
		data, ok := entry.Values["data"]
		if !ok {
			continue
		}
		raw, ok := data.(string)
		if !ok {
			continue
		}
		var msg Message[T]
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			continue
		}
		out = append(out, Delivery[T]{StreamID: entry.ID, Message: msg})
	}
	return out, nil
}
