// Package redisstream implements hooks.Subscriber by forwarding events onto
// a Redis Stream via XADD, letting external dashboards and the streaming
// API consume run progress with XREAD without coupling to the process that
// ran the workflow.
package redisstream

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/strukalex/agentic-assistant-framework-sub000/hooks"
)

const defaultMaxLen = 10_000

// Options configures a Sink.
type Options struct {
	Client *redis.Client
	// Stream is the Redis key events are XADDed to. Defaults to
	// "research:events".
	Stream string
	// MaxLen approximately caps the stream length (MAXLEN ~). Defaults to
	// 10000.
	MaxLen int64
}

// Sink publishes hook events to a Redis Stream.
type Sink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// New constructs a Sink. Returns an error if Client is nil.
func New(opts Options) (*Sink, error) {
	if opts.Client == nil {
		return nil, errors.New("redisstream: client is required")
	}
	stream := opts.Stream
	if stream == "" {
		stream = "research:events"
	}
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &Sink{client: opts.Client, stream: stream, maxLen: maxLen}, nil
}

// HandleEvent implements hooks.Subscriber by XADDing the event to the
// configured stream. The event's Data payload is JSON-encoded into the
// "data" field; marshal failures are reported rather than silently dropped.
func (s *Sink) HandleEvent(ctx context.Context, event hooks.Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	values := map[string]any{
		"type":      string(event.Type),
		"run_id":    event.RunID,
		"timestamp": strconv.FormatInt(event.Timestamp, 10),
		"data":      string(data),
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Err()
}
