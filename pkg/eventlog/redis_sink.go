package eventlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dukex/sbpm/pkg/models"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisStream is the stream records are appended to.
const DefaultRedisStream = "sbpm:event-log"

// RedisSink appends records to a Redis stream, trimmed to an approximate maximum length.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisSink(client *redis.Client, stream string, maxLen int64) *RedisSink {
	if stream == "" {
		stream = DefaultRedisStream
	}

	return &RedisSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisSink) Emit(ctx context.Context, record *models.EventLogRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal event log record: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"case_id":  record.CaseID,
			"activity": record.Activity,
			"record":   payload,
		},
	}

	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	err = s.client.XAdd(ctx, args).Err()
	if err != nil {
		return fmt.Errorf("failed to append to redis stream %s: %w", s.stream, err)
	}

	return nil
}

// ReadRedisStream returns up to count records from the start of stream.
func ReadRedisStream(ctx context.Context, client *redis.Client, stream string, count int64) ([]*models.EventLogRecord, error) {
	entries, err := client.XRangeN(ctx, stream, "-", "+", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read redis stream %s: %w", stream, err)
	}

	records := make([]*models.EventLogRecord, 0, len(entries))

	for _, entry := range entries {
		raw, ok := entry.Values["record"].(string)
		if !ok {
			continue
		}

		var record models.EventLogRecord

		err := json.Unmarshal([]byte(raw), &record)
		if err != nil {
			return nil, fmt.Errorf("failed to decode stream entry %s: %w", entry.ID, err)
		}

		records = append(records, &record)
	}

	return records, nil
}
