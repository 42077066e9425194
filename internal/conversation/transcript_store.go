package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// TranscriptStore persists finalized transcripts for the history API.
// The Controller is the only writer.
type TranscriptStore interface {
	Save(ctx context.Context, sessionID string, transcript []Message) error
	Load(ctx context.Context, sessionID string) ([]Message, error)
}

// RedisTranscriptStore keeps each session's transcript under a single
// key with a TTL; a session that goes quiet simply expires.
type RedisTranscriptStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func NewRedisTranscriptStore(client *redis.Client, ttl time.Duration) *RedisTranscriptStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisTranscriptStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("mediconnect.internal.conversation.transcript"),
	}
}

func (s *RedisTranscriptStore) Save(ctx context.Context, sessionID string, transcript []Message) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_transcript")
	defer span.End()

	data, err := json.Marshal(transcript)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal transcript: %w", err)
	}
	if err := s.redis.Set(ctx, transcriptKey(sessionID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist transcript: %w", err)
	}
	return nil
}

func (s *RedisTranscriptStore) Load(ctx context.Context, sessionID string) ([]Message, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_transcript")
	defer span.End()

	data, err := s.redis.Get(ctx, transcriptKey(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load transcript: %w", err)
	}

	var transcript []Message
	if err := json.Unmarshal(data, &transcript); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to decode transcript: %w", err)
	}
	return transcript, nil
}

func transcriptKey(sessionID string) string {
	return fmt.Sprintf("transcript:%s", sessionID)
}
