// Package store persists session transcripts and utterance audio in
// Redis. Records are JSON documents under a TTL; utterance audio is
// archived as WAV bytes with a short expiry so failed turns can be
// replayed for debugging without the store growing unbounded.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vaani-ai/vaani/pkg/core/audio"
	"github.com/vaani-ai/vaani/pkg/core/types"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("store: not found")

const (
	sessionKeyPrefix = "vaani:session:"
	audioKeyPrefix   = "vaani:audio:"
	recentKey        = "vaani:sessions:recent"

	// maxRecent bounds the recent-session index.
	maxRecent = 100
)

// Config holds Redis connection and retention settings.
type Config struct {
	Addr     string
	Password string
	DB       int

	// SessionTTL is how long finished session records are kept.
	SessionTTL time.Duration

	// AudioTTL is how long archived utterance audio is kept. Audio is
	// bulky; keep this short.
	AudioTTL time.Duration

	// Audio is the PCM format utterances arrive in, used for the WAV
	// container written to the archive.
	Audio audio.Config
}

// DefaultConfig returns the standard retention settings against a local
// Redis.
func DefaultConfig() Config {
	return Config{
		Addr:       "localhost:6379",
		SessionTTL: 24 * time.Hour,
		AudioTTL:   10 * time.Minute,
		Audio:      audio.DefaultConfig(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = def.SessionTTL
	}
	if c.AudioTTL == 0 {
		c.AudioTTL = def.AudioTTL
	}
	if c.Audio.SampleRate == 0 {
		c.Audio = def.Audio
	}
	return c
}

// Store reads and writes session data in Redis.
type Store struct {
	client *redis.Client
	cfg    Config
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("store: connect to redis at %s: %w", cfg.Addr, err)
	}
	return &Store{client: client, cfg: cfg}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping verifies the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// SaveSession writes a finished session record and indexes it in the
// recent-session list. Call once per session, after it ends.
func (s *Store) SaveSession(ctx context.Context, rec types.SessionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("store: session record has no id")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encode session %s: %w", rec.ID, err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, sessionKeyPrefix+rec.ID, data, s.cfg.SessionTTL)
	pipe.LPush(ctx, recentKey, rec.ID)
	pipe.LTrim(ctx, recentKey, 0, maxRecent-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: save session %s: %w", rec.ID, err)
	}
	return nil
}

// LoadSession fetches a session record by id.
func (s *Store) LoadSession(ctx context.Context, id string) (*types.SessionRecord, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load session %s: %w", id, err)
	}
	var rec types.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("store: decode session %s: %w", id, err)
	}
	return &rec, nil
}

// RecentSessionIDs returns up to n session ids, newest first.
func (s *Store) RecentSessionIDs(ctx context.Context, n int64) ([]string, error) {
	if n <= 0 {
		n = maxRecent
	}
	ids, err := s.client.LRange(ctx, recentKey, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("store: list recent sessions: %w", err)
	}
	return ids, nil
}

// ArchiveUtterance stores one utterance's PCM as a WAV blob and returns
// the key it lives under. Satisfies the live session's archiver
// dependency.
func (s *Store) ArchiveUtterance(ctx context.Context, sessionID string, seq int, pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", fmt.Errorf("store: empty utterance")
	}
	key := fmt.Sprintf("%s%s:%d", audioKeyPrefix, sessionID, seq)
	wav := audio.EncodeWAV(s.cfg.Audio, pcm)
	if err := s.client.Set(ctx, key, wav, s.cfg.AudioTTL).Err(); err != nil {
		return "", fmt.Errorf("store: archive utterance %s: %w", key, err)
	}
	return key, nil
}

// LoadUtterance fetches archived utterance audio (WAV bytes) by the key
// ArchiveUtterance returned.
func (s *Store) LoadUtterance(ctx context.Context, ref string) ([]byte, error) {
	data, err := s.client.Get(ctx, ref).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load utterance %s: %w", ref, err)
	}
	return data, nil
}
