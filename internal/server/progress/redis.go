package progress

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/audionotes/internal/common"
	"github.com/go-redis/redis/v8"
)

type redisClient interface {
	HGetAll(ctx context.Context, key string) *redis.StringStringMapCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd
	ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd
	ScriptLoad(ctx context.Context, script string) *redis.StringCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// saveScript writes the hash unless it holds a different session that
// started later. ARGV: session_id, started_at (unix µs), ttl (ms), then
// field/value pairs.
var saveScript = redis.NewScript(`
local owner = redis.call('HGET', KEYS[1], 'session_id')
local started = redis.call('HGET', KEYS[1], 'started_at')
if owner and owner ~= ARGV[1] and started and tonumber(started) > tonumber(ARGV[2]) then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 4))
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// RedisTracker stores each session as the hash upload:<noteID>.
type RedisTracker struct {
	client redisClient
	ttl    time.Duration
}

func NewRedisTracker(opts *redis.Options, ttl time.Duration) *RedisTracker {
	return newRedisTracker(redis.NewClient(opts), ttl)
}

func newRedisTracker(c redisClient, ttl time.Duration) *RedisTracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisTracker{client: c, ttl: ttl}
}

func sessionKey(noteID string) string {
	return "upload:" + noteID
}

func (r *RedisTracker) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisTracker) Close() error {
	return r.client.Close()
}

func formatMicros(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMicro(), 10)
}

func parseMicros(s string) time.Time {
	us, err := strconv.ParseInt(s, 10, 64)
	if err != nil || us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}

func (r *RedisTracker) Save(ctx context.Context, s Snapshot) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}

	key := sessionKey(s.NoteID)
	started := formatMicros(s.StartedAt)
	args := []interface{}{
		s.SessionID, started, r.ttl.Milliseconds(),
		"note_id", s.NoteID,
		"session_id", s.SessionID,
		"filename", s.Filename,
		"file_size", strconv.FormatInt(s.Declared, 10),
		"received", strconv.FormatInt(s.Received, 10),
		"progress", strconv.FormatFloat(s.Progress, 'f', 2, 64),
		"state", s.State,
		"message", s.Message,
		"started_at", started,
		"updated_at", s.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}

	if err := saveScript.Run(ctx, r.client, []string{key}, args...).Err(); err != nil {
		return fmt.Errorf("redis save %s: %w", key, err)
	}
	return nil
}

func (r *RedisTracker) Get(ctx context.Context, noteID string) (*Snapshot, error) {
	key := sessionKey(noteID)
	m, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", key, err)
	}
	if len(m) == 0 {
		return nil, common.ErrorNotFound
	}

	s := &Snapshot{
		NoteID:    m["note_id"],
		SessionID: m["session_id"],
		Filename:  m["filename"],
		State:     m["state"],
		Message:   m["message"],
	}
	if s.NoteID == "" {
		s.NoteID = noteID
	}
	// Fields are written by Save; a malformed value is reported as zero.
	s.Declared, _ = strconv.ParseInt(m["file_size"], 10, 64)
	s.Received, _ = strconv.ParseInt(m["received"], 10, 64)
	s.Progress, _ = strconv.ParseFloat(m["progress"], 64)
	s.StartedAt = parseMicros(m["started_at"])
	s.UpdatedAt, _ = time.Parse(time.RFC3339Nano, m["updated_at"])

	return s, nil
}
