package lifecycle

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	apperrors "admission-portal/internal/common/errors"

	"github.com/redis/go-redis/v9"
)

// MaxSequence is the largest value that fits the five-digit suffix.
const MaxSequence = 99999

// IDGenerator yields candidate application ids for a year. A candidate may
// already be taken; FinalizeSubmission verifies and retries.
type IDGenerator interface {
	Next(ctx context.Context, year int) (string, error)
}

// FormatApplicationID renders MUST-APP-2026-00042.
func FormatApplicationID(prefix string, year int, n int64) string {
	return fmt.Sprintf("%s-%d-%05d", prefix, year, n)
}

// RandomSequence draws the suffix uniformly from 1..99999.
type RandomSequence struct {
	Prefix string
	intn   func(n int64) int64
}

func NewRandomSequence(prefix string) *RandomSequence {
	return &RandomSequence{Prefix: prefix, intn: rand.Int64N}
}

func (g *RandomSequence) Next(_ context.Context, year int) (string, error) {
	return FormatApplicationID(g.Prefix, year, g.intn(MaxSequence)+1), nil
}

// RedisSequence issues a monotonic per-year sequence from a Redis counter.
type RedisSequence struct {
	client    redis.Cmdable
	prefix    string
	keyPrefix string
}

func NewRedisSequence(client redis.Cmdable, prefix string) *RedisSequence {
	return &RedisSequence{client: client, prefix: prefix, keyPrefix: "admission:appid:"}
}

func (g *RedisSequence) key(year int) string {
	return g.keyPrefix + strconv.Itoa(year)
}

func (g *RedisSequence) Next(ctx context.Context, year int) (string, error) {
	n, err := g.client.Incr(ctx, g.key(year)).Result()
	if err != nil {
		return "", apperrors.NewResourceUnavailableError("redis", err)
	}
	if n > MaxSequence {
		return "", apperrors.NewIDGenerationExhaustedError(0).
			WithMetadata("year", year).
			WithMetadata("sequence", n)
	}
	return FormatApplicationID(g.prefix, year, n), nil
}

// FixedSequence replays a list of ids and then repeats the last one. Used
// by tests and by tooling that must reproduce an id.
type FixedSequence struct {
	IDs []string

	mu  sync.Mutex
	pos int
}

func (g *FixedSequence) Next(context.Context, int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.IDs) == 0 {
		return "", fmt.Errorf("fixed sequence is empty")
	}
	id := g.IDs[min(g.pos, len(g.IDs)-1)]
	g.pos++
	return id, nil
}

func yearOf(t time.Time) int { return t.UTC().Year() }
