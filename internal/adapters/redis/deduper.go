package redis

import (
	"context"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/okian/prix/internal/domain/dedupe"
	"github.com/okian/prix/pkg/logger"
)

const (
	defaultKeyPrefix = "prix:dedupe:"
	defaultTTL       = 24 * time.Hour
)

// Deduper records prix ids with SET NX so every instance sharing the Redis
// database agrees on which ids were already accepted.
type Deduper struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
	size   atomic.Int64
	logger logger.Logger
}

var _ dedupe.Deduper = (*Deduper)(nil)

// DeduperOption applies a configuration option to the Deduper.
type DeduperOption func(*Deduper)

// WithKeyPrefix sets the namespace for dedupe keys.
func WithKeyPrefix(prefix string) DeduperOption {
	return func(d *Deduper) {
		if prefix != "" {
			d.prefix = prefix
		}
	}
}

// WithTTL sets how long an id is remembered. Zero keeps ids forever.
func WithTTL(ttl time.Duration) DeduperOption {
	return func(d *Deduper) {
		if ttl >= 0 {
			d.ttl = ttl
		}
	}
}

// NewDeduper creates a Deduper on top of an existing client.
func NewDeduper(c *Client, opts ...DeduperOption) *Deduper {
	d := &Deduper{
		rdb:    c.rdb,
		prefix: defaultKeyPrefix,
		ttl:    defaultTTL,
		logger: logger.Get().Named("redis-dedupe"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SeenAndRecord reports whether id was already recorded, recording it if not.
// Redis errors are logged and treated as unseen; the store still rejects a
// prix id applied twice.
func (d *Deduper) SeenAndRecord(ctx context.Context, id string) bool {
	set, err := d.rdb.SetNX(ctx, d.key(id), "1", d.ttl).Result()
	if err != nil {
		d.logger.Warn(ctx, "dedupe check failed", logger.String("prix_id", id), logger.Error(err))
		return false
	}
	if set {
		d.size.Add(1)
		return false
	}
	return true
}

// Unrecord forgets id.
func (d *Deduper) Unrecord(ctx context.Context, id string) {
	n, err := d.rdb.Del(ctx, d.key(id)).Result()
	if err != nil {
		d.logger.Warn(ctx, "dedupe unrecord failed", logger.String("prix_id", id), logger.Error(err))
		return
	}
	if n > 0 {
		d.size.Add(-1)
	}
}

// Size returns the number of ids this instance recorded and still holds.
func (d *Deduper) Size() int64 {
	return d.size.Load()
}

func (d *Deduper) key(id string) string {
	return d.prefix + id
}
