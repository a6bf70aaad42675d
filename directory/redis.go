package directory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldID        = "id"
	fieldName      = "name"
	fieldQuota     = "quota"
	fieldCreatedAt = "created_at"
)

// createClientScript writes the client hash only if it does not exist yet.
const createClientScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "id", ARGV[1], "name", ARGV[2], "quota", ARGV[3], "created_at", ARGV[4])
return 1
`

var createClientLua = redis.NewScript(createClientScript)

// Redis is a [Store] keeping one hash per client.
type Redis struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// NewRedis returns a Redis directory. Keys are <prefix>client:<digest>.
func NewRedis(client redis.UniversalClient, prefix string, timeout time.Duration) *Redis {
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}
	return &Redis{client: client, prefix: prefix, timeout: timeout}
}

func (r *Redis) key(digest string) string {
	return r.prefix + "client:" + digest
}

// LookupByDigest implements [Directory].
func (r *Redis) LookupByDigest(ctx context.Context, digest string) (Client, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	fields, err := r.client.HGetAll(ctx, r.key(digest)).Result()
	if err != nil {
		return Client{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return Client{}, ErrNotFound
	}

	quota, err := strconv.Atoi(fields[fieldQuota])
	if err != nil || quota <= 0 {
		// A record without a usable quota cannot be gated; treat it as unknown.
		return Client{}, ErrNotFound
	}

	c := Client{
		ID:               fields[fieldID],
		Name:             fields[fieldName],
		CredentialDigest: digest,
		QuotaPerMinute:   quota,
	}
	if ts, err := strconv.ParseInt(fields[fieldCreatedAt], 10, 64); err == nil {
		c.CreatedAt = time.Unix(ts, 0).UTC()
	}
	return c, nil
}

// Create implements [Registrar].
func (r *Redis) Create(ctx context.Context, c Client) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	created, err := createClientLua.Run(ctx, r.client,
		[]string{r.key(c.CredentialDigest)},
		c.ID, c.Name, c.QuotaPerMinute, c.CreatedAt.Unix(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if created == 0 {
		return ErrClientExists
	}
	return nil
}

var _ Store = (*Redis)(nil)
