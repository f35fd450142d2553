package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease key only when this instance still holds it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
end
return 0
`)

// refreshScript extends the lease only when this instance still holds it. A
// plain EXPIRE could extend a lease that lapsed and was re-acquired by
// another instance.
var refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// MailboxLease is a redis-backed exclusive lease on the shared mailbox. Only
// one poller instance may process the mailbox at a time; without the lease a
// second instance would double-fetch the same unseen messages.
type MailboxLease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// NewMailboxLease constructs a lease bound to a unique instance token.
func NewMailboxLease(client *redis.Client, key string, ttl time.Duration) *MailboxLease {
	return &MailboxLease{
		client: client,
		key:    key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Acquire attempts to take the lease. Returns false when another instance
// holds it.
func (l *MailboxLease) Acquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
}

// Refresh extends the lease while a polling session is active, but only if
// this instance is still the holder.
func (l *MailboxLease) Refresh(ctx context.Context) error {
	return refreshScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Err()
}

// Release drops the lease if this instance still owns it.
func (l *MailboxLease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}
