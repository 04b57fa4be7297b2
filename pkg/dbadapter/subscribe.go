package dbadapter

import (
	"context"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fabricwire/swssd/pkg/swutil"
)

// Subscribe returns a channel of batched events for table, built on Redis
// keyspace notifications ("__keyspace@<db>__:TABLE|*"). Deliveries are
// batched up to the adapter's batch size (default DefaultBatchSize) to
// amortize syscalls, per spec.md §4.1. Ordering within a single key is
// preserved (Redis delivers pub/sub messages in publish order on one
// connection); ordering across keys is not guaranteed, matching §4.1.
//
// On a transient connection loss the subscription reconnects with
// exponential backoff starting at 100ms and capped at 5s; a permanent
// error (e.g. notify-keyspace-events disabled) is returned to the caller
// and the goroutine exits without retrying.
func (a *Adapter) Subscribe(ctx context.Context, table string) (<-chan []Event, error) {
	out := make(chan []Event, 4)

	pattern := subscribePattern(a.instance, table)
	pubsub := a.client.PSubscribe(ctx, pattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, classify(err)
	}

	go a.subscribeLoop(ctx, table, pattern, pubsub, out)
	return out, nil
}

func subscribePattern(instance DBInstance, table string) string {
	return "__keyspace@" + itoa(int(instance)) + "__:" + table + "|*"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func (a *Adapter) subscribeLoop(ctx context.Context, table, pattern string, pubsub *redis.PubSub, out chan<- []Event) {
	defer close(out)
	backoff := initialBackoff
	batch := make([]Event, 0, a.batchSize)
	flushTimer := time.NewTimer(200 * time.Millisecond)
	defer flushTimer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		cp := make([]Event, len(batch))
		copy(cp, batch)
		select {
		case out <- cp:
		case <-ctx.Done():
		}
		batch = batch[:0]
	}

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			flush()
			pubsub.Close()
			return
		case <-flushTimer.C:
			flush()
			flushTimer.Reset(200 * time.Millisecond)
		case msg, ok := <-msgs:
			if !ok {
				// Connection dropped; classify and either reconnect or give up.
				if err := a.reconnectSubscribe(ctx, pattern, &pubsub, &msgs, &backoff); err != nil {
					flush()
					return
				}
				continue
			}
			ev, keyErr := a.eventFromNotification(ctx, table, msg)
			if keyErr != nil {
				// Permanent parse failure for this one key; skip it, don't
				// tear down the whole subscription.
				swutil.WithTable(table).Warnf("subscribe: %v", keyErr)
				continue
			}
			batch = append(batch, ev)
			if len(batch) >= a.batchSize {
				flush()
			}
			backoff = initialBackoff
		}
	}
}

func (a *Adapter) reconnectSubscribe(ctx context.Context, pattern string, pubsub **redis.PubSub, msgs *<-chan *redis.Message, backoff *time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(*backoff):
		}
		np := a.client.PSubscribe(ctx, pattern)
		if _, err := np.Receive(ctx); err != nil {
			if !isTransientRedisErr(err) {
				np.Close()
				return err
			}
			*backoff *= 2
			if *backoff > maxBackoff {
				*backoff = maxBackoff
			}
			continue
		}
		*pubsub = np
		*msgs = np.Channel()
		return nil
	}
}

// eventFromNotification resolves a keyspace-notification payload (a
// bare Redis command name, e.g. "hset" or "del") back into a full Event
// by re-reading the entry. This trades an extra round trip for
// correctness: the notification itself carries no field values.
func (a *Adapter) eventFromNotification(ctx context.Context, table string, msg *redis.Message) (Event, error) {
	// msg.Channel is "__keyspace@<db>__:TABLE|key"; msg.Payload is the op.
	_, rk, ok := strings.Cut(msg.Channel, ":")
	if !ok {
		return Event{}, classify(errInvalidNotification(msg.Channel))
	}
	_, key, ok := strings.Cut(rk, "|")
	if !ok {
		return Event{}, classify(errInvalidNotification(msg.Channel))
	}

	if strings.EqualFold(msg.Payload, "del") || strings.EqualFold(msg.Payload, "expired") {
		return Event{Op: Delete, Table: table, Key: key}, nil
	}

	fields, ok, err := a.Read(ctx, table, key)
	if err != nil {
		return Event{}, err
	}
	if !ok {
		// Raced with a delete; surface as delete rather than a spurious set.
		return Event{Op: Delete, Table: table, Key: key}, nil
	}
	return Event{Op: Set, Table: table, Key: key, Fields: fields}, nil
}

type invalidNotificationError struct{ channel string }

func (e invalidNotificationError) Error() string {
	return "malformed keyspace notification channel: " + e.channel
}

func errInvalidNotification(channel string) error {
	return invalidNotificationError{channel: channel}
}
