// Package dbadapter is the database adapter of spec.md §4.1: it presents
// read/write/subscribe over the flat TABLE|key hash keyspace described in
// spec.md §6, backed by Redis exactly the way the teacher's
// pkg/newtron/device/sonic client wrappers talk to SONiC's config_db/
// state_db/appl_db/asic_db (per-instance *redis.Client, HGetAll/HSet over
// "TABLE|key" hashes, TxPipeline-based batched writes).
package dbadapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fabricwire/swssd/pkg/swutil"
)

// DBInstance numbers the logical database instances of spec.md §6.
type DBInstance int

const (
	ApplDB     DBInstance = 0
	AsicDB     DBInstance = 1
	CountersDB DBInstance = 2
	ConfigDB   DBInstance = 4
	StateDB    DBInstance = 6
)

func (d DBInstance) String() string {
	switch d {
	case ApplDB:
		return "APPL_DB"
	case AsicDB:
		return "ASIC_DB"
	case CountersDB:
		return "COUNTERS_DB"
	case ConfigDB:
		return "CONFIG_DB"
	case StateDB:
		return "STATE_DB"
	default:
		return fmt.Sprintf("DB_%d", int(d))
	}
}

// Op is the kind of change a subscribe() stream delivers.
type Op int

const (
	Set Op = iota
	Delete
)

func (o Op) String() string {
	if o == Delete {
		return "DEL"
	}
	return "SET"
}

// Event is one (operation, key, attributes) notification, spec.md §4.1.
type Event struct {
	Op     Op
	Table  string
	Key    string
	Fields map[string]string
}

// DefaultBatchSize amortizes subscribe-stream syscalls, spec.md §4.1.
const DefaultBatchSize = 128

// Backoff bounds for transient reconnect, spec.md §4.1.
const (
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Adapter is a connection to one logical database instance.
type Adapter struct {
	instance  DBInstance
	client    *redis.Client
	batchSize int
}

// New creates an adapter for the given instance at addr ("host:port").
// It does not connect eagerly; call Connect.
func New(addr string, instance DBInstance) *Adapter {
	return &Adapter{
		instance: instance,
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   int(instance),
		}),
		batchSize: DefaultBatchSize,
	}
}

// WithBatchSize overrides the default subscribe batch size.
func (a *Adapter) WithBatchSize(n int) *Adapter {
	a.batchSize = n
	return a
}

// Connect verifies connectivity, classifying the failure as transient or
// permanent per spec.md §4.1.
func (a *Adapter) Connect(ctx context.Context) error {
	if err := a.client.Ping(ctx).Err(); err != nil {
		return classify(err)
	}
	return nil
}

// Close releases the underlying connection.
func (a *Adapter) Close() error {
	return a.client.Close()
}

func redisKey(table, key string) string {
	return table + "|" + key
}

// Read fetches one table entry's attribute map. The second return value
// reports existence; a missing key is not an error.
func (a *Adapter) Read(ctx context.Context, table, key string) (map[string]string, bool, error) {
	vals, err := a.client.HGetAll(ctx, redisKey(table, key)).Result()
	if err != nil {
		return nil, false, classify(err)
	}
	if len(vals) == 0 {
		return nil, false, nil
	}
	return vals, true, nil
}

// Write sets a table entry's attribute map. An empty (non-nil) map
// writes the SONiC "NULL"/"NULL" sentinel field used for keys that carry
// no attributes of their own (e.g. a bare membership marker).
func (a *Adapter) Write(ctx context.Context, table, key string, fields map[string]string) error {
	rk := redisKey(table, key)
	if len(fields) == 0 {
		if err := a.client.HSet(ctx, rk, "NULL", "NULL").Err(); err != nil {
			return classify(err)
		}
		return nil
	}
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := a.client.HSet(ctx, rk, args...).Err(); err != nil {
		return classify(err)
	}
	return nil
}

// DeleteKey removes a table entry entirely.
func (a *Adapter) DeleteKey(ctx context.Context, table, key string) error {
	if err := a.client.Del(ctx, redisKey(table, key)).Err(); err != nil {
		return classify(err)
	}
	return nil
}

// WriteBatch applies a set of events atomically via a Redis MULTI/EXEC
// pipeline, the way the teacher's ConfigDBClient.PipelineSet does — all
// writes succeed or none do.
func (a *Adapter) WriteBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	pipe := a.client.TxPipeline()
	for _, ev := range events {
		rk := redisKey(ev.Table, ev.Key)
		switch ev.Op {
		case Delete:
			pipe.Del(ctx, rk)
		default:
			if len(ev.Fields) == 0 {
				pipe.HSet(ctx, rk, "NULL", "NULL")
				continue
			}
			args := make([]interface{}, 0, len(ev.Fields)*2)
			for k, v := range ev.Fields {
				args = append(args, k, v)
			}
			pipe.HSet(ctx, rk, args...)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return classify(err)
	}
	return nil
}

// Keys returns every key (without the "TABLE|" prefix) currently stored
// for table, via cursor-based SCAN (never the blocking KEYS command).
func (a *Adapter) Keys(ctx context.Context, table string) ([]string, error) {
	var out []string
	pattern := table + "|*"
	var cursor uint64
	for {
		batch, next, err := a.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, classify(err)
		}
		for _, k := range batch {
			if _, rest, ok := strings.Cut(k, "|"); ok {
				out = append(out, rest)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

// classify maps a go-redis error into spec.md §4.1's transient/permanent
// split. Network and timeout conditions are transient and should trigger
// a reconnect with backoff; anything else (including redis.Nil, which
// callers handle explicitly) is treated as permanent.
func classify(err error) error {
	if err == nil || err == redis.Nil {
		return err
	}
	if isTransientRedisErr(err) {
		return swutil.NewTransientError("database", err.Error())
	}
	return fmt.Errorf("database: %w", err)
}

func isTransientRedisErr(err error) bool {
	msg := err.Error()
	for _, needle := range []string{
		"connection refused", "timeout", "i/o timeout", "EOF",
		"broken pipe", "connection reset", "use of closed network connection",
		"context deadline exceeded", "LOADING",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
