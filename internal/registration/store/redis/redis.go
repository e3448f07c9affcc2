// Package redis stores registrations as JSON strings in Redis. Commits use
// optimistic WATCH/MULTI transactions over the document key and the
// transaction id index key, retried a bounded number of times.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"

	"outbreak/internal/registration/models"
	"outbreak/internal/registration/store"
	dErrors "outbreak/pkg/domain-errors"
	"outbreak/pkg/platform/sentinel"
)

const (
	DefaultPrefix     = store.Collection
	DefaultMaxRetries = 5
)

type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore persists registrations in Redis.
type RedisStore struct {
	client     redis.UniversalClient
	prefix     string
	maxRetries int
}

type Option func(*RedisStore)

// WithPrefix namespaces every key.
func WithPrefix(prefix string) Option {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithMaxRetries bounds optimistic transaction retries.
func WithMaxRetries(n int) Option {
	return func(s *RedisStore) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

func NewRedis(client redis.UniversalClient, opts ...Option) *RedisStore {
	s := &RedisStore{
		client:     client,
		prefix:     DefaultPrefix,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) docKey(key string) string {
	return s.prefix + ":doc:" + key
}

func (s *RedisStore) indexKey(field models.Field, value string) string {
	return s.prefix + ":idx:" + string(field) + ":" + value
}

func (s *RedisStore) allKey() string {
	return s.prefix + ":all"
}

func (s *RedisStore) FindByKey(ctx context.Context, key string) (*models.Registration, error) {
	return s.get(ctx, s.client, key)
}

func (s *RedisStore) get(ctx context.Context, c reader, key string) (*models.Registration, error) {
	raw, err := c.Get(ctx, s.docKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, classify(err, "find registration by key")
	}
	return decode(raw)
}

func (s *RedisStore) ExistsByField(ctx context.Context, field models.Field, value string) (bool, error) {
	return s.exists(ctx, s.client, field, value)
}

func (s *RedisStore) exists(ctx context.Context, c reader, field models.Field, value string) (bool, error) {
	if !field.IsValid() {
		return false, dErrors.New(dErrors.CodeBadRequest, "unsupported field: "+string(field))
	}
	n, err := c.Exists(ctx, s.indexKey(field, value)).Result()
	if err != nil {
		return false, classify(err, "check registration field")
	}
	return n > 0, nil
}

func (s *RedisStore) List(ctx context.Context) ([]*models.Registration, error) {
	keys, err := s.client.ZRevRange(ctx, s.allKey(), 0, -1).Result()
	if err != nil {
		return nil, classify(err, "list registrations")
	}
	if len(keys) == 0 {
		return nil, nil
	}
	docKeys := make([]string, len(keys))
	for i, k := range keys {
		docKeys[i] = s.docKey(k)
	}
	vals, err := s.client.MGet(ctx, docKeys...).Result()
	if err != nil {
		return nil, classify(err, "load registrations")
	}
	out := make([]*models.Registration, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		reg, err := decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	return out, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return classify(s.client.Ping(ctx).Err(), "ping redis")
}

// RunInTx runs fn under WATCH. Keys read through the Tx are watched; if any of
// them changes before EXEC the unit is retried from the start.
func (s *RedisStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	ctx, cancel := store.WithTxDeadline(ctx)
	defer cancel()

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
			t := &redisTx{store: s, rtx: rtx}
			if err := fn(ctx, t); err != nil {
				return err
			}
			return t.exec(ctx)
		})
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err == nil {
			return nil
		}
		var de *dErrors.Error
		if errors.Is(err, sentinel.ErrAlreadyUsed) || errors.Is(err, sentinel.ErrNotFound) || errors.As(err, &de) {
			return err
		}
		return classify(err, "commit transaction")
	}
	return fmt.Errorf("commit transaction: %w: too much contention", sentinel.ErrUnavailable)
}

type redisTx struct {
	store   *RedisStore
	rtx     *redis.Tx
	pending []*models.Registration
}

func (t *redisTx) Get(ctx context.Context, key string) (*models.Registration, error) {
	if err := t.rtx.Watch(ctx, t.store.docKey(key)).Err(); err != nil {
		return nil, classify(err, "watch registration key")
	}
	return t.store.get(ctx, t.rtx, key)
}

func (t *redisTx) TransactionIDExists(ctx context.Context, transactionID string) (bool, error) {
	idx := t.store.indexKey(models.FieldTransactionID, transactionID)
	if err := t.rtx.Watch(ctx, idx).Err(); err != nil {
		return false, classify(err, "watch transaction id")
	}
	return t.store.exists(ctx, t.rtx, models.FieldTransactionID, transactionID)
}

func (t *redisTx) Create(ctx context.Context, reg *models.Registration) error {
	err := t.rtx.Watch(ctx,
		t.store.docKey(reg.ID),
		t.store.indexKey(models.FieldTransactionID, reg.Payment.TransactionID),
	).Err()
	if err != nil {
		return classify(err, "watch registration")
	}
	t.pending = append(t.pending, reg)
	return nil
}

func (t *redisTx) exec(ctx context.Context) error {
	if len(t.pending) == 0 {
		return nil
	}
	s := t.store
	_, err := t.rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, reg := range t.pending {
			raw, err := json.Marshal(reg)
			if err != nil {
				return fmt.Errorf("marshal registration: %w", err)
			}
			pipe.SetNX(ctx, s.docKey(reg.ID), raw, 0)
			pipe.SetNX(ctx, s.indexKey(models.FieldTransactionID, reg.Payment.TransactionID), reg.ID, 0)
			pipe.SAdd(ctx, s.indexKey(models.FieldTeamName, reg.TeamName), reg.ID)
			pipe.SAdd(ctx, s.indexKey(models.FieldLeaderRegNo, reg.TeamLeader.RegNo), reg.ID)
			pipe.ZAdd(ctx, s.allKey(), redis.Z{Score: float64(reg.SubmittedAt.UnixMilli()), Member: reg.ID})
		}
		return nil
	})
	return err
}

func decode(raw []byte) (*models.Registration, error) {
	var reg models.Registration
	if err := json.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("unmarshal registration: %w", err)
	}
	return &reg, nil
}

// classify maps client errors onto sentinel errors.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	switch {
	case errors.As(err, &netErr), errors.Is(err, redis.ErrClosed):
		return fmt.Errorf("%s: %w: %v", op, sentinel.ErrUnavailable, err)
	case strings.HasPrefix(err.Error(), "OOM"), strings.HasPrefix(err.Error(), "LOADING"):
		return fmt.Errorf("%s: %w: %v", op, sentinel.ErrResourceExhausted, err)
	case strings.HasPrefix(err.Error(), "BUSY"), strings.HasPrefix(err.Error(), "TRYAGAIN"):
		return fmt.Errorf("%s: %w: %v", op, sentinel.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
