// Package redisstore keeps parking slots and reservation statistics in Redis.
//
// Key layout, for prefix p:
//
//	p:seq            insertion counter
//	p:docs           zset of every doc id, scored by insertion order
//	p:by-id:<id>     zset of doc ids sharing logical id <id>
//	p:slot:<doc>     hash {id, occupied, reserved_at}
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/srikanta2006/smart-parking/internal/slots"
)

// maxReserveAttempts caps WATCH retries. A record is written at most once by
// Reserve, so a caller loses the optimistic race at most once before it
// observes occupied=1.
const maxReserveAttempts = 8

var errContention = errors.New("redisstore: reservation retries exhausted")

type Store struct {
	rdb    *redis.Client
	prefix string
}

type Option func(*Store)

func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = strings.Trim(prefix, ":") }
}

func New(rdb *redis.Client, opts ...Option) *Store {
	s := &Store{rdb: rdb, prefix: "parking"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) docsKey() string           { return s.prefix + ":docs" }
func (s *Store) seqKey() string            { return s.prefix + ":seq" }
func (s *Store) byIDKey(id int) string     { return s.prefix + ":by-id:" + strconv.Itoa(id) }
func (s *Store) slotKey(doc string) string { return s.prefix + ":slot:" + doc }

func (s *Store) List(ctx context.Context) ([]slots.Slot, error) {
	docs, err := s.rdb.ZRange(ctx, s.docsKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(docs))
	for i, doc := range docs {
		cmds[i] = pipe.HGetAll(ctx, s.slotKey(doc))
	}
	if len(docs) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, err
		}
	}

	out := make([]slots.Slot, 0, len(docs))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		slot, err := decodeSlot(docs[i], fields)
		if err != nil {
			return nil, err
		}
		out = append(out, slot)
	}
	return out, nil
}

// Reserve watches the first record for id and flips it in a MULTI/EXEC
// block, retrying when another client touched the record first.
func (s *Store) Reserve(ctx context.Context, id int, at time.Time) (slots.Slot, error) {
	docs, err := s.rdb.ZRange(ctx, s.byIDKey(id), 0, 0).Result()
	if err != nil {
		return slots.Slot{}, err
	}
	if len(docs) == 0 {
		return slots.Slot{}, slots.NotFound(id)
	}
	doc := docs[0]
	key := s.slotKey(doc)

	for attempt := 0; attempt < maxReserveAttempts; attempt++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			occupied, err := tx.HGet(ctx, key, "occupied").Result()
			if errors.Is(err, redis.Nil) {
				return slots.NotFound(id)
			}
			if err != nil {
				return err
			}
			if occupied == "1" {
				return slots.Occupied(id)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, "occupied", "1", "reserved_at", at.UTC().Format(time.RFC3339Nano))
				return nil
			})
			return err
		}, key)

		switch {
		case err == nil:
			return slots.Slot{ID: id, Occupied: true, DocID: doc, ReservedAt: &at}, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return slots.Slot{}, err
		}
	}
	return slots.Slot{}, errContention
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Seed(ctx context.Context, in []slots.Slot) error {
	for _, slot := range in {
		if slot.DocID == "" {
			slot.DocID = uuid.NewString()
		}
		seq, err := s.rdb.Incr(ctx, s.seqKey()).Result()
		if err != nil {
			return err
		}
		occupied := "0"
		if slot.Occupied {
			occupied = "1"
		}
		_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.slotKey(slot.DocID), "id", strconv.Itoa(slot.ID), "occupied", occupied)
			pipe.ZAdd(ctx, s.docsKey(), redis.Z{Score: float64(seq), Member: slot.DocID})
			pipe.ZAdd(ctx, s.byIDKey(slot.ID), redis.Z{Score: float64(seq), Member: slot.DocID})
			return nil
		})
		if err != nil {
			return fmt.Errorf("seed slot %d: %w", slot.ID, err)
		}
	}
	return nil
}

func decodeSlot(doc string, fields map[string]string) (slots.Slot, error) {
	id, err := strconv.Atoi(fields["id"])
	if err != nil {
		return slots.Slot{}, fmt.Errorf("redisstore: slot %s: bad id %q", doc, fields["id"])
	}
	slot := slots.Slot{ID: id, Occupied: fields["occupied"] == "1", DocID: doc}
	if v := fields["reserved_at"]; v != "" {
		at, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return slots.Slot{}, fmt.Errorf("redisstore: slot %s: bad reserved_at: %w", doc, err)
		}
		slot.ReservedAt = &at
	}
	return slot, nil
}
