package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avvvet/ludo-services/internal/gamesvc/models"
	"github.com/redis/go-redis/v9"
)

// drops the user index only while it still points at the deleted table
var unindexScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// TableStore keeps live tables in redis. Entries expire after ttl so an
// abandoned table cannot pin its user forever.
type TableStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewTableStore(rdb *redis.Client, ttl time.Duration) *TableStore {
	return &TableStore{rdb: rdb, ttl: ttl}
}

const tableKeyPrefix = "table:"

func tableKey(id string) string {
	return tableKeyPrefix + id
}

func userTableKey(userID string) string {
	return "user:" + userID + ":table"
}

func (s *TableStore) Get(ctx context.Context, tableID string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, tableKey(tableID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: table %s", models.ErrNotFound, tableID)
		}
		return nil, fmt.Errorf("get table %s: %w", tableID, err)
	}
	return data, nil
}

func (s *TableStore) Put(ctx context.Context, tableID string, state []byte, userID string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tableKey(tableID), state, s.ttl)
		if userID != "" {
			pipe.Set(ctx, userTableKey(userID), tableID, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put table %s: %w", tableID, err)
	}
	return nil
}

func (s *TableStore) Delete(ctx context.Context, tableID, userID string) error {
	if err := s.rdb.Del(ctx, tableKey(tableID)).Err(); err != nil {
		return fmt.Errorf("delete table %s: %w", tableID, err)
	}
	if userID == "" {
		return nil
	}
	if err := unindexScript.Run(ctx, s.rdb, []string{userTableKey(userID)}, tableID).Err(); err != nil {
		return fmt.Errorf("unindex table %s: %w", tableID, err)
	}
	return nil
}

func (s *TableStore) ActiveTableID(ctx context.Context, userID string) (string, error) {
	id, err := s.rdb.Get(ctx, userTableKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("active table of %s: %w", userID, err)
	}
	return id, nil
}

// ListIDs walks the table keyspace with SCAN so a large keyspace does not block redis.
func (s *TableStore) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.rdb.Scan(ctx, 0, tableKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), tableKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan tables: %w", err)
	}
	return ids, nil
}
