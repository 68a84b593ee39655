package redis

import (
	"context"
	"errors"
	"fmt"
	"whitelistbot/internal/types"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	userKeyNameTemplate = "_wlbot_user_%s"

	fieldExternalID  = "external_id"
	fieldDisplayName = "display_name"
	fieldWhitelist   = "whitelist"

	// maxTxRetries bounds optimistic WATCH retries on a contended user key.
	maxTxRetries = 5
	scanCount    = 100
)

// UserStore keeps one hash per user. The whitelist field holds the encoded entry list so a
// replace is a single HSET inside a WATCH/MULTI transaction.
type UserStore struct {
	cli *redis.Client
}

func NewUserStore(cli *redis.Client) *UserStore {
	return &UserStore{cli: cli}
}

func (s *UserStore) FindUser(ctx context.Context, externalID string) (*types.UserRecord, error) {
	m, err := s.cli.HGetAll(ctx, getUserKeyName(externalID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, types.Err(types.ErrDataStoreAccess, err, "get user %s", externalID)
	}
	if len(m) == 0 {
		return nil, nil
	}
	return decodeUser(externalID, m)
}

func (s *UserStore) ListAllUsers(ctx context.Context) ([]types.UserRecord, error) {
	prefixLen := len(getUserKeyName(""))
	var users []types.UserRecord
	iter := s.cli.Scan(ctx, 0, getUserKeyName("*"), scanCount).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		m, err := s.cli.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, types.Err(types.ErrDataStoreAccess, err, "get %s", key)
		}
		if len(m) == 0 {
			// deleted between SCAN and HGETALL
			continue
		}
		u, err := decodeUser(key[prefixLen:], m)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := iter.Err(); err != nil {
		return nil, types.Err(types.ErrDataStoreAccess, err, "scan users")
	}
	return users, nil
}

func (s *UserStore) UpdateWhitelist(ctx context.Context, externalID string, entries []types.WhitelistEntry) (*types.UserRecord, error) {
	encoded, err := encodeEntries(entries)
	if err != nil {
		return nil, err
	}
	key := getUserKeyName(externalID)
	var updated *types.UserRecord
	txf := func(tx *redis.Tx) error {
		updated = nil
		m, err := tx.HGetAll(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if len(m) == 0 {
			return nil
		}
		u, err := decodeUser(externalID, m)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldWhitelist, encoded)
			return nil
		})
		if err != nil {
			return err
		}
		u.WhitelistEntries = types.UserRecord{WhitelistEntries: entries}.Clone().WhitelistEntries
		updated = u
		return nil
	}
	if err := s.watch(ctx, txf, key); err != nil {
		return nil, types.Err(types.ErrDataStoreAccess, err, "update whitelist of %s", externalID)
	}
	return updated, nil
}

func (s *UserStore) CreateUser(ctx context.Context, rec types.UserRecord) (*types.UserRecord, error) {
	encoded, err := encodeEntries(rec.WhitelistEntries)
	if err != nil {
		return nil, err
	}
	key := getUserKeyName(rec.ExternalID)
	var stored *types.UserRecord
	txf := func(tx *redis.Tx) error {
		m, err := tx.HGetAll(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if len(m) > 0 {
			stored, err = decodeUser(rec.ExternalID, m)
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, map[string]any{
				fieldExternalID:  rec.ExternalID,
				fieldDisplayName: rec.DisplayName,
				fieldWhitelist:   encoded,
			})
			return nil
		})
		if err != nil {
			return err
		}
		c := rec.Clone()
		if c.WhitelistEntries == nil {
			c.WhitelistEntries = []types.WhitelistEntry{}
		}
		stored = &c
		return nil
	}
	if err := s.watch(ctx, txf, key); err != nil {
		return nil, types.Err(types.ErrDataStoreAccess, err, "create user %s", rec.ExternalID)
	}
	return stored, nil
}

func (s *UserStore) ClearAll(ctx context.Context) error {
	keys, err := s.cli.Keys(ctx, getUserKeyName("*")).Result()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.cli.Del(ctx, keys...).Err()
}

// watch runs txf under WATCH key, retrying when another client touched the key first.
func (s *UserStore) watch(ctx context.Context, txf func(*redis.Tx) error, key string) error {
	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = s.cli.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		log.WithField("key", key).Debug("redis transaction raced, retrying")
	}
	return err
}

func decodeUser(externalID string, m map[string]string) (*types.UserRecord, error) {
	entries, err := decodeEntries(m[fieldWhitelist])
	if err != nil {
		return nil, types.Err(types.ErrDataStoreAccess, err, "invalid whitelist for %s", externalID)
	}
	id := m[fieldExternalID]
	if id == "" {
		id = externalID
	}
	return &types.UserRecord{
		ExternalID:       id,
		DisplayName:      m[fieldDisplayName],
		WhitelistEntries: entries,
	}, nil
}

func getUserKeyName(externalID string) string {
	return fmt.Sprintf(userKeyNameTemplate, externalID)
}
