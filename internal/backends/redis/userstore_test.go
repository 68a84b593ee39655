package redis

import (
	"context"
	"os"
	"testing"
	"whitelistbot/internal/types"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

// UnitTestSuite runs the codec tests everywhere and the store tests only when TEST_REDIS_ADDR
// points at a scratch Redis (e.g. localhost:46379).
type UnitTestSuite struct {
	suite.Suite

	store *UserStore
}

func TestUnitTestSuite(t *testing.T) {
	suite.Run(t, new(UnitTestSuite))
}

func (s *UnitTestSuite) SetupTest() {
	s.store = nil
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		return
	}
	s.store = NewUserStore(redis.NewClient(&redis.Options{Addr: addr, DB: 0}))
	s.NoError(s.store.ClearAll(context.Background()))
}

func (s *UnitTestSuite) requireRedis() {
	if s.store == nil {
		s.T().Skip("TEST_REDIS_ADDR not set")
	}
}

func (s *UnitTestSuite) TestCodec() {
	entries := []types.WhitelistEntry{
		{SteamID: "76561198000000001", Name: "main"},
		{SteamID: "76561198000000002"},
	}
	enc, err := encodeEntries(entries)
	s.NoError(err)
	got, err := decodeEntries(enc)
	s.NoError(err)
	s.Equal(entries, got)

	got, err = decodeEntries("")
	s.NoError(err)
	s.Equal([]types.WhitelistEntry{}, got)

	_, err = decodeEntries("not base64!")
	s.Error(err)
}

func (s *UnitTestSuite) TestStoreLifecycle() {
	s.requireRedis()
	ctx := context.Background()

	u, err := s.store.FindUser(ctx, "u1")
	s.NoError(err)
	s.Nil(u)

	created, err := s.store.CreateUser(ctx, types.UserRecord{ExternalID: "u1", DisplayName: "alice"})
	s.NoError(err)
	s.Equal("alice", created.DisplayName)
	s.Empty(created.WhitelistEntries)

	updated, err := s.store.UpdateWhitelist(ctx, "u1", []types.WhitelistEntry{{SteamID: "76561198000000001"}})
	s.NoError(err)
	s.Len(updated.WhitelistEntries, 1)

	again, err := s.store.CreateUser(ctx, types.UserRecord{ExternalID: "u1"})
	s.NoError(err)
	s.Len(again.WhitelistEntries, 1)

	missing, err := s.store.UpdateWhitelist(ctx, "ghost", nil)
	s.NoError(err)
	s.Nil(missing)

	_, err = s.store.CreateUser(ctx, types.UserRecord{ExternalID: "u2"})
	s.NoError(err)
	users, err := s.store.ListAllUsers(ctx)
	s.NoError(err)
	s.Len(users, 2)
}
