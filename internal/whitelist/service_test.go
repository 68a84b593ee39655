package whitelist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"whitelistbot/internal/backends/memory"
	"whitelistbot/internal/cache"
	"whitelistbot/internal/types"

	"github.com/stretchr/testify/suite"
)

const (
	sidA = "76561198000000001"
	sidB = "76561198000000002"
	sidC = "76561198000000003"
)

type recordingSink struct {
	mu     sync.Mutex
	events []types.AuditEvent
	err    error
}

func (r *recordingSink) Record(_ context.Context, ev types.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingSink) recorded() []types.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.AuditEvent(nil), r.events...)
}

type UnitTestSuite struct {
	suite.Suite

	store    *memory.UserStore
	cache    *cache.UserCache
	sink     *recordingSink
	maxSlots int
	svc      *Service
	alice    Identity
}

func TestUnitTestSuite(t *testing.T) {
	suite.Run(t, new(UnitTestSuite))
}

func (s *UnitTestSuite) SetupTest() {
	s.store = memory.NewUserStore()
	s.cache = cache.New(s.store)
	s.sink = &recordingSink{}
	s.maxSlots = 2
	s.svc = NewService(s.cache, s.store, s.sink, func() int { return s.maxSlots })
	s.alice = Identity{ExternalID: "alice-id", DisplayName: "alice"}
}

func (s *UnitTestSuite) seed(id string, steamIDs ...string) {
	rec := types.UserRecord{ExternalID: id, WhitelistEntries: []types.WhitelistEntry{}}
	for _, sid := range steamIDs {
		rec.WhitelistEntries = append(rec.WhitelistEntries, types.WhitelistEntry{SteamID: sid})
	}
	_, err := s.store.CreateUser(context.Background(), rec)
	s.NoError(err)
}

func (s *UnitTestSuite) stored(id string) types.UserRecord {
	u, err := s.store.FindUser(context.Background(), id)
	s.NoError(err)
	s.NotNil(u)
	return *u
}

func (s *UnitTestSuite) TestAddAccepted() {
	s.seed(s.alice.ExternalID)
	res, err := s.svc.Add(context.Background(), s.alice, sidA, "main account")
	s.NoError(err)
	s.Equal(Accepted, res.Kind)
	s.Equal(sidA, res.SteamID)
	s.True(res.OK())
	s.Equal([]types.WhitelistEntry{{SteamID: sidA, Name: "main account"}}, s.stored(s.alice.ExternalID).WhitelistEntries)

	events := s.sink.recorded()
	s.Len(events, 1)
	s.Equal(types.AuditWhitelistAdd, events[0].Type)
	s.Equal(sidA, events[0].SteamID)
	s.Equal(types.AuditMessage(types.AuditWhitelistAdd, "alice", sidA), events[0].Message)
}

func (s *UnitTestSuite) TestAddSameSteamIDTwice() {
	ctx := context.Background()
	s.seed(s.alice.ExternalID)

	res, err := s.svc.Add(ctx, s.alice, sidA, "")
	s.NoError(err)
	s.Equal(Accepted, res.Kind)

	updates := s.store.UpdateCalls
	res, err = s.svc.Add(ctx, s.alice, sidA, "another name")
	s.NoError(err)
	s.Equal(RejectedDuplicate, res.Kind)
	s.Equal(sidA, res.SteamID)
	s.Len(s.stored(s.alice.ExternalID).WhitelistEntries, 1)
	s.Equal(updates, s.store.UpdateCalls)
}

func (s *UnitTestSuite) TestAddAtCapacity() {
	s.seed(s.alice.ExternalID, sidA, sidB)
	res, err := s.svc.Add(context.Background(), s.alice, sidC, "")
	s.NoError(err)
	s.Equal(Result{Kind: RejectedCapacity, SteamID: sidC, Current: 2, Max: 2}, res)
	s.Equal(0, s.store.UpdateCalls)
	s.Equal([]types.WhitelistEntry{{SteamID: sidA}, {SteamID: sidB}}, s.stored(s.alice.ExternalID).WhitelistEntries)
	s.Empty(s.sink.recorded())
}

func (s *UnitTestSuite) TestCapacityCheckedBeforeFormat() {
	s.seed(s.alice.ExternalID, sidA, sidB)
	res, err := s.svc.Add(context.Background(), s.alice, "abc", "")
	s.NoError(err)
	s.Equal(RejectedCapacity, res.Kind)
}

func (s *UnitTestSuite) TestCapacityCheckedBeforeDuplicate() {
	s.seed(s.alice.ExternalID, sidA, sidB)
	res, err := s.svc.Add(context.Background(), s.alice, sidA, "")
	s.NoError(err)
	s.Equal(RejectedCapacity, res.Kind)
}

func (s *UnitTestSuite) TestCapacityReadPerRequest() {
	ctx := context.Background()
	s.seed(s.alice.ExternalID, sidA, sidB)

	res, _ := s.svc.Add(ctx, s.alice, sidC, "")
	s.Equal(RejectedCapacity, res.Kind)

	s.maxSlots = 3
	res, err := s.svc.Add(ctx, s.alice, sidC, "")
	s.NoError(err)
	s.Equal(Accepted, res.Kind)
}

func (s *UnitTestSuite) TestAddRejectsBadFormat() {
	s.seed(s.alice.ExternalID)
	res, err := s.svc.Add(context.Background(), s.alice, "abc", "")
	s.NoError(err)
	s.Equal(RejectedFormat, res.Kind)
	s.Equal("abc", res.SteamID)
	s.Equal(0, s.store.UpdateCalls)

	res, err = s.svc.Add(context.Background(), s.alice, "76561198000000000", "")
	s.NoError(err)
	s.Equal(Accepted, res.Kind)
}

func (s *UnitTestSuite) TestAddRejectsEmptyInputWithoutIO() {
	// no user seeded: empty input must stop before resolution
	for _, in := range []string{"", "   "} {
		res, err := s.svc.Add(context.Background(), s.alice, in, "")
		s.NoError(err)
		s.Equal(RejectedEmptyInput, res.Kind)
	}
	s.Equal(0, s.store.ListCalls)
}

func (s *UnitTestSuite) TestAddMakesCacheCoherent() {
	s.seed(s.alice.ExternalID)
	s.NoError(s.cache.Refresh(context.Background()))

	res, err := s.svc.Add(context.Background(), s.alice, sidA, "")
	s.NoError(err)
	s.Equal(Accepted, res.Kind)

	u, ok := s.cache.Lookup(s.alice.ExternalID)
	s.True(ok)
	s.True(u.HasSteamID(sidA))
}

func (s *UnitTestSuite) TestAddUninitializedUserIsFault() {
	res, err := s.svc.Add(context.Background(), s.alice, sidA, "")
	s.Error(err)
	s.True(errors.Is(err, types.ErrUserNotInitialized))
	s.Equal(InternalError, res.Kind)
	s.Equal(0, s.store.UpdateCalls)
}

func (s *UnitTestSuite) TestAddStoreFailure() {
	s.seed(s.alice.ExternalID)
	boom := errors.New("write timeout")
	s.store.FailUpdate = boom

	res, err := s.svc.Add(context.Background(), s.alice, sidA, "")
	s.True(errors.Is(err, boom))
	s.False(errors.Is(err, types.ErrUserNotInitialized))
	s.Equal(InternalError, res.Kind)
	s.Empty(s.sink.recorded())

	u, _ := s.cache.Lookup(s.alice.ExternalID)
	s.Empty(u.WhitelistEntries)
}

func (s *UnitTestSuite) TestAddRefreshFailureAfterCommit() {
	ctx := context.Background()
	s.seed(s.alice.ExternalID)
	s.NoError(s.cache.Refresh(ctx))
	s.store.FailList = errors.New("scan failed")

	res, err := s.svc.Add(ctx, s.alice, sidA, "")
	s.Error(err)
	s.Equal(InternalError, res.Kind)
	// committed and audited even though the cache could not be reloaded
	s.Len(s.stored(s.alice.ExternalID).WhitelistEntries, 1)
	s.Len(s.sink.recorded(), 1)
}

func (s *UnitTestSuite) TestAuditFailureDoesNotFailAdd() {
	s.seed(s.alice.ExternalID)
	s.sink.err = errors.New("channel unavailable")

	res, err := s.svc.Add(context.Background(), s.alice, sidA, "")
	s.NoError(err)
	s.Equal(Accepted, res.Kind)
	s.Len(s.stored(s.alice.ExternalID).WhitelistEntries, 1)
}

func (s *UnitTestSuite) TestConcurrentAddsRespectCapacity() {
	ctx := context.Background()
	s.seed(s.alice.ExternalID)
	s.maxSlots = 3
	ids := []string{
		"76561198000000010", "76561198000000011", "76561198000000012",
		"76561198000000013", "76561198000000014", "76561198000000015",
	}

	var wg sync.WaitGroup
	results := make([]Result, len(ids))
	for i, sid := range ids {
		wg.Add(1)
		go func(i int, sid string) {
			defer wg.Done()
			res, err := s.svc.Add(ctx, s.alice, sid, "")
			s.NoError(err)
			results[i] = res
		}(i, sid)
	}
	wg.Wait()

	accepted := 0
	for _, r := range results {
		if r.Kind == Accepted {
			accepted++
		} else {
			s.Equal(RejectedCapacity, r.Kind)
		}
	}
	s.Equal(3, accepted)
	s.Len(s.stored(s.alice.ExternalID).WhitelistEntries, 3)
	s.Equal(0, s.svc.locks.size())
}

func (s *UnitTestSuite) TestConcurrentDuplicateAdds() {
	ctx := context.Background()
	s.seed(s.alice.ExternalID)

	var wg sync.WaitGroup
	var mu sync.Mutex
	kinds := map[Kind]int{}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.svc.Add(ctx, s.alice, sidA, "")
			s.NoError(err)
			mu.Lock()
			kinds[res.Kind]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	s.Equal(1, kinds[Accepted])
	s.Equal(4, kinds[RejectedDuplicate])
}

func (s *UnitTestSuite) TestRemove() {
	ctx := context.Background()
	s.seed(s.alice.ExternalID, sidA, sidB)

	res, err := s.svc.Remove(ctx, s.alice, sidA)
	s.NoError(err)
	s.Equal(Removed, res.Kind)
	s.Equal([]types.WhitelistEntry{{SteamID: sidB}}, s.stored(s.alice.ExternalID).WhitelistEntries)

	u, _ := s.cache.Lookup(s.alice.ExternalID)
	s.False(u.HasSteamID(sidA))

	res, err = s.svc.Remove(ctx, s.alice, sidA)
	s.NoError(err)
	s.Equal(RejectedNotFound, res.Kind)

	res, _ = s.svc.Remove(ctx, s.alice, "abc")
	s.Equal(RejectedFormat, res.Kind)

	res, _ = s.svc.Remove(ctx, s.alice, "")
	s.Equal(RejectedEmptyInput, res.Kind)

	events := s.sink.recorded()
	s.Len(events, 1)
	s.Equal(types.AuditWhitelistRemove, events[0].Type)
}

func (s *UnitTestSuite) TestRemoveFreesCapacity() {
	ctx := context.Background()
	s.seed(s.alice.ExternalID, sidA, sidB)

	res, _ := s.svc.Remove(ctx, s.alice, sidB)
	s.Equal(Removed, res.Kind)
	res, _ = s.svc.Add(ctx, s.alice, sidC, "")
	s.Equal(Accepted, res.Kind)
	s.Equal([]types.WhitelistEntry{{SteamID: sidA}, {SteamID: sidC}}, s.stored(s.alice.ExternalID).WhitelistEntries)
}

func (s *UnitTestSuite) TestList() {
	ctx := context.Background()
	s.seed(s.alice.ExternalID, sidA)
	entries, err := s.svc.List(ctx, s.alice)
	s.NoError(err)
	s.Equal([]types.WhitelistEntry{{SteamID: sidA}}, entries)

	_, err = s.svc.List(ctx, Identity{ExternalID: "nobody"})
	s.True(errors.Is(err, types.ErrUserNotInitialized))
}

func (s *UnitTestSuite) TestEnsureUser() {
	ctx := context.Background()
	u, err := s.svc.EnsureUser(ctx, s.alice)
	s.NoError(err)
	s.Equal(s.alice.ExternalID, u.ExternalID)
	s.Equal("alice", s.stored(s.alice.ExternalID).DisplayName)

	// existing user is kept as is
	_, err = s.store.UpdateWhitelist(ctx, s.alice.ExternalID, []types.WhitelistEntry{{SteamID: sidA}})
	s.NoError(err)
	s.NoError(s.cache.Refresh(ctx))
	u, err = s.svc.EnsureUser(ctx, s.alice)
	s.NoError(err)
	s.Len(u.WhitelistEntries, 1)

	res, err := s.svc.Add(ctx, s.alice, sidB, "")
	s.NoError(err)
	s.Equal(Accepted, res.Kind)
}

func (s *UnitTestSuite) TestResultMessages() {
	s.Contains(Result{Kind: Accepted, SteamID: sidA}.Message(), sidA)
	s.Equal("You have hit your limit of whitelisted steamIDs(2/2). Please remove some before attempting to add new ones.",
		Result{Kind: RejectedCapacity, Current: 2, Max: 2}.Message())
	s.Equal("Internal server error occurred", Result{Kind: InternalError}.Message())
	for k := range StatusTextMap {
		s.NotEmpty(Result{Kind: k}.Message())
		s.NotEmpty(Result{Kind: k}.Status())
	}
}
