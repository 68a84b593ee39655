package memory

import (
	"context"
	"sort"
	"sync"

	"whitelistbot/internal/types"
)

// UserStore keeps user records in process memory. Every read and write copies the record so
// callers never alias stored slices.
type UserStore struct {
	mu    sync.Mutex
	users map[string]types.UserRecord

	// Calls counters, read by tests.
	ListCalls   int
	UpdateCalls int

	// FailList and FailUpdate inject store errors, used in tests.
	FailList   error
	FailUpdate error
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]types.UserRecord)}
}

func (s *UserStore) FindUser(_ context.Context, externalID string) (*types.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[externalID]
	if !ok {
		return nil, nil
	}
	c := u.Clone()
	return &c, nil
}

func (s *UserStore) ListAllUsers(_ context.Context) ([]types.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ListCalls++
	if s.FailList != nil {
		return nil, s.FailList
	}
	out := make([]types.UserRecord, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out, nil
}

func (s *UserStore) UpdateWhitelist(_ context.Context, externalID string, entries []types.WhitelistEntry) (*types.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdateCalls++
	if s.FailUpdate != nil {
		return nil, s.FailUpdate
	}
	u, ok := s.users[externalID]
	if !ok {
		return nil, nil
	}
	u.WhitelistEntries = types.UserRecord{WhitelistEntries: entries}.Clone().WhitelistEntries
	s.users[externalID] = u
	c := u.Clone()
	return &c, nil
}

func (s *UserStore) CreateUser(_ context.Context, rec types.UserRecord) (*types.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[rec.ExternalID]; ok {
		c := u.Clone()
		return &c, nil
	}
	if rec.WhitelistEntries == nil {
		rec.WhitelistEntries = []types.WhitelistEntry{}
	}
	s.users[rec.ExternalID] = rec.Clone()
	c := rec.Clone()
	return &c, nil
}

func (s *UserStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[string]types.UserRecord)
	return nil
}
