package whitelist

import (
	"context"
	"errors"
	"strings"
	"time"
	"whitelistbot/internal/cache"
	"whitelistbot/internal/ports"
	"whitelistbot/internal/types"

	log "github.com/sirupsen/logrus"
)

// Identity is the caller as seen by the chat platform.
type Identity struct {
	ExternalID  string
	DisplayName string
}

// Service validates and commits whitelist changes. Reads go through the user cache; writes
// go to the store and are followed by a full cache refresh.
type Service struct {
	cache     *cache.UserCache
	store     ports.UserStore
	audit     ports.AuditSink
	slotLimit func() int

	// Serializes read-check-write per user inside this process, so two concurrent adds can
	// not both pass the checks against the same snapshot.
	locks *keyedMutex
}

// NewService wires the service. slotLimit is called on every request; audit should not block
// (see audit.Async).
func NewService(c *cache.UserCache, store ports.UserStore, audit ports.AuditSink, slotLimit func() int) *Service {
	return &Service{
		cache:     c,
		store:     store,
		audit:     audit,
		slotLimit: slotLimit,
		locks:     newKeyedMutex(),
	}
}

// Add registers steamID (with an optional descriptive name) for the caller.
// Checks run in a fixed order and stop at the first violation without touching the store:
// empty input, capacity, format, duplicate. A returned error always comes with an
// InternalError result; an error matching types.ErrUserNotInitialized is a caller bug.
func (s *Service) Add(ctx context.Context, caller Identity, steamID, name string) (Result, error) {
	steamID = strings.TrimSpace(steamID)
	if steamID == "" {
		return Result{Kind: RejectedEmptyInput}, nil
	}

	unlock := s.locks.Lock(caller.ExternalID)
	defer unlock()

	user, err := s.cache.Retrieve(ctx, caller.ExternalID)
	if err != nil {
		return s.internal(caller, steamID, err)
	}

	maxSlots := s.maxSlots()
	if len(user.WhitelistEntries) >= maxSlots {
		return Result{Kind: RejectedCapacity, SteamID: steamID, Current: len(user.WhitelistEntries), Max: maxSlots}, nil
	}
	if !types.ValidSteamID(steamID) {
		return Result{Kind: RejectedFormat, SteamID: steamID}, nil
	}
	if user.HasSteamID(steamID) {
		return Result{Kind: RejectedDuplicate, SteamID: steamID}, nil
	}

	entries := append(user.WhitelistEntries, types.WhitelistEntry{SteamID: steamID, Name: strings.TrimSpace(name)})
	if err := s.commit(ctx, caller, user, entries, types.AuditWhitelistAdd, steamID); err != nil {
		return s.internal(caller, steamID, err)
	}
	return Result{Kind: Accepted, SteamID: steamID}, nil
}

// Remove deletes steamID from the caller's whitelist.
func (s *Service) Remove(ctx context.Context, caller Identity, steamID string) (Result, error) {
	steamID = strings.TrimSpace(steamID)
	if steamID == "" {
		return Result{Kind: RejectedEmptyInput}, nil
	}

	unlock := s.locks.Lock(caller.ExternalID)
	defer unlock()

	user, err := s.cache.Retrieve(ctx, caller.ExternalID)
	if err != nil {
		return s.internal(caller, steamID, err)
	}
	if !types.ValidSteamID(steamID) {
		return Result{Kind: RejectedFormat, SteamID: steamID}, nil
	}
	idx := types.IndexOfSteamID(user.WhitelistEntries, steamID)
	if idx < 0 {
		return Result{Kind: RejectedNotFound, SteamID: steamID}, nil
	}

	entries := append(user.WhitelistEntries[:idx:idx], user.WhitelistEntries[idx+1:]...)
	if err := s.commit(ctx, caller, user, entries, types.AuditWhitelistRemove, steamID); err != nil {
		return s.internal(caller, steamID, err)
	}
	return Result{Kind: Removed, SteamID: steamID}, nil
}

// List returns the caller's whitelist as currently cached.
func (s *Service) List(ctx context.Context, caller Identity) ([]types.WhitelistEntry, error) {
	user, err := s.cache.Retrieve(ctx, caller.ExternalID)
	if err != nil {
		return nil, err
	}
	if user.WhitelistEntries == nil {
		return []types.WhitelistEntry{}, nil
	}
	return user.WhitelistEntries, nil
}

// Capacity returns the current slot limit.
func (s *Service) Capacity() int { return s.maxSlots() }

// EnsureUser makes sure the caller has a store document and that the cache has seen it.
// Dispatchers call it before any whitelist command.
func (s *Service) EnsureUser(ctx context.Context, caller Identity) (types.UserRecord, error) {
	if u, ok := s.cache.Lookup(caller.ExternalID); ok {
		return u, nil
	}
	existing, err := s.store.FindUser(ctx, caller.ExternalID)
	if err != nil {
		return types.UserRecord{}, err
	}
	if existing == nil {
		if _, err := s.store.CreateUser(ctx, types.UserRecord{
			ExternalID:       caller.ExternalID,
			DisplayName:      caller.DisplayName,
			WhitelistEntries: []types.WhitelistEntry{},
		}); err != nil {
			return types.UserRecord{}, err
		}
		log.WithField("externalID", caller.ExternalID).Info("user initialized")
	}
	return s.cache.Retrieve(ctx, caller.ExternalID)
}

// commit writes the new whitelist, queues the audit event and refreshes the cache.
// The store write and the refresh are not transactional: a failed refresh leaves the store
// updated and the cache stale until the next refresh.
func (s *Service) commit(ctx context.Context, caller Identity, user types.UserRecord,
	entries []types.WhitelistEntry, eventType, steamID string) error {

	updated, err := s.store.UpdateWhitelist(ctx, user.ExternalID, entries)
	if err != nil {
		return err
	}
	if updated == nil {
		// Deleted behind our back; resync before reporting.
		if rerr := s.cache.Refresh(ctx); rerr != nil {
			log.WithError(rerr).Warn("cache refresh after missing update target failed")
		}
		return types.Err(types.ErrNotFound, nil, "user %s vanished before the whitelist update", user.ExternalID)
	}

	name := displayName(caller, user)
	// Record never blocks and its failures stay inside the sink.
	_ = s.audit.Record(ctx, types.AuditEvent{
		Type:        eventType,
		ExternalID:  user.ExternalID,
		DisplayName: name,
		SteamID:     steamID,
		Message:     types.AuditMessage(eventType, name, steamID),
		At:          time.Now().Unix(),
	})

	return s.cache.Refresh(ctx)
}

func (s *Service) internal(caller Identity, steamID string, err error) (Result, error) {
	entry := log.WithError(err).WithField("externalID", caller.ExternalID)
	if errors.Is(err, types.ErrUserNotInitialized) {
		entry.Error("whitelist command reached for an uninitialized user")
	} else {
		entry.Warn("whitelist command failed")
	}
	return Result{Kind: InternalError, SteamID: steamID}, err
}

func (s *Service) maxSlots() int {
	if s.slotLimit == nil {
		return types.DefaultMaxSlots
	}
	if n := s.slotLimit(); n > 0 {
		return n
	}
	return types.DefaultMaxSlots
}

func displayName(caller Identity, user types.UserRecord) string {
	switch {
	case caller.DisplayName != "":
		return caller.DisplayName
	case user.DisplayName != "":
		return user.DisplayName
	default:
		return user.ExternalID
	}
}
