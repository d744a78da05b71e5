package notifications

import (
	"context"
	"fmt"
	"sync"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/store"
)

// DefaultHistorySize caps the in-memory unread list of a user.
const DefaultHistorySize = 50

// Service keeps per-user unread entries. The durable store is the source
// of truth; inboxes cache the newest entries and are loaded on first use.
// An inbox that caches nothing is forgotten, so memory is bounded by the
// users with unread entries times the cap.
type Service struct {
	store store.UnreadStore
	limit int

	mu      sync.Mutex
	inboxes map[int64]*inbox
}

type inbox struct {
	mu      sync.Mutex
	loaded  bool
	// dead marks an inbox the service forgot; callers fetch a fresh one.
	dead    bool
	entries []*store.UnreadEntry // newest first
}

// New creates a notification service. A non-positive limit picks the default.
func New(st store.UnreadStore, limit int) *Service {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	return &Service{
		store:   st,
		limit:   limit,
		inboxes: make(map[int64]*inbox),
	}
}

func (s *Service) inbox(userID int64) *inbox {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.inboxes[userID]
	if !ok {
		in = &inbox{}
		s.inboxes[userID] = in
	}
	return in
}

// acquire returns the user's inbox locked.
func (s *Service) acquire(userID int64) *inbox {
	for {
		in := s.inbox(userID)
		in.mu.Lock()
		if !in.dead {
			return in
		}
		in.mu.Unlock()
	}
}

// release unlocks an inbox and forgets it when it caches nothing.
func (s *Service) release(userID int64, in *inbox) {
	if len(in.entries) == 0 {
		s.mu.Lock()
		if s.inboxes[userID] == in {
			delete(s.inboxes, userID)
		}
		s.mu.Unlock()
		in.dead = true
	}
	in.mu.Unlock()
}

// load fills the inbox from the store. Callers hold in.mu.
func (s *Service) load(ctx context.Context, userID int64, in *inbox) error {
	if in.loaded {
		return nil
	}
	entries, err := s.store.ListUnread(ctx, userID, s.limit)
	if err != nil {
		return fmt.Errorf("load unread: %w", err)
	}
	in.entries = entries
	in.loaded = true
	return nil
}

// RecordUnread stores an entry durably, then adds it to the cached inbox.
func (s *Service) RecordUnread(ctx context.Context, entry *store.UnreadEntry) error {
	in := s.acquire(entry.RecipientID)
	defer s.release(entry.RecipientID, in)

	if err := s.store.SaveUnread(ctx, entry); err != nil {
		return fmt.Errorf("save unread: %w", err)
	}
	if !in.loaded {
		return nil
	}
	in.entries = append([]*store.UnreadEntry{entry}, in.entries...)
	if len(in.entries) > s.limit {
		in.entries = in.entries[:s.limit]
	}
	return nil
}

// MarkRead flags one entry read. The cache is only touched after the store
// accepted the change. Marking an entry that is already read is a no-op.
func (s *Service) MarkRead(ctx context.Context, userID, messageID int64) (bool, error) {
	in := s.acquire(userID)
	defer s.release(userID, in)

	changed, err := s.store.MarkRead(ctx, userID, messageID)
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	s.drop(in, func(e *store.UnreadEntry) bool { return e.MessageID == messageID })
	return changed, nil
}

// MarkAllRead flags every entry of the user read.
func (s *Service) MarkAllRead(ctx context.Context, userID int64) (int, error) {
	in := s.acquire(userID)
	defer s.release(userID, in)

	n, err := s.store.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	in.entries = nil
	in.loaded = true
	return n, nil
}

// MarkConversationRead flags the entries of one conversation read and
// returns their message IDs.
func (s *Service) MarkConversationRead(ctx context.Context, userID, conversationID int64) ([]int64, error) {
	in := s.acquire(userID)
	defer s.release(userID, in)

	ids, err := s.store.MarkConversationRead(ctx, userID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("mark conversation read: %w", err)
	}
	s.drop(in, func(e *store.UnreadEntry) bool { return e.ConversationID == conversationID })
	return ids, nil
}

// FetchPending returns the newest unread entries of the user.
func (s *Service) FetchPending(ctx context.Context, userID int64) ([]*store.UnreadEntry, error) {
	in := s.acquire(userID)
	defer s.release(userID, in)

	if err := s.load(ctx, userID, in); err != nil {
		return nil, err
	}
	out := make([]*store.UnreadEntry, len(in.entries))
	copy(out, in.entries)
	return out, nil
}

// UnreadCount returns the total number of unread entries, beyond the cap too.
func (s *Service) UnreadCount(ctx context.Context, userID int64) (int, error) {
	n, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

// drop removes matching entries from the cache. A full cache may hide
// older entries in the store, so it is reloaded on the next fetch.
func (s *Service) drop(in *inbox, match func(*store.UnreadEntry) bool) {
	full := len(in.entries) >= s.limit
	in.remove(match)
	if full {
		in.loaded = false
	}
}

func (in *inbox) remove(match func(*store.UnreadEntry) bool) {
	kept := in.entries[:0]
	for _, e := range in.entries {
		if !match(e) {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(in.entries); i++ {
		in.entries[i] = nil
	}
	in.entries = kept
}
