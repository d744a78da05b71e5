package conversations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/core"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/store"
)

// DefaultSuperuserRole is the role tag whose holders belong to every group.
const DefaultSuperuserRole = "SUPERUSER"

// Common errors for conversation resolution.
var (
	ErrCannotMessageSelf = fmt.Errorf("%w: cannot open a conversation with yourself", core.ErrInvalidTarget)
	ErrUserNotFound      = fmt.Errorf("%w: user not found", core.ErrInvalidTarget)
	ErrRoleRequired      = fmt.Errorf("%w: role required", core.ErrInvalidTarget)
	ErrSuperuserGroup    = fmt.Errorf("%w: the superuser role has no group", core.ErrInvalidTarget)
)

// GroupSummary describes a role group offered to a user.
type GroupSummary struct {
	Role           string `json:"role"`
	Members        int    `json:"members"`
	ConversationID int64  `json:"conversation_id,omitempty"`
}

// Service resolves targets to durable conversations.
// Group membership is derived from role assignments on every call.
type Service struct {
	store     store.Store
	superuser string

	locksMu sync.Mutex
	locks   map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a conversation service. An empty superuser role picks the default.
func New(st store.Store, superuserRole string) *Service {
	if superuserRole == "" {
		superuserRole = DefaultSuperuserRole
	}
	return &Service{
		store:     st,
		superuser: superuserRole,
		locks:     make(map[string]*keyLock),
	}
}

// SuperuserRole returns the elevated role tag.
func (s *Service) SuperuserRole() string {
	return s.superuser
}

// DirectKey is the unordered pair key of a direct conversation.
func DirectKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("dm:%d:%d", a, b)
}

// Resolve dispatches on the target kind. For group targets the sender
// must be a member.
func (s *Service) Resolve(ctx context.Context, senderID int64, target core.Target) (core.Resolution, error) {
	switch target.Kind {
	case core.TargetUser:
		return s.ResolveDirect(ctx, senderID, target.UserID)
	case core.TargetRole:
		res, ok, err := s.ResolveGroup(ctx, target.Role)
		if err != nil {
			return core.Resolution{}, err
		}
		if !ok {
			return core.Resolution{}, core.ErrNotApplicable
		}
		if !res.HasMember(senderID) {
			return core.Resolution{}, core.ErrForbidden
		}
		return res, nil
	default:
		return core.Resolution{}, fmt.Errorf("%w: unknown target kind %q", core.ErrInvalidTarget, target.Kind)
	}
}

// ResolveDirect finds or creates the direct conversation of two users.
func (s *Service) ResolveDirect(ctx context.Context, a, b int64) (core.Resolution, error) {
	if a == b {
		return core.Resolution{}, ErrCannotMessageSelf
	}
	ua, err := s.user(ctx, a)
	if err != nil {
		return core.Resolution{}, err
	}
	ub, err := s.user(ctx, b)
	if err != nil {
		return core.Resolution{}, err
	}

	key := DirectKey(a, b)
	conv, err := s.findOrCreate(ctx, key,
		func() (*store.Conversation, error) { return s.store.GetConversationByDirectKey(ctx, key) },
		&store.Conversation{Kind: store.ConversationDirect, DirectKey: key},
	)
	if err != nil {
		return core.Resolution{}, err
	}

	return core.Resolution{
		Conversation: conv,
		Members:      sortMembers([]core.Member{member(ua), member(ub)}),
	}, nil
}

// ResolveGroup finds or creates the group of a role. ok is false when the
// role has no eligible members; nothing is created in that case.
func (s *Service) ResolveGroup(ctx context.Context, role string) (core.Resolution, bool, error) {
	role = strings.TrimSpace(role)
	if role == "" {
		return core.Resolution{}, false, ErrRoleRequired
	}
	if role == s.superuser {
		return core.Resolution{}, false, ErrSuperuserGroup
	}

	members, err := s.groupMembers(ctx, role)
	if err != nil {
		return core.Resolution{}, false, err
	}
	if len(members) == 0 {
		return core.Resolution{}, false, nil
	}

	conv, err := s.findOrCreate(ctx, "role:"+role,
		func() (*store.Conversation, error) { return s.store.GetConversationByRole(ctx, role) },
		&store.Conversation{Kind: store.ConversationGroup, Role: role},
	)
	if err != nil {
		return core.Resolution{}, false, err
	}
	return core.Resolution{Conversation: conv, Members: members}, true, nil
}

// Lookup returns an existing conversation with its current membership.
func (s *Service) Lookup(ctx context.Context, conversationID int64) (core.Resolution, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return core.Resolution{}, core.ErrNotFound
	}
	if err != nil {
		return core.Resolution{}, fmt.Errorf("get conversation: %w", err)
	}
	members, err := s.Participants(ctx, conv)
	if err != nil {
		return core.Resolution{}, err
	}
	return core.Resolution{Conversation: conv, Members: members}, nil
}

// Participants computes the membership of an existing conversation.
func (s *Service) Participants(ctx context.Context, conv *store.Conversation) ([]core.Member, error) {
	if conv.Kind == store.ConversationGroup {
		return s.groupMembers(ctx, conv.Role)
	}

	a, b, err := parseDirectKey(conv.DirectKey)
	if err != nil {
		return nil, err
	}
	var members []core.Member
	for _, id := range []int64{a, b} {
		u, err := s.store.GetUserByID(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			// A removed account still participates by ID.
			members = append(members, core.Member{UserID: id})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get user %d: %w", id, err)
		}
		members = append(members, member(u))
	}
	return members, nil
}

// ListGroupsVisibleTo returns the role groups the user may open. A group
// needs at least two holders of the role itself. Superusers are members of
// every group but do not count toward that minimum, so a role with one
// holder stays hidden even though it has two members. Superusers see every
// listed group.
func (s *Service) ListGroupsVisibleTo(ctx context.Context, userID int64) ([]GroupSummary, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.CountRoleHolders(ctx)
	if err != nil {
		return nil, fmt.Errorf("count role holders: %w", err)
	}

	elevated := u.HasRole(s.superuser)
	groups := make([]GroupSummary, 0)
	for role, n := range counts {
		if role == s.superuser || n < 2 {
			continue
		}
		if !elevated && !u.HasRole(role) {
			continue
		}
		summary := GroupSummary{Role: role, Members: n}
		if conv, err := s.store.GetConversationByRole(ctx, role); err == nil {
			summary.ConversationID = conv.ID
		}
		groups = append(groups, summary)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Role < groups[j].Role })
	return groups, nil
}

// ListUsers returns the staff directory without the viewer.
func (s *Service) ListUsers(ctx context.Context, viewerID int64) ([]*store.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := users[:0]
	for _, u := range users {
		if u.ID != viewerID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Service) groupMembers(ctx context.Context, role string) ([]core.Member, error) {
	users, err := s.store.ListUsersWithRoles(ctx, role, s.superuser)
	if err != nil {
		return nil, fmt.Errorf("list role holders: %w", err)
	}
	members := make([]core.Member, 0, len(users))
	for _, u := range users {
		members = append(members, member(u))
	}
	return sortMembers(members), nil
}

// findOrCreate reads a conversation and creates it when missing. Creation
// is serialized per key in-process; a conflict from the store means another
// process won the race, so the row is read again.
func (s *Service) findOrCreate(ctx context.Context, key string, get func() (*store.Conversation, error), proto *store.Conversation) (*store.Conversation, error) {
	conv, err := get()
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	unlock := s.lock(key)
	defer unlock()

	conv, err = get()
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	created := *proto
	err = s.store.CreateConversation(ctx, &created)
	if errors.Is(err, store.ErrConflict) {
		conv, err = get()
		if err != nil {
			return nil, fmt.Errorf("re-read conversation after conflict: %w", err)
		}
		return conv, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &created, nil
}

func (s *Service) lock(key string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.locksMu.Unlock()
	}
}

func (s *Service) user(ctx context.Context, id int64) (*store.User, error) {
	u, err := s.store.GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func member(u *store.User) core.Member {
	return core.Member{UserID: u.ID, Name: u.Name()}
}

func sortMembers(members []core.Member) []core.Member {
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members
}

func parseDirectKey(key string) (int64, int64, error) {
	var a, b int64
	if _, err := fmt.Sscanf(key, "dm:%d:%d", &a, &b); err != nil {
		return 0, 0, fmt.Errorf("malformed direct key %q: %w", key, err)
	}
	return a, b, nil
}
