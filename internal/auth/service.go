package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized is returned when a token is missing, invalid, expired or revoked.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUserExists is returned when creating a user with an existing username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

// Identity is an authenticated user with the expiry of the presented token.
type Identity struct {
	User      *store.User
	ExpiresAt time.Time
}

// Service provides authentication operations.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig

	mu sync.Mutex
	// Logout count per user. Tokens carrying a lower generation are rejected.
	generations map[int64]uint64
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:       userStore,
		jwtConfig:   jwtConfig,
		generations: make(map[int64]uint64),
	}
}

// CreateUser adds a staff account with the given roles. Accounts are
// provisioned by administrators; there is no self-registration.
func (s *Service) CreateUser(ctx context.Context, username, displayName, password string, roles []string) (*store.User, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 32 {
		return nil, ErrInvalidUsername
	}
	hashedPassword, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := s.store.CreateUser(ctx, username, strings.TrimSpace(displayName), hashedPassword)
	if errors.Is(err, store.ErrConflict) {
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if len(roles) > 0 {
		if err := s.SetRoles(ctx, user.ID, roles); err != nil {
			return nil, err
		}
		user.Roles = normalizeRoles(roles)
	}
	return user, nil
}

// SetRoles replaces the role tags of a user.
func (s *Service) SetRoles(ctx context.Context, userID int64, roles []string) error {
	if err := s.store.SetUserRoles(ctx, userID, normalizeRoles(roles)); err != nil {
		return fmt.Errorf("set roles: %w", err)
	}
	return nil
}

// Login validates credentials and returns a JWT token.
func (s *Service) Login(ctx context.Context, username, password string) (string, *store.User, error) {
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", nil, fmt.Errorf("load user: %w", err)
	}
	hash := ""
	if user != nil {
		hash = user.PasswordHash
	}
	if err := checkPassword(hash, password); err != nil {
		return "", nil, err
	}

	token, _, err := issueToken(s.jwtConfig, user.ID, user.Username, s.generation(user.ID))
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}

	return token, user, nil
}

// ValidateToken validates a JWT token and returns the claims.
// Tokens issued before the user's last logout are rejected.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims, err := ParseToken(s.jwtConfig, tokenString)
	if err != nil {
		return nil, err
	}

	if claims.Generation < s.generation(claims.UserID) {
		return nil, fmt.Errorf("token revoked")
	}
	return claims, nil
}

// Authenticate validates a token and loads the user with current roles.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, ErrUnauthorized
	}
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: user no longer exists", ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &Identity{User: user, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Logout rejects every token of the user issued so far.
func (s *Service) Logout(userID int64) {
	s.mu.Lock()
	s.generations[userID]++
	s.mu.Unlock()
}

func (s *Service) generation(userID int64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[userID]
}

func normalizeRoles(roles []string) []string {
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.ToUpper(strings.TrimSpace(r))
		if r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
