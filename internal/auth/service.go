package auth

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/bundlehub/bundlehub/internal/ratelimit"
	"github.com/bundlehub/bundlehub/internal/user"
)

var (
	// ErrEmailTaken indicates a signup for an already registered email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials covers unknown emails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRateLimited indicates too many failed logins inside the window.
	ErrRateLimited = errors.New("too many login attempts")
	// ErrTokenExpired indicates the session token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers malformed tokens and bad signatures.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrSessionRevoked indicates the token predates a logout-all.
	ErrSessionRevoked = errors.New("session revoked")
)

// Session pairs an issued token with the authenticated account.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      user.User
}

// Service implements signup, login, federated login and token validation.
// The login rate limiter is injected so its lifecycle stays explicit.
type Service struct {
	users      user.Repository
	limiter    ratelimit.Limiter
	secret     []byte
	tokenTTL   time.Duration
	adminEmail string
}

// NewService constructs the authenticator.
func NewService(users user.Repository, limiter ratelimit.Limiter, secret string, tokenTTL time.Duration, adminEmail string) *Service {
	return &Service{
		users:      users,
		limiter:    limiter,
		secret:     []byte(secret),
		tokenTTL:   tokenTTL,
		adminEmail: adminEmail,
	}
}

// SignUp registers a new account and issues a session. Emails are matched
// exactly as stored.
func (s *Service) SignUp(ctx context.Context, email, password, name string) (Session, error) {
	if email == "" || password == "" {
		return Session{}, fmt.Errorf("email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, err
	}

	u := user.User{
		Email:          email,
		Name:           name,
		PasswordHash:   hash,
		Role:           s.roleFor(email),
		SessionVersion: 1,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, user.ErrExists) {
			return Session{}, ErrEmailTaken
		}
		return Session{}, err
	}

	return s.issue(u)
}

// Login verifies credentials, enforcing the failed-attempt window before the
// password is even checked.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	if email == "" || password == "" {
		return Session{}, fmt.Errorf("email and password are required")
	}

	allowed, err := s.limiter.Allowed(ctx, email)
	if err == nil && !allowed {
		return Session{}, ErrRateLimited
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		_ = s.limiter.RecordFailure(ctx, email)
		return Session{}, ErrInvalidCredentials
	}

	upgraded, ok := verifyPassword(u.PasswordHash, password)
	if !ok {
		_ = s.limiter.RecordFailure(ctx, email)
		return Session{}, ErrInvalidCredentials
	}
	if upgraded != nil {
		// Legacy plaintext credential accepted once and re-stored as a hash.
		u.PasswordHash = upgraded
		if err := s.users.SetPassword(ctx, u.Email, upgraded); err != nil {
			return Session{}, err
		}
	}

	_ = s.limiter.Reset(ctx, email)
	return s.issue(u)
}

// FederatedLogin accepts an externally issued identity assertion, provisions
// the account on first sight and issues a session.
//
// The assertion's payload is decoded without verifying the provider
// signature. Known security gap; tracked in DESIGN.md.
func (s *Service) FederatedLogin(ctx context.Context, assertion string) (Session, error) {
	email, name, err := decodeAssertion(assertion)
	if err != nil {
		return Session{}, err
	}

	u, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, user.ErrNotFound) {
		u = user.User{
			Email:          email,
			Name:           name,
			Role:           s.roleFor(email),
			SessionVersion: 1,
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.users.Create(ctx, u); err != nil && !errors.Is(err, user.ErrExists) {
			return Session{}, err
		}
	} else if err != nil {
		return Session{}, err
	}

	return s.issue(u)
}

// Validate checks the token signature, expiry and session version, returning
// the acting user.
func (s *Service) Validate(ctx context.Context, token string) (user.User, error) {
	claims, err := parseToken(token, s.secret)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return user.User{}, ErrTokenExpired
		}
		return user.User{}, ErrTokenInvalid
	}

	u, err := s.users.FindByEmail(ctx, claims.Email)
	if err != nil {
		return user.User{}, ErrTokenInvalid
	}
	if u.SessionVersion != claims.SessionVersion {
		return user.User{}, ErrSessionRevoked
	}
	return u, nil
}

// LogoutAll bumps the session version, invalidating every previously issued
// token for the account. The bump is a targeted increment in the store so a
// concurrent ledger write can never undo it.
func (s *Service) LogoutAll(ctx context.Context, email string) error {
	return s.users.BumpSessionVersion(ctx, email)
}

func (s *Service) issue(u user.User) (Session, error) {
	token, exp, err := signToken(u.Email, u.SessionVersion, s.secret, s.tokenTTL)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: exp, User: u}, nil
}

func (s *Service) roleFor(email string) string {
	if s.adminEmail != "" && email == s.adminEmail {
		return user.RoleAdmin
	}
	return user.RoleUser
}

// verifyPassword checks the candidate against the stored credential. When the
// stored value is a legacy plaintext password the comparison is constant-time
// and a replacement bcrypt hash is returned for the caller to persist.
func verifyPassword(stored []byte, password string) (upgraded []byte, ok bool) {
	if len(stored) == 0 {
		return nil, false
	}
	if strings.HasPrefix(string(stored), "$2") {
		return nil, bcrypt.CompareHashAndPassword(stored, []byte(password)) == nil
	}
	if subtle.ConstantTimeCompare(stored, []byte(password)) != 1 {
		return nil, false
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, false
	}
	return hash, true
}

type assertionPayload struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func decodeAssertion(assertion string) (email, name string, err error) {
	parts := strings.Split(assertion, ".")
	if len(parts) < 2 || parts[1] == "" {
		return "", "", ErrTokenInvalid
	}
	segment := parts[1]
	if n := len(segment) % 4; n != 0 {
		segment += strings.Repeat("=", 4-n)
	}
	raw, err := base64.URLEncoding.DecodeString(segment)
	if err != nil {
		return "", "", ErrTokenInvalid
	}
	var payload assertionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", "", ErrTokenInvalid
	}
	if payload.Email == "" {
		return "", "", ErrTokenInvalid
	}
	return payload.Email, payload.Name, nil
}
