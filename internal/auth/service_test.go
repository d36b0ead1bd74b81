package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bundlehub/bundlehub/internal/ledger"
	"github.com/bundlehub/bundlehub/internal/ratelimit"
	"github.com/bundlehub/bundlehub/internal/user"
)

const adminEmail = "owner@bundlehub.test"

func newTestService(users user.Repository) *Service {
	limiter := ratelimit.NewMemoryLimiter(5, 15*time.Minute)
	return NewService(users, limiter, "test-secret", time.Hour, adminEmail)
}

func TestSignUpAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(user.NewMemoryRepository())

	session, err := svc.SignUp(ctx, "e@x.com", "hunter22", "Efua")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if session.Token == "" {
		t.Fatal("signup issued no token")
	}
	if session.User.Role != user.RoleUser {
		t.Fatalf("expected role user, got %s", session.User.Role)
	}
	if session.User.SessionVersion != 1 {
		t.Fatalf("expected session version 1, got %d", session.User.SessionVersion)
	}

	logged, err := svc.Login(ctx, "e@x.com", "hunter22")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	validated, err := svc.Validate(ctx, logged.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if validated.Email != "e@x.com" {
		t.Fatalf("unexpected user: %s", validated.Email)
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(user.NewMemoryRepository())

	if _, err := svc.SignUp(ctx, "e@x.com", "hunter22", ""); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, err := svc.SignUp(ctx, "e@x.com", "other", ""); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected email taken, got %v", err)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(user.NewMemoryRepository())

	if _, err := svc.SignUp(ctx, "e@x.com", "hunter22", ""); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, err := svc.Login(ctx, "e@x.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "missing@x.com", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email must look like bad credentials, got %v", err)
	}
}

func TestLoginRateLimited(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(user.NewMemoryRepository())

	if _, err := svc.SignUp(ctx, "e@x.com", "hunter22", ""); err != nil {
		t.Fatalf("signup: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := svc.Login(ctx, "e@x.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}

	// Sixth attempt is rejected before the password is checked.
	if _, err := svc.Login(ctx, "e@x.com", "hunter22"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
}

func TestLoginResetsWindowOnSuccess(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(user.NewMemoryRepository())

	if _, err := svc.SignUp(ctx, "e@x.com", "hunter22", ""); err != nil {
		t.Fatalf("signup: %v", err)
	}

	for i := 0; i < 4; i++ {
		svc.Login(ctx, "e@x.com", "wrong") // nolint:errcheck
	}
	if _, err := svc.Login(ctx, "e@x.com", "hunter22"); err != nil {
		t.Fatalf("login within window: %v", err)
	}
	// The window cleared; failures start counting from zero again.
	for i := 0; i < 4; i++ {
		if _, err := svc.Login(ctx, "e@x.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected invalid credentials, got %v", err)
		}
	}
}

func TestLegacyPlaintextPasswordUpgraded(t *testing.T) {
	ctx := context.Background()
	users := user.NewMemoryRepository()
	svc := newTestService(users)

	err := users.Create(ctx, user.User{
		Email:          "legacy@x.com",
		PasswordHash:   []byte("oldpass"),
		Role:           user.RoleUser,
		SessionVersion: 1,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	if _, err := svc.Login(ctx, "legacy@x.com", "oldpass"); err != nil {
		t.Fatalf("legacy login: %v", err)
	}

	stored, err := users.FindByEmail(ctx, "legacy@x.com")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !strings.HasPrefix(string(stored.PasswordHash), "$2") {
		t.Fatalf("password was not re-hashed: %q", stored.PasswordHash)
	}
	if err := bcrypt.CompareHashAndPassword(stored.PasswordHash, []byte("oldpass")); err != nil {
		t.Fatalf("upgraded hash does not match password: %v", err)
	}

	if _, err := svc.Login(ctx, "legacy@x.com", "oldpass"); err != nil {
		t.Fatalf("login after upgrade: %v", err)
	}
}

func TestLogoutAllRevokesOldTokens(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(user.NewMemoryRepository())

	session, err := svc.SignUp(ctx, "e@x.com", "hunter22", "")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	if err := svc.LogoutAll(ctx, "e@x.com"); err != nil {
		t.Fatalf("logout all: %v", err)
	}
	if _, err := svc.Validate(ctx, session.Token); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected session revoked, got %v", err)
	}

	fresh, err := svc.Login(ctx, "e@x.com", "hunter22")
	if err != nil {
		t.Fatalf("re-login: %v", err)
	}
	if _, err := svc.Validate(ctx, fresh.Token); err != nil {
		t.Fatalf("token issued after logout must validate: %v", err)
	}
}

func TestLogoutAllConcurrentWithLedgerCredits(t *testing.T) {
	ctx := context.Background()
	users := user.NewMemoryRepository()
	svc := newTestService(users)
	led := ledger.NewInMemory(users)

	session, err := svc.SignUp(ctx, "e@x.com", "hunter22", "")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	// Session bumps and balance credits write different fields of the same
	// record; neither may ever undo the other.
	const rounds = 200
	for i := 0; i < rounds; i++ {
		var wg sync.WaitGroup
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if _, err := led.CreditTopUp(ctx, fmt.Sprintf("ref-%d", i), "e@x.com", 100); err != nil {
				t.Errorf("credit %d: %v", i, err)
			}
		}(i)
		go func() {
			defer wg.Done()
			if err := svc.LogoutAll(ctx, "e@x.com"); err != nil {
				t.Errorf("logout all: %v", err)
			}
		}()
		wg.Wait()
	}

	u, err := users.FindByEmail(ctx, "e@x.com")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if u.SessionVersion != 1+rounds {
		t.Fatalf("revocation bumps lost: session_version=%d want %d", u.SessionVersion, 1+rounds)
	}
	if u.BalancePesewas != rounds*100 {
		t.Fatalf("credits lost: balance=%d want %d", u.BalancePesewas, rounds*100)
	}
	if _, err := svc.Validate(ctx, session.Token); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("pre-logout token must stay revoked, got %v", err)
	}
}

func TestValidateExpiredToken(t *testing.T) {
	ctx := context.Background()
	users := user.NewMemoryRepository()
	svc := newTestService(users)

	if _, err := svc.SignUp(ctx, "e@x.com", "hunter22", ""); err != nil {
		t.Fatalf("signup: %v", err)
	}

	token, _, err := signToken("e@x.com", 1, []byte("test-secret"), -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.Validate(ctx, token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	svc := newTestService(user.NewMemoryRepository())
	if _, err := svc.Validate(context.Background(), "not-a-token"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestFederatedLoginProvisionsUser(t *testing.T) {
	ctx := context.Background()
	users := user.NewMemoryRepository()
	svc := newTestService(users)

	session, err := svc.FederatedLogin(ctx, buildAssertion(t, "new@x.com", "Ama"))
	if err != nil {
		t.Fatalf("federated login: %v", err)
	}
	if session.User.Email != "new@x.com" || session.User.Name != "Ama" {
		t.Fatalf("unexpected user: %+v", session.User)
	}
	if session.User.Role != user.RoleUser {
		t.Fatalf("expected role user, got %s", session.User.Role)
	}

	// Second login reuses the stored account.
	again, err := svc.FederatedLogin(ctx, buildAssertion(t, "new@x.com", "Ama"))
	if err != nil {
		t.Fatalf("repeat federated login: %v", err)
	}
	if _, err := svc.Validate(ctx, again.Token); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestFederatedLoginAdminEmail(t *testing.T) {
	svc := newTestService(user.NewMemoryRepository())
	session, err := svc.FederatedLogin(context.Background(), buildAssertion(t, adminEmail, "Owner"))
	if err != nil {
		t.Fatalf("federated login: %v", err)
	}
	if session.User.Role != user.RoleAdmin {
		t.Fatalf("expected admin role, got %s", session.User.Role)
	}
}

func TestFederatedLoginRejectsMalformedAssertion(t *testing.T) {
	svc := newTestService(user.NewMemoryRepository())
	for _, assertion := range []string{"", "onlyonesegment", "a.%%%.c", "a..c"} {
		if _, err := svc.FederatedLogin(context.Background(), assertion); err == nil {
			t.Fatalf("assertion %q must be rejected", assertion)
		}
	}
}

// buildAssertion produces an unsigned identity assertion with an unpadded
// payload segment, matching what identity providers emit.
func buildAssertion(t *testing.T, email, name string) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	payload, err := json.Marshal(map[string]string{"email": email, "name": name})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	body := base64.RawURLEncoding.EncodeToString(payload)
	return header + "." + body + ".signature"
}
