package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/credgate/internal/account"
	"github.com/hitoshi/credgate/internal/config"
	"github.com/hitoshi/credgate/internal/credential"
	"github.com/hitoshi/credgate/internal/metrics"
	"github.com/hitoshi/credgate/internal/model"
	"github.com/hitoshi/credgate/internal/repository"
	"github.com/hitoshi/credgate/internal/session"
	"github.com/hitoshi/credgate/internal/token"
)

// --- モック定義 ---

type mockCredentialVerifier struct {
	verifyFn func(ctx context.Context, username, secret string) (*model.Identity, error)
}

func (m *mockCredentialVerifier) Verify(ctx context.Context, username, secret string) (*model.Identity, error) {
	return m.verifyFn(ctx, username, secret)
}

type mockIdentityResolver struct {
	findByIDFn func(ctx context.Context, id int64) (*model.Identity, error)
}

func (m *mockIdentityResolver) FindByID(ctx context.Context, id int64) (*model.Identity, error) {
	return m.findByIDFn(ctx, id)
}

type mockSessionStore struct {
	createFn func(ctx context.Context, userID int64) (string, error)
	lookupFn func(ctx context.Context, handle string) (int64, error)
	deleteFn func(ctx context.Context, handle string) error
}

func (m *mockSessionStore) Create(ctx context.Context, userID int64) (string, error) {
	return m.createFn(ctx, userID)
}

func (m *mockSessionStore) Lookup(ctx context.Context, handle string) (int64, error) {
	return m.lookupFn(ctx, handle)
}

func (m *mockSessionStore) Delete(ctx context.Context, handle string) error {
	return m.deleteFn(ctx, handle)
}

// recordingCollector は記録されたメトリクスを保持する。
type recordingCollector struct {
	mu            sync.Mutex
	authAttempts  []string
	issued        []string
	verifications []string
	revocations   []string
}

func (c *recordingCollector) RecordAuthAttempt(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authAttempts = append(c.authAttempts, result)
}

func (c *recordingCollector) RecordAuthLatency(time.Duration) {}

func (c *recordingCollector) RecordTokenIssued(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued = append(c.issued, reason)
}

func (c *recordingCollector) RecordTokenVerification(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verifications = append(c.verifications, result)
}

func (c *recordingCollector) RecordSessionRevocation(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revocations = append(c.revocations, result)
}

func (c *recordingCollector) RecordSessionsPruned(int64) {}

// --- compile-time interface checks ---
var _ CredentialVerifier = (*mockCredentialVerifier)(nil)
var _ IdentityResolver = (*mockIdentityResolver)(nil)
var _ SessionStore = (*mockSessionStore)(nil)
var _ metrics.MetricsCollector = (*recordingCollector)(nil)

var _ CredentialVerifier = (*credential.Verifier)(nil)
var _ TokenIssuer = (*token.Issuer)(nil)
var _ TokenVerifier = (*token.Verifier)(nil)
var _ SessionStore = (*session.Store)(nil)

// --- テスト環境 ---

var testParams = credential.Argon2Params{
	Iterations: 1,
	Memory:     1024,
	Threads:    1,
	SaltLength: 16,
	KeyLength:  32,
}

type testEnv struct {
	svc       *Service
	accounts  *repository.MemoryAccountRepo
	sessions  *repository.MemorySessionRepo
	directory *account.Service
	collector *recordingCollector
}

// newTestEnv はサンプルアカウント投入済みのインメモリ構成でServiceを組み立てる。
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	accounts := repository.NewMemoryAccountRepo()
	sessions := repository.NewMemorySessionRepo()
	store := session.NewStore(sessions, session.StoreConfig{})

	directory := account.NewService(accounts, store, account.ServiceConfig{HashParams: testParams})
	if _, err := directory.Seed(ctx, account.SampleAccounts); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	creds, err := credential.NewVerifier(ctx, accounts, testParams)
	if err != nil {
		t.Fatalf("credential.NewVerifier() error = %v", err)
	}

	keyring, err := token.NewKeyring([]config.SigningKey{
		{ID: "k1", Secret: []byte("0123456789abcdef0123456789abcdef-test")},
	})
	if err != nil {
		t.Fatalf("NewKeyring() error = %v", err)
	}

	collector := &recordingCollector{}
	svc := NewService(
		creds,
		accounts,
		token.NewIssuer(keyring, token.IssuerConfig{TTL: time.Hour, Issuer: "credgate"}),
		token.NewVerifier(keyring, "credgate"),
		store,
		collector,
	)

	return &testEnv{
		svc:       svc,
		accounts:  accounts,
		sessions:  sessions,
		directory: directory,
		collector: collector,
	}
}

// --- Authenticate ---

func TestAuthenticate_Admin_TokenCarriesAttributes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.svc.Authenticate(ctx, "admin", "admin")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if result.Handle == "" {
		t.Error("expected non-empty handle")
	}

	want := model.MustParseAttributeSet("role=admin", "clearance=gold")
	if !result.Attributes.Equal(want) {
		t.Errorf("result.Attributes = %v, want %v", result.Attributes, want)
	}

	claims, err := env.svc.VerifyToken(result.Token.Value)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if claims.Username != "admin" || claims.UserID != result.UserID {
		t.Errorf("claims = %+v, want admin/%d", claims, result.UserID)
	}
	if !claims.Attributes.Equal(want) {
		t.Errorf("claims.Attributes = %v, want %v", claims.Attributes, want)
	}
	if env.sessions.Len() != 1 {
		t.Errorf("session count = %d, want 1", env.sessions.Len())
	}
}

func TestAuthenticate_Guest_EmptyAttributeSet(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.svc.Authenticate(context.Background(), "guest", "password")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	claims, err := env.svc.VerifyToken(result.Token.Value)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if len(claims.Attributes) != 0 {
		t.Errorf("claims.Attributes = %v, want empty", claims.Attributes)
	}
}

// 失敗時はハンドルを作成せず、セッション数が変わらないこと
func TestAuthenticate_WrongSecret_NoSessionCreated(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Authenticate(context.Background(), "admin", "wrong")
	if !errors.Is(err, model.ErrAuthFailure) {
		t.Fatalf("Authenticate() error = %v, want ErrAuthFailure", err)
	}
	if env.sessions.Len() != 0 {
		t.Errorf("session count = %d, want 0", env.sessions.Len())
	}
	if len(env.collector.authAttempts) != 1 || env.collector.authAttempts[0] != metrics.ResultFailure {
		t.Errorf("auth attempts = %v, want [failure]", env.collector.authAttempts)
	}
}

func TestAuthenticate_UnknownUser_SameFailureAsWrongSecret(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, errUnknown := env.svc.Authenticate(ctx, "nobody", "password")
	_, errWrong := env.svc.Authenticate(ctx, "silver", "nope")

	if !errors.Is(errUnknown, model.ErrAuthFailure) || !errors.Is(errWrong, model.ErrAuthFailure) {
		t.Fatalf("errors = %v / %v, want ErrAuthFailure", errUnknown, errWrong)
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Errorf("error messages differ: %q vs %q", errUnknown.Error(), errWrong.Error())
	}
}

func TestAuthenticate_SessionStoreError_ReturnsUnavailable(t *testing.T) {
	identity := &model.Identity{ID: 1, Username: "admin"}
	keyring, _ := token.NewKeyring([]config.SigningKey{{ID: "k1", Secret: []byte("0123456789abcdef0123456789abcdef")}})

	svc := NewService(
		&mockCredentialVerifier{verifyFn: func(ctx context.Context, username, secret string) (*model.Identity, error) {
			return identity, nil
		}},
		nil,
		token.NewIssuer(keyring, token.IssuerConfig{}),
		token.NewVerifier(keyring, ""),
		&mockSessionStore{createFn: func(ctx context.Context, userID int64) (string, error) {
			return "", model.ErrUnavailable
		}},
		nil,
	)

	_, err := svc.Authenticate(context.Background(), "admin", "admin")
	if !errors.Is(err, model.ErrUnavailable) {
		t.Fatalf("Authenticate() error = %v, want ErrUnavailable", err)
	}
}

func TestAuthenticate_DirectoryError_NotAuthFailure(t *testing.T) {
	collector := &recordingCollector{}
	svc := NewService(
		&mockCredentialVerifier{verifyFn: func(ctx context.Context, username, secret string) (*model.Identity, error) {
			return nil, model.ErrUnavailable
		}},
		nil, nil, nil, nil, collector,
	)

	_, err := svc.Authenticate(context.Background(), "admin", "admin")
	if !errors.Is(err, model.ErrUnavailable) || errors.Is(err, model.ErrAuthFailure) {
		t.Fatalf("Authenticate() error = %v, want ErrUnavailable only", err)
	}
	if len(collector.authAttempts) != 1 || collector.authAttempts[0] != metrics.ResultUnavailable {
		t.Errorf("auth attempts = %v, want [unavailable]", collector.authAttempts)
	}
}

// --- Renew ---

func TestRenew_IssuesFreshToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.svc.Authenticate(ctx, "gold", "password")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	renewed, err := env.svc.Renew(ctx, result.Handle)
	if err != nil {
		t.Fatalf("Renew() error = %v", err)
	}
	if renewed.ExpiresAt.Before(result.Token.ExpiresAt) {
		t.Errorf("renewed expiry %v is before original %v", renewed.ExpiresAt, result.Token.ExpiresAt)
	}
	if renewed.ID == result.Token.ID {
		t.Error("renewed token must have a new id")
	}

	claims, err := env.svc.VerifyToken(renewed.Value)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if claims.Username != "gold" {
		t.Errorf("claims.Username = %q, want gold", claims.Username)
	}

	// ハンドルは再発行後も使い続けられること
	if _, err := env.svc.Renew(ctx, result.Handle); err != nil {
		t.Errorf("second Renew() error = %v", err)
	}
	if got := env.collector.issued; len(got) != 3 || got[0] != metrics.ReasonLogin || got[2] != metrics.ReasonRefresh {
		t.Errorf("issued = %v, want [login refresh refresh]", got)
	}
}

// 再発行時はディレクトリから最新の属性を取り直すこと
func TestRenew_ReflectsUpdatedAttributes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, _ := env.svc.Authenticate(ctx, "silver", "password")

	current, _ := env.accounts.FindByID(ctx, result.UserID)
	resolver := &mockIdentityResolver{findByIDFn: func(ctx context.Context, id int64) (*model.Identity, error) {
		promoted := *current
		promoted.Attributes = model.MustParseAttributeSet("role=user", "clearance=gold")
		return &promoted, nil
	}}
	env.svc.identities = resolver

	renewed, err := env.svc.Renew(ctx, result.Handle)
	if err != nil {
		t.Fatalf("Renew() error = %v", err)
	}
	claims, _ := env.svc.VerifyToken(renewed.Value)
	if !claims.Attributes.Has("clearance", "gold") {
		t.Errorf("claims.Attributes = %v, want clearance=gold", claims.Attributes)
	}
}

func TestRenew_NeverIssuedHandle_ReturnsInvalidHandle(t *testing.T) {
	env := newTestEnv(t)

	for _, handle := range []string{"", "not-a-real-handle"} {
		if _, err := env.svc.Renew(context.Background(), handle); !errors.Is(err, model.ErrInvalidHandle) {
			t.Errorf("Renew(%q) error = %v, want ErrInvalidHandle", handle, err)
		}
	}
}

func TestRenew_DeletedAccount_ReturnsInvalidHandle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, _ := env.svc.Authenticate(ctx, "bronze", "password")

	// ハンドルを残したままアカウントだけ消す
	if err := env.accounts.DeleteByID(ctx, result.UserID); err != nil {
		t.Fatalf("DeleteByID() error = %v", err)
	}

	if _, err := env.svc.Renew(ctx, result.Handle); !errors.Is(err, model.ErrInvalidHandle) {
		t.Fatalf("Renew() error = %v, want ErrInvalidHandle", err)
	}
}

func TestRenew_DirectoryError_ReturnsUnavailable(t *testing.T) {
	svc := NewService(
		nil,
		&mockIdentityResolver{findByIDFn: func(ctx context.Context, id int64) (*model.Identity, error) {
			return nil, errors.New("connection refused")
		}},
		nil, nil,
		&mockSessionStore{lookupFn: func(ctx context.Context, handle string) (int64, error) {
			return 1, nil
		}},
		nil,
	)

	if _, err := svc.Renew(context.Background(), "h"); !errors.Is(err, model.ErrUnavailable) {
		t.Fatalf("Renew() error = %v, want ErrUnavailable", err)
	}
}

// --- Revoke ---

func TestRevoke_ThenRenew_ReturnsInvalidHandle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, _ := env.svc.Authenticate(ctx, "admin", "admin")

	if err := env.svc.Revoke(ctx, result.Handle); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if _, err := env.svc.Renew(ctx, result.Handle); !errors.Is(err, model.ErrInvalidHandle) {
		t.Fatalf("Renew() after Revoke error = %v, want ErrInvalidHandle", err)
	}

	// 発行済みトークンは有効期限まで有効なまま
	if _, err := env.svc.VerifyToken(result.Token.Value); err != nil {
		t.Errorf("VerifyToken() after Revoke error = %v, want nil", err)
	}
}

func TestRevoke_Twice_SecondReturnsInvalidHandle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, _ := env.svc.Authenticate(ctx, "admin", "admin")

	if err := env.svc.Revoke(ctx, result.Handle); err != nil {
		t.Fatalf("first Revoke() error = %v", err)
	}
	if err := env.svc.Revoke(ctx, result.Handle); !errors.Is(err, model.ErrInvalidHandle) {
		t.Fatalf("second Revoke() error = %v, want ErrInvalidHandle", err)
	}
	if got := env.collector.revocations; len(got) != 2 || got[0] != metrics.ResultSuccess || got[1] != metrics.ResultInvalid {
		t.Errorf("revocations = %v, want [success invalid]", got)
	}
}

func TestRevoke_NeverIssuedHandle_ReturnsInvalidHandle(t *testing.T) {
	env := newTestEnv(t)

	if err := env.svc.Revoke(context.Background(), "never-issued"); !errors.Is(err, model.ErrInvalidHandle) {
		t.Fatalf("Revoke() error = %v, want ErrInvalidHandle", err)
	}
}

// 同じアカウントの複数ログインは互いに独立したハンドルを持つこと
func TestRevoke_OnlyAffectsOneSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, _ := env.svc.Authenticate(ctx, "gold", "password")
	second, _ := env.svc.Authenticate(ctx, "gold", "password")
	if first.Handle == second.Handle {
		t.Fatal("expected distinct handles")
	}

	if err := env.svc.Revoke(ctx, first.Handle); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if _, err := env.svc.Renew(ctx, second.Handle); err != nil {
		t.Errorf("Renew(second) error = %v", err)
	}
}

// --- VerifyToken ---

func TestVerifyToken_Malformed(t *testing.T) {
	env := newTestEnv(t)

	result, _ := env.svc.Authenticate(context.Background(), "admin", "admin")
	tampered := result.Token.Value[:len(result.Token.Value)-2]

	for _, raw := range []string{"", "garbage", tampered} {
		if _, err := env.svc.VerifyToken(raw); !errors.Is(err, model.ErrTokenMalformed) {
			t.Errorf("VerifyToken(%q) error = %v, want ErrTokenMalformed", raw, err)
		}
	}
	for _, r := range env.collector.verifications {
		if r != metrics.ResultMalformed {
			t.Errorf("verification result = %q, want malformed", r)
		}
	}
}

type stubVerifier struct{ err error }

func (s stubVerifier) Verify(string) (*token.Claims, error) { return nil, s.err }

func TestVerifyToken_Expired_RecordsExpired(t *testing.T) {
	collector := &recordingCollector{}
	svc := NewService(nil, nil, nil, stubVerifier{err: model.ErrTokenExpired}, nil, collector)

	if _, err := svc.VerifyToken("x"); !errors.Is(err, model.ErrTokenExpired) {
		t.Fatalf("VerifyToken() error = %v, want ErrTokenExpired", err)
	}
	if len(collector.verifications) != 1 || collector.verifications[0] != metrics.ResultExpired {
		t.Errorf("verifications = %v, want [expired]", collector.verifications)
	}
}

// --- 並行性 ---

func TestService_ConcurrentLoginRenewRevoke(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := env.svc.Authenticate(ctx, "silver", "password")
			if err != nil {
				errs <- err
				return
			}
			if _, err := env.svc.Renew(ctx, result.Handle); err != nil {
				errs <- err
				return
			}
			if err := env.svc.Revoke(ctx, result.Handle); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	if env.sessions.Len() != 0 {
		t.Errorf("session count = %d, want 0", env.sessions.Len())
	}
}
