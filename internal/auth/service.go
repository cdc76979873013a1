// Package auth はログイン・トークン再発行・ログアウトのセッション管理を提供する。
// シークレット検証、トークン発行、リフレッシュハンドル管理を組み合わせる。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/credgate/internal/metrics"
	"github.com/hitoshi/credgate/internal/model"
	"github.com/hitoshi/credgate/internal/token"
)

// CredentialVerifier はユーザー名とシークレットを検証するインターフェース。
type CredentialVerifier interface {
	Verify(ctx context.Context, username, secret string) (*model.Identity, error)
}

// IdentityResolver はIDからアカウントを解決するインターフェース。
// 見つからない場合はnilを返す。
type IdentityResolver interface {
	FindByID(ctx context.Context, id int64) (*model.Identity, error)
}

// TokenIssuer はトークン発行のインターフェース。
type TokenIssuer interface {
	Issue(identity *model.Identity) (*token.Token, error)
}

// TokenVerifier はトークン検証のインターフェース。
type TokenVerifier interface {
	Verify(raw string) (*token.Claims, error)
}

// SessionStore はリフレッシュハンドル管理のインターフェース。
type SessionStore interface {
	Create(ctx context.Context, userID int64) (string, error)
	Lookup(ctx context.Context, handle string) (int64, error)
	Delete(ctx context.Context, handle string) error
}

// Result はログイン成功時の発行結果を表す。
type Result struct {
	Token      *token.Token
	Handle     string
	UserID     int64
	Username   string
	Attributes model.AttributeSet
}

// Service はセッション管理のビジネスロジックを提供する。
// 自身は可変状態を持たず、並行に呼び出してよい。
type Service struct {
	credentials CredentialVerifier
	identities  IdentityResolver
	issuer      TokenIssuer
	verifier    TokenVerifier
	sessions    SessionStore
	metrics     metrics.MetricsCollector
}

// NewService はServiceを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewService(
	credentials CredentialVerifier,
	identities IdentityResolver,
	issuer TokenIssuer,
	verifier TokenVerifier,
	sessions SessionStore,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = nopCollector{}
	}
	return &Service{
		credentials: credentials,
		identities:  identities,
		issuer:      issuer,
		verifier:    verifier,
		sessions:    sessions,
		metrics:     collector,
	}
}

// Authenticate はシークレットを検証し、トークンとリフレッシュハンドルを発行する。
// 失敗時はハンドルを作成しない。
func (s *Service) Authenticate(ctx context.Context, username, secret string) (*Result, error) {
	start := time.Now()
	defer func() { s.metrics.RecordAuthLatency(time.Since(start)) }()

	// 1. シークレットを検証
	identity, err := s.credentials.Verify(ctx, username, secret)
	if err != nil {
		if errors.Is(err, model.ErrAuthFailure) {
			s.metrics.RecordAuthAttempt(metrics.ResultFailure)
			slog.Info("authentication failed", slog.String("username", username))
		} else {
			s.metrics.RecordAuthAttempt(metrics.ResultUnavailable)
		}
		return nil, err
	}

	// 2. トークンを発行
	tok, err := s.issuer.Issue(identity)
	if err != nil {
		s.metrics.RecordAuthAttempt(metrics.ResultUnavailable)
		return nil, fmt.Errorf("%w: failed to issue token: %w", model.ErrUnavailable, err)
	}

	// 3. リフレッシュハンドルを発行
	handle, err := s.sessions.Create(ctx, identity.ID)
	if err != nil {
		s.metrics.RecordAuthAttempt(metrics.ResultUnavailable)
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.metrics.RecordAuthAttempt(metrics.ResultSuccess)
	s.metrics.RecordTokenIssued(metrics.ReasonLogin)
	slog.Info("user authenticated",
		slog.Int64("user_id", identity.ID),
		slog.String("username", identity.Username),
		slog.String("token_id", tok.ID),
	)

	return &Result{
		Token:      tok,
		Handle:     handle,
		UserID:     identity.ID,
		Username:   identity.Username,
		Attributes: identity.Attributes,
	}, nil
}

// Renew はリフレッシュハンドルから新しいトークンを発行する。
// アカウントをディレクトリから再解決するため、トークンには最新の属性が入る。
// ハンドル自体は変更しない。
func (s *Service) Renew(ctx context.Context, handle string) (*token.Token, error) {
	userID, err := s.sessions.Lookup(ctx, handle)
	if err != nil {
		return nil, err
	}

	identity, err := s.identities.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to find account: %w", model.ErrUnavailable, err)
	}
	if identity == nil {
		// アカウント削除後に残ったハンドル
		slog.Warn("session refers to missing account", slog.Int64("user_id", userID))
		return nil, model.ErrInvalidHandle
	}

	tok, err := s.issuer.Issue(identity)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to issue token: %w", model.ErrUnavailable, err)
	}

	s.metrics.RecordTokenIssued(metrics.ReasonRefresh)
	slog.Info("token renewed",
		slog.Int64("user_id", identity.ID),
		slog.String("token_id", tok.ID),
	)

	return tok, nil
}

// Revoke はリフレッシュハンドルを失効させる。
// 発行済みトークンは有効期限まで有効なままである。
func (s *Service) Revoke(ctx context.Context, handle string) error {
	if err := s.sessions.Delete(ctx, handle); err != nil {
		switch {
		case errors.Is(err, model.ErrInvalidHandle):
			s.metrics.RecordSessionRevocation(metrics.ResultInvalid)
		default:
			s.metrics.RecordSessionRevocation(metrics.ResultUnavailable)
		}
		return err
	}

	s.metrics.RecordSessionRevocation(metrics.ResultSuccess)
	slog.Info("session revoked")
	return nil
}

// VerifyToken はトークンを検証し、クレームを返す。
// ディレクトリやセッションストアは参照しない。
func (s *Service) VerifyToken(raw string) (*token.Claims, error) {
	claims, err := s.verifier.Verify(raw)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrTokenExpired):
			s.metrics.RecordTokenVerification(metrics.ResultExpired)
		default:
			s.metrics.RecordTokenVerification(metrics.ResultMalformed)
		}
		return nil, err
	}

	s.metrics.RecordTokenVerification(metrics.ResultSuccess)
	return claims, nil
}

// nopCollector はメトリクスを記録しないMetricsCollector。
type nopCollector struct{}

func (nopCollector) RecordAuthAttempt(string) {}
func (nopCollector) RecordAuthLatency(time.Duration) {}
func (nopCollector) RecordTokenIssued(string) {}
func (nopCollector) RecordTokenVerification(string) {}
func (nopCollector) RecordSessionRevocation(string) {}
func (nopCollector) RecordSessionsPruned(int64) {}
