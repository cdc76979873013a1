// Package account はアカウントディレクトリの管理を提供する。
// 登録・一覧・更新・削除と、サンプルアカウントの投入を扱う。
package account

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/credgate/internal/credential"
	"github.com/hitoshi/credgate/internal/model"
	"github.com/hitoshi/credgate/internal/repository"
)

// SessionRevoker はアカウント削除時にハンドルを一括失効させるインターフェース。
type SessionRevoker interface {
	DeleteByUser(ctx context.Context, userID int64) (int64, error)
}

// ServiceConfig はアカウントサービスの設定。
type ServiceConfig struct {
	HashParams credential.Argon2Params
}

// Service はアカウント管理のサービス層。
type Service struct {
	repo     repository.AccountRepository
	sessions SessionRevoker
	config   ServiceConfig
}

// NewService はServiceの新しいインスタンスを生成する。
// HashParamsが未設定の場合はcredential.DefaultArgon2Paramsを使う。
func NewService(repo repository.AccountRepository, sessions SessionRevoker, config ServiceConfig) *Service {
	if config.HashParams == (credential.Argon2Params{}) {
		config.HashParams = credential.DefaultArgon2Params
	}
	return &Service{
		repo:     repo,
		sessions: sessions,
		config:   config,
	}
}

// Create はアカウントを登録する。シークレットはargon2idの検証子として保存する。
func (s *Service) Create(ctx context.Context, username, secret string, attrs model.AttributeSet) (*model.Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if secret == "" {
		return nil, fmt.Errorf("password is required")
	}

	verifier, err := credential.HashSecretWithParams(ctx, secret, s.config.HashParams)
	if err != nil {
		return nil, fmt.Errorf("failed to hash secret: %w", err)
	}

	identity := &model.Identity{
		Username:       username,
		SecretVerifier: verifier,
		Attributes:     attrs,
	}
	if err := s.repo.Create(ctx, identity); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	slog.Info("account created",
		slog.Int64("user_id", identity.ID),
		slog.String("username", identity.Username),
	)

	return identity, nil
}

// List は全アカウントを返す。
func (s *Service) List(ctx context.Context) ([]*model.Identity, error) {
	identities, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return identities, nil
}

// Update はアカウントのユーザー名と属性を更新する。シークレットは変更しない。
// 既存のリフレッシュハンドルは維持され、次回の更新で新しい属性のトークンが発行される。
func (s *Service) Update(ctx context.Context, id int64, update model.AccountUpdate) (*model.Identity, error) {
	identity, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if identity == nil {
		return nil, model.ErrAccountNotFound
	}

	if update.Username != nil {
		username := strings.TrimSpace(*update.Username)
		if username == "" {
			return nil, fmt.Errorf("username is required")
		}
		identity.Username = username
	}
	if update.Attributes != nil {
		identity.Attributes = append(model.AttributeSet{}, (*update.Attributes)...)
	}

	if err := s.repo.Update(ctx, identity); err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}

	slog.Info("account updated",
		slog.Int64("user_id", identity.ID),
		slog.String("username", identity.Username),
	)

	return identity, nil
}

// Delete はアカウントを削除し、そのアカウントのリフレッシュハンドルを失効させる。
// アカウントを先に削除するため、失効に失敗して残ったハンドルもRenewでは使えない。
// 発行済みトークンは有効期限まで有効なまま残る。
func (s *Service) Delete(ctx context.Context, id int64) error {
	identity, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to find account: %w", err)
	}
	if identity == nil {
		return model.ErrAccountNotFound
	}

	// 1. アカウントを削除（PostgreSQLではsessionsもCASCADE削除される）
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	slog.Info("account deleted",
		slog.Int64("user_id", id),
		slog.String("username", identity.Username),
	)

	// 2. リフレッシュハンドルを失効
	if s.sessions != nil {
		n, err := s.sessions.DeleteByUser(ctx, id)
		if err != nil {
			slog.Warn("failed to revoke sessions for deleted account",
				slog.Int64("user_id", id),
				slog.String("error", err.Error()),
			)
			return nil
		}
		slog.Info("sessions revoked for account",
			slog.Int64("user_id", id),
			slog.Int64("revoked", n),
		)
	}

	return nil
}
