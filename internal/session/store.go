// Package session はリフレッシュハンドルの発行・照会・失効を提供する。
// ハンドルは推測不能な不透明文字列で、トークンとは独立したライフサイクルを持つ。
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/credgate/internal/model"
	"github.com/hitoshi/credgate/internal/repository"
)

const (
	// handleBytes はハンドルに使う乱数のバイト数（hexで64文字）。
	handleBytes = 32

	// maxCreateAttempts はハンドル衝突時の最大試行回数。
	maxCreateAttempts = 3
)

// StoreConfig はセッションストアの設定。
type StoreConfig struct {
	MaxAge time.Duration // 0は無期限
}

// Store はSessionRepository上のハンドル管理を提供する。
// 並行呼び出しの線形化はリポジトリ側が保証する。
type Store struct {
	repo   repository.SessionRepository
	config StoreConfig
	now    func() time.Time
}

// NewStore はStoreを生成する。
func NewStore(repo repository.SessionRepository, config StoreConfig) *Store {
	return &Store{
		repo:   repo,
		config: config,
		now:    time.Now,
	}
}

// Create は新しいハンドルを発行し、userIDに紐付けて保存する。
// 既存ハンドルとの衝突時は上書きせず、新しいハンドルで再試行する。
func (s *Store) Create(ctx context.Context, userID int64) (string, error) {
	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		handle, err := generateHandle()
		if err != nil {
			return "", fmt.Errorf("failed to generate session handle: %w", err)
		}

		err = s.repo.Create(ctx, &model.Session{
			Handle:    handle,
			UserID:    userID,
			CreatedAt: s.now(),
		})
		if err == nil {
			return handle, nil
		}
		if !errors.Is(err, repository.ErrHandleConflict) {
			return "", fmt.Errorf("%w: failed to save session: %w", model.ErrUnavailable, err)
		}
	}

	return "", fmt.Errorf("%w: session handle collided %d times", model.ErrUnavailable, maxCreateAttempts)
}

// Lookup はハンドルに紐付くユーザーIDを返す。
// 未発行・失効済み・保持期間超過のハンドルはmodel.ErrInvalidHandleとなる。
func (s *Store) Lookup(ctx context.Context, handle string) (int64, error) {
	if handle == "" {
		return 0, model.ErrInvalidHandle
	}

	session, err := s.repo.FindByHandle(ctx, handle)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to find session: %w", model.ErrUnavailable, err)
	}
	if session == nil {
		return 0, model.ErrInvalidHandle
	}
	if s.expired(session) {
		return 0, model.ErrInvalidHandle
	}

	return session.UserID, nil
}

// Delete はハンドルを失効させる。
// 存在しないハンドルや失効済みハンドルはmodel.ErrInvalidHandleとなる。
func (s *Store) Delete(ctx context.Context, handle string) error {
	if handle == "" {
		return model.ErrInvalidHandle
	}

	deleted, err := s.repo.DeleteByHandle(ctx, handle)
	if err != nil {
		return fmt.Errorf("%w: failed to delete session: %w", model.ErrUnavailable, err)
	}
	if !deleted {
		return model.ErrInvalidHandle
	}

	return nil
}

// DeleteByUser は指定ユーザーの全ハンドルを失効させ、失効件数を返す。
func (s *Store) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	n, err := s.repo.DeleteByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to delete sessions: %w", model.ErrUnavailable, err)
	}
	return n, nil
}

func (s *Store) expired(session *model.Session) bool {
	if s.config.MaxAge <= 0 {
		return false
	}
	return s.now().Sub(session.CreatedAt) > s.config.MaxAge
}

// generateHandle は暗号的に安全なハンドルを生成する。
func generateHandle() (string, error) {
	b := make([]byte, handleBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
