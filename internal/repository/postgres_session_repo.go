package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/credgate/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
// 各操作は単一のSQL文で完結するため、ハンドル単位で原子的に実行される。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。ハンドルが既に存在する場合はErrHandleConflictを返す。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (handle, user_id, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (handle) DO NOTHING`,
		session.Handle, session.UserID, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrHandleConflict
	}
	return nil
}

// FindByHandle は指定ハンドルのセッションを取得する。見つからない場合はnilを返す。
func (r *PostgresSessionRepo) FindByHandle(ctx context.Context, handle string) (*model.Session, error) {
	session := &model.Session{}
	err := r.db.QueryRowContext(ctx,
		`SELECT handle, user_id, created_at
		 FROM sessions
		 WHERE handle = $1`,
		handle,
	).Scan(&session.Handle, &session.UserID, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return session, nil
}

// DeleteByHandle は指定ハンドルのセッションを削除し、削除したかどうかを返す。
func (r *PostgresSessionRepo) DeleteByHandle(ctx context.Context, handle string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE handle = $1`,
		handle,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// DeleteByUserID は指定アカウントの全セッションを削除する。
func (r *PostgresSessionRepo) DeleteByUserID(ctx context.Context, userID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user sessions: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// DeleteCreatedBefore はcutoffより前に作成されたセッションを削除する。
func (r *PostgresSessionRepo) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old sessions: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
