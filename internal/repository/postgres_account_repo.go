package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/credgate/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// FindByUsername はユーザー名でアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByUsername(ctx context.Context, username string) (*model.Identity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, username, secret_verifier, attributes, created_at
		 FROM accounts
		 WHERE username = $1`,
		username,
	)
	identity, err := scanIdentity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by username: %w", err)
	}
	return identity, nil
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id int64) (*model.Identity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, username, secret_verifier, attributes, created_at
		 FROM accounts
		 WHERE id = $1`,
		id,
	)
	identity, err := scanIdentity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}
	return identity, nil
}

// Create はアカウントを作成し、採番したIDと作成日時をidentityに設定する。
func (r *PostgresAccountRepo) Create(ctx context.Context, identity *model.Identity) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO accounts (username, secret_verifier, attributes)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		identity.Username, identity.SecretVerifier, pq.Array(identity.Attributes.Strings()),
	).Scan(&identity.ID, &identity.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return model.ErrAccountExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// Update は指定IDのアカウントのユーザー名と属性を更新する。
func (r *PostgresAccountRepo) Update(ctx context.Context, identity *model.Identity) error {
	err := r.db.QueryRowContext(ctx,
		`UPDATE accounts
		 SET username = $1, attributes = $2
		 WHERE id = $3
		 RETURNING created_at`,
		identity.Username, pq.Array(identity.Attributes.Strings()), identity.ID,
	).Scan(&identity.CreatedAt)
	if err == sql.ErrNoRows {
		return model.ErrAccountNotFound
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return model.ErrAccountExists
		}
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}

// List は全アカウントをID昇順で返す。
func (r *PostgresAccountRepo) List(ctx context.Context) ([]*model.Identity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, secret_verifier, attributes, created_at
		 FROM accounts
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var identities []*model.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return identities, nil
}

// DeleteByID は指定IDのアカウントを削除する。
// 関連するsessionsはCASCADE削除される。
func (r *PostgresAccountRepo) DeleteByID(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM accounts WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanIdentity は1行をIdentityに変換する。保存済みの属性が解析できない場合はエラーを返す。
func scanIdentity(row rowScanner) (*model.Identity, error) {
	identity := &model.Identity{}
	var tags []string
	if err := row.Scan(
		&identity.ID, &identity.Username, &identity.SecretVerifier,
		pq.Array(&tags), &identity.CreatedAt,
	); err != nil {
		return nil, err
	}

	attrs, err := model.ParseAttributeSet(tags)
	if err != nil {
		return nil, fmt.Errorf("account %d has invalid attributes: %w", identity.ID, err)
	}
	identity.Attributes = attrs
	return identity, nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
