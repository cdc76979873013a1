// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/credgate/internal/model"
)

// ErrHandleConflict は作成しようとしたハンドルが既に存在することを表す。
// 呼び出し側は既存レコードを上書きせず、新しいハンドルで再試行する。
var ErrHandleConflict = errors.New("session handle already exists")

// AccountRepository はアカウントディレクトリの永続化インターフェース。
// 認証コアはFindByUsernameとFindByIDのみを利用する。
type AccountRepository interface {
	// FindByUsername はユーザー名でアカウントを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.Identity, error)

	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Identity, error)

	// Create はアカウントを作成し、採番したIDと作成日時をidentityに設定する。
	// ユーザー名が重複する場合はmodel.ErrAccountExistsを返す。
	Create(ctx context.Context, identity *model.Identity) error

	// List は全アカウントをID昇順で返す。
	List(ctx context.Context) ([]*model.Identity, error)

	// Update は指定IDのアカウントのユーザー名と属性を更新し、作成日時をidentityに設定する。
	// シークレット検証子は変更しない。ユーザー名が他のアカウントと重複する場合は
	// model.ErrAccountExists、存在しない場合はmodel.ErrAccountNotFoundを返す。
	Update(ctx context.Context, identity *model.Identity) error

	// DeleteByID は指定IDのアカウントを削除する。
	// 存在しない場合はmodel.ErrAccountNotFoundを返す。
	DeleteByID(ctx context.Context, id int64) error
}

// SessionRepository はリフレッシュハンドルの永続化インターフェース。
// 各操作はハンドル単位で線形化可能でなければならない。
type SessionRepository interface {
	// Create はセッションを作成する。ハンドルが既に存在する場合はErrHandleConflictを返す。
	Create(ctx context.Context, session *model.Session) error

	// FindByHandle は指定ハンドルのセッションを取得する。見つからない場合はnilを返す。
	FindByHandle(ctx context.Context, handle string) (*model.Session, error)

	// DeleteByHandle は指定ハンドルのセッションを削除し、削除したかどうかを返す。
	DeleteByHandle(ctx context.Context, handle string) (bool, error)

	// DeleteByUserID は指定アカウントの全セッションを削除し、削除件数を返す。
	DeleteByUserID(ctx context.Context, userID int64) (int64, error)

	// DeleteCreatedBefore はcutoffより前に作成されたセッションを削除し、削除件数を返す。
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
