package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/credgate/internal/model"
)

// MemorySessionRepo はプロセス内メモリに保持するセッションリポジトリ。
// 全操作を単一のロックで直列化するため、ハンドル単位で線形化可能である。
type MemorySessionRepo struct {
	mu       sync.Mutex
	sessions map[string]model.Session
}

// NewMemorySessionRepo はMemorySessionRepoを生成する。
func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{
		sessions: make(map[string]model.Session),
	}
}

// Create はセッションを作成する。ハンドルが既に存在する場合はErrHandleConflictを返す。
func (r *MemorySessionRepo) Create(_ context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.Handle]; exists {
		return ErrHandleConflict
	}
	r.sessions[session.Handle] = *session
	return nil
}

// FindByHandle は指定ハンドルのセッションを取得する。見つからない場合はnilを返す。
func (r *MemorySessionRepo) FindByHandle(_ context.Context, handle string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[handle]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

// DeleteByHandle は指定ハンドルのセッションを削除し、削除したかどうかを返す。
func (r *MemorySessionRepo) DeleteByHandle(_ context.Context, handle string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[handle]; !ok {
		return false, nil
	}
	delete(r.sessions, handle)
	return true, nil
}

// DeleteByUserID は指定アカウントの全セッションを削除する。
func (r *MemorySessionRepo) DeleteByUserID(_ context.Context, userID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for handle, session := range r.sessions {
		if session.UserID == userID {
			delete(r.sessions, handle)
			deleted++
		}
	}
	return deleted, nil
}

// DeleteCreatedBefore はcutoffより前に作成されたセッションを削除する。
func (r *MemorySessionRepo) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for handle, session := range r.sessions {
		if session.CreatedAt.Before(cutoff) {
			delete(r.sessions, handle)
			deleted++
		}
	}
	return deleted, nil
}

// Len は保持しているセッション数を返す。テスト用。
func (r *MemorySessionRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// compile-time interface check
var _ SessionRepository = (*MemorySessionRepo)(nil)
