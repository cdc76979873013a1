package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/credgate/internal/model"
)

// MemoryAccountRepo はプロセス内メモリに保持するアカウントリポジトリ。
// DATABASE_URL未設定時の開発用ディレクトリとテストで使用する。
type MemoryAccountRepo struct {
	mu         sync.RWMutex
	nextID     int64
	byID       map[int64]*model.Identity
	byUsername map[string]int64
}

// NewMemoryAccountRepo はMemoryAccountRepoを生成する。
func NewMemoryAccountRepo() *MemoryAccountRepo {
	return &MemoryAccountRepo{
		nextID:     1,
		byID:       make(map[int64]*model.Identity),
		byUsername: make(map[string]int64),
	}
}

// FindByUsername はユーザー名でアカウントを検索する。見つからない場合はnilを返す。
func (r *MemoryAccountRepo) FindByUsername(_ context.Context, username string) (*model.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[username]
	if !ok {
		return nil, nil
	}
	return cloneIdentity(r.byID[id]), nil
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *MemoryAccountRepo) FindByID(_ context.Context, id int64) (*model.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return cloneIdentity(identity), nil
}

// Create はアカウントを作成し、採番したIDと作成日時をidentityに設定する。
func (r *MemoryAccountRepo) Create(_ context.Context, identity *model.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byUsername[identity.Username]; exists {
		return model.ErrAccountExists
	}

	identity.ID = r.nextID
	identity.CreatedAt = time.Now()
	r.nextID++

	r.byID[identity.ID] = cloneIdentity(identity)
	r.byUsername[identity.Username] = identity.ID
	return nil
}

// List は全アカウントをID昇順で返す。
func (r *MemoryAccountRepo) List(_ context.Context) ([]*model.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identities := make([]*model.Identity, 0, len(r.byID))
	for _, identity := range r.byID {
		identities = append(identities, cloneIdentity(identity))
	}
	sort.Slice(identities, func(i, j int) bool {
		return identities[i].ID < identities[j].ID
	})
	return identities, nil
}

// Update は指定IDのアカウントのユーザー名と属性を更新する。
func (r *MemoryAccountRepo) Update(_ context.Context, identity *model.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[identity.ID]
	if !ok {
		return model.ErrAccountNotFound
	}
	if owner, exists := r.byUsername[identity.Username]; exists && owner != identity.ID {
		return model.ErrAccountExists
	}

	delete(r.byUsername, stored.Username)
	stored.Username = identity.Username
	stored.Attributes = append(model.AttributeSet{}, identity.Attributes...)
	r.byUsername[stored.Username] = stored.ID

	identity.CreatedAt = stored.CreatedAt
	return nil
}

// DeleteByID は指定IDのアカウントを削除する。
func (r *MemoryAccountRepo) DeleteByID(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byID[id]
	if !ok {
		return model.ErrAccountNotFound
	}
	delete(r.byUsername, identity.Username)
	delete(r.byID, id)
	return nil
}

// cloneIdentity は呼び出し側に内部状態を共有させないためのコピーを返す。
func cloneIdentity(identity *model.Identity) *model.Identity {
	c := *identity
	c.Attributes = append(model.AttributeSet{}, identity.Attributes...)
	return &c
}

// compile-time interface check
var _ AccountRepository = (*MemoryAccountRepo)(nil)
