// Package token は署名付きベアラートークンの発行と検証を提供する。
// トークンはHS256のJWTで、検証はストアやディレクトリを参照しないステートレスな処理である。
package token

import (
	"fmt"

	"github.com/hitoshi/credgate/internal/config"
)

// Key はトークン署名に使う対称鍵。
type Key struct {
	ID     string
	Secret []byte
}

// Keyring はプロセス起動時に読み込まれる署名鍵の順序付きリスト。
// 先頭の鍵で発行し、検証はkidが一致する任意の鍵で行う。実行中に変更されることはない。
type Keyring struct {
	keys []Key
	byID map[string]Key
}

// NewKeyring は設定の署名鍵からKeyringを生成する。
// 鍵が1つも無い場合は未署名トークンを受け入れないようエラーを返す。
func NewKeyring(signingKeys []config.SigningKey) (*Keyring, error) {
	if len(signingKeys) == 0 {
		return nil, fmt.Errorf("keyring requires at least one signing key")
	}

	kr := &Keyring{
		keys: make([]Key, 0, len(signingKeys)),
		byID: make(map[string]Key, len(signingKeys)),
	}
	for _, sk := range signingKeys {
		if sk.ID == "" || len(sk.Secret) == 0 {
			return nil, fmt.Errorf("signing key must have an id and a secret")
		}
		if _, dup := kr.byID[sk.ID]; dup {
			return nil, fmt.Errorf("duplicate signing key id: %s", sk.ID)
		}
		// 呼び出し側のスライスと共有しないようコピーする
		secret := append([]byte(nil), sk.Secret...)
		key := Key{ID: sk.ID, Secret: secret}
		kr.keys = append(kr.keys, key)
		kr.byID[sk.ID] = key
	}

	return kr, nil
}

// Current は発行に使う最新の鍵を返す。
func (kr *Keyring) Current() Key {
	return kr.keys[0]
}

// Lookup はkidに対応する検証鍵を返す。
func (kr *Keyring) Lookup(id string) (Key, bool) {
	key, ok := kr.byID[id]
	return key, ok
}

// IDs は保持している鍵のkidを優先順に返す。
func (kr *Keyring) IDs() []string {
	ids := make([]string, len(kr.keys))
	for i, k := range kr.keys {
		ids[i] = k.ID
	}
	return ids
}
