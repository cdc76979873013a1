// Package model はドメインモデルを定義する。
package model

import "time"

// Identity はアカウントディレクトリが解決した認証主体を表す。
// ディレクトリが所有し、コアはリクエスト単位のイミュータブルなスナップショットとして扱う。
type Identity struct {
	ID             int64
	Username       string
	SecretVerifier string // argon2idのPHC形式文字列
	Attributes     AttributeSet
	CreatedAt      time.Time
}

// AccountUpdate はアカウントの部分更新。nilのフィールドは変更しない。
type AccountUpdate struct {
	Username   *string
	Attributes *AttributeSet
}

// Session はリフレッシュハンドルとアカウントIDの対応を表す。
// ハンドルは更新時にローテーションせず、失効（ログアウト）まで同じ値を使い続ける。
type Session struct {
	Handle    string
	UserID    int64
	CreatedAt time.Time
}
