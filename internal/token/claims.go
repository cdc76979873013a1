package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/credgate/internal/model"
)

// DefaultTTL はトークンの既定の有効期間。
const DefaultTTL = time.Hour

// payload はJWTに埋め込むクレーム。
type payload struct {
	UserID     int64    `json:"uid"`
	Username   string   `json:"username"`
	Attributes []string `json:"attributes"`
	jwt.RegisteredClaims
}

// Token は発行済みのベアラートークン。
type Token struct {
	Value     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Claims は検証に成功したトークンから取り出した内容。
type Claims struct {
	TokenID    string
	UserID     int64
	Username   string
	Attributes model.AttributeSet
	IssuedAt   time.Time
	ExpiresAt  time.Time
}
