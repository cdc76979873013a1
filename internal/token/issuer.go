package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/credgate/internal/model"
)

// IssuerConfig はトークン発行の設定。
type IssuerConfig struct {
	TTL    time.Duration // 0の場合はDefaultTTL
	Issuer string        // issクレーム。空の場合は埋め込まない
}

// Issuer はアカウント情報を埋め込んだトークンを発行する。
type Issuer struct {
	keyring *Keyring
	config  IssuerConfig
	now     func() time.Time
}

// NewIssuer はIssuerを生成する。
func NewIssuer(keyring *Keyring, config IssuerConfig) *Issuer {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	return &Issuer{
		keyring: keyring,
		config:  config,
		now:     time.Now,
	}
}

// TTL はトークンの有効期間を返す。
func (i *Issuer) TTL() time.Duration {
	return i.config.TTL
}

// Issue はアカウントID、ユーザー名、属性集合、発行時刻、有効期限を含むトークンを署名して返す。
// 署名には鍵リング先頭の鍵を使い、kidヘッダーに鍵IDを設定する。
func (i *Issuer) Issue(identity *model.Identity) (*Token, error) {
	if identity == nil {
		return nil, fmt.Errorf("identity is required")
	}

	issuedAt := jwt.NewNumericDate(i.now())
	expiresAt := jwt.NewNumericDate(issuedAt.Add(i.config.TTL))
	tokenID := uuid.NewString()

	claims := payload{
		UserID:     identity.ID,
		Username:   identity.Username,
		Attributes: identity.Attributes.Strings(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Issuer:    i.config.Issuer,
			Subject:   identity.Username,
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
		},
	}

	key := i.keyring.Current()
	jwtToken := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	jwtToken.Header["kid"] = key.ID

	signed, err := jwtToken.SignedString(key.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &Token{
		Value:     signed,
		ID:        tokenID,
		IssuedAt:  issuedAt.Time,
		ExpiresAt: expiresAt.Time,
	}, nil
}
