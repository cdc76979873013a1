package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/credgate/internal/model"
)

// Verifier はトークンの署名と有効期限を検証する。
// 共有する可変状態を持たないため、並行に呼び出してよい。
//
// 検証はディレクトリを参照しないため、アカウント削除後もトークンは有効期限まで有効である。
// この猶予はTTLで上限が決まる既知のトレードオフとして扱う。
type Verifier struct {
	keyring *Keyring
	issuer  string
	now     func() time.Time
}

// NewVerifier はVerifierを生成する。
// issuerが空でない場合、issクレームの一致も検証する。
func NewVerifier(keyring *Keyring, issuer string) *Verifier {
	return &Verifier{
		keyring: keyring,
		issuer:  issuer,
		now:     time.Now,
	}
}

// Verify はトークンを検証し、埋め込まれたクレームを返す。
// 署名を先に検証し（不一致・切り詰め・未知の鍵はErrTokenMalformed）、
// その後 now <= exp を確認する（超過はErrTokenExpired）。
func (v *Verifier) Verify(raw string) (*Claims, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", model.ErrTokenMalformed)
	}

	// 有効期限は自前で判定するため、ライブラリのクレーム検証は無効化する
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
		jwt.WithStrictDecoding(),
	)

	var claims payload
	if _, err := parser.ParseWithClaims(raw, &claims, v.keyFunc); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrTokenMalformed, err)
	}

	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing iat or exp", model.ErrTokenMalformed)
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer %q", model.ErrTokenMalformed, claims.Issuer)
	}

	attrs, err := model.ParseAttributeSet(claims.Attributes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrTokenMalformed, err)
	}

	if v.now().After(claims.ExpiresAt.Time) {
		return nil, model.ErrTokenExpired
	}

	return &Claims{
		TokenID:    claims.ID,
		UserID:     claims.UserID,
		Username:   claims.Username,
		Attributes: attrs,
		IssuedAt:   claims.IssuedAt.Time,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}

// keyFunc はkidヘッダーから検証鍵を選ぶ。
func (v *Verifier) keyFunc(t *jwt.Token) (any, error) {
	kid, ok := t.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, fmt.Errorf("missing kid header")
	}
	key, ok := v.keyring.Lookup(kid)
	if !ok {
		return nil, fmt.Errorf("unknown signing key: %s", kid)
	}
	return key.Secret, nil
}
