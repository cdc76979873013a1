// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/credgate/internal/model"
	"github.com/hitoshi/credgate/internal/token"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// claimsContextKey はリクエストコンテキストに検証済みクレームを格納するためのキー。
var claimsContextKey = contextKey("claims")

// TokenVerifier はトークン検証に必要なインターフェース。
type TokenVerifier interface {
	VerifyToken(raw string) (*token.Claims, error)
}

// NewBearerMiddleware はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// 検証済みクレームをリクエストコンテキストに注入する。
// トークンが無い・不正・期限切れの場合は401 Unauthorizedを返す。
func NewBearerMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Authorizationヘッダーからトークンを取得
			raw, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="credgate"`)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenMalformedError())
				return
			}

			// 2. トークンを検証
			claims, err := verifier.VerifyToken(raw)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="credgate", error="invalid_token"`)
				if errors.Is(err, model.ErrTokenExpired) {
					WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenExpiredError())
					return
				}
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenMalformedError())
				return
			}

			// 3. クレームをコンテキストに注入
			setLogUsername(r.Context(), claims.Username)
			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewRequireAttributeMiddleware は検証済みクレームに指定属性が含まれることを要求するミドルウェアを返す。
// Bearerミドルウェアの後に配置する。属性が無い場合は403 Forbiddenを返す。
func NewRequireAttributeMiddleware(key, value string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenMalformedError())
				return
			}
			if !claims.Attributes.Has(key, value) {
				slog.Warn("required attribute missing",
					slog.Int64("user_id", claims.UserID),
					slog.String("required", key+"="+value),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClaimsFromContext はリクエストコンテキストから検証済みクレームを取得する。
// Bearerミドルウェアを通過したリクエストでのみ有効。
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*token.Claims)
	return claims, ok && claims != nil
}

// ContextWithClaims はコンテキストにクレームを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithClaims(ctx context.Context, claims *token.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// bearerToken は "Authorization: Bearer <token>" からトークンを取り出す。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, raw, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}
