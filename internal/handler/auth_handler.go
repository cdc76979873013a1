package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/credgate/internal/auth"
	"github.com/hitoshi/credgate/internal/middleware"
	"github.com/hitoshi/credgate/internal/model"
	"github.com/hitoshi/credgate/internal/token"
)

// maxRequestBodyBytes は認証系リクエストボディの上限。
const maxRequestBodyBytes = 1 << 16

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// Authenticate は資格情報を検証し、トークンとリフレッシュハンドルを発行する。
	Authenticate(ctx context.Context, username, secret string) (*auth.Result, error)
	// Renew はリフレッシュハンドルから新しいトークンを発行する。
	Renew(ctx context.Context, handle string) (*token.Token, error)
	// Revoke はリフレッシュハンドルを失効させる。
	Revoke(ctx context.Context, handle string) error
	// VerifyToken はトークンの署名と有効期限を検証する。
	VerifyToken(raw string) (*token.Claims, error)
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

type authenticateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authenticateResponse struct {
	Token          string             `json:"token"`
	RefreshToken   string             `json:"refresh_token"`
	UserAttributes model.AttributeSet `json:"user_attributes"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	Message        string             `json:"message"`
	Valid          bool               `json:"valid"`
	UserID         int64              `json:"user_id"`
	Username       string             `json:"username"`
	UserAttributes model.AttributeSet `json:"user_attributes"`
	ExpiresAt      time.Time          `json:"expires_at"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	Token string `json:"token"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Authenticate はユーザー名とパスワードでログインする。
// POST /auth/authenticate
func (h *AuthHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("username と password は必須です"))
		return
	}

	result, err := h.service.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authenticateResponse{
		Token:          result.Token.Value,
		RefreshToken:   result.Handle,
		UserAttributes: result.Attributes,
	})
}

// Verify はトークンを検証し、埋め込まれたクレームを返す。
// POST /auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	claims, err := h.service.VerifyToken(req.Token)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		Message:        "Token is valid",
		Valid:          true,
		UserID:         claims.UserID,
		Username:       claims.Username,
		UserAttributes: claims.Attributes,
		ExpiresAt:      claims.ExpiresAt.UTC(),
	})
}

// Refresh はリフレッシュハンドルから新しいトークンを発行する。
// POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	tok, err := h.service.Renew(r.Context(), req.RefreshToken)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{Token: tok.Value})
}

// Logout はリフレッシュハンドルを失効させる。
// 発行済みのトークンは有効期限まで有効なまま残る。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.service.Revoke(r.Context(), req.RefreshToken); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Logout successful"})
}

// SetupAuthRoutes は認証関連のルーティングを設定したchi.Routerを返す。
// authLimiterがnilでない場合、ログインエンドポイントにのみ適用する。
func SetupAuthRoutes(service AuthServiceInterface, authLimiter func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	registerAuthRoutes(r, NewAuthHandler(service), authLimiter)
	return r
}

func registerAuthRoutes(r chi.Router, h *AuthHandler, authLimiter func(http.Handler) http.Handler) {
	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if authLimiter != nil {
				r.Use(authLimiter)
			}
			r.Post("/authenticate", h.Authenticate)
		})
		r.Post("/verify", h.Verify)
		r.Post("/refresh", h.Refresh)
		r.Post("/logout", h.Logout)
	})
}

// decodeJSONBody はリクエストボディをJSONとしてデコードする。
// 失敗した場合は400を書き込み、falseを返す。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("JSONの解析に失敗しました"))
		return false
	}
	return true
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}
