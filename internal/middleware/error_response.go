package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/credgate/internal/model"
)

// bearerRealm はWWW-Authenticateヘッダーのrealm。
const bearerRealm = "credgate"

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// 401にはBearerチャレンジを付与し、トークン起因の場合はerror="invalid_token"を示す。
// apiErrがnilの場合は内部エラーとして扱う。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	if apiErr == nil {
		statusCode, apiErr = http.StatusInternalServerError, model.NewInternalError()
	}

	if statusCode == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", bearerChallenge(apiErr.Code))
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部エラーの統一レスポンスを書き込む。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

// bearerChallenge はRFC 6750形式のWWW-Authenticate値を返す。
func bearerChallenge(code string) string {
	switch code {
	case model.ErrCodeTokenExpired, model.ErrCodeTokenMalformed:
		return `Bearer realm="` + bearerRealm + `", error="invalid_token"`
	default:
		return `Bearer realm="` + bearerRealm + `"`
	}
}
