package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/credgate/internal/middleware"
	"github.com/hitoshi/credgate/internal/model"
)

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	switch {
	case errors.Is(err, model.ErrAuthFailure):
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAuthFailedError())
	case errors.Is(err, model.ErrTokenExpired):
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewTokenExpiredError())
	case errors.Is(err, model.ErrTokenMalformed):
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewTokenMalformedError())
	case errors.Is(err, model.ErrInvalidHandle):
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewInvalidHandleError())
	case errors.Is(err, model.ErrUnavailable):
		slog.Error("dependency unavailable", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewUnavailableError())
	default:
		// 型付きエラー以外は内部サーバーエラーとして扱う
		slog.Error("internal server error", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	}
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeAuthFailed, model.ErrCodeTokenExpired, model.ErrCodeTokenMalformed, model.ErrCodeInvalidHandle:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeAccountExists:
		return http.StatusConflict
	case model.ErrCodeAccountNotFound:
		return http.StatusNotFound
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
