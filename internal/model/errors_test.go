package model

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	err := NewAuthFailedError()

	if got := err.Error(); got != "[AUTH_FAILED] Invalid credentials" {
		t.Errorf("Error() = %q", got)
	}
}

func TestAPIError_Constructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		code     string
		category string
	}{
		{"auth failed", NewAuthFailedError(), ErrCodeAuthFailed, "auth"},
		{"token expired", NewTokenExpiredError(), ErrCodeTokenExpired, "token"},
		{"token malformed", NewTokenMalformedError(), ErrCodeTokenMalformed, "token"},
		{"invalid handle", NewInvalidHandleError(), ErrCodeInvalidHandle, "auth"},
		{"unavailable", NewUnavailableError(), ErrCodeUnavailable, "system"},
		{"invalid request", NewInvalidRequestError("x"), ErrCodeInvalidRequest, "validation"},
		{"forbidden", NewForbiddenError(), ErrCodeForbidden, "auth"},
		{"account exists", NewAccountExistsError("admin"), ErrCodeAccountExists, "validation"},
		{"account not found", NewAccountNotFoundError(9), ErrCodeAccountNotFound, "validation"},
		{"rate limited", NewRateLimitedError(), ErrCodeRateLimited, "system"},
		{"internal", NewInternalError(), ErrCodeInternal, "system"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.Category != tt.category {
				t.Errorf("Category = %q, want %q", tt.err.Category, tt.category)
			}
			if tt.err.Message == "" || tt.err.Action == "" {
				t.Errorf("Message and Action must be set: %+v", tt.err)
			}
		})
	}
}

func TestAPIError_MessagesIncludeArguments(t *testing.T) {
	if msg := NewAccountExistsError("ops").Message; !strings.Contains(msg, "ops") {
		t.Errorf("message %q should contain username", msg)
	}
	if msg := NewAccountNotFoundError(42).Message; !strings.Contains(msg, "42") {
		t.Errorf("message %q should contain id", msg)
	}
}

// 依存先エラーを包んでもセンチネルで判定できること
func TestSentinelErrors_Wrapped(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("%w: find account: %w", ErrUnavailable, cause)

	if !errors.Is(err, ErrUnavailable) {
		t.Error("errors.Is(err, ErrUnavailable) = false")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}
	if errors.Is(err, ErrAuthFailure) {
		t.Error("unavailable must not be reported as auth failure")
	}
}
