// Package credential はユーザー名とシークレットの照合を提供する。
package credential

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/credgate/internal/model"
)

// Directory はアカウントディレクトリのうち、照合に必要な参照操作。
type Directory interface {
	// FindByUsername はユーザー名でアカウントを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.Identity, error)
}

// Verifier はユーザー名とシークレットをディレクトリのアカウントと照合する。
type Verifier struct {
	directory Directory
	// dummy は未登録ユーザーでも同じコストの比較を行うための検証子
	dummy string
}

// NewVerifier はVerifierを生成する。
// paramsは未登録ユーザー用のダミー検証子の生成に使い、実アカウントと同じ値を渡す。
func NewVerifier(ctx context.Context, directory Directory, params Argon2Params) (*Verifier, error) {
	dummy, err := HashSecretWithParams(ctx, "credgate-dummy-secret", params)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy verifier: %w", err)
	}
	return &Verifier{
		directory: directory,
		dummy:     dummy,
	}, nil
}

// Verify はユーザー名とシークレットを照合し、一致したアカウントを返す。
// 未登録ユーザーとシークレット誤りはどちらもErrAuthFailureを返し、区別しない。
// ディレクトリの障害はErrUnavailableとして返す。
func (v *Verifier) Verify(ctx context.Context, username, secret string) (*model.Identity, error) {
	identity, err := v.directory.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to find account: %w", model.ErrUnavailable, err)
	}

	encoded := v.dummy
	if identity != nil {
		encoded = identity.SecretVerifier
	}

	ok, err := CompareSecret(ctx, encoded, secret)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrUnavailable, err)
		}
		// 検証子が壊れているアカウントはログに残して認証失敗として扱う
		slog.Warn("unusable secret verifier",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return nil, model.ErrAuthFailure
	}

	if identity == nil || !ok {
		return nil, model.ErrAuthFailure
	}

	return identity, nil
}
