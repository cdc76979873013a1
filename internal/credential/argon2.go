package credential

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/sync/semaphore"
)

// Argon2Params はargon2idのコストパラメータ。
// 保存形式（PHC文字列）にパラメータを含めるため、変更しても既存の検証子は検証できる。
type Argon2Params struct {
	Iterations uint32
	Memory     uint32 // KiB
	Threads    uint8
	SaltLength uint32
	KeyLength  uint32
}

// DefaultArgon2Params は本番用の既定パラメータ。
var DefaultArgon2Params = Argon2Params{
	Iterations: 3,
	Memory:     64 * 1024,
	Threads:    1,
	SaltLength: 16,
	KeyLength:  32,
}

// 保存済み検証子から読み取るパラメータの許容範囲。
const (
	maxVerifierIterations = 64
	maxVerifierMemory     = 1024 * 1024 // KiB（1GiB）
	minVerifierSaltLength = 8
	maxVerifierSaltLength = 64
	minVerifierKeyLength  = 16
	maxVerifierKeyLength  = 64
)

// hashingPermits はargon2の同時実行数の上限。
var hashingPermits = semaphore.NewWeighted(8)

// HashSecret は既定パラメータでシークレットのargon2id検証子を生成する。
func HashSecret(ctx context.Context, secret string) (string, error) {
	return HashSecretWithParams(ctx, secret, DefaultArgon2Params)
}

// HashSecretWithParams は指定パラメータでシークレットのargon2id検証子を生成する。
// 戻り値は $argon2id$v=19$m=...,t=...,p=...$salt$key 形式。
func HashSecretWithParams(ctx context.Context, secret string, p Argon2Params) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret must not be empty")
	}

	salt := make([]byte, p.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := deriveKey(ctx, secret, salt, p)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Iterations, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// CompareSecret は検証子とシークレットを定数時間で比較する。
// 検証子の形式が不正な場合はエラーを返す。
func CompareSecret(ctx context.Context, encoded, secret string) (bool, error) {
	p, salt, want, err := decodeVerifier(encoded)
	if err != nil {
		return false, err
	}

	got, err := deriveKey(ctx, secret, salt, p)
	if err != nil {
		return false, err
	}

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func deriveKey(ctx context.Context, secret string, salt []byte, p Argon2Params) ([]byte, error) {
	if err := hashingPermits.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("context canceled while waiting for hashing permit: %w", err)
	}
	defer hashingPermits.Release(1)

	return argon2.IDKey([]byte(secret), salt, p.Iterations, p.Memory, p.Threads, p.KeyLength), nil
}

// decodeVerifier はPHC形式の検証子をパラメータ、ソルト、導出鍵に分解する。
func decodeVerifier(encoded string) (Argon2Params, []byte, []byte, error) {
	var p Argon2Params

	parts := strings.Split(encoded, "$")
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, fmt.Errorf("unsupported secret verifier format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, fmt.Errorf("invalid verifier version: %w", err)
	}
	if version != argon2.Version {
		return p, nil, nil, fmt.Errorf("incompatible argon2 version: %d", version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Threads); err != nil {
		return p, nil, nil, fmt.Errorf("invalid verifier parameters: %w", err)
	}

	if err := validateParams(p); err != nil {
		return p, nil, nil, err
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, fmt.Errorf("invalid verifier salt: %w", err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, fmt.Errorf("invalid verifier key: %w", err)
	}
	if len(salt) < minVerifierSaltLength || len(salt) > maxVerifierSaltLength {
		return p, nil, nil, fmt.Errorf("invalid verifier salt length: %d", len(salt))
	}
	if len(key) < minVerifierKeyLength || len(key) > maxVerifierKeyLength {
		return p, nil, nil, fmt.Errorf("invalid verifier key length: %d", len(key))
	}

	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))
	return p, salt, key, nil
}

// validateParams は保存済み検証子のコストパラメータが範囲内かを確認する。
// argon2.IDKeyはt=0やp=0でpanicし、巨大なmはそのままメモリ確保に使われる。
func validateParams(p Argon2Params) error {
	if p.Iterations < 1 || p.Iterations > maxVerifierIterations {
		return fmt.Errorf("invalid verifier iterations: %d", p.Iterations)
	}
	if p.Threads < 1 {
		return fmt.Errorf("invalid verifier parallelism: %d", p.Threads)
	}
	if p.Memory < 8*uint32(p.Threads) || p.Memory > maxVerifierMemory {
		return fmt.Errorf("invalid verifier memory: %d KiB", p.Memory)
	}
	return nil
}
