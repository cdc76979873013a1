// Package logger はJSON構造化ログの初期化を提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// redacted はマスク済みの値として出力する文字列。
const redacted = "[REDACTED]"

// sensitiveKeys はログに値を残してはならない属性キー。
var sensitiveKeys = map[string]bool{
	"password":        true,
	"secret":          true,
	"secret_verifier": true,
	"token":           true,
	"refresh_token":   true,
	"handle":          true,
	"authorization":   true,
}

// Options はロガーの出力設定。
type Options struct {
	Level slog.Level
}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// 資格情報やトークンを表すキーの値はマスクして出力する。
func Setup(w io.Writer, opts Options) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       opts.Level,
		ReplaceAttr: redactSensitive,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定し、そのロガーを返す。
// writerがnilの場合はos.Stdoutに出力する。
func SetupDefault(w io.Writer, opts Options) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	logger := Setup(w, opts)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel は "debug" / "info" / "warn" / "error" をslog.Levelに変換する。
// 解釈できない値はInfoとして扱う。
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func redactSensitive(groups []string, a slog.Attr) slog.Attr {
	if sensitiveKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, redacted)
	}
	return a
}
