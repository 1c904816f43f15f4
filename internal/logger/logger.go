// Package logger は構造化ログの設定とPIIのマスキングを提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
)

// DefaultRedactFields はログ出力時にマスクする属性名の既定値。
var DefaultRedactFields = []string{"email", "password", "session_id", "reset_token", "hashed_password"}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// redactFieldsが指定された場合は該当する属性とメッセージ中の値をマスクする。
func Setup(w io.Writer, redactFields ...string) *slog.Logger {
	var handler slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	if len(redactFields) > 0 {
		handler = NewRedactingHandler(handler, redactFields)
	}
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// writerがnilの場合はos.Stdoutに出力する。
func SetupDefault(w io.Writer, redactFields ...string) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w, redactFields...))
}
