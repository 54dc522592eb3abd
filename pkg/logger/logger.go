package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

var globalLogger *slog.Logger

// ParseLevel ログレベル文字列をslog.Levelに変換
func ParseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", level)
	}
}

// InitLogger ログレベルに応じてslogを初期化
// 標準出力はプログラムの出力に使われるため、ログは標準エラー出力に書く。
// extraに渡したWriterにはJSON形式で同じログを書く。
func InitLogger(level string, extra ...io.Writer) error {
	slogLevel, err := ParseLevel(level)
	if err != nil {
		return err
	}

	globalLogger = New(os.Stderr, slogLevel, extra...)
	slog.SetDefault(globalLogger)

	return nil
}

// New テキスト形式のハンドラとJSON形式のハンドラを束ねたロガーを作成
func New(w io.Writer, level slog.Level, extra ...io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	handlers := []slog.Handler{slog.NewTextHandler(w, opts)}
	for _, e := range extra {
		handlers = append(handlers, slog.NewJSONHandler(e, opts))
	}
	if len(handlers) == 1 {
		return slog.New(handlers[0])
	}
	return slog.New(slogmulti.Fanout(handlers...))
}

// GetLogger グローバルロガーを取得
func GetLogger() *slog.Logger {
	if globalLogger == nil {
		// デフォルトロガーを返す
		return slog.Default()
	}
	return globalLogger
}

// With グローバルロガーに属性を追加して置き換える
// 以降のGetLoggerはこの属性付きのロガーを返す
func With(args ...any) *slog.Logger {
	globalLogger = GetLogger().With(args...)
	slog.SetDefault(globalLogger)
	return globalLogger
}
