// Package config はfunge.toml設定ファイルを扱う
package config

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/zurustar/funge/pkg/logger"
	"github.com/zurustar/funge/pkg/script"
	"github.com/zurustar/funge/pkg/vm"
)

// デフォルト値
const (
	DefaultLogLevel = "warn"
	DefaultSpeed    = 1
)

// MaxTimeoutSeconds はtime.Durationで表せる最大の秒数
const MaxTimeoutSeconds = math.MaxInt64 / int64(time.Second)

// File はfunge.tomlの構造
type File struct {
	Grid   Grid   `toml:"grid"`
	Run    Run    `toml:"run"`
	Log    Log    `toml:"log"`
	Source Source `toml:"source"`
	Visual Visual `toml:"visual"`

	// Path は読み込んだファイルのパス（Defaultの場合は空）
	Path string `toml:"-"`
}

// Grid はプログラム空間の大きさ
type Grid struct {
	Width  int `toml:"width"`
	Height int `toml:"height"`
}

// Run は実行時の制限
type Run struct {
	Seed     *uint64 `toml:"seed"`      // 乱数シード（未指定なら毎回異なる）
	Timeout  int     `toml:"timeout"`   // タイムアウト（秒、0は無制限）
	MaxSteps uint64  `toml:"max_steps"` // 最大ステップ数（0は無制限）
}

// Log はログ出力の設定
type Log struct {
	Level string `toml:"level"`
	File  string `toml:"file"` // JSON形式で追記するファイル
}

// Source はソースファイルの設定
type Source struct {
	Encoding string `toml:"encoding"`
}

// Visual はトレーサーウィンドウの設定
type Visual struct {
	Enabled bool `toml:"enabled"`
	Speed   int  `toml:"speed"` // 1フレームあたりのステップ数
}

// Default デフォルト設定を返す
func Default() *File {
	return &File{
		Grid: Grid{
			Width:  vm.DefaultWidth,
			Height: vm.DefaultHeight,
		},
		Log: Log{
			Level: DefaultLogLevel,
		},
		Source: Source{
			Encoding: script.EncodingRaw,
		},
		Visual: Visual{
			Speed: DefaultSpeed,
		},
	}
}

// Load 設定ファイルを読み込む
// ファイルに書かれていない項目はデフォルト値のまま残る
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return Parse(path, string(data))
}

// Parse TOML文字列を設定として解析する
// 未知のキーはタイプミスとみなしてエラーにする
func Parse(name, data string) (*File, error) {
	f := Default()
	md, err := toml.Decode(data, f)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", name, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("unknown keys in %s: %s", name, strings.Join(keys, ", "))
	}

	f.Path = name
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", name, err)
	}
	return f, nil
}

// Validate 設定値を検証する
func (f *File) Validate() error {
	if f.Grid.Width <= 0 || f.Grid.Height <= 0 {
		return fmt.Errorf("grid size must be positive, got %dx%d", f.Grid.Width, f.Grid.Height)
	}
	if f.Run.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %d", f.Run.Timeout)
	}
	if int64(f.Run.Timeout) > MaxTimeoutSeconds {
		return fmt.Errorf("timeout must be at most %d seconds, got %d", MaxTimeoutSeconds, f.Run.Timeout)
	}
	if _, err := logger.ParseLevel(f.Log.Level); err != nil {
		return err
	}
	if !script.ValidEncoding(f.Source.Encoding) {
		return fmt.Errorf("unknown encoding %q", f.Source.Encoding)
	}
	if f.Visual.Speed < 1 {
		return fmt.Errorf("visual speed must be at least 1, got %d", f.Visual.Speed)
	}
	return nil
}
