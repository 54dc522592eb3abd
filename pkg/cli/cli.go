package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zurustar/funge/pkg/config"
	"gitlab.com/efronlicht/enve"
	"gitlab.com/efronlicht/enve/parse"
)

// StdinPath は標準入力からプログラムを読むことを表すパス
const StdinPath = "-"

// 環境変数名
const (
	EnvConfig   = "FUNGE_CONFIG"
	EnvLogLevel = "LOG_LEVEL"
	EnvLogFile  = "FUNGE_LOG_FILE"
	EnvTimeout  = "TIMEOUT"
	EnvSeed     = "FUNGE_SEED"
	EnvMaxSteps = "FUNGE_MAX_STEPS"
	EnvEncoding = "FUNGE_ENCODING"
	EnvVisual   = "FUNGE_VISUAL"
)

// Config はコマンドライン引数・環境変数・設定ファイルから解析された設定を保持する
// 優先順位: コマンドラインフラグ > 環境変数 > 設定ファイル > デフォルト
type Config struct {
	ProgramPath string        // プログラムのパス（"-"は標準入力）
	Example     string        // 実行する埋め込みサンプル名
	ConfigPath  string        // 読み込んだ設定ファイル
	Timeout     time.Duration // タイムアウト時間（0は無制限）
	LogLevel    string        // ログレベル（debug, info, warn, error）
	LogFile     string        // JSONログの追記先
	Seed        uint64        // 乱数シード
	HasSeed     bool          // シードが指定されたか
	Width       int           // グリッドの幅
	Height      int           // グリッドの高さ
	MaxSteps    uint64        // 最大ステップ数（0は無制限）
	Encoding    string        // ソースのエンコーディング
	Visual      bool          // トレーサーウィンドウを使う
	Speed       int           // トレーサーの1フレームあたりのステップ数
	ListSamples bool          // サンプル一覧を表示
	ShowHelp    bool          // ヘルプ表示フラグ
}

// FromStdin プログラムを標準入力から読むかどうかを返す
func (c *Config) FromStdin() bool {
	return c.Example == "" && (c.ProgramPath == "" || c.ProgramPath == StdinPath)
}

// flagValues はフラグの生の値
type flagValues struct {
	configPath string
	timeoutSec int
	logLevel   string
	logFile    string
	seed       uint64
	width      int
	height     int
	maxSteps   uint64
	encoding   string
	visual     bool
	speed      int
	list       bool
	example    string
	help       bool
}

// shortFlags は短縮形フラグと正式名の対応
var shortFlags = map[string]string{
	"t": "timeout",
	"l": "log-level",
	"s": "seed",
	"e": "encoding",
	"c": "config",
	"x": "example",
	"h": "help",
}

// boolFlags は値を取らないフラグ
var boolFlags = map[string]bool{
	"visual": true,
	"list":   true,
	"help":   true,
	"h":      true,
}

// ParseArgs コマンドライン引数を解析してConfigを返す
func ParseArgs(args []string) (*Config, error) {
	// 引数を並べ替え：フラグを前に、位置引数を後ろに
	reorderedArgs := reorderArgs(args)

	fs := flag.NewFlagSet("funge", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var v flagValues
	fs.StringVar(&v.configPath, "config", "", "設定ファイル（TOML）")
	fs.StringVar(&v.configPath, "c", "", "設定ファイル（短縮形）")
	fs.IntVar(&v.timeoutSec, "timeout", 0, "タイムアウト時間（秒）")
	fs.IntVar(&v.timeoutSec, "t", 0, "タイムアウト時間（秒）（短縮形）")
	fs.StringVar(&v.logLevel, "log-level", "", "ログレベル（debug, info, warn, error）")
	fs.StringVar(&v.logLevel, "l", "", "ログレベル（短縮形）")
	fs.StringVar(&v.logFile, "log-file", "", "JSONログの出力先")
	fs.Uint64Var(&v.seed, "seed", 0, "乱数シード")
	fs.Uint64Var(&v.seed, "s", 0, "乱数シード（短縮形）")
	fs.IntVar(&v.width, "width", 0, "グリッドの幅")
	fs.IntVar(&v.height, "height", 0, "グリッドの高さ")
	fs.Uint64Var(&v.maxSteps, "max-steps", 0, "最大ステップ数")
	fs.StringVar(&v.encoding, "encoding", "", "ソースのエンコーディング")
	fs.StringVar(&v.encoding, "e", "", "ソースのエンコーディング（短縮形）")
	fs.BoolVar(&v.visual, "visual", false, "トレーサーウィンドウで実行")
	fs.IntVar(&v.speed, "speed", 0, "1フレームあたりのステップ数")
	fs.BoolVar(&v.list, "list", false, "サンプル一覧を表示")
	fs.StringVar(&v.example, "example", "", "埋め込みサンプルを実行")
	fs.StringVar(&v.example, "x", "", "埋め込みサンプルを実行（短縮形）")
	fs.BoolVar(&v.help, "help", false, "ヘルプを表示")
	fs.BoolVar(&v.help, "h", false, "ヘルプを表示（短縮形）")

	if err := fs.Parse(reorderedArgs); err != nil {
		return nil, err
	}

	// 明示的に指定されたフラグ（正式名）
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		name := f.Name
		if long, ok := shortFlags[name]; ok {
			name = long
		}
		set[name] = true
	})

	if v.help {
		return &Config{ShowHelp: true}, nil
	}

	// 設定ファイルのパス（フラグ > 環境変数）
	configPath := v.configPath
	if !set["config"] {
		p, ok, err := lookupEnv(parse.NoOp, EnvConfig)
		if err != nil {
			return nil, err
		}
		if ok {
			configPath = p
		}
	}

	file := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		file = loaded
	}

	cfg := fromFile(file)
	cfg.ConfigPath = configPath

	if err := applyEnv(cfg, set); err != nil {
		return nil, err
	}
	if err := applyFlags(cfg, &v, set); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	// 位置引数（プログラムのパス）
	switch fs.NArg() {
	case 0:
	case 1:
		cfg.ProgramPath = fs.Arg(0)
	default:
		return nil, fmt.Errorf("too many arguments: %s", strings.Join(fs.Args(), " "))
	}
	if cfg.Example != "" && cfg.ProgramPath != "" {
		return nil, fmt.Errorf("cannot use --example together with a program path")
	}

	return cfg, nil
}

// fromFile 設定ファイルの値からConfigを作る
func fromFile(f *config.File) *Config {
	cfg := &Config{
		Timeout:  time.Duration(f.Run.Timeout) * time.Second,
		LogLevel: f.Log.Level,
		LogFile:  f.Log.File,
		Width:    f.Grid.Width,
		Height:   f.Grid.Height,
		MaxSteps: f.Run.MaxSteps,
		Encoding: f.Source.Encoding,
		Visual:   f.Visual.Enabled,
		Speed:    f.Visual.Speed,
	}
	if f.Run.Seed != nil {
		cfg.Seed = *f.Run.Seed
		cfg.HasSeed = true
	}
	return cfg
}

// applyEnv 環境変数からの設定（コマンドラインフラグが優先）
func applyEnv(cfg *Config, set map[string]bool) error {
	if !set["log-level"] {
		level, ok, err := lookupEnv(parse.NoOp, EnvLogLevel)
		if err != nil {
			return err
		}
		if ok {
			cfg.LogLevel = strings.ToLower(level)
		}
	}

	if !set["log-file"] {
		file, ok, err := lookupEnv(parse.NoOp, EnvLogFile)
		if err != nil {
			return err
		}
		if ok {
			cfg.LogFile = file
		}
	}

	if !set["timeout"] {
		sec, ok, err := lookupEnv(strconv.Atoi, EnvTimeout)
		if err != nil {
			return err
		}
		if ok {
			timeout, err := secondsToDuration(sec)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", EnvTimeout, err)
			}
			cfg.Timeout = timeout
		}
	}

	if !set["seed"] {
		seed, ok, err := lookupEnv(parse.Uint, EnvSeed)
		if err != nil {
			return err
		}
		if ok {
			cfg.Seed = seed
			cfg.HasSeed = true
		}
	}

	if !set["max-steps"] {
		steps, ok, err := lookupEnv(parse.Uint, EnvMaxSteps)
		if err != nil {
			return err
		}
		if ok {
			cfg.MaxSteps = steps
		}
	}

	if !set["encoding"] {
		enc, ok, err := lookupEnv(parse.NoOp, EnvEncoding)
		if err != nil {
			return err
		}
		if ok {
			cfg.Encoding = strings.ToLower(enc)
		}
	}

	if !set["visual"] {
		visual, ok, err := lookupEnv(strconv.ParseBool, EnvVisual)
		if err != nil {
			return err
		}
		if ok {
			cfg.Visual = visual
		}
	}

	return nil
}

// applyFlags 明示的に指定されたフラグで上書きする
func applyFlags(cfg *Config, v *flagValues, set map[string]bool) error {
	if set["timeout"] {
		timeout, err := secondsToDuration(v.timeoutSec)
		if err != nil {
			return fmt.Errorf("invalid --timeout: %w", err)
		}
		cfg.Timeout = timeout
	}
	if set["log-level"] {
		cfg.LogLevel = strings.ToLower(v.logLevel)
	}
	if set["log-file"] {
		cfg.LogFile = v.logFile
	}
	if set["seed"] {
		cfg.Seed = v.seed
		cfg.HasSeed = true
	}
	if set["width"] {
		cfg.Width = v.width
	}
	if set["height"] {
		cfg.Height = v.height
	}
	if set["max-steps"] {
		cfg.MaxSteps = v.maxSteps
	}
	if set["encoding"] {
		cfg.Encoding = strings.ToLower(v.encoding)
	}
	if set["visual"] {
		cfg.Visual = v.visual
	}
	if set["speed"] {
		cfg.Speed = v.speed
	}
	cfg.ListSamples = v.list
	cfg.Example = v.example
	return nil
}

// secondsToDuration 秒数をtime.Durationに変換する
// Durationに収まらない値は桁あふれする前にエラーにする
func secondsToDuration(sec int) (time.Duration, error) {
	if int64(sec) > config.MaxTimeoutSeconds {
		return 0, fmt.Errorf("timeout must be at most %d seconds, got %d", config.MaxTimeoutSeconds, sec)
	}
	return time.Duration(sec) * time.Second, nil
}

// validate 合成後の設定を検証する
func validate(cfg *Config) error {
	f := config.Default()
	f.Grid = config.Grid{Width: cfg.Width, Height: cfg.Height}
	f.Run.Timeout = int(cfg.Timeout / time.Second)
	f.Log.Level = cfg.LogLevel
	f.Source.Encoding = cfg.Encoding
	f.Visual.Speed = cfg.Speed
	return f.Validate()
}

// errEmpty は空の環境変数を未設定として扱うための印
var errEmpty = errors.New("empty value")

// lookupEnv 環境変数を読み取って変換する
// 未設定または空の場合はok=falseを返す
func lookupEnv[T any](parser func(string) (T, error), key string) (value T, ok bool, err error) {
	value, err = enve.Lookup(func(s string) (T, error) {
		if strings.TrimSpace(s) == "" {
			var zero T
			return zero, errEmpty
		}
		return parser(strings.TrimSpace(s))
	}, key)

	var missing enve.MissingKeyError
	switch {
	case err == nil:
		return value, true, nil
	case errors.As(err, &missing), errors.Is(err, errEmpty):
		return value, false, nil
	default:
		return value, false, fmt.Errorf("invalid %s: %w", key, err)
	}
}

// reorderArgs 引数を並べ替えて、フラグを前に、位置引数を後ろに配置する
// 単独の"-"は標準入力を表す位置引数として扱う
func reorderArgs(args []string) []string {
	var flags []string
	var positional []string

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}

		// フラグかどうかを判定（-または--で始まる）
		if len(arg) > 1 && arg[0] == '-' {
			flags = append(flags, arg)

			// -name=value の形式は次の引数を取らない
			if strings.Contains(arg, "=") {
				continue
			}

			// 次の引数が値である可能性をチェック（-t 5 のような場合）
			name := strings.TrimLeft(arg, "-")
			if boolFlags[name] {
				continue
			}
			if i+1 < len(args) {
				next := args[i+1]
				// 負の数は値として扱う
				if len(next) == 0 || next[0] != '-' || isNumber(next) {
					i++
					flags = append(flags, next)
				}
			}
		} else {
			// 位置引数
			positional = append(positional, arg)
		}
	}

	// フラグを前に、位置引数を後ろに配置
	if len(positional) > 0 {
		flags = append(flags, "--")
	}
	return append(flags, positional...)
}

func isNumber(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

// PrintHelp ヘルプメッセージを表示
func PrintHelp(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintf(w, `funge - Befunge-93 Interpreter

Usage:
  funge [options] [program.bf]

Arguments:
  program.bf    Befunge-93のソースファイル（省略または"-"の場合は標準入力）
                見つからない場合は大文字小文字を無視して探す

Options:
  -t, --timeout <seconds>     指定秒数後にプログラムを終了（デフォルト: 無制限）
  -l, --log-level <level>     ログレベル: debug, info, warn, error（デフォルト: warn）
  --log-file <path>           JSON形式のログを追記するファイル
  -s, --seed <n>              ?命令の乱数シード（デフォルト: 毎回異なる）
  --width <n>                 グリッドの幅（デフォルト: 80）
  --height <n>                グリッドの高さ（デフォルト: 25）
  --max-steps <n>             実行する最大命令数（デフォルト: 無制限）
  -e, --encoding <name>       ソースのエンコーディング: raw, cp437, latin1, sjis（デフォルト: raw）
  --visual                    トレーサーウィンドウで実行
  --speed <n>                 トレーサーの1フレームあたりのステップ数（デフォルト: 1）
  -c, --config <path>         設定ファイル（TOML）
  --list                      埋め込みサンプルの一覧を表示
  -x, --example <name>        埋め込みサンプルを実行
  -h, --help                  このヘルプを表示

Environment Variables:
  FUNGE_CONFIG=<path>         設定ファイル
  LOG_LEVEL=<level>           ログレベル
  FUNGE_LOG_FILE=<path>       JSONログの出力先
  TIMEOUT=<seconds>           タイムアウト時間（秒）
  FUNGE_SEED=<n>              乱数シード
  FUNGE_MAX_STEPS=<n>         最大ステップ数
  FUNGE_ENCODING=<name>       ソースのエンコーディング
  FUNGE_VISUAL=1              トレーサーウィンドウを有効化

Tracer Keys:
  Space                       一時停止／再開
  N, Right                    一時停止中に1ステップ実行
  Up, Down                    速度を2倍／半分にする
  Esc                         終了

Examples:
  funge hello.bf                   ファイルを実行
  echo 3 4 | funge add.bf          標準入力から&で数値を読む
  funge - < prog.bf                標準入力からプログラムを読む
  funge --example hello            埋め込みサンプルを実行
  funge --visual --speed 4 maze.bf トレーサーで実行
  funge --seed 7 random.bf         乱数を固定して実行
`)
}
