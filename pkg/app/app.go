package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/zurustar/funge/pkg/cli"
	"github.com/zurustar/funge/pkg/logger"
	"github.com/zurustar/funge/pkg/sample"
	"github.com/zurustar/funge/pkg/script"
	"github.com/zurustar/funge/pkg/vm"
	"github.com/zurustar/funge/pkg/window"
	"golang.org/x/text/transform"
)

// stdinName は標準入力から読んだプログラムの名前
const stdinName = "<stdin>"

// Application はアプリケーションのメインロジックを管理する
type Application struct {
	config  *cli.Config
	log     *slog.Logger
	samples *sample.Registry
	runID   string

	stdin  io.Reader
	stdout io.Writer

	// 後始末（ログファイルや出力変換のClose）
	closers []io.Closer
}

// New Applicationを作成
// samplesにはsamples/*.bfを含むファイルシステムを渡す（nil可）
func New(samples fs.FS) *Application {
	return &Application{
		samples: sample.NewRegistry(samples),
		stdin:   os.Stdin,
		stdout:  os.Stdout,
	}
}

// SetIO プログラムの標準入出力を差し替える（テスト用）
func (app *Application) SetIO(stdin io.Reader, stdout io.Writer) {
	app.stdin = stdin
	app.stdout = stdout
}

// Run アプリケーションを実行
// Ctrl+Cで実行中のプログラムを中断する
func (app *Application) Run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return app.RunContext(ctx, args)
}

// RunContext ctxが終了するとプログラムの実行を中断する
func (app *Application) RunContext(ctx context.Context, args []string) (err error) {
	defer func() {
		if cerr := app.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	// 1. コマンドライン引数の解析
	if err := app.parseArgs(args); err != nil {
		return fmt.Errorf("failed to parse args: %w", err)
	}

	if app.config.ShowHelp {
		cli.PrintHelp(app.stdout)
		return nil
	}

	if app.config.ListSamples {
		app.listSamples()
		return nil
	}

	// 2. ロガーの初期化
	if err := app.initLogger(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.log.Info("Application started", "config", app.config.ConfigPath)

	// 3. プログラムの読み込み
	prog, err := app.loadProgram()
	if err != nil {
		return fmt.Errorf("failed to load program: %w", err)
	}

	app.log.Info("Program loaded", "name", prog.Name, "size", prog.Size, "lines", len(prog.Lines))

	// 4. グリッドの作成
	grid, err := vm.LoadGrid(prog.Lines, app.config.Width, app.config.Height)
	if err != nil {
		return fmt.Errorf("failed to load program %s: %w", prog.Name, err)
	}

	// 5. 実行
	if app.config.Visual {
		err = app.runVisual(prog, grid)
	} else {
		err = app.runHeadless(ctx, grid)
	}
	if err != nil {
		return fmt.Errorf("failed to run %s: %w", prog.Name, err)
	}

	app.log.Info("Application terminated normally")
	return nil
}

// parseArgs コマンドライン引数を解析
func (app *Application) parseArgs(args []string) error {
	config, err := cli.ParseArgs(args)
	if err != nil {
		return err
	}
	app.config = config
	return nil
}

// initLogger ロガーを初期化し、実行ごとのrun_idを付ける
func (app *Application) initLogger() error {
	var extra []io.Writer
	if app.config.LogFile != "" {
		f, err := os.OpenFile(app.config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		app.closers = append(app.closers, f)
		extra = append(extra, f)
	}

	if err := logger.InitLogger(app.config.LogLevel, extra...); err != nil {
		return err
	}

	app.runID = uuid.NewString()
	app.log = logger.With("run_id", app.runID)
	return nil
}

// RunID 現在の実行のIDを返す
func (app *Application) RunID() string {
	return app.runID
}

// listSamples 埋め込みサンプルの一覧を表示
func (app *Application) listSamples() {
	samples := app.samples.List()
	if len(samples) == 0 {
		fmt.Fprintln(app.stdout, "No samples available.")
		return
	}
	fmt.Fprintln(app.stdout, "Available samples:")
	for _, s := range samples {
		fmt.Fprintf(app.stdout, "  %-16s %4d bytes\n", s.Name, s.Size)
	}
}

// loadProgram ファイル・サンプル・標準入力のいずれかからプログラムを読み込む
func (app *Application) loadProgram() (*script.Program, error) {
	loader, err := script.NewLoader(app.config.Encoding)
	if err != nil {
		return nil, err
	}

	app.log.Debug("Loading program", "encoding", loader.Encoding())

	switch {
	case app.config.Example != "":
		data, err := app.samples.Open(app.config.Example)
		if err != nil {
			if names := app.samples.Names(); len(names) > 0 {
				return nil, fmt.Errorf("%w (available: %s)", err, strings.Join(names, ", "))
			}
			return nil, err
		}
		return loader.LoadReader(app.config.Example+sample.Ext, bytes.NewReader(data))
	case app.config.FromStdin():
		app.log.Debug("Reading program from standard input")
		return loader.LoadReader(stdinName, app.stdin)
	default:
		return loader.LoadFile(app.config.ProgramPath)
	}
}

// output プログラムの出力先を返す
// raw以外のエンコーディングではバイトをUTF-8に戻して書く
func (app *Application) output() (io.Writer, error) {
	if app.config.Encoding == script.EncodingRaw {
		return app.stdout, nil
	}
	decoder, err := script.Decoder(app.config.Encoding)
	if err != nil {
		return nil, err
	}
	w := transform.NewWriter(app.stdout, decoder)
	app.closers = append(app.closers, w)
	return w, nil
}

// vmOptions 設定からVMのオプションを組み立てる
func (app *Application) vmOptions(out io.Writer) []vm.Option {
	opts := []vm.Option{
		vm.WithInput(app.stdin),
		vm.WithOutput(out),
		vm.WithLogger(app.log),
		vm.WithStepLimit(app.config.MaxSteps),
	}
	if app.config.HasSeed {
		opts = append(opts, vm.WithSeed(app.config.Seed))
	}
	return opts
}

// runHeadless ウィンドウなしでプログラムを実行
func (app *Application) runHeadless(ctx context.Context, grid *vm.Grid) error {
	out, err := app.output()
	if err != nil {
		return err
	}

	opts := append(app.vmOptions(out), vm.WithTimeout(app.config.Timeout))
	machine := vm.New(grid, opts...)
	return machine.Run(ctx)
}

// runVisual トレーサーウィンドウでプログラムを実行
func (app *Application) runVisual(prog *script.Program, grid *vm.Grid) error {
	out, err := app.output()
	if err != nil {
		return err
	}

	transcript := window.NewTranscript()
	// 入力は別goroutineで読み、届くまでトレーサーは入力命令の前で待つ
	input := window.NewInputPump(app.stdin)
	opts := append(app.vmOptions(io.MultiWriter(out, transcript)), vm.WithInput(input))
	machine := vm.New(grid, opts...)

	app.log.Info("Starting tracer", "speed", app.config.Speed)
	return window.Run(machine, window.Options{
		Title:      prog.Name,
		Speed:      app.config.Speed,
		Timeout:    app.config.Timeout,
		Transcript: transcript,
		Input:      input,
	})
}

// close 開いたリソースを逆順に閉じる
func (app *Application) close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	app.closers = nil
	return errors.Join(errs...)
}
