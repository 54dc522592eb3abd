// Package window はBefunge-93プログラムを1ステップずつ表示するトレーサーウィンドウを提供する
package window

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/zurustar/funge/pkg/logger"
	"github.com/zurustar/funge/pkg/opcode"
	"github.com/zurustar/funge/pkg/vm"
	"golang.org/x/image/font/basicfont"
)

var (
	// 背景色 #0087C8
	backgroundColor = color.RGBA{0x00, 0x87, 0xC8, 0xFF}
	// テキスト色（白）
	textColor = color.White
	// カーソル位置の背景色（黄色）
	cursorColor = color.RGBA{0xFF, 0xFF, 0x00, 0xFF}
	// カーソル位置の文字色
	cursorTextColor = color.Black
	// 表示できないバイトの色
	unprintableColor = color.RGBA{0x00, 0x55, 0x80, 0xFF}
	// エラー表示の色
	errorTextColor = color.RGBA{0xFF, 0xC0, 0xC0, 0xFF}
	// デフォルトフォント
	defaultFace = text.NewGoXFace(basicfont.Face7x13)
)

// レイアウト（ピクセル）
const (
	cellWidth  = 7  // basicfont.Face7x13の文字幅
	cellHeight = 13 // basicfont.Face7x13の行の高さ
	margin     = 8
	statusRows = 6
	maxSpeed   = 4096
	stackShown = 8
)

// State はトレーサーの状態を表す
type State int

const (
	StateRunning State = iota // 実行中
	StatePaused               // 一時停止中
	StateHalted               // @で終了した
	StateError                // エラーで停止した
	StateWaiting              // 端末からの入力待ち
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateHalted:
		return "halted"
	case StateError:
		return "error"
	case StateWaiting:
		return "waiting for input"
	}
	return "unknown"
}

// Action はキー入力に対応する操作
type Action int

const (
	ActionNone        Action = iota
	ActionTogglePause        // Space
	ActionStep               // N, →
	ActionFaster             // ↑
	ActionSlower             // ↓
	ActionQuit               // Esc
)

// Machine はトレーサーが操作するVMのインターフェース
// *vm.VMがこれを満たす
type Machine interface {
	Step() error
	Flush() error
	Halted() bool
	Position() vm.Position
	Direction() opcode.Direction
	StringMode() bool
	Stack() []int32
	Steps() uint64
	Grid() *vm.Grid
	PendingRead() (waiting, number bool)
}

// Options はトレーサーの設定
type Options struct {
	Title       string        // ウィンドウタイトルに表示する名前
	Speed       int           // 1フレームあたりのステップ数（1未満は1）
	Timeout     time.Duration // タイムアウト時間（0は無制限）
	StartPaused bool          // 一時停止状態で開始する
	Transcript  *Transcript   // プログラム出力の最終行（nilなら表示しない）
	Input       *InputPump    // VMの入力元（nilなら入力待ちを確認せずに実行する）
}

// Game はEbitengineのゲームインターフェースを実装する
type Game struct {
	machine    Machine
	transcript *Transcript
	input      *InputPump
	speed      int
	paused     bool
	waiting    bool  // 入力が届くまでステップを止めている
	err        error // VMの最初のエラー
	timedOut   bool
	timeout    time.Duration
	startTime  time.Time
	width      int // 論理画面の幅
	height     int // 論理画面の高さ

	cursorImage      *ebiten.Image
	unprintableImage *ebiten.Image

	log *slog.Logger
	mu  sync.RWMutex
}

// NewGame Gameを作成
func NewGame(m Machine, opts Options) *Game {
	speed := opts.Speed
	if speed < 1 {
		speed = 1
	}
	if speed > maxSpeed {
		speed = maxSpeed
	}
	grid := m.Grid()
	return &Game{
		machine:    m,
		transcript: opts.Transcript,
		input:      opts.Input,
		speed:      speed,
		paused:     opts.StartPaused,
		timeout:    opts.Timeout,
		startTime:  time.Now(),
		width:      grid.Width()*cellWidth + 2*margin,
		height:     (grid.Height()+statusRows+1)*cellHeight + 2*margin,
		log:        logger.GetLogger(),
	}
}

// Update ゲームロジックの更新（Ebitengineが毎フレーム呼び出す）
func (g *Game) Update() error {
	// タイムアウトチェック
	if g.timeout > 0 && time.Since(g.startTime) >= g.timeout {
		g.mu.Lock()
		g.timedOut = true
		g.mu.Unlock()
		g.log.Info("Tracer timed out", "timeout", g.timeout)
		return ebiten.Termination
	}

	step := false
	for _, action := range pressedActions() {
		if action == ActionQuit {
			return ebiten.Termination
		}
		if action == ActionStep {
			step = true
		}
		g.Apply(action)
	}

	g.Advance(step)
	return nil
}

// pressedActions このフレームで押されたキーを操作に変換する
func pressedActions() []Action {
	keys := []struct {
		key    ebiten.Key
		action Action
	}{
		{ebiten.KeyEscape, ActionQuit},
		{ebiten.KeySpace, ActionTogglePause},
		{ebiten.KeyN, ActionStep},
		{ebiten.KeyArrowRight, ActionStep},
		{ebiten.KeyArrowUp, ActionFaster},
		{ebiten.KeyArrowDown, ActionSlower},
	}

	var actions []Action
	for _, k := range keys {
		if inpututil.IsKeyJustPressed(k.key) {
			actions = append(actions, k.action)
		}
	}
	return actions
}

// Apply 操作を適用する（ActionStepとActionQuitはUpdateが扱う）
func (g *Game) Apply(action Action) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch action {
	case ActionTogglePause:
		g.paused = !g.paused
		g.log.Debug("Tracer pause toggled", "paused", g.paused)
	case ActionFaster:
		if g.speed < maxSpeed {
			g.speed *= 2
		}
	case ActionSlower:
		if g.speed > 1 {
			g.speed /= 2
		}
	}
}

// Advance 1フレーム分VMを進める
// 一時停止中はstepOnceがtrueのときだけ1ステップ実行する
// 入力命令の前でデータが届いていなければ、そのフレームはそこで止める
// 最初のエラーで停止し、以降は何もしない
func (g *Game) Advance(stepOnce bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.err != nil || g.machine.Halted() {
		return
	}

	n := g.speed
	if g.paused {
		if !stepOnce {
			return
		}
		n = 1
	}

	g.waiting = false
	for i := 0; i < n && !g.machine.Halted(); i++ {
		if g.blockedOnInput() {
			g.waiting = true
			break
		}
		if err := g.machine.Step(); err != nil {
			g.err = err
			g.log.Error("VM stopped with error", "error", err, "steps", g.machine.Steps())
			break
		}
	}

	if err := g.machine.Flush(); err != nil && g.err == nil {
		g.err = fmt.Errorf("failed to write output: %w", err)
	}
	if g.machine.Halted() {
		g.log.Info("VM halted", "steps", g.machine.Steps())
	}
}

// blockedOnInput 次のステップが入力を待ってブロックするかを返す
func (g *Game) blockedOnInput() bool {
	if g.input == nil {
		return false
	}
	waiting, number := g.machine.PendingRead()
	return waiting && !g.input.Ready(number)
}

// State 現在の状態を返す
func (g *Game) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state()
}

func (g *Game) state() State {
	switch {
	case g.err != nil:
		return StateError
	case g.machine.Halted():
		return StateHalted
	case g.paused:
		return StatePaused
	case g.waiting:
		return StateWaiting
	}
	return StateRunning
}

// Speed 1フレームあたりのステップ数を返す
func (g *Game) Speed() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.speed
}

// Err ウィンドウが閉じた後に返すエラー
// VMのエラーを優先し、タイムアウトで終了した場合はCANCELEDエラーを返す
func (g *Game) Err() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.err != nil {
		return g.err
	}
	if g.timedOut && !g.machine.Halted() {
		return vm.NewCanceledError(context.DeadlineExceeded)
	}
	return nil
}

// StatusLines ステータスパネルの各行を返す
func (g *Game) StatusLines() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	m := g.machine
	pos := m.Position()
	mode := "off"
	if m.StringMode() {
		mode = "on"
	}

	lines := []string{
		fmt.Sprintf("pos (%d, %d)  dir %s  string mode %s  op %s",
			pos.X, pos.Y, m.Direction(), mode, describeCell(m.Grid().Get(pos.X, pos.Y))),
		fmt.Sprintf("steps %d  speed %d/frame  %s", m.Steps(), g.speed, g.state()),
		"stack " + formatStack(m.Stack()),
	}
	if g.transcript != nil {
		lines = append(lines, "output "+g.transcript.LastLine())
	}
	if g.err != nil {
		lines = append(lines, "error "+g.err.Error())
	}
	lines = append(lines, "SPACE pause  N step  UP/DOWN speed  ESC quit")
	return lines
}

// formatStack スタックの上位を表示用に整形する（右端が先頭）
func formatStack(values []int32) string {
	if len(values) == 0 {
		return "(empty)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "depth %d: ", len(values))
	start := 0
	if len(values) > stackShown {
		start = len(values) - stackShown
		b.WriteString("... ")
	}
	for i, v := range values[start:] {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d", v)
	}
	return b.String()
}

// describeCell カーソル位置の命令と、そのスタックへの作用を返す
func describeCell(b byte) string {
	info, ok := opcode.Lookup(b)
	if !ok {
		return fmt.Sprintf("%#04x (none)", b)
	}
	return fmt.Sprintf("%s (-%d +%d)", info.Name, info.Pops, info.Pushes)
}

// cellGlyph セルの表示文字を返す
// 表示できないバイトはfalseを返し、印だけを描画する
func cellGlyph(b byte) (string, bool) {
	if b >= 0x20 && b < 0x7F {
		return string(rune(b)), true
	}
	return "", false
}

// Draw 画面描画（Ebitengineが毎フレーム呼び出す）
func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(backgroundColor)

	g.mu.RLock()
	grid := g.machine.Grid()
	pos := g.machine.Position()
	g.mu.RUnlock()

	if g.cursorImage == nil {
		g.cursorImage = ebiten.NewImage(cellWidth, cellHeight)
		g.cursorImage.Fill(cursorColor)
		g.unprintableImage = ebiten.NewImage(cellWidth-2, cellHeight-4)
		g.unprintableImage.Fill(unprintableColor)
	}

	g.drawGrid(screen, grid, pos)
	g.drawStatus(screen, grid.Height())
}

// drawGrid プログラム空間を描画する
func (g *Game) drawGrid(screen *ebiten.Image, grid *vm.Grid, cursor vm.Position) {
	for y := 0; y < grid.Height(); y++ {
		row := grid.Row(y)
		for x, b := range row {
			px := float64(margin + x*cellWidth)
			py := float64(margin + y*cellHeight)
			isCursor := x == cursor.X && y == cursor.Y

			if isCursor {
				op := &ebiten.DrawImageOptions{}
				op.GeoM.Translate(px, py)
				screen.DrawImage(g.cursorImage, op)
			}

			glyph, ok := cellGlyph(b)
			if !ok {
				op := &ebiten.DrawImageOptions{}
				op.GeoM.Translate(px+1, py+2)
				screen.DrawImage(g.unprintableImage, op)
				continue
			}
			if glyph == " " {
				continue
			}

			op := &text.DrawOptions{}
			op.GeoM.Translate(px, py)
			if isCursor {
				op.ColorScale.ScaleWithColor(cursorTextColor)
			} else {
				op.ColorScale.ScaleWithColor(textColor)
			}
			text.Draw(screen, glyph, defaultFace, op)
		}
	}
}

// drawStatus ステータスパネルを描画する
func (g *Game) drawStatus(screen *ebiten.Image, gridHeight int) {
	top := margin + (gridHeight+1)*cellHeight
	for i, line := range g.StatusLines() {
		op := &text.DrawOptions{}
		op.GeoM.Translate(float64(margin), float64(top+i*cellHeight))
		if strings.HasPrefix(line, "error ") {
			op.ColorScale.ScaleWithColor(errorTextColor)
		} else {
			op.ColorScale.ScaleWithColor(textColor)
		}
		text.Draw(screen, line, defaultFace, op)
	}
}

// Layout 画面サイズを返す（グリッドの大きさから決まる）
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.width, g.height
}

// Run トレーサーウィンドウでプログラムを実行する
// ウィンドウが閉じた後、VMのエラー（あれば）を返す
func Run(m Machine, opts Options) error {
	game := NewGame(m, opts)

	// ウィンドウ設定
	ebiten.SetWindowSize(game.width*2, game.height*2)
	title := "funge - Befunge-93 tracer"
	if opts.Title != "" {
		title = "funge - " + opts.Title
	}
	ebiten.SetWindowTitle(title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	// ゲームを実行
	if err := ebiten.RunGame(game); err != nil {
		return fmt.Errorf("failed to run tracer: %w", err)
	}

	// 閉じる前に残った出力を書き出す
	if err := m.Flush(); err != nil && game.Err() == nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return game.Err()
}
