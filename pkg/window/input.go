package window

import (
	"io"
	"sync"
)

// pumpChunkSize は1回に読み込むバイト数
const pumpChunkSize = 4096

// InputPump は入力を別のgoroutineで読み込んでおくio.Reader
// トレーサーは読み込み済みのデータがあるときだけ入力命令を実行し、
// 端末からの入力待ちでウィンドウが固まらないようにする
type InputPump struct {
	mu   sync.Mutex
	cond *sync.Cond
	buf  []byte
	err  error // 読み込みが終わった理由（io.EOFなど）
}

// NewInputPump rを読み込むgoroutineを開始する
// goroutineはrがエラーかEOFを返すまで動き続ける
func NewInputPump(r io.Reader) *InputPump {
	p := &InputPump{}
	p.cond = sync.NewCond(&p.mu)
	go p.pump(r)
	return p
}

func (p *InputPump) pump(r io.Reader) {
	chunk := make([]byte, pumpChunkSize)
	for {
		n, err := r.Read(chunk)

		p.mu.Lock()
		p.buf = append(p.buf, chunk[:n]...)
		if err != nil {
			p.err = err
		}
		p.cond.Broadcast()
		p.mu.Unlock()

		if err != nil {
			return
		}
	}
}

// Read 読み込み済みのデータを返す（なければ届くまで待つ）
func (p *InputPump) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.buf) == 0 && p.err == nil {
		p.cond.Wait()
	}
	if len(p.buf) > 0 {
		n := copy(b, p.buf)
		p.buf = p.buf[n:]
		return n, nil
	}
	return 0, p.err
}

// Ready 次の読み込みがブロックしないかを返す
// numberがtrueの場合は空白以外のバイトが届いているかを見る
// 入力が終わっている場合は常にtrue（読み込みはすぐにエラーを返す）
func (p *InputPump) Ready(number bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return true
	}
	if !number {
		return len(p.buf) > 0
	}
	for _, b := range p.buf {
		switch b {
		case ' ', '\t', '\n', '\r', '\v', '\f':
		default:
			return true
		}
	}
	return false
}
