package window

import "sync"

// transcriptWidth は保持する1行の最大バイト数
const transcriptWidth = 60

// Transcript はプログラム出力の最終行を保持するio.Writer
// io.MultiWriterで標準出力と並べて使う
type Transcript struct {
	mu      sync.Mutex
	current []byte
	last    string
}

// NewTranscript Transcriptを作成
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Write 出力を受け取り、行の末尾だけを残す
func (t *Transcript) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, b := range p {
		switch {
		case b == '\n':
			t.last = string(t.current)
			t.current = t.current[:0]
		case b == '\r':
		case b < 0x20 || b >= 0x7F:
			t.push('?')
		default:
			t.push(b)
		}
	}
	return len(p), nil
}

func (t *Transcript) push(b byte) {
	if len(t.current) == transcriptWidth {
		copy(t.current, t.current[1:])
		t.current = t.current[:transcriptWidth-1]
	}
	t.current = append(t.current, b)
}

// LastLine 書きかけの行があればそれを、なければ直前の完了した行を返す
func (t *Transcript) LastLine() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.current) > 0 {
		return string(t.current)
	}
	return t.last
}
