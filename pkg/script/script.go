// Package script はBefunge-93プログラムのソースを読み込む
package script

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zurustar/funge/pkg/fileutil"
	"github.com/zurustar/funge/pkg/logger"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// 対応しているソースのエンコーディング名
const (
	EncodingRaw      = "raw"
	EncodingLatin1   = "latin1"
	EncodingCP437    = "cp437"
	EncodingShiftJIS = "sjis"
)

// encodings はエンコーディング名とx/textの実装の対応
// rawはバイト列をそのまま使うので含まない
var encodings = map[string]encoding.Encoding{
	EncodingLatin1:   charmap.ISO8859_1,
	EncodingCP437:    charmap.CodePage437,
	EncodingShiftJIS: japanese.ShiftJIS,
}

// Encodings 対応しているエンコーディング名の一覧を返す
func Encodings() []string {
	names := []string{EncodingRaw}
	for name := range encodings {
		names = append(names, name)
	}
	sort.Strings(names[1:])
	return names
}

// ValidEncoding エンコーディング名が有効かどうかを返す
func ValidEncoding(name string) bool {
	if name == EncodingRaw || name == "" {
		return true
	}
	_, ok := encodings[name]
	return ok
}

// Program は読み込まれたプログラムを表す
type Program struct {
	Name  string   // ファイル名（標準入力の場合は"<stdin>"）
	Lines []string // グリッドに配置する行（改行文字は含まない）
	Size  int64    // 元のソースのバイト数
}

// Loader はプログラムの読み込みを行う
type Loader struct {
	encoding string
	log      *slog.Logger
}

// NewLoader Loaderを作成
// encodingが空の場合はrawとして扱う
func NewLoader(encoding string) (*Loader, error) {
	if encoding == "" {
		encoding = EncodingRaw
	}
	if !ValidEncoding(encoding) {
		return nil, fmt.Errorf("unknown encoding %q (supported: %s)",
			encoding, strings.Join(Encodings(), ", "))
	}
	return &Loader{
		encoding: encoding,
		log:      logger.GetLogger(),
	}, nil
}

// Encoding Loaderが使うエンコーディング名を返す
func (l *Loader) Encoding() string {
	return l.encoding
}

// LoadFile ファイルからプログラムを読み込む
// パスが見つからない場合は同じディレクトリ内で大文字小文字を無視して探す
func (l *Loader) LoadFile(path string) (*Program, error) {
	resolved, err := fileutil.ResolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open program: %w", err)
	}
	if resolved != path {
		l.log.Debug("Resolved program path", "requested", path, "actual", resolved)
	}

	f, err := os.Open(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to open program: %w", err)
	}
	defer f.Close()

	return l.LoadReader(filepath.Base(resolved), f)
}

// LoadReader 任意のReaderからプログラムを読み込む
// 標準入力や埋め込みサンプルの読み込みに使う
func (l *Loader) LoadReader(name string, r io.Reader) (*Program, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	src, err := l.encode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s to %s: %w", name, l.encoding, err)
	}

	prog := &Program{
		Name:  name,
		Lines: SplitLines(src),
		Size:  int64(len(data)),
	}
	l.log.Debug("Program loaded",
		"name", prog.Name,
		"bytes", prog.Size,
		"lines", len(prog.Lines),
		"encoding", l.encoding)
	return prog, nil
}

// encode UTF-8のソースをグリッド用のバイト列に変換する
func (l *Loader) encode(data []byte) ([]byte, error) {
	enc, ok := encodings[l.encoding]
	if !ok {
		return data, nil
	}
	reader := transform.NewReader(bytes.NewReader(data), enc.NewEncoder())
	return io.ReadAll(reader)
}

// SplitLines ソースを行に分割する
// 各行末の\rと\nは取り除き、最後の改行の後に空行は作らない
func SplitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	text := string(data)
	text = strings.TrimSuffix(text, "\n")
	parts := strings.Split(text, "\n")
	lines := make([]string, len(parts))
	for i, part := range parts {
		lines[i] = strings.TrimRight(part, "\r\n")
	}
	return lines
}

// Decoder プログラムの文字出力をUTF-8に戻すTransformerを返す
// rawの場合はtransform.Nopを返す
func Decoder(name string) (transform.Transformer, error) {
	if name == EncodingRaw || name == "" {
		return transform.Nop, nil
	}
	enc, ok := encodings[name]
	if !ok {
		return nil, fmt.Errorf("unknown encoding %q", name)
	}
	return enc.NewDecoder(), nil
}
