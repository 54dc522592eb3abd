// Package sample はバイナリに埋め込まれたBefunge-93のサンプルプログラムを管理する
package sample

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/zurustar/funge/pkg/fileutil"
)

// Dir はサンプルを格納するディレクトリ名
const Dir = "samples"

// Ext はサンプルファイルの拡張子
const Ext = ".bf"

// Sample は埋め込まれたサンプルプログラムを表す
type Sample struct {
	Name string // 拡張子を除いたファイル名
	Path string // fs.FS内のパス
	Size int64  // バイト数
}

// Registry はサンプルプログラムの一覧と読み込みを扱う
type Registry struct {
	fsys    fs.FS
	samples []Sample
}

// NewRegistry Registryを作成
// fsysのsamplesディレクトリにある.bfファイルを検出する
// ディレクトリが存在しない場合は空のRegistryになる
func NewRegistry(fsys fs.FS) *Registry {
	r := &Registry{fsys: fsys}
	r.loadSamples()
	return r
}

// loadSamples samplesディレクトリ内の.bfファイルを列挙する
func (r *Registry) loadSamples() {
	if r.fsys == nil {
		return
	}
	entries, err := fs.ReadDir(r.fsys, Dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		// 拡張子をcase-insensitiveで比較
		ext := path.Ext(entry.Name())
		if !strings.EqualFold(ext, Ext) {
			continue
		}
		var size int64
		if info, err := entry.Info(); err == nil {
			size = info.Size()
		}
		r.samples = append(r.samples, Sample{
			Name: strings.TrimSuffix(entry.Name(), ext),
			Path: path.Join(Dir, entry.Name()),
			Size: size,
		})
	}

	sort.Slice(r.samples, func(i, j int) bool {
		return strings.ToLower(r.samples[i].Name) < strings.ToLower(r.samples[j].Name)
	})
}

// List 利用可能なサンプルを名前順で返す
func (r *Registry) List() []Sample {
	out := make([]Sample, len(r.samples))
	copy(out, r.samples)
	return out
}

// Open 名前を指定してサンプルのソースを返す
// 名前は大文字小文字を区別せず、拡張子.bfは省略できる
func (r *Registry) Open(name string) ([]byte, error) {
	if r.fsys == nil {
		return nil, fmt.Errorf("no samples available")
	}
	filename := name
	if !strings.EqualFold(path.Ext(filename), Ext) {
		filename += Ext
	}

	p, err := fileutil.FindFileCaseInsensitiveFS(r.fsys, Dir, filename)
	if err != nil {
		return nil, fmt.Errorf("unknown sample %q: %w", name, err)
	}
	return fs.ReadFile(r.fsys, p)
}

// Names サンプル名の一覧を返す
func (r *Registry) Names() []string {
	names := make([]string, len(r.samples))
	for i, s := range r.samples {
		names[i] = s.Name
	}
	return names
}
