// Package fileutil provides unified access to real and embedded file systems
// for MIDI files and SoundFonts.
package fileutil

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FileSystem は実ファイルシステムと埋め込みファイルシステムを統一的に扱うインターフェース
type FileSystem interface {
	// ReadFile はファイルの内容を読み込む（大文字小文字を無視）
	ReadFile(name string) ([]byte, error)
	// ReadDir はディレクトリの内容を読み込む
	ReadDir(name string) ([]fs.DirEntry, error)
	// FindFile は大文字小文字を無視してファイルを検索し、実際のパスを返す
	FindFile(dir, filename string) (string, error)
	// IsEmbedded は埋め込みファイルシステムかどうかを返す
	IsEmbedded() bool
}

// RealFS は実ファイルシステムへのアクセスを提供する
type RealFS struct {
	basePath string
}

// NewRealFS は実ファイルシステム用のFileSystemを作成する
func NewRealFS(basePath string) *RealFS {
	return &RealFS{basePath: basePath}
}

func (r *RealFS) ReadFile(name string) ([]byte, error) {
	p := r.resolvePath(name)
	actual, err := r.findFileCaseInsensitive(p)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(actual)
}

func (r *RealFS) ReadDir(name string) ([]fs.DirEntry, error) {
	return os.ReadDir(r.resolvePath(name))
}

func (r *RealFS) FindFile(dir, filename string) (string, error) {
	searchDir := dir
	if r.basePath != "" && !filepath.IsAbs(dir) {
		searchDir = filepath.Join(r.basePath, dir)
	}
	return FindFileCaseInsensitive(searchDir, filename)
}

func (r *RealFS) IsEmbedded() bool {
	return false
}

func (r *RealFS) resolvePath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	// 先頭の "/" や "\" を除去
	clean := strings.TrimPrefix(strings.TrimPrefix(name, "/"), "\\")
	if r.basePath != "" {
		return filepath.Join(r.basePath, clean)
	}
	return clean
}

func (r *RealFS) findFileCaseInsensitive(p string) (string, error) {
	// まず直接アクセスを試みる
	if _, err := os.Stat(p); err == nil {
		return p, nil
	}
	return FindFileCaseInsensitive(filepath.Dir(p), filepath.Base(p))
}

// EmbedFS は埋め込みファイルシステム（embed.FS や fstest.MapFS）へのアクセスを提供する
type EmbedFS struct {
	fsys     fs.FS
	basePath string
}

// NewEmbedFS は埋め込みファイルシステム用のFileSystemを作成する
func NewEmbedFS(fsys fs.FS, basePath string) *EmbedFS {
	return &EmbedFS{fsys: fsys, basePath: basePath}
}

func (e *EmbedFS) ReadFile(name string) ([]byte, error) {
	actual, err := e.findFileCaseInsensitive(e.resolvePath(name))
	if err != nil {
		return nil, err
	}
	return fs.ReadFile(e.fsys, actual)
}

func (e *EmbedFS) ReadDir(name string) ([]fs.DirEntry, error) {
	return fs.ReadDir(e.fsys, e.resolvePath(name))
}

func (e *EmbedFS) FindFile(dir, filename string) (string, error) {
	return FindFileCaseInsensitiveFS(e.fsys, e.resolvePath(dir), filename)
}

func (e *EmbedFS) IsEmbedded() bool {
	return true
}

func (e *EmbedFS) resolvePath(name string) string {
	// fs.FS では "/" 区切りの相対パスのみ有効
	clean := strings.ReplaceAll(name, "\\", "/")
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" {
		clean = "."
	}
	if e.basePath != "" {
		return path.Join(e.basePath, clean)
	}
	return path.Clean(clean)
}

func (e *EmbedFS) findFileCaseInsensitive(p string) (string, error) {
	if _, err := fs.Stat(e.fsys, p); err == nil {
		return p, nil
	}
	return FindFileCaseInsensitiveFS(e.fsys, path.Dir(p), path.Base(p))
}

// ReadFile はfsysからファイルを読み込む。fsysがnilの場合はOSのファイルシステムを使う。
// ファイルが見つからない場合のエラーは fs.ErrNotExist をラップする。
func ReadFile(fsys FileSystem, name string) ([]byte, error) {
	if fsys == nil {
		fsys = NewRealFS("")
	}
	data, err := fsys.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}
