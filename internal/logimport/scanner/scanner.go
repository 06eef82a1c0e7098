// Package scanner enumerates the staged log files of a directory and streams
// their lines. Compressed files (.gz, .zst) are decoded on the fly.
package scanner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const (
	DefaultInclude      = "*"
	DefaultMaxLineBytes = 4 << 20

	initialBufBytes = 64 << 10
)

// ErrRead marks every per-file failure. Such failures are isolated to the
// file and never abort a scan.
var ErrRead = errors.New("scanner: read failed")

type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string { return fmt.Sprintf("read %s: %v", e.Path, e.Err) }

func (e *ReadError) Unwrap() []error { return []error{ErrRead, e.Err} }

type Config struct {
	Dir string
	// Include is a glob matched against file base names.
	Include      string
	MaxLineBytes int
}

type Entry struct {
	Name string
	Path string
	Size int64
}

type Scanner struct {
	dir     string
	include glob.Glob
	maxLine int
}

func New(cfg Config) (*Scanner, error) {
	if cfg.Dir == "" {
		return nil, errors.New("scanner: source dir is empty")
	}
	if cfg.Include == "" {
		cfg.Include = DefaultInclude
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = DefaultMaxLineBytes
	}
	g, err := CompileInclude(cfg.Include)
	if err != nil {
		return nil, err
	}
	return &Scanner{dir: cfg.Dir, include: g, maxLine: cfg.MaxLineBytes}, nil
}

// CompileInclude compiles an include pattern; "" means DefaultInclude.
func CompileInclude(pattern string) (glob.Glob, error) {
	if pattern == "" {
		pattern = DefaultInclude
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("scanner: invalid include pattern %q: %w", pattern, err)
	}
	return g, nil
}

func (s *Scanner) Dir() string { return s.dir }

// List returns the entries directly under the source dir, sorted by name.
// Sub-directories are listed too; reading them fails like any unreadable file.
func (s *Scanner) List() ([]Entry, error) {
	des, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("scanner: list %s: %w", s.dir, err)
	}
	out := make([]Entry, 0, len(des))
	for _, de := range des {
		if !s.include.Match(de.Name()) {
			continue
		}
		e := Entry{Name: de.Name(), Path: filepath.Join(s.dir, de.Name())}
		if info, err := de.Info(); err == nil {
			e.Size = info.Size()
		}
		out = append(out, e)
	}
	return out, nil
}

// Each opens e and calls fn for every line in order. The file is closed before
// Each returns. Open, decode and read failures come back as *ReadError; an
// error from fn or ctx is returned as is.
func (s *Scanner) Each(ctx context.Context, e Entry, fn func(line string) error) error {
	f, err := os.Open(e.Path)
	if err != nil {
		return &ReadError{Path: e.Path, Err: err}
	}
	defer f.Close()

	if st, err := f.Stat(); err != nil {
		return &ReadError{Path: e.Path, Err: err}
	} else if st.IsDir() {
		return &ReadError{Path: e.Path, Err: errors.New("is a directory")}
	}

	r, closeDec, err := decoder(e.Name, f)
	if err != nil {
		return &ReadError{Path: e.Path, Err: err}
	}
	defer closeDec()

	buf := initialBufBytes
	if buf > s.maxLine {
		buf = s.maxLine
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, buf), s.maxLine)

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(sc.Text()); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return &ReadError{Path: e.Path, Err: err}
	}
	return nil
}

func decoder(name string, r io.Reader) (io.Reader, func(), error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, func() { _ = zr.Close() }, nil
	case ".zst":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd: %w", err)
		}
		return zr, zr.Close, nil
	default:
		return r, func() {}, nil
	}
}
