// Package installer unpacks firmware archives onto local storage.
//
// The archive format is the subset of USTAR the build pipeline produces:
// 512-byte header blocks holding a NUL-terminated path, an octal size and a
// type flag, each followed by the payload padded to a block boundary.
package installer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/autopeer-io/sensornode/internal/node/sched"
	"github.com/autopeer-io/sensornode/internal/pkg/metrics"
	"github.com/autopeer-io/sensornode/pkg/log"
)

const (
	// BlockSize is the archive block size.
	BlockSize = 512

	// DefaultYieldEvery is the number of blocks processed between yields.
	DefaultYieldEvery = 16

	chunkSize = 8 * BlockSize

	nameOffset, nameLen = 0, 100
	sizeOffset, sizeLen = 124, 12
	typeOffset          = 156
)

const (
	typeRegular    = '0'
	typeRegularOld = 0
	typeDir        = '5'
)

// ErrTruncated is returned when the stream ends inside an entry's payload.
var ErrTruncated = errors.New("archive truncated")

// StorageError is a failure of the local filesystem.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Report counts what an extraction did.
type Report struct {
	Files   int
	Dirs    int
	Skipped int
	Bytes   int64
}

// Installer extracts archives into an afero.Fs rooted at the install directory.
type Installer struct {
	fs         afero.Fs
	y          sched.Yielder
	yieldEvery int
}

func New(fs afero.Fs, y sched.Yielder, yieldEvery int) *Installer {
	if yieldEvery < 1 {
		yieldEvery = DefaultYieldEvery
	}
	return &Installer{fs: fs, y: y, yieldEvery: yieldEvery}
}

type header struct {
	name string
	size int64
	typ  byte
}

// Extract writes every entry of r. Entries that cannot be installed safely
// are skipped. It stops at the end-of-archive marker or when no full header
// block remains.
func (i *Installer) Extract(ctx context.Context, r io.Reader) (Report, error) {
	var rep Report
	x := &extraction{
		Installer: i,
		r:         r,
		budget:    sched.NewBudget(i.y, i.yieldEvery),
		buf:       make([]byte, chunkSize),
	}

	block := make([]byte, BlockSize)
	for {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		if _, err := io.ReadFull(r, block); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return rep, nil
			}
			return rep, &StorageError{Op: "read", Path: "archive", Err: err}
		}
		if err := x.budget.Tick(ctx); err != nil {
			return rep, err
		}

		h, ok := parseHeader(block)
		if h.name == "" {
			return rep, nil
		}
		if !ok {
			log.Warn("Skipping archive entry with corrupt size", "path", h.name)
			rep.Skipped++
			metrics.ExtractedFilesTotal.WithLabelValues("skipped").Inc()
			continue
		}

		if err := x.entry(ctx, h, &rep); err != nil {
			return rep, err
		}
	}
}

type extraction struct {
	*Installer
	r      io.Reader
	budget *sched.Budget
	buf    []byte
}

func (x *extraction) entry(ctx context.Context, h header, rep *Report) error {
	target, safe := safePath(h.name)
	isDir := h.typ == typeDir || strings.HasSuffix(h.name, "/")
	isReg := h.typ == typeRegular || h.typ == typeRegularOld

	switch {
	case !safe || (!isDir && !isReg):
		log.Warn("Skipping archive entry", "path", h.name, "type", string(rune(h.typ)))
		rep.Skipped++
		metrics.ExtractedFilesTotal.WithLabelValues("skipped").Inc()
		return x.discard(ctx, h.size+padding(h.size))

	case isDir:
		if err := x.fs.MkdirAll(target, 0o755); err != nil {
			return &StorageError{Op: "mkdir", Path: target, Err: err}
		}
		rep.Dirs++
		metrics.ExtractedFilesTotal.WithLabelValues("dir").Inc()
		return x.discard(ctx, h.size+padding(h.size))

	default:
		if err := x.writeFile(ctx, target, h.size); err != nil {
			return err
		}
		rep.Files++
		rep.Bytes += h.size
		metrics.ExtractedFilesTotal.WithLabelValues("written").Inc()
		metrics.ExtractedBytesTotal.Add(float64(h.size))
		log.Debug("Installed file", "path", target, "size", h.size)
		return x.discardPadding(padding(h.size))
	}
}

// writeFile streams size payload bytes into a temp file next to target and
// renames it over target.
func (x *extraction) writeFile(ctx context.Context, target string, size int64) (err error) {
	dir := path.Dir(target)
	if err := x.fs.MkdirAll(dir, 0o755); err != nil {
		return &StorageError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := afero.TempFile(x.fs, dir, "."+path.Base(target)+"-*")
	if err != nil {
		return &StorageError{Op: "create", Path: target, Err: err}
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = x.fs.Remove(tmpName)
		}
	}()

	for remaining := size; remaining > 0; {
		n := int64(len(x.buf))
		if remaining < n {
			n = remaining
		}
		if _, err := io.ReadFull(x.r, x.buf[:n]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%s: %w", target, ErrTruncated)
			}
			return &StorageError{Op: "read", Path: "archive", Err: err}
		}
		if _, err := tmp.Write(x.buf[:n]); err != nil {
			return &StorageError{Op: "write", Path: target, Err: err}
		}
		remaining -= n

		if err := x.tick(ctx, n); err != nil {
			return err
		}
	}

	if err := tmp.Sync(); err != nil {
		return &StorageError{Op: "sync", Path: target, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &StorageError{Op: "close", Path: target, Err: err}
	}
	if err := x.fs.Rename(tmpName, target); err != nil {
		return &StorageError{Op: "rename", Path: target, Err: err}
	}
	return nil
}

// discard skips n bytes that belong to an entry. Running out is truncation.
func (x *extraction) discard(ctx context.Context, n int64) error {
	for n > 0 {
		step := int64(len(x.buf))
		if n < step {
			step = n
		}
		if _, err := io.ReadFull(x.r, x.buf[:step]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return ErrTruncated
			}
			return &StorageError{Op: "read", Path: "archive", Err: err}
		}
		n -= step
		if err := x.tick(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

// discardPadding skips block padding after a payload. A stream that ends
// inside the padding ends cleanly at the next header read.
func (x *extraction) discardPadding(n int64) error {
	if n == 0 {
		return nil
	}
	if _, err := io.ReadFull(x.r, x.buf[:n]); err != nil &&
		!errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return &StorageError{Op: "read", Path: "archive", Err: err}
	}
	return nil
}

// tick counts the blocks covered by n bytes against the yield budget.
func (x *extraction) tick(ctx context.Context, n int64) error {
	for blocks := (n + BlockSize - 1) / BlockSize; blocks > 0; blocks-- {
		if err := x.budget.Tick(ctx); err != nil {
			return err
		}
	}
	return nil
}

// parseHeader decodes a header block. ok is false when the size field is not octal.
func parseHeader(block []byte) (h header, ok bool) {
	name := block[nameOffset : nameOffset+nameLen]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	h.name = string(name)
	h.typ = block[typeOffset]

	field := strings.Trim(string(block[sizeOffset:sizeOffset+sizeLen]), "\x00 ")
	size, err := strconv.ParseInt(field, 8, 64)
	if err != nil || size < 0 {
		return h, false
	}
	h.size = size
	return h, true
}

func padding(size int64) int64 {
	return (BlockSize - size%BlockSize) % BlockSize
}

// safePath cleans an archive path and rejects absolute paths and any ".." component.
func safePath(name string) (string, bool) {
	if name == "" || path.IsAbs(name) || strings.HasPrefix(name, `\`) {
		return "", false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", false
		}
	}
	clean := path.Clean(name)
	if clean == "." {
		return "", false
	}
	return clean, true
}
