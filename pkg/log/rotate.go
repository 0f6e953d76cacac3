package log

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

const rotateScheme = "rotate"

var registerSink sync.Once

// rotatedPaths rewrites plain file paths into rotate:// sink URLs so zap writes
// them through lumberjack. stdout, stderr and explicit URLs are left alone.
func rotatedPaths(paths []string, r RotationOptions) []string {
	if r.MaxSize <= 0 {
		return paths
	}

	registerSink.Do(func() {
		if err := zap.RegisterSink(rotateScheme, newRotateSink); err != nil {
			panic(fmt.Sprintf("failed to register rotate sink: %v", err))
		}
	})

	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "stdout" || p == "stderr" {
			out = append(out, p)
			continue
		}
		if u, err := url.Parse(p); err == nil && u.Scheme != "" {
			out = append(out, p)
			continue
		}

		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}

		q := url.Values{}
		q.Set("max-size", strconv.Itoa(r.MaxSize))
		q.Set("max-backups", strconv.Itoa(r.MaxBackups))
		q.Set("max-age", strconv.Itoa(r.MaxAge))
		u := url.URL{Scheme: rotateScheme, Path: abs, RawQuery: q.Encode()}
		out = append(out, u.String())
	}
	return out
}

type rotateSink struct {
	*lumberjack.Logger
}

func (rotateSink) Sync() error { return nil }

func newRotateSink(u *url.URL) (zap.Sink, error) {
	q := u.Query()
	atoi := func(key string) int {
		v, _ := strconv.Atoi(q.Get(key))
		return v
	}
	return rotateSink{&lumberjack.Logger{
		Filename:   u.Path,
		MaxSize:    atoi("max-size"),
		MaxBackups: atoi("max-backups"),
		MaxAge:     atoi("max-age"),
	}}, nil
}
