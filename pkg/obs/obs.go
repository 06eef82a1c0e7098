// Package obs sets up process-wide structured logging. Every line carries the
// boot id of the run so output from concurrent imports can be told apart.
package obs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var (
	bootID  atomic.Value // string
	rootDir string
)

type Options struct {
	Service string
	Level   string // zerolog level name, "" means info
	Format  string // FormatConsole or FormatJSON
	Out     io.Writer
}

// Init installs the global zerolog logger and returns it.
func Init(opts Options) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("obs: log level %q: %w", opts.Level, err)
		}
		level = l
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	switch opts.Format {
	case "", FormatConsole:
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000000"}
	case FormatJSON:
	default:
		return zerolog.Nop(), fmt.Errorf("obs: unknown log format %q", opts.Format)
	}

	cwd, _ := os.Getwd()
	rootDir = cwd
	id := opts.Service + "#" + uuid.NewString()
	bootID.Store(id)

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.CallerMarshalFunc = relativeCaller

	logger := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("boot", id).
		Caller().
		Logger()
	log.Logger = logger

	logger.Info().Int("pid", os.Getpid()).Str("root", rootDir).Msg("boot")
	return logger, nil
}

// BootID is empty until Init has run.
func BootID() string {
	id, _ := bootID.Load().(string)
	return id
}

func relativeCaller(_ uintptr, file string, line int) string {
	if rootDir != "" {
		if rel, err := filepath.Rel(rootDir, file); err == nil {
			return rel + ":" + strconv.Itoa(line)
		}
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}
