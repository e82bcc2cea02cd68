package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

type ctxKey string

const (
	correlationIDKey ctxKey = "logging_correlation_id"

	defaultRetentionDays = 30
	maxDurationDays      = int((1<<63 - 1) / int64(24*time.Hour))

	logDirPerm  os.FileMode = 0o700
	logFilePerm os.FileMode = 0o600

	logFilePrefix = "mcp-"
	logFileSuffix = ".log"
)

// Config controls logger initialization.
type Config struct {
	Format        string // "json", "console", or "auto"
	Level         string // "debug", "info", "warn", "error"
	Component     string // optional component name
	Dir           string // optional directory for the per-process log file
	RetentionDays int    // remove log files older than this many days
}

var (
	mu            sync.RWMutex
	baseLogger    zerolog.Logger
	baseWriter    io.Writer = os.Stderr
	baseComponent string
	fileCloser    io.Closer

	defaultTimeFmt = time.RFC3339
)

var (
	nowFn                  = time.Now
	pidFn                  = os.Getpid
	stderr       io.Writer = os.Stderr
	isTerminalFn           = term.IsTerminal
	mkdirAllFn             = os.MkdirAll
	chmodFn                = os.Chmod
	openFileFn             = os.OpenFile
	lstatFn                = os.Lstat
	readDirFn              = os.ReadDir
	removeFn               = os.Remove
)

func init() {
	baseLogger = zerolog.New(baseWriter).With().Timestamp().Logger()
	log.Logger = baseLogger
}

// Init configures zerolog globals and establishes the package baseline logger.
// Everything written through the returned logger is redacted before it reaches a sink.
func Init(cfg Config) zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()

	previousFileCloser := fileCloser
	fileCloser = nil

	zerolog.TimeFieldFormat = defaultTimeFmt
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	writer := selectWriter(cfg.Format)

	if file, err := openDiskSink(cfg); err != nil {
		fmt.Fprintf(stderr, "logging: unable to configure disk output: %v\n", err)
	} else if file != nil {
		writer = io.MultiWriter(writer, file)
		fileCloser = file
	}
	writer = NewRedactingWriter(writer)

	component := strings.TrimSpace(cfg.Component)

	contextBuilder := zerolog.New(writer).With().Timestamp()
	if component != "" {
		contextBuilder = contextBuilder.Str("component", component)
	}

	baseLogger = contextBuilder.Logger()
	baseWriter = writer
	baseComponent = component
	log.Logger = baseLogger

	if previousFileCloser != nil {
		if err := previousFileCloser.Close(); err != nil {
			fmt.Fprintf(stderr, "logging: unable to close previous log file: %v\n", err)
		}
	}

	return baseLogger
}

// Shutdown closes the disk sink, if one is open.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()

	if fileCloser != nil {
		if err := fileCloser.Close(); err != nil {
			fmt.Fprintf(stderr, "logging: unable to close log file: %v\n", err)
		}
		fileCloser = nil
	}
}

// IsLevelEnabled reports whether the provided level is enabled for logging.
func IsLevelEnabled(level zerolog.Level) bool {
	return level >= zerolog.GlobalLevel()
}

// NewCorrelationID returns a fresh random identifier for a session lifetime.
func NewCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelationID stores (or generates) a correlation ID on the context.
func WithCorrelationID(ctx context.Context, id string) (context.Context, string) {
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		id = NewCorrelationID()
	}
	return context.WithValue(ctx, correlationIDKey, id), id
}

// CorrelationID returns the correlation ID stored on ctx, if any.
func CorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// FromContext returns the global logger, annotated with the context's correlation ID when present.
func FromContext(ctx context.Context) zerolog.Logger {
	mu.RLock()
	logger := log.Logger
	mu.RUnlock()

	if id := CorrelationID(ctx); id != "" {
		return logger.With().Str("correlation_id", id).Logger()
	}
	return logger
}

func parseLevel(level string) zerolog.Level {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "", "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	case "trace":
		return zerolog.TraceLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "disabled":
		return zerolog.Disabled
	default:
		fmt.Fprintf(stderr, "logging: invalid level %q; using %q\n", normalized, "info")
		return zerolog.InfoLevel
	}
}

// selectWriter always targets stderr; stdout carries the stdio protocol stream.
func selectWriter(format string) io.Writer {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "console":
		return newConsoleWriter(os.Stderr)
	case "json":
		return os.Stderr
	case "auto", "":
		if isTerminal(os.Stderr) {
			return newConsoleWriter(os.Stderr)
		}
		return os.Stderr
	default:
		fmt.Fprintf(stderr, "logging: invalid format %q; using %q\n", format, "json")
		return os.Stderr
	}
}

func newConsoleWriter(out io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: defaultTimeFmt,
	}
}

func isTerminal(file *os.File) bool {
	if file == nil {
		return false
	}
	return isTerminalFn(int(file.Fd()))
}

// openDiskSink creates mcp-<timestamp>-<pid>.log inside cfg.Dir after pruning expired files.
func openDiskSink(cfg Config) (*os.File, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		return nil, nil
	}
	dir = filepath.Clean(dir)

	if err := ensureOwnerOnlyDir(dir); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	cleanupOldFiles(dir, normalizeRetention(cfg.RetentionDays))

	name := fmt.Sprintf("%s%s-%d%s", logFilePrefix, nowFn().UTC().Format("20060102-150405"), pidFn(), logFileSuffix)
	path := filepath.Join(dir, name)
	if err := validateExistingRegularFile(path); err != nil {
		return nil, fmt.Errorf("validate log file path: %w", err)
	}

	file, err := openFileFn(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, logFilePerm)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}

func normalizeRetention(days int) time.Duration {
	switch {
	case days < 0:
		fmt.Fprintf(stderr, "logging: invalid retention %dd; using default %dd\n", days, defaultRetentionDays)
		days = defaultRetentionDays
	case days == 0:
		days = defaultRetentionDays
	}
	if days > maxDurationDays {
		days = maxDurationDays
	}
	return time.Duration(days) * 24 * time.Hour
}

func cleanupOldFiles(dir string, maxAge time.Duration) {
	if maxAge <= 0 {
		return
	}
	cutoff := nowFn().Add(-maxAge)

	entries, err := readDirFn(dir)
	if err != nil {
		fmt.Fprintf(stderr, "logging: read log directory %s failed: %v\n", dir, err)
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, logFilePrefix) || !strings.HasSuffix(name, logFileSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			fullPath := filepath.Join(dir, name)
			if err := removeFn(fullPath); err != nil {
				fmt.Fprintf(stderr, "logging: remove expired log %s failed: %v\n", fullPath, err)
			}
		}
	}
}

func ensureOwnerOnlyDir(dir string) error {
	if err := mkdirAllFn(dir, logDirPerm); err != nil {
		return err
	}
	info, err := lstatFn(dir)
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("refusing symlink directory path %q", dir)
	}
	return chmodFn(dir, logDirPerm)
}

func validateExistingRegularFile(path string) error {
	info, err := lstatFn(path)
	if err != nil {
		if isMissingPathError(err) {
			return nil
		}
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("refusing symlink file path %q", path)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("non-regular file path %q", path)
	}
	return nil
}

func isMissingPathError(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}
