package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the structured logging contract used across workledger.
// Arguments after msg are alternating key/value pairs.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
}

// Rotation controls file rotation when the log is written to a path.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type LogBuild struct {
	writer   io.Writer
	path     string
	level    zerolog.Level
	console  bool
	rotation Rotation
}

type LogData struct {
	writer io.Writer
	file   io.Closer
	Logger zerolog.Logger
}

var _ Logger = (*LogData)(nil)

func New() *LogBuild {
	return &LogBuild{
		level: zerolog.InfoLevel,
		rotation: Rotation{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
	}
}

func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

func (build *LogBuild) FromBuffer(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

// WithLevel sets the minimum level by name (debug, info, warn, error).
// Unknown names keep the current level.
func (build *LogBuild) WithLevel(level string) *LogBuild {
	if lvl, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil && level != "" {
		build.level = lvl
	}
	return build
}

// Console switches to human readable output.
func (build *LogBuild) Console(enabled bool) *LogBuild {
	build.console = enabled
	return build
}

func (build *LogBuild) WithRotation(r Rotation) *LogBuild {
	build.rotation = r
	return build
}

func (build *LogBuild) Make() (logData *LogData, err error) {
	logData = new(LogData)
	logData.writer = os.Stdout
	if build.writer != nil {
		logData.writer = build.writer
	}
	if build.path != "" {
		file := &lumberjack.Logger{
			Filename:   build.path,
			MaxSize:    build.rotation.MaxSizeMB,
			MaxBackups: build.rotation.MaxBackups,
			MaxAge:     build.rotation.MaxAgeDays,
			Compress:   build.rotation.Compress,
		}
		logData.file = file
		logData.writer = zerolog.SyncWriter(file)
	}
	if build.console {
		logData.writer = zerolog.ConsoleWriter{Out: logData.writer, NoColor: build.path != ""}
	}
	logData.Logger = zerolog.New(logData.writer).Level(build.level).With().Timestamp().Logger()
	return
}

// Close releases the log file, if any.
func (l *LogData) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *LogData) Error(msg string, args ...any) {
	withFields(l.Logger.Error(), args).Msg(msg)
}

func (l *LogData) Warn(msg string, args ...any) {
	withFields(l.Logger.Warn(), args).Msg(msg)
}

func (l *LogData) Info(msg string, args ...any) {
	withFields(l.Logger.Info(), args).Msg(msg)
}

func (l *LogData) Debug(msg string, args ...any) {
	withFields(l.Logger.Debug(), args).Msg(msg)
}

func withFields(e *zerolog.Event, args []any) *zerolog.Event {
	if e == nil {
		return e
	}
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			e = e.Interface("!BADKEY", args[i])
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		switch v := args[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		case fmt.Stringer:
			e = e.Stringer(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	return e
}

type nop struct{}

func (nop) Error(string, ...any) {}
func (nop) Warn(string, ...any)  {}
func (nop) Info(string, ...any)  {}
func (nop) Debug(string, ...any) {}

// Nop discards everything.
var Nop Logger = nop{}
