package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Logger struct {
	*zerolog.Logger
	component string
}

var levels = map[string]zerolog.Level{
	"development": zerolog.DebugLevel,
	"staging":     zerolog.InfoLevel,
	"production":  zerolog.InfoLevel,
	"test":        zerolog.WarnLevel,
}

// Config represents logger configuration
type Config struct {
	AppEnv string
	// Out defaults to stdout.
	Out io.Writer
}

// New creates a logger for a component using APP_ENV.
func New(component string) *Logger {
	return NewWithConfig(component, Config{AppEnv: os.Getenv("APP_ENV")})
}

// NewWithConfig creates a logger for a component with explicit configuration.
func NewWithConfig(component string, cfg Config) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	production := cfg.AppEnv == "production"

	writer := zerolog.ConsoleWriter{
		Out:     out,
		NoColor: production,
		FormatMessage: func(i interface{}) string {
			return fmt.Sprintf("[%s] %s", component, i)
		},
		FormatLevel: func(i interface{}) string {
			level, ok := i.(string)
			if !ok {
				return "???"
			}
			switch level {
			case "debug":
				return "\033[36m[DEBUG]\033[0m"
			case "info":
				return "\033[34m[INFO]\033[0m"
			case "warn":
				return "\033[33m[WARN]\033[0m"
			case "error":
				return "\033[31m[ERROR]\033[0m"
			case "fatal":
				return "\033[35m[FATAL]\033[0m"
			default:
				return fmt.Sprintf("[%s]", level)
			}
		},
	}

	var zl zerolog.Logger
	if production {
		writer.TimeFormat = ""
		zl = zerolog.New(writer).Level(levelFor(cfg.AppEnv))
	} else {
		writer.TimeFormat = "2006-01-02 15:04:05"
		zl = zerolog.New(writer).Level(levelFor(cfg.AppEnv)).With().Timestamp().Logger()
	}
	return &Logger{Logger: &zl, component: component}
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	zl := zerolog.Nop()
	return &Logger{Logger: &zl, component: "nop"}
}

func levelFor(env string) zerolog.Level {
	if level, ok := levels[env]; ok {
		return level
	}
	return zerolog.DebugLevel
}

// Component returns the component name the logger was created for.
func (l *Logger) Component() string { return l.component }

// With returns a child logger carrying the given fields on every event.
func (l *Logger) With(fields map[string]interface{}) *Logger {
	child := l.Logger.With().Fields(fields).Logger()
	return &Logger{Logger: &child, component: l.component}
}

func (l *Logger) Debug() *zerolog.Event   { return l.Logger.Debug() }
func (l *Logger) Info() *zerolog.Event    { return l.Logger.Info() }
func (l *Logger) Success() *zerolog.Event { return l.Logger.Info().Str("outcome", "success") }
func (l *Logger) Warn() *zerolog.Event    { return l.Logger.Warn() }
func (l *Logger) Error() *zerolog.Event   { return l.Logger.Error() }

func (l *Logger) LogDebug(msg string)   { l.Debug().Msg(msg) }
func (l *Logger) LogInfo(msg string)    { l.Info().Msg(msg) }
func (l *Logger) LogSuccess(msg string) { l.Success().Msg(msg) }
func (l *Logger) LogWarn(msg string)    { l.Warn().Msg(msg) }

func (l *Logger) LogError(msg string, err error) {
	if err != nil {
		l.Error().Err(err).Msg(msg)
		return
	}
	l.Error().Msg(msg)
}

func (l *Logger) LogFatal(msg string, err error) {
	if err != nil {
		l.Fatal().Err(err).Msg(msg)
		return
	}
	l.Fatal().Msg(msg)
}

func (l *Logger) LogDebugf(format string, v ...interface{})   { l.Debug().Msgf(format, v...) }
func (l *Logger) LogInfof(format string, v ...interface{})    { l.Info().Msgf(format, v...) }
func (l *Logger) LogSuccessf(format string, v ...interface{}) { l.Success().Msgf(format, v...) }
func (l *Logger) LogWarnf(format string, v ...interface{})    { l.Warn().Msgf(format, v...) }
func (l *Logger) LogErrorf(format string, v ...interface{})   { l.Error().Msgf(format, v...) }
func (l *Logger) LogFatalf(format string, v ...interface{})   { l.Fatal().Msgf(format, v...) }
