package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ANSI color codes
const (
	Reset = "\033[0m"
	Bold  = "\033[1m"
	Dim   = "\033[2m"

	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	White   = "\033[37m"
	Gray    = "\033[90m"

	BrightRed    = "\033[91m"
	BrightGreen  = "\033[92m"
	BrightYellow = "\033[93m"
	BrightBlue   = "\033[94m"
	BrightWhite  = "\033[97m"
)

// ColoredLogger wraps zap.Logger with colored output
type ColoredLogger struct {
	*zap.Logger
	enableColors bool
}

// Component represents different parts of the SDK for color coding
type Component string

const (
	ComponentSnowball    Component = "SNOWBALL"
	ComponentRPC         Component = "RPC"
	ComponentEmbedded    Component = "EMBEDDED"
	ComponentLit         Component = "LIT"
	ComponentState       Component = "STATE"
	ComponentStorage     Component = "STORAGE"
	ComponentWallet      Component = "WALLET"
	ComponentSmartWallet Component = "SMARTWALLET"
)

// getComponentColor returns the color for a specific component
func getComponentColor(component Component) string {
	switch component {
	case ComponentSnowball:
		return BrightBlue
	case ComponentRPC:
		return Cyan
	case ComponentEmbedded:
		return BrightGreen
	case ComponentLit:
		return Magenta
	case ComponentState:
		return Gray
	case ComponentStorage:
		return BrightYellow
	case ComponentWallet, ComponentSmartWallet:
		return Green
	default:
		return White
	}
}

// getLevelColor returns the color for a log level
func getLevelColor(level zapcore.Level) string {
	switch level {
	case zapcore.DebugLevel:
		return Gray
	case zapcore.InfoLevel:
		return BrightWhite
	case zapcore.WarnLevel:
		return BrightYellow
	case zapcore.ErrorLevel:
		return BrightRed
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return Red
	default:
		return White
	}
}

// coloredConsoleEncoder creates a custom encoder with colors
func coloredConsoleEncoder(enableColors bool) zapcore.Encoder {
	config := zap.NewDevelopmentEncoderConfig()

	config.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		timeStr := t.Format("15:04:05")
		if enableColors {
			enc.AppendString(fmt.Sprintf("%s%s%s", Dim, timeStr, Reset))
		} else {
			enc.AppendString(timeStr)
		}
	}

	// Single letter level: D, I, W, E
	config.EncodeLevel = func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		levelStr := strings.ToUpper(level.String()[:1])
		if enableColors {
			enc.AppendString(fmt.Sprintf("%s%s%s%s", getLevelColor(level), Bold, levelStr, Reset))
		} else {
			enc.AppendString(levelStr)
		}
	}

	config.EncodeCaller = func(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		file := caller.File
		if idx := strings.LastIndex(file, "/"); idx >= 0 {
			file = file[idx+1:]
		}
		file = strings.TrimSuffix(file, ".go")
		if enableColors {
			enc.AppendString(fmt.Sprintf("%s%s%s", Dim, file, Reset))
		} else {
			enc.AppendString(file)
		}
	}

	return zapcore.NewConsoleEncoder(config)
}

// NewColoredLogger creates a new colored logger writing to stdout
func NewColoredLogger(component Component, enableColors bool) (*ColoredLogger, error) {
	return newColoredLogger(os.Stdout, zapcore.DebugLevel, enableColors), nil
}

// NewWriterLogger creates a colored logger writing to w at the given level.
func NewWriterLogger(w io.Writer, level zapcore.Level, enableColors bool) *ColoredLogger {
	return newColoredLogger(w, level, enableColors)
}

func newColoredLogger(w io.Writer, level zapcore.Level, enableColors bool) *ColoredLogger {
	core := zapcore.NewCore(
		coloredConsoleEncoder(enableColors),
		zapcore.AddSync(w),
		level,
	)

	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	return &ColoredLogger{
		Logger:       logger,
		enableColors: enableColors,
	}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *ColoredLogger {
	return &ColoredLogger{Logger: zap.NewNop()}
}

// NewSDKLogger creates a zap.Logger based on quiet mode preference.
// Quiet mode returns a production logger with Warn+ level and reduced noise.
// Non-quiet returns a development logger with debug/info output.
func NewSDKLogger(quiet bool) (*zap.Logger, error) {
	if quiet {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		cfg.DisableCaller = true
		cfg.DisableStacktrace = true
		return cfg.Build()
	}
	return zap.NewDevelopment()
}

// Wrap adapts an existing zap.Logger. A nil logger yields a no-op logger.
func Wrap(l *zap.Logger) *ColoredLogger {
	if l == nil {
		return NewNopLogger()
	}
	return &ColoredLogger{Logger: l}
}

// Named returns a child logger under the "snowball:<name>" namespace.
func (l *ColoredLogger) Named(name string) *ColoredLogger {
	if l == nil {
		return NewNopLogger().Named(name)
	}
	return &ColoredLogger{
		Logger:       l.Logger.Named("snowball:" + name),
		enableColors: l.enableColors,
	}
}

func (l *ColoredLogger) tag(component Component, msg string) string {
	if l.enableColors {
		return fmt.Sprintf("%s[%s]%s %s", getComponentColor(component), component, Reset, msg)
	}
	return fmt.Sprintf("[%s] %s", component, msg)
}

// Component-specific logging methods
func (l *ColoredLogger) ComponentInfo(component Component, msg string, fields ...zap.Field) {
	l.Info(l.tag(component, msg), fields...)
}

func (l *ColoredLogger) ComponentWarn(component Component, msg string, fields ...zap.Field) {
	l.Warn(l.tag(component, msg), fields...)
}

func (l *ColoredLogger) ComponentError(component Component, msg string, fields ...zap.Field) {
	l.Error(l.tag(component, msg), fields...)
}

func (l *ColoredLogger) ComponentDebug(component Component, msg string, fields ...zap.Field) {
	l.Debug(l.tag(component, msg), fields...)
}
