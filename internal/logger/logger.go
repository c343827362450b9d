package logger

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	Log        = zap.NewNop()
	gormLogger GormLoggerInterface
)

type GormLoggerInterface interface {
	gormlogger.Interface
}

// GormLogger forwards gorm's logging to zap, redacting credentials in SQL.
type GormLogger struct {
	*zap.Logger
	LogLevel      gormlogger.LogLevel
	SlowThreshold time.Duration
	redactors     []*regexp.Regexp
}

var sensitiveWords = []string{"password", "token", "secret", "apikey", "credential"}

// Init builds the global logger. Output goes to stderr; stdout stays free
// for command output such as list-tables.
func Init(debug bool, jsonOutput bool) error {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	} else {
		config = zap.NewProductionConfig()
		config.DisableCaller = true
		config.Sampling = nil
	}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.MessageKey = "msg"
	config.DisableStacktrace = !debug
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}
	if jsonOutput {
		config.Encoding = "json"
	} else {
		config.Encoding = "console"
	}

	built, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to build zap logger: %w", err)
	}
	Log = built
	gormLogger = NewGormLogger(Log, debug)
	Log.Debug("Logger initialized",
		zap.Bool("debug_mode", debug),
		zap.Bool("json_output", jsonOutput),
	)
	return nil
}

// NewGormLogger wraps base. In debug mode every statement is traced.
func NewGormLogger(base *zap.Logger, debug bool) GormLoggerInterface {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	redactors := make([]*regexp.Regexp, 0, len(sensitiveWords))
	for _, w := range sensitiveWords {
		redactors = append(redactors, regexp.MustCompile(`(?i)(`+regexp.QuoteMeta(w)+`\s*[:=]\s*)('.*?'|".*?"|\S+)`))
	}
	return &GormLogger{
		Logger:        base.Named("gorm"),
		LogLevel:      level,
		SlowThreshold: 2 * time.Second,
		redactors:     redactors,
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.LogLevel = level
	return &cp
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Info {
		l.Logger.Info(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Warn {
		l.Logger.Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Error {
		l.Logger.Error(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Redact(sql string) string {
	for _, re := range l.redactors {
		sql = re.ReplaceAllString(sql, `${1}***REDACTED***`)
	}
	return sql
}

// Trace logs failed and slow statements, and everything in debug mode.
// Errors are logged at debug level: the caller wraps and reports them.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.Logger.Debug("SQL error", l.fields(sql, rows, elapsed, zap.Error(err))...)
	case l.SlowThreshold > 0 && elapsed > l.SlowThreshold && l.LogLevel >= gormlogger.Warn:
		sql, rows := fc()
		l.Logger.Warn("Slow query", l.fields(sql, rows, elapsed, zap.Duration("threshold", l.SlowThreshold))...)
	case l.LogLevel >= gormlogger.Info:
		sql, rows := fc()
		l.Logger.Debug("SQL query", l.fields(sql, rows, elapsed)...)
	}
}

func (l *GormLogger) fields(sql string, rows int64, elapsed time.Duration, extra ...zap.Field) []zap.Field {
	fields := []zap.Field{
		zap.Duration("duration", elapsed.Round(time.Millisecond)),
		zap.String("sql", l.Redact(sql)),
	}
	if rows > -1 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	return append(fields, extra...)
}

// GetGormLogger returns the logger built by Init.
func GetGormLogger() GormLoggerInterface {
	if gormLogger == nil {
		gormLogger = NewGormLogger(Log, false)
	}
	return gormLogger
}
