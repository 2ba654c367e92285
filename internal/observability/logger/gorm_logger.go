package logger

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// GormLoggerConfig configures the query logger installed on the gorm handle.
type GormLoggerConfig struct {
	Level                gormlogger.LogLevel
	SlowThreshold        time.Duration
	IgnoreRecordNotFound bool
}

func DefaultGormLoggerConfig() GormLoggerConfig {
	return GormLoggerConfig{
		Level:                gormlogger.Warn,
		SlowThreshold:        250 * time.Millisecond,
		IgnoreRecordNotFound: true,
	}
}

// GormLogger routes gorm output through zap with the request's school,
// actor and trace fields attached. Bound parameters are never logged so
// guardian contact details and amounts stay out of the log stream.
type GormLogger struct {
	base *zap.Logger
	cfg  GormLoggerConfig
}

// NewGormLogger falls back to the global logger when base is nil.
func NewGormLogger(base *zap.Logger, cfg GormLoggerConfig) *GormLogger {
	return &GormLogger{base: base, cfg: cfg}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.cfg.Level = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

// Trace logs failed statements at error, slow ones at warn and, in info
// mode, everything else at debug.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	var (
		level zapcore.Level
		msg   string
	)
	switch {
	case err != nil && l.cfg.Level >= gormlogger.Error && !l.quiet(err):
		level, msg = zapcore.ErrorLevel, "db query failed"
	case l.cfg.SlowThreshold > 0 && elapsed > l.cfg.SlowThreshold && l.cfg.Level >= gormlogger.Warn:
		level, msg = zapcore.WarnLevel, "db query slow"
	case l.cfg.Level >= gormlogger.Info:
		level, msg = zapcore.DebugLevel, "db query"
	default:
		return
	}

	ce := l.logger(ctx).Check(level, msg)
	if ce == nil {
		return
	}
	sql, rows := fc()
	sql = strings.TrimSpace(sql)
	fields := []zap.Field{
		zap.String("component", "gorm"),
		zap.String("operation", operationFromSQL(sql)),
		zap.String("table", tableFromSQL(sql)),
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	if level == zapcore.ErrorLevel {
		fields = append(fields, zap.Error(err))
	}
	ce.Write(fields...)
}

// ParamsFilter drops bound values before gorm renders the statement.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *GormLogger) quiet(err error) bool {
	return l.cfg.IgnoreRecordNotFound && errors.Is(err, gormlogger.ErrRecordNotFound)
}

func (l *GormLogger) message(ctx context.Context, min gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.cfg.Level < min {
		return
	}
	if ce := l.logger(ctx).Check(level, msg); ce != nil {
		ce.Write(zap.String("component", "gorm"), zap.Any("data", data))
	}
}

func (l *GormLogger) logger(ctx context.Context) *zap.Logger {
	base := l.base
	if base == nil {
		base = zap.L()
	}
	return WithContext(ctx, base)
}

var tableRe = regexp.MustCompile(`(?i)\b(?:from|into|update|join)\s+["` + "`" + `]?([a-z0-9_]+)`)

// operationFromSQL names the first DML keyword; a leading CTE is skipped.
func operationFromSQL(sql string) string {
	for _, tok := range strings.Fields(strings.ToUpper(sql)) {
		switch tok = strings.Trim(tok, "();"); tok {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			return tok
		}
	}
	return "UNKNOWN"
}

func tableFromSQL(sql string) string {
	if m := tableRe.FindStringSubmatch(sql); m != nil {
		return strings.ToLower(m[1])
	}
	return ""
}

var _ gormlogger.Interface = (*GormLogger)(nil)
