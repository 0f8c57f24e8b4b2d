package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// Tables written by the timer start/stop transaction.
var timerPathTables = map[string]struct{}{
	"time_logs":            {},
	"inventory_items":      {},
	"inventory_movements":  {},
	"order_status_updates": {},
}

// GormLoggerConfig configures the GORM zap logger.
type GormLoggerConfig struct {
	Level                gormlogger.LogLevel
	SlowThreshold        time.Duration
	// TimerPathThreshold replaces SlowThreshold for timer-path tables.
	TimerPathThreshold   time.Duration
	IgnoreRecordNotFound bool
}

// DefaultGormLoggerConfig returns production-safe defaults.
func DefaultGormLoggerConfig() GormLoggerConfig {
	return GormLoggerConfig{
		Level:              gormlogger.Warn,
		SlowThreshold:      200 * time.Millisecond,
		TimerPathThreshold: 100 * time.Millisecond,
	}
}

// GormLogger implements gormlogger.Interface with zap-backed structured logging.
// Request-scoped org and worker ids come from the context logger.
type GormLogger struct {
	level                gormlogger.LogLevel
	slowThreshold        time.Duration
	timerPathThreshold   time.Duration
	ignoreRecordNotFound bool
}

func NewGormLogger(cfg GormLoggerConfig) *GormLogger {
	timerPath := cfg.TimerPathThreshold
	if timerPath <= 0 {
		timerPath = cfg.SlowThreshold
	}
	return &GormLogger{
		level:                cfg.Level,
		slowThreshold:        cfg.SlowThreshold,
		timerPathThreshold:   timerPath,
		ignoreRecordNotFound: cfg.IgnoreRecordNotFound,
	}
}

// LogMode returns a logger with the updated level.
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	copy := *l
	copy.level = level
	return &copy
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level < gormlogger.Info {
		return
	}
	FromContext(ctx).Info(msg, messageFields(data)...)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level < gormlogger.Warn {
		return
	}
	FromContext(ctx).Warn(msg, messageFields(data)...)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level < gormlogger.Error {
		return
	}
	FromContext(ctx).Error(msg, messageFields(data)...)
}

// Trace logs failed statements at Error and slow ones at Warn. Everything else is
// Debug and only when the level is Info.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	if err != nil && l.level >= gormlogger.Error && (!errors.Is(err, gormlogger.ErrRecordNotFound) || !l.ignoreRecordNotFound) {
		sql, rows := fc()
		l.logQuery(ctx, sql, rows, elapsed, err, zap.ErrorLevel)
		return
	}
	if l.level < gormlogger.Warn {
		return
	}

	sql, rows := fc()
	threshold := l.slowThreshold
	if isTimerPathTable(tableFromSQL(sql)) {
		threshold = l.timerPathThreshold
	}
	switch {
	case threshold > 0 && elapsed > threshold:
		l.logQuery(ctx, sql, rows, elapsed, nil, zap.WarnLevel)
	case l.level >= gormlogger.Info:
		l.logQuery(ctx, sql, rows, elapsed, nil, zap.DebugLevel)
	}
}

// ParamsFilter strips bound values; they carry rates, costs and quantities.
func (l *GormLogger) ParamsFilter(ctx context.Context, sql string, params ...interface{}) (string, []interface{}) {
	_ = ctx
	_ = params
	return sql, nil
}

func (l *GormLogger) logQuery(ctx context.Context, sql string, rows int64, elapsed time.Duration, err error, level zapcore.Level) {
	operation := operationFromSQL(sql)
	table := tableFromSQL(sql)
	fields := []zap.Field{
		zap.String("component", "gorm"),
		zap.String("sql", strings.TrimSpace(sql)),
		zap.String("operation", operation),
		zap.String("table", table),
		zap.Bool("timer_path", isTimerPathTable(table)),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	// Guarded updates (stock deduction, status transitions, timer stop) report
	// a lost race as zero affected rows rather than an error.
	if err == nil && operation == "UPDATE" && rows == 0 {
		fields = append(fields, zap.Bool("guard_missed", true))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}

	log := FromContext(ctx)
	switch level {
	case zap.ErrorLevel:
		log.Error("gorm.query", fields...)
	case zap.WarnLevel:
		log.Warn("gorm.query", fields...)
	default:
		log.Debug("gorm.query", fields...)
	}
}

func messageFields(data []interface{}) []zap.Field {
	fields := []zap.Field{zap.String("component", "gorm")}
	if len(data) > 0 {
		fields = append(fields, zap.Any("data", data))
	}
	return fields
}

func operationFromSQL(sql string) string {
	normalized := strings.ToUpper(strings.TrimSpace(sql))
	if normalized == "" {
		return "UNKNOWN"
	}
	tokens := strings.Fields(normalized)
	for _, token := range tokens {
		token = strings.Trim(token, "();")
		switch token {
		case "SELECT", "INSERT", "UPDATE", "DELETE", "MERGE":
			return token
		case "WITH":
			continue
		}
	}
	return "UNKNOWN"
}

// tableFromSQL returns the first table named after FROM, INTO or UPDATE.
func tableFromSQL(sql string) string {
	tokens := strings.Fields(sql)
	for i := 0; i < len(tokens)-1; i++ {
		switch strings.ToUpper(tokens[i]) {
		case "FROM", "INTO", "UPDATE":
			if strings.HasPrefix(tokens[i+1], "(") {
				continue
			}
			name := strings.Trim(tokens[i+1], "\"`);,")
			if name == "" {
				continue
			}
			if dot := strings.LastIndex(name, "."); dot >= 0 {
				name = name[dot+1:]
			}
			return strings.ToLower(strings.Trim(name, "\"`"))
		}
	}
	return ""
}

func isTimerPathTable(table string) bool {
	_, ok := timerPathTables[table]
	return ok
}

var _ gormlogger.Interface = (*GormLogger)(nil)
