package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/arencloud/bucketgw/internal/logging"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// slowQuery is the threshold above which a statement is logged at warn.
const slowQuery = 500 * time.Millisecond

// gormLogger forwards gorm output to the process logger. Statements are
// reduced to operation and table; bound values never reach the log.
type gormLogger struct {
	log   logging.Logger
	level gormlogger.LogLevel
}

var _ gormlogger.Interface = (*gormLogger)(nil)

func newGormLogger(l logging.Logger, lvl gormlogger.LogLevel) *gormLogger {
	return &gormLogger{log: l.With("component", "gorm"), level: lvl}
}

func (g *gormLogger) LogMode(lvl gormlogger.LogLevel) gormlogger.Interface {
	cp := *g
	cp.level = lvl
	return &cp
}

func (g *gormLogger) Info(_ context.Context, msg string, data ...any) {
	if g.level >= gormlogger.Info {
		g.log.Info(msg, "args", data)
	}
}

func (g *gormLogger) Warn(_ context.Context, msg string, data ...any) {
	if g.level >= gormlogger.Warn {
		g.log.Warn(msg, "args", data)
	}
}

func (g *gormLogger) Error(_ context.Context, msg string, data ...any) {
	if g.level >= gormlogger.Error {
		g.log.Error(msg, "args", data)
	}
}

func (g *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}
	took := time.Since(begin)
	sql, rows := fc()
	op, table := summarizeSQL(sql)
	kv := []any{"op", op, "table", table, "rows", rows, "took", took}
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && g.level >= gormlogger.Error:
		g.log.Error("sql failed", append(kv, "err", err)...)
	case took > slowQuery && g.level >= gormlogger.Warn:
		g.log.Warn("slow sql", kv...)
	case g.level >= gormlogger.Info:
		g.log.Debug("sql", kv...)
	}
}

// summarizeSQL reduces a statement to its verb and first table name, e.g.
// ("INSERT", "buckets").
func summarizeSQL(sql string) (op, table string) {
	words := strings.Fields(sql)
	if len(words) == 0 {
		return "", ""
	}
	op = strings.ToUpper(words[0])
	for i, w := range words[:len(words)-1] {
		switch strings.ToUpper(w) {
		case "FROM", "INTO", "UPDATE", "TABLE":
			return op, strings.ToLower(strings.Trim(words[i+1], "`\"()"))
		}
	}
	return op, ""
}
