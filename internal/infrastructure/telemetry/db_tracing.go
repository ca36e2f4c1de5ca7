package telemetry

import (
	"context"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database span instrumentation.
type DBTracingConfig struct {
	Enabled          bool
	LogFullSQL       bool          // include statement parameters in spans; dev only
	SlowQueryThresh  time.Duration // queries over this get a slow_query event
	DBSystem         string        // default "postgresql"
	WithoutVariables bool          // strip bind variables from recorded SQL
}

// DefaultDBTracingConfig returns the secure defaults: tracing off, variables
// stripped, 200ms slow threshold.
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		Enabled:          false,
		LogFullSQL:       false,
		SlowQueryThresh:  200 * time.Millisecond,
		DBSystem:         "postgresql",
		WithoutVariables: true,
	}
}

// DBTracingPlugin layers slow-query detection and error marking on top of
// the otelgorm spans.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin creates a database tracing plugin.
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	return &DBTracingPlugin{
		config: cfg,
		logger: logger,
	}
}

// RegisterOtelGorm installs otelgorm on db plus the timing callbacks that
// feed slow-query detection. No-op when tracing is disabled.
func (p *DBTracingPlugin) RegisterOtelGorm(db *gorm.DB) error {
	if !p.config.Enabled {
		p.logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}

	opts := []otelgorm.Option{
		otelgorm.WithDBName(p.config.DBSystem),
	}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	before := func(string) func(*gorm.DB) { return p.BeforeCallback }
	after := func(string) func(*gorm.DB) { return p.AfterCallback }
	if err := registerHooks(db, "otel_timing:before", true, before); err != nil {
		return err
	}
	if err := registerHooks(db, "otel_slow_query", false, after); err != nil {
		return err
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
		zap.String("db_system", p.config.DBSystem),
	)
	return nil
}

// registerHooks attaches a callback to every GORM operation type, either
// before or after the built-in processor for that operation. mk receives the
// operation name so callers can vary the callback per operation. GORM's
// callback types are unexported, so each operation gets its own closure.
func registerHooks(db *gorm.DB, namePrefix string, before bool, mk func(op string) func(*gorm.DB)) error {
	cb := db.Callback()
	groups := []struct {
		op  string
		reg func(anchor, name string, fn func(*gorm.DB)) error
	}{
		{"create", func(a, n string, fn func(*gorm.DB)) error {
			if before {
				return cb.Create().Before(a).Register(n, fn)
			}
			return cb.Create().After(a).Register(n, fn)
		}},
		{"query", func(a, n string, fn func(*gorm.DB)) error {
			if before {
				return cb.Query().Before(a).Register(n, fn)
			}
			return cb.Query().After(a).Register(n, fn)
		}},
		{"update", func(a, n string, fn func(*gorm.DB)) error {
			if before {
				return cb.Update().Before(a).Register(n, fn)
			}
			return cb.Update().After(a).Register(n, fn)
		}},
		{"delete", func(a, n string, fn func(*gorm.DB)) error {
			if before {
				return cb.Delete().Before(a).Register(n, fn)
			}
			return cb.Delete().After(a).Register(n, fn)
		}},
		{"row", func(a, n string, fn func(*gorm.DB)) error {
			if before {
				return cb.Row().Before(a).Register(n, fn)
			}
			return cb.Row().After(a).Register(n, fn)
		}},
		{"raw", func(a, n string, fn func(*gorm.DB)) error {
			if before {
				return cb.Raw().Before(a).Register(n, fn)
			}
			return cb.Raw().After(a).Register(n, fn)
		}},
	}

	for _, g := range groups {
		if err := g.reg("gorm:"+g.op, namePrefix+":"+g.op, mk(g.op)); err != nil {
			return err
		}
	}
	return nil
}

// BeforeCallback stamps the statement context with the query start time.
func (p *DBTracingPlugin) BeforeCallback(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = WithQueryStartTime(db.Statement.Context)
	}
}

// AfterCallback annotates the active span with row counts and table name,
// records non-not-found errors, and emits a slow_query_warning event when
// the elapsed time crosses the threshold.
func (p *DBTracingPlugin) AfterCallback(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}

	if db.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}

	// A missing cart row is an expected outcome, not a span error.
	if db.Error != nil && db.Error != gorm.ErrRecordNotFound {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	if startTime, ok := ctx.Value(queryStartTimeKey).(time.Time); ok {
		elapsed := time.Since(startTime)
		if elapsed > p.config.SlowQueryThresh {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
			span.AddEvent("slow_query_warning", trace.WithAttributes(
				attribute.Int64("duration_ms", elapsed.Milliseconds()),
				attribute.Int64("threshold_ms", p.config.SlowQueryThresh.Milliseconds()),
			))
		}
	}
}

type contextKey string

const queryStartTimeKey contextKey = "otel_query_start_time"

// WithQueryStartTime marks ctx with the moment a query began executing.
func WithQueryStartTime(ctx context.Context) context.Context {
	return context.WithValue(ctx, queryStartTimeKey, time.Now())
}
