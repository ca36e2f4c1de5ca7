package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// bufferedLogger returns a JSON logger writing into the returned buffer so
// tests can assert on emitted fields.
func bufferedLogger() (*zap.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(&buf),
		zapcore.DebugLevel,
	)
	return zap.New(core), &buf
}

// contextWithRecordingSpan starts a real SDK span so trace and span IDs are
// valid.
func contextWithRecordingSpan(t *testing.T) context.Context {
	t.Helper()
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("context-test").Start(context.Background(), "recompute")
	t.Cleanup(func() { span.End() })
	return ctx
}

// contextWithNoopSpan starts a noop span, whose span context is invalid.
func contextWithNoopSpan(t *testing.T) context.Context {
	t.Helper()
	ctx, span := noop.NewTracerProvider().Tracer("context-test").Start(context.Background(), "recompute")
	t.Cleanup(func() { span.End() })

	require.False(t, trace.SpanFromContext(ctx).SpanContext().IsValid())
	return ctx
}

func TestWithContextRoundTrip(t *testing.T) {
	base, _ := bufferedLogger()

	ctx := WithContext(context.Background(), base)
	assert.Same(t, base, FromContext(ctx))
}

func TestFromContextFallsBackToNop(t *testing.T) {
	t.Run("empty context", func(t *testing.T) {
		l := FromContext(context.Background())
		require.NotNil(t, l)
		assert.NotPanics(t, func() { l.Info("ok") })
	})

	t.Run("wrong value type", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), LoggerKey, "not a logger")
		l := FromContext(ctx)
		require.NotNil(t, l)
		assert.NotPanics(t, func() { l.Info("ok") })
	})
}

func TestIdentityEnrichment(t *testing.T) {
	base, _ := bufferedLogger()

	tests := []struct {
		name   string
		attach func(context.Context, *zap.Logger, string) (context.Context, *zap.Logger)
		get    func(context.Context) string
		value  string
	}{
		{"request id", WithRequestID, GetRequestID, "req-123"},
		{"session id", WithSessionID, GetSessionID, "sess-456"},
		{"user id", WithUserID, GetUserID, "user-789"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// Absent before attach.
			assert.Empty(t, tc.get(context.Background()))

			ctx, enriched := tc.attach(context.Background(), base, tc.value)
			assert.Equal(t, tc.value, tc.get(ctx))
			assert.NotSame(t, base, enriched)

			// The context carries the enriched logger, not the base one.
			assert.Same(t, enriched, FromContext(ctx))
		})
	}
}

func TestIdentityChaining(t *testing.T) {
	base, _ := bufferedLogger()

	ctx, l := WithRequestID(context.Background(), base, "req-1")
	ctx, l = WithSessionID(ctx, l, "sess-1")
	ctx, l = WithUserID(ctx, l, "user-1")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "sess-1", GetSessionID(ctx))
	assert.Equal(t, "user-1", GetUserID(ctx))
	assert.NotNil(t, l)
}

func TestWithRequestIDOverrides(t *testing.T) {
	base, _ := bufferedLogger()

	ctx, _ := WithRequestID(context.Background(), base, "first-id")
	ctx, _ = WithRequestID(ctx, base, "second-id")

	assert.Equal(t, "second-id", GetRequestID(ctx))
}

func TestContextKeysDistinct(t *testing.T) {
	keys := []contextKey{LoggerKey, RequestIDKey, SessionIDKey, UserIDKey}
	seen := make(map[contextKey]bool, len(keys))
	for _, k := range keys {
		assert.False(t, seen[k], "duplicate key %q", k)
		seen[k] = true
	}
}

func TestTraceAndSpanIDs(t *testing.T) {
	t.Run("no span", func(t *testing.T) {
		assert.Empty(t, GetTraceID(context.Background()))
		assert.Empty(t, GetSpanID(context.Background()))
	})

	t.Run("recording span", func(t *testing.T) {
		ctx := contextWithRecordingSpan(t)
		assert.Len(t, GetTraceID(ctx), 32)
		assert.Len(t, GetSpanID(ctx), 16)
	})

	t.Run("invalid span context", func(t *testing.T) {
		ctx := contextWithNoopSpan(t)
		assert.Empty(t, GetTraceID(ctx))
		assert.Empty(t, GetSpanID(ctx))
	})
}

func TestWithTraceContext(t *testing.T) {
	base := zap.NewNop()

	t.Run("no span returns logger unchanged", func(t *testing.T) {
		assert.Same(t, base, WithTraceContext(context.Background(), base))
	})

	t.Run("invalid span context returns logger unchanged", func(t *testing.T) {
		ctx := contextWithNoopSpan(t)
		assert.Same(t, base, WithTraceContext(ctx, base))
	})

	t.Run("recording span enriches fields", func(t *testing.T) {
		realBase, buf := bufferedLogger()
		ctx := contextWithRecordingSpan(t)

		WithTraceContext(ctx, realBase).Info("priced")

		output := buf.String()
		assert.Contains(t, output, `"trace_id":"`+GetTraceID(ctx)+`"`)
		assert.Contains(t, output, `"span_id":"`+GetSpanID(ctx)+`"`)
	})
}

func TestL(t *testing.T) {
	t.Run("empty context", func(t *testing.T) {
		cl := L(context.Background())
		require.NotNil(t, cl)
		assert.NotNil(t, cl.logger)
	})

	t.Run("picks up context logger", func(t *testing.T) {
		base, buf := bufferedLogger()
		ctx := WithContext(context.Background(), base)

		L(ctx).Info("stamp verified")
		assert.Contains(t, buf.String(), `"msg":"stamp verified"`)
	})
}

func TestWithLoggerUsesProvidedLogger(t *testing.T) {
	base, _ := bufferedLogger()

	cl := WithLogger(context.Background(), base)
	require.NotNil(t, cl)
	assert.Same(t, base, cl.logger)
}

func TestContextLoggerWith(t *testing.T) {
	base, buf := bufferedLogger()

	cl := WithLogger(context.Background(), base).
		With(zap.String("coupon_code", "SAVE10")).
		With(zap.Int("discount_cents", 250))
	cl.Info("coupon applied")

	output := buf.String()
	assert.Contains(t, output, `"coupon_code":"SAVE10"`)
	assert.Contains(t, output, `"discount_cents":250`)
}

func TestContextLoggerLevels(t *testing.T) {
	cl := WithLogger(context.Background(), zap.NewNop())

	assert.NotPanics(t, func() {
		cl.Debug("debug")
		cl.Info("info")
		cl.Warn("warn")
		cl.Error("error")
	})
}

func TestContextLoggerNilLogger(t *testing.T) {
	cl := &ContextLogger{ctx: context.Background()}

	assert.NotPanics(t, func() { cl.Info("ok") })
}

func TestContextLoggerZapAndSugar(t *testing.T) {
	cl := WithLogger(context.Background(), zap.NewNop())

	require.NotNil(t, cl.Zap())
	require.NotNil(t, cl.Sugar())
	assert.NotPanics(t, func() {
		cl.Zap().Info("plain")
		cl.Sugar().Infof("sugared %s", "entry")
	})
}

func TestContextLoggerCorrelationFields(t *testing.T) {
	base, buf := bufferedLogger()

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-aaa")
	ctx = context.WithValue(ctx, SessionIDKey, "sess-bbb")
	ctx = context.WithValue(ctx, UserIDKey, "user-ccc")

	WithLogger(ctx, base).Info("cart merged", zap.Int("moved_lines", 3))

	output := buf.String()
	assert.Contains(t, output, `"request_id":"req-aaa"`)
	assert.Contains(t, output, `"session_id":"sess-bbb"`)
	assert.Contains(t, output, `"user_id":"user-ccc"`)
	assert.Contains(t, output, `"moved_lines":3`)
}

func TestContextLoggerOmitsEmptyFields(t *testing.T) {
	base, buf := bufferedLogger()

	WithLogger(context.Background(), base).Info("bare entry")

	output := buf.String()
	assert.Contains(t, output, `"msg":"bare entry"`)
	assert.NotContains(t, output, "request_id")
	assert.NotContains(t, output, "session_id")
	assert.NotContains(t, output, "user_id")
}

func TestContextLoggerIncludesTraceIDs(t *testing.T) {
	base, buf := bufferedLogger()
	ctx := contextWithRecordingSpan(t)

	WithLogger(ctx, base).Info("traced entry")

	output := buf.String()
	assert.Contains(t, output, `"trace_id":"`+GetTraceID(ctx)+`"`)
	assert.Contains(t, output, `"span_id":"`+GetSpanID(ctx)+`"`)
}
