package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	fieldsKey
)

// RequestFields are the request-scoped identifiers every log line of a
// request carries. They are stored once per context and copied on write.
type RequestFields struct {
	RequestID      string
	OrganizationID string
	UserID         string
	Platform       string
}

func fieldsFrom(ctx context.Context) RequestFields {
	f, _ := ctx.Value(fieldsKey).(RequestFields)
	return f
}

// WithContext attaches logger to ctx.
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger attached to ctx, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}

// Fields returns the request identifiers recorded on ctx.
func Fields(ctx context.Context) RequestFields {
	return fieldsFrom(ctx)
}

func with(ctx context.Context, logger *zap.Logger, key, value string, set func(*RequestFields)) (context.Context, *zap.Logger) {
	f := fieldsFrom(ctx)
	set(&f)
	ctx = context.WithValue(ctx, fieldsKey, f)
	enriched := logger.With(zap.String(key, value))
	return WithContext(ctx, enriched), enriched
}

// WithRequestID records the request ID on ctx and on the returned logger.
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	return with(ctx, logger, "request_id", requestID, func(f *RequestFields) { f.RequestID = requestID })
}

// WithOrganizationID records the organization on ctx and on the returned logger.
func WithOrganizationID(ctx context.Context, logger *zap.Logger, orgID string) (context.Context, *zap.Logger) {
	return with(ctx, logger, "organization_id", orgID, func(f *RequestFields) { f.OrganizationID = orgID })
}

// WithUserID records the user on ctx and on the returned logger.
func WithUserID(ctx context.Context, logger *zap.Logger, userID string) (context.Context, *zap.Logger) {
	return with(ctx, logger, "user_id", userID, func(f *RequestFields) { f.UserID = userID })
}

// WithPlatform records the ITSM platform a request acts on.
func WithPlatform(ctx context.Context, logger *zap.Logger, platform string) (context.Context, *zap.Logger) {
	return with(ctx, logger, "platform", platform, func(f *RequestFields) { f.Platform = platform })
}

func GetRequestID(ctx context.Context) string      { return fieldsFrom(ctx).RequestID }
func GetOrganizationID(ctx context.Context) string { return fieldsFrom(ctx).OrganizationID }
func GetUserID(ctx context.Context) string         { return fieldsFrom(ctx).UserID }
func GetPlatform(ctx context.Context) string       { return fieldsFrom(ctx).Platform }

// TraceFields returns trace_id and span_id for the active span, or nil when
// ctx carries no valid span.
func TraceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

// L returns the context logger with trace correlation fields added. The
// request identifiers are already on it when the HTTP middleware built ctx.
func L(ctx context.Context) *zap.Logger {
	l := FromContext(ctx)
	if tf := TraceFields(ctx); tf != nil {
		return l.With(tf...)
	}
	return l
}
