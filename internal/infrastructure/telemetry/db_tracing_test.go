package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type tracedTicket struct {
	ID    uint `gorm:"primaryKey"`
	Title string
}

func newTracedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tracedTicket{}))
	return db
}

func newRecorder(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, sr
}

func TestRegisterDBTracing_Disabled(t *testing.T) {
	db := newTracedDB(t)
	require.NoError(t, RegisterDBTracing(db, DBTracingConfig{}, zap.NewNop()))
	assert.NoError(t, db.Create(&tracedTicket{Title: "printer down"}).Error)
}

func TestRegisterDBTracing_EmitsStatementSpans(t *testing.T) {
	tp, sr := newRecorder(t)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	db := newTracedDB(t)
	require.NoError(t, RegisterDBTracing(db, DBTracingConfig{Enabled: true, DBSystem: "sqlite"}, zap.NewNop()))

	ctx, parent := tp.Tracer("test").Start(context.Background(), "deliver")
	require.NoError(t, db.WithContext(ctx).Create(&tracedTicket{Title: "vpn"}).Error)
	var got tracedTicket
	require.NoError(t, db.WithContext(ctx).First(&got).Error)
	parent.End()

	assert.GreaterOrEqual(t, len(sr.Ended()), 3)
}

func TestAnnotateStatementSpan(t *testing.T) {
	tp, sr := newRecorder(t)
	db := newTracedDB(t)

	ctx, span := tp.Tracer("test").Start(context.Background(), "stmt")
	tx := db.Session(&gorm.Session{NewDB: true})
	tx.Statement.Context = context.WithValue(ctx, queryStartKey{}, time.Now().Add(-time.Second))
	tx.Statement.Table = "sync_queue_items"
	tx.Statement.RowsAffected = 2
	tx.Error = errors.New("database is locked")

	annotateStatementSpan(tx, 100*time.Millisecond)
	span.End()

	ended := sr.Ended()
	require.Len(t, ended, 1)
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range ended[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "sync_queue_items", attrs["db.sql.table"].AsString())
	assert.Equal(t, int64(2), attrs["db.rows_affected"].AsInt64())
	assert.True(t, attrs["db.slow_query"].AsBool())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
}

func TestAnnotateStatementSpan_IgnoresNotFound(t *testing.T) {
	tp, sr := newRecorder(t)
	db := newTracedDB(t)

	ctx, span := tp.Tracer("test").Start(context.Background(), "stmt")
	tx := db.Session(&gorm.Session{NewDB: true})
	tx.Statement.Context = ctx
	tx.Error = gorm.ErrRecordNotFound

	annotateStatementSpan(tx, time.Second)
	span.End()

	assert.NotEqual(t, codes.Error, sr.Ended()[0].Status().Code)
}
