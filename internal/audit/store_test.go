package audit

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/raaihank/llm-anonymizer/internal/privacy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCountsValueAndScan(t *testing.T) {
	v, err := Counts{"id": 2, "name": 1}.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":2,"name":1}`, string(v.([]byte)))

	v, err = Counts(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), v)

	var c Counts
	require.NoError(t, c.Scan([]byte(`{"date":3}`)))
	assert.Equal(t, Counts{"date": 3}, c)
	assert.Equal(t, 3, c.Total())

	require.NoError(t, c.Scan(`{"id":1,"name":4}`))
	assert.Equal(t, 5, c.Total())

	require.NoError(t, c.Scan(nil))
	assert.Empty(t, c)

	assert.Error(t, c.Scan(42))
	assert.Error(t, c.Scan([]byte("not json")))
}

func TestBatchInsertPlaceholders(t *testing.T) {
	records := []*Record{
		{RequestID: "r1", Operation: OperationHide, Categories: Counts{"id": 1}, TextLength: 10},
		{RequestID: "r2", SessionID: "s", Operation: OperationFill, TextLength: 20, Degraded: pq.StringArray{"name"}},
	}

	query, args := batchInsert(records)
	assert.Contains(t, query, "($1, $2, $3, $4, $5, $6, $7),($8, $9, $10, $11, $12, $13, $14)")
	require.Len(t, args, 14)
	assert.Equal(t, "r2", args[7])
	assert.Equal(t, OperationFill, args[9])
	assert.Equal(t, pq.StringArray{}, args[4])
}

func TestChunkRecords(t *testing.T) {
	records := make([]*Record, 2501)
	for i := range records {
		records[i] = &Record{RequestID: fmt.Sprintf("r%d", i), Operation: OperationBatch}
	}

	chunks := chunkRecords(records, maxBatchRows)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 1000)
	assert.Len(t, chunks[1], 1000)
	assert.Len(t, chunks[2], 501)
	assert.Equal(t, "r2500", chunks[2][500].RequestID)

	for _, chunk := range chunks {
		_, args := batchInsert(chunk)
		assert.LessOrEqual(t, len(args), 65535)
	}

	assert.Empty(t, chunkRecords(nil, maxBatchRows))
	assert.Len(t, chunkRecords(records[:1000], maxBatchRows), 1)
}

func TestNewHideRecord(t *testing.T) {
	res := privacy.ProcessResult{
		MaskedText: "<FIRST_NAME_1> złożył <ID_1>",
		Original:   "Łukasz złożył 42",
		Findings: []privacy.Finding{
			{EntityType: "id", Placeholders: 1, Occurrences: 1},
			{EntityType: "name", Placeholders: 1, Occurrences: 1},
		},
	}

	r := NewHideRecord("req", "sess", res, 1500*time.Microsecond)
	assert.Equal(t, OperationHide, r.Operation)
	assert.Equal(t, Counts{"id": 1, "name": 1}, r.Categories)
	assert.Equal(t, 16, r.TextLength)
	assert.InDelta(t, 1.5, r.DurationMs, 0.0001)
}

func TestMaskDatabaseURL(t *testing.T) {
	assert.Equal(t,
		"postgres://app:***@db:5432/audit?sslmode=disable",
		maskDatabaseURL("postgres://app:secret@db:5432/audit?sslmode=disable"))
	assert.Equal(t, "postgres://db/audit", maskDatabaseURL("postgres://db/audit"))
}

// TestStoreIntegration runs against a real PostgreSQL when
// ANONYMIZER_TEST_DATABASE_URL is set.
func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("ANONYMIZER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("ANONYMIZER_TEST_DATABASE_URL not set")
	}

	store, err := NewStore(&Config{DatabaseURL: dsn, MaxOpenConns: 2, MaxIdleConns: 1}, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	session := uuid.NewString()

	rec := &Record{
		RequestID:  uuid.NewString(),
		SessionID:  session,
		Operation:  OperationHide,
		Categories: Counts{"id": 2},
		TextLength: 42,
		DurationMs: 0.5,
	}
	require.NoError(t, store.Record(ctx, rec))
	assert.NotZero(t, rec.ID)

	res, err := store.RecordBatch(ctx, []*Record{
		{RequestID: uuid.NewString(), SessionID: session, Operation: OperationFill, TextLength: 40},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Inserted)

	got, err := store.Session(ctx, session)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Counts{"id": 2}, got[0].Categories)
	assert.Equal(t, OperationFill, got[1].Operation)

	stats, err := store.Stats(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.NotEmpty(t, stats)

	many := make([]*Record, maxBatchRows+500)
	for i := range many {
		many[i] = &Record{RequestID: uuid.NewString(), SessionID: session + "-batch", Operation: OperationBatch, TextLength: i}
	}
	res, err = store.RecordBatch(ctx, many)
	require.NoError(t, err)
	assert.Equal(t, int64(len(many)), res.Inserted)

	recent, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)

	_, err = store.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	got, err = store.Session(ctx, session)
	require.NoError(t, err)
	assert.Len(t, got, 2, "fresh records survive pruning")
}
