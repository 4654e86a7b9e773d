package monitor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryDigest(t *testing.T) {
	a := QueryDigest("how is apple doing")
	b := QueryDigest("how is apple doing")
	c := QueryDigest("different query")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
	// The digest must not leak the query text.
	assert.NotContains(t, a, "apple")
}

func TestRecordJSONShape(t *testing.T) {
	rec := Record{
		ID:          uuid.MustParse("11111111-2222-3333-4444-555555555555"),
		RequestID:   "req-1",
		AgentID:     "yahoo",
		Timestamp:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		QueryDigest: "abcd",
		Status:      "SUCCEEDED",
		DurationMs:  1500,
		RetryCount:  1,
	}
	buf, err := json.Marshal(rec)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(buf, &m))
	assert.Equal(t, "req-1", m["request_id"])
	assert.Equal(t, "yahoo", m["agent_id"])
	assert.Equal(t, "abcd", m["query_digest"])
	assert.EqualValues(t, 1500, m["duration_ms"])
	// Empty errors are omitted from the wire form.
	assert.NotContains(t, m, "error")
}

func newMockRecorder(t *testing.T) (*PostgresRecorder, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.MatchExpectationsInOrder(false)
	return NewPostgresRecorderFromDB(sqlx.NewDb(db, "sqlmock"), nil), mock
}

func TestPostgresRecorderWritesRow(t *testing.T) {
	rec, mock := newMockRecorder(t)
	mock.ExpectExec("INSERT INTO execution_logs").
		WithArgs(
			sqlmock.AnyArg(), "req-1", "yahoo", sqlmock.AnyArg(), "digest",
			"SUCCEEDED", int64(1200), 1, nil,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	rec.Record(context.Background(), &Record{
		RequestID:   "req-1",
		AgentID:     "yahoo",
		QueryDigest: "digest",
		Status:      "SUCCEEDED",
		DurationMs:  1200,
		RetryCount:  1,
	})
	// Close drains the queue before shutting down.
	require.NoError(t, rec.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecorderPersistsError(t *testing.T) {
	rec, mock := newMockRecorder(t)
	mock.ExpectExec("INSERT INTO execution_logs").
		WithArgs(
			sqlmock.AnyArg(), "req-2", "sec", sqlmock.AnyArg(), "digest",
			"FAILED", int64(30), 2, "upstream unreachable",
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	rec.Record(context.Background(), &Record{
		RequestID:   "req-2",
		AgentID:     "sec",
		QueryDigest: "digest",
		Status:      "FAILED",
		DurationMs:  30,
		RetryCount:  2,
		Error:       "upstream unreachable",
	})
	require.NoError(t, rec.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecorderSwallowsWriteFailure(t *testing.T) {
	rec, mock := newMockRecorder(t)
	mock.ExpectExec("INSERT INTO execution_logs").
		WillReturnError(assert.AnError)
	mock.ExpectClose()

	// Must not panic or surface the error to the caller.
	rec.Record(context.Background(), &Record{RequestID: "req-3", AgentID: "general"})
	require.NoError(t, rec.Close())
}

func TestPostgresRecorderFillsDefaults(t *testing.T) {
	rec, mock := newMockRecorder(t)
	mock.ExpectExec("INSERT INTO execution_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	r := &Record{RequestID: "req-4", AgentID: "finance"}
	rec.Record(context.Background(), r)
	assert.NotEqual(t, uuid.Nil, r.ID)
	assert.False(t, r.Timestamp.IsZero())
	require.NoError(t, rec.Close())
}

func TestNopRecorder(t *testing.T) {
	var rec Recorder = NopRecorder{}
	rec.Record(context.Background(), &Record{})
	assert.NoError(t, rec.Close())
}
