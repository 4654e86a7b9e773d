package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/bankerai/orchestrator/internal/metrics"
)

// Recorder appends execution log records. Implementations must never let a
// logging failure reach the caller: the returned response is independent of
// the monitor sink.
type Recorder interface {
	Record(ctx context.Context, rec *Record)
	Close() error
}

// NopRecorder drops all records. Used when no sink is configured.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *Record) {}
func (NopRecorder) Close() error                    { return nil }

// PostgresConfig holds sink connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// PostgresRecorder writes records to Postgres through an async queue with a
// synchronous fallback when the queue is full. Write errors are logged and
// swallowed.
type PostgresRecorder struct {
	db     *sqlx.DB
	logger *zap.Logger

	queue    chan *Record
	stopCh   chan struct{}
	workerWg sync.WaitGroup
}

const insertRecordSQL = `
    INSERT INTO execution_logs (
        id, request_id, agent_id, timestamp, query_digest, status, duration_ms, retry_count, error
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

// NewPostgresRecorder opens the sink connection and starts write workers.
func NewPostgresRecorder(cfg PostgresConfig, logger *zap.Logger) (*PostgresRecorder, error) {
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("monitor: connect: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	return NewPostgresRecorderFromDB(db, logger), nil
}

// NewPostgresRecorderFromDB wraps an existing connection (used by tests).
func NewPostgresRecorderFromDB(db *sqlx.DB, logger *zap.Logger) *PostgresRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &PostgresRecorder{
		db:     db,
		logger: logger,
		queue:  make(chan *Record, 1000),
		stopCh: make(chan struct{}),
	}
	for i := 0; i < 4; i++ {
		r.workerWg.Add(1)
		go r.writeWorker()
	}
	return r
}

// Record queues one row, falling back to a synchronous write when the queue
// is full so records are not dropped under load.
func (r *PostgresRecorder) Record(ctx context.Context, rec *Record) {
	if rec == nil {
		return
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	select {
	case r.queue <- rec:
		metrics.MonitorQueueDepth.Set(float64(len(r.queue)))
	default:
		r.logger.Warn("Monitor queue full, writing synchronously",
			zap.String("agent_id", rec.AgentID))
		r.write(ctx, rec)
	}
}

func (r *PostgresRecorder) writeWorker() {
	defer r.workerWg.Done()
	for {
		select {
		case <-r.stopCh:
			// Drain what is left before stopping.
			for {
				select {
				case rec := <-r.queue:
					r.write(context.Background(), rec)
				default:
					return
				}
			}
		case rec := <-r.queue:
			metrics.MonitorQueueDepth.Set(float64(len(r.queue)))
			r.write(context.Background(), rec)
		}
	}
}

func (r *PostgresRecorder) write(ctx context.Context, rec *Record) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.ExecContext(ctx, insertRecordSQL,
		rec.ID, rec.RequestID, rec.AgentID, rec.Timestamp, rec.QueryDigest,
		rec.Status, rec.DurationMs, rec.RetryCount, nullIfEmpty(rec.Error),
	)
	if err != nil {
		metrics.MonitorRecordsWritten.WithLabelValues("error").Inc()
		r.logger.Error("Failed to write execution log record",
			zap.String("request_id", rec.RequestID),
			zap.String("agent_id", rec.AgentID),
			zap.Error(err),
		)
		return
	}
	metrics.MonitorRecordsWritten.WithLabelValues("ok").Inc()
}

// Close stops the workers after draining the queue and closes the
// connection.
func (r *PostgresRecorder) Close() error {
	close(r.stopCh)
	r.workerWg.Wait()
	return r.db.Close()
}

// Ping verifies sink connectivity (used by health checks).
func (r *PostgresRecorder) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
