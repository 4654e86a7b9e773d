package monitor

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Record is one append-only execution log row: one per agent per request.
type Record struct {
	ID          uuid.UUID `json:"id" db:"id"`
	RequestID   string    `json:"request_id" db:"request_id"`
	AgentID     string    `json:"agent_id" db:"agent_id"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
	QueryDigest string    `json:"query_digest" db:"query_digest"`
	Status      string    `json:"status" db:"status"`
	DurationMs  int64     `json:"duration_ms" db:"duration_ms"`
	RetryCount  int       `json:"retry_count" db:"retry_count"`
	Error       string    `json:"error,omitempty" db:"error"`
}

// QueryDigest returns a short stable digest of the raw query so log rows
// never carry the query text itself.
func QueryDigest(query string) string {
	h := sha256.Sum256([]byte(query))
	return hex.EncodeToString(h[:8])
}
