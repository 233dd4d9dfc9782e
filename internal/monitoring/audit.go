// Package monitoring - audit.go persists request and intervention events.
//
// DESIGN: A small sqlite database keeps an operator-facing audit trail.
// Writes happen inline after the response is committed, off the latency
// path the client observes. Auditing is optional; a nil AuditLog is a
// valid no-op everywhere.
package monitoring

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS requests (
	request_id  TEXT PRIMARY KEY,
	at          TEXT NOT NULL,
	session_key TEXT,
	provider    TEXT,
	model       TEXT,
	status_code INTEGER,
	outcome     TEXT,
	latency_ms  INTEGER
);
CREATE TABLE IF NOT EXISTS interventions (
	id              TEXT PRIMARY KEY,
	at              TEXT NOT NULL,
	session_key     TEXT,
	kind            TEXT,
	matched_turn_id TEXT,
	score           REAL
);
CREATE INDEX IF NOT EXISTS idx_requests_session ON requests(session_key);
CREATE INDEX IF NOT EXISTS idx_interventions_session ON interventions(session_key);
`

// AuditLog writes events to sqlite.
type AuditLog struct {
	db *sql.DB
	mu sync.Mutex
}

// NewAuditLog opens (creating if needed) the audit database at path.
func NewAuditLog(path string) (*AuditLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit db: %w", err)
	}
	if _, err := db.Exec(auditSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init audit schema: %w", err)
	}
	return &AuditLog{db: db}, nil
}

// RecordRequest appends a request event. Failures are logged, never fatal.
func (a *AuditLog) RecordRequest(ev RequestEvent) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.db.Exec(
		`INSERT OR REPLACE INTO requests (request_id, at, session_key, provider, model, status_code, outcome, latency_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.RequestID, ev.At.UTC().Format("2006-01-02T15:04:05.000Z"),
		ev.SessionKey, ev.Provider, ev.Model, ev.StatusCode, ev.Outcome,
		ev.Latency.Milliseconds(),
	)
	if err != nil {
		log.Warn().Err(err).Msg("audit: failed to record request")
	}
}

// RecordIntervention appends an intervention record.
func (a *AuditLog) RecordIntervention(rec InterventionRecord) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.db.Exec(
		`INSERT OR REPLACE INTO interventions (id, at, session_key, kind, matched_turn_id, score)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.At.UTC().Format("2006-01-02T15:04:05.000Z"),
		rec.SessionKey, string(rec.Kind), rec.MatchedTurnID, rec.Score,
	)
	if err != nil {
		log.Warn().Err(err).Msg("audit: failed to record intervention")
	}
}

// SessionInterventionCount reports how many interventions a session has had.
func (a *AuditLog) SessionInterventionCount(sessionKey string) (int, error) {
	if a == nil {
		return 0, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	var n int
	err := a.db.QueryRow(
		`SELECT COUNT(*) FROM interventions WHERE session_key = ?`, sessionKey,
	).Scan(&n)
	return n, err
}

// Close closes the database.
func (a *AuditLog) Close() error {
	if a == nil {
		return nil
	}
	return a.db.Close()
}
